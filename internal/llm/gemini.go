package llm

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const geminiMaxRetries = 3
const geminiBaseDelay = 2 * time.Second

type gemini struct {
	apiKey      string
	baseURL     string
	model       string
	imageModel  string
	speechModel string
}

type geminiPart struct {
	Text             string              `json:"text,omitempty"`
	InlineData       *geminiInlineData   `json:"inlineData,omitempty"`
	FunctionCall     *geminiFunctionCall `json:"functionCall,omitempty"`
	FunctionResponse *geminiFunctionResp `json:"functionResponse,omitempty"`
}

type geminiInlineData struct {
	MimeType string `json:"mimeType"`
	Data     string `json:"data"`
}

type geminiFunctionCall struct {
	Name string         `json:"name"`
	Args map[string]any `json:"args,omitempty"`
}

type geminiFunctionResp struct {
	Name     string         `json:"name"`
	Response map[string]any `json:"response"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiToolDecl struct {
	FunctionDeclarations []geminiFunction `json:"functionDeclarations"`
}

type geminiFunction struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters,omitempty"`
}

type geminiSpeechConfig struct {
	VoiceConfig struct {
		PrebuiltVoiceConfig struct {
			VoiceName string `json:"voiceName"`
		} `json:"prebuiltVoiceConfig"`
	} `json:"voiceConfig"`
}

type geminiGenerationConfig struct {
	ResponseModalities []string            `json:"responseModalities,omitempty"`
	SpeechConfig       *geminiSpeechConfig `json:"speechConfig,omitempty"`
}

type geminiRequest struct {
	SystemInstruction *geminiContent          `json:"systemInstruction,omitempty"`
	Contents          []geminiContent         `json:"contents"`
	Tools             []geminiToolDecl        `json:"tools,omitempty"`
	GenerationConfig  *geminiGenerationConfig `json:"generationConfig,omitempty"`
}

type geminiResponse struct {
	Candidates []struct {
		Content      geminiContent `json:"content"`
		FinishReason string        `json:"finishReason"`
	} `json:"candidates"`
	UsageMetadata *struct {
		PromptTokenCount     int `json:"promptTokenCount"`
		CandidatesTokenCount int `json:"candidatesTokenCount"`
		TotalTokenCount      int `json:"totalTokenCount"`
	} `json:"usageMetadata"`
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

type geminiPredictRequest struct {
	Instances  []geminiPredictInstance `json:"instances"`
	Parameters geminiPredictParams     `json:"parameters"`
}

type geminiPredictInstance struct {
	Prompt string `json:"prompt"`
}

type geminiPredictParams struct {
	SampleCount    int    `json:"sampleCount"`
	OutputMimeType string `json:"outputMimeType,omitempty"`
}

type geminiPredictResponse struct {
	Predictions []struct {
		BytesBase64Encoded string `json:"bytesBase64Encoded"`
		MimeType           string `json:"mimeType"`
	} `json:"predictions"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

func newGemini(cfg Config) *gemini {
	g := &gemini{
		apiKey:      cfg.APIKey,
		baseURL:     cfg.BaseURL,
		model:       cfg.Model,
		imageModel:  cfg.ImageModel,
		speechModel: cfg.SpeechModel,
	}
	if g.baseURL == "" {
		g.baseURL = "https://generativelanguage.googleapis.com"
	}
	if g.model == "" {
		g.model = "gemini-2.5-flash"
	}
	if g.imageModel == "" {
		g.imageModel = "imagen-3.0-generate-002"
	}
	if g.speechModel == "" {
		g.speechModel = "gemini-2.5-flash-preview-tts"
	}
	return g
}

func (g *gemini) Chat(ctx context.Context, systemPrompt string, messages []Message) (string, error) {
	resp, err := g.ChatWithTools(ctx, systemPrompt, messages, nil)
	if err != nil {
		return "", err
	}
	return resp.Content, nil
}

func (g *gemini) ChatWithTools(ctx context.Context, systemPrompt string, messages []Message, tools []Tool) (*ChatResponse, error) {
	req := geminiRequest{
		Contents: g.convertMessages(messages),
	}

	if systemPrompt != "" {
		req.SystemInstruction = &geminiContent{Parts: []geminiPart{{Text: systemPrompt}}}
	}

	if len(tools) > 0 {
		decls := make([]geminiFunction, len(tools))
		for i, tool := range tools {
			decls[i] = geminiFunction{
				Name:        tool.Name,
				Description: tool.Description,
				Parameters:  tool.Parameters,
			}
		}
		req.Tools = []geminiToolDecl{{FunctionDeclarations: decls}}
	}

	var resp geminiResponse
	url := fmt.Sprintf("%s/v1beta/models/%s:generateContent", g.baseURL, g.model)
	if err := g.post(ctx, url, req, &resp); err != nil {
		return nil, err
	}

	return g.parseResponse(&resp)
}

// GenerateImage renders exactly one JPEG for the given prompt via the
// Imagen predict endpoint. An empty prediction list is not an error.
func (g *gemini) GenerateImage(ctx context.Context, prompt string) ([][]byte, error) {
	req := geminiPredictRequest{
		Instances: []geminiPredictInstance{{Prompt: prompt}},
		Parameters: geminiPredictParams{
			SampleCount:    1,
			OutputMimeType: "image/jpeg",
		},
	}

	var resp geminiPredictResponse
	url := fmt.Sprintf("%s/v1beta/models/%s:predict", g.baseURL, g.imageModel)
	if err := g.post(ctx, url, req, &resp); err != nil {
		return nil, err
	}

	if resp.Error != nil {
		return nil, fmt.Errorf("imagen error: %s", resp.Error.Message)
	}

	var images [][]byte
	for _, p := range resp.Predictions {
		data, err := base64.StdEncoding.DecodeString(p.BytesBase64Encoded)
		if err != nil {
			return nil, fmt.Errorf("decode image bytes: %w", err)
		}
		images = append(images, data)
	}

	return images, nil
}

// SynthesizeSpeech reads text aloud through the TTS model family, which
// returns audio as an inline data part.
func (g *gemini) SynthesizeSpeech(ctx context.Context, text string) ([]byte, string, error) {
	cfg := &geminiGenerationConfig{
		ResponseModalities: []string{"AUDIO"},
		SpeechConfig:       &geminiSpeechConfig{},
	}
	cfg.SpeechConfig.VoiceConfig.PrebuiltVoiceConfig.VoiceName = "Kore"

	req := geminiRequest{
		Contents:         []geminiContent{{Role: "user", Parts: []geminiPart{{Text: text}}}},
		GenerationConfig: cfg,
	}

	var resp geminiResponse
	url := fmt.Sprintf("%s/v1beta/models/%s:generateContent", g.baseURL, g.speechModel)
	if err := g.post(ctx, url, req, &resp); err != nil {
		return nil, "", err
	}

	if resp.Error != nil {
		return nil, "", fmt.Errorf("tts error: %s", resp.Error.Message)
	}

	for _, cand := range resp.Candidates {
		for _, part := range cand.Content.Parts {
			if part.InlineData != nil {
				audio, err := base64.StdEncoding.DecodeString(part.InlineData.Data)
				if err != nil {
					return nil, "", fmt.Errorf("decode audio bytes: %w", err)
				}
				return audio, part.InlineData.MimeType, nil
			}
		}
	}

	return nil, "", fmt.Errorf("no audio in tts response")
}

func (g *gemini) post(ctx context.Context, url string, payload any, out any) error {
	jsonBody, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	var body []byte
	var statusCode int
	for attempt := 0; attempt < geminiMaxRetries; attempt++ {
		httpReq, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewReader(jsonBody))
		if err != nil {
			return fmt.Errorf("create request: %w", err)
		}
		httpReq.Header.Set("Content-Type", "application/json")
		httpReq.Header.Set("x-goog-api-key", g.apiKey)

		resp, err := http.DefaultClient.Do(httpReq)
		if err != nil {
			return fmt.Errorf("http request: %w", err)
		}

		body, err = io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			return fmt.Errorf("read response: %w", err)
		}

		statusCode = resp.StatusCode
		if statusCode == 200 {
			break
		}
		if !isRetryableStatus(statusCode) {
			return fmt.Errorf("api error (status %d): %s", statusCode, string(body))
		}
		if attempt < geminiMaxRetries-1 {
			delay := geminiBaseDelay * time.Duration(1<<attempt)
			time.Sleep(delay)
		}
	}

	if statusCode != 200 {
		return fmt.Errorf("api error (status %d): %s", statusCode, string(body))
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("unmarshal response: %w", err)
	}

	return nil
}

func (g *gemini) convertMessages(messages []Message) []geminiContent {
	var result []geminiContent

	for _, msg := range messages {
		switch msg.Role {
		case "assistant":
			var parts []geminiPart
			if msg.Content != "" {
				parts = append(parts, geminiPart{Text: msg.Content})
			}
			for _, tc := range msg.ToolCalls {
				var args map[string]any
				json.Unmarshal([]byte(tc.Arguments), &args)
				parts = append(parts, geminiPart{FunctionCall: &geminiFunctionCall{Name: tc.Name, Args: args}})
			}
			if len(parts) > 0 {
				result = append(result, geminiContent{Role: "model", Parts: parts})
			}

		case "tool":
			// Gemini has no tool call IDs; ToolCallID carries the
			// function name (see parseResponse).
			result = append(result, geminiContent{Role: "user", Parts: []geminiPart{{
				FunctionResponse: &geminiFunctionResp{
					Name:     msg.ToolCallID,
					Response: map[string]any{"result": msg.Content},
				},
			}}})

		default:
			var parts []geminiPart
			for _, media := range msg.Media {
				parts = append(parts, geminiPart{InlineData: &geminiInlineData{
					MimeType: media.MimeType,
					Data:     base64.StdEncoding.EncodeToString(media.Data),
				}})
			}
			if msg.Content != "" {
				parts = append(parts, geminiPart{Text: msg.Content})
			}
			if len(parts) > 0 {
				result = append(result, geminiContent{Role: "user", Parts: parts})
			}
		}
	}

	return result
}

func (g *gemini) parseResponse(resp *geminiResponse) (*ChatResponse, error) {
	if resp.Error != nil {
		return nil, fmt.Errorf("api error: %s", resp.Error.Message)
	}

	if len(resp.Candidates) == 0 {
		return nil, fmt.Errorf("no candidates in response")
	}

	cand := resp.Candidates[0]
	result := &ChatResponse{StopReason: cand.FinishReason}

	var texts []string
	for _, part := range cand.Content.Parts {
		if part.Text != "" {
			texts = append(texts, part.Text)
		}
		if part.FunctionCall != nil {
			args, _ := json.Marshal(part.FunctionCall.Args)
			result.ToolCalls = append(result.ToolCalls, ToolCall{
				ID:        part.FunctionCall.Name,
				Name:      part.FunctionCall.Name,
				Arguments: string(args),
			})
		}
	}
	result.Content = strings.Join(texts, "")

	if resp.UsageMetadata != nil {
		result.Usage = &Usage{
			PromptTokens:     resp.UsageMetadata.PromptTokenCount,
			CompletionTokens: resp.UsageMetadata.CandidatesTokenCount,
			TotalTokens:      resp.UsageMetadata.TotalTokenCount,
		}
	}

	return result, nil
}
