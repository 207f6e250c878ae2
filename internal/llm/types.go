package llm

import "context"

type Config struct {
	Provider string
	APIKey   string
	Model    string
	BaseURL  string

	// Secondary models used by providers that split capabilities
	// across model families.
	ImageModel  string
	SpeechModel string
}

type MediaType string

const (
	MediaTypeImage MediaType = "image"
	MediaTypeAudio MediaType = "audio"
	MediaTypeFile  MediaType = "file"
)

type MediaContent struct {
	Type     MediaType
	MimeType string
	Data     []byte
}

type Message struct {
	Role       string
	Content    string
	Media      []MediaContent
	ToolCalls  []ToolCall
	ToolCallID string
}

type Tool struct {
	Name        string
	Description string
	Parameters  map[string]any
}

type ToolCall struct {
	ID        string
	Name      string
	Arguments string
}

type ChatResponse struct {
	Content    string
	ToolCalls  []ToolCall
	StopReason string
	Usage      *Usage
}

type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

type LLM interface {
	Chat(ctx context.Context, systemPrompt string, messages []Message) (string, error)
	ChatWithTools(ctx context.Context, systemPrompt string, messages []Message, tools []Tool) (*ChatResponse, error)
}

// ImageGenerator is implemented by providers that can render images.
// A call may return zero images without an error.
type ImageGenerator interface {
	GenerateImage(ctx context.Context, prompt string) ([][]byte, error)
}

// SpeechSynthesizer is implemented by providers that can read text aloud.
type SpeechSynthesizer interface {
	SynthesizeSpeech(ctx context.Context, text string) (audio []byte, mimeType string, err error)
}
