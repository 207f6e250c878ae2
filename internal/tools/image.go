package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/bowerhall/lumen/internal/chat"
	"github.com/bowerhall/lumen/internal/llm"
)

// GenerateImageTool is the function name declared to the model.
const GenerateImageTool = "generate_image"

const generatedImageMime = "image/jpeg"

// RegisterImageTool exposes image generation to the model. The handler
// requests exactly one JPEG; the attachment is surfaced to the user while
// the summary goes back to the model for a closing reply.
func RegisterImageTool(registry *Registry, gen llm.ImageGenerator) {
	tool := llm.Tool{
		Name:        GenerateImageTool,
		Description: "Generate an image from a text prompt. Only use this when the user explicitly asks you to create, draw, generate, or make an image.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"prompt": map[string]any{
					"type":        "string",
					"description": "A detailed description of the image to generate",
				},
			},
			"required": []string{"prompt"},
		},
	}

	registry.Register(tool, func(ctx context.Context, args string) (*Result, error) {
		var params struct {
			Prompt string `json:"prompt"`
		}
		if err := json.Unmarshal([]byte(args), &params); err != nil {
			return nil, fmt.Errorf("invalid arguments: %w", err)
		}

		if strings.TrimSpace(params.Prompt) == "" {
			return nil, fmt.Errorf("missing required argument: prompt")
		}

		images, err := gen.GenerateImage(ctx, params.Prompt)
		if err != nil {
			return nil, fmt.Errorf("generate image: %w", err)
		}
		if len(images) == 0 {
			return nil, fmt.Errorf("image backend returned no images")
		}

		return &Result{
			Summary:     fmt.Sprintf("Image generated successfully for prompt: %s", params.Prompt),
			Attachments: []chat.Attachment{chat.NewImageAttachment(generatedImageMime, images[0])},
		}, nil
	})
}
