package tools

import (
	"context"

	"github.com/bowerhall/lumen/internal/chat"
	"github.com/bowerhall/lumen/internal/llm"
)

// Result is what a tool hands back: a summary the model reads in the
// follow-up turn, and any attachments the user should see directly.
type Result struct {
	Summary     string
	Attachments []chat.Attachment
}

type Handler func(ctx context.Context, args string) (*Result, error)

type Registry struct {
	tools    []llm.Tool
	handlers map[string]Handler
}
