package turn

import (
	"context"
	"strings"

	"github.com/bowerhall/lumen/internal/chat"
	"github.com/bowerhall/lumen/internal/llm"
	"github.com/bowerhall/lumen/internal/logger"
)

// Outcome is what one resolved turn folds into a model message.
type Outcome struct {
	Text        string
	Attachments []chat.Attachment
}

// Strings are the canned replies used when a turn degrades. Every failure
// the user sees is one of these, never a raw error.
type Strings struct {
	Apology           string
	ImageApology      string
	ImageConfirmation string
	Placeholder       string
}

func DefaultStrings() Strings {
	return Strings{
		Apology:           "Sorry, I ran into a problem answering that. Please try again.",
		ImageApology:      "I tried to generate that image, but something went wrong. Please try again.",
		ImageConfirmation: "Here is the image you asked for.",
		Placeholder:       "I don't have a response for that.",
	}
}

// resolve runs the remote call and, when the model requests a tool, the
// tool round-trip. Only the primary call can fail the turn; everything
// after it degrades to canned text.
func (c *Controller) resolve(ctx context.Context, history []llm.Message, newTurn llm.Message) (Outcome, error) {
	msgs := append(history, newTurn)

	resp, err := c.model.ChatWithTools(ctx, c.systemPrompt, msgs, c.tools.Tools())
	if err != nil {
		return Outcome{}, err
	}

	out := c.resolveToolCall(ctx, msgs, resp)

	if strings.TrimSpace(out.Text) == "" && len(out.Attachments) == 0 {
		out.Text = c.strings.Placeholder
	}

	return out, nil
}

// resolveToolCall executes a requested tool and feeds its result back into
// the same conversational turn for a closing natural-language reply.
// Tool failure never escapes: it surfaces only as substituted apology text.
func (c *Controller) resolveToolCall(ctx context.Context, msgs []llm.Message, resp *llm.ChatResponse) Outcome {
	tc := c.requestedTool(resp)
	if tc == nil {
		return Outcome{Text: resp.Content}
	}

	logger.Debug("tool requested", "name", tc.Name, "id", tc.ID)

	result, err := c.tools.Execute(ctx, tc.Name, tc.Arguments)
	if err != nil {
		logger.Warn("tool execution failed", "name", tc.Name, "error", err)
		return Outcome{Text: c.strings.ImageApology}
	}

	followup := append(msgs,
		llm.Message{Role: "assistant", Content: resp.Content, ToolCalls: []llm.ToolCall{*tc}},
		llm.Message{Role: "tool", Content: result.Summary, ToolCallID: tc.ID},
	)

	text := ""
	reply, err := c.model.ChatWithTools(ctx, c.systemPrompt, followup, nil)
	if err != nil {
		logger.Warn("tool follow-up call failed", "error", err)
	} else {
		text = reply.Content
	}

	if strings.TrimSpace(text) == "" {
		text = c.strings.ImageConfirmation
	}

	return Outcome{Text: text, Attachments: result.Attachments}
}

func (c *Controller) requestedTool(resp *llm.ChatResponse) *llm.ToolCall {
	for i := range resp.ToolCalls {
		if c.tools.Has(resp.ToolCalls[i].Name) {
			return &resp.ToolCalls[i]
		}
	}
	return nil
}
