package turn

import (
	"errors"
	"strings"

	"github.com/bowerhall/lumen/internal/chat"
	"github.com/bowerhall/lumen/internal/llm"
	"github.com/bowerhall/lumen/internal/logger"
)

// ErrEmptyMessage is returned when a turn would carry no content parts.
// The remote service must never be asked to interpret an empty turn.
var ErrEmptyMessage = errors.New("message has no content")

// buildHistory converts stored messages into wire turns. Turns that end up
// with no usable parts are omitted.
func buildHistory(msgs []chat.Message) []llm.Message {
	var history []llm.Message
	for _, msg := range msgs {
		wire := toWire(msg)
		if wire.Content == "" && len(wire.Media) == 0 {
			continue
		}
		history = append(history, wire)
	}
	return history
}

// buildTurn converts the new user message. Unlike history turns, an empty
// result is an error: the controller must not issue the remote call.
func buildTurn(msg chat.Message) (llm.Message, error) {
	wire := toWire(msg)
	if wire.Content == "" && len(wire.Media) == 0 {
		return llm.Message{}, ErrEmptyMessage
	}
	return wire, nil
}

func toWire(msg chat.Message) llm.Message {
	role := "user"
	if msg.Role == chat.RoleModel {
		role = "assistant"
	}

	wire := llm.Message{
		Role:    role,
		Content: strings.TrimSpace(msg.Content),
	}

	for _, att := range msg.Attachments {
		mime, data, err := chat.ParseDataURI(att.DataURI)
		if err != nil {
			logger.Warn("skipping unreadable attachment", "kind", att.Kind, "error", err)
			continue
		}
		wire.Media = append(wire.Media, llm.MediaContent{
			Type:     mediaTypeFor(att.Kind),
			MimeType: mime,
			Data:     data,
		})
	}

	return wire
}

func mediaTypeFor(kind chat.AttachmentKind) llm.MediaType {
	switch kind {
	case chat.KindImage:
		return llm.MediaTypeImage
	case chat.KindAudio:
		return llm.MediaTypeAudio
	default:
		return llm.MediaTypeFile
	}
}
