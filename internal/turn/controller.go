package turn

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/bowerhall/lumen/internal/chat"
	"github.com/bowerhall/lumen/internal/llm"
	"github.com/bowerhall/lumen/internal/logger"
	"github.com/bowerhall/lumen/internal/tools"
)

// ErrBusy is returned when a turn is already in flight. Only one
// outstanding turn is permitted across the whole application.
var ErrBusy = errors.New("a turn is already in flight")

type Status string

const (
	StatusIdle     Status = "idle"
	StatusThinking Status = "thinking"
	StatusError    Status = "error"
)

const maxTitleRunes = 30

// StatusListener observes loading-state transitions, so a UI can disable
// its send affordance while a turn is in flight.
type StatusListener func(Status)

// Controller orchestrates one user-initiated turn end to end: optimistic
// local update, remote call, reconciliation, error fallback.
type Controller struct {
	store        *chat.Store
	model        llm.LLM
	tools        *tools.Registry
	systemPrompt string
	strings      Strings

	turn sync.Mutex // single outstanding turn

	mu       sync.Mutex
	status   Status
	listener StatusListener
}

func New(store *chat.Store, model llm.LLM, registry *tools.Registry, systemPrompt string) *Controller {
	return &Controller{
		store:        store,
		model:        model,
		tools:        registry,
		systemPrompt: systemPrompt,
		strings:      DefaultStrings(),
		status:       StatusIdle,
	}
}

func (c *Controller) SetStrings(s Strings) {
	c.strings = s
}

func (c *Controller) SetListener(fn StatusListener) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.listener = fn
}

func (c *Controller) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

func (c *Controller) setStatus(s Status) {
	c.mu.Lock()
	c.status = s
	fn := c.listener
	c.mu.Unlock()

	if fn != nil {
		fn(s)
	}
}

// Send runs one turn against the current session, creating a session
// transparently if none is selected. Empty input is rejected before any
// state changes; a busy controller rejects without mutation. Remote
// failures are never returned: they become a visible apology message.
func (c *Controller) Send(ctx context.Context, text string, attachments []chat.Attachment) error {
	userMsg := chat.NewMessage(chat.RoleUser, text, attachments)

	wire, err := buildTurn(userMsg)
	if err != nil {
		return err
	}

	if !c.turn.TryLock() {
		return ErrBusy
	}
	defer c.turn.Unlock()

	sess, ok := c.store.Current()
	if !ok {
		sess = c.store.Create(deriveTitle(text, attachments))
	} else if len(sess.Messages) == 0 {
		c.store.Rename(sess.ID, deriveTitle(text, attachments))
	}

	// Captured here; completion always writes back to this session even
	// if the user switches or deletes sessions mid-flight.
	sessionID := sess.ID

	history := buildHistory(sess.Messages)
	c.store.Append(sessionID, userMsg)

	c.run(ctx, sessionID, history, wire)
	return nil
}

// Edit rewrites a user message in the current session, discards everything
// after it, and re-runs the turn with the truncated history. Editing a
// missing message, a model message, or with no current session is a no-op.
func (c *Controller) Edit(ctx context.Context, messageID, text string) error {
	if !c.turn.TryLock() {
		return ErrBusy
	}
	defer c.turn.Unlock()

	sess, ok := c.store.Current()
	if !ok {
		return nil
	}

	k := -1
	for i, msg := range sess.Messages {
		if msg.ID == messageID {
			k = i
			break
		}
	}
	if k < 0 || sess.Messages[k].Role != chat.RoleUser {
		return nil
	}

	edited := sess.Messages[k]
	edited.Content = text
	edited.CreatedAt = time.Now()

	wire, err := buildTurn(edited)
	if err != nil {
		return err
	}

	sessionID := sess.ID
	history := buildHistory(sess.Messages[:k])

	truncated := make([]chat.Message, k+1)
	copy(truncated, sess.Messages[:k])
	truncated[k] = edited
	c.store.Replace(sessionID, truncated)

	c.run(ctx, sessionID, history, wire)
	return nil
}

// run executes the remote half of a turn and reconciles the outcome into
// the captured session. The loading state always returns to idle.
func (c *Controller) run(ctx context.Context, sessionID string, history []llm.Message, wire llm.Message) {
	c.setStatus(StatusThinking)

	out, err := c.resolve(ctx, history, wire)
	if err != nil {
		logger.Error("turn failed", "session", sessionID, "error", err)
		c.setStatus(StatusError)
		c.store.Append(sessionID, chat.NewMessage(chat.RoleModel, c.strings.Apology, nil))
		c.setStatus(StatusIdle)
		return
	}

	c.store.Append(sessionID, chat.NewMessage(chat.RoleModel, out.Text, out.Attachments))
	c.setStatus(StatusIdle)
}

// deriveTitle labels a session from its first message: a truncated slice
// of the text, or a media label when the message carries only attachments.
func deriveTitle(text string, attachments []chat.Attachment) string {
	text = strings.TrimSpace(text)
	if text == "" {
		if len(attachments) > 0 {
			switch attachments[0].Kind {
			case chat.KindImage:
				return "Image"
			case chat.KindAudio:
				return "Audio"
			default:
				return "File"
			}
		}
		return "New chat"
	}

	runes := []rune(text)
	if len(runes) > maxTitleRunes {
		return string(runes[:maxTitleRunes]) + "…"
	}
	return text
}
