package turn

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/bowerhall/lumen/internal/chat"
	"github.com/bowerhall/lumen/internal/llm"
	"github.com/bowerhall/lumen/internal/tools"
)

// fakeLLM replays scripted responses and records every request it sees.
type fakeLLM struct {
	responses []*llm.ChatResponse
	errs      []error
	calls     [][]llm.Message
	toolDecls [][]llm.Tool
}

func (f *fakeLLM) ChatWithTools(_ context.Context, _ string, messages []llm.Message, tls []llm.Tool) (*llm.ChatResponse, error) {
	f.calls = append(f.calls, messages)
	f.toolDecls = append(f.toolDecls, tls)

	i := len(f.calls) - 1
	if i < len(f.errs) && f.errs[i] != nil {
		return nil, f.errs[i]
	}
	if i < len(f.responses) {
		return f.responses[i], nil
	}
	return &llm.ChatResponse{}, nil
}

func (f *fakeLLM) Chat(ctx context.Context, systemPrompt string, messages []llm.Message) (string, error) {
	resp, err := f.ChatWithTools(ctx, systemPrompt, messages, nil)
	if err != nil {
		return "", err
	}
	return resp.Content, nil
}

type fakeImageBackend struct {
	images [][]byte
	err    error
	calls  int
}

func (f *fakeImageBackend) GenerateImage(_ context.Context, _ string) ([][]byte, error) {
	f.calls++
	return f.images, f.err
}

func newTestController(model *fakeLLM, gen llm.ImageGenerator) (*Controller, *chat.Store) {
	store := chat.NewStore()
	registry := tools.NewRegistry()
	if gen != nil {
		tools.RegisterImageTool(registry, gen)
	}
	return New(store, model, registry, "You are a helpful assistant."), store
}

func recordStatuses(c *Controller) *[]Status {
	var seen []Status
	c.SetListener(func(s Status) {
		seen = append(seen, s)
	})
	return &seen
}

func TestSendSuccess(t *testing.T) {
	model := &fakeLLM{responses: []*llm.ChatResponse{{Content: "hi there"}}}
	c, store := newTestController(model, nil)
	statuses := recordStatuses(c)

	if err := c.Send(context.Background(), "hello", nil); err != nil {
		t.Fatalf("send failed: %v", err)
	}

	sess, ok := store.Current()
	if !ok {
		t.Fatal("expected a session to be created")
	}

	if len(sess.Messages) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(sess.Messages))
	}

	if sess.Messages[0].Role != chat.RoleUser || sess.Messages[0].Content != "hello" {
		t.Errorf("user message mismatch: %+v", sess.Messages[0])
	}

	if sess.Messages[1].Role != chat.RoleModel || sess.Messages[1].Content != "hi there" {
		t.Errorf("model message mismatch: %+v", sess.Messages[1])
	}

	want := []Status{StatusThinking, StatusIdle}
	if len(*statuses) != len(want) || (*statuses)[0] != want[0] || (*statuses)[1] != want[1] {
		t.Errorf("status transitions = %v, want %v", *statuses, want)
	}

	if c.Status() != StatusIdle {
		t.Errorf("controller should end idle, got %s", c.Status())
	}
}

func TestSendHistoryExcludesOptimisticAppend(t *testing.T) {
	model := &fakeLLM{responses: []*llm.ChatResponse{{Content: "a"}, {Content: "b"}}}
	c, _ := newTestController(model, nil)

	c.Send(context.Background(), "first", nil)
	c.Send(context.Background(), "second", nil)

	// second request: history is the prior exchange plus the new turn
	second := model.calls[1]
	if len(second) != 3 {
		t.Fatalf("expected 3 turns on second call, got %d", len(second))
	}

	if second[0].Content != "first" || second[1].Content != "a" || second[2].Content != "second" {
		t.Errorf("request turns mismatch: %+v", second)
	}
}

func TestSendEmptyMessageRejectedBeforeRemoteCall(t *testing.T) {
	model := &fakeLLM{}
	c, store := newTestController(model, nil)

	err := c.Send(context.Background(), "   ", nil)
	if !errors.Is(err, ErrEmptyMessage) {
		t.Fatalf("expected ErrEmptyMessage, got %v", err)
	}

	if len(model.calls) != 0 {
		t.Error("remote service must not be called for an empty message")
	}

	if len(store.Sessions()) != 0 {
		t.Error("no session should be created for a rejected send")
	}

	if c.Status() != StatusIdle {
		t.Errorf("status should remain idle, got %s", c.Status())
	}
}

func TestSendWhileBusyIsNoop(t *testing.T) {
	model := &fakeLLM{}
	c, store := newTestController(model, nil)

	c.turn.Lock()
	defer c.turn.Unlock()

	err := c.Send(context.Background(), "hello", nil)
	if !errors.Is(err, ErrBusy) {
		t.Fatalf("expected ErrBusy, got %v", err)
	}

	if len(model.calls) != 0 {
		t.Error("no remote call should be made while busy")
	}

	if len(store.Sessions()) != 0 {
		t.Error("no session mutation should happen while busy")
	}
}

func TestSendFailureAppendsApology(t *testing.T) {
	model := &fakeLLM{errs: []error{fmt.Errorf("network down")}}
	c, store := newTestController(model, nil)
	statuses := recordStatuses(c)

	if err := c.Send(context.Background(), "hello", nil); err != nil {
		t.Fatalf("remote failure must not surface to the caller, got %v", err)
	}

	sess, _ := store.Current()
	if len(sess.Messages) != 2 {
		t.Fatalf("expected user message plus apology, got %d messages", len(sess.Messages))
	}

	apology := sess.Messages[1]
	if apology.Role != chat.RoleModel || apology.Content != DefaultStrings().Apology {
		t.Errorf("apology message mismatch: %+v", apology)
	}

	if len(apology.Attachments) != 0 {
		t.Error("apology message must carry no attachments")
	}

	want := []Status{StatusThinking, StatusError, StatusIdle}
	if len(*statuses) != 3 || (*statuses)[0] != want[0] || (*statuses)[1] != want[1] || (*statuses)[2] != want[2] {
		t.Errorf("status transitions = %v, want %v", *statuses, want)
	}
}

func TestSendDerivesTitleFromFirstMessage(t *testing.T) {
	model := &fakeLLM{responses: []*llm.ChatResponse{{Content: "ok"}, {Content: "ok"}}}
	c, store := newTestController(model, nil)

	long := strings.Repeat("a", 40)
	c.Send(context.Background(), long, nil)

	sess, _ := store.Current()
	if sess.Title != strings.Repeat("a", 30)+"…" {
		t.Errorf("unexpected title: %q", sess.Title)
	}

	// second message must not change the title
	c.Send(context.Background(), "something else entirely", nil)
	sess, _ = store.Current()
	if sess.Title != strings.Repeat("a", 30)+"…" {
		t.Errorf("title changed on second message: %q", sess.Title)
	}
}

func TestSendAttachmentOnlyTitleFallback(t *testing.T) {
	model := &fakeLLM{responses: []*llm.ChatResponse{{Content: "nice photo"}}}
	c, store := newTestController(model, nil)

	att := chat.NewImageAttachment("image/png", []byte("pixels"))
	if err := c.Send(context.Background(), "", []chat.Attachment{att}); err != nil {
		t.Fatalf("attachment-only send failed: %v", err)
	}

	sess, _ := store.Current()
	if sess.Title != "Image" {
		t.Errorf("expected media fallback title, got %q", sess.Title)
	}
}

func TestSendWritesToCapturedSession(t *testing.T) {
	model := &fakeLLM{responses: []*llm.ChatResponse{{Content: "reply"}}}
	c, store := newTestController(model, nil)

	first := store.Create("original")

	// switch sessions while the turn is in flight
	c.SetListener(func(s Status) {
		if s == StatusThinking {
			store.Create("distraction")
		}
	})

	c.Send(context.Background(), "hello", nil)

	got, _ := store.Get(first.ID)
	if len(got.Messages) != 2 || got.Messages[1].Content != "reply" {
		t.Errorf("reply should land in the captured session: %+v", got.Messages)
	}

	current, _ := store.Current()
	if len(current.Messages) != 0 {
		t.Error("newly-current session must not receive the reply")
	}
}

func TestSendToDeletedSessionDropsReply(t *testing.T) {
	model := &fakeLLM{responses: []*llm.ChatResponse{{Content: "reply"}}}
	c, store := newTestController(model, nil)

	sess := store.Create("doomed")
	c.SetListener(func(s Status) {
		if s == StatusThinking {
			store.Delete(sess.ID)
		}
	})

	if err := c.Send(context.Background(), "hello", nil); err != nil {
		t.Fatalf("send failed: %v", err)
	}

	if len(store.Sessions()) != 0 {
		t.Error("completion must not resurrect a deleted session")
	}

	if c.Status() != StatusIdle {
		t.Errorf("controller should end idle, got %s", c.Status())
	}
}

func TestImageToolSuccess(t *testing.T) {
	toolCall := llm.ToolCall{ID: "call_1", Name: tools.GenerateImageTool, Arguments: `{"prompt":"a red fox"}`}
	model := &fakeLLM{responses: []*llm.ChatResponse{
		{ToolCalls: []llm.ToolCall{toolCall}},
		{Content: "Here's your fox!"},
	}}
	gen := &fakeImageBackend{images: [][]byte{[]byte("jpeg bytes")}}
	c, store := newTestController(model, gen)

	if err := c.Send(context.Background(), "draw me a fox", nil); err != nil {
		t.Fatalf("send failed: %v", err)
	}

	sess, _ := store.Current()
	reply := sess.Messages[1]

	if len(reply.Attachments) != 1 || reply.Attachments[0].Kind != chat.KindImage {
		t.Fatalf("expected exactly one image attachment, got %+v", reply.Attachments)
	}

	if reply.Content != "Here's your fox!" {
		t.Errorf("unexpected reply text: %q", reply.Content)
	}

	// the follow-up request carries the tool result turn
	if len(model.calls) != 2 {
		t.Fatalf("expected 2 remote calls, got %d", len(model.calls))
	}
	followup := model.calls[1]
	last := followup[len(followup)-1]
	if last.Role != "tool" || last.ToolCallID != "call_1" {
		t.Errorf("follow-up should end with the tool result turn: %+v", last)
	}
}

func TestImageToolFollowupEmptyTextUsesConfirmation(t *testing.T) {
	toolCall := llm.ToolCall{ID: "call_1", Name: tools.GenerateImageTool, Arguments: `{"prompt":"a fox"}`}
	model := &fakeLLM{responses: []*llm.ChatResponse{
		{ToolCalls: []llm.ToolCall{toolCall}},
		{Content: ""},
	}}
	gen := &fakeImageBackend{images: [][]byte{[]byte("jpeg bytes")}}
	c, store := newTestController(model, gen)

	c.Send(context.Background(), "draw me a fox", nil)

	sess, _ := store.Current()
	reply := sess.Messages[1]
	if reply.Content != DefaultStrings().ImageConfirmation {
		t.Errorf("expected canned confirmation, got %q", reply.Content)
	}
	if len(reply.Attachments) != 1 {
		t.Error("image attachment should survive an empty follow-up")
	}
}

func TestImageToolFailureDegradesToApologyText(t *testing.T) {
	toolCall := llm.ToolCall{ID: "call_1", Name: tools.GenerateImageTool, Arguments: `{"prompt":"a fox"}`}
	model := &fakeLLM{responses: []*llm.ChatResponse{
		{ToolCalls: []llm.ToolCall{toolCall}},
	}}
	gen := &fakeImageBackend{} // returns zero images
	c, store := newTestController(model, gen)
	statuses := recordStatuses(c)

	if err := c.Send(context.Background(), "draw me a fox", nil); err != nil {
		t.Fatalf("tool failure must not fail the turn: %v", err)
	}

	sess, _ := store.Current()
	reply := sess.Messages[1]

	if reply.Content != DefaultStrings().ImageApology {
		t.Errorf("expected canned image apology, got %q", reply.Content)
	}

	if len(reply.Attachments) != 0 {
		t.Error("failed image generation must yield zero attachments")
	}

	// no follow-up call after a failed tool
	if len(model.calls) != 1 {
		t.Errorf("expected 1 remote call, got %d", len(model.calls))
	}

	// the turn itself succeeds: no error state
	for _, s := range *statuses {
		if s == StatusError {
			t.Error("tool failure must not enter the error state")
		}
	}
}

func TestEmptyOutcomeGetsPlaceholder(t *testing.T) {
	model := &fakeLLM{responses: []*llm.ChatResponse{{Content: ""}}}
	c, store := newTestController(model, nil)

	c.Send(context.Background(), "hello", nil)

	sess, _ := store.Current()
	if sess.Messages[1].Content != DefaultStrings().Placeholder {
		t.Errorf("expected placeholder text, got %q", sess.Messages[1].Content)
	}
}

func TestToolSchemaIsDeclared(t *testing.T) {
	model := &fakeLLM{responses: []*llm.ChatResponse{{Content: "ok"}}}
	gen := &fakeImageBackend{images: [][]byte{[]byte("x")}}
	c, _ := newTestController(model, gen)

	c.Send(context.Background(), "hello", nil)

	if len(model.toolDecls[0]) != 1 || model.toolDecls[0][0].Name != tools.GenerateImageTool {
		t.Errorf("image tool schema should be declared on the primary call: %+v", model.toolDecls[0])
	}
}

func TestEditTruncatesAndResends(t *testing.T) {
	model := &fakeLLM{responses: []*llm.ChatResponse{
		{Content: "first reply"},
		{Content: "second reply"},
		{Content: "edited reply"},
	}}
	c, store := newTestController(model, nil)

	att := chat.NewImageAttachment("image/png", []byte("pic"))
	c.Send(context.Background(), "one", []chat.Attachment{att})
	c.Send(context.Background(), "two", nil)

	sess, _ := store.Current()
	if len(sess.Messages) != 4 {
		t.Fatalf("expected 4 messages before edit, got %d", len(sess.Messages))
	}
	target := sess.Messages[0]

	if err := c.Edit(context.Background(), target.ID, "one, revised"); err != nil {
		t.Fatalf("edit failed: %v", err)
	}

	sess, _ = store.Current()
	if len(sess.Messages) != 2 {
		t.Fatalf("expected 2 messages after edit, got %d", len(sess.Messages))
	}

	edited := sess.Messages[0]
	if edited.ID != target.ID || edited.Content != "one, revised" {
		t.Errorf("edited message mismatch: %+v", edited)
	}

	if len(edited.Attachments) != 1 {
		t.Error("edit must preserve the original attachments")
	}

	if !edited.CreatedAt.After(target.CreatedAt) {
		t.Error("edit should refresh the message timestamp")
	}

	if sess.Messages[1].Content != "edited reply" {
		t.Errorf("expected fresh model reply, got %q", sess.Messages[1].Content)
	}

	// the edit turn was built from history strictly before the edited message
	editCall := model.calls[2]
	if len(editCall) != 1 || editCall[0].Content != "one, revised" {
		t.Errorf("edit request should carry only the edited turn: %+v", editCall)
	}
}

func TestEditModelMessageIsNoop(t *testing.T) {
	model := &fakeLLM{responses: []*llm.ChatResponse{{Content: "reply"}}}
	c, store := newTestController(model, nil)

	c.Send(context.Background(), "hello", nil)
	sess, _ := store.Current()
	reply := sess.Messages[1]

	if err := c.Edit(context.Background(), reply.ID, "rewritten"); err != nil {
		t.Fatalf("edit of model message should be a silent no-op, got %v", err)
	}

	sess, _ = store.Current()
	if len(sess.Messages) != 2 || sess.Messages[1].Content != "reply" {
		t.Error("model message must not be editable")
	}
}

func TestEditMissingMessageIsNoop(t *testing.T) {
	model := &fakeLLM{responses: []*llm.ChatResponse{{Content: "reply"}}}
	c, store := newTestController(model, nil)

	c.Send(context.Background(), "hello", nil)

	if err := c.Edit(context.Background(), "no-such-id", "text"); err != nil {
		t.Fatalf("edit of missing message should be a no-op, got %v", err)
	}

	sess, _ := store.Current()
	if len(sess.Messages) != 2 {
		t.Error("session must be untouched by a no-op edit")
	}
}

func TestEditWithNoCurrentSessionIsNoop(t *testing.T) {
	model := &fakeLLM{}
	c, _ := newTestController(model, nil)

	if err := c.Edit(context.Background(), "any", "text"); err != nil {
		t.Fatalf("edit with no session should be a no-op, got %v", err)
	}

	if len(model.calls) != 0 {
		t.Error("no remote call expected")
	}
}

func TestEditFailureApologyLandsInCapturedSession(t *testing.T) {
	model := &fakeLLM{
		responses: []*llm.ChatResponse{{Content: "reply"}},
		errs:      []error{nil, fmt.Errorf("network down")},
	}
	c, store := newTestController(model, nil)

	c.Send(context.Background(), "hello", nil)
	sess, _ := store.Current()
	target := sess.Messages[0]
	capturedID := sess.ID

	// make another session current mid-flight
	c.SetListener(func(s Status) {
		if s == StatusThinking {
			store.Create("other")
		}
	})

	if err := c.Edit(context.Background(), target.ID, "hello again"); err != nil {
		t.Fatalf("edit failed: %v", err)
	}

	got, _ := store.Get(capturedID)
	if len(got.Messages) != 2 || got.Messages[1].Content != DefaultStrings().Apology {
		t.Errorf("apology should land in the session captured at edit start: %+v", got.Messages)
	}

	current, _ := store.Current()
	if len(current.Messages) != 0 {
		t.Error("currently-selected session must not receive the apology")
	}
}
