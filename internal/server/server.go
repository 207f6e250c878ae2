package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/bowerhall/lumen/internal/chat"
	"github.com/bowerhall/lumen/internal/llm"
	"github.com/bowerhall/lumen/internal/logger"
	"github.com/bowerhall/lumen/internal/turn"
)

// Server exposes the chat core over a small JSON API for a UI to consume.
type Server struct {
	store      *chat.Store
	controller *turn.Controller
	speech     llm.SpeechSynthesizer
}

// New builds the handler. speech may be nil when the configured provider
// cannot synthesize audio.
func New(store *chat.Store, controller *turn.Controller, speech llm.SpeechSynthesizer) http.Handler {
	s := &Server{store: store, controller: controller, speech: speech}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.handleHealthz)
	mux.HandleFunc("/status", s.handleStatus)
	mux.HandleFunc("/sessions", s.handleSessions)
	mux.HandleFunc("/sessions/", s.handleSessionWithID)
	mux.HandleFunc("/messages", s.handleMessages)
	mux.HandleFunc("/messages/", s.handleMessageWithID)
	mux.HandleFunc("/speech", s.handleSpeech)

	return mux
}

type attachmentPayload struct {
	Kind     string `json:"kind,omitempty"`
	MimeType string `json:"mime_type"`
	Name     string `json:"name,omitempty"`
	DataURI  string `json:"data_uri"`
}

type messagePayload struct {
	ID          string              `json:"id"`
	Role        string              `json:"role"`
	Content     string              `json:"content"`
	Attachments []attachmentPayload `json:"attachments,omitempty"`
	CreatedAt   time.Time           `json:"created_at"`
}

type sessionSummary struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Messages  int       `json:"message_count"`
	Current   bool      `json:"current"`
	CreatedAt time.Time `json:"created_at"`
}

type sessionDetail struct {
	ID        string           `json:"id"`
	Title     string           `json:"title"`
	Messages  []messagePayload `json:"messages"`
	CreatedAt time.Time        `json:"created_at"`
}

type sendRequest struct {
	Text        string              `json:"text"`
	Attachments []attachmentPayload `json:"attachments,omitempty"`
}

type editRequest struct {
	Text string `json:"text"`
}

type renameRequest struct {
	Title string `json:"title"`
}

type speechRequest struct {
	Text string `json:"text"`
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": string(s.controller.Status())})
}

func (s *Server) handleSessions(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		current, _ := s.store.Current()
		sessions := s.store.Sessions()
		out := make([]sessionSummary, len(sessions))
		for i, sess := range sessions {
			out[i] = sessionSummary{
				ID:        sess.ID,
				Title:     sess.Title,
				Messages:  len(sess.Messages),
				Current:   sess.ID == current.ID,
				CreatedAt: sess.CreatedAt,
			}
		}
		writeJSON(w, http.StatusOK, out)

	case http.MethodPost:
		var req renameRequest
		if r.Body != nil {
			json.NewDecoder(r.Body).Decode(&req)
		}
		title := req.Title
		if title == "" {
			title = "New chat"
		}
		sess := s.store.Create(title)
		writeJSON(w, http.StatusCreated, toDetail(sess))

	default:
		methodNotAllowed(w)
	}
}

func (s *Server) handleSessionWithID(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/sessions/")
	parts := strings.Split(path, "/")
	id := parts[0]
	if id == "" {
		http.NotFound(w, r)
		return
	}

	if len(parts) == 2 && parts[1] == "select" {
		if r.Method != http.MethodPost {
			methodNotAllowed(w)
			return
		}
		if !s.store.Select(id) {
			writeError(w, http.StatusNotFound, "session not found")
			return
		}
		w.WriteHeader(http.StatusNoContent)
		return
	}

	if len(parts) != 1 {
		http.NotFound(w, r)
		return
	}

	switch r.Method {
	case http.MethodGet:
		sess, ok := s.store.Get(id)
		if !ok {
			writeError(w, http.StatusNotFound, "session not found")
			return
		}
		writeJSON(w, http.StatusOK, toDetail(sess))

	case http.MethodPatch:
		var req renameRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Title == "" {
			writeError(w, http.StatusBadRequest, "title is required")
			return
		}
		if !s.store.Rename(id, req.Title) {
			writeError(w, http.StatusNotFound, "session not found")
			return
		}
		w.WriteHeader(http.StatusNoContent)

	case http.MethodDelete:
		if !s.store.Delete(id) {
			writeError(w, http.StatusNotFound, "session not found")
			return
		}
		w.WriteHeader(http.StatusNoContent)

	default:
		methodNotAllowed(w)
	}
}

func (s *Server) handleMessages(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}

	var req sendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	atts, err := toAttachments(req.Attachments)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	s.runTurn(w, s.controller.Send(r.Context(), req.Text, atts))
}

func (s *Server) handleMessageWithID(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/messages/")
	parts := strings.Split(path, "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] != "edit" {
		http.NotFound(w, r)
		return
	}
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}

	var req editRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	s.runTurn(w, s.controller.Edit(r.Context(), parts[0], req.Text))
}

// runTurn maps a controller result onto the wire. Turn failures are not
// errors here: they arrive as a visible apology message in the session.
func (s *Server) runTurn(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, turn.ErrEmptyMessage):
		writeError(w, http.StatusBadRequest, "message has no content")
	case errors.Is(err, turn.ErrBusy):
		writeError(w, http.StatusConflict, "a turn is already in flight")
	case err != nil:
		writeError(w, http.StatusInternalServerError, err.Error())
	default:
		sess, ok := s.store.Current()
		if !ok {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		writeJSON(w, http.StatusOK, toDetail(sess))
	}
}

func (s *Server) handleSpeech(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}

	if s.speech == nil {
		writeError(w, http.StatusNotImplemented, "speech synthesis not supported by the configured provider")
		return
	}

	var req speechRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || strings.TrimSpace(req.Text) == "" {
		writeError(w, http.StatusBadRequest, "text is required")
		return
	}

	audio, mimeType, err := s.speech.SynthesizeSpeech(r.Context(), req.Text)
	if err != nil {
		logger.Error("speech synthesis failed", "error", err)
		writeError(w, http.StatusBadGateway, "speech synthesis failed")
		return
	}

	w.Header().Set("Content-Type", mimeType)
	w.WriteHeader(http.StatusOK)
	w.Write(audio)
}

func toAttachments(payloads []attachmentPayload) ([]chat.Attachment, error) {
	var atts []chat.Attachment
	for _, p := range payloads {
		mime, _, err := chat.ParseDataURI(p.DataURI)
		if err != nil {
			return nil, errors.New("attachment data_uri is not a valid data URI")
		}
		if p.MimeType != "" {
			mime = p.MimeType
		}
		kind := chat.AttachmentKind(p.Kind)
		if kind == "" {
			kind = chat.KindForMime(mime)
		}
		atts = append(atts, chat.Attachment{
			Kind:     kind,
			MimeType: mime,
			Name:     p.Name,
			DataURI:  p.DataURI,
		})
	}
	return atts, nil
}

func toDetail(sess chat.Session) sessionDetail {
	out := sessionDetail{
		ID:        sess.ID,
		Title:     sess.Title,
		Messages:  make([]messagePayload, len(sess.Messages)),
		CreatedAt: sess.CreatedAt,
	}
	for i, msg := range sess.Messages {
		m := messagePayload{
			ID:        msg.ID,
			Role:      string(msg.Role),
			Content:   msg.Content,
			CreatedAt: msg.CreatedAt,
		}
		for _, att := range msg.Attachments {
			m.Attachments = append(m.Attachments, attachmentPayload{
				Kind:     string(att.Kind),
				MimeType: att.MimeType,
				Name:     att.Name,
				DataURI:  att.DataURI,
			})
		}
		out.Messages[i] = m
	}
	return out
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func methodNotAllowed(w http.ResponseWriter) {
	writeError(w, http.StatusMethodNotAllowed, "method not allowed")
}
