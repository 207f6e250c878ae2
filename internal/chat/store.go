package chat

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Store holds the ordered session list and the current-session selection.
// It is the single source of truth for what a UI renders. Every operation
// replaces session values wholesale rather than mutating them in place, so
// snapshots handed out by the read methods stay consistent.
type Store struct {
	mu        sync.Mutex
	sessions  []Session
	currentID string
}

func NewStore() *Store {
	return &Store{}
}

// Create prepends a new empty session and makes it current.
func (s *Store) Create(title string) Session {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess := Session{
		ID:        uuid.NewString(),
		Title:     title,
		CreatedAt: time.Now(),
	}

	s.sessions = append([]Session{sess}, s.sessions...)
	s.currentID = sess.ID

	return cloneSession(sess)
}

// Rename replaces a session's title. Returns false if the session is gone.
func (s *Store) Rename(id, title string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.index(id)
	if i < 0 {
		return false
	}

	s.sessions[i].Title = title
	return true
}

// Delete removes a session. If it was current, the next remaining session
// in list order becomes current, or none if the list is empty.
func (s *Store) Delete(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.index(id)
	if i < 0 {
		return false
	}

	s.sessions = append(s.sessions[:i:i], s.sessions[i+1:]...)

	if s.currentID == id {
		s.currentID = ""
		if i < len(s.sessions) {
			s.currentID = s.sessions[i].ID
		} else if len(s.sessions) > 0 {
			s.currentID = s.sessions[len(s.sessions)-1].ID
		}
	}

	return true
}

// Select makes the given session current. Returns false if it does not exist.
func (s *Store) Select(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.index(id) < 0 {
		return false
	}

	s.currentID = id
	return true
}

// Current returns a snapshot of the current session, if any.
func (s *Store) Current() (Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.index(s.currentID)
	if i < 0 {
		return Session{}, false
	}

	return cloneSession(s.sessions[i]), true
}

// Get returns a snapshot of the session with the given id.
func (s *Store) Get(id string) (Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.index(id)
	if i < 0 {
		return Session{}, false
	}

	return cloneSession(s.sessions[i]), true
}

// Sessions returns a snapshot of the full session list in order.
func (s *Store) Sessions() []Session {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Session, len(s.sessions))
	for i, sess := range s.sessions {
		out[i] = cloneSession(sess)
	}

	return out
}

// Append adds a message to the end of a session's history. Returns false
// if the session no longer exists, which callers treat as a silent drop --
// a turn completing against a deleted session must not resurrect it.
func (s *Store) Append(id string, msg Message) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.index(id)
	if i < 0 {
		return false
	}

	msgs := s.sessions[i].Messages
	s.sessions[i].Messages = append(msgs[:len(msgs):len(msgs)], msg)
	return true
}

// Replace swaps a session's entire message list. Used by the edit flow,
// which truncates everything after the edited message.
func (s *Store) Replace(id string, msgs []Message) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.index(id)
	if i < 0 {
		return false
	}

	s.sessions[i].Messages = cloneMessages(msgs)
	return true
}

func (s *Store) index(id string) int {
	if id == "" {
		return -1
	}
	for i, sess := range s.sessions {
		if sess.ID == id {
			return i
		}
	}
	return -1
}

func cloneSession(sess Session) Session {
	sess.Messages = cloneMessages(sess.Messages)
	return sess
}

func cloneMessages(msgs []Message) []Message {
	if msgs == nil {
		return nil
	}
	out := make([]Message, len(msgs))
	copy(out, msgs)
	for i := range out {
		if out[i].Attachments != nil {
			atts := make([]Attachment, len(out[i].Attachments))
			copy(atts, out[i].Attachments)
			out[i].Attachments = atts
		}
	}
	return out
}
