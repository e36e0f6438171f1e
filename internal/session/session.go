// Package session holds per-user chat state and the controller that moves
// it between logged-out, idle and active.
package session

import (
	"sync"
	"time"

	"github.com/RichardoC/chatdesk/internal/models"
	"github.com/RichardoC/chatdesk/internal/title"
)

type State int

const (
	StateLoggedOut State = iota
	// StateIdle is logged in with an empty transcript.
	StateIdle
	// StateActive is logged in with a transcript or a loaded conversation.
	StateActive
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateActive:
		return "active"
	default:
		return "logged_out"
	}
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Session is the state of one browser session. Callers hold Lock for the
// whole of an action.
type Session struct {
	ID string

	User                 *models.User
	Transcript           []models.Message
	ActiveConversationID int64
	Title                string

	// dirty is set while the transcript holds messages not yet written to
	// the chat store.
	dirty bool

	mu       sync.Mutex
	lastSeen time.Time
}

func newSession(id string, now time.Time) *Session {
	return &Session{
		ID:         id,
		Transcript: []models.Message{},
		Title:      title.Placeholder,
		lastSeen:   now,
	}
}

func (s *Session) Lock()   { s.mu.Lock() }
func (s *Session) Unlock() { s.mu.Unlock() }

func (s *Session) State() State {
	switch {
	case s.User == nil:
		return StateLoggedOut
	case len(s.Transcript) == 0 && s.ActiveConversationID == 0:
		return StateIdle
	default:
		return StateActive
	}
}

// reset drops the current conversation but keeps the user.
func (s *Session) reset() {
	s.Transcript = []models.Message{}
	s.ActiveConversationID = 0
	s.Title = title.Placeholder
	s.dirty = false
}

// Snapshot is the externally visible copy of a session.
type Snapshot struct {
	Username             string           `json:"username,omitempty"`
	State                State            `json:"state"`
	Title                string           `json:"title"`
	Transcript           []models.Message `json:"transcript"`
	ActiveConversationID int64            `json:"active_conversation_id,omitempty"`
	MessageCount         int              `json:"message_count"`
}

func (s *Session) Snapshot() Snapshot {
	snap := Snapshot{
		State:                s.State(),
		Title:                s.Title,
		Transcript:           append([]models.Message{}, s.Transcript...),
		ActiveConversationID: s.ActiveConversationID,
		MessageCount:         len(s.Transcript),
	}
	if s.User != nil {
		snap.Username = s.User.Username
	}
	return snap
}
