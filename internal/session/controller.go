package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/RichardoC/chatdesk/internal/db"
	"github.com/RichardoC/chatdesk/internal/llm"
	"github.com/RichardoC/chatdesk/internal/models"
	"github.com/RichardoC/chatdesk/internal/title"
)

type UserStore interface {
	Register(ctx context.Context, username, password string) (*models.User, error)
	Authenticate(ctx context.Context, username, password string) (*models.User, error)
}

type ChatStore interface {
	SaveConversation(ctx context.Context, userID int64, chatTitle string, messages []models.Message) (int64, error)
	UpdateConversation(ctx context.Context, id int64, chatTitle string, messages []models.Message) error
	GetConversation(ctx context.Context, id int64) (*models.Conversation, error)
	ListConversations(ctx context.Context, userID int64) ([]models.ConversationSummary, error)
	DeleteConversation(ctx context.Context, id int64) error
	DeleteConversations(ctx context.Context, userID int64) (int64, error)
}

type Event string

const (
	EventRegistered    Event = "registered"
	EventLoggedIn      Event = "logged_in"
	EventLoggedOut     Event = "logged_out"
	EventNewChat       Event = "new_chat"
	EventLoaded        Event = "conversation_loaded"
	EventDeleted       Event = "conversation_deleted"
	EventCleared       Event = "history_cleared"
	EventMessageSent   Event = "message_sent"
	EventMessageFailed Event = "message_failed"
)

// Change describes what an action did to a session.
type Change struct {
	Event   Event    `json:"event"`
	Notice  string   `json:"notice,omitempty"`
	Session Snapshot `json:"session"`
}

// Controller applies user actions to sessions. It holds no session state
// itself.
type Controller struct {
	users     UserStore
	chats     ChatStore
	completer llm.Completer
	logger    *zap.Logger
}

func NewController(users UserStore, chats ChatStore, completer llm.Completer, logger *zap.Logger) *Controller {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Controller{
		users:     users,
		chats:     chats,
		completer: completer,
		logger:    logger,
	}
}

func (c *Controller) Register(ctx context.Context, username, password, confirm string) (Change, error) {
	switch {
	case username == "" || password == "":
		return Change{}, ErrEmptyFields
	case password != confirm:
		return Change{}, ErrPasswordMismatch
	case utf8.RuneCountInString(password) < MinPasswordLength:
		return Change{}, ErrPasswordTooShort
	}

	user, err := c.users.Register(ctx, username, password)
	if err != nil {
		return Change{}, err
	}

	c.logger.Info("User registered", zap.Int64("user_id", user.ID))
	return Change{
		Event:  EventRegistered,
		Notice: "Account created successfully! Please login with your credentials.",
	}, nil
}

func (c *Controller) Login(ctx context.Context, s *Session, username, password string) (Change, error) {
	if username == "" || password == "" {
		return Change{}, ErrEmptyFields
	}

	user, err := c.users.Authenticate(ctx, username, password)
	if err != nil {
		return Change{}, err
	}
	if user == nil {
		return Change{}, ErrInvalidCredentials
	}

	s.User = user
	s.reset()

	c.logger.Info("User logged in",
		zap.Int64("user_id", user.ID),
		zap.String("session_id", s.ID))
	return Change{
		Event:   EventLoggedIn,
		Notice:  fmt.Sprintf("Welcome back, %s!", user.Username),
		Session: s.Snapshot(),
	}, nil
}

// StartNew saves any unsaved transcript and clears the session for a new
// conversation.
func (c *Controller) StartNew(ctx context.Context, s *Session) (Change, error) {
	if s.User == nil {
		return Change{}, ErrNotLoggedIn
	}
	if err := c.persist(ctx, s); err != nil {
		return Change{}, err
	}
	s.reset()
	return Change{Event: EventNewChat, Session: s.Snapshot()}, nil
}

func (c *Controller) LoadConversation(ctx context.Context, s *Session, id int64) (Change, error) {
	if s.User == nil {
		return Change{}, ErrNotLoggedIn
	}

	conv, err := c.ownedConversation(ctx, s, id)
	if err != nil {
		return Change{}, err
	}
	if conv == nil {
		return Change{}, ErrConversationNotFound
	}

	s.Transcript = conv.Messages
	s.Title = conv.Title
	if s.Title == "" {
		s.Title = title.Placeholder
	}
	s.ActiveConversationID = conv.ID
	s.dirty = false

	return Change{Event: EventLoaded, Session: s.Snapshot()}, nil
}

// DeleteConversation removes one of the user's conversations. Deleting an
// id that no longer exists succeeds.
func (c *Controller) DeleteConversation(ctx context.Context, s *Session, id int64) (Change, error) {
	if s.User == nil {
		return Change{}, ErrNotLoggedIn
	}

	conv, err := c.ownedConversation(ctx, s, id)
	if err != nil {
		return Change{}, err
	}
	if conv != nil {
		if err := c.chats.DeleteConversation(ctx, id); err != nil {
			return Change{}, err
		}
	}

	if s.ActiveConversationID == id {
		s.reset()
	}
	return Change{Event: EventDeleted, Session: s.Snapshot()}, nil
}

func (c *Controller) ClearHistory(ctx context.Context, s *Session) (Change, error) {
	if s.User == nil {
		return Change{}, ErrNotLoggedIn
	}

	n, err := c.chats.DeleteConversations(ctx, s.User.ID)
	if err != nil {
		return Change{}, err
	}
	s.reset()

	c.logger.Info("History cleared",
		zap.Int64("user_id", s.User.ID),
		zap.Int64("deleted", n))
	return Change{
		Event:   EventCleared,
		Notice:  fmt.Sprintf("Deleted %d conversations", n),
		Session: s.Snapshot(),
	}, nil
}

// SendMessage appends the user's message, asks the completer for a reply
// and saves the conversation. When the completer fails the user message is
// kept, nothing is saved and a *CompletionError is returned with the
// change.
func (c *Controller) SendMessage(ctx context.Context, s *Session, text string) (Change, error) {
	if s.User == nil {
		return Change{}, ErrNotLoggedIn
	}
	if strings.TrimSpace(text) == "" {
		return Change{}, ErrEmptyMessage
	}

	s.Transcript = append(s.Transcript, models.UserMessage(text))
	s.dirty = true

	reply, err := c.completer.Complete(ctx, append([]models.Message{}, s.Transcript...))
	if err != nil {
		c.logger.Error("Failed to get completion",
			zap.Error(err),
			zap.Int64("user_id", s.User.ID),
			zap.Int("transcript_len", len(s.Transcript)))
		return Change{Event: EventMessageFailed, Session: s.Snapshot()}, &CompletionError{Err: err}
	}

	s.Transcript = append(s.Transcript, reply)
	if len(s.Transcript) == 2 {
		s.Title = title.DeriveTitle(text)
	}

	if err := c.persist(ctx, s); err != nil {
		return Change{Event: EventMessageSent, Session: s.Snapshot()}, err
	}
	return Change{Event: EventMessageSent, Session: s.Snapshot()}, nil
}

// Logout saves any unsaved transcript and forgets the user.
func (c *Controller) Logout(ctx context.Context, s *Session) (Change, error) {
	if s.User == nil {
		return Change{Event: EventLoggedOut, Session: s.Snapshot()}, nil
	}
	if err := c.persist(ctx, s); err != nil {
		return Change{}, err
	}

	c.logger.Info("User logged out",
		zap.Int64("user_id", s.User.ID),
		zap.String("session_id", s.ID))
	s.User = nil
	s.reset()
	return Change{Event: EventLoggedOut, Session: s.Snapshot()}, nil
}

// Conversations lists the user's history, marking the active entry.
func (c *Controller) Conversations(ctx context.Context, s *Session) ([]models.ConversationSummary, error) {
	if s.User == nil {
		return nil, ErrNotLoggedIn
	}
	list, err := c.chats.ListConversations(ctx, s.User.ID)
	if err != nil {
		return nil, err
	}
	for i := range list {
		list[i].Active = list[i].ID == s.ActiveConversationID
	}
	return list, nil
}

// persist writes unsaved transcript changes. The first write inserts a
// conversation; later writes update it in place.
func (c *Controller) persist(ctx context.Context, s *Session) error {
	if !s.dirty || len(s.Transcript) == 0 {
		return nil
	}

	chatTitle := s.Title
	if chatTitle == "" || chatTitle == title.Placeholder {
		chatTitle = title.DeriveTitle(title.FirstUserMessage(s.Transcript))
	}

	if s.ActiveConversationID != 0 {
		err := c.chats.UpdateConversation(ctx, s.ActiveConversationID, chatTitle, s.Transcript)
		switch {
		case err == nil:
			s.Title = chatTitle
			s.dirty = false
			return nil
		case !errors.Is(err, db.ErrNotFound):
			return err
		}
		// deleted elsewhere; save as a new conversation
	}

	id, err := c.chats.SaveConversation(ctx, s.User.ID, chatTitle, s.Transcript)
	if err != nil {
		return err
	}
	s.ActiveConversationID = id
	s.Title = chatTitle
	s.dirty = false
	return nil
}

// ownedConversation returns the conversation when it exists and belongs to
// the session's user, nil when it does not exist, and
// ErrConversationNotFound when it belongs to someone else.
func (c *Controller) ownedConversation(ctx context.Context, s *Session, id int64) (*models.Conversation, error) {
	conv, err := c.chats.GetConversation(ctx, id)
	if errors.Is(err, db.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if conv.UserID != s.User.ID {
		return nil, ErrConversationNotFound
	}
	return conv, nil
}
