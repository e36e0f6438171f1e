package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/RichardoC/chatdesk/internal/auth"
	"github.com/RichardoC/chatdesk/internal/db"
	"github.com/RichardoC/chatdesk/internal/models"
	"github.com/RichardoC/chatdesk/internal/session"
)

// Pinger reports whether the backing store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

type Handler struct {
	controller *session.Controller
	store      Pinger
	sessions   *session.Registry
	tokens     *auth.Tokens
	limiter    *auth.LoginLimiter
	logger     *zap.Logger
	tokenTTL   time.Duration
}

func NewHandler(controller *session.Controller, store Pinger, sessions *session.Registry, tokens *auth.Tokens, limiter *auth.LoginLimiter, tokenTTL time.Duration, logger *zap.Logger) *Handler {
	return &Handler{
		controller: controller,
		store:      store,
		sessions:   sessions,
		tokens:     tokens,
		limiter:    limiter,
		logger:     logger,
		tokenTTL:   tokenTTL,
	}
}

type RegisterRequest struct {
	Username        string `json:"username"`
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirm_password"`
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginResponse struct {
	Token string `json:"token"`
	session.Change
}

type MessageRequest struct {
	Content string `json:"content"`
}

type ConversationsResponse struct {
	Conversations []models.ConversationSummary `json:"conversations"`
	Total         int                          `json:"total"`
}

type errorResponse struct {
	Error  string          `json:"error"`
	Change *session.Change `json:"change,omitempty"`
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	if err := h.store.Ping(r.Context()); err != nil {
		h.logger.Error("Health check failed", zap.Error(err))
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "OK"})
}

func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	change, err := h.controller.Register(r.Context(), req.Username, req.Password, req.ConfirmPassword)
	if err != nil {
		h.fail(w, err, nil)
		return
	}
	writeJSON(w, http.StatusCreated, change)
}

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if h.limiter != nil && !h.limiter.Allow(req.Username) {
		writeError(w, http.StatusTooManyRequests, "too many login attempts, try again later")
		return
	}

	s := h.sessions.Create()
	s.Lock()
	defer s.Unlock()

	change, err := h.controller.Login(r.Context(), s, req.Username, req.Password)
	if err != nil {
		h.sessions.Remove(s.ID)
		h.fail(w, err, nil)
		return
	}

	token, err := h.tokens.Issue(s.ID, s.User.ID)
	if err != nil {
		h.sessions.Remove(s.ID)
		h.fail(w, err, nil)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Expires:  time.Now().Add(h.tokenTTL),
	})
	writeJSON(w, http.StatusOK, LoginResponse{Token: token, Change: change})
}

func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	s := sessionFrom(r.Context())
	s.Lock()
	defer s.Unlock()

	change, err := h.controller.Logout(r.Context(), s)
	if err != nil {
		h.fail(w, err, nil)
		return
	}
	h.sessions.Remove(s.ID)

	http.SetCookie(w, &http.Cookie{
		Name:   sessionCookie,
		Value:  "",
		Path:   "/",
		MaxAge: -1,
	})
	writeJSON(w, http.StatusOK, change)
}

func (h *Handler) GetSession(w http.ResponseWriter, r *http.Request) {
	s := sessionFrom(r.Context())
	s.Lock()
	defer s.Unlock()

	writeJSON(w, http.StatusOK, s.Snapshot())
}

func (h *Handler) NewChat(w http.ResponseWriter, r *http.Request) {
	s := sessionFrom(r.Context())
	s.Lock()
	defer s.Unlock()

	change, err := h.controller.StartNew(r.Context(), s)
	if err != nil {
		h.fail(w, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, change)
}

func (h *Handler) GetConversations(w http.ResponseWriter, r *http.Request) {
	s := sessionFrom(r.Context())
	s.Lock()
	defer s.Unlock()

	conversations, err := h.controller.Conversations(r.Context(), s)
	if err != nil {
		h.fail(w, err, nil)
		return
	}

	h.logger.Debug("Retrieved conversations",
		zap.Int("count", len(conversations)),
		zap.String("path", r.URL.Path))
	writeJSON(w, http.StatusOK, ConversationsResponse{
		Conversations: conversations,
		Total:         len(conversations),
	})
}

func (h *Handler) LoadConversation(w http.ResponseWriter, r *http.Request) {
	id, ok := conversationID(w, r)
	if !ok {
		return
	}
	s := sessionFrom(r.Context())
	s.Lock()
	defer s.Unlock()

	change, err := h.controller.LoadConversation(r.Context(), s, id)
	if err != nil {
		h.fail(w, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, change)
}

func (h *Handler) DeleteConversation(w http.ResponseWriter, r *http.Request) {
	id, ok := conversationID(w, r)
	if !ok {
		return
	}
	s := sessionFrom(r.Context())
	s.Lock()
	defer s.Unlock()

	change, err := h.controller.DeleteConversation(r.Context(), s, id)
	if err != nil {
		h.fail(w, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, change)
}

func (h *Handler) ClearConversations(w http.ResponseWriter, r *http.Request) {
	s := sessionFrom(r.Context())
	s.Lock()
	defer s.Unlock()

	change, err := h.controller.ClearHistory(r.Context(), s)
	if err != nil {
		h.fail(w, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, change)
}

func (h *Handler) HandleMessage(w http.ResponseWriter, r *http.Request) {
	var req MessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	s := sessionFrom(r.Context())
	s.Lock()
	defer s.Unlock()

	change, err := h.controller.SendMessage(r.Context(), s, req.Content)
	if err != nil {
		if change.Event == "" {
			h.fail(w, err, nil)
		} else {
			h.fail(w, err, &change)
		}
		return
	}
	writeJSON(w, http.StatusOK, change)
}

// fail maps controller errors onto HTTP statuses. change, when set, is
// returned alongside the error so the client can still render the session.
func (h *Handler) fail(w http.ResponseWriter, err error, change *session.Change) {
	var completionErr *session.CompletionError
	status := http.StatusInternalServerError
	msg := "internal server error"

	switch {
	case errors.Is(err, session.ErrEmptyFields),
		errors.Is(err, session.ErrPasswordMismatch),
		errors.Is(err, session.ErrPasswordTooShort),
		errors.Is(err, session.ErrEmptyMessage):
		status, msg = http.StatusBadRequest, err.Error()
	case errors.Is(err, db.ErrAlreadyExists):
		status, msg = http.StatusConflict, "username already exists, please choose a different username"
	case errors.Is(err, session.ErrInvalidCredentials),
		errors.Is(err, session.ErrNotLoggedIn):
		status, msg = http.StatusUnauthorized, err.Error()
	case errors.Is(err, session.ErrConversationNotFound):
		status, msg = http.StatusNotFound, err.Error()
	case errors.As(err, &completionErr) && errors.Is(err, context.DeadlineExceeded):
		status, msg = http.StatusGatewayTimeout, err.Error()
	case errors.As(err, &completionErr):
		status, msg = http.StatusBadGateway, err.Error()
	default:
		h.logger.Error("Request failed", zap.Error(err))
	}

	writeJSON(w, status, errorResponse{Error: msg, Change: change})
}

func conversationID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid conversation id")
		return 0, false
	}
	return id, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}
