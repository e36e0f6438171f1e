package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/RichardoC/chatdesk/internal/auth"
	"github.com/RichardoC/chatdesk/internal/db"
	"github.com/RichardoC/chatdesk/internal/models"
	"github.com/RichardoC/chatdesk/internal/session"
)

type stubCompleter struct {
	reply string
	err   error
}

func (s *stubCompleter) Complete(ctx context.Context, messages []models.Message) (models.Message, error) {
	if s.err != nil {
		return models.Message{}, s.err
	}
	return models.AssistantMessage(s.reply), nil
}

type testServer struct {
	srv       *httptest.Server
	db        *db.Database
	completer *stubCompleter
	sessions  *session.Registry
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	logger := zap.NewNop()
	database, err := db.New(filepath.Join(t.TempDir(), "api_test.db"), logger)
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })

	completer := &stubCompleter{reply: "Hi there"}
	sessions := session.NewRegistry(time.Hour)
	h := NewHandler(
		session.NewController(database, database, completer, logger),
		database,
		sessions,
		auth.NewTokens("test-secret", time.Hour),
		auth.NewLoginLimiter(time.Millisecond, 100),
		time.Hour,
		logger,
	)
	srv := httptest.NewServer(h.Routes(RouterOptions{AllowedOrigins: []string{"*"}}))
	t.Cleanup(srv.Close)

	return &testServer{srv: srv, db: database, completer: completer, sessions: sessions}
}

func (ts *testServer) do(t *testing.T, method, path, token string, body any) (*http.Response, map[string]any) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, ts.srv.URL+path, &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	out := map[string]any{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return resp, out
}

func (ts *testServer) login(t *testing.T, username string) string {
	t.Helper()
	resp, _ := ts.do(t, http.MethodPost, "/api/register", "", RegisterRequest{
		Username: username, Password: "secret123", ConfirmPassword: "secret123",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp, body := ts.do(t, http.MethodPost, "/api/login", "", LoginRequest{Username: username, Password: "secret123"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	token, _ := body["token"].(string)
	require.NotEmpty(t, token)
	return token
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t)
	resp, body := ts.do(t, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "OK", body["status"])

	require.NoError(t, ts.db.Close())
	resp, body = ts.do(t, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	assert.Equal(t, "unavailable", body["status"])
}

func TestRegisterErrors(t *testing.T) {
	ts := newTestServer(t)

	resp, body := ts.do(t, http.MethodPost, "/api/register", "", RegisterRequest{
		Username: "alice", Password: "secret123", ConfirmPassword: "different",
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "passwords do not match", body["error"])

	resp, _ = ts.do(t, http.MethodPost, "/api/register", "", RegisterRequest{
		Username: "alice", Password: "short", ConfirmPassword: "short",
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	ts.login(t, "alice")
	resp, _ = ts.do(t, http.MethodPost, "/api/register", "", RegisterRequest{
		Username: "alice", Password: "secret123", ConfirmPassword: "secret123",
	})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestLoginErrors(t *testing.T) {
	ts := newTestServer(t)
	ts.login(t, "alice")
	before := ts.sessions.Len()

	resp, body := ts.do(t, http.MethodPost, "/api/login", "", LoginRequest{Username: "alice", Password: "wrong-pass"})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "invalid username or password", body["error"])
	assert.Equal(t, before, ts.sessions.Len(), "failed logins leave no session behind")
}

func TestProtectedRoutesNeedToken(t *testing.T) {
	ts := newTestServer(t)

	resp, _ := ts.do(t, http.MethodGet, "/api/chats", "", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp, _ = ts.do(t, http.MethodGet, "/api/chats", "forged.token.value", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestSendMessageEndToEnd(t *testing.T) {
	ts := newTestServer(t)
	token := ts.login(t, "alice")

	resp, body := ts.do(t, http.MethodPost, "/api/messages", token, MessageRequest{Content: "Hello"})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	sess := body["session"].(map[string]any)
	assert.Equal(t, "Hello", sess["title"])
	assert.Equal(t, "active", sess["state"])
	assert.Equal(t, []any{
		map[string]any{"role": "user", "content": "Hello"},
		map[string]any{"role": "assistant", "content": "Hi there"},
	}, sess["transcript"])

	resp, body = ts.do(t, http.MethodGet, "/api/chats", token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.EqualValues(t, 1, body["total"])
	conv := body["conversations"].([]any)[0].(map[string]any)
	assert.Equal(t, "Hello", conv["title"])
	assert.Equal(t, true, conv["active"])
}

func TestSendMessageCompletionFailure(t *testing.T) {
	ts := newTestServer(t)
	token := ts.login(t, "alice")
	ts.completer.err = errors.New("upstream 500")

	resp, body := ts.do(t, http.MethodPost, "/api/messages", token, MessageRequest{Content: "Hello"})
	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)
	assert.Contains(t, body["error"], "upstream 500")

	change := body["change"].(map[string]any)
	sess := change["session"].(map[string]any)
	assert.Equal(t, []any{map[string]any{"role": "user", "content": "Hello"}}, sess["transcript"])

	_, body = ts.do(t, http.MethodGet, "/api/chats", token, nil)
	assert.EqualValues(t, 0, body["total"])
}

func TestSendMessageCompletionTimeout(t *testing.T) {
	ts := newTestServer(t)
	token := ts.login(t, "alice")
	ts.completer.err = fmt.Errorf("failed to generate completion: %w", context.DeadlineExceeded)

	resp, body := ts.do(t, http.MethodPost, "/api/messages", token, MessageRequest{Content: "Hello"})
	assert.Equal(t, http.StatusGatewayTimeout, resp.StatusCode)
	assert.Contains(t, body["error"], "deadline exceeded")
	assert.NotNil(t, body["change"])
}

func TestConversationLifecycle(t *testing.T) {
	ts := newTestServer(t)
	token := ts.login(t, "alice")

	_, body := ts.do(t, http.MethodPost, "/api/messages", token, MessageRequest{Content: "Hello"})
	id := int64(body["session"].(map[string]any)["active_conversation_id"].(float64))

	resp, body := ts.do(t, http.MethodPost, "/api/chats/new", token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "idle", body["session"].(map[string]any)["state"])

	resp, body = ts.do(t, http.MethodGet, fmt.Sprintf("/api/chats/%d", id), token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "conversation_loaded", body["event"])
	assert.Len(t, body["session"].(map[string]any)["transcript"], 2)

	resp, _ = ts.do(t, http.MethodGet, "/api/chats/abc", token, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = ts.do(t, http.MethodGet, fmt.Sprintf("/api/chats/%d", id+50), token, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	other := ts.login(t, "bob")
	resp, _ = ts.do(t, http.MethodDelete, fmt.Sprintf("/api/chats/%d", id), other, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	for i := 0; i < 2; i++ {
		resp, body = ts.do(t, http.MethodDelete, fmt.Sprintf("/api/chats/%d", id), token, nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, "idle", body["session"].(map[string]any)["state"])
	}

	_, _ = ts.do(t, http.MethodPost, "/api/messages", token, MessageRequest{Content: "again"})
	resp, body = ts.do(t, http.MethodDelete, "/api/chats", token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "Deleted 1 conversations", body["notice"])
}

func TestLogout(t *testing.T) {
	ts := newTestServer(t)
	token := ts.login(t, "alice")

	resp, body := ts.do(t, http.MethodGet, "/api/session", token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "alice", body["username"])

	resp, body = ts.do(t, http.MethodPost, "/api/logout", token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "logged_out", body["event"])

	resp, _ = ts.do(t, http.MethodGet, "/api/session", token, nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestLoginRateLimit(t *testing.T) {
	ts := newTestServer(t)
	logger := zap.NewNop()
	h := NewHandler(
		session.NewController(ts.db, ts.db, ts.completer, logger),
		ts.db,
		ts.sessions,
		auth.NewTokens("test-secret", time.Hour),
		auth.NewLoginLimiter(time.Hour, 1),
		time.Hour,
		logger,
	)
	limited := httptest.NewServer(h.Routes(RouterOptions{}))
	t.Cleanup(limited.Close)
	ts.srv = limited

	resp, _ := ts.do(t, http.MethodPost, "/api/login", "", LoginRequest{Username: "alice", Password: "wrong-pass"})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp, _ = ts.do(t, http.MethodPost, "/api/login", "", LoginRequest{Username: "alice", Password: "wrong-pass"})
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
}
