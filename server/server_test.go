package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xhad/koa/internal/models"
	"github.com/xhad/koa/pkg/chat"
	"go.uber.org/zap/zaptest"
)

type fixedBuilder struct{}

func (fixedBuilder) Build(ctx context.Context, query string) string {
	return "From foo.txt (https://a.gov):\nHello world\n\n"
}

type echoCompleter struct {
	err   error
	panic bool
}

func (c echoCompleter) Complete(ctx context.Context, turns []models.Turn) (string, error) {
	if c.panic {
		panic("boom")
	}
	if c.err != nil {
		return "", c.err
	}
	return "**You said:** " + turns[len(turns)-1].Content, nil
}

type fixedCounter int

func (c fixedCounter) Len() int { return int(c) }

func newTestRegistry(t *testing.T, completer echoCompleter) *chat.Registry {
	t.Helper()
	return chat.NewRegistry(chat.SessionConfig{Persona: "You are Koa.", MaxHistory: 10}, fixedBuilder{}, completer, zaptest.NewLogger(t))
}

func newTestServer(t *testing.T, completer echoCompleter) (*httptest.Server, *chat.Registry) {
	t.Helper()
	registry := newTestRegistry(t, completer)
	s := NewServer(Config{}, registry, fixedCounter(42), zaptest.NewLogger(t))

	ts := httptest.NewServer(s.Router())
	t.Cleanup(ts.Close)
	return ts, registry
}

func postChat(t *testing.T, ts *httptest.Server, body string) (*http.Response, map[string]string) {
	t.Helper()
	resp, err := http.Post(ts.URL+"/chat", "application/json", strings.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()

	var decoded map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&decoded))
	return resp, decoded
}

// chatFrom sends a chat message as if it arrived from remoteAddr with the given headers.
func chatFrom(t *testing.T, handler http.Handler, remoteAddr string, header http.Header, message string) int {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/chat", strings.NewReader(`{"message":"`+message+`"}`))
	req.RemoteAddr = remoteAddr
	for key, values := range header {
		req.Header[key] = values
	}

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec.Code
}

func TestHandleChat(t *testing.T) {
	ts, registry := newTestServer(t, echoCompleter{})

	tests := []struct {
		name       string
		body       string
		wantStatus int
		wantKey    string
		wantValue  string
	}{
		{"reply", `{"message":"hello"}`, http.StatusOK, "reply", "You said: hello"},
		{"malformed body", `{"message":`, http.StatusBadRequest, "error", "invalid request body"},
		{"wrong type", `{"message":5}`, http.StatusBadRequest, "error", "invalid request body"},
		{"empty message", `{"message":"   "}`, http.StatusBadRequest, "error", chat.ErrEmptyMessage.Error()},
		{"missing message", `{}`, http.StatusBadRequest, "error", chat.ErrEmptyMessage.Error()},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, body := postChat(t, ts, tt.body)
			assert.Equal(t, tt.wantStatus, resp.StatusCode)
			assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))
			assert.Equal(t, tt.wantValue, body[tt.wantKey])
		})
	}

	assert.Equal(t, 1, registry.Len())
	history := registry.Get("127.0.0.1").History()
	assert.Len(t, history, 4)
	assert.Equal(t, models.RoleAssistant, history[3].Role)
}

func TestHandleChatRejectsOversizedBody(t *testing.T) {
	registry := newTestRegistry(t, echoCompleter{})
	handler := NewServer(Config{}, registry, fixedCounter(0), zaptest.NewLogger(t)).Router()

	body := `{"message":"` + strings.Repeat("a", maxRequestBytes) + `"}`
	req := httptest.NewRequest(http.MethodPost, "/chat", strings.NewReader(body))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	var decoded map[string]string
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&decoded))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "request body too large", decoded["error"])
	assert.Equal(t, 0, registry.Len())
}

func TestHandleChatSessionsPerClientHost(t *testing.T) {
	registry := newTestRegistry(t, echoCompleter{})
	handler := NewServer(Config{}, registry, fixedCounter(0), zaptest.NewLogger(t)).Router()

	require.Equal(t, http.StatusOK, chatFrom(t, handler, "198.51.100.1:40001", nil, "one"))
	require.Equal(t, http.StatusOK, chatFrom(t, handler, "198.51.100.1:40002", nil, "two"))
	require.Equal(t, http.StatusOK, chatFrom(t, handler, "198.51.100.2:40003", nil, "three"))

	assert.Equal(t, 2, registry.Len())
	assert.Len(t, registry.Get("198.51.100.1").History(), 7)
	assert.Len(t, registry.Get("198.51.100.2").History(), 4)
}

func TestForwardedHeadersCannotJoinAnotherSession(t *testing.T) {
	registry := newTestRegistry(t, echoCompleter{})
	handler := NewServer(Config{}, registry, fixedCounter(0), zaptest.NewLogger(t)).Router()

	require.Equal(t, http.StatusOK, chatFrom(t, handler, "198.51.100.1:40001", nil, "my secret question"))

	forged := []http.Header{
		{"X-Real-Ip": {"198.51.100.1"}},
		{"X-Forwarded-For": {"198.51.100.1"}},
		{"X-Real-Ip": {"10.0.0.1"}},
	}
	for _, header := range forged {
		require.Equal(t, http.StatusOK, chatFrom(t, handler, "203.0.113.9:50000", header, "hi"))
	}

	assert.Equal(t, 2, registry.Len())
	victim := registry.Get("198.51.100.1").History()
	assert.Len(t, victim, 4)
	assert.Equal(t, "my secret question", victim[2].Content)

	for _, turn := range registry.Get("203.0.113.9").History() {
		assert.NotEqual(t, "my secret question", turn.Content)
	}
}

func TestForwardedHeadersTrustedBehindProxy(t *testing.T) {
	registry := newTestRegistry(t, echoCompleter{})
	handler := NewServer(Config{TrustProxyHeaders: true}, registry, fixedCounter(0), zaptest.NewLogger(t)).Router()

	require.Equal(t, http.StatusOK, chatFrom(t, handler, "10.0.0.1:40001", http.Header{"X-Real-Ip": {"198.51.100.7"}}, "hi"))
	require.Equal(t, http.StatusOK, chatFrom(t, handler, "10.0.0.1:40002", http.Header{"X-Real-Ip": {"198.51.100.8"}}, "hi"))

	assert.Equal(t, 2, registry.Len())
	assert.Len(t, registry.Get("198.51.100.7").History(), 4)
}

func TestHandleChatCompletionFailure(t *testing.T) {
	ts, _ := newTestServer(t, echoCompleter{err: errors.New("upstream down")})

	resp, body := postChat(t, ts, `{"message":"hello"}`)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, chat.ErrorReply, body["reply"])
}

func TestHandleChatPanicIsHidden(t *testing.T) {
	ts, _ := newTestServer(t, echoCompleter{panic: true})

	resp, body := postChat(t, ts, `{"message":"hello"}`)
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	assert.Equal(t, "internal server error", body["error"])
	assert.NotContains(t, body["error"], "boom")
}

func TestHandleHealth(t *testing.T) {
	ts, _ := newTestServer(t, echoCompleter{})

	resp, err := http.Get(ts.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()

	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, float64(42), body["chunks"])
}

func TestWebSocketChat(t *testing.T) {
	ts, registry := newTestServer(t, echoCompleter{})

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	exchange := func(out Message) Message {
		require.NoError(t, conn.WriteJSON(out))
		var in Message
		require.NoError(t, conn.ReadJSON(&in))
		return in
	}

	assert.Equal(t, Message{Type: MessageTypeReply, Content: "You said: aloha"},
		exchange(Message{Type: MessageTypeMessage, Content: "aloha"}))
	assert.Equal(t, Message{Type: MessageTypeError, Content: chat.ErrEmptyMessage.Error()},
		exchange(Message{Type: MessageTypeMessage, Content: ""}))
	assert.Equal(t, Message{Type: MessageTypeError, Content: "invalid message"},
		exchange(Message{Type: "ping"}))
	assert.Equal(t, 1, registry.Len())

	require.NoError(t, conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")))
	conn.Close()

	assert.Eventually(t, func() bool { return registry.Len() == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestClientHost(t *testing.T) {
	r := httptest.NewRequest(http.MethodPost, "/chat", nil)
	r.RemoteAddr = "192.0.2.1:54321"
	assert.Equal(t, "192.0.2.1", clientHost(r))

	r.RemoteAddr = "192.0.2.9"
	assert.Equal(t, "192.0.2.9", clientHost(r))
}

func TestWebSocketRejectsOversizedMessage(t *testing.T) {
	ts, registry := newTestServer(t, echoCompleter{})

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	require.NoError(t, conn.WriteJSON(Message{Type: MessageTypeMessage, Content: strings.Repeat("a", maxRequestBytes)}))

	var in Message
	assert.Error(t, conn.ReadJSON(&in))
	assert.Eventually(t, func() bool { return registry.Len() == 0 }, 2*time.Second, 10*time.Millisecond)
}
