package chat

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ashureev/portfolio/internal/identity"
)

func startChatServer(t *testing.T, gw *fakeGateway, opts WebSocketOptions) (*testEnv, string) {
	t.Helper()
	env := newTestEnv(t, gw, fastConfig())
	handler := NewWebSocketHandler(env.svc, env.registry, opts)
	srv := httptest.NewServer(identity.Middleware(true)(handler))
	t.Cleanup(srv.Close)
	return env, "ws" + strings.TrimPrefix(srv.URL, "http")
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	conn, _, err := websocket.Dial(ctx, url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close(websocket.StatusNormalClosure, "") })
	return conn
}

func readMessage(t *testing.T, conn *websocket.Conn) string {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, data, err := conn.Read(ctx)
	require.NoError(t, err)
	return string(data)
}

func writeMessage(t *testing.T, conn *websocket.Conn, raw string) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, conn.Write(ctx, websocket.MessageText, []byte(raw)))
}

func TestWebSocketChatRoundTrip(t *testing.T) {
	_, url := startChatServer(t, &fakeGateway{reply: "Meow"}, WebSocketOptions{})
	conn := dial(t, url)

	writeMessage(t, conn, `{"type":"chatMessage","payload":{"message":"hi"}}`)

	assert.JSONEq(t, `{"type":"typing","payload":{"isTyping":true}}`, readMessage(t, conn))
	assert.JSONEq(t, `{"type":"aiResponse","payload":{"message":"Meow"}}`, readMessage(t, conn))
	assert.JSONEq(t, `{"type":"typing","payload":{"isTyping":false}}`, readMessage(t, conn))
}

func TestWebSocketContextUpdateSuggestions(t *testing.T) {
	gw := &fakeGateway{suggestions: []string{"a", "b", "c", "d"}}
	_, url := startChatServer(t, gw, WebSocketOptions{})
	conn := dial(t, url)

	writeMessage(t, conn, `{"type":"contextUpdate","payload":{"currentPage":"/projects/42","projectId":"42"}}`)
	assert.JSONEq(t, `{"type":"suggestion","payload":{"suggestions":["a","b","c"]}}`, readMessage(t, conn))
}

func TestWebSocketMalformedKeepsConnectionOpen(t *testing.T) {
	_, url := startChatServer(t, &fakeGateway{reply: "still here"}, WebSocketOptions{})
	conn := dial(t, url)

	writeMessage(t, conn, `{"type":"bogus","payload":{}}`)
	assert.JSONEq(t, `{"type":"error","payload":{"message":"Unknown message type: bogus"}}`, readMessage(t, conn))

	writeMessage(t, conn, `garbage`)
	assert.JSONEq(t, `{"type":"error","payload":{"message":"Error processing your request"}}`, readMessage(t, conn))

	writeMessage(t, conn, `{"type":"chatMessage","payload":{"message":"hi"}}`)
	readMessage(t, conn)
	assert.Contains(t, readMessage(t, conn), "still here")
}

func TestWebSocketQueuesChatWhileReplyInFlight(t *testing.T) {
	release := make(chan struct{})
	gw := &fakeGateway{reply: "done", release: release}
	_, url := startChatServer(t, gw, WebSocketOptions{QueueSize: 1})
	conn := dial(t, url)

	writeMessage(t, conn, `{"type":"chatMessage","payload":{"message":"one"}}`)
	assert.JSONEq(t, `{"type":"typing","payload":{"isTyping":true}}`, readMessage(t, conn))
	require.Eventually(t, func() bool { return gw.replyCallCount() == 1 }, time.Second, 5*time.Millisecond)

	// "two" waits in the queue while "one" is blocked; "three" overflows it.
	writeMessage(t, conn, `{"type":"chatMessage","payload":{"message":"two"}}`)
	writeMessage(t, conn, `{"type":"chatMessage","payload":{"message":"three"}}`)
	assert.JSONEq(t, `{"type":"error","payload":{"message":"Still working on your previous messages, please wait"}}`, readMessage(t, conn))
	assert.Equal(t, 1, gw.replyCallCount())

	close(release)
	for i := 0; i < 2; i++ {
		if i > 0 {
			assert.JSONEq(t, `{"type":"typing","payload":{"isTyping":true}}`, readMessage(t, conn))
		}
		assert.JSONEq(t, `{"type":"aiResponse","payload":{"message":"done"}}`, readMessage(t, conn))
		assert.JSONEq(t, `{"type":"typing","payload":{"isTyping":false}}`, readMessage(t, conn))
	}
	assert.Equal(t, 2, gw.replyCallCount())
}

func TestWebSocketRateLimitsChatMessages(t *testing.T) {
	gw := &fakeGateway{reply: "ok"}
	_, url := startChatServer(t, gw, WebSocketOptions{MessagesPerSecond: 0.001, MessageBurst: 1})
	conn := dial(t, url)

	writeMessage(t, conn, `{"type":"chatMessage","payload":{"message":"one"}}`)
	writeMessage(t, conn, `{"type":"chatMessage","payload":{"message":"two"}}`)

	var sawLimit bool
	for i := 0; i < 4; i++ {
		if strings.Contains(readMessage(t, conn), "Too many messages") {
			sawLimit = true
		}
	}
	assert.True(t, sawLimit)
}

func TestWebSocketCloseUnregisters(t *testing.T) {
	env, url := startChatServer(t, &fakeGateway{}, WebSocketOptions{})
	conn := dial(t, url)

	require.Eventually(t, func() bool { return env.registry.Len() == 1 }, time.Second, 5*time.Millisecond)
	require.NoError(t, conn.Close(websocket.StatusNormalClosure, "bye"))
	require.Eventually(t, func() bool { return env.registry.Len() == 0 }, 2*time.Second, 5*time.Millisecond)
}

func TestWebSocketRejectsForeignOrigin(t *testing.T) {
	env := newTestEnv(t, &fakeGateway{}, fastConfig())
	h := NewWebSocketHandler(env.svc, env.registry, WebSocketOptions{AllowedOrigin: "https://portfolio.example"})

	req := httptest.NewRequest("GET", "/ws/chat", nil)
	req.Header.Set("Origin", "https://evil.example")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, 403, rec.Code)
}
