package api

import (
	"bufio"
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coregx/chatbridge"
	"github.com/coregx/chatbridge/adapters/memlog"
	"github.com/coregx/chatbridge/adapters/relica"
	"github.com/coregx/chatbridge/model"
)

type testServer struct {
	handler *Handler
	bridge  *chatbridge.Bridge
	log     *memlog.Log
	router  http.Handler
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, chatbridge.ApplyMigrations(context.Background(), db))
	repos := relica.NewRepositories(db, "sqlite3")

	l := memlog.New()
	logger := &chatbridge.NoopLogger{}
	bridge, err := chatbridge.NewBridge(
		chatbridge.WithLog(l.Producer(), l.Consumer("chatbridge", "chat-messages")),
		chatbridge.WithTopic("chat-messages"),
		chatbridge.WithLogger(logger),
		chatbridge.WithConsumerOptions(chatbridge.WithPollTimeout(10*time.Millisecond)),
	)
	require.NoError(t, err)
	require.NoError(t, bridge.Start(context.Background()))
	t.Cleanup(func() { _ = bridge.Shutdown(context.Background()) })

	chats, err := chatbridge.NewChatService(
		chatbridge.WithChatRepositories(repos.Thread, repos.Message),
		chatbridge.WithChatProducer(bridge.Producer()),
		chatbridge.WithChatLogger(logger),
	)
	require.NoError(t, err)

	h := NewHandler(chats, bridge, logger)
	return &testServer{handler: h, bridge: bridge, log: l, router: LoggingMiddleware(h.Routes(), logger)}
}

func (s *testServer) do(t *testing.T, method, path, body string) (*httptest.ResponseRecorder, SuccessResponse) {
	t.Helper()

	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)

	var resp SuccessResponse
	_ = json.Unmarshal(rec.Body.Bytes(), &resp)
	return rec, resp
}

func (s *testServer) createThread(t *testing.T, userID uuid.UUID) uuid.UUID {
	t.Helper()

	rec, resp := s.do(t, http.MethodPost, "/api/v1/chats/"+userID.String()+"/threads", `{"threadName":"Trip"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	data := resp.Data.(map[string]interface{})
	id, err := uuid.Parse(data["id"].(string))
	require.NoError(t, err)
	return id
}

func TestHandleThreads(t *testing.T) {
	s := newTestServer(t)
	userID := uuid.New()

	rec, resp := s.do(t, http.MethodGet, "/api/v1/chats/"+userID.String()+"/threads", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []interface{}{}, resp.Data)

	threadID := s.createThread(t, userID)

	rec, resp = s.do(t, http.MethodGet, "/api/v1/chats/"+userID.String()+"/threads", "")
	require.Equal(t, http.StatusOK, rec.Code)
	threads := resp.Data.([]interface{})
	require.Len(t, threads, 1)
	assert.Equal(t, threadID.String(), threads[0].(map[string]interface{})["id"])
}

func TestHandleErrors(t *testing.T) {
	s := newTestServer(t)
	userID := uuid.New()
	threadID := s.createThread(t, userID)
	base := "/api/v1/chats/" + userID.String() + "/threads/"

	tests := []struct {
		name       string
		method     string
		path       string
		body       string
		wantStatus int
		wantCode   string
	}{
		{"Invalid user id", http.MethodGet, "/api/v1/chats/nope/threads", "", http.StatusBadRequest, "INVALID_ID"},
		{"Invalid JSON", http.MethodPost, "/api/v1/chats/" + userID.String() + "/threads", "{", http.StatusBadRequest, "INVALID_JSON"},
		{"Empty thread name", http.MethodPost, "/api/v1/chats/" + userID.String() + "/threads", `{}`, http.StatusBadRequest, chatbridge.ErrCodeValidation},
		{"Unknown thread", http.MethodGet, base + uuid.NewString() + "/chats", "", http.StatusNotFound, chatbridge.ErrCodeNoData},
		{"Bad limit", http.MethodGet, base + threadID.String() + "/chats?limit=x", "", http.StatusBadRequest, chatbridge.ErrCodeValidation},
		{"Empty message", http.MethodPost, base + threadID.String() + "/chats", `{"chatMessage":""}`, http.StatusBadRequest, chatbridge.ErrCodeValidation},
		{"Foreign thread", http.MethodPost, "/api/v1/chats/" + uuid.NewString() + "/threads/" + threadID.String() + "/chats", `{"chatMessage":"hi"}`, http.StatusNotFound, chatbridge.ErrCodeNoData},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.path, strings.NewReader(tt.body))
			rec := httptest.NewRecorder()
			s.router.ServeHTTP(rec, req)

			assert.Equal(t, tt.wantStatus, rec.Code, rec.Body.String())
			var resp ErrorResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
			assert.Equal(t, tt.wantCode, resp.Code)
		})
	}
}

func TestHandleMessages(t *testing.T) {
	s := newTestServer(t)
	userID := uuid.New()
	threadID := s.createThread(t, userID)
	path := fmt.Sprintf("/api/v1/chats/%s/threads/%s/chats", userID, threadID)

	for _, text := range []string{"one", "two", "three"} {
		rec, _ := s.do(t, http.MethodPost, path, `{"chatMessage":"`+text+`"}`)
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	}

	rec, resp := s.do(t, http.MethodGet, path+"?limit=2", "")
	require.Equal(t, http.StatusOK, rec.Code)
	messages := resp.Data.([]interface{})
	require.Len(t, messages, 2)
	assert.Equal(t, "one", messages[0].(map[string]interface{})["chatMessage"])
}

func TestHandleHealth(t *testing.T) {
	s := newTestServer(t)

	rec, resp := s.do(t, http.MethodGet, "/api/v1/health", "")
	require.Equal(t, http.StatusOK, rec.Code)
	health := resp.Data.(map[string]interface{})
	assert.Equal(t, "healthy", health["status"])
	assert.Equal(t, float64(0), health["subscribers"])

	require.NoError(t, s.bridge.Shutdown(context.Background()))
	rec, _ = s.do(t, http.MethodGet, "/api/v1/health", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestHandleConnect_StreamsPostedMessages(t *testing.T) {
	s := newTestServer(t)
	server := httptest.NewServer(s.router)
	defer server.Close()

	userID := uuid.New()
	threadID := s.createThread(t, userID)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		fmt.Sprintf("%s/api/v1/chats/%s/threads/%s/connect", server.URL, userID, threadID), nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))
	require.Eventually(t, func() bool { return s.bridge.Registry().Len() == 1 }, 2*time.Second, 5*time.Millisecond)

	post, err := http.Post(
		fmt.Sprintf("%s/api/v1/chats/%s/threads/%s/chats", server.URL, userID, threadID),
		"application/json", bytes.NewBufferString(`{"chatMessage":"hello"}`))
	require.NoError(t, err)
	post.Body.Close()
	require.Equal(t, http.StatusCreated, post.StatusCode)

	lines := make(chan string, 1)
	go func() {
		scanner := bufio.NewScanner(resp.Body)
		for scanner.Scan() {
			if line := scanner.Text(); strings.HasPrefix(line, "data: ") {
				lines <- strings.TrimPrefix(line, "data: ")
				return
			}
		}
	}()

	select {
	case line := <-lines:
		var event model.ChatEvent
		require.NoError(t, json.Unmarshal([]byte(line), &event))
		assert.Equal(t, userID, event.UserID)
		assert.Equal(t, threadID, event.ChatThreadID)
		assert.Equal(t, "hello", event.Message.ChatMessage)
	case <-time.After(2 * time.Second):
		t.Fatal("no event received")
	}

	cancel()
	require.Eventually(t, func() bool { return s.bridge.Registry().Len() == 0 }, 2*time.Second, 5*time.Millisecond,
		"stream detached after client disconnect")
}

func TestSSESink_CompactsMultiLinePayload(t *testing.T) {
	rec := httptest.NewRecorder()
	sink := sseSink{w: rec, flusher: rec}

	require.NoError(t, sink.Emit(context.Background(), json.RawMessage("{\n  \"a\": 1,\n\n  \"b\": \"x\\ny\"\n}")))
	assert.Equal(t, "data: {\"a\":1,\"b\":\"x\\ny\"}\n\n", rec.Body.String())
	assert.True(t, rec.Flushed)

	assert.Error(t, sink.Emit(context.Background(), json.RawMessage("{\n")), "broken JSON is not written")
}

func TestHandleConnect_IndentedLegacyRecordIsOneEvent(t *testing.T) {
	s := newTestServer(t)
	server := httptest.NewServer(s.router)
	defer server.Close()

	userID, threadID := uuid.New(), uuid.New()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		fmt.Sprintf("%s/api/v1/chats/%s/threads/%s/connect", server.URL, userID, threadID), nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Eventually(t, func() bool { return s.bridge.Registry().Len() == 1 }, 2*time.Second, 5*time.Millisecond)

	value := fmt.Sprintf("{\n  \"user_id\": %q,\n\n  \"chat_thread_id\": %q,\n  \"message\": {\n    \"chatMessage\": \"hi\"\n  }\n}",
		userID.String(), threadID.String())
	require.NoError(t, s.log.Producer().Produce(ctx, "chat-messages", nil, []byte(value)))

	// An SSE event ends at the first blank line; collect the lines of the first one.
	events := make(chan []string, 1)
	go func() {
		var lines []string
		scanner := bufio.NewScanner(resp.Body)
		for scanner.Scan() {
			line := scanner.Text()
			if line == "" {
				if len(lines) > 0 {
					events <- lines
					return
				}
				continue
			}
			lines = append(lines, line)
		}
	}()

	select {
	case lines := <-events:
		require.Len(t, lines, 1, "one data line per event")
		require.True(t, strings.HasPrefix(lines[0], "data: "))

		var event model.ChatEvent
		require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(lines[0], "data: ")), &event))
		assert.Equal(t, userID, event.UserID)
		assert.Equal(t, threadID, event.ChatThreadID)
		assert.Equal(t, "hi", event.Message.ChatMessage)
	case <-time.After(2 * time.Second):
		t.Fatal("no event received")
	}
}
