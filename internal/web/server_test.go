// ABOUTME: Tests for the chat HTTP surface using httptest and stub services
// ABOUTME: Covers session continuity, clearing, charting, and failure responses

package web

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jpena225/azure-ai-mailbox-agent/internal/agents"
	"github.com/jpena225/azure-ai-mailbox-agent/internal/chart"
	"github.com/jpena225/azure-ai-mailbox-agent/internal/runner"
	"github.com/jpena225/azure-ai-mailbox-agent/internal/session"
)

type stubDriver struct {
	reply   string
	err     error
	threads []string
}

func (d *stubDriver) Run(ctx context.Context, threadID, text string) (*runner.Result, error) {
	d.threads = append(d.threads, threadID)
	if d.err != nil {
		return nil, d.err
	}
	return &runner.Result{Reply: d.reply, RunID: "run-1"}, nil
}

type stubRenderer struct {
	image    string
	err      error
	requests []*chart.Request
}

func (r *stubRenderer) Render(ctx context.Context, req *chart.Request) (string, error) {
	r.requests = append(r.requests, req)
	return r.image, r.err
}

type stubThreads struct {
	created atomic.Int64
	deleted atomic.Int64
}

func (s *stubThreads) CreateThread(ctx context.Context) (*agents.Thread, error) {
	n := s.created.Add(1)
	return &agents.Thread{ID: fmt.Sprintf("thread-%d", n)}, nil
}

func (s *stubThreads) DeleteThread(ctx context.Context, id string) error {
	s.deleted.Add(1)
	return nil
}

type stubHistory struct {
	msgs []*agents.Message
}

func (s *stubHistory) ListMessages(ctx context.Context, threadID string) ([]*agents.Message, error) {
	return s.msgs, nil
}

func newTestServer(t *testing.T, cfg Config, driver TurnDriver, renderer ChartRenderer, messages MessageLister) *Server {
	t.Helper()
	if cfg.CookieSecret == nil {
		cfg.CookieSecret = []byte("test-secret")
	}
	manager := session.NewManager(session.NewMemoryStore(), &stubThreads{}, nil)
	return NewServer(cfg, manager, driver, renderer, messages, nil)
}

func postChat(t *testing.T, handler http.Handler, message string, cookies []*http.Cookie) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/chat", strings.NewReader(`{"message":`+jsonString(message)+`}`))
	req.Header.Set("Content-Type", "application/json")
	for _, c := range cookies {
		req.AddCookie(c)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func jsonString(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}

func decodeChat(t *testing.T, rec *httptest.ResponseRecorder) chatResponse {
	t.Helper()
	var resp chatResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	return resp
}

func TestChat_SuccessfulTurn(t *testing.T) {
	driver := &stubDriver{reply: "Your mailbox has **TotalSent**: 0 messages... just kidding, none found."}
	server := newTestServer(t, Config{}, driver, nil, nil)
	mux := http.NewServeMux()
	server.RegisterRoutes(mux)

	rec := postChat(t, mux, "tell me about my mailbox", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	resp := decodeChat(t, rec)
	assert.Equal(t, "tell me about my mailbox", resp.UserMessage)
	assert.Equal(t, driver.reply, resp.AgentResponse)
	assert.Equal(t, "success", resp.Status)
	assert.NotEmpty(t, resp.AgentResponseHTML)
	assert.Contains(t, resp.AgentResponseHTML, "<strong>TotalSent</strong>")
}

func TestChat_EmptyMessageRejected(t *testing.T) {
	driver := &stubDriver{reply: "unused"}
	server := newTestServer(t, Config{}, driver, nil, nil)
	mux := http.NewServeMux()
	server.RegisterRoutes(mux)

	for _, body := range []string{"", "   ", "\n\t"} {
		rec := postChat(t, mux, body, nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	}
	assert.Empty(t, driver.threads, "driver must not run for empty input")
}

func TestChat_UninitializedBackend(t *testing.T) {
	driver := &stubDriver{reply: "unused"}
	server := newTestServer(t, Config{InitError: fmt.Errorf("no endpoint")}, driver, nil, nil)
	mux := http.NewServeMux()
	server.RegisterRoutes(mux)

	rec := postChat(t, mux, "hello", nil)

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	var resp map[string]string
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "agent client not initialized", resp["error"])
	assert.Empty(t, driver.threads)
}

func TestChat_ConsecutiveTurnsReuseThread(t *testing.T) {
	driver := &stubDriver{reply: "ok"}
	server := newTestServer(t, Config{}, driver, nil, nil)
	mux := http.NewServeMux()
	server.RegisterRoutes(mux)

	first := postChat(t, mux, "first", nil)
	require.Equal(t, http.StatusOK, first.Code)
	cookies := first.Result().Cookies()
	require.NotEmpty(t, cookies)

	second := postChat(t, mux, "second", cookies)
	require.Equal(t, http.StatusOK, second.Code)

	require.Len(t, driver.threads, 2)
	assert.Equal(t, driver.threads[0], driver.threads[1], "same session must keep the same thread")
}

func TestChat_ClearStartsFreshThread(t *testing.T) {
	driver := &stubDriver{reply: "ok"}
	server := newTestServer(t, Config{}, driver, nil, nil)
	mux := http.NewServeMux()
	server.RegisterRoutes(mux)

	first := postChat(t, mux, "first", nil)
	cookies := first.Result().Cookies()

	clearReq := httptest.NewRequest(http.MethodPost, "/clear", nil)
	for _, c := range cookies {
		clearReq.AddCookie(c)
	}
	clearRec := httptest.NewRecorder()
	mux.ServeHTTP(clearRec, clearReq)
	require.Equal(t, http.StatusOK, clearRec.Code)

	second := postChat(t, mux, "second", cookies)
	require.Equal(t, http.StatusOK, second.Code)

	require.Len(t, driver.threads, 2)
	assert.NotEqual(t, driver.threads[0], driver.threads[1], "cleared session must get a new thread")
}

func TestChat_MissingCookieStartsNewSession(t *testing.T) {
	driver := &stubDriver{reply: "ok"}
	server := newTestServer(t, Config{}, driver, nil, nil)
	mux := http.NewServeMux()
	server.RegisterRoutes(mux)

	first := postChat(t, mux, "first", nil)
	second := postChat(t, mux, "second", nil)

	require.Equal(t, http.StatusOK, first.Code)
	require.Equal(t, http.StatusOK, second.Code)
	require.Len(t, driver.threads, 2)
	assert.NotEqual(t, driver.threads[0], driver.threads[1], "cookieless requests are distinct sessions")
}

func TestChat_TamperedCookieRejected(t *testing.T) {
	driver := &stubDriver{reply: "ok"}
	server := newTestServer(t, Config{}, driver, nil, nil)
	mux := http.NewServeMux()
	server.RegisterRoutes(mux)

	forged := &http.Cookie{Name: SessionCookieName, Value: "not-a-valid-token"}
	rec := postChat(t, mux, "hello", []*http.Cookie{forged})

	require.Equal(t, http.StatusOK, rec.Code)
	// A replacement cookie is issued for the fresh session.
	assert.NotEmpty(t, rec.Result().Cookies())
}

func TestChat_RendersChartWhenMetricsPresent(t *testing.T) {
	driver := &stubDriver{reply: "**TotalSent**: 42 and **TotalFailed**: 3"}
	renderer := &stubRenderer{image: "aW1hZ2U="}
	server := newTestServer(t, Config{}, driver, renderer, nil)
	mux := http.NewServeMux()
	server.RegisterRoutes(mux)

	rec := postChat(t, mux, "stats please", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	resp := decodeChat(t, rec)
	assert.Equal(t, "aW1hZ2U=", resp.ImageBase64)
	require.Len(t, renderer.requests, 1)
	assert.Equal(t, []string{"TotalSent", "TotalFailed"}, renderer.requests[0].Labels)
}

func TestChat_NoMetricsNoRenderCall(t *testing.T) {
	driver := &stubDriver{reply: "nothing numeric here"}
	renderer := &stubRenderer{image: "unused"}
	server := newTestServer(t, Config{}, driver, renderer, nil)
	mux := http.NewServeMux()
	server.RegisterRoutes(mux)

	rec := postChat(t, mux, "hello", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	resp := decodeChat(t, rec)
	assert.Empty(t, resp.ImageBase64)
	assert.Empty(t, renderer.requests, "renderer must not be called without metrics")
}

func TestChat_ChartFailureIsNonFatal(t *testing.T) {
	driver := &stubDriver{reply: "**Delivered**: 7"}
	renderer := &stubRenderer{err: chart.ErrRenderFailed}
	server := newTestServer(t, Config{}, driver, renderer, nil)
	mux := http.NewServeMux()
	server.RegisterRoutes(mux)

	rec := postChat(t, mux, "stats", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	resp := decodeChat(t, rec)
	assert.Equal(t, "success", resp.Status)
	assert.Empty(t, resp.ImageBase64)
}

func TestChat_DriverFailureReturns500(t *testing.T) {
	driver := &stubDriver{err: fmt.Errorf("%w: rate limited", runner.ErrRunFailed)}
	server := newTestServer(t, Config{}, driver, nil, nil)
	mux := http.NewServeMux()
	server.RegisterRoutes(mux)

	rec := postChat(t, mux, "hello", nil)

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	var resp map[string]string
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Contains(t, resp["error"], "rate limited")
}

func TestClear_WithoutSessionIsNoop(t *testing.T) {
	server := newTestServer(t, Config{}, &stubDriver{reply: "ok"}, nil, nil)
	mux := http.NewServeMux()
	server.RegisterRoutes(mux)

	req := httptest.NewRequest(http.MethodPost, "/clear", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp map[string]string
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "cleared", resp["status"])
}

func TestHealth(t *testing.T) {
	server := newTestServer(t, Config{}, &stubDriver{reply: "ok"}, &stubRenderer{}, nil)
	mux := http.NewServeMux()
	server.RegisterRoutes(mux)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp map[string]any
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "healthy", resp["status"])
	assert.Equal(t, true, resp["agent_client"])
	assert.Equal(t, true, resp["charting"])
}

func TestHistory_NewSessionIsEmpty(t *testing.T) {
	server := newTestServer(t, Config{}, &stubDriver{reply: "ok"}, nil, &stubHistory{})
	mux := http.NewServeMux()
	server.RegisterRoutes(mux)

	req := httptest.NewRequest(http.MethodGet, "/api/history", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var entries []historyEntry
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&entries))
	assert.Empty(t, entries)
}

func TestHistory_ReturnsOldestFirst(t *testing.T) {
	history := &stubHistory{msgs: []*agents.Message{
		textMessage("m2", agents.RoleAssistant, "hi there"),
		textMessage("m1", agents.RoleUser, "hello"),
	}}
	driver := &stubDriver{reply: "ok"}
	server := newTestServer(t, Config{}, driver, nil, history)
	mux := http.NewServeMux()
	server.RegisterRoutes(mux)

	first := postChat(t, mux, "hello", nil)
	require.Equal(t, http.StatusOK, first.Code)

	req := httptest.NewRequest(http.MethodGet, "/api/history", nil)
	for _, c := range first.Result().Cookies() {
		req.AddCookie(c)
	}
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var entries []historyEntry
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&entries))
	require.Len(t, entries, 2)
	assert.Equal(t, "m1", entries[0].ID)
	assert.Equal(t, "hello", entries[0].Text)
	assert.Equal(t, "m2", entries[1].ID)
}

func TestIndex_ServesChatPage(t *testing.T) {
	server := newTestServer(t, Config{}, &stubDriver{reply: "ok"}, nil, nil)
	mux := http.NewServeMux()
	server.RegisterRoutes(mux)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/html")
	assert.Contains(t, rec.Body.String(), "Mailbox Agent")
}

func textMessage(id, role, text string) *agents.Message {
	var content agents.MessageContent
	if err := json.Unmarshal([]byte(jsonString(text)), &content); err != nil {
		panic(err)
	}
	return &agents.Message{ID: id, Role: role, Content: content}
}
