// ABOUTME: Tests for the outbound tool caller and envelope normalization.
// ABOUTME: Covers JSON and text bodies, timeouts, transport failures, and secret redaction.

package tools

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCaller_PlainTextBody(t *testing.T) {
	var gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.RawQuery
		w.Header().Set("Content-Type", "text/plain")
		w.Write([]byte("Mailbox is 80% full"))
	}))
	defer srv.Close()

	c := NewCaller(CallerConfig{Secret: "func-key-123"})
	env := c.Call(context.Background(), srv.URL, map[string]string{"name": "a@b.com"})

	assert.Equal(t, 200, env.StatusCode)
	assert.Equal(t, "Mailbox is 80% full", env.Content)
	assert.True(t, env.OK())

	// The secret reaches the endpoint but never the envelope
	assert.Contains(t, gotQuery, "code=func-key-123")
	assert.NotContains(t, env.URL, "func-key-123")
	assert.Contains(t, env.URL, "name=a%40b.com")
}

func TestCaller_JSONBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.Write([]byte(`{"TotalSent": 42, "TotalFailed": 3}`))
	}))
	defer srv.Close()

	c := NewCaller(CallerConfig{})
	env := c.Call(context.Background(), srv.URL, map[string]string{"subject": "Weekly Report"})

	content, ok := env.Content.(map[string]any)
	require.True(t, ok, "JSON body should decode to structured content")
	assert.Equal(t, float64(42), content["TotalSent"])
}

func TestCaller_NonOKStatusPreserved(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		w.Write([]byte("bad key"))
	}))
	defer srv.Close()

	c := NewCaller(CallerConfig{})
	env := c.Call(context.Background(), srv.URL, nil)

	assert.Equal(t, http.StatusForbidden, env.StatusCode)
	assert.False(t, env.OK())
}

func TestCaller_TimeoutYieldsSyntheticStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer srv.Close()

	c := NewCaller(CallerConfig{Timeout: 20 * time.Millisecond})
	env := c.Call(context.Background(), srv.URL, map[string]string{"name": "a@b.com"})

	assert.Equal(t, StatusTransportFailure, env.StatusCode)
	assert.False(t, env.OK())
}

func TestCaller_ConnectionRefused(t *testing.T) {
	c := NewCaller(CallerConfig{Secret: "func-key-123", Timeout: time.Second})
	env := c.Call(context.Background(), "http://127.0.0.1:1", map[string]string{"name": "a@b.com"})

	assert.Equal(t, StatusTransportFailure, env.StatusCode)

	// Transport error text may echo the request URL; the secret must be scrubbed
	detail, ok := env.Content.(string)
	require.True(t, ok)
	assert.NotContains(t, detail, "func-key-123")
	assert.NotContains(t, env.URL, "func-key-123")
}

func TestEnvelope_Encode(t *testing.T) {
	env := &Envelope{
		StatusCode: 200,
		Content:    "ok",
		Headers:    map[string]string{"Content-Type": "text/plain"},
		URL:        "https://funcs.example.net/api/mbxtrigger?name=a%40b.com",
	}

	var decoded map[string]any
	require.NoError(t, json.Unmarshal([]byte(env.Encode()), &decoded))
	assert.Equal(t, float64(200), decoded["status_code"])
	assert.Equal(t, "ok", decoded["content"])
}

func TestRegisterMailboxTools(t *testing.T) {
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		if strings.Contains(r.URL.Path, "MessageTrace") {
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(`{"SubjectQueried": 1}`))
			return
		}
		w.Write([]byte("mailbox ok"))
	}))
	defer srv.Close()

	r := NewRegistry(nil)
	c := NewCaller(CallerConfig{Secret: "k"})
	require.NoError(t, RegisterMailboxTools(r, c, srv.URL+"/api/mbxtrigger", srv.URL+"/api/MessageTrace"))

	env, err := r.Invoke(context.Background(), ToolGetMailbox, map[string]string{"name": "a@b.com"})
	require.NoError(t, err)
	assert.Equal(t, "mailbox ok", env.Content)
	assert.Equal(t, "/api/mbxtrigger", gotPath)

	env, err = r.Invoke(context.Background(), ToolGetEmailDetails, map[string]string{"subject": "Report"})
	require.NoError(t, err)
	assert.Equal(t, "/api/MessageTrace", gotPath)
	_, isStructured := env.Content.(map[string]any)
	assert.True(t, isStructured)

	// Both tools enforce their required argument up front
	_, err = r.Invoke(context.Background(), ToolGetMailbox, map[string]string{})
	require.ErrorIs(t, err, ErrToolArgument)
}
