// ABOUTME: HTTP surface for the mailbox chat service
// ABOUTME: Routes chat turns through session resolution, the run driver, and charting

package web

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"html/template"
	"log/slog"
	"net/http"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"

	"github.com/jpena225/azure-ai-mailbox-agent/internal/agents"
	"github.com/jpena225/azure-ai-mailbox-agent/internal/chart"
	"github.com/jpena225/azure-ai-mailbox-agent/internal/runner"
	"github.com/jpena225/azure-ai-mailbox-agent/internal/session"
)

// TurnDriver runs one conversational turn against a thread.
type TurnDriver interface {
	Run(ctx context.Context, threadID, text string) (*runner.Result, error)
}

// ChartRenderer turns a chart request into a base64-encoded image.
type ChartRenderer interface {
	Render(ctx context.Context, req *chart.Request) (string, error)
}

// MessageLister reads a thread's message history, newest first.
type MessageLister interface {
	ListMessages(ctx context.Context, threadID string) ([]*agents.Message, error)
}

// Config holds the settings for the web server.
type Config struct {
	// CookieSecret signs session cookies.
	CookieSecret []byte

	// InitError, when non-nil, marks the agent backend as unavailable.
	// Chat requests are refused with a fixed error until restart.
	InitError error
}

// Server serves the chat UI and its JSON API.
type Server struct {
	sessions *session.Manager
	driver   TurnDriver
	renderer ChartRenderer
	messages MessageLister
	codec    *sessionCodec
	markdown goldmark.Markdown
	initErr  error
	logger   *slog.Logger
}

// NewServer creates the web server. renderer and messages may be nil,
// disabling charting and the history endpoint respectively.
func NewServer(cfg Config, sessions *session.Manager, driver TurnDriver, renderer ChartRenderer, messages MessageLister, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		sessions: sessions,
		driver:   driver,
		renderer: renderer,
		messages: messages,
		codec:    newSessionCodec(cfg.CookieSecret),
		markdown: goldmark.New(goldmark.WithExtensions(extension.GFM)),
		initErr:  cfg.InitError,
		logger:   logger.With("component", "web"),
	}
}

// RegisterRoutes attaches all chat routes to the mux.
func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /{$}", s.handleIndex)
	mux.HandleFunc("POST /chat", s.handleChat)
	mux.HandleFunc("POST /clear", s.handleClear)
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /api/history", s.handleHistory)
}

type chatRequest struct {
	Message string `json:"message"`
}

type chatResponse struct {
	UserMessage       string `json:"user_message"`
	AgentResponse     string `json:"agent_response"`
	AgentResponseHTML string `json:"agent_response_html"`
	Status            string `json:"status"`
	ImageBase64       string `json:"image_base64,omitempty"`
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	if s.initErr != nil {
		s.sendJSONError(w, http.StatusInternalServerError, "agent client not initialized")
		return
	}

	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	text := strings.TrimSpace(req.Message)
	if text == "" {
		s.sendJSONError(w, http.StatusBadRequest, "Message cannot be empty")
		return
	}

	sid, fresh := s.sessionID(r)
	if fresh {
		s.setSessionCookie(w, sid)
	}

	// One turn at a time per session. The lock covers thread resolution
	// and the whole run so interleaved turns cannot race thread creation.
	release := s.sessions.Acquire(sid)
	defer release()

	ctx := r.Context()
	threadID, err := s.sessions.ResolveOrCreate(ctx, sid)
	if err != nil {
		s.logger.Error("failed to resolve thread", "session_id", sid, "error", err)
		s.sendJSONError(w, http.StatusInternalServerError, "failed to resolve conversation thread")
		return
	}

	result, err := s.driver.Run(ctx, threadID, text)
	if err != nil {
		if errors.Is(err, runner.ErrEmptyInput) {
			s.sendJSONError(w, http.StatusBadRequest, "Message cannot be empty")
			return
		}
		s.logger.Error("turn failed", "thread_id", threadID, "error", err)
		s.sendJSONError(w, http.StatusInternalServerError, err.Error())
		return
	}

	resp := chatResponse{
		UserMessage:       text,
		AgentResponse:     result.Reply,
		AgentResponseHTML: s.renderMarkdown(result.Reply),
		Status:            "success",
	}
	resp.ImageBase64 = s.maybeChart(ctx, result.Reply)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

// maybeChart extracts metrics from the reply and renders a chart when any
// are present. Charting is opportunistic; every failure here is logged
// and swallowed so the turn still succeeds.
func (s *Server) maybeChart(ctx context.Context, reply string) string {
	if s.renderer == nil {
		return ""
	}
	req := chart.BuildRequest(chart.ExtractMetrics(reply))
	if req == nil {
		return ""
	}
	image, err := s.renderer.Render(ctx, req)
	if err != nil {
		s.logger.Warn("chart rendering failed", "error", err)
		return ""
	}
	return image
}

func (s *Server) handleClear(w http.ResponseWriter, r *http.Request) {
	sid, fresh := s.sessionID(r)
	if !fresh {
		if err := s.sessions.Clear(r.Context(), sid); err != nil {
			s.logger.Warn("failed to clear session", "session_id", sid, "error", err)
		}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "cleared"})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"status":       "healthy",
		"agent_client": s.initErr == nil,
		"agent":        s.initErr == nil,
		"charting":     s.renderer != nil,
	})
}

type historyEntry struct {
	ID   string `json:"id"`
	Role string `json:"role"`
	Text string `json:"text"`
}

// handleHistory returns the caller's thread history, oldest first. A
// session that has no thread yet gets an empty list.
func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if s.messages == nil {
		s.sendJSONError(w, http.StatusNotFound, "history not available")
		return
	}

	w.Header().Set("Content-Type", "application/json")

	sid, fresh := s.sessionID(r)
	if fresh {
		json.NewEncoder(w).Encode([]historyEntry{})
		return
	}

	release := s.sessions.Acquire(sid)
	defer release()

	threadID, err := s.sessions.Lookup(r.Context(), sid)
	if err != nil {
		if errors.Is(err, session.ErrNotFound) {
			json.NewEncoder(w).Encode([]historyEntry{})
			return
		}
		s.sendJSONError(w, http.StatusInternalServerError, "failed to load history")
		return
	}

	msgs, err := s.messages.ListMessages(r.Context(), threadID)
	if err != nil {
		s.logger.Error("failed to list messages", "thread_id", threadID, "error", err)
		s.sendJSONError(w, http.StatusInternalServerError, "failed to load history")
		return
	}

	// Service order is newest first; the UI wants oldest first.
	entries := make([]historyEntry, 0, len(msgs))
	for i := len(msgs) - 1; i >= 0; i-- {
		msg := msgs[i]
		entries = append(entries, historyEntry{
			ID:   msg.ID,
			Role: msg.Role,
			Text: agents.ExtractText(msg),
		})
	}
	json.NewEncoder(w).Encode(entries)
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := indexTemplate.Execute(w, nil); err != nil {
		s.logger.Error("failed to render chat page", "error", err)
	}
}

// renderMarkdown converts assistant markdown into HTML for the chat UI.
// On conversion failure the escaped plain text is returned instead.
func (s *Server) renderMarkdown(text string) string {
	var buf bytes.Buffer
	if err := s.markdown.Convert([]byte(text), &buf); err != nil {
		s.logger.Warn("markdown conversion failed", "error", err)
		return "<p>" + template.HTMLEscapeString(text) + "</p>"
	}
	return buf.String()
}

// sendJSONError writes a JSON error response.
func (s *Server) sendJSONError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
