// ABOUTME: Minimal fake conversation service and chart renderer for local development.
// ABOUTME: Usage: fake-backend [-addr localhost:9000] — echoes messages with canned metrics.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"time"

	"github.com/google/uuid"
)

func main() {
	addr := flag.String("addr", "localhost:9000", "HTTP listen address")
	flag.Parse()

	if err := run(*addr); err != nil {
		log.Fatal(err)
	}
}

func run(addr string) error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	backend := newBackend()
	mux := http.NewServeMux()
	backend.registerRoutes(mux)

	server := &http.Server{Addr: addr, Handler: mux}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		server.Shutdown(shutdownCtx)
	}()

	log.Printf("fake backend listening on %s", addr)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

type message struct {
	ID      string `json:"id"`
	Role    string `json:"role"`
	Content string `json:"content"`
}

type thread struct {
	id       string
	messages []message
}

// backend holds all fake state in memory. Runs complete instantly: every
// user message gets an echoed assistant reply carrying metric markup so
// the chart path can be exercised end to end.
type backend struct {
	mu      sync.Mutex
	threads map[string]*thread
	runs    map[string]string // run id -> thread id
}

func newBackend() *backend {
	return &backend{
		threads: make(map[string]*thread),
		runs:    make(map[string]string),
	}
}

func (b *backend) registerRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /assistants", b.handleCreateAssistant)
	mux.HandleFunc("DELETE /assistants/{id}", b.handleDelete)
	mux.HandleFunc("POST /threads", b.handleCreateThread)
	mux.HandleFunc("DELETE /threads/{id}", b.handleDelete)
	mux.HandleFunc("POST /threads/{id}/messages", b.handleCreateMessage)
	mux.HandleFunc("GET /threads/{id}/messages", b.handleListMessages)
	mux.HandleFunc("POST /threads/{id}/runs", b.handleCreateRun)
	mux.HandleFunc("GET /threads/{id}/runs/{run}", b.handleGetRun)
	mux.HandleFunc("POST /generate-chart", b.handleGenerateChart)
}

func (b *backend) handleCreateAssistant(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]string{"id": "fake-agent", "name": "fake", "model": "fake"})
}

func (b *backend) handleDelete(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	delete(b.threads, r.PathValue("id"))
	b.mu.Unlock()
	writeJSON(w, map[string]bool{"deleted": true})
}

func (b *backend) handleCreateThread(w http.ResponseWriter, r *http.Request) {
	t := &thread{id: "thread-" + uuid.NewString()}
	b.mu.Lock()
	b.threads[t.id] = t
	b.mu.Unlock()
	writeJSON(w, map[string]string{"id": t.id})
}

func (b *backend) handleCreateMessage(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}

	msg := message{ID: "msg-" + uuid.NewString(), Role: req.Role, Content: req.Content}

	b.mu.Lock()
	t, ok := b.threads[r.PathValue("id")]
	if ok {
		t.messages = append(t.messages, msg)
	}
	b.mu.Unlock()
	if !ok {
		http.Error(w, "thread not found", http.StatusNotFound)
		return
	}
	writeJSON(w, msg)
}

func (b *backend) handleListMessages(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	defer b.mu.Unlock()

	t, ok := b.threads[r.PathValue("id")]
	if !ok {
		http.Error(w, "thread not found", http.StatusNotFound)
		return
	}

	// Newest first, like the real service.
	out := make([]message, len(t.messages))
	for i, m := range t.messages {
		out[len(t.messages)-1-i] = m
	}
	writeJSON(w, map[string]any{"data": out})
}

func (b *backend) handleCreateRun(w http.ResponseWriter, r *http.Request) {
	threadID := r.PathValue("id")

	b.mu.Lock()
	t, ok := b.threads[threadID]
	if ok {
		last := "hello"
		if n := len(t.messages); n > 0 {
			last = t.messages[n-1].Content
		}
		reply := fmt.Sprintf("You said: %q\n\n**TotalSent**: 42\n**TotalFailed**: 3", last)
		t.messages = append(t.messages, message{
			ID:      "msg-" + uuid.NewString(),
			Role:    "assistant",
			Content: reply,
		})
	}
	runID := "run-" + uuid.NewString()
	b.runs[runID] = threadID
	b.mu.Unlock()

	if !ok {
		http.Error(w, "thread not found", http.StatusNotFound)
		return
	}
	writeJSON(w, map[string]string{"id": runID, "thread_id": threadID, "status": "queued"})
}

func (b *backend) handleGetRun(w http.ResponseWriter, r *http.Request) {
	runID := r.PathValue("run")

	b.mu.Lock()
	threadID, ok := b.runs[runID]
	b.mu.Unlock()
	if !ok {
		http.Error(w, "run not found", http.StatusNotFound)
		return
	}
	writeJSON(w, map[string]string{"id": runID, "thread_id": threadID, "status": "completed"})
}

// handleGenerateChart returns a fixed 1x1 PNG so the UI's image path
// renders without a real matplotlib service.
func (b *backend) handleGenerateChart(w http.ResponseWriter, r *http.Request) {
	const onePixelPNG = "iVBORw0KGgoAAAANSUhEUgAAAAEAAAABCAYAAAAfFcSJAAAADUlEQVR42mP8z8BQDwAEhQGAhKmMIQAAAABJRU5ErkJggg=="
	writeJSON(w, map[string]string{"image_base64": onePixelPNG})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}
