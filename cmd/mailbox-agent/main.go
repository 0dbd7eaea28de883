// ABOUTME: Entry point for the mailbox-agent chat service
// ABOUTME: Wires the agent client, tool registry, session store, and web server

package main

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/joho/godotenv"

	"github.com/jpena225/azure-ai-mailbox-agent/internal/agents"
	"github.com/jpena225/azure-ai-mailbox-agent/internal/chart"
	"github.com/jpena225/azure-ai-mailbox-agent/internal/config"
	"github.com/jpena225/azure-ai-mailbox-agent/internal/runner"
	"github.com/jpena225/azure-ai-mailbox-agent/internal/session"
	"github.com/jpena225/azure-ai-mailbox-agent/internal/tools"
	"github.com/jpena225/azure-ai-mailbox-agent/internal/web"
)

// Version is set by goreleaser at build time.
var version = "dev"

const banner = `
                 _ _ _                                        _
 _ __ ___   __ _(_) | |__   _____  __     __ _  __ _  ___ _ __ | |_
| '_ ' _ \ / _' | | | '_ \ / _ \ \/ /____/ _' |/ _' |/ _ \ '_ \| __|
| | | | | | (_| | | | |_) | (_) >  <____| (_| | (_| |  __/ | | | |_
|_| |_| |_|\__,_|_|_|_.__/ \___/_/\_\    \__,_|\__, |\___|_| |_|\__|
                                               |___/
`

// getConfigPath returns the path to the service config file.
// Priority: MAILBOX_AGENT_CONFIG env var > XDG_CONFIG_HOME/mailbox-agent/config.yaml > ~/.config/mailbox-agent/config.yaml
func getConfigPath() string {
	if envPath := os.Getenv("MAILBOX_AGENT_CONFIG"); envPath != "" {
		return envPath
	}

	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "config.yaml" // fallback
		}
		configDir = filepath.Join(homeDir, ".config")
	}

	return filepath.Join(configDir, "mailbox-agent", "config.yaml")
}

func main() {
	if len(os.Args) < 2 {
		fmt.Println("Usage: mailbox-agent <command>")
		fmt.Println()
		fmt.Println("Commands:")
		fmt.Println("  serve    Start the chat service")
		fmt.Println("  init     Write a starter config file")
		fmt.Println("  health   Check service health")
		os.Exit(1)
	}

	// .env is optional; real deployments set the environment directly.
	godotenv.Load()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var err error
	switch os.Args[1] {
	case "serve":
		err = runServe(ctx)
	case "init":
		err = runInit()
	case "health":
		err = runHealth(ctx)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func runServe(ctx context.Context) error {
	configPath := getConfigPath()

	cyan := color.New(color.FgCyan)
	cyan.Print(banner)

	gray := color.New(color.FgHiBlack)
	gray.Printf("    version: %s\n\n", version)

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := setupLogger(cfg.Logging)
	slog.SetDefault(logger)

	green := color.New(color.FgGreen)
	green.Print("    ▶ ")
	fmt.Printf("Config:   %s\n", configPath)
	green.Print("    ▶ ")
	fmt.Printf("HTTP:     %s\n", cfg.Server.HTTPAddr)
	green.Print("    ▶ ")
	fmt.Printf("Agent:    %s (%s)\n", cfg.Agent.Name, cfg.Agent.Model)
	green.Print("    ▶ ")
	fmt.Printf("Sessions: %s\n", sessionBackendLabel(cfg.Sessions))
	if cfg.Chart.Enabled {
		green.Print("    ▶ ")
		fmt.Printf("Charts:   %s\n", cfg.Chart.URL)
	}
	fmt.Println()

	logger.Info("starting mailbox-agent",
		"config", configPath,
		"http_addr", cfg.Server.HTTPAddr,
	)

	// Tool registry and the HTTP caller behind the built-in tools.
	registry := tools.NewRegistry(logger)
	caller := tools.NewCaller(tools.CallerConfig{
		Secret:  cfg.Tools.FunctionKey,
		Timeout: cfg.Tools.Timeout,
		Logger:  logger,
	})
	if err := tools.RegisterMailboxTools(registry, caller, cfg.Tools.MailboxURL, cfg.Tools.MessageTraceURL); err != nil {
		return fmt.Errorf("registering tools: %w", err)
	}

	// Agent backend. A failure here does not abort startup: the server
	// comes up degraded and reports the condition on /health.
	client, agent, initErr := initAgent(ctx, cfg, registry, logger)
	if initErr != nil {
		logger.Error("agent initialization failed, serving degraded", "error", initErr)
	}

	store, err := openSessionStore(cfg.Sessions)
	if err != nil {
		return fmt.Errorf("opening session store: %w", err)
	}
	defer store.Close()

	var threads session.ThreadService
	if client != nil {
		threads = client
	}
	sessions := session.NewManager(store, threads, logger)

	var driver web.TurnDriver
	if initErr == nil {
		driver = runner.NewDriver(runner.Config{
			Service:      client,
			Tools:        registry,
			AgentID:      agent.ID,
			PollInterval: cfg.Agent.PollInterval,
			RunTimeout:   cfg.Agent.RunTimeout,
			Logger:       logger,
		})
	}

	var renderer web.ChartRenderer
	if cfg.Chart.Enabled {
		renderer = chart.NewRenderer(chart.RendererConfig{
			Endpoint: cfg.Chart.URL,
			Timeout:  cfg.Chart.Timeout,
		}, logger)
	}

	var lister web.MessageLister
	if client != nil {
		lister = client
	}

	server := web.NewServer(web.Config{
		CookieSecret: cookieSecret(cfg.Server.CookieSecret, logger),
		InitError:    initErr,
	}, sessions, driver, renderer, lister, logger)

	mux := http.NewServeMux()
	server.RegisterRoutes(mux)

	httpServer := &http.Server{
		Addr:    cfg.Server.HTTPAddr,
		Handler: mux,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown failed", "error", err)
	}

	if cfg.Agent.DeleteOnShutdown && agent != nil {
		if err := client.DeleteAgent(shutdownCtx, agent.ID); err != nil {
			logger.Warn("failed to delete agent", "agent_id", agent.ID, "error", err)
		}
	}

	return nil
}

// initAgent builds the conversation service client and registers the
// agent definition with the tool schemas from the registry.
func initAgent(ctx context.Context, cfg *config.Config, registry *tools.Registry, logger *slog.Logger) (*agents.Client, *agents.Agent, error) {
	client, err := agents.NewClient(agents.ClientConfig{
		Endpoint: cfg.Agent.Endpoint,
		APIKey:   cfg.Agent.APIKey,
		Logger:   logger,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("creating client: %w", err)
	}

	agent, err := client.CreateAgent(ctx, agents.AgentSpec{
		Model:        cfg.Agent.Model,
		Name:         cfg.Agent.Name,
		Instructions: cfg.Agent.Instructions,
		Tools:        registry.Definitions(),
	})
	if err != nil {
		return client, nil, fmt.Errorf("creating agent: %w", err)
	}

	return client, agent, nil
}

func openSessionStore(cfg config.SessionsConfig) (session.Store, error) {
	if cfg.Backend == "sqlite" {
		return session.NewSQLiteStore(cfg.Path)
	}
	return session.NewMemoryStore(), nil
}

func sessionBackendLabel(cfg config.SessionsConfig) string {
	if cfg.Backend == "sqlite" {
		return "sqlite (" + cfg.Path + ")"
	}
	return "memory"
}

// cookieSecret returns the configured cookie signing secret, generating
// an ephemeral one when none is set. Ephemeral secrets invalidate all
// sessions on restart, so a warning is logged.
func cookieSecret(configured string, logger *slog.Logger) []byte {
	if configured != "" {
		return []byte(configured)
	}

	secret := make([]byte, 32)
	if _, err := rand.Read(secret); err != nil {
		panic(fmt.Sprintf("generating cookie secret: %v", err))
	}
	logger.Warn("server.cookie_secret not set, sessions will not survive restart")
	return secret
}

func setupLogger(cfg config.LoggingConfig) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level: level,
	}

	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = &colorHandler{
			level: level,
		}
	}

	return slog.New(handler)
}

// colorHandler provides colorized log output with thread-safe writes.
type colorHandler struct {
	mu     sync.Mutex
	level  slog.Level
	attrs  []slog.Attr
	groups []string
}

func (h *colorHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level
}

func (h *colorHandler) Handle(_ context.Context, r slog.Record) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	var buf strings.Builder

	buf.WriteString(color.HiBlackString(r.Time.Format("15:04:05") + " "))

	switch r.Level {
	case slog.LevelDebug:
		buf.WriteString(color.MagentaString("DBG "))
	case slog.LevelInfo:
		buf.WriteString(color.CyanString("INF "))
	case slog.LevelWarn:
		buf.WriteString(color.YellowString("WRN "))
	case slog.LevelError:
		buf.WriteString(color.New(color.FgRed, color.Bold).Sprint("ERR "))
	default:
		buf.WriteString("??? ")
	}

	buf.WriteString(r.Message)

	// Handler-level attrs first (from WithAttrs), then record attrs.
	for _, a := range h.attrs {
		buf.WriteString(color.HiBlackString(" " + a.Key + "="))
		buf.WriteString(a.Value.String())
	}
	r.Attrs(func(a slog.Attr) bool {
		buf.WriteString(color.HiBlackString(" " + a.Key + "="))
		buf.WriteString(a.Value.String())
		return true
	})

	buf.WriteString("\n")
	fmt.Print(buf.String())
	return nil
}

func (h *colorHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	newAttrs := make([]slog.Attr, len(h.attrs), len(h.attrs)+len(attrs))
	copy(newAttrs, h.attrs)
	newAttrs = append(newAttrs, attrs...)
	return &colorHandler{
		level:  h.level,
		attrs:  newAttrs,
		groups: h.groups,
	}
}

func (h *colorHandler) WithGroup(name string) slog.Handler {
	newGroups := make([]string, len(h.groups), len(h.groups)+1)
	copy(newGroups, h.groups)
	newGroups = append(newGroups, name)
	return &colorHandler{
		level:  h.level,
		attrs:  h.attrs,
		groups: newGroups,
	}
}

func runHealth(ctx context.Context) error {
	configPath := getConfigPath()

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	url := fmt.Sprintf("http://%s/health", cfg.Server.HTTPAddr)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unhealthy: status %d", resp.StatusCode)
	}

	fmt.Println("healthy")
	return nil
}

func runInit() error {
	configPath := getConfigPath()

	if _, err := os.Stat(configPath); err == nil {
		return fmt.Errorf("config already exists: %s", configPath)
	}

	if err := os.MkdirAll(filepath.Dir(configPath), 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	configContent := `# mailbox-agent configuration
# Generated by mailbox-agent init

server:
  http_addr: "localhost:8080"
  cookie_secret: "${MAILBOX_COOKIE_SECRET}"

agent:
  endpoint: "${PROJECT_ENDPOINT}"
  api_key: "${PROJECT_API_KEY}"
  model: "${MODEL_DEPLOYMENT_NAME}"
  name: "mailbox-agent"
  instructions: |
    You are a technical support agent.
    When a user asks for information about their mailbox, get their email
    address and use that value to call the function available to you.
    When a user asks for details about an email subject, extract the subject
    and call the function available to you to retrieve message trace details.

tools:
  mailbox_url: "${MAILBOX_FUNCTION_URL}"
  message_trace_url: "${MESSAGE_TRACE_FUNCTION_URL}"
  function_key: "${AZURE_FUNCTION_KEY}"

chart:
  enabled: true
  url: "http://localhost:8000/generate-chart"

sessions:
  backend: "memory"

logging:
  level: "info"
  format: "text"
`

	if err := os.WriteFile(configPath, []byte(configContent), 0600); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}

	green := color.New(color.FgGreen)
	green.Printf("  ✓ Created config: %s\n", configPath)
	fmt.Println("  Edit it (or set the referenced environment variables) and run: mailbox-agent serve")
	return nil
}
