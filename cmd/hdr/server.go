package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/mark3labs/mcp-go/server"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"golang.org/x/time/rate"

	"github.com/readyhouston/hdr/internal/api"
	"github.com/readyhouston/hdr/internal/chat"
	"github.com/readyhouston/hdr/internal/config"
	"github.com/readyhouston/hdr/internal/knowledge"
	"github.com/readyhouston/hdr/internal/observability"
	"github.com/readyhouston/hdr/internal/profile"
	"github.com/readyhouston/hdr/internal/proxy"
	"github.com/readyhouston/hdr/internal/search"
	"github.com/readyhouston/hdr/internal/storage"
)

const (
	maxSessions     = 1000
	sessionIdleTTL  = 30 * time.Minute
	searchCacheSize = 256
	shutdownTimeout = 5 * time.Second
)

var startCmd = &cobra.Command{
	Use:     "serve",
	Aliases: []string{"start"},
	Short:   "Start the hdr server (foreground)",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServer()
	},
}

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the running hdr server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return stopServer()
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show hdr system status",
	RunE: func(cmd *cobra.Command, args []string) error {
		return showStatus(cmd.Context())
	},
}

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve the assistant over MCP (stdio transport)",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runMCP()
	},
}

func pidFilePath(dataDir string) string {
	return filepath.Join(dataDir, "hdr.pid")
}

func writePIDFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())), 0o644)
}

func readPIDFile(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(strings.TrimSpace(string(data)))
}

func removePIDFile(path string) {
	os.Remove(path)
}

// services holds the long-lived components shared by the HTTP and MCP
// servers.
type services struct {
	store     *storage.Store
	profile   *profile.Manager
	knowledge *knowledge.Base
	llm       *proxy.Client
	assistant *chat.Assistant
	sessions  *chat.Sessions
}

// newServices opens storage and builds the server-side assistant. Its only
// tier is the direct LLM tier: the server is itself the proxy.
func newServices(cfg config.Config, logger *slog.Logger, metrics *observability.Metrics) (*services, error) {
	kb, err := knowledge.Load()
	if err != nil {
		return nil, fmt.Errorf("loading knowledge base: %w", err)
	}

	store, err := storage.Open(cfg.Storage.DataDir)
	if err != nil {
		return nil, fmt.Errorf("opening storage: %w", err)
	}

	clock := clockwork.NewRealClock()
	llm := proxy.NewClientWithBaseURL(cfg.LLM.APIKey, cfg.LLM.BaseURL).WithTimeout(cfg.Chat.Timeout)
	searcher := search.NewCachedClient(
		search.NewClient(cfg.Search.APIKey, cfg.Search.BaseURL, 0, logger, metrics),
		searchCacheSize, cfg.Search.CacheTTL, clock, metrics,
	)
	assistant := chat.New(chat.Options{
		Tiers:   []chat.Tier{chat.NewDirectTier(llm, cfg.LLM.Model, metrics)},
		Search:  searcher,
		Logger:  logger,
		Metrics: metrics,
	})

	return &services{
		store:     store,
		profile:   profile.NewManager(store),
		knowledge: kb,
		llm:       llm,
		assistant: assistant,
		sessions:  chat.NewSessions(maxSessions, sessionIdleTTL, clock, api.TranscriptLoader(store)),
	}, nil
}

func (s *services) Close() error {
	return s.store.Close()
}

func loadServerConfig() (config.Config, *slog.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return config.Config{}, nil, err
	}
	logger := observability.NewLogger(os.Stderr, cfg.Log.Level, cfg.Log.Format)
	slog.SetDefault(logger)

	if err := config.EnsureAdminToken(&cfg); err != nil {
		return config.Config{}, nil, fmt.Errorf("initializing admin token: %w", err)
	}
	for _, env := range config.Missing(cfg) {
		logger.Warn("secret not configured, running degraded", "env", env)
	}
	return cfg, logger, nil
}

func runServer() error {
	fmt.Fprintf(os.Stderr, "hdr version %s\n", version)

	cfg, logger, err := loadServerConfig()
	if err != nil {
		return err
	}

	// Write PID file. Check if server is already running via health endpoint.
	pidPath := pidFilePath(cfg.Storage.DataDir)
	healthClient := &http.Client{Timeout: 2 * time.Second}
	if resp, err := healthClient.Get("http://" + cfg.Addr() + "/api/health"); err == nil {
		resp.Body.Close()
		if pid, pidErr := readPIDFile(pidPath); pidErr == nil {
			printWarning("hdr is already running (PID %d)", pid)
			return fmt.Errorf("server already running (PID %d)", pid)
		}
		printWarning("hdr is already running on %s", cfg.Addr())
		return fmt.Errorf("server already running on %s", cfg.Addr())
	}
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("writing PID file: %w", err)
	}
	defer removePIDFile(pidPath)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	metrics := observability.NewMetrics()
	svc, err := newServices(cfg, logger, metrics)
	if err != nil {
		return err
	}
	defer func() {
		if err := svc.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "warning: closing storage: %v\n", err)
		}
	}()
	svc.assistant.Init()

	handler := api.NewHandler(api.Deps{
		Public: api.PublicConfig{
			GoogleMapsAPIKey: cfg.Maps.APIKey,
			AppEnv:           cfg.App.Env,
			Debug:            cfg.App.Debug,
		},
		LLM:        svc.llm,
		Model:      cfg.LLM.Model,
		Assistant:  svc.assistant,
		Sessions:   svc.sessions,
		Store:      svc.store,
		Profile:    svc.profile,
		Knowledge:  svc.knowledge,
		AdminToken: cfg.Admin.Token,
		RateLimit:  rate.Limit(cfg.Chat.RateLimit),
		RateBurst:  cfg.Chat.RateBurst,
		Metrics:    metrics,
		Gatherer:   prometheus.DefaultGatherer,
		Logger:     logger,
	})

	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext: func(_ net.Listener) context.Context {
			return ctx
		},
	}

	// Start server in a goroutine.
	errCh := make(chan error, 1)
	go func() {
		logger.Info("hdr listening", "addr", cfg.Addr())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	// Wait for signal or server error.
	select {
	case <-ctx.Done():
		fmt.Fprintln(os.Stderr, "shutting down...")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	}

	// Graceful shutdown with timeout.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// runMCP serves the MCP tools on stdin/stdout. Logs go to stderr so they
// never corrupt the protocol stream.
func runMCP() error {
	cfg, logger, err := loadServerConfig()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	svc, err := newServices(cfg, logger, nil)
	if err != nil {
		return err
	}
	defer svc.Close()

	mcpSrv := api.NewMCPServer(api.MCPDeps{
		Assistant: svc.assistant,
		Sessions:  svc.sessions,
		Profile:   svc.profile,
		Knowledge: svc.knowledge,
		Store:     svc.store,
		Logger:    logger,
	})
	logger.Info("MCP server started (stdio transport)")

	stdioSrv := server.NewStdioServer(mcpSrv)
	if err := stdioSrv.Listen(ctx, os.Stdin, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("MCP stdio server: %w", err)
	}
	return nil
}

func stopServer() error {
	cfg, err := config.Load()
	if err != nil {
		printError("could not load config: %v", err)
		return err
	}

	pidPath := pidFilePath(cfg.Storage.DataDir)
	pid, err := readPIDFile(pidPath)
	if err != nil {
		printError("hdr is not running (no PID file)")
		return fmt.Errorf("not running: %w", err)
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		printError("could not find process %d", pid)
		return err
	}

	if err := process.Signal(syscall.SIGTERM); err != nil {
		printError("could not stop hdr (PID %d): %v", pid, err)
		removePIDFile(pidPath)
		return err
	}

	printSuccess("Sent stop signal to hdr (PID %d)", pid)
	return nil
}

type readiness struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
	Tiers  map[string]bool   `json:"tiers"`
}

func showStatus(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		// Still show partial status even if config fails.
		printError("config error: %v", err)
		return nil
	}

	client, err := newAPIClient()
	if err != nil {
		printError("%v", err)
		return nil
	}
	client.httpClient.Timeout = 3 * time.Second

	running := false
	if resp, err := client.get(ctx, "/api/ready"); err != nil {
		printStatus("Server", "stopped")
	} else {
		var r readiness
		decodeErr := json.NewDecoder(resp.Body).Decode(&r)
		resp.Body.Close()
		switch {
		case decodeErr != nil:
			printStatus("Server", "error (HTTP %d)", resp.StatusCode)
		default:
			running = true
			printStatus("Server", "%s on %s", r.Status, cfg.Addr())
			for _, name := range []string{"store", "llm", "search"} {
				if v, ok := r.Checks[name]; ok {
					printStatus("  "+name, "%s", v)
				}
			}
		}
	}

	secrets := config.SecretStatus(cfg)
	printStatus("LLM", "%s (%s)", cfg.LLM.Model, configured(secrets["MISTRAL_API_KEY"]))
	printStatus("Search", "%s", configured(secrets["TAVILY_API_KEY"]))
	printStatus("Maps key", "%s", configured(secrets["GOOGLE_MAPS_API_KEY"]))
	if cfg.Chat.ProxyURL != "" {
		printStatus("Chat proxy", "%s", cfg.Chat.ProxyURL)
	}

	if running {
		resp, err := client.get(ctx, "/api/interactions?limit=100")
		if err == nil {
			var interactions []json.RawMessage
			if decodeJSON(resp, &interactions) == nil {
				printStatus("Interactions", "%s", countLabel(len(interactions), 100))
			}
		}
	}

	printStatus("Data dir", "%s", cfg.Storage.DataDir)
	return nil
}

func configured(ok bool) string {
	if ok {
		return "configured"
	}
	return "missing"
}

func countLabel(count, limit int) string {
	if count >= limit {
		return fmt.Sprintf("%d+", count)
	}
	return fmt.Sprintf("%d", count)
}
