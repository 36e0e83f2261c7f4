package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/auraos/orchestrator/internal/catalog"
	"github.com/auraos/orchestrator/internal/engine"
	"github.com/auraos/orchestrator/internal/logging"
	"github.com/auraos/orchestrator/internal/metrics"
	"github.com/auraos/orchestrator/internal/provider"
	"github.com/auraos/orchestrator/internal/store"
	"github.com/auraos/orchestrator/pkg/mcp"
)

func newServeCommand(configFile *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the orchestrator, optionally exposing MCP tools on stdio",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			v, err := newViper(*configFile)
			if err != nil {
				return err
			}
			if err := bindFlags(v, cmd, map[string]string{
				"log_level":     "log-level",
				"log_format":    "log-format",
				"db_path":       "db-path",
				"metrics_addr":  "metrics-addr",
				"workflows_dir": "workflows-dir",
				"seed_builtin":  "seed-builtin",
				"mcp":           "mcp",
				"provider":      "provider",
			}); err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, v, cmd.ErrOrStderr())
		},
	}

	f := cmd.Flags()
	f.String("log-level", "", "log level: debug, info, warn, error")
	f.String("log-format", "", "log format: text or json")
	f.String("db-path", "", "libSQL database path (empty setting disables persistence)")
	f.String("metrics-addr", "", "serve Prometheus metrics on this address, e.g. :9464")
	f.String("workflows-dir", "", "directory of extra workflow definitions")
	f.Bool("seed-builtin", true, "register the built-in workflows missing from the store")
	f.Bool("mcp", true, "serve MCP tools on stdio")
	f.String("provider", "", "content provider: unwired or static:<text>")
	return cmd
}

// bindFlags binds config keys to flags so that only flags set on the
// command line override lower layers.
func bindFlags(v *viper.Viper, cmd *cobra.Command, keys map[string]string) error {
	for key, flag := range keys {
		if err := v.BindPFlag(key, cmd.Flags().Lookup(flag)); err != nil {
			return fmt.Errorf("bind flag %s: %w", flag, err)
		}
	}
	return nil
}

func runServe(ctx context.Context, v *viper.Viper, logOut io.Writer) error {
	cfg, err := loadConfig(v)
	if err != nil {
		return err
	}

	level := new(slog.LevelVar)
	level.Set(logging.ParseLevel(cfg.LogLevel))
	logger := logging.NewWithLevel(logOut, level, cfg.LogFormat)
	slog.SetDefault(logger)

	recorder := metrics.NewRecorder()
	orcCfg, err := engineConfig(cfg, recorder, logger)
	if err != nil {
		return err
	}

	if cfg.DBPath != "" {
		st, err := openStore(ctx, cfg.DBPath)
		if err != nil {
			return err
		}
		defer st.Close()
		orcCfg.Persister = st
		logger.Info("persistence enabled", slog.String("db_path", cfg.DBPath))
	}

	orc, err := engine.New(orcCfg)
	if err != nil {
		return fmt.Errorf("create orchestrator: %w", err)
	}
	orc.SubscribeToWorkflowUpdates(recorder.ObserveSnapshot)

	loaded, err := orc.LoadFromStore(ctx)
	if err != nil {
		return fmt.Errorf("load workflows: %w", err)
	}
	seeded, err := seedWorkflows(ctx, orc, cfg)
	if err != nil {
		return err
	}
	logger.Info("workflows registered", slog.Int("from_store", loaded), slog.Int("seeded", seeded))

	if cfg.MetricsAddr != "" {
		srv := startMetricsServer(cfg.MetricsAddr, recorder, logger)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	if err := orc.Start(ctx); err != nil {
		return fmt.Errorf("start orchestrator: %w", err)
	}
	defer orc.Stop()

	watchConfig(v, cfg, level, logger)

	if !cfg.MCP {
		logger.Info("orchestrator running; MCP disabled")
		<-ctx.Done()
		return nil
	}

	server := mcp.NewAuraServer(mcp.AuraServerDeps{Orchestrator: orc, Version: version, Logger: logger})
	detach := mcp.NewNotifier(server.MCPServer(), logger).Attach(orc)
	defer detach()

	logger.Info("serving MCP on stdio")
	if err := server.Serve(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("mcp server: %w", err)
	}
	return nil
}

// engineConfig maps the server settings onto engine.Config. Persistence is
// added by the caller once the store is open.
func engineConfig(cfg Config, observer engine.Observer, logger *slog.Logger) (engine.Config, error) {
	gen, err := provider.Parse(cfg.Provider)
	if err != nil {
		return engine.Config{}, fmt.Errorf("provider: %w", err)
	}
	kind, _, _ := strings.Cut(cfg.Provider, ":")
	if kind == "" {
		kind = "unwired"
	}
	logger.Info("content provider", slog.String("provider", strings.ToLower(kind)))

	return engine.Config{
		Provider:          gen,
		Observer:          observer,
		Logger:            logger,
		CycleInterval:     cfg.CycleInterval,
		OptimizeInterval:  cfg.OptimizeInterval,
		BroadcastInterval: cfg.BroadcastInterval,
		HistoryTail:       cfg.HistoryTail,
	}, nil
}

func openStore(ctx context.Context, dbPath string) (*store.LibSQLStore, error) {
	dir := filepath.Dir(strings.TrimPrefix(dbPath, "file:"))
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("create %s: %w", dir, err)
	}
	st, err := store.Open(ctx, dbPath)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	return st, nil
}

// seedWorkflows registers the built-ins that are not already present, then
// every definition in WorkflowsDir, which replaces same-ID definitions. A
// replaced workflow keeps its status, performance and creation time.
func seedWorkflows(ctx context.Context, orc *engine.Orchestrator, cfg Config) (int, error) {
	seeded := 0
	if cfg.SeedBuiltin {
		builtins, err := catalog.Builtins()
		if err != nil {
			return 0, fmt.Errorf("load built-in workflows: %w", err)
		}
		for _, wf := range builtins {
			if _, err := orc.Workflow(wf.ID); err == nil {
				continue
			}
			if err := orc.RegisterWorkflow(ctx, wf); err != nil {
				return seeded, fmt.Errorf("register built-in %s: %w", wf.ID, err)
			}
			seeded++
		}
	}

	custom, err := catalog.LoadDir(cfg.WorkflowsDir)
	if err != nil {
		return seeded, err
	}
	for _, wf := range custom {
		if existing, err := orc.Workflow(wf.ID); err == nil {
			wf.Status = existing.Status
			wf.Performance = existing.Performance
			wf.CreatedAt = existing.CreatedAt
		}
		if err := orc.RegisterWorkflow(ctx, wf); err != nil {
			return seeded, fmt.Errorf("register %s: %w", wf.ID, err)
		}
		seeded++
	}
	return seeded, nil
}

func startMetricsServer(addr string, recorder *metrics.Recorder, logger *slog.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", recorder.Handler())
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		logger.Info("metrics listening", slog.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server failed", slog.String("error", err.Error()))
		}
	}()
	return srv
}

// watchConfig applies log level changes from the settings file live and
// warns about fields that only take effect after a restart.
func watchConfig(v *viper.Viper, current Config, level *slog.LevelVar, logger *slog.Logger) {
	if v.ConfigFileUsed() == "" {
		return
	}
	if _, err := os.Stat(v.ConfigFileUsed()); err != nil {
		return
	}
	v.OnConfigChange(func(e fsnotify.Event) {
		next, err := loadConfig(v)
		if err != nil {
			logger.Warn("ignoring invalid config change", slog.String("file", e.Name), slog.String("error", err.Error()))
			return
		}
		d := diffConfigs(current, next)
		if d.LogLevelChanged {
			level.Set(logging.ParseLevel(next.LogLevel))
			logger.Info("log level changed", slog.String("level", next.LogLevel))
		}
		if len(d.RestartNeeded) > 0 {
			logger.Warn("config change needs a restart", slog.Any("fields", d.RestartNeeded))
		}
		current = next
	})
	v.WatchConfig()
}
