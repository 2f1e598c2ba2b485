// Package main is the entry point for the candlewatch alert engine.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/candlewatch/engine/internal/alert"
	"github.com/candlewatch/engine/internal/api"
	"github.com/candlewatch/engine/internal/config"
	cronrunner "github.com/candlewatch/engine/internal/cron"
	"github.com/candlewatch/engine/internal/detector"
	"github.com/candlewatch/engine/internal/ingest"
	"github.com/candlewatch/engine/internal/metrics"
	"github.com/candlewatch/engine/internal/pool"
	"github.com/candlewatch/engine/internal/ui"
)

const (
	// MetricsCleanupInterval is how often stale metrics are pruned
	MetricsCleanupInterval = 5 * time.Minute
	// ShutdownTimeout bounds graceful shutdown of the HTTP server and sink
	ShutdownTimeout = 10 * time.Second
	// StatsTopMovers is how many movers the status API returns
	StatsTopMovers = 20
)

// alertSink is a sink that can flush in-flight deliveries.
type alertSink interface {
	alert.Sink
	Close(ctx context.Context) error
}

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	// Initialize structured logger
	logger := setupLogger(cfg.LogLevel)
	slog.SetDefault(logger)

	slog.Info("candlewatch starting",
		"version", "1.0.0",
	)

	thresholds, err := detector.NewThresholdTable(cfg.ThresholdTable(), cfg.FallbackThreshold())
	if err != nil {
		slog.Error("invalid thresholds", "error", err)
		os.Exit(1)
	}

	// Log configuration (secrets masked)
	slog.Info("config_loaded",
		"exchange_info_url", cfg.ExchangeInfoURL,
		"stream_url", cfg.StreamURL,
		"quote_asset", cfg.QuoteAsset,
		"timeframes", strings.Join(cfg.Timeframes, ","),
		"shard_size", cfg.ShardSize,
		"thresholds", thresholds.String(),
		"reconnect_delay", cfg.ReconnectDelay,
		"discovery_retry_delay", cfg.DiscoveryRetryDelay,
		"dedup_reset_schedule", cfg.DedupResetSchedule,
		"dedup_max_entries", cfg.DedupMaxEntries,
		"telegram_token", cfg.MaskedTelegramToken(),
		"telegram_chat_id", cfg.MaskedTelegramChatID(),
		"alert_dry_run", cfg.AlertDryRun,
		"http_addr", cfg.HTTPAddr,
		"enable_tui", cfg.EnableTUI,
	)

	// Setup graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	// Initialize metrics tracker
	tracker := metrics.NewTracker()

	// Start periodic cleanup
	go func() {
		ticker := time.NewTicker(MetricsCleanupInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				tracker.Cleanup()
			}
		}
	}()

	sink, err := newSink(cfg)
	if err != nil {
		slog.Error("failed to initialize alert sink", "error", err)
		os.Exit(1)
	}

	// Start the pool loop, then request the first discovery
	p := pool.New(pool.Options{
		StreamURL:           cfg.StreamURL,
		Timeframes:          cfg.Timeframes,
		ShardSize:           cfg.ShardSize,
		ReconnectDelay:      cfg.ReconnectDelay,
		DiscoveryRetryDelay: cfg.DiscoveryRetryDelay,
	},
		ingest.NewCatalog(cfg.ExchangeInfoURL, cfg.QuoteAsset, cfg.DiscoveryTimeout),
		ingest.NewWSDialer(cfg.HandshakeTimeout, cfg.ReadTimeout),
		detector.NewEngine(thresholds, cfg.DedupMaxEntries),
		sink,
		tracker,
	)

	poolDone := make(chan struct{})
	go func() {
		defer close(poolDone)
		p.Run(ctx)
	}()
	p.Start()

	// Schedule the dedup table reset
	scheduler := cronrunner.New(ctx)
	if _, err := scheduler.AddDedupReset(cfg.DedupResetSchedule, p); err != nil {
		slog.Error("invalid dedup reset schedule", "error", err)
		os.Exit(1)
	}
	scheduler.Start()

	// Start the status API
	var srv *http.Server
	if cfg.HTTPAddr != "" {
		handler := &api.StatusHandler{Pool: p, Tracker: tracker, TopMovers: StatsTopMovers}
		srv = &http.Server{
			Addr:              cfg.HTTPAddr,
			Handler:           api.NewRouter(handler, strings.EqualFold(cfg.LogLevel, "DEBUG")),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			slog.Info("http_server_starting", "addr", cfg.HTTPAddr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				slog.Error("http_server_error", "error", err)
				cancel()
			}
		}()
	}

	slog.Info("engine_started",
		"status", "discovering instruments",
		"tui_enabled", cfg.EnableTUI,
	)

	// Start TUI or run in background mode
	if cfg.EnableTUI {
		slog.Info("starting_tui")
		app := ui.NewApp(p, tracker, cfg.UIRefreshRate())

		// Run the TUI in a goroutine so signals are still handled
		go func() {
			if err := app.Run(); err != nil {
				slog.Error("tui_error", "error", err)
			}
			cancel()
		}()

		select {
		case sig := <-sigChan:
			slog.Info("shutdown_signal_received", "signal", sig.String())
		case <-ctx.Done():
		}
		app.Stop()
	} else {
		select {
		case sig := <-sigChan:
			slog.Info("shutdown_signal_received", "signal", sig.String())
		case <-ctx.Done():
		}
	}

	// Graceful shutdown
	slog.Info("shutting_down", "status", "stopping scheduler")
	scheduler.Stop()

	slog.Info("shutting_down", "status", "closing shards")
	p.Close()
	cancel()
	<-poolDone

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), ShutdownTimeout)
	defer shutdownCancel()

	if srv != nil {
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Warn("http_server_shutdown_failed", "error", err)
		}
	}

	if err := sink.Close(shutdownCtx); err != nil {
		slog.Warn("alert_sink_drain_failed", "error", err)
	}

	slog.Info("shutdown_complete")
}

// newSink returns the Telegram sink, or a logging sink on dry runs.
func newSink(cfg *config.Config) (alertSink, error) {
	if cfg.AlertDryRun {
		slog.Warn("alert_dry_run_enabled", "status", "alerts are logged only")
		return alert.LogSink{}, nil
	}
	sink, err := alert.NewTelegramSink(alert.TelegramOptions{
		Token:   cfg.TelegramToken,
		ChatID:  cfg.TelegramChatID,
		APIURL:  cfg.TelegramAPIURL,
		Timeout: cfg.AlertTimeout,
	})
	if err != nil {
		return nil, err
	}
	return sink, nil
}

// setupLogger creates a structured logger with the specified level.
// Format: 2025-01-04 14:32:01 [INFO]  message key=value
func setupLogger(levelStr string) *slog.Logger {
	var level slog.Level
	switch strings.ToUpper(levelStr) {
	case "DEBUG":
		level = slog.LevelDebug
	case "INFO":
		level = slog.LevelInfo
	case "WARN", "WARNING":
		level = slog.LevelWarn
	case "ERROR":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level: level,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey {
				if t, ok := a.Value.Any().(time.Time); ok {
					a.Value = slog.StringValue(t.Format("2006-01-02 15:04:05"))
				}
			}
			return a
		},
	}

	handler := slog.NewTextHandler(os.Stdout, opts)
	return slog.New(handler)
}
