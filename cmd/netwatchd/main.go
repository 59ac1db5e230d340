package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/rgledhill/netwatch/internal/archive"
	"github.com/rgledhill/netwatch/internal/bus"
	"github.com/rgledhill/netwatch/internal/channels"
	"github.com/rgledhill/netwatch/internal/config"
	"github.com/rgledhill/netwatch/internal/connection"
	"github.com/rgledhill/netwatch/internal/metrics"
	"github.com/rgledhill/netwatch/internal/version"
)

func main() {
	configPath := flag.String("config", "configs/netwatchd.yaml", "path to config file")
	flag.Parse()

	// Load configuration
	cfg, err := config.LoadAndValidate(*configPath)
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	// Set up structured logging
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel(cfg.Logging.Level),
	}))
	slog.SetDefault(logger)

	logger.Info("starting netwatchd",
		"version", version.Version,
		"commit", version.Commit,
		"config", *configPath,
	)
	logger.Info("configuration loaded",
		"instance_id", cfg.Instance.ID,
		"ws_url", cfg.Server.WSURL,
	)

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	// Message bus connects channels, archive, and any future consumers.
	b := bus.New(logger)
	defer b.Close()

	// Channel adapters
	topology := channels.NewTopology(
		connConfig(cfg, cfg.Channels.Topology),
		cfg.Channels.Topology.Subscriptions,
		b, logger,
	)
	metricsCh := channels.NewMetrics(
		connConfig(cfg, cfg.Channels.Metrics),
		cfg.Channels.Metrics.Subscriptions,
		b, logger,
	)
	alerts := channels.NewAlerts(
		connConfig(cfg, cfg.Channels.Alerts),
		b, logger,
	)

	// Event archive (optional)
	var writer *archive.Writer
	if cfg.Database.Enabled() {
		logger.Info("connecting to archive database",
			"host", cfg.Database.Host,
			"port", cfg.Database.Port,
			"database", cfg.Database.Name,
		)
		pool, err := archive.Connect(ctx, cfg.Database)
		if err != nil {
			logger.Error("failed to connect to database", "error", err)
			os.Exit(1)
		}
		defer pool.Close()

		writer = archive.NewWriter(cfg.Archive, cfg.Instance.ID, b, pool, logger)
		if err := writer.Start(ctx); err != nil {
			logger.Error("failed to start archive writer", "error", err)
			os.Exit(1)
		}
	} else {
		logger.Info("archive database not configured, events will not be persisted")
	}

	// Prometheus endpoint
	registry := metrics.NewRegistry(topology, metricsCh, alerts)
	metricsServer := metrics.NewServer(cfg.Metrics.Port, cfg.Metrics.Path, registry, logger)
	if err := metricsServer.Start(); err != nil {
		logger.Error("failed to start metrics server", "error", err)
		os.Exit(1)
	}

	// Connect the channels
	topology.Start()
	metricsCh.Start()
	alerts.Start()

	logger.Info("netwatchd running",
		"instance_id", cfg.Instance.ID,
		"channels", []string{topology.Name(), metricsCh.Name(), alerts.Name()},
	)

	// Wait for shutdown
	<-ctx.Done()

	logger.Info("shutting down...")

	topology.Stop()
	metricsCh.Stop()
	alerts.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	g, gctx := errgroup.WithContext(shutdownCtx)
	g.Go(func() error {
		return metricsServer.Stop(gctx)
	})
	if writer != nil {
		g.Go(func() error {
			return writer.Stop(gctx)
		})
	}
	if err := g.Wait(); err != nil {
		logger.Warn("shutdown incomplete", "error", err)
	}

	logger.Info("netwatchd stopped")
}

// connConfig builds the socket config for one channel from the shared
// connection settings and the channel's endpoint path.
func connConfig(cfg *config.Config, ch config.ChannelConfig) connection.Config {
	c := connection.DefaultConfig()
	c.URL = channels.ResolveEndpoint(cfg.Server.WSURL, ch.Path)
	if cfg.Connection.AutoReconnect != nil {
		c.AutoReconnect = *cfg.Connection.AutoReconnect
	}
	c.MaxReconnectAttempts = cfg.Connection.MaxReconnectAttempts
	c.ReconnectBaseDelay = cfg.Connection.ReconnectBaseDelay
	c.ReconnectMaxDelay = cfg.Connection.ReconnectMaxDelay
	c.HeartbeatInterval = cfg.Connection.HeartbeatInterval
	c.ConnectTimeout = cfg.Connection.ConnectTimeout
	c.WriteTimeout = cfg.Connection.WriteTimeout
	c.HistorySize = cfg.Connection.HistorySize
	return c
}

func logLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
