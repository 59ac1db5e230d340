// channeltap connects to one realtime channel and streams parsed messages
// to the console. Useful for checking what a backend actually sends.
//
// Usage: go run ./cmd/channeltap --config configs/netwatchd.yaml --channel topology
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rgledhill/netwatch/internal/bus"
	"github.com/rgledhill/netwatch/internal/channels"
	"github.com/rgledhill/netwatch/internal/config"
	"github.com/rgledhill/netwatch/internal/connection"
	"github.com/rgledhill/netwatch/internal/envelope"
)

func main() {
	configPath := flag.String("config", "configs/netwatchd.yaml", "path to config file")
	channel := flag.String("channel", "topology", "channel to tap: topology, metrics, or alerts")
	urlOverride := flag.String("url", "", "connect to this ws:// URL instead of the configured endpoint")
	verbose := flag.Bool("verbose", false, "print full message JSON")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))

	cfg, err := config.LoadAndValidate(*configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	path := ""
	switch *channel {
	case channels.NameTopology:
		path = cfg.Channels.Topology.Path
	case channels.NameMetrics:
		path = cfg.Channels.Metrics.Path
	case channels.NameAlerts:
		path = cfg.Channels.Alerts.Path
	default:
		logger.Error("unknown channel", "channel", *channel)
		os.Exit(1)
	}

	url := channels.ResolveEndpoint(cfg.Server.WSURL, path)
	if *urlOverride != "" {
		url = *urlOverride
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("received shutdown signal")
		cancel()
	}()

	b := bus.New(logger)
	defer b.Close()

	connCfg := connection.DefaultConfig()
	connCfg.Name = *channel
	connCfg.URL = url
	connCfg.HistorySize = cfg.Connection.HistorySize

	conn := connection.New(connCfg, b, logger)
	messages := b.Subscribe(bus.ConnMessage(*channel))
	states := b.Subscribe(bus.ConnState(*channel))

	go printMessages(ctx, messages, *verbose)

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case msg := <-states:
				if sc, ok := msg.(connection.StateChange); ok {
					logger.Info("connection state", "state", sc.State, "error", sc.Err)
				}
			}
		}
	}()

	// Stats printer
	go func() {
		ticker := time.NewTicker(10 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				stats := conn.Stats()
				logger.Info("stats",
					"state", conn.State(),
					"received", stats.MessagesReceived,
					"sent", stats.MessagesSent,
					"reconnect_attempts", stats.ReconnectAttempts,
					"errors", len(stats.Errors),
				)
			}
		}
	}()

	logger.Info("tapping channel", "channel", *channel, "url", url)
	conn.Connect()

	<-ctx.Done()

	logger.Info("shutting down...")
	conn.Disconnect()
	logger.Info("shutdown complete")
}

func printMessages(ctx context.Context, messages bus.Subscription, verbose bool) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-messages:
			env, ok := msg.(envelope.Envelope)
			if !ok {
				continue
			}

			if env.IsRaw() {
				fmt.Printf("[RAW] %s\n", env.Text)
				continue
			}

			if verbose {
				var pretty any
				if err := json.Unmarshal(env.Data, &pretty); err == nil {
					data, _ := json.MarshalIndent(pretty, "", "  ")
					fmt.Printf("[%s] %s\n", env.Type, data)
					continue
				}
			}
			fmt.Printf("[%s] %d bytes at %s\n", env.Type, len(env.Data), env.ReceivedAt.Format(time.RFC3339))
		}
	}
}
