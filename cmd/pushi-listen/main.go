// pushi-listen connects to a Pushi server, subscribes to the configured
// channels and prints every event it receives.
// Usage: go run ./cmd/pushi-listen --config configs/pushi.example.yaml
//
// Private channels need either server.auth_endpoint or the app secret
// (PUSHI_APP_SECRET in the example config).
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/hivesolutions/pushi-go/internal/config"
	"github.com/hivesolutions/pushi-go/internal/metrics"
	"github.com/hivesolutions/pushi-go/internal/pushi"
	"github.com/hivesolutions/pushi-go/internal/version"
)

func main() {
	configPath := flag.String("config", "configs/pushi.example.yaml", "path to config file")
	events := flag.String("events", "message", "comma separated application events to print")
	latest := flag.Int("latest", 0, "fetch this many stored messages per channel after subscribing")
	login := flag.Bool("login", false, "open a web API session with app.id and app.secret")
	verbose := flag.Bool("verbose", false, "print full event JSON")
	flag.Parse()

	// Load configuration
	cfg, err := config.LoadAndValidate(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Setup logger
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.Log.SlogLevel(),
	}))
	slog.SetDefault(logger)

	logger.Info("starting pushi-listen",
		"version", version.Version,
		"commit", version.Commit,
		"config", *configPath,
		"base_url", cfg.Server.BaseURL,
	)

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	collector := metrics.New(registry)

	pushiCfg, err := cfg.ToPushi(logger, collector)
	if err != nil {
		logger.Error("failed to build connection config", "error", err)
		os.Exit(1)
	}

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

	conn := pushi.New(cfg.App.Key, pushiCfg)

	// Channels are dropped on every disconnect, subscribe again on connect.
	conn.Bind(pushi.EventConnect, func(string, ...any) {
		logger.Info("connected", "socket_id", conn.SocketID())
		for _, name := range cfg.Channels {
			subscribe(conn, name, *latest, logger)
		}
	})
	conn.Bind(pushi.EventDisconnect, func(string, ...any) {
		logger.Warn("disconnected, waiting for reconnect", "timeout", conn.Timeout())
	})
	conn.Bind(pushi.EventMemberAdded, printMember("MEMBER+"))
	conn.Bind(pushi.EventMemberRemoved, printMember("MEMBER-"))
	for _, name := range strings.Split(*events, ",") {
		if name = strings.TrimSpace(name); name != "" {
			conn.Bind(name, printEvent(*verbose))
		}
	}

	if *login {
		loginCtx, loginCancel := context.WithTimeout(ctx, 30*time.Second)
		err := conn.Login(loginCtx)
		loginCancel()
		if err != nil {
			logger.Error("web API login failed", "error", err)
			os.Exit(1)
		}
		logger.Info("web API session opened", "url", conn.API().BaseURL())
	}

	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Metrics.Port),
		Handler: createHandler(conn, registry, cfg.Metrics.Path),
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("starting metrics server", "port", cfg.Metrics.Port, "path", cfg.Metrics.Path)
		if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("metrics server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down...")

		if !closeConnection(conn, 5*time.Second) {
			logger.Warn("connection did not close in time")
		}

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		return server.Shutdown(shutdownCtx)
	})

	logger.Info("listening - press Ctrl+C to stop", "channels", cfg.Channels)

	if err := g.Wait(); err != nil {
		logger.Error("pushi-listen stopped with error", "error", err)
		os.Exit(1)
	}
	logger.Info("pushi-listen stopped")
}

// closeConnection closes conn and waits up to timeout for the transport to
// report the close. A handle that is not connected returns at once.
func closeConnection(conn *pushi.Connection, timeout time.Duration) bool {
	if conn.State() != pushi.StateConnected {
		return true
	}
	closed := make(chan struct{})
	conn.Close(func() { close(closed) })
	select {
	case <-closed:
		return true
	case <-time.After(timeout):
		return false
	}
}

func subscribe(conn *pushi.Connection, name string, latest int, logger *slog.Logger) {
	_, err := conn.Subscribe(name, false, func(_ string, args ...any) {
		logger.Info("subscribed", "channel", name)
		if latest <= 0 {
			return
		}
		if _, err := conn.Latest(name, 0, latest, printLatest(name)); err != nil {
			logger.Warn("latest request failed", "channel", name, "error", err)
		}
	})
	if err != nil {
		logger.Error("subscribe failed", "channel", name, "error", err)
	}
}

func printEvent(verbose bool) func(string, ...any) {
	return func(name string, args ...any) {
		var data json.RawMessage
		var channel, mid string
		if len(args) == 4 {
			data, _ = args[0].(json.RawMessage)
			channel, _ = args[1].(string)
			mid, _ = args[2].(string)
		}
		if verbose {
			fmt.Printf("[%s] channel=%s mid=%s data=%s\n", name, channel, mid, data)
			return
		}
		fmt.Printf("[%s] channel=%s bytes=%d\n", name, channel, len(data))
	}
}

func printMember(tag string) func(string, ...any) {
	return func(_ string, args ...any) {
		if len(args) == 2 {
			fmt.Printf("[%s] channel=%v member=%s\n", tag, args[0], args[1])
		}
	}
}

func printLatest(channel string) func(string, ...any) {
	return func(_ string, args ...any) {
		if len(args) == 1 {
			fmt.Printf("[LATEST] channel=%s data=%s\n", channel, args[0])
		}
	}
}

// createHandler serves metrics and a health check reporting the connection state.
func createHandler(conn *pushi.Connection, registry *prometheus.Registry, metricsPath string) http.Handler {
	mux := http.NewServeMux()

	mux.Handle(metricsPath, promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		state := conn.State()
		status := http.StatusOK
		if state != pushi.StateConnected {
			status = http.StatusServiceUnavailable
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		json.NewEncoder(w).Encode(map[string]any{
			"state":     state,
			"socket_id": conn.SocketID(),
			"channels":  conn.Channels(),
			"version":   version.String(),
		})
	})

	return mux
}
