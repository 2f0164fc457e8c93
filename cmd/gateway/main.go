// Command gateway runs the Broadcaster: it bridges stream:chat.ingest to
// WebSocket-subscribed clients and republishes accepted messages onto
// stream:chat.firehose. Grounded on the teacher's cmd/root.go +
// cmd/gateway.go split (persistent --config/--verbose flags, a single Run
// that builds and starts the service, signal-driven graceful shutdown).
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/chatsim/chatsim/internal/busadapter"
	"github.com/chatsim/chatsim/internal/config"
	"github.com/chatsim/chatsim/internal/gateway"
	"github.com/chatsim/chatsim/internal/policy"
	"github.com/chatsim/chatsim/internal/safety"
	"github.com/chatsim/chatsim/internal/schema"
	"github.com/chatsim/chatsim/internal/svcctx"
	"github.com/chatsim/chatsim/internal/telemetry"
)

var (
	cfgPath string
	verbose bool
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "gateway",
		Short: "Chat Gateway / Broadcaster",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context())
		},
	}
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "", "config file (default: config.json5 or $CHATSIM_CONFIG)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	ctx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		slog.Info("gateway: shutdown signal received", "signal", sig)
		cancel()
	}()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		cancel()
		os.Exit(1)
	}
	cancel()
}

func run(ctx context.Context) error {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level})))

	cfg, err := config.Load(resolveConfigPath())
	if err != nil {
		return fmt.Errorf("gateway: load config: %w", err)
	}

	shutdown, err := telemetry.InitTracerProvider(ctx, cfg.Telemetry.ServiceName+"-gateway", cfg.Telemetry.OTLPEndpoint)
	if err != nil {
		return fmt.Errorf("gateway: init tracer: %w", err)
	}
	defer shutdown(context.Background())

	bus, err := busadapter.New(ctx, cfg.Redis.URL)
	if err != nil {
		return fmt.Errorf("gateway: connect redis: %w", err)
	}
	defer bus.Close()

	// The Broadcaster never reads the Memory Adapter (only the Persona
	// Worker does) so the gateway process doesn't open a store at all.
	svc := svcctx.New(
		bus,
		schema.Default(),
		safety.NewFilter(cfg.Safety.MaxChars, cfg.Safety.Blocklist),
		nil,
		nil,
		policy.NewEngine(policy.DefaultConfig()),
		cfg.Concurrency.MaxLLMConcurrency,
		cfg.Concurrency.MaxMemConcurrency,
	)

	srv := gateway.NewServer(gateway.Config{
		Host:           cfg.Gateway.Host,
		Port:           cfg.Gateway.Port,
		AllowedOrigins: cfg.Gateway.AllowedOrigins,
		GraceS:         cfg.Gateway.GraceS,
	}, svc)

	slog.Info("gateway starting", "addr", fmt.Sprintf("%s:%d", cfg.Gateway.Host, cfg.Gateway.Port))
	return srv.Start(ctx)
}

func resolveConfigPath() string {
	if cfgPath != "" {
		return cfgPath
	}
	if v := os.Getenv("CHATSIM_CONFIG"); v != "" {
		return v
	}
	return "config.json5"
}
