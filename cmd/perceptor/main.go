// Command perceptor runs the Stream Perceptor: it turns captured frames
// and ASR transcript segments into StreamObservation records on
// stream:observations. It never analyzes pixels or audio itself — only
// the publish contract is implemented here. Grounded on the teacher's
// cmd/root.go + cmd/gateway.go split, generalized to this binary's
// single-loop shape.
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
	"github.com/chatsim/chatsim/internal/perceptor"
	"github.com/chatsim/chatsim/internal/telemetry"
)

var (
	cfgPath string
	verbose bool
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "perceptor",
		Short: "Stream Perceptor",
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
		slog.Info("perceptor: shutdown signal received", "signal", sig)
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
		return fmt.Errorf("perceptor: load config: %w", err)
	}

	shutdown, err := telemetry.InitTracerProvider(ctx, cfg.Telemetry.ServiceName+"-perceptor", cfg.Telemetry.OTLPEndpoint)
	if err != nil {
		return fmt.Errorf("perceptor: init tracer: %w", err)
	}
	defer shutdown(context.Background())

	room, err := config.LoadRoom(cfg.RoomConfigPath)
	if err != nil {
		return fmt.Errorf("perceptor: load room config: %w", err)
	}

	bus, err := busadapter.New(ctx, cfg.Redis.URL)
	if err != nil {
		return fmt.Errorf("perceptor: connect redis: %w", err)
	}
	defer bus.Close()

	source, err := perceptor.NewFixtureSource(cfg.Perceptor.FixtureDir)
	if err != nil {
		return fmt.Errorf("perceptor: load fixtures: %w", err)
	}

	p := perceptor.New(bus, source, source, perceptor.Config{
		RoomID:     room.RoomID,
		IntervalMS: int64(cfg.Perceptor.IntervalMS),
	})

	slog.Info("perceptor starting", "room", room.RoomID, "fixture_dir", cfg.Perceptor.FixtureDir, "interval_ms", cfg.Perceptor.IntervalMS)
	return p.Run(ctx)
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
