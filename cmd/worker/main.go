// Command worker runs the Persona Worker pool for one room: it consumes
// stream:chat.firehose (reactive) and stream:observations (auto-commentary),
// evaluates the Policy Engine, and publishes Generator output back onto
// stream:chat.ingest. Grounded on the teacher's cmd/root.go +
// cmd/gateway.go split, generalized from the chat gateway binary to the
// persona pool binary.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/chatsim/chatsim/internal/busadapter"
	"github.com/chatsim/chatsim/internal/config"
	"github.com/chatsim/chatsim/internal/generator"
	"github.com/chatsim/chatsim/internal/memory"
	"github.com/chatsim/chatsim/internal/memory/litestore"
	"github.com/chatsim/chatsim/internal/memory/pgstore"
	"github.com/chatsim/chatsim/internal/policy"
	"github.com/chatsim/chatsim/internal/safety"
	"github.com/chatsim/chatsim/internal/schema"
	"github.com/chatsim/chatsim/internal/svcctx"
	"github.com/chatsim/chatsim/internal/telemetry"
	"github.com/chatsim/chatsim/internal/worker"
)

var (
	cfgPath string
	verbose bool
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "worker",
		Short: "Persona Worker pool",
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
		slog.Info("worker: shutdown signal received", "signal", sig)
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
		return fmt.Errorf("worker: load config: %w", err)
	}

	shutdown, err := telemetry.InitTracerProvider(ctx, cfg.Telemetry.ServiceName+"-worker", cfg.Telemetry.OTLPEndpoint)
	if err != nil {
		return fmt.Errorf("worker: init tracer: %w", err)
	}
	defer shutdown(context.Background())

	room, err := config.LoadRoom(cfg.RoomConfigPath)
	if err != nil {
		return fmt.Errorf("worker: load room config: %w", err)
	}
	personas, err := config.LoadPersonas(cfg.PersonaConfigDir)
	if err != nil {
		return fmt.Errorf("worker: load personas: %w", err)
	}

	bus, err := busadapter.New(ctx, cfg.Redis.URL)
	if err != nil {
		return fmt.Errorf("worker: connect redis: %w", err)
	}
	defer bus.Close()

	mem := openMemory(ctx, cfg)
	if mem != nil {
		defer mem.Close()
	}

	svc := svcctx.New(
		bus,
		schema.Default(),
		safety.NewFilter(cfg.Safety.MaxChars, cfg.Safety.Blocklist),
		mem,
		buildGenerator(cfg),
		policy.NewEngine(policy.DefaultConfig()),
		cfg.Concurrency.MaxLLMConcurrency,
		cfg.Concurrency.MaxMemConcurrency,
	)

	consumerName := fmt.Sprintf("worker-%s", uuid.NewString())
	w := worker.New(svc, room, personas, consumerName)
	if mem != nil {
		w.Stats().SetMemory(mem)
	}

	if cfg.PersonaWatch.Enabled {
		go func() {
			dir := cfg.PersonaWatch.Dir
			if dir == "" {
				dir = cfg.PersonaConfigDir
			}
			if err := config.WatchPersonas(ctx, dir, w.ApplyPersonaAnchors); err != nil {
				slog.Warn("worker: persona hot reload unavailable", "error", err)
			}
		}()
	}

	go serveStats(ctx, w, room.RoomID)

	slog.Info("worker starting", "room", room.RoomID, "enrolled", w.Enrolled())
	return w.Run(ctx)
}

func buildGenerator(cfg *config.Config) generator.Generator {
	switch cfg.Generator.Mode {
	case "litellm":
		timeout := cfg.Generator.Timeout
		if timeout <= 0 {
			timeout = 3 * time.Second
		}
		return generator.NewLive(cfg.Generator.LLMBaseURL, cfg.Generator.LLMAPIKey, cfg.Generator.LLMModel, int(cfg.Concurrency.MaxLLMConcurrency), timeout)
	case "stub":
		return generator.NewStub()
	default:
		return generator.NewDeterministic()
	}
}

func openMemory(ctx context.Context, cfg *config.Config) *memory.Adapter {
	if cfg.Memory.DSN != "" {
		if err := pgstore.Migrate(cfg.Memory.DSN); err != nil {
			slog.Warn("memory: postgres migration failed", "error", err)
		}
		store, err := pgstore.Open(ctx, cfg.Memory.DSN)
		if err == nil {
			slog.Info("memory backend: postgres")
			return memory.NewAdapter(store)
		}
		slog.Warn("memory: postgres unreachable, falling back to sqlite", "error", err)
	}
	store, err := litestore.Open(cfg.Memory.SQLitePath)
	if err != nil {
		slog.Warn("memory: sqlite unavailable, memory disabled", "error", err)
		return nil
	}
	slog.Info("memory backend: sqlite", "path", cfg.Memory.SQLitePath)
	return memory.NewAdapter(store)
}

func serveStats(ctx context.Context, w *worker.Worker, roomID string) {
	mux := http.NewServeMux()
	mux.Handle("/stats", w.Stats())
	mux.HandleFunc("/healthz", func(rw http.ResponseWriter, r *http.Request) {
		rw.Write([]byte(`{"status":"ok","room_id":"` + roomID + `"}`))
	})
	srv := &http.Server{Addr: ":9090", Handler: mux}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Warn("worker: stats server error", "error", err)
	}
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
