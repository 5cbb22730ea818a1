package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/ericfisherdev/relaygate/internal/adapter/driven/redisqueue"
	"github.com/ericfisherdev/relaygate/internal/adapter/driven/workerpool"
	httphandler "github.com/ericfisherdev/relaygate/internal/adapter/driving/http"
	"github.com/ericfisherdev/relaygate/internal/application"
	"github.com/ericfisherdev/relaygate/internal/config"
	"github.com/ericfisherdev/relaygate/internal/domain/port/driven"
)

// workerQueue is a TaskQueue whose workers the process runs.
type workerQueue interface {
	driven.TaskQueue
	Start(ctx context.Context, handler driven.TaskHandler)
	Close()
}

func newServeCommand(flags *globalFlags) *cobra.Command {
	var (
		listenAddr string
		workers    int
		backend    string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the gateway HTTP API and its workers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := flags.loadConfig()
			if err != nil {
				return err
			}
			if listenAddr != "" {
				cfg.ListenAddr = listenAddr
			}
			if workers > 0 {
				cfg.Workers = workers
			}
			if backend != "" {
				cfg.QueueBackend = backend
			}
			return serve(cmd.Context(), cfg)
		},
	}

	cmd.Flags().StringVar(&listenAddr, "listen", "", "Listen address (overrides RELAYGATE_LISTEN_ADDR)")
	cmd.Flags().IntVar(&workers, "workers", 0, "Number of invocation workers (overrides RELAYGATE_WORKERS)")
	cmd.Flags().StringVar(&backend, "queue", "", "Queue backend: memory or redis (overrides RELAYGATE_QUEUE_BACKEND)")

	return cmd
}

func serve(parent context.Context, cfg *config.Config) error {
	slog.Info("config loaded",
		"listen_addr", cfg.ListenAddr,
		"db_path", cfg.DBPath,
		"queue_backend", cfg.QueueBackend,
		"workers", cfg.Workers,
	)

	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	s, err := openStores(ctx, cfg)
	if err != nil {
		return err
	}
	defer s.close()

	queue, closeQueue, err := newQueue(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeQueue()

	orch := newOrchestrator(cfg, s, queue)
	queue.Start(ctx, orch.Execute)

	healthSvc := application.NewHealthService(s.traces, stallAfter(cfg))

	handler := httphandler.NewHandler(orch, application.NewTraceRecorder(s.traces), healthSvc, slog.Default())

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           httphandler.NewServeMux(handler, slog.Default()),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		slog.Info("http server starting", "addr", cfg.ListenAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	slog.Info("relaygate started", "listen_addr", cfg.ListenAddr)

	select {
	case <-ctx.Done():
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
	}
	slog.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("http server shutdown error", "error", err)
	}

	slog.Info("shutdown complete")
	return nil
}

// newQueue creates the configured task queue. The returned func releases
// the queue and any client it owns.
func newQueue(ctx context.Context, cfg *config.Config) (workerQueue, func(), error) {
	switch cfg.QueueBackend {
	case config.QueueBackendMemory:
		pool := workerpool.New(cfg.Workers, cfg.QueueSize, cfg.TaskTTL)
		return pool, pool.Close, nil

	case config.QueueBackendRedis:
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			return nil, nil, fmt.Errorf("connect to redis at %s: %w", cfg.RedisAddr, err)
		}
		slog.Info("redis connected", "addr", cfg.RedisAddr, "db", cfg.RedisDB)

		q := redisqueue.New(client, redisqueue.Options{Workers: cfg.Workers, TTL: cfg.TaskTTL})
		return q, func() {
			q.Close()
			if err := client.Close(); err != nil {
				slog.Error("error closing redis client", "error", err)
			}
		}, nil

	default:
		return nil, nil, fmt.Errorf("unknown queue backend %q", cfg.QueueBackend)
	}
}
