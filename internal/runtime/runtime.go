package runtime

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/loqalabs/loqa-taskgen/internal/bus"
	"github.com/loqalabs/loqa-taskgen/internal/config"
	"github.com/loqalabs/loqa-taskgen/internal/eventstore"
	"github.com/loqalabs/loqa-taskgen/internal/natsserver"
	"github.com/loqalabs/loqa-taskgen/internal/service"
	"github.com/loqalabs/loqa-taskgen/internal/taskgen"
	"golang.org/x/sync/errgroup"
)

const pruneInterval = time.Hour

type Runtime struct {
	cfg    config.Config
	logger *slog.Logger
	ready  atomic.Bool
}

func New(cfg config.Config, logger *slog.Logger) *Runtime {
	return &Runtime{
		cfg:    cfg,
		logger: logger,
	}
}

// NewGenerator builds the mock generator described by cfg.
func NewGenerator(cfg config.GeneratorConfig, logger *slog.Logger) *taskgen.Mock {
	return taskgen.NewMock(
		taskgen.WithSeed(cfg.Seed),
		taskgen.WithLatency(latencyProfile(cfg.DescriptionLatency), latencyProfile(cfg.ChecklistLatency)),
		taskgen.WithLogger(logger),
	)
}

func latencyProfile(l config.LatencyConfig) taskgen.LatencyProfile {
	return taskgen.LatencyProfile{
		Base:   time.Duration(l.BaseMS) * time.Millisecond,
		Jitter: time.Duration(l.JitterMS) * time.Millisecond,
	}
}

// Start runs the runtime until ctx is cancelled or a component fails.
func (r *Runtime) Start(ctx context.Context) error {
	shutdownTelemetry, metricsHandler, err := setupTelemetry(ctx, r.cfg, r.logger)
	if err != nil {
		return fmt.Errorf("failed to setup telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if terr := shutdownTelemetry(shutdownCtx); terr != nil {
			r.logger.Error("telemetry shutdown error", slog.String("error", terr.Error()))
		}
	}()

	embedded, err := natsserver.Start(r.cfg.Bus, r.logger)
	if err != nil {
		return err
	}
	defer embedded.Shutdown()

	var busClient *bus.Client
	if r.cfg.Bus.Enabled {
		busCfg := r.cfg.Bus
		if embedded != nil {
			busCfg.Servers = []string{embedded.ClientURL()}
		}
		busClient, err = bus.Connect(ctx, busCfg, r.logger)
		if err != nil {
			return err
		}
		defer busClient.Close()
	}

	store, err := eventstore.Open(ctx, r.cfg.EventStore, r.logger.With(slog.String("component", "eventstore")))
	if err != nil {
		return fmt.Errorf("open event store: %w", err)
	}
	defer store.Close()
	if err := store.Ensure(); err != nil {
		return err
	}

	generator := NewGenerator(r.cfg.Generator, r.logger)
	svc := service.NewService(ctx, r.cfg.Service, busClient, generator, store, r.logger)
	if err := svc.Start(); err != nil {
		return fmt.Errorf("start taskgen service: %w", err)
	}
	defer svc.Close()

	addr := fmt.Sprintf("%s:%d", r.cfg.HTTP.Bind, r.cfg.HTTP.Port)
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           newHandler(svc, r.isReady, metricsHandler, r.logger),
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		r.runPrune(gctx, store)
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		r.ready.Store(false)
		r.logger.Info("runtime stopping")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			r.logger.Error("http shutdown error", slog.String("error", err.Error()))
		}
		return nil
	})

	r.ready.Store(true)
	r.logger.Info("runtime started", slog.String("addr", addr))

	return g.Wait()
}

func (r *Runtime) isReady() bool {
	return r.ready.Load()
}

func (r *Runtime) runPrune(ctx context.Context, store *eventstore.Store) {
	ticker := time.NewTicker(pruneInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := store.Prune(ctx); err != nil {
				r.logger.Warn("event store prune failed", slog.String("error", err.Error()))
			}
		}
	}
}
