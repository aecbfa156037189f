// Package service wires the subsystem together from a validated Config and
// runs it, either as the HTTP service or as a one-shot local scan.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	gocron "github.com/go-co-op/gocron/v2"

	"github.com/typesift/typesift/internal/api"
	"github.com/typesift/typesift/internal/history"
	"github.com/typesift/typesift/internal/invoke"
	"github.com/typesift/typesift/internal/metrics"
	"github.com/typesift/typesift/internal/model"
	"github.com/typesift/typesift/internal/orchestrator"
	"github.com/typesift/typesift/internal/registry"
)

// Service holds the wired components for one process.
type Service struct {
	cfg      model.Config
	registry *registry.Registry
	store    *history.Store
	recorder *metrics.Recorder
	orch     *orchestrator.Orchestrator
}

// New builds the full component graph. The returned service owns the history
// store, Close releases it.
func New(ctx context.Context, cfg model.Config) (*Service, error) {
	if cfg.Version != 0 {
		return nil, fmt.Errorf("config version %d is not supported, expected 0", cfg.Version)
	}

	reg, err := registry.FromConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("initializing engine registry: %w", err)
	}

	store, err := history.Open(ctx, cfg.History.Path)
	if err != nil {
		return nil, fmt.Errorf("opening history store: %w", err)
	}

	recorder := metrics.NewRecorder()
	invoker := invoke.New(recorder)
	orch := orchestrator.New(ctx, reg, invoker, store, recorder, cfg.Scan)

	return &Service{
		cfg:      cfg,
		registry: reg,
		store:    store,
		recorder: recorder,
		orch:     orch,
	}, nil
}

func (s *Service) Close() error {
	return s.store.Close()
}

// Orchestrator exposes the orchestrator for the CLI scan path.
func (s *Service) Orchestrator() *orchestrator.Orchestrator {
	return s.orch
}

// Run serves the HTTP API until ctx is cancelled. When configured, a
// background scheduler re-probes engine availability periodically.
func (s *Service) Run(ctx context.Context) error {
	if every := s.cfg.Registry.RefreshEvery; every != "" {
		interval, err := time.ParseDuration(every)
		if err != nil {
			return fmt.Errorf("parsing registry.refresh_every: %w", err)
		}
		scheduler, err := gocron.NewScheduler()
		if err != nil {
			return fmt.Errorf("creating scheduler: %w", err)
		}
		_, err = scheduler.NewJob(
			gocron.DurationJob(interval),
			gocron.NewTask(func() {
				if err := s.registry.Refresh(ctx); err != nil {
					slog.ErrorContext(ctx, "engine refresh failed", "error", err)
				}
			}),
		)
		if err != nil {
			return fmt.Errorf("scheduling engine refresh: %w", err)
		}
		scheduler.Start()
		defer func() {
			if err := scheduler.Shutdown(); err != nil {
				slog.ErrorContext(ctx, "shutting down scheduler failed", "error", err)
			}
		}()
	}

	server := api.NewServer(s.orch, s.registry, s.store, s.recorder, s.cfg.Scan)
	return server.Run(ctx, s.cfg.Server.Addr)
}
