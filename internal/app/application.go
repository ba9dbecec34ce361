package app

import (
	"context"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"collabd/internal/api"
	"collabd/internal/auth"
	"collabd/internal/clock"
	"collabd/internal/collab"
	"collabd/internal/config"
	"collabd/internal/gateway"
	"collabd/internal/monitoring"
	"collabd/internal/store"
)

// Application wires all components in dependency order:
// store → coordinator → sweeper → gateway → api → http.
type Application struct {
	cfg    *config.Config
	log    *zap.Logger
	store  store.AnswerStore
	coord  *collab.Coordinator
	sweep  *collab.Sweeper
	fanout *gateway.Fanout

	httpServer   *http.Server
	fanoutCancel context.CancelFunc
}

func New(cfg *config.Config, log *zap.Logger) (*Application, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	monitoring.Init()

	var st store.AnswerStore
	switch cfg.Store.Driver {
	case "sqlite":
		sqliteStore, err := store.NewSQLite(cfg.Store.Path, log)
		if err != nil {
			return nil, fmt.Errorf("failed to open answer store: %w", err)
		}
		st = sqliteStore
	default:
		st = store.NewMemory()
	}

	coord := collab.NewCoordinator(cfg.Collab, clock.NewSystem(), st, log)
	sweeper := collab.NewSweeper(coord, log)

	verifier := auth.NewVerifier(cfg.Auth.Secret)
	registry := gateway.NewRegistry()
	wsHandler := gateway.NewHandler(cfg.Gateway, registry, coord, verifier, log)
	fanout := gateway.NewFanout(coord, registry, log)

	apiServer := api.NewServer(coord, st, verifier, wsHandler, registry, log)

	httpServer := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      apiServer,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	return &Application{
		cfg:        cfg,
		log:        log,
		store:      st,
		coord:      coord,
		sweep:      sweeper,
		fanout:     fanout,
		httpServer: httpServer,
	}, nil
}

// Start brings up background processing, then serves HTTP until ctx is
// cancelled or the listener fails.
func (a *Application) Start(ctx context.Context) error {
	a.log.Info("starting collabd", zap.String("addr", a.httpServer.Addr))

	fanoutCtx, cancel := context.WithCancel(context.Background())
	a.fanoutCancel = cancel
	go a.fanout.Run(fanoutCtx)

	a.sweep.Start()

	errCh := make(chan error, 1)
	go func() {
		if err := a.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("http server failed: %w", err)
	case <-ctx.Done():
		return nil
	}
}

// Stop shuts components down in reverse order of startup.
func (a *Application) Stop(ctx context.Context) error {
	a.log.Info("stopping collabd")

	if err := a.httpServer.Shutdown(ctx); err != nil {
		a.log.Warn("http shutdown did not complete cleanly", zap.Error(err))
	}

	a.sweep.Stop()
	if a.fanoutCancel != nil {
		a.fanoutCancel()
	}

	if err := a.store.Close(); err != nil {
		return fmt.Errorf("failed to close answer store: %w", err)
	}
	return nil
}
