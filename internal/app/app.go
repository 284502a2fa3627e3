// Package app provides application-level wiring and dependency injection
// for the bridge.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"mongo-bridge/internal/api"
	"mongo-bridge/internal/config"
	"mongo-bridge/internal/datastore"
	"mongo-bridge/internal/domain"
	"mongo-bridge/internal/metrics"
	"mongo-bridge/internal/middleware"
	"mongo-bridge/internal/service/query"
)

// Deps holds the external dependencies that main() must provide.
type Deps struct {
	Cfg    *config.Config
	Logger *slog.Logger
	// Datastore overrides the MongoDB datastore; tests set it.
	Datastore domain.Datastore
	// Registry receives the metrics collectors. Nil selects a fresh
	// registry, which also backs /metrics.
	Registry *prometheus.Registry
}

// App holds the fully-wired application.
type App struct {
	Service     *query.Service
	Coordinator *query.Coordinator
	Handler     http.Handler

	cfg         *config.Config
	logger      *slog.Logger
	rateLimiter *middleware.RateLimiter
}

// New wires the datastore, coordinator, service and HTTP router.
func New(deps Deps) (*App, error) {
	cfg := deps.Cfg
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	store := deps.Datastore
	if store == nil {
		store = datastore.NewMongo(logger, cfg.MongoConnectTimeout)
	}

	reg := deps.Registry
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	m := metrics.New(reg)

	diag := query.Diagnostics{
		LogRequests: cfg.LogRequests,
		LogQueries:  cfg.LogQueries,
		LogTimings:  cfg.LogTimings,
	}
	exec := query.NewDatastoreExecutor(store, m, logger, diag)
	coord := query.NewCoordinator(exec, cfg.MaxConcurrentSubQueries, logger)
	svc := query.NewService(store, coord, m, logger, diag)

	a := &App{
		Service:     svc,
		Coordinator: coord,
		cfg:         cfg,
		logger:      logger,
	}

	routerCfg := api.RouterConfig{
		AllowedOrigins: cfg.CORSAllowedOrigins,
		Logger:         logger,
	}
	if cfg.RateLimitEnabled() {
		a.rateLimiter = middleware.NewRateLimiter(middleware.RateLimitConfig{
			RequestsPerSecond: cfg.RateLimitRPS,
			Burst:             cfg.RateLimitBurst,
		})
		routerCfg.RateLimiter = a.rateLimiter
	}
	if cfg.MetricsEnabled {
		routerCfg.Metrics = metrics.Handler(reg)
	}
	a.Handler = api.NewRouter(api.NewHandler(svc, logger), routerCfg)

	return a, nil
}

// Serve accepts connections on ln until ctx is done, then shuts the server
// down within the configured timeout and releases the app's resources.
func (a *App) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           a.Handler,
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("bridge listening", "addr", ln.Addr().String())
		errCh <- srv.Serve(ln)
	}()

	var serveErr error
	select {
	case err := <-errCh:
		serveErr = err
	case <-ctx.Done():
		a.logger.Info("shutting down bridge")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			serveErr = fmt.Errorf("shutdown: %w", err)
		}
		<-errCh
	}
	a.Close()

	if serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
		return serveErr
	}
	return nil
}

// Close stops background work and waits for in-flight sub-queries.
func (a *App) Close() {
	if a.rateLimiter != nil {
		a.rateLimiter.Stop()
	}
	a.Coordinator.Close()
}
