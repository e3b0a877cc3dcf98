// Package chatservice wires the message distribution service: store,
// ingestion queue, fan-out transport and HTTP API.
package chatservice

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/loomchat/loom/server/internal/api"
	"github.com/loomchat/loom/server/internal/config"
	"github.com/loomchat/loom/server/internal/distribute"
	"github.com/loomchat/loom/server/internal/factory"
	"github.com/loomchat/loom/server/internal/fanout"
	"github.com/loomchat/loom/server/internal/health"
	"github.com/loomchat/loom/server/internal/ingest"
	"github.com/loomchat/loom/server/internal/logger"
	"github.com/loomchat/loom/server/internal/store"
	"github.com/loomchat/loom/server/internal/thread"
	"github.com/loomchat/loom/server/internal/unread"
)

// Run starts the chat service HTTP server and blocks until shutdown or error.
func Run() error {
	log := logger.New("chat-service")

	cfg, err := config.New()
	if err != nil {
		log.Error().Err(err).Msg("Failed to load configuration")
		return err
	}

	log.Info().
		Str("build_target", cfg.BuildTarget).
		Str("db_driver", cfg.DBDriver).
		Str("queue_driver", cfg.QueueDriver).
		Int("http_port", cfg.HTTPPort).
		Str("nats_url", cfg.NATSURL).
		Msg("Chat service starting")

	ctx, stop := newServerContext()
	defer stop()

	st, queue, pub, err := initDependencies(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer pub.Close()

	unreadSvc := unread.NewService(st, log, time.Duration(cfg.CounterRetryMaxElapsedMS)*time.Millisecond)
	threadSvc := thread.NewService(st, log)
	dist := distribute.NewDistributor(
		st, queue, fanout.NewResolver(st), pub,
		unreadSvc, threadSvc, log, cfg.PublishTimeout()+5*time.Second,
	)

	svcHealth := startHealthCheckers(ctx, cfg, log, st, pub)
	if err := waitUntilHealthy(ctx, cfg, svcHealth); err != nil {
		log.Error().Err(err).Msg("startup health check failed")
		return err
	}

	router := api.NewRouter(api.Deps{
		Store:       st,
		Distributor: dist,
		Unread:      unreadSvc,
		Health:      svcHealth,
	})

	server := newHTTPServer(ctx, cfg, router)
	errCh := serveHTTP(server, log, cfg)

	select {
	case <-ctx.Done():
		log.Info().Msg("Shutting down server")
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(ctxShutdown); err != nil {
			log.Error().Err(err).Msg("Server forced to shutdown")
			return err
		}
		// Let background enqueues and publishes finish before closing the transport.
		dist.Drain()
		log.Info().Msg("Server exited")
		return nil
	case err := <-errCh:
		log.Error().Err(err).Msg("HTTP server failed")
		return err
	}
}

func initDependencies(ctx context.Context, cfg *config.Config, log zerolog.Logger) (store.Store, ingest.Queue, *fanout.NATSPublisher, error) {
	st, err := factory.NewStore(ctx, cfg, log)
	if err != nil {
		log.Error().Err(err).Msg("Store adapter unavailable")
		return nil, nil, nil, err
	}

	queue, err := factory.NewQueue(cfg, st)
	if err != nil {
		log.Error().Err(err).Msg("Ingestion queue unavailable")
		return nil, nil, nil, err
	}

	pub, err := fanout.NewNATSPublisher(cfg.NATSURL, cfg.PublishTimeout())
	if err != nil {
		log.Error().Err(err).Str("url", cfg.NATSURL).Msg("Fan-out transport unavailable")
		return nil, nil, nil, err
	}
	return st, queue, pub, nil
}

func startHealthCheckers(ctx context.Context, cfg *config.Config, log zerolog.Logger, st store.Store, pub *fanout.NATSPublisher) *health.ServiceHealthChecker {
	probeTimeout := time.Duration(cfg.HealthProbeTimeoutSeconds) * time.Second
	interval := time.Duration(cfg.HealthIntervalSeconds) * time.Second

	storeChecker := store.NewHealthChecker(st, log, probeTimeout)
	go storeChecker.Start(ctx, interval)

	natsChecker := health.NewComponentChecker("nats", pub.HealthPing, log, probeTimeout)
	go natsChecker.Start(ctx, interval)

	svcHealth := health.NewServiceHealthChecker(log, storeChecker, natsChecker)
	go svcHealth.Start(ctx, interval)
	return svcHealth
}

func newHTTPServer(ctx context.Context, cfg *config.Config, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              cfg.GetHTTPAddr(),
		Handler:           handler,
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}
}

func serveHTTP(server *http.Server, log zerolog.Logger, cfg *config.Config) <-chan error {
	errCh := make(chan error, 1)
	go func() {
		log.Info().Int("port", cfg.HTTPPort).Msg("HTTP server starting")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()
	return errCh
}

// waitUntilHealthy blocks until the service health aggregate is healthy
// or the startup window expires. Health checkers start unhealthy and
// need at least one probe cycle.
func waitUntilHealthy(ctx context.Context, cfg *config.Config, svcHealth *health.ServiceHealthChecker) error {
	timeoutSeconds := cfg.HealthIntervalSeconds * 2
	if timeoutSeconds < 60 {
		timeoutSeconds = 60
	}
	deadline := time.Now().Add(time.Duration(timeoutSeconds) * time.Second)
	ticker := time.NewTicker(250 * time.Millisecond)
	defer ticker.Stop()
	for {
		if svcHealth.IsHealthy() {
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("startup aborted: dependencies not healthy within %d seconds", timeoutSeconds)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// newServerContext returns a cancellable context that is cancelled on SIGINT/SIGTERM.
func newServerContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}
