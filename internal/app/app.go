package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	healthcheck "github.com/vladislavdragonenkov/checkout/internal/health"
	"github.com/vladislavdragonenkov/checkout/internal/metrics"
	"github.com/vladislavdragonenkov/checkout/internal/service/checkout"
	"github.com/vladislavdragonenkov/checkout/internal/service/outbox"
	"github.com/vladislavdragonenkov/checkout/internal/transport/httpapi"
	"github.com/vladislavdragonenkov/checkout/internal/version"
)

// App — собранный checkout-service: HTTP API, сервер метрик и outbox worker.
type App struct {
	cfg    Config
	logger *log.Entry

	deps            *runtimeDependencies
	shutdownTracing func(context.Context) error

	api     http.Handler
	metrics http.Handler
	worker  *outbox.Worker
}

// New открывает хранилища и собирает компоненты. Вызывающий обязан позвать Close.
func New(ctx context.Context, cfg Config) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	logger := log.WithField("component", "app")

	shutdownTracing, err := setupTracing(ctx, cfg)
	if err != nil {
		return nil, err
	}

	deps, err := initRuntimeDependencies(ctx, cfg, logger)
	if err != nil {
		_ = shutdownTracing(context.Background())
		return nil, err
	}

	policy := checkout.DefaultRetryPolicy()
	policy.MaxAttempts = cfg.ConflictMaxAttempts
	svc := checkout.NewService(deps.checkout,
		checkout.WithLogger(log.WithField("component", "checkout")),
		checkout.WithMetrics(metrics.NewCheckoutMetrics()),
		checkout.WithRetryPolicy(policy),
	)

	healthHandler := healthcheck.NewHandler(version.GetVersion())
	for name, checker := range deps.checkers {
		healthHandler.RegisterChecker(name, checker)
	}

	workerOpts := []outbox.Option{
		outbox.WithLogger(log.WithField("component", "outbox-worker")),
		outbox.WithPollInterval(cfg.OutboxPollInterval),
		outbox.WithBatchSize(cfg.OutboxBatchSize),
		outbox.WithMaxAttempts(cfg.OutboxMaxAttempts),
		outbox.WithRetryBaseDelay(cfg.OutboxRetryDelay),
	}
	if deps.dlq != nil {
		workerOpts = append(workerOpts, outbox.WithDLQPublisher(deps.dlq))
	}

	return &App{
		cfg:             cfg,
		logger:          logger,
		deps:            deps,
		shutdownTracing: shutdownTracing,
		api: httpapi.NewRouter(httpapi.RouterConfig{
			Service:     svc,
			Health:      healthHandler,
			Logger:      log.WithField("component", "http"),
			ServiceName: cfg.ServiceName,
		}),
		metrics: newMetricsMux(healthHandler),
		worker:  outbox.NewWorker(deps.outbox, deps.publisher, workerOpts...),
	}, nil
}

// Handler возвращает HTTP API заказов.
func (a *App) Handler() http.Handler { return a.api }

// MetricsHandler возвращает mux с /metrics и health checks.
func (a *App) MetricsHandler() http.Handler { return a.metrics }

// Run обслуживает запросы до отмены ctx или падения одного из компонентов.
func (a *App) Run(ctx context.Context) error {
	apiLis, err := net.Listen("tcp", a.cfg.HTTPAddr)
	if err != nil {
		return fmt.Errorf("listen http: %w", err)
	}
	servers := []namedServer{{name: "http", lis: apiLis, srv: newServer(a.api)}}

	if a.cfg.MetricsAddr != "" {
		metricsLis, err := net.Listen("tcp", a.cfg.MetricsAddr)
		if err != nil {
			_ = apiLis.Close()
			return fmt.Errorf("listen metrics: %w", err)
		}
		servers = append(servers, namedServer{name: "metrics", lis: metricsLis, srv: newServer(a.metrics)})
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, s := range servers {
		g.Go(func() error {
			a.logger.WithField("addr", s.lis.Addr().String()).Infof("%s server listening", s.name)
			if err := s.srv.Serve(s.lis); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("%s server: %w", s.name, err)
			}
			return nil
		})
	}
	g.Go(func() error {
		return a.worker.Run(gctx)
	})
	g.Go(func() error {
		<-gctx.Done()
		a.logger.Info("stopping servers")
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), a.cfg.ShutdownTimeout)
		defer cancel()
		for _, s := range servers {
			if err := s.srv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
				a.logger.WithError(err).Warnf("%s server shutdown with error", s.name)
			}
		}
		return nil
	})

	return g.Wait()
}

// Close освобождает хранилища, producer и tracer provider.
func (a *App) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), a.cfg.ShutdownTimeout)
	defer cancel()
	return errors.Join(a.deps.Close(), a.shutdownTracing(ctx))
}

// Run собирает приложение по cfg и работает до отмены ctx.
func Run(ctx context.Context, cfg Config) error {
	a, err := New(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(); err != nil {
			a.logger.WithError(err).Warn("failed to release resources")
		}
	}()
	return a.Run(ctx)
}

type namedServer struct {
	name string
	lis  net.Listener
	srv  *http.Server
}

func newServer(h http.Handler) *http.Server {
	return &http.Server{
		Handler:           h,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
}

// newMetricsMux отдаёт /metrics для Prometheus и health checks для оркестратора.
func newMetricsMux(h *healthcheck.Handler) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/healthz", h)
	mux.HandleFunc("/livez", healthcheck.LivenessHandler)
	mux.HandleFunc("/readyz", h.ReadinessHandler)
	return mux
}
