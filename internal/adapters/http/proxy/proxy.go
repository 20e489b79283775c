// Package proxy is the externally reachable front of the gateway. It
// rejects oversized, over-rate and over-deadline traffic at the edge and
// forwards the rest to healthy worker processes on the loopback interface.
package proxy

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"golang.org/x/time/rate"

	"github.com/tempalign/tempalign/internal/adapters/http/site"
	"github.com/tempalign/tempalign/internal/adapters/http/swagger"
	"github.com/tempalign/tempalign/internal/config"
	"github.com/tempalign/tempalign/pkg/logger"
	"github.com/tempalign/tempalign/pkg/metrics"
)

const shutdownTimeout = 30 * time.Second

// Server is the reverse proxy in front of the worker pool.
type Server struct {
	e      *echo.Echo
	cfg    *config.Config
	source TargetSource
	log    logger.Logger
}

// Option applies a configuration option to the Server.
type Option func(*Server)

// WithConfig sets the process configuration.
func WithConfig(cfg *config.Config) Option {
	return func(s *Server) {
		if cfg != nil {
			s.cfg = cfg
		}
	}
}

// WithSource sets the worker endpoint source.
func WithSource(source TargetSource) Option {
	return func(s *Server) {
		s.source = source
	}
}

// WithLogger sets a custom logger for the proxy.
func WithLogger(l logger.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.log = l
		}
	}
}

// New constructs the proxy and wires its routes.
func New(opts ...Option) (*Server, error) {
	s := &Server{cfg: config.New()}
	for _, opt := range opts {
		opt(s)
	}
	if s.source == nil {
		return nil, ErrNoSource
	}
	if s.log == nil {
		s.log = logger.Get().Named("proxy")
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recover())
	e.Use(middleware.BodyLimit(s.cfg.BodyLimit))
	e.Use(middleware.RateLimiterWithConfig(middleware.RateLimiterConfig{
		Store: middleware.NewRateLimiterMemoryStoreWithConfig(middleware.RateLimiterMemoryStoreConfig{
			Rate:  rate.Limit(s.cfg.RateLimit),
			Burst: s.cfg.RateBurst,
		}),
		DenyHandler: func(c echo.Context, identifier string, err error) error {
			metrics.RecordProxyRejection("rate_limit")
			return echo.NewHTTPError(http.StatusTooManyRequests, "rate limit exceeded")
		},
	}))

	// The landing page and documentation live on the proxy, not the
	// workers.
	static := http.NewServeMux()
	site.Register(context.Background(), static)
	swagger.Register(context.Background(), static)
	e.GET("/", echo.WrapHandler(static))
	e.GET("/api-docs", echo.WrapHandler(static))
	e.GET("/openapi.yaml", echo.WrapHandler(static))

	e.GET("/healthz", s.handleHealth)

	api := e.Group("/api/v1")
	api.Use(middleware.TimeoutWithConfig(middleware.TimeoutConfig{
		Timeout: time.Duration(s.cfg.RequestTimeoutMS) * time.Millisecond,
	}))
	api.Use(s.requireHealthyWorker)
	api.Use(middleware.ProxyWithConfig(middleware.ProxyConfig{
		Balancer: newHealthBalancer(s.source),
		ErrorHandler: func(c echo.Context, err error) error {
			metrics.RecordProxyRejection("upstream_error")
			s.log.Error(c.Request().Context(), "proxy upstream error",
				logger.String("path", c.Request().URL.Path),
				logger.Error(err))
			return echo.NewHTTPError(http.StatusBadGateway, "upstream unavailable")
		},
	}))

	s.e = e
	return s, nil
}

// requireHealthyWorker turns traffic away before it reaches the balancer
// when no worker can take it.
func (s *Server) requireHealthyWorker(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		for _, t := range s.source.Snapshot() {
			if t.Healthy {
				return next(c)
			}
		}
		metrics.RecordProxyRejection("no_healthy_worker")
		return echo.NewHTTPError(http.StatusServiceUnavailable, "no healthy worker")
	}
}

// workerHealth is the aggregated pool state rendered by the proxy's own
// health endpoint.
type workerHealth struct {
	URL     string `json:"url"`
	Healthy bool   `json:"healthy"`
}

type healthResponse struct {
	Status  string         `json:"status"`
	Workers []workerHealth `json:"workers"`
}

// handleHealth reports the pool state: 200 while at least one worker is
// healthy, 503 otherwise.
func (s *Server) handleHealth(c echo.Context) error {
	snap := s.source.Snapshot()
	resp := healthResponse{Status: "down", Workers: make([]workerHealth, len(snap))}
	status := http.StatusServiceUnavailable
	for i, t := range snap {
		resp.Workers[i] = workerHealth{URL: t.URL.String(), Healthy: t.Healthy}
		if t.Healthy {
			resp.Status = "up"
			status = http.StatusOK
		}
	}
	return c.JSON(status, resp)
}

// Handler exposes the proxy's HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.e
}

// Run serves on the configured address until ctx is cancelled, then shuts
// down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.log.Info(ctx, "proxy listening", logger.String("addr", s.cfg.Addr))
		if err := s.e.Start(s.cfg.Addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := s.e.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return ctx.Err()
}
