// Package http serves the reqengine REST API.
package http

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/reqengine/internal/logging"
	"github.com/fyrsmithlabs/reqengine/internal/pipeline"
)

var tracer = otel.Tracer("reqengine.http")

// Server provides the HTTP endpoints.
type Server struct {
	echo    *echo.Echo
	svc     *pipeline.Service
	logger  *logging.Logger
	metrics *requestMetrics
	config  *Config
}

// Config holds HTTP server configuration.
type Config struct {
	Host string
	Port int
	// BodyLimit caps request bodies, e.g. "10M". Empty means no limit.
	BodyLimit string
	// Version is reported by /health.
	Version string
}

// NewServer creates a server around svc.
func NewServer(svc *pipeline.Service, logger *logging.Logger, cfg *Config) (*Server, error) {
	if svc == nil {
		return nil, fmt.Errorf("pipeline service cannot be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required for request tracking and debugging")
	}
	if cfg == nil {
		cfg = &Config{Host: "127.0.0.1", Port: 8000}
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	s := &Server{
		echo:    e,
		svc:     svc,
		logger:  logger.Named("http"),
		metrics: newRequestMetrics(otel.Meter(instrumentationName)),
		config:  cfg,
	}

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	if cfg.BodyLimit != "" {
		e.Use(middleware.BodyLimit(cfg.BodyLimit))
	}
	e.Use(s.requestContext)
	e.Use(s.accessLog)
	e.Use(s.metrics.middleware)

	s.registerRoutes()
	return s, nil
}

func (s *Server) registerRoutes() {
	s.echo.GET("/health", s.handleHealth)
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	v1 := s.echo.Group("/api/v1")
	v1.POST("/estimate", s.handleEstimate)
	v1.POST("/extract", s.handleExtract)
	v1.POST("/documents", s.handleDocument)

	v1.POST("/sessions", s.handleCreateSession)
	v1.GET("/sessions", s.handleListSessions)
	v1.GET("/sessions/:id", s.handleGetSession)
	v1.PATCH("/sessions/:id", s.handleRenameSession)
	v1.DELETE("/sessions/:id", s.handleDeleteSession)
	v1.GET("/sessions/:id/history", s.handleHistory)
	v1.POST("/sessions/:id/documents", s.handleDocument)
	v1.GET("/sessions/:id/use-cases", s.handleUseCases)
	v1.POST("/sessions/:id/query", s.handleQuery)
	v1.GET("/sessions/:id/summary", s.handleLatestSummary)
	v1.POST("/sessions/:id/summary", s.handleSummarize)

	v1.POST("/use-cases/:id/refine", s.handleRefine)
	v1.GET("/use-cases/:id/validation", s.handleValidation)
	v1.DELETE("/use-cases/:id", s.handleDeleteUseCase)
}

// requestContext carries the request id, the session being worked on and
// an incoming trace into the request context, and opens the server span.
func (s *Server) requestContext(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		req := c.Request()
		ctx := otel.GetTextMapPropagator().Extract(req.Context(), propagation.HeaderCarrier(req.Header))
		ctx = logging.WithRequestID(ctx, c.Response().Header().Get(echo.HeaderXRequestID))
		if sessionRoute(c.Path()) {
			ctx = logging.WithSessionID(ctx, c.Param("id"))
		}
		ctx = logging.WithLogger(ctx, s.logger)

		ctx, span := tracer.Start(ctx, req.Method+" "+normalizePath(c.Path()))
		defer span.End()

		c.SetRequest(req.WithContext(ctx))
		return next(c)
	}
}

func sessionRoute(path string) bool {
	const prefix = "/api/v1/sessions/:id"
	return len(path) >= len(prefix) && path[:len(prefix)] == prefix
}

func (s *Server) accessLog(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		start := time.Now()
		err := next(c)
		s.logger.Info(c.Request().Context(), "http request",
			zap.String("method", c.Request().Method),
			zap.String("route", normalizePath(c.Path())),
			zap.Int("status", statusOf(c, err)),
			zap.Duration("duration", time.Since(start)),
		)
		return err
	}
}

// HealthResponse is the response body for GET /health.
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version,omitempty"`
}

func (s *Server) handleHealth(c echo.Context) error {
	resp := HealthResponse{Status: "ok", Version: s.config.Version}
	if err := s.svc.Store().Ping(c.Request().Context()); err != nil {
		s.logger.Warn(c.Request().Context(), "session store unreachable", zap.Error(err))
		resp.Status = "degraded"
		return c.JSON(http.StatusServiceUnavailable, resp)
	}
	return c.JSON(http.StatusOK, resp)
}

// Addr is the listen address.
func (s *Server) Addr() string {
	return fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
}

// ServeHTTP lets the server be mounted or tested without a listener.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.echo.ServeHTTP(w, r)
}

// Start listens until Shutdown. It returns http.ErrServerClosed after a
// clean shutdown.
func (s *Server) Start() error {
	s.logger.Info(context.Background(), "starting http server", zap.String("addr", s.Addr()))
	return s.echo.Start(s.Addr())
}

// Shutdown drains in-flight requests until ctx expires.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info(ctx, "shutting down http server")
	return s.echo.Shutdown(ctx)
}
