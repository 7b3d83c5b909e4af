// Package http provides the stackprobe analysis API.
//
// The server is stateless: every POST /api/v1/detect scores the posted
// snapshot with a fresh engine and no session guard, so the same snapshot
// always yields the same traits.
package http

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/stackprobe/internal/browser"
	"github.com/fyrsmithlabs/stackprobe/internal/logging"
	"github.com/fyrsmithlabs/stackprobe/internal/scoring"
	"github.com/fyrsmithlabs/stackprobe/internal/signal"
)

// maxBodySize bounds posted snapshots.
const maxBodySize = 4 * 1024 * 1024

// Server provides HTTP endpoints for stackprobe.
type Server struct {
	echo     *echo.Echo
	mu       sync.RWMutex
	registry *signal.Registry
	recorder scoring.Recorder
	logger   *logging.Logger
	config   *Config
}

// Config holds HTTP server configuration.
type Config struct {
	Host string
	Port int

	// Production is the default for detect requests that do not pass
	// ?production=.
	Production bool
}

// Option configures a Server.
type Option func(*Server)

// WithRecorder sets the recorder handed to per-request engines.
func WithRecorder(r scoring.Recorder) Option {
	return func(s *Server) { s.recorder = r }
}

// WithHTTPMetrics installs the OpenTelemetry request metrics middleware.
func WithHTTPMetrics(m *HTTPMetrics) Option {
	return func(s *Server) {
		if m != nil {
			s.echo.Use(m.MetricsMiddleware())
		}
	}
}

// NewServer creates a new HTTP server.
func NewServer(registry *signal.Registry, logger *logging.Logger, cfg *Config, opts ...Option) (*Server, error) {
	if registry == nil {
		return nil, fmt.Errorf("registry cannot be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required for request tracking and debugging")
	}
	if cfg == nil {
		cfg = &Config{
			Host: "localhost",
			Port: 9191,
		}
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// Middleware
	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(middleware.BodyLimit("4M"))
	e.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			reqLogger := logger.With(zap.String("request_id", c.Response().Header().Get(echo.HeaderXRequestID)))
			c.SetRequest(c.Request().WithContext(logging.WithLogger(c.Request().Context(), reqLogger)))

			err := next(c)

			logger.Info(c.Request().Context(), "http request",
				zap.String("method", c.Request().Method),
				zap.String("uri", c.Request().RequestURI),
				zap.Int("status", c.Response().Status),
				zap.Duration("duration", time.Since(start)),
				zap.String("request_id", c.Response().Header().Get(echo.HeaderXRequestID)),
			)

			return err
		}
	})

	s := &Server{
		echo:     e,
		registry: registry,
		logger:   logger,
		config:   cfg,
	}
	for _, opt := range opts {
		opt(s)
	}

	s.registerRoutes()

	return s, nil
}

// registerRoutes sets up the HTTP endpoints.
func (s *Server) registerRoutes() {
	s.echo.GET("/health", s.handleHealth)
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	v1 := s.echo.Group("/api/v1")
	v1.GET("/catalog", s.handleCatalog)
	v1.GET("/catalog/:id", s.handleSignal)
	v1.POST("/detect", s.handleDetect)
}

// HealthResponse is the response body for GET /health.
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"detector_version"`
	Signals int    `json:"signals"`
}

// SignalInfo describes one catalog entry.
type SignalInfo struct {
	ID             string `json:"id"`
	Category       string `json:"category"`
	Label          string `json:"label"`
	Weight         int    `json:"weight"`
	ProductionSafe bool   `json:"production_safe"`
	Evidence       string `json:"evidence"`
}

func newSignalInfo(sig signal.Signal) SignalInfo {
	return SignalInfo{
		ID:             sig.ID,
		Category:       string(sig.Category),
		Label:          sig.Label,
		Weight:         sig.Weight,
		ProductionSafe: sig.ProductionSafe,
		Evidence:       sig.Evidence(),
	}
}

// CatalogResponse is the response body for GET /api/v1/catalog.
type CatalogResponse struct {
	Signals []SignalInfo `json:"signals"`
}

// DetectResponse is the response body for POST /api/v1/detect.
type DetectResponse struct {
	Traits     scoring.Traits `json:"traits"`
	Production bool           `json:"production"`
}

// SetRegistry swaps the catalog used by subsequent requests.
func (s *Server) SetRegistry(r *signal.Registry) {
	if r == nil {
		return
	}
	s.mu.Lock()
	s.registry = r
	s.mu.Unlock()
}

func (s *Server) currentRegistry() *signal.Registry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.registry
}

// handleHealth returns a simple health check response.
func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, HealthResponse{
		Status:  "ok",
		Version: scoring.Version,
		Signals: s.currentRegistry().Len(),
	})
}

// handleCatalog lists the signals this server evaluates.
func (s *Server) handleCatalog(c echo.Context) error {
	all := s.currentRegistry().All()
	resp := CatalogResponse{Signals: make([]SignalInfo, 0, len(all))}
	for _, sig := range all {
		resp.Signals = append(resp.Signals, newSignalInfo(sig))
	}
	return c.JSON(http.StatusOK, resp)
}

// handleSignal returns one catalog entry by id.
func (s *Server) handleSignal(c echo.Context) error {
	sig, ok := s.currentRegistry().Lookup(c.Param("id"))
	if !ok {
		return echo.NewHTTPError(http.StatusNotFound, "signal not found")
	}
	return c.JSON(http.StatusOK, newSignalInfo(sig))
}

// handleDetect scores a posted snapshot (YAML or JSON).
func (s *Server) handleDetect(c echo.Context) error {
	ctx := c.Request().Context()
	log := logging.FromContext(ctx)

	production := s.config.Production
	if raw := c.QueryParam("production"); raw != "" {
		if err := echo.QueryParamsBinder(c).Bool("production", &production).BindError(); err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "production must be a boolean")
		}
	}

	body, err := io.ReadAll(io.LimitReader(c.Request().Body, maxBodySize+1))
	if err != nil {
		log.Warn(ctx, "failed to read detect request", zap.Error(err))
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if len(body) == 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "snapshot body is required")
	}
	if len(body) > maxBodySize {
		return echo.NewHTTPError(http.StatusRequestEntityTooLarge, "snapshot too large")
	}

	snap, err := browser.ParseSnapshot(body)
	if err != nil {
		log.Warn(ctx, "invalid snapshot", zap.Error(err))
		return echo.NewHTTPError(http.StatusBadRequest, "invalid snapshot")
	}

	opts := []scoring.Option{scoring.WithLogger(log)}
	if s.recorder != nil {
		opts = append(opts, scoring.WithRecorder(s.recorder))
	}
	engine := scoring.NewEngine(s.currentRegistry(), snap, opts...)
	traits := engine.Score(ctx, engine.BuildContext(ctx, production))

	log.Debug(ctx, "scored snapshot",
		zap.String("snapshot", snap.Name),
		zap.String("framework_primary", traits.FrameworkPrimary),
		zap.String("confidence", string(traits.Confidence)),
	)

	return c.JSON(http.StatusOK, DetectResponse{Traits: traits, Production: production})
}

// Start starts the HTTP server. It returns nil after Shutdown.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.logger.Info(context.Background(), "starting http server", zap.String("addr", addr))
	if err := s.echo.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info(ctx, "shutting down http server")
	return s.echo.Shutdown(ctx)
}

// Handler exposes the router for in-process use.
func (s *Server) Handler() http.Handler {
	return s.echo
}
