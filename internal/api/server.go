package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/vessel/internal/prompts"
)

// Options configures the admin server.
type Options struct {
	Port      int
	RateLimit float64 // requests per second per client, 0 disables
	Burst     int
}

// Server represents the admin API server
type Server struct {
	echo    *echo.Echo
	port    int
	manager prompts.Manager
	logger  zerolog.Logger
	now     func() time.Time
}

// NewServer creates a new admin API server over mgr.
func NewServer(mgr prompts.Manager, opts Options, logger zerolog.Logger) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Validator = newRequestValidator()

	e.Use(middleware.Recover())
	e.Use(requestLogger(logger))
	if opts.RateLimit > 0 {
		e.Use(rateLimiter(opts.RateLimit, opts.Burst))
	}

	server := &Server{
		echo:    e,
		port:    opts.Port,
		manager: mgr,
		logger:  logger,
		now:     time.Now,
	}
	server.setupRoutes()
	return server
}

// Handler exposes the router, for tests and embedding.
func (s *Server) Handler() http.Handler { return s.echo }

func requestLogger(logger zerolog.Logger) echo.MiddlewareFunc {
	return middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod:   true,
		LogURI:      true,
		LogStatus:   true,
		LogLatency:  true,
		LogError:    true,
		HandleError: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			ev := logger.Info()
			if v.Error != nil {
				ev = logger.Warn().Err(v.Error)
			}
			ev.Str("method", v.Method).
				Str("uri", v.URI).
				Int("status", v.Status).
				Dur("latency", v.Latency).
				Msg("request")
			return nil
		},
	})
}

func rateLimiter(perSecond float64, burst int) echo.MiddlewareFunc {
	store := middleware.NewRateLimiterMemoryStoreWithConfig(middleware.RateLimiterMemoryStoreConfig{
		Rate:      rate.Limit(perSecond),
		Burst:     burst,
		ExpiresIn: 3 * time.Minute,
	})
	return middleware.RateLimiterWithConfig(middleware.RateLimiterConfig{
		Skipper: func(c echo.Context) bool { return c.Path() == "/health" },
		Store:   store,
		DenyHandler: func(c echo.Context, _ string, _ error) error {
			return c.JSON(http.StatusTooManyRequests, map[string]string{"error": "rate limit exceeded"})
		},
	})
}

// setupRoutes configures all API endpoints
func (s *Server) setupRoutes() {
	s.echo.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status": "healthy",
		})
	})

	v1 := s.echo.Group("/api/v1")

	v1.GET("/categories", s.listCategories)
	v1.GET("/templates", s.listTemplates)
	v1.POST("/templates", s.saveTemplate)
	v1.GET("/templates/:ref", s.getTemplate)
	v1.DELETE("/templates/:ref", s.deleteTemplate)

	v1.GET("/chains", s.listChains)
	v1.POST("/chains", s.createChain)
	v1.GET("/chains/:id", s.getChain)
	v1.PUT("/chains/:id", s.updateChain)
	v1.DELETE("/chains/:id", s.deleteChain)
	v1.POST("/chains/:id/reorder", s.reorderChain)
	v1.POST("/chains/:id/activate", s.activateChain)
	v1.POST("/chains/:id/preview", s.previewChain)
	v1.POST("/assemble", s.assembleActive)

	v1.POST("/components", s.saveComponents)
	v1.PUT("/components/:id", s.saveComponents)
	v1.POST("/components/validate", s.validateComponents)
	v1.POST("/components/activate", s.activateComponents)
	v1.POST("/components/preview", s.previewComponents)

	v1.POST("/conditions/check", s.checkCondition)
}

// Start serves until ctx is cancelled or the process receives SIGINT or
// SIGTERM, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info().Int("port", s.port).Msg("admin API listening")
		if err := s.echo.Start(fmt.Sprintf(":%d", s.port)); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	s.logger.Info().Msg("shutting down admin API")
	return s.echo.Shutdown(shutdownCtx)
}
