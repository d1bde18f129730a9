package api

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/lox/floodwatch/internal/briefing"
	"github.com/lox/floodwatch/internal/jobs"
	"github.com/lox/floodwatch/internal/store"
)

// generateTimeout bounds on-demand generation inside a request.
const generateTimeout = 2 * time.Minute

type Config struct {
	Store        *store.Store
	Runner       *jobs.Runner        // optional; nil disables generation
	Briefing     *briefing.Generator // optional
	ModelVersion string
	// AdminToken, when set, is required as a bearer token on
	// POST /api/predictions/generate.
	AdminToken string
	Logger     *slog.Logger
}

type Server struct {
	store        *store.Store
	runner       *jobs.Runner
	briefing     *briefing.Generator
	modelVersion string
	adminToken   string
	logger       *slog.Logger

	cache   *Cache
	briefMu sync.Mutex // one briefing request upstream at a time

	app *fiber.App
}

func NewServer(cfg Config) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		store:        cfg.Store,
		runner:       cfg.Runner,
		briefing:     cfg.Briefing,
		modelVersion: cfg.ModelVersion,
		adminToken:   cfg.AdminToken,
		logger:       logger,
		cache:        NewCache(time.Hour),
	}

	s.app = fiber.New(fiber.Config{
		AppName:               "floodwatch",
		ReadTimeout:           10 * time.Second,
		WriteTimeout:          generateTimeout + 10*time.Second,
		DisableStartupMessage: true,
		ErrorHandler:          s.errorHandler,
	})
	s.app.Use(recover.New())
	s.routes()
	return s
}

func (s *Server) routes() {
	s.app.Get("/health", s.handleHealth)
	s.app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	api := s.app.Group("/api")
	api.Get("/predictions/stats", s.handlePredictionStats)
	api.Get("/predictions/date/:date", s.handlePredictionsForDate)
	api.Get("/predictions/date/:date/map.png", s.handleMap)
	api.Get("/predictions/date/:date/briefing", s.handleBriefing)
	api.Post("/predictions/generate", s.handleGenerate)
	api.Get("/model/metrics", s.handleModelMetrics)
	api.Get("/rainfall/date/:date", s.handleRainfall)
}

// App exposes the fiber app, mainly for tests.
func (s *Server) App() *fiber.App {
	return s.app
}

// Run serves on addr until ctx is cancelled.
func (s *Server) Run(ctx context.Context, addr string) error {
	errc := make(chan error, 1)
	go func() {
		s.logger.Info("starting server", "addr", addr)
		errc <- s.app.Listen(addr)
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.app.ShutdownWithContext(shutdownCtx); err != nil {
		return err
	}
	return <-errc
}

func (s *Server) errorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	message := "Internal Server Error"

	var fe *fiber.Error
	if errors.As(err, &fe) {
		code = fe.Code
		message = fe.Message
	} else {
		s.logger.Error("request failed", "method", c.Method(), "path", c.Path(), "error", err)
	}

	return c.Status(code).JSON(ErrorResponse{Error: message})
}
