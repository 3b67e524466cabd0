// Package server is the composition root: it builds every component from
// configuration, wires the session core to its collaborators and serves
// the HTTP surface.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	apihttp "github.com/GriffinCanCode/SessionHost/internal/api/http"
	"github.com/GriffinCanCode/SessionHost/internal/api/middleware"
	"github.com/GriffinCanCode/SessionHost/internal/api/ws"
	"github.com/GriffinCanCode/SessionHost/internal/domain/catalog"
	"github.com/GriffinCanCode/SessionHost/internal/domain/dispatch"
	"github.com/GriffinCanCode/SessionHost/internal/domain/notify"
	"github.com/GriffinCanCode/SessionHost/internal/domain/orchestrator"
	"github.com/GriffinCanCode/SessionHost/internal/domain/session"
	"github.com/GriffinCanCode/SessionHost/internal/domain/window"
	"github.com/GriffinCanCode/SessionHost/internal/infrastructure/archive"
	"github.com/GriffinCanCode/SessionHost/internal/infrastructure/config"
	"github.com/GriffinCanCode/SessionHost/internal/infrastructure/detection"
	"github.com/GriffinCanCode/SessionHost/internal/infrastructure/logging"
	"github.com/GriffinCanCode/SessionHost/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/SessionHost/internal/infrastructure/telemetry"
	"github.com/GriffinCanCode/SessionHost/internal/infrastructure/tracing"
	"github.com/GriffinCanCode/SessionHost/internal/infrastructure/windows"
)

// Version is reported by the root endpoint.
const Version = "0.1.0"

const (
	loopQueueSize   = 128
	shutdownTimeout = 5 * time.Second
)

// Server wraps the HTTP server and the session core
type Server struct {
	config   *config.Config
	logger   *logging.Logger
	metrics  *monitoring.Metrics
	tracer   *tracing.Tracer
	router   *gin.Engine
	loop     *orchestrator.Loop
	orch     *orchestrator.Orchestrator
	hub      *ws.Hub
	windows  *windows.Manager
	feed     *detection.Feed
	spool    *detection.SpoolWatcher
	client   *telemetry.Client
	archiver *archive.Archiver

	closeOnce sync.Once
}

// NewServer creates a new server instance
func NewServer(cfg *config.Config) (*Server, error) {
	logger, err := logging.New(logging.Config{
		Level:       cfg.Logging.Level,
		Development: cfg.Logging.Development,
		OutputPaths: []string{"stdout"},
		Dir:         cfg.Logging.Dir,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}
	return newServer(cfg, logger)
}

func newServer(cfg *config.Config, logger *logging.Logger) (*Server, error) {
	log := logger.Logger
	log.Info("Initializing session host",
		zap.String("addr", cfg.Server.Addr()),
		zap.String("window", cfg.Window.Name),
	)

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := monitoring.NewMetrics(registry)
	tracer := tracing.New("sessionhost", log)

	games, err := loadCatalog(cfg.Catalog.Path)
	if err != nil {
		return nil, err
	}
	log.Info("Game catalog loaded", zap.Int("games", games.Len()), zap.String("path", cfg.Catalog.Path))

	hub := ws.NewHub(log).WithMetrics(metrics)
	windowManager := windows.NewManager(hub, launcherFor(cfg.Window), cfg.Window.CloseTimeout, log)

	s := &Server{
		config:  cfg,
		logger:  logger,
		metrics: metrics,
		tracer:  tracer,
		hub:     hub,
		windows: windowManager,
		feed:    detection.NewFeed(log),
		loop:    orchestrator.NewLoop(loopQueueSize, log),
	}

	promauto.With(registry).NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: "sessionhost",
		Name:      "loop_backlog",
		Help:      "Events waiting on the session event loop",
	}, func() float64 { return float64(s.loop.Backlog()) })

	if cfg.Detection.SpoolDir != "" {
		spool, err := detection.NewSpoolWatcher(cfg.Detection.SpoolDir, s.feed, log)
		if err != nil {
			return nil, fmt.Errorf("failed to watch spool dir: %w", err)
		}
		s.spool = spool
	}

	var tele orchestrator.Telemetry = telemetry.Nop{Logger: log}
	if cfg.Telemetry.Endpoint != "" {
		s.client = telemetry.NewClient(telemetry.Options{
			Endpoint:          cfg.Telemetry.Endpoint,
			Timeout:           cfg.Telemetry.Timeout,
			RequestsPerSecond: cfg.Telemetry.RequestsPerSecond,
		}, log).WithTracer(tracer)
		tele = s.client
		log.Info("Telemetry enabled", zap.String("endpoint", cfg.Telemetry.Endpoint))
	}

	var archiver orchestrator.Archiver = archive.Nop{Logger: log}
	switch {
	case cfg.Archive.Dir == "":
	case cfg.Logging.Dir == "":
		log.Warn("ARCHIVE_DIR is set but LOG_DIR is not; log archiving disabled")
	default:
		s.archiver = archive.New(archive.Options{
			LogDir: cfg.Logging.Dir,
			Dir:    cfg.Archive.Dir,
			Glob:   cfg.Archive.Glob,
			Retain: cfg.Archive.Retain,
			Flush:  logger.Flush,
		}, log)
		archiver = timedArchiver{archiver: s.archiver, metrics: metrics}
		log.Info("Log archiving enabled", zap.String("dir", cfg.Archive.Dir))
	}

	dispatcher := dispatch.New(hub, &notify.Cache{}, cfg.Window.Name, log).WithMetrics(metrics)
	s.orch = orchestrator.New(orchestrator.Deps{
		Tracker:    session.NewTracker(games),
		Windows:    window.NewCoordinator(windowManager, log),
		Dispatcher: dispatcher,
		Transport:  hub,
		Telemetry:  tele,
		Archiver:   archiver,
		WindowName: cfg.Window.Name,
		Logger:     log,
		Metrics:    metrics,
	})
	if err := s.orch.Attach(s.feed, hub, s.loop); err != nil {
		return nil, fmt.Errorf("failed to start detection: %w", err)
	}

	s.router = s.buildRouter(games, registry)

	log.Info("Server initialized successfully")
	return s, nil
}

func (s *Server) buildRouter(games *catalog.Catalog, registry *prometheus.Registry) *gin.Engine {
	cfg := s.config
	if !cfg.Logging.Development {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()

	router.Use(gin.Recovery())
	router.Use(tracing.HTTPMiddleware(s.tracer))
	router.Use(monitoring.Middleware(s.metrics))
	router.Use(middleware.CORS(middleware.DefaultCORSConfig()))
	if cfg.RateLimit.Enabled {
		s.logger.Info("Rate limiting enabled",
			zap.Int("rps", cfg.RateLimit.RequestsPerSecond),
			zap.Int("burst", cfg.RateLimit.Burst),
		)
		router.Use(middleware.RateLimit(middleware.RateLimitConfig{
			RequestsPerSecond: cfg.RateLimit.RequestsPerSecond,
			Burst:             cfg.RateLimit.Burst,
		}))
	}

	deps := apihttp.Deps{
		Status:    s.Status,
		Publisher: s.feed,
		Catalog:   games,
		Windows:   s.hub,
		Metrics:   s.metrics,
		Logger:    s.logger.Logger,
		Version:   Version,
	}
	if s.archiver != nil {
		deps.Archives = s.archiver
	}
	apihttp.NewHandlers(deps).Register(router)

	router.GET("/ws/:window", s.hub.HandleConnection)
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(registry, promhttp.HandlerOpts{})))

	return router
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Status reads the orchestrator state on the event loop.
func (s *Server) Status(ctx context.Context) (orchestrator.Status, error) {
	var st orchestrator.Status
	err := s.loop.Call(ctx, func() { st = s.orch.Status() })
	return st, err
}

// Run listens on the configured address and serves until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.config.Server.Addr())
	if err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}
	return s.Serve(ctx, ln)
}

// Serve runs the event loop, the spool watcher and the HTTP server on ln
// until ctx is cancelled or the HTTP server fails.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_ = s.loop.Run(ctx)
	}()

	if s.spool != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := s.spool.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				s.logger.Error("Spool watcher stopped", zap.Error(err))
			}
		}()
	}

	srv := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	serveErr := make(chan error, 1)
	go func() {
		s.logger.Info("Starting HTTP server", zap.String("addr", ln.Addr().String()))
		serveErr <- srv.Serve(ln)
	}()

	var err error
	select {
	case <-ctx.Done():
	case err = <-serveErr:
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		}
	}

	shutdownCtx, stop := context.WithTimeout(context.Background(), shutdownTimeout)
	defer stop()
	s.hub.Close()
	if shutdownErr := srv.Shutdown(shutdownCtx); shutdownErr != nil {
		s.logger.Warn("HTTP shutdown incomplete", zap.Error(shutdownErr))
	}

	cancel()
	wg.Wait()
	return err
}

// Close releases the collaborators and flushes the logger
func (s *Server) Close() error {
	s.closeOnce.Do(func() {
		s.logger.Info("Shutting down server...")
		s.hub.Close()
		s.windows.Wait()
		if s.client != nil {
			_ = s.client.Close()
		}
		s.tracer.Close()
		_ = s.logger.Flush()
	})
	return nil
}

func loadCatalog(path string) (*catalog.Catalog, error) {
	if path == "" {
		return catalog.Default(), nil
	}
	games, err := catalog.Load(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load catalog: %w", err)
	}
	return games, nil
}

func launcherFor(cfg config.WindowConfig) windows.Launcher {
	fields := strings.Fields(cfg.Launch)
	if len(fields) == 0 {
		return nil
	}
	return windows.CommandLauncher{Command: fields, Grace: cfg.LaunchGrace}
}

// timedArchiver records each backup's duration and outcome.
type timedArchiver struct {
	archiver orchestrator.Archiver
	metrics  *monitoring.Metrics
}

func (a timedArchiver) Backup(key string) error {
	timer := monitoring.NewTimer(a.metrics, "archive", "backup")
	err := a.archiver.Backup(key)
	timer.StopErr(err)
	return err
}
