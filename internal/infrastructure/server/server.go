// Package server assembles the engine and its HTTP surface.
package server

import (
	"context"
	nethttp "net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/lumen-browser/extengine/internal/api/http"
	"github.com/lumen-browser/extengine/internal/api/middleware"
	"github.com/lumen-browser/extengine/internal/domain/extension"
	"github.com/lumen-browser/extengine/internal/domain/inject"
	"github.com/lumen-browser/extengine/internal/domain/messaging"
	"github.com/lumen-browser/extengine/internal/domain/webrequest"
	"github.com/lumen-browser/extengine/internal/infrastructure/config"
	"github.com/lumen-browser/extengine/internal/infrastructure/logging"
	"github.com/lumen-browser/extengine/internal/infrastructure/monitoring"
	"github.com/lumen-browser/extengine/internal/ws"
)

// Server wraps the HTTP server and the engine components.
type Server struct {
	router   *gin.Engine
	httpSrv  *nethttp.Server
	manager  *extension.Manager
	injector *inject.Injector
	engine   *webrequest.Engine
	bus      *messaging.Bus
	logger   *zap.Logger
	config   *config.Config
	metrics  *monitoring.Metrics
}

// NewServer creates a server instance with every engine component wired.
func NewServer(cfg *config.Config) (*Server, error) {
	logger, err := logging.New(logging.Config{
		Level:       cfg.Logging.Level,
		Development: cfg.Logging.Development,
	})
	if err != nil {
		return nil, err
	}

	logger.Info("initializing extension engine",
		zap.String("port", cfg.Server.Port),
		zap.Int("channel_capacity", cfg.Engine.ChannelCapacity),
		zap.Duration("response_timeout", cfg.Engine.ResponseTimeout),
	)

	metrics := monitoring.NewMetrics()

	injector := inject.NewInjector(logger.Named("inject"))
	injector.SetCacheObserver(func(hit bool) {
		if hit {
			metrics.InjectionCacheHits.Inc()
		} else {
			metrics.InjectionCacheMiss.Inc()
		}
	})
	engine := webrequest.NewEngine(logger.Named("webrequest"))
	bus := messaging.NewBus(cfg.Engine.ChannelCapacity, logger.Named("messaging"))

	// The ws handler owns the receive side of background channels, so it
	// doubles as the manager's channel registry.
	wsHandler := ws.NewHandler(engine, bus, metrics, logger.Named("ws"))
	manager := extension.NewManager(injector, engine, wsHandler, logger.Named("extension"))

	if !cfg.Logging.Development {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()

	router.Use(gin.Recovery())
	router.Use(monitoring.Middleware(metrics))
	router.Use(middleware.CORS(middleware.DefaultCORSConfig()))
	if cfg.RateLimit.Enabled {
		logger.Info("rate limiting enabled",
			zap.Int("rps", cfg.RateLimit.RequestsPerSecond),
			zap.Int("burst", cfg.RateLimit.Burst),
		)
		router.Use(middleware.RateLimit(middleware.RateLimitConfig{
			RequestsPerSecond: cfg.RateLimit.RequestsPerSecond,
			Burst:             cfg.RateLimit.Burst,
		}))
	}

	handlers := http.NewHandlers(manager, injector, engine, bus, metrics, cfg.Engine.ResponseTimeout, logger.Named("api"))

	handlers.Register(router)

	// Event stream
	router.GET("/stream", wsHandler.HandleConnection)

	// Prometheus scrape endpoint
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	logger.Info("server initialized")

	return &Server{
		router:   router,
		manager:  manager,
		injector: injector,
		engine:   engine,
		bus:      bus,
		logger:   logger,
		config:   cfg,
		metrics:  metrics,
	}, nil
}

// Manager exposes the extension registry for startup loading.
func (s *Server) Manager() *extension.Manager { return s.manager }

// Logger exposes the root logger.
func (s *Server) Logger() *zap.Logger { return s.logger }

// Run starts the HTTP server and blocks until it stops.
func (s *Server) Run() error {
	addr := s.config.Server.Host + ":" + s.config.Server.Port
	s.logger.Info("starting http server", zap.String("addr", addr))

	s.httpSrv = &nethttp.Server{
		Addr:    addr,
		Handler: s.router,
	}
	err := s.httpSrv.ListenAndServe()
	if err == nethttp.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown stops accepting connections and drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down")
	defer s.logger.Sync()

	if s.httpSrv != nil {
		return s.httpSrv.Shutdown(ctx)
	}
	return nil
}
