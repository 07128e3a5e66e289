package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/BaSui01/runflow/api/handlers"
	"github.com/BaSui01/runflow/config"
	"github.com/BaSui01/runflow/internal/database"
	"github.com/BaSui01/runflow/internal/metrics"
	"github.com/BaSui01/runflow/internal/server"
	"github.com/BaSui01/runflow/run"
	"github.com/BaSui01/runflow/store"
	"github.com/BaSui01/runflow/types"
	"github.com/BaSui01/runflow/workflow"
)

// Server wires the run store, workflow engine, orchestrator, and HTTP
// surface together and manages their lifecycle.
type Server struct {
	cfg    *config.Config
	logger *zap.Logger

	httpManager    *server.Manager
	metricsManager *server.Manager

	runStore     store.RunStore
	dbPool       *database.PoolManager
	engine       *workflow.Engine
	notifier     *run.Notifier
	orchestrator *run.Orchestrator
	collector    *metrics.Collector

	healthHandler     *handlers.HealthHandler
	runsHandler       *handlers.RunsHandler
	threadsHandler    *handlers.ThreadsHandler
	assistantsHandler *handlers.AssistantsHandler

	rateLimiterCancel context.CancelFunc
}

// NewServer creates a server from resolved configuration.
func NewServer(cfg *config.Config, logger *zap.Logger) *Server {
	return &Server{
		cfg:    cfg,
		logger: logger,
	}
}

// Engine exposes the workflow engine so callers embedding the server can
// register their own assistants before Start.
func (s *Server) Engine() *workflow.Engine {
	if s.engine == nil {
		s.engine = workflow.NewEngine(workflow.NewMemoryCheckpointStore(), s.logger)
	}
	return s.engine
}

// Start brings up the store, orchestrator, and both HTTP listeners.
func (s *Server) Start() error {
	s.collector = metrics.NewCollector("runflow", s.logger)

	if err := s.initStore(); err != nil {
		return fmt.Errorf("failed to init store: %w", err)
	}

	s.initOrchestrator()
	s.initHandlers()

	if err := s.startHTTPServer(); err != nil {
		return fmt.Errorf("failed to start HTTP server: %w", err)
	}

	if err := s.startMetricsServer(); err != nil {
		return fmt.Errorf("failed to start metrics server: %w", err)
	}

	s.logger.Info("all servers started",
		zap.Int("http_port", s.cfg.Server.HTTPPort),
		zap.Int("metrics_port", s.cfg.Server.MetricsPort),
		zap.String("store_backend", s.cfg.Store.Backend),
		zap.Strings("assistants", s.Engine().Assistants()),
	)

	return nil
}

// initStore builds the run store for the configured backend.
func (s *Server) initStore() error {
	switch s.cfg.Store.Backend {
	case "memory":
		s.runStore = store.NewMemoryStore()
		s.logger.Info("using in-memory run store")
	case "database":
		dialector, err := store.OpenDialector(s.cfg.Database.Driver, s.cfg.Database.DSN())
		if err != nil {
			return err
		}
		db, err := gorm.Open(dialector, &gorm.Config{Logger: gormlogger.Discard, TranslateError: true})
		if err != nil {
			return fmt.Errorf("failed to open database: %w", err)
		}
		if err := db.AutoMigrate(&types.Run{}, &types.Thread{}); err != nil {
			return fmt.Errorf("failed to migrate schema: %w", err)
		}
		poolCfg := database.DefaultPoolConfig()
		poolCfg.MaxOpenConns = s.cfg.Database.MaxOpenConns
		poolCfg.MaxIdleConns = s.cfg.Database.MaxIdleConns
		poolCfg.ConnMaxLifetime = s.cfg.Database.ConnMaxLifetime
		s.dbPool, err = database.NewPoolManager(db, poolCfg, s.logger)
		if err != nil {
			return err
		}
		s.runStore = store.NewGormStoreFromDB(s.dbPool.DB(), s.logger)
		s.logger.Info("using database run store", zap.String("driver", s.cfg.Database.Driver))
	case "redis":
		st, err := store.NewRedisStore(store.RedisConfig{
			Addr:     s.cfg.Redis.Addr,
			Password: s.cfg.Redis.Password,
			DB:       s.cfg.Redis.DB,
			PoolSize: s.cfg.Redis.PoolSize,
		}, s.logger)
		if err != nil {
			return err
		}
		s.runStore = st
	default:
		return fmt.Errorf("unknown store backend: %s", s.cfg.Store.Backend)
	}
	return nil
}

// initOrchestrator wires the notifier and orchestrator around the engine.
func (s *Server) initOrchestrator() {
	s.notifier = run.NewNotifier(run.NotifierConfig{
		Timeout:        s.cfg.Webhook.Timeout,
		MaxTries:       s.cfg.Webhook.MaxTries,
		InitialBackoff: s.cfg.Webhook.InitialBackoff,
	}, s.collector, s.logger)

	s.orchestrator = run.NewOrchestrator(s.runStore, s.Engine(), s.notifier, s.collector, run.Config{
		RunTimeout:         s.cfg.Run.RunTimeout,
		CancelAckTimeout:   s.cfg.Run.CancelAckTimeout,
		LeaseRetryInterval: s.cfg.Run.LeaseRetryInterval,
		LeaseTimeout:       s.cfg.Run.LeaseTimeout,
		StreamRetention:    s.cfg.Run.StreamRetention,
		DefaultWebhook:     s.cfg.Run.DefaultWebhook,
	}, s.logger)
}

func (s *Server) initHandlers() {
	s.healthHandler = handlers.NewHealthHandler(s.logger)
	s.healthHandler.RegisterCheck(handlers.NewPingHealthCheck("store", func(ctx context.Context) error {
		if s.dbPool != nil {
			return s.dbPool.Ping(ctx)
		}
		// Any answer from the store, including not-found, proves it is
		// reachable.
		_, err := s.runStore.GetThread(ctx, "health-probe")
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			return err
		}
		return nil
	}))

	s.runsHandler = handlers.NewRunsHandler(s.orchestrator, s.runStore, s.collector, s.logger)
	s.threadsHandler = handlers.NewThreadsHandler(s.runStore, s.logger)
	s.assistantsHandler = handlers.NewAssistantsHandler(s.Engine(), s.logger)
}

func (s *Server) startHTTPServer() error {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", s.healthHandler.HandleHealth)
	mux.HandleFunc("GET /healthz", s.healthHandler.HandleHealth)
	mux.HandleFunc("GET /ready", s.healthHandler.HandleReady)
	mux.HandleFunc("GET /readyz", s.healthHandler.HandleReady)
	mux.HandleFunc("GET /version", s.healthHandler.HandleVersion(Version, BuildTime, GitCommit))

	mux.HandleFunc("GET /api/v1/assistants", s.assistantsHandler.HandleList)
	mux.HandleFunc("GET /api/v1/assistants/{assistant_id}", s.assistantsHandler.HandleGet)

	mux.HandleFunc("POST /api/v1/threads", s.threadsHandler.HandleCreate)
	mux.HandleFunc("GET /api/v1/threads/{thread_id}", s.threadsHandler.HandleGet)
	mux.HandleFunc("DELETE /api/v1/threads/{thread_id}", s.threadsHandler.HandleDelete)
	mux.HandleFunc("GET /api/v1/threads/{thread_id}/state", s.threadsHandler.HandleState)

	mux.HandleFunc("POST /api/v1/runs", s.runsHandler.HandleCreate)
	mux.HandleFunc("POST /api/v1/threads/{thread_id}/runs", s.runsHandler.HandleCreate)
	mux.HandleFunc("POST /api/v1/threads/{thread_id}/runs/stream", s.runsHandler.HandleCreateAndStream)
	mux.HandleFunc("GET /api/v1/threads/{thread_id}/runs", s.runsHandler.HandleList)
	mux.HandleFunc("GET /api/v1/threads/{thread_id}/runs/{run_id}", s.runsHandler.HandleGet)
	mux.HandleFunc("GET /api/v1/threads/{thread_id}/runs/{run_id}/stream", s.runsHandler.HandleStream)
	mux.HandleFunc("GET /api/v1/threads/{thread_id}/runs/{run_id}/ws", s.runsHandler.HandleWebSocket)
	mux.HandleFunc("GET /api/v1/threads/{thread_id}/runs/{run_id}/join", s.runsHandler.HandleJoin)
	mux.HandleFunc("POST /api/v1/threads/{thread_id}/runs/{run_id}/cancel", s.runsHandler.HandleCancel)

	rateLimiterCtx, rateLimiterCancel := context.WithCancel(context.Background())
	s.rateLimiterCancel = rateLimiterCancel
	handler := Chain(mux,
		Recovery(s.logger),
		RequestID(),
		SecurityHeaders(),
		RequestLogger(s.logger),
		CORS(s.cfg.Server.CORSAllowedOrigins),
		RateLimiter(rateLimiterCtx, float64(s.cfg.Server.RateLimitRPS), s.cfg.Server.RateLimitBurst, s.logger),
		MetricsMiddleware(s.collector),
	)

	serverConfig := server.Config{
		Addr:            fmt.Sprintf(":%d", s.cfg.Server.HTTPPort),
		ReadTimeout:     s.cfg.Server.ReadTimeout,
		WriteTimeout:    s.cfg.Server.WriteTimeout,
		IdleTimeout:     2 * s.cfg.Server.ReadTimeout,
		MaxHeaderBytes:  1 << 20, // 1 MB
		ShutdownTimeout: s.cfg.Server.ShutdownTimeout,
	}

	s.httpManager = server.NewManager(handler, serverConfig, s.logger)

	if err := s.httpManager.Start(); err != nil {
		return err
	}

	s.logger.Info("HTTP server started", zap.Int("port", s.cfg.Server.HTTPPort))
	return nil
}

func (s *Server) startMetricsServer() error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	serverConfig := server.Config{
		Addr:            fmt.Sprintf(":%d", s.cfg.Server.MetricsPort),
		ReadTimeout:     s.cfg.Server.ReadTimeout,
		WriteTimeout:    s.cfg.Server.ReadTimeout,
		ShutdownTimeout: s.cfg.Server.ShutdownTimeout,
	}

	s.metricsManager = server.NewManager(mux, serverConfig, s.logger)

	if err := s.metricsManager.Start(); err != nil {
		return err
	}

	s.logger.Info("metrics server started", zap.Int("port", s.cfg.Server.MetricsPort))
	return nil
}

// WaitForShutdown blocks until a shutdown signal, then drains everything.
func (s *Server) WaitForShutdown() {
	if s.httpManager != nil {
		s.httpManager.WaitForShutdown()
	}
	s.Shutdown()
}

// Shutdown stops accepting requests, cancels in-flight runs, and closes
// the store.
func (s *Server) Shutdown() {
	s.logger.Info("starting graceful shutdown")

	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.Server.ShutdownTimeout)
	defer cancel()

	if s.rateLimiterCancel != nil {
		s.rateLimiterCancel()
	}

	if s.httpManager != nil {
		if err := s.httpManager.Shutdown(ctx); err != nil {
			s.logger.Error("HTTP server shutdown error", zap.Error(err))
		}
	}

	if s.metricsManager != nil {
		if err := s.metricsManager.Shutdown(ctx); err != nil {
			s.logger.Error("metrics server shutdown error", zap.Error(err))
		}
	}

	if s.orchestrator != nil {
		if err := s.orchestrator.Shutdown(ctx); err != nil {
			s.logger.Error("orchestrator shutdown error", zap.Error(err))
		}
	}

	if s.dbPool != nil {
		if err := s.dbPool.Close(); err != nil {
			s.logger.Error("database pool close error", zap.Error(err))
		}
	}
	if closer, ok := s.runStore.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			s.logger.Error("store close error", zap.Error(err))
		}
	}

	s.logger.Info("graceful shutdown completed")
}
