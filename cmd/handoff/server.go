package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"github.com/BaSui01/handoff/api/handlers"
	"github.com/BaSui01/handoff/config"
	"github.com/BaSui01/handoff/gateway"
	"github.com/BaSui01/handoff/internal/database"
	"github.com/BaSui01/handoff/internal/metrics"
	"github.com/BaSui01/handoff/internal/server"
	"github.com/BaSui01/handoff/internal/telemetry"
	"github.com/BaSui01/handoff/ledger"
	"github.com/BaSui01/handoff/orchestrator"
	"github.com/BaSui01/handoff/providers/assistant"
	"github.com/BaSui01/handoff/providers/telephony"
	"github.com/BaSui01/handoff/queue"
	"github.com/BaSui01/handoff/session"
	"github.com/BaSui01/handoff/webhook"
)

// =============================================================================
// 🖥️ Server 结构
// =============================================================================

// Server 组装 Handoff 的全部组件：会话存储、切换编排、实时网关、
// Webhook 接入、排队投影，以及 API / metrics 两个 HTTP 监听器。
type Server struct {
	cfg    *config.Config
	logger *zap.Logger

	// 服务器管理器
	httpManager    *server.Manager
	metricsManager *server.Manager

	// 核心组件
	store     *session.Store
	pool      *database.PoolManager
	ledger    *ledger.Ledger
	orch      *orchestrator.Orchestrator
	hub       *gateway.Hub
	projector *queue.Projector

	// Handlers
	healthHandler    *handlers.HealthHandler
	sessionHandler   *handlers.SessionHandler
	telephonyIngest  *webhook.TelephonyHandler
	assistantIngest  *webhook.AssistantHandler
	metricsCollector *metrics.Collector

	// OTel providers，关闭时 flush
	otelProviders *telemetry.Providers

	// 后台协程生命周期（hub、projector、rate limiter 清理）
	bgCancel context.CancelFunc
}

// NewServer 创建并组装服务器实例。db 可为 nil（账本降级运行）。
func NewServer(cfg *config.Config, logger *zap.Logger, otelProviders *telemetry.Providers, db *gorm.DB) (*Server, error) {
	s := &Server{
		cfg:           cfg,
		logger:        logger,
		otelProviders: otelProviders,
	}
	if err := s.initComponents(db); err != nil {
		return nil, err
	}
	return s, nil
}

// =============================================================================
// 🔧 组件装配
// =============================================================================

func (s *Server) initComponents(db *gorm.DB) error {
	// 指标收集器
	s.metricsCollector = metrics.NewCollector("handoff", s.logger)

	// 会话存储（Redis）
	store, err := session.NewStore(s.cfg.Redis, s.cfg.Session.TTL, s.logger)
	if err != nil {
		return fmt.Errorf("failed to create session store: %w", err)
	}
	s.store = store

	// 账本连接池（仅在数据库可用时）
	if db != nil {
		pool, err := database.NewPoolManager(db, database.FromDatabaseConfig(s.cfg.Database), s.logger)
		if err != nil {
			s.logger.Warn("Ledger pool manager not available", zap.Error(err))
		} else {
			s.pool = pool
		}
	}
	s.ledger = ledger.New(db, s.logger)

	// 电话信令客户端 + 编排器
	telClient := telephony.NewClient(s.cfg.Telephony, s.logger)
	s.orch = orchestrator.New(s.store, s.ledger, telClient, s.cfg.Telephony, s.logger)
	s.orch.SetCollector(s.metricsCollector)

	// 实时网关
	s.hub = gateway.NewHub(s.cfg.Gateway, s.cfg.Session.OpTimeout, s.store, s.orch, s.metricsCollector, s.logger)
	s.orch.SetBroadcaster(s.hub)

	// 排队投影
	s.projector = queue.NewProjector(s.store, s.hub, s.metricsCollector, s.cfg.Queue, s.logger)

	// Webhook 接入适配器
	dedup := webhook.NewDeduper(s.store.Client(), s.cfg.Session.DedupTTL, s.logger)
	s.telephonyIngest = webhook.NewTelephonyHandler(
		s.store, s.orch, s.ledger, s.hub, dedup, s.metricsCollector, s.cfg.Session.OpTimeout, s.logger)
	s.assistantIngest = webhook.NewAssistantHandler(
		s.store, s.hub, dedup, s.metricsCollector, s.cfg.Session.OpTimeout, s.logger)

	// 管理面 handlers
	s.sessionHandler = handlers.NewSessionHandler(s.store, s.ledger, s.orch, s.metricsCollector, s.logger)
	s.healthHandler = handlers.NewHealthHandler(s.logger)
	s.registerHealthChecks(telClient)

	s.logger.Info("Components initialized",
		zap.Bool("ledger_enabled", db != nil),
		zap.Bool("telephony_configured", s.cfg.Telephony.BaseURL != ""),
	)
	return nil
}

// registerHealthChecks 注册就绪检查：Redis 必查，账本与协作方按配置。
func (s *Server) registerHealthChecks(telClient *telephony.Client) {
	s.healthHandler.RegisterCheck(handlers.NewPingCheck("redis", s.store.Ping))

	if s.pool != nil {
		s.healthHandler.RegisterCheck(handlers.NewPingCheck("ledger_db", s.pool.Ping))
	}

	if s.cfg.Telephony.BaseURL != "" {
		s.healthHandler.RegisterCheck(handlers.NewPingCheck("telephony", telClient.Ping))
	}
	if s.cfg.Assistant.BaseURL != "" {
		asstClient := assistant.NewClient(s.cfg.Assistant, s.logger)
		s.healthHandler.RegisterCheck(handlers.NewPingCheck("assistant", asstClient.Ping))
	}
}

// =============================================================================
// 🚀 启动流程
// =============================================================================

// Start 启动后台协程与两个 HTTP 监听器
func (s *Server) Start() error {
	ctx, cancel := context.WithCancel(context.Background())
	s.bgCancel = cancel

	// 网关事件循环与排队投影
	go s.hub.Run(ctx)
	go s.projector.Run(ctx)

	if err := s.startHTTPServer(ctx); err != nil {
		cancel()
		return fmt.Errorf("failed to start HTTP server: %w", err)
	}

	if err := s.startMetricsServer(); err != nil {
		cancel()
		return fmt.Errorf("failed to start metrics server: %w", err)
	}

	s.logger.Info("All servers started",
		zap.Int("http_port", s.cfg.Server.HTTPPort),
		zap.Int("metrics_port", s.cfg.Server.MetricsPort),
	)

	return nil
}

// =============================================================================
// 🌐 HTTP 服务器
// =============================================================================

func (s *Server) startHTTPServer(bgCtx context.Context) error {
	mux := http.NewServeMux()

	// ========================================
	// 健康检查与版本
	// ========================================
	mux.HandleFunc("GET /health", s.healthHandler.HandleHealth)
	mux.HandleFunc("GET /healthz", s.healthHandler.HandleHealthz)
	mux.HandleFunc("GET /ready", s.healthHandler.HandleReady)
	mux.HandleFunc("GET /readyz", s.healthHandler.HandleReady)
	mux.HandleFunc("GET /version", s.healthHandler.HandleVersion(Version, BuildTime, GitCommit))

	// ========================================
	// 实时网关（仪表盘 WebSocket）
	// ========================================
	mux.HandleFunc("GET /ws", s.hub.ServeWS)

	// ========================================
	// Webhook 接入
	// ========================================
	mux.Handle("POST /webhooks/telephony", s.telephonyIngest)
	mux.Handle("POST /webhooks/assistant", s.assistantIngest)

	// ========================================
	// 管理 API
	// ========================================
	mux.HandleFunc("GET /api/v1/sessions", s.sessionHandler.HandleList)
	mux.HandleFunc("GET /api/v1/sessions/{id}", s.sessionHandler.HandleGet)
	mux.HandleFunc("DELETE /api/v1/sessions/{id}", s.sessionHandler.HandleDelete)
	mux.HandleFunc("GET /api/v1/sessions/{id}/switches", s.sessionHandler.HandleSwitchHistory)
	mux.HandleFunc("GET /api/v1/sessions/{id}/can-switch", s.sessionHandler.HandleCanSwitch)

	// ========================================
	// 中间件链
	// ========================================
	handler := Chain(mux,
		Recovery(s.logger),
		RequestID(),
		SecurityHeaders(),
		OTelTracing(),
		RequestLogger(s.logger),
		MetricsMiddleware(s.metricsCollector),
		CORS(s.cfg.Gateway.AllowedOrigins),
		RateLimiter(bgCtx, float64(s.cfg.Server.RateLimitRPS), s.cfg.Server.RateLimitBurst, s.logger),
	)

	s.httpManager = server.NewManager(handler,
		server.FromAppConfig(s.cfg.Server.HTTPPort, s.cfg.Server), s.logger)

	if err := s.httpManager.Start(); err != nil {
		return err
	}

	s.logger.Info("HTTP server started", zap.Int("port", s.cfg.Server.HTTPPort))
	return nil
}

// =============================================================================
// 📊 Metrics 服务器
// =============================================================================

func (s *Server) startMetricsServer() error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	s.metricsManager = server.NewManager(mux,
		server.FromAppConfig(s.cfg.Server.MetricsPort, s.cfg.Server), s.logger)

	if err := s.metricsManager.Start(); err != nil {
		return err
	}

	s.logger.Info("Metrics server started", zap.Int("port", s.cfg.Server.MetricsPort))
	return nil
}

// =============================================================================
// 🛑 关闭流程
// =============================================================================

// WaitForShutdown 等待关闭信号并优雅关闭
func (s *Server) WaitForShutdown() {
	if s.httpManager != nil {
		s.httpManager.WaitForShutdown()
	}

	s.Shutdown()
}

// Shutdown 优雅关闭所有服务。顺序：先停监听器让在途请求收尾，
// 再停后台协程，最后释放存储连接与遥测。
func (s *Server) Shutdown() {
	s.logger.Info("Starting graceful shutdown...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// 1. 并行关闭两个监听器，让在途请求收尾
	var g errgroup.Group
	if s.httpManager != nil {
		g.Go(func() error { return s.httpManager.Shutdown(ctx) })
	}
	if s.metricsManager != nil {
		g.Go(func() error { return s.metricsManager.Shutdown(ctx) })
	}
	if err := g.Wait(); err != nil {
		s.logger.Error("Listener shutdown error", zap.Error(err))
	}

	// 2. 停止后台协程（projector、rate limiter 清理）并关闭网关
	if s.bgCancel != nil {
		s.bgCancel()
	}
	if s.hub != nil {
		s.hub.Close()
	}

	// 3. 释放存储连接
	if s.store != nil {
		if err := s.store.Close(); err != nil {
			s.logger.Error("Session store close error", zap.Error(err))
		}
	}
	if s.pool != nil {
		if err := s.pool.Close(); err != nil {
			s.logger.Error("Ledger pool close error", zap.Error(err))
		}
	}

	// 4. 遥测 flush
	if s.otelProviders != nil {
		if err := s.otelProviders.Shutdown(ctx); err != nil {
			s.logger.Error("Telemetry shutdown error", zap.Error(err))
		}
	}

	s.logger.Info("Graceful shutdown completed")
}
