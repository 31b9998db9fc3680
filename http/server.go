// Package http 提供分类服务的HTTP服务器
package http

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"geoclassify/monitoring"
)

// Server HTTP服务器
type Server struct {
	server *http.Server
	config ServerConfig
	logger *zap.Logger
}

// ServerConfig 服务器配置
type ServerConfig struct {
	Port           int
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	AllowedOrigins []string
	// MaxBodyBytes 请求体上限
	MaxBodyBytes int64
	// FilesDir 非空时在 /files/ 下提供本地存储目录
	FilesDir string
}

// DefaultServerConfig 默认服务器配置
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Port:           8000,
		ReadTimeout:    30 * time.Second,
		WriteTimeout:   120 * time.Second,
		AllowedOrigins: []string{"*"},
		MaxBodyBytes:   512 << 20,
	}
}

// NewServer 创建HTTP服务器；metrics 非空时记录请求指标并提供 GET /metrics
func NewServer(config ServerConfig, handler *Handler, metrics *monitoring.MetricsCollector, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("http")

	mux := http.NewServeMux()
	handler.Register(mux)
	if config.FilesDir != "" {
		mux.Handle("GET /files/", http.StripPrefix("/files/", http.FileServer(http.Dir(config.FilesDir))))
	}
	if metrics != nil {
		mux.Handle("GET /metrics", MetricsHandler(metrics))
	}

	// 创建中间件链
	chain := Chain(
		RecoveryMiddleware(logger),                 // 1. 恢复中间件（最先执行，捕获panic）
		LoggerMiddleware(logger),                   // 2. 日志中间件
		MetricsMiddleware(metrics),                 // 3. 指标中间件
		CORSMiddleware(config.AllowedOrigins),      // 4. CORS中间件
		RequestSizeMiddleware(config.MaxBodyBytes), // 5. 请求大小限制中间件
	)

	return &Server{
		server: &http.Server{
			Addr:         fmt.Sprintf(":%d", config.Port),
			Handler:      chain(mux),
			ReadTimeout:  config.ReadTimeout,
			WriteTimeout: config.WriteTimeout,
			IdleTimeout:  120 * time.Second,
		},
		config: config,
		logger: logger,
	}
}

// Start 启动服务器
func (s *Server) Start() error {
	s.logger.Info("starting HTTP server", zap.String("addr", s.server.Addr))

	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server failed: %w", err)
	}
	return nil
}

// Stop 停止服务器，等待进行中的请求完成
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("shutting down HTTP server")

	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	return nil
}

// Addr 返回服务器地址
func (s *Server) Addr() string {
	return s.server.Addr
}

// Handler 返回包含中间件的根处理器
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}
