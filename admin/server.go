// Package admin provides the kernel's optional read-only HTTP surface,
// adapted from the teacher's core/app.go gin engine setup and
// middleware/manager.go's global middleware chain, trimmed to the three
// fixed routes this surface needs.
package admin

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"kerneld/kernel"
	"kerneld/metrics"
)

// Options configures the admin surface.
type Options struct {
	Enabled bool
	Addr    string
}

// Server is the gin-based status/health/metrics surface.
type Server struct {
	engine  *gin.Engine
	http    *http.Server
	manager *kernel.Manager
	logger  *zap.Logger
}

// New builds a Server bound to mgr and exporter. Mounting it is optional and
// never required for kernel operation.
func New(mgr *kernel.Manager, exporter *metrics.PrometheusExporter, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(loggingMiddleware(logger), gin.Recovery())

	engine.GET("/status", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"modules": mgr.StatusSnapshot()})
	})
	engine.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, mgr.HealthTracker().GetSystemHealth())
	})
	if exporter != nil {
		engine.GET("/metrics", gin.WrapH(exporter.Handler()))
	}

	return &Server{engine: engine, manager: mgr, logger: logger}
}

func loggingMiddleware(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Info("admin request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("duration", time.Since(start)),
		)
	}
}

// Start listens on addr in the background. Call Stop to shut it down.
func (s *Server) Start(addr string) {
	s.http = &http.Server{Addr: addr, Handler: s.engine}
	go func() {
		if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error("admin server error", zap.Error(err))
		}
	}()
}

// Stop gracefully shuts the server down.
func (s *Server) Stop(ctx context.Context) error {
	if s.http == nil {
		return nil
	}
	return s.http.Shutdown(ctx)
}
