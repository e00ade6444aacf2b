package kernel

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"
)

// HostAdapter encapsulates process-level global state — signal handlers and
// the shutdown guard — in one object initialized once in main, rather than
// as free module-scope state.
type HostAdapter struct {
	manager         *Manager
	logger          *zap.Logger
	shutdownTimeout time.Duration

	once       sync.Once
	shuttingMu sync.Mutex
	shutting   bool
}

// NewHostAdapter constructs an adapter bound to mgr.
func NewHostAdapter(mgr *Manager, shutdownTimeout time.Duration, logger *zap.Logger) *HostAdapter {
	if logger == nil {
		logger = zap.NewNop()
	}
	if shutdownTimeout <= 0 {
		shutdownTimeout = 30 * time.Second
	}
	return &HostAdapter{manager: mgr, logger: logger, shutdownTimeout: shutdownTimeout}
}

// Run installs SIGINT/SIGTERM handlers exactly once, runs the full
// discover->stop pipeline, and blocks until a shutdown signal arrives or ctx
// is cancelled. Returns the process exit code per spec.md §6: 0 on graceful
// shutdown, 1 on fatal startup error or a forced second signal.
func (h *HostAdapter) Run(ctx context.Context) int {
	if _, err := h.manager.LoadModules(); err != nil {
		h.logger.Error("fatal startup error", zap.Error(err))
		return 1
	}
	if _, err := h.manager.InitializeModules(ctx); err != nil {
		h.logger.Error("fatal startup error", zap.Error(err))
		return 1
	}

	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	select {
	case <-sigCh:
		h.logger.Info("shutdown signal received")
	case <-ctx.Done():
		h.logger.Info("context cancelled")
	}

	forceCh := make(chan os.Signal, 1)
	signal.Notify(forceCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-forceCh
		h.logger.Warn("second termination signal received, forcing exit")
		os.Exit(1)
	}()

	return h.shutdown()
}

func (h *HostAdapter) shutdown() int {
	h.shuttingMu.Lock()
	if h.shutting {
		h.shuttingMu.Unlock()
		return 1
	}
	h.shutting = true
	h.shuttingMu.Unlock()

	done := make(chan struct{})
	go func() {
		defer close(done)
		ctx := context.Background()
		if _, err := h.manager.StopModules(ctx); err != nil {
			h.logger.Error("shutdown error", zap.Error(err))
		}
	}()

	select {
	case <-done:
		h.logger.Info("graceful shutdown complete")
		return 0
	case <-time.After(h.shutdownTimeout):
		h.logger.Error("shutdown exceeded timeout, forcing exit", zap.Error(&ShutdownTimeout{TimeoutMs: int(h.shutdownTimeout.Milliseconds())}))
		return 1
	}
}
