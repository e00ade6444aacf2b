package kernel

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// RecoveryOptions configures the bounded retry supervisor.
type RecoveryOptions struct {
	Enabled     bool
	MaxAttempts int
	DelayMs     int
}

// RecoverySupervisor schedules a delayed recoverModule(name) after a
// moduleError whose operation is not "initialization", bounded by
// maxAttempts per module; the counter clears on success.
type RecoverySupervisor struct {
	mu       sync.Mutex
	attempts map[string]int
	opts     RecoveryOptions
	manager  *Manager
	logger   *zap.Logger
	timers   map[string]*time.Timer
}

// NewRecoverySupervisor constructs a supervisor bound to mgr.
func NewRecoverySupervisor(mgr *Manager, opts RecoveryOptions, logger *zap.Logger) *RecoverySupervisor {
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 3
	}
	if opts.DelayMs <= 0 {
		opts.DelayMs = 5000
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RecoverySupervisor{
		attempts: make(map[string]int),
		opts:     opts,
		manager:  mgr,
		logger:   logger,
		timers:   make(map[string]*time.Timer),
	}
}

// OnModuleError is the Manager's moduleError hook into the supervisor.
func (rs *RecoverySupervisor) OnModuleError(name, operation string) {
	if !rs.opts.Enabled || operation == "initialization" {
		return
	}
	rs.mu.Lock()
	if rs.attempts[name] >= rs.opts.MaxAttempts {
		rs.mu.Unlock()
		err := &RecoveryExhausted{ModuleName: name, MaxAttempts: rs.opts.MaxAttempts}
		rs.logger.Warn("recovery exhausted", zap.String("module", name), zap.Error(err))
		return
	}
	rs.attempts[name]++
	attempt := rs.attempts[name]
	rs.mu.Unlock()

	rs.logger.Info("scheduling recovery attempt", zap.String("module", name), zap.Int("attempt", attempt))
	timer := time.AfterFunc(time.Duration(rs.opts.DelayMs)*time.Millisecond, func() {
		rs.attempt(name)
	})
	rs.mu.Lock()
	rs.timers[name] = timer
	rs.mu.Unlock()
}

func (rs *RecoverySupervisor) attempt(name string) {
	ctx := context.Background()
	if err := rs.manager.RecoverModule(ctx, name); err != nil {
		rs.logger.Warn("recovery attempt failed", zap.String("module", name), zap.Error(err))
		return
	}
	rs.mu.Lock()
	delete(rs.attempts, name)
	delete(rs.timers, name)
	rs.mu.Unlock()
	rs.logger.Info("recovery succeeded, counter cleared", zap.String("module", name))
}

// Attempts returns the current retry counter for name (test/introspection hook).
func (rs *RecoverySupervisor) Attempts(name string) int {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	return rs.attempts[name]
}

// Stop cancels any pending recovery timers.
func (rs *RecoverySupervisor) Stop() {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	for _, t := range rs.timers {
		t.Stop()
	}
}
