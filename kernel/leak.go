package kernel

import (
	"runtime"
	"sync"
	"time"
	"weak"

	"go.uber.org/zap"
)

// LeakTracker is a process-global observer that holds weak handles to
// modules so a post-stop sweep can report which modules are still live
// (potential leaks) after the Manager believes they should be collectable.
// Go's weak.Pointer + runtime.AddCleanup is the GC-observable analogue the
// spec calls for here — unlike Module's back-reference to Manager (a plain
// pointer), weakness here is the entire point.
type LeakTracker struct {
	mu      sync.RWMutex
	handles map[string]weak.Pointer[BaseModule]
	logger  *zap.Logger
}

// NewLeakTracker constructs an empty tracker.
func NewLeakTracker(logger *zap.Logger) *LeakTracker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LeakTracker{handles: make(map[string]weak.Pointer[BaseModule]), logger: logger}
}

// TrackModule stores a weak handle keyed by name and registers a cleanup
// that removes the entry and logs when the module is collected.
func (lt *LeakTracker) TrackModule(name string, m *BaseModule) {
	lt.mu.Lock()
	lt.handles[name] = weak.Make(m)
	lt.mu.Unlock()

	runtime.AddCleanup(m, func(n string) {
		lt.mu.Lock()
		delete(lt.handles, n)
		lt.mu.Unlock()
		lt.logger.Info("module was garbage collected", zap.String("module", n))
	}, name)
}

// IsModuleInMemory reports whether name's weak handle still resolves.
func (lt *LeakTracker) IsModuleInMemory(name string) bool {
	lt.mu.RLock()
	h, ok := lt.handles[name]
	lt.mu.RUnlock()
	if !ok {
		return false
	}
	return h.Value() != nil
}

// GetTrackedModules returns the names of every currently live handle.
func (lt *LeakTracker) GetTrackedModules() []string {
	lt.mu.RLock()
	defer lt.mu.RUnlock()
	out := make([]string, 0, len(lt.handles))
	for name, h := range lt.handles {
		if h.Value() != nil {
			out = append(out, name)
		}
	}
	return out
}

// CheckForLeaks requests heap compaction (twice, bracketing a wait) and
// returns names still live after compaction — potential leaks.
func (lt *LeakTracker) CheckForLeaks(wait time.Duration) []string {
	runtime.GC()
	time.Sleep(wait)
	runtime.GC()
	return lt.GetTrackedModules()
}
