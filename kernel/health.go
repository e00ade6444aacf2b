package kernel

import (
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
)

// OperationMetrics records timing and failure counters for a (module,
// operation) pair.
type OperationMetrics struct {
	Count         int
	TotalDuration time.Duration
	Failures      int
	LastDuration  time.Duration
	AvgDuration   time.Duration
	LastState     ModuleState
	ErrorCount    int
	LastErrorTime time.Time
}

type opKey struct {
	module    string
	operation string
}

// HealthLedger is the optional persistence sink HealthTracker appends a row
// to on every TrackEnd, e.g. persistence.MetricsLedger. Nil means no sink.
type HealthLedger interface {
	AppendHealth(module, operation string, success bool, duration time.Duration) error
}

// HealthTracker records per-operation timing and error counters, keyed by
// (module, operation).
type HealthTracker struct {
	mu      sync.RWMutex
	ops     map[opKey]*OperationMetrics
	starts  map[opKey]time.Time
	logger  *zap.Logger
	debug   bool
	slowMs  time.Duration
	debugMs time.Duration
	ledger  HealthLedger
}

// NewHealthTracker constructs a tracker. debug enables the 1s warning tier in
// addition to the always-on 5s tier.
func NewHealthTracker(logger *zap.Logger, debug bool) *HealthTracker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HealthTracker{
		ops:     make(map[opKey]*OperationMetrics),
		starts:  make(map[opKey]time.Time),
		logger:  logger,
		debug:   debug,
		slowMs:  5 * time.Second,
		debugMs: 1 * time.Second,
	}
}

// SetLedger attaches an optional persistence sink; pass nil to detach it.
func (h *HealthTracker) SetLedger(ledger HealthLedger) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.ledger = ledger
}

// TrackStart stamps a monotonic timestamp for a (module, operation) pair.
func (h *HealthTracker) TrackStart(module, operation string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.starts[opKey{module, operation}] = time.Now()
}

// TrackEnd computes the duration since TrackStart, updates aggregates, and
// warns on slow operations.
func (h *HealthTracker) TrackEnd(module, operation string, success bool, state ModuleState) {
	key := opKey{module, operation}
	h.mu.Lock()
	start, ok := h.starts[key]
	var dur time.Duration
	if ok {
		dur = time.Since(start)
		delete(h.starts, key)
	}
	m, ok := h.ops[key]
	if !ok {
		m = &OperationMetrics{}
		h.ops[key] = m
	}
	m.Count++
	m.TotalDuration += dur
	m.LastDuration = dur
	m.AvgDuration = h.safeDiv(m.TotalDuration, m.Count)
	m.LastState = state
	if !success {
		m.Failures++
	}
	ledger := h.ledger
	h.mu.Unlock()

	if dur >= h.slowMs {
		h.logger.Warn("slow operation", zap.String("module", module), zap.String("operation", operation), zap.Duration("duration", dur))
	} else if h.debug && dur >= h.debugMs {
		h.logger.Debug("slow operation (debug threshold)", zap.String("module", module), zap.String("operation", operation), zap.Duration("duration", dur))
	}

	if ledger != nil {
		if err := ledger.AppendHealth(module, operation, success, dur); err != nil {
			h.logger.Warn("health ledger append failed", zap.String("module", module), zap.String("operation", operation), zap.Error(err))
		}
	}
}

func (h *HealthTracker) safeDiv(total time.Duration, count int) time.Duration {
	if count == 0 {
		return 0
	}
	return total / time.Duration(count)
}

// TrackError increments errorCount and lastErrorTime for (module, operation).
func (h *HealthTracker) TrackError(module, operation string) {
	key := opKey{module, operation}
	h.mu.Lock()
	defer h.mu.Unlock()
	m, ok := h.ops[key]
	if !ok {
		m = &OperationMetrics{}
		h.ops[key] = m
	}
	m.ErrorCount++
	m.LastErrorTime = time.Now()
}

// GetMetrics returns a snapshot copy of every tracked operation.
func (h *HealthTracker) GetMetrics() map[string]map[string]OperationMetrics {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make(map[string]map[string]OperationMetrics)
	for k, v := range h.ops {
		if out[k.module] == nil {
			out[k.module] = make(map[string]OperationMetrics)
		}
		out[k.module][k.operation] = *v
	}
	return out
}

// GetModuleMetrics returns the operations tracked for a single module.
func (h *HealthTracker) GetModuleMetrics(module string) map[string]OperationMetrics {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make(map[string]OperationMetrics)
	for k, v := range h.ops {
		if k.module == module {
			out[k.operation] = *v
		}
	}
	return out
}

type moduleAvg struct {
	module string
	avg    time.Duration
}

// GetSlowestModules ranks modules (with at least one completed "initialize")
// by descending average duration.
func (h *HealthTracker) GetSlowestModules(limit int) []string {
	h.mu.RLock()
	var avgs []moduleAvg
	for k, v := range h.ops {
		if k.operation == "initialize" && v.Count > 0 {
			avgs = append(avgs, moduleAvg{k.module, v.AvgDuration})
		}
	}
	h.mu.RUnlock()
	sort.Slice(avgs, func(i, j int) bool { return avgs[i].avg > avgs[j].avg })
	if limit > 0 && limit < len(avgs) {
		avgs = avgs[:limit]
	}
	out := make([]string, len(avgs))
	for i, a := range avgs {
		out[i] = a.module
	}
	return out
}

type moduleFailures struct {
	module string
	total  int
}

// GetMostErrorProneModules ranks modules by total failures across all
// operations, descending.
func (h *HealthTracker) GetMostErrorProneModules(limit int) []string {
	h.mu.RLock()
	totals := make(map[string]int)
	for k, v := range h.ops {
		totals[k.module] += v.Failures
	}
	h.mu.RUnlock()
	var ranked []moduleFailures
	for m, t := range totals {
		if t > 0 {
			ranked = append(ranked, moduleFailures{m, t})
		}
	}
	sort.Slice(ranked, func(i, j int) bool { return ranked[i].total > ranked[j].total })
	if limit > 0 && limit < len(ranked) {
		ranked = ranked[:limit]
	}
	out := make([]string, len(ranked))
	for i, r := range ranked {
		out[i] = r.module
	}
	return out
}

// SystemHealth aggregates totals across every tracked module/operation.
type SystemHealth struct {
	TotalOperations int
	TotalFailures   int
	TotalErrors     int
	SlowModules     []string
}

// GetSystemHealth aggregates totals; SlowModules are modules whose average
// init duration exceeds 2x the system average init duration.
func (h *HealthTracker) GetSystemHealth() SystemHealth {
	h.mu.RLock()
	defer h.mu.RUnlock()
	var sh SystemHealth
	var initTotal time.Duration
	var initCount int
	initAvgByModule := make(map[string]time.Duration)
	for k, v := range h.ops {
		sh.TotalOperations += v.Count
		sh.TotalFailures += v.Failures
		sh.TotalErrors += v.ErrorCount
		if k.operation == "initialize" && v.Count > 0 {
			initTotal += v.TotalDuration
			initCount += v.Count
			initAvgByModule[k.module] = v.AvgDuration
		}
	}
	if initCount == 0 {
		return sh
	}
	systemAvg := initTotal / time.Duration(initCount)
	for module, avg := range initAvgByModule {
		if avg > 2*systemAvg {
			sh.SlowModules = append(sh.SlowModules, module)
		}
	}
	sort.Strings(sh.SlowModules)
	return sh
}
