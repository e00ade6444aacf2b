package kernel

import (
	"runtime"
	"runtime/debug"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
)

const bytesPerMB = 1024 * 1024

// Snapshot is a per-module heap-usage sample retained in a bounded ring.
type Snapshot struct {
	Timestamp      time.Time
	HeapUsed       uint64
	HeapTotal      uint64
	External       uint64
	ArrayBuffers   uint64
	ReferenceCount int
}

// MemoryThresholds maps growth rate (MB/h) to severity.
type MemoryThresholds struct {
	Low    float64
	Medium float64
	High   float64
}

// MemoryFinding is one module's growth-analysis result.
type MemoryFinding struct {
	Module          string
	HeapGrowthMB    float64
	GrowthRateMBh   float64
	Severity        string
	Recommendation  string
	TimeElapsedHrs  float64
}

// MemoryReport is MemoryInspector.GenerateMemoryReport's return value.
type MemoryReport struct {
	Timestamp time.Time
	HeapUsed  uint64
	HeapTotal uint64
	Modules   []ModuleMemoryReport
}

// ModuleMemoryReport is the per-module portion of a MemoryReport.
type ModuleMemoryReport struct {
	Module          string
	HeapGrowthMB    float64
	GrowthRateMBh   float64
	LeakProbability string // none, low, medium, high
}

// MemoryLedger is the optional persistence sink MemoryInspector appends a
// row to on every TakeSnapshot, e.g. persistence.MetricsLedger. Nil means no
// sink.
type MemoryLedger interface {
	AppendMemory(module string, heapUsed, heapTotal uint64) error
}

// MemoryInspector periodically samples process heap counters into a bounded
// ring per module and runs growth-rate leak detection.
type MemoryInspector struct {
	mu           sync.RWMutex
	rings        map[string][]Snapshot
	maxSnapshots int
	interval     time.Duration
	thresholds   MemoryThresholds
	manager      *Manager
	logger       *zap.Logger
	ticker       *time.Ticker
	stopCh       chan struct{}
	stopped      sync.Once
	ledger       MemoryLedger
}

// NewMemoryInspector constructs an inspector bound to mgr for module
// enumeration.
func NewMemoryInspector(mgr *Manager, interval time.Duration, maxSnapshots int, thresholds MemoryThresholds, logger *zap.Logger) *MemoryInspector {
	if maxSnapshots <= 0 {
		maxSnapshots = 12
	}
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MemoryInspector{
		rings:        make(map[string][]Snapshot),
		maxSnapshots: maxSnapshots,
		interval:     interval,
		thresholds:   thresholds,
		manager:      mgr,
		logger:       logger,
		stopCh:       make(chan struct{}),
	}
}

// SetLedger attaches an optional persistence sink; pass nil to detach it.
func (mi *MemoryInspector) SetLedger(ledger MemoryLedger) {
	mi.mu.Lock()
	defer mi.mu.Unlock()
	mi.ledger = ledger
}

// Start begins periodic sampling. Idempotent.
func (mi *MemoryInspector) Start() {
	if mi.ticker != nil {
		return
	}
	mi.ticker = time.NewTicker(mi.interval)
	go func() {
		for {
			select {
			case <-mi.ticker.C:
				mi.TakeSnapshot()
			case <-mi.stopCh:
				return
			}
		}
	}()
}

// Stop halts the ticker. Safe to call multiple times.
func (mi *MemoryInspector) Stop() {
	mi.stopped.Do(func() {
		if mi.ticker != nil {
			mi.ticker.Stop()
		}
		close(mi.stopCh)
	})
}

// TakeSnapshot requests a best-effort heap compaction, reads process heap
// counters, and pushes a Snapshot onto every non-disabled module's ring.
func (mi *MemoryInspector) TakeSnapshot() {
	debug.FreeOSMemory()

	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)

	names := mi.manager.enabledModuleNames()
	refCounts := mi.manager.referenceCounts()

	now := time.Now()
	mi.mu.Lock()
	ledger := mi.ledger
	for _, name := range names {
		snap := Snapshot{
			Timestamp:      now,
			HeapUsed:       ms.HeapAlloc,
			HeapTotal:      ms.HeapSys,
			External:       ms.StackSys,
			ArrayBuffers:   ms.MSpanSys,
			ReferenceCount: refCounts[name],
		}
		ring := mi.rings[name]
		ring = append(ring, snap)
		if len(ring) > mi.maxSnapshots {
			ring = ring[len(ring)-mi.maxSnapshots:]
		}
		mi.rings[name] = ring
	}
	mi.mu.Unlock()

	if ledger != nil {
		for _, name := range names {
			if err := ledger.AppendMemory(name, ms.HeapAlloc, ms.HeapSys); err != nil {
				mi.logger.Warn("memory ledger append failed", zap.String("module", name), zap.Error(err))
			}
		}
	}
}

// Ring returns a copy of module's snapshot ring.
func (mi *MemoryInspector) Ring(module string) []Snapshot {
	mi.mu.RLock()
	defer mi.mu.RUnlock()
	ring := mi.rings[module]
	out := make([]Snapshot, len(ring))
	copy(out, ring)
	return out
}

func severity(rate float64, t MemoryThresholds) (string, string) {
	switch {
	case rate >= t.High:
		return "high", "investigate immediately: sustained high heap growth"
	case rate >= t.Medium:
		return "medium", "monitor closely; consider a heap profile"
	case rate >= t.Low:
		return "low", "keep an eye on this module's memory trend"
	default:
		return "", ""
	}
}

// AnalyzeMemoryUsage computes growth rate per module with >= 2 snapshots and
// emits memoryLeaks via the event bus.
func (mi *MemoryInspector) AnalyzeMemoryUsage() []MemoryFinding {
	mi.mu.RLock()
	snapshot := make(map[string][]Snapshot, len(mi.rings))
	for k, v := range mi.rings {
		cp := make([]Snapshot, len(v))
		copy(cp, v)
		snapshot[k] = cp
	}
	mi.mu.RUnlock()

	var findings []MemoryFinding
	for module, ring := range snapshot {
		if len(ring) < 2 {
			continue
		}
		oldest := ring[0]
		newest := ring[len(ring)-1]
		elapsedHrs := newest.Timestamp.Sub(oldest.Timestamp).Hours()
		if elapsedHrs < 0.01 {
			continue
		}
		growthMB := float64(int64(newest.HeapUsed)-int64(oldest.HeapUsed)) / bytesPerMB
		rate := growthMB / elapsedHrs
		sev, rec := severity(rate, mi.thresholds)
		if sev == "" {
			continue
		}
		findings = append(findings, MemoryFinding{
			Module:         module,
			HeapGrowthMB:   growthMB,
			GrowthRateMBh:  rate,
			Severity:       sev,
			Recommendation: rec,
			TimeElapsedHrs: elapsedHrs,
		})
	}
	sort.Slice(findings, func(i, j int) bool { return findings[i].GrowthRateMBh > findings[j].GrowthRateMBh })
	if mi.manager != nil && mi.manager.eventBus != nil {
		mi.manager.eventBus.Publish(EventMemoryLeaks, findings)
	}
	return findings
}

// GenerateMemoryReport snapshots current heap totals plus a per-module
// growth/leak-probability breakdown, sorted by growth rate descending.
func (mi *MemoryInspector) GenerateMemoryReport() MemoryReport {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)

	findings := mi.AnalyzeMemoryUsage()
	bySeverity := map[string]string{"high": "high", "medium": "medium", "low": "low"}

	report := MemoryReport{
		Timestamp: time.Now(),
		HeapUsed:  ms.HeapAlloc,
		HeapTotal: ms.HeapSys,
	}
	seen := make(map[string]bool)
	for _, f := range findings {
		prob := bySeverity[f.Severity]
		if prob == "" {
			prob = "none"
		}
		report.Modules = append(report.Modules, ModuleMemoryReport{
			Module:          f.Module,
			HeapGrowthMB:    f.HeapGrowthMB,
			GrowthRateMBh:   f.GrowthRateMBh,
			LeakProbability: prob,
		})
		seen[f.Module] = true
	}
	mi.mu.RLock()
	for module, ring := range mi.rings {
		if seen[module] {
			continue
		}
		entry := ModuleMemoryReport{Module: module, LeakProbability: "none"}
		if len(ring) >= 2 {
			entry.HeapGrowthMB = float64(int64(ring[len(ring)-1].HeapUsed)-int64(ring[0].HeapUsed)) / bytesPerMB
			if hrs := ring[len(ring)-1].Timestamp.Sub(ring[0].Timestamp).Hours(); hrs >= 0.01 {
				entry.GrowthRateMBh = entry.HeapGrowthMB / hrs
			}
		}
		report.Modules = append(report.Modules, entry)
	}
	mi.mu.RUnlock()
	sort.Slice(report.Modules, func(i, j int) bool {
		return report.Modules[i].GrowthRateMBh > report.Modules[j].GrowthRateMBh
	})
	return report
}
