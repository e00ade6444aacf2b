package kernel

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeMemoryLedger struct {
	calls   int
	modules []string
}

func (f *fakeMemoryLedger) AppendMemory(module string, heapUsed, heapTotal uint64) error {
	f.calls++
	f.modules = append(f.modules, module)
	return nil
}

func TestMemoryInspectorRingBounded(t *testing.T) {
	mgr, _ := newTestManager(t)
	var log []string
	mod := newFakeModule("m", nil, &log, nil)
	_ = mgr.registerModule("m", mod)

	mi := NewMemoryInspector(mgr, time.Hour, 3, MemoryThresholds{Low: 5, Medium: 20, High: 50}, zap.NewNop())
	for i := 0; i < 5; i++ {
		mi.TakeSnapshot()
	}
	assert.LessOrEqual(t, len(mi.Ring("m")), 3)
}

// Scenario 5 — leak detection: thresholds {low:5, medium:20, high:50}, two
// snapshots for module X one hour apart showing a 25MB heapUsed difference.
// Expected finding: severity "medium", growthRate ~= 25.
func TestAnalyzeMemoryUsageSeverityScenario(t *testing.T) {
	mi := NewMemoryInspector(nil, time.Hour, 12, MemoryThresholds{Low: 5, Medium: 20, High: 50}, zap.NewNop())
	now := time.Now()
	mi.rings["X"] = []Snapshot{
		{Timestamp: now, HeapUsed: 100 * bytesPerMB},
		{Timestamp: now.Add(time.Hour), HeapUsed: 125 * bytesPerMB},
	}
	findings := mi.AnalyzeMemoryUsage()
	assert.Len(t, findings, 1)
	assert.Equal(t, "X", findings[0].Module)
	assert.Equal(t, "medium", findings[0].Severity)
	assert.InDelta(t, 25.0, findings[0].GrowthRateMBh, 0.01)
}

func TestAnalyzeMemoryUsageIgnoresBelowLowThreshold(t *testing.T) {
	mi := NewMemoryInspector(nil, time.Hour, 12, MemoryThresholds{Low: 5, Medium: 20, High: 50}, zap.NewNop())
	now := time.Now()
	mi.rings["Y"] = []Snapshot{
		{Timestamp: now, HeapUsed: 100 * bytesPerMB},
		{Timestamp: now.Add(time.Hour), HeapUsed: 102 * bytesPerMB},
	}
	findings := mi.AnalyzeMemoryUsage()
	assert.Empty(t, findings)
}

func TestAnalyzeMemoryUsageSkipsSingleSnapshot(t *testing.T) {
	mi := NewMemoryInspector(nil, time.Hour, 12, MemoryThresholds{Low: 5, Medium: 20, High: 50}, zap.NewNop())
	mi.rings["Z"] = []Snapshot{{Timestamp: time.Now(), HeapUsed: 10}}
	assert.Empty(t, mi.AnalyzeMemoryUsage())
}

func TestMemoryInspectorAppendsToLedgerOnTakeSnapshot(t *testing.T) {
	mgr, _ := newTestManager(t)
	var log []string
	require.NoError(t, mgr.registerModule("m", newFakeModule("m", nil, &log, nil)))

	mi := NewMemoryInspector(mgr, time.Hour, 3, MemoryThresholds{Low: 5, Medium: 20, High: 50}, zap.NewNop())
	ledger := &fakeMemoryLedger{}
	mi.SetLedger(ledger)

	mi.TakeSnapshot()

	require.Equal(t, 1, ledger.calls)
	assert.Equal(t, []string{"m"}, ledger.modules)
}
