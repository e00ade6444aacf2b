package kernel

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeHealthLedger struct {
	module, operation string
	success           bool
	duration          time.Duration
	calls             int
	err               error
}

func (f *fakeHealthLedger) AppendHealth(module, operation string, success bool, duration time.Duration) error {
	f.calls++
	f.module, f.operation, f.success, f.duration = module, operation, success, duration
	return f.err
}

func TestHealthTrackerCountsAndFailures(t *testing.T) {
	h := NewHealthTracker(zap.NewNop(), false)

	h.TrackStart("bot", "initialize")
	time.Sleep(time.Millisecond)
	h.TrackEnd("bot", "initialize", true, StateInitialized)

	h.TrackStart("bot", "initialize")
	time.Sleep(time.Millisecond)
	h.TrackEnd("bot", "initialize", false, StateError)

	m := h.GetModuleMetrics("bot")["initialize"]
	assert.Equal(t, 2, m.Count)
	assert.Equal(t, 1, m.Failures)
	assert.Greater(t, m.AvgDuration, time.Duration(0))
}

func TestHealthTrackerErrorCounter(t *testing.T) {
	h := NewHealthTracker(zap.NewNop(), false)
	h.TrackError("bot", "start")
	h.TrackError("bot", "start")
	m := h.GetModuleMetrics("bot")["start"]
	assert.Equal(t, 2, m.ErrorCount)
	assert.False(t, m.LastErrorTime.IsZero())
}

func TestHealthTrackerSlowestModules(t *testing.T) {
	h := NewHealthTracker(zap.NewNop(), false)

	h.TrackStart("slow", "initialize")
	time.Sleep(5 * time.Millisecond)
	h.TrackEnd("slow", "initialize", true, StateInitialized)

	h.TrackStart("fast", "initialize")
	h.TrackEnd("fast", "initialize", true, StateInitialized)

	slowest := h.GetSlowestModules(2)
	assert.Equal(t, []string{"slow", "fast"}, slowest)
}

func TestHealthTrackerMostErrorProneModules(t *testing.T) {
	h := NewHealthTracker(zap.NewNop(), false)
	h.TrackStart("bad", "start")
	h.TrackEnd("bad", "start", false, StateError)
	h.TrackStart("bad", "start")
	h.TrackEnd("bad", "start", false, StateError)
	h.TrackStart("good", "start")
	h.TrackEnd("good", "start", true, StateRunning)

	ranked := h.GetMostErrorProneModules(5)
	assert.Equal(t, []string{"bad"}, ranked)
}

func TestHealthTrackerSystemHealthFlagsSlowModules(t *testing.T) {
	h := NewHealthTracker(zap.NewNop(), false)

	// Three fast modules keep the system average low enough that the one
	// slow module clears the 2x-average bar.
	for _, name := range []string{"a", "b", "c"} {
		h.TrackStart(name, "initialize")
		h.TrackEnd(name, "initialize", true, StateInitialized)
	}

	h.TrackStart("slow", "initialize")
	time.Sleep(10 * time.Millisecond)
	h.TrackEnd("slow", "initialize", true, StateInitialized)

	sh := h.GetSystemHealth()
	assert.Equal(t, 4, sh.TotalOperations)
	assert.Contains(t, sh.SlowModules, "slow")
	assert.NotContains(t, sh.SlowModules, "a")
}

func TestHealthTrackerAppendsToLedgerOnTrackEnd(t *testing.T) {
	h := NewHealthTracker(zap.NewNop(), false)
	ledger := &fakeHealthLedger{}
	h.SetLedger(ledger)

	h.TrackStart("bot", "start")
	h.TrackEnd("bot", "start", true, StateRunning)

	require.Equal(t, 1, ledger.calls)
	assert.Equal(t, "bot", ledger.module)
	assert.Equal(t, "start", ledger.operation)
	assert.True(t, ledger.success)
}

func TestHealthTrackerSurvivesLedgerError(t *testing.T) {
	h := NewHealthTracker(zap.NewNop(), false)
	h.SetLedger(&fakeHealthLedger{err: errors.New("disk full")})

	assert.NotPanics(t, func() {
		h.TrackStart("bot", "start")
		h.TrackEnd("bot", "start", true, StateRunning)
	})
}
