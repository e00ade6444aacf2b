package kernel

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

// Property 8: RecoverySupervisor issues at most maxAttempts retries between
// consecutive successes; it never schedules a retry past the bound.
func TestRecoverySupervisorBoundedByMaxAttempts(t *testing.T) {
	mgr, _ := newTestManager(t)
	mgr.opts.Recovery = RecoveryOptions{Enabled: true, MaxAttempts: 2, DelayMs: 5}
	mgr.recovery = NewRecoverySupervisor(mgr, mgr.opts.Recovery, zap.NewNop())

	var log []string
	alwaysFails := newFakeModule("A", nil, &log, func(ctx context.Context) error {
		return fmt.Errorf("always fails")
	})
	require.NoError(t, mgr.registerModule("A", alwaysFails))

	ctx := context.Background()
	_, err := mgr.InitializeModules(ctx)
	require.NoError(t, err)
	_, err = mgr.StartModules(ctx)
	require.NoError(t, err)
	assert.Equal(t, StateError, alwaysFails.GetState())

	// Two scheduled attempts, each delayed 5ms; give both time to run and
	// exhaust, then confirm the counter stops climbing past MaxAttempts.
	time.Sleep(80 * time.Millisecond)
	assert.LessOrEqual(t, mgr.recovery.Attempts("A"), mgr.opts.Recovery.MaxAttempts)
}

// Exhaustion must log a real *RecoveryExhausted, not just a bare string, so
// Classify dispatches it consistently with every other taxonomy entry.
func TestRecoverySupervisorExhaustionLogsRecoveryExhausted(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	mgr, _ := newTestManager(t)
	mgr.opts.Recovery = RecoveryOptions{Enabled: true, MaxAttempts: 1, DelayMs: 5}
	mgr.recovery = NewRecoverySupervisor(mgr, mgr.opts.Recovery, zap.New(core))

	mgr.recovery.OnModuleError("A", "start")
	time.Sleep(30 * time.Millisecond)
	mgr.recovery.OnModuleError("A", "start")

	var found *RecoveryExhausted
	for _, entry := range logs.All() {
		for _, f := range entry.Context {
			if err, ok := f.Interface.(error); ok && errors.As(err, &found) {
				break
			}
		}
	}
	require.NotNil(t, found, "expected a logged *RecoveryExhausted")
	assert.Equal(t, "A", found.ModuleName)
	assert.Equal(t, 1, found.MaxAttempts)
	assert.Equal(t, TaxonomyRecoveryExhausted, Classify(found))
}

func TestRecoverySupervisorIgnoresInitializationFailures(t *testing.T) {
	mgr, _ := newTestManager(t)
	mgr.opts.Recovery = RecoveryOptions{Enabled: true, MaxAttempts: 3, DelayMs: 5}
	mgr.recovery = NewRecoverySupervisor(mgr, mgr.opts.Recovery, zap.NewNop())

	mgr.recovery.OnModuleError("A", "initialization")
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 0, mgr.recovery.Attempts("A"), "initialization failures must not trigger recovery")
}
