package persistence

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricsLedgerAppendAndHistory(t *testing.T) {
	ledger, err := Open(":memory:")
	require.NoError(t, err)
	defer ledger.Close()

	require.NoError(t, ledger.AppendHealth("bot", "start", true, 12*time.Millisecond))
	require.NoError(t, ledger.AppendHealth("bot", "start", false, 40*time.Millisecond))

	records, err := ledger.History("bot", time.Hour)
	require.NoError(t, err)
	assert.Len(t, records, 2)
	assert.Equal(t, "start", records[0].Operation)
}

func TestMetricsLedgerMemoryHistory(t *testing.T) {
	ledger, err := Open(":memory:")
	require.NoError(t, err)
	defer ledger.Close()

	require.NoError(t, ledger.AppendMemory("bot", 1024, 4096))

	records, err := ledger.MemoryHistory("bot", time.Hour)
	require.NoError(t, err)
	assert.Len(t, records, 1)
	assert.EqualValues(t, 1024, records[0].HeapUsed)
}
