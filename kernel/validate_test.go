package kernel

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateManagerOptionsRejectsMissingPaths(t *testing.T) {
	opts := DefaultManagerOptions("", "")
	err := ValidateManagerOptions(opts)
	require.Error(t, err)
	var cfgErr *ConfigurationError
	require.ErrorAs(t, err, &cfgErr)
}

func TestValidateManagerOptionsRejectsBadThresholdOrdering(t *testing.T) {
	opts := DefaultManagerOptions("/tmp/modules", "/tmp/config")
	opts.MemoryInspector.Thresholds = MemoryThresholds{Low: 50, Medium: 20, High: 5}
	err := ValidateManagerOptions(opts)
	require.Error(t, err)
}

func TestValidateManagerOptionsAcceptsDefaults(t *testing.T) {
	opts := DefaultManagerOptions("/tmp/modules", "/tmp/config")
	require.NoError(t, ValidateManagerOptions(opts))
}

func TestValidateMetadataRequiresName(t *testing.T) {
	err := ValidateMetadata(Metadata{})
	require.Error(t, err)
}

func TestValidateMetadataRejectsNegativePriority(t *testing.T) {
	err := ValidateMetadata(Metadata{Name: "bot", Priority: -1})
	require.Error(t, err)
}

func TestValidateMetadataAcceptsValid(t *testing.T) {
	assert.NoError(t, ValidateMetadata(Metadata{Name: "bot", Priority: 50}))
}
