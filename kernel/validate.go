package kernel

import (
	"fmt"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// validatedManagerOptions mirrors ManagerOptions' shape for struct-tag
// validation; kept separate from ManagerOptions itself so the public options
// type (kernel/options.go) stays free of validator tags in its doc surface.
type validatedManagerOptions struct {
	ModulesPath string `validate:"required"`
	ConfigPath  string `validate:"required"`
	Recovery    struct {
		MaxAttempts int `validate:"gte=0"`
		DelayMs     int `validate:"gte=0"`
	}
	MemoryInspector struct {
		SnapshotInterval int `validate:"gte=0"`
		MaxSnapshots     int `validate:"gte=1"`
		Thresholds       struct {
			Low    float64 `validate:"gte=0"`
			Medium float64 `validate:"gtefield=Low"`
			High   float64 `validate:"gtefield=Medium"`
		}
	}
}

// ValidateManagerOptions checks required fields and threshold ordering,
// returning a *ConfigurationError on failure (a trimmed generalization of the
// teacher's gin-body validation pipe down to "validate this struct").
func ValidateManagerOptions(opts ManagerOptions) error {
	v := validatedManagerOptions{
		ModulesPath: opts.ModulesPath,
		ConfigPath:  opts.ConfigPath,
	}
	v.Recovery.MaxAttempts = opts.Recovery.MaxAttempts
	v.Recovery.DelayMs = opts.Recovery.DelayMs
	v.MemoryInspector.SnapshotInterval = int(opts.MemoryInspector.SnapshotInterval.Milliseconds())
	v.MemoryInspector.MaxSnapshots = opts.MemoryInspector.MaxSnapshots
	v.MemoryInspector.Thresholds.Low = opts.MemoryInspector.Thresholds.Low
	v.MemoryInspector.Thresholds.Medium = opts.MemoryInspector.Thresholds.Medium
	v.MemoryInspector.Thresholds.High = opts.MemoryInspector.Thresholds.High

	if err := validate.Struct(v); err != nil {
		return &ConfigurationError{ModuleName: "*", Err: fmt.Errorf("invalid manager options: %w", err)}
	}
	return nil
}

// ValidateMetadata checks a module's static metadata before registration.
func ValidateMetadata(meta Metadata) error {
	if meta.Name == "" {
		return &ConfigurationError{ModuleName: "*", Err: fmt.Errorf("module metadata missing name")}
	}
	if meta.Priority < 0 {
		return &ConfigurationError{ModuleName: meta.Name, Err: fmt.Errorf("priority must be >= 0")}
	}
	return nil
}
