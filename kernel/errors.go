package kernel

import (
	"errors"
	"fmt"
)

// Taxonomy names the category a kernel error belongs to, as returned by
// Classify. The Manager's own log lines do not carry it.
type Taxonomy string

const (
	TaxonomyConfiguration     Taxonomy = "ConfigurationError"
	TaxonomyLoad              Taxonomy = "LoadError"
	TaxonomyDependency        Taxonomy = "DependencyError"
	TaxonomyCycle             Taxonomy = "CycleError"
	TaxonomyLifecycle         Taxonomy = "LifecycleError"
	TaxonomyPlugin            Taxonomy = "PluginError"
	TaxonomyRecoveryExhausted Taxonomy = "RecoveryExhausted"
	TaxonomyShutdownTimeout   Taxonomy = "ShutdownTimeout"
	TaxonomyUnknown           Taxonomy = "Unknown"
)

// ConfigurationError wraps an invalid or unreadable config document. A
// missing file is not this error — see ConfigStore.LoadConfig.
type ConfigurationError struct {
	ModuleName string
	Err        error
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("config error for %q: %v", e.ModuleName, e.Err)
}

func (e *ConfigurationError) Unwrap() error { return e.Err }

// LoadError wraps a module-file-missing, import, or non-Module-subclass
// failure during discovery.
type LoadError struct {
	ModuleName string
	Err        error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("load error for %q: %v", e.ModuleName, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }

// DependencyError wraps a missing dependency or incompatible apiVersion.
// Warning-only; never aborts a batch.
type DependencyError struct {
	ModuleName string
	DependsOn  string
	Err        error
}

func (e *DependencyError) Error() string {
	return fmt.Sprintf("dependency error: %q needs %q: %v", e.ModuleName, e.DependsOn, e.Err)
}

func (e *DependencyError) Unwrap() error { return e.Err }

// CycleError wraps a detected cycle in the dependency graph. Fatal: the
// topological sort cannot proceed.
type CycleError struct {
	Path []string
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("Circular dependency detected: %v", e.Path)
}

// LifecycleError wraps any error returned from onInitialize/onStart/onStop.
// A panic inside those hooks is not recovered and is not wrapped.
type LifecycleError struct {
	ModuleName string
	Operation  string
	Err        error
}

func (e *LifecycleError) Error() string {
	return fmt.Sprintf("lifecycle error in %q during %q: %v", e.ModuleName, e.Operation, e.Err)
}

func (e *LifecycleError) Unwrap() error { return e.Err }

// PluginError wraps any error from a plugin hook. Logged, never fatal; the
// phase for the current module continues.
type PluginError struct {
	PluginName string
	Hook       string
	Err        error
}

func (e *PluginError) Error() string {
	return fmt.Sprintf("plugin %q failed hook %q: %v", e.PluginName, e.Hook, e.Err)
}

func (e *PluginError) Unwrap() error { return e.Err }

// RecoveryExhausted reports that maxAttempts was reached for a module; no
// further attempts are scheduled until the next external trigger.
type RecoveryExhausted struct {
	ModuleName  string
	MaxAttempts int
}

func (e *RecoveryExhausted) Error() string {
	return fmt.Sprintf("recovery exhausted for %q after %d attempts", e.ModuleName, e.MaxAttempts)
}

// ShutdownTimeout reports the shutdown phase exceeded shutdownTimeoutMs.
type ShutdownTimeout struct {
	TimeoutMs int
}

func (e *ShutdownTimeout) Error() string {
	return fmt.Sprintf("shutdown exceeded timeout of %dms", e.TimeoutMs)
}

// Classify inspects err and returns the taxonomy entry it belongs to,
// dispatching by concrete type the way a registered exception filter would.
func Classify(err error) Taxonomy {
	if err == nil {
		return TaxonomyUnknown
	}
	var cfgErr *ConfigurationError
	var loadErr *LoadError
	var depErr *DependencyError
	var cycleErr *CycleError
	var lifeErr *LifecycleError
	var pluginErr *PluginError
	var recErr *RecoveryExhausted
	var shutdownErr *ShutdownTimeout

	switch {
	case errors.As(err, &cfgErr):
		return TaxonomyConfiguration
	case errors.As(err, &loadErr):
		return TaxonomyLoad
	case errors.As(err, &depErr):
		return TaxonomyDependency
	case errors.As(err, &cycleErr):
		return TaxonomyCycle
	case errors.As(err, &lifeErr):
		return TaxonomyLifecycle
	case errors.As(err, &pluginErr):
		return TaxonomyPlugin
	case errors.As(err, &recErr):
		return TaxonomyRecoveryExhausted
	case errors.As(err, &shutdownErr):
		return TaxonomyShutdownTimeout
	default:
		return TaxonomyUnknown
	}
}
