package kernel

import "time"

// ManagerOptions configures a Manager at construction time.
type ManagerOptions struct {
	ModulesPath string
	ConfigPath  string
	AutoStart   bool

	MemoryInspector struct {
		Enabled          bool
		SnapshotInterval time.Duration
		MaxSnapshots     int
		Thresholds       MemoryThresholds
	}

	Recovery RecoveryOptions

	LeakDetection struct {
		Enabled        bool
		CheckOnShutdown bool
	}

	ShutdownTimeout time.Duration

	Debug bool
}

// DefaultManagerOptions returns the documented defaults.
func DefaultManagerOptions(modulesPath, configPath string) ManagerOptions {
	opts := ManagerOptions{
		ModulesPath: modulesPath,
		ConfigPath:  configPath,
		AutoStart:   true,
	}
	opts.MemoryInspector.Enabled = true
	opts.MemoryInspector.SnapshotInterval = 5 * time.Minute
	opts.MemoryInspector.MaxSnapshots = 12
	opts.MemoryInspector.Thresholds = MemoryThresholds{Low: 5, Medium: 20, High: 50}
	opts.Recovery = RecoveryOptions{Enabled: true, MaxAttempts: 3, DelayMs: 5000}
	opts.LeakDetection.Enabled = true
	opts.ShutdownTimeout = 30 * time.Second
	return opts
}
