package kernel

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
)

// LoadTally is the {loaded, disabled, failed} summary returned by a load or
// lifecycle pass. Only LoadModules logs it; the initialize, start and stop
// passes return it without logging.
type LoadTally struct {
	Loaded   int
	Disabled int
	Failed   int
}

// ModuleStatus is one entry of the status snapshot emitted with "ready" and
// served by the admin surface.
type ModuleStatus struct {
	Name         string
	State        ModuleState
	Dependencies []string
	Version      string
	APIVersion   string
	HasError     bool
	Metrics      map[string]OperationMetrics
}

type cacheEntry struct {
	timestamp time.Time
	data      any
}

// MetricsExporter receives the fanned-out payload from Manager.ExportMetrics.
type MetricsExporter interface {
	Export(data ExportedMetrics) error
}

// ExportedMetrics is the payload assembled by ExportMetrics.
type ExportedMetrics struct {
	Modules   []ModuleStatus
	Health    map[string]map[string]OperationMetrics
	Memory    MemoryReport
	Timestamp time.Time
}

// Manager is the scheduler and registry: it owns the module registry, the
// topological scheduler, the event bus wiring, and plugin/exporter dispatch.
type Manager struct {
	mu      sync.RWMutex
	modules map[string]Module
	dirs    map[string]string // module name -> discovered directory

	opts     ManagerOptions
	registry *Registry
	logger   *zap.Logger

	healthTracker *HealthTracker
	configStore   *ConfigStore
	memoryInsp    *MemoryInspector
	leakTracker   *LeakTracker
	recovery      *RecoverySupervisor
	pluginManager *PluginManager
	eventBus      *EventBus

	exporters []MetricsExporter

	cacheMu sync.Mutex
	cache   map[string]cacheEntry

	initialized bool
	sortedOrder []string
}

// NewManager constructs a Manager. Its own fixed sub-components (health
// tracker, config store, memory inspector, leak tracker, recovery
// supervisor, event bus) are built here; cmd/kerneld uses fx only to supply
// the options and logger and to construct the Manager itself.
func NewManager(opts ManagerOptions, registry *Registry, logger *zap.Logger) (*Manager, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if registry == nil {
		registry = DefaultRegistry
	}
	if err := ValidateManagerOptions(opts); err != nil {
		return nil, err
	}

	m := &Manager{
		modules:       make(map[string]Module),
		dirs:          make(map[string]string),
		opts:          opts,
		registry:      registry,
		logger:        logger,
		healthTracker: NewHealthTracker(logger, opts.Debug),
		configStore:   NewConfigStore(opts.ConfigPath),
		leakTracker:   NewLeakTracker(logger),
		pluginManager: NewPluginManager(logger),
		eventBus:      NewEventBus(logger),
		cache:         make(map[string]cacheEntry),
	}
	m.recovery = NewRecoverySupervisor(m, opts.Recovery, logger)
	m.memoryInsp = NewMemoryInspector(m, opts.MemoryInspector.SnapshotInterval, opts.MemoryInspector.MaxSnapshots, opts.MemoryInspector.Thresholds, logger)
	return m, nil
}

// EventBus exposes the Manager-observable event bus for subscribers.
func (m *Manager) EventBus() *EventBus { return m.eventBus }

// HealthTracker exposes the per-operation timing tracker.
func (m *Manager) HealthTracker() *HealthTracker { return m.healthTracker }

// ConfigStore exposes the per-module config document store.
func (m *Manager) ConfigStore() *ConfigStore { return m.configStore }

// MemoryInspector exposes the periodic heap sampler.
func (m *Manager) MemoryInspector() *MemoryInspector { return m.memoryInsp }

// LeakTracker exposes the weak-reference leak registry.
func (m *Manager) LeakTracker() *LeakTracker { return m.leakTracker }

// GetModule returns the registered module instance, or nil.
func (m *Manager) GetModule(name string) Module {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.modules[name]
}

// LoadModules enumerates entries under ModulesPath, keeping directories, and
// loads each in parallel via the Registry.
func (m *Manager) LoadModules() (LoadTally, error) {
	entries, err := os.ReadDir(m.opts.ModulesPath)
	if err != nil {
		return LoadTally{}, &LoadError{ModuleName: "*", Err: err}
	}

	type result struct {
		name     string
		disabled bool
		failed   bool
	}
	var wg sync.WaitGroup
	results := make(chan result, len(entries))

	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		name := e.Name()
		wg.Add(1)
		go func(name string) {
			defer wg.Done()
			disabled, err := m.loadOne(name)
			if err != nil {
				m.logger.Warn("module load failed", zap.String("module", name), zap.Error(err))
				results <- result{name: name, failed: true}
				return
			}
			results <- result{name: name, disabled: disabled}
		}(name)
	}
	wg.Wait()
	close(results)

	var tally LoadTally
	for r := range results {
		switch {
		case r.failed:
			tally.Failed++
		case r.disabled:
			tally.Disabled++
		default:
			tally.Loaded++
		}
	}

	m.validateDependencies()
	m.logger.Info("module load complete", zap.Int("loaded", tally.Loaded), zap.Int("disabled", tally.Disabled), zap.Int("failed", tally.Failed))
	return tally, nil
}

// loadOne loads a single module directory: resolves its Factory, checks
// disabled flags, registers it. Returns (disabled, error).
func (m *Manager) loadOne(name string) (bool, error) {
	m.pluginManager.BeforeModuleLoad(name)

	factory, ok := m.registry.Lookup(name)
	if !ok {
		return false, &LoadError{ModuleName: name, Err: fmt.Errorf("not a registered Module factory")}
	}
	mod := factory()
	meta := mod.Describe()
	if err := ValidateMetadata(meta); err != nil {
		return false, err
	}

	mod.setManager(m)

	cfg, _ := m.configStore.LoadConfig(name)
	configDisabled, _ := ConfigBool(cfg, "disabled")
	if meta.Disabled || configDisabled {
		return true, nil
	}

	if err := m.registerModule(name, mod); err != nil {
		return false, err
	}
	m.dirs[name] = filepath.Join(m.opts.ModulesPath, name)

	if bm, ok := mod.(interface{ asBaseModule() *BaseModule }); ok {
		m.leakTracker.TrackModule(name, bm.asBaseModule())
	}

	m.pluginManager.AfterModuleLoad(name, mod)
	return false, nil
}

// registerModule refuses duplicate names (fatal) and installs the manager
// back-reference a second time to guarantee it survives subclass quirks.
func (m *Manager) registerModule(name string, mod Module) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.modules[name]; exists {
		return fmt.Errorf("duplicate module name %q", name)
	}
	m.modules[name] = mod
	mod.setManager(m)
	return nil
}

// validateDependencies logs warnings for missing deps and incompatible
// apiVersions. Never fatal.
func (m *Manager) validateDependencies() {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for name, mod := range m.modules {
		meta := mod.Describe()
		for _, dep := range meta.Dependencies {
			depMod, ok := m.modules[dep]
			if !ok {
				m.logger.Warn("missing dependency", zap.String("module", name), zap.String("dependency", dep), zap.Error(&DependencyError{ModuleName: name, DependsOn: dep, Err: fmt.Errorf("not registered")}))
				continue
			}
			if minVersion, ok := meta.DependencyVersions[dep]; ok {
				if CompareVersions(depMod.GetAPIVersion(), minVersion) < 0 {
					m.logger.Warn("dependency version too low", zap.String("module", name), zap.String("dependency", dep),
						zap.Error(&DependencyError{ModuleName: name, DependsOn: dep, Err: fmt.Errorf("requires >= %s, have %s", minVersion, depMod.GetAPIVersion())}))
				}
			}
		}
	}
}

// sortModulesByDependencies runs a DFS with a visiting set to detect cycles,
// seeded in descending priority order. Unregistered dependencies are
// silently skipped (already warned about in validateDependencies).
func (m *Manager) sortModulesByDependencies() ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	names := make([]string, 0, len(m.modules))
	for name := range m.modules {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		return m.modules[names[i]].Describe().Priority > m.modules[names[j]].Describe().Priority
	})

	const (
		unvisited = 0
		visiting  = 1
		visited   = 2
	)
	state := make(map[string]int, len(names))
	var order []string
	var path []string

	var visit func(name string) error
	visit = func(name string) error {
		switch state[name] {
		case visited:
			return nil
		case visiting:
			cyclePath := append(append([]string{}, path...), name)
			return &CycleError{Path: cyclePath}
		}
		state[name] = visiting
		path = append(path, name)

		mod, ok := m.modules[name]
		if ok {
			for _, dep := range mod.Describe().Dependencies {
				if _, registered := m.modules[dep]; !registered {
					continue
				}
				if err := visit(dep); err != nil {
					return err
				}
			}
		}

		path = path[:len(path)-1]
		state[name] = visited
		order = append(order, name)
		return nil
	}

	for _, name := range names {
		if err := visit(name); err != nil {
			return nil, err
		}
	}
	return order, nil
}

func reversed(s []string) []string {
	out := make([]string, len(s))
	for i, v := range s {
		out[len(s)-1-i] = v
	}
	return out
}

// InitializeModules iterates the sorted order sequentially, firing plugin
// hooks and recording timings around each module's Initialize call.
func (m *Manager) InitializeModules(ctx context.Context) (LoadTally, error) {
	order, err := m.sortModulesByDependencies()
	if err != nil {
		return LoadTally{}, err
	}
	m.sortedOrder = order

	var tally LoadTally
	for _, name := range order {
		mod := m.GetModule(name)
		if mod == nil {
			continue
		}
		if mod.GetState() == StateInitialized {
			tally.Loaded++
			continue
		}
		m.pluginManager.BeforeModuleInitialize(name)
		m.healthTracker.TrackStart(name, "initialize")
		err := mod.Initialize(ctx)
		success := mod.GetState() == StateInitialized
		m.healthTracker.TrackEnd(name, "initialize", success, mod.GetState())
		if err != nil {
			tally.Failed++
			m.onModuleError(name, err, "initialization")
			m.pluginManager.OnError(name, "initialization", err)
		} else {
			tally.Loaded++
		}
		m.pluginManager.AfterModuleInitialize(name, mod)
	}

	m.initialized = true
	if m.opts.MemoryInspector.Enabled {
		m.memoryInsp.Start()
	}
	if m.opts.AutoStart {
		if _, err := m.StartModules(ctx); err != nil {
			return tally, err
		}
	}
	return tally, nil
}

// StartModules requires Initialize to have run first. Same sequential,
// sorted-order pass, permissible from INITIALIZED or STOPPED.
func (m *Manager) StartModules(ctx context.Context) (LoadTally, error) {
	if !m.initialized {
		return LoadTally{}, fmt.Errorf("cannot start modules before initialize")
	}
	var tally LoadTally
	for _, name := range m.sortedOrder {
		mod := m.GetModule(name)
		if mod == nil {
			continue
		}
		state := mod.GetState()
		if state != StateInitialized && state != StateStopped {
			continue
		}
		m.pluginManager.BeforeModuleStart(name)
		m.healthTracker.TrackStart(name, "start")
		err := mod.Start(ctx)
		success := mod.GetState() == StateRunning
		m.healthTracker.TrackEnd(name, "start", success, mod.GetState())
		if err != nil {
			tally.Failed++
			m.onModuleError(name, err, "start")
			m.pluginManager.OnError(name, "start", err)
		} else {
			tally.Loaded++
		}
		m.pluginManager.AfterModuleStart(name, mod)
	}

	status := m.statusSnapshot()
	m.eventBus.Publish(EventReady, status)
	return tally, nil
}

// StopModules stops the memory inspector first, then iterates in reverse
// sorted order, best-effort.
func (m *Manager) StopModules(ctx context.Context) (LoadTally, error) {
	m.memoryInsp.Stop()

	var tally LoadTally
	for _, name := range reversed(m.sortedOrder) {
		mod := m.GetModule(name)
		if mod == nil {
			continue
		}
		if mod.GetState() != StateRunning {
			continue
		}
		m.pluginManager.BeforeModuleStop(name)
		m.healthTracker.TrackStart(name, "stop")
		err := mod.Stop(ctx)
		success := mod.GetState() == StateStopped
		m.healthTracker.TrackEnd(name, "stop", success, mod.GetState())
		if err != nil {
			tally.Failed++
			m.onModuleError(name, err, "stop")
		} else {
			tally.Loaded++
		}
		m.pluginManager.AfterModuleStop(name, mod)
	}

	if m.opts.LeakDetection.Enabled && m.opts.LeakDetection.CheckOnShutdown {
		if live := m.leakTracker.CheckForLeaks(200 * time.Millisecond); len(live) > 0 {
			m.logger.Warn("modules still live after shutdown", zap.Strings("modules", live))
		}
	}

	m.recovery.Stop()
	m.initialized = false
	return tally, nil
}

// LoadModuleOnDemand runs load+initialize+start for a single module
// directory, returning the module or nil.
func (m *Manager) LoadModuleOnDemand(ctx context.Context, name string) (Module, error) {
	disabled, err := m.loadOne(name)
	if err != nil {
		return nil, err
	}
	if disabled {
		return nil, nil
	}
	mod := m.GetModule(name)
	if mod == nil {
		return nil, nil
	}
	if err := mod.Initialize(ctx); err != nil {
		return mod, err
	}
	if err := mod.Start(ctx); err != nil {
		return mod, err
	}
	return mod, nil
}

// RestartModule delegates directly to the module's Restart.
func (m *Manager) RestartModule(ctx context.Context, name string) error {
	mod := m.GetModule(name)
	if mod == nil {
		return fmt.Errorf("module %q not found", name)
	}
	return mod.Restart(ctx)
}

// RecoverModule requires state ERROR; calls reset, initialize, start.
func (m *Manager) RecoverModule(ctx context.Context, name string) error {
	mod := m.GetModule(name)
	if mod == nil {
		return fmt.Errorf("module %q not found", name)
	}
	if mod.GetState() != StateError {
		return fmt.Errorf("module %q not in ERROR state", name)
	}
	mod.Reset()
	if err := mod.Initialize(ctx); err != nil {
		return err
	}
	return mod.Start(ctx)
}

// broadcastEvent walks every RUNNING module except source, invoking onEvent
// where exposed, catching per-receiver panics/errors.
func (m *Manager) broadcastEvent(name string, payload any, source string) {
	m.mu.RLock()
	targets := make([]Module, 0, len(m.modules))
	for modName, mod := range m.modules {
		if modName == source {
			continue
		}
		if mod.GetState() == StateRunning {
			targets = append(targets, mod)
		}
	}
	m.mu.RUnlock()

	for _, mod := range targets {
		m.safeDeliver(mod, name, payload, source)
	}
}

func (m *Manager) safeDeliver(mod Module, name string, payload any, source string) {
	defer func() {
		if r := recover(); r != nil {
			m.logger.Error("onEvent receiver panicked", zap.Any("recover", r))
		}
	}()
	mod.onEvent(name, payload, source)
}

func (m *Manager) onModuleStateChange(name string, to, from ModuleState) {
	m.logger.Debug("module state change", zap.String("module", name), zap.String("from", from.String()), zap.String("to", to.String()))
}

func (m *Manager) onModuleError(name string, err error, operation string) {
	m.healthTracker.TrackError(name, operation)
	m.eventBus.Publish(EventModuleError, map[string]any{"module": name, "error": err, "operation": operation})
	m.recovery.OnModuleError(name, operation)
}

// GetCachedData returns data for key if set within maxAge, else (nil, false).
func (m *Manager) GetCachedData(key string, maxAge time.Duration) (any, bool) {
	m.cacheMu.Lock()
	defer m.cacheMu.Unlock()
	entry, ok := m.cache[key]
	if !ok {
		return nil, false
	}
	if time.Since(entry.timestamp) > maxAge {
		delete(m.cache, key)
		return nil, false
	}
	return entry.data, true
}

// SetCachedData stores data for key, timestamped now.
func (m *Manager) SetCachedData(key string, data any) {
	m.cacheMu.Lock()
	defer m.cacheMu.Unlock()
	m.cache[key] = cacheEntry{timestamp: time.Now(), data: data}
}

// RegisterPlugin appends p to the plugin sequence and invokes its
// Initialize hook.
func (m *Manager) RegisterPlugin(p *Plugin) error {
	return m.pluginManager.Register(p, m)
}

// RegisterMetricsExporter appends e to the exporter sequence.
func (m *Manager) RegisterMetricsExporter(e MetricsExporter) {
	m.exporters = append(m.exporters, e)
}

// ExportMetrics assembles {modules, health, memory, timestamp} and fans it
// out to every exporter in parallel.
func (m *Manager) ExportMetrics() ExportedMetrics {
	data := ExportedMetrics{
		Modules:   m.statusSnapshot(),
		Health:    m.healthTracker.GetMetrics(),
		Memory:    m.memoryInsp.GenerateMemoryReport(),
		Timestamp: time.Now(),
	}
	var wg sync.WaitGroup
	for _, exp := range m.exporters {
		wg.Add(1)
		go func(exp MetricsExporter) {
			defer wg.Done()
			if err := exp.Export(data); err != nil {
				m.logger.Warn("metrics exporter failed", zap.Error(err))
			}
		}(exp)
	}
	wg.Wait()
	return data
}

func (m *Manager) statusSnapshot() []ModuleStatus {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]ModuleStatus, 0, len(m.modules))
	for name, mod := range m.modules {
		meta := mod.Describe()
		out = append(out, ModuleStatus{
			Name:         name,
			State:        mod.GetState(),
			Dependencies: meta.Dependencies,
			Version:      meta.Version,
			APIVersion:   meta.APIVersion,
			HasError:     mod.HasError(),
			Metrics:      m.healthTracker.GetModuleMetrics(name),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// StatusSnapshot is the exported form of statusSnapshot, for the admin
// surface and the check-update command.
func (m *Manager) StatusSnapshot() []ModuleStatus { return m.statusSnapshot() }

func (m *Manager) enabledModuleNames() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, 0, len(m.modules))
	for name := range m.modules {
		out = append(out, name)
	}
	return out
}

// referenceCounts approximates Snapshot.referenceCount: the number of other
// modules that declare each module as a dependency.
func (m *Manager) referenceCounts() map[string]int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	counts := make(map[string]int, len(m.modules))
	for _, mod := range m.modules {
		for _, dep := range mod.Describe().Dependencies {
			counts[dep]++
		}
	}
	return counts
}

// Close stops background timers and detaches the memory inspector, safe to
// call even if Initialize/Start were never run.
func (m *Manager) Close() {
	m.memoryInsp.Stop()
	m.recovery.Stop()
}
