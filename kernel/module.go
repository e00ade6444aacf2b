package kernel

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// ModuleState is one of the eight lifecycle phases a module passes through.
type ModuleState int

const (
	StateUninitialized ModuleState = iota
	StateInitializing
	StateInitialized
	StateStarting
	StateRunning
	StateStopping
	StateStopped
	StateError
)

func (s ModuleState) String() string {
	switch s {
	case StateUninitialized:
		return "UNINITIALIZED"
	case StateInitializing:
		return "INITIALIZING"
	case StateInitialized:
		return "INITIALIZED"
	case StateStarting:
		return "STARTING"
	case StateRunning:
		return "RUNNING"
	case StateStopping:
		return "STOPPING"
	case StateStopped:
		return "STOPPED"
	case StateError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// legalTransitions mirrors the transition table: any unlisted transition is
// a programmer error and is refused with a warning, never a crash.
var legalTransitions = map[ModuleState]map[ModuleState]bool{
	StateUninitialized: {StateInitializing: true},
	StateInitializing:  {StateInitialized: true, StateError: true},
	StateInitialized:   {StateStarting: true},
	StateStarting:      {StateRunning: true, StateError: true},
	StateRunning:       {StateStopping: true},
	StateStopping:      {StateStopped: true, StateError: true},
	StateStopped:       {StateStarting: true},
	StateError:         {StateUninitialized: true},
}

// LogSeverity annotates log lines only; it is never a ModuleState value.
type LogSeverity int

const (
	SeverityInfo LogSeverity = iota
	SeverityWarning
	SeverityDebug
	SeverityError
)

// Metadata is the static description a concrete module must supply.
type Metadata struct {
	Name               string
	Description        string
	Version            string
	APIVersion         string
	Dependencies       []string
	DependencyVersions map[string]string
	Disabled           bool
	Priority           int
}

// Module is the contract every concrete module obeys. Concrete modules embed
// BaseModule and supply OnInitializeFunc/OnStartFunc/OnStopFunc and
// optionally OnEventFunc through Hooks.
type Module interface {
	Describe() Metadata
	Initialize(ctx context.Context) error
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	Restart(ctx context.Context) error
	Reset()
	GetState() ModuleState
	GetError() error
	HasError() bool
	IsReady() bool
	GetUptime() time.Duration
	GetAPIVersion() string

	setManager(m *Manager)
	onInitialize(ctx context.Context) error
	onStart(ctx context.Context) error
	onStop(ctx context.Context) error
	onEvent(name string, payload any, source string)
}

// Hooks overridden by concrete modules; a nil func is a no-op. BaseModule's
// lifecycle methods call only these funcs, so a method of the same name on an
// embedding type is never dispatched to.
type Hooks struct {
	OnInitializeFunc func(ctx context.Context) error
	OnStartFunc      func(ctx context.Context) error
	OnStopFunc       func(ctx context.Context) error
	OnEventFunc      func(name string, payload any, source string)
}

// BaseModule implements the full state machine and inter-module helpers
// every Module embeds, generalized from the teacher's BaseModule/Module
// split onto the named/versioned, dependency-graph shape this spec needs.
type BaseModule struct {
	meta Metadata
	Hooks

	mu             sync.RWMutex
	state          ModuleState
	lastError      error
	startTimestamp time.Time
	exports        map[string]any
	permissions    map[string]map[string]bool

	manager *Manager // non-owning back-reference installed by the Manager; nothing clears it
	logger  *zap.Logger
}

// NewBaseModule constructs a BaseModule with the given static metadata.
func NewBaseModule(meta Metadata, hooks Hooks) *BaseModule {
	if meta.APIVersion == "" {
		meta.APIVersion = meta.Version
	}
	if meta.Priority == 0 {
		meta.Priority = 50
	}
	return &BaseModule{
		meta:        meta,
		Hooks:       hooks,
		state:       StateUninitialized,
		exports:     make(map[string]any),
		permissions: make(map[string]map[string]bool),
		logger:      zap.NewNop(),
	}
}

func (m *BaseModule) Describe() Metadata { return m.meta }

func (m *BaseModule) setManager(mgr *Manager) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.manager = mgr
	if mgr != nil {
		m.logger = mgr.logger.With(zap.String("module", m.meta.Name))
	}
}

func (m *BaseModule) transition(to ModuleState) error {
	m.mu.Lock()
	from := m.state
	allowed := legalTransitions[from][to]
	if !allowed {
		m.mu.Unlock()
		m.logger.Warn("illegal state transition refused",
			zap.String("from", from.String()), zap.String("to", to.String()))
		return fmt.Errorf("illegal transition %s -> %s", from, to)
	}
	m.state = to
	if to == StateRunning {
		m.startTimestamp = time.Now()
	}
	m.mu.Unlock()
	m.emitStateChange(to, from)
	return nil
}

func (m *BaseModule) emitStateChange(to, from ModuleState) {
	if mgr := m.currentManager(); mgr != nil {
		mgr.onModuleStateChange(m.meta.Name, to, from)
	}
}

func (m *BaseModule) emitError(err error, operation string) {
	m.mu.Lock()
	m.lastError = err
	m.mu.Unlock()
	if mgr := m.currentManager(); mgr != nil {
		mgr.onModuleError(m.meta.Name, err, operation)
	}
}

func (m *BaseModule) currentManager() *Manager {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.manager
}

// Initialize requires state UNINITIALIZED; idempotent when already
// INITIALIZED or later.
func (m *BaseModule) Initialize(ctx context.Context) error {
	m.mu.RLock()
	cur := m.state
	m.mu.RUnlock()
	if cur != StateUninitialized {
		m.logger.Warn("initialize called but module already past UNINITIALIZED", zap.String("state", cur.String()))
		return nil
	}
	if err := m.transition(StateInitializing); err != nil {
		return err
	}
	start := time.Now()
	err := m.onInitialize(ctx)
	_ = time.Since(start)
	if err != nil {
		_ = m.transition(StateError)
		m.emitError(err, "initialization")
		return &LifecycleError{ModuleName: m.meta.Name, Operation: "initialization", Err: err}
	}
	return m.transition(StateInitialized)
}

// Start requires state INITIALIZED or STOPPED.
func (m *BaseModule) Start(ctx context.Context) error {
	m.mu.RLock()
	cur := m.state
	m.mu.RUnlock()
	if cur != StateInitialized && cur != StateStopped {
		m.logger.Warn("start refused from illegal state", zap.String("state", cur.String()))
		return fmt.Errorf("cannot start from state %s", cur)
	}
	if err := m.transition(StateStarting); err != nil {
		return err
	}
	if err := m.onStart(ctx); err != nil {
		_ = m.transition(StateError)
		m.emitError(err, "start")
		return &LifecycleError{ModuleName: m.meta.Name, Operation: "start", Err: err}
	}
	return m.transition(StateRunning)
}

// Stop requires state RUNNING.
func (m *BaseModule) Stop(ctx context.Context) error {
	m.mu.RLock()
	cur := m.state
	m.mu.RUnlock()
	if cur != StateRunning {
		m.logger.Warn("stop refused from illegal state", zap.String("state", cur.String()))
		return fmt.Errorf("cannot stop from state %s", cur)
	}
	if err := m.transition(StateStopping); err != nil {
		return err
	}
	if err := m.onStop(ctx); err != nil {
		_ = m.transition(StateError)
		m.emitError(err, "stop")
		return &LifecycleError{ModuleName: m.meta.Name, Operation: "stop", Err: err}
	}
	return m.transition(StateStopped)
}

func (m *BaseModule) Restart(ctx context.Context) error {
	if err := m.Stop(ctx); err != nil {
		return err
	}
	return m.Start(ctx)
}

// Reset clears lastError and forces state to UNINITIALIZED; only legal from
// ERROR.
func (m *BaseModule) Reset() {
	m.mu.Lock()
	if m.state != StateError {
		m.mu.Unlock()
		m.logger.Warn("reset called outside ERROR state", zap.String("state", m.state.String()))
		return
	}
	m.lastError = nil
	from := m.state
	m.state = StateUninitialized
	m.mu.Unlock()
	m.emitStateChange(StateUninitialized, from)
}

func (m *BaseModule) GetState() ModuleState {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

func (m *BaseModule) GetError() error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lastError
}

func (m *BaseModule) HasError() bool { return m.GetError() != nil }

func (m *BaseModule) IsReady() bool { return m.GetState() == StateRunning }

func (m *BaseModule) GetUptime() time.Duration {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.state != StateRunning {
		return 0
	}
	return time.Since(m.startTimestamp)
}

func (m *BaseModule) GetAPIVersion() string { return m.meta.APIVersion }

// default hook bodies; each calls the matching Hooks func when it is set.
func (m *BaseModule) onInitialize(ctx context.Context) error {
	if m.Hooks.OnInitializeFunc != nil {
		return m.Hooks.OnInitializeFunc(ctx)
	}
	return nil
}

func (m *BaseModule) onStart(ctx context.Context) error {
	if m.Hooks.OnStartFunc != nil {
		return m.Hooks.OnStartFunc(ctx)
	}
	return nil
}

func (m *BaseModule) onStop(ctx context.Context) error {
	if m.Hooks.OnStopFunc != nil {
		return m.Hooks.OnStopFunc(ctx)
	}
	return nil
}

func (m *BaseModule) onEvent(name string, payload any, source string) {
	if m.Hooks.OnEventFunc != nil {
		m.Hooks.OnEventFunc(name, payload, source)
	}
}

// ---- inter-module helpers: thin delegates to the Manager ----

func (m *BaseModule) getModuleInstance(name string) Module {
	mgr := m.currentManager()
	if mgr == nil {
		m.logger.Warn("getModuleInstance called with no manager back-reference")
		return nil
	}
	return mgr.GetModule(name)
}

func (m *BaseModule) getExportsFromModule(name string, key string) any {
	target := m.getModuleInstance(name)
	if target == nil {
		return nil
	}
	bm, ok := target.(interface{ getExport(string) any })
	if !ok {
		return nil
	}
	return bm.getExport(key)
}

func (m *BaseModule) getExport(key string) any {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.exports[key]
}

// SetExport publishes a value peer modules can read via getExportsFromModule.
func (m *BaseModule) SetExport(key string, value any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.exports[key] = value
}

func (m *BaseModule) broadcastEvent(name string, payload any) {
	mgr := m.currentManager()
	if mgr == nil {
		m.logger.Warn("broadcastEvent called with no manager back-reference")
		return
	}
	mgr.broadcastEvent(name, payload, m.meta.Name)
}

func (m *BaseModule) isModuleAPICompatible(name string, minVersion string) bool {
	target := m.getModuleInstance(name)
	if target == nil {
		return false
	}
	return CompareVersions(target.GetAPIVersion(), minVersion) >= 0
}

// checkPermission consults the local permission map first, then defers to
// the registered "auth" module (passing token through for JWT validation),
// then allows by default.
func (m *BaseModule) checkPermission(action, resource, token string) bool {
	m.mu.RLock()
	actions, ok := m.permissions[resource]
	m.mu.RUnlock()
	if ok {
		return actions[action]
	}
	mgr := m.currentManager()
	if mgr == nil {
		return true
	}
	auth := mgr.GetModule("auth")
	if auth == nil {
		return true
	}
	type permissionChecker interface {
		CheckModulePermission(action, resource, token string) (bool, error)
	}
	if checker, ok := auth.(permissionChecker); ok {
		allowed, err := checker.CheckModulePermission(action, resource, token)
		if err != nil {
			m.logger.Warn("auth module permission check failed", zap.Error(err))
			return true
		}
		return allowed
	}
	return true
}

func (m *BaseModule) grantPermission(action, resource string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.permissions[resource] == nil {
		m.permissions[resource] = make(map[string]bool)
	}
	m.permissions[resource][action] = true
}

func (m *BaseModule) revokePermission(action, resource string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.permissions[resource] != nil {
		delete(m.permissions[resource], action)
	}
}

// Exported wrappers so concrete modules embedding BaseModule from outside
// package kernel can reach the inter-module helpers.

func (m *BaseModule) GetModuleInstance(name string) Module { return m.getModuleInstance(name) }

func (m *BaseModule) GetExportsFromModule(name, key string) any {
	return m.getExportsFromModule(name, key)
}

func (m *BaseModule) BroadcastEvent(name string, payload any) { m.broadcastEvent(name, payload) }

func (m *BaseModule) IsModuleAPICompatible(name, minVersion string) bool {
	return m.isModuleAPICompatible(name, minVersion)
}

// CheckPermission checks the local permission map, falling back to the
// registered "auth" module with token as the bearer credential it validates.
func (m *BaseModule) CheckPermission(action, resource, token string) bool {
	return m.checkPermission(action, resource, token)
}

func (m *BaseModule) GrantPermission(action, resource string) { m.grantPermission(action, resource) }

func (m *BaseModule) RevokePermission(action, resource string) { m.revokePermission(action, resource) }

func (m *BaseModule) Logger() *zap.Logger { return m.logger }

// asBaseModule lets the Manager recover the concrete *BaseModule for leak
// tracking regardless of which concrete type embeds it.
func (m *BaseModule) asBaseModule() *BaseModule { return m }
