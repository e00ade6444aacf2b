package kernel

import "go.uber.org/zap"

// PluginHooks is a fixed record of optional callbacks keyed by phase name,
// per spec: no dynamic patching of the Module base at runtime. A plugin that
// wants leak-tracking hooks into construction expresses it as
// AfterModuleLoad rather than replacing any constructor.
type PluginHooks struct {
	BeforeModuleLoad       func(moduleName string)
	AfterModuleLoad        func(moduleName string, m Module)
	BeforeModuleInitialize func(moduleName string)
	AfterModuleInitialize  func(moduleName string, m Module)
	BeforeModuleStart      func(moduleName string)
	AfterModuleStart       func(moduleName string, m Module)
	BeforeModuleStop       func(moduleName string)
	AfterModuleStop        func(moduleName string, m Module)
	OnError                func(moduleName string, operation string, err error)
}

// Plugin pairs a name with its hook record and an optional Initialize called
// once at registration.
type Plugin struct {
	Name       string
	Hooks      PluginHooks
	Initialize func(mgr *Manager) error
}

// PluginManager holds the ordered plugin sequence; each hook is invoked on
// every registered plugin in registration order.
type PluginManager struct {
	plugins []*Plugin
	logger  *zap.Logger
}

// NewPluginManager constructs an empty manager.
func NewPluginManager(logger *zap.Logger) *PluginManager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PluginManager{logger: logger}
}

// Register appends p to the plugin sequence and invokes its Initialize hook.
func (pm *PluginManager) Register(p *Plugin, mgr *Manager) error {
	pm.plugins = append(pm.plugins, p)
	if p.Initialize != nil {
		if err := p.Initialize(mgr); err != nil {
			return &PluginError{PluginName: p.Name, Hook: "initialize", Err: err}
		}
	}
	return nil
}

func (pm *PluginManager) runHook(name string, fn func(p *Plugin)) {
	for _, p := range pm.plugins {
		pm.safeCall(p, name, fn)
	}
}

func (pm *PluginManager) safeCall(p *Plugin, hookName string, fn func(p *Plugin)) {
	defer func() {
		if r := recover(); r != nil {
			pm.logger.Error("plugin hook panicked", zap.String("plugin", p.Name), zap.String("hook", hookName), zap.Any("recover", r))
		}
	}()
	fn(p)
}

func (pm *PluginManager) BeforeModuleLoad(name string) {
	pm.runHook("beforeModuleLoad", func(p *Plugin) {
		if p.Hooks.BeforeModuleLoad != nil {
			p.Hooks.BeforeModuleLoad(name)
		}
	})
}

func (pm *PluginManager) AfterModuleLoad(name string, m Module) {
	pm.runHook("afterModuleLoad", func(p *Plugin) {
		if p.Hooks.AfterModuleLoad != nil {
			p.Hooks.AfterModuleLoad(name, m)
		}
	})
}

func (pm *PluginManager) BeforeModuleInitialize(name string) {
	pm.runHook("beforeModuleInitialize", func(p *Plugin) {
		if p.Hooks.BeforeModuleInitialize != nil {
			p.Hooks.BeforeModuleInitialize(name)
		}
	})
}

func (pm *PluginManager) AfterModuleInitialize(name string, m Module) {
	pm.runHook("afterModuleInitialize", func(p *Plugin) {
		if p.Hooks.AfterModuleInitialize != nil {
			p.Hooks.AfterModuleInitialize(name, m)
		}
	})
}

func (pm *PluginManager) BeforeModuleStart(name string) {
	pm.runHook("beforeModuleStart", func(p *Plugin) {
		if p.Hooks.BeforeModuleStart != nil {
			p.Hooks.BeforeModuleStart(name)
		}
	})
}

func (pm *PluginManager) AfterModuleStart(name string, m Module) {
	pm.runHook("afterModuleStart", func(p *Plugin) {
		if p.Hooks.AfterModuleStart != nil {
			p.Hooks.AfterModuleStart(name, m)
		}
	})
}

func (pm *PluginManager) BeforeModuleStop(name string) {
	pm.runHook("beforeModuleStop", func(p *Plugin) {
		if p.Hooks.BeforeModuleStop != nil {
			p.Hooks.BeforeModuleStop(name)
		}
	})
}

func (pm *PluginManager) AfterModuleStop(name string, m Module) {
	pm.runHook("afterModuleStop", func(p *Plugin) {
		if p.Hooks.AfterModuleStop != nil {
			p.Hooks.AfterModuleStop(name, m)
		}
	})
}

func (pm *PluginManager) OnError(name, operation string, err error) {
	pm.runHook("onError", func(p *Plugin) {
		if p.Hooks.OnError != nil {
			p.Hooks.OnError(name, operation, err)
		}
	})
}
