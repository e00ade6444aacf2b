package kernel

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestPluginManagerRegistrationOrder(t *testing.T) {
	pm := NewPluginManager(zap.NewNop())
	var order []string

	p1 := &Plugin{Name: "p1", Hooks: PluginHooks{
		BeforeModuleLoad: func(name string) { order = append(order, "p1:"+name) },
	}}
	p2 := &Plugin{Name: "p2", Hooks: PluginHooks{
		BeforeModuleLoad: func(name string) { order = append(order, "p2:"+name) },
	}}
	require.NoError(t, pm.Register(p1, nil))
	require.NoError(t, pm.Register(p2, nil))

	pm.BeforeModuleLoad("bot")
	assert.Equal(t, []string{"p1:bot", "p2:bot"}, order)
}

func TestPluginInitializeErrorWrapsAsPluginError(t *testing.T) {
	pm := NewPluginManager(zap.NewNop())
	p := &Plugin{Name: "bad", Initialize: func(mgr *Manager) error { return errors.New("init failed") }}
	err := pm.Register(p, nil)
	require.Error(t, err)
	var pluginErr *PluginError
	require.ErrorAs(t, err, &pluginErr)
	assert.Equal(t, "bad", pluginErr.PluginName)
}

func TestPluginHookPanicIsolated(t *testing.T) {
	pm := NewPluginManager(zap.NewNop())
	p := &Plugin{Name: "panicky", Hooks: PluginHooks{
		BeforeModuleLoad: func(name string) { panic("boom") },
	}}
	require.NoError(t, pm.Register(p, nil))
	assert.NotPanics(t, func() { pm.BeforeModuleLoad("bot") })
}
