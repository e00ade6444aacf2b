package kernel

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassifyDispatchesByConcreteType(t *testing.T) {
	cases := []struct {
		err  error
		want Taxonomy
	}{
		{&ConfigurationError{ModuleName: "x", Err: errors.New("e")}, TaxonomyConfiguration},
		{&LoadError{ModuleName: "x", Err: errors.New("e")}, TaxonomyLoad},
		{&DependencyError{ModuleName: "x", DependsOn: "y", Err: errors.New("e")}, TaxonomyDependency},
		{&CycleError{Path: []string{"a", "b"}}, TaxonomyCycle},
		{&LifecycleError{ModuleName: "x", Operation: "start", Err: errors.New("e")}, TaxonomyLifecycle},
		{&PluginError{PluginName: "p", Hook: "h", Err: errors.New("e")}, TaxonomyPlugin},
		{&RecoveryExhausted{ModuleName: "x", MaxAttempts: 3}, TaxonomyRecoveryExhausted},
		{&ShutdownTimeout{TimeoutMs: 1000}, TaxonomyShutdownTimeout},
		{errors.New("plain"), TaxonomyUnknown},
		{nil, TaxonomyUnknown},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, Classify(c.err))
	}
}

func TestErrorTypesUnwrap(t *testing.T) {
	inner := errors.New("inner")
	wrapped := &LifecycleError{ModuleName: "x", Operation: "start", Err: inner}
	assert.ErrorIs(t, wrapped, inner)
}
