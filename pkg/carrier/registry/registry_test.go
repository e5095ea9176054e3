package registry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/freightsync/pkg/carrier/base"
	"github.com/ajitpratap0/freightsync/pkg/carrier/core"
	"github.com/ajitpratap0/freightsync/pkg/errors"
	"github.com/ajitpratap0/freightsync/pkg/models"
)

func factoryFor(id string) Factory {
	return func(deps base.Deps) (core.Adapter, error) {
		desc := core.Descriptor{CarrierID: id, SupportedTypes: []models.TransportType{models.TransportManual}}
		return base.NewBaseAdapter(desc, base.AuthConfig{}, nil, deps), nil
	}
}

func TestRegistry_RegisterAndBuild(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register("zim", factoryFor("zim")))
	require.NoError(t, r.Register("cosco", factoryFor("cosco")))

	assert.True(t, r.Has("zim"))
	assert.False(t, r.Has("one"))
	assert.Equal(t, []string{"cosco", "zim"}, r.List())

	adapters, err := r.Build(base.Deps{})
	require.NoError(t, err)
	require.Len(t, adapters, 2)
	assert.Equal(t, "cosco", adapters["cosco"].Descriptor().CarrierID)
}

func TestRegistry_DuplicateRegistration(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register("zim", factoryFor("zim")))

	err := r.Register("zim", factoryFor("zim"))
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeConfig))
}

func TestRegistry_BuildRejectsMismatchedID(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register("zim", factoryFor("other")))

	_, err := r.Build(base.Deps{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "reports carrier id other")
}

func TestRegistry_BuildPropagatesFactoryError(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register("broken", func(base.Deps) (core.Adapter, error) {
		return nil, errors.New(errors.ErrorTypeConfig, "bad definition")
	}))

	_, err := r.Build(base.Deps{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to create carrier adapter broken")
}

func TestRegistry_Clear(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register("zim", factoryFor("zim")))
	r.Clear()
	assert.Empty(t, r.List())
}

func TestMustRegisterPanicsOnDuplicate(t *testing.T) {
	id := "registry-test-carrier"
	MustRegister(id, factoryFor(id))
	t.Cleanup(func() {
		globalRegistry.mu.Lock()
		delete(globalRegistry.factories, id)
		globalRegistry.mu.Unlock()
	})

	assert.True(t, Has(id))
	assert.Contains(t, List(), id)
	assert.Panics(t, func() { MustRegister(id, factoryFor(id)) })
}
