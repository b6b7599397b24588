package bindings

import (
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestContractsAreConsistent(t *testing.T) {
	for _, c := range []Contract{Render, Cull, Cluster} {
		require.NoError(t, c.Validate(), c.Name)
	}
}

func TestFixedIndices(t *testing.T) {
	s, ok := Render.Lookup("primitives")
	require.True(t, ok)
	assert.Equal(t, uint32(3), s.Binding)

	s, ok = Cull.Lookup("commands")
	require.True(t, ok)
	assert.Equal(t, KindStorage, s.Kind)
	assert.Equal(t, uint32(3), s.Binding)

	for _, name := range []string{"instances", "tex_index", "vertices", "indices"} {
		s, ok := Cluster.Lookup(name)
		require.True(t, ok, name)
		assert.GreaterOrEqual(t, s.Binding, uint32(3))
		assert.LessOrEqual(t, s.Binding, uint32(6))
	}
}

func TestValidateRejectsDuplicates(t *testing.T) {
	c := Contract{Name: "broken", Slots: []Slot{{0, "a", KindUniform}, {0, "b", KindUniform}}}
	assert.True(t, errors.HasAssertionFailure(c.Validate()))
}
