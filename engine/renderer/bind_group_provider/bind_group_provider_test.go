package bind_group_provider

import (
	"testing"

	"github.com/Carmen-Shannon/oxy-indirect/engine/renderer/bindings"
	"github.com/cogentcore/webgpu/wgpu"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func cullProvider(extra ...BindGroupProviderOption) BindGroupProvider {
	opts := []BindGroupProviderOption{
		WithBuffer("scene", nil, 0, 256),
		WithBuffer("primitives", nil, 512, 96),
		WithBuffer("instances", nil, 0, 0),
		WithBuffer("commands", nil, 0, 0),
		WithBuffer("visible", nil, 0, 0),
	}
	return NewBindGroupProvider("plants cull", bindings.Cull, append(opts, extra...)...)
}

func TestEntriesFollowContractOrder(t *testing.T) {
	entries, err := cullProvider().Entries()
	require.NoError(t, err)
	require.Len(t, entries, len(bindings.Cull.Slots))
	for i, slot := range bindings.Cull.Slots {
		assert.Equal(t, slot.Binding, entries[i].Binding)
	}
	assert.EqualValues(t, 512, entries[bindings.CullPrimitives].Offset)
	assert.EqualValues(t, 96, entries[bindings.CullPrimitives].Size)
	assert.Equal(t, uint64(wgpu.WholeSize), entries[bindings.CullInstances].Size)
}

func TestEntriesReportMissingSlots(t *testing.T) {
	p := NewBindGroupProvider("plants render", bindings.Render, WithBuffer("scene", nil, 0, 0))
	_, err := p.Entries()
	require.Error(t, err)
	assert.ErrorContains(t, err, "plant_textures")
	assert.ErrorContains(t, err, "tex_sampler")
	assert.ErrorContains(t, err, "materials")
}

func TestEntriesRejectWrongResourceClass(t *testing.T) {
	_, err := cullProvider(WithTextureView("commands", nil)).Entries()
	assert.ErrorContains(t, err, "commands is a storage slot")

	_, err = cullProvider(WithSampler("tex_sampler", nil)).Entries()
	assert.ErrorContains(t, err, "no slot")
}

func TestReleaseWithoutBindGroup(t *testing.T) {
	p := cullProvider()
	assert.NotPanics(t, p.Release)
	assert.Nil(t, p.BindGroup())
}
