package shader

import (
	"testing"

	"github.com/Carmen-Shannon/oxy-indirect/engine/renderer/bindings"
	"github.com/Carmen-Shannon/oxy-indirect/engine/renderer/cull"
	"github.com/Carmen-Shannon/oxy-indirect/engine/renderer/indirect"
	"github.com/Carmen-Shannon/oxy-indirect/engine/renderer/packer"
	"github.com/cogentcore/webgpu/wgpu"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmbeddedShadersMatchContracts(t *testing.T) {
	cases := []struct {
		key      string
		source   string
		contract bindings.Contract
	}{
		{"render", RenderSource, bindings.Render},
		{"cluster", ClusterSource, bindings.Cluster},
		{"cull", cull.KernelSource, bindings.Cull},
	}
	for _, tc := range cases {
		t.Run(tc.key, func(t *testing.T) {
			s, err := NewShader(tc.key, tc.source)
			require.NoError(t, err)
			assert.NoError(t, s.Verify(tc.contract))
			assert.NotContains(t, s.Source(), annotationPrefix)
		})
	}
}

func TestStructLayoutsMatchHostTypes(t *testing.T) {
	s, err := NewShader("cull", cull.KernelSource)
	require.NoError(t, err)
	r := s.Reflection()

	var (
		u    packer.GPUSceneUniform
		prim packer.GPUPrimitive
		inst packer.GPUInstance
	)
	assert.Equal(t, uint64(u.Size()), r.Structs["SceneUniform"].Size)
	assert.Equal(t, uint64(prim.Size()), r.Structs["PrimitiveData"].Size)
	assert.Equal(t, uint64(inst.Size()), r.Structs["InstanceData"].Size)
	assert.Equal(t, uint64(indirect.CommandStride), r.Structs["DrawCommand"].Size)

	c, err := NewShader("cluster", ClusterSource)
	require.NoError(t, err)
	var (
		ci packer.GPUClusterInstance
		sv packer.GPUStorageVertex
	)
	assert.Equal(t, uint64(ci.Size()), c.Reflection().Structs["ClusterInstance"].Size)
	assert.Equal(t, uint64(sv.Size()), c.Reflection().Structs["StorageVertex"].Size)
}

func TestReflectEntriesAndWorkgroup(t *testing.T) {
	s, err := NewShader("cull", cull.Kernel(128))
	require.NoError(t, err)
	r := s.Reflection()
	assert.Equal(t, []string{cull.EntryReset, cull.EntryCull}, r.Entries[StageCompute])
	assert.Equal(t, [3]uint32{128, 1, 1}, r.WorkgroupSize)

	rs, err := NewShader("render", RenderSource)
	require.NoError(t, err)
	assert.Equal(t, "vs_main", rs.Reflection().Entry(StageVertex))
	assert.Equal(t, []string{"fs_plants", "fs_ground", "fs_sky"}, rs.Reflection().Entries[StageFragment])
}

func TestVertexBufferLayouts(t *testing.T) {
	s, err := NewShader("render", RenderSource)
	require.NoError(t, err)

	var v packer.GPUVertex
	layouts := VertexBufferLayouts(s.Reflection(), map[string]uint64{"InstanceInput": 80})
	require.Len(t, layouts, 2)
	assert.Equal(t, uint64(v.Size()), layouts[0].ArrayStride)
	assert.Equal(t, wgpu.VertexStepModeVertex, layouts[0].StepMode)
	assert.Equal(t, uint64(80), layouts[1].ArrayStride)
	assert.Equal(t, wgpu.VertexStepModeInstance, layouts[1].StepMode)
	assert.Equal(t, uint64(68), layouts[1].Attributes[5].Offset, "prim_index sits after the rows and tex_index")
}

func TestBindGroupLayoutEntries(t *testing.T) {
	s, err := NewShader("cull", cull.KernelSource)
	require.NoError(t, err)
	entries := BindGroupLayoutEntries(s.Reflection(), 0, wgpu.ShaderStageCompute)
	require.Len(t, entries, 5)
	assert.Equal(t, wgpu.BufferBindingTypeUniform, entries[0].Buffer.Type)
	assert.Equal(t, uint64(256), entries[0].Buffer.MinBindingSize)
	assert.Equal(t, wgpu.BufferBindingTypeStorage, entries[3].Buffer.Type)
	assert.Equal(t, uint64(20), entries[3].Buffer.MinBindingSize)
	assert.Equal(t, wgpu.BufferBindingTypeStorage, entries[4].Buffer.Type)
}

func TestVerifyReportsMismatch(t *testing.T) {
	src := `
@group(0) @binding(0) var<uniform> scene: vec4<f32>;
@group(0) @binding(1) var<storage, read_write> primitives: array<u32>;
@group(0) @binding(9) var<storage, read> stray: array<u32>;
`
	s, err := NewShader("broken", src)
	require.NoError(t, err)
	err = s.Verify(bindings.Cull)
	require.Error(t, err)
	msg := err.Error()
	assert.Contains(t, msg, "primitives is storage, want read-only-storage")
	assert.Contains(t, msg, "binding 2 (instances) not declared")
	assert.Contains(t, msg, "binding 9 (stray)")
}

func TestAnnotationErrors(t *testing.T) {
	_, err := NewShader("bad", "//@oxy:include nothing")
	assert.ErrorContains(t, err, "unknown @oxy:include")

	_, err = NewShader("bad", "//@oxy:binding render nope u32")
	assert.ErrorContains(t, err, "no slot")

	_, err = NewShader("bad", "//@oxy:frobnicate")
	assert.ErrorContains(t, err, "unknown annotation type")

	_, err = Reflect("@group(0) @binding(0) var<uniform> a: u32;\n@group(0) @binding(0) var<uniform> b: u32;")
	assert.ErrorContains(t, err, "declared by a and b")
}
