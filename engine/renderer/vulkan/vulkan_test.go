package vulkan

import (
	"encoding/binary"
	"testing"

	"github.com/Carmen-Shannon/oxy-indirect/engine/renderer/bindings"
	"github.com/Carmen-Shannon/oxy-indirect/engine/renderer/indirect"
	"github.com/Carmen-Shannon/oxy-indirect/engine/renderer/ownership"
	"github.com/Carmen-Shannon/oxy-indirect/engine/renderer/packer"
	"github.com/Carmen-Shannon/oxy-indirect/engine/renderer/shader"
	"github.com/Carmen-Shannon/oxy-indirect/engine/scene"
	vk "github.com/goki/vulkan"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func flags(bits ...vk.QueueFlagBits) vk.QueueFlags {
	var f vk.QueueFlagBits
	for _, b := range bits {
		f |= b
	}
	return vk.QueueFlags(f)
}

func TestPickFamiliesPrefersDedicatedCompute(t *testing.T) {
	fams := []vk.QueueFlags{
		flags(vk.QueueTransferBit),
		flags(vk.QueueGraphicsBit, vk.QueueComputeBit, vk.QueueTransferBit),
		flags(vk.QueueComputeBit, vk.QueueTransferBit),
	}
	g, c, err := pickFamilies(fams, false)
	require.NoError(t, err)
	assert.EqualValues(t, 1, g)
	assert.EqualValues(t, 2, c)

	g, c, err = pickFamilies(fams, true)
	require.NoError(t, err)
	assert.Equal(t, g, c)
}

func TestPickFamiliesSharesWithoutComputeOnlyFamily(t *testing.T) {
	g, c, err := pickFamilies([]vk.QueueFlags{flags(vk.QueueGraphicsBit, vk.QueueComputeBit)}, false)
	require.NoError(t, err)
	assert.EqualValues(t, 0, g)
	assert.EqualValues(t, 0, c)

	_, _, err = pickFamilies([]vk.QueueFlags{flags(vk.QueueComputeBit)}, false)
	assert.Error(t, err)
}

func TestMemoryTypeIndex(t *testing.T) {
	var props vk.PhysicalDeviceMemoryProperties
	props.MemoryTypeCount = 3
	props.MemoryTypes[0].PropertyFlags = vk.MemoryPropertyFlags(vk.MemoryPropertyDeviceLocalBit)
	props.MemoryTypes[1].PropertyFlags = vk.MemoryPropertyFlags(vk.MemoryPropertyHostVisibleBit)
	props.MemoryTypes[2].PropertyFlags = vk.MemoryPropertyFlags(vk.MemoryPropertyHostVisibleBit | vk.MemoryPropertyHostCoherentBit)

	i, err := memoryTypeIndex(props, 0b111, memoryProperties(packer.MemoryHostVisible))
	require.NoError(t, err)
	assert.EqualValues(t, 2, i)

	i, err = memoryTypeIndex(props, 0b111, memoryProperties(packer.MemoryDeviceLocal))
	require.NoError(t, err)
	assert.EqualValues(t, 0, i)

	_, err = memoryTypeIndex(props, 0b010, memoryProperties(packer.MemoryHostVisible))
	assert.Error(t, err, "type 2 is filtered out")
}

func TestBufferUsage(t *testing.T) {
	got := vk.BufferUsageFlagBits(bufferUsage(packer.UsageIndirect | packer.UsageStorage | packer.UsageCopyDst))
	assert.Equal(t, vk.BufferUsageIndirectBufferBit|vk.BufferUsageStorageBufferBit|vk.BufferUsageTransferDstBit, got)
	assert.Zero(t, bufferUsage(0))
}

func TestSharedFamilies(t *testing.T) {
	d := &Device{graphicsFamily: 0, computeFamily: 2}
	assert.Equal(t, []uint32{0, 2}, d.sharedFamilies(packer.UsageStorage|packer.UsageCopyDst))
	assert.Nil(t, d.sharedFamilies(packer.UsageIndirect|packer.UsageStorage), "indirect buffers transfer ownership")
	assert.Nil(t, d.sharedFamilies(packer.UsageVertex))

	d.computeFamily = 0
	assert.Nil(t, d.sharedFamilies(packer.UsageStorage))
}

func TestBufferBarrierCarriesProtocolValues(t *testing.T) {
	p := ownership.NewProtocol(0, 2, 2)
	p.MarkUploaded(1)
	acquire := p.ComputeAcquire(1)

	b := bufferBarrier(acquire, nil)
	assert.Equal(t, vk.StructureTypeBufferMemoryBarrier, b.SType)
	assert.Equal(t, vk.AccessFlags(vk.AccessTransferWriteBit), b.SrcAccessMask)
	assert.Equal(t, vk.AccessFlags(vk.AccessShaderWriteBit), b.DstAccessMask)
	assert.EqualValues(t, 0, b.SrcQueueFamilyIndex)
	assert.EqualValues(t, 2, b.DstQueueFamilyIndex)
	assert.Equal(t, wholeSize, b.Size)

	assert.Equal(t, uint32(vk.PipelineStageTransferBit), uint32(acquire.SrcStage))
	assert.Equal(t, uint32(vk.PipelineStageComputeShaderBit), uint32(acquire.DstStage))
	assert.Equal(t, uint32(vk.PipelineStageDrawIndirectBit), uint32(p.GraphicsAcquire(1).DstStage))
}

func TestBufferBarrierIgnoresFamiliesWhenShared(t *testing.T) {
	p := ownership.NewProtocol(1, 1, 1)
	b := bufferBarrier(p.GraphicsRelease(0), nil)
	assert.Equal(t, uint32(vk.QueueFamilyIgnored), b.SrcQueueFamilyIndex)
	assert.Equal(t, uint32(vk.QueueFamilyIgnored), b.DstQueueFamilyIndex)
}

func TestLayoutBindingsFollowContract(t *testing.T) {
	lb := layoutBindings(bindings.Cull, vk.ShaderStageComputeBit)
	require.Len(t, lb, len(bindings.Cull.Slots))
	assert.Equal(t, vk.DescriptorTypeUniformBuffer, lb[bindings.CullScene].DescriptorType)
	assert.Equal(t, vk.DescriptorTypeStorageBuffer, lb[bindings.CullCommands].DescriptorType)
	for i, s := range bindings.Cull.Slots {
		assert.Equal(t, s.Binding, lb[i].Binding)
		assert.Equal(t, vk.ShaderStageFlags(vk.ShaderStageComputeBit), lb[i].StageFlags)
	}

	lb = layoutBindings(bindings.Render, vk.ShaderStageVertexBit|vk.ShaderStageFragmentBit)
	assert.Equal(t, vk.DescriptorTypeSampledImage, lb[bindings.PlantTextureArray].DescriptorType)
	assert.Equal(t, vk.DescriptorTypeSampler, lb[bindings.Sampler].DescriptorType)
}

func TestPoolSizesCountEverySet(t *testing.T) {
	sizes := poolSizes(2, bindings.Render, bindings.Cull)
	got := map[vk.DescriptorType]uint32{}
	for _, s := range sizes {
		got[s.Type] = s.DescriptorCount
	}
	assert.EqualValues(t, 4, got[vk.DescriptorTypeUniformBuffer])
	assert.EqualValues(t, 2*(2+4), got[vk.DescriptorTypeStorageBuffer])
	assert.EqualValues(t, 4, got[vk.DescriptorTypeSampledImage])
	assert.EqualValues(t, 2, got[vk.DescriptorTypeSampler])
}

func TestDescriptorWritesReportMissingSlot(t *testing.T) {
	res := map[string]resource{
		"scene":      {buf: &Buffer{label: "scene"}},
		"primitives": {buf: &Buffer{label: "metadata"}, offset: 256, size: 96},
		"instances":  {buf: &Buffer{label: "instances"}},
	}
	_, err := descriptorWrites(nil, bindings.Cull, res)
	assert.ErrorContains(t, err, "commands")

	res["commands"] = resource{buf: &Buffer{label: "indirect"}}
	_, err = descriptorWrites(nil, bindings.Cull, res)
	assert.ErrorContains(t, err, "visible")

	res["visible"] = resource{buf: &Buffer{label: "visible"}}
	writes, err := descriptorWrites(nil, bindings.Cull, res)
	require.NoError(t, err)
	require.Len(t, writes, 5)
	assert.EqualValues(t, 256, writes[bindings.CullPrimitives].PBufferInfo[0].Offset)
	assert.EqualValues(t, 96, writes[bindings.CullPrimitives].PBufferInfo[0].Range)
	assert.Equal(t, wholeSize, writes[bindings.CullCommands].PBufferInfo[0].Range)
}

func TestVertexInputFromReflection(t *testing.T) {
	s, err := shader.NewShader("render", shader.RenderSource)
	require.NoError(t, err)
	binds, attrs, err := vertexInput(s.Reflection(), map[string]uint32{"InstanceInput": 80})
	require.NoError(t, err)

	require.Len(t, binds, 2)
	assert.Equal(t, vk.VertexInputRateVertex, binds[0].InputRate)
	assert.EqualValues(t, 44, binds[0].Stride)
	assert.Equal(t, vk.VertexInputRateInstance, binds[1].InputRate)
	assert.EqualValues(t, 80, binds[1].Stride)

	require.Len(t, attrs, 10)
	assert.Equal(t, vk.FormatR32g32b32Sfloat, attrs[0].Format)
	assert.Equal(t, vk.FormatR32g32b32a32Sfloat, attrs[4].Format)
	assert.EqualValues(t, 1, attrs[9].Binding)
	assert.Equal(t, vk.FormatR32Uint, attrs[9].Format)
	assert.EqualValues(t, 68, attrs[9].Offset)
}

func TestVertexInputCluster(t *testing.T) {
	s, err := shader.NewShader("cluster", shader.ClusterSource)
	require.NoError(t, err)
	binds, attrs, err := vertexInput(s.Reflection(), map[string]uint32{"ClusterInput": indirect.ClusterStride})
	require.NoError(t, err)
	require.Len(t, binds, 1)
	assert.EqualValues(t, indirect.ClusterStride, binds[0].Stride)
	assert.Equal(t, vk.VertexInputRateInstance, binds[0].InputRate)
	require.Len(t, attrs, 2)
	assert.EqualValues(t, 4, attrs[1].Offset)
}

func TestSpirvWords(t *testing.T) {
	code := make([]byte, 20)
	binary.LittleEndian.PutUint32(code, spirvMagic)
	words, err := spirvWords(code)
	require.NoError(t, err)
	assert.Len(t, words, 5)

	_, err = spirvWords(code[:18])
	assert.Error(t, err)

	binary.LittleEndian.PutUint32(code, 0xdeadbeef)
	_, err = spirvWords(code)
	assert.ErrorContains(t, err, "magic")
}

func TestPipelineKey(t *testing.T) {
	assert.Equal(t, "cluster", pipelineKey(&packer.Packed{Name: "noodles", Clusters: &indirect.ClusterTable{}}))
	assert.Equal(t, scene.DrawableSky, pipelineKey(&packer.Packed{Name: scene.DrawableSky}))
	assert.Equal(t, scene.DrawableGround, pipelineKey(&packer.Packed{Name: scene.DrawableGround}))
	assert.Equal(t, scene.DrawablePlants, pipelineKey(&packer.Packed{Name: "anything"}))
}

func TestTerminated(t *testing.T) {
	assert.Equal(t, "main\x00", terminated("main"))
	assert.Equal(t, "main\x00", terminated("main\x00"))
	assert.Equal(t, "\x00", terminated(""))
}

func TestPipelineStatisticFlagsSelectCounters(t *testing.T) {
	// IA vertices, IA primitives, VS, clipping in/out, FS; no geometry or tessellation stages
	assert.EqualValues(t, 0b1110_0111, pipelineStatisticFlags)
}

func TestDeviceStatsFromQueryResults(t *testing.T) {
	st, err := deviceStats(7, []uint64{300, 100, 300, 100, 80, 5000})
	require.NoError(t, err)
	assert.Equal(t, uint64(7), st.Frame)
	assert.True(t, st.HasPipeline)
	assert.False(t, st.HasDrawn, "the query does not see instance counts")
	assert.Equal(t, uint64(100), st.Pipeline.InputAssemblyPrimitives)
	assert.Equal(t, uint64(80), st.Pipeline.ClippingPrimitives)
	assert.Equal(t, uint64(5000), st.Pipeline.FragmentShaderInvocations)

	_, err = deviceStats(7, []uint64{1, 2})
	assert.Error(t, err)
}

func TestSlotReportsTrailSubmission(t *testing.T) {
	d := &Device{slots: []*frameSlot{{}, {}}}
	_, ok := d.DeviceStats(0)
	assert.False(t, ok)

	// without a query pool nothing is read back, but the pending mark is consumed
	s := d.slot(0)
	s.queried, s.queriedFrame = true, 4
	require.NoError(t, d.collect(s))
	assert.False(t, s.queried)
	_, ok = d.DeviceStats(0)
	assert.False(t, ok)

	s.report, s.reported = indirect.DeviceStats{Frame: 4, HasPipeline: true}, true
	st, ok := d.DeviceStats(2)
	require.True(t, ok, "slot 2 wraps to slot 0")
	assert.Equal(t, uint64(4), st.Frame)
}
