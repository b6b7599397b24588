package vulkan

import (
	"encoding/binary"
	"os"

	"github.com/Carmen-Shannon/oxy-indirect/engine/renderer/bindings"
	"github.com/Carmen-Shannon/oxy-indirect/engine/renderer/cull"
	"github.com/Carmen-Shannon/oxy-indirect/engine/renderer/indirect"
	"github.com/Carmen-Shannon/oxy-indirect/engine/renderer/packer"
	"github.com/Carmen-Shannon/oxy-indirect/engine/renderer/shader"
	"github.com/Carmen-Shannon/oxy-indirect/engine/renderer/texgen"
	"github.com/Carmen-Shannon/oxy-indirect/engine/scene"
	"github.com/cockroachdb/errors"
	vk "github.com/goki/vulkan"
)

const spirvMagic = 0x07230203

var vertexFormats = map[string]vk.Format{
	"f32":       vk.FormatR32Sfloat,
	"vec2<f32>": vk.FormatR32g32Sfloat,
	"vec3<f32>": vk.FormatR32g32b32Sfloat,
	"vec4<f32>": vk.FormatR32g32b32a32Sfloat,
	"u32":       vk.FormatR32Uint,
	"vec2<u32>": vk.FormatR32g32Uint,
	"i32":       vk.FormatR32Sint,
}

// spirvWords checks a SPIR-V binary and returns it as words.
func spirvWords(code []byte) ([]uint32, error) {
	if len(code) < 20 || len(code)%4 != 0 {
		return nil, errors.Newf("vulkan: %d bytes is not a SPIR-V module", len(code))
	}
	words := make([]uint32, len(code)/4)
	for i := range words {
		words[i] = binary.LittleEndian.Uint32(code[i*4:])
	}
	if words[0] != spirvMagic {
		return nil, errors.Newf("vulkan: bad SPIR-V magic %#08x", words[0])
	}
	return words, nil
}

// loadShader reads a precompiled SPIR-V module from path.
func (d *Device) loadShader(path string) (vk.ShaderModule, error) {
	code, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "vulkan: read shader")
	}
	words, err := spirvWords(code)
	if err != nil {
		return nil, errors.Wrapf(err, "vulkan: %s", path)
	}
	var m vk.ShaderModule
	err = vk.Error(vk.CreateShaderModule(d.device, &vk.ShaderModuleCreateInfo{
		SType:    vk.StructureTypeShaderModuleCreateInfo,
		CodeSize: uint64(len(code)),
		PCode:    words,
	}, nil, &m))
	if err != nil {
		return nil, errors.Wrapf(err, "vulkan: create shader module %s", path)
	}
	d.logger.Debug("loaded shader", "path", path, "bytes", len(code))
	return m, nil
}

func stage(bit vk.ShaderStageFlagBits, m vk.ShaderModule, entry string) vk.PipelineShaderStageCreateInfo {
	return vk.PipelineShaderStageCreateInfo{
		SType:  vk.StructureTypePipelineShaderStageCreateInfo,
		Stage:  bit,
		Module: m,
		PName:  terminated(entry),
	}
}

// descriptorType maps a binding kind to its descriptor type.
func descriptorType(k bindings.Kind) vk.DescriptorType {
	switch k {
	case bindings.KindUniform:
		return vk.DescriptorTypeUniformBuffer
	case bindings.KindSampler:
		return vk.DescriptorTypeSampler
	case bindings.KindTexture:
		return vk.DescriptorTypeSampledImage
	default:
		return vk.DescriptorTypeStorageBuffer
	}
}

// layoutBindings describes a contract's slots as descriptor set layout bindings.
func layoutBindings(c bindings.Contract, stages vk.ShaderStageFlagBits) []vk.DescriptorSetLayoutBinding {
	out := make([]vk.DescriptorSetLayoutBinding, len(c.Slots))
	for i, s := range c.Slots {
		out[i] = vk.DescriptorSetLayoutBinding{
			Binding:         s.Binding,
			DescriptorType:  descriptorType(s.Kind),
			DescriptorCount: 1,
			StageFlags:      vk.ShaderStageFlags(stages),
		}
	}
	return out
}

// vertexInput converts reflected vertex input structs into binding and attribute descriptions,
// one binding per struct in declaration order. Structs named in instanced step per instance with
// the given stride.
func vertexInput(r *shader.Reflection, instanced map[string]uint32) ([]vk.VertexInputBindingDescription, []vk.VertexInputAttributeDescription, error) {
	var binds []vk.VertexInputBindingDescription
	var attrs []vk.VertexInputAttributeDescription
	for i, vi := range r.VertexInputs {
		b := vk.VertexInputBindingDescription{Binding: uint32(i), Stride: uint32(vi.Stride), InputRate: vk.VertexInputRateVertex}
		if stride, ok := instanced[vi.Name]; ok {
			b.Stride = stride
			b.InputRate = vk.VertexInputRateInstance
		}
		binds = append(binds, b)
		for _, a := range vi.Attributes {
			f, ok := vertexFormats[a.Type]
			if !ok {
				return nil, nil, errors.Newf("vulkan: %s location %d has unsupported type %s", vi.Name, a.Location, a.Type)
			}
			attrs = append(attrs, vk.VertexInputAttributeDescription{
				Location: a.Location,
				Binding:  uint32(i),
				Format:   f,
				Offset:   uint32(a.Offset),
			})
		}
	}
	return binds, attrs, nil
}

// kernel is a descriptor set layout and the pipeline layout built on it.
type kernel struct {
	contract bindings.Contract
	set      vk.DescriptorSetLayout
	layout   vk.PipelineLayout
}

// resources are the device objects shared by every drawable.
type resources struct {
	render, cluster, cullK *kernel
	renderShader           shader.Shader
	clusterShader          shader.Shader
	modules                map[string]vk.ShaderModule
	reset, cull            vk.Pipeline
	pipelines              map[string]vk.Pipeline
	plant, ground          *image
	sampler                vk.Sampler
}

func (d *Device) newResources() (res *resources, err error) {
	res = &resources{modules: map[string]vk.ShaderModule{}, pipelines: map[string]vk.Pipeline{}}
	defer func() {
		if err != nil {
			res.release(d)
		}
	}()

	if res.renderShader, err = reflected("render", shader.RenderSource, bindings.Render); err != nil {
		return nil, err
	}
	if res.clusterShader, err = reflected("cluster", shader.ClusterSource, bindings.Cluster); err != nil {
		return nil, err
	}
	graphics := vk.ShaderStageVertexBit | vk.ShaderStageFragmentBit
	if res.render, err = d.kernel(bindings.Render, graphics); err != nil {
		return nil, err
	}
	if res.cluster, err = d.kernel(bindings.Cluster, graphics); err != nil {
		return nil, err
	}
	if res.cullK, err = d.kernel(bindings.Cull, vk.ShaderStageComputeBit); err != nil {
		return nil, err
	}

	paths := d.cfg.Shaders
	for key, path := range map[string]string{
		"cull":            paths.CullCompute,
		"plant_vertex":    paths.PlantVertex,
		"plant_fragment":  paths.PlantFragment,
		"noodle_vertex":   paths.NoodleVertex,
		"noodle_fragment": paths.NoodleFragment,
	} {
		m, err := d.loadShader(path)
		if err != nil {
			return nil, err
		}
		res.modules[key] = m
	}

	if res.reset, err = d.computePipeline(res.cullK, res.modules["cull"], "reset_counts"); err != nil {
		return nil, err
	}
	if res.cull, err = d.computePipeline(res.cullK, res.modules["cull"], "cull"); err != nil {
		return nil, err
	}

	layers := uint32(max(d.cfg.PlantTypes, 1))
	if res.plant, err = d.texture("plant textures", texgen.Plants(int(layers)), texgen.Size, layers); err != nil {
		return nil, err
	}
	if res.ground, err = d.texture("ground texture", texgen.Ground(), texgen.Size, 1); err != nil {
		return nil, err
	}
	err = vk.Error(vk.CreateSampler(d.device, &vk.SamplerCreateInfo{
		SType:         vk.StructureTypeSamplerCreateInfo,
		MagFilter:     vk.FilterLinear,
		MinFilter:     vk.FilterLinear,
		MipmapMode:    vk.SamplerMipmapModeLinear,
		AddressModeU:  vk.SamplerAddressModeRepeat,
		AddressModeV:  vk.SamplerAddressModeRepeat,
		AddressModeW:  vk.SamplerAddressModeRepeat,
		MaxAnisotropy: 1,
		MaxLod:        1,
	}, nil, &res.sampler))
	if err != nil {
		return nil, errors.Wrap(err, "vulkan: create sampler")
	}
	return res, nil
}

// reflected parses the WGSL twin of a SPIR-V module for its entry points and vertex layout.
func reflected(key, source string, c bindings.Contract) (shader.Shader, error) {
	s, err := shader.NewShader(key, source)
	if err != nil {
		return nil, err
	}
	if err := s.Verify(c); err != nil {
		return nil, err
	}
	return s, nil
}

func (d *Device) kernel(c bindings.Contract, stages vk.ShaderStageFlagBits) (*kernel, error) {
	k := &kernel{contract: c}
	lb := layoutBindings(c, stages)
	err := vk.Error(vk.CreateDescriptorSetLayout(d.device, &vk.DescriptorSetLayoutCreateInfo{
		SType:        vk.StructureTypeDescriptorSetLayoutCreateInfo,
		BindingCount: uint32(len(lb)),
		PBindings:    lb,
	}, nil, &k.set))
	if err != nil {
		return nil, errors.Wrapf(err, "vulkan: descriptor set layout %s", c.Name)
	}
	err = vk.Error(vk.CreatePipelineLayout(d.device, &vk.PipelineLayoutCreateInfo{
		SType:          vk.StructureTypePipelineLayoutCreateInfo,
		SetLayoutCount: 1,
		PSetLayouts:    []vk.DescriptorSetLayout{k.set},
	}, nil, &k.layout))
	if err != nil {
		vk.DestroyDescriptorSetLayout(d.device, k.set, nil)
		return nil, errors.Wrapf(err, "vulkan: pipeline layout %s", c.Name)
	}
	return k, nil
}

func (k *kernel) release(d *Device) {
	if k == nil {
		return
	}
	if k.layout != nil {
		vk.DestroyPipelineLayout(d.device, k.layout, nil)
	}
	if k.set != nil {
		vk.DestroyDescriptorSetLayout(d.device, k.set, nil)
	}
}

func (d *Device) computePipeline(k *kernel, m vk.ShaderModule, entry string) (vk.Pipeline, error) {
	out := make([]vk.Pipeline, 1)
	err := vk.Error(vk.CreateComputePipelines(d.device, nil, 1, []vk.ComputePipelineCreateInfo{{
		SType:  vk.StructureTypeComputePipelineCreateInfo,
		Stage:  stage(vk.ShaderStageComputeBit, m, entry),
		Layout: k.layout,
	}}, nil, out))
	if err != nil {
		return nil, errors.Wrapf(err, "vulkan: compute pipeline %s", entry)
	}
	return out[0], nil
}

// graphicsDesc is what differs between the render pipelines.
type graphicsDesc struct {
	kernel     *kernel
	reflection *shader.Reflection
	vertex     vk.ShaderModule
	fragment   vk.ShaderModule
	fsEntry    string
	instanced  map[string]uint32
	depthWrite bool
	compare    vk.CompareOp
}

func (d *Device) graphicsPipeline(key string, g graphicsDesc) (vk.Pipeline, error) {
	binds, attrs, err := vertexInput(g.reflection, g.instanced)
	if err != nil {
		return nil, err
	}
	depthWrite := vk.Bool32(vk.False)
	if g.depthWrite {
		depthWrite = vk.True
	}
	dynamic := []vk.DynamicState{vk.DynamicStateViewport, vk.DynamicStateScissor}
	info := vk.GraphicsPipelineCreateInfo{
		SType:      vk.StructureTypeGraphicsPipelineCreateInfo,
		StageCount: 2,
		PStages: []vk.PipelineShaderStageCreateInfo{
			stage(vk.ShaderStageVertexBit, g.vertex, g.reflection.Entry(shader.StageVertex)),
			stage(vk.ShaderStageFragmentBit, g.fragment, g.fsEntry),
		},
		PVertexInputState: &vk.PipelineVertexInputStateCreateInfo{
			SType:                           vk.StructureTypePipelineVertexInputStateCreateInfo,
			VertexBindingDescriptionCount:   uint32(len(binds)),
			PVertexBindingDescriptions:      binds,
			VertexAttributeDescriptionCount: uint32(len(attrs)),
			PVertexAttributeDescriptions:    attrs,
		},
		PInputAssemblyState: &vk.PipelineInputAssemblyStateCreateInfo{
			SType:    vk.StructureTypePipelineInputAssemblyStateCreateInfo,
			Topology: vk.PrimitiveTopologyTriangleList,
		},
		PViewportState: &vk.PipelineViewportStateCreateInfo{
			SType:         vk.StructureTypePipelineViewportStateCreateInfo,
			ViewportCount: 1,
			ScissorCount:  1,
		},
		PRasterizationState: &vk.PipelineRasterizationStateCreateInfo{
			SType:       vk.StructureTypePipelineRasterizationStateCreateInfo,
			PolygonMode: vk.PolygonModeFill,
			CullMode:    vk.CullModeFlags(vk.CullModeNone),
			FrontFace:   vk.FrontFaceCounterClockwise,
			LineWidth:   1,
		},
		PMultisampleState: &vk.PipelineMultisampleStateCreateInfo{
			SType:                vk.StructureTypePipelineMultisampleStateCreateInfo,
			RasterizationSamples: vk.SampleCount1Bit,
			MinSampleShading:     1,
		},
		PDepthStencilState: &vk.PipelineDepthStencilStateCreateInfo{
			SType:            vk.StructureTypePipelineDepthStencilStateCreateInfo,
			DepthTestEnable:  vk.True,
			DepthWriteEnable: depthWrite,
			DepthCompareOp:   g.compare,
			MaxDepthBounds:   1,
		},
		PColorBlendState: &vk.PipelineColorBlendStateCreateInfo{
			SType:           vk.StructureTypePipelineColorBlendStateCreateInfo,
			AttachmentCount: 1,
			PAttachments: []vk.PipelineColorBlendAttachmentState{{
				ColorWriteMask: vk.ColorComponentFlags(vk.ColorComponentRBit | vk.ColorComponentGBit | vk.ColorComponentBBit | vk.ColorComponentABit),
			}},
		},
		PDynamicState: &vk.PipelineDynamicStateCreateInfo{
			SType:             vk.StructureTypePipelineDynamicStateCreateInfo,
			DynamicStateCount: uint32(len(dynamic)),
			PDynamicStates:    dynamic,
		},
		Layout:            g.kernel.layout,
		RenderPass:        d.target.pass,
		BasePipelineIndex: -1,
	}
	out := make([]vk.Pipeline, 1)
	if err := vk.Error(vk.CreateGraphicsPipelines(d.device, nil, 1, []vk.GraphicsPipelineCreateInfo{info}, nil, out)); err != nil {
		return nil, errors.Wrapf(err, "vulkan: graphics pipeline %s", key)
	}
	return out[0], nil
}

// pipelineKey names the pipeline that draws a drawable.
func pipelineKey(p *packer.Packed) string {
	switch {
	case p.Clusters != nil:
		return "cluster"
	case p.Name == scene.DrawableGround || p.Name == scene.DrawableSky:
		return p.Name
	default:
		return scene.DrawablePlants
	}
}

// renderPipeline returns the drawable's pipeline and kernel, creating the pipeline on first use.
func (d *Device) renderPipeline(p *packer.Packed) (vk.Pipeline, *kernel, error) {
	res := d.res
	key := pipelineKey(p)
	k := res.render
	if key == "cluster" {
		k = res.cluster
	}
	if pl, ok := res.pipelines[key]; ok {
		return pl, k, nil
	}

	var inst packer.GPUInstance
	g := graphicsDesc{
		kernel:     k,
		reflection: res.renderShader.Reflection(),
		vertex:     res.modules["plant_vertex"],
		fragment:   res.modules["plant_fragment"],
		fsEntry:    "fs_plants",
		instanced:  map[string]uint32{"InstanceInput": uint32(inst.Size())},
		depthWrite: true,
		compare:    vk.CompareOpLess,
	}
	switch key {
	case "cluster":
		g.reflection = res.clusterShader.Reflection()
		g.vertex, g.fragment = res.modules["noodle_vertex"], res.modules["noodle_fragment"]
		g.fsEntry = g.reflection.Entry(shader.StageFragment)
		g.instanced = map[string]uint32{"ClusterInput": indirect.ClusterStride}
	case scene.DrawableGround:
		g.fsEntry = "fs_ground"
	case scene.DrawableSky:
		g.fsEntry = "fs_sky"
		g.depthWrite = false
		g.compare = vk.CompareOpLessOrEqual
	}
	pl, err := d.graphicsPipeline(key, g)
	if err != nil {
		return nil, nil, err
	}
	res.pipelines[key] = pl
	return pl, k, nil
}

func (res *resources) release(d *Device) {
	for k, pl := range res.pipelines {
		vk.DestroyPipeline(d.device, pl, nil)
		delete(res.pipelines, k)
	}
	for _, pl := range []vk.Pipeline{res.reset, res.cull} {
		if pl != nil {
			vk.DestroyPipeline(d.device, pl, nil)
		}
	}
	for k, m := range res.modules {
		vk.DestroyShaderModule(d.device, m, nil)
		delete(res.modules, k)
	}
	res.render.release(d)
	res.cluster.release(d)
	res.cullK.release(d)
	if res.sampler != nil {
		vk.DestroySampler(d.device, res.sampler, nil)
	}
	for _, im := range []*image{res.plant, res.ground} {
		if im != nil {
			im.release(d)
		}
	}
}

// groups returns the dispatch size of the cull kernel for n items.
func (d *Device) groups(n int) uint32 {
	return cull.GroupCount(uint32(n), uint32(d.cfg.LocalGroupSize))
}
