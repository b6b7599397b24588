package pipeline

import (
	"slices"

	"github.com/Carmen-Shannon/oxy-indirect/engine/renderer/shader"
	"github.com/cockroachdb/errors"
	"github.com/cogentcore/webgpu/wgpu"
)

// PipelineType identifies whether a pipeline is a compute pipeline or a render pipeline.
type PipelineType int

const (
	// PipelineTypeCompute indicates a compute pipeline with a single compute entry point.
	PipelineTypeCompute PipelineType = iota

	// PipelineTypeRender indicates a render pipeline with vertex and fragment entry points.
	PipelineTypeRender
)

// DepthFormat is the depth attachment format every render pipeline targets.
const DepthFormat = wgpu.TextureFormatDepth24Plus

type pipeline struct {
	pipelineType PipelineType
	pipelineKey  string

	// module holds every entry point the pipeline uses.
	module shader.Shader

	vertexEntry, fragmentEntry, computeEntry string

	// instanced maps vertex input struct names to the stride of their per-instance buffer.
	instanced map[string]uint64

	depthWriteEnabled bool
	depthCompare      wgpu.CompareFunction
	cullMode          wgpu.CullMode
	topology          wgpu.PrimitiveTopology
	frontFace         wgpu.FrontFace
	writeMask         wgpu.ColorWriteMask
}

// Pipeline describes a render or compute pipeline over one reflected shader module. It holds no
// GPU objects; the backend creates them from the descriptors.
type Pipeline interface {
	// Type returns the type of the pipeline
	//
	// Returns:
	//   - PipelineType: the type of the pipeline (render or compute)
	Type() PipelineType

	// PipelineKey returns the label used for the pipeline and its layout.
	PipelineKey() string

	// Shader returns the module the pipeline's entry points live in.
	Shader() shader.Shader

	// Validate checks that every configured entry point exists in the module with the right stage.
	//
	// Returns:
	//   - error: a missing or mis-staged entry point
	Validate() error

	// RenderDescriptor builds the render pipeline descriptor.
	//
	// Parameters:
	//   - module: the created shader module
	//   - layout: the pipeline layout
	//   - format: the colour target format
	//
	// Returns:
	//   - *wgpu.RenderPipelineDescriptor: the descriptor
	RenderDescriptor(module *wgpu.ShaderModule, layout *wgpu.PipelineLayout, format wgpu.TextureFormat) *wgpu.RenderPipelineDescriptor

	// ComputeDescriptor builds the compute pipeline descriptor.
	ComputeDescriptor(module *wgpu.ShaderModule, layout *wgpu.PipelineLayout) *wgpu.ComputePipelineDescriptor
}

var _ Pipeline = &pipeline{}

// NewPipeline is the entry point to create a new Pipeline.
//
// Parameters:
//   - pipelineKey: the pipeline label
//   - pipelineType: render or compute
//   - module: the shader holding the entry points
//   - opts: a variadic list of PipelineBuilderOption functions to configure the pipeline
//
// Returns:
//   - Pipeline: a new Pipeline instance with the specified type and configuration
func NewPipeline(pipelineKey string, pipelineType PipelineType, module shader.Shader, opts ...PipelineBuilderOption) Pipeline {
	p := &pipeline{
		pipelineKey:       pipelineKey,
		pipelineType:      pipelineType,
		module:            module,
		instanced:         map[string]uint64{},
		depthWriteEnabled: true,
		depthCompare:      wgpu.CompareFunctionLess,
		cullMode:          wgpu.CullModeNone,
		topology:          wgpu.PrimitiveTopologyTriangleList,
		frontFace:         wgpu.FrontFaceCCW,
		writeMask:         wgpu.ColorWriteMaskAll,
	}
	if r := module.Reflection(); r != nil {
		p.vertexEntry = r.Entry(shader.StageVertex)
		p.fragmentEntry = r.Entry(shader.StageFragment)
		p.computeEntry = r.Entry(shader.StageCompute)
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *pipeline) Type() PipelineType {
	return p.pipelineType
}

func (p *pipeline) PipelineKey() string {
	return p.pipelineKey
}

func (p *pipeline) Shader() shader.Shader {
	return p.module
}

func (p *pipeline) Validate() error {
	r := p.module.Reflection()
	check := func(name string, stage shader.Stage) error {
		if name == "" {
			return errors.Newf("pipeline %s: no %s entry point", p.pipelineKey, stage)
		}
		if !slices.Contains(r.Entries[stage], name) {
			return errors.Newf("pipeline %s: %s has no %s entry point %q", p.pipelineKey, p.module.Key(), stage, name)
		}
		return nil
	}
	if p.pipelineType == PipelineTypeCompute {
		return check(p.computeEntry, shader.StageCompute)
	}
	if err := check(p.vertexEntry, shader.StageVertex); err != nil {
		return err
	}
	return check(p.fragmentEntry, shader.StageFragment)
}

func (p *pipeline) RenderDescriptor(module *wgpu.ShaderModule, layout *wgpu.PipelineLayout, format wgpu.TextureFormat) *wgpu.RenderPipelineDescriptor {
	return &wgpu.RenderPipelineDescriptor{
		Label:  p.pipelineKey,
		Layout: layout,
		Vertex: wgpu.VertexState{
			Module:     module,
			EntryPoint: p.vertexEntry,
			Buffers:    shader.VertexBufferLayouts(p.module.Reflection(), p.instanced),
		},
		Fragment: &wgpu.FragmentState{
			Module:     module,
			EntryPoint: p.fragmentEntry,
			Targets: []wgpu.ColorTargetState{{
				Format:    format,
				WriteMask: p.writeMask,
			}},
		},
		Primitive: wgpu.PrimitiveState{
			Topology:  p.topology,
			FrontFace: p.frontFace,
			CullMode:  p.cullMode,
		},
		DepthStencil: &wgpu.DepthStencilState{
			Format:            DepthFormat,
			DepthWriteEnabled: p.depthWriteEnabled,
			DepthCompare:      p.depthCompare,
			StencilFront:      wgpu.StencilFaceState{Compare: wgpu.CompareFunctionAlways},
			StencilBack:       wgpu.StencilFaceState{Compare: wgpu.CompareFunctionAlways},
		},
		Multisample: wgpu.MultisampleState{
			Count: 1,
			Mask:  0xFFFFFFFF,
		},
	}
}

func (p *pipeline) ComputeDescriptor(module *wgpu.ShaderModule, layout *wgpu.PipelineLayout) *wgpu.ComputePipelineDescriptor {
	return &wgpu.ComputePipelineDescriptor{
		Label:  p.pipelineKey,
		Layout: layout,
		Compute: wgpu.ProgrammableStageDescriptor{
			Module:     module,
			EntryPoint: p.computeEntry,
		},
	}
}
