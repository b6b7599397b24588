package pipeline

import (
	"github.com/cogentcore/webgpu/wgpu"
)

// PipelineBuilderOption is a functional option used to configure a Pipeline during construction.
type PipelineBuilderOption func(*pipeline)

// WithVertexEntry selects the vertex entry point when the module declares more than one.
//
// Parameters:
//   - name: the WGSL function name
//
// Returns:
//   - PipelineBuilderOption: a function that sets the vertex entry point
func WithVertexEntry(name string) PipelineBuilderOption {
	return func(p *pipeline) {
		p.vertexEntry = name
	}
}

// WithFragmentEntry selects the fragment entry point when the module declares more than one.
//
// Parameters:
//   - name: the WGSL function name
//
// Returns:
//   - PipelineBuilderOption: a function that sets the fragment entry point
func WithFragmentEntry(name string) PipelineBuilderOption {
	return func(p *pipeline) {
		p.fragmentEntry = name
	}
}

// WithComputeEntry selects the compute entry point.
func WithComputeEntry(name string) PipelineBuilderOption {
	return func(p *pipeline) {
		p.computeEntry = name
	}
}

// WithInstanced marks a vertex input struct as stepping per instance.
//
// Parameters:
//   - structName: the WGSL vertex input struct
//   - stride: byte stride of the instance buffer bound to it
//
// Returns:
//   - PipelineBuilderOption: a function that registers the instance stream
func WithInstanced(structName string, stride uint64) PipelineBuilderOption {
	return func(p *pipeline) {
		p.instanced[structName] = stride
	}
}

// WithDepthWriteEnabled sets whether depth writing is enabled for this pipeline.
//
// Parameters:
//   - enabled: a boolean indicating whether depth writing should be enabled
//
// Returns:
//   - PipelineBuilderOption: a function that sets the depth write enabled state for this pipeline
func WithDepthWriteEnabled(enabled bool) PipelineBuilderOption {
	return func(p *pipeline) {
		p.depthWriteEnabled = enabled
	}
}

// WithDepthCompare sets the depth comparison function.
func WithDepthCompare(fn wgpu.CompareFunction) PipelineBuilderOption {
	return func(p *pipeline) {
		p.depthCompare = fn
	}
}

// WithCullMode sets the cull mode for this pipeline.
//
// Parameters:
//   - mode: the cull mode to use for this pipeline (e.g., wgpu.CullModeNone, wgpu.CullModeBack)
//
// Returns:
//   - PipelineBuilderOption: a function that sets the cull mode for this pipeline
func WithCullMode(mode wgpu.CullMode) PipelineBuilderOption {
	return func(p *pipeline) {
		p.cullMode = mode
	}
}

// WithTopology sets the primitive topology for this pipeline.
func WithTopology(topology wgpu.PrimitiveTopology) PipelineBuilderOption {
	return func(p *pipeline) {
		p.topology = topology
	}
}

// WithFrontFace sets the front face winding order for this pipeline.
func WithFrontFace(frontFace wgpu.FrontFace) PipelineBuilderOption {
	return func(p *pipeline) {
		p.frontFace = frontFace
	}
}

// WithWriteMask sets the color write mask for this pipeline.
func WithWriteMask(writeMask wgpu.ColorWriteMask) PipelineBuilderOption {
	return func(p *pipeline) {
		p.writeMask = writeMask
	}
}
