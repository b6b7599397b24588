package shader

import (
	"strings"

	"github.com/Carmen-Shannon/oxy-indirect/engine/renderer/bindings"
	"github.com/cogentcore/webgpu/wgpu"
)

var wgslVertexFormats = map[string]wgpu.VertexFormat{
	"f32":       wgpu.VertexFormatFloat32,
	"vec2<f32>": wgpu.VertexFormatFloat32x2,
	"vec3<f32>": wgpu.VertexFormatFloat32x3,
	"vec4<f32>": wgpu.VertexFormatFloat32x4,
	"u32":       wgpu.VertexFormatUint32,
	"vec2<u32>": wgpu.VertexFormatUint32x2,
	"i32":       wgpu.VertexFormatSint32,
}

var wgslTextureDimensions = map[string]wgpu.TextureViewDimension{
	"texture_2d":       wgpu.TextureViewDimension2D,
	"texture_2d_array": wgpu.TextureViewDimension2DArray,
	"texture_cube":     wgpu.TextureViewDimensionCube,
}

// BindGroupLayoutEntries converts the bindings of one group to wgpu layout entries.
//
// Parameters:
//   - r: the reflected module
//   - group: the bind group index
//   - visibility: the stages that see every entry
//
// Returns:
//   - []wgpu.BindGroupLayoutEntry: entries in binding order
func BindGroupLayoutEntries(r *Reflection, group uint32, visibility wgpu.ShaderStage) []wgpu.BindGroupLayoutEntry {
	bs := r.Group(group)
	entries := make([]wgpu.BindGroupLayoutEntry, 0, len(bs))
	for _, b := range bs {
		e := wgpu.BindGroupLayoutEntry{Binding: b.Binding, Visibility: visibility}
		switch b.Kind {
		case bindings.KindUniform:
			e.Buffer.Type = wgpu.BufferBindingTypeUniform
			e.Buffer.MinBindingSize = b.MinSize
		case bindings.KindStorage:
			e.Buffer.Type = wgpu.BufferBindingTypeStorage
			e.Buffer.MinBindingSize = b.MinSize
		case bindings.KindReadOnlyStorage:
			e.Buffer.Type = wgpu.BufferBindingTypeReadOnlyStorage
			e.Buffer.MinBindingSize = b.MinSize
		case bindings.KindSampler:
			e.Sampler.Type = wgpu.SamplerBindingTypeFiltering
		case bindings.KindTexture:
			base, _, _ := strings.Cut(b.Type, "<")
			e.Texture.SampleType = wgpu.TextureSampleTypeFloat
			e.Texture.ViewDimension = wgslTextureDimensions[base]
		}
		entries = append(entries, e)
	}
	return entries
}

// VertexBufferLayouts converts the module's vertex input structs to wgpu layouts, one buffer
// slot per struct in declaration order. Structs named in instanced step per instance with the
// given stride; the rest step per vertex with their packed stride.
//
// Parameters:
//   - r: the reflected module
//   - instanced: instance-rate struct names mapped to the byte stride of their buffer
//
// Returns:
//   - []wgpu.VertexBufferLayout: the layouts
func VertexBufferLayouts(r *Reflection, instanced map[string]uint64) []wgpu.VertexBufferLayout {
	out := make([]wgpu.VertexBufferLayout, 0, len(r.VertexInputs))
	for _, vi := range r.VertexInputs {
		l := wgpu.VertexBufferLayout{ArrayStride: vi.Stride, StepMode: wgpu.VertexStepModeVertex}
		if stride, ok := instanced[vi.Name]; ok {
			l.ArrayStride = stride
			l.StepMode = wgpu.VertexStepModeInstance
		}
		for _, a := range vi.Attributes {
			l.Attributes = append(l.Attributes, wgpu.VertexAttribute{
				Format:         wgslVertexFormats[a.Type],
				Offset:         a.Offset,
				ShaderLocation: a.Location,
			})
		}
		out = append(out, l)
	}
	return out
}
