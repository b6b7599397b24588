package bind_group_provider

import "github.com/cogentcore/webgpu/wgpu"

// BindGroupProviderOption is a functional option used to configure a BindGroupProvider during construction.
type BindGroupProviderOption func(*bindGroupProvider)

// WithBuffer binds a buffer range to a uniform or storage slot.
//
// Parameters:
//   - name: the contract slot name
//   - buf: the buffer
//   - offset: byte offset of the range
//   - size: byte size of the range; 0 binds the rest of the buffer
//
// Returns:
//   - BindGroupProviderOption: a function that sets the buffer for the named slot
func WithBuffer(name string, buf *wgpu.Buffer, offset, size uint64) BindGroupProviderOption {
	return func(p *bindGroupProvider) {
		p.buffers[name] = BufferRange{Buffer: buf, Offset: offset, Size: size}
	}
}

// WithTextureView binds a texture view to a texture slot.
//
// Parameters:
//   - name: the contract slot name
//   - tv: the view
//
// Returns:
//   - BindGroupProviderOption: a function that sets the view for the named slot
func WithTextureView(name string, tv *wgpu.TextureView) BindGroupProviderOption {
	return func(p *bindGroupProvider) {
		p.textureViews[name] = tv
	}
}

// WithSampler binds a sampler to a sampler slot.
func WithSampler(name string, s *wgpu.Sampler) BindGroupProviderOption {
	return func(p *bindGroupProvider) {
		p.samplers[name] = s
	}
}
