package renderer

import (
	"github.com/Carmen-Shannon/oxy-indirect/engine/config"
	"github.com/Carmen-Shannon/oxy-indirect/engine/renderer/bind_group_provider"
	"github.com/Carmen-Shannon/oxy-indirect/engine/renderer/bindings"
	"github.com/Carmen-Shannon/oxy-indirect/engine/renderer/cull"
	"github.com/Carmen-Shannon/oxy-indirect/engine/renderer/indirect"
	"github.com/Carmen-Shannon/oxy-indirect/engine/renderer/packer"
	"github.com/Carmen-Shannon/oxy-indirect/engine/renderer/pipeline"
	"github.com/Carmen-Shannon/oxy-indirect/engine/renderer/shader"
	"github.com/Carmen-Shannon/oxy-indirect/engine/renderer/texgen"
	"github.com/Carmen-Shannon/oxy-indirect/engine/scene"
	"github.com/cockroachdb/errors"
	"github.com/cogentcore/webgpu/wgpu"
)

// wgpuLayout is a shader module with the single bind group layout its contract describes.
type wgpuLayout struct {
	shader   shader.Shader
	module   *wgpu.ShaderModule
	group    *wgpu.BindGroupLayout
	pipeline *wgpu.PipelineLayout
}

func (l *wgpuLayout) release() {
	if l == nil {
		return
	}
	l.pipeline.Release()
	l.group.Release()
	l.module.Release()
}

// wgpuResources are the device objects shared by every drawable.
type wgpuResources struct {
	device *wgpu.Device
	queue  *wgpu.Queue
	format wgpu.TextureFormat

	render, cluster, cullKernel *wgpuLayout

	reset, cull *wgpu.ComputePipeline
	pipelines   map[string]*wgpu.RenderPipeline

	plantTexture, groundTexture *wgpu.Texture
	plantView, groundView       *wgpu.TextureView
	sampler                     *wgpu.Sampler
}

// wgpuBatch holds one drawable's pipeline and its bind groups, one per ring slot.
type wgpuBatch struct {
	pipeline *wgpu.RenderPipeline
	render   []bind_group_provider.BindGroupProvider
	cull     []bind_group_provider.BindGroupProvider
}

func (bt *wgpuBatch) release() {
	for _, p := range bt.render {
		p.Release()
	}
	for _, p := range bt.cull {
		p.Release()
	}
}

func newWGPUResources(d *wgpu.Device, q *wgpu.Queue, format wgpu.TextureFormat, cfg *config.Config) (res *wgpuResources, err error) {
	res = &wgpuResources{
		device:    d,
		queue:     q,
		format:    format,
		pipelines: map[string]*wgpu.RenderPipeline{},
	}
	defer func() {
		if err != nil {
			res.release()
		}
	}()

	if res.render, err = res.layout("render", shader.RenderSource, bindings.Render, wgpu.ShaderStageVertex|wgpu.ShaderStageFragment); err != nil {
		return nil, err
	}
	if res.cluster, err = res.layout("cluster", shader.ClusterSource, bindings.Cluster, wgpu.ShaderStageVertex|wgpu.ShaderStageFragment); err != nil {
		return nil, err
	}
	if res.cullKernel, err = res.layout("cull", cull.Kernel(uint32(cfg.LocalGroupSize)), bindings.Cull, wgpu.ShaderStageCompute); err != nil {
		return nil, err
	}

	for _, entry := range []string{cull.EntryReset, cull.EntryCull} {
		p := pipeline.NewPipeline(entry, pipeline.PipelineTypeCompute, res.cullKernel.shader, pipeline.WithComputeEntry(entry))
		if err = p.Validate(); err != nil {
			return nil, err
		}
		cp, err := d.CreateComputePipeline(p.ComputeDescriptor(res.cullKernel.module, res.cullKernel.pipeline))
		if err != nil {
			return nil, errors.Wrapf(err, "wgpu: compute pipeline %s", entry)
		}
		if entry == cull.EntryReset {
			res.reset = cp
		} else {
			res.cull = cp
		}
	}

	if err = res.textures(cfg.PlantTypes); err != nil {
		return nil, err
	}
	res.sampler, err = d.CreateSampler(&wgpu.SamplerDescriptor{
		Label:         "Plant Sampler",
		AddressModeU:  wgpu.AddressModeRepeat,
		AddressModeV:  wgpu.AddressModeRepeat,
		AddressModeW:  wgpu.AddressModeRepeat,
		MagFilter:     wgpu.FilterModeLinear,
		MinFilter:     wgpu.FilterModeLinear,
		MipmapFilter:  wgpu.MipmapFilterModeLinear,
		LodMinClamp:   0,
		LodMaxClamp:   32,
		MaxAnisotropy: 1,
	})
	if err != nil {
		return nil, errors.Wrap(err, "wgpu: sampler")
	}
	return res, nil
}

// layout creates a shader module and the bind group layout of its contract, after checking that
// the module declares exactly the contract's slots.
func (res *wgpuResources) layout(key, source string, c bindings.Contract, visibility wgpu.ShaderStage) (*wgpuLayout, error) {
	s, err := shader.NewShader(key, source)
	if err != nil {
		return nil, err
	}
	if err := s.Verify(c); err != nil {
		return nil, err
	}
	module, err := res.device.CreateShaderModule(s.Module())
	if err != nil {
		return nil, errors.Wrapf(err, "wgpu: shader module %s", key)
	}
	group, err := res.device.CreateBindGroupLayout(&wgpu.BindGroupLayoutDescriptor{
		Label:   key + " Bind Group Layout",
		Entries: shader.BindGroupLayoutEntries(s.Reflection(), c.Group, visibility),
	})
	if err != nil {
		module.Release()
		return nil, errors.Wrapf(err, "wgpu: bind group layout %s", key)
	}
	pl, err := res.device.CreatePipelineLayout(&wgpu.PipelineLayoutDescriptor{
		Label:            key + " Pipeline Layout",
		BindGroupLayouts: []*wgpu.BindGroupLayout{group},
	})
	if err != nil {
		group.Release()
		module.Release()
		return nil, errors.Wrapf(err, "wgpu: pipeline layout %s", key)
	}
	return &wgpuLayout{shader: s, module: module, group: group, pipeline: pl}, nil
}

// textures uploads a striped layer per plant type and a checkered ground.
func (res *wgpuResources) textures(layers int) error {
	var err error
	if res.plantTexture, res.plantView, err = res.texture("Plant Textures", texgen.Plants(layers), uint32(layers), wgpu.TextureViewDimension2DArray); err != nil {
		return err
	}
	res.groundTexture, res.groundView, err = res.texture("Ground Texture", texgen.Ground(), 1, wgpu.TextureViewDimension2D)
	return err
}

func (res *wgpuResources) texture(label string, pixels []byte, layers uint32, dim wgpu.TextureViewDimension) (*wgpu.Texture, *wgpu.TextureView, error) {
	const n = texgen.Size
	size := wgpu.Extent3D{Width: n, Height: n, DepthOrArrayLayers: layers}
	tex, err := res.device.CreateTexture(&wgpu.TextureDescriptor{
		Label:         label,
		Usage:         wgpu.TextureUsageTextureBinding | wgpu.TextureUsageCopyDst,
		Dimension:     wgpu.TextureDimension2D,
		Size:          size,
		Format:        wgpu.TextureFormatRGBA8UnormSrgb,
		MipLevelCount: 1,
		SampleCount:   1,
	})
	if err != nil {
		return nil, nil, errors.Wrapf(err, "wgpu: %s", label)
	}
	res.queue.WriteTexture(
		&wgpu.ImageCopyTexture{
			Texture:  tex,
			MipLevel: 0,
			Origin:   wgpu.Origin3D{},
			Aspect:   wgpu.TextureAspectAll,
		},
		pixels,
		&wgpu.TextureDataLayout{
			Offset:       0,
			BytesPerRow:  n * 4,
			RowsPerImage: n,
		},
		&size,
	)
	view, err := tex.CreateView(&wgpu.TextureViewDescriptor{
		Label:           label + " View",
		Format:          wgpu.TextureFormatRGBA8UnormSrgb,
		Dimension:       dim,
		BaseMipLevel:    0,
		MipLevelCount:   1,
		BaseArrayLayer:  0,
		ArrayLayerCount: layers,
		Aspect:          wgpu.TextureAspectAll,
	})
	if err != nil {
		tex.Release()
		return nil, nil, errors.Wrapf(err, "wgpu: %s view", label)
	}
	return tex, view, nil
}

// renderPipeline returns the pipeline that draws a drawable, creating it on first use. Ground
// and sky share the instanced layout with their own fragment entry points.
func (res *wgpuResources) renderPipeline(p *packer.Packed) (*wgpu.RenderPipeline, error) {
	key := scene.DrawablePlants
	switch {
	case p.Clusters != nil:
		key = "cluster"
	case p.Name == scene.DrawableGround || p.Name == scene.DrawableSky:
		key = p.Name
	}
	if rp, ok := res.pipelines[key]; ok {
		return rp, nil
	}

	var inst packer.GPUInstance
	l := res.render
	var desc pipeline.Pipeline
	switch key {
	case "cluster":
		l = res.cluster
		desc = pipeline.NewPipeline(key, pipeline.PipelineTypeRender, l.shader,
			pipeline.WithInstanced("ClusterInput", indirect.ClusterStride))
	case scene.DrawableGround:
		desc = pipeline.NewPipeline(key, pipeline.PipelineTypeRender, l.shader,
			pipeline.WithFragmentEntry("fs_ground"),
			pipeline.WithInstanced("InstanceInput", uint64(inst.Size())))
	case scene.DrawableSky:
		desc = pipeline.NewPipeline(key, pipeline.PipelineTypeRender, l.shader,
			pipeline.WithFragmentEntry("fs_sky"),
			pipeline.WithDepthWriteEnabled(false),
			pipeline.WithDepthCompare(wgpu.CompareFunctionLessEqual),
			pipeline.WithInstanced("InstanceInput", uint64(inst.Size())))
	default:
		desc = pipeline.NewPipeline(key, pipeline.PipelineTypeRender, l.shader,
			pipeline.WithFragmentEntry("fs_plants"),
			pipeline.WithInstanced("InstanceInput", uint64(inst.Size())))
	}
	if err := desc.Validate(); err != nil {
		return nil, err
	}
	rp, err := res.device.CreateRenderPipeline(desc.RenderDescriptor(l.module, l.pipeline, res.format))
	if err != nil {
		return nil, errors.Wrapf(err, "wgpu: render pipeline %s", key)
	}
	res.pipelines[key] = rp
	return rp, nil
}

func (res *wgpuResources) bindGroup(l *wgpuLayout, p bind_group_provider.BindGroupProvider) error {
	entries, err := p.Entries()
	if err != nil {
		return err
	}
	bg, err := res.device.CreateBindGroup(&wgpu.BindGroupDescriptor{
		Label:   p.Label() + " Bind Group",
		Layout:  l.group,
		Entries: entries,
	})
	if err != nil {
		return errors.Wrapf(err, "wgpu: bind group %s", p.Label())
	}
	p.SetBindGroup(bg)
	return nil
}

func (res *wgpuResources) binding(b packer.Binding) (*wgpu.Buffer, uint64, uint64, error) {
	w, err := ownBuffer(b.Buffer)
	if err != nil {
		return nil, 0, 0, err
	}
	return w.buf, b.Offset, b.Size, nil
}

// bind creates the drawable's pipeline and a render bind group per scene slot, plus a cull bind
// group per slot when the drawable is culled.
func (res *wgpuResources) bind(p *packer.Packed, u *packer.Uploaded, scenes []*wgpu.Buffer) (bt *wgpuBatch, err error) {
	bt = &wgpuBatch{}
	defer func() {
		if err != nil {
			bt.release()
		}
	}()
	if bt.pipeline, err = res.renderPipeline(p); err != nil {
		return nil, err
	}

	whole := func(b packer.Buffer) (*wgpu.Buffer, error) {
		w, err := ownBuffer(b)
		if err != nil {
			return nil, err
		}
		return w.buf, nil
	}
	prims, primOff, primSize, err := res.binding(u.Primitives)
	if err != nil {
		return nil, err
	}

	for slot, sceneBuf := range scenes {
		var provider bind_group_provider.BindGroupProvider
		l := res.render
		if p.Clusters != nil {
			l = res.cluster
			instances, err := whole(u.Instances)
			if err != nil {
				return nil, err
			}
			texIndex, err := whole(u.InstanceTex)
			if err != nil {
				return nil, err
			}
			vertices, err := whole(u.Vertices)
			if err != nil {
				return nil, err
			}
			indices, err := whole(u.Indices)
			if err != nil {
				return nil, err
			}
			provider = bind_group_provider.NewBindGroupProvider(p.Name, bindings.Cluster,
				bind_group_provider.WithBuffer("scene", sceneBuf, 0, 0),
				bind_group_provider.WithTextureView("plant_textures", res.plantView),
				bind_group_provider.WithSampler("tex_sampler", res.sampler),
				bind_group_provider.WithBuffer("instances", instances, 0, 0),
				bind_group_provider.WithBuffer("tex_index", texIndex, 0, 0),
				bind_group_provider.WithBuffer("vertices", vertices, 0, 0),
				bind_group_provider.WithBuffer("indices", indices, 0, 0),
			)
		} else {
			mats, matOff, matSize, err := res.binding(u.Materials)
			if err != nil {
				return nil, err
			}
			provider = bind_group_provider.NewBindGroupProvider(p.Name, bindings.Render,
				bind_group_provider.WithBuffer("scene", sceneBuf, 0, 0),
				bind_group_provider.WithTextureView("plant_textures", res.plantView),
				bind_group_provider.WithTextureView("ground_texture", res.groundView),
				bind_group_provider.WithBuffer("primitives", prims, primOff, primSize),
				bind_group_provider.WithBuffer("materials", mats, matOff, matSize),
				bind_group_provider.WithSampler("tex_sampler", res.sampler),
			)
		}
		if err := res.bindGroup(l, provider); err != nil {
			return nil, err
		}
		bt.render = append(bt.render, provider)

		if !p.Category.UsesCullPass() {
			continue
		}
		instances, err := whole(u.Instances)
		if err != nil {
			return nil, err
		}
		commands, err := whole(u.IndirectFor(uint64(slot)))
		if err != nil {
			return nil, err
		}
		visible, err := whole(u.InstancesFor(uint64(slot)))
		if err != nil {
			return nil, err
		}
		cp := bind_group_provider.NewBindGroupProvider(p.Name+" cull", bindings.Cull,
			bind_group_provider.WithBuffer("scene", sceneBuf, 0, 0),
			bind_group_provider.WithBuffer("primitives", prims, primOff, primSize),
			bind_group_provider.WithBuffer("instances", instances, 0, 0),
			bind_group_provider.WithBuffer("commands", commands, 0, 0),
			bind_group_provider.WithBuffer("visible", visible, 0, 0),
		)
		if err := res.bindGroup(res.cullKernel, cp); err != nil {
			return nil, err
		}
		bt.cull = append(bt.cull, cp)
	}
	return bt, nil
}

func (res *wgpuResources) release() {
	for k, rp := range res.pipelines {
		rp.Release()
		delete(res.pipelines, k)
	}
	if res.reset != nil {
		res.reset.Release()
	}
	if res.cull != nil {
		res.cull.Release()
	}
	res.render.release()
	res.cluster.release()
	res.cullKernel.release()
	if res.sampler != nil {
		res.sampler.Release()
	}
	for _, v := range []*wgpu.TextureView{res.plantView, res.groundView} {
		if v != nil {
			v.Release()
		}
	}
	for _, t := range []*wgpu.Texture{res.plantTexture, res.groundTexture} {
		if t != nil {
			t.Release()
		}
	}
}
