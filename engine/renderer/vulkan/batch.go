package vulkan

import (
	"github.com/Carmen-Shannon/oxy-indirect/engine/renderer/bindings"
	"github.com/Carmen-Shannon/oxy-indirect/engine/renderer/indirect"
	"github.com/Carmen-Shannon/oxy-indirect/engine/renderer/ownership"
	"github.com/Carmen-Shannon/oxy-indirect/engine/renderer/packer"
	"github.com/cockroachdb/errors"
	vk "github.com/goki/vulkan"
)

// batch holds what one prepared drawable binds: its pipeline and per-slot descriptor sets.
type batch struct {
	pipeline vk.Pipeline
	layout   vk.PipelineLayout
	pool     vk.DescriptorPool
	render   []vk.DescriptorSet
	cull     []vk.DescriptorSet
}

func (b *batch) release(dev vk.Device) {
	if b.pool != nil {
		vk.DestroyDescriptorPool(dev, b.pool, nil)
		b.pool = nil
	}
}

// resource is what fills one descriptor slot.
type resource struct {
	buf     *Buffer
	offset  uint64
	size    uint64
	view    vk.ImageView
	sampler vk.Sampler
}

// descriptorWrites builds the writes that fill every slot of c in set. Missing slots are errors.
func descriptorWrites(set vk.DescriptorSet, c bindings.Contract, res map[string]resource) ([]vk.WriteDescriptorSet, error) {
	writes := make([]vk.WriteDescriptorSet, 0, len(c.Slots))
	for _, s := range c.Slots {
		r, ok := res[s.Name]
		if !ok {
			return nil, errors.Newf("vulkan: %s binding %d (%s) has no resource", c.Name, s.Binding, s.Name)
		}
		w := vk.WriteDescriptorSet{
			SType:           vk.StructureTypeWriteDescriptorSet,
			DstSet:          set,
			DstBinding:      s.Binding,
			DescriptorCount: 1,
			DescriptorType:  descriptorType(s.Kind),
		}
		switch s.Kind {
		case bindings.KindSampler:
			w.PImageInfo = []vk.DescriptorImageInfo{{Sampler: r.sampler}}
		case bindings.KindTexture:
			w.PImageInfo = []vk.DescriptorImageInfo{{ImageView: r.view, ImageLayout: vk.ImageLayoutShaderReadOnlyOptimal}}
		default:
			if r.buf == nil {
				return nil, errors.Newf("vulkan: %s binding %d (%s) needs a buffer", c.Name, s.Binding, s.Name)
			}
			size := vk.DeviceSize(r.size)
			if r.size == 0 {
				size = wholeSize
			}
			w.PBufferInfo = []vk.DescriptorBufferInfo{{Buffer: r.buf.buf, Offset: vk.DeviceSize(r.offset), Range: size}}
		}
		writes = append(writes, w)
	}
	return writes, nil
}

// poolSizes counts the descriptors sets copies of each contract need.
func poolSizes(sets uint32, contracts ...bindings.Contract) []vk.DescriptorPoolSize {
	counts := map[vk.DescriptorType]uint32{}
	var order []vk.DescriptorType
	for _, c := range contracts {
		for _, s := range c.Slots {
			t := descriptorType(s.Kind)
			if _, ok := counts[t]; !ok {
				order = append(order, t)
			}
			counts[t] += sets
		}
	}
	out := make([]vk.DescriptorPoolSize, len(order))
	for i, t := range order {
		out[i] = vk.DescriptorPoolSize{Type: t, DescriptorCount: counts[t]}
	}
	return out
}

func bufferResource(b packer.Buffer) (resource, error) {
	vb, err := ownBuffer(b)
	if err != nil {
		return resource{}, err
	}
	return resource{buf: vb}, nil
}

func bindingResource(b packer.Binding) (resource, error) {
	r, err := bufferResource(b.Buffer)
	r.offset, r.size = b.Offset, b.Size
	return r, err
}

// Prepare creates the drawable's pipeline and writes one descriptor set per ring slot, plus the
// cull sets for a culled drawable.
func (d *Device) Prepare(p *packer.Packed, u *packer.Uploaded) (err error) {
	if len(u.Indirect) == 0 {
		return errors.Newf("vulkan: %s has no indirect buffer", p.Name)
	}
	if p.Category.UsesCullPass() && len(u.Visible) == 0 {
		return errors.Newf("vulkan: culled %s has no visible stream", p.Name)
	}
	b := &batch{}
	defer func() {
		if err != nil {
			b.release(d.device)
		}
	}()
	var k *kernel
	if b.pipeline, k, err = d.renderPipeline(p); err != nil {
		return err
	}
	b.layout = k.layout

	contracts := []bindings.Contract{k.contract}
	culled := p.Category.UsesCullPass()
	if culled {
		contracts = append(contracts, bindings.Cull)
	}
	slots := uint32(len(d.slots))
	err = vk.Error(vk.CreateDescriptorPool(d.device, &vk.DescriptorPoolCreateInfo{
		SType:         vk.StructureTypeDescriptorPoolCreateInfo,
		MaxSets:       slots * uint32(len(contracts)),
		PoolSizeCount: uint32(len(poolSizes(slots, contracts...))),
		PPoolSizes:    poolSizes(slots, contracts...),
	}, nil, &b.pool))
	if err != nil {
		return errors.Wrapf(err, "vulkan: descriptor pool for %s", p.Name)
	}

	shared := map[string]resource{
		"plant_textures": {view: d.res.plant.view},
		"ground_texture": {view: d.res.ground.view},
		"tex_sampler":    {sampler: d.res.sampler},
	}
	add := func(name string, r resource, err error) error {
		if err != nil {
			return errors.Wrapf(err, "vulkan: %s %s", p.Name, name)
		}
		shared[name] = r
		return nil
	}
	if p.Clusters != nil {
		for name, buf := range map[string]packer.Buffer{
			"instances": u.Instances,
			"tex_index": u.InstanceTex,
			"vertices":  u.Vertices,
			"indices":   u.Indices,
		} {
			r, err := bufferResource(buf)
			if err := add(name, r, err); err != nil {
				return err
			}
		}
	} else {
		r, err := bindingResource(u.Primitives)
		if err := add("primitives", r, err); err != nil {
			return err
		}
		r, err = bindingResource(u.Materials)
		if err := add("materials", r, err); err != nil {
			return err
		}
		if culled {
			r, err = bufferResource(u.Instances)
			if err := add("instances", r, err); err != nil {
				return err
			}
		}
	}

	for slot := 0; slot < len(d.slots); slot++ {
		scene, err := d.sceneBuffer(slot)
		if err != nil {
			return err
		}
		shared["scene"] = resource{buf: scene}
		set, err := d.writeSet(b.pool, k.set, k.contract, shared)
		if err != nil {
			return errors.Wrapf(err, "vulkan: %s slot %d", p.Name, slot)
		}
		b.render = append(b.render, set)
		if !culled {
			continue
		}
		cmds, err := bufferResource(u.IndirectFor(uint64(slot)))
		if err != nil {
			return err
		}
		shared["commands"] = cmds
		vis, err := bufferResource(u.InstancesFor(uint64(slot)))
		if err != nil {
			return err
		}
		shared["visible"] = vis
		set, err = d.writeSet(b.pool, d.res.cullK.set, bindings.Cull, shared)
		if err != nil {
			return errors.Wrapf(err, "vulkan: %s cull slot %d", p.Name, slot)
		}
		b.cull = append(b.cull, set)
	}

	if culled {
		if err := d.releaseUploads(u); err != nil {
			return errors.Wrapf(err, "vulkan: %s", p.Name)
		}
	}

	d.mu.Lock()
	d.batches[u] = b
	if culled {
		d.culled = u
	}
	d.mu.Unlock()
	return nil
}

// releaseUploads hands every indirect slot of a culled drawable from the graphics queue, which
// staged it, to the compute queue. The first compute acquire of each slot completes the transfer.
func (d *Device) releaseUploads(u *packer.Uploaded) error {
	if d.graphicsFamily == d.computeFamily {
		return nil
	}
	var barriers []vk.BufferMemoryBarrier
	for _, ib := range u.Indirect {
		vb, err := ownBuffer(ib)
		if err != nil {
			return err
		}
		barriers = append(barriers, bufferBarrier(ownership.Barrier{
			SrcAccess: ownership.AccessTransferWrite,
			DstAccess: ownership.AccessNone,
			SrcFamily: ownership.QueueFamily(d.graphicsFamily),
			DstFamily: ownership.QueueFamily(d.computeFamily),
		}, vb.buf))
	}
	return d.oneTime(func(cb vk.CommandBuffer) {
		vk.CmdPipelineBarrier(cb,
			vk.PipelineStageFlags(vk.PipelineStageTransferBit), vk.PipelineStageFlags(vk.PipelineStageBottomOfPipeBit), 0,
			0, nil,
			uint32(len(barriers)), barriers,
			0, nil)
	})
}

// writeSet allocates a set from pool and fills it from res. Unused entries of res are ignored.
func (d *Device) writeSet(pool vk.DescriptorPool, layout vk.DescriptorSetLayout, c bindings.Contract, res map[string]resource) (vk.DescriptorSet, error) {
	var set vk.DescriptorSet
	err := vk.Error(vk.AllocateDescriptorSets(d.device, &vk.DescriptorSetAllocateInfo{
		SType:              vk.StructureTypeDescriptorSetAllocateInfo,
		DescriptorPool:     pool,
		DescriptorSetCount: 1,
		PSetLayouts:        []vk.DescriptorSetLayout{layout},
	}, &set))
	if err != nil {
		return nil, errors.Wrap(err, "vulkan: allocate descriptor set")
	}
	writes, err := descriptorWrites(set, c, res)
	if err != nil {
		return nil, err
	}
	vk.UpdateDescriptorSets(d.device, uint32(len(writes)), writes, 0, nil)
	return set, nil
}

func (d *Device) sceneBuffer(slot int) (*Buffer, error) {
	i := slot % len(d.scenes)
	if d.scenes[i] != nil {
		return d.scenes[i], nil
	}
	var u packer.GPUSceneUniform
	buf, err := d.CreateBuffer(packer.BufferDesc{
		Label:  "scene_uniform",
		Size:   uint64(u.Size()),
		Usage:  packer.UsageUniform,
		Memory: packer.MemoryHostVisible,
	}, nil)
	if err != nil {
		return nil, err
	}
	d.scenes[i] = buf.(*Buffer)
	return d.scenes[i], nil
}

// WriteScene maps the slot's scene block and writes the uniform.
func (d *Device) WriteScene(slot int, u packer.GPUSceneUniform) error {
	buf, err := d.sceneBuffer(slot)
	if err != nil {
		return err
	}
	return d.write(buf, 0, u.Marshal())
}

func (d *Device) lookup(rec ownership.Recorder, u *packer.Uploaded) (*recorder, *batch, error) {
	r, ok := rec.(*recorder)
	if !ok {
		return nil, nil, errors.Newf("vulkan: foreign recorder %T", rec)
	}
	d.mu.Lock()
	b, ok := d.batches[u]
	d.mu.Unlock()
	if !ok {
		return nil, nil, errors.Newf("vulkan: %s was not prepared", u.Name)
	}
	return r, b, nil
}

// culledIndirect returns the indirect buffer the ownership barriers of slot cover.
func (d *Device) culledIndirect(slot int) (vk.Buffer, error) {
	d.mu.Lock()
	u := d.culled
	d.mu.Unlock()
	if u == nil {
		return nil, errors.New("vulkan: ownership barrier without a culled drawable")
	}
	b, err := ownBuffer(u.IndirectFor(uint64(slot)))
	if err != nil {
		return nil, err
	}
	return b.buf, nil
}

// culledVisible returns the visible instance stream the cull kernel of slot writes.
func (d *Device) culledVisible(slot int) (vk.Buffer, error) {
	d.mu.Lock()
	u := d.culled
	d.mu.Unlock()
	if u == nil || len(u.Visible) == 0 {
		return nil, errors.New("vulkan: visible stream barrier without a culled drawable")
	}
	b, err := ownBuffer(u.InstancesFor(uint64(slot)))
	if err != nil {
		return nil, err
	}
	return b.buf, nil
}

// RecordCull records the reset and cull dispatches with a compute-to-compute barrier between them.
func (d *Device) RecordCull(rec ownership.Recorder, p *packer.Packed, u *packer.Uploaded, slot int) error {
	r, b, err := d.lookup(rec, u)
	if err != nil {
		return err
	}
	if r.graphics {
		return errors.Newf("vulkan: cull of %s recorded on a graphics submission", p.Name)
	}
	if len(b.cull) == 0 {
		return errors.Newf("vulkan: %s has no cull sets", p.Name)
	}
	cmds, err := ownBuffer(u.IndirectFor(uint64(slot)))
	if err != nil {
		return err
	}
	sets := []vk.DescriptorSet{b.cull[slot%len(b.cull)]}
	vk.CmdBindDescriptorSets(r.cb, vk.PipelineBindPointCompute, d.res.cullK.layout, 0, 1, sets, 0, nil)

	vk.CmdBindPipeline(r.cb, vk.PipelineBindPointCompute, d.res.reset)
	vk.CmdDispatch(r.cb, d.groups(len(p.Commands)), 1, 1)

	vk.CmdPipelineBarrier(r.cb,
		vk.PipelineStageFlags(vk.PipelineStageComputeShaderBit), vk.PipelineStageFlags(vk.PipelineStageComputeShaderBit), 0,
		0, nil,
		1, []vk.BufferMemoryBarrier{{
			SType:               vk.StructureTypeBufferMemoryBarrier,
			SrcAccessMask:       vk.AccessFlags(vk.AccessShaderWriteBit),
			DstAccessMask:       vk.AccessFlags(vk.AccessShaderReadBit | vk.AccessShaderWriteBit),
			SrcQueueFamilyIndex: vk.QueueFamilyIgnored,
			DstQueueFamilyIndex: vk.QueueFamilyIgnored,
			Buffer:              cmds.buf,
			Size:                wholeSize,
		}},
		0, nil)

	vk.CmdBindPipeline(r.cb, vk.PipelineBindPointCompute, d.res.cull)
	vk.CmdDispatch(r.cb, d.groups(p.ObjectCount), 1, 1)
	return r.err
}

// RecordDraw binds the drawable's pipeline, set and streams and issues its command table. A culled
// drawable's instance stream is the slot's visible stream the cull kernel compacted.
func (d *Device) RecordDraw(rec ownership.Recorder, p *packer.Packed, u *packer.Uploaded, slot int, multiDraw bool) (indirect.Stats, error) {
	r, b, err := d.lookup(rec, u)
	if err != nil {
		return indirect.Stats{}, err
	}
	if err := r.beginPass(); err != nil {
		return indirect.Stats{}, errors.Wrapf(err, "vulkan: draw %s", p.Name)
	}
	if multiDraw && !d.multiDraw {
		return indirect.Stats{}, errors.Newf("vulkan: multi-draw requested for %s without device support", p.Name)
	}

	vk.CmdBindPipeline(r.cb, vk.PipelineBindPointGraphics, b.pipeline)
	vk.CmdBindDescriptorSets(r.cb, vk.PipelineBindPointGraphics, b.layout, 0, 1,
		[]vk.DescriptorSet{b.render[slot%len(b.render)]}, 0, nil)

	streams := []packer.Buffer{u.Vertices, u.InstancesFor(uint64(slot))}
	index := u.Indices
	if p.Clusters != nil {
		streams = []packer.Buffer{u.Clusters}
		index = u.ClusterIndices
	}
	bufs := make([]vk.Buffer, len(streams))
	for i, s := range streams {
		vb, err := ownBuffer(s)
		if err != nil {
			return indirect.Stats{}, err
		}
		bufs[i] = vb.buf
	}
	vk.CmdBindVertexBuffers(r.cb, 0, uint32(len(bufs)), bufs, make([]vk.DeviceSize, len(bufs)))
	ib, err := ownBuffer(index)
	if err != nil {
		return indirect.Stats{}, err
	}
	vk.CmdBindIndexBuffer(r.cb, ib.buf, 0, vk.IndexTypeUint32)

	cmds, err := ownBuffer(u.IndirectFor(uint64(slot)))
	if err != nil {
		return indirect.Stats{}, err
	}
	t := p.DrawTable()
	if len(t) > 0 {
		if err := indirect.CheckRange(cmds.size, 0, uint32(len(t)), indirect.CommandStride); err != nil {
			return indirect.Stats{}, errors.Wrapf(err, "vulkan: %s", p.Name)
		}
	}
	return indirect.Submit(issuer{cb: r.cb, buf: cmds.buf}, t, multiDraw), r.err
}
