package softgpu

import (
	"context"

	"github.com/Carmen-Shannon/oxy-indirect/engine/renderer/cull"
	"github.com/Carmen-Shannon/oxy-indirect/engine/renderer/indirect"
	"github.com/Carmen-Shannon/oxy-indirect/engine/renderer/ownership"
	"github.com/Carmen-Shannon/oxy-indirect/engine/renderer/packer"
	"github.com/cockroachdb/errors"
)

func (d *Device) Name() string {
	return "software"
}

// Prepare checks that an uploaded drawable is complete; the software device has no pipelines.
func (d *Device) Prepare(p *packer.Packed, u *packer.Uploaded) error {
	if len(u.Indirect) == 0 {
		return errors.Newf("softgpu: %s has no indirect buffer", p.Name)
	}
	if p.Category.UsesCullPass() && (u.Instances == nil || u.Primitives.Buffer == nil || len(u.Visible) == 0) {
		return errors.Newf("softgpu: culled %s lacks instance, visible or primitive buffers", p.Name)
	}
	d.mu.Lock()
	d.prepared++
	d.mu.Unlock()
	return nil
}

// WriteScene writes the slot's scene block, creating it on first use.
func (d *Device) WriteScene(slot int, u packer.GPUSceneUniform) error {
	buf, err := d.sceneBuffer(slot)
	if err != nil {
		return err
	}
	return d.WriteBuffer(buf, 0, u.Marshal())
}

func (d *Device) sceneBuffer(slot int) (packer.Buffer, error) {
	d.mu.Lock()
	if d.scenes == nil {
		d.scenes = make([]packer.Buffer, len(d.fences))
	}
	i := slot % len(d.scenes)
	buf := d.scenes[i]
	d.mu.Unlock()
	if buf != nil {
		return buf, nil
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
	d.mu.Lock()
	d.scenes[i] = buf
	d.mu.Unlock()
	return buf, nil
}

func commands(rec ownership.Recorder) (*Commands, error) {
	c, ok := rec.(*Commands)
	if !ok {
		return nil, errors.Newf("softgpu: foreign recorder %T", rec)
	}
	return c, nil
}

// RecordCull executes the cull kernel for a culled drawable against the slot's indirect and
// visible buffers.
func (d *Device) RecordCull(rec ownership.Recorder, p *packer.Packed, u *packer.Uploaded, slot int) error {
	c, err := commands(rec)
	if err != nil {
		return err
	}
	scene, err := d.sceneBuffer(slot)
	if err != nil {
		return err
	}
	c.Dispatch(DispatchArgs{
		Scene:        scene,
		Primitives:   u.Primitives,
		Instances:    u.Instances,
		Commands:     u.IndirectFor(uint64(slot)),
		CommandCount: len(p.Commands),
		Groups:       cull.GroupCount(uint32(p.ObjectCount), d.localGroupSize),
		Visible:      u.InstancesFor(uint64(slot)),
	})
	return c.Err()
}

// RecordDraw issues the drawable's command table against its indirect buffer, fetching instances
// from the slot's visible stream when the drawable is culled.
func (d *Device) RecordDraw(rec ownership.Recorder, p *packer.Packed, u *packer.Uploaded, slot int, multiDraw bool) (indirect.Stats, error) {
	c, err := commands(rec)
	if err != nil {
		return indirect.Stats{}, err
	}
	// clustered drawables step through cluster records, not instance rows
	if u.Clusters == nil {
		c.BindInstances(u.InstancesFor(uint64(slot)))
	}
	is := c.BindIndirect(u.IndirectFor(uint64(slot)), p.Category.UsesCullPass())
	s := indirect.Submit(is, p.DrawTable(), multiDraw)
	return s, c.Err()
}

// SubmitStatic records and executes graphics work with no compute dependency.
func (d *Device) SubmitStatic(ctx context.Context, slot int, record func(ownership.Recorder) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return d.graphicsOnly(-1, record)
}

// PrepareFrame hands out the slot of frame n. There is no swapchain.
func (d *Device) PrepareFrame(ctx context.Context, n uint64) (ownership.FrameToken, error) {
	if err := ctx.Err(); err != nil {
		return ownership.FrameToken{}, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.inFrame {
		return ownership.FrameToken{}, errors.Newf("softgpu: frame %d prepared before the previous one was submitted", n)
	}
	d.inFrame = true
	d.frameDrawn = indirect.Stats{}
	d.drawnInstances = nil
	return ownership.FrameToken{Frame: n, Slot: ownership.SlotFor(n, len(d.fences))}, nil
}

// SubmitFrame completes the frame prepared for t.
func (d *Device) SubmitFrame(ctx context.Context, t ownership.FrameToken) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.inFrame {
		return errors.Newf("softgpu: frame %d submitted without prepare", t.Frame)
	}
	d.inFrame = false
	d.presented++
	d.reports[t.Slot%len(d.reports)] = indirect.DeviceStats{
		Frame:       t.Frame,
		Drawn:       d.frameDrawn,
		HasDrawn:    true,
		Pipeline:    assembled(d.frameDrawn),
		HasPipeline: true,
	}
	return nil
}

// DeviceStats returns what the device observed for the last frame submitted on slot. Draws are
// executed at record time, so this is the frame just submitted.
func (d *Device) DeviceStats(slot int) (indirect.DeviceStats, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	r := d.reports[slot%len(d.reports)]
	return r, r.HasDrawn
}

// assembled derives the counters the device can account for. Every index of every drawn instance
// is assembled and shaded once as a triangle-list vertex; nothing is rasterized.
func assembled(s indirect.Stats) indirect.PipelineStatistics {
	return indirect.PipelineStatistics{
		InputAssemblyVertices:   s.Indices,
		InputAssemblyPrimitives: s.Indices / 3,
		VertexShaderInvocations: s.Indices,
	}
}

// Presented returns the number of frames submitted.
func (d *Device) Presented() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.presented
}

// Prepared returns the number of drawables prepared.
func (d *Device) Prepared() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.prepared
}

func (d *Device) Resize(width, height int) {}

// Release destroys the scene blocks.
func (d *Device) Release() {
	d.mu.Lock()
	scenes := d.scenes
	d.scenes = nil
	d.mu.Unlock()
	for _, b := range scenes {
		if b != nil {
			d.DestroyBuffer(b)
		}
	}
}
