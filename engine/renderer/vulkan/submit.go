package vulkan

import (
	"context"

	"github.com/Carmen-Shannon/oxy-indirect/engine/renderer/ownership"
	"github.com/cockroachdb/errors"
	vk "github.com/goki/vulkan"
)

// bufferBarrier converts a protocol barrier over buf to its Vulkan form. The access, stage and
// family values share their Vulkan encoding.
func bufferBarrier(b ownership.Barrier, buf vk.Buffer) vk.BufferMemoryBarrier {
	return vk.BufferMemoryBarrier{
		SType:               vk.StructureTypeBufferMemoryBarrier,
		SrcAccessMask:       vk.AccessFlags(b.SrcAccess),
		DstAccessMask:       vk.AccessFlags(b.DstAccess),
		SrcQueueFamilyIndex: uint32(b.SrcFamily),
		DstQueueFamilyIndex: uint32(b.DstFamily),
		Buffer:              buf,
		Offset:              0,
		Size:                wholeSize,
	}
}

// recorder is the ownership.Recorder handed to record callbacks. Graphics recorders open the
// render pass on the first draw and close it before any later barrier, since buffer barriers
// may not be recorded inside it. The pipeline statistics query spans the pass.
type recorder struct {
	d        *Device
	cb       vk.CommandBuffer
	slot     int
	graphics bool
	query    vk.QueryPool
	inPass   bool
	passes   int
	err      error
}

func (r *recorder) PipelineBarrier(barriers ...ownership.Barrier) {
	r.endPass()
	for _, b := range barriers {
		buf, err := r.d.culledIndirect(b.Slot)
		if err != nil {
			r.fail(err)
			return
		}
		vk.CmdPipelineBarrier(r.cb,
			vk.PipelineStageFlags(b.SrcStage), vk.PipelineStageFlags(b.DstStage), 0,
			0, nil,
			1, []vk.BufferMemoryBarrier{bufferBarrier(b, buf)},
			0, nil)
		if b.Phase == ownership.PhaseGraphicsAcquire {
			r.visibleBarrier(b.Slot)
		}
	}
}

// visibleBarrier makes the cull kernel's writes to the slot's visible stream available to vertex
// input. The stream is shared concurrently, so no ownership transfer is recorded for it.
func (r *recorder) visibleBarrier(slot int) {
	buf, err := r.d.culledVisible(slot)
	if err != nil {
		r.fail(err)
		return
	}
	vk.CmdPipelineBarrier(r.cb,
		vk.PipelineStageFlags(vk.PipelineStageComputeShaderBit), vk.PipelineStageFlags(vk.PipelineStageVertexInputBit), 0,
		0, nil,
		1, []vk.BufferMemoryBarrier{{
			SType:               vk.StructureTypeBufferMemoryBarrier,
			SrcAccessMask:       vk.AccessFlags(vk.AccessShaderWriteBit),
			DstAccessMask:       vk.AccessFlags(vk.AccessVertexAttributeReadBit),
			SrcQueueFamilyIndex: vk.QueueFamilyIgnored,
			DstQueueFamilyIndex: vk.QueueFamilyIgnored,
			Buffer:              buf,
			Size:                wholeSize,
		}},
		0, nil)
}

func (r *recorder) fail(err error) {
	if r.err == nil {
		r.err = err
	}
}

// beginPass opens the render pass that clears and draws the offscreen target.
func (r *recorder) beginPass() error {
	if !r.graphics {
		return errors.New("vulkan: draw recorded on a compute submission")
	}
	if r.inPass {
		return nil
	}
	if r.passes > 0 {
		return errors.New("vulkan: draws split around a barrier")
	}
	r.d.target.begin(r.cb)
	if r.query != nil {
		vk.CmdBeginQuery(r.cb, r.query, 0, 0)
	}
	r.inPass = true
	r.passes++
	return nil
}

func (r *recorder) endPass() {
	if r.inPass {
		if r.query != nil {
			vk.CmdEndQuery(r.cb, r.query, 0)
		}
		vk.CmdEndRenderPass(r.cb)
		r.inPass = false
	}
}

// finish closes the pass, opening an empty one first so a frame without draws still clears.
func (r *recorder) finish() error {
	if r.graphics && r.passes == 0 {
		if err := r.beginPass(); err != nil {
			return err
		}
	}
	r.endPass()
	return r.err
}

type submission struct {
	queue  vk.Queue
	cb     vk.CommandBuffer
	wait   *Semaphore
	signal *Semaphore
	fence  *Fence
	query  *frameSlot // measured slot of a graphics submission
}

func (d *Device) submit(ctx context.Context, slot int, graphics bool, s submission, record func(ownership.Recorder) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := vk.Error(vk.ResetCommandBuffer(s.cb, 0)); err != nil {
		return errors.Wrap(err, "vulkan: reset command buffer")
	}
	if err := vk.Error(vk.BeginCommandBuffer(s.cb, &vk.CommandBufferBeginInfo{
		SType: vk.StructureTypeCommandBufferBeginInfo,
		Flags: vk.CommandBufferUsageFlags(vk.CommandBufferUsageOneTimeSubmitBit),
	})); err != nil {
		return errors.Wrap(err, "vulkan: begin command buffer")
	}
	rec := &recorder{d: d, cb: s.cb, slot: slot, graphics: graphics}
	if s.query != nil && s.query.query != nil {
		rec.query = s.query.query
		vk.CmdResetQueryPool(s.cb, rec.query, 0, 1)
	}
	err := record(rec)
	if ferr := rec.finish(); err == nil {
		err = ferr
	}
	if eerr := vk.Error(vk.EndCommandBuffer(s.cb)); err == nil && eerr != nil {
		err = errors.Wrap(eerr, "vulkan: end command buffer")
	}
	if err != nil {
		return err
	}

	info := vk.SubmitInfo{
		SType:              vk.StructureTypeSubmitInfo,
		CommandBufferCount: 1,
		PCommandBuffers:    []vk.CommandBuffer{s.cb},
	}
	if s.wait != nil {
		info.WaitSemaphoreCount = 1
		info.PWaitSemaphores = []vk.Semaphore{s.wait.sem}
		info.PWaitDstStageMask = []vk.PipelineStageFlags{vk.PipelineStageFlags(vk.PipelineStageComputeShaderBit)}
	}
	if s.signal != nil {
		info.SignalSemaphoreCount = 1
		info.PSignalSemaphores = []vk.Semaphore{s.signal.sem}
	}
	if err := s.fence.Reset(); err != nil {
		return errors.Wrap(err, "vulkan: reset fence")
	}
	if err := vk.Error(vk.QueueSubmit(s.queue, 1, []vk.SubmitInfo{info}, s.fence.fence)); err != nil {
		return errors.Wrap(err, "vulkan: queue submit")
	}
	if rec.query != nil {
		d.mu.Lock()
		s.query.queried, s.query.queriedFrame = true, d.frame
		d.mu.Unlock()
	}
	return nil
}

// SubmitCompute submits the cull work on the compute queue, signalling the slot's semaphore and
// fence. The frame driver has already waited for and reset the fence.
func (d *Device) SubmitCompute(ctx context.Context, slot int, record func(ownership.Recorder) error) error {
	s := d.slot(slot)
	return d.submit(ctx, slot, false, submission{
		queue:  d.computeQ,
		cb:     s.computeCmd,
		signal: s.handoff,
		fence:  s.computed,
	}, record)
}

// SubmitGraphics submits draws that wait on the slot's semaphore at the compute shader stage.
func (d *Device) SubmitGraphics(ctx context.Context, slot int, record func(ownership.Recorder) error) error {
	s := d.slot(slot)
	return d.submit(ctx, slot, true, submission{
		queue: d.graphicsQ,
		cb:    s.graphicsCmd,
		wait:  s.handoff,
		fence: s.drawn,
		query: s,
	}, record)
}

// SubmitStatic submits draws with no compute dependency.
func (d *Device) SubmitStatic(ctx context.Context, slot int, record func(ownership.Recorder) error) error {
	s := d.slot(slot)
	return d.submit(ctx, slot, true, submission{
		queue: d.graphicsQ,
		cb:    s.graphicsCmd,
		fence: s.drawn,
		query: s,
	}, record)
}

// issuer records indirect draws from one buffer.
type issuer struct {
	cb  vk.CommandBuffer
	buf vk.Buffer
}

func (i issuer) DrawIndexedIndirect(offset uint64, drawCount, stride uint32) {
	vk.CmdDrawIndexedIndirect(i.cb, i.buf, vk.DeviceSize(offset), drawCount, stride)
}
