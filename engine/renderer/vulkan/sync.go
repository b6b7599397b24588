package vulkan

import (
	"time"

	"github.com/Carmen-Shannon/oxy-indirect/engine/renderer/indirect"
	"github.com/Carmen-Shannon/oxy-indirect/engine/renderer/ownership"
	"github.com/cockroachdb/errors"
	vk "github.com/goki/vulkan"
)

// Fence wraps a VkFence as an ownership.Fence.
type Fence struct {
	device vk.Device
	fence  vk.Fence
}

var _ ownership.Fence = (*Fence)(nil)

// Wait waits up to timeout. A timeout is reported as (false, nil).
func (f *Fence) Wait(timeout time.Duration) (bool, error) {
	switch r := vk.WaitForFences(f.device, 1, []vk.Fence{f.fence}, vk.True, uint64(max(timeout, 0).Nanoseconds())); r {
	case vk.Success:
		return true, nil
	case vk.Timeout:
		return false, nil
	default:
		return false, errors.Wrap(vk.Error(r), "vulkan: wait fence")
	}
}

func (f *Fence) Reset() error {
	return vk.Error(vk.ResetFences(f.device, 1, []vk.Fence{f.fence}))
}

// Semaphore orders the slot's compute submission before its graphics submission.
type Semaphore struct {
	label string
	sem   vk.Semaphore
}

func (s *Semaphore) Label() string {
	return s.label
}

// frameSlot holds the command buffers and synchronisation of one ring slot.
type frameSlot struct {
	computeCmd  vk.CommandBuffer
	graphicsCmd vk.CommandBuffer
	computed    *Fence // signalled by SubmitCompute, waited by the frame driver
	drawn       *Fence // signalled by the graphics submission, waited by PrepareFrame
	handoff     *Semaphore

	// query measures the slot's render pass; nil without pipelineStatisticsQuery.
	query        vk.QueryPool
	queried      bool
	queriedFrame uint64
	report       indirect.DeviceStats
	reported     bool
}

func (d *Device) createSlots(n int) error {
	compute := make([]vk.CommandBuffer, n)
	graphics := make([]vk.CommandBuffer, n)
	if err := d.allocateCommands(d.computePool, compute); err != nil {
		return err
	}
	if err := d.allocateCommands(d.graphicsPool, graphics); err != nil {
		return err
	}
	d.scenes = make([]*Buffer, n)
	for i := 0; i < n; i++ {
		s := &frameSlot{computeCmd: compute[i], graphicsCmd: graphics[i]}
		d.slots = append(d.slots, s)
		var err error
		if s.computed, err = d.signalledFence(); err != nil {
			return err
		}
		if s.drawn, err = d.signalledFence(); err != nil {
			return err
		}
		s.handoff = &Semaphore{label: "cull handoff"}
		if err := vk.Error(vk.CreateSemaphore(d.device, &vk.SemaphoreCreateInfo{
			SType: vk.StructureTypeSemaphoreCreateInfo,
		}, nil, &s.handoff.sem)); err != nil {
			return errors.Wrapf(err, "vulkan: semaphore for slot %d", i)
		}
		if d.pipelineStats {
			if s.query, err = d.createQueryPool(); err != nil {
				return err
			}
		}
	}
	return nil
}

func (d *Device) allocateCommands(pool vk.CommandPool, out []vk.CommandBuffer) error {
	err := vk.Error(vk.AllocateCommandBuffers(d.device, &vk.CommandBufferAllocateInfo{
		SType:              vk.StructureTypeCommandBufferAllocateInfo,
		CommandPool:        pool,
		Level:              vk.CommandBufferLevelPrimary,
		CommandBufferCount: uint32(len(out)),
	}, out))
	return errors.Wrap(err, "vulkan: allocate command buffers")
}

// signalledFence creates a fence in the signalled state so the first wait on each slot passes.
func (d *Device) signalledFence() (*Fence, error) {
	f := &Fence{device: d.device}
	err := vk.Error(vk.CreateFence(d.device, &vk.FenceCreateInfo{
		SType: vk.StructureTypeFenceCreateInfo,
		Flags: vk.FenceCreateFlags(vk.FenceCreateSignaledBit),
	}, nil, &f.fence))
	if err != nil {
		return nil, errors.Wrap(err, "vulkan: create fence")
	}
	return f, nil
}

func (s *frameSlot) release(d *Device) {
	for _, f := range []*Fence{s.computed, s.drawn} {
		if f != nil && f.fence != nil {
			vk.DestroyFence(d.device, f.fence, nil)
		}
	}
	if s.handoff != nil && s.handoff.sem != nil {
		vk.DestroySemaphore(d.device, s.handoff.sem, nil)
	}
	if s.query != nil {
		vk.DestroyQueryPool(d.device, s.query, nil)
	}
}

func (d *Device) slot(i int) *frameSlot {
	return d.slots[i%len(d.slots)]
}

// Fence returns the fence the slot's compute submission signals.
func (d *Device) Fence(slot int) ownership.Fence {
	return d.slot(slot).computed
}
