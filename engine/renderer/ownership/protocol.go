// Package ownership implements the queue ownership protocol for the indirect buffer: the
// compute queue writes instance counts, the graphics queue reads them as draw parameters, and
// each hand-over is an explicit release/acquire barrier pair.
package ownership

import (
	"fmt"
	"sync"
)

// Access is a memory access mask. Values mirror their Vulkan counterparts so backends can map
// them without a lookup.
type Access uint32

const (
	AccessNone                Access = 0
	AccessIndirectCommandRead Access = 0x00000001
	AccessShaderWrite         Access = 0x00000040
	AccessTransferWrite       Access = 0x00001000
)

func (a Access) String() string {
	switch a {
	case AccessNone:
		return "none"
	case AccessIndirectCommandRead:
		return "indirect-command-read"
	case AccessShaderWrite:
		return "shader-write"
	case AccessTransferWrite:
		return "transfer-write"
	default:
		return fmt.Sprintf("access(%#x)", uint32(a))
	}
}

// Stage is a pipeline stage mask, also Vulkan-valued.
type Stage uint32

const (
	StageTopOfPipe     Stage = 0x00000001
	StageDrawIndirect  Stage = 0x00000002
	StageComputeShader Stage = 0x00000800
	StageTransfer      Stage = 0x00001000
	StageBottomOfPipe  Stage = 0x00002000
)

// QueueFamily identifies a device queue family.
type QueueFamily uint32

// QueueFamilyIgnored marks a barrier that transfers no ownership.
const QueueFamilyIgnored QueueFamily = ^QueueFamily(0)

// Phase is one of the four barriers recorded per frame.
type Phase uint8

const (
	PhaseComputeAcquire Phase = iota
	PhaseComputeRelease
	PhaseGraphicsAcquire
	PhaseGraphicsRelease
)

func (p Phase) String() string {
	switch p {
	case PhaseComputeAcquire:
		return "compute-acquire"
	case PhaseComputeRelease:
		return "compute-release"
	case PhaseGraphicsAcquire:
		return "graphics-acquire"
	case PhaseGraphicsRelease:
		return "graphics-release"
	default:
		return fmt.Sprintf("phase(%d)", uint8(p))
	}
}

// Barrier is a buffer memory barrier over one indirect ring slot.
type Barrier struct {
	Phase     Phase
	Slot      int
	SrcAccess Access
	DstAccess Access
	SrcStage  Stage
	DstStage  Stage
	SrcFamily QueueFamily
	DstFamily QueueFamily
}

// Transfers reports whether the barrier moves ownership between families.
func (b Barrier) Transfers() bool {
	return b.SrcFamily != QueueFamilyIgnored && b.SrcFamily != b.DstFamily
}

type slotHistory uint8

const (
	slotFresh slotHistory = iota
	slotUploaded
	slotCycled
)

// Protocol produces the barriers for each frame. It remembers, per ring slot, whether the slot
// was just written by a transfer so the first compute acquire waits on that write.
type Protocol struct {
	mu       sync.Mutex
	graphics QueueFamily
	compute  QueueFamily
	history  []slotHistory
}

// NewProtocol creates the protocol for a graphics/compute family pair.
//
// Parameters:
//   - graphics: the graphics queue family
//   - compute: the compute queue family; equal to graphics on single-family devices
//   - slots: indirect ring depth
//
// Returns:
//   - *Protocol: the protocol with every slot unused
func NewProtocol(graphics, compute QueueFamily, slots int) *Protocol {
	return &Protocol{
		graphics: graphics,
		compute:  compute,
		history:  make([]slotHistory, max(slots, 1)),
	}
}

// Shared reports whether both queues belong to one family, in which case no ownership moves.
func (p *Protocol) Shared() bool {
	return p.graphics == p.compute
}

// Slots returns the ring depth.
func (p *Protocol) Slots() int {
	return len(p.history)
}

// MarkUploaded records that a staging copy wrote the slot.
func (p *Protocol) MarkUploaded(slot int) {
	p.mu.Lock()
	p.history[slot%len(p.history)] = slotUploaded
	p.mu.Unlock()
}

func (p *Protocol) families(src, dst QueueFamily) (QueueFamily, QueueFamily) {
	if p.Shared() {
		return QueueFamilyIgnored, QueueFamilyIgnored
	}
	return src, dst
}

// ComputeAcquire returns the barrier that hands the slot from graphics to compute. The source
// access is TRANSFER_WRITE right after an upload and none otherwise.
func (p *Protocol) ComputeAcquire(slot int) Barrier {
	p.mu.Lock()
	h := p.history[slot%len(p.history)]
	p.history[slot%len(p.history)] = slotCycled
	p.mu.Unlock()

	b := Barrier{
		Phase:     PhaseComputeAcquire,
		Slot:      slot,
		SrcAccess: AccessNone,
		DstAccess: AccessShaderWrite,
		SrcStage:  StageTopOfPipe,
		DstStage:  StageComputeShader,
	}
	if h == slotUploaded {
		b.SrcAccess = AccessTransferWrite
		b.SrcStage = StageTransfer
	}
	b.SrcFamily, b.DstFamily = p.families(p.graphics, p.compute)
	return b
}

// ComputeRelease returns the barrier that gives the slot back to graphics once the counts are written.
func (p *Protocol) ComputeRelease(slot int) Barrier {
	b := Barrier{
		Phase:     PhaseComputeRelease,
		Slot:      slot,
		SrcAccess: AccessShaderWrite,
		DstAccess: AccessNone,
		SrcStage:  StageComputeShader,
		DstStage:  StageBottomOfPipe,
	}
	b.SrcFamily, b.DstFamily = p.families(p.compute, p.graphics)
	return b
}

// GraphicsAcquire returns the barrier that makes the counts visible to indirect draws.
func (p *Protocol) GraphicsAcquire(slot int) Barrier {
	b := Barrier{
		Phase:     PhaseGraphicsAcquire,
		Slot:      slot,
		SrcAccess: AccessNone,
		DstAccess: AccessIndirectCommandRead,
		SrcStage:  StageTopOfPipe,
		DstStage:  StageDrawIndirect,
	}
	b.SrcFamily, b.DstFamily = p.families(p.compute, p.graphics)
	return b
}

// GraphicsRelease returns the barrier that hands the slot back to compute after drawing.
func (p *Protocol) GraphicsRelease(slot int) Barrier {
	b := Barrier{
		Phase:     PhaseGraphicsRelease,
		Slot:      slot,
		SrcAccess: AccessIndirectCommandRead,
		DstAccess: AccessNone,
		SrcStage:  StageDrawIndirect,
		DstStage:  StageBottomOfPipe,
	}
	b.SrcFamily, b.DstFamily = p.families(p.graphics, p.compute)
	return b
}

// Record returns the four barriers of one frame in submission order.
func (p *Protocol) Record(slot int) [4]Barrier {
	return [4]Barrier{
		p.ComputeAcquire(slot),
		p.ComputeRelease(slot),
		p.GraphicsAcquire(slot),
		p.GraphicsRelease(slot),
	}
}

// SlotFor maps a frame number onto the indirect ring.
func SlotFor(frame uint64, depth int) int {
	if depth <= 1 {
		return 0
	}
	return int(frame % uint64(depth))
}
