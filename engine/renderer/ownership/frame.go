package ownership

import (
	"context"
	"log/slog"
	"time"

	"github.com/Carmen-Shannon/oxy-indirect/engine/renderer/cull"
	"github.com/cockroachdb/errors"
)

// Recorder receives barriers while a command buffer is being recorded.
type Recorder interface {
	PipelineBarrier(barriers ...Barrier)
}

// Queues is the device side of a frame: per-slot fences and the two submissions.
type Queues interface {
	// Fence returns the fence signalled by the slot's last compute submission.
	Fence(slot int) Fence
	// SubmitCompute records and submits compute work, signalling the slot's semaphore and fence.
	SubmitCompute(ctx context.Context, slot int, record func(Recorder) error) error
	// SubmitGraphics records and submits graphics work that waits on the slot's semaphore at the
	// compute shader stage.
	SubmitGraphics(ctx context.Context, slot int, record func(Recorder) error) error
}

// FrameToken is what prepareFrame hands out and submitFrame takes back: the frame number, its
// ring slot and the acquired swapchain image.
type FrameToken struct {
	Frame uint64
	Slot  int
	// Image is zero on devices without a swapchain.
	Image uint32
}

// Frame drives one culled frame through the ownership protocol:
// wait fence, reset, compute acquire, dispatch, compute release, submit, graphics acquire, draw,
// graphics release, submit.
type Frame struct {
	protocol *Protocol
	queues   Queues
	sequence *Sequence
	tracker  *cull.Tracker
	timeout  time.Duration
	logger   *slog.Logger
}

// NewFrame creates a frame driver.
//
// Parameters:
//   - protocol: barrier source; its ring depth sizes the state tracker
//   - queues: the device queues
//   - timeout: fence wait bound
//   - logger: nil uses slog.Default
//
// Returns:
//   - *Frame: the driver
func NewFrame(protocol *Protocol, queues Queues, timeout time.Duration, logger *slog.Logger) *Frame {
	if logger == nil {
		logger = slog.Default()
	}
	return &Frame{
		protocol: protocol,
		queues:   queues,
		sequence: NewSequence(),
		tracker:  cull.NewTracker(protocol.Slots()),
		timeout:  timeout,
		logger:   logger.With("component", "ownership"),
	}
}

// Tracker exposes the per-slot cull state.
func (f *Frame) Tracker() *cull.Tracker {
	return f.tracker
}

// Run submits the frame t names, on the ring slot the device assigned it. dispatch records the
// cull dispatch and draw records the indirect draws; both run inside the barriers that bracket
// them.
//
// Parameters:
//   - ctx: cancels the fence wait and both submissions
//   - t: frame number and ring slot from the device's prepareFrame
//   - dispatch: records the cull dispatch
//   - draw: records the indirect draws
//
// Returns:
//   - error: a slot outside the protocol's ring, a fence timeout or a submit failure
func (f *Frame) Run(ctx context.Context, t FrameToken, dispatch, draw func(Recorder) error) error {
	n, slot := t.Frame, t.Slot
	if slot < 0 || slot >= f.protocol.Slots() {
		return errors.Newf("frame %d: slot %d outside a ring of %d; device and protocol depths differ",
			n, slot, f.protocol.Slots())
	}
	fence := f.queues.Fence(slot)

	if err := WaitFence(ctx, fence, f.timeout); err != nil {
		return errors.Wrapf(err, "frame %d slot %d", n, slot)
	}
	if f.tracker.State(slot) == cull.StateDispatched {
		if err := f.tracker.Signal(slot); err != nil {
			return err
		}
		if err := f.tracker.Consume(slot); err != nil {
			return err
		}
	}
	if err := fence.Reset(); err != nil {
		return errors.Wrapf(err, "frame %d: reset fence", n)
	}

	err := f.queues.SubmitCompute(ctx, slot, func(r Recorder) error {
		if err := f.emit(r, f.protocol.ComputeAcquire(slot)); err != nil {
			return err
		}
		if err := dispatch(r); err != nil {
			return err
		}
		return f.emit(r, f.protocol.ComputeRelease(slot))
	})
	if err != nil {
		return errors.Wrapf(err, "frame %d: compute submit", n)
	}
	if err := f.tracker.Dispatch(slot); err != nil {
		return err
	}

	err = f.queues.SubmitGraphics(ctx, slot, func(r Recorder) error {
		if err := f.emit(r, f.protocol.GraphicsAcquire(slot)); err != nil {
			return err
		}
		if err := draw(r); err != nil {
			return err
		}
		return f.emit(r, f.protocol.GraphicsRelease(slot))
	})
	if err != nil {
		return errors.Wrapf(err, "frame %d: graphics submit", n)
	}
	f.logger.Debug("frame submitted", "frame", n, "slot", slot)
	return nil
}

func (f *Frame) emit(r Recorder, b Barrier) error {
	if err := f.sequence.Observe(b); err != nil {
		return err
	}
	r.PipelineBarrier(b)
	return nil
}
