package ownership

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/Carmen-Shannon/oxy-indirect/engine/renderer/cull"
	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	graphicsFamily QueueFamily = 0
	computeFamily  QueueFamily = 1
)

func TestRecordAccessAndFamilies(t *testing.T) {
	p := NewProtocol(graphicsFamily, computeFamily, 2)
	bs := p.Record(0)

	assert.Equal(t, PhaseComputeAcquire, bs[0].Phase)
	assert.Equal(t, AccessNone, bs[0].SrcAccess, "first use has no prior write")
	assert.Equal(t, AccessShaderWrite, bs[0].DstAccess)
	assert.Equal(t, graphicsFamily, bs[0].SrcFamily)
	assert.Equal(t, computeFamily, bs[0].DstFamily)

	assert.Equal(t, AccessShaderWrite, bs[1].SrcAccess)
	assert.Equal(t, AccessNone, bs[1].DstAccess)
	assert.Equal(t, computeFamily, bs[1].SrcFamily)
	assert.Equal(t, graphicsFamily, bs[1].DstFamily)

	assert.Equal(t, AccessNone, bs[2].SrcAccess)
	assert.Equal(t, AccessIndirectCommandRead, bs[2].DstAccess)
	assert.Equal(t, StageDrawIndirect, bs[2].DstStage)
	assert.Equal(t, computeFamily, bs[2].SrcFamily)

	assert.Equal(t, AccessIndirectCommandRead, bs[3].SrcAccess)
	assert.Equal(t, AccessNone, bs[3].DstAccess)
	assert.Equal(t, graphicsFamily, bs[3].SrcFamily)
	assert.Equal(t, computeFamily, bs[3].DstFamily)

	for _, b := range bs {
		assert.True(t, b.Transfers(), b.Phase.String())
	}
}

func TestComputeAcquireAfterUpload(t *testing.T) {
	p := NewProtocol(graphicsFamily, computeFamily, 2)
	p.MarkUploaded(1)

	b := p.ComputeAcquire(1)
	assert.Equal(t, AccessTransferWrite, b.SrcAccess)
	assert.Equal(t, StageTransfer, b.SrcStage)
	assert.Equal(t, AccessNone, p.ComputeAcquire(1).SrcAccess, "only the first acquire after the copy waits on it")
	assert.Equal(t, AccessNone, p.ComputeAcquire(0).SrcAccess)
}

func TestSharedFamilyIgnoresOwnership(t *testing.T) {
	p := NewProtocol(3, 3, 1)
	require.True(t, p.Shared())
	for _, b := range p.Record(0) {
		assert.Equal(t, QueueFamilyIgnored, b.SrcFamily)
		assert.Equal(t, QueueFamilyIgnored, b.DstFamily)
		assert.False(t, b.Transfers())
	}
}

func TestSequenceAcceptsProtocolOrder(t *testing.T) {
	p := NewProtocol(graphicsFamily, computeFamily, 2)
	s := NewSequence()
	for frame := uint64(0); frame < 6; frame++ {
		bs := p.Record(SlotFor(frame, 2))
		require.NoError(t, s.ObserveAll(bs[:]...))
	}
}

func TestSequenceRejectsOutOfOrder(t *testing.T) {
	p := NewProtocol(graphicsFamily, computeFamily, 1)
	s := NewSequence()

	err := s.Observe(p.GraphicsAcquire(0))
	require.Error(t, err)
	assert.True(t, errors.HasAssertionFailure(err))

	require.NoError(t, s.Observe(p.ComputeAcquire(0)))
	require.NoError(t, s.Observe(p.ComputeRelease(0)))
	bad := p.GraphicsAcquire(0)
	bad.SrcFamily = 7
	assert.True(t, errors.HasAssertionFailure(s.Observe(bad)))
}

func TestSlotForAlternates(t *testing.T) {
	assert.Equal(t, []int{0, 1, 0, 1}, []int{SlotFor(0, 2), SlotFor(1, 2), SlotFor(2, 2), SlotFor(3, 2)})
	assert.Equal(t, 0, SlotFor(5, 1))
	assert.Equal(t, 2, SlotFor(5, 3))
}

type fakeFence struct {
	mu       sync.Mutex
	signaled bool
	resets   int
}

func (f *fakeFence) Wait(timeout time.Duration) (bool, error) {
	f.mu.Lock()
	ok := f.signaled
	f.mu.Unlock()
	if !ok {
		time.Sleep(timeout)
	}
	return ok, nil
}

func (f *fakeFence) Reset() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.signaled = false
	f.resets++
	return nil
}

func (f *fakeFence) signal() {
	f.mu.Lock()
	f.signaled = true
	f.mu.Unlock()
}

func TestWaitFenceTimeout(t *testing.T) {
	start := time.Now()
	err := WaitFence(context.Background(), &fakeFence{}, 20*time.Millisecond)
	assert.ErrorIs(t, err, ErrFenceTimeout)
	assert.Less(t, time.Since(start), time.Second)
}

func TestWaitFenceCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()
	err := WaitFence(ctx, &fakeFence{}, time.Minute)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestWaitFenceSignaled(t *testing.T) {
	f := &fakeFence{}
	go func() {
		time.Sleep(10 * time.Millisecond)
		f.signal()
	}()
	require.NoError(t, WaitFence(context.Background(), f, time.Second))
}

type recorder struct {
	log *[]string
}

func (r recorder) PipelineBarrier(bs ...Barrier) {
	for _, b := range bs {
		*r.log = append(*r.log, b.Phase.String())
	}
}

type fakeQueues struct {
	fences []*fakeFence
	log    []string
}

func (q *fakeQueues) Fence(slot int) Fence { return q.fences[slot] }

func (q *fakeQueues) SubmitCompute(_ context.Context, slot int, record func(Recorder) error) error {
	if err := record(recorder{&q.log}); err != nil {
		return err
	}
	q.log = append(q.log, "submit-compute")
	q.fences[slot].signal()
	return nil
}

func (q *fakeQueues) SubmitGraphics(_ context.Context, _ int, record func(Recorder) error) error {
	if err := record(recorder{&q.log}); err != nil {
		return err
	}
	q.log = append(q.log, "submit-graphics")
	return nil
}

func TestFrameOrder(t *testing.T) {
	q := &fakeQueues{fences: []*fakeFence{{signaled: true}, {signaled: true}}}
	f := NewFrame(NewProtocol(graphicsFamily, computeFamily, 2), q, time.Second, nil)

	dispatch := func(r Recorder) error { q.log = append(q.log, "dispatch"); return nil }
	draw := func(r Recorder) error { q.log = append(q.log, "draw"); return nil }

	require.NoError(t, f.Run(context.Background(), FrameToken{}, dispatch, draw))
	assert.Equal(t, []string{
		"compute-acquire", "dispatch", "compute-release", "submit-compute",
		"graphics-acquire", "draw", "graphics-release", "submit-graphics",
	}, q.log)
	assert.Equal(t, cull.StateDispatched, f.Tracker().State(0))
	assert.Equal(t, 1, q.fences[0].resets)

	for n := uint64(1); n < 5; n++ {
		require.NoError(t, f.Run(context.Background(), FrameToken{Frame: n, Slot: SlotFor(n, 2)}, dispatch, draw))
	}
	assert.Equal(t, 3, q.fences[0].resets)
	assert.Equal(t, 2, q.fences[1].resets)
}

func TestFrameFenceTimeout(t *testing.T) {
	q := &fakeQueues{fences: []*fakeFence{{}}}
	f := NewFrame(NewProtocol(graphicsFamily, graphicsFamily, 1), q, 10*time.Millisecond, nil)
	err := f.Run(context.Background(), FrameToken{}, func(Recorder) error { return nil }, func(Recorder) error { return nil })
	assert.ErrorIs(t, err, ErrFenceTimeout)
	assert.Empty(t, q.log)
}

func TestFrameUsesDeviceSlot(t *testing.T) {
	q := &fakeQueues{fences: []*fakeFence{{signaled: true}, {signaled: true}, {signaled: true}}}
	f := NewFrame(NewProtocol(graphicsFamily, computeFamily, 3), q, time.Second, nil)
	noop := func(Recorder) error { return nil }

	// a device two deep hands frame 2 slot 0; the barriers and fence must follow it
	require.NoError(t, f.Run(context.Background(), FrameToken{Frame: 2, Slot: 0}, noop, noop))
	assert.Equal(t, 1, q.fences[0].resets)
	assert.Zero(t, q.fences[2].resets)
	assert.Equal(t, cull.StateDispatched, f.Tracker().State(0))
	assert.Equal(t, cull.StateIdle, f.Tracker().State(2))
}

func TestFrameRejectsSlotOutsideRing(t *testing.T) {
	q := &fakeQueues{fences: []*fakeFence{{signaled: true}}}
	f := NewFrame(NewProtocol(graphicsFamily, computeFamily, 1), q, time.Second, nil)
	noop := func(Recorder) error { return nil }
	err := f.Run(context.Background(), FrameToken{Frame: 1, Slot: 1}, noop, noop)
	assert.ErrorContains(t, err, "outside a ring of 1")
	assert.Empty(t, q.log)
}
