package softgpu

import (
	"context"
	"testing"
	"time"

	"github.com/Carmen-Shannon/oxy-indirect/common"
	"github.com/Carmen-Shannon/oxy-indirect/engine/config"
	"github.com/Carmen-Shannon/oxy-indirect/engine/renderer/cull"
	"github.com/Carmen-Shannon/oxy-indirect/engine/renderer/indirect"
	"github.com/Carmen-Shannon/oxy-indirect/engine/renderer/ownership"
	"github.com/Carmen-Shannon/oxy-indirect/engine/renderer/packer"
	"github.com/Carmen-Shannon/oxy-indirect/engine/scene"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type culledFixture struct {
	dev      *Device
	packed   *packer.Packed
	uploaded *packer.Uploaded
	uniform  packer.Buffer
	protocol *ownership.Protocol
}

func newCulledFixture(t *testing.T, opts ...Option) *culledFixture {
	t.Helper()
	cfg := config.New(config.WithBenchmark(true))
	s, err := scene.NewScene("culled", cfg, scene.WithVariant(scene.VariantCulled))
	require.NoError(t, err)

	dev := New(opts...)
	p, err := packer.Pack(context.Background(), s.Main(), dev.MinOffsetAlignment())
	require.NoError(t, err)
	u, err := packer.Upload(context.Background(), dev, p, 2)
	require.NoError(t, err)

	eye := mgl32.Vec3{0, 8, 40}
	cam := cull.Camera{
		Projection: common.Perspective(mgl32.DegToRad(60), 16.0/9.0, 0.1, 512),
		View:       common.LookAt(eye, mgl32.Vec3{0, 0, 0}, mgl32.Vec3{0, 1, 0}),
		Eye:        eye,
	}
	block := cull.SceneUniform(cam, uint32(p.ObjectCount), config.CullBoth)
	uniform, err := dev.CreateBuffer(packer.BufferDesc{
		Label:  "scene_uniform",
		Size:   256,
		Usage:  packer.UsageUniform,
		Memory: packer.MemoryHostVisible,
	}, block.Marshal())
	require.NoError(t, err)

	g, c := dev.QueueFamilies()
	protocol := ownership.NewProtocol(g, c, 2)
	for slot := 0; slot < 2; slot++ {
		protocol.MarkUploaded(slot)
	}
	return &culledFixture{dev: dev, packed: p, uploaded: u, uniform: uniform, protocol: protocol}
}

func (f *culledFixture) dispatch(slot int) func(ownership.Recorder) error {
	return func(r ownership.Recorder) error {
		r.(*Commands).Dispatch(DispatchArgs{
			Scene:        f.uniform,
			Primitives:   f.uploaded.Primitives,
			Instances:    f.uploaded.Instances,
			Commands:     f.uploaded.Indirect[slot],
			CommandCount: len(f.packed.Commands),
			Groups:       cull.GroupCount(uint32(f.packed.ObjectCount), 64),
			Visible:      f.uploaded.Visible[slot],
		})
		return nil
	}
}

func (f *culledFixture) draw(slot int) func(ownership.Recorder) error {
	return func(r ownership.Recorder) error {
		r.(*Commands).BindInstances(f.uploaded.Visible[slot])
		issuer := r.(*Commands).BindIndirect(f.uploaded.Indirect[slot], true)
		indirect.Submit(issuer, f.packed.Commands, f.dev.SupportsMultiDraw())
		return nil
	}
}

func token(n uint64, slot int) ownership.FrameToken {
	return ownership.FrameToken{Frame: n, Slot: slot}
}

func TestCreateBufferRequiresStaging(t *testing.T) {
	dev := New()
	_, err := dev.CreateBuffer(packer.BufferDesc{Label: "x", Size: 4, Memory: packer.MemoryDeviceLocal}, []byte{1, 2, 3, 4})
	assert.ErrorContains(t, err, "cannot be mapped")

	b, err := packer.Stage(context.Background(), dev, "x", packer.UsageStorage, []byte{1, 2, 3, 4})
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 3, 4}, b.(*Buffer).Bytes())
	assert.Equal(t, 1, dev.Live(), "the staging buffer is released")
}

func TestCulledFramesThroughOwnershipProtocol(t *testing.T) {
	f := newCulledFixture(t)
	frame := ownership.NewFrame(f.protocol, f.dev, time.Second, nil)

	for n := uint64(0); n < 4; n++ {
		slot := ownership.SlotFor(n, 2)
		f.dev.ResetDrawn()
		require.NoError(t, frame.Run(context.Background(), token(n, slot), f.dispatch(slot), f.draw(slot)))

		drawn := f.dev.Drawn()
		assert.Equal(t, len(f.packed.Commands), drawn.Calls, "fallback issues one call per command")
		assert.LessOrEqual(t, drawn.Instances, f.packed.Commands.TotalInstances())
	}
	assert.Equal(t, 4, f.dev.Dispatches())

	barriers := f.dev.Barriers()
	require.Len(t, barriers, 16)
	assert.Equal(t, ownership.AccessTransferWrite, barriers[0].SrcAccess, "first acquire of slot 0 follows the upload")
	assert.Equal(t, ownership.AccessTransferWrite, barriers[4].SrcAccess, "first acquire of slot 1 follows the upload")
	assert.Equal(t, ownership.AccessNone, barriers[8].SrcAccess)
}

func TestCulledCountsMatchReferencePass(t *testing.T) {
	f := newCulledFixture(t, WithMultiDraw(true))
	frame := ownership.NewFrame(f.protocol, f.dev, time.Second, nil)
	require.NoError(t, frame.Run(context.Background(), token(0, 0), f.dispatch(0), f.draw(0)))

	got, err := indirect.Decode(f.uploaded.Indirect[0].(*Buffer).Bytes(), len(f.packed.Commands))
	require.NoError(t, err)
	require.NoError(t, got.ValidateAgainst(f.packed.Commands))

	seg, _ := f.packed.Layout.Segment(packer.SegmentPrimitives)
	in, err := cull.DecodeInputs(f.uniform.(*Buffer).Bytes(), f.packed.Metadata[seg.Offset:seg.Offset+seg.Size], f.packed.Instances)
	require.NoError(t, err)
	want := make([]uint32, len(f.packed.Commands))
	require.NoError(t, cull.NewPass(f.dev.pool, 64).Run(in, want))
	for j := range want {
		assert.Equal(t, want[j], got[j].InstanceCount, "command %d", j)
	}
	assert.Equal(t, 1, f.dev.Drawn().Calls)
}

func TestDrawsFetchOnlyVisibleInstances(t *testing.T) {
	f := newCulledFixture(t, WithMultiDraw(true))
	frame := ownership.NewFrame(f.protocol, f.dev, time.Second, nil)
	require.NoError(t, frame.Run(context.Background(), token(0, 0), f.dispatch(0), f.draw(0)))

	seg, _ := f.packed.Layout.Segment(packer.SegmentPrimitives)
	in, err := cull.DecodeInputs(f.uniform.(*Buffer).Bytes(), f.packed.Metadata[seg.Offset:seg.Offset+seg.Size], f.packed.Instances)
	require.NoError(t, err)
	var want []packer.GPUInstance
	for i := range in.Instances {
		inst := &in.Instances[i]
		if cull.Visible(&in.Scene, &in.Primitives[inst.PrimIndex], inst) {
			want = append(want, *inst)
		}
	}
	require.NotEmpty(t, want)
	require.Less(t, len(want), len(in.Instances), "the camera culls part of the scene")

	got := f.dev.DrawnInstances()
	assert.ElementsMatch(t, want, got)
	assert.Equal(t, uint64(len(got)), f.dev.Drawn().Instances)
	for _, inst := range got {
		assert.True(t, cull.Visible(&in.Scene, &in.Primitives[inst.PrimIndex], &inst))
	}
}

func TestDrawPastInstanceStreamFails(t *testing.T) {
	f := newCulledFixture(t, WithMultiDraw(true))
	short, err := f.dev.CreateBuffer(packer.BufferDesc{
		Label:  "short_instances",
		Size:   80,
		Usage:  packer.UsageVertex,
		Memory: packer.MemoryHostVisible,
	}, nil)
	require.NoError(t, err)

	frame := ownership.NewFrame(f.protocol, f.dev, time.Second, nil)
	err = frame.Run(context.Background(), token(0, 0), f.dispatch(0), func(r ownership.Recorder) error {
		r.(*Commands).BindInstances(short)
		indirect.Submit(r.(*Commands).BindIndirect(f.uploaded.Indirect[0], true), f.packed.Commands, true)
		return nil
	})
	assert.ErrorContains(t, err, "past the bound stream")
}

func TestDeviceStatsReportSubmittedFrame(t *testing.T) {
	f := newCulledFixture(t, WithMultiDraw(true))
	_, ok := f.dev.DeviceStats(0)
	assert.False(t, ok, "nothing submitted yet")

	tok, err := f.dev.PrepareFrame(context.Background(), 0)
	require.NoError(t, err)
	frame := ownership.NewFrame(f.protocol, f.dev, time.Second, nil)
	require.NoError(t, frame.Run(context.Background(), tok, f.dispatch(tok.Slot), f.draw(tok.Slot)))
	require.NoError(t, f.dev.SubmitFrame(context.Background(), tok))

	st, ok := f.dev.DeviceStats(tok.Slot)
	require.True(t, ok)
	assert.Equal(t, uint64(0), st.Frame)
	assert.Equal(t, f.dev.Drawn(), st.Drawn)
	assert.True(t, st.HasPipeline)
	assert.Equal(t, st.Drawn.Indices, st.Pipeline.VertexShaderInvocations)
	assert.Equal(t, st.Drawn.Indices/3, st.Pipeline.InputAssemblyPrimitives)

	_, ok = f.dev.DeviceStats(1)
	assert.False(t, ok, "slot 1 has not been submitted")
}

func TestMultiDrawAndFallbackAgree(t *testing.T) {
	multi := newCulledFixture(t, WithMultiDraw(true))
	single := newCulledFixture(t)
	for _, f := range []*culledFixture{multi, single} {
		frame := ownership.NewFrame(f.protocol, f.dev, time.Second, nil)
		require.NoError(t, frame.Run(context.Background(), token(0, 0), f.dispatch(0), f.draw(0)))
	}
	a, b := multi.dev.Drawn(), single.dev.Drawn()
	assert.Equal(t, a.Instances, b.Instances)
	assert.Equal(t, a.Indices, b.Indices)
	assert.Equal(t, a.Draws, b.Draws)
	assert.Equal(t, 1, a.Calls)
	assert.Equal(t, len(single.packed.Commands), b.Calls)
}

func TestMultiDrawRequiresFeature(t *testing.T) {
	f := newCulledFixture(t)
	frame := ownership.NewFrame(f.protocol, f.dev, time.Second, nil)
	err := frame.Run(context.Background(), token(0, 0), f.dispatch(0), func(r ownership.Recorder) error {
		r.(*Commands).BindIndirect(f.uploaded.Indirect[0], true).DrawIndexedIndirect(0, 4, indirect.CommandStride)
		return nil
	})
	assert.ErrorContains(t, err, "without multi-draw")
}

func TestDrawWithoutAcquireIsRejected(t *testing.T) {
	f := newCulledFixture(t)
	err := f.dev.SubmitCompute(context.Background(), 0, func(r ownership.Recorder) error {
		r.PipelineBarrier(f.protocol.ComputeAcquire(0))
		return f.dispatch(0)(r)
	})
	require.NoError(t, err)

	err = f.dev.SubmitGraphics(context.Background(), 0, f.draw(0))
	assert.ErrorContains(t, err, "owned by")
}

func TestGraphicsWaitsOnSemaphore(t *testing.T) {
	dev := New()
	err := dev.SubmitGraphics(context.Background(), 0, func(ownership.Recorder) error { return nil })
	assert.ErrorContains(t, err, "unsignalled semaphore")
}

func TestSharedFamilySkipsOwnership(t *testing.T) {
	f := newCulledFixture(t, WithQueueFamilies(0, 0))
	require.True(t, f.protocol.Shared())
	frame := ownership.NewFrame(f.protocol, f.dev, time.Second, nil)
	require.NoError(t, frame.Run(context.Background(), token(0, 0), f.dispatch(0), f.draw(0)))
	for _, b := range f.dev.Barriers() {
		assert.Equal(t, ownership.QueueFamilyIgnored, b.SrcFamily)
	}
}

func TestHungFenceTimesOut(t *testing.T) {
	f := newCulledFixture(t, WithFramesInFlight(1))
	p := ownership.NewProtocol(0, 1, 1)
	frame := ownership.NewFrame(p, f.dev, 20*time.Millisecond, nil)

	f.dev.HoldFence(0, true)
	require.NoError(t, frame.Run(context.Background(), token(0, 0), f.dispatch(0), f.draw(0)))
	err := frame.Run(context.Background(), token(1, 0), f.dispatch(0), f.draw(0))
	assert.ErrorIs(t, err, ownership.ErrFenceTimeout)
}

func TestReleaseFreesEverything(t *testing.T) {
	f := newCulledFixture(t)
	f.uploaded.Release(f.dev)
	f.dev.DestroyBuffer(f.uniform)
	assert.Equal(t, 0, f.dev.Live())
}
