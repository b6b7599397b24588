package renderer_test

import (
	"context"
	"testing"
	"time"

	"github.com/Carmen-Shannon/oxy-indirect/common"
	"github.com/Carmen-Shannon/oxy-indirect/engine/config"
	"github.com/Carmen-Shannon/oxy-indirect/engine/renderer"
	"github.com/Carmen-Shannon/oxy-indirect/engine/renderer/cull"
	"github.com/Carmen-Shannon/oxy-indirect/engine/renderer/ownership"
	"github.com/Carmen-Shannon/oxy-indirect/engine/renderer/packer"
	"github.com/Carmen-Shannon/oxy-indirect/engine/renderer/softgpu"
	"github.com/Carmen-Shannon/oxy-indirect/engine/scene"
	"github.com/cockroachdb/errors"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testConfig culls by distance only, so every plant is visible from the origin and drawn counts
// are exact.
func testConfig(opts ...config.ConfigOption) *config.Config {
	base := []config.ConfigOption{
		config.WithBenchmark(true),
		config.WithCullTest(config.CullDistance),
	}
	return config.New(append(base, opts...)...)
}

func loaded(t *testing.T, cfg *config.Config, v scene.Variant, dev *softgpu.Device) renderer.Renderer {
	t.Helper()
	s, err := scene.NewScene(v.String(), cfg, scene.WithVariant(v))
	require.NoError(t, err)

	r, err := renderer.NewRenderer(dev, cfg, renderer.WithCamera(cull.Camera{Eye: mgl32.Vec3{0, 0, 0}}))
	require.NoError(t, err)
	require.NoError(t, r.Load(context.Background(), s))
	t.Cleanup(r.Release)
	return r
}

func TestResolveMultiDraw(t *testing.T) {
	tests := []struct {
		mode      config.MultiDrawMode
		supported bool
		want      bool
		wantErr   bool
	}{
		{config.MultiDrawAuto, true, true, false},
		{config.MultiDrawAuto, false, false, false},
		{config.MultiDrawOff, true, false, false},
		{config.MultiDrawOn, true, true, false},
		{config.MultiDrawOn, false, false, true},
	}
	for _, tt := range tests {
		got, err := renderer.ResolveMultiDraw(tt.mode, tt.supported)
		if tt.wantErr {
			assert.Error(t, err, "%s/%v", tt.mode, tt.supported)
			continue
		}
		require.NoError(t, err)
		assert.Equal(t, tt.want, got, "%s/%v", tt.mode, tt.supported)
	}
}

func TestNewRendererRejectsForcedMultiDraw(t *testing.T) {
	cfg := testConfig(config.WithMultiDraw(config.MultiDrawOn))
	_, err := renderer.NewRenderer(softgpu.New(), cfg)
	assert.Error(t, err)
}

func TestCulledSceneRunsOwnershipProtocol(t *testing.T) {
	cfg := testConfig()
	dev := softgpu.New(softgpu.WithFramesInFlight(cfg.FramesInFlight))
	r := loaded(t, cfg, scene.VariantCulled, dev)

	require.Len(t, r.Batches(), 3)
	assert.Equal(t, 3, dev.Prepared())

	var slots []int
	for i := 0; i < 4; i++ {
		dev.ResetDrawn()
		st, err := r.Render(context.Background())
		require.NoError(t, err)
		slots = append(slots, st.Slot)
		assert.True(t, st.Culled)
		assert.Equal(t, 1024, st.Objects)

		// plants plus one ground and one sky instance
		assert.EqualValues(t, 1024+2, dev.Drawn().Instances)
		assert.EqualValues(t, 1024+2, st.Issued.Instances)
		require.True(t, st.HasDevice)
		assert.Equal(t, dev.Drawn(), st.Device.Drawn)
		assert.Equal(t, st.Frame, st.Device.Frame)
	}
	assert.Equal(t, []int{0, 1, 0, 1}, slots)
	assert.Equal(t, 4, dev.Dispatches())
	assert.Equal(t, 4, dev.Presented())
	assert.Len(t, dev.Barriers(), 16)
}

func TestStaticSceneSkipsCompute(t *testing.T) {
	cfg := testConfig()
	dev := softgpu.New()
	r := loaded(t, cfg, scene.VariantIndirectDraw, dev)

	st, err := r.Render(context.Background())
	require.NoError(t, err)
	assert.False(t, st.Culled)
	assert.Zero(t, dev.Dispatches())
	assert.Empty(t, dev.Barriers())
	assert.EqualValues(t, 1024+2, dev.Drawn().Instances)

	// fallback: one call per plant command plus ground and sky
	assert.Equal(t, cfg.PrimitiveCount+2, st.Issued.Calls)
}

func TestMultiDrawMatchesFallback(t *testing.T) {
	run := func(multi bool) renderer.FrameStats {
		cfg := testConfig()
		dev := softgpu.New(softgpu.WithMultiDraw(multi))
		r := loaded(t, cfg, scene.VariantCulled, dev)
		st, err := r.Render(context.Background())
		require.NoError(t, err)
		assert.Equal(t, multi, st.MultiDraw)
		return st
	}
	multi, single := run(true), run(false)

	assert.Equal(t, multi.Issued.Instances, single.Issued.Instances)
	assert.Equal(t, multi.Issued.Indices, single.Issued.Indices)
	assert.Equal(t, multi.Issued.Draws, single.Issued.Draws)
	assert.Less(t, multi.Issued.Calls, single.Issued.Calls)
	assert.Equal(t, multi.Device.Drawn.Instances, single.Device.Drawn.Instances)
	assert.Equal(t, multi.Device.Drawn.Indices, single.Device.Drawn.Indices)
}

func TestCulledAwayFrameReportsDeviceCounts(t *testing.T) {
	cfg := testConfig()
	dev := softgpu.New(softgpu.WithFramesInFlight(cfg.FramesInFlight))
	r := loaded(t, cfg, scene.VariantCulled, dev)
	r.SetCamera(cull.Camera{Eye: mgl32.Vec3{10000, 0, 0}})

	dev.ResetDrawn()
	st, err := r.Render(context.Background())
	require.NoError(t, err)

	// only ground and sky survive; the plants' authored counts are still what was issued
	assert.EqualValues(t, 2, dev.Drawn().Instances)
	assert.EqualValues(t, 1024+2, st.Issued.Instances)
	require.True(t, st.HasDevice)
	assert.Equal(t, dev.Drawn(), st.Device.Drawn)
	assert.EqualValues(t, 2, st.Device.Drawn.Instances)
	assert.EqualValues(t, 2, st.DrawnInstances(), "the profiler sees the measured count")
	assert.Len(t, dev.DrawnInstances(), 2)
	assert.Equal(t, st.Device.Drawn.Indices, st.Device.Pipeline.VertexShaderInvocations)
}

func TestCulledDrawsFetchVisibleInstances(t *testing.T) {
	cfg := testConfig(config.WithCullTest(config.CullBoth))
	dev := softgpu.New(softgpu.WithFramesInFlight(cfg.FramesInFlight))
	r := loaded(t, cfg, scene.VariantCulled, dev)

	// from the middle of the field looking down +z: the rows behind the camera are culled
	eye := mgl32.Vec3{7.5, 4, 17.5}
	cam := cull.Camera{
		Projection: common.Perspective(mgl32.DegToRad(60), 16.0/9.0, 0.1, 512),
		View:       common.LookAt(eye, mgl32.Vec3{7.5, 0, 60}, mgl32.Vec3{0, 1, 0}),
		Eye:        eye,
	}
	r.SetCamera(cam)
	_, err := r.Render(context.Background())
	require.NoError(t, err)

	var want []packer.GPUInstance
	for _, b := range r.Batches() {
		rows := decodeInstances(t, b.Packed.Instances)
		if !b.Packed.Category.UsesCullPass() {
			want = append(want, rows...)
			continue
		}
		u := cull.SceneUniform(cam, uint32(b.Packed.ObjectCount), config.CullBoth)
		seg, _ := b.Packed.Layout.Segment(packer.SegmentPrimitives)
		in, err := cull.DecodeInputs(u.Marshal(), b.Packed.Metadata[seg.Offset:seg.Offset+seg.Size], b.Packed.Instances)
		require.NoError(t, err)
		for i := range in.Instances {
			inst := &in.Instances[i]
			if cull.Visible(&in.Scene, &in.Primitives[inst.PrimIndex], inst) {
				want = append(want, *inst)
			}
		}
	}

	got := dev.DrawnInstances()
	require.Less(t, len(got), 1024+2, "the camera culls part of the field")
	require.Greater(t, len(got), 2, "the camera sees part of the field")
	assert.ElementsMatch(t, want, got)
	assert.EqualValues(t, len(got), dev.Drawn().Instances)
}

func decodeInstances(t *testing.T, raw []byte) []packer.GPUInstance {
	t.Helper()
	var g packer.GPUInstance
	var out []packer.GPUInstance
	for off := 0; off+g.Size() <= len(raw); off += g.Size() {
		inst, err := packer.UnmarshalInstance(raw[off:])
		require.NoError(t, err)
		out = append(out, inst)
	}
	return out
}

func TestNoodleBatchDrawsClusters(t *testing.T) {
	cfg := testConfig()
	dev := softgpu.New()
	r := loaded(t, cfg, scene.VariantNoodleBatch, dev)

	st, err := r.Render(context.Background())
	require.NoError(t, err)
	require.Positive(t, st.Clusters)
	assert.EqualValues(t, st.Clusters+2, dev.Drawn().Instances)
}

func TestHungFenceTimesOut(t *testing.T) {
	cfg := testConfig(config.WithFenceTimeout(20 * time.Millisecond))
	dev := softgpu.New()
	r := loaded(t, cfg, scene.VariantCulled, dev)

	dev.HoldFence(0, true)
	for i := 0; i < 2; i++ {
		_, err := r.Render(context.Background())
		require.NoError(t, err)
	}
	_, err := r.Render(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ownership.ErrFenceTimeout))
}

func TestRenderHonoursCancellation(t *testing.T) {
	cfg := testConfig()
	r := loaded(t, cfg, scene.VariantCulled, softgpu.New())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := r.Render(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestReleaseDestroysBuffers(t *testing.T) {
	cfg := testConfig()
	dev := softgpu.New()
	s, err := scene.NewScene("culled", cfg, scene.WithVariant(scene.VariantCulled))
	require.NoError(t, err)
	r, err := renderer.NewRenderer(dev, cfg)
	require.NoError(t, err)
	require.NoError(t, r.Load(context.Background(), s))
	_, err = r.Render(context.Background())
	require.NoError(t, err)
	require.Positive(t, dev.Live())

	r.Release()
	assert.Zero(t, dev.Live())
	assert.Empty(t, r.Batches())
}

func TestSetCullTest(t *testing.T) {
	cfg := testConfig()
	r := loaded(t, cfg, scene.VariantCulled, softgpu.New())
	assert.Equal(t, config.CullDistance, r.CullTest())
	r.SetCullTest(cull.NextTest(r.CullTest()))
	assert.Equal(t, config.CullFrustum, r.CullTest())
}
