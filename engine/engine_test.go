package engine_test

import (
	"context"
	"testing"
	"time"

	"github.com/Carmen-Shannon/oxy-indirect/common"
	"github.com/Carmen-Shannon/oxy-indirect/engine"
	"github.com/Carmen-Shannon/oxy-indirect/engine/camera"
	"github.com/Carmen-Shannon/oxy-indirect/engine/config"
	"github.com/Carmen-Shannon/oxy-indirect/engine/renderer"
	"github.com/Carmen-Shannon/oxy-indirect/engine/renderer/cull"
	"github.com/Carmen-Shannon/oxy-indirect/engine/renderer/softgpu"
	"github.com/Carmen-Shannon/oxy-indirect/engine/scene"
	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func headless(t *testing.T, v scene.Variant) (renderer.Renderer, *config.Config) {
	t.Helper()
	cfg := config.New(config.WithBenchmark(true), config.WithCullTest(config.CullDistance))
	s, err := scene.NewScene(v.String(), cfg, scene.WithVariant(v))
	require.NoError(t, err)

	dev := softgpu.New(softgpu.WithFramesInFlight(cfg.FramesInFlight))
	r, err := renderer.NewRenderer(dev, cfg)
	require.NoError(t, err)
	require.NoError(t, r.Load(context.Background(), s))
	t.Cleanup(r.Release)
	return r, cfg
}

func TestRunStopsAtMaxFrames(t *testing.T) {
	r, cfg := headless(t, scene.VariantCulled)
	var seen []renderer.FrameStats
	e, err := engine.NewEngine(r,
		engine.WithCamera(camera.NewCamera()),
		engine.WithMaxFrames(6),
		engine.WithProfiling(true),
	)
	require.NoError(t, err)
	e.SetFrameCallback(func(s renderer.FrameStats) { seen = append(seen, s) })

	require.NoError(t, e.Run(context.Background()))
	assert.EqualValues(t, 6, e.Frames())
	require.Len(t, seen, 6)
	for i, s := range seen {
		assert.EqualValues(t, i, s.Frame)
		assert.Equal(t, i%cfg.FramesInFlight, s.Slot)
		assert.True(t, s.Culled)
	}
	assert.Equal(t, seen[5], e.LastFrame())
	assert.Nil(t, e.Window())
}

func TestFinishedEngineStaysQuit(t *testing.T) {
	r, _ := headless(t, scene.VariantIndirectDraw)
	e, err := engine.NewEngine(r, engine.WithMaxFrames(1))
	require.NoError(t, err)
	require.NoError(t, e.Run(context.Background()))

	// A finished engine stays quit: the second run returns at once.
	require.NoError(t, e.Run(context.Background()))
	assert.EqualValues(t, 1, e.Frames())
}

func TestCancellationIsNotAnError(t *testing.T) {
	r, _ := headless(t, scene.VariantNoodleBatch)
	e, err := engine.NewEngine(r, engine.WithRenderFrameLimit(200))
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	require.NoError(t, e.Run(ctx))
	assert.Positive(t, e.Frames())
	assert.Positive(t, e.LastFrame().Clusters)
}

func TestQuitFromTick(t *testing.T) {
	r, _ := headless(t, scene.VariantIndirectDraw)
	e, err := engine.NewEngine(r, engine.WithTickRate(1000), engine.WithRenderFrameLimit(100))
	require.NoError(t, err)
	e.SetTickCallback(func(float32) { e.Quit() })

	done := make(chan error, 1)
	go func() { done <- e.Run(context.Background()) }()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("engine did not stop")
	}
}

func TestHandleKeyCyclesCullTest(t *testing.T) {
	r, _ := headless(t, scene.VariantCulled)
	cam := camera.NewCamera(camera.WithController(camera.NewCameraController(camera.WithAutoOrbit(0))))
	e, err := engine.NewEngine(r, engine.WithCamera(cam), engine.WithMaxFrames(1))
	require.NoError(t, err)

	e.HandleKey(common.KeyC)
	assert.Equal(t, config.CullDistance, r.CullTest(), "ignored before a culled frame")

	require.NoError(t, e.Run(context.Background()))
	e.HandleKey(common.KeyC)
	assert.Equal(t, cull.NextTest(config.CullDistance), r.CullTest())

	az := cam.Controller().Azimuth()
	e.HandleKey(common.KeyRight)
	assert.Greater(t, cam.Controller().Azimuth(), az)

	e.HandleKey(common.KeySpace)
	before := cam.Controller().Azimuth()
	cam.Controller().Advance(1)
	assert.Equal(t, before, cam.Controller().Azimuth())
}

type failingRenderer struct {
	renderer.Renderer
	err   error
	panic bool
}

func (f *failingRenderer) SetCamera(cull.Camera) {}

func (f *failingRenderer) Render(context.Context) (renderer.FrameStats, error) {
	if f.panic {
		panic("device lost")
	}
	return renderer.FrameStats{}, f.err
}

func TestRenderErrorStopsRun(t *testing.T) {
	boom := errors.New("submit failed")
	e, err := engine.NewEngine(&failingRenderer{err: boom})
	require.NoError(t, err)
	assert.ErrorIs(t, e.Run(context.Background()), boom)
}

func TestRenderPanicBecomesError(t *testing.T) {
	e, err := engine.NewEngine(&failingRenderer{panic: true})
	require.NoError(t, err)
	assert.ErrorContains(t, e.Run(context.Background()), "device lost")
}

func TestNewEngineRequiresRenderer(t *testing.T) {
	_, err := engine.NewEngine(nil)
	assert.Error(t, err)
}
