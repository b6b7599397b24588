package engine

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Carmen-Shannon/oxy-indirect/common"
	"github.com/Carmen-Shannon/oxy-indirect/engine/camera"
	"github.com/Carmen-Shannon/oxy-indirect/engine/overlay"
	"github.com/Carmen-Shannon/oxy-indirect/engine/profiler"
	"github.com/Carmen-Shannon/oxy-indirect/engine/renderer"
	"github.com/Carmen-Shannon/oxy-indirect/engine/renderer/cull"
	"github.com/Carmen-Shannon/oxy-indirect/engine/window"
	"github.com/cockroachdb/errors"
	"golang.org/x/sync/errgroup"
)

// titleInterval throttles window title updates.
const titleInterval = 500 * time.Millisecond

// engine implements the Engine interface.
// Coordinates the tick, render and window threads around one renderer.
type engine struct {
	mu *sync.Mutex

	tickRateChannel chan time.Duration // Channel for dynamic tick rate updates

	running     atomic.Bool
	quitChannel chan struct{}
	quitOnce    sync.Once // Ensures quitChannel is only closed once

	renderer renderer.Renderer
	window   window.Window
	camera   camera.Camera
	logger   *slog.Logger
	title    string

	profiler         *profiler.Profiler
	profilingEnabled bool

	engineTickRate   time.Duration
	tickCallback     func(deltaTime float32)
	frameCallback    func(stats renderer.FrameStats)
	renderFrameLimit time.Duration // minimum frame duration; 0 = uncapped
	maxFrames        uint64        // 0 = until closed

	// guarded by mu
	frames      uint64
	last        renderer.FrameStats
	titleFrames uint64
	titleAt     time.Time
}

// Engine is the main entry point for a demo.
// It runs the tick loop, the render loop and, when a window is attached, the window's event loop.
type Engine interface {
	// Window returns the attached window, or nil when headless.
	Window() window.Window

	// Renderer returns the renderer frames are drawn through.
	Renderer() renderer.Renderer

	// Camera returns the camera the renderer is fed each frame, or nil.
	Camera() camera.Camera

	// EnableProfiler enables periodic frame statistics in the log and a run summary on exit.
	EnableProfiler()

	// DisableProfiler disables profiling output.
	DisableProfiler()

	// SetTickRate sets the engine tick rate in ticks per second.
	// The tick callback and the automatic camera orbit run at this rate.
	//
	// Parameters:
	//   - fps: target ticks per second (defaults to 60 if <= 0)
	SetTickRate(fps float64)

	// SetTickCallback registers the function called each engine tick.
	//
	// Parameters:
	//   - callback: function receiving the delta time in seconds
	SetTickCallback(callback func(deltaTime float32))

	// SetFrameCallback registers the function called after each rendered frame, on the render
	// goroutine.
	//
	// Parameters:
	//   - callback: function receiving what the frame issued
	SetFrameCallback(callback func(stats renderer.FrameStats))

	// SetRenderFrameLimit sets an optional render frame rate cap in frames per second.
	// Pass 0 to uncap the render loop (default).
	SetRenderFrameLimit(fps float64)

	// LastFrame returns the statistics of the most recent frame.
	LastFrame() renderer.FrameStats

	// Frames returns how many frames were rendered.
	Frames() uint64

	// HandleKey applies a key press: C cycles the cull test, Space pauses the orbit, arrows orbit.
	//
	// Parameters:
	//   - keyCode: a GLFW key code, see common.Key*
	HandleKey(keyCode uint32)

	// Run renders until the window closes, the frame limit is reached, Quit is called or ctx is
	// cancelled. With a window it must be called from the thread that created the window. An engine
	// runs once.
	//
	// Parameters:
	//   - ctx: cancels the run; cancellation is not an error
	//
	// Returns:
	//   - error: the first render failure
	Run(ctx context.Context) error

	// Quit signals all engine goroutines to stop.
	// Safe to call multiple times; subsequent calls are no-ops.
	Quit()
}

// NewEngine creates an Engine around a renderer that already holds its scene.
//
// Parameters:
//   - r: the renderer to draw through
//   - options: functional options for window, camera, profiling and rates
//
// Returns:
//   - Engine: the newly created engine
//   - error: a nil renderer
func NewEngine(r renderer.Renderer, options ...EngineBuilderOption) (Engine, error) {
	if r == nil {
		return nil, errors.New("engine: NewEngine requires a renderer")
	}
	e := &engine{
		mu:              &sync.Mutex{},
		tickRateChannel: make(chan time.Duration, 1),
		quitChannel:     make(chan struct{}),
		renderer:        r,
		engineTickRate:  time.Second / 60,
		title:           "oxy-indirect",
	}
	for _, opt := range options {
		opt(e)
	}
	if e.logger == nil {
		e.logger = slog.Default()
	}
	e.logger = e.logger.With("component", "engine")
	if e.profiler == nil {
		e.profiler = profiler.NewProfiler(profiler.WithLogger(e.logger))
	}

	if e.window != nil {
		e.window.SetResizeCallback(func(width, height int) {
			e.renderer.Resize(width, height)
			if e.camera != nil && height > 0 {
				e.camera.SetAspect(float32(width) / float32(height))
			}
		})
		e.window.SetKeyDownCallback(e.HandleKey)
		e.window.SetScrollCallback(func(delta float32) {
			if e.camera != nil {
				e.camera.Controller().Zoom(delta)
			}
		})
		if e.camera != nil && e.window.Height() > 0 {
			e.camera.SetAspect(float32(e.window.Width()) / float32(e.window.Height()))
		}
	}
	return e, nil
}

func (e *engine) Window() window.Window {
	return e.window
}

func (e *engine) Renderer() renderer.Renderer {
	return e.renderer
}

func (e *engine) Camera() camera.Camera {
	return e.camera
}

func (e *engine) HandleKey(keyCode uint32) {
	switch keyCode {
	case common.KeyC:
		if !e.LastFrame().Culled {
			e.logger.Info("no culled drawable; cull test unchanged")
			return
		}
		next := cull.NextTest(e.renderer.CullTest())
		e.renderer.SetCullTest(next)
		e.logger.Info("cull test", "test", next)
	case common.KeySpace:
		if e.camera != nil {
			paused := e.camera.Controller().TogglePause()
			e.logger.Info("camera orbit", "paused", paused)
		}
	case common.KeyLeft, common.KeyRight, common.KeyUp, common.KeyDown:
		if e.camera == nil {
			return
		}
		var da, de float32
		switch keyCode {
		case common.KeyLeft:
			da = -1
		case common.KeyRight:
			da = 1
		case common.KeyUp:
			de = 1
		case common.KeyDown:
			de = -1
		}
		e.camera.Controller().Orbit(da, de)
	}
}

func (e *engine) Run(ctx context.Context) error {
	if !e.running.CompareAndSwap(false, true) {
		return errors.New("engine: already running")
	}
	defer e.running.Store(false)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return e.handleEngine(gctx) })
	g.Go(func() error { return e.handleRender(gctx) })
	go func() {
		select {
		case <-gctx.Done():
			e.signalQuit()
		case <-e.quitChannel:
		}
	}()

	if e.window != nil {
		e.window.SetUpdateCallback(e.handleWindow)
		e.window.ProcessMessages()
		e.signalQuit()
	}

	err := g.Wait()
	if e.profilingEnabled {
		e.profiler.LogSummary()
	}
	e.logger.Info("engine stopped", "frames", e.Frames())
	if cause := ctx.Err(); cause != nil && errors.Is(err, cause) {
		return nil
	}
	return err
}

// Quit signals all engine goroutines to stop and shuts down the engine.
func (e *engine) Quit() {
	e.signalQuit()
}

// signalQuit closes the quit channel to signal all goroutines to exit.
func (e *engine) signalQuit() {
	e.quitOnce.Do(func() {
		close(e.quitChannel)
	})
}

// handleWindow runs on the window thread after every poll: it closes the window once the engine
// quits and keeps the title showing the overlay.
func (e *engine) handleWindow() {
	select {
	case <-e.quitChannel:
		e.window.Close()
		return
	default:
	}

	e.mu.Lock()
	now := time.Now()
	elapsed := now.Sub(e.titleAt)
	if elapsed < titleInterval || e.frames == 0 {
		e.mu.Unlock()
		return
	}
	fps := 0.0
	if !e.titleAt.IsZero() {
		fps = float64(e.frames-e.titleFrames) / elapsed.Seconds()
	}
	e.titleAt, e.titleFrames = now, e.frames
	last := e.last
	e.mu.Unlock()

	e.window.SetTitle(overlay.Title(e.title, last, fps))
}

// handleEngine runs the fixed-rate tick loop. It advances the camera orbit, fires the tick
// callback and listens for rate changes on tickRateChannel.
func (e *engine) handleEngine(ctx context.Context) error {
	ticker := time.NewTicker(e.engineTickRate)
	defer ticker.Stop()

	lastTick := time.Now()
	for {
		select {
		case <-e.quitChannel:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		case now := <-ticker.C:
			dt := float32(now.Sub(lastTick).Seconds())
			lastTick = now
			if e.camera != nil {
				e.camera.Controller().Advance(dt)
			}
			if e.tickCallback != nil {
				e.tickCallback(dt)
			}
		case newRate := <-e.tickRateChannel:
			ticker.Reset(newRate)
			e.engineTickRate = newRate
		}
	}
}

// handleRender runs the render loop: camera to renderer, one Render per iteration, statistics to
// the profiler and frame callback. A panic is turned into the run's error.
func (e *engine) handleRender(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.Newf("engine: render goroutine panic: %v", r)
			e.signalQuit()
		}
	}()

	for {
		select {
		case <-e.quitChannel:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		start := time.Now()
		if e.camera != nil {
			e.renderer.SetCamera(e.camera.View())
		}
		stats, err := e.renderer.Render(ctx)
		if err != nil {
			e.signalQuit()
			return err
		}

		e.mu.Lock()
		e.last = stats
		e.frames++
		frames := e.frames
		e.mu.Unlock()

		if e.frameCallback != nil {
			e.frameCallback(stats)
		}
		if e.profilingEnabled {
			e.profiler.Tick(stats.Issued.Draws, stats.DrawnInstances())
		}
		if e.maxFrames > 0 && frames >= e.maxFrames {
			e.signalQuit()
			return nil
		}

		if e.renderFrameLimit > 0 {
			if remaining := e.renderFrameLimit - time.Since(start); remaining > 0 {
				select {
				case <-time.After(remaining):
				case <-e.quitChannel:
				}
			}
		}
	}
}

func (e *engine) EnableProfiler() {
	e.profilingEnabled = true
}

func (e *engine) DisableProfiler() {
	e.profilingEnabled = false
}

// SetTickRate sets the engine tick rate in ticks per second.
// If the engine is running, the change takes effect immediately.
func (e *engine) SetTickRate(fps float64) {
	if fps <= 0 {
		fps = 60
	}
	newRate := time.Duration(float64(time.Second) / fps)

	if !e.running.Load() {
		e.engineTickRate = newRate
		return
	}
	// Replace any pending update so the loop sees the newest rate.
	select {
	case e.tickRateChannel <- newRate:
	default:
		select {
		case <-e.tickRateChannel:
		default:
		}
		e.tickRateChannel <- newRate
	}
}

func (e *engine) SetTickCallback(callback func(deltaTime float32)) {
	e.tickCallback = callback
}

func (e *engine) SetFrameCallback(callback func(stats renderer.FrameStats)) {
	e.frameCallback = callback
}

func (e *engine) SetRenderFrameLimit(fps float64) {
	e.renderFrameLimit = frameDuration(fps)
}

func (e *engine) LastFrame() renderer.FrameStats {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.last
}

func (e *engine) Frames() uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.frames
}

// frameDuration converts a rate to a period; non-positive rates mean uncapped.
func frameDuration(fps float64) time.Duration {
	if fps <= 0 {
		return 0
	}
	return time.Duration(float64(time.Second) / fps)
}
