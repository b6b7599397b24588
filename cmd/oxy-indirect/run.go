package main

import (
	"log/slog"
	"os"
	"os/signal"

	"github.com/Carmen-Shannon/oxy-indirect/engine"
	"github.com/Carmen-Shannon/oxy-indirect/engine/camera"
	"github.com/Carmen-Shannon/oxy-indirect/engine/config"
	"github.com/Carmen-Shannon/oxy-indirect/engine/renderer"
	"github.com/Carmen-Shannon/oxy-indirect/engine/renderer/softgpu"
	"github.com/Carmen-Shannon/oxy-indirect/engine/renderer/vulkan"
	"github.com/Carmen-Shannon/oxy-indirect/engine/scene"
	"github.com/Carmen-Shannon/oxy-indirect/engine/window"
	"github.com/cockroachdb/errors"
	"github.com/go-gl/glfw/v3.3/glfw"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/spf13/cobra"
)

var (
	_ renderer.Backend = (*vulkan.Device)(nil)
	_ renderer.Backend = (*softgpu.Device)(nil)
)

// runDemo authors the scene for v, opens the configured backend and runs the engine until the
// window closes, the frame limit is reached or the process is interrupted.
func runDemo(cmd *cobra.Command, opts *rootOptions, v scene.Variant, force config.Backend) error {
	var extra []config.ConfigOption
	if force != "" {
		extra = append(extra, config.WithBackend(force))
	}
	cfg, err := opts.config(cmd, extra...)
	if err != nil {
		return err
	}
	logger := slog.Default().With("demo", v.String())
	logger.Info("configuration", "config", cfg.String())

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	s, err := scene.NewScene(v.String(), cfg, scene.WithVariant(v))
	if err != nil {
		return err
	}

	backend, win, closeBackend, err := openBackend(cfg, logger)
	if err != nil {
		return err
	}
	defer closeBackend()

	cam := sceneCamera(cfg, v)
	r, err := renderer.NewRenderer(backend, cfg, renderer.WithLogger(logger), renderer.WithCamera(cam.View()))
	if err != nil {
		backend.Release()
		return err
	}
	defer r.Release()

	if err := r.Load(ctx, s); err != nil {
		return err
	}

	options := []engine.EngineBuilderOption{
		engine.WithCamera(cam),
		engine.WithLogger(logger),
		engine.WithTitle(cfg.Window.Title + " " + v.String()),
		engine.WithProfiling(opts.profile || cfg.Benchmark),
		engine.WithMaxFrames(opts.frames),
	}
	if win != nil {
		options = append(options, engine.WithWindow(win))
	}
	e, err := engine.NewEngine(r, options...)
	if err != nil {
		return err
	}
	return e.Run(ctx)
}

// openBackend creates the device cfg.Backend names. The returned close function runs after the
// renderer has released the backend.
//
// Returns:
//   - renderer.Backend: the device
//   - window.Window: the window the device presents to, nil for offscreen backends
//   - func(): tears down the window or the GLFW loader
//   - error: window, loader or device creation failure
func openBackend(cfg *config.Config, logger *slog.Logger) (renderer.Backend, window.Window, func(), error) {
	switch cfg.Backend {
	case config.BackendWGPU:
		win, err := window.NewWindow(window.WithConfig(cfg.Window))
		if err != nil {
			return nil, nil, nil, err
		}
		b, err := renderer.NewWGPUBackend(win.SurfaceDescriptor(), cfg, false, renderer.WithBackendLogger(logger))
		if err != nil {
			_ = win.Destroy()
			return nil, nil, nil, err
		}
		return b, win, func() { _ = win.Destroy() }, nil

	case config.BackendVulkan:
		// GLFW supplies the Vulkan loader; the device renders offscreen.
		if err := glfw.Init(); err != nil {
			return nil, nil, nil, errors.Wrap(err, "initialize GLFW")
		}
		if !glfw.VulkanSupported() {
			glfw.Terminate()
			return nil, nil, nil, errors.New("vulkan: no loader or ICD found")
		}
		d, err := vulkan.New(cfg, vulkan.WithLogger(logger))
		if err != nil {
			glfw.Terminate()
			return nil, nil, nil, err
		}
		return d, nil, glfw.Terminate, nil

	case config.BackendSoftware:
		d := softgpu.New(
			softgpu.WithFramesInFlight(cfg.FramesInFlight),
			softgpu.WithLocalGroupSize(uint32(cfg.LocalGroupSize)),
			softgpu.WithMultiDraw(cfg.MultiDraw != config.MultiDrawOff),
			softgpu.WithLogger(logger),
		)
		return d, nil, func() {}, nil

	default:
		return nil, nil, nil, errors.Newf("unknown backend %q", cfg.Backend)
	}
}

// sceneCamera frames what v draws: the plant grid from beside its centre, or the noodle cloud from
// outside its radius.
func sceneCamera(cfg *config.Config, v scene.Variant) camera.Camera {
	aspect := float32(cfg.Window.Width) / float32(cfg.Window.Height)

	var target mgl32.Vec3
	var radius float32
	switch v {
	case scene.VariantNoodleBatch:
		radius = 1.5 * cfg.ClusterRadius
	default:
		rows := (cfg.PrimitiveCount + cfg.PrimitiveGridWidth - 1) / cfg.PrimitiveGridWidth
		target = mgl32.Vec3{
			float32(cfg.PrimitiveGridWidth-1) * cfg.PrimitiveGap / 2,
			0,
			float32(rows-1) * cfg.PrimitiveGap / 2,
		}
		radius = float32(max(cfg.PrimitiveGridWidth, rows)) * cfg.PrimitiveGap
	}

	ctrl := camera.NewCameraController(
		camera.WithTarget(target),
		camera.WithRadius(radius),
		camera.WithRadiusBounds(1, 4*cfg.CullDistance),
	)
	return camera.NewCamera(camera.WithAspect(aspect), camera.WithController(ctrl))
}
