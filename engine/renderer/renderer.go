package renderer

import (
	"context"
	"log/slog"
	"sync"

	"github.com/Carmen-Shannon/oxy-indirect/engine/config"
	"github.com/Carmen-Shannon/oxy-indirect/engine/renderer/cull"
	"github.com/Carmen-Shannon/oxy-indirect/engine/renderer/indirect"
	"github.com/Carmen-Shannon/oxy-indirect/engine/renderer/ownership"
	"github.com/Carmen-Shannon/oxy-indirect/engine/renderer/packer"
	"github.com/Carmen-Shannon/oxy-indirect/engine/scene"
	"github.com/cockroachdb/errors"
)

// Batch is one drawable resident on the device.
type Batch struct {
	Drawable *scene.Drawable
	Packed   *packer.Packed
	Uploaded *packer.Uploaded
}

// FrameStats describes one rendered frame.
type FrameStats struct {
	Frame uint64
	Slot  int

	// Issued is what the host recorded, summed from the authored command tables. For a culled
	// drawable its instance counts are the authored ones, not what survived the cull.
	Issued indirect.Stats

	// Device is what the backend measured on the device, possibly for an earlier frame of the
	// same slot. Zero when the backend measures nothing.
	Device    indirect.DeviceStats
	HasDevice bool

	Objects   int
	Clusters  int
	MultiDraw bool
	Culled    bool
}

// DrawnInstances returns the instance count the device measured when it reports one, otherwise the
// count the host issued.
func (s FrameStats) DrawnInstances() uint64 {
	if s.HasDevice && s.Device.HasDrawn {
		return s.Device.Drawn.Instances
	}
	return s.Issued.Instances
}

// renderer is the implementation of the Renderer interface.
type renderer struct {
	mu *sync.Mutex

	cfg     *config.Config
	backend Backend
	logger  *slog.Logger

	batches []*Batch
	culled  *Batch
	frame   *ownership.Frame

	multiDraw bool
	camera    cull.Camera
	cullTest  config.CullTest
	frameNo   uint64
	objects   int
	clusters  int
}

// Renderer turns an authored scene into device buffers and renders it frame by frame.
//
// A culled drawable goes through the full queue ownership protocol each frame. Scenes without one
// submit a single graphics pass.
type Renderer interface {
	// Load packs, uploads and prepares every drawable of s. At most one drawable may be culled.
	//
	// Parameters:
	//   - ctx: bounds the staging copies
	//   - s: the authored scene
	//
	// Returns:
	//   - error: the first pack, upload or pipeline failure; startup should abort on it
	Load(ctx context.Context, s scene.Scene) error

	// Batches returns the resident drawables in draw order.
	Batches() []*Batch

	// SetCamera sets the view used from the next frame on.
	SetCamera(cam cull.Camera)

	// CullTest returns the active visibility test.
	CullTest() config.CullTest

	// SetCullTest changes the visibility test from the next frame on.
	SetCullTest(t config.CullTest)

	// MultiDraw reports whether draws go out as one multi-draw per drawable.
	MultiDraw() bool

	// Render records and submits one frame.
	//
	// Parameters:
	//   - ctx: cancels fence waits and submissions
	//
	// Returns:
	//   - FrameStats: what the frame issued and what the device measured
	//   - error: a fence timeout, cancellation or submit failure
	Render(ctx context.Context) (FrameStats, error)

	// Resize forwards a surface size change to the backend.
	Resize(width, height int)

	// Release destroys every uploaded buffer, then the backend.
	Release()
}

// NewRenderer creates a Renderer over a backend.
//
// Parameters:
//   - backend: the device to render through
//   - cfg: multi-draw mode, ring depth, fence timeout and cull test
//   - options: functional options
//
// Returns:
//   - Renderer: the renderer, holding no drawables yet
//   - error: multi-draw forced on a device without the feature
func NewRenderer(backend Backend, cfg *config.Config, options ...RendererBuilderOption) (Renderer, error) {
	r := &renderer{
		mu:       &sync.Mutex{},
		cfg:      cfg,
		backend:  backend,
		cullTest: cfg.CullTest,
	}
	for _, opt := range options {
		opt(r)
	}
	if r.logger == nil {
		r.logger = slog.Default()
	}
	r.logger = r.logger.With("component", "renderer", "backend", backend.Name())

	md, err := ResolveMultiDraw(cfg.MultiDraw, backend.SupportsMultiDraw())
	if err != nil {
		return nil, err
	}
	r.multiDraw = md
	if !md && cfg.MultiDraw == config.MultiDrawAuto {
		r.logger.Warn("multiDrawIndirect not supported, issuing one draw per command")
	}
	return r, nil
}

// ResolveMultiDraw decides whether to issue multi-draws.
//
// Parameters:
//   - mode: the configured mode
//   - supported: whether the device has the feature
//
// Returns:
//   - bool: true for one multi-draw per table
//   - error: MultiDrawOn without support
func ResolveMultiDraw(mode config.MultiDrawMode, supported bool) (bool, error) {
	switch mode {
	case config.MultiDrawOff:
		return false, nil
	case config.MultiDrawOn:
		if !supported {
			return false, errors.New("renderer: multi_draw=on but the device lacks multiDrawIndirect")
		}
		return true, nil
	default:
		return supported, nil
	}
}

func (r *renderer) Load(ctx context.Context, s scene.Scene) (err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	defer func() {
		if err != nil {
			r.releaseBatches()
		}
	}()

	align := r.backend.MinOffsetAlignment()
	for _, d := range s.Drawables() {
		if d.Category.UsesCullPass() && r.culled != nil {
			return errors.Newf("renderer: %s and %s are both culled; one indirect ring per frame is supported",
				r.culled.Drawable.Name, d.Name)
		}

		p, err := packer.Pack(ctx, d, align)
		if err != nil {
			return errors.Wrapf(err, "renderer: pack %s", d.Name)
		}
		u, err := packer.Upload(ctx, r.backend, p, r.cfg.FramesInFlight)
		if err != nil {
			return errors.Wrapf(err, "renderer: upload %s", d.Name)
		}
		b := &Batch{Drawable: d, Packed: p, Uploaded: u}
		r.batches = append(r.batches, b)

		if err := r.backend.Prepare(p, u); err != nil {
			return errors.Wrapf(err, "renderer: prepare %s", d.Name)
		}
		if d.Category.UsesCullPass() {
			r.culled = b
		}
		if p.Clusters != nil {
			r.clusters += len(p.Clusters.Clusters)
		}
	}
	r.objects = s.ObjectCount()

	if r.culled != nil {
		graphics, compute := r.backend.QueueFamilies()
		protocol := ownership.NewProtocol(graphics, compute, r.cfg.FramesInFlight)
		for slot := range r.culled.Uploaded.Indirect {
			protocol.MarkUploaded(slot)
		}
		r.frame = ownership.NewFrame(protocol, r.backend, r.cfg.Timeout(), r.logger)
	}

	r.logger.Info("scene resident",
		"scene", s.Name(), "drawables", len(r.batches), "objects", r.objects,
		"clusters", r.clusters, "multi_draw", r.multiDraw, "culled", r.culled != nil)
	return nil
}

func (r *renderer) Batches() []*Batch {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*Batch(nil), r.batches...)
}

func (r *renderer) SetCamera(cam cull.Camera) {
	r.mu.Lock()
	r.camera = cam
	r.mu.Unlock()
}

func (r *renderer) CullTest() config.CullTest {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cullTest
}

func (r *renderer) SetCullTest(t config.CullTest) {
	r.mu.Lock()
	r.cullTest = t
	r.mu.Unlock()
}

func (r *renderer) MultiDraw() bool {
	return r.multiDraw
}

func (r *renderer) Render(ctx context.Context) (FrameStats, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := r.frameNo
	token, err := r.backend.PrepareFrame(ctx, n)
	if err != nil {
		return FrameStats{}, errors.Wrapf(err, "renderer: prepare frame %d", n)
	}

	objectCount := r.objects
	if r.culled != nil {
		objectCount = r.culled.Packed.ObjectCount
	}
	uniform := cull.SceneUniform(r.camera, uint32(objectCount), r.cullTest)
	if err := r.backend.WriteScene(token.Slot, uniform); err != nil {
		return FrameStats{}, errors.Wrapf(err, "renderer: frame %d scene", n)
	}

	stats := FrameStats{
		Frame:     n,
		Slot:      token.Slot,
		Objects:   r.objects,
		Clusters:  r.clusters,
		MultiDraw: r.multiDraw,
		Culled:    r.culled != nil,
	}
	draw := func(rec ownership.Recorder) error {
		for _, b := range r.batches {
			s, err := r.backend.RecordDraw(rec, b.Packed, b.Uploaded, token.Slot, r.multiDraw)
			if err != nil {
				return errors.Wrapf(err, "draw %s", b.Drawable.Name)
			}
			stats.Issued.Add(s)
		}
		return nil
	}

	if r.frame != nil {
		dispatch := func(rec ownership.Recorder) error {
			return r.backend.RecordCull(rec, r.culled.Packed, r.culled.Uploaded, token.Slot)
		}
		err = r.frame.Run(ctx, token, dispatch, draw)
	} else {
		err = r.backend.SubmitStatic(ctx, token.Slot, draw)
	}
	if err != nil {
		return FrameStats{}, err
	}

	if err := r.backend.SubmitFrame(ctx, token); err != nil {
		return FrameStats{}, errors.Wrapf(err, "renderer: submit frame %d", n)
	}
	stats.Device, stats.HasDevice = r.backend.DeviceStats(token.Slot)
	r.frameNo++
	return stats, nil
}

func (r *renderer) Resize(width, height int) {
	r.backend.Resize(width, height)
}

func (r *renderer) Release() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.releaseBatches()
	r.backend.Release()
}

func (r *renderer) releaseBatches() {
	for _, b := range r.batches {
		b.Uploaded.Release(r.backend)
	}
	r.batches = nil
	r.culled = nil
	r.frame = nil
	r.objects = 0
	r.clusters = 0
}
