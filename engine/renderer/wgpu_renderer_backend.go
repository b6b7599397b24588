package renderer

import (
	"context"
	"log/slog"
	"runtime"
	"sync"
	"time"

	"github.com/Carmen-Shannon/oxy-indirect/engine/config"
	"github.com/Carmen-Shannon/oxy-indirect/engine/renderer/cull"
	"github.com/Carmen-Shannon/oxy-indirect/engine/renderer/indirect"
	"github.com/Carmen-Shannon/oxy-indirect/engine/renderer/ownership"
	"github.com/Carmen-Shannon/oxy-indirect/engine/renderer/packer"
	"github.com/cockroachdb/errors"
	"github.com/cogentcore/webgpu/wgpu"
)

// WebGPU exposes a single queue, so the graphics and compute families coincide and every
// ownership barrier reduces to the implicit synchronisation between submissions.
const wgpuQueueFamily ownership.QueueFamily = 0

type wgpuBuffer struct {
	buf   *wgpu.Buffer
	label string
	size  uint64
}

func (b *wgpuBuffer) Label() string {
	return b.label
}

func (b *wgpuBuffer) Size() uint64 {
	return b.size
}

// wgpuFence signals once the queue has drained the work submitted before it was reset.
type wgpuFence struct {
	mu       sync.Mutex
	device   *wgpu.Device
	signaled bool
}

func (f *wgpuFence) Wait(timeout time.Duration) (bool, error) {
	deadline := time.Now().Add(timeout)
	for {
		f.mu.Lock()
		if !f.signaled && f.device.Poll(false, nil) {
			f.signaled = true
		}
		ok := f.signaled
		f.mu.Unlock()
		if ok {
			return true, nil
		}
		if !time.Now().Before(deadline) {
			return false, nil
		}
		time.Sleep(time.Millisecond)
	}
}

func (f *wgpuFence) Reset() error {
	f.mu.Lock()
	f.signaled = false
	f.mu.Unlock()
	return nil
}

// wgpuRecorder wraps whichever pass a submission opened. WebGPU tracks buffer usage itself, so
// barriers are only logged.
type wgpuRecorder struct {
	compute  *wgpu.ComputePassEncoder
	render   *wgpu.RenderPassEncoder
	barriers []ownership.Barrier
}

func (r *wgpuRecorder) PipelineBarrier(bs ...ownership.Barrier) {
	r.barriers = append(r.barriers, bs...)
}

type wgpuIssuer struct {
	pass *wgpu.RenderPassEncoder
	buf  *wgpu.Buffer
}

// DrawIndexedIndirect unrolls drawCount into single draws; WebGPU has no multi-draw.
func (is *wgpuIssuer) DrawIndexedIndirect(offset uint64, drawCount, stride uint32) {
	for i := uint32(0); i < drawCount; i++ {
		is.pass.DrawIndexedIndirect(is.buf, offset+uint64(i)*uint64(stride))
	}
}

type wgpuRendererBackendImpl struct {
	mu     *sync.Mutex
	logger *slog.Logger
	cfg    *config.Config

	device *wgpu.Device
	queue  *wgpu.Queue

	instance *wgpu.Instance
	adapter  *wgpu.Adapter
	surface  *wgpu.Surface

	alignment     uint64
	surfaceFormat wgpu.TextureFormat
	presentMode   wgpu.PresentMode
	depthTexture  *wgpu.Texture
	depthView     *wgpu.TextureView

	frameSurface *wgpu.Texture
	frameView    *wgpu.TextureView

	fences []*wgpuFence
	scenes []*wgpu.Buffer

	res     *wgpuResources
	batches map[*packer.Uploaded]*wgpuBatch
}

var _ Backend = &wgpuRendererBackendImpl{}

// WGPUBackendOption configures the WebGPU backend.
type WGPUBackendOption func(*wgpuRendererBackendImpl)

// WithPresentMode sets the surface present mode which controls how frames are delivered to the display.
//
// Parameters:
//   - mode: the PresentMode to use (VSync or Uncapped)
//
// Returns:
//   - WGPUBackendOption: a function that applies the present mode option
func WithPresentMode(mode PresentMode) WGPUBackendOption {
	return func(b *wgpuRendererBackendImpl) {
		switch mode {
		case PresentModeVSync:
			b.presentMode = wgpu.PresentModeFifo
		default:
			b.presentMode = wgpu.PresentModeImmediate
		}
	}
}

// WithBackendLogger sets the backend logger.
func WithBackendLogger(l *slog.Logger) WGPUBackendOption {
	return func(b *wgpuRendererBackendImpl) {
		b.logger = l
	}
}

// NewWGPUBackend creates the WebGPU device, configures the surface and builds the cull and
// render pipelines. The calling goroutine is locked to its OS thread.
//
// Parameters:
//   - surfaceDescriptor: the window surface, see window.Window.SurfaceDescriptor
//   - cfg: window size, ring depth, workgroup size and plant texture count
//   - forceFallbackAdapter: request a software adapter (lavapipe, SwiftShader)
//   - options: functional options
//
// Returns:
//   - Backend: the backend
//   - error: adapter, device or pipeline creation failure
func NewWGPUBackend(surfaceDescriptor *wgpu.SurfaceDescriptor, cfg *config.Config, forceFallbackAdapter bool, options ...WGPUBackendOption) (Backend, error) {
	runtime.LockOSThread()
	b := &wgpuRendererBackendImpl{
		mu:          &sync.Mutex{},
		cfg:         cfg,
		instance:    wgpu.CreateInstance(nil),
		presentMode: wgpu.PresentModeFifo,
		batches:     map[*packer.Uploaded]*wgpuBatch{},
	}
	if !cfg.Window.VSync {
		b.presentMode = wgpu.PresentModeImmediate
	}
	for _, opt := range options {
		opt(b)
	}
	if b.logger == nil {
		b.logger = slog.Default()
	}
	b.logger = b.logger.With("component", "wgpu")

	b.surface = b.instance.CreateSurface(surfaceDescriptor)

	a, err := b.instance.RequestAdapter(&wgpu.RequestAdapterOptions{
		ForceFallbackAdapter: forceFallbackAdapter,
		CompatibleSurface:    b.surface,
	})
	if err != nil {
		return nil, errors.Wrap(err, "wgpu: request adapter")
	}
	b.adapter = a

	supported := a.GetLimits()
	b.alignment = max(uint64(supported.Limits.MinStorageBufferOffsetAlignment),
		uint64(supported.Limits.MinUniformBufferOffsetAlignment))

	d, err := a.RequestDevice(&wgpu.DeviceDescriptor{
		Label: "Main Device",
		RequiredLimits: &wgpu.RequiredLimits{
			Limits: wgpu.DefaultLimits(),
		},
	})
	if err != nil {
		return nil, errors.Wrap(err, "wgpu: request device")
	}
	b.device = d
	b.queue = d.GetQueue()

	b.fences = make([]*wgpuFence, max(cfg.FramesInFlight, 1))
	b.scenes = make([]*wgpu.Buffer, len(b.fences))
	var block packer.GPUSceneUniform
	for i := range b.fences {
		b.fences[i] = &wgpuFence{device: d, signaled: true}
		b.scenes[i], err = d.CreateBuffer(&wgpu.BufferDescriptor{
			Label: "Scene Uniform",
			Size:  uint64(block.Size()),
			Usage: wgpu.BufferUsageUniform | wgpu.BufferUsageCopyDst,
		})
		if err != nil {
			return nil, errors.Wrap(err, "wgpu: scene uniform")
		}
	}

	b.Resize(cfg.Window.Width, cfg.Window.Height)

	if b.res, err = newWGPUResources(d, b.queue, b.surfaceFormat, cfg); err != nil {
		return nil, err
	}
	b.logger.Info("device ready", "alignment", b.alignment, "format", b.surfaceFormat)
	return b, nil
}

func (b *wgpuRendererBackendImpl) Name() string {
	return "wgpu"
}

// SupportsMultiDraw is false: core WebGPU draws one indirect command per call.
func (b *wgpuRendererBackendImpl) SupportsMultiDraw() bool {
	return false
}

func (b *wgpuRendererBackendImpl) QueueFamilies() (graphics, compute ownership.QueueFamily) {
	return wgpuQueueFamily, wgpuQueueFamily
}

func (b *wgpuRendererBackendImpl) MinOffsetAlignment() uint64 {
	return b.alignment
}

func wgpuUsage(u packer.BufferUsage) wgpu.BufferUsage {
	var out wgpu.BufferUsage
	pairs := []struct {
		from packer.BufferUsage
		to   wgpu.BufferUsage
	}{
		{packer.UsageVertex, wgpu.BufferUsageVertex},
		{packer.UsageIndex, wgpu.BufferUsageIndex},
		{packer.UsageUniform, wgpu.BufferUsageUniform},
		{packer.UsageStorage, wgpu.BufferUsageStorage},
		{packer.UsageIndirect, wgpu.BufferUsageIndirect},
		{packer.UsageCopySrc, wgpu.BufferUsageCopySrc},
		{packer.UsageCopyDst, wgpu.BufferUsageCopyDst},
	}
	for _, p := range pairs {
		if u.Has(p.from) {
			out |= p.to
		}
	}
	return out
}

// CreateBuffer allocates a buffer. Initial data is written through a mapped-at-creation buffer,
// the WebGPU form of host-visible memory.
func (b *wgpuRendererBackendImpl) CreateBuffer(desc packer.BufferDesc, data []byte) (packer.Buffer, error) {
	if data != nil && desc.Memory != packer.MemoryHostVisible {
		return nil, errors.Newf("wgpu: %s is device-local and cannot be initialised from the host", desc.Label)
	}
	usage := wgpuUsage(desc.Usage)
	if desc.Memory == packer.MemoryHostVisible {
		usage |= wgpu.BufferUsageCopyDst
	}

	var (
		buf *wgpu.Buffer
		err error
	)
	if data != nil {
		contents := make([]byte, desc.Size)
		copy(contents, data)
		buf, err = b.device.CreateBufferInit(&wgpu.BufferInitDescriptor{
			Label:    desc.Label,
			Contents: contents,
			Usage:    usage,
		})
	} else {
		buf, err = b.device.CreateBuffer(&wgpu.BufferDescriptor{
			Label: desc.Label,
			Size:  desc.Size,
			Usage: usage,
		})
	}
	if err != nil {
		return nil, errors.Wrapf(err, "wgpu: create %s", desc.Label)
	}
	return &wgpuBuffer{buf: buf, label: desc.Label, size: desc.Size}, nil
}

func ownBuffer(p packer.Buffer) (*wgpuBuffer, error) {
	w, ok := p.(*wgpuBuffer)
	if !ok || w == nil {
		return nil, errors.Newf("wgpu: foreign buffer %T", p)
	}
	return w, nil
}

// CopyBuffer submits a buffer-to-buffer copy and blocks until the queue has drained it.
func (b *wgpuRendererBackendImpl) CopyBuffer(ctx context.Context, src, dst packer.Buffer, size uint64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s, err := ownBuffer(src)
	if err != nil {
		return err
	}
	d, err := ownBuffer(dst)
	if err != nil {
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	encoder, err := b.device.CreateCommandEncoder(nil)
	if err != nil {
		return err
	}
	defer encoder.Release()
	if err := encoder.CopyBufferToBuffer(s.buf, 0, d.buf, 0, size); err != nil {
		return errors.Wrapf(err, "wgpu: copy %s -> %s", s.label, d.label)
	}
	cmd, err := encoder.Finish(nil)
	if err != nil {
		return err
	}
	defer cmd.Release()
	b.queue.Submit(cmd)
	b.device.Poll(true, nil)
	return nil
}

func (b *wgpuRendererBackendImpl) DestroyBuffer(p packer.Buffer) {
	w, err := ownBuffer(p)
	if err != nil {
		return
	}
	w.buf.Destroy()
	w.buf.Release()
}

func (b *wgpuRendererBackendImpl) Fence(slot int) ownership.Fence {
	return b.fences[slot%len(b.fences)]
}

func (b *wgpuRendererBackendImpl) WriteScene(slot int, u packer.GPUSceneUniform) error {
	b.queue.WriteBuffer(b.scenes[slot%len(b.scenes)], 0, u.Marshal())
	return nil
}

func (b *wgpuRendererBackendImpl) Prepare(p *packer.Packed, u *packer.Uploaded) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	batch, err := b.res.bind(p, u, b.scenes)
	if err != nil {
		return errors.Wrapf(err, "wgpu: bind %s", p.Name)
	}
	b.batches[u] = batch
	return nil
}

// SubmitCompute records one compute pass and submits it. Queue order stands in for the semaphore.
func (b *wgpuRendererBackendImpl) SubmitCompute(ctx context.Context, slot int, record func(ownership.Recorder) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	encoder, err := b.device.CreateCommandEncoder(nil)
	if err != nil {
		return err
	}
	defer encoder.Release()

	rec := &wgpuRecorder{compute: encoder.BeginComputePass(nil)}
	recErr := record(rec)
	rec.compute.End()
	if recErr != nil {
		return recErr
	}
	cmd, err := encoder.Finish(nil)
	if err != nil {
		return err
	}
	defer cmd.Release()
	b.queue.Submit(cmd)
	b.logger.Debug("compute submitted", "slot", slot, "barriers", len(rec.barriers))
	return nil
}

func (b *wgpuRendererBackendImpl) SubmitGraphics(ctx context.Context, slot int, record func(ownership.Recorder) error) error {
	return b.submitRender(ctx, record)
}

func (b *wgpuRendererBackendImpl) SubmitStatic(ctx context.Context, slot int, record func(ownership.Recorder) error) error {
	return b.submitRender(ctx, record)
}

func (b *wgpuRendererBackendImpl) submitRender(ctx context.Context, record func(ownership.Recorder) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b.mu.Lock()
	view := b.frameView
	b.mu.Unlock()
	if view == nil {
		return errors.New("wgpu: graphics submit outside PrepareFrame/SubmitFrame")
	}

	encoder, err := b.device.CreateCommandEncoder(nil)
	if err != nil {
		return err
	}
	defer encoder.Release()

	pass := encoder.BeginRenderPass(&wgpu.RenderPassDescriptor{
		ColorAttachments: []wgpu.RenderPassColorAttachment{{
			View:       view,
			LoadOp:     wgpu.LoadOpClear,
			StoreOp:    wgpu.StoreOpStore,
			ClearValue: wgpu.Color{R: 0.1, G: 0.1, B: 0.1, A: 1.0},
		}},
		DepthStencilAttachment: &wgpu.RenderPassDepthStencilAttachment{
			View:            b.depthView,
			DepthLoadOp:     wgpu.LoadOpClear,
			DepthStoreOp:    wgpu.StoreOpDiscard,
			DepthClearValue: 1.0,
		},
	})
	rec := &wgpuRecorder{render: pass}
	recErr := record(rec)
	pass.End()
	if recErr != nil {
		return recErr
	}
	cmd, err := encoder.Finish(nil)
	if err != nil {
		return err
	}
	defer cmd.Release()
	b.queue.Submit(cmd)
	return nil
}

func (b *wgpuRendererBackendImpl) batch(rec ownership.Recorder, u *packer.Uploaded) (*wgpuRecorder, *wgpuBatch, error) {
	r, ok := rec.(*wgpuRecorder)
	if !ok {
		return nil, nil, errors.Newf("wgpu: foreign recorder %T", rec)
	}
	b.mu.Lock()
	bt := b.batches[u]
	b.mu.Unlock()
	if bt == nil {
		return nil, nil, errors.Newf("wgpu: %s was not prepared", u.Name)
	}
	return r, bt, nil
}

// RecordCull zeroes the slot's instance counts, then runs one invocation per instance.
func (b *wgpuRendererBackendImpl) RecordCull(rec ownership.Recorder, p *packer.Packed, u *packer.Uploaded, slot int) error {
	r, bt, err := b.batch(rec, u)
	if err != nil {
		return err
	}
	if r.compute == nil || bt.cull == nil {
		return errors.Newf("wgpu: %s cannot be culled in this submission", p.Name)
	}
	lgs := uint32(b.cfg.LocalGroupSize)
	bg := bt.cull[slot%len(bt.cull)].BindGroup()

	r.compute.SetPipeline(b.res.reset)
	r.compute.SetBindGroup(0, bg, nil)
	r.compute.DispatchWorkgroups(cull.GroupCount(uint32(len(p.Commands)), lgs), 1, 1)

	r.compute.SetPipeline(b.res.cull)
	r.compute.SetBindGroup(0, bg, nil)
	r.compute.DispatchWorkgroups(cull.GroupCount(uint32(p.ObjectCount), lgs), 1, 1)
	return nil
}

func (b *wgpuRendererBackendImpl) RecordDraw(rec ownership.Recorder, p *packer.Packed, u *packer.Uploaded, slot int, multiDraw bool) (indirect.Stats, error) {
	r, bt, err := b.batch(rec, u)
	if err != nil {
		return indirect.Stats{}, err
	}
	if r.render == nil {
		return indirect.Stats{}, errors.Newf("wgpu: draw of %s outside a render pass", p.Name)
	}
	pass := r.render
	pass.SetPipeline(bt.pipeline)
	pass.SetBindGroup(0, bt.render[slot%len(bt.render)].BindGroup(), nil)
	if p.Clusters != nil {
		c, err := ownBuffer(u.Clusters)
		if err != nil {
			return indirect.Stats{}, err
		}
		idx, err := ownBuffer(u.ClusterIndices)
		if err != nil {
			return indirect.Stats{}, err
		}
		pass.SetVertexBuffer(0, c.buf, 0, wgpu.WholeSize)
		pass.SetIndexBuffer(idx.buf, wgpu.IndexFormatUint32, 0, wgpu.WholeSize)
	} else {
		v, err := ownBuffer(u.Vertices)
		if err != nil {
			return indirect.Stats{}, err
		}
		// culled drawables read the instances the cull kernel compacted for this slot
		inst, err := ownBuffer(u.InstancesFor(uint64(slot)))
		if err != nil {
			return indirect.Stats{}, err
		}
		idx, err := ownBuffer(u.Indices)
		if err != nil {
			return indirect.Stats{}, err
		}
		pass.SetVertexBuffer(0, v.buf, 0, wgpu.WholeSize)
		pass.SetVertexBuffer(1, inst.buf, 0, wgpu.WholeSize)
		pass.SetIndexBuffer(idx.buf, wgpu.IndexFormatUint32, 0, wgpu.WholeSize)
	}

	cmds, err := ownBuffer(u.IndirectFor(uint64(slot)))
	if err != nil {
		return indirect.Stats{}, err
	}
	return indirect.Submit(&wgpuIssuer{pass: pass, buf: cmds.buf}, p.DrawTable(), multiDraw), nil
}

// PrepareFrame acquires the next swapchain texture.
func (b *wgpuRendererBackendImpl) PrepareFrame(ctx context.Context, n uint64) (ownership.FrameToken, error) {
	if err := ctx.Err(); err != nil {
		return ownership.FrameToken{}, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	// A held texture means the previous frame was never presented; acquiring again would fail
	// with "Surface image is already acquired".
	if b.frameSurface != nil {
		b.releaseFrame()
	}
	tex, err := b.surface.GetCurrentTexture()
	if err != nil {
		return ownership.FrameToken{}, errors.Wrap(err, "wgpu: acquire surface texture")
	}
	view, err := tex.CreateView(nil)
	if err != nil {
		tex.Release()
		return ownership.FrameToken{}, err
	}
	b.frameSurface = tex
	b.frameView = view
	return ownership.FrameToken{Frame: n, Slot: ownership.SlotFor(n, len(b.fences))}, nil
}

// SubmitFrame presents the acquired texture.
func (b *wgpuRendererBackendImpl) SubmitFrame(ctx context.Context, t ownership.FrameToken) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.frameSurface == nil {
		return errors.Newf("wgpu: frame %d submitted without an acquired texture", t.Frame)
	}
	b.surface.Present()
	b.releaseFrame()
	return nil
}

// DeviceStats reports nothing: the surface backend reads no counters back from the device.
func (b *wgpuRendererBackendImpl) DeviceStats(slot int) (indirect.DeviceStats, bool) {
	return indirect.DeviceStats{}, false
}

func (b *wgpuRendererBackendImpl) releaseFrame() {
	if b.frameView != nil {
		b.frameView.Release()
		b.frameView = nil
	}
	if b.frameSurface != nil {
		b.frameSurface.Release()
		b.frameSurface = nil
	}
}

// Resize reconfigures the surface and recreates the depth texture.
func (b *wgpuRendererBackendImpl) Resize(width, height int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if width <= 0 || height <= 0 {
		return
	}

	capabilities := b.surface.GetCapabilities(b.adapter)
	b.surfaceFormat = capabilities.Formats[0]

	b.surface.Configure(b.adapter, b.device, &wgpu.SurfaceConfiguration{
		Usage:       wgpu.TextureUsageRenderAttachment,
		Format:      b.surfaceFormat,
		Width:       uint32(width),
		Height:      uint32(height),
		PresentMode: b.presentMode,
		AlphaMode:   capabilities.AlphaModes[0],
	})

	if b.depthView != nil {
		b.depthView.Release()
		b.depthTexture.Release()
	}
	depth, err := b.device.CreateTexture(&wgpu.TextureDescriptor{
		Label: "Depth Texture",
		Size: wgpu.Extent3D{
			Width:              uint32(width),
			Height:             uint32(height),
			DepthOrArrayLayers: 1,
		},
		MipLevelCount: 1,
		SampleCount:   1,
		Dimension:     wgpu.TextureDimension2D,
		Format:        wgpu.TextureFormatDepth24Plus,
		Usage:         wgpu.TextureUsageRenderAttachment,
	})
	if err != nil {
		b.logger.Error("depth texture", "error", err)
		return
	}
	view, err := depth.CreateView(nil)
	if err != nil {
		depth.Release()
		b.logger.Error("depth view", "error", err)
		return
	}
	b.depthTexture, b.depthView = depth, view
}

func (b *wgpuRendererBackendImpl) Release() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.releaseFrame()
	for u, bt := range b.batches {
		bt.release()
		delete(b.batches, u)
	}
	if b.res != nil {
		b.res.release()
		b.res = nil
	}
	for i, s := range b.scenes {
		if s != nil {
			s.Release()
			b.scenes[i] = nil
		}
	}
	if b.depthView != nil {
		b.depthView.Release()
		b.depthTexture.Release()
		b.depthView, b.depthTexture = nil, nil
	}
	if b.device != nil {
		b.queue.Release()
		b.device.Release()
		b.device = nil
	}
	if b.adapter != nil {
		b.adapter.Release()
		b.adapter = nil
	}
	if b.surface != nil {
		b.surface.Release()
		b.surface = nil
	}
	if b.instance != nil {
		b.instance.Release()
		b.instance = nil
	}
}
