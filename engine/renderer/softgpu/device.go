// Package softgpu is an in-memory device: it allocates buffers in host memory, executes the cull
// kernel through the host reference pass and accounts for indirect draws. It enforces the rules
// a real driver or validation layer would: device-local memory is written only through staging
// copies, multi-draw needs the feature, and the indirect buffer is touched only by the queue
// family that owns it.
package softgpu

import (
	"context"
	"encoding/binary"
	"log/slog"
	"sync"
	"time"

	"github.com/Carmen-Shannon/automation/tools/worker"
	"github.com/Carmen-Shannon/oxy-indirect/engine/renderer/cull"
	"github.com/Carmen-Shannon/oxy-indirect/engine/renderer/indirect"
	"github.com/Carmen-Shannon/oxy-indirect/engine/renderer/ownership"
	"github.com/Carmen-Shannon/oxy-indirect/engine/renderer/packer"
	"github.com/cockroachdb/errors"
)

// Device is the software device.
type Device struct {
	mu             sync.Mutex
	alignment      uint64
	multiDraw      bool
	graphics       ownership.QueueFamily
	compute        ownership.QueueFamily
	localGroupSize uint32
	pool           worker.DynamicWorkerPool
	logger         *slog.Logger

	live       map[*Buffer]struct{}
	fences     []*Fence
	semaphores []bool
	owner      map[int]ownership.QueueFamily
	pending    map[int]ownership.Barrier
	barriers   []ownership.Barrier
	drawn      indirect.Stats
	dispatches int

	// Per-frame observations, cleared by PrepareFrame and published per slot by SubmitFrame.
	frameDrawn     indirect.Stats
	drawnInstances []packer.GPUInstance
	reports        []indirect.DeviceStats

	scenes    []packer.Buffer
	inFrame   bool
	presented int
	prepared  int
}

var (
	_ packer.Uploader  = &Device{}
	_ ownership.Queues = &Device{}
)

// Option configures a Device.
type Option func(*Device)

// WithMultiDraw sets whether the device reports the multi-draw indirect feature.
func WithMultiDraw(enabled bool) Option {
	return func(d *Device) {
		d.multiDraw = enabled
	}
}

// WithQueueFamilies sets the graphics and compute family indices. Equal values model a device
// with a single family.
func WithQueueFamilies(graphics, compute ownership.QueueFamily) Option {
	return func(d *Device) {
		d.graphics = graphics
		d.compute = compute
	}
}

// WithAlignment sets the minimum storage offset alignment.
func WithAlignment(a uint64) Option {
	return func(d *Device) {
		d.alignment = a
	}
}

// WithFramesInFlight sets how many per-slot fences and semaphores exist.
func WithFramesInFlight(n int) Option {
	return func(d *Device) {
		d.fences = make([]*Fence, max(n, 1))
	}
}

// WithLocalGroupSize sets the cull workgroup size.
func WithLocalGroupSize(n uint32) Option {
	return func(d *Device) {
		d.localGroupSize = n
	}
}

// WithWorkerPool sets the pool workgroups run on.
func WithWorkerPool(p worker.DynamicWorkerPool) Option {
	return func(d *Device) {
		d.pool = p
	}
}

// WithLogger sets the device logger.
func WithLogger(l *slog.Logger) Option {
	return func(d *Device) {
		d.logger = l
	}
}

// New creates a software device. Defaults: separate graphics (0) and compute (1) families, no
// multi-draw, 256-byte alignment, two frames in flight, 64-wide workgroups.
func New(opts ...Option) *Device {
	d := &Device{
		alignment:      256,
		graphics:       0,
		compute:        1,
		localGroupSize: 64,
		fences:         make([]*Fence, 2),
		live:           map[*Buffer]struct{}{},
		owner:          map[int]ownership.QueueFamily{},
		pending:        map[int]ownership.Barrier{},
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.pool == nil {
		d.pool = worker.NewDynamicWorkerPool(4, 256, 1*time.Second)
	}
	if d.logger == nil {
		d.logger = slog.Default()
	}
	d.logger = d.logger.With("component", "softgpu")
	for i := range d.fences {
		d.fences[i] = newFence()
	}
	d.semaphores = make([]bool, len(d.fences))
	d.reports = make([]indirect.DeviceStats, len(d.fences))
	return d
}

// SupportsMultiDraw reports the multi-draw indirect feature.
func (d *Device) SupportsMultiDraw() bool {
	return d.multiDraw
}

// QueueFamilies returns the graphics and compute family indices.
func (d *Device) QueueFamilies() (graphics, compute ownership.QueueFamily) {
	return d.graphics, d.compute
}

func (d *Device) MinOffsetAlignment() uint64 {
	return d.alignment
}

// CreateBuffer allocates a buffer. Only host-visible buffers accept initial data.
func (d *Device) CreateBuffer(desc packer.BufferDesc, data []byte) (packer.Buffer, error) {
	if desc.Size == 0 {
		return nil, errors.Newf("softgpu: %s has zero size", desc.Label)
	}
	if data != nil && desc.Memory != packer.MemoryHostVisible {
		return nil, errors.Newf("softgpu: %s is device-local and cannot be mapped", desc.Label)
	}
	if uint64(len(data)) > desc.Size {
		return nil, errors.Newf("softgpu: %d bytes do not fit %s (%d bytes)", len(data), desc.Label, desc.Size)
	}
	b := &Buffer{label: desc.Label, usage: desc.Usage, memory: desc.Memory, data: make([]byte, desc.Size)}
	copy(b.data, data)

	d.mu.Lock()
	d.live[b] = struct{}{}
	d.mu.Unlock()
	return b, nil
}

// CopyBuffer copies size bytes from src to dst. The copy completes before it returns.
func (d *Device) CopyBuffer(ctx context.Context, src, dst packer.Buffer, size uint64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s, err := own(src)
	if err != nil {
		return err
	}
	t, err := own(dst)
	if err != nil {
		return err
	}
	if !s.usage.Has(packer.UsageCopySrc) {
		return errors.Newf("softgpu: %s lacks copy-src usage", s.label)
	}
	if !t.usage.Has(packer.UsageCopyDst) {
		return errors.Newf("softgpu: %s lacks copy-dst usage", t.label)
	}
	data, err := s.read(0, size)
	if err != nil {
		return err
	}
	return t.write(0, data)
}

func (d *Device) DestroyBuffer(b packer.Buffer) {
	sb, ok := b.(*Buffer)
	if !ok {
		return
	}
	sb.mu.Lock()
	sb.destroyed = true
	sb.mu.Unlock()

	d.mu.Lock()
	delete(d.live, sb)
	d.mu.Unlock()
}

// WriteBuffer updates a host-visible buffer, as a per-frame uniform write does.
func (d *Device) WriteBuffer(b packer.Buffer, offset uint64, data []byte) error {
	sb, err := own(b)
	if err != nil {
		return err
	}
	if sb.memory != packer.MemoryHostVisible && !sb.usage.Has(packer.UsageCopyDst) {
		return errors.Newf("softgpu: %s is not writable from the host", sb.label)
	}
	return sb.write(offset, data)
}

// Live returns the number of buffers not yet destroyed.
func (d *Device) Live() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.live)
}

// Fence returns the compute fence of a ring slot.
func (d *Device) Fence(slot int) ownership.Fence {
	return d.fences[slot%len(d.fences)]
}

// HoldFence keeps a slot's fence unsignalled after the next submission.
func (d *Device) HoldFence(slot int, hold bool) {
	f := d.fences[slot%len(d.fences)]
	f.mu.Lock()
	f.hold = hold
	f.mu.Unlock()
}

// SubmitCompute records and executes compute work, then signals the slot's semaphore and fence.
func (d *Device) SubmitCompute(ctx context.Context, slot int, record func(ownership.Recorder) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c := &Commands{dev: d, family: d.compute, slot: slot}
	if err := record(c); err != nil {
		return err
	}
	if c.err != nil {
		return c.err
	}

	d.mu.Lock()
	d.semaphores[slot%len(d.semaphores)] = true
	d.mu.Unlock()
	d.fences[slot%len(d.fences)].signal()
	return nil
}

// SubmitGraphics records and executes graphics work after waiting on the slot's semaphore.
func (d *Device) SubmitGraphics(ctx context.Context, slot int, record func(ownership.Recorder) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	d.mu.Lock()
	i := slot % len(d.semaphores)
	if !d.semaphores[i] {
		d.mu.Unlock()
		return errors.Newf("softgpu: graphics submit for slot %d waits on an unsignalled semaphore", slot)
	}
	d.semaphores[i] = false
	d.mu.Unlock()

	return d.graphicsOnly(slot, record)
}

// SubmitDraw records and executes graphics work that does not depend on a compute pass.
func (d *Device) SubmitDraw(ctx context.Context, record func(*Commands) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return d.graphicsOnly(-1, func(r ownership.Recorder) error {
		return record(r.(*Commands))
	})
}

func (d *Device) graphicsOnly(slot int, record func(ownership.Recorder) error) error {
	c := &Commands{dev: d, family: d.graphics, slot: slot}
	if err := record(c); err != nil {
		return err
	}
	return c.err
}

// Barriers returns every barrier executed so far.
func (d *Device) Barriers() []ownership.Barrier {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]ownership.Barrier(nil), d.barriers...)
}

// Drawn returns the accumulated draw statistics as read from the indirect buffers at draw time.
func (d *Device) Drawn() indirect.Stats {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.drawn
}

// ResetDrawn clears the draw statistics, typically once per frame.
func (d *Device) ResetDrawn() {
	d.mu.Lock()
	d.drawn = indirect.Stats{}
	d.drawnInstances = nil
	d.mu.Unlock()
}

// DrawnInstances returns the instance rows the vertex stage fetched since the last PrepareFrame or
// ResetDrawn, in draw order. Draws with no instance stream bound contribute nothing.
func (d *Device) DrawnInstances() []packer.GPUInstance {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]packer.GPUInstance(nil), d.drawnInstances...)
}

// Dispatches returns the number of cull dispatches executed.
func (d *Device) Dispatches() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dispatches
}

func (d *Device) shared() bool {
	return d.graphics == d.compute
}

// ownerOf returns the family owning a ring slot; slots start with graphics, which performs uploads.
func (d *Device) ownerOf(slot int) ownership.QueueFamily {
	if f, ok := d.owner[slot]; ok {
		return f
	}
	return d.graphics
}

func (d *Device) barrier(family ownership.QueueFamily, b ownership.Barrier) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.barriers = append(d.barriers, b)
	if !b.Transfers() {
		return nil
	}

	switch b.Phase {
	case ownership.PhaseComputeRelease, ownership.PhaseGraphicsRelease:
		if family != b.SrcFamily {
			return errors.Newf("softgpu: %s for slot %d recorded on family %d, releasing family is %d", b.Phase, b.Slot, family, b.SrcFamily)
		}
		if owner := d.ownerOf(b.Slot); owner != family {
			return errors.Newf("softgpu: family %d releases slot %d owned by %d", family, b.Slot, owner)
		}
		d.pending[b.Slot] = b
		d.owner[b.Slot] = ownership.QueueFamilyIgnored
	default:
		if family != b.DstFamily {
			return errors.Newf("softgpu: %s for slot %d recorded on family %d, acquiring family is %d", b.Phase, b.Slot, family, b.DstFamily)
		}
		rel, ok := d.pending[b.Slot]
		switch {
		case ok && (rel.SrcFamily != b.SrcFamily || rel.DstFamily != b.DstFamily):
			return errors.Newf("softgpu: %s for slot %d does not match pending %s", b.Phase, b.Slot, rel.Phase)
		case !ok && d.ownerOf(b.Slot) != b.SrcFamily:
			return errors.Newf("softgpu: %s for slot %d without a release", b.Phase, b.Slot)
		}
		delete(d.pending, b.Slot)
		d.owner[b.Slot] = family
	}
	return nil
}

func (d *Device) checkOwner(family ownership.QueueFamily, slot int, what string) error {
	if slot < 0 || d.shared() {
		return nil
	}
	d.mu.Lock()
	owner := d.ownerOf(slot)
	d.mu.Unlock()
	if owner != family {
		return errors.Newf("softgpu: %s on family %d but slot %d is owned by %d", what, family, slot, owner)
	}
	return nil
}

func own(b packer.Buffer) (*Buffer, error) {
	sb, ok := b.(*Buffer)
	if !ok || sb == nil {
		return nil, errors.Newf("softgpu: foreign buffer %T", b)
	}
	return sb, nil
}

// DispatchArgs are the buffers bound to the cull kernel.
type DispatchArgs struct {
	Scene        packer.Buffer
	Primitives   packer.Binding
	Instances    packer.Buffer
	Commands     packer.Buffer
	CommandCount int
	Groups       uint32

	// Visible receives each surviving instance at its command's FirstInstance plus its place in
	// the command's count. When nil only the counts are written.
	Visible packer.Buffer
}

// Commands records work for one submission. Work executes as it is recorded.
type Commands struct {
	dev       *Device
	family    ownership.QueueFamily
	slot      int
	instances *Buffer
	err       error
}

var _ ownership.Recorder = &Commands{}

func (c *Commands) fail(err error) {
	if c.err == nil && err != nil {
		c.err = err
	}
}

// Err returns the first error recorded.
func (c *Commands) Err() error {
	return c.err
}

func (c *Commands) PipelineBarrier(bs ...ownership.Barrier) {
	for _, b := range bs {
		c.fail(c.dev.barrier(c.family, b))
	}
}

// Dispatch runs the cull kernel over the bound buffers and writes the counts.
func (c *Commands) Dispatch(args DispatchArgs) {
	if c.err != nil {
		return
	}
	if c.family != c.dev.compute {
		c.fail(errors.New("softgpu: dispatch recorded outside a compute submission"))
		return
	}
	c.fail(c.checkedDispatch(args))
}

func (c *Commands) checkedDispatch(args DispatchArgs) error {
	if err := c.dev.checkOwner(c.family, c.slot, "cull dispatch"); err != nil {
		return err
	}
	scene, err := own(args.Scene)
	if err != nil {
		return err
	}
	prims, err := own(args.Primitives.Buffer)
	if err != nil {
		return err
	}
	insts, err := own(args.Instances)
	if err != nil {
		return err
	}
	cmds, err := own(args.Commands)
	if err != nil {
		return err
	}

	u, err := scene.read(0, scene.Size())
	if err != nil {
		return err
	}
	p, err := prims.read(args.Primitives.Offset, args.Primitives.Size)
	if err != nil {
		return err
	}
	i, err := insts.read(0, insts.Size())
	if err != nil {
		return err
	}
	in, err := cull.DecodeInputs(u, p, i)
	if err != nil {
		return err
	}
	in.Scene.ObjectCount = min(in.Scene.ObjectCount, args.Groups*c.dev.localGroupSize)

	counts := make([]uint32, args.CommandCount)
	pass := cull.NewPass(c.dev.pool, c.dev.localGroupSize)
	if args.Visible == nil {
		if err := pass.Run(in, counts); err != nil {
			return err
		}
	} else if err := c.compact(pass, in, i, cmds, args, counts); err != nil {
		return err
	}
	var word [4]byte
	for j, n := range counts {
		binary.LittleEndian.PutUint32(word[:], n)
		if err := cmds.write(indirect.ByteOffset(j)+indirect.InstanceCountOffset, word[:]); err != nil {
			return err
		}
	}

	c.dev.mu.Lock()
	c.dev.dispatches++
	c.dev.mu.Unlock()
	return nil
}

// compact runs the pass with a remap and copies every surviving instance row into the visible
// buffer, so draws reading that buffer fetch exactly the visible instances.
func (c *Commands) compact(pass *cull.Pass, in cull.Inputs, rows []byte, cmds *Buffer, args DispatchArgs, counts []uint32) error {
	vis, err := own(args.Visible)
	if err != nil {
		return err
	}
	raw, err := cmds.read(0, cmds.Size())
	if err != nil {
		return err
	}
	t, err := indirect.Decode(raw, args.CommandCount)
	if err != nil {
		return err
	}
	var g packer.GPUInstance
	stride := uint64(g.Size())
	first := make([]uint32, len(t))
	for j := range t {
		first[j] = t[j].FirstInstance
	}
	remap := make([]uint32, vis.Size()/stride)
	if err := pass.Compact(in, first, counts, remap); err != nil {
		return err
	}
	for j, n := range counts {
		for k := first[j]; k < first[j]+n; k++ {
			src := uint64(remap[k]) * stride
			if err := vis.write(uint64(k)*stride, rows[src:src+stride]); err != nil {
				return err
			}
		}
	}
	return nil
}

// BindInstances binds the per-instance vertex stream later draws fetch from.
func (c *Commands) BindInstances(buf packer.Buffer) {
	b, err := own(buf)
	c.fail(err)
	c.instances = b
}

// BindIndirect binds an indirect buffer for drawing. ring marks a cull ring slot, whose
// ownership is checked on every draw.
func (c *Commands) BindIndirect(buf packer.Buffer, ring bool) indirect.DrawIssuer {
	b, err := own(buf)
	c.fail(err)
	return &issuer{cmds: c, buf: b, ring: ring}
}

type issuer struct {
	cmds *Commands
	buf  *Buffer
	ring bool
}

func (is *issuer) DrawIndexedIndirect(offset uint64, drawCount, stride uint32) {
	c := is.cmds
	if c.err != nil || is.buf == nil {
		return
	}
	if drawCount > 1 && !c.dev.multiDraw {
		c.fail(errors.Newf("softgpu: drawCount %d without multi-draw indirect", drawCount))
		return
	}
	if drawCount > 1 && stride != indirect.CommandStride {
		c.fail(errors.Newf("softgpu: stride %d, commands are %d bytes", stride, indirect.CommandStride))
		return
	}
	if err := indirect.CheckRange(is.buf.Size(), offset, drawCount, stride); err != nil {
		c.fail(err)
		return
	}
	if is.ring {
		if err := c.dev.checkOwner(c.family, c.slot, "indirect draw"); err != nil {
			c.fail(err)
			return
		}
	}
	raw := is.buf.Bytes()
	t, err := indirect.Decode(raw, len(raw)/indirect.CommandStride)
	if err != nil {
		c.fail(err)
		return
	}
	fetched, err := c.fetchInstances(t, offset, drawCount)
	if err != nil {
		c.fail(err)
		return
	}
	s := indirect.Aggregate(t, offset, drawCount)
	c.dev.mu.Lock()
	c.dev.drawn.Add(s)
	c.dev.frameDrawn.Add(s)
	c.dev.drawnInstances = append(c.dev.drawnInstances, fetched...)
	c.dev.mu.Unlock()
}

// fetchInstances reads the rows the vertex stage would fetch for drawCount commands at offset:
// InstanceCount rows starting at FirstInstance of the bound instance stream.
func (c *Commands) fetchInstances(t indirect.Table, offset uint64, drawCount uint32) ([]packer.GPUInstance, error) {
	if c.instances == nil {
		return nil, nil
	}
	var g packer.GPUInstance
	stride := uint64(g.Size())
	var out []packer.GPUInstance
	first := int(offset / indirect.CommandStride)
	for j := first; j < first+int(drawCount) && j < len(t); j++ {
		cmd := t[j]
		if cmd.InstanceCount == 0 {
			continue
		}
		raw, err := c.instances.read(uint64(cmd.FirstInstance)*stride, uint64(cmd.InstanceCount)*stride)
		if err != nil {
			return nil, errors.Wrapf(err, "softgpu: draw %d fetches instances past the bound stream", j)
		}
		for k := uint64(0); k < uint64(cmd.InstanceCount); k++ {
			inst, err := packer.UnmarshalInstance(raw[k*stride:])
			if err != nil {
				return nil, err
			}
			out = append(out, inst)
		}
	}
	return out, nil
}
