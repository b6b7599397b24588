package packer

import (
	"context"
	"log/slog"

	"github.com/cockroachdb/errors"
)

// BufferUsage is a set of ways a buffer may be bound.
type BufferUsage uint32

const (
	UsageVertex BufferUsage = 1 << iota
	UsageIndex
	UsageUniform
	UsageStorage
	UsageIndirect
	UsageCopySrc
	UsageCopyDst
)

// Has reports whether every bit of o is set in u.
func (u BufferUsage) Has(o BufferUsage) bool {
	return u&o == o
}

// MemoryKind selects where a buffer lives.
type MemoryKind uint8

const (
	// MemoryDeviceLocal is GPU-only memory; it is filled by copy.
	MemoryDeviceLocal MemoryKind = iota
	// MemoryHostVisible is host-visible, coherent memory used for staging and per-frame uniforms.
	MemoryHostVisible
)

// BufferDesc describes a buffer to create.
type BufferDesc struct {
	Label  string
	Size   uint64
	Usage  BufferUsage
	Memory MemoryKind
}

// Buffer is a device buffer handle owned by an Uploader implementation.
type Buffer interface {
	Label() string
	Size() uint64
}

// Uploader is the low-level allocation surface every backend exposes.
type Uploader interface {
	// CreateBuffer allocates a buffer. Non-nil data is written at creation, which requires host
	// visible memory.
	CreateBuffer(desc BufferDesc, data []byte) (Buffer, error)

	// CopyBuffer copies size bytes from src to dst and returns once the copy has completed on the
	// transfer queue.
	CopyBuffer(ctx context.Context, src, dst Buffer, size uint64) error

	// DestroyBuffer releases a buffer.
	DestroyBuffer(b Buffer)

	// MinOffsetAlignment is the device's minimum storage/uniform buffer offset alignment.
	MinOffsetAlignment() uint64
}

// Stage uploads data into a new device-local buffer through a transient host-visible staging
// buffer. The staging buffer is destroyed before Stage returns. Any failure leaves no buffer behind.
//
// Parameters:
//   - ctx: bounds the copy wait
//   - up: the backend allocator
//   - label: debug label of the destination
//   - usage: destination usage; UsageCopyDst is added
//   - data: contents, must be non-empty
//
// Returns:
//   - Buffer: the populated device-local buffer
//   - error: a create or copy failure
func Stage(ctx context.Context, up Uploader, label string, usage BufferUsage, data []byte) (Buffer, error) {
	if len(data) == 0 {
		return nil, errors.Newf("packer: stage %s: empty payload", label)
	}
	size := uint64(len(data))

	staging, err := up.CreateBuffer(BufferDesc{
		Label:  label + "_staging",
		Size:   size,
		Usage:  UsageCopySrc,
		Memory: MemoryHostVisible,
	}, data)
	if err != nil {
		return nil, errors.Wrapf(err, "packer: create staging for %s", label)
	}
	defer up.DestroyBuffer(staging)

	dst, err := up.CreateBuffer(BufferDesc{
		Label:  label,
		Size:   size,
		Usage:  usage | UsageCopyDst,
		Memory: MemoryDeviceLocal,
	}, nil)
	if err != nil {
		return nil, errors.Wrapf(err, "packer: create %s", label)
	}

	if err := up.CopyBuffer(ctx, staging, dst, size); err != nil {
		up.DestroyBuffer(dst)
		return nil, errors.Wrapf(err, "packer: copy %s", label)
	}
	return dst, nil
}

// Binding is a buffer range bound to one shader binding.
type Binding struct {
	Buffer Buffer
	Offset uint64
	Size   uint64
}

// Uploaded is the device-side counterpart of Packed.
type Uploaded struct {
	Name      string
	Vertices  Buffer
	Indices   Buffer
	Instances Buffer
	Metadata  Buffer

	Primitives Binding
	Materials  Binding

	// Indirect holds one command buffer per ring slot. Drawables the cull pass rewrites get one
	// slot per frame in flight; all others share a single slot.
	Indirect []Buffer

	// Visible holds the compacted instance stream of each ring slot of a culled drawable. The cull
	// pass writes every visible instance into its command's range and the draws read instances
	// from here instead of Instances.
	Visible []Buffer

	Clusters       Buffer
	ClusterIndices Buffer
	InstanceTex    Buffer
}

// IndirectFor returns the command buffer used by the given frame.
func (u *Uploaded) IndirectFor(frame uint64) Buffer {
	return u.Indirect[frame%uint64(len(u.Indirect))]
}

// InstancesFor returns the instance stream the draws of a frame read: the slot's visible stream
// for a culled drawable, the authored instances otherwise.
func (u *Uploaded) InstancesFor(frame uint64) Buffer {
	if len(u.Visible) == 0 {
		return u.Instances
	}
	return u.Visible[frame%uint64(len(u.Visible))]
}

// Upload stages every stream of p to device-local memory. Culled drawables get ringDepth indirect
// buffers. Upload stops at the first failure and releases what it created; startup is expected to
// abort on error.
//
// Parameters:
//   - ctx: bounds the copy waits
//   - up: the backend allocator
//   - p: packed images
//   - ringDepth: frames in flight for culled drawables
//
// Returns:
//   - *Uploaded: the device buffers
//   - error: the first create or copy failure
func Upload(ctx context.Context, up Uploader, p *Packed, ringDepth int) (u *Uploaded, err error) {
	u = &Uploaded{Name: p.Name}
	defer func() {
		if err != nil {
			u.Release(up)
			u = nil
		}
	}()

	stage := func(suffix string, usage BufferUsage, data []byte) (Buffer, error) {
		return Stage(ctx, up, p.Name+"_"+suffix, usage, data)
	}

	clustered := p.Clusters != nil
	vertexUsage := UsageVertex
	instanceUsage := UsageVertex | UsageStorage
	if clustered {
		vertexUsage = UsageVertex | UsageStorage
		instanceUsage = UsageStorage
	}

	if u.Vertices, err = stage("vertices", vertexUsage, p.Vertices); err != nil {
		return
	}
	indexUsage := UsageIndex
	if clustered {
		indexUsage = UsageStorage
	}
	if u.Indices, err = stage("indices", indexUsage, p.Indices); err != nil {
		return
	}
	if u.Instances, err = stage("instances", instanceUsage, p.Instances); err != nil {
		return
	}
	if u.Metadata, err = stage("metadata", UsageStorage|UsageUniform, p.Metadata); err != nil {
		return
	}
	if s, ok := p.Layout.Segment(SegmentPrimitives); ok {
		u.Primitives = Binding{Buffer: u.Metadata, Offset: s.Offset, Size: s.Size}
	}
	if s, ok := p.Layout.Segment(SegmentMaterials); ok {
		u.Materials = Binding{Buffer: u.Metadata, Offset: s.Offset, Size: s.Size}
	}

	slots := 1
	if p.Category.UsesCullPass() {
		slots = max(ringDepth, 1)
	}
	table := p.DrawTable().Bytes()
	for i := 0; i < slots; i++ {
		var b Buffer
		if b, err = stage("indirect", UsageIndirect|UsageStorage|UsageCopySrc, table); err != nil {
			return
		}
		u.Indirect = append(u.Indirect, b)
	}
	if p.Category.UsesCullPass() {
		// seeded with the authored order; the first dispatch overwrites each drawn range
		for i := 0; i < slots; i++ {
			var b Buffer
			if b, err = stage("visible", UsageVertex|UsageStorage, p.Instances); err != nil {
				return
			}
			u.Visible = append(u.Visible, b)
		}
	}

	if clustered {
		if u.Clusters, err = stage("clusters", UsageVertex, p.Clusters.Bytes()); err != nil {
			return
		}
		if u.ClusterIndices, err = stage("cluster_indices", UsageIndex, p.ClusterIndices); err != nil {
			return
		}
		if u.InstanceTex, err = stage("instance_tex", UsageStorage, p.InstanceTex); err != nil {
			return
		}
	}

	slog.Debug("drawable uploaded", "drawable", p.Name, "category", p.Category.String(),
		"indirect_slots", slots, "metadata_bytes", len(p.Metadata))
	return u, nil
}

// Release destroys every buffer u holds. Safe on a partially filled Uploaded.
func (u *Uploaded) Release(up Uploader) {
	for _, b := range []Buffer{u.Vertices, u.Indices, u.Instances, u.Metadata, u.Clusters, u.ClusterIndices, u.InstanceTex} {
		if b != nil {
			up.DestroyBuffer(b)
		}
	}
	for _, b := range append(u.Indirect, u.Visible...) {
		up.DestroyBuffer(b)
	}
	*u = Uploaded{Name: u.Name}
}
