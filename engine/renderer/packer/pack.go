package packer

import (
	"context"
	"encoding/binary"

	"github.com/Carmen-Shannon/oxy-indirect/engine/renderer/indirect"
	"github.com/Carmen-Shannon/oxy-indirect/engine/scene"
	"github.com/cockroachdb/errors"
	"golang.org/x/sync/errgroup"
)

// Segment names inside the metadata buffer.
const (
	SegmentPrimitives = "primitives"
	SegmentMaterials  = "materials"
)

// instanceChunk is the number of instances one packing goroutine marshals.
const instanceChunk = 4096

// Packed holds the GPU byte images of one drawable, ready for upload.
type Packed struct {
	Name     string
	Category scene.Category

	Vertices  []byte // GPUVertex stream, or GPUStorageVertex for clustered drawables
	Indices   []byte // u32 index stream
	Instances []byte // GPUInstance, or GPUClusterInstance for clustered drawables
	Metadata  []byte // primitives and materials at aligned offsets, see Layout
	Layout    *Layout

	Commands indirect.Table

	// Clustered drawables only.
	Clusters       *indirect.ClusterTable
	ClusterIndices []byte // fixed 0..n-1 index buffer
	InstanceTex    []byte // u32 texture layer per instance

	ObjectCount   int
	PrimitiveData []GPUPrimitive
}

// DrawTable returns the command table the indirect buffer holds.
func (p *Packed) DrawTable() indirect.Table {
	if p.Clusters != nil {
		return p.Clusters.Table()
	}
	return p.Commands
}

// Pack converts a drawable into GPU byte images. The independent streams are marshalled
// concurrently; the instance stream is further split into chunks.
//
// Parameters:
//   - ctx: cancels packing
//   - d: the drawable; it is validated first
//   - alignment: the device's minimum storage/uniform offset alignment
//
// Returns:
//   - *Packed: the packed images
//   - error: an invalid drawable or a failed command build
func Pack(ctx context.Context, d *scene.Drawable, alignment uint64) (*Packed, error) {
	if err := d.Validate(); err != nil {
		return nil, err
	}

	p := &Packed{Name: d.Name, Category: d.Category, ObjectCount: d.ObjectCount()}

	g, ctx := errgroup.WithContext(ctx)
	clustered := d.Category.UsesClusters()

	g.Go(func() error {
		if clustered {
			p.Vertices = packStorageVertices(d.Vertices)
		} else {
			p.Vertices = packVertices(d.Vertices)
		}
		p.Indices = packU32(d.Indices)
		return nil
	})
	g.Go(func() error {
		if clustered {
			p.Instances = packClusterInstances(d.Placements)
			tex := make([]uint32, len(d.Instances))
			for i, inst := range d.Instances {
				tex[i] = inst.TexIndex
			}
			p.InstanceTex = packU32(tex)
			return nil
		}
		buf, err := PackInstances(ctx, d.Instances)
		p.Instances = buf
		return err
	})
	g.Go(func() error {
		p.PrimitiveData = make([]GPUPrimitive, len(d.Primitives))
		prims := make([]byte, 0, len(d.Primitives)*80)
		for i, prim := range d.Primitives {
			gp := GPUPrimitive{
				Transform:    prim.Transform,
				Position:     prim.Position,
				CullDistance: prim.CullDistance,
			}
			p.PrimitiveData[i] = gp
			prims = append(prims, gp.Marshal()...)
		}
		mats := make([]byte, 0, len(d.Materials)*32)
		for _, m := range d.Materials {
			gm := GPUMaterial{Tint: m.Tint, TextureIndex: m.TextureIndex}
			mats = append(mats, gm.Marshal()...)
		}
		p.Layout = NewLayout(alignment)
		p.Layout.Add(SegmentPrimitives, uint64(len(prims)))
		p.Layout.Add(SegmentMaterials, uint64(len(mats)))
		p.Metadata = p.Layout.Assemble(prims, mats)
		return nil
	})
	g.Go(func() error {
		if clustered {
			ct, err := indirect.BuildClusters(d)
			if err != nil {
				return err
			}
			p.Clusters = &ct
			p.ClusterIndices = packU32(indirect.ClusterIndexBuffer(d.ClusterTriangles))
			return nil
		}
		t, err := indirect.BuildStatic(d.Primitives)
		if err != nil {
			return err
		}
		p.Commands = t
		return t.Validate()
	})

	if err := g.Wait(); err != nil {
		return nil, errors.Wrapf(err, "packer: pack %s", d.Name)
	}
	return p, nil
}

// PackInstances marshals instances into a contiguous GPUInstance stream in chunks processed
// concurrently. Order is preserved.
//
// Parameters:
//   - ctx: cancels packing between chunks
//   - instances: instances in draw order
//
// Returns:
//   - []byte: len(instances)*80 bytes
//   - error: the context error if cancelled
func PackInstances(ctx context.Context, instances []scene.Instance) ([]byte, error) {
	const stride = 80
	buf := make([]byte, len(instances)*stride)
	g, ctx := errgroup.WithContext(ctx)
	for start := 0; start < len(instances); start += instanceChunk {
		end := min(start+instanceChunk, len(instances))
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			for i := start; i < end; i++ {
				gi := GPUInstance{
					Rows:      instances[i].Rows,
					TexIndex:  instances[i].TexIndex,
					PrimIndex: instances[i].Primitive,
				}
				gi.put(buf[i*stride:])
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return buf, nil
}

// UnpackInstances decodes a GPUInstance stream back into host instances.
//
// Parameters:
//   - buf: a stream produced by PackInstances
//
// Returns:
//   - []scene.Instance: the decoded instances
//   - error: buf is not a whole number of records
func UnpackInstances(buf []byte) ([]scene.Instance, error) {
	const stride = 80
	if len(buf)%stride != 0 {
		return nil, errors.Newf("packer: instance stream of %d bytes is not a multiple of %d", len(buf), stride)
	}
	out := make([]scene.Instance, len(buf)/stride)
	for i := range out {
		gi, err := UnmarshalInstance(buf[i*stride:])
		if err != nil {
			return nil, err
		}
		out[i] = scene.Instance{Rows: gi.Rows, TexIndex: gi.TexIndex, Primitive: gi.PrimIndex}
	}
	return out, nil
}

func packVertices(vs []scene.Vertex) []byte {
	const stride = 44
	buf := make([]byte, len(vs)*stride)
	for i, v := range vs {
		gv := GPUVertex{Position: v.Position, Normal: v.Normal, UV: v.UV, Color: v.Color}
		gv.put(buf[i*stride:])
	}
	return buf
}

func packStorageVertices(vs []scene.Vertex) []byte {
	const stride = 64
	buf := make([]byte, len(vs)*stride)
	for i, v := range vs {
		gv := GPUStorageVertex{
			Position: [4]float32{v.Position[0], v.Position[1], v.Position[2], 0},
			Normal:   v.Normal,
			UV:       v.UV,
			Color:    v.Color,
		}
		gv.put(buf[i*stride:])
	}
	return buf
}

func packClusterInstances(ps []scene.Placement) []byte {
	buf := make([]byte, 0, len(ps)*32)
	for _, p := range ps {
		gc := GPUClusterInstance{
			Position: p.Position,
			Rotation: [3]float32{0, p.RotationY, 0},
			Scale:    p.Scale,
		}
		buf = append(buf, gc.Marshal()...)
	}
	return buf
}

func packU32(vs []uint32) []byte {
	buf := make([]byte, len(vs)*4)
	for i, v := range vs {
		binary.LittleEndian.PutUint32(buf[i*4:], v)
	}
	return buf
}
