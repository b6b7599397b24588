package indirect

import (
	"github.com/Carmen-Shannon/oxy-indirect/engine/scene"
	"github.com/cockroachdb/errors"
)

// Table is the contiguous command array a multi-draw reads.
type Table []Command

// BuildStatic walks primitives in order and emits one command per primitive. InstanceCount is the
// primitive's authored count and FirstInstance the running sum of earlier counts.
//
// Parameters:
//   - primitives: primitives in draw order
//
// Returns:
//   - Table: the command table
//   - error: the cumulative instance count overflows uint32
func BuildStatic(primitives []scene.Primitive) (Table, error) {
	t := make(Table, len(primitives))
	var running uint64
	for i, p := range primitives {
		t[i] = Command{
			IndexCount:    p.Mesh.IndexCount,
			InstanceCount: p.InstanceCount,
			FirstIndex:    p.Mesh.FirstIndex,
			VertexOffset:  p.Mesh.VertexOffset,
			FirstInstance: uint32(running),
		}
		running += uint64(p.InstanceCount)
		if running > 1<<32-1 {
			return nil, errors.AssertionFailedf("indirect: cumulative instance count overflows uint32 at primitive %d", i)
		}
	}
	return t, nil
}

// Validate checks that every FirstInstance equals the sum of the preceding InstanceCounts and that
// the sum fits in uint32. Tables whose counts were rewritten by the cull pass are checked with
// ValidateAgainst instead.
//
// Returns:
//   - error: an assertion failure naming the first broken command
func (t Table) Validate() error {
	var running uint64
	for i, c := range t {
		if uint64(c.FirstInstance) != running {
			return errors.AssertionFailedf("indirect: command %d firstInstance %d, running sum %d", i, c.FirstInstance, running)
		}
		running += uint64(c.InstanceCount)
		if running > 1<<32-1 {
			return errors.AssertionFailedf("indirect: cumulative instance count overflows uint32 at command %d", i)
		}
	}
	return nil
}

// ValidateAgainst checks a culled table against the authored one: FirstInstance, index ranges and
// command count are unchanged and no InstanceCount exceeds its authored total.
//
// Parameters:
//   - authored: the table as built by BuildStatic
//
// Returns:
//   - error: an assertion failure naming the first broken command
func (t Table) ValidateAgainst(authored Table) error {
	if len(t) != len(authored) {
		return errors.AssertionFailedf("indirect: %d commands, authored %d", len(t), len(authored))
	}
	for i := range t {
		got, want := t[i], authored[i]
		if got.FirstInstance != want.FirstInstance || got.FirstIndex != want.FirstIndex ||
			got.IndexCount != want.IndexCount || got.VertexOffset != want.VertexOffset {
			return errors.AssertionFailedf("indirect: command %d layout changed: %+v, authored %+v", i, got, want)
		}
		if got.InstanceCount > want.InstanceCount {
			return errors.AssertionFailedf("indirect: command %d instanceCount %d exceeds authored %d", i, got.InstanceCount, want.InstanceCount)
		}
	}
	return nil
}

// TotalInstances returns the sum of every InstanceCount.
func (t Table) TotalInstances() uint64 {
	var n uint64
	for _, c := range t {
		n += uint64(c.InstanceCount)
	}
	return n
}

// Reset returns a copy with every InstanceCount zeroed, the state the cull pass starts counting from.
func (t Table) Reset() Table {
	out := make(Table, len(t))
	copy(out, t)
	for i := range out {
		out[i].InstanceCount = 0
	}
	return out
}

// ByteOffset returns the byte offset of command j inside the serialized table.
func ByteOffset(j int) uint64 {
	return uint64(j) * CommandStride
}

// ByteSize returns the serialized size of the table.
func (t Table) ByteSize() uint64 {
	return ByteOffset(len(t))
}

// Bytes serializes the table into a contiguous indirect buffer image.
func (t Table) Bytes() []byte {
	buf := make([]byte, t.ByteSize())
	for i := range t {
		t[i].put(buf[ByteOffset(i):])
	}
	return buf
}

// Decode parses a serialized table of n commands.
//
// Parameters:
//   - buf: the buffer image
//   - n: number of commands to read
//
// Returns:
//   - Table: the decoded commands
//   - error: buf is shorter than n commands
func Decode(buf []byte, n int) (Table, error) {
	if uint64(len(buf)) < ByteOffset(n) {
		return nil, errors.Newf("indirect: %d commands need %d bytes, got %d", n, ByteOffset(n), len(buf))
	}
	t := make(Table, n)
	for i := range t {
		c, err := Unmarshal(buf[ByteOffset(i):])
		if err != nil {
			return nil, err
		}
		t[i] = c
	}
	return t, nil
}

// InstanceOwners maps every instance slot to the command that draws it, the lookup the cull pass
// uses to find which counter an instance increments.
func (t Table) InstanceOwners() []uint32 {
	owners := make([]uint32, 0, t.TotalInstances())
	for i, c := range t {
		for k := uint32(0); k < c.InstanceCount; k++ {
			owners = append(owners, uint32(i))
		}
	}
	return owners
}
