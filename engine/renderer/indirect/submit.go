package indirect

import (
	"github.com/cockroachdb/errors"
)

// DrawIssuer records indexed indirect draws against an indirect buffer the caller has already bound.
type DrawIssuer interface {
	// DrawIndexedIndirect issues drawCount commands starting at offset, stride bytes apart.
	DrawIndexedIndirect(offset uint64, drawCount, stride uint32)
}

// Stats aggregates what a submission asked the GPU to draw.
type Stats struct {
	Calls     int
	Draws     int
	Instances uint64
	Indices   uint64
}

// Add folds another submission's stats into s.
func (s *Stats) Add(o Stats) {
	s.Calls += o.Calls
	s.Draws += o.Draws
	s.Instances += o.Instances
	s.Indices += o.Indices
}

// Aggregate sums the work described by drawCount commands starting at byte offset.
//
// Parameters:
//   - t: the command table the buffer holds
//   - offset: byte offset of the first command
//   - drawCount: number of commands read
//
// Returns:
//   - Stats: one call covering those commands
func Aggregate(t Table, offset uint64, drawCount uint32) Stats {
	s := Stats{Calls: 1}
	first := int(offset / CommandStride)
	for i := first; i < first+int(drawCount) && i < len(t); i++ {
		s.Draws++
		s.Instances += uint64(t[i].InstanceCount)
		s.Indices += uint64(t[i].InstanceCount) * uint64(t[i].IndexCount)
	}
	return s
}

// CheckRange verifies drawCount commands at offset fit in a buffer of bufferSize bytes.
func CheckRange(bufferSize, offset uint64, drawCount, stride uint32) error {
	if offset%4 != 0 {
		return errors.Newf("indirect: offset %d is not 4-byte aligned", offset)
	}
	if drawCount == 0 {
		return nil
	}
	need := uint64(drawCount-1)*uint64(stride) + CommandStride
	if offset > bufferSize || bufferSize-offset < need {
		return errors.Newf("indirect: %d draws at offset %d need %d bytes, buffer holds %d", drawCount, offset, need, bufferSize)
	}
	return nil
}

// Submit issues the table through issuer: one multi-draw of every command when multiDraw is set,
// otherwise one drawCount=1 call per command at its byte offset. Both produce the same Stats
// apart from Calls.
//
// Parameters:
//   - issuer: the draw recorder with the indirect buffer bound
//   - t: the command table the bound buffer holds
//   - multiDraw: whether the device supports multi-draw indirect
//
// Returns:
//   - Stats: what was issued
func Submit(issuer DrawIssuer, t Table, multiDraw bool) Stats {
	var s Stats
	if len(t) == 0 {
		return s
	}
	if multiDraw {
		issuer.DrawIndexedIndirect(0, uint32(len(t)), CommandStride)
		return Aggregate(t, 0, uint32(len(t)))
	}
	for j := range t {
		off := ByteOffset(j)
		issuer.DrawIndexedIndirect(off, 1, CommandStride)
		s.Add(Aggregate(t, off, 1))
	}
	return s
}
