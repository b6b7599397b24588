package packer

import (
	"github.com/Carmen-Shannon/oxy-indirect/common"
)

// Segment is one region of a shared buffer.
type Segment struct {
	Name   string
	Offset uint64
	Size   uint64
}

// Layout places segments back to back in one buffer, each starting at a multiple of the device's
// minimum storage/uniform offset alignment. The gaps are reserved.
type Layout struct {
	Alignment uint64
	Segments  []Segment
	Size      uint64
}

// NewLayout starts an empty layout.
//
// Parameters:
//   - alignment: the device's minimum buffer offset alignment; 0 is treated as 1
//
// Returns:
//   - *Layout: the layout
func NewLayout(alignment uint64) *Layout {
	return &Layout{Alignment: max(alignment, 1)}
}

// Add appends a segment at the next aligned offset and returns it.
//
// Parameters:
//   - name: segment name, used for lookups
//   - size: segment size in bytes
//
// Returns:
//   - Segment: the placed segment
func (l *Layout) Add(name string, size uint64) Segment {
	s := Segment{Name: name, Offset: common.AlignUp(l.Size, l.Alignment), Size: size}
	l.Segments = append(l.Segments, s)
	l.Size = s.Offset + size
	return s
}

// Segment looks a segment up by name.
func (l *Layout) Segment(name string) (Segment, bool) {
	for _, s := range l.Segments {
		if s.Name == name {
			return s, true
		}
	}
	return Segment{}, false
}

// Assemble copies each payload into its segment of a buffer of l.Size bytes. Payloads are matched
// to segments by position.
func (l *Layout) Assemble(payloads ...[]byte) []byte {
	buf := make([]byte, l.Size)
	for i, p := range payloads {
		if i < len(l.Segments) {
			copy(buf[l.Segments[i].Offset:], p)
		}
	}
	return buf
}
