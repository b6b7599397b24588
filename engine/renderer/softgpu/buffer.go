package softgpu

import (
	"sync"

	"github.com/Carmen-Shannon/oxy-indirect/engine/renderer/packer"
	"github.com/cockroachdb/errors"
)

// Buffer is a host-memory stand-in for a device buffer.
type Buffer struct {
	mu        sync.RWMutex
	label     string
	usage     packer.BufferUsage
	memory    packer.MemoryKind
	data      []byte
	destroyed bool
}

var _ packer.Buffer = &Buffer{}

func (b *Buffer) Label() string {
	return b.label
}

func (b *Buffer) Size() uint64 {
	return uint64(len(b.data))
}

// Usage returns the usage flags the buffer was created with.
func (b *Buffer) Usage() packer.BufferUsage {
	return b.usage
}

// Bytes returns a copy of the buffer contents, as a readback would.
func (b *Buffer) Bytes() []byte {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return append([]byte(nil), b.data...)
}

func (b *Buffer) read(off, size uint64) ([]byte, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.destroyed {
		return nil, errors.Newf("softgpu: %s used after destroy", b.label)
	}
	if off+size > uint64(len(b.data)) {
		return nil, errors.Newf("softgpu: read [%d,%d) past end of %s (%d bytes)", off, off+size, b.label, len(b.data))
	}
	return append([]byte(nil), b.data[off:off+size]...), nil
}

func (b *Buffer) write(off uint64, src []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.destroyed {
		return errors.Newf("softgpu: %s used after destroy", b.label)
	}
	if off+uint64(len(src)) > uint64(len(b.data)) {
		return errors.Newf("softgpu: write [%d,%d) past end of %s (%d bytes)", off, off+uint64(len(src)), b.label, len(b.data))
	}
	copy(b.data[off:], src)
	return nil
}
