package indirect

import (
	"encoding/binary"
	"unsafe"

	"github.com/cockroachdb/errors"
)

// Command is one indexed indirect draw. The field order matches VkDrawIndexedIndirectCommand and
// the argument block WebGPU's drawIndexedIndirect reads.
type Command struct {
	IndexCount    uint32
	InstanceCount uint32
	FirstIndex    uint32
	VertexOffset  int32
	FirstInstance uint32
}

// CommandStride is the byte size of one Command in an indirect buffer.
const CommandStride = 20

// Size returns the size of Command in bytes.
func (c *Command) Size() int {
	return int(unsafe.Sizeof(*c))
}

// Marshal serializes the command into its 20-byte GPU layout.
//
// Returns:
//   - []byte: the little-endian byte representation
func (c *Command) Marshal() []byte {
	buf := make([]byte, CommandStride)
	c.put(buf)
	return buf
}

func (c *Command) put(buf []byte) {
	binary.LittleEndian.PutUint32(buf[0:4], c.IndexCount)
	binary.LittleEndian.PutUint32(buf[4:8], c.InstanceCount)
	binary.LittleEndian.PutUint32(buf[8:12], c.FirstIndex)
	binary.LittleEndian.PutUint32(buf[12:16], uint32(c.VertexOffset))
	binary.LittleEndian.PutUint32(buf[16:20], c.FirstInstance)
}

// Unmarshal decodes a command from its GPU layout.
//
// Parameters:
//   - buf: at least CommandStride bytes
//
// Returns:
//   - Command: the decoded command
//   - error: buf is too short
func Unmarshal(buf []byte) (Command, error) {
	if len(buf) < CommandStride {
		return Command{}, errors.Newf("indirect: command needs %d bytes, got %d", CommandStride, len(buf))
	}
	return Command{
		IndexCount:    binary.LittleEndian.Uint32(buf[0:4]),
		InstanceCount: binary.LittleEndian.Uint32(buf[4:8]),
		FirstIndex:    binary.LittleEndian.Uint32(buf[8:12]),
		VertexOffset:  int32(binary.LittleEndian.Uint32(buf[12:16])),
		FirstInstance: binary.LittleEndian.Uint32(buf[16:20]),
	}, nil
}

// InstanceCountOffset is the byte offset of InstanceCount inside a command, the word the cull
// pass increments.
const InstanceCountOffset = 4
