package vulkan

import (
	"context"
	"unsafe"

	"github.com/Carmen-Shannon/oxy-indirect/engine/renderer/packer"
	"github.com/cockroachdb/errors"
	vk "github.com/goki/vulkan"
)

const wholeSize = vk.DeviceSize(^uint64(0))

// Buffer is a VkBuffer with its dedicated allocation.
type Buffer struct {
	label  string
	size   uint64
	usage  packer.BufferUsage
	host   bool
	buf    vk.Buffer
	memory vk.DeviceMemory
}

func (b *Buffer) Label() string {
	return b.label
}

func (b *Buffer) Size() uint64 {
	return b.size
}

func ownBuffer(b packer.Buffer) (*Buffer, error) {
	vb, ok := b.(*Buffer)
	if !ok || vb == nil {
		return nil, errors.Newf("vulkan: foreign buffer %T", b)
	}
	return vb, nil
}

// bufferUsage maps packer usage bits to Vulkan usage flags.
func bufferUsage(u packer.BufferUsage) vk.BufferUsageFlags {
	var out vk.BufferUsageFlagBits
	pairs := []struct {
		from packer.BufferUsage
		to   vk.BufferUsageFlagBits
	}{
		{packer.UsageVertex, vk.BufferUsageVertexBufferBit},
		{packer.UsageIndex, vk.BufferUsageIndexBufferBit},
		{packer.UsageUniform, vk.BufferUsageUniformBufferBit},
		{packer.UsageStorage, vk.BufferUsageStorageBufferBit},
		{packer.UsageIndirect, vk.BufferUsageIndirectBufferBit},
		{packer.UsageCopySrc, vk.BufferUsageTransferSrcBit},
		{packer.UsageCopyDst, vk.BufferUsageTransferDstBit},
	}
	for _, p := range pairs {
		if u.Has(p.from) {
			out |= p.to
		}
	}
	return vk.BufferUsageFlags(out)
}

// memoryProperties returns the property flags a memory kind needs.
func memoryProperties(m packer.MemoryKind) vk.MemoryPropertyFlags {
	if m == packer.MemoryHostVisible {
		return vk.MemoryPropertyFlags(vk.MemoryPropertyHostVisibleBit | vk.MemoryPropertyHostCoherentBit)
	}
	return vk.MemoryPropertyFlags(vk.MemoryPropertyDeviceLocalBit)
}

// memoryTypeIndex finds the first memory type allowed by filter that has every bit of want.
//
// Parameters:
//   - props: the physical device memory properties, dereferenced
//   - filter: the memoryTypeBits of a resource's requirements
//   - want: the required property flags
//
// Returns:
//   - uint32: the memory type index
//   - error: when no type matches
func memoryTypeIndex(props vk.PhysicalDeviceMemoryProperties, filter uint32, want vk.MemoryPropertyFlags) (uint32, error) {
	for i := uint32(0); i < props.MemoryTypeCount; i++ {
		if filter&(1<<i) != 0 && props.MemoryTypes[i].PropertyFlags&want == want {
			return i, nil
		}
	}
	return 0, errors.Newf("vulkan: no memory type in %#b has properties %#x", filter, want)
}

func (d *Device) allocate(req vk.MemoryRequirements, want vk.MemoryPropertyFlags) (vk.DeviceMemory, error) {
	idx, err := memoryTypeIndex(d.memory, req.MemoryTypeBits, want)
	if err != nil {
		return nil, err
	}
	var mem vk.DeviceMemory
	err = vk.Error(vk.AllocateMemory(d.device, &vk.MemoryAllocateInfo{
		SType:           vk.StructureTypeMemoryAllocateInfo,
		AllocationSize:  req.Size,
		MemoryTypeIndex: idx,
	}, nil, &mem))
	if err != nil {
		return nil, errors.Wrapf(err, "vulkan: allocate %d bytes", req.Size)
	}
	return mem, nil
}

// CreateBuffer allocates a buffer with its own memory. Initial data is mapped in and needs host
// visible memory.
func (d *Device) CreateBuffer(desc packer.BufferDesc, data []byte) (packer.Buffer, error) {
	if desc.Size == 0 {
		return nil, errors.Newf("vulkan: buffer %s has zero size", desc.Label)
	}
	if data != nil && desc.Memory != packer.MemoryHostVisible {
		return nil, errors.Newf("vulkan: buffer %s: initial data needs host visible memory", desc.Label)
	}
	if uint64(len(data)) > desc.Size {
		return nil, errors.Newf("vulkan: buffer %s: %d bytes of data exceed size %d", desc.Label, len(data), desc.Size)
	}

	b := &Buffer{label: desc.Label, size: desc.Size, usage: desc.Usage, host: desc.Memory == packer.MemoryHostVisible}
	info := vk.BufferCreateInfo{
		SType:       vk.StructureTypeBufferCreateInfo,
		Size:        vk.DeviceSize(desc.Size),
		Usage:       bufferUsage(desc.Usage),
		SharingMode: vk.SharingModeExclusive,
	}
	if families := d.sharedFamilies(desc.Usage); families != nil {
		info.SharingMode = vk.SharingModeConcurrent
		info.QueueFamilyIndexCount = uint32(len(families))
		info.PQueueFamilyIndices = families
	}
	err := vk.Error(vk.CreateBuffer(d.device, &info, nil, &b.buf))
	if err != nil {
		return nil, errors.Wrapf(err, "vulkan: create buffer %s", desc.Label)
	}

	var req vk.MemoryRequirements
	vk.GetBufferMemoryRequirements(d.device, b.buf, &req)
	req.Deref()
	if b.memory, err = d.allocate(req, memoryProperties(desc.Memory)); err != nil {
		vk.DestroyBuffer(d.device, b.buf, nil)
		return nil, errors.Wrapf(err, "vulkan: buffer %s", desc.Label)
	}
	if err := vk.Error(vk.BindBufferMemory(d.device, b.buf, b.memory, 0)); err != nil {
		d.DestroyBuffer(b)
		return nil, errors.Wrapf(err, "vulkan: bind memory of %s", desc.Label)
	}
	if data != nil {
		if err := d.write(b, 0, data); err != nil {
			d.DestroyBuffer(b)
			return nil, err
		}
	}
	return b, nil
}

// sharedFamilies returns the families a buffer is shared between, or nil for exclusive ownership.
// Buffers the cull pass only reads are shared by both queues. Indirect buffers stay exclusive and
// move between them through the ownership barriers.
func (d *Device) sharedFamilies(u packer.BufferUsage) []uint32 {
	if d.graphicsFamily == d.computeFamily || u.Has(packer.UsageIndirect) {
		return nil
	}
	if !u.Has(packer.UsageStorage) && !u.Has(packer.UsageUniform) {
		return nil
	}
	return []uint32{d.graphicsFamily, d.computeFamily}
}

// write maps a host-visible buffer and copies data in at offset.
func (d *Device) write(b *Buffer, offset uint64, data []byte) error {
	if !b.host {
		return errors.Newf("vulkan: %s is not host visible", b.label)
	}
	if offset+uint64(len(data)) > b.size {
		return errors.Newf("vulkan: write of %d bytes at %d overflows %s (%d bytes)", len(data), offset, b.label, b.size)
	}
	if len(data) == 0 {
		return nil
	}
	var ptr unsafe.Pointer
	if err := vk.Error(vk.MapMemory(d.device, b.memory, vk.DeviceSize(offset), vk.DeviceSize(len(data)), 0, &ptr)); err != nil {
		return errors.Wrapf(err, "vulkan: map %s", b.label)
	}
	vk.Memcopy(ptr, data)
	vk.UnmapMemory(d.device, b.memory)
	return nil
}

// CopyBuffer records a one-time copy on the graphics queue and waits for it. The destination is
// owned by the graphics family afterwards.
func (d *Device) CopyBuffer(ctx context.Context, src, dst packer.Buffer, size uint64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s, err := ownBuffer(src)
	if err != nil {
		return err
	}
	t, err := ownBuffer(dst)
	if err != nil {
		return err
	}
	if size > s.size || size > t.size {
		return errors.Newf("vulkan: copy of %d bytes from %s (%d) to %s (%d)", size, s.label, s.size, t.label, t.size)
	}
	return d.oneTime(func(cb vk.CommandBuffer) {
		vk.CmdCopyBuffer(cb, s.buf, t.buf, 1, []vk.BufferCopy{{SrcOffset: 0, DstOffset: 0, Size: vk.DeviceSize(size)}})
	})
}

// oneTime records fn into a transient graphics command buffer, submits it and waits for the queue.
func (d *Device) oneTime(fn func(vk.CommandBuffer)) error {
	cbs := make([]vk.CommandBuffer, 1)
	err := vk.Error(vk.AllocateCommandBuffers(d.device, &vk.CommandBufferAllocateInfo{
		SType:              vk.StructureTypeCommandBufferAllocateInfo,
		CommandPool:        d.graphicsPool,
		Level:              vk.CommandBufferLevelPrimary,
		CommandBufferCount: 1,
	}, cbs))
	if err != nil {
		return errors.Wrap(err, "vulkan: allocate transfer commands")
	}
	defer vk.FreeCommandBuffers(d.device, d.graphicsPool, 1, cbs)

	vk.BeginCommandBuffer(cbs[0], &vk.CommandBufferBeginInfo{
		SType: vk.StructureTypeCommandBufferBeginInfo,
		Flags: vk.CommandBufferUsageFlags(vk.CommandBufferUsageOneTimeSubmitBit),
	})
	fn(cbs[0])
	if err := vk.Error(vk.EndCommandBuffer(cbs[0])); err != nil {
		return errors.Wrap(err, "vulkan: end transfer commands")
	}
	err = vk.Error(vk.QueueSubmit(d.graphicsQ, 1, []vk.SubmitInfo{{
		SType:              vk.StructureTypeSubmitInfo,
		CommandBufferCount: 1,
		PCommandBuffers:    cbs,
	}}, nil))
	if err != nil {
		return errors.Wrap(err, "vulkan: submit transfer")
	}
	return vk.Error(vk.QueueWaitIdle(d.graphicsQ))
}

func (d *Device) DestroyBuffer(b packer.Buffer) {
	vb, err := ownBuffer(b)
	if err != nil {
		d.logger.Warn("destroy buffer", "error", err)
		return
	}
	if vb.buf != nil {
		vk.DestroyBuffer(d.device, vb.buf, nil)
		vb.buf = nil
	}
	if vb.memory != nil {
		vk.FreeMemory(d.device, vb.memory, nil)
		vb.memory = nil
	}
}
