package vulkan

import (
	"context"

	"github.com/Carmen-Shannon/oxy-indirect/engine/renderer/ownership"
	"github.com/Carmen-Shannon/oxy-indirect/engine/renderer/packer"
	"github.com/cockroachdb/errors"
	vk "github.com/goki/vulkan"
)

const (
	colorFormat = vk.FormatR8g8b8a8Unorm
	depthFormat = vk.FormatD32Sfloat
	texFormat   = vk.FormatR8g8b8a8Srgb
)

var clearColor = []float32{0.53, 0.72, 0.9, 1}

// image is a VkImage with its memory and one view.
type image struct {
	img  vk.Image
	mem  vk.DeviceMemory
	view vk.ImageView
}

func (d *Device) newImage(label string, format vk.Format, w, h, layers uint32, usage vk.ImageUsageFlagBits, aspect vk.ImageAspectFlagBits, viewType vk.ImageViewType) (*image, error) {
	im := &image{}
	err := vk.Error(vk.CreateImage(d.device, &vk.ImageCreateInfo{
		SType:         vk.StructureTypeImageCreateInfo,
		ImageType:     vk.ImageType2d,
		Format:        format,
		Extent:        vk.Extent3D{Width: w, Height: h, Depth: 1},
		MipLevels:     1,
		ArrayLayers:   layers,
		Samples:       vk.SampleCount1Bit,
		Tiling:        vk.ImageTilingOptimal,
		Usage:         vk.ImageUsageFlags(usage),
		SharingMode:   vk.SharingModeExclusive,
		InitialLayout: vk.ImageLayoutUndefined,
	}, nil, &im.img))
	if err != nil {
		return nil, errors.Wrapf(err, "vulkan: create image %s", label)
	}
	var req vk.MemoryRequirements
	vk.GetImageMemoryRequirements(d.device, im.img, &req)
	req.Deref()
	if im.mem, err = d.allocate(req, memoryProperties(packer.MemoryDeviceLocal)); err != nil {
		im.release(d)
		return nil, errors.Wrapf(err, "vulkan: image %s", label)
	}
	if err := vk.Error(vk.BindImageMemory(d.device, im.img, im.mem, 0)); err != nil {
		im.release(d)
		return nil, errors.Wrapf(err, "vulkan: bind memory of %s", label)
	}
	err = vk.Error(vk.CreateImageView(d.device, &vk.ImageViewCreateInfo{
		SType:    vk.StructureTypeImageViewCreateInfo,
		Image:    im.img,
		ViewType: viewType,
		Format:   format,
		Components: vk.ComponentMapping{
			R: vk.ComponentSwizzleIdentity,
			G: vk.ComponentSwizzleIdentity,
			B: vk.ComponentSwizzleIdentity,
			A: vk.ComponentSwizzleIdentity,
		},
		SubresourceRange: vk.ImageSubresourceRange{
			AspectMask: vk.ImageAspectFlags(aspect),
			LevelCount: 1,
			LayerCount: layers,
		},
	}, nil, &im.view))
	if err != nil {
		im.release(d)
		return nil, errors.Wrapf(err, "vulkan: view of %s", label)
	}
	return im, nil
}

func (im *image) release(d *Device) {
	if im.view != nil {
		vk.DestroyImageView(d.device, im.view, nil)
	}
	if im.img != nil {
		vk.DestroyImage(d.device, im.img, nil)
	}
	if im.mem != nil {
		vk.FreeMemory(d.device, im.mem, nil)
	}
	*im = image{}
}

// transition records a whole-image layout change.
func transition(cb vk.CommandBuffer, img vk.Image, layers uint32, from, to vk.ImageLayout, srcAccess, dstAccess vk.AccessFlagBits, srcStage, dstStage vk.PipelineStageFlagBits) {
	vk.CmdPipelineBarrier(cb, vk.PipelineStageFlags(srcStage), vk.PipelineStageFlags(dstStage), 0, 0, nil, 0, nil,
		1, []vk.ImageMemoryBarrier{{
			SType:               vk.StructureTypeImageMemoryBarrier,
			SrcAccessMask:       vk.AccessFlags(srcAccess),
			DstAccessMask:       vk.AccessFlags(dstAccess),
			OldLayout:           from,
			NewLayout:           to,
			SrcQueueFamilyIndex: vk.QueueFamilyIgnored,
			DstQueueFamilyIndex: vk.QueueFamilyIgnored,
			Image:               img,
			SubresourceRange: vk.ImageSubresourceRange{
				AspectMask: vk.ImageAspectFlags(vk.ImageAspectColorBit),
				LevelCount: 1,
				LayerCount: layers,
			},
		}})
}

// texture creates a sampled image and fills it from pixels through a staging buffer.
func (d *Device) texture(label string, pixels []byte, size, layers uint32) (*image, error) {
	viewType := vk.ImageViewType2d
	if layers > 1 {
		viewType = vk.ImageViewType2dArray
	}
	im, err := d.newImage(label, texFormat, size, size, layers,
		vk.ImageUsageSampledBit|vk.ImageUsageTransferDstBit, vk.ImageAspectColorBit, viewType)
	if err != nil {
		return nil, err
	}
	staging, err := d.CreateBuffer(packer.BufferDesc{
		Label:  label + " staging",
		Size:   uint64(len(pixels)),
		Usage:  packer.UsageCopySrc,
		Memory: packer.MemoryHostVisible,
	}, pixels)
	if err != nil {
		im.release(d)
		return nil, err
	}
	defer d.DestroyBuffer(staging)
	src := staging.(*Buffer)

	err = d.oneTime(func(cb vk.CommandBuffer) {
		transition(cb, im.img, layers, vk.ImageLayoutUndefined, vk.ImageLayoutTransferDstOptimal,
			0, vk.AccessTransferWriteBit, vk.PipelineStageTopOfPipeBit, vk.PipelineStageTransferBit)
		vk.CmdCopyBufferToImage(cb, src.buf, im.img, vk.ImageLayoutTransferDstOptimal, 1, []vk.BufferImageCopy{{
			ImageSubresource: vk.ImageSubresourceLayers{
				AspectMask: vk.ImageAspectFlags(vk.ImageAspectColorBit),
				LayerCount: layers,
			},
			ImageExtent: vk.Extent3D{Width: size, Height: size, Depth: 1},
		}})
		transition(cb, im.img, layers, vk.ImageLayoutTransferDstOptimal, vk.ImageLayoutShaderReadOnlyOptimal,
			vk.AccessTransferWriteBit, vk.AccessShaderReadBit, vk.PipelineStageTransferBit, vk.PipelineStageFragmentShaderBit)
	})
	if err != nil {
		im.release(d)
		return nil, errors.Wrapf(err, "vulkan: upload %s", label)
	}
	return im, nil
}

// target is the offscreen color and depth attachment pair every frame renders into.
type target struct {
	pass          vk.RenderPass
	color, depth  *image
	framebuffer   vk.Framebuffer
	width, height uint32
}

func (d *Device) newTarget(width, height int) (*target, error) {
	t := &target{}
	attachments := []vk.AttachmentDescription{
		{
			Format:         colorFormat,
			Samples:        vk.SampleCount1Bit,
			LoadOp:         vk.AttachmentLoadOpClear,
			StoreOp:        vk.AttachmentStoreOpStore,
			StencilLoadOp:  vk.AttachmentLoadOpDontCare,
			StencilStoreOp: vk.AttachmentStoreOpDontCare,
			InitialLayout:  vk.ImageLayoutUndefined,
			FinalLayout:    vk.ImageLayoutTransferSrcOptimal,
		},
		{
			Format:         depthFormat,
			Samples:        vk.SampleCount1Bit,
			LoadOp:         vk.AttachmentLoadOpClear,
			StoreOp:        vk.AttachmentStoreOpDontCare,
			StencilLoadOp:  vk.AttachmentLoadOpDontCare,
			StencilStoreOp: vk.AttachmentStoreOpDontCare,
			InitialLayout:  vk.ImageLayoutUndefined,
			FinalLayout:    vk.ImageLayoutDepthStencilAttachmentOptimal,
		},
	}
	err := vk.Error(vk.CreateRenderPass(d.device, &vk.RenderPassCreateInfo{
		SType:           vk.StructureTypeRenderPassCreateInfo,
		AttachmentCount: uint32(len(attachments)),
		PAttachments:    attachments,
		SubpassCount:    1,
		PSubpasses: []vk.SubpassDescription{{
			PipelineBindPoint:    vk.PipelineBindPointGraphics,
			ColorAttachmentCount: 1,
			PColorAttachments:    []vk.AttachmentReference{{Attachment: 0, Layout: vk.ImageLayoutColorAttachmentOptimal}},
			PDepthStencilAttachment: &vk.AttachmentReference{
				Attachment: 1,
				Layout:     vk.ImageLayoutDepthStencilAttachmentOptimal,
			},
		}},
		DependencyCount: 1,
		PDependencies: []vk.SubpassDependency{{
			SrcSubpass:    vk.SubpassExternal,
			DstSubpass:    0,
			SrcStageMask:  vk.PipelineStageFlags(vk.PipelineStageColorAttachmentOutputBit | vk.PipelineStageEarlyFragmentTestsBit),
			DstStageMask:  vk.PipelineStageFlags(vk.PipelineStageColorAttachmentOutputBit | vk.PipelineStageEarlyFragmentTestsBit),
			DstAccessMask: vk.AccessFlags(vk.AccessColorAttachmentWriteBit | vk.AccessDepthStencilAttachmentWriteBit),
		}},
	}, nil, &t.pass))
	if err != nil {
		return nil, errors.Wrap(err, "vulkan: create render pass")
	}
	if err := t.resize(d, width, height); err != nil {
		t.release(d)
		return nil, err
	}
	return t, nil
}

// resize replaces the attachments and framebuffer. The render pass is kept so pipelines stay valid.
func (t *target) resize(d *Device, width, height int) error {
	t.releaseAttachments(d)
	t.width, t.height = uint32(max(width, 1)), uint32(max(height, 1))

	var err error
	if t.color, err = d.newImage("color target", colorFormat, t.width, t.height, 1,
		vk.ImageUsageColorAttachmentBit|vk.ImageUsageTransferSrcBit, vk.ImageAspectColorBit, vk.ImageViewType2d); err != nil {
		return err
	}
	if t.depth, err = d.newImage("depth target", depthFormat, t.width, t.height, 1,
		vk.ImageUsageDepthStencilAttachmentBit, vk.ImageAspectDepthBit, vk.ImageViewType2d); err != nil {
		return err
	}
	err = vk.Error(vk.CreateFramebuffer(d.device, &vk.FramebufferCreateInfo{
		SType:           vk.StructureTypeFramebufferCreateInfo,
		RenderPass:      t.pass,
		AttachmentCount: 2,
		PAttachments:    []vk.ImageView{t.color.view, t.depth.view},
		Width:           t.width,
		Height:          t.height,
		Layers:          1,
	}, nil, &t.framebuffer))
	return errors.Wrap(err, "vulkan: create framebuffer")
}

// begin opens the render pass with the clear values and a viewport flipped to y-up.
func (t *target) begin(cb vk.CommandBuffer) {
	area := vk.Rect2D{Extent: vk.Extent2D{Width: t.width, Height: t.height}}
	vk.CmdBeginRenderPass(cb, &vk.RenderPassBeginInfo{
		SType:           vk.StructureTypeRenderPassBeginInfo,
		RenderPass:      t.pass,
		Framebuffer:     t.framebuffer,
		RenderArea:      area,
		ClearValueCount: 2,
		PClearValues:    []vk.ClearValue{vk.NewClearValue(clearColor), vk.NewClearDepthStencil(1, 0)},
	}, vk.SubpassContentsInline)
	vk.CmdSetViewport(cb, 0, 1, []vk.Viewport{{
		X:        0,
		Y:        float32(t.height),
		Width:    float32(t.width),
		Height:   -float32(t.height),
		MinDepth: 0,
		MaxDepth: 1,
	}})
	vk.CmdSetScissor(cb, 0, 1, []vk.Rect2D{area})
}

func (t *target) releaseAttachments(d *Device) {
	if t.framebuffer != nil {
		vk.DestroyFramebuffer(d.device, t.framebuffer, nil)
		t.framebuffer = nil
	}
	for _, im := range []*image{t.color, t.depth} {
		if im != nil {
			im.release(d)
		}
	}
	t.color, t.depth = nil, nil
}

func (t *target) release(d *Device) {
	t.releaseAttachments(d)
	if t.pass != nil {
		vk.DestroyRenderPass(d.device, t.pass, nil)
		t.pass = nil
	}
}

// PrepareFrame waits until the slot's previous graphics submission has retired, then reads that
// submission's pipeline statistics. There is no swapchain, so the token's image is always 0.
func (d *Device) PrepareFrame(ctx context.Context, n uint64) (ownership.FrameToken, error) {
	d.mu.Lock()
	if d.inFrame {
		d.mu.Unlock()
		return ownership.FrameToken{}, errors.Newf("vulkan: frame %d prepared before the previous one was submitted", n)
	}
	d.inFrame = true
	d.frame = n
	d.mu.Unlock()

	slot := ownership.SlotFor(n, len(d.slots))
	fail := func(err error) (ownership.FrameToken, error) {
		d.mu.Lock()
		d.inFrame = false
		d.mu.Unlock()
		return ownership.FrameToken{}, errors.Wrapf(err, "vulkan: frame %d slot %d", n, slot)
	}
	if err := ownership.WaitFence(ctx, d.slot(slot).drawn, d.cfg.Timeout()); err != nil {
		return fail(err)
	}
	if err := d.collect(d.slot(slot)); err != nil {
		return fail(err)
	}
	return ownership.FrameToken{Frame: n, Slot: slot}, nil
}

// SubmitFrame ends the frame. The offscreen image stays in TRANSFER_SRC layout for readback.
func (d *Device) SubmitFrame(ctx context.Context, t ownership.FrameToken) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.inFrame {
		return errors.Newf("vulkan: frame %d submitted without prepare", t.Frame)
	}
	d.inFrame = false
	return ctx.Err()
}

// Resize recreates the offscreen attachments once the device is idle.
func (d *Device) Resize(width, height int) {
	if width <= 0 || height <= 0 || d.target == nil {
		return
	}
	vk.DeviceWaitIdle(d.device)
	if err := d.target.resize(d, width, height); err != nil {
		d.logger.Error("resize target", "width", width, "height", height, "error", err)
		return
	}
	d.width, d.height = width, height
}
