// Package vulkan drives the indirect renderer on a Vulkan device through goki/vulkan. It renders
// offscreen and, when the device exposes a compute-only queue family, runs the cull pass on it so
// the indirect buffer really changes owner twice per frame.
package vulkan

import (
	"log/slog"
	"sync"

	"github.com/Carmen-Shannon/oxy-indirect/engine/config"
	"github.com/Carmen-Shannon/oxy-indirect/engine/renderer/ownership"
	"github.com/Carmen-Shannon/oxy-indirect/engine/renderer/packer"
	"github.com/cockroachdb/errors"
	"github.com/go-gl/glfw/v3.3/glfw"
	vk "github.com/goki/vulkan"
)

// Device is a Vulkan implementation of the renderer backend.
type Device struct {
	mu     sync.Mutex
	logger *slog.Logger
	cfg    *config.Config

	instance  vk.Instance
	physical  vk.PhysicalDevice
	device    vk.Device
	memory    vk.PhysicalDeviceMemoryProperties
	alignment uint64
	multiDraw bool

	// pipelineStats is the pipelineStatisticsQuery feature; each slot's pass is measured with it.
	pipelineStats bool

	graphicsFamily uint32
	computeFamily  uint32
	graphicsQ      vk.Queue
	computeQ       vk.Queue
	graphicsPool   vk.CommandPool
	computePool    vk.CommandPool

	slots   []*frameSlot
	scenes  []*Buffer
	target  *target
	res     *resources
	batches map[*packer.Uploaded]*batch
	culled  *packer.Uploaded

	width, height int
	inFrame       bool
	frame         uint64
	shared        bool
}

// Option configures a Device during construction.
type Option func(*Device)

// WithLogger sets the logger. The default is slog.Default.
func WithLogger(l *slog.Logger) Option {
	return func(d *Device) {
		d.logger = l
	}
}

// WithSharedQueue forces graphics and compute onto one queue family, which turns every
// ownership barrier into a plain memory barrier.
func WithSharedQueue() Option {
	return func(d *Device) {
		d.shared = true
	}
}

// New creates the instance, picks the first physical device with a graphics queue and builds the
// logical device, queues, per-slot synchronisation, offscreen target and pipelines. GLFW must be
// initialised; it supplies the Vulkan loader.
//
// Parameters:
//   - cfg: sizes the ring, the target and the cull workgroups, and names the SPIR-V modules
//   - options: optional configuration
//
// Returns:
//   - *Device: the ready device
//   - error: a loader, device or pipeline failure
func New(cfg *config.Config, options ...Option) (d *Device, err error) {
	d = &Device{
		logger:        slog.Default(),
		cfg:           cfg,
		width:         cfg.Window.Width,
		height:        cfg.Window.Height,
		batches:       map[*packer.Uploaded]*batch{},
	}
	for _, opt := range options {
		opt(d)
	}
	d.logger = d.logger.With("backend", "vulkan")

	defer func() {
		if err != nil {
			d.Release()
		}
	}()

	vk.SetGetInstanceProcAddr(glfw.GetVulkanGetInstanceProcAddress())
	if err := vk.Init(); err != nil {
		return nil, errors.Wrap(err, "vulkan: init loader")
	}
	if err := d.createInstance(); err != nil {
		return nil, err
	}
	if err := d.pickPhysical(); err != nil {
		return nil, err
	}
	if err := d.createDevice(); err != nil {
		return nil, err
	}
	if err := d.createSlots(max(cfg.FramesInFlight, 1)); err != nil {
		return nil, err
	}
	if d.target, err = d.newTarget(d.width, d.height); err != nil {
		return nil, err
	}
	if d.res, err = d.newResources(); err != nil {
		return nil, err
	}
	d.logger.Info("device ready",
		"graphics_family", d.graphicsFamily, "compute_family", d.computeFamily,
		"multi_draw", d.multiDraw, "pipeline_statistics", d.pipelineStats, "alignment", d.alignment)
	return d, nil
}

func (d *Device) createInstance() error {
	info := vk.InstanceCreateInfo{
		SType: vk.StructureTypeInstanceCreateInfo,
		PApplicationInfo: &vk.ApplicationInfo{
			SType:              vk.StructureTypeApplicationInfo,
			PApplicationName:   terminated(d.cfg.Window.Title),
			ApplicationVersion: vk.MakeVersion(1, 0, 0),
			PEngineName:        "oxy-indirect\x00",
			EngineVersion:      vk.MakeVersion(1, 0, 0),
			ApiVersion:         vk.MakeVersion(1, 1, 0),
		},
	}
	var inst vk.Instance
	if err := vk.Error(vk.CreateInstance(&info, nil, &inst)); err != nil {
		return errors.Wrap(err, "vulkan: create instance")
	}
	d.instance = inst
	return vk.InitInstance(inst)
}

func (d *Device) pickPhysical() error {
	var count uint32
	if err := vk.Error(vk.EnumeratePhysicalDevices(d.instance, &count, nil)); err != nil {
		return errors.Wrap(err, "vulkan: enumerate physical devices")
	}
	if count == 0 {
		return errors.New("vulkan: no physical devices")
	}
	devices := make([]vk.PhysicalDevice, count)
	if err := vk.Error(vk.EnumeratePhysicalDevices(d.instance, &count, devices)); err != nil {
		return errors.Wrap(err, "vulkan: enumerate physical devices")
	}

	for _, pd := range devices {
		var n uint32
		vk.GetPhysicalDeviceQueueFamilyProperties(pd, &n, nil)
		props := make([]vk.QueueFamilyProperties, n)
		vk.GetPhysicalDeviceQueueFamilyProperties(pd, &n, props)
		flags := make([]vk.QueueFlags, n)
		for i := range props {
			props[i].Deref()
			flags[i] = props[i].QueueFlags
		}
		graphics, compute, err := pickFamilies(flags, d.shared)
		if err != nil {
			d.logger.Debug("skipping physical device", "error", err)
			continue
		}

		var p vk.PhysicalDeviceProperties
		vk.GetPhysicalDeviceProperties(pd, &p)
		p.Deref()
		p.Limits.Deref()
		var f vk.PhysicalDeviceFeatures
		vk.GetPhysicalDeviceFeatures(pd, &f)
		f.Deref()
		vk.GetPhysicalDeviceMemoryProperties(pd, &d.memory)
		d.memory.Deref()
		for i := range d.memory.MemoryTypes {
			d.memory.MemoryTypes[i].Deref()
		}

		d.physical = pd
		d.graphicsFamily, d.computeFamily = graphics, compute
		d.multiDraw = f.MultiDrawIndirect == vk.True
		d.pipelineStats = f.PipelineStatisticsQuery == vk.True
		d.alignment = max(uint64(p.Limits.MinStorageBufferOffsetAlignment), uint64(p.Limits.MinUniformBufferOffsetAlignment))
		d.logger.Info("physical device", "name", vk.ToString(p.DeviceName[:]))
		return nil
	}
	return errors.New("vulkan: no physical device has a graphics queue")
}

// pickFamilies chooses the graphics family and, unless shared, a compute family that lacks
// graphics support. Without one, compute shares the graphics family.
func pickFamilies(flags []vk.QueueFlags, shared bool) (graphics, compute uint32, err error) {
	graphics = ^uint32(0)
	compute = ^uint32(0)
	for i, f := range flags {
		bits := vk.QueueFlagBits(f)
		if graphics == ^uint32(0) && bits&vk.QueueGraphicsBit != 0 && bits&vk.QueueComputeBit != 0 {
			graphics = uint32(i)
		}
		if compute == ^uint32(0) && bits&vk.QueueComputeBit != 0 && bits&vk.QueueGraphicsBit == 0 {
			compute = uint32(i)
		}
	}
	if graphics == ^uint32(0) {
		return 0, 0, errors.New("vulkan: no queue family supports graphics and compute")
	}
	if shared || compute == ^uint32(0) {
		compute = graphics
	}
	return graphics, compute, nil
}

func (d *Device) createDevice() error {
	families := []uint32{d.graphicsFamily}
	if d.computeFamily != d.graphicsFamily {
		families = append(families, d.computeFamily)
	}
	queues := make([]vk.DeviceQueueCreateInfo, len(families))
	for i, fam := range families {
		queues[i] = vk.DeviceQueueCreateInfo{
			SType:            vk.StructureTypeDeviceQueueCreateInfo,
			QueueFamilyIndex: fam,
			QueueCount:       1,
			PQueuePriorities: []float32{1},
		}
	}
	features := vk.PhysicalDeviceFeatures{}
	if d.multiDraw {
		features.MultiDrawIndirect = vk.True
	}
	if d.pipelineStats {
		features.PipelineStatisticsQuery = vk.True
	}
	var dev vk.Device
	err := vk.Error(vk.CreateDevice(d.physical, &vk.DeviceCreateInfo{
		SType:                vk.StructureTypeDeviceCreateInfo,
		QueueCreateInfoCount: uint32(len(queues)),
		PQueueCreateInfos:    queues,
		PEnabledFeatures:     []vk.PhysicalDeviceFeatures{features},
	}, nil, &dev))
	if err != nil {
		return errors.Wrap(err, "vulkan: create device")
	}
	d.device = dev

	vk.GetDeviceQueue(dev, d.graphicsFamily, 0, &d.graphicsQ)
	vk.GetDeviceQueue(dev, d.computeFamily, 0, &d.computeQ)

	if d.graphicsPool, err = d.commandPool(d.graphicsFamily); err != nil {
		return err
	}
	d.computePool, err = d.commandPool(d.computeFamily)
	return err
}

func (d *Device) commandPool(family uint32) (vk.CommandPool, error) {
	var pool vk.CommandPool
	err := vk.Error(vk.CreateCommandPool(d.device, &vk.CommandPoolCreateInfo{
		SType:            vk.StructureTypeCommandPoolCreateInfo,
		Flags:            vk.CommandPoolCreateFlags(vk.CommandPoolCreateResetCommandBufferBit),
		QueueFamilyIndex: family,
	}, nil, &pool))
	if err != nil {
		return nil, errors.Wrapf(err, "vulkan: command pool for family %d", family)
	}
	return pool, nil
}

func (d *Device) Name() string {
	return "vulkan"
}

// SupportsMultiDraw reports the multiDrawIndirect device feature.
func (d *Device) SupportsMultiDraw() bool {
	return d.multiDraw
}

// QueueFamilies returns the families the graphics and compute queues came from.
func (d *Device) QueueFamilies() (graphics, compute ownership.QueueFamily) {
	return ownership.QueueFamily(d.graphicsFamily), ownership.QueueFamily(d.computeFamily)
}

func (d *Device) MinOffsetAlignment() uint64 {
	return d.alignment
}

// Release waits for the device to go idle and destroys everything New created.
func (d *Device) Release() {
	if d.device == nil {
		if d.instance != nil {
			vk.DestroyInstance(d.instance, nil)
			d.instance = nil
		}
		return
	}
	vk.DeviceWaitIdle(d.device)

	for u, b := range d.batches {
		b.release(d.device)
		delete(d.batches, u)
	}
	if d.res != nil {
		d.res.release(d)
		d.res = nil
	}
	if d.target != nil {
		d.target.release(d)
		d.target = nil
	}
	for _, b := range d.scenes {
		if b != nil {
			d.DestroyBuffer(b)
		}
	}
	d.scenes = nil
	for _, s := range d.slots {
		s.release(d)
	}
	d.slots = nil
	if d.computePool != nil {
		vk.DestroyCommandPool(d.device, d.computePool, nil)
	}
	if d.graphicsPool != nil {
		vk.DestroyCommandPool(d.device, d.graphicsPool, nil)
	}
	vk.DestroyDevice(d.device, nil)
	d.device = nil
	vk.DestroyInstance(d.instance, nil)
	d.instance = nil
}

// terminated returns s as a NUL-terminated string for the C API.
func terminated(s string) string {
	if len(s) > 0 && s[len(s)-1] == 0 {
		return s
	}
	return s + "\x00"
}
