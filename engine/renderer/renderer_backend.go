package renderer

import (
	"context"

	"github.com/Carmen-Shannon/oxy-indirect/engine/renderer/indirect"
	"github.com/Carmen-Shannon/oxy-indirect/engine/renderer/ownership"
	"github.com/Carmen-Shannon/oxy-indirect/engine/renderer/packer"
)

// PresentMode controls how rendered frames are presented to the display surface.
type PresentMode int

const (
	// PresentModeVSync waits for the next vertical blank before presenting, capping frame rate
	// to the monitor's refresh rate. Eliminates tearing.
	PresentModeVSync PresentMode = iota

	// PresentModeUncapped presents frames immediately without waiting for vertical blank.
	// May cause screen tearing but provides the lowest latency.
	PresentModeUncapped
)

// Backend is the device a Renderer drives. Buffers come from the packer.Uploader half, frame
// submission from the ownership.Queues half; the rest binds uploaded drawables to pipelines.
type Backend interface {
	packer.Uploader
	ownership.Queues

	// Name identifies the backend in logs.
	Name() string

	// SupportsMultiDraw reports the multi-draw indirect feature.
	SupportsMultiDraw() bool

	// QueueFamilies returns the graphics and compute queue family indices. Equal values mean a
	// single family and no ownership transfers.
	QueueFamilies() (graphics, compute ownership.QueueFamily)

	// Prepare creates the pipelines and bind groups that draw an uploaded drawable.
	//
	// Parameters:
	//   - p: the packed images the buffers were filled from
	//   - u: the uploaded buffers
	//
	// Returns:
	//   - error: a pipeline or bind group creation failure
	Prepare(p *packer.Packed, u *packer.Uploaded) error

	// WriteScene updates the scene block of a ring slot.
	//
	// Parameters:
	//   - slot: ring slot of the frame about to be recorded
	//   - u: camera, frustum and cull inputs
	//
	// Returns:
	//   - error: a write failure
	WriteScene(slot int, u packer.GPUSceneUniform) error

	// RecordCull records the reset and cull dispatches of a culled drawable against the slot's
	// indirect buffer. rec must come from this backend's SubmitCompute.
	RecordCull(rec ownership.Recorder, p *packer.Packed, u *packer.Uploaded, slot int) error

	// RecordDraw records the indirect draws of a drawable. rec must come from this backend's
	// SubmitGraphics or SubmitStatic.
	//
	// Returns:
	//   - indirect.Stats: what was issued, as the authored table describes it
	//   - error: a recording failure
	RecordDraw(rec ownership.Recorder, p *packer.Packed, u *packer.Uploaded, slot int, multiDraw bool) (indirect.Stats, error)

	// SubmitStatic records and submits graphics work that does not wait on a compute pass.
	SubmitStatic(ctx context.Context, slot int, record func(ownership.Recorder) error) error

	// PrepareFrame acquires the next presentable image for frame n.
	PrepareFrame(ctx context.Context, n uint64) (ownership.FrameToken, error)

	// SubmitFrame presents the image acquired for t.
	SubmitFrame(ctx context.Context, t ownership.FrameToken) error

	// DeviceStats returns what the device measured for the most recent frame on slot whose
	// results are available. Devices that read results back after a fence wait report an earlier
	// frame than the one just submitted; DeviceStats.Frame says which.
	//
	// Returns:
	//   - indirect.DeviceStats: the measured counters
	//   - bool: false when the device measures nothing or has no result yet
	DeviceStats(slot int) (indirect.DeviceStats, bool)

	// Resize reconfigures the presentation surface.
	Resize(width, height int)

	// Release destroys every device object the backend created. Uploaded buffers are released by
	// their owner first.
	Release()
}
