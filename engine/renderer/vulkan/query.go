package vulkan

import (
	"unsafe"

	"github.com/Carmen-Shannon/oxy-indirect/engine/renderer/indirect"
	"github.com/cockroachdb/errors"
	vk "github.com/goki/vulkan"
)

// pipelineStatisticFlags selects the counters of indirect.PipelineStatistics. Results come back in
// bit order, which is the field order.
const pipelineStatisticFlags = vk.QueryPipelineStatisticFlags(
	vk.QueryPipelineStatisticInputAssemblyVerticesBit |
		vk.QueryPipelineStatisticInputAssemblyPrimitivesBit |
		vk.QueryPipelineStatisticVertexShaderInvocationsBit |
		vk.QueryPipelineStatisticClippingInvocationsBit |
		vk.QueryPipelineStatisticClippingPrimitivesBit |
		vk.QueryPipelineStatisticFragmentShaderInvocationsBit)

// createQueryPool creates the one-query pool a slot's graphics pass is measured with.
func (d *Device) createQueryPool() (vk.QueryPool, error) {
	var pool vk.QueryPool
	err := vk.Error(vk.CreateQueryPool(d.device, &vk.QueryPoolCreateInfo{
		SType:              vk.StructureTypeQueryPoolCreateInfo,
		QueryType:          vk.QueryTypePipelineStatistics,
		QueryCount:         1,
		PipelineStatistics: pipelineStatisticFlags,
	}, nil, &pool))
	if err != nil {
		return nil, errors.Wrap(err, "vulkan: create pipeline statistics query pool")
	}
	return pool, nil
}

// deviceStats builds the report of one measured frame from raw query results.
func deviceStats(frame uint64, results []uint64) (indirect.DeviceStats, error) {
	p, err := indirect.PipelineStatisticsFrom(results)
	if err != nil {
		return indirect.DeviceStats{}, err
	}
	return indirect.DeviceStats{Frame: frame, Pipeline: p, HasPipeline: true}, nil
}

// collect reads the query of the slot's last graphics submission. The caller has waited on the
// slot's drawn fence, so the results are available without blocking.
func (d *Device) collect(s *frameSlot) error {
	d.mu.Lock()
	pending, frame := s.queried, s.queriedFrame
	s.queried = false
	d.mu.Unlock()
	if !pending || s.query == nil {
		return nil
	}

	var results [indirect.PipelineStatisticsCount]uint64
	r := vk.GetQueryPoolResults(d.device, s.query, 0, 1,
		uint(unsafe.Sizeof(results)), unsafe.Pointer(&results[0]),
		vk.DeviceSize(unsafe.Sizeof(results)), vk.QueryResultFlags(vk.QueryResult64Bit))
	switch r {
	case vk.Success:
	case vk.NotReady:
		d.logger.Debug("pipeline statistics not ready", "frame", frame)
		return nil
	default:
		return errors.Wrapf(vk.Error(r), "vulkan: pipeline statistics of frame %d", frame)
	}
	st, err := deviceStats(frame, results[:])
	if err != nil {
		return err
	}
	d.mu.Lock()
	s.report, s.reported = st, true
	d.mu.Unlock()
	return nil
}

// DeviceStats returns the pipeline statistics of the last frame on slot whose results were read.
// They are read when the slot comes round again, so they trail the submitted frame by the ring
// depth. Devices without the pipelineStatisticsQuery feature report nothing.
func (d *Device) DeviceStats(slot int) (indirect.DeviceStats, bool) {
	s := d.slot(slot)
	d.mu.Lock()
	defer d.mu.Unlock()
	return s.report, s.reported
}
