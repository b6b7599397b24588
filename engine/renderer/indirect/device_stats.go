package indirect

import (
	"github.com/cockroachdb/errors"
)

// PipelineStatisticsCount is the number of counters in PipelineStatistics.
const PipelineStatisticsCount = 6

// PipelineStatistics are the counters a pipeline statistics query collects over a frame's graphics
// pass, in the order the query writes them.
type PipelineStatistics struct {
	InputAssemblyVertices     uint64
	InputAssemblyPrimitives   uint64
	VertexShaderInvocations   uint64
	ClippingInvocations       uint64
	ClippingPrimitives        uint64
	FragmentShaderInvocations uint64
}

// PipelineStatisticsFrom decodes query results written in counter order.
//
// Parameters:
//   - v: at least PipelineStatisticsCount values
//
// Returns:
//   - PipelineStatistics: the decoded counters
//   - error: v is too short
func PipelineStatisticsFrom(v []uint64) (PipelineStatistics, error) {
	if len(v) < PipelineStatisticsCount {
		return PipelineStatistics{}, errors.Newf("indirect: pipeline statistics need %d values, got %d", PipelineStatisticsCount, len(v))
	}
	return PipelineStatistics{
		InputAssemblyVertices:     v[0],
		InputAssemblyPrimitives:   v[1],
		VertexShaderInvocations:   v[2],
		ClippingInvocations:       v[3],
		ClippingPrimitives:        v[4],
		FragmentShaderInvocations: v[5],
	}, nil
}

// Values returns the counters in query order.
func (p PipelineStatistics) Values() [PipelineStatisticsCount]uint64 {
	return [PipelineStatisticsCount]uint64{
		p.InputAssemblyVertices,
		p.InputAssemblyPrimitives,
		p.VertexShaderInvocations,
		p.ClippingInvocations,
		p.ClippingPrimitives,
		p.FragmentShaderInvocations,
	}
}

// DeviceStats is what a device observed while executing one frame, as opposed to the Stats the
// host issued. Devices fill what they can measure and leave the matching Has flag false otherwise.
type DeviceStats struct {
	// Frame is the frame the counters belong to. Devices that read results back after the slot's
	// fence report an earlier frame than the one just submitted.
	Frame uint64

	// Drawn is decoded from the indirect buffers as the draws consumed them.
	Drawn    Stats
	HasDrawn bool

	Pipeline    PipelineStatistics
	HasPipeline bool
}
