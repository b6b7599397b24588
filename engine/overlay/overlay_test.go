package overlay

import (
	"testing"

	"github.com/Carmen-Shannon/oxy-indirect/engine/renderer"
	"github.com/Carmen-Shannon/oxy-indirect/engine/renderer/indirect"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLinesMultiDraw(t *testing.T) {
	lines := Lines(renderer.FrameStats{Objects: 1024, MultiDraw: true})
	assert.Equal(t, []string{"Objects: 1024"}, lines)
}

func TestLinesFallbackAndClusters(t *testing.T) {
	lines := Lines(renderer.FrameStats{Objects: 4096, Clusters: 32})
	assert.Equal(t, []string{MultiDrawUnsupported, "Clusters: 32", "Objects: 4096"}, lines)
}

func TestSectionsPipelineStatistics(t *testing.T) {
	secs := Sections(renderer.FrameStats{
		Objects:   1024,
		MultiDraw: true,
		Issued:    indirect.Stats{Calls: 3, Draws: 34, Instances: 1026, Indices: 9000},
	})
	require.Len(t, secs, 2)
	assert.Equal(t, HeaderStatistics, secs[0].Header)
	assert.Equal(t, HeaderPipeline, secs[1].Header)
	assert.Equal(t, []string{
		"Draw calls: 3",
		"Draw commands: 34",
		"Instances authored: 1026",
		"Indices authored: 9000",
	}, secs[1].Lines)
}

func TestSectionsReportDeviceCountsForCulledFrame(t *testing.T) {
	secs := Sections(renderer.FrameStats{
		Objects:   1024,
		MultiDraw: true,
		Culled:    true,
		Issued:    indirect.Stats{Calls: 3, Draws: 34, Instances: 1026, Indices: 9000},
		HasDevice: true,
		Device: indirect.DeviceStats{
			Drawn:       indirect.Stats{Calls: 3, Draws: 34, Instances: 2, Indices: 12},
			HasDrawn:    true,
			Pipeline:    indirect.PipelineStatistics{InputAssemblyVertices: 12, InputAssemblyPrimitives: 4, VertexShaderInvocations: 12},
			HasPipeline: true,
		},
	})
	lines := secs[len(secs)-1].Lines
	assert.Contains(t, lines, "Instances authored: 1026")
	assert.Contains(t, lines, "Instances drawn: 2")
	assert.Contains(t, lines, "Indices drawn: 12")
	assert.Contains(t, lines, "Input assembly primitives count: 4")
	assert.Contains(t, lines, "Fragment shader invocations: 0")
	assert.Len(t, lines, 4+2+indirect.PipelineStatisticsCount)
}

func TestSectionsPipelineOnlyDevice(t *testing.T) {
	secs := Sections(renderer.FrameStats{
		MultiDraw: true,
		HasDevice: true,
		Device: indirect.DeviceStats{
			Pipeline:    indirect.PipelineStatistics{FragmentShaderInvocations: 5000},
			HasPipeline: true,
		},
	})
	lines := secs[len(secs)-1].Lines
	assert.Contains(t, lines, "Fragment shader invocations: 5000")
	assert.NotContains(t, lines, "Instances drawn: 0", "no drawn counts without a readback")
}

func TestTitle(t *testing.T) {
	s := renderer.FrameStats{Objects: 1024, MultiDraw: true}
	assert.Equal(t, "indirectdraw | Objects: 1024 | 60 fps", Title("indirectdraw", s, 60))
	assert.Equal(t, "indirectdraw | Objects: 1024", Title("indirectdraw", s, 0))
}
