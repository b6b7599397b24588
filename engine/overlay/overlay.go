// Package overlay builds the read-only statistics text shown over a running demo. It holds no
// rendering code; the engine puts the text into the window title and the log.
package overlay

import (
	"fmt"
	"strings"

	"github.com/Carmen-Shannon/oxy-indirect/engine/renderer"
	"github.com/Carmen-Shannon/oxy-indirect/engine/renderer/indirect"
)

// Section headers.
const (
	HeaderInfo       = "Info"
	HeaderStatistics = "Statistics"
	HeaderPipeline   = "Pipeline statistics"
)

// MultiDrawUnsupported is shown while draws fall back to one call per command.
const MultiDrawUnsupported = "multiDrawIndirect not supported"

// Section is one titled group of overlay lines.
type Section struct {
	Header string
	Lines  []string
}

// Sections builds the overlay for a frame. The Info section appears only on the single-draw
// fallback; Clusters only for scenes that carry a cluster table.
//
// Parameters:
//   - s: the frame's statistics
//
// Returns:
//   - []Section: the sections in display order
func Sections(s renderer.FrameStats) []Section {
	var out []Section
	if !s.MultiDraw {
		out = append(out, Section{Header: HeaderInfo, Lines: []string{MultiDrawUnsupported}})
	}

	stats := Section{Header: HeaderStatistics}
	if s.Clusters > 0 {
		stats.Lines = append(stats.Lines, fmt.Sprintf("Clusters: %d", s.Clusters))
	}
	stats.Lines = append(stats.Lines, fmt.Sprintf("Objects: %d", s.Objects))
	out = append(out, stats)

	out = append(out, pipeline(s))
	return out
}

// pipelineCounters labels indirect.PipelineStatistics values in query order.
var pipelineCounters = [indirect.PipelineStatisticsCount]string{
	"Input assembly vertex count",
	"Input assembly primitives count",
	"Vertex shader invocations",
	"Clipping stage primitives processed",
	"Clipping stage primitives output",
	"Fragment shader invocations",
}

// pipeline lists what the host issued, then whatever the device measured. Issued instance counts
// are the authored ones and do not shrink when the cull pass rejects instances.
func pipeline(s renderer.FrameStats) Section {
	sec := Section{Header: HeaderPipeline, Lines: []string{
		fmt.Sprintf("Draw calls: %d", s.Issued.Calls),
		fmt.Sprintf("Draw commands: %d", s.Issued.Draws),
		fmt.Sprintf("Instances authored: %d", s.Issued.Instances),
		fmt.Sprintf("Indices authored: %d", s.Issued.Indices),
	}}
	if !s.HasDevice {
		return sec
	}
	if s.Device.HasDrawn {
		sec.Lines = append(sec.Lines,
			fmt.Sprintf("Instances drawn: %d", s.Device.Drawn.Instances),
			fmt.Sprintf("Indices drawn: %d", s.Device.Drawn.Indices),
		)
	}
	if s.Device.HasPipeline {
		for i, v := range s.Device.Pipeline.Values() {
			sec.Lines = append(sec.Lines, fmt.Sprintf("%s: %d", pipelineCounters[i], v))
		}
	}
	return sec
}

// Lines flattens the Info and Statistics sections into text lines, headers dropped.
//
// Parameters:
//   - s: the frame's statistics
//
// Returns:
//   - []string: e.g. "multiDrawIndirect not supported", "Clusters: 32", "Objects: 4096"
func Lines(s renderer.FrameStats) []string {
	var out []string
	for _, sec := range Sections(s) {
		if sec.Header == HeaderPipeline {
			continue
		}
		out = append(out, sec.Lines...)
	}
	return out
}

// Title joins a base title and the overlay lines into one window title.
func Title(base string, s renderer.FrameStats, fps float64) string {
	parts := append([]string{base}, Lines(s)...)
	if fps > 0 {
		parts = append(parts, fmt.Sprintf("%.0f fps", fps))
	}
	return strings.Join(parts, " | ")
}
