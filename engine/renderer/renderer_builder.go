package renderer

import (
	"log/slog"

	"github.com/Carmen-Shannon/oxy-indirect/engine/renderer/cull"
)

// RendererBuilderOption is a functional option applied to a renderer during construction via NewRenderer.
type RendererBuilderOption func(*renderer)

// WithLogger sets the logger the renderer and its frame driver write to.
//
// Parameters:
//   - l: the logger; a component attribute is added
//
// Returns:
//   - RendererBuilderOption: a function that applies the logger option to a renderer
func WithLogger(l *slog.Logger) RendererBuilderOption {
	return func(r *renderer) {
		r.logger = l
	}
}

// WithCamera sets the initial camera so the first frame culls against a real view.
//
// Parameters:
//   - cam: projection, view and eye position
//
// Returns:
//   - RendererBuilderOption: a function that applies the camera option to a renderer
func WithCamera(cam cull.Camera) RendererBuilderOption {
	return func(r *renderer) {
		r.camera = cam
	}
}
