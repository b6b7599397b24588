package window

import "github.com/Carmen-Shannon/oxy-indirect/engine/config"

// WindowBuilderOption is a functional option for configuring an engineWindow.
// Use the With* functions to create options.
type WindowBuilderOption func(w *engineWindow)

// WithTitle sets the window title displayed in the title bar.
//
// Parameters:
//   - title: the window title text
//
// Returns:
//   - WindowBuilderOption: option function to apply
func WithTitle(title string) WindowBuilderOption {
	return func(w *engineWindow) {
		w.title = title
	}
}

// WithSize sets the initial window size in screen coordinates.
//
// Parameters:
//   - width: window width
//   - height: window height
//
// Returns:
//   - WindowBuilderOption: option function to apply
func WithSize(width, height int) WindowBuilderOption {
	return func(w *engineWindow) {
		w.width = width
		w.height = height
	}
}

// WithResizable toggles user resizing. Defaults to true.
func WithResizable(resizable bool) WindowBuilderOption {
	return func(w *engineWindow) {
		w.resizable = resizable
	}
}

// WithConfig applies the title and size of a window configuration block.
func WithConfig(c config.Window) WindowBuilderOption {
	return func(w *engineWindow) {
		if c.Title != "" {
			w.title = c.Title
		}
		w.width = c.Width
		w.height = c.Height
	}
}
