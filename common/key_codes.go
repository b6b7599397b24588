package common

// Virtual key codes for the demo controls.
// These values match GLFW key codes which use ASCII values for printable keys.
// Reference: https://pkg.go.dev/github.com/go-gl/glfw/v3.3/glfw#Key
const (
	KeyC     = 67  // C key (ASCII), cycles the cull test
	KeySpace = 32  // Spacebar (ASCII), pauses camera orbit
	KeyEsc   = 256 // Escape key (GLFW), closes the window
	KeyRight = 262
	KeyLeft  = 263
	KeyDown  = 264
	KeyUp    = 265
)
