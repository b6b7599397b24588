package window

import (
	"runtime"

	"github.com/cockroachdb/errors"
	"github.com/cogentcore/webgpu/wgpu"
)

// Window is the demo surface: a native window that reports input and resizes and hands the
// WebGPU backend a surface descriptor. GLFW requires every method except the Set*Callback setters
// to run on the thread that created the window.
type Window interface {
	// SetUpdateCallback registers a function called on the window thread after every event poll.
	//
	// Parameters:
	//   - callback: function to call once per poll
	SetUpdateCallback(callback func())

	// SetResizeCallback registers a function called when the framebuffer size changes.
	//
	// Parameters:
	//   - callback: function receiving the new width and height in pixels
	SetResizeCallback(callback func(width, height int))

	// SetScrollCallback registers a function called on vertical scroll.
	SetScrollCallback(callback func(delta float32))

	// SetKeyDownCallback registers a function called on key press and repeat.
	//
	// Parameters:
	//   - callback: function receiving a GLFW key code, see common.Key*
	SetKeyDownCallback(callback func(keyCode uint32))

	// SurfaceDescriptor returns the platform surface for wgpu.Instance.CreateSurface.
	//
	// Returns:
	//   - *wgpu.SurfaceDescriptor: the descriptor, or nil once the window is destroyed
	SurfaceDescriptor() *wgpu.SurfaceDescriptor

	// SetTitle replaces the window title.
	SetTitle(title string)

	// IsRunning reports whether the window is open and no close was requested.
	IsRunning() bool

	// Close requests the window to close. ProcessMessages returns after the current poll.
	Close()

	// Destroy destroys the window and terminates GLFW.
	//
	// Returns:
	//   - error: error if the window was never created
	Destroy() error

	// ProcessMessages polls events until the window closes, calling the update callback after each
	// poll. Blocks the calling thread.
	ProcessMessages()

	// Width returns the framebuffer width in pixels.
	Width() int

	// Height returns the framebuffer height in pixels.
	Height() int
}

// engineWindow holds the platform-independent window state.
type engineWindow struct {
	title     string
	width     int
	height    int
	resizable bool

	internalWindow any

	onUpdate  func()
	onResize  func(width, height int)
	onScroll  func(delta float32)
	onKeyDown func(keyCode uint32)
}

var _ Window = &engineWindow{}

// NewWindow creates the native window. It must be called from the main goroutine; the calling
// goroutine is locked to its OS thread.
//
// Parameters:
//   - options: functional options for title and size
//
// Returns:
//   - Window: the open window
//   - error: GLFW failed to initialise or create the window
func NewWindow(options ...WindowBuilderOption) (Window, error) {
	w := &engineWindow{
		title:     "oxy-indirect",
		width:     1280,
		height:    720,
		resizable: true,
	}
	for _, opt := range options {
		opt(w)
	}
	if w.width <= 0 || w.height <= 0 {
		return nil, errors.Newf("window: invalid size %dx%d", w.width, w.height)
	}
	if err := newPlatformWindow(w); err != nil {
		return nil, errors.Wrap(err, "window: create platform window")
	}
	return w, nil
}

func (w *engineWindow) SetUpdateCallback(callback func()) {
	w.onUpdate = callback
}

func (w *engineWindow) SetResizeCallback(callback func(width, height int)) {
	w.onResize = callback
}

func (w *engineWindow) SetScrollCallback(callback func(delta float32)) {
	w.onScroll = callback
}

func (w *engineWindow) SetKeyDownCallback(callback func(keyCode uint32)) {
	w.onKeyDown = callback
}

func (w *engineWindow) SurfaceDescriptor() *wgpu.SurfaceDescriptor {
	return platformGetSurfaceDescriptor(w)
}

func (w *engineWindow) SetTitle(title string) {
	w.title = title
	platformSetTitle(w, title)
}

func (w *engineWindow) IsRunning() bool {
	return platformIsRunningCheck(w)
}

func (w *engineWindow) Close() {
	platformRequestClose(w)
}

func (w *engineWindow) Destroy() error {
	return platformDestroyWindow(w)
}

func (w *engineWindow) ProcessMessages() {
	for w.IsRunning() {
		if !platformProcessMessages(w) {
			break
		}
		if w.onUpdate != nil {
			w.onUpdate()
		}
		runtime.Gosched()
	}
}

func (w *engineWindow) Width() int {
	return w.width
}

func (w *engineWindow) Height() int {
	return w.height
}

// resized records a framebuffer size change and forwards it.
func (w *engineWindow) resized(width, height int) {
	w.width = width
	w.height = height
	if w.onResize != nil && width > 0 && height > 0 {
		w.onResize(width, height)
	}
}

// keyDown forwards a press or repeat.
func (w *engineWindow) keyDown(key uint32) {
	if w.onKeyDown != nil {
		w.onKeyDown(key)
	}
}

func (w *engineWindow) scrolled(delta float32) {
	if w.onScroll != nil {
		w.onScroll(delta)
	}
}
