package camera

import (
	"sync"

	"github.com/Carmen-Shannon/oxy-indirect/common"
	"github.com/Carmen-Shannon/oxy-indirect/engine/renderer/cull"
	"github.com/go-gl/mathgl/mgl32"
)

type cameraImpl struct {
	mu *sync.Mutex

	up mgl32.Vec3

	fov    float32
	aspect float32
	near   float32
	far    float32

	controller CameraController
}

// Camera holds the perspective settings and builds the view the renderer culls and draws with
// from an attached CameraController.
type Camera interface {
	// Fov returns the vertical field of view in radians.
	Fov() float32

	// Aspect returns the aspect ratio (width / height).
	Aspect() float32

	// SetAspect updates the aspect ratio, typically on resize.
	//
	// Parameters:
	//   - aspect: width / height; non-positive values are ignored
	SetAspect(aspect float32)

	// Near returns the near clipping plane distance.
	Near() float32

	// Far returns the far clipping plane distance.
	Far() float32

	// Controller returns the attached controller.
	Controller() CameraController

	// View snapshots projection, view and eye for one frame.
	//
	// Returns:
	//   - cull.Camera: the matrices and eye position
	View() cull.Camera
}

var _ Camera = &cameraImpl{}

// NewCamera creates a camera. Defaults match the demos: 60° vertical field of view, near 0.1,
// far 512, 16:9, with a default orbit controller.
//
// Parameters:
//   - options: functional options
//
// Returns:
//   - Camera: the camera
func NewCamera(options ...CameraBuilderOption) Camera {
	c := &cameraImpl{
		mu:     &sync.Mutex{},
		up:     mgl32.Vec3{0, 1, 0},
		fov:    mgl32.DegToRad(60),
		aspect: 16.0 / 9.0,
		near:   0.1,
		far:    512,
	}
	for _, opt := range options {
		opt(c)
	}
	if c.controller == nil {
		c.controller = NewCameraController()
	}
	return c
}

func (c *cameraImpl) Fov() float32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.fov
}

func (c *cameraImpl) Aspect() float32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.aspect
}

func (c *cameraImpl) SetAspect(aspect float32) {
	if aspect <= 0 {
		return
	}
	c.mu.Lock()
	c.aspect = aspect
	c.mu.Unlock()
}

func (c *cameraImpl) Near() float32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.near
}

func (c *cameraImpl) Far() float32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.far
}

func (c *cameraImpl) Controller() CameraController {
	return c.controller
}

func (c *cameraImpl) View() cull.Camera {
	eye := c.controller.Position()
	target := c.controller.Target()

	c.mu.Lock()
	defer c.mu.Unlock()
	return cull.Camera{
		Projection: common.Perspective(c.fov, c.aspect, c.near, c.far),
		View:       common.LookAt(eye, target, c.up),
		Eye:        eye,
	}
}
