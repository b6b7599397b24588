package camera

import (
	"sync"

	"github.com/chewxy/math32"
	"github.com/go-gl/mathgl/mgl32"
)

type cameraControllerImpl struct {
	mu *sync.Mutex

	position mgl32.Vec3
	target   mgl32.Vec3

	radius    float32
	azimuth   float32
	elevation float32

	minRadius    float32
	maxRadius    float32
	minElevation float32
	maxElevation float32

	orbitSpeed float32
	zoomSpeed  float32

	// autoSpeed is the automatic orbit rate in radians per second.
	autoSpeed float32
	paused    bool
}

var _ CameraController = &cameraControllerImpl{}

// NewCameraController creates an orbit controller. The defaults frame a scene of a few dozen
// units from slightly above.
//
// Parameters:
//   - options: functional options to configure the controller
//
// Returns:
//   - CameraController: the newly created controller
func NewCameraController(options ...CameraControllerOption) CameraController {
	cc := &cameraControllerImpl{
		mu:           &sync.Mutex{},
		radius:       40,
		azimuth:      mgl32.DegToRad(159),
		elevation:    mgl32.DegToRad(12),
		minRadius:    1,
		maxRadius:    400,
		minElevation: 0.02,
		maxElevation: math32.Pi/2 - 0.05,
		orbitSpeed:   0.03,
		zoomSpeed:    2,
		autoSpeed:    0.1,
	}
	for _, option := range options {
		option(cc)
	}
	cc.radius = mgl32.Clamp(cc.radius, cc.minRadius, cc.maxRadius)
	cc.elevation = mgl32.Clamp(cc.elevation, cc.minElevation, cc.maxElevation)
	cc.updatePosition()
	return cc
}

// updatePosition recomputes the eye from spherical coordinates. Caller must hold the mutex.
func (cc *cameraControllerImpl) updatePosition() {
	sinElev, cosElev := math32.Sincos(cc.elevation)
	sinAzim, cosAzim := math32.Sincos(cc.azimuth)
	cc.position = cc.target.Add(mgl32.Vec3{
		cc.radius * cosElev * sinAzim,
		cc.radius * sinElev,
		cc.radius * cosElev * cosAzim,
	})
}

func (cc *cameraControllerImpl) Position() mgl32.Vec3 {
	cc.mu.Lock()
	defer cc.mu.Unlock()
	return cc.position
}

func (cc *cameraControllerImpl) Target() mgl32.Vec3 {
	cc.mu.Lock()
	defer cc.mu.Unlock()
	return cc.target
}

func (cc *cameraControllerImpl) SetTarget(t mgl32.Vec3) {
	cc.mu.Lock()
	defer cc.mu.Unlock()
	cc.target = t
	cc.updatePosition()
}

func (cc *cameraControllerImpl) Zoom(delta float32) {
	cc.mu.Lock()
	defer cc.mu.Unlock()
	cc.radius = mgl32.Clamp(cc.radius-delta*cc.zoomSpeed, cc.minRadius, cc.maxRadius)
	cc.updatePosition()
}

func (cc *cameraControllerImpl) Orbit(dAzimuth, dElevation float32) {
	cc.mu.Lock()
	defer cc.mu.Unlock()
	cc.azimuth = wrapAngle(cc.azimuth + dAzimuth*cc.orbitSpeed)
	cc.elevation = mgl32.Clamp(cc.elevation+dElevation*cc.orbitSpeed, cc.minElevation, cc.maxElevation)
	cc.updatePosition()
}

func (cc *cameraControllerImpl) Advance(dt float32) {
	cc.mu.Lock()
	defer cc.mu.Unlock()
	if cc.paused || dt <= 0 {
		return
	}
	cc.azimuth = wrapAngle(cc.azimuth + cc.autoSpeed*dt)
	cc.updatePosition()
}

func (cc *cameraControllerImpl) TogglePause() bool {
	cc.mu.Lock()
	defer cc.mu.Unlock()
	cc.paused = !cc.paused
	return cc.paused
}

func (cc *cameraControllerImpl) Radius() float32 {
	cc.mu.Lock()
	defer cc.mu.Unlock()
	return cc.radius
}

func (cc *cameraControllerImpl) SetRadius(radius float32) {
	cc.mu.Lock()
	defer cc.mu.Unlock()
	cc.radius = mgl32.Clamp(radius, cc.minRadius, cc.maxRadius)
	cc.updatePosition()
}

func (cc *cameraControllerImpl) Azimuth() float32 {
	cc.mu.Lock()
	defer cc.mu.Unlock()
	return cc.azimuth
}

func (cc *cameraControllerImpl) Elevation() float32 {
	cc.mu.Lock()
	defer cc.mu.Unlock()
	return cc.elevation
}

// wrapAngle keeps an angle in [0, 2π).
func wrapAngle(a float32) float32 {
	a = math32.Mod(a, 2*math32.Pi)
	if a < 0 {
		a += 2 * math32.Pi
	}
	return a
}
