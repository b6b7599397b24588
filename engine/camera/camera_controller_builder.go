package camera

import "github.com/go-gl/mathgl/mgl32"

// CameraControllerOption is a functional option for configuring a CameraController.
type CameraControllerOption func(*cameraControllerImpl)

// WithRadius sets the initial distance from the target.
//
// Parameters:
//   - radius: the distance, clamped to the radius bounds
//
// Returns:
//   - CameraControllerOption: option function to apply
func WithRadius(radius float32) CameraControllerOption {
	return func(cc *cameraControllerImpl) {
		cc.radius = radius
	}
}

// WithAzimuth sets the initial horizontal angle in radians.
func WithAzimuth(azimuth float32) CameraControllerOption {
	return func(cc *cameraControllerImpl) {
		cc.azimuth = azimuth
	}
}

// WithElevation sets the initial vertical angle in radians.
func WithElevation(elevation float32) CameraControllerOption {
	return func(cc *cameraControllerImpl) {
		cc.elevation = elevation
	}
}

// WithTarget sets the orbit centre.
//
// Parameters:
//   - t: the point the camera looks at
//
// Returns:
//   - CameraControllerOption: option function to apply
func WithTarget(t mgl32.Vec3) CameraControllerOption {
	return func(cc *cameraControllerImpl) {
		cc.target = t
	}
}

// WithRadiusBounds constrains zoom.
//
// Parameters:
//   - min: closest distance
//   - max: farthest distance
//
// Returns:
//   - CameraControllerOption: option function to apply
func WithRadiusBounds(min, max float32) CameraControllerOption {
	return func(cc *cameraControllerImpl) {
		cc.minRadius = min
		cc.maxRadius = max
	}
}

// WithOrbitSpeed sets the angle one Orbit step turns.
func WithOrbitSpeed(speed float32) CameraControllerOption {
	return func(cc *cameraControllerImpl) {
		cc.orbitSpeed = speed
	}
}

// WithZoomSpeed sets the distance one unit of Zoom moves.
func WithZoomSpeed(speed float32) CameraControllerOption {
	return func(cc *cameraControllerImpl) {
		cc.zoomSpeed = speed
	}
}

// WithAutoOrbit sets the automatic orbit rate in radians per second. Zero disables it.
func WithAutoOrbit(speed float32) CameraControllerOption {
	return func(cc *cameraControllerImpl) {
		cc.autoSpeed = speed
	}
}
