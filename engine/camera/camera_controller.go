package camera

import "github.com/go-gl/mathgl/mgl32"

// CameraController positions the camera on a sphere around a target. Angles are in radians;
// azimuth turns around +Y and elevation lifts from the XZ plane.
//
// The demos drive it two ways: keyboard and scroll input from the window thread, and an automatic
// orbit advanced from the engine tick. All methods are safe for concurrent use.
type CameraController interface {
	// Position returns the eye position derived from target, radius, azimuth and elevation.
	Position() mgl32.Vec3

	// Target returns the point the camera looks at.
	Target() mgl32.Vec3

	// SetTarget moves the orbit centre and keeps the spherical offset.
	//
	// Parameters:
	//   - t: the new target
	SetTarget(t mgl32.Vec3)

	// Zoom moves the eye toward the target by delta times the zoom speed, clamped to the radius
	// bounds.
	//
	// Parameters:
	//   - delta: positive zooms in
	Zoom(delta float32)

	// Orbit turns by the given angles, scaled by the orbit speed. Elevation is clamped.
	//
	// Parameters:
	//   - dAzimuth: steps around +Y
	//   - dElevation: steps up
	Orbit(dAzimuth, dElevation float32)

	// Advance applies dt seconds of automatic orbit unless paused.
	//
	// Parameters:
	//   - dt: elapsed seconds
	Advance(dt float32)

	// TogglePause stops or resumes the automatic orbit.
	//
	// Returns:
	//   - bool: true when now paused
	TogglePause() bool

	// Radius returns the distance from target to eye.
	Radius() float32

	// SetRadius sets the distance from target to eye, clamped to the radius bounds.
	SetRadius(radius float32)

	// Azimuth returns the horizontal angle.
	Azimuth() float32

	// Elevation returns the vertical angle.
	Elevation() float32
}
