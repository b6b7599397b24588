package common

import (
	"github.com/chewxy/math32"
	"github.com/go-gl/mathgl/mgl32"
)

// Perspective creates a perspective projection matrix mapping depth to the [0, 1] clip range
// used by WebGPU and Vulkan. mgl32.Perspective targets the OpenGL [-1, 1] range.
//
// Parameters:
//   - fovY: vertical field of view in radians
//   - aspect: viewport aspect ratio (width/height)
//   - near: near clipping plane distance (must be > 0)
//   - far: far clipping plane distance (must be > near)
//
// Returns:
//   - mgl32.Mat4: the column-major projection matrix
func Perspective(fovY, aspect, near, far float32) mgl32.Mat4 {
	f := 1.0 / math32.Tan(fovY/2.0)
	var out mgl32.Mat4
	out[0] = f / aspect
	out[5] = f
	out[10] = far / (near - far)
	out[11] = -1.0
	out[14] = (near * far) / (near - far)
	return out
}

// LookAt creates a view matrix positioning the camera at eye looking at center.
//
// Parameters:
//   - eye: camera position in world space
//   - center: target point the camera looks at
//   - up: up vector, typically (0, 1, 0)
//
// Returns:
//   - mgl32.Mat4: the view matrix
func LookAt(eye, center, up mgl32.Vec3) mgl32.Mat4 {
	if eye.ApproxEqual(center) {
		center = eye.Add(mgl32.Vec3{0, 0, -1})
	}
	return mgl32.LookAtV(eye, center, up)
}

// PlacementMatrix builds translate(pos) * scale(s), the transform every procedurally placed
// instance carries.
//
// Parameters:
//   - pos: world-space translation
//   - s: uniform scale factor
//
// Returns:
//   - mgl32.Mat4: the column-major model matrix
func PlacementMatrix(pos mgl32.Vec3, s float32) mgl32.Mat4 {
	return mgl32.Translate3D(pos.X(), pos.Y(), pos.Z()).Mul4(mgl32.Scale3D(s, s, s))
}

// Rows returns the four row vectors of a column-major matrix, the layout the vertex stage
// fetches per-instance transforms in.
func Rows(m mgl32.Mat4) [4][4]float32 {
	var rows [4][4]float32
	for r := 0; r < 4; r++ {
		row := m.Row(r)
		rows[r] = [4]float32{row[0], row[1], row[2], row[3]}
	}
	return rows
}

// FromRows rebuilds a column-major matrix from its row vectors.
func FromRows(rows [4][4]float32) mgl32.Mat4 {
	return mgl32.Mat4FromRows(
		mgl32.Vec4(rows[0]),
		mgl32.Vec4(rows[1]),
		mgl32.Vec4(rows[2]),
		mgl32.Vec4(rows[3]),
	)
}

// Translation returns the translation column of a model matrix.
func Translation(m mgl32.Mat4) mgl32.Vec3 {
	return mgl32.Vec3{m[12], m[13], m[14]}
}
