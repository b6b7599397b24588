package common

import (
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
)

func testFrustum() Frustum {
	proj := Perspective(mgl32.DegToRad(60), 1, 0.1, 100)
	view := LookAt(mgl32.Vec3{0, 0, 0}, mgl32.Vec3{0, 0, -1}, mgl32.Vec3{0, 1, 0})
	return ExtractFrustum(proj.Mul4(view))
}

func TestSphereVisible(t *testing.T) {
	f := testFrustum()

	assert.True(t, f.SphereVisible(mgl32.Vec3{0, 0, -10}, 1), "in front of the camera")
	assert.False(t, f.SphereVisible(mgl32.Vec3{0, 0, 10}, 1), "behind the camera")
	assert.False(t, f.SphereVisible(mgl32.Vec3{0, 0, -200}, 1), "past the far plane")
	assert.False(t, f.SphereVisible(mgl32.Vec3{50, 0, -10}, 1), "far to the right")
	assert.True(t, f.SphereVisible(mgl32.Vec3{0, 0, 0.5}, 1), "straddling the near plane")
}

func TestAABBVisible(t *testing.T) {
	f := testFrustum()

	assert.True(t, f.AABBVisible(mgl32.Vec3{-1, -1, -11}, mgl32.Vec3{1, 1, -9}))
	assert.False(t, f.AABBVisible(mgl32.Vec3{-1, -1, 9}, mgl32.Vec3{1, 1, 11}))
	assert.True(t, f.AABBVisible(mgl32.Vec3{-100, -1, -11}, mgl32.Vec3{100, 1, -9}), "spanning the whole view")
}

func TestExtractFrustumNormalizesPlanes(t *testing.T) {
	f := testFrustum()
	for i, p := range f.Planes {
		assert.InDelta(t, 1.0, p.Normal.Len(), 1e-5, "plane %d", i)
	}
}
