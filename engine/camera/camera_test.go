package camera

import (
	"testing"

	"github.com/Carmen-Shannon/oxy-indirect/common"
	"github.com/chewxy/math32"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestControllerPositionOnSphere(t *testing.T) {
	target := mgl32.Vec3{10, 0, 20}
	cc := NewCameraController(WithTarget(target), WithRadius(5), WithAzimuth(0), WithElevation(0.5))

	assert.InDelta(t, 5, cc.Position().Sub(target).Len(), 1e-4)
	assert.InDelta(t, 5*math32.Sin(0.5), cc.Position().Y(), 1e-4)

	cc.SetTarget(mgl32.Vec3{})
	assert.InDelta(t, 5, cc.Position().Len(), 1e-4, "offset is kept when the target moves")
}

func TestControllerClamps(t *testing.T) {
	cc := NewCameraController(WithRadiusBounds(2, 10), WithRadius(5), WithZoomSpeed(1), WithOrbitSpeed(1))

	cc.Zoom(100)
	assert.EqualValues(t, 2, cc.Radius())
	cc.Zoom(-100)
	assert.EqualValues(t, 10, cc.Radius())
	cc.SetRadius(0)
	assert.EqualValues(t, 2, cc.Radius())

	cc.Orbit(0, 10)
	assert.Less(t, cc.Elevation(), float32(math32.Pi/2))
	cc.Orbit(0, -10)
	assert.Greater(t, cc.Elevation(), float32(0))

	cc.Orbit(-1, 0)
	assert.GreaterOrEqual(t, cc.Azimuth(), float32(0))
	assert.Less(t, cc.Azimuth(), float32(2*math32.Pi))
}

func TestAdvanceHonoursPause(t *testing.T) {
	cc := NewCameraController(WithAzimuth(0), WithAutoOrbit(1))

	cc.Advance(0.5)
	assert.InDelta(t, 0.5, cc.Azimuth(), 1e-6)

	require.True(t, cc.TogglePause())
	cc.Advance(0.5)
	assert.InDelta(t, 0.5, cc.Azimuth(), 1e-6)

	require.False(t, cc.TogglePause())
	cc.Advance(0.25)
	assert.InDelta(t, 0.75, cc.Azimuth(), 1e-6)
}

func TestViewSeesTarget(t *testing.T) {
	target := mgl32.Vec3{8, 0, 16}
	c := NewCamera(
		WithAspect(4.0/3.0),
		WithClip(0.1, 512),
		WithController(NewCameraController(WithTarget(target), WithRadius(30))),
	)

	v := c.View()
	assert.Equal(t, c.Controller().Position(), v.Eye)

	f := common.ExtractFrustum(v.Projection.Mul4(v.View))
	assert.True(t, f.SphereVisible(target, 1))
	assert.False(t, f.SphereVisible(target.Add(target.Sub(v.Eye).Normalize().Mul(600)), 1), "beyond the far plane")
}

func TestSetAspectIgnoresDegenerate(t *testing.T) {
	c := NewCamera()
	c.SetAspect(0)
	assert.InDelta(t, 16.0/9.0, c.Aspect(), 1e-6)
	c.SetAspect(2)
	assert.EqualValues(t, 2, c.Aspect())
	assert.InDelta(t, mgl32.DegToRad(60), c.Fov(), 1e-6)
	assert.EqualValues(t, float32(0.1), c.Near())
	assert.EqualValues(t, 512, c.Far())
}
