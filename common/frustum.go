package common

import (
	"github.com/go-gl/mathgl/mgl32"
)

// Plane represents a plane in 3D space using the equation: ax + by + cz + d = 0
// where (a, b, c) is the normal and d is the distance from origin.
type Plane struct {
	Normal   mgl32.Vec3
	Distance float32
}

// SignedDistance returns the signed distance from p to the plane. Positive is inside.
func (p Plane) SignedDistance(v mgl32.Vec3) float32 {
	return p.Normal.Dot(v) + p.Distance
}

// Frustum represents the six planes of a view frustum for culling.
// Planes are oriented so that positive half-space is inside the frustum.
type Frustum struct {
	Planes [6]Plane // Left, Right, Bottom, Top, Near, Far
}

// FrustumPlane indices for clarity
const (
	FrustumLeft   = 0
	FrustumRight  = 1
	FrustumBottom = 2
	FrustumTop    = 3
	FrustumNear   = 4
	FrustumFar    = 5
)

// ExtractFrustum extracts frustum planes from a combined projection * view matrix using the
// Gribb/Hartmann method. Depth is assumed to map to [0, 1], so the near plane is row 2 alone.
//
// Reference: https://www8.cs.umu.se/kurser/5DV051/HT12/lab/plane_extraction.pdf
//
// Parameters:
//   - viewProj: the view-projection matrix
//
// Returns:
//   - Frustum: the extracted frustum with normalized planes
func ExtractFrustum(viewProj mgl32.Mat4) Frustum {
	r0, r1, r2, r3 := viewProj.Row(0), viewProj.Row(1), viewProj.Row(2), viewProj.Row(3)

	var f Frustum
	f.Planes[FrustumLeft] = planeFrom(r3.Add(r0))
	f.Planes[FrustumRight] = planeFrom(r3.Sub(r0))
	f.Planes[FrustumBottom] = planeFrom(r3.Add(r1))
	f.Planes[FrustumTop] = planeFrom(r3.Sub(r1))
	f.Planes[FrustumNear] = planeFrom(r2)
	f.Planes[FrustumFar] = planeFrom(r3.Sub(r2))
	return f
}

// planeFrom normalizes a plane so that the normal has unit length.
func planeFrom(v mgl32.Vec4) Plane {
	p := Plane{Normal: v.Vec3(), Distance: v.W()}
	if length := p.Normal.Len(); length > 0 {
		invLen := 1.0 / length
		p.Normal = p.Normal.Mul(invLen)
		p.Distance *= invLen
	}
	return p
}

// SphereVisible reports whether a bounding sphere intersects or lies inside the frustum.
//
// Parameters:
//   - center: sphere center in world space
//   - radius: sphere radius
//
// Returns:
//   - bool: false only when the sphere lies entirely outside at least one plane
func (f Frustum) SphereVisible(center mgl32.Vec3, radius float32) bool {
	for _, p := range f.Planes {
		if p.SignedDistance(center) < -radius {
			return false
		}
	}
	return true
}

// AABBVisible tests an axis-aligned box against every plane using the box corner furthest along
// the plane normal.
//
// Parameters:
//   - lo: minimum corner
//   - hi: maximum corner
//
// Returns:
//   - bool: false only when the box lies entirely outside at least one plane
func (f Frustum) AABBVisible(lo, hi mgl32.Vec3) bool {
	for _, p := range f.Planes {
		var v mgl32.Vec3
		for axis := 0; axis < 3; axis++ {
			if p.Normal[axis] >= 0 {
				v[axis] = hi[axis]
			} else {
				v[axis] = lo[axis]
			}
		}
		if p.SignedDistance(v) < 0 {
			return false
		}
	}
	return true
}

// Packed returns the planes as vec4s (normal.xyz, distance) in the order the cull shader reads them.
func (f Frustum) Packed() [6][4]float32 {
	var out [6][4]float32
	for i, p := range f.Planes {
		out[i] = [4]float32{p.Normal[0], p.Normal[1], p.Normal[2], p.Distance}
	}
	return out
}
