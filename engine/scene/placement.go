package scene

import (
	"math/rand/v2"

	"github.com/Carmen-Shannon/oxy-indirect/common"
	"github.com/chewxy/math32"
	"github.com/go-gl/mathgl/mgl32"
)

// Placement is the procedural position, yaw and scale of one instance.
type Placement struct {
	Position  mgl32.Vec3
	RotationY float32
	Scale     float32
}

// Matrix returns translate(Position) * rotateY(RotationY) * scale(Scale).
func (p Placement) Matrix() mgl32.Mat4 {
	if p.RotationY == 0 {
		return common.PlacementMatrix(p.Position, p.Scale)
	}
	return mgl32.Translate3D(p.Position.X(), p.Position.Y(), p.Position.Z()).
		Mul4(mgl32.HomogRotate3DY(p.RotationY)).
		Mul4(mgl32.Scale3D(p.Scale, p.Scale, p.Scale))
}

// newRand returns the generator every placement draws from. The second PCG word is fixed so the
// sequence depends on seed alone.
func newRand(seed uint64) *rand.Rand {
	return rand.New(rand.NewPCG(seed, 0x9e3779b97f4a7c15))
}

// discPoint maps two uniform samples onto the flattened sphere distribution the demos use:
// theta = 2πu, phi = acos(1-2v), (sinφ cosθ, 0, cosφ) * radius.
func discPoint(r *rand.Rand, radius float32) mgl32.Vec3 {
	theta := 2 * math32.Pi * r.Float32()
	phi := math32.Acos(1 - 2*r.Float32())
	return mgl32.Vec3{
		math32.Sin(phi) * math32.Cos(theta),
		0,
		math32.Cos(phi),
	}.Mul(radius)
}

// Place scatters count instances with a fixed uniform scale. It is a pure function of its
// arguments: the same seed and count always produce the same placements.
//
// Parameters:
//   - seed: generator seed; benchmark mode passes 0
//   - count: number of placements
//   - radius: distribution radius
//   - scale: uniform scale carried by every placement
//
// Returns:
//   - []Placement: count placements in generation order
func Place(seed uint64, count int, radius, scale float32) []Placement {
	r := newRand(seed)
	out := make([]Placement, count)
	for i := range out {
		out[i] = Placement{
			Position: discPoint(r, radius),
			Scale:    scale,
		}
	}
	return out
}

// PlaceVaried scatters count instances with a random yaw in [0, π) and a scale in [1, 3), the
// distribution of the cluster scene.
//
// Parameters:
//   - seed: generator seed
//   - count: number of placements
//   - radius: distribution radius
//
// Returns:
//   - []Placement: count placements in generation order
func PlaceVaried(seed uint64, count int, radius float32) []Placement {
	r := newRand(seed)
	out := make([]Placement, count)
	for i := range out {
		pos := discPoint(r, radius)
		out[i] = Placement{
			Position:  pos,
			RotationY: math32.Pi * r.Float32(),
			Scale:     1 + 2*r.Float32(),
		}
	}
	return out
}

// DeriveSeed mixes a scene seed with an index so independent placement streams can run in
// parallel without depending on scheduling order (splitmix64 finalizer).
func DeriveSeed(seed uint64, index int) uint64 {
	z := seed + uint64(index+1)*0x9e3779b97f4a7c15
	z = (z ^ (z >> 30)) * 0xbf58476d1ce4e5b9
	z = (z ^ (z >> 27)) * 0x94d049bb133111eb
	return z ^ (z >> 31)
}
