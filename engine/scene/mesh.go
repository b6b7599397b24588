package scene

import (
	"fmt"

	"github.com/chewxy/math32"
	"github.com/go-gl/mathgl/mgl32"
)

// PlantMesh builds a bundle of crossed, vertically subdivided quads. Variants differ in blade
// count and height so each plant type has its own index range.
//
// Parameters:
//   - variant: plant type, starting at 0
//
// Returns:
//   - Mesh: the plant geometry
func PlantMesh(variant int) Mesh {
	blades := 2 + variant
	const rows = 4
	height := 1 + 0.25*float32(variant)
	color := mgl32.Vec3{0.3, 0.6 + 0.1*float32(variant%3), 0.2}

	m := Mesh{Name: fmt.Sprintf("plant_%d", variant)}
	for b := 0; b < blades; b++ {
		angle := math32.Pi * float32(b) / float32(blades)
		dir := mgl32.Vec3{math32.Cos(angle), 0, math32.Sin(angle)}
		normal := mgl32.Vec3{-dir.Z(), 0, dir.X()}
		base := uint32(len(m.Vertices))
		for r := 0; r <= rows; r++ {
			v := float32(r) / rows
			y := v * height
			m.Vertices = append(m.Vertices,
				Vertex{Position: dir.Mul(-0.5).Add(mgl32.Vec3{0, y, 0}), Normal: normal, UV: mgl32.Vec2{0, 1 - v}, Color: color},
				Vertex{Position: dir.Mul(0.5).Add(mgl32.Vec3{0, y, 0}), Normal: normal, UV: mgl32.Vec2{1, 1 - v}, Color: color},
			)
		}
		for r := uint32(0); r < rows; r++ {
			i := base + r*2
			m.Indices = append(m.Indices, i, i+1, i+2, i+2, i+1, i+3)
		}
	}
	return m
}

// GroundMesh builds a flat square grid centred on the origin.
//
// Parameters:
//   - size: edge length
//   - cells: grid cells per edge
//
// Returns:
//   - Mesh: the ground geometry
func GroundMesh(size float32, cells int) Mesh {
	m := Mesh{Name: "ground"}
	step := size / float32(cells)
	half := size / 2
	for z := 0; z <= cells; z++ {
		for x := 0; x <= cells; x++ {
			m.Vertices = append(m.Vertices, Vertex{
				Position: mgl32.Vec3{float32(x)*step - half, 0, float32(z)*step - half},
				Normal:   mgl32.Vec3{0, 1, 0},
				UV:       mgl32.Vec2{float32(x), float32(z)},
				Color:    mgl32.Vec3{1, 1, 1},
			})
		}
	}
	stride := uint32(cells + 1)
	for z := uint32(0); z < uint32(cells); z++ {
		for x := uint32(0); x < uint32(cells); x++ {
			i := z*stride + x
			m.Indices = append(m.Indices, i, i+stride, i+1, i+1, i+stride, i+stride+1)
		}
	}
	return m
}

// SphereMesh builds a UV sphere, used for the sky dome.
//
// Parameters:
//   - radius: sphere radius
//   - rings: latitude bands
//   - segments: longitude bands
//
// Returns:
//   - Mesh: the sphere geometry
func SphereMesh(radius float32, rings, segments int) Mesh {
	m := Mesh{Name: "skysphere"}
	for r := 0; r <= rings; r++ {
		phi := math32.Pi * float32(r) / float32(rings)
		for s := 0; s <= segments; s++ {
			theta := 2 * math32.Pi * float32(s) / float32(segments)
			n := mgl32.Vec3{math32.Sin(phi) * math32.Cos(theta), math32.Cos(phi), math32.Sin(phi) * math32.Sin(theta)}
			m.Vertices = append(m.Vertices, Vertex{
				Position: n.Mul(radius),
				Normal:   n,
				UV:       mgl32.Vec2{float32(s) / float32(segments), float32(r) / float32(rings)},
				Color:    mgl32.Vec3{1, 1, 1},
			})
		}
	}
	stride := uint32(segments + 1)
	for r := uint32(0); r < uint32(rings); r++ {
		for s := uint32(0); s < uint32(segments); s++ {
			i := r*stride + s
			m.Indices = append(m.Indices, i, i+1, i+stride, i+stride, i+1, i+stride+1)
		}
	}
	return m
}

// NoodleMesh builds a tube swept along a sine curve. segments*sides*2 triangles; 32x32 gives 6144
// indices, 32 clusters of 64 triangles.
//
// Parameters:
//   - segments: rings along the tube
//   - sides: vertices around each ring
//   - length: tube length
//   - thickness: tube radius
//
// Returns:
//   - Mesh: the tube geometry
func NoodleMesh(segments, sides int, length, thickness float32) Mesh {
	m := Mesh{Name: "noodle"}
	for s := 0; s <= segments; s++ {
		t := float32(s) / float32(segments)
		center := mgl32.Vec3{0, t * length, 0.3 * math32.Sin(t*2*math32.Pi)}
		for k := 0; k < sides; k++ {
			a := 2 * math32.Pi * float32(k) / float32(sides)
			n := mgl32.Vec3{math32.Cos(a), 0, math32.Sin(a)}
			m.Vertices = append(m.Vertices, Vertex{
				Position: center.Add(n.Mul(thickness)),
				Normal:   n,
				UV:       mgl32.Vec2{float32(k) / float32(sides), t},
				Color:    mgl32.Vec3{0.9, 0.8, 0.4},
			})
		}
	}
	ring := uint32(sides)
	for s := uint32(0); s < uint32(segments); s++ {
		for k := uint32(0); k < ring; k++ {
			a := s*ring + k
			b := s*ring + (k+1)%ring
			m.Indices = append(m.Indices, a, a+ring, b, b, a+ring, b+ring)
		}
	}
	return m
}

// MeshSet concatenates meshes into one vertex stream and one index stream.
type MeshSet struct {
	Vertices []Vertex
	Indices  []uint32
}

// Add appends a mesh and returns where it landed. Indices stay mesh-relative; the returned
// VertexOffset rebases them at draw time.
//
// Parameters:
//   - m: the mesh to append
//
// Returns:
//   - MeshRange: first index, index count and vertex offset of m
func (s *MeshSet) Add(m Mesh) MeshRange {
	r := MeshRange{
		FirstIndex:   uint32(len(s.Indices)),
		IndexCount:   uint32(len(m.Indices)),
		VertexOffset: int32(len(s.Vertices)),
	}
	s.Vertices = append(s.Vertices, m.Vertices...)
	s.Indices = append(s.Indices, m.Indices...)
	return r
}
