package scene

import (
	"github.com/go-gl/mathgl/mgl32"
)

// Vertex is one mesh vertex as authored on the host.
type Vertex struct {
	Position mgl32.Vec3
	Normal   mgl32.Vec3
	UV       mgl32.Vec2
	Color    mgl32.Vec3
}

// Mesh is an indexed triangle list. Indices are relative to the mesh's own vertices.
type Mesh struct {
	Name     string
	Vertices []Vertex
	Indices  []uint32
}

// TriangleCount returns the number of whole triangles in the mesh.
func (m Mesh) TriangleCount() int {
	return len(m.Indices) / 3
}

// MeshRange locates a mesh inside a drawable's shared vertex and index streams.
type MeshRange struct {
	FirstIndex   uint32
	IndexCount   uint32
	VertexOffset int32
}

// Primitive is one drawable unit: a mesh range, a material and a world transform, drawn once per
// instance through a single indirect command.
type Primitive struct {
	Mesh          MeshRange
	Material      uint32
	Transform     mgl32.Mat4
	Position      mgl32.Vec3
	CullDistance  float32
	InstanceCount uint32
}

// Instance is one placed copy of a primitive. Rows holds the transform as four row vectors.
type Instance struct {
	Rows      [4][4]float32
	TexIndex  uint32
	Primitive uint32
}

// Material is a tint and a texture-array layer.
type Material struct {
	Tint         mgl32.Vec4
	TextureIndex uint32
}
