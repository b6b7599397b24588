package packer

import (
	_ "embed"
	"encoding/binary"
	"math"
	"unsafe"

	"github.com/cockroachdb/errors"
)

func putF32(buf []byte, off int, v float32) {
	binary.LittleEndian.PutUint32(buf[off:off+4], math.Float32bits(v))
}

func getF32(buf []byte, off int) float32 {
	return math.Float32frombits(binary.LittleEndian.Uint32(buf[off : off+4]))
}

func putVec(buf []byte, off int, v ...float32) {
	for i, f := range v {
		putF32(buf, off+i*4, f)
	}
}

// GPUPrimitiveSource is the canonical WGSL definition of the PrimitiveData struct.
// Matches GPUPrimitive layout exactly (80 bytes, std430 aligned).
//
//go:embed assets/primitive.wgsl
var GPUPrimitiveSource string

// GPUPrimitive is the per-primitive record the cull pass and vertex stage read.
// Size: 80 bytes.
type GPUPrimitive struct {
	Transform    [16]float32 // offset  0: primitive-to-world transform, column-major (64 bytes)
	Position     [3]float32  // offset 64: reference position for the distance test (12 bytes)
	CullDistance float32     // offset 76: instances further than this from the camera are culled
}

// Size returns the size of the GPUPrimitive struct in bytes.
func (g *GPUPrimitive) Size() int {
	return int(unsafe.Sizeof(*g))
}

// Marshal serializes the GPUPrimitive struct into a byte buffer suitable for GPU upload.
//
// Returns:
//   - []byte: 80-byte buffer ready for GPU upload.
func (g *GPUPrimitive) Marshal() []byte {
	buf := make([]byte, 80)
	putVec(buf, 0, g.Transform[:]...)
	putVec(buf, 64, g.Position[:]...)
	putF32(buf, 76, g.CullDistance)
	return buf
}

// GPUInstanceSource is the canonical WGSL definition of the InstanceData struct.
// Matches GPUInstance layout exactly (80 bytes, std430 aligned).
//
//go:embed assets/instance.wgsl
var GPUInstanceSource string

// GPUInstance is one instance as the vertex stage fetches it: four transform rows then the texture
// layer and owning primitive. The trailing words are reserved padding.
// Size: 80 bytes.
type GPUInstance struct {
	Rows      [4][4]float32 // offset  0: transform row vectors (64 bytes)
	TexIndex  uint32        // offset 64: texture-array layer
	PrimIndex uint32        // offset 68: owning primitive, indexes GPUPrimitive and the command table
	_pad0     [2]uint32     // offset 72: reserved
}

// Size returns the size of the GPUInstance struct in bytes.
func (g *GPUInstance) Size() int {
	return int(unsafe.Sizeof(*g))
}

// Marshal serializes the GPUInstance struct into a byte buffer suitable for GPU upload.
//
// Returns:
//   - []byte: 80-byte buffer ready for GPU upload.
func (g *GPUInstance) Marshal() []byte {
	buf := make([]byte, 80)
	g.put(buf)
	return buf
}

func (g *GPUInstance) put(buf []byte) {
	for r := 0; r < 4; r++ {
		putVec(buf, r*16, g.Rows[r][:]...)
	}
	binary.LittleEndian.PutUint32(buf[64:68], g.TexIndex)
	binary.LittleEndian.PutUint32(buf[68:72], g.PrimIndex)
	clear(buf[72:80])
}

// UnmarshalInstance decodes one GPUInstance. Padding is ignored.
//
// Parameters:
//   - buf: at least 80 bytes
//
// Returns:
//   - GPUInstance: the decoded instance
//   - error: buf is too short
func UnmarshalInstance(buf []byte) (GPUInstance, error) {
	var g GPUInstance
	if len(buf) < g.Size() {
		return g, errors.Newf("packer: instance needs %d bytes, got %d", g.Size(), len(buf))
	}
	for r := 0; r < 4; r++ {
		for c := 0; c < 4; c++ {
			g.Rows[r][c] = getF32(buf, r*16+c*4)
		}
	}
	g.TexIndex = binary.LittleEndian.Uint32(buf[64:68])
	g.PrimIndex = binary.LittleEndian.Uint32(buf[68:72])
	return g, nil
}

// GPUMaterialSource is the canonical WGSL definition of the Material struct.
// Matches GPUMaterial layout exactly (32 bytes, std430 aligned).
//
//go:embed assets/material.wgsl
var GPUMaterialSource string

// GPUMaterial is a tint and texture layer. Size: 32 bytes.
type GPUMaterial struct {
	Tint         [4]float32 // offset  0: RGBA tint (16 bytes)
	TextureIndex uint32     // offset 16: texture-array layer
	_pad0        [3]uint32  // offset 20: reserved
}

// Size returns the size of the GPUMaterial struct in bytes.
func (g *GPUMaterial) Size() int {
	return int(unsafe.Sizeof(*g))
}

// Marshal serializes the GPUMaterial struct into a byte buffer suitable for GPU upload.
//
// Returns:
//   - []byte: 32-byte buffer ready for GPU upload.
func (g *GPUMaterial) Marshal() []byte {
	buf := make([]byte, 32)
	putVec(buf, 0, g.Tint[:]...)
	binary.LittleEndian.PutUint32(buf[16:20], g.TextureIndex)
	return buf
}

// GPUSceneUniformSource is the canonical WGSL definition of the SceneUniform struct.
// Matches GPUSceneUniform layout exactly (256 bytes, std140 compatible).
//
//go:embed assets/scene_uniform.wgsl
var GPUSceneUniformSource string

// Cull test bits carried in GPUSceneUniform.CullTest.
const (
	CullTestDistance uint32 = 1 << iota
	CullTestFrustum
)

// GPUSceneUniform is the per-frame scene block: camera matrices, frustum planes and the inputs the
// cull pass needs. Size: 256 bytes.
type GPUSceneUniform struct {
	Projection     [16]float32   // offset   0
	View           [16]float32   // offset  64
	FrustumPlanes  [6][4]float32 // offset 128: normal.xyz, distance; positive is inside
	CameraPosition [3]float32    // offset 224
	ObjectCount    uint32        // offset 236: instances the cull pass walks
	CullTest       uint32        // offset 240: CullTestDistance | CullTestFrustum
	InstanceRadius float32       // offset 244: bounding radius of a unit-scale instance
	_pad0          [2]uint32     // offset 248: reserved
}

// Size returns the size of the GPUSceneUniform struct in bytes.
func (g *GPUSceneUniform) Size() int {
	return int(unsafe.Sizeof(*g))
}

// Marshal serializes the GPUSceneUniform struct into a byte buffer suitable for GPU upload.
//
// Returns:
//   - []byte: 256-byte buffer ready for GPU upload.
func (g *GPUSceneUniform) Marshal() []byte {
	buf := make([]byte, 256)
	putVec(buf, 0, g.Projection[:]...)
	putVec(buf, 64, g.View[:]...)
	for i, p := range g.FrustumPlanes {
		putVec(buf, 128+i*16, p[:]...)
	}
	putVec(buf, 224, g.CameraPosition[:]...)
	binary.LittleEndian.PutUint32(buf[236:240], g.ObjectCount)
	binary.LittleEndian.PutUint32(buf[240:244], g.CullTest)
	putF32(buf, 244, g.InstanceRadius)
	return buf
}

// UnmarshalSceneUniform decodes a scene block, as the software device does before culling.
//
// Parameters:
//   - buf: at least 256 bytes
//
// Returns:
//   - GPUSceneUniform: the decoded block
//   - error: buf is too short
func UnmarshalSceneUniform(buf []byte) (GPUSceneUniform, error) {
	var g GPUSceneUniform
	if len(buf) < g.Size() {
		return g, errors.Newf("packer: scene uniform needs %d bytes, got %d", g.Size(), len(buf))
	}
	for i := range g.Projection {
		g.Projection[i] = getF32(buf, i*4)
		g.View[i] = getF32(buf, 64+i*4)
	}
	for i := range g.FrustumPlanes {
		for c := 0; c < 4; c++ {
			g.FrustumPlanes[i][c] = getF32(buf, 128+i*16+c*4)
		}
	}
	for c := 0; c < 3; c++ {
		g.CameraPosition[c] = getF32(buf, 224+c*4)
	}
	g.ObjectCount = binary.LittleEndian.Uint32(buf[236:240])
	g.CullTest = binary.LittleEndian.Uint32(buf[240:244])
	g.InstanceRadius = getF32(buf, 244)
	return g, nil
}

// UnmarshalPrimitive decodes one GPUPrimitive.
func UnmarshalPrimitive(buf []byte) (GPUPrimitive, error) {
	var g GPUPrimitive
	if len(buf) < g.Size() {
		return g, errors.Newf("packer: primitive needs %d bytes, got %d", g.Size(), len(buf))
	}
	for i := range g.Transform {
		g.Transform[i] = getF32(buf, i*4)
	}
	for c := 0; c < 3; c++ {
		g.Position[c] = getF32(buf, 64+c*4)
	}
	g.CullDistance = getF32(buf, 76)
	return g, nil
}

// GPUVertex is one vertex of the instanced vertex stream. Vertex buffers carry no std430
// alignment requirement, so the layout is tight.
// Size: 44 bytes.
type GPUVertex struct {
	Position [3]float32 // offset  0
	Normal   [3]float32 // offset 12
	UV       [2]float32 // offset 24
	Color    [3]float32 // offset 32
}

// Size returns the size of the GPUVertex struct in bytes.
func (g *GPUVertex) Size() int {
	return int(unsafe.Sizeof(*g))
}

func (g *GPUVertex) put(buf []byte) {
	putVec(buf, 0, g.Position[:]...)
	putVec(buf, 12, g.Normal[:]...)
	putVec(buf, 24, g.UV[:]...)
	putVec(buf, 32, g.Color[:]...)
}

// Marshal serializes the GPUVertex struct into a byte buffer suitable for GPU upload.
func (g *GPUVertex) Marshal() []byte {
	buf := make([]byte, 44)
	g.put(buf)
	return buf
}

// GPUClusterSource is the canonical WGSL definition of the cluster-scene storage structs.
// Matches GPUClusterInstance (32 bytes) and GPUStorageVertex (64 bytes).
//
//go:embed assets/cluster.wgsl
var GPUClusterSource string

// GPUStorageVertex is a vertex fetched from a storage buffer by the cluster vertex stage. Every
// member is padded to a vec4 slot.
// Size: 64 bytes.
type GPUStorageVertex struct {
	Position [4]float32 // offset  0: xyz, w reserved
	Normal   [3]float32 // offset 16
	_pad0    float32    // offset 28
	UV       [2]float32 // offset 32
	_pad1    [2]float32 // offset 40
	Color    [3]float32 // offset 48
	_pad2    float32    // offset 60
}

// Size returns the size of the GPUStorageVertex struct in bytes.
func (g *GPUStorageVertex) Size() int {
	return int(unsafe.Sizeof(*g))
}

func (g *GPUStorageVertex) put(buf []byte) {
	putVec(buf, 0, g.Position[:]...)
	putVec(buf, 16, g.Normal[:]...)
	putVec(buf, 32, g.UV[:]...)
	putVec(buf, 48, g.Color[:]...)
}

// Marshal serializes the GPUStorageVertex struct into a byte buffer suitable for GPU upload.
func (g *GPUStorageVertex) Marshal() []byte {
	buf := make([]byte, 64)
	g.put(buf)
	return buf
}

// GPUClusterInstance is the decomposed instance transform of the cluster scene.
// Size: 32 bytes.
type GPUClusterInstance struct {
	Position [3]float32 // offset  0
	_pad0    float32    // offset 12
	Rotation [3]float32 // offset 16: euler radians, only yaw is used
	Scale    float32    // offset 28
}

// Size returns the size of the GPUClusterInstance struct in bytes.
func (g *GPUClusterInstance) Size() int {
	return int(unsafe.Sizeof(*g))
}

// Marshal serializes the GPUClusterInstance struct into a byte buffer suitable for GPU upload.
func (g *GPUClusterInstance) Marshal() []byte {
	buf := make([]byte, 32)
	putVec(buf, 0, g.Position[:]...)
	putVec(buf, 16, g.Rotation[:]...)
	putF32(buf, 28, g.Scale)
	return buf
}

// GPUDrawCommandSource is the canonical WGSL definition of the indirect command record, with the
// instance count declared atomic for the cull pass.
//
//go:embed assets/draw_command.wgsl
var GPUDrawCommandSource string
