package cull

import (
	"github.com/Carmen-Shannon/oxy-indirect/common"
	"github.com/Carmen-Shannon/oxy-indirect/engine/config"
	"github.com/Carmen-Shannon/oxy-indirect/engine/renderer/packer"
	"github.com/cockroachdb/errors"
	"github.com/go-gl/mathgl/mgl32"
)

// Camera is the view the scene block is built from.
type Camera struct {
	Projection mgl32.Mat4
	View       mgl32.Mat4
	Eye        mgl32.Vec3
}

// SceneUniform builds the per-frame scene block for a camera.
//
// Parameters:
//   - cam: projection, view and eye position
//   - objectCount: instances the kernel walks
//   - test: which visibility tests are enabled
//
// Returns:
//   - packer.GPUSceneUniform: the block, frustum planes extracted from projection*view
func SceneUniform(cam Camera, objectCount uint32, test config.CullTest) packer.GPUSceneUniform {
	return packer.GPUSceneUniform{
		Projection:     cam.Projection,
		View:           cam.View,
		FrustumPlanes:  common.ExtractFrustum(cam.Projection.Mul4(cam.View)).Packed(),
		CameraPosition: cam.Eye,
		ObjectCount:    objectCount,
		CullTest:       TestBits(test),
		InstanceRadius: DefaultInstanceRadius,
	}
}

// DecodeInputs rebuilds kernel inputs from byte images, as a device that reads its own buffers
// would see them.
//
// Parameters:
//   - uniform: the scene block image
//   - primitives: the primitives segment of the metadata buffer
//   - instances: the instance stream
//
// Returns:
//   - Inputs: decoded inputs
//   - error: a short or misaligned image
func DecodeInputs(uniform, primitives, instances []byte) (Inputs, error) {
	var in Inputs
	u, err := packer.UnmarshalSceneUniform(uniform)
	if err != nil {
		return in, err
	}
	in.Scene = u

	const primStride, instStride = 80, 80
	if len(primitives)%primStride != 0 || len(instances)%instStride != 0 {
		return in, errors.Newf("cull: misaligned inputs (%d primitive bytes, %d instance bytes)", len(primitives), len(instances))
	}
	in.Primitives = make([]packer.GPUPrimitive, len(primitives)/primStride)
	for i := range in.Primitives {
		if in.Primitives[i], err = packer.UnmarshalPrimitive(primitives[i*primStride:]); err != nil {
			return in, err
		}
	}
	in.Instances = make([]packer.GPUInstance, len(instances)/instStride)
	for i := range in.Instances {
		if in.Instances[i], err = packer.UnmarshalInstance(instances[i*instStride:]); err != nil {
			return in, err
		}
	}
	return in, nil
}
