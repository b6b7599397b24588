package cull

import (
	"sync/atomic"

	"github.com/Carmen-Shannon/automation/tools/worker"
	"github.com/Carmen-Shannon/oxy-indirect/common"
	"github.com/Carmen-Shannon/oxy-indirect/engine/renderer/packer"
	"github.com/chewxy/math32"
	"github.com/cockroachdb/errors"
	"github.com/go-gl/mathgl/mgl32"
)

// Inputs are the buffers the cull kernel binds, decoded on the host.
type Inputs struct {
	Scene      packer.GPUSceneUniform
	Primitives []packer.GPUPrimitive
	Instances  []packer.GPUInstance
}

// Visible applies the kernel's visibility test to one instance.
//
// Parameters:
//   - u: the scene block (camera, frustum, enabled tests)
//   - prim: the instance's primitive
//   - inst: the instance
//
// Returns:
//   - bool: true when the instance passes every enabled test
func Visible(u *packer.GPUSceneUniform, prim *packer.GPUPrimitive, inst *packer.GPUInstance) bool {
	local := mgl32.Vec4{inst.Rows[0][3], inst.Rows[1][3], inst.Rows[2][3], 1}
	world := mgl32.Mat4(prim.Transform).Mul4x1(local).Vec3()

	if u.CullTest&packer.CullTestDistance != 0 {
		if world.Sub(mgl32.Vec3(u.CameraPosition)).Len() > prim.CullDistance {
			return false
		}
	}
	if u.CullTest&packer.CullTestFrustum != 0 {
		sx := mgl32.Vec3{inst.Rows[0][0], inst.Rows[1][0], inst.Rows[2][0]}.Len()
		sy := mgl32.Vec3{inst.Rows[0][1], inst.Rows[1][1], inst.Rows[2][1]}.Len()
		radius := u.InstanceRadius * math32.Max(sx, sy)
		for _, p := range u.FrustumPlanes {
			if (mgl32.Vec3{p[0], p[1], p[2]}).Dot(world)+p[3] < -radius {
				return false
			}
		}
	}
	return true
}

// Pass is the host implementation of the cull kernel. Each workgroup becomes one worker task and
// increments shared counters atomically, so results do not depend on task order.
type Pass struct {
	pool           worker.DynamicWorkerPool
	localGroupSize uint32
}

// NewPass creates a host cull pass.
//
// Parameters:
//   - pool: the worker pool workgroups run on
//   - localGroupSize: invocations per workgroup
//
// Returns:
//   - *Pass: the pass
func NewPass(pool worker.DynamicWorkerPool, localGroupSize uint32) *Pass {
	return &Pass{pool: pool, localGroupSize: max(localGroupSize, 1)}
}

// Run resets every count to zero and then counts visible instances per owning command, exactly
// as the reset_counts and cull entry points do.
//
// Parameters:
//   - in: decoded kernel inputs; Scene.ObjectCount bounds the walk
//   - counts: one counter per command, overwritten
//
// Returns:
//   - error: an instance references a primitive or command that does not exist
func (p *Pass) Run(in Inputs, counts []uint32) error {
	return p.Compact(in, nil, counts, nil)
}

// Compact is Run plus the visible stream the kernel writes: every visible instance takes the
// next free place in its command's range, first[c]+counts[c], and records its source index
// there. Within a range the order depends on scheduling; the set does not.
//
// Parameters:
//   - in: decoded kernel inputs; Scene.ObjectCount bounds the walk
//   - first: firstInstance of each command, read only; may be nil when remap is nil
//   - counts: one counter per command, overwritten
//   - remap: visible place -> source instance index; nil skips the stream
//
// Returns:
//   - error: an instance references a primitive or command that does not exist, or a range
//     overflows remap
func (p *Pass) Compact(in Inputs, first, counts, remap []uint32) error {
	for i := range counts {
		atomic.StoreUint32(&counts[i], 0)
	}
	if remap != nil && len(first) < len(counts) {
		return errors.AssertionFailedf("cull: %d first instances for %d commands", len(first), len(counts))
	}

	n := min(int(in.Scene.ObjectCount), len(in.Instances))
	groups := int(GroupCount(uint32(n), p.localGroupSize))
	return common.RunTasks(p.pool, groups, func(g int) error {
		start := g * int(p.localGroupSize)
		end := min(start+int(p.localGroupSize), n)
		for idx := start; idx < end; idx++ {
			inst := &in.Instances[idx]
			pi := int(inst.PrimIndex)
			if pi >= len(in.Primitives) || pi >= len(counts) {
				return errors.AssertionFailedf("cull: instance %d references primitive %d of %d", idx, pi, len(in.Primitives))
			}
			if !Visible(&in.Scene, &in.Primitives[pi], inst) {
				continue
			}
			place := atomic.AddUint32(&counts[pi], 1) - 1
			if remap == nil {
				continue
			}
			at := int(first[pi]) + int(place)
			if at >= len(remap) {
				return errors.AssertionFailedf("cull: instance %d lands at %d past a visible stream of %d", idx, at, len(remap))
			}
			remap[at] = uint32(idx)
		}
		return nil
	})
}
