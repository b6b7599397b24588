package cull

import (
	_ "embed"
	"fmt"
	"strings"

	"github.com/Carmen-Shannon/oxy-indirect/common"
	"github.com/Carmen-Shannon/oxy-indirect/engine/config"
	"github.com/Carmen-Shannon/oxy-indirect/engine/renderer/packer"
)

// KernelSource is the WGSL cull kernel with the default workgroup size.
//
//go:embed assets/cull.wgsl
var KernelSource string

// Kernel entry points.
const (
	EntryReset = "reset_counts"
	EntryCull  = "cull"
)

// DefaultInstanceRadius bounds a unit-scale plant mesh.
const DefaultInstanceRadius float32 = 1.5

// Kernel returns the cull kernel compiled for the given workgroup size.
//
// Parameters:
//   - localGroupSize: invocations per workgroup
//
// Returns:
//   - string: WGSL source
func Kernel(localGroupSize uint32) string {
	return strings.Replace(KernelSource,
		"const WORKGROUP_SIZE: u32 = 64u;",
		fmt.Sprintf("const WORKGROUP_SIZE: u32 = %du;", localGroupSize), 1)
}

// GroupCount returns the workgroups needed for one invocation per object:
// ceil(objectCount / localGroupSize).
func GroupCount(objectCount, localGroupSize uint32) uint32 {
	return common.CeilDiv(objectCount, localGroupSize)
}

// TestBits maps the configured cull test to the bits the kernel reads.
func TestBits(t config.CullTest) uint32 {
	switch t {
	case config.CullDistance:
		return packer.CullTestDistance
	case config.CullFrustum:
		return packer.CullTestFrustum
	default:
		return packer.CullTestDistance | packer.CullTestFrustum
	}
}

// NextTest cycles distance -> frustum -> both, for the interactive toggle.
func NextTest(t config.CullTest) config.CullTest {
	switch t {
	case config.CullDistance:
		return config.CullFrustum
	case config.CullFrustum:
		return config.CullBoth
	default:
		return config.CullDistance
	}
}
