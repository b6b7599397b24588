package scene

import "fmt"

// Category tags a drawable with the indirect technique that renders it.
type Category uint8

const (
	// CategoryStatic draws a command table authored once at build time.
	CategoryStatic Category = iota
	// CategoryCulled regenerates instance counts every frame with the compute cull pass.
	CategoryCulled
	// CategoryClustered draws every (instance, cluster) pair as a pseudo-instance of one command.
	CategoryClustered
)

func (c Category) String() string {
	switch c {
	case CategoryStatic:
		return "static"
	case CategoryCulled:
		return "culled"
	case CategoryClustered:
		return "clustered"
	default:
		return fmt.Sprintf("category(%d)", uint8(c))
	}
}

// UsesCullPass reports whether the compute cull pass writes this category's instance counts.
func (c Category) UsesCullPass() bool {
	return c == CategoryCulled
}

// UsesClusters reports whether the command table is built from cluster descriptors.
func (c Category) UsesClusters() bool {
	return c == CategoryClustered
}

// NeedsOwnershipTransfer reports whether the indirect buffer crosses between the compute and
// graphics queues each frame.
func (c Category) NeedsOwnershipTransfer() bool {
	return c == CategoryCulled
}
