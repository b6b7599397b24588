package scene

import (
	"github.com/cockroachdb/errors"
)

// Drawable is one drawable category of a scene: geometry streams, primitives with their
// contiguous instances, and materials. Its Category decides which indirect steps render it.
type Drawable struct {
	Name     string
	Category Category

	Vertices []Vertex
	Indices  []uint32

	Primitives []Primitive
	Instances  []Instance
	Materials  []Material

	// Placements parallels Instances when the backend needs the decomposed form.
	Placements []Placement

	// ClusterTriangles is the cluster size for CategoryClustered drawables.
	ClusterTriangles uint32
}

// ObjectCount returns the total number of instances.
func (d *Drawable) ObjectCount() int {
	return len(d.Instances)
}

// InstanceCounts returns the authored instance count of every primitive in order.
func (d *Drawable) InstanceCounts() []uint32 {
	counts := make([]uint32, len(d.Primitives))
	for i, p := range d.Primitives {
		counts[i] = p.InstanceCount
	}
	return counts
}

// Validate checks that instances are packed contiguously per primitive in primitive order and that
// every mesh and material reference resolves.
//
// Returns:
//   - error: an assertion failure describing the first broken reference
func (d *Drawable) Validate() error {
	next := 0
	for pi, p := range d.Primitives {
		end := p.Mesh.FirstIndex + p.Mesh.IndexCount
		if end < p.Mesh.FirstIndex || int(end) > len(d.Indices) {
			return errors.AssertionFailedf("%s: primitive %d index range [%d,%d) exceeds %d indices",
				d.Name, pi, p.Mesh.FirstIndex, end, len(d.Indices))
		}
		if len(d.Materials) > 0 && int(p.Material) >= len(d.Materials) {
			return errors.AssertionFailedf("%s: primitive %d material %d out of range", d.Name, pi, p.Material)
		}
		for k := uint32(0); k < p.InstanceCount; k++ {
			if next >= len(d.Instances) {
				return errors.AssertionFailedf("%s: primitive %d expects %d instances, ran out at %d",
					d.Name, pi, p.InstanceCount, next)
			}
			if got := d.Instances[next].Primitive; got != uint32(pi) {
				return errors.AssertionFailedf("%s: instance %d belongs to primitive %d, expected %d",
					d.Name, next, got, pi)
			}
			next++
		}
	}
	if next != len(d.Instances) {
		return errors.AssertionFailedf("%s: %d instances not owned by any primitive", d.Name, len(d.Instances)-next)
	}
	if d.Placements != nil && len(d.Placements) != len(d.Instances) {
		return errors.AssertionFailedf("%s: %d placements for %d instances", d.Name, len(d.Placements), len(d.Instances))
	}
	if d.Category == CategoryClustered && d.ClusterTriangles == 0 {
		return errors.AssertionFailedf("%s: clustered drawable without a cluster size", d.Name)
	}
	return nil
}
