package indirect

import (
	"encoding/binary"
	"log/slog"

	"github.com/Carmen-Shannon/oxy-indirect/engine/scene"
	"github.com/cockroachdb/errors"
)

// Cluster addresses one fixed-size triangle group of one instance. The vertex stage reads
// IndexOffset + gl_VertexIndex from the index storage buffer and the instance transform at
// InstanceOffset.
type Cluster struct {
	IndexOffset    uint32
	InstanceOffset uint32
}

// ClusterStride is the byte size of one Cluster.
const ClusterStride = 8

// Marshal serializes the cluster descriptor.
func (c *Cluster) Marshal() []byte {
	buf := make([]byte, ClusterStride)
	binary.LittleEndian.PutUint32(buf[0:4], c.IndexOffset)
	binary.LittleEndian.PutUint32(buf[4:8], c.InstanceOffset)
	return buf
}

// ClusterCount returns how many whole clusters of trianglesPerCluster fit in indexCount indices.
// Trailing triangles that do not fill a cluster are not drawn.
//
// Parameters:
//   - indexCount: indices in the mesh
//   - trianglesPerCluster: triangles per cluster
//
// Returns:
//   - uint32: indexCount / 3 / trianglesPerCluster
func ClusterCount(indexCount, trianglesPerCluster uint32) uint32 {
	if trianglesPerCluster == 0 {
		return 0
	}
	return indexCount / 3 / trianglesPerCluster
}

// ClusterIndexBuffer returns the fixed 0..n-1 index stream every cluster draw reuses.
func ClusterIndexBuffer(trianglesPerCluster uint32) []uint32 {
	idx := make([]uint32, trianglesPerCluster*3)
	for i := range idx {
		idx[i] = uint32(i)
	}
	return idx
}

// ClusterTable is the cluster decomposition of a drawable and the single command that draws it.
type ClusterTable struct {
	Clusters            []Cluster
	Command             Command
	ClustersPerInstance []uint32 // per primitive
	DroppedTriangles    uint32   // per instance, summed over primitives
}

// Table returns the single-command table drawn for the clusters.
func (ct ClusterTable) Table() Table {
	return Table{ct.Command}
}

// Bytes serializes the cluster descriptors.
func (ct ClusterTable) Bytes() []byte {
	buf := make([]byte, 0, len(ct.Clusters)*ClusterStride)
	for i := range ct.Clusters {
		buf = append(buf, ct.Clusters[i].Marshal()...)
	}
	return buf
}

// BuildClusters decomposes every primitive's index range into clusters of d.ClusterTriangles
// triangles and emits one descriptor per (instance, cluster), instance-major. The drawn command is
// {indexCount: triangles*3, instanceCount: len(clusters)}.
//
// Parameters:
//   - d: a CategoryClustered drawable
//
// Returns:
//   - ClusterTable: descriptors and command
//   - error: wrong category, zero cluster size, or a descriptor count that overflows uint32
func BuildClusters(d *scene.Drawable) (ClusterTable, error) {
	if d.Category != scene.CategoryClustered {
		return ClusterTable{}, errors.Newf("indirect: %s is %s, not clustered", d.Name, d.Category)
	}
	tri := d.ClusterTriangles
	if tri == 0 {
		return ClusterTable{}, errors.Newf("indirect: %s has no cluster size", d.Name)
	}

	ct := ClusterTable{ClustersPerInstance: make([]uint32, len(d.Primitives))}
	var total uint64
	for pi, p := range d.Primitives {
		n := ClusterCount(p.Mesh.IndexCount, tri)
		ct.ClustersPerInstance[pi] = n
		if rem := p.Mesh.IndexCount/3 - n*tri; rem > 0 {
			ct.DroppedTriangles += rem
			slog.Warn("trailing triangles do not fill a cluster and are skipped",
				"drawable", d.Name, "primitive", pi, "triangles", rem, "cluster_triangles", tri)
		}
		total += uint64(n) * uint64(p.InstanceCount)
	}
	if total > 1<<32-1 {
		return ClusterTable{}, errors.AssertionFailedf("indirect: %d clusters overflow uint32", total)
	}

	ct.Clusters = make([]Cluster, 0, total)
	instance := uint32(0)
	for pi, p := range d.Primitives {
		for k := uint32(0); k < p.InstanceCount; k++ {
			for c := uint32(0); c < ct.ClustersPerInstance[pi]; c++ {
				ct.Clusters = append(ct.Clusters, Cluster{
					IndexOffset:    p.Mesh.FirstIndex + c*tri*3,
					InstanceOffset: instance,
				})
			}
			instance++
		}
	}

	ct.Command = Command{
		IndexCount:    tri * 3,
		InstanceCount: uint32(len(ct.Clusters)),
	}
	return ct, nil
}
