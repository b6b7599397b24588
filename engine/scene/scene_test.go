package scene

import (
	"testing"
	"time"

	"github.com/Carmen-Shannon/automation/tools/worker"
	"github.com/Carmen-Shannon/oxy-indirect/engine/config"
	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIndirectDrawScene(t *testing.T) {
	cfg := config.New(config.WithBenchmark(true))
	s, err := NewScene("plants", cfg)
	require.NoError(t, err)

	assert.Equal(t, uint64(0), s.Seed())
	assert.Equal(t, 1024, s.ObjectCount())

	plants := s.Main()
	require.NotNil(t, plants)
	assert.Equal(t, CategoryStatic, plants.Category)
	assert.Len(t, plants.Primitives, 32)
	assert.Len(t, plants.Materials, cfg.PlantTypes)

	names := []string{}
	for _, d := range s.Drawables() {
		names = append(names, d.Name)
	}
	assert.Equal(t, []string{DrawableSky, DrawableGround, DrawablePlants}, names)
	assert.NotNil(t, s.Drawable(DrawableGround))
	assert.Nil(t, s.Drawable("missing"))
}

func TestPlantGridLayout(t *testing.T) {
	cfg := config.New(config.WithBenchmark(true))
	s, err := NewScene("plants", cfg, WithGround(false), WithSky(false))
	require.NoError(t, err)
	plants := s.Main()

	p5 := plants.Primitives[5]
	assert.Equal(t, float32(5), p5.Position.X(), "column 1 of a 4-wide grid")
	assert.Equal(t, float32(5), p5.Position.Z(), "row 1")
	assert.Equal(t, float32(100), p5.CullDistance)
	assert.Equal(t, uint32(1), p5.Material)

	for i, inst := range plants.Instances {
		assert.Equal(t, uint32(i/cfg.InstancesPerPrimitive), inst.Primitive)
	}
}

func TestBenchmarkScenesAreReproducible(t *testing.T) {
	cfg := config.New(config.WithBenchmark(true), config.WithWorkers(8))
	a, err := NewScene("a", cfg, WithVariant(VariantCulled))
	require.NoError(t, err)
	b, err := NewScene("b", cfg, WithVariant(VariantCulled), WithComputeWorkers(1))
	require.NoError(t, err)

	assert.Equal(t, CategoryCulled, a.Main().Category)
	assert.Equal(t, a.Main().Instances, b.Main().Instances, "placement must not depend on scheduling")
}

func TestNoodleScene(t *testing.T) {
	cfg := config.New(config.WithBenchmark(true), config.WithClusters(64, 128))
	s, err := NewScene("noodles", cfg, WithVariant(VariantNoodleBatch))
	require.NoError(t, err)

	d := s.Main()
	assert.Equal(t, CategoryClustered, d.Category)
	assert.Equal(t, 128, d.ObjectCount())
	require.Len(t, d.Primitives, 1)
	assert.Equal(t, uint32(6144), d.Primitives[0].Mesh.IndexCount)
	assert.Equal(t, uint32(64), d.ClusterTriangles)
}

func TestNewSceneRejectsBadConfig(t *testing.T) {
	_, err := NewScene("bad", nil)
	assert.Error(t, err)

	_, err = NewScene("bad", config.New(config.WithPrimitives(0, 32)))
	assert.ErrorContains(t, err, "primitive_count")
}

func TestDrawableValidate(t *testing.T) {
	cfg := config.New(config.WithBenchmark(true), config.WithPrimitives(4, 3))
	pool := worker.NewDynamicWorkerPool(2, 16, time.Second)
	d, err := BuildPlants(cfg, 1, CategoryStatic, pool)
	require.NoError(t, err)
	require.NoError(t, d.Validate())
	assert.Equal(t, []uint32{3, 3, 3, 3}, d.InstanceCounts())

	d.Instances[4].Primitive = 0
	err = d.Validate()
	require.Error(t, err)
	assert.True(t, errors.HasAssertionFailure(err))

	d.Instances[4].Primitive = 1
	d.Instances = d.Instances[:len(d.Instances)-1]
	assert.Error(t, d.Validate())
}

func TestMeshSetRebasesRanges(t *testing.T) {
	var set MeshSet
	a := set.Add(PlantMesh(0))
	b := set.Add(PlantMesh(1))

	assert.Equal(t, uint32(0), a.FirstIndex)
	assert.Equal(t, a.IndexCount, b.FirstIndex)
	assert.Equal(t, int32(len(PlantMesh(0).Vertices)), b.VertexOffset)
	assert.Equal(t, 6144, len(NoodleMesh(32, 32, 1, 0.1).Indices))
}
