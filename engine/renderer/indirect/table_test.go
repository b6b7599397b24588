package indirect

import (
	"math/rand/v2"
	"testing"

	"github.com/Carmen-Shannon/oxy-indirect/engine/config"
	"github.com/Carmen-Shannon/oxy-indirect/engine/scene"
	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func primitivesWith(counts ...uint32) []scene.Primitive {
	ps := make([]scene.Primitive, len(counts))
	for i, c := range counts {
		ps[i] = scene.Primitive{
			Mesh:          scene.MeshRange{FirstIndex: uint32(i * 24), IndexCount: 24, VertexOffset: int32(i * 10)},
			InstanceCount: c,
		}
	}
	return ps
}

func TestBuildStaticRunningSum(t *testing.T) {
	r := rand.New(rand.NewPCG(1, 2))
	for trial := 0; trial < 50; trial++ {
		counts := make([]uint32, r.IntN(40))
		for i := range counts {
			counts[i] = uint32(r.IntN(100))
		}
		table, err := BuildStatic(primitivesWith(counts...))
		require.NoError(t, err)
		require.NoError(t, table.Validate())

		var sum uint32
		for i, c := range table {
			assert.Equal(t, sum, c.FirstInstance, "command %d", i)
			sum += c.InstanceCount
		}
	}
}

func TestDefaultSceneTable(t *testing.T) {
	s, err := scene.NewScene("plants", config.New(config.WithBenchmark(true)))
	require.NoError(t, err)
	assert.Equal(t, 1024, s.ObjectCount())

	table, err := BuildStatic(s.Main().Primitives)
	require.NoError(t, err)
	assert.Len(t, table, 32)
	assert.Equal(t, uint64(1024), table.TotalInstances())
	assert.Equal(t, uint32(32*31), table[31].FirstInstance)
}

func TestValidateCatchesBrokenSum(t *testing.T) {
	table, err := BuildStatic(primitivesWith(3, 4, 5))
	require.NoError(t, err)

	table[2].FirstInstance++
	err = table.Validate()
	require.Error(t, err)
	assert.True(t, errors.HasAssertionFailure(err))
}

func TestBuildStaticOverflow(t *testing.T) {
	_, err := BuildStatic(primitivesWith(1<<31, 1<<31))
	require.Error(t, err)
	assert.True(t, errors.HasAssertionFailure(err))
}

func TestValidateAgainst(t *testing.T) {
	authored, err := BuildStatic(primitivesWith(3, 4, 5))
	require.NoError(t, err)

	culled := authored.Reset()
	assert.Zero(t, culled.TotalInstances())
	assert.Equal(t, uint64(12), authored.TotalInstances(), "Reset copies")
	culled[1].InstanceCount = 4
	require.NoError(t, culled.ValidateAgainst(authored))

	culled[1].InstanceCount = 5
	assert.Error(t, culled.ValidateAgainst(authored))

	culled[1].InstanceCount = 1
	culled[0].FirstInstance = 9
	assert.Error(t, culled.ValidateAgainst(authored))
	assert.Error(t, culled[:2].ValidateAgainst(authored))
}

func TestBytesRoundTrip(t *testing.T) {
	table, err := BuildStatic(primitivesWith(3, 0, 7))
	require.NoError(t, err)
	table[1].VertexOffset = -4

	buf := table.Bytes()
	assert.Len(t, buf, 60)
	assert.Equal(t, uint64(40), ByteOffset(2))

	back, err := Decode(buf, 3)
	require.NoError(t, err)
	assert.Equal(t, table, back)

	_, err = Decode(buf[:59], 3)
	assert.Error(t, err)

	var c Command
	assert.Equal(t, CommandStride, c.Size())
}

func TestInstanceOwners(t *testing.T) {
	table, err := BuildStatic(primitivesWith(2, 0, 3))
	require.NoError(t, err)
	assert.Equal(t, []uint32{0, 0, 2, 2, 2}, table.InstanceOwners())
}
