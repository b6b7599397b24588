package indirect

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type call struct {
	offset    uint64
	drawCount uint32
	stride    uint32
}

type recorder struct {
	calls []call
}

func (r *recorder) DrawIndexedIndirect(offset uint64, drawCount, stride uint32) {
	r.calls = append(r.calls, call{offset, drawCount, stride})
}

func TestSubmitMultiDraw(t *testing.T) {
	table, err := BuildStatic(primitivesWith(3, 4, 5))
	require.NoError(t, err)

	var rec recorder
	stats := Submit(&rec, table, true)
	assert.Equal(t, []call{{0, 3, CommandStride}}, rec.calls)
	assert.Equal(t, Stats{Calls: 1, Draws: 3, Instances: 12, Indices: 12 * 24}, stats)
}

func TestSubmitFallbackMatchesMultiDraw(t *testing.T) {
	table, err := BuildStatic(primitivesWith(3, 0, 5, 9, 1))
	require.NoError(t, err)
	table[3].InstanceCount = 2 // as if culled

	var multiRec, singleRec recorder
	multi := Submit(&multiRec, table, true)
	single := Submit(&singleRec, table, false)

	require.Len(t, singleRec.calls, len(table))
	for j, c := range singleRec.calls {
		assert.Equal(t, call{ByteOffset(j), 1, CommandStride}, c)
	}
	assert.Equal(t, len(table), single.Calls)
	assert.Equal(t, multi.Draws, single.Draws)
	assert.Equal(t, multi.Instances, single.Instances)
	assert.Equal(t, multi.Indices, single.Indices)
}

func TestSubmitEmptyTable(t *testing.T) {
	var rec recorder
	assert.Equal(t, Stats{}, Submit(&rec, nil, true))
	assert.Empty(t, rec.calls)
}

func TestCheckRange(t *testing.T) {
	assert.NoError(t, CheckRange(60, 0, 3, CommandStride))
	assert.NoError(t, CheckRange(60, 40, 1, CommandStride))
	assert.Error(t, CheckRange(60, 40, 2, CommandStride))
	assert.Error(t, CheckRange(60, 2, 1, CommandStride))
	assert.Error(t, CheckRange(60, 80, 1, CommandStride))
	assert.NoError(t, CheckRange(0, 0, 0, CommandStride))
}
