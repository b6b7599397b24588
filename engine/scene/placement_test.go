package scene

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPlaceIsPure(t *testing.T) {
	a := Place(42, 64, 2, 2)
	b := Place(42, 64, 2, 2)
	require.Len(t, a, 64)
	assert.Equal(t, a, b)

	c := Place(43, 64, 2, 2)
	assert.NotEqual(t, a, c)
}

func TestPlacePrefixStable(t *testing.T) {
	long := Place(7, 32, 2, 2)
	short := Place(7, 8, 2, 2)
	assert.Equal(t, long[:8], short)
}

func TestPlaceStaysOnDisc(t *testing.T) {
	const radius = 2
	for _, p := range Place(0, 512, radius, 2) {
		assert.Zero(t, p.Position.Y())
		assert.LessOrEqual(t, p.Position.Len(), float32(radius)+1e-4)
		assert.Equal(t, float32(2), p.Scale)
		assert.Zero(t, p.RotationY)
	}
}

func TestPlaceVariedRanges(t *testing.T) {
	for _, p := range PlaceVaried(5, 512, 25) {
		assert.LessOrEqual(t, p.Position.Len(), float32(25)+1e-3)
		assert.GreaterOrEqual(t, p.Scale, float32(1))
		assert.Less(t, p.Scale, float32(3))
		assert.GreaterOrEqual(t, p.RotationY, float32(0))
		assert.Less(t, p.RotationY, float32(3.1416))
	}
}

func TestDeriveSeedSpreads(t *testing.T) {
	seen := map[uint64]bool{}
	for i := 0; i < 1024; i++ {
		s := DeriveSeed(0, i)
		assert.False(t, seen[s], "collision at %d", i)
		seen[s] = true
	}
	assert.Equal(t, DeriveSeed(9, 3), DeriveSeed(9, 3))
}

func TestPlacementMatrixCarriesTranslationAndScale(t *testing.T) {
	p := Placement{Scale: 2}
	p.Position[0], p.Position[2] = 1, -1
	m := p.Matrix()
	assert.Equal(t, float32(2), m[0])
	assert.Equal(t, float32(1), m[12])
	assert.Equal(t, float32(-1), m[14])
}
