package decoder

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractTopTokensExcludesBlankAndSortsDescending(t *testing.T) {
	logits := []float32{0.1, 0.9, 0.5, 0.2}
	top := extractTopTokens(logits, 0, 1.0, 0.1, nil, 0, 4)

	require.Len(t, top, 3)
	assert.Equal(t, int32(1), top[0].Token)
	assert.Equal(t, int32(2), top[1].Token)
	assert.Equal(t, int32(3), top[2].Token)
}

func TestExtractTopTokensAppliesHotwordBoost(t *testing.T) {
	logits := []float32{0.1, 0.4, 0.5}
	boosts := []float32{0, 0.5, 0}

	top := extractTopTokens(logits, 0, 1.0, 0.1, boosts, 0, 4)

	require.Len(t, top, 2)
	assert.Equal(t, int32(1), top[0].Token, "boosted token should outrank the unboosted higher logit")
}

func TestExtractTopTokensAppliesBlankMarginGate(t *testing.T) {
	logits := []float32{0.1, 0.15, 0.9}
	top := extractTopTokens(logits, 0, 1.0, 0.1, nil, 0.5, 4)

	require.Len(t, top, 1, "token within margin of blank should be filtered")
	assert.Equal(t, int32(2), top[0].Token)
}

func TestExtractTopTokensTruncatesToBeamWidth(t *testing.T) {
	logits := []float32{0.1, 0.9, 0.8, 0.7}
	top := extractTopTokens(logits, 0, 1.0, 0.1, nil, 0, 2)
	assert.Len(t, top, 2)
}

func TestExtractTopTokensSkipsNonFiniteScores(t *testing.T) {
	logits := []float32{0.1, float32(math.Inf(1)), 0.5}
	top := extractTopTokens(logits, 0, 1.0, 0.1, nil, 0, 4)

	for _, tok := range top {
		assert.NotEqual(t, int32(1), tok.Token)
	}
}

func TestIsFinite(t *testing.T) {
	assert.True(t, isFinite(1.0))
	assert.False(t, isFinite(float32(math.Inf(1))))
	assert.False(t, isFinite(float32(math.NaN())))
}

func TestToShapeFromDims(t *testing.T) {
	shape := toShapeFromDims([]int64{-1, 0, 128})
	assert.Equal(t, int64(1), shape[0])
	assert.Equal(t, int64(1), shape[1])
	assert.Equal(t, int64(128), shape[2])
}
