package decoder

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTruncateBeamSortsDescendingAndKeepsWidth(t *testing.T) {
	hyps := []Hypothesis{
		{Score: 0.1},
		{Score: 0.9},
		{Score: 0.5},
	}

	out := truncateBeam(hyps, 2)

	require.Len(t, out, 2)
	assert.Equal(t, float32(0.9), out[0].Score)
	assert.Equal(t, float32(0.5), out[1].Score)
}

func TestTruncateBeamKeepsAllWhenUnderWidth(t *testing.T) {
	hyps := []Hypothesis{{Score: 0.1}, {Score: 0.2}}
	out := truncateBeam(hyps, 8)
	assert.Len(t, out, 2)
}

func TestHypothesisCloneIsIndependent(t *testing.T) {
	orig := Hypothesis{
		Tokens:     []int32{1, 2},
		Timestamps: []int{0, 1},
		State1:     []float32{0.1, 0.2},
		State2:     []float32{0.3, 0.4},
		Score:      1.5,
		LastToken:  2,
	}

	clone := orig.clone()
	clone.Tokens[0] = 99
	clone.State1[0] = 9.9

	assert.Equal(t, int32(1), orig.Tokens[0], "mutating the clone must not affect the original")
	assert.Equal(t, float32(0.1), orig.State1[0])
	assert.Equal(t, int32(99), clone.Tokens[0])
}
