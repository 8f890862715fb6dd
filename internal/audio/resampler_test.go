package audio

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestNewSincResamplerRejectsNonPositiveRates(t *testing.T) {
	_, err := NewSincResampler(0, 16000, 480)
	assert.ErrorIs(t, err, ErrResamplerConstruction)

	_, err = NewSincResampler(16000, -1, 480)
	assert.ErrorIs(t, err, ErrResamplerConstruction)
}

func TestSincResamplerEmitsFixedSizeChunks(t *testing.T) {
	r, err := NewSincResampler(48000, 16000, 480)
	require.NoError(t, err)

	samples := make([]float32, 48000) // 1s @ 48kHz input
	chunks := r.Process(samples)

	require.NotEmpty(t, chunks)
	for _, c := range chunks {
		assert.Len(t, c, 480)
	}
}

func TestSincResamplerUpsamplingEmitsChunks(t *testing.T) {
	r, err := NewSincResampler(8000, 16000, 480)
	require.NoError(t, err)

	samples := make([]float32, 8000)
	chunks := r.Process(samples)

	require.NotEmpty(t, chunks)
	for _, c := range chunks {
		assert.Len(t, c, 480)
	}
}

func TestSincResamplerFlushEmitsFinalChunkWhenHistoryRemains(t *testing.T) {
	r, err := NewSincResampler(48000, 16000, 480)
	require.NoError(t, err)

	r.Process(make([]float32, 1000))
	flushed := r.Flush()
	for _, c := range flushed {
		assert.Len(t, c, 480)
	}
}

// TestSincResamplerAlwaysEmitsFullChunksProperty checks the chunk-size
// invariant holds across arbitrary input/output rate pairs and arbitrary
// feed sizes, fuzzing the boundary conditions a table of fixed cases
// would miss.
func TestSincResamplerAlwaysEmitsFullChunksProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		inRate := rapid.IntRange(4000, 96000).Draw(t, "inRate")
		outRate := rapid.IntRange(4000, 96000).Draw(t, "outRate")
		chunkSize := rapid.IntRange(64, 960).Draw(t, "chunkSize")
		feedSize := rapid.IntRange(0, 4000).Draw(t, "feedSize")

		r, err := NewSincResampler(inRate, outRate, chunkSize)
		require.NoError(t, err)

		samples := make([]float32, feedSize)
		for i := range samples {
			samples[i] = float32(i%7) / 7.0
		}

		chunks := r.Process(samples)
		for _, c := range chunks {
			if len(c) != chunkSize {
				t.Fatalf("chunk has length %d, want %d", len(c), chunkSize)
			}
		}
	})
}

func TestLinearResamplerEmptyInputProducesEmptyOutput(t *testing.T) {
	r := NewLinearResampler(44100, 16000)
	out := r.Resample(nil)
	assert.Empty(t, out)
}

func TestLinearResamplerIdenticalRatesProduceSampleIdenticalCopy(t *testing.T) {
	r := NewLinearResampler(16000, 16000)
	samples := []float32{0.1, -0.2, 0.3, -0.4, 0.5}

	out := r.Resample(samples)

	require.Len(t, out, len(samples))
	assert.Equal(t, samples, out)
}

func TestLinearResamplerZeroRateProducesEmptyOutput(t *testing.T) {
	samples := []float32{0.1, 0.2, 0.3}

	assert.Empty(t, NewLinearResampler(0, 16000).Resample(samples))
	assert.Empty(t, NewLinearResampler(16000, 0).Resample(samples))
	assert.Empty(t, NewLinearResampler(0, 0).Resample(samples))
}

func TestLinearResamplerOneSampleInputReturnsThatSample(t *testing.T) {
	r := NewLinearResampler(16000, 8000)
	out := r.Resample([]float32{0.42})

	require.Len(t, out, 1)
	assert.Equal(t, float32(0.42), out[0])
}

// TestLinearResamplerOutputLengthProperty checks the output-length formula
// (ceil(input_len * out_rate / in_rate)) holds across arbitrary rate pairs
// and buffer sizes.
func TestLinearResamplerOutputLengthProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		inRate := rapid.IntRange(1, 96000).Draw(t, "inRate")
		outRate := rapid.IntRange(1, 96000).Draw(t, "outRate")
		inputLen := rapid.IntRange(0, 4000).Draw(t, "inputLen")

		samples := make([]float32, inputLen)
		for i := range samples {
			samples[i] = float32(i%7) / 7.0
		}

		r := NewLinearResampler(inRate, outRate)
		out := r.Resample(samples)

		wantLen := int(math.Ceil(float64(inputLen) * float64(outRate) / float64(inRate)))
		if len(out) != wantLen {
			t.Fatalf("output length %d, want %d (inRate=%d outRate=%d inputLen=%d)", len(out), wantLen, inRate, outRate, inputLen)
		}
	})
}

// TestLinearResamplerZeroOrNegativeRateProperty checks the empty-output
// invariant holds for arbitrary non-positive rates, not just the zero case.
func TestLinearResamplerZeroOrNegativeRateProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		inRate := rapid.IntRange(-100, 0).Draw(t, "inRate")
		outRate := rapid.IntRange(-100, 96000).Draw(t, "outRate")
		inputLen := rapid.IntRange(0, 100).Draw(t, "inputLen")

		r := NewLinearResampler(inRate, outRate)
		out := r.Resample(make([]float32, inputLen))
		if len(out) != 0 {
			t.Fatalf("expected empty output for inRate=%d outRate=%d, got length %d", inRate, outRate, len(out))
		}
	})
}
