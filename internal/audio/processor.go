package audio

// TargetSampleRate is the sample rate the ASR pipeline consumes: 16kHz mono.
const TargetSampleRate = 16000

// ProcessChunkSize is the fixed output frame size the processor emits, in
// samples at TargetSampleRate (30ms @ 16kHz).
const ProcessChunkSize = defaultOutputChunkSize

// Processor downmixes, resamples, and re-chunks raw capture audio into
// fixed ProcessChunkSize frames at TargetSampleRate. When the source rate
// already matches the target, no resampler is built and samples are
// re-chunked directly.
type Processor struct {
	resampler *SincResampler
	buffer    []float32
}

// NewProcessor builds a processor converting inRate-sampled mono audio to
// TargetSampleRate, fixed-chunked at ProcessChunkSize.
func NewProcessor(inRate int) (*Processor, error) {
	p := &Processor{}
	if inRate != TargetSampleRate {
		r, err := NewSincResampler(inRate, TargetSampleRate, ProcessChunkSize)
		if err != nil {
			return nil, err
		}
		p.resampler = r
	}
	return p, nil
}

// Process appends mono float32 samples (already downmixed) and returns zero
// or more fixed ProcessChunkSize-sample frames.
func (p *Processor) Process(samples []float32) [][]float32 {
	if p.resampler != nil {
		return p.resampler.Process(samples)
	}

	p.buffer = append(p.buffer, samples...)
	var out [][]float32
	for len(p.buffer) >= ProcessChunkSize {
		chunk := make([]float32, ProcessChunkSize)
		copy(chunk, p.buffer[:ProcessChunkSize])
		p.buffer = p.buffer[ProcessChunkSize:]
		out = append(out, chunk)
	}
	return out
}

// Flush zero-pads and emits any remaining buffered samples as a final
// partial frame.
func (p *Processor) Flush() [][]float32 {
	if p.resampler != nil {
		return p.resampler.Flush()
	}
	if len(p.buffer) == 0 {
		return nil
	}
	chunk := make([]float32, ProcessChunkSize)
	copy(chunk, p.buffer)
	p.buffer = nil
	return [][]float32{chunk}
}

// DownmixInt16 averages interleaved s16le samples across channels into mono
// float32 samples in [-1, 1), dividing by 32768 (not 32767) to match the
// asymmetric-clipping convention used throughout the PCM pipeline.
func DownmixInt16(frames [][]int16) []float32 {
	out := make([]float32, len(frames))
	for i, frame := range frames {
		if len(frame) == 0 {
			continue
		}
		var sum int32
		for _, s := range frame {
			sum += int32(s)
		}
		avg := float32(sum) / float32(len(frame))
		out[i] = avg / 32768.0
	}
	return out
}
