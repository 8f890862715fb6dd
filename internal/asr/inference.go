package asr

import (
	"fmt"

	ort "github.com/yalue/onnxruntime_go"
)

const (
	preprocessorInputWaveforms  = "waveforms"
	preprocessorInputLengths    = "waveforms_lens"
	preprocessorOutputFeatures  = "features"
	preprocessorOutputLengths   = "features_lens"
	encoderInputSignal          = "audio_signal"
	encoderInputLength          = "length"
	encoderOutputOutputs        = "outputs"
	encoderOutputEncodedLengths = "encoded_lengths"
)

// Preprocess runs the mel-spectrogram frontend over one mono 16kHz
// utterance, returning the flattened [1, featureDim, frames] feature
// tensor data and its two trailing dimensions (featureDim, frames).
func (m *Model) Preprocess(samples []float32) (features []float32, featureDim, frames int, err error) {
	waveforms, err := ort.NewTensor(ort.NewShape(1, int64(len(samples))), append([]float32(nil), samples...))
	if err != nil {
		return nil, 0, 0, fmt.Errorf("create waveforms tensor: %w", err)
	}
	defer waveforms.Destroy()

	lengths, err := ort.NewTensor(ort.NewShape(1), []int64{int64(len(samples))})
	if err != nil {
		return nil, 0, 0, fmt.Errorf("create waveforms_lens tensor: %w", err)
	}
	defer lengths.Destroy()

	inputs := make([]ort.Value, len(m.PreprocessorInputs))
	for i, name := range m.PreprocessorInputs {
		switch name {
		case preprocessorInputWaveforms:
			inputs[i] = waveforms
		case preprocessorInputLengths:
			inputs[i] = lengths
		default:
			return nil, 0, 0, fmt.Errorf("%w: %s", ErrInputNotFound, name)
		}
	}

	outputs := make([]ort.Value, len(m.PreprocessorOutputs))
	if err := m.Preprocessor.Run(inputs, outputs); err != nil {
		return nil, 0, 0, fmt.Errorf("run preprocessor: %w", err)
	}

	featuresTensor, err := namedFloatOutput(m.PreprocessorOutputs, outputs, preprocessorOutputFeatures)
	if err != nil {
		return nil, 0, 0, err
	}
	defer featuresTensor.Destroy()

	shape := featuresTensor.GetShape()
	if len(shape) != 3 {
		return nil, 0, 0, fmt.Errorf("%w: features shape %v", ErrTensorShape, shape)
	}

	return append([]float32(nil), featuresTensor.GetData()...), int(shape[1]), int(shape[2]), nil
}

// Encode runs the conformer encoder over preprocessed features, returning
// one slice of encoderDim values per output time step, already permuted
// to time-major order for the decoder's per-frame consumption.
func (m *Model) Encode(features []float32, featureDim, frames int) ([][]float32, error) {
	featuresTensor, err := ort.NewTensor(ort.NewShape(1, int64(featureDim), int64(frames)), features)
	if err != nil {
		return nil, fmt.Errorf("create audio_signal tensor: %w", err)
	}
	defer featuresTensor.Destroy()

	lengthTensor, err := ort.NewTensor(ort.NewShape(1), []int64{int64(frames)})
	if err != nil {
		return nil, fmt.Errorf("create length tensor: %w", err)
	}
	defer lengthTensor.Destroy()

	inputs := make([]ort.Value, len(m.EncoderInputs))
	for i, name := range m.EncoderInputs {
		switch name {
		case encoderInputSignal:
			inputs[i] = featuresTensor
		case encoderInputLength:
			inputs[i] = lengthTensor
		default:
			return nil, fmt.Errorf("%w: %s", ErrInputNotFound, name)
		}
	}

	outputs := make([]ort.Value, len(m.EncoderOutputs))
	if err := m.Encoder.Run(inputs, outputs); err != nil {
		return nil, fmt.Errorf("run encoder: %w", err)
	}

	outTensor, err := namedFloatOutput(m.EncoderOutputs, outputs, encoderOutputOutputs)
	if err != nil {
		return nil, err
	}
	defer outTensor.Destroy()

	shape := outTensor.GetShape()
	if len(shape) != 3 {
		return nil, fmt.Errorf("%w: encoder output shape %v", ErrTensorShape, shape)
	}

	// NeMo exports encoder output as [batch, feat, time]; the decoder
	// consumes one [feat]-length slice per time step.
	encoderDim := int(shape[1])
	timeSteps := int(shape[2])
	data := outTensor.GetData()

	frameList := make([][]float32, timeSteps)
	for t := 0; t < timeSteps; t++ {
		frame := make([]float32, encoderDim)
		for d := 0; d < encoderDim; d++ {
			frame[d] = data[d*timeSteps+t]
		}
		frameList[t] = frame
	}
	return frameList, nil
}

// namedFloatOutput finds a named output tensor in a Run() result and
// asserts it to *ort.Tensor[float32].
func namedFloatOutput(names []string, values []ort.Value, name string) (*ort.Tensor[float32], error) {
	for i, n := range names {
		if n != name {
			continue
		}
		tensor, ok := values[i].(*ort.Tensor[float32])
		if !ok {
			return nil, fmt.Errorf("%w: %s is not a float32 tensor", ErrOutputNotFound, name)
		}
		return tensor, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrOutputNotFound, name)
}
