// Package decoder implements greedy and beam-search transducer decoding
// over encoder frames, the joint network, and recurrent decoder state.
package decoder

import (
	"errors"
	"fmt"

	"github.com/rbright/sotto-asr/internal/asr"
	ort "github.com/yalue/onnxruntime_go"
)

var (
	// ErrInputNotFound indicates a required decoder_joint input is absent
	// from the loaded graph.
	ErrInputNotFound = errors.New("decoder input not found")
	// ErrOutputNotFound indicates a required decoder_joint output is absent.
	ErrOutputNotFound = errors.New("decoder output not found")
	// ErrTensorShape indicates a declared tensor shape could not be used.
	ErrTensorShape = errors.New("unusable tensor shape")
)

const (
	inputEncoderOutputs = "encoder_outputs"
	inputTargets        = "targets"
	inputTargetLength   = "target_length"
	inputStates1        = "input_states_1"
	inputStates2        = "input_states_2"

	outputLogits  = "outputs"
	outputStates1 = "output_states_1"
	outputStates2 = "output_states_2"
)

// Workspace holds the reusable decoder_joint input/output tensors for one
// decoding session, avoiding per-step allocation. It is not safe for
// concurrent use; each streaming/one-shot decode owns its own workspace.
type Workspace struct {
	model *asr.Model

	encoderDim int
	state1Dims []int64
	state2Dims []int64

	encoderStep *ort.Tensor[float32]
	targets     *ort.Tensor[int32]
	targetLen   *ort.Tensor[int32]
	state1      *ort.Tensor[float32]
	state2      *ort.Tensor[float32]
}

// NewWorkspace builds a workspace sized from the decoder_joint graph's
// declared input shapes.
func NewWorkspace(model *asr.Model) (*Workspace, error) {
	encDims, ok := model.DecoderJointInputShapes[inputEncoderOutputs]
	if !ok || len(encDims) < 2 {
		return nil, fmt.Errorf("%w: %s", ErrInputNotFound, inputEncoderOutputs)
	}
	encoderDim := int(encDims[1])
	if encoderDim <= 0 {
		encoderDim = 1024
	}

	state1Dims, ok := model.DecoderJointInputShapes[inputStates1]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrInputNotFound, inputStates1)
	}
	state2Dims, ok := model.DecoderJointInputShapes[inputStates2]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrInputNotFound, inputStates2)
	}
	if len(state1Dims) != 3 || len(state2Dims) != 3 {
		return nil, fmt.Errorf("%w: expected rank-3 state tensors", ErrTensorShape)
	}

	w := &Workspace{
		model:      model,
		encoderDim: encoderDim,
		state1Dims: normalizeBatchDim(state1Dims),
		state2Dims: normalizeBatchDim(state2Dims),
	}

	if err := w.allocate(); err != nil {
		return nil, err
	}
	return w, nil
}

// normalizeBatchDim pins the batch axis (index 1, matching NeMo's
// [layers, batch, hidden] LSTM state convention) to 1 for single-stream
// decoding, leaving any symbolic (<=0) layer/hidden axis to the declared
// value when concrete, or a sane default otherwise.
func normalizeBatchDim(dims []int64) []int64 {
	out := append([]int64(nil), dims...)
	if len(out) == 3 {
		out[1] = 1
	}
	for i, d := range out {
		if d <= 0 {
			out[i] = 1
		}
	}
	return out
}

func dimsToInt(dims []int64) []int {
	out := make([]int, len(dims))
	for i, d := range dims {
		out[i] = int(d)
	}
	return out
}

// allocate creates all five reusable input tensors, destroying any that
// were already allocated on error so Workspace construction never leaks.
func (w *Workspace) allocate() error {
	var err error
	cleanup := func() {
		w.destroyAllocated()
	}

	w.encoderStep, err = ort.NewEmptyTensor[float32](toShape(1, w.encoderDim, 1))
	if err != nil {
		cleanup()
		return fmt.Errorf("allocate encoder step tensor: %w", err)
	}

	w.targets, err = ort.NewEmptyTensor[int32](toShape(1, 1))
	if err != nil {
		cleanup()
		return fmt.Errorf("allocate targets tensor: %w", err)
	}

	w.targetLen, err = ort.NewTensor(toShape(1), []int32{1})
	if err != nil {
		cleanup()
		return fmt.Errorf("allocate target_length tensor: %w", err)
	}

	w.state1, err = ort.NewEmptyTensor[float32](toShape(dimsToInt(w.state1Dims)...))
	if err != nil {
		cleanup()
		return fmt.Errorf("allocate state1 tensor: %w", err)
	}

	w.state2, err = ort.NewEmptyTensor[float32](toShape(dimsToInt(w.state2Dims)...))
	if err != nil {
		cleanup()
		return fmt.Errorf("allocate state2 tensor: %w", err)
	}

	return nil
}

func toShape(dims ...int) ort.Shape {
	s := make(ort.Shape, len(dims))
	for i, d := range dims {
		s[i] = int64(d)
	}
	return s
}

// destroyAllocated releases every non-nil tensor. Safe to call repeatedly.
func (w *Workspace) destroyAllocated() {
	if w.encoderStep != nil {
		w.encoderStep.Destroy()
		w.encoderStep = nil
	}
	if w.targets != nil {
		w.targets.Destroy()
		w.targets = nil
	}
	if w.targetLen != nil {
		w.targetLen.Destroy()
		w.targetLen = nil
	}
	if w.state1 != nil {
		w.state1.Destroy()
		w.state1 = nil
	}
	if w.state2 != nil {
		w.state2.Destroy()
		w.state2 = nil
	}
}

// Close releases the workspace's tensors.
func (w *Workspace) Close() {
	w.destroyAllocated()
}

// ResetState zeroes the recurrent decoder state, used at the start of every
// decode_sequence call (greedy or beam), matching the fresh-decoder-per-
// segment invariant the streaming session relies on.
func (w *Workspace) ResetState() {
	clearFloat32(w.state1.GetData())
	clearFloat32(w.state2.GetData())
}

// SetEncoderStep copies one frame's encoder output into the reusable
// encoder_outputs tensor.
func (w *Workspace) SetEncoderStep(frame []float32) {
	copy(w.encoderStep.GetData(), frame)
}

// SetTarget writes the most recently emitted (or blank) token id as the
// next decoder_joint target.
func (w *Workspace) SetTarget(token int32) {
	w.targets.GetData()[0] = token
}

func clearFloat32(s []float32) {
	for i := range s {
		s[i] = 0
	}
}

// CloneState returns a deep copy of the current recurrent state, used by
// beam search to fork per-hypothesis state.
func (w *Workspace) CloneState() (s1, s2 []float32) {
	d1 := w.state1.GetData()
	d2 := w.state2.GetData()
	s1 = append([]float32(nil), d1...)
	s2 = append([]float32(nil), d2...)
	return s1, s2
}

// LoadState overwrites the workspace's recurrent state from a prior clone.
func (w *Workspace) LoadState(s1, s2 []float32) {
	copy(w.state1.GetData(), s1)
	copy(w.state2.GetData(), s2)
}
