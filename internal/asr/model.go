// Package asr loads the on-device transducer model (preprocessor, encoder,
// joint decoder) via ONNX Runtime and exposes frame-level encoding for the
// decoder package.
package asr

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"sync"

	ort "github.com/yalue/onnxruntime_go"
)

var (
	// ErrSnapshotNotFound indicates the resolved model directory is missing
	// required graph files.
	ErrSnapshotNotFound = errors.New("model snapshot not found")
	// ErrVocabMissingBlank indicates vocab.txt has no <blk> entry.
	ErrVocabMissingBlank = errors.New("vocabulary has no blank token")
	// ErrInputNotFound indicates a named session input was not declared.
	ErrInputNotFound = errors.New("model input not found")
	// ErrOutputNotFound indicates a named session output was not present.
	ErrOutputNotFound = errors.New("model output not found")
	// ErrTensorShape indicates an inference output had an unusable shape.
	ErrTensorShape = errors.New("unusable tensor shape")
)

const blankToken = "<blk>"

// wordMarker is the SentencePiece/BPE space marker used by the vocabulary.
const wordMarker = "▁"

var ortInitOnce sync.Once
var ortInitErr error

// Model owns the three ONNX Runtime sessions that make up the transducer:
// a mel-spectrogram preprocessor, a conformer-style encoder, and a joint
// prediction/joint network ("decoder_joint" in NeMo export naming). All
// three are DynamicAdvancedSessions since every graph has at least one
// variable-length axis (audio samples, encoder time steps, or per-step
// decoder state).
type Model struct {
	Preprocessor *ort.DynamicAdvancedSession
	Encoder      *ort.DynamicAdvancedSession
	DecoderJoint *ort.DynamicAdvancedSession

	PreprocessorInputs, PreprocessorOutputs []string
	EncoderInputs, EncoderOutputs           []string
	DecoderJointInputs, DecoderJointOutputs []string

	// DecoderJointInputShapes carries the declared shape of every
	// decoder_joint input (including the state tensors and the encoder
	// step), used by the decoder package to size its reusable workspace
	// without hardcoding model-specific dimensions.
	DecoderJointInputShapes  map[string][]int64
	DecoderJointOutputShapes map[string][]int64

	Vocab     []string
	BlankIdx  int
	VocabSize int
}

// LoadOptions configures model construction.
type LoadOptions struct {
	SnapshotDir string
	Threads     int // 0 resolves from ORT_THREADS or runtime.NumCPU (logical CPUs, not physical cores)
}

// Load builds all three sessions and the vocabulary from a resolved
// snapshot directory (see internal/modelstore for resolution).
func Load(opts LoadOptions) (*Model, error) {
	if err := ensureRuntimeInitialized(); err != nil {
		return nil, err
	}

	threads := opts.Threads
	if threads <= 0 {
		threads = resolveThreadCount()
	}

	vocab, blankIdx, err := loadVocab(filepath.Join(opts.SnapshotDir, "vocab.txt"))
	if err != nil {
		return nil, err
	}

	preprocessor, preIn, preOut, err := initSession(filepath.Join(opts.SnapshotDir, "nemo128"), threads, false)
	if err != nil {
		return nil, fmt.Errorf("load preprocessor: %w", err)
	}

	encoder, encIn, encOut, err := initSession(filepath.Join(opts.SnapshotDir, "encoder-model"), threads, true)
	if err != nil {
		preprocessor.Destroy()
		return nil, fmt.Errorf("load encoder: %w", err)
	}

	decoderJoint, djIn, djOut, err := initSession(filepath.Join(opts.SnapshotDir, "decoder_joint-model"), threads, true)
	if err != nil {
		preprocessor.Destroy()
		encoder.Destroy()
		return nil, fmt.Errorf("load decoder_joint: %w", err)
	}

	djInShapes, djOutShapes, err := ioShapes(decoderJointPathFor(opts.SnapshotDir))
	if err != nil {
		preprocessor.Destroy()
		encoder.Destroy()
		decoderJoint.Destroy()
		return nil, fmt.Errorf("inspect decoder_joint shapes: %w", err)
	}

	return &Model{
		Preprocessor:             preprocessor,
		Encoder:                  encoder,
		DecoderJoint:             decoderJoint,
		PreprocessorInputs:       preIn,
		PreprocessorOutputs:      preOut,
		EncoderInputs:            encIn,
		EncoderOutputs:           encOut,
		DecoderJointInputs:       djIn,
		DecoderJointOutputs:      djOut,
		DecoderJointInputShapes:  djInShapes,
		DecoderJointOutputShapes: djOutShapes,
		Vocab:                    vocab,
		BlankIdx:                 blankIdx,
		VocabSize:                len(vocab),
	}, nil
}

// decoderJointPathFor resolves which of decoder_joint-model.onnx /
// decoder_joint-model.int8.onnx was actually loaded, for shape introspection.
func decoderJointPathFor(snapshotDir string) string {
	base := filepath.Join(snapshotDir, "decoder_joint-model")
	quant := base + ".int8.onnx"
	if _, err := os.Stat(quant); err == nil {
		return quant
	}
	return base + ".onnx"
}

// ioShapes returns the declared dimensions of every input and output
// tensor in a model graph, keyed by name.
func ioShapes(path string) (inputs map[string][]int64, outputs map[string][]int64, err error) {
	inInfo, outInfo, err := ort.GetInputOutputInfo(path)
	if err != nil {
		return nil, nil, fmt.Errorf("inspect model %s: %w", path, err)
	}
	inputs = make(map[string][]int64, len(inInfo))
	for _, in := range inInfo {
		inputs[in.Name] = append([]int64(nil), in.Dimensions...)
	}
	outputs = make(map[string][]int64, len(outInfo))
	for _, out := range outInfo {
		outputs[out.Name] = append([]int64(nil), out.Dimensions...)
	}
	return inputs, outputs, nil
}

// Close releases all three sessions. Safe to call multiple times.
func (m *Model) Close() {
	if m == nil {
		return
	}
	if m.Preprocessor != nil {
		m.Preprocessor.Destroy()
		m.Preprocessor = nil
	}
	if m.Encoder != nil {
		m.Encoder.Destroy()
		m.Encoder = nil
	}
	if m.DecoderJoint != nil {
		m.DecoderJoint.Destroy()
		m.DecoderJoint = nil
	}
}

// ensureRuntimeInitialized sets the shared library path and initializes the
// ONNX Runtime environment exactly once per process.
func ensureRuntimeInitialized() error {
	ortInitOnce.Do(func() {
		if path := resolveORTLibPath(); path != "" {
			ort.SetSharedLibraryPath(path)
		}
		ortInitErr = ort.InitializeEnvironment()
	})
	return ortInitErr
}

// initSession prefers an int8-quantized graph (name.int8.onnx) when present
// and allowQuantized is true; the preprocessor is never quantized.
func initSession(basePath string, threads int, allowQuantized bool) (*ort.DynamicAdvancedSession, []string, []string, error) {
	path := basePath + ".onnx"
	if allowQuantized {
		quantPath := basePath + ".int8.onnx"
		if _, err := os.Stat(quantPath); err == nil {
			path = quantPath
		}
	}
	if _, err := os.Stat(path); err != nil {
		return nil, nil, nil, fmt.Errorf("%w: %s", ErrSnapshotNotFound, path)
	}

	opts, err := ort.NewSessionOptions()
	if err != nil {
		return nil, nil, nil, fmt.Errorf("create session options: %w", err)
	}
	defer opts.Destroy()

	optLevel := ort.GraphOptimizationLevelEnableAll
	if runtime.GOOS == "windows" {
		optLevel = ort.GraphOptimizationLevelEnableBasic
	}
	if err := opts.SetGraphOptimizationLevel(optLevel); err != nil {
		return nil, nil, nil, fmt.Errorf("set optimization level: %w", err)
	}
	if err := opts.SetIntraOpNumThreads(threads); err != nil {
		return nil, nil, nil, fmt.Errorf("set intra threads: %w", err)
	}
	if err := opts.SetInterOpNumThreads(threads); err != nil {
		return nil, nil, nil, fmt.Errorf("set inter threads: %w", err)
	}

	inputNames, outputNames, err := declaredIONames(path)
	if err != nil {
		return nil, nil, nil, err
	}

	session, err := ort.NewDynamicAdvancedSession(path, inputNames, outputNames, opts)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("create session %s: %w", path, err)
	}
	return session, inputNames, outputNames, nil
}

// declaredIONames inspects the model graph for its input/output tensor
// names. Encoder/decoder-joint tensor wiring is done dynamically by the
// decoder package using these names, so callers never hardcode layout.
func declaredIONames(path string) ([]string, []string, error) {
	inputs, outputs, err := ort.GetInputOutputInfo(path)
	if err != nil {
		return nil, nil, fmt.Errorf("inspect model %s: %w", path, err)
	}
	inNames := make([]string, 0, len(inputs))
	for _, in := range inputs {
		inNames = append(inNames, in.Name)
	}
	outNames := make([]string, 0, len(outputs))
	for _, out := range outputs {
		outNames = append(outNames, out.Name)
	}
	return inNames, outNames, nil
}

// loadVocab parses a whitespace-delimited vocab.txt, substituting the
// BPE word marker with a literal space and locating the blank token.
func loadVocab(path string) ([]string, int, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, fmt.Errorf("open vocab: %w", err)
	}
	defer f.Close()

	type entry struct {
		id   int
		text string
	}
	var entries []entry
	maxID := -1

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r\n")
		if line == "" {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}
		token := fields[0]
		id := len(entries)
		if len(fields) >= 2 {
			if parsed, perr := strconv.Atoi(fields[len(fields)-1]); perr == nil {
				id = parsed
			}
		}
		text := strings.ReplaceAll(token, wordMarker, " ")
		entries = append(entries, entry{id: id, text: text})
		if id > maxID {
			maxID = id
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, 0, fmt.Errorf("read vocab: %w", err)
	}

	vocab := make([]string, maxID+1)
	blankIdx := -1
	for _, e := range entries {
		vocab[e.id] = e.text
		if e.text == blankToken {
			blankIdx = e.id
		}
	}
	if blankIdx < 0 {
		return nil, 0, ErrVocabMissingBlank
	}
	return vocab, blankIdx, nil
}

// resolveThreadCount honors ORT_THREADS, falling back to the runtime's
// visible CPU count.
func resolveThreadCount() int {
	if v := strings.TrimSpace(os.Getenv("ORT_THREADS")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	if n := runtime.NumCPU(); n > 0 {
		return n
	}
	return 1
}
