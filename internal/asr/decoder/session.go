package decoder

import (
	"fmt"
	"sort"

	"github.com/rbright/sotto-asr/internal/asr"
	ort "github.com/yalue/onnxruntime_go"
)

// ScoredToken is one candidate vocabulary emission with its (temperature
// and hotword adjusted) score.
type ScoredToken struct {
	Token int32
	Score float32
}

// StepScores is the result of one decoder_joint inference: the blank
// score, the top-k non-blank candidate tokens (already filtered and
// sorted descending), and the two output recurrent states.
type StepScores struct {
	BlankScore float32
	TopTokens  []ScoredToken
	State1     []float32
	State2     []float32
}

// Session binds a loaded Model, its workspace, and decode configuration
// together for one decode_sequence call.
type Session struct {
	model         *asr.Model
	workspace     *Workspace
	cfg           Config
	hotwordBoosts []float32
}

// NewSession builds a decode session, constructing the per-token hotword
// boost table once from cfg.
func NewSession(model *asr.Model, workspace *Workspace, cfg Config) *Session {
	return &Session{
		model:         model,
		workspace:     workspace,
		cfg:           cfg,
		hotwordBoosts: BuildHotwordBoosts(model.Vocab, cfg.HotwordBoost, cfg.Hotwords, cfg.PhraseBoosts),
	}
}

// StepScores runs the joint network for one encoder frame against the
// current target token, returning the blank score and top-k candidates.
func (s *Session) StepScores(frame []float32, lastToken int32) (StepScores, error) {
	s.workspace.SetEncoderStep(frame)
	s.workspace.SetTarget(lastToken)

	inputValues := []ort.Value{
		s.workspace.encoderStep,
		s.workspace.targets,
		s.workspace.targetLen,
		s.workspace.state1,
		s.workspace.state2,
	}

	logitsShape, err := s.outputLogitsShape()
	if err != nil {
		return StepScores{}, err
	}
	logitsTensor, err := ort.NewEmptyTensor[float32](logitsShape)
	if err != nil {
		return StepScores{}, fmt.Errorf("allocate logits output: %w", err)
	}
	defer logitsTensor.Destroy()

	outState1, err := ort.NewEmptyTensor[float32](s.workspace.state1.GetShape())
	if err != nil {
		return StepScores{}, fmt.Errorf("allocate output state1: %w", err)
	}
	defer outState1.Destroy()

	outState2, err := ort.NewEmptyTensor[float32](s.workspace.state2.GetShape())
	if err != nil {
		return StepScores{}, fmt.Errorf("allocate output state2: %w", err)
	}
	defer outState2.Destroy()

	outputValues := []ort.Value{logitsTensor, outState1, outState2}

	if err := s.model.DecoderJoint.Run(inputValues, outputValues); err != nil {
		return StepScores{}, fmt.Errorf("run decoder_joint: %w", err)
	}

	logits := logitsTensor.GetData()
	vocabLogits := logits
	if len(logits) > s.model.VocabSize {
		vocabLogits = logits[:s.model.VocabSize]
	}

	temp := normalizedTemperature(s.cfg.Temperature)
	blankScore := vocabLogits[s.model.BlankIdx] / temp

	top := extractTopTokens(vocabLogits, s.model.BlankIdx, temp, blankScore, s.hotwordBoosts, s.cfg.MinBlankMargin, s.cfg.BeamWidth)

	return StepScores{
		BlankScore: blankScore,
		TopTokens:  top,
		State1:     append([]float32(nil), outState1.GetData()...),
		State2:     append([]float32(nil), outState2.GetData()...),
	}, nil
}

// outputLogitsShape derives the decoder_joint logits tensor shape. NeMo
// TDT/RNN-T joint heads emit [1, 1, vocab_size(+durations)]; the exact
// trailing dimension is read from the declared graph output when present.
func (s *Session) outputLogitsShape() (ort.Shape, error) {
	if dims, ok := s.model.DecoderJointOutputShapes[outputLogits]; ok && len(dims) > 0 {
		return toShapeFromDims(dims), nil
	}
	// Fall back to vocab-size-only when the graph doesn't declare a
	// concrete trailing dimension (symbolic axis).
	return ort.Shape{1, 1, int64(s.model.VocabSize)}, nil
}

func toShapeFromDims(dims []int64) ort.Shape {
	out := make(ort.Shape, len(dims))
	for i, d := range dims {
		if d <= 0 {
			d = 1
		}
		out[i] = d
	}
	return out
}

// extractTopTokens filters blank, applies temperature + per-token hotword
// boost, applies the blank-margin gate, and returns up to beamWidth
// candidates sorted descending by score.
func extractTopTokens(
	vocabLogits []float32,
	blankIdx int,
	temp float32,
	blankScore float32,
	hotwordBoosts []float32,
	minBlankMargin float32,
	beamWidth int,
) []ScoredToken {
	candidates := make([]ScoredToken, 0, len(vocabLogits))
	for idx, logit := range vocabLogits {
		if idx == blankIdx {
			continue
		}
		score := logit / temp
		if hotwordBoosts != nil && idx < len(hotwordBoosts) {
			score += hotwordBoosts[idx]
		}
		if minBlankMargin > 0.0 {
			if isFinite(blankScore) && (score-blankScore) < minBlankMargin {
				continue
			}
		}
		if !isFinite(score) {
			continue
		}
		candidates = append(candidates, ScoredToken{Token: int32(idx), Score: score})
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Score > candidates[j].Score
	})

	width := beamWidth
	if width < 1 {
		width = 1
	}
	if len(candidates) > width {
		candidates = candidates[:width]
	}
	return candidates
}

func isFinite(f float32) bool {
	return f == f && f < float32(1e38) && f > float32(-1e38)
}
