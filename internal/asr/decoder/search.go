package decoder

import (
	"fmt"
	"sort"
)

// Hypothesis is one beam-search candidate: its emitted tokens, their frame
// timestamps, cumulative score, and recurrent decoder state.
type Hypothesis struct {
	Tokens     []int32
	Timestamps []int
	Score      float32
	State1     []float32
	State2     []float32
	LastToken  int32
}

func (h Hypothesis) clone() Hypothesis {
	return Hypothesis{
		Tokens:     append([]int32(nil), h.Tokens...),
		Timestamps: append([]int(nil), h.Timestamps...),
		Score:      h.Score,
		State1:     append([]float32(nil), h.State1...),
		State2:     append([]float32(nil), h.State2...),
		LastToken:  h.LastToken,
	}
}

// DecodeSequence decodes one sequence of encoder frames, dispatching to
// greedy search when cfg.BeamWidth<=1 and beam search otherwise. It
// resets the workspace's recurrent state first: callers must supply a
// fresh Workspace (or one whose state has otherwise been explicitly
// reset) per independent segment. initialToken carries the last token
// emitted by a prior segment across the otherwise-fresh decoder state
// (negative means no prior context, i.e. start from blank).
func DecodeSequence(session *Session, encodings [][]float32, cfg Config, blankIdx, initialToken int32) ([]int32, []int, error) {
	if initialToken < 0 {
		initialToken = blankIdx
	}
	if cfg.BeamWidth <= 1 {
		return decodeGreedy(session, encodings, cfg, initialToken)
	}
	return decodeBeam(session, encodings, cfg, initialToken)
}

// decodeGreedy is the single-hypothesis search: at each frame, emit tokens
// until blank or the per-frame emission cap is hit.
func decodeGreedy(session *Session, encodings [][]float32, cfg Config, initialToken int32) ([]int32, []int, error) {
	session.workspace.ResetState()

	var tokens []int32
	var timestamps []int

	lastToken := initialToken
	maxPerStep := cfg.MaxTokensPerStep
	if maxPerStep <= 0 {
		maxPerStep = 10
	}

	for t := 0; t < len(encodings); t++ {
		emitted := 0
		for emitted < maxPerStep {
			scores, err := session.StepScores(encodings[t], lastToken)
			if err != nil {
				return nil, nil, fmt.Errorf("step scores at frame %d: %w", t, err)
			}

			if len(scores.TopTokens) == 0 || scores.TopTokens[0].Score <= scores.BlankScore {
				break
			}

			best := scores.TopTokens[0]
			tokens = append(tokens, best.Token)
			timestamps = append(timestamps, t)
			lastToken = best.Token

			session.workspace.LoadState(scores.State1, scores.State2)
			emitted++
		}
	}

	return tokens, timestamps, nil
}

// decodeBeam maintains up to cfg.BeamWidth active hypotheses, expanding
// each by its top-k non-blank candidates plus a blank-continuation path
// every frame, then truncating back to the beam width.
func decodeBeam(session *Session, encodings [][]float32, cfg Config, initialToken int32) ([]int32, []int, error) {
	session.workspace.ResetState()

	width := cfg.BeamWidth
	if width < 1 {
		width = 1
	}
	maxPerStep := cfg.MaxTokensPerStep
	if maxPerStep <= 0 {
		maxPerStep = 10
	}

	initState1, initState2 := session.workspace.CloneState()
	beam := []Hypothesis{{LastToken: initialToken, State1: initState1, State2: initState2}}

	for t := 0; t < len(encodings); t++ {
		active := beam
		var blankCandidates []Hypothesis

		for round := 0; round < maxPerStep; round++ {
			if len(active) == 0 {
				break
			}

			var next []Hypothesis
			for _, hyp := range active {
				session.workspace.LoadState(hyp.State1, hyp.State2)
				scores, err := session.StepScores(encodings[t], hyp.LastToken)
				if err != nil {
					return nil, nil, fmt.Errorf("step scores at frame %d: %w", t, err)
				}

				blankHyp := hyp.clone()
				blankHyp.Score += scores.BlankScore
				blankCandidates = append(blankCandidates, blankHyp)

				for _, cand := range scores.TopTokens {
					forked := hyp.clone()
					forked.Tokens = append(forked.Tokens, cand.Token)
					forked.Timestamps = append(forked.Timestamps, t)
					forked.Score += cand.Score
					forked.LastToken = cand.Token
					forked.State1 = scores.State1
					forked.State2 = scores.State2
					next = append(next, forked)
				}
			}

			next = truncateBeam(next, width)
			active = next
		}

		merged := append(append([]Hypothesis(nil), blankCandidates...), active...)
		beam = truncateBeam(merged, width)
	}

	sort.SliceStable(beam, func(i, j int) bool { return beam[i].Score > beam[j].Score })
	if len(beam) == 0 {
		return nil, nil, nil
	}
	best := beam[0]
	session.workspace.LoadState(best.State1, best.State2)
	return best.Tokens, best.Timestamps, nil
}

// truncateBeam sorts descending by score and keeps the top width entries.
func truncateBeam(hyps []Hypothesis, width int) []Hypothesis {
	sort.SliceStable(hyps, func(i, j int) bool { return hyps[i].Score > hyps[j].Score })
	if len(hyps) > width {
		hyps = hyps[:width]
	}
	return hyps
}
