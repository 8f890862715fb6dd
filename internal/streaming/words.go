// Package streaming implements the ring-buffer-fed decode pipeline that
// turns a push-to-talk audio stream into incremental transcription
// patches: fresh-decoder-per-segment partial decoding, word aggregation,
// and a longest-stable-prefix hypothesis manager.
package streaming

import "strings"

// frameDurationMs is the encoder's output frame period in milliseconds,
// matching the ASR model's subsampling factor (80ms window * downsampling).
const frameDurationMs = 80

// TokenWithTime is one decoded token anchored to its encoder frame.
type TokenWithTime struct {
	TokenID    int32
	Text       string
	StartFrame int
	EndFrame   int
}

// StartMs returns the token's start time in milliseconds.
func (t TokenWithTime) StartMs() int64 { return int64(t.StartFrame) * frameDurationMs }

// EndMs returns the token's end time in milliseconds.
func (t TokenWithTime) EndMs() int64 { return int64(t.EndFrame) * frameDurationMs }

// WordWithTime is one aggregated word spanning one or more tokens.
type WordWithTime struct {
	Text        string
	T0Ms        int64
	T1Ms        int64
	EndFrame    int
	LastTokenID int32
}

// CenterMs is the word's midpoint in milliseconds, used to bucket
// otherwise-jittery partial-decode timestamps for stability comparison.
func (w WordWithTime) CenterMs() int64 { return (w.T0Ms + w.T1Ms) / 2 }

// MatchesInTimeBucket reports whether two words have identical text and
// fall in the same bucketMs-wide time bucket.
func (w WordWithTime) MatchesInTimeBucket(other WordWithTime, bucketMs int64) bool {
	if w.Text != other.Text {
		return false
	}
	return w.CenterMs()/bucketMs == other.CenterMs()/bucketMs
}

// TokensToWords groups consecutive tokens into words, splitting on any
// token whose text starts with a space (the BPE word-boundary marker).
func TokensToWords(tokens []TokenWithTime) []WordWithTime {
	if len(tokens) == 0 {
		return nil
	}

	var words []WordWithTime
	var current []TokenWithTime

	for _, tok := range tokens {
		startsWord := len(current) == 0 || strings.HasPrefix(tok.Text, " ")
		if startsWord && len(current) > 0 {
			if word, ok := finalizeWord(current); ok {
				words = append(words, word)
			}
			current = current[:0]
		}
		current = append(current, tok)
	}

	if len(current) > 0 {
		if word, ok := finalizeWord(current); ok {
			words = append(words, word)
		}
	}

	return words
}

func finalizeWord(tokens []TokenWithTime) (WordWithTime, bool) {
	if len(tokens) == 0 {
		return WordWithTime{}, false
	}
	first := tokens[0]
	last := tokens[len(tokens)-1]

	var sb strings.Builder
	for _, tok := range tokens {
		sb.WriteString(tok.Text)
	}
	text := strings.TrimSpace(sb.String())
	if text == "" {
		return WordWithTime{}, false
	}

	return WordWithTime{
		Text:        text,
		T0Ms:        first.StartMs(),
		T1Ms:        last.EndMs(),
		EndFrame:    last.EndFrame,
		LastTokenID: last.TokenID,
	}, true
}

// LongestStablePrefix returns the longest prefix of history[0] whose
// words match (by text and time bucket) the corresponding word in every
// other entry of history. An empty history has no stable prefix; a
// single-entry history is stable in full. The caller only invokes this once
// HistorySize drafts have accumulated.
func LongestStablePrefix(history [][]WordWithTime, bucketMs int64) []WordWithTime {
	if len(history) == 0 {
		return nil
	}

	first := history[0]
	var stable []WordWithTime

outer:
	for i, word := range first {
		for _, draft := range history[1:] {
			if i >= len(draft) {
				break outer
			}
			if !word.MatchesInTimeBucket(draft[i], bucketMs) {
				break outer
			}
		}
		stable = append(stable, word)
	}

	return stable
}

// WordsToText joins committed and draft words with single spaces.
func WordsToText(committed, draft []WordWithTime) string {
	var sb strings.Builder
	first := true
	for _, word := range committed {
		if !first {
			sb.WriteByte(' ')
		}
		sb.WriteString(word.Text)
		first = false
	}
	for _, word := range draft {
		if !first {
			sb.WriteByte(' ')
		}
		sb.WriteString(word.Text)
		first = false
	}
	return sb.String()
}
