package decoder

import "strings"

// DetokenizeText joins decoded token ids into text. Vocabulary entries
// already carry the SentencePiece word-marker substituted for a literal
// leading space (see asr.loadVocab), so plain concatenation reproduces
// word boundaries; only the leading marker space needs trimming.
func DetokenizeText(vocab []string, tokens []int32) string {
	var b strings.Builder
	for _, id := range tokens {
		if idx := int(id); idx >= 0 && idx < len(vocab) {
			b.WriteString(vocab[idx])
		}
	}
	return strings.TrimSpace(b.String())
}
