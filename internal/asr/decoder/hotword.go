package decoder

import "strings"

// BuildHotwordBoosts returns a per-vocab-entry additive score boost: tokens
// named in hotwords receive defaultBoost, and tokens named in phraseBoosts
// (normally sourced from a configured vocabulary set) receive their own
// per-phrase boost, taking precedence when a token appears in both. Returns
// nil if nothing is configured to boost or no vocabulary entry matched.
func BuildHotwordBoosts(vocab []string, defaultBoost float32, hotwords []string, phraseBoosts map[string]float32) []float32 {
	boosts := make(map[string]float32, len(hotwords)+len(phraseBoosts))
	if defaultBoost > 0.0 {
		for _, w := range hotwords {
			w = strings.ToLower(strings.TrimSpace(w))
			if w != "" {
				boosts[w] = defaultBoost
			}
		}
	}
	for phrase, boost := range phraseBoosts {
		phrase = strings.ToLower(strings.TrimSpace(phrase))
		if phrase != "" && boost > 0.0 {
			boosts[phrase] = boost
		}
	}
	if len(boosts) == 0 {
		return nil
	}

	out := make([]float32, len(vocab))
	matched := false
	for i, token := range vocab {
		norm := strings.ToLower(strings.TrimSpace(token))
		if b, ok := boosts[norm]; ok {
			out[i] = b
			matched = true
		}
	}
	if !matched {
		return nil
	}
	return out
}
