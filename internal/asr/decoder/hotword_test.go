package decoder

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBuildHotwordBoostsDisabledWithoutBoost(t *testing.T) {
	boosts := BuildHotwordBoosts([]string{"a", "b"}, 0, []string{"a"}, nil)
	assert.Nil(t, boosts)
}

func TestBuildHotwordBoostsDisabledWithoutHotwordsOrPhrases(t *testing.T) {
	boosts := BuildHotwordBoosts([]string{"a", "b"}, 1.5, nil, nil)
	assert.Nil(t, boosts)
}

func TestBuildHotwordBoostsMatchesCaseAndWhitespaceInsensitively(t *testing.T) {
	vocab := []string{"<blk>", "Kubernetes", "pod", " Terraform "}
	boosts := BuildHotwordBoosts(vocab, 1.5, []string{"kubernetes", "  terraform"}, nil)

	if assert.Len(t, boosts, len(vocab)) {
		assert.Equal(t, float32(0), boosts[0])
		assert.Equal(t, float32(1.5), boosts[1])
		assert.Equal(t, float32(0), boosts[2])
		assert.Equal(t, float32(1.5), boosts[3])
	}
}

func TestBuildHotwordBoostsNilWhenNothingMatches(t *testing.T) {
	boosts := BuildHotwordBoosts([]string{"<blk>", "pod"}, 1.5, []string{"kubernetes"}, nil)
	assert.Nil(t, boosts)
}

func TestBuildHotwordBoostsAppliesPerPhraseBoostOverDefault(t *testing.T) {
	vocab := []string{"<blk>", "kubectl", "pod"}
	boosts := BuildHotwordBoosts(vocab, 1.0, []string{"kubectl"}, map[string]float32{"kubectl": 3.0, "pod": 2.0})

	if assert.Len(t, boosts, len(vocab)) {
		assert.Equal(t, float32(0), boosts[0])
		assert.Equal(t, float32(3.0), boosts[1], "a phrase-specific boost overrides the shared hotword boost")
		assert.Equal(t, float32(2.0), boosts[2])
	}
}

func TestBuildHotwordBoostsFromPhrasesAloneWithNoDefaultBoost(t *testing.T) {
	vocab := []string{"<blk>", "kubectl"}
	boosts := BuildHotwordBoosts(vocab, 0, nil, map[string]float32{"kubectl": 2.5})

	if assert.Len(t, boosts, len(vocab)) {
		assert.Equal(t, float32(0), boosts[0])
		assert.Equal(t, float32(2.5), boosts[1])
	}
}
