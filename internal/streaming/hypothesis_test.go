package streaming

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func wordAt(text string, t0, t1 int64, endFrame int, tokenID int32) WordWithTime {
	return WordWithTime{Text: text, T0Ms: t0, T1Ms: t1, EndFrame: endFrame, LastTokenID: tokenID}
}

func TestHypothesisManagerCommitsAfterStableHistory(t *testing.T) {
	cfg := HypothesisConfig{HistorySize: 3, CommitLagMs: 50, TimeBucketMs: 100, MaxUncommittedDurationMs: 100000}
	m := NewHypothesisManager(cfg)

	draft := []WordWithTime{wordAt("hello", 0, 200, 2, 10)}

	var point CommitPoint
	var committed bool
	for i := 0; i < 3; i++ {
		point, committed = m.UpdateDraft(draft, 1000)
	}

	require.True(t, committed, "word stable across history_size drafts with audio far past commit lag should commit")
	assert.Equal(t, int32(10), point.Token)
	assert.Equal(t, 2, point.Frame)

	start, text, ok := m.TakeNewlyCommitted()
	require.True(t, ok)
	assert.Equal(t, 0, start)
	assert.Equal(t, "hello", text)
}

func TestHypothesisManagerWithholdsUntilHistoryFull(t *testing.T) {
	cfg := DefaultHypothesisConfig()
	m := NewHypothesisManager(cfg)

	draft := []WordWithTime{wordAt("hello", 0, 200, 2, 10)}
	_, committed := m.UpdateDraft(draft, 1000)

	assert.False(t, committed, "must not commit before history_size drafts accumulate")
}

func TestHypothesisManagerRespectsCommitLag(t *testing.T) {
	cfg := HypothesisConfig{HistorySize: 2, CommitLagMs: 500, TimeBucketMs: 100, MaxUncommittedDurationMs: 100000}
	m := NewHypothesisManager(cfg)

	draft := []WordWithTime{wordAt("hello", 0, 200, 2, 10)}
	m.UpdateDraft(draft, 250)
	_, committed := m.UpdateDraft(draft, 250)

	assert.False(t, committed, "word within commit_lag_ms of current audio position should not commit yet")
}

func TestHypothesisManagerForceCommitsAfterMaxUncommittedDuration(t *testing.T) {
	cfg := HypothesisConfig{HistorySize: 100, CommitLagMs: 50, TimeBucketMs: 100, MaxUncommittedDurationMs: 500}
	m := NewHypothesisManager(cfg)

	draft := []WordWithTime{wordAt("hello", 0, 200, 2, 10)}
	_, committed := m.UpdateDraft(draft, 600)

	assert.True(t, committed, "draft word older than max_uncommitted_duration_ms must force-commit")
}

func TestHypothesisManagerTakeNewlyCommittedOnlyReturnsDelta(t *testing.T) {
	cfg := HypothesisConfig{HistorySize: 1, CommitLagMs: 0, TimeBucketMs: 100, MaxUncommittedDurationMs: 0}
	m := NewHypothesisManager(cfg)

	m.UpdateDraft([]WordWithTime{wordAt("one", 0, 100, 1, 1)}, 1000)
	start1, text1, ok1 := m.TakeNewlyCommitted()
	require.True(t, ok1)
	assert.Equal(t, 0, start1)
	assert.Equal(t, "one", text1)

	m.UpdateDraft([]WordWithTime{wordAt("two", 200, 300, 2, 2)}, 2000)
	start3, text3, ok3 := m.TakeNewlyCommitted()
	require.True(t, ok3)
	assert.Equal(t, len([]rune("one")), start3)
	assert.Equal(t, " two", text3)
}

func TestHypothesisManagerGetFullTextCombinesCommittedAndDraft(t *testing.T) {
	cfg := HypothesisConfig{HistorySize: 100, CommitLagMs: 50, TimeBucketMs: 100, MaxUncommittedDurationMs: 100000}
	m := NewHypothesisManager(cfg)

	m.UpdateDraft([]WordWithTime{wordAt("draft", 0, 200, 2, 10)}, 50)
	assert.Equal(t, "draft", m.GetFullText())
	assert.Equal(t, "draft", m.GetDraftOnlyText())
}
