package streaming

// HypothesisConfig tunes the commit policy of HypothesisManager.
type HypothesisConfig struct {
	HistorySize              int
	CommitLagMs              int64
	TimeBucketMs             int64
	SafetyMarginWords        int
	MaxUncommittedDurationMs int64
}

// DefaultHypothesisConfig matches the streaming pipeline's tuned defaults.
func DefaultHypothesisConfig() HypothesisConfig {
	return HypothesisConfig{
		HistorySize:              3,
		CommitLagMs:              50,
		TimeBucketMs:             100,
		SafetyMarginWords:        0,
		MaxUncommittedDurationMs: 1500,
	}
}

// HypothesisManager tracks committed (final) and draft (in-flight) words
// across successive partial decodes, committing a word once it has been
// stable across HistorySize consecutive drafts, or forcing a commit when
// a draft word has gone uncommitted for too long.
type HypothesisManager struct {
	config HypothesisConfig

	committed    []WordWithTime
	currentDraft []WordWithTime
	history      [][]WordWithTime

	StableCharLen int
	TotalCharLen  int
}

// NewHypothesisManager builds an empty manager.
func NewHypothesisManager(config HypothesisConfig) *HypothesisManager {
	return &HypothesisManager{config: config}
}

// CommitPoint is where a draft's trailing edge was found stable enough
// to advance the decoder's fresh-segment cursor past.
type CommitPoint struct {
	Frame int
	Token int32
}

// UpdateDraft replaces the current draft with newWords (already filtered
// to the committed boundary by the caller's fresh decode), folds it into
// the rolling history, and commits a stable or force-committed prefix if
// one is found. It returns the commit point when a commit occurred.
func (m *HypothesisManager) UpdateDraft(newWords []WordWithTime, currentAudioMs int64) (CommitPoint, bool) {
	lastCommittedT1 := int64(-1)
	if len(m.committed) > 0 {
		lastCommittedT1 = m.committed[len(m.committed)-1].T1Ms
	}

	m.currentDraft = m.currentDraft[:0]
	for _, w := range newWords {
		if w.T0Ms >= lastCommittedT1 {
			m.currentDraft = append(m.currentDraft, w)
		}
	}

	m.history = append(m.history, append([]WordWithTime(nil), m.currentDraft...))
	if len(m.history) > m.config.HistorySize {
		m.history = m.history[1:]
	}

	var stablePrefix []WordWithTime
	if len(m.history) >= m.config.HistorySize {
		stablePrefix = LongestStablePrefix(m.history, m.config.TimeBucketMs)
	}

	toCommit, ok := m.checkAndCommit(stablePrefix, currentAudioMs)
	if !ok {
		toCommit, ok = m.checkForceCommit(currentAudioMs)
	}
	if !ok {
		return CommitPoint{}, false
	}

	last := toCommit[len(toCommit)-1]
	point := CommitPoint{Frame: last.EndFrame, Token: last.LastTokenID}

	m.committed = append(m.committed, toCommit...)

	m.currentDraft = filterAfter(m.currentDraft, last.T1Ms)
	for i, draft := range m.history {
		m.history[i] = filterAfter(draft, last.T1Ms)
	}

	m.TotalCharLen = len([]rune(m.GetFullText()))
	return point, true
}

func filterAfter(words []WordWithTime, boundaryMs int64) []WordWithTime {
	out := words[:0:0]
	for _, w := range words {
		if w.T0Ms > boundaryMs {
			out = append(out, w)
		}
	}
	return out
}

// checkAndCommit commits the leading run of the stable prefix that both
// lies within the safety margin and has fully aged past commitLagMs.
func (m *HypothesisManager) checkAndCommit(stablePrefix []WordWithTime, currentAudioMs int64) ([]WordWithTime, bool) {
	if len(stablePrefix) == 0 {
		return nil, false
	}

	cutoff := len(stablePrefix) - m.config.SafetyMarginWords
	if cutoff < 0 {
		cutoff = 0
	}

	var toCommit []WordWithTime
	for i := 0; i < cutoff; i++ {
		word := stablePrefix[i]
		if word.T1Ms <= currentAudioMs-m.config.CommitLagMs {
			toCommit = append(toCommit, word)
		} else {
			break
		}
	}

	if len(toCommit) == 0 {
		return nil, false
	}
	return toCommit, true
}

// checkForceCommit commits the first draft word alone once it has gone
// uncommitted for longer than MaxUncommittedDurationMs, guaranteeing
// forward progress even when the decoder never stabilizes on a prefix.
func (m *HypothesisManager) checkForceCommit(currentAudioMs int64) ([]WordWithTime, bool) {
	if len(m.currentDraft) == 0 {
		return nil, false
	}
	first := m.currentDraft[0]
	if currentAudioMs-first.T0Ms > m.config.MaxUncommittedDurationMs {
		return []WordWithTime{first}, true
	}
	return nil, false
}

// GetFullText renders committed words followed by the current draft.
func (m *HypothesisManager) GetFullText() string {
	return WordsToText(m.committed, m.currentDraft)
}

// GetDraftOnlyText renders only the current draft, used for the final
// flush when the session ends with no further commit forthcoming.
func (m *HypothesisManager) GetDraftOnlyText() string {
	return WordsToText(nil, m.currentDraft)
}

// TakeNewlyCommitted returns the text committed since the last call,
// along with its starting character offset into the committed text, or
// false if nothing new has committed.
func (m *HypothesisManager) TakeNewlyCommitted() (start int, text string, ok bool) {
	committedText := WordsToText(m.committed, nil)
	chars := []rune(committedText)

	if len(chars) <= m.StableCharLen {
		return 0, "", false
	}

	start = m.StableCharLen
	text = string(chars[m.StableCharLen:])
	m.StableCharLen = len(chars)
	return start, text, true
}
