package streaming

import (
	"fmt"

	"github.com/rbright/sotto-asr/internal/asr"
	"github.com/rbright/sotto-asr/internal/asr/decoder"
)

const (
	// minSegmentBufferSamples is the smallest audio buffer the preprocessor
	// is run against; below this the segment is held for more audio.
	minSegmentBufferSamples = 3200
	// rightContextDelayFrames holds back the most recent encoder frames,
	// since the encoder's own right context makes them unstable until a
	// later segment's overlap confirms them.
	rightContextDelayFrames = 6
	// samplesPerFrame is the encoder's input subsampling stride in samples.
	samplesPerFrame = 1280
	// contextFrames is how much audio history is kept behind the decode
	// cursor after a commit, bounding the preprocessor/encoder's per-tick
	// cost as a session runs long.
	contextFrames = 50
)

// DecodingSession runs fresh-decoder-per-segment partial decoding over an
// accumulating audio buffer: each call to AdvanceSegment re-preprocesses
// and re-encodes the buffered audio (trimmed to a context window after
// each commit) and decodes only the newly-available, right-context-safe
// encoder frames.
type DecodingSession struct {
	model *asr.Model
	cfg   decoder.Config

	encoderCursor    int
	bufferStartFrame int
	audioBuffer      []float32
	lastToken        int32
}

// NewDecodingSession builds a session bound to a loaded model and decode
// configuration.
func NewDecodingSession(model *asr.Model, cfg decoder.Config) *DecodingSession {
	return &DecodingSession{model: model, cfg: cfg, lastToken: -1}
}

// AdvanceSegment appends newSamples to the session's audio buffer and, once
// enough audio has accumulated, decodes the newly-available encoder frames
// into draft tokens anchored at absolute frame indices.
func (s *DecodingSession) AdvanceSegment(newSamples []float32) ([]TokenWithTime, error) {
	if len(newSamples) > 0 {
		s.audioBuffer = append(s.audioBuffer, newSamples...)
	}
	if len(s.audioBuffer) < minSegmentBufferSamples {
		return nil, nil
	}

	features, featureDim, frames, err := s.model.Preprocess(s.audioBuffer)
	if err != nil {
		return nil, fmt.Errorf("preprocess segment: %w", err)
	}

	encoderFrames, err := s.model.Encode(features, featureDim, frames)
	if err != nil {
		return nil, fmt.Errorf("encode segment: %w", err)
	}

	totalValidFrames := len(encoderFrames)
	skipFrames := s.encoderCursor - s.bufferStartFrame
	if skipFrames < 0 {
		skipFrames = 0
	}
	delayedFrameCount := totalValidFrames - rightContextDelayFrames
	if delayedFrameCount < 0 {
		delayedFrameCount = 0
	}

	startFrameIdx := skipFrames
	endFrameIdx := delayedFrameCount
	if endFrameIdx <= startFrameIdx {
		return nil, nil
	}

	newEncodings := encoderFrames[startFrameIdx:endFrameIdx]

	workspace, err := decoder.NewWorkspace(s.model)
	if err != nil {
		return nil, fmt.Errorf("build decode workspace: %w", err)
	}
	defer workspace.Close()

	session := decoder.NewSession(s.model, workspace, s.cfg)
	tokenIDs, timestamps, err := decoder.DecodeSequence(session, newEncodings, s.cfg, int32(s.model.BlankIdx), s.lastToken)
	if err != nil {
		return nil, fmt.Errorf("decode sequence: %w", err)
	}

	vocab := s.model.Vocab
	draftTokens := make([]TokenWithTime, 0, len(tokenIDs))
	for i, tokenID := range tokenIDs {
		text := ""
		if idx := int(tokenID); idx >= 0 && idx < len(vocab) {
			text = vocab[idx]
		}
		absFrame := s.encoderCursor + timestamps[i]
		draftTokens = append(draftTokens, TokenWithTime{
			TokenID:    tokenID,
			Text:       text,
			StartFrame: absFrame,
			EndFrame:   absFrame,
		})
	}

	return draftTokens, nil
}

// CommitTo advances the decoder cursor to frameLimit and remembers
// lastToken as the context carried into the next AdvanceSegment's fresh
// decoder session. It also trims the audio buffer down to contextFrames
// of history behind the new cursor, bounding preprocessor/encoder cost.
func (s *DecodingSession) CommitTo(frameLimit int, lastToken int32) {
	if frameLimit <= s.encoderCursor {
		return
	}
	s.encoderCursor = frameLimit
	s.lastToken = lastToken

	targetStartFrame := s.encoderCursor - contextFrames
	if targetStartFrame < 0 {
		targetStartFrame = 0
	}
	if targetStartFrame <= s.bufferStartFrame {
		return
	}

	framesToDrop := targetStartFrame - s.bufferStartFrame
	samplesToRemove := framesToDrop * samplesPerFrame

	if samplesToRemove < len(s.audioBuffer) {
		s.audioBuffer = append([]float32(nil), s.audioBuffer[samplesToRemove:]...)
		s.bufferStartFrame += framesToDrop
	} else {
		s.audioBuffer = s.audioBuffer[:0]
		s.bufferStartFrame = s.encoderCursor
	}
}

// Reset clears all segment state, used when a new push-to-talk session
// begins.
func (s *DecodingSession) Reset() {
	s.encoderCursor = 0
	s.bufferStartFrame = 0
	s.audioBuffer = s.audioBuffer[:0]
	s.lastToken = -1
}
