package streaming

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/rbright/sotto-asr/internal/asr"
	"github.com/rbright/sotto-asr/internal/asr/decoder"
	"github.com/rbright/sotto-asr/internal/audio"
)

const (
	decodeTickInterval = 50 * time.Millisecond
	ringBufferSeconds  = 10
	targetSampleRate   = 16000
)

// TranscriptionPatch is one incremental update to the in-progress
// transcript. Start/End are rune offsets into the text the caller is
// accumulating: a stable patch's Start is the committed length before
// the patch, so the caller can append (not replace) Text; an unstable
// (draft) patch spans the whole current hypothesis and should replace
// whatever draft tail the caller is currently displaying.
type TranscriptionPatch struct {
	Start  int
	End    int
	Text   string
	Stable bool
}

// Pipeline runs the ring-buffer ingest and 50ms decode tick described in
// SPEC_FULL.md 4.6: frames pushed via Feed are buffered in a mutex-guarded ring buffer,
// and a single decode goroutine periodically drains them through a
// DecodingSession and HypothesisManager, emitting patches as they commit.
type Pipeline struct {
	model  *asr.Model
	cfg    decoder.Config
	hypCfg HypothesisConfig
	logger *slog.Logger

	ring *audio.RingBuffer

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// NewPipeline builds a pipeline bound to a loaded model, decode tuning,
// and hypothesis commit policy.
func NewPipeline(model *asr.Model, cfg decoder.Config, hypCfg HypothesisConfig, logger *slog.Logger) *Pipeline {
	return &Pipeline{
		model:  model,
		cfg:    cfg,
		hypCfg: hypCfg,
		logger: logger,
		ring:   audio.NewRingBuffer(ringBufferSeconds * targetSampleRate),
	}
}

// Feed pushes one processed frame into the pipeline. Never blocks; must
// be safe to call from the recorder's capture callback.
func (p *Pipeline) Feed(frame []float32) {
	if _, dropped := p.ring.Push(frame); dropped > 0 {
		p.logger.Warn("streaming ring buffer overrun", "dropped_samples", dropped)
	}
}

// Start spawns the decode goroutine. onUpdate is invoked from that
// goroutine for every patch; callers needing thread safety must
// synchronize inside onUpdate themselves.
func (p *Pipeline) Start(ctx context.Context, onUpdate func(TranscriptionPatch)) {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return
	}
	p.running = true
	p.stopCh = make(chan struct{})
	p.doneCh = make(chan struct{})
	p.mu.Unlock()

	go p.decodeLoop(ctx, onUpdate)
}

// Stop signals the decode goroutine to flush and exit, and waits for it.
func (p *Pipeline) Stop() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	p.running = false
	stopCh, doneCh := p.stopCh, p.doneCh
	p.mu.Unlock()

	close(stopCh)
	<-doneCh
}

func (p *Pipeline) decodeLoop(ctx context.Context, onUpdate func(TranscriptionPatch)) {
	defer close(p.doneCh)

	p.logger.Info("streaming decode loop started")

	session := NewDecodingSession(p.model, p.cfg)
	hypothesis := NewHypothesisManager(p.hypCfg)

	ticker := time.NewTicker(decodeTickInterval)
	defer ticker.Stop()

	var totalSamples int64
	drain := make([]float32, targetSampleRate)

	for {
		select {
		case <-p.stopCh:
			p.flush(hypothesis, onUpdate)
			p.logger.Info("streaming decode loop exiting (stopped)")
			return
		case <-ctx.Done():
			p.flush(hypothesis, onUpdate)
			p.logger.Info("streaming decode loop exiting (context done)")
			return
		case <-ticker.C:
			samples := p.drainAll(drain)
			if len(samples) == 0 {
				continue
			}
			totalSamples += int64(len(samples))
			currentAudioMs := totalSamples * 1000 / targetSampleRate

			tokens, err := session.AdvanceSegment(samples)
			if err != nil {
				p.logger.Error("streaming decode failed", "error", err)
				continue
			}
			if len(tokens) == 0 {
				continue
			}

			p.applyTokens(session, hypothesis, tokens, currentAudioMs, onUpdate)
		}
	}
}

func (p *Pipeline) drainAll(scratch []float32) []float32 {
	var samples []float32
	for {
		n := p.ring.Pop(scratch)
		if n == 0 {
			break
		}
		samples = append(samples, scratch[:n]...)
	}
	return samples
}

func (p *Pipeline) applyTokens(session *DecodingSession, hypothesis *HypothesisManager, tokens []TokenWithTime, currentAudioMs int64, onUpdate func(TranscriptionPatch)) {
	words := TokensToWords(tokens)

	if point, committed := hypothesis.UpdateDraft(words, currentAudioMs); committed {
		session.CommitTo(point.Frame, point.Token)
	}

	if start, text, ok := hypothesis.TakeNewlyCommitted(); ok {
		onUpdate(TranscriptionPatch{
			Start:  start,
			End:    start + len([]rune(text)),
			Text:   text,
			Stable: true,
		})
	}

	fullText := hypothesis.GetFullText()
	onUpdate(TranscriptionPatch{
		Start:  0,
		End:    len([]rune(fullText)),
		Text:   fullText,
		Stable: false,
	})
}

func (p *Pipeline) flush(hypothesis *HypothesisManager, onUpdate func(TranscriptionPatch)) {
	draft := hypothesis.GetDraftOnlyText()
	if strings.TrimSpace(draft) == "" {
		return
	}
	remaining := " " + strings.TrimLeft(draft, " ")
	start := hypothesis.StableCharLen
	onUpdate(TranscriptionPatch{
		Start:  start,
		End:    start + len([]rune(remaining)),
		Text:   remaining,
		Stable: true,
	})
}
