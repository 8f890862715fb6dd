package recorder

import (
	"context"
	"encoding/binary"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/rbright/sotto-asr/internal/asr"
	"github.com/rbright/sotto-asr/internal/asr/decoder"
	"github.com/rbright/sotto-asr/internal/audio"
	"github.com/rbright/sotto-asr/internal/config"
	"github.com/rbright/sotto-asr/internal/modelstore"
	"github.com/rbright/sotto-asr/internal/session"
	"github.com/rbright/sotto-asr/internal/streaming"
	"github.com/rbright/sotto-asr/internal/transcript"
)

// ASRTranscriber implements session.Transcriber by composing the push-to-
// talk Recorder with on-device transducer inference: capture starts
// immediately while the model loads in the background, a streaming
// pipeline (when enabled) keeps a running partial transcript during
// recording, and StopAndTranscribe waits for the model and returns the
// best available transcript.
type ASRTranscriber struct {
	cfg          config.Config
	phraseBoosts map[string]float32
	logger       *slog.Logger

	recorder *Recorder

	mu            sync.Mutex
	engine        *asr.Engine
	loadErr       error
	streamPipe    *streaming.Pipeline
	pendingFrames [][]float32
	committed     strings.Builder
	debugDecodeFile *os.File
	stopped       bool
}

// NewASRTranscriber constructs a transcriber bound to runtime config. Any
// configured vocabulary phrases are resolved once here into per-phrase
// hotword boosts fed to the decoder.
func NewASRTranscriber(cfg config.Config, logger *slog.Logger) *ASRTranscriber {
	t := &ASRTranscriber{cfg: cfg, logger: logger}

	phrases, warnings, err := config.BuildSpeechPhrases(cfg)
	if err != nil {
		if logger != nil {
			logger.Warn("vocabulary phrase plan rejected, continuing without phrase boosting", "error", err)
		}
		return t
	}
	if logger != nil {
		for _, w := range warnings {
			logger.Warn("vocabulary phrase plan warning", "message", w.Message)
		}
	}
	if len(phrases) == 0 {
		return t
	}

	boosts := make(map[string]float32, len(phrases))
	for _, p := range phrases {
		boosts[strings.ToLower(strings.TrimSpace(p.Phrase))] = p.Boost
	}
	t.phraseBoosts = boosts
	if logger != nil {
		logger.Debug("speech context plan", "phrase_count", len(phrases))
	}
	return t
}

// Start selects an input device, begins capture, and kicks off model
// loading (and, when streaming is enabled, the live decode pipeline) in
// the background so recording latency never waits on inference setup.
func (t *ASRTranscriber) Start(ctx context.Context) error {
	t.mu.Lock()
	if t.recorder != nil {
		t.mu.Unlock()
		return fmt.Errorf("transcriber already started")
	}
	t.loadErr = nil
	t.streamPipe = nil
	t.pendingFrames = nil
	t.committed.Reset()
	t.stopped = false
	t.mu.Unlock()

	if t.cfg.Debug.EnableDecodeDump {
		file, err := createDebugFile("decode", "json")
		if err != nil {
			return err
		}
		t.mu.Lock()
		t.debugDecodeFile = file
		t.mu.Unlock()
	}

	rec := New(t.streamFrame)
	if err := rec.Start(ctx, t.cfg.Audio.Input, t.cfg.Audio.Fallback); err != nil {
		t.closeDebugArtifacts()
		return err
	}

	t.mu.Lock()
	t.recorder = rec
	t.mu.Unlock()

	go t.warmUp(context.Background())

	return nil
}

// streamFrame is handed to Recorder as its streaming fanout. It must
// never block: frames that arrive before the streaming pipeline is ready
// are buffered and replayed once warmUp publishes it.
func (t *ASRTranscriber) streamFrame(frame []float32) {
	if !t.cfg.Streaming.Enable {
		return
	}

	t.mu.Lock()
	pipe := t.streamPipe
	if pipe == nil {
		t.pendingFrames = append(t.pendingFrames, append([]float32(nil), frame...))
	}
	t.mu.Unlock()

	if pipe != nil {
		pipe.Feed(frame)
	}
}

// warmUp resolves the model snapshot, loads it, and (when streaming is
// enabled) starts the live decode pipeline, replaying any frames that
// arrived before it was ready.
func (t *ASRTranscriber) warmUp(ctx context.Context) {
	engine, err := t.getOrCreateEngine()
	if err != nil {
		t.mu.Lock()
		t.loadErr = err
		t.mu.Unlock()
		return
	}

	model, err := engine.EnsureLoaded(ctx)
	if err != nil {
		t.mu.Lock()
		t.loadErr = err
		t.mu.Unlock()
		return
	}

	if !t.cfg.Streaming.Enable {
		return
	}

	pipe := streaming.NewPipeline(model, decoderConfigFromASR(t.cfg.ASR, t.phraseBoosts, true), hypothesisConfigFromStreaming(t.cfg.Streaming), t.logger)
	pipe.Start(ctx, t.onPatch)

	t.mu.Lock()
	backlog := t.pendingFrames
	t.pendingFrames = nil
	if t.stopped {
		t.mu.Unlock()
		pipe.Stop()
		return
	}
	t.streamPipe = pipe
	t.mu.Unlock()

	for _, frame := range backlog {
		pipe.Feed(frame)
	}
}

// getOrCreateEngine lazily resolves the configured model snapshot and
// constructs the shared engine exactly once.
func (t *ASRTranscriber) getOrCreateEngine() (*asr.Engine, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.engine != nil {
		return t.engine, nil
	}

	root := strings.TrimSpace(t.cfg.ModelStore.Path)
	if root == "" {
		root = modelstore.FallbackModelRoot()
	}

	var dl *modelstore.Downloader
	if t.cfg.ModelStore.AllowDownload {
		dl = modelstore.NewDownloader(t.logger)
	}

	dir, err := modelstore.ResolveModelDir(root, dl)
	if err != nil {
		return nil, fmt.Errorf("resolve model snapshot: %w", err)
	}

	engine := asr.NewEngine(t.logger, asr.LoadOptions{SnapshotDir: dir})
	t.engine = engine
	return engine, nil
}

// onPatch accumulates stable streaming patches into the running
// committed transcript; draft (unstable) patches are only used to drive
// UI-facing partials, which this CLI does not surface, so they are
// dropped here.
func (t *ASRTranscriber) onPatch(patch streaming.TranscriptionPatch) {
	if !patch.Stable {
		return
	}
	t.mu.Lock()
	t.committed.WriteString(patch.Text)
	t.mu.Unlock()

	t.dumpDecodePatch(patch)
}

// StopAndTranscribe stops capture, waits for the model if still loading,
// and returns the best available transcript: the streaming pipeline's
// accumulated commits when streaming produced any text, otherwise a
// fresh one-shot decode of the full captured utterance.
func (t *ASRTranscriber) StopAndTranscribe(ctx context.Context) (session.StopResult, error) {
	t.mu.Lock()
	rec := t.recorder
	t.mu.Unlock()
	if rec == nil {
		return session.StopResult{}, session.ErrPipelineUnavailable
	}

	started := time.Now()

	utterance, err := rec.Stop()

	t.mu.Lock()
	pipe := t.streamPipe
	t.stopped = true
	t.mu.Unlock()
	if pipe != nil {
		pipe.Stop()
	}

	if err != nil {
		t.writeDebugAudio(nil)
		t.closeDebugArtifacts()
		return session.StopResult{}, fmt.Errorf("stop capture: %w", err)
	}

	device := describeDevice(utterance.Device)
	t.writeDebugAudio(utterance.Samples)

	engine, engineErr := t.getOrCreateEngine()
	if engineErr == nil {
		if _, loadErr := engine.EnsureLoaded(ctx); loadErr != nil {
			engineErr = loadErr
		}
	}
	if loadErr := t.takeLoadErr(); loadErr != nil {
		engineErr = loadErr
	}
	if engineErr != nil {
		t.closeDebugArtifacts()
		return session.StopResult{
			AudioDevice:   device,
			BytesCaptured: utterance.BytesCaptured,
		}, fmt.Errorf("load model: %w", engineErr)
	}

	streamedText := t.streamingTranscript()

	var finalText string
	var inferenceLatency time.Duration
	if strings.TrimSpace(streamedText) != "" {
		finalText = transcript.Assemble([]string{streamedText}, t.transcriptOptions())
		inferenceLatency = time.Since(started)
	} else {
		model, _ := engine.EnsureLoaded(ctx)
		text, decodeErr := t.decodeFullUtterance(model, utterance.Samples)
		if decodeErr != nil {
			t.closeDebugArtifacts()
			return session.StopResult{
				AudioDevice:   device,
				BytesCaptured: utterance.BytesCaptured,
			}, fmt.Errorf("decode utterance: %w", decodeErr)
		}
		finalText = transcript.Assemble([]string{text}, t.transcriptOptions())
		inferenceLatency = time.Since(started)
	}

	t.closeDebugArtifacts()

	return session.StopResult{
		Transcript:       finalText,
		AudioDevice:      device,
		BytesCaptured:    utterance.BytesCaptured,
		InferenceLatency: inferenceLatency,
	}, nil
}

// Cancel stops capture and the streaming pipeline without producing a
// transcript.
func (t *ASRTranscriber) Cancel(_ context.Context) error {
	t.mu.Lock()
	rec := t.recorder
	pipe := t.streamPipe
	t.stopped = true
	t.mu.Unlock()

	if rec != nil {
		_ = rec.Cancel()
	}
	if pipe != nil {
		pipe.Stop()
	}
	t.closeDebugArtifacts()
	return nil
}

func (t *ASRTranscriber) takeLoadErr() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.loadErr
}

func (t *ASRTranscriber) streamingTranscript() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.committed.String()
}

func (t *ASRTranscriber) transcriptOptions() transcript.Options {
	return transcript.Options{
		TrailingSpace:       t.cfg.Transcript.TrailingSpace,
		CapitalizeSentences: t.cfg.Transcript.CapitalizeSentences,
	}
}

// decodeFullUtterance runs one non-streaming preprocess/encode/decode
// pass over the entire captured buffer, used when streaming is disabled
// or produced no committed text (e.g. a very short utterance that never
// crossed the streaming pipeline's commit thresholds).
func (t *ASRTranscriber) decodeFullUtterance(model *asr.Model, samples []float32) (string, error) {
	if len(samples) == 0 {
		return "", nil
	}

	features, featureDim, frames, err := model.Preprocess(samples)
	if err != nil {
		return "", fmt.Errorf("preprocess: %w", err)
	}

	encodings, err := model.Encode(features, featureDim, frames)
	if err != nil {
		return "", fmt.Errorf("encode: %w", err)
	}

	workspace, err := decoder.NewWorkspace(model)
	if err != nil {
		return "", fmt.Errorf("build workspace: %w", err)
	}
	defer workspace.Close()

	cfg := decoderConfigFromASR(t.cfg.ASR, t.phraseBoosts, false)
	decodeSession := decoder.NewSession(model, workspace, cfg)
	tokens, _, err := decoder.DecodeSequence(decodeSession, encodings, cfg, int32(model.BlankIdx), -1)
	if err != nil {
		return "", fmt.Errorf("decode sequence: %w", err)
	}

	return decoder.DetokenizeText(model.Vocab, tokens), nil
}

// decoderConfigFromASR builds a decode configuration from runtime config,
// using the streaming session's slightly tighter per-frame emission cap
// when streaming is true. phraseBoosts, when non-nil, merges the resolved
// vocabulary phrase plan into the decoder's hotword boosting.
func decoderConfigFromASR(cfg config.ASRConfig, phraseBoosts map[string]float32, streamingMode bool) decoder.Config {
	base := decoder.DefaultConfig()
	if streamingMode {
		base = decoder.StreamingDefaultConfig()
	}
	base.Temperature = float32(cfg.Temperature)
	base.MinBlankMargin = float32(cfg.MinBlankMargin)
	base.HotwordBoost = float32(cfg.HotwordBoost)
	base.Hotwords = cfg.Hotwords
	base.PhraseBoosts = phraseBoosts
	if cfg.MaxTokensPerStep > 0 {
		base.MaxTokensPerStep = cfg.MaxTokensPerStep
	}
	if cfg.BeamWidth > 0 {
		base.BeamWidth = cfg.BeamWidth
	}
	return base
}

func hypothesisConfigFromStreaming(cfg config.StreamingConfig) streaming.HypothesisConfig {
	base := streaming.DefaultHypothesisConfig()
	if cfg.HistorySize > 0 {
		base.HistorySize = cfg.HistorySize
	}
	base.CommitLagMs = int64(cfg.CommitLagMs)
	base.TimeBucketMs = int64(cfg.TimeBucketMs)
	if cfg.MaxUncommittedDurationMs > 0 {
		base.MaxUncommittedDurationMs = int64(cfg.MaxUncommittedDurationMs)
	}
	return base
}

// describeDevice formats device metadata for logs/session results.
func describeDevice(device audio.Device) string {
	description := strings.TrimSpace(device.Description)
	id := strings.TrimSpace(device.ID)
	if description == "" {
		return id
	}
	if id == "" {
		return description
	}
	return fmt.Sprintf("%s (%s)", description, id)
}

// createDebugFile creates timestamped debug artifacts under state/sotto/debug.
func createDebugFile(prefix string, extension string) (*os.File, error) {
	stateDir, err := resolveStateDir()
	if err != nil {
		return nil, err
	}
	debugDir := filepath.Join(stateDir, "sotto", "debug")
	if err := os.MkdirAll(debugDir, 0o700); err != nil {
		return nil, fmt.Errorf("create debug dir: %w", err)
	}

	timestamp := time.Now().Format("20060102-150405.000")
	path := filepath.Join(debugDir, fmt.Sprintf("%s-%s.%s", prefix, timestamp, extension))
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return nil, fmt.Errorf("open debug file %q: %w", path, err)
	}
	return file, nil
}

// resolveStateDir returns XDG_STATE_HOME fallback path for debug artifacts.
func resolveStateDir() (string, error) {
	if xdg := strings.TrimSpace(os.Getenv("XDG_STATE_HOME")); xdg != "" {
		return xdg, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home directory for state: %w", err)
	}
	return filepath.Join(home, ".local", "state"), nil
}

// closeDebugArtifacts closes open debug sinks.
func (t *ASRTranscriber) closeDebugArtifacts() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.debugDecodeFile != nil {
		_ = t.debugDecodeFile.Close()
		t.debugDecodeFile = nil
	}
}

// dumpDecodePatch appends one committed streaming patch as a JSON line
// to the debug decode dump, when enabled.
func (t *ASRTranscriber) dumpDecodePatch(patch streaming.TranscriptionPatch) {
	t.mu.Lock()
	file := t.debugDecodeFile
	t.mu.Unlock()
	if file == nil {
		return
	}
	line := fmt.Sprintf("{\"start\":%d,\"end\":%d,\"text\":%q,\"stable\":%t}\n", patch.Start, patch.End, patch.Text, patch.Stable)
	if _, err := file.WriteString(line); err != nil && t.logger != nil {
		t.logger.Warn("unable to write decode dump", "error", err.Error())
	}
}

// writeDebugAudio writes raw PCM to WAV when debug.audio_dump is enabled.
func (t *ASRTranscriber) writeDebugAudio(samples []float32) {
	if !t.cfg.Debug.EnableAudioDump || len(samples) == 0 {
		return
	}

	file, err := createDebugFile("audio", "wav")
	if err != nil {
		if t.logger != nil {
			t.logger.Warn("unable to create debug audio dump", "error", err.Error())
		}
		return
	}
	defer file.Close()

	if err := writePCM16WAV(file, samplesToPCM16(samples), 16000, 1); err != nil {
		if t.logger != nil {
			t.logger.Warn("unable to write debug audio dump", "error", err.Error())
		}
	}
}

// samplesToPCM16 converts mono float32 samples in [-1, 1] to little-endian
// 16-bit PCM bytes for the debug WAV dump.
func samplesToPCM16(samples []float32) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		if s > 1 {
			s = 1
		} else if s < -1 {
			s = -1
		}
		v := int16(s * 32767)
		binary.LittleEndian.PutUint16(out[i*2:], uint16(v))
	}
	return out
}

// writePCM16WAV writes raw little-endian PCM bytes with a minimal WAV header.
func writePCM16WAV(file *os.File, pcm []byte, sampleRate int, channels int) error {
	if channels <= 0 {
		channels = 1
	}
	const bitsPerSample = 16
	byteRate := sampleRate * channels * (bitsPerSample / 8)
	blockAlign := channels * (bitsPerSample / 8)

	chunkSize := uint32(36 + len(pcm))
	subChunk2Size := uint32(len(pcm))

	header := make([]byte, 44)
	copy(header[0:4], []byte("RIFF"))
	binary.LittleEndian.PutUint32(header[4:8], chunkSize)
	copy(header[8:12], []byte("WAVE"))
	copy(header[12:16], []byte("fmt "))
	binary.LittleEndian.PutUint32(header[16:20], 16)
	binary.LittleEndian.PutUint16(header[20:22], 1) // PCM
	binary.LittleEndian.PutUint16(header[22:24], uint16(channels))
	binary.LittleEndian.PutUint32(header[24:28], uint32(sampleRate))
	binary.LittleEndian.PutUint32(header[28:32], uint32(byteRate))
	binary.LittleEndian.PutUint16(header[32:34], uint16(blockAlign))
	binary.LittleEndian.PutUint16(header[34:36], bitsPerSample)
	copy(header[36:40], []byte("data"))
	binary.LittleEndian.PutUint32(header[40:44], subChunk2Size)

	if _, err := file.Write(header); err != nil {
		return err
	}
	_, err := file.Write(pcm)
	return err
}
