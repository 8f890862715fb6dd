// Package recorder owns the push-to-talk capture lifecycle: device
// selection, starting/stopping the audio stream, and accumulating the
// full-utterance PCM buffer alongside an optional streaming fanout.
package recorder

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rbright/sotto-asr/internal/audio"
)

// ErrAlreadyRecording indicates Start was called on an active recorder.
var ErrAlreadyRecording = errors.New("recorder already recording")

// ErrNotRecording indicates Stop was called with no active capture. Cancel
// with no active capture returns nil.
var ErrNotRecording = errors.New("recorder not recording")

// ErrNoAudioCaptured indicates the utterance buffer was empty at stop time.
var ErrNoAudioCaptured = errors.New("no audio captured")

// Utterance is one finished recording: the accumulated mono 16kHz float32
// samples plus capture metadata.
type Utterance struct {
	Samples       []float32
	Device        audio.Device
	BytesCaptured int64
	StreamedAny   bool
}

// Recorder owns exactly one capture at a time.
type Recorder struct {
	mu        sync.Mutex
	recording bool
	capture   *audio.Capture
	selection audio.Selection

	streamSink func([]float32) // forwards frames to the streaming pipeline, if enabled

	streamedAny bool

	drainDone chan struct{}
}

// New constructs an idle recorder. streamSink, if non-nil, receives every
// processed 480-sample frame as it arrives (the C6 fan-out); it must not
// block.
func New(streamSink func([]float32)) *Recorder {
	return &Recorder{streamSink: streamSink}
}

// Start selects an input device and begins capture.
func (r *Recorder) Start(ctx context.Context, input, fallback string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.recording {
		return ErrAlreadyRecording
	}

	selection, err := audio.SelectDevice(ctx, input, fallback)
	if err != nil {
		return err
	}

	capture, err := audio.StartCapture(ctx, selection.Device, func(frame []float32) {
		r.streamedAny = true
		if r.streamSink != nil {
			r.streamSink(frame)
		}
	})
	if err != nil {
		return err
	}

	r.capture = capture
	r.selection = selection
	r.streamedAny = false
	r.recording = true

	r.drainDone = make(chan struct{})
	go r.drainFrames(capture, r.drainDone)

	return nil
}

// drainFrames consumes the capture's processed-frame channel until it
// closes (i.e. after Stop), so pushFrame never blocks on backpressure. The
// frames themselves are not retained here: Stop builds the final Utterance
// from the capture's raw PCM buffer via a one-shot resample, matching how a
// backend that only learns its true hardware rate at capture time would
// finish a recording.
func (r *Recorder) drainFrames(capture *audio.Capture, done chan struct{}) {
	defer close(done)
	for range capture.Frames() {
	}
}

// Stop halts capture and returns the accumulated utterance.
func (r *Recorder) Stop() (Utterance, error) {
	r.mu.Lock()
	if !r.recording {
		r.mu.Unlock()
		return Utterance{}, ErrNotRecording
	}
	capture := r.capture
	drainDone := r.drainDone
	r.mu.Unlock()

	if err := capture.Stop(); err != nil {
		return Utterance{}, fmt.Errorf("stop capture: %w", err)
	}
	<-drainDone

	raw := capture.RawPCM()
	samples := audio.NewLinearResampler(capture.NativeSampleRate(), audio.TargetSampleRate).Resample(audio.BytesToFloat32(raw))

	r.mu.Lock()
	defer r.mu.Unlock()
	r.recording = false

	if len(samples) == 0 {
		return Utterance{}, ErrNoAudioCaptured
	}

	return Utterance{
		Samples:       samples,
		Device:        r.selection.Device,
		BytesCaptured: capture.BytesCaptured(),
		StreamedAny:   r.streamedAny,
	}, nil
}

// Cancel halts capture and discards any buffered audio.
func (r *Recorder) Cancel() error {
	r.mu.Lock()
	if !r.recording {
		r.mu.Unlock()
		return nil
	}
	capture := r.capture
	drainDone := r.drainDone
	r.mu.Unlock()

	err := capture.Stop()
	<-drainDone

	r.mu.Lock()
	r.recording = false
	r.mu.Unlock()

	return err
}

// IsRecording reports whether a capture is currently active.
func (r *Recorder) IsRecording() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.recording
}

// Device returns the selection used by the current or most recent capture.
func (r *Recorder) Device() audio.Device {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.selection.Device
}
