package asr

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// ErrLoadTimeout indicates a caller gave up waiting for a concurrent load.
var ErrLoadTimeout = errors.New("timed out waiting for model to load")

// EngineState tracks the process-wide lifecycle of the shared model.
type EngineState int

const (
	StateUnloaded EngineState = iota
	StateLoading
	StateLoaded
	StateFailed
)

func (s EngineState) String() string {
	switch s {
	case StateUnloaded:
		return "unloaded"
	case StateLoading:
		return "loading"
	case StateLoaded:
		return "loaded"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

const (
	loadWaitTimeout = 30 * time.Second
	idleCheckPeriod = 60 * time.Second
	idleUnloadAfter = 5 * time.Minute
)

// Engine is the process-wide shared model holder: at most one Model is
// loaded at a time, loaded lazily on first use and unloaded after a period
// of inactivity.
type Engine struct {
	logger *slog.Logger
	opts   LoadOptions

	mu      sync.Mutex
	cond    *sync.Cond
	state   EngineState
	model   *Model
	loadErr error

	lastUse time.Time

	stopIdle chan struct{}
}

// NewEngine constructs an engine and starts its idle watcher.
func NewEngine(logger *slog.Logger, opts LoadOptions) *Engine {
	e := &Engine{
		logger:   logger,
		opts:     opts,
		state:    StateUnloaded,
		lastUse:  time.Now(),
		stopIdle: make(chan struct{}),
	}
	e.cond = sync.NewCond(&e.mu)
	go e.idleWatch()
	return e
}

// EnsureLoaded blocks until the model is loaded, loading it if necessary.
// Concurrent callers during an in-flight load wait up to 30s on the same
// load rather than starting a second one.
func (e *Engine) EnsureLoaded(ctx context.Context) (*Model, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	switch e.state {
	case StateLoaded:
		e.lastUse = time.Now()
		return e.model, nil
	case StateFailed:
		e.state = StateUnloaded
		e.loadErr = nil
	}

	if e.state == StateUnloaded {
		e.state = StateLoading
		go e.load()
	}

	deadline := time.Now().Add(loadWaitTimeout)
	for e.state == StateLoading {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return nil, ErrLoadTimeout
		}
		waitDone := make(chan struct{})
		timer := time.AfterFunc(remaining, func() {
			e.mu.Lock()
			e.cond.Broadcast()
			e.mu.Unlock()
			close(waitDone)
		})
		e.cond.Wait()
		timer.Stop()
		select {
		case <-waitDone:
		default:
		}
	}

	if e.state == StateFailed {
		return nil, fmt.Errorf("load model: %w", e.loadErr)
	}
	e.lastUse = time.Now()
	return e.model, nil
}

// load runs Load outside the lock and publishes the result.
func (e *Engine) load() {
	model, err := Load(e.opts)

	e.mu.Lock()
	defer e.mu.Unlock()
	if err != nil {
		e.state = StateFailed
		e.loadErr = err
		if e.logger != nil {
			e.logger.Error("model load failed", "error", err.Error())
		}
	} else {
		e.model = model
		e.state = StateLoaded
		e.lastUse = time.Now()
		if e.logger != nil {
			e.logger.Info("model loaded", "vocab_size", model.VocabSize)
		}
	}
	e.cond.Broadcast()
}

// State reports the current lifecycle state.
func (e *Engine) State() EngineState {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Unload releases the model immediately regardless of idle time.
func (e *Engine) Unload() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.model != nil {
		e.model.Close()
		e.model = nil
	}
	e.state = StateUnloaded
}

// Close stops the idle watcher and releases the model.
func (e *Engine) Close() {
	close(e.stopIdle)
	e.Unload()
}

// idleWatch unloads the model after idleUnloadAfter of inactivity, checked
// every idleCheckPeriod.
func (e *Engine) idleWatch() {
	ticker := time.NewTicker(idleCheckPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-e.stopIdle:
			return
		case <-ticker.C:
			e.mu.Lock()
			idle := e.state == StateLoaded && time.Since(e.lastUse) > idleUnloadAfter
			if idle {
				if e.model != nil {
					e.model.Close()
					e.model = nil
				}
				e.state = StateUnloaded
				if e.logger != nil {
					e.logger.Info("model unloaded after idle timeout")
				}
			}
			e.mu.Unlock()
		}
	}
}
