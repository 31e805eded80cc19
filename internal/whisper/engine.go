package whisper

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNativeUnavailable is returned when whisper.cpp was not compiled in (build tag: whisper_cpp).
	ErrNativeUnavailable = errors.New("whisper: native backend unavailable")
	ErrAlreadyStarted    = errors.New("whisper: engine already started")
	ErrNotStarted        = errors.New("whisper: engine not started")
)

// Segment is one decoded span of speech.
type Segment struct {
	Start time.Duration
	End   time.Duration
	Text  string
}

// Result is what a model or engine reports for a piece of audio.
type Result struct {
	Text     string
	Language string
	Segments []Segment
}

// Model transcribes whole buffers of 16 kHz mono samples.
type Model interface {
	Transcribe(ctx context.Context, samples []float32) (Result, error)
	Close() error
}

// Engine is a live transcription backend: it captures audio on its own
// goroutines once started and keeps the most recent result.
// Start, Stop and LatestResult are meant to be called from one goroutine.
type Engine interface {
	Start() error
	Stop() error
	// LatestResult returns nil when nothing has been recognized yet.
	LatestResult() (*Result, error)
}

// EngineConfig is everything needed to construct an Engine.
type EngineConfig struct {
	// ModelPath overrides model resolution when set; otherwise ModelName is
	// resolved (and downloaded if missing) under ModelDir.
	ModelPath      string
	ModelName      string
	ModelDir       string
	BaseURL        string
	Device         string
	GPUIndex       int
	Debug          bool
	VADFilter      bool
	NormalizeAudio bool
	Language       string
	Threads        int
}

// EngineFactory constructs an engine for one session.
type EngineFactory func(EngineConfig) (Engine, error)
