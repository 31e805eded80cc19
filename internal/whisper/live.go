package whisper

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/rs/zerolog"

	"github.com/obiente/translate/livewhisper/internal/audio"
)

// ErrEngineClosed is returned when Start is called on a stopped LiveEngine.
var ErrEngineClosed = errors.New("whisper: engine closed")

// InferenceObserver is told about every model call the engine makes.
type InferenceObserver interface {
	ObserveInference(d time.Duration, err error)
}

type LiveConfig struct {
	VADFilter      bool
	NormalizeAudio bool
	Segmenter      audio.SegmenterConfig
	// WindowSamples is the fixed chunk size used when VADFilter is off.
	WindowSamples int
}

// LiveEngine reads audio from a Source, cuts it into utterances and keeps
// the text of the most recent one.
type LiveEngine struct {
	cfg      LiveConfig
	model    Model
	src      audio.Source
	observer InferenceObserver
	log      zerolog.Logger

	mu      sync.Mutex
	latest  *Result
	lastErr error

	running bool
	closed  bool
	cancel  context.CancelFunc
	done    chan struct{}
}

func NewLiveEngine(cfg LiveConfig, model Model, src audio.Source, observer InferenceObserver, log zerolog.Logger) *LiveEngine {
	if cfg.WindowSamples <= 0 {
		cfg.WindowSamples = 5 * audio.SampleRate
	}
	return &LiveEngine{
		cfg:      cfg,
		model:    model,
		src:      src,
		observer: observer,
		log:      log,
	}
}

func (e *LiveEngine) Start() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return ErrEngineClosed
	}
	if e.running {
		return ErrAlreadyStarted
	}
	ctx, cancel := context.WithCancel(context.Background())
	frames, err := e.src.Open(ctx)
	if err != nil {
		cancel()
		e.closed = true
		if cerr := e.model.Close(); cerr != nil {
			e.log.Warn().Err(cerr).Msg("whisper: close model after failed start")
		}
		return fmt.Errorf("open audio source: %w", err)
	}
	e.cancel = cancel
	e.done = make(chan struct{})
	e.running = true
	go e.run(ctx, frames)
	e.log.Debug().Bool("vad", e.cfg.VADFilter).Bool("normalize", e.cfg.NormalizeAudio).Msg("whisper: live engine started")
	return nil
}

// Stop ends capture, waits for an in-flight inference to finish and
// releases the model. The engine cannot be restarted. Stopping an engine
// that never ran still releases its model and returns ErrNotStarted.
func (e *LiveEngine) Stop() error {
	e.mu.Lock()
	if !e.running {
		release := !e.closed
		e.closed = true
		e.mu.Unlock()
		if release {
			if err := e.model.Close(); err != nil {
				return multierror.Append(ErrNotStarted, fmt.Errorf("close model: %w", err))
			}
		}
		return ErrNotStarted
	}
	e.running = false
	e.closed = true
	cancel, done := e.cancel, e.done
	e.mu.Unlock()

	cancel()
	var mErr *multierror.Error
	if err := e.src.Close(); err != nil {
		mErr = multierror.Append(mErr, fmt.Errorf("close audio source: %w", err))
	}
	<-done
	if err := e.model.Close(); err != nil {
		mErr = multierror.Append(mErr, fmt.Errorf("close model: %w", err))
	}
	e.log.Debug().Msg("whisper: live engine stopped")
	return mErr.ErrorOrNil()
}

// LatestResult returns a copy of the newest non-empty result. If the last
// inference failed, that error is reported once instead.
func (e *LiveEngine) LatestResult() (*Result, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.lastErr; err != nil {
		e.lastErr = nil
		return nil, err
	}
	if e.latest == nil {
		return nil, nil
	}
	res := *e.latest
	return &res, nil
}

func (e *LiveEngine) run(ctx context.Context, frames <-chan []float32) {
	defer close(e.done)
	seg := audio.NewSegmenter(e.cfg.Segmenter)
	var window []float32

	for {
		select {
		case <-ctx.Done():
			return
		case frame, ok := <-frames:
			if !ok {
				// source ended on its own: decode what is left
				if e.cfg.VADFilter {
					if u := seg.Flush(); u != nil {
						e.transcribe(ctx, u)
					}
				} else if len(window) > 0 {
					e.transcribe(ctx, window)
				}
				e.log.Info().Msg("whisper: audio source ended")
				return
			}
			if e.cfg.VADFilter {
				for _, u := range seg.Write(frame) {
					e.transcribe(ctx, u)
				}
				continue
			}
			window = append(window, frame...)
			for len(window) >= e.cfg.WindowSamples {
				e.transcribe(ctx, window[:e.cfg.WindowSamples])
				window = append([]float32(nil), window[e.cfg.WindowSamples:]...)
			}
		}
	}
}

func (e *LiveEngine) transcribe(ctx context.Context, samples []float32) {
	if e.cfg.NormalizeAudio {
		samples = audio.Normalize(samples)
	}
	start := time.Now()
	res, err := e.model.Transcribe(ctx, samples)
	if e.observer != nil {
		e.observer.ObserveInference(time.Since(start), err)
	}
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		e.log.Warn().Err(err).Int("samples", len(samples)).Msg("whisper: inference failed")
		e.mu.Lock()
		e.lastErr = err
		e.mu.Unlock()
		return
	}
	if res.Text == "" {
		return
	}
	e.log.Debug().
		Str("text", res.Text).
		Float64("seconds", float64(len(samples))/audio.SampleRate).
		Dur("took", time.Since(start)).
		Msg("whisper: utterance transcribed")
	e.mu.Lock()
	e.latest = &res
	e.lastErr = nil
	e.mu.Unlock()
}
