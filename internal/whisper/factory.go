package whisper

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/obiente/translate/livewhisper/internal/audio"
)

// FactoryOptions wires the collaborators a LiveEngine needs.
type FactoryOptions struct {
	// Source opens the audio input for a new engine.
	Source func(EngineConfig) (audio.Source, error)
	// LoadModel defaults to NewModel, which needs the whisper_cpp build tag.
	LoadModel func(ModelOptions) (Model, error)
	// Resolve maps EngineConfig to a model path; defaults to a Resolver
	// built from ModelDir and BaseURL.
	Resolve  func(EngineConfig) (string, error)
	Observer InferenceObserver
	Log      zerolog.Logger
}

// NewEngineFactory returns an EngineFactory producing LiveEngines.
func NewEngineFactory(opts FactoryOptions) EngineFactory {
	native := opts.LoadModel == nil
	if native {
		opts.LoadModel = NewModel
	}
	if opts.Resolve == nil {
		opts.Resolve = func(cfg EngineConfig) (string, error) {
			r := Resolver{Dir: cfg.ModelDir, BaseURL: cfg.BaseURL, Log: opts.Log}
			return r.Resolve(context.Background(), cfg.ModelName, cfg.ModelPath)
		}
	}

	return func(cfg EngineConfig) (Engine, error) {
		if opts.Source == nil {
			return nil, fmt.Errorf("no audio source configured")
		}
		if native && !NativeAvailable() {
			return nil, ErrNativeUnavailable
		}
		log := opts.Log.With().Str("component", "engine").Str("model", cfg.ModelName).Logger()
		if cfg.Debug {
			log = log.Level(zerolog.DebugLevel)
		}

		path, err := opts.Resolve(cfg)
		if err != nil {
			return nil, fmt.Errorf("resolve model %s: %w", cfg.ModelName, err)
		}
		model, err := opts.LoadModel(ModelOptions{
			Path:     path,
			Language: cfg.Language,
			Threads:  cfg.Threads,
			Device:   cfg.Device,
			GPUIndex: cfg.GPUIndex,
			Log:      log,
		})
		if err != nil {
			return nil, err
		}
		src, err := opts.Source(cfg)
		if err != nil {
			_ = model.Close()
			return nil, fmt.Errorf("audio source: %w", err)
		}
		return NewLiveEngine(LiveConfig{
			VADFilter:      cfg.VADFilter,
			NormalizeAudio: cfg.NormalizeAudio,
			Segmenter:      audio.DefaultSegmenterConfig(),
		}, model, src, opts.Observer, log), nil
	}
}
