// Package session wraps a live transcription engine with a small
// start/stop/poll lifecycle.
package session

import (
	"errors"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/obiente/translate/livewhisper/internal/device"
	"github.com/obiente/translate/livewhisper/internal/whisper"
)

// ErrAlreadyStarted is returned by Start on a running session.
var ErrAlreadyStarted = errors.New("transcription already started")

// State of a Transcriber.
type State int

const (
	Stopped State = iota
	Running
)

func (s State) String() string {
	if s == Running {
		return "running"
	}
	return "stopped"
}

// Config is fixed at construction; only Device is rewritten, once, when it
// asks for auto-detection.
type Config struct {
	ModelSize string
	Device    device.Device
	GPUIndex  int
	Debug     bool
}

// EngineDefaults are passed through to every engine the session builds.
type EngineDefaults struct {
	ModelPath string
	ModelDir  string
	BaseURL   string
	Language  string
	Threads   int
}

// Hooks observe session events. All fields are optional.
type Hooks struct {
	OnStart       func(Config)
	OnEngineFault func(op string, err error)
	OnTranscript  func(text string)
}

// Transcriber owns at most one engine at a time. It is not safe for
// concurrent use.
type Transcriber struct {
	cfg      Config
	defaults EngineDefaults
	factory  whisper.EngineFactory
	hooks    Hooks
	log      zerolog.Logger

	engine     whisper.Engine
	callback   func(string)
	lastNotify string
}

type Option func(*options)

type options struct {
	factory  whisper.EngineFactory
	prober   device.Prober
	callback func(string)
	defaults EngineDefaults
	hooks    Hooks
	log      *zerolog.Logger
}

func WithEngineFactory(f whisper.EngineFactory) Option {
	return func(o *options) { o.factory = f }
}

// WithProber sets the accelerator probe consulted when Device is auto.
func WithProber(p device.Prober) Option {
	return func(o *options) { o.prober = p }
}

func WithCallback(cb func(string)) Option {
	return func(o *options) { o.callback = cb }
}

func WithEngineDefaults(d EngineDefaults) Option {
	return func(o *options) { o.defaults = d }
}

func WithHooks(h Hooks) Option {
	return func(o *options) { o.hooks = h }
}

func WithLogger(l zerolog.Logger) Option {
	return func(o *options) { o.log = &l }
}

// New builds a stopped Transcriber. It never fails: a broken accelerator
// probe just means cpu.
func New(cfg Config, opts ...Option) *Transcriber {
	o := options{prober: device.DefaultProber()}
	for _, opt := range opts {
		opt(&o)
	}
	logger := log.Logger
	if o.log != nil {
		logger = *o.log
	}
	logger = logger.With().Str("component", "session").Logger()

	if cfg.ModelSize == "" {
		cfg.ModelSize = "tiny"
	}
	cfg.Device = device.Resolve(cfg.Device, o.prober, logger)

	return &Transcriber{
		cfg:      cfg,
		defaults: o.defaults,
		factory:  o.factory,
		hooks:    o.hooks,
		log:      logger,
		callback: o.callback,
	}
}

func (t *Transcriber) Config() Config { return t.cfg }

func (t *Transcriber) State() State {
	if t.engine != nil {
		return Running
	}
	return Stopped
}

// Start builds an engine from the configuration and starts it.
func (t *Transcriber) Start() error {
	if t.engine != nil {
		return ErrAlreadyStarted
	}
	if t.factory == nil {
		return errors.New("no engine factory configured")
	}

	eng, err := t.factory(whisper.EngineConfig{
		ModelPath:      t.defaults.ModelPath,
		ModelName:      t.cfg.ModelSize,
		ModelDir:       t.defaults.ModelDir,
		BaseURL:        t.defaults.BaseURL,
		Device:         string(t.cfg.Device),
		GPUIndex:       t.cfg.GPUIndex,
		Debug:          t.cfg.Debug,
		VADFilter:      true,
		NormalizeAudio: true,
		Language:       t.defaults.Language,
		Threads:        t.defaults.Threads,
	})
	if err != nil {
		return err
	}
	if err := eng.Start(); err != nil {
		if serr := eng.Stop(); serr != nil && !errors.Is(serr, whisper.ErrNotStarted) {
			t.log.Warn().Err(serr).Msg("error releasing engine after failed start")
		}
		return err
	}
	t.engine = eng
	t.lastNotify = ""

	if t.hooks.OnStart != nil {
		t.hooks.OnStart(t.cfg)
	}
	t.log.Info().
		Str("model", t.cfg.ModelSize).
		Str("device", string(t.cfg.Device)).
		Int("gpu_index", t.cfg.GPUIndex).
		Msgf("live transcription started with %s model on %s", t.cfg.ModelSize, t.cfg.Device)
	return nil
}

// Stop stops the engine if one is running. Engine errors are logged and
// dropped; the engine is released either way.
func (t *Transcriber) Stop() {
	if t.engine == nil {
		return
	}
	eng := t.engine
	defer func() {
		t.engine = nil
		t.lastNotify = ""
	}()

	if err := eng.Stop(); err != nil {
		t.fault("stop", err)
		t.log.Error().Err(err).Msg("error stopping transcription")
		return
	}
	t.log.Info().Msg("live transcription stopped")
}

// LatestTranscript returns the engine's newest text, or false when the
// session is stopped, nothing was recognized yet or the engine failed.
// A text that differs from the last one delivered is also passed to the
// transcript callback.
func (t *Transcriber) LatestTranscript() (string, bool) {
	if t.engine == nil {
		return "", false
	}
	res, err := t.engine.LatestResult()
	if err != nil {
		t.fault("latest", err)
		t.log.Error().Err(err).Msg("error getting transcript")
		return "", false
	}
	if res == nil || res.Text == "" {
		return "", false
	}

	if res.Text != t.lastNotify {
		t.lastNotify = res.Text
		if t.hooks.OnTranscript != nil {
			t.hooks.OnTranscript(res.Text)
		}
		if t.callback != nil {
			t.callback(res.Text)
		}
	}
	return res.Text, true
}

// SetTranscriptCallback replaces the callback used for future transcripts.
func (t *Transcriber) SetTranscriptCallback(cb func(string)) {
	t.callback = cb
}

// Close stops the session. It implements io.Closer and always returns nil.
func (t *Transcriber) Close() error {
	t.Stop()
	return nil
}

func (t *Transcriber) fault(op string, err error) {
	if t.hooks.OnEngineFault != nil {
		t.hooks.OnEngineFault(op, err)
	}
}
