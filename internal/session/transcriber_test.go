package session

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/obiente/translate/livewhisper/internal/audio"
	"github.com/obiente/translate/livewhisper/internal/device"
	"github.com/obiente/translate/livewhisper/internal/whisper"
)

type fakeEngine struct {
	started  int
	stopped  int
	result   *whisper.Result
	err      error
	stopErr  error
	startErr error
}

func (e *fakeEngine) Start() error { e.started++; return e.startErr }
func (e *fakeEngine) Stop() error  { e.stopped++; return e.stopErr }
func (e *fakeEngine) LatestResult() (*whisper.Result, error) {
	return e.result, e.err
}

type recorder struct {
	configs []whisper.EngineConfig
	engines []*fakeEngine
	err     error
}

func (r *recorder) factory(cfg whisper.EngineConfig) (whisper.Engine, error) {
	r.configs = append(r.configs, cfg)
	if r.err != nil {
		return nil, r.err
	}
	e := &fakeEngine{}
	r.engines = append(r.engines, e)
	return e, nil
}

var noAccelerator = device.ProberFunc(func() (bool, error) { return false, nil })

func newTestTranscriber(cfg Config, rec *recorder, opts ...Option) *Transcriber {
	opts = append([]Option{
		WithEngineFactory(rec.factory),
		WithProber(noAccelerator),
		WithLogger(zerolog.Nop()),
	}, opts...)
	return New(cfg, opts...)
}

func TestNewIsStoppedForEveryCombination(t *testing.T) {
	for _, size := range []string{"tiny", "base", "small", "medium", "large"} {
		for _, dev := range []device.Device{device.Auto, device.CPU, device.GPU, ""} {
			rec := &recorder{}
			tr := newTestTranscriber(Config{ModelSize: size, Device: dev}, rec)
			require.Equal(t, Stopped, tr.State())
			require.Nil(t, tr.engine)
			require.Empty(t, rec.configs)
			require.Contains(t, []device.Device{device.CPU, device.GPU}, tr.Config().Device)
		}
	}
}

func TestDeviceAutoDetection(t *testing.T) {
	gpu := device.ProberFunc(func() (bool, error) { return true, nil })
	broken := device.ProberFunc(func() (bool, error) { return false, errors.New("no driver") })

	tr := New(Config{ModelSize: "tiny"}, WithProber(gpu), WithLogger(zerolog.Nop()))
	require.Equal(t, device.GPU, tr.Config().Device)

	tr = New(Config{ModelSize: "tiny"}, WithProber(broken), WithLogger(zerolog.Nop()))
	require.Equal(t, device.CPU, tr.Config().Device)

	tr = New(Config{ModelSize: "tiny", Device: device.CPU}, WithProber(gpu), WithLogger(zerolog.Nop()))
	require.Equal(t, device.CPU, tr.Config().Device)
}

func TestTinyCPUScenario(t *testing.T) {
	rec := &recorder{}
	tr := newTestTranscriber(Config{ModelSize: "tiny", Device: device.CPU}, rec)
	require.Equal(t, Stopped, tr.State())

	require.NoError(t, tr.Start())
	require.Equal(t, Running, tr.State())
	require.Equal(t, []whisper.EngineConfig{{
		ModelName:      "tiny",
		Device:         "cpu",
		GPUIndex:       0,
		Debug:          false,
		VADFilter:      true,
		NormalizeAudio: true,
	}}, rec.configs)
	eng := rec.engines[0]
	require.Equal(t, 1, eng.started)

	eng.result = &whisper.Result{Text: "hello world", Language: "en"}
	text, ok := tr.LatestTranscript()
	require.True(t, ok)
	require.Equal(t, "hello world", text)

	tr.Stop()
	require.Equal(t, Stopped, tr.State())
	require.Nil(t, tr.engine)
	require.Equal(t, 1, eng.stopped)
}

func TestStartTwiceFails(t *testing.T) {
	rec := &recorder{}
	tr := newTestTranscriber(Config{ModelSize: "tiny", Device: device.CPU}, rec)
	require.NoError(t, tr.Start())
	require.ErrorIs(t, tr.Start(), ErrAlreadyStarted)
	require.Len(t, rec.configs, 1)

	tr.Stop()
	require.NoError(t, tr.Start(), "a stopped session can start again")
	require.Len(t, rec.engines, 2)
}

func TestStartFailuresPropagate(t *testing.T) {
	rec := &recorder{err: errors.New("model download failed")}
	tr := newTestTranscriber(Config{ModelSize: "tiny"}, rec)
	require.ErrorContains(t, tr.Start(), "model download failed")
	require.Equal(t, Stopped, tr.State())

	tr = New(Config{ModelSize: "tiny"}, WithProber(noAccelerator), WithLogger(zerolog.Nop()))
	require.Error(t, tr.Start(), "no factory")

	bad := &fakeEngine{startErr: errors.New("no microphone")}
	tr = New(Config{}, WithProber(noAccelerator), WithLogger(zerolog.Nop()),
		WithEngineFactory(func(whisper.EngineConfig) (whisper.Engine, error) { return bad, nil }))
	require.Error(t, tr.Start())
	require.Equal(t, Stopped, tr.State())
	require.Equal(t, 1, bad.stopped, "engine is released after a failed start")
}

type countingModel struct{ closes int }

func (m *countingModel) Transcribe(context.Context, []float32) (whisper.Result, error) {
	return whisper.Result{}, nil
}
func (m *countingModel) Close() error { m.closes++; return nil }

type deadSource struct{}

func (deadSource) Open(context.Context) (<-chan []float32, error) {
	return nil, errors.New("arecord: not found")
}
func (deadSource) Close() error { return nil }

func TestFailedStartsReleaseModels(t *testing.T) {
	var models []*countingModel
	factory := whisper.NewEngineFactory(whisper.FactoryOptions{
		Source: func(whisper.EngineConfig) (audio.Source, error) { return deadSource{}, nil },
		LoadModel: func(whisper.ModelOptions) (whisper.Model, error) {
			m := &countingModel{}
			models = append(models, m)
			return m, nil
		},
		Resolve: func(whisper.EngineConfig) (string, error) { return "ggml-tiny.bin", nil },
		Log:     zerolog.Nop(),
	})
	tr := New(Config{ModelSize: "tiny", Device: device.CPU}, WithEngineFactory(factory), WithLogger(zerolog.Nop()))

	for i := 0; i < 3; i++ {
		require.ErrorContains(t, tr.Start(), "arecord: not found")
		require.Equal(t, Stopped, tr.State())
	}
	require.Len(t, models, 3)
	for _, m := range models {
		require.Equal(t, 1, m.closes)
	}
}

func TestStopWhenStoppedIsNoop(t *testing.T) {
	rec := &recorder{}
	tr := newTestTranscriber(Config{ModelSize: "tiny"}, rec)
	require.NotPanics(t, tr.Stop)
	require.NotPanics(t, tr.Stop)
	require.NoError(t, tr.Close())
	require.Equal(t, Stopped, tr.State())
}

func TestStopSwallowsEngineFault(t *testing.T) {
	rec := &recorder{}
	var faults []string
	tr := newTestTranscriber(Config{ModelSize: "tiny"}, rec, WithHooks(Hooks{
		OnEngineFault: func(op string, err error) { faults = append(faults, op) },
	}))
	require.NoError(t, tr.Start())
	rec.engines[0].stopErr = errors.New("device busy")

	require.NotPanics(t, tr.Stop)
	require.Equal(t, Stopped, tr.State())
	require.Equal(t, []string{"stop"}, faults)
}

func TestLatestTranscript(t *testing.T) {
	rec := &recorder{}
	tr := newTestTranscriber(Config{ModelSize: "tiny"}, rec)

	_, ok := tr.LatestTranscript()
	require.False(t, ok, "stopped")

	require.NoError(t, tr.Start())
	eng := rec.engines[0]

	_, ok = tr.LatestTranscript()
	require.False(t, ok, "nil result")

	eng.result = &whisper.Result{Language: "en"}
	_, ok = tr.LatestTranscript()
	require.False(t, ok, "result without text")

	eng.result = &whisper.Result{Text: "Hello world"}
	text, ok := tr.LatestTranscript()
	require.True(t, ok)
	require.Equal(t, "Hello world", text)

	eng.err = errors.New("decoder crashed")
	_, ok = tr.LatestTranscript()
	require.False(t, ok, "engine fault")

	eng.err = nil
	tr.Stop()
	_, ok = tr.LatestTranscript()
	require.False(t, ok, "after stop")
}

func TestCallbackFiresOncePerChange(t *testing.T) {
	rec := &recorder{}
	var got []string
	tr := newTestTranscriber(Config{ModelSize: "tiny"}, rec, WithCallback(func(s string) { got = append(got, "first:"+s) }))
	require.NoError(t, tr.Start())
	eng := rec.engines[0]

	eng.result = &whisper.Result{Text: "Test callback"}
	text, ok := tr.LatestTranscript()
	require.True(t, ok)
	require.Equal(t, "Test callback", text)
	tr.LatestTranscript()
	require.Equal(t, []string{"first:Test callback"}, got)

	tr.SetTranscriptCallback(func(s string) { got = append(got, "second:"+s) })
	eng.result = &whisper.Result{Text: "next"}
	tr.LatestTranscript()
	require.Equal(t, []string{"first:Test callback", "second:next"}, got)

	// a new session delivers the same text again
	tr.Stop()
	require.NoError(t, tr.Start())
	rec.engines[1].result = &whisper.Result{Text: "next"}
	tr.LatestTranscript()
	require.Len(t, got, 3)
}

func TestHooks(t *testing.T) {
	rec := &recorder{}
	var started []Config
	var transcripts []string
	tr := newTestTranscriber(Config{ModelSize: "base", Device: device.GPU, GPUIndex: 2}, rec, WithHooks(Hooks{
		OnStart:      func(c Config) { started = append(started, c) },
		OnTranscript: func(s string) { transcripts = append(transcripts, s) },
	}), WithEngineDefaults(EngineDefaults{ModelDir: "/var/models", Language: "de", Threads: 4}))
	require.NoError(t, tr.Start())
	require.Equal(t, []Config{{ModelSize: "base", Device: device.GPU, GPUIndex: 2}}, started)
	require.Equal(t, "/var/models", rec.configs[0].ModelDir)
	require.Equal(t, "de", rec.configs[0].Language)
	require.Equal(t, 4, rec.configs[0].Threads)
	require.Equal(t, 2, rec.configs[0].GPUIndex)

	rec.engines[0].result = &whisper.Result{Text: "hallo"}
	tr.LatestTranscript()
	require.Equal(t, []string{"hallo"}, transcripts)
}
