package whisper

import (
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/obiente/translate/livewhisper/internal/audio"
)

func TestEngineFactoryBuildsLiveEngine(t *testing.T) {
	var gotOpts ModelOptions
	model := &fakeModel{}
	factory := NewEngineFactory(FactoryOptions{
		Source: func(EngineConfig) (audio.Source, error) { return audio.NewPushSource(), nil },
		LoadModel: func(o ModelOptions) (Model, error) {
			gotOpts = o
			return model, nil
		},
		Resolve: func(cfg EngineConfig) (string, error) { return "/models/ggml-" + cfg.ModelName + ".bin", nil },
		Log:     zerolog.Nop(),
	})

	eng, err := factory(EngineConfig{ModelName: "tiny", Device: "gpu", GPUIndex: 1, Threads: 2, Language: "en", VADFilter: true, NormalizeAudio: true})
	require.NoError(t, err)
	live, ok := eng.(*LiveEngine)
	require.True(t, ok)
	require.True(t, live.cfg.VADFilter)
	require.True(t, live.cfg.NormalizeAudio)
	require.Equal(t, "/models/ggml-tiny.bin", gotOpts.Path)
	require.Equal(t, "gpu", gotOpts.Device)
	require.Equal(t, 1, gotOpts.GPUIndex)
	require.Equal(t, 2, gotOpts.Threads)
	require.Equal(t, "en", gotOpts.Language)
}

func TestEngineFactoryFailures(t *testing.T) {
	model := &fakeModel{}
	load := func(ModelOptions) (Model, error) { return model, nil }
	resolve := func(EngineConfig) (string, error) { return "x", nil }

	_, err := NewEngineFactory(FactoryOptions{LoadModel: load, Resolve: resolve})(EngineConfig{})
	require.Error(t, err, "no source")

	_, err = NewEngineFactory(FactoryOptions{
		Source:    func(EngineConfig) (audio.Source, error) { return audio.NewPushSource(), nil },
		LoadModel: load,
		Resolve:   func(EngineConfig) (string, error) { return "", ErrUnknownModel },
	})(EngineConfig{ModelName: "huge"})
	require.True(t, errors.Is(err, ErrUnknownModel))

	_, err = NewEngineFactory(FactoryOptions{
		Source:    func(EngineConfig) (audio.Source, error) { return nil, errors.New("busy") },
		LoadModel: load,
		Resolve:   resolve,
	})(EngineConfig{ModelName: "tiny"})
	require.Error(t, err)
	require.True(t, model.closed, "model is released when the source cannot be opened")
}
