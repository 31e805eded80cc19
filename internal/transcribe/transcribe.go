// Package transcribe turns a single audio file into text with a batch model.
package transcribe

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/obiente/translate/livewhisper/internal/audio"
	"github.com/obiente/translate/livewhisper/internal/whisper"
)

// BatchModel is the model size used for file transcription.
const BatchModel = "base"

// Loader loads a model by name.
type Loader func(ctx context.Context, name string) (whisper.Model, error)

// File transcribes the whole file at path with the BatchModel.
// Nothing is retried; every failure is returned.
func File(ctx context.Context, load Loader, path string) (string, error) {
	samples, err := audio.LoadFile(path)
	if err != nil {
		return "", err
	}
	model, err := load(ctx, BatchModel)
	if err != nil {
		return "", fmt.Errorf("load model %s: %w", BatchModel, err)
	}
	defer model.Close()

	res, err := model.Transcribe(ctx, samples)
	if err != nil {
		return "", fmt.Errorf("transcribe %s: %w", path, err)
	}
	return res.Text, nil
}

// LocalLoader loads whisper.cpp models, downloading them through the resolver when missing.
func LocalLoader(r whisper.Resolver, language string, threads int, log zerolog.Logger) Loader {
	return func(ctx context.Context, name string) (whisper.Model, error) {
		if !whisper.NativeAvailable() {
			return nil, whisper.ErrNativeUnavailable
		}
		path, err := r.Resolve(ctx, name, "")
		if err != nil {
			return nil, err
		}
		return whisper.NewModel(whisper.ModelOptions{
			Path:     path,
			Language: language,
			Threads:  threads,
			Device:   "auto",
			Log:      log,
		})
	}
}

// RemoteLoader sends audio to a whisper.cpp server. The server decides
// which model it runs, so name is only logged.
func RemoteLoader(base, language string, timeoutSec int, log zerolog.Logger) Loader {
	return func(ctx context.Context, name string) (whisper.Model, error) {
		log.Debug().Str("model", name).Str("server", base).Msg("transcribe: using remote whisper server")
		return whisper.NewRemoteModel(base, language, timeoutSec, log), nil
	}
}
