//go:build whisper_cpp

package whisper

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	whisperpkg "github.com/ggerganov/whisper.cpp/bindings/go/pkg/whisper"
	"github.com/rs/zerolog"
)

func NativeAvailable() bool { return true }

// cppModel is the whisper.cpp-backed Model.
type cppModel struct {
	model    whisperpkg.Model
	threads  uint
	language string
	log      zerolog.Logger
	mu       sync.Mutex // whisper.cpp contexts must not run concurrently on one model
}

func NewModel(opts ModelOptions) (Model, error) {
	m, err := whisperpkg.New(opts.Path)
	if err != nil {
		return nil, fmt.Errorf("load model: %w", err)
	}
	lang := opts.language()
	if lang != "auto" && !m.IsMultilingual() && lang != "en" {
		opts.Log.Warn().Str("language", lang).Msg("whisper: model is english-only, ignoring language")
		lang = "en"
	}
	opts.Log.Info().
		Str("model", opts.Path).
		Uint("threads", opts.threads()).
		Str("device", opts.Device).
		Int("gpu_index", opts.GPUIndex).
		Str("language", lang).
		Msg("whisper: model loaded successfully")
	return &cppModel{
		model:    m,
		threads:  opts.threads(),
		language: lang,
		log:      opts.Log,
	}, nil
}

func (m *cppModel) Close() error {
	if m.model != nil {
		return m.model.Close()
	}
	return nil
}

// Transcribe runs one full pass over samples. A cancelled ctx is only
// observed before decoding starts.
func (m *cppModel) Transcribe(ctx context.Context, samples []float32) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	if len(samples) < 1600 {
		m.log.Debug().Int("samples", len(samples)).Msg("whisper: skipping too-short audio")
		return Result{}, nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	wctx, err := m.model.NewContext()
	if err != nil {
		return Result{}, fmt.Errorf("create context: %w", err)
	}
	wctx.SetThreads(m.threads)
	if err := wctx.SetLanguage(m.language); err != nil {
		return Result{}, fmt.Errorf("set language %q: %w", m.language, err)
	}
	wctx.SetTranslate(false)
	wctx.SetSplitOnWord(true)
	wctx.SetTokenTimestamps(true)

	if err := wctx.Process(samples, nil, nil, nil); err != nil {
		m.log.Error().Err(err).Int("samples", len(samples)).Msg("whisper: process failed")
		return Result{}, fmt.Errorf("process audio: %w", err)
	}

	var res Result
	var texts []string
	for {
		seg, err := wctx.NextSegment()
		if err == io.EOF {
			break
		}
		if err != nil {
			m.log.Warn().Err(err).Msg("whisper: error reading segment")
			break
		}
		text := strings.TrimSpace(seg.Text)
		if text == "" {
			continue
		}
		texts = append(texts, text)
		res.Segments = append(res.Segments, Segment{Start: seg.Start, End: seg.End, Text: text})
	}
	res.Text = strings.TrimSpace(strings.Join(texts, " "))
	res.Language = wctx.Language()
	if res.Language == "" || res.Language == "auto" {
		res.Language = wctx.DetectedLanguage()
	}

	m.log.Debug().
		Str("text", res.Text).
		Str("lang", res.Language).
		Int("segments", len(res.Segments)).
		Int("samples", len(samples)).
		Msg("whisper: transcription complete")
	return res, nil
}
