package whisper

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/obiente/translate/livewhisper/internal/audio"
)

// RemoteModel sends audio to a whisper.cpp server (`whisper-server`) and
// reads back the transcription from its /inference endpoint.
type RemoteModel struct {
	base     string
	language string
	http     *http.Client
	log      zerolog.Logger
}

func NewRemoteModel(base, language string, timeoutSec int, log zerolog.Logger) *RemoteModel {
	if timeoutSec <= 0 {
		timeoutSec = 60
	}
	if language == "" {
		language = "auto"
	}
	return &RemoteModel{
		base:     strings.TrimRight(base, "/"),
		language: language,
		http:     &http.Client{Timeout: time.Duration(timeoutSec) * time.Second},
		log:      log,
	}
}

func (m *RemoteModel) Close() error { return nil }

func (m *RemoteModel) Transcribe(ctx context.Context, samples []float32) (Result, error) {
	if len(samples) == 0 {
		return Result{}, nil
	}
	wavBytes, err := renderWAV(samples)
	if err != nil {
		return Result{}, err
	}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile("file", "audio.wav")
	if err != nil {
		return Result{}, err
	}
	if _, err := fw.Write(wavBytes); err != nil {
		return Result{}, err
	}
	_ = mw.WriteField("response_format", "json")
	_ = mw.WriteField("language", m.language)
	_ = mw.WriteField("temperature", "0.0")
	if err := mw.Close(); err != nil {
		return Result{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.base+"/inference", &body)
	if err != nil {
		return Result{}, err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := m.http.Do(req)
	if err != nil {
		return Result{}, fmt.Errorf("remote inference: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return Result{}, fmt.Errorf("remote inference http %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var out struct {
		Text     string `json:"text"`
		Language string `json:"language"`
		Error    string `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return Result{}, fmt.Errorf("decode inference response: %w", err)
	}
	if out.Error != "" {
		return Result{}, fmt.Errorf("remote inference: %s", out.Error)
	}
	m.log.Debug().Int("samples", len(samples)).Str("text", out.Text).Msg("whisper: remote transcription complete")
	return Result{Text: strings.TrimSpace(out.Text), Language: out.Language}, nil
}

// renderWAV goes through a temp file because the wav encoder needs to seek.
func renderWAV(samples []float32) ([]byte, error) {
	f, err := os.CreateTemp("", "livewhisper_*.wav")
	if err != nil {
		return nil, fmt.Errorf("temp file: %w", err)
	}
	defer os.Remove(f.Name())
	defer f.Close()
	if err := audio.EncodeWAV(f, samples, audio.SampleRate); err != nil {
		return nil, err
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return nil, err
	}
	return io.ReadAll(f)
}
