package whisper

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
)

// ErrUnknownModel is returned for model names outside the supported sizes.
var ErrUnknownModel = errors.New("whisper: unknown model")

var modelFiles = map[string]string{
	"tiny":   "ggml-tiny.bin",
	"base":   "ggml-base.bin",
	"small":  "ggml-small.bin",
	"medium": "ggml-medium.bin",
	"large":  "ggml-large-v3.bin",
}

// ModelFile returns the ggml file name for a model size.
func ModelFile(name string) (string, error) {
	name = strings.TrimSpace(strings.ToLower(name))
	if f, ok := modelFiles[name]; ok {
		return f, nil
	}
	if strings.HasSuffix(name, ".en") {
		if _, ok := modelFiles[strings.TrimSuffix(name, ".en")]; ok && name != "large.en" {
			return "ggml-" + name + ".bin", nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownModel, name)
}

// Resolver finds model files on disk and downloads the missing ones.
type Resolver struct {
	Dir     string
	BaseURL string
	HTTP    *http.Client
	Log     zerolog.Logger
}

// Resolve returns a path to a usable model. An explicit override path wins
// and must exist; otherwise name is looked up under Dir and fetched from
// BaseURL when absent.
func (r Resolver) Resolve(ctx context.Context, name, override string) (string, error) {
	if override != "" {
		if _, err := os.Stat(override); err != nil {
			return "", fmt.Errorf("model path: %w", err)
		}
		return override, nil
	}
	file, err := ModelFile(name)
	if err != nil {
		return "", err
	}
	dir := r.Dir
	if dir == "" {
		dir = "./models"
	}
	path := filepath.Join(dir, file)
	if _, err := os.Stat(path); err == nil {
		return path, nil
	} else if !os.IsNotExist(err) {
		return "", fmt.Errorf("stat model: %w", err)
	}
	if r.BaseURL == "" {
		return "", fmt.Errorf("model %s not found in %s and no download url configured", file, dir)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create model dir: %w", err)
	}
	if err := r.download(ctx, strings.TrimRight(r.BaseURL, "/")+"/"+file, path); err != nil {
		return "", err
	}
	return path, nil
}

func (r Resolver) download(ctx context.Context, url, dst string) error {
	client := r.HTTP
	if client == nil {
		client = http.DefaultClient
	}
	r.Log.Info().Str("url", url).Str("dst", dst).Msg("whisper: downloading model")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("download model: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("download model: http %d", resp.StatusCode)
	}

	tmp, err := os.CreateTemp(filepath.Dir(dst), ".download-*")
	if err != nil {
		return fmt.Errorf("download model: %w", err)
	}
	defer os.Remove(tmp.Name())
	n, err := io.Copy(tmp, resp.Body)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return fmt.Errorf("download model: %w", err)
	}
	if err := os.Rename(tmp.Name(), dst); err != nil {
		return fmt.Errorf("download model: %w", err)
	}
	r.Log.Info().Int64("bytes", n).Str("dst", dst).Msg("whisper: model downloaded")
	return nil
}
