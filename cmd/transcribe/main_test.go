package main

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/obiente/translate/livewhisper/internal/config"
)

func TestRunRemote(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/inference" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte(`{"text":" hello there "}`))
	}))
	defer srv.Close()

	path := filepath.Join(t.TempDir(), "clip.pcm")
	require.NoError(t, os.WriteFile(path, make([]byte, 3200), 0o644))

	cfg := config.Defaults()
	cfg.RemoteURL = srv.URL

	var out bytes.Buffer
	require.NoError(t, run(context.Background(), cfg, path, &out))
	require.Equal(t, "Transcription:\nhello there\n", out.String())
}

func TestRunMissingFile(t *testing.T) {
	cfg := config.Defaults()
	cfg.RemoteURL = "http://127.0.0.1:1"
	var out bytes.Buffer
	require.Error(t, run(context.Background(), cfg, filepath.Join(t.TempDir(), "nope.wav"), &out))
	require.Empty(t, out.String())
}

func TestRequiresOneArg(t *testing.T) {
	cmd := newRootCmd()
	cmd.SetArgs(nil)
	cmd.SilenceErrors = true
	require.Error(t, cmd.Execute())
}

func TestLiveOnlySettingsDoNotBlockTranscription(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"text":"ok"}`))
	}))
	defer srv.Close()

	path := filepath.Join(t.TempDir(), "clip.pcm")
	require.NoError(t, os.WriteFile(path, make([]byte, 3200), 0o644))

	t.Setenv("LIVEWHISPER_CONFIG", "")
	t.Setenv("WHISPER_AUDIO_SOURCE", "mic")
	t.Setenv("WHISPER_POLL_INTERVAL_MS", "0")
	t.Setenv("WHISPER_REMOTE_URL", srv.URL)

	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetArgs([]string{path})
	require.NoError(t, cmd.Execute())
	require.Equal(t, "Transcription:\nok\n", out.String())
}
