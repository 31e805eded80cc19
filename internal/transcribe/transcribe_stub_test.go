//go:build !whisper_cpp

package transcribe

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/obiente/translate/livewhisper/internal/whisper"
)

func TestFileWithoutNativeBackend(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "ggml-base.bin"), []byte("model"), 0o644))

	text, err := File(context.Background(), LocalLoader(whisper.Resolver{Dir: dir, Log: zerolog.Nop()}, "", 0, zerolog.Nop()), writeWAV(t, 1))
	require.ErrorIs(t, err, whisper.ErrNativeUnavailable)
	require.Empty(t, text)
}
