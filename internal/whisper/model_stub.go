//go:build !whisper_cpp

package whisper

// NativeAvailable reports whether whisper.cpp is compiled in.
func NativeAvailable() bool { return false }

// NewModel fails without the whisper_cpp build tag. Builds without cgo
// still transcribe through a whisper.cpp server (WHISPER_REMOTE_URL).
func NewModel(opts ModelOptions) (Model, error) {
	opts.Log.Error().Str("model", opts.Path).Msg("whisper: built without whisper_cpp tag, local models unavailable")
	return nil, ErrNativeUnavailable
}
