package whisper

import (
	"runtime"

	"github.com/rs/zerolog"
)

// ModelOptions configures a local whisper.cpp model.
type ModelOptions struct {
	Path     string
	Language string
	Threads  int
	Device   string
	GPUIndex int
	Log      zerolog.Logger
}

func (o ModelOptions) threads() uint {
	if o.Threads > 0 {
		return uint(o.Threads)
	}
	return uint(runtime.NumCPU())
}

func (o ModelOptions) language() string {
	if o.Language == "" {
		return "auto"
	}
	return o.Language
}
