package device

import (
	"os"
	"strings"

	"github.com/rs/zerolog"
)

// Device is the compute target handed to the engine.
type Device string

const (
	Auto Device = "auto"
	CPU  Device = "cpu"
	GPU  Device = "gpu"
)

// Prober answers whether a compute accelerator is usable on this host.
type Prober interface {
	AcceleratorAvailable() (bool, error)
}

// ProberFunc adapts a function to Prober.
type ProberFunc func() (bool, error)

func (f ProberFunc) AcceleratorAvailable() (bool, error) { return f() }

// Resolve returns the device to run on. Any explicit request is kept as
// is; auto (or empty) consults the prober once. Probe failures count as
// "no accelerator".
func Resolve(requested Device, p Prober, log zerolog.Logger) Device {
	switch requested {
	case Auto, "":
	case CPU, GPU:
		return requested
	default:
		log.Warn().Str("device", string(requested)).Msg("device: unrecognised device, passing it to the engine as given")
		return requested
	}
	if p == nil {
		return CPU
	}
	ok, err := p.AcceleratorAvailable()
	if err != nil {
		log.Debug().Err(err).Msg("device: accelerator probe failed")
		ok = false
	}
	if ok {
		log.Info().Msg("device: accelerator available, using gpu for transcription")
		return GPU
	}
	log.Info().Msg("device: no accelerator, falling back to cpu")
	return CPU
}

// CUDAProber looks for an NVIDIA driver the way the CUDA runtime would.
type CUDAProber struct {
	Lookup func(string) (string, bool)
	Stat   func(string) (os.FileInfo, error)
}

// DefaultProber probes the current host.
func DefaultProber() Prober {
	return CUDAProber{Lookup: os.LookupEnv, Stat: os.Stat}
}

func (p CUDAProber) AcceleratorAvailable() (bool, error) {
	lookup, stat := p.Lookup, p.Stat
	if lookup == nil {
		lookup = os.LookupEnv
	}
	if stat == nil {
		stat = os.Stat
	}
	if v, ok := lookup("CUDA_VISIBLE_DEVICES"); ok {
		switch strings.TrimSpace(strings.ToLower(v)) {
		case "-1", "none", "nodevfiles":
			return false, nil
		}
	}
	var lastErr error
	for _, path := range []string{"/proc/driver/nvidia/version", "/dev/nvidia0"} {
		if _, err := stat(path); err == nil {
			return true, nil
		} else if !os.IsNotExist(err) {
			lastErr = err
		}
	}
	return false, lastErr
}
