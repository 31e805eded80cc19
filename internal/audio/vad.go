package audio

import "math"

// Normalize scales samples so the loudest one peaks at 0.95.
// Near-silent input is returned unchanged so noise is not amplified.
func Normalize(samples []float32) []float32 {
	var peak float32
	for _, s := range samples {
		if s < 0 {
			s = -s
		}
		if s > peak {
			peak = s
		}
	}
	if peak < 1e-3 {
		return samples
	}
	gain := 0.95 / peak
	out := make([]float32, len(samples))
	for i, s := range samples {
		out[i] = s * gain
	}
	return out
}

// RMS returns the root mean square level of samples.
func RMS(samples []float32) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range samples {
		sum += float64(s) * float64(s)
	}
	return math.Sqrt(sum / float64(len(samples)))
}

// SegmenterConfig tunes the energy based voice activity detector.
// Durations are in samples at SampleRate.
type SegmenterConfig struct {
	FrameSamples     int
	Threshold        float64
	HangoverSamples  int
	PrerollSamples   int
	MinSpeechSamples int
	MaxSamples       int
}

// DefaultSegmenterConfig uses 30ms frames, 600ms trailing silence and a 30s cap.
func DefaultSegmenterConfig() SegmenterConfig {
	return SegmenterConfig{
		FrameSamples:     SampleRate * 30 / 1000,
		Threshold:        0.01,
		HangoverSamples:  SampleRate * 600 / 1000,
		PrerollSamples:   SampleRate * 200 / 1000,
		MinSpeechSamples: SampleRate * 250 / 1000,
		MaxSamples:       SampleRate * 30,
	}
}

// Segmenter groups a stream of samples into utterances separated by silence.
// It is not safe for concurrent use.
type Segmenter struct {
	cfg SegmenterConfig

	pending   []float32 // partial frame
	preroll   []float32
	utterance []float32
	speech    int
	silence   int
	active    bool
}

func NewSegmenter(cfg SegmenterConfig) *Segmenter {
	def := DefaultSegmenterConfig()
	if cfg.FrameSamples <= 0 {
		cfg.FrameSamples = def.FrameSamples
	}
	if cfg.Threshold <= 0 {
		cfg.Threshold = def.Threshold
	}
	if cfg.MaxSamples <= 0 {
		cfg.MaxSamples = def.MaxSamples
	}
	return &Segmenter{cfg: cfg}
}

// Write feeds samples and returns every utterance completed by them.
func (s *Segmenter) Write(samples []float32) [][]float32 {
	var out [][]float32
	s.pending = append(s.pending, samples...)
	n := s.cfg.FrameSamples
	for len(s.pending) >= n {
		frame := s.pending[:n]
		if u := s.frame(frame); u != nil {
			out = append(out, u)
		}
		s.pending = s.pending[n:]
	}
	// keep the backing array from growing without bound
	s.pending = append([]float32(nil), s.pending...)
	return out
}

// Flush ends the current utterance, if any.
func (s *Segmenter) Flush() []float32 {
	if !s.active {
		return nil
	}
	return s.finish()
}

func (s *Segmenter) frame(frame []float32) []float32 {
	voiced := RMS(frame) >= s.cfg.Threshold
	if !s.active {
		if !voiced {
			s.preroll = append(s.preroll, frame...)
			if extra := len(s.preroll) - s.cfg.PrerollSamples; extra > 0 {
				s.preroll = append([]float32(nil), s.preroll[extra:]...)
			}
			return nil
		}
		s.active = true
		s.utterance = append(s.preroll, frame...)
		s.preroll = nil
		s.speech = len(frame)
		s.silence = 0
		return nil
	}

	s.utterance = append(s.utterance, frame...)
	if voiced {
		s.speech += len(frame)
		s.silence = 0
	} else {
		s.silence += len(frame)
	}
	if s.silence >= s.cfg.HangoverSamples || len(s.utterance) >= s.cfg.MaxSamples {
		return s.finish()
	}
	return nil
}

func (s *Segmenter) finish() []float32 {
	u := s.utterance
	speech := s.speech
	s.utterance, s.speech, s.silence, s.active = nil, 0, 0, false
	if speech < s.cfg.MinSpeechSamples {
		return nil
	}
	return u
}
