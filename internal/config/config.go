package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	DefaultModelSize      = "tiny"
	DefaultDevice         = "auto"
	DefaultModelDir       = "./models"
	DefaultModelBaseURL   = "https://huggingface.co/ggerganov/whisper.cpp/resolve/main"
	DefaultLanguage       = "auto"
	DefaultCaptureCommand = "arecord -q -f S16_LE -r 16000 -c 1 -t raw"
	DefaultAudioSource    = "capture"
	DefaultPollMillis     = 500
	DefaultNATSSubject    = "livewhisper.transcripts"
	DefaultTranslationURL = "https://libretranslate.obiente.cloud"
)

var (
	modelSizes   = []string{"tiny", "base", "small", "medium", "large"}
	devices      = []string{"auto", "cpu", "gpu"}
	audioSources = []string{"capture", "stdin", "ws"}
)

type Config struct {
	ModelSize      string `yaml:"model_size"`
	Device         string `yaml:"device"`
	GPUIndex       int    `yaml:"gpu_index"`
	Debug          bool   `yaml:"debug"`
	ModelPath      string `yaml:"model_path"`
	ModelDir       string `yaml:"model_dir"`
	ModelBaseURL   string `yaml:"model_base_url"`
	Language       string `yaml:"language"`
	Threads        int    `yaml:"threads"`
	CaptureCommand string `yaml:"capture_command"`
	AudioSource    string `yaml:"audio_source"`
	PollMillis     int    `yaml:"poll_interval_ms"`
	Addr           string `yaml:"addr"`
	LogLevel       string `yaml:"log_level"`

	RemoteURL        string `yaml:"remote_url"`
	RemoteTimeoutSec int    `yaml:"remote_timeout"`

	NATSURL     string `yaml:"nats_url"`
	NATSSubject string `yaml:"nats_subject"`

	TranslationBaseURL    string `yaml:"translation_base_url"`
	TranslationEnabled    bool   `yaml:"translation_enabled"`
	TranslationTimeoutSec int    `yaml:"translation_timeout"`
}

// Defaults returns the configuration used when nothing is overridden.
func Defaults() Config {
	return Config{
		ModelSize:             DefaultModelSize,
		Device:                DefaultDevice,
		ModelDir:              DefaultModelDir,
		ModelBaseURL:          DefaultModelBaseURL,
		Language:              DefaultLanguage,
		CaptureCommand:        DefaultCaptureCommand,
		AudioSource:           DefaultAudioSource,
		PollMillis:            DefaultPollMillis,
		RemoteTimeoutSec:      60,
		NATSSubject:           DefaultNATSSubject,
		TranslationBaseURL:    DefaultTranslationURL,
		TranslationEnabled:    true,
		TranslationTimeoutSec: 8,
	}
}

// Validate rejects values the live session and engine cannot work with.
func (c Config) Validate() error {
	if !oneOf(c.ModelSize, modelSizes) {
		return fmt.Errorf("config: unknown model size %q (want one of %s)", c.ModelSize, strings.Join(modelSizes, ", "))
	}
	if !oneOf(c.Device, devices) {
		return fmt.Errorf("config: unknown device %q (want one of %s)", c.Device, strings.Join(devices, ", "))
	}
	if c.GPUIndex < 0 {
		return fmt.Errorf("config: gpu index must be >= 0, got %d", c.GPUIndex)
	}
	if c.Threads < 0 {
		return fmt.Errorf("config: threads must be >= 0, got %d", c.Threads)
	}
	if !oneOf(c.AudioSource, audioSources) {
		return fmt.Errorf("config: unknown audio source %q", c.AudioSource)
	}
	if c.PollMillis <= 0 {
		return fmt.Errorf("config: poll interval must be > 0, got %d", c.PollMillis)
	}
	return nil
}

// ValidateBatch checks only what file transcription uses.
func (c Config) ValidateBatch() error {
	if c.Threads < 0 {
		return fmt.Errorf("config: threads must be >= 0, got %d", c.Threads)
	}
	return nil
}

func oneOf(v string, allowed []string) bool {
	for _, a := range allowed {
		if v == a {
			return true
		}
	}
	return false
}

// Loader reads configuration from an optional YAML file and the environment.
// Tests can override Lookup and ReadFile.
type Loader struct {
	Lookup   func(string) (string, bool)
	ReadFile func(string) ([]byte, error)
}

func (l Loader) getenv(key, def string) string {
	if v, ok := l.Lookup(key); ok && strings.TrimSpace(v) != "" {
		return strings.TrimSpace(v)
	}
	return def
}

func (l Loader) getenvBool(key string, def bool) bool {
	if v, ok := l.Lookup(key); ok && v != "" {
		switch v {
		case "0", "false", "no", "off", "False", "FALSE":
			return false
		default:
			return true
		}
	}
	return def
}

func (l Loader) getenvInt(key string, def int) int {
	if v, ok := l.Lookup(key); ok && v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

// Load builds the configuration: defaults, then the YAML file named by
// LIVEWHISPER_CONFIG, then environment variables. It does not validate;
// callers merge their flags first and then call Validate or ValidateBatch.
func (l Loader) Load() (Config, error) {
	if l.Lookup == nil {
		l.Lookup = os.LookupEnv
	}
	if l.ReadFile == nil {
		l.ReadFile = os.ReadFile
	}

	cfg := Defaults()
	if path := l.getenv("LIVEWHISPER_CONFIG", ""); path != "" {
		b, err := l.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return Config{}, fmt.Errorf("config: decode %s: %w", path, err)
		}
	}

	cfg.ModelSize = l.getenv("WHISPER_MODEL_SIZE", cfg.ModelSize)
	cfg.Device = l.getenv("WHISPER_DEVICE", cfg.Device)
	cfg.GPUIndex = l.getenvInt("WHISPER_GPU_INDEX", cfg.GPUIndex)
	cfg.Debug = l.getenvBool("WHISPER_DEBUG", cfg.Debug)
	cfg.ModelPath = l.getenv("WHISPER_MODEL_PATH", cfg.ModelPath)
	cfg.ModelDir = l.getenv("WHISPER_MODEL_DIR", cfg.ModelDir)
	cfg.ModelBaseURL = l.getenv("WHISPER_MODEL_BASE_URL", cfg.ModelBaseURL)
	cfg.Language = l.getenv("WHISPER_LANGUAGE", cfg.Language)
	cfg.Threads = l.getenvInt("WHISPER_THREADS", cfg.Threads)
	cfg.CaptureCommand = l.getenv("WHISPER_CAPTURE_COMMAND", cfg.CaptureCommand)
	cfg.AudioSource = l.getenv("WHISPER_AUDIO_SOURCE", cfg.AudioSource)
	cfg.PollMillis = l.getenvInt("WHISPER_POLL_INTERVAL_MS", cfg.PollMillis)
	cfg.Addr = l.getenv("WHISPER_GO_ADDR", cfg.Addr)
	cfg.LogLevel = l.getenv("LOG_LEVEL", cfg.LogLevel)
	cfg.RemoteURL = l.getenv("WHISPER_REMOTE_URL", cfg.RemoteURL)
	cfg.RemoteTimeoutSec = l.getenvInt("WHISPER_REMOTE_TIMEOUT", cfg.RemoteTimeoutSec)
	cfg.NATSURL = l.getenv("NATS_URL", cfg.NATSURL)
	cfg.NATSSubject = l.getenv("NATS_SUBJECT", cfg.NATSSubject)
	cfg.TranslationBaseURL = l.getenv("TRANSLATION_BASE_URL", cfg.TranslationBaseURL)
	cfg.TranslationEnabled = l.getenvBool("WHISPER_SERVER_TRANSLATIONS", cfg.TranslationEnabled)
	cfg.TranslationTimeoutSec = l.getenvInt("TRANSLATION_TIMEOUT", cfg.TranslationTimeoutSec)

	return cfg, nil
}

// Load reads the configuration from the process environment.
func Load() (Config, error) {
	return Loader{}.Load()
}
