package main

import (
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/obiente/translate/livewhisper/internal/config"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

type rootFlags struct {
	model    string
	device   string
	gpuIndex int
	debug    bool
	source   string
}

func (f *rootFlags) bind(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&f.model, "model", "m", config.DefaultModelSize, "model size: tiny, base, small, medium, large")
	cmd.Flags().StringVarP(&f.device, "device", "d", config.DefaultDevice, "compute device: auto, cpu, gpu")
	cmd.Flags().IntVar(&f.gpuIndex, "gpu-index", 0, "gpu index when running on gpu")
	cmd.Flags().BoolVar(&f.debug, "debug", false, "enable debug logging")
	cmd.Flags().StringVar(&f.source, "source", config.DefaultAudioSource, "audio source: capture, stdin, ws")
}

// load reads file and environment config, lets explicit flags win, then
// validates the merged result.
func (f *rootFlags) load(cmd *cobra.Command) (config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return config.Config{}, err
	}
	flags := cmd.Flags()
	if flags.Changed("model") {
		cfg.ModelSize = f.model
	}
	if flags.Changed("device") {
		cfg.Device = f.device
	}
	if flags.Changed("gpu-index") {
		cfg.GPUIndex = f.gpuIndex
	}
	if flags.Changed("debug") {
		cfg.Debug = f.debug
	}
	if flags.Changed("source") {
		cfg.AudioSource = f.source
	}
	if err := cfg.Validate(); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}

func newRootCmd() *cobra.Command {
	f := &rootFlags{}
	cmd := &cobra.Command{
		Use:          "livewhisper",
		Short:        "Transcribe live audio with whisper and print what was said",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := f.load(cmd)
			if err != nil {
				return err
			}
			setupLogging(cfg)
			return run(cmd.Context(), cfg, cmd.OutOrStdout())
		},
	}
	f.bind(cmd)
	return cmd
}

// setupLogging configures the process-wide logger once.
func setupLogging(cfg config.Config) {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnixMs
	lvl := zerolog.InfoLevel
	if cfg.LogLevel != "" {
		if l, err := zerolog.ParseLevel(cfg.LogLevel); err == nil {
			lvl = l
		}
	}
	if cfg.Debug {
		lvl = zerolog.DebugLevel
	}
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr}).Level(lvl)
}
