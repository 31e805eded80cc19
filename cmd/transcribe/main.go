package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/obiente/translate/livewhisper/internal/config"
	"github.com/obiente/translate/livewhisper/internal/transcribe"
	"github.com/obiente/translate/livewhisper/internal/whisper"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	return &cobra.Command{
		Use:          "transcribe <audio-file>",
		Short:        "Transcribe a wav or raw pcm file with the base model",
		Args:         cobra.ExactArgs(1),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if err := cfg.ValidateBatch(); err != nil {
				return err
			}
			zerolog.TimeFieldFormat = zerolog.TimeFormatUnixMs
			lvl := zerolog.WarnLevel
			if l, err := zerolog.ParseLevel(cfg.LogLevel); err == nil && cfg.LogLevel != "" {
				lvl = l
			}
			if cfg.Debug {
				lvl = zerolog.DebugLevel
			}
			log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr}).Level(lvl)
			return run(cmd.Context(), cfg, args[0], cmd.OutOrStdout())
		},
	}
}

func run(ctx context.Context, cfg config.Config, path string, out io.Writer) error {
	var load transcribe.Loader
	if cfg.RemoteURL != "" {
		load = transcribe.RemoteLoader(cfg.RemoteURL, cfg.Language, cfg.RemoteTimeoutSec, log.Logger)
	} else {
		r := whisper.Resolver{Dir: cfg.ModelDir, BaseURL: cfg.ModelBaseURL, Log: log.Logger}
		load = transcribe.LocalLoader(r, cfg.Language, cfg.Threads, log.Logger)
	}

	text, err := transcribe.File(ctx, load, path)
	if err != nil {
		return err
	}
	fmt.Fprintln(out, "Transcription:")
	fmt.Fprintln(out, text)
	return nil
}
