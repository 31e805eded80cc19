package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/rs/zerolog/log"

	"github.com/obiente/translate/livewhisper/internal/audio"
	"github.com/obiente/translate/livewhisper/internal/bus"
	"github.com/obiente/translate/livewhisper/internal/config"
	"github.com/obiente/translate/livewhisper/internal/device"
	serverhttp "github.com/obiente/translate/livewhisper/internal/http"
	"github.com/obiente/translate/livewhisper/internal/session"
	"github.com/obiente/translate/livewhisper/internal/telemetry"
	"github.com/obiente/translate/livewhisper/internal/translation"
	"github.com/obiente/translate/livewhisper/internal/whisper"
	"github.com/obiente/translate/livewhisper/internal/ws"
)

func run(ctx context.Context, cfg config.Config, out io.Writer) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	metrics, err := telemetry.New()
	if err != nil {
		log.Warn().Err(err).Msg("metrics disabled")
		metrics = nil
	}

	var ingest *audio.PushSource
	if cfg.AudioSource == "ws" {
		ingest = audio.NewPushSource()
		if cfg.Addr == "" {
			log.Warn().Msg("audio source ws selected but WHISPER_GO_ADDR is empty; no audio will arrive")
		}
	}

	var publisher *bus.Publisher
	if cfg.NATSURL != "" {
		if publisher, err = bus.Connect(cfg.NATSURL, cfg.NATSSubject, log.Logger); err != nil {
			return err
		}
	}

	status := &serverhttp.Status{}
	var (
		wss *ws.Server
		srv *http.Server
	)
	if cfg.Addr != "" {
		var translator *translation.Client
		if cfg.TranslationEnabled {
			translator = translation.New(cfg.TranslationBaseURL, cfg.TranslationTimeoutSec, log.Logger)
		}
		wss = ws.NewServer(ingest, translator, log.Logger)
		srv = &http.Server{
			Addr:         cfg.Addr,
			Handler:      serverhttp.NewRouter(status, serverhttp.Routes{WebSocket: wss.Handle, Metrics: metrics.Handler()}),
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 60 * time.Second,
		}
		go func() {
			log.Info().Str("addr", cfg.Addr).Msg("livewhisper server starting")
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error().Err(err).Msg("server failed")
			}
		}()
	}

	tr := session.New(session.Config{
		ModelSize: cfg.ModelSize,
		Device:    device.Device(cfg.Device),
		GPUIndex:  cfg.GPUIndex,
		Debug:     cfg.Debug,
	},
		session.WithLogger(log.Logger),
		session.WithEngineFactory(engineFactory(cfg, ingest, metrics)),
		session.WithEngineDefaults(session.EngineDefaults{
			ModelPath: cfg.ModelPath,
			ModelDir:  cfg.ModelDir,
			BaseURL:   cfg.ModelBaseURL,
			Language:  cfg.Language,
			Threads:   cfg.Threads,
		}),
		session.WithHooks(session.Hooks{
			OnStart:       func(c session.Config) { metrics.SessionStarted(c.ModelSize, string(c.Device)) },
			OnEngineFault: func(op string, _ error) { metrics.EngineFault(op) },
			OnTranscript:  func(string) { metrics.Transcript() },
		}),
	)
	defer tr.Close()

	tr.SetTranscriptCallback(func(text string) {
		fmt.Fprintf(out, "\nTranscribed: %s\n", text)
		_ = publisher.Publish(bus.TranscriptEvent{
			Text:   text,
			Model:  tr.Config().ModelSize,
			Device: string(tr.Config().Device),
		})
		if wss != nil {
			wss.Broadcast(text)
		}
	})

	fmt.Fprintln(out, "Starting live transcription...")
	if err := tr.Start(); err != nil {
		return fmt.Errorf("start transcription: %w", err)
	}
	status.SetRunning(true)
	fmt.Fprintln(out, "Speak now! (Press Ctrl+C to stop)")
	fmt.Fprintln(out, "------------------------------------")

	ticker := time.NewTicker(time.Duration(cfg.PollMillis) * time.Millisecond)
	defer ticker.Stop()
	var last string
	for {
		select {
		case <-ctx.Done():
			fmt.Fprintln(out, "\nStopping transcription...")
			tr.Stop()
			status.SetRunning(false)

			var mErr *multierror.Error
			if srv != nil {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				mErr = multierror.Append(mErr, srv.Shutdown(shutdownCtx))
				cancel()
			}
			mErr = multierror.Append(mErr, publisher.Close())
			mErr = multierror.Append(mErr, metrics.Shutdown(context.Background()))
			fmt.Fprintln(out, "Transcription stopped.")
			return mErr.ErrorOrNil()
		case <-ticker.C:
			text, ok := tr.LatestTranscript()
			status.SetTranscript(text, ok)
			if ok && text != last {
				last = text
				fmt.Fprintf(out, "Latest transcript: %s\n", text)
			}
		}
	}
}

func engineFactory(cfg config.Config, ingest *audio.PushSource, metrics *telemetry.Metrics) whisper.EngineFactory {
	opts := whisper.FactoryOptions{
		Source: func(whisper.EngineConfig) (audio.Source, error) {
			switch cfg.AudioSource {
			case "ws":
				if ingest == nil {
					return nil, errors.New("websocket ingest not configured")
				}
				return ingest, nil
			case "stdin":
				return audio.NewReaderSource(os.Stdin, log.Logger), nil
			default:
				return audio.NewCommandSource(cfg.CaptureCommand, log.Logger)
			}
		},
		Observer: metrics,
		Log:      log.Logger,
	}
	if cfg.RemoteURL != "" {
		opts.Resolve = func(whisper.EngineConfig) (string, error) { return "", nil }
		opts.LoadModel = func(o whisper.ModelOptions) (whisper.Model, error) {
			return whisper.NewRemoteModel(cfg.RemoteURL, o.Language, cfg.RemoteTimeoutSec, o.Log), nil
		}
	}
	return whisper.NewEngineFactory(opts)
}
