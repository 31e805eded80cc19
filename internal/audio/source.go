package audio

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/mattn/go-shellwords"
	"github.com/rs/zerolog"
)

// Source delivers 16 kHz mono samples. The channel is closed when the
// source ends or ctx is cancelled.
type Source interface {
	Open(ctx context.Context) (<-chan []float32, error)
	Close() error
}

const frameBytes = 2 * SampleRate / 10 // 100ms of PCM16

// ReaderSource reads a raw PCM16LE stream, e.g. stdin.
type ReaderSource struct {
	r   io.Reader
	log zerolog.Logger
}

func NewReaderSource(r io.Reader, log zerolog.Logger) *ReaderSource {
	return &ReaderSource{r: r, log: log}
}

func (s *ReaderSource) Open(ctx context.Context) (<-chan []float32, error) {
	out := make(chan []float32, 16)
	go pumpPCM(ctx, bufio.NewReaderSize(s.r, frameBytes*4), out, s.log)
	return out, nil
}

func (s *ReaderSource) Close() error {
	if c, ok := s.r.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

func pumpPCM(ctx context.Context, r io.Reader, out chan<- []float32, log zerolog.Logger) {
	defer close(out)
	buf := make([]byte, frameBytes)
	for {
		n, err := io.ReadFull(r, buf)
		if n > 1 {
			pcm, _, _ := DecodePCM16LEToFloat32(buf[:n&^1], SampleRate)
			select {
			case out <- pcm:
			case <-ctx.Done():
				return
			}
		}
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, os.ErrClosed) {
				log.Warn().Err(err).Msg("audio: read failed")
			}
			return
		}
		if ctx.Err() != nil {
			return
		}
	}
}

// CommandSource runs a capture command (arecord, sox, ffmpeg, ...) that
// writes 16 kHz mono PCM16LE to stdout.
type CommandSource struct {
	args []string
	log  zerolog.Logger

	mu     sync.Mutex
	cmd    *exec.Cmd
	stdout io.Closer
	cancel context.CancelFunc
	pumped chan struct{}
}

// pumpGrace bounds how long Close waits for the reader to see EOF after the
// process is killed. Children of the command can keep the pipe open.
const pumpGrace = 2 * time.Second

func NewCommandSource(command string, log zerolog.Logger) (*CommandSource, error) {
	args, err := shellwords.NewParser().Parse(command)
	if err != nil {
		return nil, fmt.Errorf("parse capture command: %w", err)
	}
	if len(args) == 0 {
		return nil, errors.New("capture command is empty")
	}
	return &CommandSource{args: args, log: log}, nil
}

func (s *CommandSource) Open(ctx context.Context) (<-chan []float32, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cmd != nil {
		return nil, errors.New("capture command already running")
	}
	cmd := exec.CommandContext(ctx, s.args[0], s.args[1:]...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("capture stdout: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start capture command: %w", err)
	}
	pumpCtx, cancel := context.WithCancel(ctx)
	pumped := make(chan struct{})
	s.cmd, s.stdout, s.cancel, s.pumped = cmd, stdout, cancel, pumped
	s.log.Info().Strs("command", s.args).Int("pid", cmd.Process.Pid).Msg("audio: capture started")

	out := make(chan []float32, 16)
	go func() {
		defer close(pumped)
		pumpPCM(pumpCtx, stdout, out, s.log)
	}()
	return out, nil
}

func (s *CommandSource) Close() error {
	s.mu.Lock()
	cmd, stdout, cancel, pumped := s.cmd, s.stdout, s.cancel, s.pumped
	s.cmd, s.stdout, s.cancel, s.pumped = nil, nil, nil, nil
	s.mu.Unlock()
	if cmd == nil {
		return nil
	}
	cancel()
	_ = cmd.Process.Kill()
	// Wait closes the pipe, so every read has to be finished first.
	select {
	case <-pumped:
	case <-time.After(pumpGrace):
		_ = stdout.Close()
		<-pumped
	}
	err := cmd.Wait()
	s.log.Info().Msg("audio: capture stopped")
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		// killed on purpose
		return nil
	}
	return err
}

// PushSource is fed by callers (the websocket ingest) through Push.
type PushSource struct {
	mu     sync.Mutex
	ch     chan []float32
	ctx    context.Context
	cancel context.CancelFunc
}

func NewPushSource() *PushSource {
	return &PushSource{}
}

func (s *PushSource) Open(ctx context.Context) (<-chan []float32, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ch != nil {
		return nil, errors.New("push source already open")
	}
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.ch = make(chan []float32, 64)
	return s.ch, nil
}

// Push hands samples to the reader. It drops the samples when the source is
// not open and reports whether they were accepted.
func (s *PushSource) Push(samples []float32) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ch == nil || len(samples) == 0 {
		return false
	}
	select {
	case s.ch <- samples:
		return true
	case <-s.ctx.Done():
		return false
	}
}

func (s *PushSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ch == nil {
		return nil
	}
	s.cancel()
	close(s.ch)
	s.ch = nil
	return nil
}
