// Package audio acquires the microphone and emits encoded audio in fixed
// cadence chunks for the transcription channel.
package audio

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"time"
)

var (
	// ErrCaptureDenied is returned when the microphone cannot be acquired.
	ErrCaptureDenied = errors.New("microphone access denied")
	// ErrCaptureExited is reported through onExit when the capture process
	// ends while recording.
	ErrCaptureExited = errors.New("capture process exited")
)

const (
	DefaultChunkInterval = 250 * time.Millisecond
	defaultStartupGrace  = 250 * time.Millisecond
	stopGrace            = 1200 * time.Millisecond
)

// Config describes how the capture process records and encodes audio.
type Config struct {
	Command       string
	InputFormat   string // ffmpeg demuxer: pulse, avfoundation, dshow
	InputDevice   string
	OutputFormat  string // webm, ogg or wav
	Codec         string
	SampleRate    int
	Channels      int
	ChunkInterval time.Duration
	// StartupGrace is how long the process must survive to count as acquired.
	StartupGrace time.Duration
}

// Capturer acquires an audio source.
type Capturer interface {
	Open(ctx context.Context) (Source, error)
}

// Source is an acquired microphone stream.
type Source interface {
	// Start begins emitting non-empty chunks every chunk interval. emit is
	// called from a single goroutine. onExit, if not nil, is called once when
	// the device goes away on its own; it is never called after Stop.
	Start(emit func([]byte), onExit func(error))
	// Stop releases the device. Safe to call more than once.
	Stop() error
}

// FFmpegCapture records the microphone through an ffmpeg process.
type FFmpegCapture struct {
	cfg Config
}

func NewFFmpegCapture(cfg Config) *FFmpegCapture {
	if cfg.Command == "" {
		cfg.Command = "ffmpeg"
	}
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = 16000
	}
	if cfg.Channels <= 0 {
		cfg.Channels = 1
	}
	if cfg.InputFormat == "" {
		cfg.InputFormat = "pulse"
	}
	if cfg.InputDevice == "" {
		cfg.InputDevice = "default"
	}
	if cfg.OutputFormat == "" {
		cfg.OutputFormat = "webm"
	}
	if cfg.ChunkInterval <= 0 {
		cfg.ChunkInterval = DefaultChunkInterval
	}
	if cfg.StartupGrace <= 0 {
		cfg.StartupGrace = defaultStartupGrace
	}
	return &FFmpegCapture{cfg: cfg}
}

// Args returns the ffmpeg argument list for the configured encoding.
func (c *FFmpegCapture) Args() []string {
	cfg := c.cfg
	args := []string{
		"-nostdin",
		"-hide_banner",
		"-loglevel", "warning",
		"-f", cfg.InputFormat,
		"-i", cfg.InputDevice,
		"-ac", strconv.Itoa(cfg.Channels),
		"-ar", strconv.Itoa(cfg.SampleRate),
	}
	switch strings.ToLower(cfg.OutputFormat) {
	case "wav", "pcm", "s16le":
		args = append(args, "-f", "s16le")
	default:
		if cfg.Codec != "" {
			args = append(args, "-c:a", cfg.Codec)
		}
		args = append(args, "-f", cfg.OutputFormat)
	}
	return append(args, "-")
}

func (c *FFmpegCapture) streamsWAV() bool {
	switch strings.ToLower(c.cfg.OutputFormat) {
	case "wav", "pcm", "s16le":
		return true
	}
	return false
}

func (c *FFmpegCapture) Open(ctx context.Context) (Source, error) {
	cmd := exec.Command(c.cfg.Command, c.Args()...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("%w: stdout pipe: %v", ErrCaptureDenied, err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("%w: start %s: %v", ErrCaptureDenied, c.cfg.Command, err)
	}

	waitErr := make(chan error, 1)
	go func() {
		waitErr <- cmd.Wait()
		close(waitErr)
	}()

	select {
	case err := <-waitErr:
		detail := strings.TrimSpace(stderr.String())
		if err != nil {
			return nil, fmt.Errorf("%w: capture exited: %v: %s", ErrCaptureDenied, err, detail)
		}
		return nil, fmt.Errorf("%w: capture exited before recording: %s", ErrCaptureDenied, detail)
	case <-ctx.Done():
		_ = cmd.Process.Kill()
		<-waitErr
		return nil, ctx.Err()
	case <-time.After(c.cfg.StartupGrace):
	}

	src := &processSource{
		stdout:   stdout,
		stderr:   &stderr,
		process:  cmd.Process,
		waitErr:  waitErr,
		interval: c.cfg.ChunkInterval,
		chunks:   &chunker{},
		done:     make(chan struct{}),
	}
	if c.streamsWAV() {
		src.chunks.Write(WAVStreamHeader(c.cfg.SampleRate, c.cfg.Channels))
	}
	return src, nil
}

type processSource struct {
	stdout  io.ReadCloser
	stderr  *bytes.Buffer
	process *os.Process
	waitErr <-chan error

	interval time.Duration
	chunks   *chunker

	startOnce sync.Once
	stopOnce  sync.Once
	stopErr   error
	done      chan struct{}
	wg        sync.WaitGroup

	exitMu  sync.Mutex
	exitErr error
	exited  bool
}

func (s *processSource) Start(emit func([]byte), onExit func(error)) {
	s.startOnce.Do(func() {
		s.wg.Add(2)
		go s.read()
		go s.tick(emit)
		// Not tracked by wg: onExit may call back into Stop.
		go s.watch(onExit)
	})
}

// watch reports a process that exits before Stop.
func (s *processSource) watch(onExit func(error)) {
	var err error
	select {
	case <-s.done:
		return
	case err = <-s.waitErr:
	}
	s.exitMu.Lock()
	s.exitErr, s.exited = err, true
	s.exitMu.Unlock()

	select {
	case <-s.done:
		return
	default:
	}
	if err == nil {
		err = ErrCaptureExited
	} else {
		err = fmt.Errorf("%w: %v", ErrCaptureExited, err)
	}
	if detail := strings.TrimSpace(s.stderrText()); detail != "" {
		err = fmt.Errorf("%w: %s", err, detail)
	}
	if onExit != nil {
		onExit(err)
	}
}

func (s *processSource) stderrText() string {
	s.exitMu.Lock()
	defer s.exitMu.Unlock()
	return s.stderr.String()
}

func (s *processSource) read() {
	defer s.wg.Done()
	buf := make([]byte, 4096)
	for {
		n, err := s.stdout.Read(buf)
		if n > 0 {
			s.chunks.Write(buf[:n])
		}
		if err != nil {
			return
		}
	}
}

func (s *processSource) tick(emit func([]byte)) {
	defer s.wg.Done()
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			if chunk := s.chunks.Flush(); len(chunk) > 0 {
				emit(chunk)
			}
		}
	}
}

func (s *processSource) Stop() error {
	s.stopOnce.Do(func() {
		close(s.done)
		if s.process != nil {
			_ = s.process.Signal(os.Interrupt)
		}

		select {
		case err, ok := <-s.waitErr:
			if ok {
				s.stopErr = normalizeStopErr(err)
			} else {
				s.stopErr = s.recordedExit()
			}
		case <-time.After(stopGrace):
			if s.process != nil {
				_ = s.process.Kill()
			}
			if err, ok := <-s.waitErr; ok {
				s.stopErr = normalizeStopErr(err)
			} else {
				s.stopErr = s.recordedExit()
			}
		}

		if err := s.stdout.Close(); err != nil && !errors.Is(err, os.ErrClosed) && s.stopErr == nil {
			s.stopErr = err
		}
		s.wg.Wait()

		if s.stopErr != nil {
			if detail := strings.TrimSpace(s.stderrText()); detail != "" {
				s.stopErr = fmt.Errorf("%w: %s", s.stopErr, detail)
			}
		}
	})
	return s.stopErr
}

// recordedExit returns the exit status watch consumed, if any.
func (s *processSource) recordedExit() error {
	s.exitMu.Lock()
	defer s.exitMu.Unlock()
	if !s.exited {
		return nil
	}
	return normalizeStopErr(s.exitErr)
}

// normalizeStopErr treats a non-zero exit after an interrupt as a clean stop.
func normalizeStopErr(err error) error {
	if err == nil {
		return nil
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return nil
	}
	return err
}
