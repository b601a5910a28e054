// Package ffmpeg implements capture.Source over an external ffmpeg
// process emitting a motion-JPEG stream, generalizing the teacher's
// FFmpegExtractor into a stateful, reconnecting capture.Source.
package ffmpeg

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"image/jpeg"
	"io"
	"log/slog"
	"os/exec"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/your-org/faceguard/internal/capture"
)

// Config describes one camera's ffmpeg capture parameters.
type Config struct {
	CameraID      uuid.UUID
	StreamURL     string
	FPS           int
	Width         int
	DegradedAfter time.Duration
	MaxRetries    int
}

// Source captures frames from an RTSP/HTTP stream via an ffmpeg
// subprocess, decoding each JPEG frame in-process.
type Source struct {
	cfg Config

	out     chan capture.Frame
	dropped atomic.Int64
	state   atomic.Value // capture.State

	mu     sync.Mutex
	cancel context.CancelFunc
	cmd    *exec.Cmd

	stopOnce sync.Once
	stopped  chan struct{}
}

// New starts capturing immediately in a background goroutine.
func New(cfg Config) *Source {
	if cfg.FPS <= 0 {
		cfg.FPS = 5
	}
	if cfg.Width <= 0 {
		cfg.Width = 640
	}
	if cfg.DegradedAfter <= 0 {
		cfg.DegradedAfter = capture.DefaultDegradedAfter
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = capture.DefaultMaxRetries
	}

	s := &Source{
		cfg:     cfg,
		out:     make(chan capture.Frame, capture.DefaultQueueDepth),
		stopped: make(chan struct{}),
	}
	s.setState(capture.StateStarting)

	ctx, cancel := context.WithCancel(context.Background())
	s.mu.Lock()
	s.cancel = cancel
	s.mu.Unlock()

	go s.run(ctx)
	return s
}

func (s *Source) Frames() <-chan capture.Frame { return s.out }

func (s *Source) State() capture.State {
	v, _ := s.state.Load().(capture.State)
	return v
}

func (s *Source) setState(st capture.State) { s.state.Store(st) }

func (s *Source) DroppedFrames() int64 { return s.dropped.Load() }

func (s *Source) Stop() {
	s.stopOnce.Do(func() {
		s.mu.Lock()
		if s.cancel != nil {
			s.cancel()
		}
		s.mu.Unlock()

		select {
		case <-s.stopped:
		case <-time.After(2 * time.Second):
		}
		s.setState(capture.StateStopped)
		close(s.out)
	})
}

func (s *Source) run(ctx context.Context) {
	defer close(s.stopped)

	var seq int64
	retries := 0
	backoff := time.Second

	for {
		if ctx.Err() != nil {
			return
		}

		s.setState(capture.StateStarting)
		seqBefore := seq
		err := s.captureOnce(ctx, &seq)
		if ctx.Err() != nil {
			return
		}
		if seq > seqBefore {
			// The attempt delivered frames, so it was a successful reconnect.
			retries = 0
			backoff = time.Second
		}
		if err == nil {
			retries = 0
			continue
		}

		slog.Warn("capture stream ended", "camera_id", s.cfg.CameraID, "error", err)
		retries++
		if retries >= s.cfg.MaxRetries {
			s.setState(capture.StateFailed)
			return
		}
		s.setState(capture.StateDegraded)

		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > 30*time.Second {
			backoff = 30 * time.Second
		}
	}
}

func (s *Source) captureOnce(ctx context.Context, seq *int64) error {
	args := s.ffmpegArgs()
	cmd := exec.CommandContext(ctx, "ffmpeg", args...)

	s.mu.Lock()
	s.cmd = cmd
	s.mu.Unlock()

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("ffmpeg: stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("ffmpeg: stderr pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("ffmpeg: start: %w", err)
	}

	go func() {
		scanner := bufio.NewScanner(stderr)
		for scanner.Scan() {
			slog.Debug("ffmpeg stderr", "camera_id", s.cfg.CameraID, "line", scanner.Text())
		}
	}()

	lastFrame := time.Now()
	degradeTimer := time.NewTicker(s.cfg.DegradedAfter)
	defer degradeTimer.Stop()
	done := make(chan struct{})

	go func() {
		defer close(done)
		s.readFrames(ctx, stdout, seq, &lastFrame)
	}()

	for {
		select {
		case <-done:
			return cmd.Wait()
		case <-ctx.Done():
			return ctx.Err()
		case <-degradeTimer.C:
			if time.Since(lastFrame) > s.cfg.DegradedAfter {
				s.setState(capture.StateDegraded)
				_ = cmd.Process.Kill()
				<-done
				_ = cmd.Wait()
				return fmt.Errorf("ffmpeg: no frame for %s", s.cfg.DegradedAfter)
			}
		}
	}
}

func (s *Source) ffmpegArgs() []string {
	args := []string{"-hide_banner", "-loglevel", "warning"}

	if strings.HasPrefix(s.cfg.StreamURL, "rtsp://") || strings.HasPrefix(s.cfg.StreamURL, "rtsps://") {
		args = append(args, "-rtsp_transport", "tcp", "-stimeout", "5000000", "-timeout", "5000000")
	} else if strings.HasPrefix(s.cfg.StreamURL, "http://") || strings.HasPrefix(s.cfg.StreamURL, "https://") {
		args = append(args, "-reconnect", "1", "-reconnect_streamed", "1", "-reconnect_delay_max", "5", "-timeout", "10000000")
	}

	args = append(args,
		"-i", s.cfg.StreamURL,
		"-vf", fmt.Sprintf("fps=%d,scale=%d:-1", s.cfg.FPS, s.cfg.Width),
		"-f", "image2pipe",
		"-vcodec", "mjpeg",
		"-q:v", "5",
		"pipe:1",
	)
	return args
}

func (s *Source) readFrames(ctx context.Context, r io.Reader, seq *int64, lastFrame *time.Time) {
	reader := bufio.NewReaderSize(r, 512*1024)
	for {
		if ctx.Err() != nil {
			return
		}
		data, err := nextJPEGFrame(reader)
		if err != nil {
			return
		}

		img, err := jpeg.Decode(bytes.NewReader(data))
		if err != nil {
			slog.Warn("decode frame", "camera_id", s.cfg.CameraID, "error", err)
			continue
		}

		*lastFrame = time.Now()
		s.setState(capture.StateRunning)

		*seq++
		bounds := img.Bounds()
		frame := capture.Frame{
			CameraID:   s.cfg.CameraID,
			Seq:        *seq,
			CapturedAt: *lastFrame,
			Image:      img,
			Width:      bounds.Dx(),
			Height:     bounds.Dy(),
		}

		select {
		case s.out <- frame:
		default:
			s.dropped.Add(1)
		}
	}
}

// maxJPEGFrameBytes bounds a single motion-JPEG frame, guarding against a
// stream that never emits an end-of-image marker.
const maxJPEGFrameBytes = 10 * 1024 * 1024

// nextJPEGFrame advances r past any bytes preceding the next SOI marker
// (0xFFD8) and returns the complete frame through its EOI marker
// (0xFFD9). ffmpeg's image2pipe muxer writes frames back to back with
// no length prefix, so the markers are the only framing available.
func nextJPEGFrame(r *bufio.Reader) ([]byte, error) {
	for {
		b, err := r.ReadByte()
		if err != nil {
			return nil, err
		}
		if b != 0xFF {
			continue
		}
		marker, err := r.ReadByte()
		if err != nil {
			return nil, err
		}
		if marker == 0xD8 {
			break
		}
	}

	var frame bytes.Buffer
	frame.Write([]byte{0xFF, 0xD8})
	for {
		b, err := r.ReadByte()
		if err != nil {
			return nil, err
		}
		frame.WriteByte(b)
		if b == 0xFF {
			marker, err := r.ReadByte()
			if err != nil {
				return nil, err
			}
			frame.WriteByte(marker)
			if marker == 0xD9 {
				return frame.Bytes(), nil
			}
		}
		if frame.Len() > maxJPEGFrameBytes {
			return nil, fmt.Errorf("ffmpeg: jpeg frame exceeds %d bytes", maxJPEGFrameBytes)
		}
	}
}
