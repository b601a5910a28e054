// Package pushed implements capture.Source for frames pushed in by an
// external client (a browser camera over HTTP), rather than pulled by an
// ffmpeg subprocess.
package pushed

import (
	"image"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/your-org/faceguard/internal/capture"
)

// Config describes one pushed camera's idle timeout.
type Config struct {
	CameraID  uuid.UUID
	IdleAfter time.Duration // T_push_idle
}

// Source accepts frames via Push and elides ffmpeg's reconnect state
// machine: it starts in Starting, moves to Running on every Push, to
// Failed when no push arrives within IdleAfter, and to Stopped on Stop.
// A Push after Failed returns it to Running.
type Source struct {
	cfg Config

	out     chan capture.Frame
	dropped atomic.Int64
	state   atomic.Value

	mu       sync.Mutex
	lastPush time.Time
	seq      int64
	closed   bool

	stopOnce sync.Once
	stop     chan struct{}
}

// New starts the idle-timeout watchdog immediately.
func New(cfg Config) *Source {
	if cfg.IdleAfter <= 0 {
		cfg.IdleAfter = 10 * time.Second
	}
	s := &Source{
		cfg:      cfg,
		out:      make(chan capture.Frame, capture.DefaultQueueDepth),
		lastPush: time.Now(),
		stop:     make(chan struct{}),
	}
	s.state.Store(capture.StateStarting)
	go s.watchIdle()
	return s
}

// Push delivers one externally-captured frame. It never blocks: if the
// outbound channel is full the frame is dropped and the counter bumped.
func (s *Source) Push(img image.Image, capturedAt time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}

	s.lastPush = capturedAt
	s.seq++
	seq := s.seq

	s.state.Store(capture.StateRunning)

	bounds := img.Bounds()
	frame := capture.Frame{
		CameraID:   s.cfg.CameraID,
		Seq:        seq,
		CapturedAt: capturedAt,
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

func (s *Source) Frames() <-chan capture.Frame { return s.out }

func (s *Source) State() capture.State {
	v, _ := s.state.Load().(capture.State)
	return v
}

func (s *Source) DroppedFrames() int64 { return s.dropped.Load() }

func (s *Source) Stop() {
	s.stopOnce.Do(func() {
		close(s.stop)
		s.state.Store(capture.StateStopped)

		s.mu.Lock()
		s.closed = true
		close(s.out)
		s.mu.Unlock()
	})
}

func (s *Source) watchIdle() {
	ticker := time.NewTicker(s.cfg.IdleAfter / 2)
	defer ticker.Stop()
	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			s.mu.Lock()
			idle := time.Since(s.lastPush)
			s.mu.Unlock()
			if idle > s.cfg.IdleAfter {
				s.state.Store(capture.StateFailed)
			}
		}
	}
}
