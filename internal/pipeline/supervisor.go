// Package pipeline owns the per-camera task graph: capture -> detect ->
// embed -> match, plus a recording tee, wired with bounded channels so
// slow downstream stages apply backpressure rather than dropping frames
// (spec component C12).
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/your-org/faceguard/internal/capture"
	"github.com/your-org/faceguard/internal/detect"
	"github.com/your-org/faceguard/internal/matcher"
	"github.com/your-org/faceguard/internal/observability"
	"github.com/your-org/faceguard/internal/recognize"
	"github.com/your-org/faceguard/internal/recording"
	"github.com/your-org/faceguard/internal/store"
)

// Channel depths between stages, per spec.md §4.12.
const (
	QDet = 2
	QEmb = 8
)

// DefaultDrainTimeout bounds how long Stop waits for in-flight frames
// to clear the pipeline before cancelling downstream stages.
const DefaultDrainTimeout = 3 * time.Second

// DefaultReRecognizeInterval caps how often an already-tracked face is
// re-embedded.
const DefaultReRecognizeInterval = 5 * time.Second

// SettingsSource reads the live detection configuration.
type SettingsSource interface {
	Get(ctx context.Context) (*store.Settings, error)
}

// Supervisor owns one task graph per camera.
type Supervisor struct {
	detector   *detect.Detector
	batcher    *recognize.Batcher
	matcher    *matcher.Matcher
	settings   SettingsSource
	attributes *recognize.AttributePredictor
	cameraRepo CameraStatusRepo

	mu      sync.Mutex
	cameras map[uuid.UUID]*cameraTask
}

type cameraTask struct {
	cameraID   uuid.UUID
	source     capture.Source
	controller *recording.Controller
	tracker    *Tracker
	motion     *motionGate
	status     *statusMonitor

	// lastDropped is the source's own cumulative DroppedFrames() count
	// last time it was sampled, so the Prometheus counter can be
	// incremented by the delta instead of overwritten.
	lastDropped int64

	cancel context.CancelFunc
	done   chan struct{}
}

// embJob is one tracked face awaiting embedding.
type embJob struct {
	frame capture.Frame
	track *Track
}

// New builds a Supervisor sharing one Detector and one embedding
// Batcher across every camera's task graph, since both wrap ONNX
// sessions that are expensive to duplicate per camera. attributes is
// optional: a nil predictor leaves Sighting.Gender/Age unset. cameraRepo
// is optional: a nil repo disables the Camera.status liveness sync
// (spec.md §4.4), which is convenient for tests that don't have a store.
func New(detector *detect.Detector, batcher *recognize.Batcher, m *matcher.Matcher, settings SettingsSource, attributes *recognize.AttributePredictor, cameraRepo CameraStatusRepo) *Supervisor {
	return &Supervisor{
		detector:   detector,
		batcher:    batcher,
		matcher:    m,
		settings:   settings,
		attributes: attributes,
		cameraRepo: cameraRepo,
		cameras:    make(map[uuid.UUID]*cameraTask),
	}
}

// StartCamera builds and launches the task graph for one camera:
// source -> detect+track -> embed -> match, with the recording
// controller fed every frame via a tee placed immediately after the
// source, bypassing the detector's frame-skip.
func (s *Supervisor) StartCamera(cameraID uuid.UUID, source capture.Source, controller *recording.Controller) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.cameras[cameraID]; exists {
		return fmt.Errorf("pipeline: camera %s already started", cameraID)
	}

	ctx, cancel := context.WithCancel(context.Background())
	task := &cameraTask{
		cameraID:   cameraID,
		source:     source,
		controller: controller,
		tracker:    NewTracker(10, 2),
		motion:     newMotionGate(),
		status:     &statusMonitor{},
		cancel:     cancel,
		done:       make(chan struct{}),
	}
	s.cameras[cameraID] = task

	go s.runCamera(ctx, task)
	go controller.Run(ctx)
	go task.status.run(ctx, task.cameraID, task.source, s.cameraRepo)

	return nil
}

// StopCamera cancels the camera's Frame Source and waits up to
// DefaultDrainTimeout for the task graph to drain before returning.
func (s *Supervisor) StopCamera(cameraID uuid.UUID) {
	s.mu.Lock()
	task, ok := s.cameras[cameraID]
	if ok {
		delete(s.cameras, cameraID)
	}
	s.mu.Unlock()
	if !ok {
		return
	}

	task.source.Stop()
	task.cancel()

	select {
	case <-task.done:
	case <-time.After(DefaultDrainTimeout):
		slog.Warn("pipeline: camera task did not drain in time", "camera_id", cameraID)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), DefaultDrainTimeout)
	defer shutdownCancel()
	task.controller.Shutdown(shutdownCtx)
	task.controller.Close()
}

// runCamera drives the detect+track stage, teeing every frame to the
// recording controller and sending tracks that need recognition into
// the embed stage.
func (s *Supervisor) runCamera(ctx context.Context, task *cameraTask) {
	defer close(task.done)

	detToEmb := make(chan embJob, QDet)
	embToMatch := make(chan matcher.Input, QEmb)

	embedDone := make(chan struct{})
	matchDone := make(chan struct{})

	// Embed stage. Exits (and closes embToMatch) once detToEmb drains
	// and closes, which only happens after the capture loop below stops
	// sending into it.
	go func() {
		defer close(embedDone)
		defer close(embToMatch)
		for job := range detToEmb {
			crop := recognize.CropFace(job.frame.Image, job.track.BBox)
			if crop == nil {
				continue
			}
			emb, err := s.batcher.Submit(ctx, crop, job.track.Landmarks[0], job.track.Landmarks[1])
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				slog.Warn("pipeline: embed face", "camera_id", task.cameraID, "error", err)
				continue
			}
			job.track.LastRecognized = time.Now()

			var attrs *recognize.Attributes
			if s.attributes != nil {
				a, err := s.attributes.Predict(crop)
				if err != nil {
					slog.Warn("pipeline: predict attributes", "camera_id", task.cameraID, "error", err)
				} else {
					attrs = a
				}
			}

			recID, offMS, _ := task.controller.ActiveRecording(job.frame.CapturedAt)
			in := matcher.Input{
				CameraID: task.cameraID,
				FrameSeq: job.frame.Seq,
				BBox: store.BBox{
					X: float64(job.track.BBox[0]), Y: float64(job.track.BBox[1]),
					W: float64(job.track.BBox[2] - job.track.BBox[0]), H: float64(job.track.BBox[3] - job.track.BBox[1]),
				},
				Embedding:      emb,
				CropJPEG:       recognize.EncodeJPEG(crop, 85),
				DetectedAt:     job.frame.CapturedAt,
				RecordingID:    recID,
				RecordingOffMS: offMS,
				Attributes:     attrs,
			}

			select {
			case embToMatch <- in:
			case <-ctx.Done():
				return
			}
		}
	}()

	// Match stage.
	go func() {
		defer close(matchDone)
		for in := range embToMatch {
			if _, err := s.matcher.Match(ctx, in); err != nil {
				slog.Warn("pipeline: match face", "camera_id", task.cameraID, "error", err)
			}
		}
	}()

	var frameCount, detectableCount int64
	for {
		select {
		case frame, ok := <-task.source.Frames():
			if !ok {
				close(detToEmb)
				<-embedDone
				<-matchDone
				return
			}
			frameCount++
			task.status.touch(frame.CapturedAt)
			sampleDroppedFrames(task)

			if err := task.controller.PushFrame(ctx, frame); err != nil {
				slog.Warn("pipeline: push frame to recording", "camera_id", task.cameraID, "error", err)
			}

			// Motion gate runs first, frame-skip second, per the
			// conservative "motion then skip" composition — a static
			// frame never counts toward the process_every_n_frames
			// cadence, and detection only runs on the frames that
			// survive both gates.
			if s.motionEnabled(ctx) && !task.motion.check(frame.Image) {
				continue
			}

			detectableCount++
			every := s.processEveryN(ctx)
			if every > 1 && detectableCount%int64(every) != 0 {
				continue
			}

			s.detectAndTrack(ctx, task, frame, detToEmb)

		case <-ctx.Done():
			close(detToEmb)
			<-embedDone
			<-matchDone
			return
		}
	}
}

func (s *Supervisor) detectAndTrack(ctx context.Context, task *cameraTask, frame capture.Frame, detToEmb chan<- embJob) {
	settings, err := s.settings.Get(ctx)
	if err != nil {
		slog.Warn("pipeline: load settings", "camera_id", task.cameraID, "error", err)
		return
	}
	cfg := settings.Detection

	bounds := frame.Image.Bounds()
	input := s.detector.Preprocess(frame.Image)
	detections, err := s.detector.Detect(input, bounds.Dx(), bounds.Dy(), detect.Filter{
		MinConfidence:    float32(cfg.MinConfidence),
		MinFaceSizePx:    float32(cfg.MinFaceSizePx),
		MaxFacesPerFrame: cfg.MaxFacesPerFrame,
	})
	if err != nil {
		slog.Warn("pipeline: detect", "camera_id", task.cameraID, "error", err)
		return
	}
	if len(detections) == 0 {
		return
	}

	if err := task.controller.NotifyDetection(ctx, frame.CapturedAt); err != nil {
		slog.Warn("pipeline: notify detection", "camera_id", task.cameraID, "error", err)
	}

	tracks := task.tracker.Update(detections)
	for _, tr := range tracks {
		if !task.tracker.ShouldRecognize(tr, DefaultReRecognizeInterval) {
			continue
		}
		select {
		case detToEmb <- embJob{frame: frame, track: tr}:
		case <-ctx.Done():
			return
		}
	}
}

// sampleDroppedFrames converts the source's cumulative DroppedFrames()
// counter into a Prometheus delta, since the source itself never resets it.
func sampleDroppedFrames(task *cameraTask) {
	total := task.source.DroppedFrames()
	delta := total - task.lastDropped
	if delta <= 0 {
		return
	}
	task.lastDropped = total
	observability.FramesDropped.WithLabelValues(task.cameraID.String(), "capture").Add(float64(delta))
}

func (s *Supervisor) motionEnabled(ctx context.Context) bool {
	settings, err := s.settings.Get(ctx)
	if err != nil {
		return false
	}
	return settings.Detection.MotionEnabled
}

func (s *Supervisor) processEveryN(ctx context.Context) int {
	settings, err := s.settings.Get(ctx)
	if err != nil || settings.Detection.ProcessEveryNFrames <= 0 {
		return 1
	}
	return settings.Detection.ProcessEveryNFrames
}
