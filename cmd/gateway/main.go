// Command gateway is the faceguard process: it owns the durable stores,
// builds one pipeline task graph per enabled camera, and serves the
// HTTP/WebSocket surface the rest of the system observes events through.
package main

import (
	"context"
	"flag"
	"fmt"
	"image/jpeg"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	ort "github.com/yalue/onnxruntime_go"

	"github.com/your-org/faceguard/internal/auth"
	"github.com/your-org/faceguard/internal/capture"
	"github.com/your-org/faceguard/internal/capture/ffmpeg"
	"github.com/your-org/faceguard/internal/capture/pushed"
	"github.com/your-org/faceguard/internal/config"
	"github.com/your-org/faceguard/internal/debounce"
	"github.com/your-org/faceguard/internal/detect"
	"github.com/your-org/faceguard/internal/embedding"
	"github.com/your-org/faceguard/internal/eventbus"
	"github.com/your-org/faceguard/internal/index"
	"github.com/your-org/faceguard/internal/index/flat"
	"github.com/your-org/faceguard/internal/index/pgann"
	"github.com/your-org/faceguard/internal/janitor"
	"github.com/your-org/faceguard/internal/matcher"
	"github.com/your-org/faceguard/internal/objectstore"
	"github.com/your-org/faceguard/internal/observability"
	"github.com/your-org/faceguard/internal/pipeline"
	"github.com/your-org/faceguard/internal/recognize"
	"github.com/your-org/faceguard/internal/recording"
	"github.com/your-org/faceguard/internal/store"
	"github.com/your-org/faceguard/internal/store/postgres"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	observability.SetupLogger(cfg.Logging.Level, cfg.Logging.Format)
	embedding.SetDim(cfg.Vision.EmbeddingDim)
	slog.Info("starting faceguard gateway", "port", cfg.Server.Port)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := postgres.New(ctx, postgres.Config{
		Host: cfg.Database.Host, Port: cfg.Database.Port, Name: cfg.Database.Name,
		User: cfg.Database.User, Password: cfg.Database.Password, MaxConns: cfg.Database.MaxConns,
	})
	if err != nil {
		slog.Error("connect to postgres", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	if err := seedSettings(ctx, db.Settings(), cfg); err != nil {
		slog.Error("seed settings", "error", err)
		os.Exit(1)
	}

	objects, err := objectstore.New(objectstore.Config{
		Endpoint: cfg.MinIO.Endpoint, AccessKey: cfg.MinIO.AccessKey,
		SecretKey: cfg.MinIO.SecretKey, Bucket: cfg.MinIO.Bucket, UseSSL: cfg.MinIO.UseSSL,
	})
	if err != nil {
		slog.Error("connect to minio", "error", err)
		os.Exit(1)
	}
	if err := objects.EnsureBucket(ctx); err != nil {
		slog.Warn("ensure minio bucket", "error", err)
	}

	ort.SetSharedLibraryPath(onnxLibPath())
	if err := ort.InitializeEnvironment(); err != nil {
		slog.Error("init onnx runtime", "error", err)
		os.Exit(1)
	}
	defer ort.DestroyEnvironment()

	newSessionOptions := func() (*ort.SessionOptions, error) {
		opts, err := ort.NewSessionOptions()
		if err != nil {
			return nil, fmt.Errorf("create session options: %w", err)
		}
		if cfg.Vision.IntraOpThreads > 0 {
			if err := opts.SetIntraOpNumThreads(cfg.Vision.IntraOpThreads); err != nil {
				opts.Destroy()
				return nil, fmt.Errorf("set intra_op_threads: %w", err)
			}
		}
		if cfg.Vision.InterOpThreads > 0 {
			if err := opts.SetInterOpNumThreads(cfg.Vision.InterOpThreads); err != nil {
				opts.Destroy()
				return nil, fmt.Errorf("set inter_op_threads: %w", err)
			}
		}
		return opts, nil
	}

	detOpts, err := newSessionOptions()
	if err != nil {
		slog.Error("create detector session options", "error", err)
		os.Exit(1)
	}
	defer detOpts.Destroy()
	detector, err := detect.New(filepath.Join(cfg.Vision.ModelsDir, "det_10g.onnx"), float32(cfg.Vision.DetectionThreshold), detOpts)
	if err != nil {
		slog.Error("load detection model", "error", err)
		os.Exit(1)
	}
	defer detector.Close()

	embOpts, err := newSessionOptions()
	if err != nil {
		slog.Error("create embedder session options", "error", err)
		os.Exit(1)
	}
	defer embOpts.Destroy()
	embedder, err := recognize.NewEmbedder(filepath.Join(cfg.Vision.ModelsDir, "w600k_r50.onnx"), embOpts)
	if err != nil {
		slog.Error("load recognition model", "error", err)
		os.Exit(1)
	}
	defer embedder.Close()
	batcher := recognize.NewBatcher(embedder, cfg.Vision.EmbedBatchMax)
	defer batcher.Close()

	var attrPredictor *recognize.AttributePredictor
	if cfg.Vision.AttributesEnabled {
		attrOpts, err := newSessionOptions()
		if err != nil {
			slog.Error("create attribute predictor session options", "error", err)
			os.Exit(1)
		}
		defer attrOpts.Destroy()
		attrPredictor, err = recognize.NewAttributePredictor(filepath.Join(cfg.Vision.ModelsDir, "genderage.onnx"), attrOpts)
		if err != nil {
			slog.Error("load attribute model", "error", err)
			os.Exit(1)
		}
		defer attrPredictor.Close()
	}

	idx, err := buildIndex(ctx, db, cfg.Index.FlatThreshold)
	if err != nil {
		slog.Error("build embedding index", "error", err)
		os.Exit(1)
	}

	bus := eventbus.NewBus(eventbus.DefaultQueueDepth)

	durable, err := eventbus.NewDurableBus(cfg.NATS.URL)
	if err != nil {
		slog.Error("connect to nats", "error", err)
		os.Exit(1)
	}
	defer durable.Close()
	if err := durable.EnsureStream(ctx); err != nil {
		slog.Warn("ensure nats stream", "error", err)
	}
	bridgeToDurable(ctx, bus, durable)

	wsHub := eventbus.NewWSHub(bus)
	wsStop := make(chan struct{})
	go wsHub.Run(wsStop)

	deb := debounce.New(time.Duration(0))
	defer deb.Close()

	m := matcher.New(idx, db.Identities(), db.Settings(), objects, busPublisher{bus, durable}, deb)

	janitorSvc := janitor.New(db.Recordings(), objects, db.Settings(), busPublisher{bus, durable}, janitor.DefaultInterval)
	go janitorSvc.Run(ctx)
	defer janitorSvc.Stop()

	if err := recording.RecoverInterrupted(ctx, db.Recordings()); err != nil {
		slog.Warn("recover interrupted recordings", "error", err)
	}

	supervisor := pipeline.New(detector, batcher, m, db.Settings(), attrPredictor, db.Cameras())

	cameras, err := db.Cameras().List(ctx, true)
	if err != nil {
		slog.Error("list enabled cameras", "error", err)
		os.Exit(1)
	}

	controllers := make(map[uuid.UUID]*recording.Controller, len(cameras))
	sources := make(map[uuid.UUID]capture.Source, len(cameras))
	for _, cam := range cameras {
		src, err := buildSource(cam)
		if err != nil {
			slog.Warn("build capture source", "camera_id", cam.ID, "error", err)
			continue
		}
		ctrl := recording.New(cam.ID, cam.TargetFPS, cfg.DataDir, db.Recordings(), objects, db.Settings(), busPublisher{bus, durable}, janitorSvc)
		if err := supervisor.StartCamera(cam.ID, src, ctrl); err != nil {
			slog.Warn("start camera pipeline", "camera_id", cam.ID, "error", err)
			continue
		}
		controllers[cam.ID] = ctrl
		sources[cam.ID] = src
		slog.Info("camera pipeline started", "camera_id", cam.ID, "kind", cam.Kind)
	}

	router := buildRouter(cfg, wsHub, sources)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("gateway server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down gateway...")
	close(wsStop)
	for id := range controllers {
		supervisor.StopCamera(id)
	}
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server shutdown error", "error", err)
	}

	slog.Info("gateway stopped")
}

// seedSettings writes the config-derived Settings row once, the first
// time the process runs against an empty settings table; afterward the
// store is authoritative and this is a no-op.
func seedSettings(ctx context.Context, repo store.SettingsRepo, cfg *config.Config) error {
	existing, err := repo.Get(ctx)
	if err == nil && existing != nil {
		return nil
	}
	if err != nil {
		if _, notFound := err.(*store.NotFound); !notFound {
			return fmt.Errorf("gateway: read settings: %w", err)
		}
	}
	seed := cfg.SeedSettings()
	return repo.Update(ctx, &seed)
}

// buildIndex rebuilds the Embedding Index from the identity store at
// startup, choosing the flat or pgvector-ANN family by active identity
// count, per spec.md §4.3.
func buildIndex(ctx context.Context, db *postgres.Store, flatThreshold int) (index.Index, error) {
	active, err := db.Identities().List(ctx, true)
	if err != nil {
		return nil, fmt.Errorf("gateway: list identities: %w", err)
	}

	var idx index.Index
	family := "flat"
	if index.ChooseThreshold(len(active), flatThreshold) {
		idx = flat.New()
	} else {
		idx = pgann.New(db.Pool())
		family = "pgann"
	}

	n, err := index.Rebuild(ctx, idx, db.Identities())
	if err != nil {
		return nil, err
	}
	observability.IdentityIndexSize.Set(float64(n))
	slog.Info("embedding index rebuilt", "identities", n, "family", family)
	return idx, nil
}

// busPublisher fans a DomainEvent out to both the in-process Bus (for the
// local WebSocket hub) and the durable NATS leg (for cross-process
// consumers and replay), matching spec.md's dual-publish requirement for
// C10.
type busPublisher struct {
	bus     *eventbus.Bus
	durable *eventbus.DurableBus
}

func (p busPublisher) Publish(evt eventbus.DomainEvent) {
	p.bus.Publish(evt)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := p.durable.Publish(ctx, evt); err != nil {
		slog.Warn("publish durable event", "type", evt.Type, "error", err)
	}
}

// bridgeToDurable holds one extra in-process subscription open until ctx
// is done, draining and discarding every event it receives. It relays
// nothing to the durable bus: busPublisher already publishes each event
// to both the Bus and the durable leg.
func bridgeToDurable(ctx context.Context, bus *eventbus.Bus, durable *eventbus.DurableBus) {
	// Events are read and dropped here; the durable publish happens in
	// busPublisher.Publish.
	sub := bus.Subscribe()
	go func() {
		defer bus.Unsubscribe(sub)
		for {
			select {
			case <-ctx.Done():
				return
			case _, ok := <-sub.Events():
				if !ok {
					return
				}
			case <-sub.Lagged():
			}
		}
	}()
}

// buildSource constructs the capture.Source appropriate to the camera's
// kind: ffmpeg for anything with a pull-based stream URL, pushed for
// browser-submitted frames.
func buildSource(cam *store.Camera) (capture.Source, error) {
	switch cam.Kind {
	case store.CameraKindBrowser:
		return pushed.New(pushed.Config{CameraID: cam.ID, IdleAfter: 15 * time.Second}), nil
	case store.CameraKindRTSP, store.CameraKindUSB, store.CameraKindFile, store.CameraKindScreen, store.CameraKindBuiltin:
		return ffmpeg.New(ffmpeg.Config{
			CameraID:  cam.ID,
			StreamURL: cam.ConnectionDescriptor,
			FPS:       cam.TargetFPS,
			Width:     cam.TargetWidth,
		}), nil
	default:
		return nil, fmt.Errorf("gateway: unsupported camera kind %q", cam.Kind)
	}
}

// buildRouter assembles the gin router: health/metrics are unauthenticated,
// the WebSocket event stream and browser frame-push endpoint require the
// API key.
func buildRouter(cfg *config.Config, hub *eventbus.WSHub, sources map[uuid.UUID]capture.Source) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(cors.Default())

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := r.Group("/v1", auth.APIKeyMiddleware(cfg.Server.APIKey))
	v1.GET("/ws", hub.HandleWS)
	v1.POST("/cameras/:id/frame", pushFrameHandler(sources))

	return r
}

// pushFrameHandler decodes a JPEG request body and forwards it to the
// named camera's pushed.Source, for browser cameras that submit frames
// over HTTP rather than being pulled by ffmpeg.
func pushFrameHandler(sources map[uuid.UUID]capture.Source) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := uuid.Parse(c.Param("id"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid camera id"})
			return
		}
		src, ok := sources[id].(*pushed.Source)
		if !ok {
			c.JSON(http.StatusNotFound, gin.H{"error": "camera is not a pushed source"})
			return
		}
		img, err := jpeg.Decode(c.Request.Body)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid jpeg body"})
			return
		}
		src.Push(img, time.Now())
		c.Status(http.StatusAccepted)
	}
}

func onnxLibPath() string {
	switch runtime.GOOS {
	case "windows":
		return "onnxruntime.dll"
	case "linux":
		return "libonnxruntime.so"
	case "darwin":
		return "libonnxruntime.dylib"
	default:
		return "onnxruntime.dll"
	}
}
