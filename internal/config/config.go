package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/your-org/faceguard/internal/store"
)

type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	NATS      NATSConfig      `yaml:"nats"`
	MinIO     MinIOConfig     `yaml:"minio"`
	Vision    VisionConfig    `yaml:"vision"`
	Tracking  TrackingConfig  `yaml:"tracking"`
	Logging   LoggingConfig   `yaml:"logging"`
	Detection DetectionConfig `yaml:"detection"`
	Recording RecordingConfig `yaml:"recording"`
	Index     IndexConfig     `yaml:"index"`
	DataDir   string          `yaml:"data_dir"`
}

type ServerConfig struct {
	Port   int    `yaml:"port"`
	APIKey string `yaml:"api_key"`
}

type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	MaxConns int    `yaml:"max_conns"`
	// URL, when set (from DATABASE_URL), is used verbatim by DSN instead
	// of assembling one from the discrete fields above. cmd/gateway does
	// not call DSN: it builds postgres.Config from the discrete fields, so
	// URL does not affect the gateway's database connection.
	URL string `yaml:"url"`
}

func (d DatabaseConfig) DSN() string {
	if d.URL != "" {
		return d.URL
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable",
		d.User, d.Password, d.Host, d.Port, d.Name)
}

// DetectionConfig seeds the detection side of the durable Settings
// singleton (store.DetectionConfig) the first time the process runs
// against an empty settings table. Once the row exists, the durable
// store — not this config — is the live source of truth; the pipeline
// re-reads Settings every frame per spec.md §3.
type DetectionConfig struct {
	MinConfidence        float64 `yaml:"min_confidence"`
	MatchThreshold       float64 `yaml:"match_threshold"`
	SightingCooldownSecs int     `yaml:"sighting_cooldown_secs"`
	MotionEnabled        bool    `yaml:"motion_enabled"`
	ProcessEveryNFrames  int     `yaml:"process_every_n_frames"`
	MinFaceSizePx        int     `yaml:"min_face_size_px"`
	MaxFacesPerFrame     int     `yaml:"max_faces_per_frame"`
}

// RecordingConfig seeds the recording side of the durable Settings
// singleton (store.RecordingConfig), same caveat as DetectionConfig.
type RecordingConfig struct {
	DetectionTriggered   bool    `yaml:"detection_triggered"`
	PreTriggerSecs       int     `yaml:"pre_trigger_secs"`
	PostTriggerSecs      int     `yaml:"post_trigger_secs"`
	MaxSegmentSecs       int     `yaml:"max_segment_secs"`
	MaxStorageBytes      int64   `yaml:"max_storage_bytes"`
	AutoCleanup          bool    `yaml:"auto_cleanup"`
	CleanupTargetPercent float64 `yaml:"cleanup_target_percent"`
	MinRetentionDays     int     `yaml:"min_retention_days"`
}

// IndexConfig configures the Embedding Index's flat-vs-ANN selection.
type IndexConfig struct {
	FlatThreshold int `yaml:"flat_threshold"`
}

type NATSConfig struct {
	URL string `yaml:"url"`
}

type MinIOConfig struct {
	Endpoint  string `yaml:"endpoint"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	Bucket    string `yaml:"bucket"`
	UseSSL    bool   `yaml:"use_ssl"`
}

type VisionConfig struct {
	ModelsDir            string  `yaml:"models_dir"`
	DetectionThreshold   float64 `yaml:"detection_threshold"`
	RecognitionThreshold float64 `yaml:"recognition_threshold"`
	DefaultFPS           int     `yaml:"default_fps"`
	MaxFPS               int     `yaml:"max_fps"`
	WorkerCount          int     `yaml:"worker_count"`
	FrameWidth           int     `yaml:"frame_width"`
	EmbeddingDim         int     `yaml:"embedding_dim"`
	EmbedBatchMax        int     `yaml:"embed_batch_max"`
	IntraOpThreads       int     `yaml:"intra_op_threads"`
	InterOpThreads       int     `yaml:"inter_op_threads"`
	AttributesEnabled    bool    `yaml:"attributes_enabled"`
}

type TrackingConfig struct {
	MaxAge              int           `yaml:"max_age"`
	MinHits             int           `yaml:"min_hits"`
	ReRecognizeInterval time.Duration `yaml:"re_recognize_interval"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Load reads config from YAML file and applies environment variable overrides.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	applyEnvOverrides(cfg)
	setDefaults(cfg)

	return cfg, nil
}

func setDefaults(cfg *Config) {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Database.Port == 0 {
		cfg.Database.Port = 5432
	}
	if cfg.Database.MaxConns == 0 {
		cfg.Database.MaxConns = 20
	}
	if cfg.Vision.DefaultFPS == 0 {
		cfg.Vision.DefaultFPS = 5
	}
	if cfg.Vision.MaxFPS == 0 {
		cfg.Vision.MaxFPS = 10
	}
	if cfg.Vision.WorkerCount == 0 {
		cfg.Vision.WorkerCount = 6
	}
	if cfg.Vision.FrameWidth == 0 {
		cfg.Vision.FrameWidth = 640
	}
	if cfg.Vision.DetectionThreshold == 0 {
		cfg.Vision.DetectionThreshold = 0.5
	}
	if cfg.Vision.RecognitionThreshold == 0 {
		cfg.Vision.RecognitionThreshold = 0.4
	}
	if cfg.Tracking.MaxAge == 0 {
		cfg.Tracking.MaxAge = 30
	}
	if cfg.Tracking.MinHits == 0 {
		cfg.Tracking.MinHits = 3
	}
	if cfg.Tracking.ReRecognizeInterval == 0 {
		cfg.Tracking.ReRecognizeInterval = 3 * time.Second
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
	if cfg.Vision.EmbeddingDim == 0 {
		cfg.Vision.EmbeddingDim = 512
	}
	if cfg.Vision.EmbedBatchMax == 0 {
		cfg.Vision.EmbedBatchMax = 8
	}
	if cfg.DataDir == "" {
		cfg.DataDir = "./data"
	}
	if cfg.Index.FlatThreshold == 0 {
		cfg.Index.FlatThreshold = 2000
	}

	if cfg.Detection.MinConfidence == 0 {
		cfg.Detection.MinConfidence = 0.7
	}
	if cfg.Detection.MatchThreshold == 0 {
		cfg.Detection.MatchThreshold = 0.4
	}
	if cfg.Detection.SightingCooldownSecs == 0 {
		cfg.Detection.SightingCooldownSecs = 30
	}
	if cfg.Detection.ProcessEveryNFrames == 0 {
		cfg.Detection.ProcessEveryNFrames = 3
	}
	if cfg.Detection.MinFaceSizePx == 0 {
		cfg.Detection.MinFaceSizePx = 40
	}
	if cfg.Detection.MaxFacesPerFrame == 0 {
		cfg.Detection.MaxFacesPerFrame = 10
	}

	if cfg.Recording.PreTriggerSecs == 0 {
		cfg.Recording.PreTriggerSecs = 5
	}
	if cfg.Recording.PostTriggerSecs == 0 {
		cfg.Recording.PostTriggerSecs = 10
	}
	if cfg.Recording.MaxSegmentSecs == 0 {
		cfg.Recording.MaxSegmentSecs = 600
	}
	if cfg.Recording.MaxStorageBytes == 0 {
		cfg.Recording.MaxStorageBytes = 50 * 1024 * 1024 * 1024
	}
	if cfg.Recording.CleanupTargetPercent == 0 {
		cfg.Recording.CleanupTargetPercent = 80
	}
	if cfg.Recording.MinRetentionDays == 0 {
		cfg.Recording.MinRetentionDays = 30
	}
}

// SeedSettings builds the durable Settings row this config would bootstrap
// a fresh deployment with, for SettingsRepo.Update on first run only —
// once the row exists the store is authoritative, never this config.
func (c *Config) SeedSettings() store.Settings {
	return store.Settings{
		Detection: store.DetectionConfig{
			MinConfidence:        c.Detection.MinConfidence,
			MatchThreshold:       c.Detection.MatchThreshold,
			SightingCooldownSecs: c.Detection.SightingCooldownSecs,
			MotionEnabled:        c.Detection.MotionEnabled,
			ProcessEveryNFrames:  c.Detection.ProcessEveryNFrames,
			MinFaceSizePx:        c.Detection.MinFaceSizePx,
			MaxFacesPerFrame:     c.Detection.MaxFacesPerFrame,
		},
		Recording: store.RecordingConfig{
			DetectionTriggered:   c.Recording.DetectionTriggered,
			PreTriggerSecs:       c.Recording.PreTriggerSecs,
			PostTriggerSecs:      c.Recording.PostTriggerSecs,
			MaxSegmentSecs:       c.Recording.MaxSegmentSecs,
			MaxStorageBytes:      c.Recording.MaxStorageBytes,
			AutoCleanup:          c.Recording.AutoCleanup,
			CleanupTargetPercent: c.Recording.CleanupTargetPercent,
			MinRetentionDays:     c.Recording.MinRetentionDays,
		},
	}
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("FD_SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("FD_API_KEY"); v != "" {
		cfg.Server.APIKey = v
	}
	if v := os.Getenv("FD_DB_HOST"); v != "" {
		cfg.Database.Host = v
	}
	if v := os.Getenv("FD_DB_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Database.Port = port
		}
	}
	if v := os.Getenv("FD_DB_NAME"); v != "" {
		cfg.Database.Name = v
	}
	if v := os.Getenv("FD_DB_USER"); v != "" {
		cfg.Database.User = v
	}
	if v := os.Getenv("FD_DB_PASSWORD"); v != "" {
		cfg.Database.Password = v
	}
	if v := os.Getenv("FD_NATS_URL"); v != "" {
		cfg.NATS.URL = v
	}
	if v := os.Getenv("FD_MINIO_ENDPOINT"); v != "" {
		cfg.MinIO.Endpoint = v
	}
	if v := os.Getenv("FD_MINIO_ACCESS_KEY"); v != "" {
		cfg.MinIO.AccessKey = v
	}
	if v := os.Getenv("FD_MINIO_SECRET_KEY"); v != "" {
		cfg.MinIO.SecretKey = v
	}
	if v := os.Getenv("FD_MINIO_BUCKET"); v != "" {
		cfg.MinIO.Bucket = v
	}
	if v := os.Getenv("FD_MODELS_DIR"); v != "" {
		cfg.Vision.ModelsDir = v
	}
	if v := os.Getenv("FD_VISION_WORKER_COUNT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Vision.WorkerCount = n
		}
	}
	if v := os.Getenv("ATTRIBUTES_ENABLED"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Vision.AttributesEnabled = b
		}
	}

	// spec.md §6 core-relevant environment variables.
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.Database.URL = v
	}
	if v := os.Getenv("DATA_DIR"); v != "" {
		cfg.DataDir = v
	}
	if v := os.Getenv("EMBEDDING_DIM"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Vision.EmbeddingDim = n
		}
	}
	if v := os.Getenv("MIN_CONFIDENCE"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Detection.MinConfidence = f
		}
	}
	if v := os.Getenv("MATCH_THRESHOLD"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Detection.MatchThreshold = f
		}
	}
	if v := os.Getenv("PROCESS_EVERY_N_FRAMES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Detection.ProcessEveryNFrames = n
		}
	}
	if v := os.Getenv("PRE_TRIGGER_SECS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Recording.PreTriggerSecs = n
		}
	}
	if v := os.Getenv("POST_TRIGGER_SECS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Recording.PostTriggerSecs = n
		}
	}
	if v := os.Getenv("MAX_SEGMENT_SECS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Recording.MaxSegmentSecs = n
		}
	}
	if v := os.Getenv("MAX_STORAGE_BYTES"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.Recording.MaxStorageBytes = n
		}
	}
	if v := os.Getenv("AUTO_CLEANUP"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Recording.AutoCleanup = b
		}
	}
	if v := os.Getenv("CLEANUP_TARGET_PERCENT"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Recording.CleanupTargetPercent = f
		}
	}
	if v := os.Getenv("MIN_RETENTION_DAYS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Recording.MinRetentionDays = n
		}
	}
}
