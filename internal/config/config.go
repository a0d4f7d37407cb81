package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the application configuration
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Detector   DetectorConfig   `yaml:"detector"`
	Video      VideoConfig      `yaml:"video"`
	Annotation AnnotationConfig `yaml:"annotation"`
	Processing ProcessingConfig `yaml:"processing"`
	Database   DatabaseConfig   `yaml:"database"`
	Publish    PublishConfig    `yaml:"publish"`
	Health     HealthConfig     `yaml:"health"`
	Log        LogConfig        `yaml:"log,omitempty"`
}

// ServerConfig contains the upload API listener configuration
type ServerConfig struct {
	Host         string          `yaml:"host"`
	Port         int             `yaml:"port"`
	ReadTimeout  time.Duration   `yaml:"read_timeout"`
	WriteTimeout time.Duration   `yaml:"write_timeout"`
	MaxUploadMB  int64           `yaml:"max_upload_mb"`
	CORSOrigins  []string        `yaml:"cors_origins"`
	RateLimit    RateLimitConfig `yaml:"rate_limit"`
}

// RateLimitConfig configures the per-client upload limiter. Zero disables it.
type RateLimitConfig struct {
	RequestsPerSecond float64 `yaml:"requests_per_second"`
	Burst             int     `yaml:"burst"`
}

// DetectorConfig contains object detector configuration
type DetectorConfig struct {
	Backend             string        `yaml:"backend"` // "remote" or "dnn"
	ServiceURL          string        `yaml:"service_url"`
	Timeout             time.Duration `yaml:"timeout"`
	ConfidenceThreshold float64       `yaml:"confidence_threshold"`
	IoUThreshold        float64       `yaml:"iou_threshold"`
	MaxDetections       int           `yaml:"max_detections"`
	Retries             int           `yaml:"retries"`
	RetryDelay          time.Duration `yaml:"retry_delay"`
	ModelPath           string        `yaml:"model_path"` // ONNX model for the dnn backend
	InputSize           int           `yaml:"input_size"`
}

// VideoConfig contains frame decoding configuration
type VideoConfig struct {
	Decoder      string `yaml:"decoder"` // "ffmpeg" or "gocv"
	FFmpegPath   string `yaml:"ffmpeg_path"`
	FrameQuality int    `yaml:"frame_quality"` // mjpeg -q:v, 2 (best) to 31
}

// AnnotationConfig contains drawing configuration
type AnnotationConfig struct {
	Thickness   int     `yaml:"thickness"`
	FontSize    float64 `yaml:"font_size"`
	JPEGQuality int     `yaml:"jpeg_quality"`
}

// ProcessingConfig contains per-request workspace configuration
type ProcessingConfig struct {
	ScratchDir      string        `yaml:"scratch_dir"`
	ScratchTTL      time.Duration `yaml:"scratch_ttl"`
	JanitorInterval time.Duration `yaml:"janitor_interval"`
	ProgressEvery   int           `yaml:"progress_every"` // frames between progress events
}

// DatabaseConfig contains job history configuration
type DatabaseConfig struct {
	Enabled       bool   `yaml:"enabled"`
	Driver        string `yaml:"driver"` // "sqlite3" (cgo) or "sqlite" (pure Go)
	Path          string `yaml:"path"`
	RetentionDays int    `yaml:"retention_days"`
}

// PublishConfig contains archive publication configuration
type PublishConfig struct {
	S3 S3Config `yaml:"s3"`
}

// S3Config contains S3 (or S3 compatible) bucket settings
type S3Config struct {
	Enabled         bool   `yaml:"enabled"`
	Bucket          string `yaml:"bucket"`
	Region          string `yaml:"region"`
	Endpoint        string `yaml:"endpoint"`
	Prefix          string `yaml:"prefix"`
	ForcePathStyle  bool   `yaml:"force_path_style"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"` // never logged
}

// HealthConfig contains health probe listener configuration
type HealthConfig struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"`
}

// LogConfig contains logging configuration
type LogConfig struct {
	Level      string `yaml:"level"`
	Format     string `yaml:"format"`
	Output     string `yaml:"output"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
	Compress   bool   `yaml:"compress"`
}

// DefaultCORSOrigins are the front-ends allowed when none are configured.
var DefaultCORSOrigins = []string{
	"http://localhost:4200",
	"http://localhost:8100",
	"http://192.168.0.2:8100",
}

// Load reads and parses the configuration file, then applies defaults and
// environment overrides. An empty configPath falls back to the default
// locations; if none exists the configuration is built from defaults only.
func Load(configPath string) (*Config, error) {
	var cfg Config

	explicit := configPath != ""
	if !explicit {
		configPath = getDefaultConfigPath()
	}

	if configPath != "" {
		if _, err := os.Stat(configPath); os.IsNotExist(err) {
			if explicit {
				return nil, fmt.Errorf("configuration file not found: %s", configPath)
			}
		} else {
			data, err := os.ReadFile(configPath)
			if err != nil {
				return nil, fmt.Errorf("failed to read configuration file: %w", err)
			}
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return nil, fmt.Errorf("failed to parse configuration: %w", err)
			}
		}
	}

	cfg.setDefaults()
	cfg.applyEnv()

	return &cfg, nil
}

// getDefaultConfigPath returns the first existing default configuration path
func getDefaultConfigPath() string {
	paths := []string{
		"./config/config.dev.yaml",
		"./config/config.yaml",
		"../config/config.yaml",
		"/etc/videoyolo/config.yaml",
	}

	for _, path := range paths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}

	return ""
}

// setDefaults sets default values for configuration
func (c *Config) setDefaults() {
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}
	if c.Log.Output == "" {
		c.Log.Output = "stdout"
	}

	if c.Server.Port == 0 {
		c.Server.Port = 8000
	}
	if c.Server.ReadTimeout == 0 {
		c.Server.ReadTimeout = 5 * time.Minute
	}
	if c.Server.MaxUploadMB == 0 {
		c.Server.MaxUploadMB = 512
	}
	if len(c.Server.CORSOrigins) == 0 {
		c.Server.CORSOrigins = append([]string(nil), DefaultCORSOrigins...)
	}
	if c.Server.RateLimit.RequestsPerSecond > 0 && c.Server.RateLimit.Burst == 0 {
		c.Server.RateLimit.Burst = 1
	}

	if c.Detector.Backend == "" {
		c.Detector.Backend = "remote"
	}
	if c.Detector.ServiceURL == "" {
		c.Detector.ServiceURL = "http://localhost:8080"
	}
	if c.Detector.Timeout == 0 {
		c.Detector.Timeout = 30 * time.Second
	}
	if c.Detector.ConfidenceThreshold == 0 {
		c.Detector.ConfidenceThreshold = 0.25
	}
	if c.Detector.IoUThreshold == 0 {
		c.Detector.IoUThreshold = 0.45
	}
	if c.Detector.MaxDetections == 0 {
		c.Detector.MaxDetections = 1000
	}
	if c.Detector.RetryDelay == 0 {
		c.Detector.RetryDelay = 500 * time.Millisecond
	}
	if c.Detector.ModelPath == "" {
		c.Detector.ModelPath = "./models/yolov8s.onnx"
	}
	if c.Detector.InputSize == 0 {
		c.Detector.InputSize = 640
	}

	if c.Video.Decoder == "" {
		c.Video.Decoder = "ffmpeg"
	}
	if c.Video.FrameQuality == 0 {
		c.Video.FrameQuality = 2
	}

	if c.Annotation.Thickness == 0 {
		c.Annotation.Thickness = 2
	}
	if c.Annotation.FontSize == 0 {
		c.Annotation.FontSize = 32
	}
	if c.Annotation.JPEGQuality == 0 {
		c.Annotation.JPEGQuality = 95
	}

	if c.Processing.ScratchDir == "" {
		c.Processing.ScratchDir = filepath.Join(os.TempDir(), "videoyolo")
	}
	if c.Processing.ScratchTTL == 0 {
		c.Processing.ScratchTTL = time.Hour
	}
	if c.Processing.JanitorInterval == 0 {
		c.Processing.JanitorInterval = 10 * time.Minute
	}
	if c.Processing.ProgressEvery == 0 {
		c.Processing.ProgressEvery = 25
	}

	if c.Database.Driver == "" {
		c.Database.Driver = "sqlite3"
	}
	if c.Database.Path == "" {
		c.Database.Path = "./data/videoyolo.db"
	}
	if c.Database.RetentionDays == 0 {
		c.Database.RetentionDays = 30
	}

	if c.Publish.S3.Region == "" {
		c.Publish.S3.Region = "us-east-1"
	}
	if c.Publish.S3.Prefix == "" {
		c.Publish.S3.Prefix = "detections"
	}

	if c.Health.Port == 0 {
		c.Health.Port = 8081
	}
}

// Address returns the host:port the upload API listens on
func (s ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// MaxUploadBytes returns the upload limit in bytes
func (s ServerConfig) MaxUploadBytes() int64 {
	return s.MaxUploadMB << 20
}
