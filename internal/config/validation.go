package config

import (
	"fmt"
	"net/url"
	"strings"
)

// Validate validates the configuration with detailed error messages
func (c *Config) Validate() error {
	var errors []string

	validLogLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true, "fatal": true,
	}
	if !validLogLevels[strings.ToLower(c.Log.Level)] {
		errors = append(errors, fmt.Sprintf("invalid log.level: %s (must be: debug, info, warn, error, fatal)", c.Log.Level))
	}
	if c.Log.Format != "text" && c.Log.Format != "json" {
		errors = append(errors, fmt.Sprintf("invalid log.format: %s (must be: text or json)", c.Log.Format))
	}

	if c.Server.Port < 0 || c.Server.Port > 65535 {
		errors = append(errors, fmt.Sprintf("server.port must be between 0 and 65535, got: %d", c.Server.Port))
	}
	if c.Server.MaxUploadMB <= 0 {
		errors = append(errors, fmt.Sprintf("server.max_upload_mb must be > 0, got: %d", c.Server.MaxUploadMB))
	}
	if c.Server.RateLimit.RequestsPerSecond < 0 {
		errors = append(errors, fmt.Sprintf("server.rate_limit.requests_per_second must be >= 0, got: %.2f", c.Server.RateLimit.RequestsPerSecond))
	}

	switch c.Detector.Backend {
	case "remote":
		if c.Detector.ServiceURL == "" {
			errors = append(errors, "detector.service_url is required for the remote backend")
		} else if u, err := url.Parse(c.Detector.ServiceURL); err != nil || u.Scheme == "" || u.Host == "" {
			errors = append(errors, fmt.Sprintf("detector.service_url is not a valid URL: %s", c.Detector.ServiceURL))
		}
	case "dnn":
		if c.Detector.ModelPath == "" {
			errors = append(errors, "detector.model_path is required for the dnn backend")
		}
		if c.Detector.InputSize <= 0 || c.Detector.InputSize%32 != 0 {
			errors = append(errors, fmt.Sprintf("detector.input_size must be a positive multiple of 32, got: %d", c.Detector.InputSize))
		}
	default:
		errors = append(errors, fmt.Sprintf("invalid detector.backend: %s (must be: remote or dnn)", c.Detector.Backend))
	}

	if c.Detector.ConfidenceThreshold < 0 || c.Detector.ConfidenceThreshold > 1 {
		errors = append(errors, fmt.Sprintf("detector.confidence_threshold must be between 0 and 1, got: %.2f", c.Detector.ConfidenceThreshold))
	}
	if c.Detector.IoUThreshold < 0 || c.Detector.IoUThreshold > 1 {
		errors = append(errors, fmt.Sprintf("detector.iou_threshold must be between 0 and 1, got: %.2f", c.Detector.IoUThreshold))
	}
	if c.Detector.MaxDetections <= 0 {
		errors = append(errors, fmt.Sprintf("detector.max_detections must be > 0, got: %d", c.Detector.MaxDetections))
	}
	if c.Detector.Retries < 0 {
		errors = append(errors, fmt.Sprintf("detector.retries must be >= 0, got: %d", c.Detector.Retries))
	}

	if c.Video.Decoder != "ffmpeg" && c.Video.Decoder != "gocv" {
		errors = append(errors, fmt.Sprintf("invalid video.decoder: %s (must be: ffmpeg or gocv)", c.Video.Decoder))
	}
	if c.Video.FrameQuality < 2 || c.Video.FrameQuality > 31 {
		errors = append(errors, fmt.Sprintf("video.frame_quality must be between 2 and 31, got: %d", c.Video.FrameQuality))
	}

	if c.Annotation.Thickness <= 0 {
		errors = append(errors, fmt.Sprintf("annotation.thickness must be > 0, got: %d", c.Annotation.Thickness))
	}
	if c.Annotation.FontSize <= 0 {
		errors = append(errors, fmt.Sprintf("annotation.font_size must be > 0, got: %.1f", c.Annotation.FontSize))
	}
	if c.Annotation.JPEGQuality < 1 || c.Annotation.JPEGQuality > 100 {
		errors = append(errors, fmt.Sprintf("annotation.jpeg_quality must be between 1 and 100, got: %d", c.Annotation.JPEGQuality))
	}

	if c.Processing.ScratchDir == "" {
		errors = append(errors, "processing.scratch_dir is required")
	}
	if c.Processing.ProgressEvery < 0 {
		errors = append(errors, fmt.Sprintf("processing.progress_every must be >= 0, got: %d", c.Processing.ProgressEvery))
	}

	if c.Database.Enabled {
		if c.Database.Driver != "sqlite3" && c.Database.Driver != "sqlite" {
			errors = append(errors, fmt.Sprintf("invalid database.driver: %s (must be: sqlite3 or sqlite)", c.Database.Driver))
		}
		if c.Database.Path == "" {
			errors = append(errors, "database.path is required when the database is enabled")
		}
	}
	if c.Database.RetentionDays < 0 {
		errors = append(errors, fmt.Sprintf("database.retention_days must be >= 0, got: %d", c.Database.RetentionDays))
	}

	if c.Publish.S3.Enabled && c.Publish.S3.Bucket == "" {
		errors = append(errors, "publish.s3.bucket is required when S3 publishing is enabled")
	}

	if c.Health.Enabled && (c.Health.Port <= 0 || c.Health.Port > 65535) {
		errors = append(errors, fmt.Sprintf("health.port must be between 1 and 65535, got: %d", c.Health.Port))
	}
	if c.Health.Enabled && c.Health.Port == c.Server.Port {
		errors = append(errors, fmt.Sprintf("health.port (%d) must differ from server.port", c.Health.Port))
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed:\n  - %s", strings.Join(errors, "\n  - "))
	}

	return nil
}
