package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "VIDEOYOLO_"

// LoadDotEnv loads variables from the given .env files into the process
// environment. Missing files are ignored; variables already set win.
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}

	existing := make([]string, 0, len(files))
	for _, f := range files {
		if _, err := os.Stat(f); err == nil {
			existing = append(existing, f)
		}
	}
	if len(existing) == 0 {
		return nil
	}

	return godotenv.Load(existing...)
}

// applyEnv overrides file values with VIDEOYOLO_* environment variables
func (c *Config) applyEnv() {
	c.Server.Host = getEnv("SERVER_HOST", c.Server.Host)
	c.Server.Port = getEnvAsInt("SERVER_PORT", c.Server.Port)
	c.Server.MaxUploadMB = int64(getEnvAsInt("SERVER_MAX_UPLOAD_MB", int(c.Server.MaxUploadMB)))
	if origins := getEnv("SERVER_CORS_ORIGINS", ""); origins != "" {
		c.Server.CORSOrigins = splitList(origins)
	}

	c.Detector.Backend = getEnv("DETECTOR_BACKEND", c.Detector.Backend)
	c.Detector.ServiceURL = getEnv("DETECTOR_URL", c.Detector.ServiceURL)
	c.Detector.ModelPath = getEnv("DETECTOR_MODEL_PATH", c.Detector.ModelPath)
	c.Detector.ConfidenceThreshold = getEnvAsFloat("DETECTOR_CONFIDENCE", c.Detector.ConfidenceThreshold)
	c.Detector.Timeout = getEnvAsDuration("DETECTOR_TIMEOUT", c.Detector.Timeout)

	c.Video.Decoder = getEnv("VIDEO_DECODER", c.Video.Decoder)
	c.Video.FFmpegPath = getEnv("FFMPEG_PATH", c.Video.FFmpegPath)

	c.Processing.ScratchDir = getEnv("SCRATCH_DIR", c.Processing.ScratchDir)

	c.Database.Enabled = getEnvAsBool("DATABASE_ENABLED", c.Database.Enabled)
	c.Database.Driver = getEnv("DATABASE_DRIVER", c.Database.Driver)
	c.Database.Path = getEnv("DATABASE_PATH", c.Database.Path)

	c.Publish.S3.Enabled = getEnvAsBool("S3_ENABLED", c.Publish.S3.Enabled)
	c.Publish.S3.Bucket = getEnv("S3_BUCKET", c.Publish.S3.Bucket)
	c.Publish.S3.Region = getEnv("S3_REGION", c.Publish.S3.Region)
	c.Publish.S3.Endpoint = getEnv("S3_ENDPOINT", c.Publish.S3.Endpoint)
	c.Publish.S3.AccessKeyID = getEnv("S3_ACCESS_KEY_ID", c.Publish.S3.AccessKeyID)
	c.Publish.S3.SecretAccessKey = getEnv("S3_SECRET_ACCESS_KEY", c.Publish.S3.SecretAccessKey)

	c.Health.Enabled = getEnvAsBool("HEALTH_ENABLED", c.Health.Enabled)
	c.Health.Port = getEnvAsInt("HEALTH_PORT", c.Health.Port)

	c.Log.Level = getEnv("LOG_LEVEL", c.Log.Level)
	c.Log.Format = getEnv("LOG_FORMAT", c.Log.Format)
	c.Log.Output = getEnv("LOG_OUTPUT", c.Log.Output)
}

func getEnv(key, defaultValue string) string {
	if value, ok := os.LookupEnv(EnvPrefix + key); ok && value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value, err := strconv.Atoi(getEnv(key, "")); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value, err := strconv.ParseFloat(getEnv(key, ""), 64); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value, err := strconv.ParseBool(getEnv(key, "")); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value, err := time.ParseDuration(getEnv(key, "")); err == nil {
		return value
	}
	return defaultValue
}

func splitList(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
