package health

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// HealthChecker is anything that can report its own readiness
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// Pinger is a database connection
type Pinger interface {
	Ping(ctx context.Context) error
}

// SpaceChecker reports whether a filesystem has room
type SpaceChecker interface {
	CheckSpace(ctx context.Context) error
}

// VersionReporter reports a binary version
type VersionReporter interface {
	GetVersion() (string, error)
}

func newCheck(name string) Check {
	return Check{
		Name:      name,
		Timestamp: time.Now(),
		Details:   make(map[string]interface{}),
	}
}

// DetectorChecker checks the object detector backend
type DetectorChecker struct {
	backend  string
	detector HealthChecker
}

func NewDetectorChecker(backend string, detector HealthChecker) *DetectorChecker {
	return &DetectorChecker{backend: backend, detector: detector}
}

func (c *DetectorChecker) Name() string {
	return "detector"
}

func (c *DetectorChecker) Check(ctx context.Context) Check {
	check := newCheck(c.Name())
	check.Details["backend"] = c.backend

	if err := c.detector.HealthCheck(ctx); err != nil {
		check.Status = StatusUnhealthy
		check.Message = fmt.Sprintf("Detector unavailable: %v", err)
		return check
	}

	check.Status = StatusHealthy
	check.Message = "Detector is ready"
	return check
}

// FFmpegChecker checks that the decoder binary runs
type FFmpegChecker struct {
	ffmpeg VersionReporter
}

func NewFFmpegChecker(ffmpeg VersionReporter) *FFmpegChecker {
	return &FFmpegChecker{ffmpeg: ffmpeg}
}

func (c *FFmpegChecker) Name() string {
	return "ffmpeg"
}

func (c *FFmpegChecker) Check(ctx context.Context) Check {
	check := newCheck(c.Name())

	if c.ffmpeg == nil {
		check.Status = StatusUnhealthy
		check.Message = "FFmpeg not found"
		return check
	}

	version, err := c.ffmpeg.GetVersion()
	if err != nil {
		check.Status = StatusUnhealthy
		check.Message = err.Error()
		return check
	}

	check.Status = StatusHealthy
	check.Message = "FFmpeg available"
	check.Details["version"] = version
	return check
}

// ScratchChecker checks the scratch directory is writable and has room
type ScratchChecker struct {
	dir   string
	space SpaceChecker
}

func NewScratchChecker(dir string, space SpaceChecker) *ScratchChecker {
	return &ScratchChecker{dir: dir, space: space}
}

func (c *ScratchChecker) Name() string {
	return "scratch"
}

func (c *ScratchChecker) Check(ctx context.Context) Check {
	check := newCheck(c.Name())
	check.Details["scratch_dir"] = c.dir

	if err := os.MkdirAll(c.dir, 0755); err != nil {
		check.Status = StatusUnhealthy
		check.Message = fmt.Sprintf("Failed to create scratch directory: %v", err)
		return check
	}

	probe, err := os.CreateTemp(c.dir, ".probe-*")
	if err != nil {
		check.Status = StatusUnhealthy
		check.Message = fmt.Sprintf("Scratch directory not writable: %v", err)
		return check
	}
	probe.Close()
	os.Remove(filepath.Clean(probe.Name()))
	check.Details["writable"] = true

	if c.space != nil {
		if err := c.space.CheckSpace(ctx); err != nil {
			check.Status = StatusDegraded
			check.Message = err.Error()
			return check
		}
	}

	check.Status = StatusHealthy
	check.Message = "Scratch directory writable"
	return check
}

// DatabaseChecker checks job history connectivity
type DatabaseChecker struct {
	db Pinger
}

func NewDatabaseChecker(db Pinger) *DatabaseChecker {
	return &DatabaseChecker{db: db}
}

func (c *DatabaseChecker) Name() string {
	return "database"
}

func (c *DatabaseChecker) Check(ctx context.Context) Check {
	check := newCheck(c.Name())

	// history is optional, losing it degrades rather than blocks uploads
	if err := c.db.Ping(ctx); err != nil {
		check.Status = StatusDegraded
		check.Message = fmt.Sprintf("Database ping failed: %v", err)
		return check
	}

	check.Status = StatusHealthy
	check.Message = "Database connection OK"
	return check
}
