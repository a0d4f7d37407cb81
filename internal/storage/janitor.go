// Package storage keeps the scratch area and job history within bounds.
package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/GabrielValdiviaGaboloso/videoyolo/internal/logger"
	"github.com/GabrielValdiviaGaboloso/videoyolo/internal/service"
)

// JobPruner deletes job history older than a cutoff
type JobPruner interface {
	PruneJobs(ctx context.Context, before time.Time) (int64, error)
}

// JanitorConfig contains janitor configuration
type JanitorConfig struct {
	ScratchDir    string
	Prefix        string        // only directories with this prefix are touched
	ScratchTTL    time.Duration // workspaces older than this are leftovers
	Interval      time.Duration
	RetentionDays int
	Pruner        JobPruner // optional
}

// SweepResult reports what one sweep removed
type SweepResult struct {
	RemovedDirs int
	PrunedJobs  int64
}

// Janitor periodically removes abandoned workspaces and expired job history
type Janitor struct {
	*service.ServiceBase

	cfg JanitorConfig

	mu       sync.Mutex
	sweeping bool
	cancel   context.CancelFunc
	done     chan struct{}
}

// NewJanitor creates a new janitor
func NewJanitor(cfg JanitorConfig, log *logger.Logger) *Janitor {
	if cfg.ScratchTTL <= 0 {
		cfg.ScratchTTL = time.Hour
	}
	if cfg.Interval <= 0 {
		cfg.Interval = 10 * time.Minute
	}

	return &Janitor{
		ServiceBase: service.NewServiceBase("scratch-janitor", log),
		cfg:         cfg,
	}
}

// Start runs a sweep immediately and then on every interval
func (j *Janitor) Start(ctx context.Context) error {
	if err := os.MkdirAll(j.cfg.ScratchDir, 0o755); err != nil {
		return fmt.Errorf("failed to create scratch directory: %w", err)
	}

	loopCtx, cancel := context.WithCancel(context.Background())
	j.cancel = cancel
	j.done = make(chan struct{})

	go j.loop(loopCtx)

	j.GetStatus().SetStatus(service.StatusRunning)
	j.LogInfo("Scratch janitor started",
		"scratch_dir", j.cfg.ScratchDir,
		"ttl", j.cfg.ScratchTTL.String(),
		"interval", j.cfg.Interval.String(),
		"retention_days", j.cfg.RetentionDays,
	)
	return nil
}

// Stop stops the sweep loop
func (j *Janitor) Stop(ctx context.Context) error {
	if j.cancel == nil {
		return nil
	}
	j.GetStatus().SetStatus(service.StatusStopping)
	j.cancel()

	select {
	case <-j.done:
	case <-ctx.Done():
		return ctx.Err()
	}

	j.GetStatus().SetStatus(service.StatusStopped)
	return nil
}

func (j *Janitor) loop(ctx context.Context) {
	defer close(j.done)

	ticker := time.NewTicker(j.cfg.Interval)
	defer ticker.Stop()

	for {
		if _, err := j.Sweep(ctx); err != nil {
			j.LogWarn("Sweep failed", "error", err)
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Sweep performs one cleanup pass
func (j *Janitor) Sweep(ctx context.Context) (SweepResult, error) {
	var result SweepResult

	j.mu.Lock()
	if j.sweeping {
		j.mu.Unlock()
		return result, fmt.Errorf("sweep already in progress")
	}
	j.sweeping = true
	j.mu.Unlock()

	defer func() {
		j.mu.Lock()
		j.sweeping = false
		j.mu.Unlock()
	}()

	removed, err := j.removeExpiredWorkspaces(ctx, time.Now().Add(-j.cfg.ScratchTTL))
	result.RemovedDirs = removed
	if err != nil {
		return result, err
	}

	if j.cfg.Pruner != nil && j.cfg.RetentionDays > 0 {
		cutoff := time.Now().AddDate(0, 0, -j.cfg.RetentionDays)
		pruned, err := j.cfg.Pruner.PruneJobs(ctx, cutoff)
		if err != nil {
			return result, fmt.Errorf("failed to prune job history: %w", err)
		}
		result.PrunedJobs = pruned
	}

	if result.RemovedDirs > 0 || result.PrunedJobs > 0 {
		j.LogInfo("Sweep completed", "removed_dirs", result.RemovedDirs, "pruned_jobs", result.PrunedJobs)
		j.PublishEvent(service.EventTypeScratchCleaned, map[string]interface{}{
			"removed_dirs": result.RemovedDirs,
			"pruned_jobs":  result.PrunedJobs,
		})
	}

	return result, nil
}

// removeExpiredWorkspaces deletes workspace directories with no activity since cutoff
func (j *Janitor) removeExpiredWorkspaces(ctx context.Context, cutoff time.Time) (int, error) {
	entries, err := os.ReadDir(j.cfg.ScratchDir)
	if os.IsNotExist(err) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to list scratch directory: %w", err)
	}

	removed := 0
	for _, entry := range entries {
		if ctx.Err() != nil {
			return removed, ctx.Err()
		}
		if !entry.IsDir() || !strings.HasPrefix(entry.Name(), j.cfg.Prefix) {
			continue
		}

		path := filepath.Join(j.cfg.ScratchDir, entry.Name())
		active, err := lastActivity(path)
		if err != nil || !active.Before(cutoff) {
			continue
		}

		if err := os.RemoveAll(path); err != nil {
			j.LogWarn("Failed to remove expired workspace", "path", path, "error", err)
			continue
		}
		removed++
	}

	return removed, nil
}

// lastActivity is the newest mtime of a workspace and its direct
// subdirectories. Frames land in a subdirectory, which leaves the
// workspace's own mtime untouched while a job runs.
func lastActivity(dir string) (time.Time, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return time.Time{}, err
	}
	latest := info.ModTime()

	entries, err := os.ReadDir(dir)
	if err != nil {
		return time.Time{}, err
	}
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		sub, err := entry.Info()
		if err != nil {
			continue
		}
		if sub.ModTime().After(latest) {
			latest = sub.ModTime()
		}
	}
	return latest, nil
}
