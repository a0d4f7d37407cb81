package storage

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GabrielValdiviaGaboloso/videoyolo/internal/logger"
	"github.com/GabrielValdiviaGaboloso/videoyolo/internal/service"
)

type fakePruner struct {
	before time.Time
	n      int64
	err    error
}

func (p *fakePruner) PruneJobs(ctx context.Context, before time.Time) (int64, error) {
	p.before = before
	return p.n, p.err
}

func makeWorkspace(t *testing.T, root, name string, age time.Duration) string {
	t.Helper()
	dir := filepath.Join(root, name)
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "detections"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "input.mp4"), []byte("x"), 0o644))
	mtime := time.Now().Add(-age)
	require.NoError(t, os.Chtimes(filepath.Join(dir, "detections"), mtime, mtime))
	require.NoError(t, os.Chtimes(dir, mtime, mtime))
	return dir
}

func TestJanitor_SweepRemovesExpiredWorkspaces(t *testing.T) {
	root := t.TempDir()
	old := makeWorkspace(t, root, "job-old", 2*time.Hour)
	fresh := makeWorkspace(t, root, "job-fresh", time.Minute)
	foreign := makeWorkspace(t, root, "other-old", 5*time.Hour)

	j := NewJanitor(JanitorConfig{ScratchDir: root, Prefix: "job-", ScratchTTL: time.Hour}, logger.NewNopLogger())
	bus := service.NewEventBus(10)
	defer bus.Close()
	j.SetEventBus(bus)
	cleaned := bus.Subscribe(service.EventTypeScratchCleaned)

	result, err := j.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, result.RemovedDirs)

	assert.NoDirExists(t, old)
	assert.DirExists(t, fresh)
	assert.DirExists(t, foreign)

	event := <-cleaned
	assert.Equal(t, 1, event.Data["removed_dirs"])
}

func TestJanitor_SweepKeepsWorkspaceWritingFrames(t *testing.T) {
	root := t.TempDir()
	running := makeWorkspace(t, root, "job-running", 2*time.Hour)

	// a frame written just now touches only the images directory
	require.NoError(t, os.WriteFile(filepath.Join(running, "detections", "frame_900.jpg"), []byte("x"), 0o644))
	old := time.Now().Add(-2 * time.Hour)
	require.NoError(t, os.Chtimes(running, old, old))

	j := NewJanitor(JanitorConfig{ScratchDir: root, Prefix: "job-", ScratchTTL: time.Hour}, logger.NewNopLogger())
	result, err := j.Sweep(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 0, result.RemovedDirs)
	assert.DirExists(t, running)
}

func TestJanitor_SweepPrunesJobs(t *testing.T) {
	pruner := &fakePruner{n: 4}
	j := NewJanitor(JanitorConfig{
		ScratchDir:    t.TempDir(),
		Prefix:        "job-",
		RetentionDays: 30,
		Pruner:        pruner,
	}, logger.NewNopLogger())

	result, err := j.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(4), result.PrunedJobs)
	assert.WithinDuration(t, time.Now().AddDate(0, 0, -30), pruner.before, time.Minute)
}

func TestJanitor_SweepPruneError(t *testing.T) {
	j := NewJanitor(JanitorConfig{
		ScratchDir:    t.TempDir(),
		RetentionDays: 1,
		Pruner:        &fakePruner{err: errors.New("database is locked")},
	}, logger.NewNopLogger())

	_, err := j.Sweep(context.Background())
	assert.ErrorContains(t, err, "database is locked")
}

func TestJanitor_SweepMissingScratchDir(t *testing.T) {
	j := NewJanitor(JanitorConfig{ScratchDir: filepath.Join(t.TempDir(), "absent")}, logger.NewNopLogger())

	result, err := j.Sweep(context.Background())
	require.NoError(t, err)
	assert.Zero(t, result.RemovedDirs)
}

func TestJanitor_StartStop(t *testing.T) {
	root := filepath.Join(t.TempDir(), "scratch")
	j := NewJanitor(JanitorConfig{ScratchDir: root, Prefix: "job-", Interval: time.Hour}, logger.NewNopLogger())

	require.NoError(t, j.Start(context.Background()))
	assert.DirExists(t, root)
	assert.True(t, j.GetStatus().IsRunning())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, j.Stop(ctx))
	assert.Equal(t, service.StatusStopped, j.GetStatus().GetStatus())
}

func TestNewJanitor_Defaults(t *testing.T) {
	j := NewJanitor(JanitorConfig{}, logger.NewNopLogger())
	assert.Equal(t, time.Hour, j.cfg.ScratchTTL)
	assert.Equal(t, 10*time.Minute, j.cfg.Interval)
}
