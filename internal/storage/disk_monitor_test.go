package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GabrielValdiviaGaboloso/videoyolo/internal/logger"
)

func TestDiskMonitor_GetUsage(t *testing.T) {
	monitor := NewDiskMonitor(t.TempDir(), 80.0, logger.NewNopLogger())

	usage, err := monitor.GetUsage(context.Background())
	require.NoError(t, err)
	assert.Greater(t, usage.TotalBytes, int64(0))
	assert.GreaterOrEqual(t, usage.AvailableBytes, int64(0))
	assert.GreaterOrEqual(t, usage.UsagePercent, 0.0)
	assert.LessOrEqual(t, usage.UsagePercent, 100.0)

	cached, err := monitor.GetUsage(context.Background())
	require.NoError(t, err)
	assert.Equal(t, usage, cached)
}

func TestDiskMonitor_CheckSpace(t *testing.T) {
	monitor := NewDiskMonitor(t.TempDir(), 100.0, logger.NewNopLogger())
	monitor.cachedUsage = &DiskUsage{TotalBytes: 100, UsedBytes: 50, AvailableBytes: 50, UsagePercent: 50}
	monitor.lastCheck = time.Now()
	assert.NoError(t, monitor.CheckSpace(context.Background()))

	monitor.maxUsagePercent = 40
	assert.ErrorContains(t, monitor.CheckSpace(context.Background()), "50.0% full")
}

func TestDiskMonitor_MissingPath(t *testing.T) {
	monitor := NewDiskMonitor(filepath.Join(t.TempDir(), "missing"), 0, logger.NewNopLogger())
	assert.Equal(t, 95.0, monitor.maxUsagePercent)

	_, err := monitor.GetUsage(context.Background())
	assert.Error(t, err)
}
