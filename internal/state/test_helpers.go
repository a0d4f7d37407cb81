package state

import (
	"path/filepath"
	"testing"

	"github.com/GabrielValdiviaGaboloso/videoyolo/internal/config"
	"github.com/GabrielValdiviaGaboloso/videoyolo/internal/logger"
)

func setupTestManager(t *testing.T) *Manager {
	cfg := config.DatabaseConfig{
		Enabled: true,
		Driver:  DriverPureGo,
		Path:    filepath.Join(t.TempDir(), "db", "jobs.db"),
	}

	mgr, err := NewManager(cfg, logger.NewNopLogger())
	if err != nil {
		t.Fatalf("Failed to create manager: %v", err)
	}
	t.Cleanup(func() { mgr.Close() })

	return mgr
}
