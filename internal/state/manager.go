package state

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/GabrielValdiviaGaboloso/videoyolo/internal/config"
	"github.com/GabrielValdiviaGaboloso/videoyolo/internal/logger"
)

// Manager manages job history persistence and recovery
type Manager struct {
	db     *Database
	logger *logger.Logger
	mu     sync.RWMutex
}

// NewManager opens the configured database
func NewManager(cfg config.DatabaseConfig, log *logger.Logger) (*Manager, error) {
	driver := cfg.Driver
	if driver == "" {
		driver = DriverCGO
	}

	db, err := NewDatabase(driver, cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to create database: %w", err)
	}

	log.Info("Job history database opened", "driver", driver, "path", cfg.Path)

	return &Manager{
		db:     db,
		logger: log,
	}, nil
}

// Close closes the state manager and database
func (m *Manager) Close() error {
	return m.db.Close()
}

// GetDB returns the database connection
func (m *Manager) GetDB() *sql.DB {
	return m.db.GetDB()
}

// Ping checks database connectivity
func (m *Manager) Ping(ctx context.Context) error {
	return m.db.Ping(ctx)
}

// SaveSystemState saves a system state value
func (m *Manager) SaveSystemState(ctx context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	query := `
		INSERT INTO system_state (key, value, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			value = excluded.value,
			updated_at = excluded.updated_at
	`

	_, err := m.db.GetDB().ExecContext(ctx, query, key, value, time.Now().UnixMilli())
	if err != nil {
		return fmt.Errorf("failed to save system state: %w", err)
	}

	return nil
}

// GetSystemState retrieves a system state value
func (m *Manager) GetSystemState(ctx context.Context, key string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var value string
	query := `SELECT value FROM system_state WHERE key = ?`
	err := m.db.GetDB().QueryRowContext(ctx, query, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to get system state: %w", err)
	}

	return value, nil
}

// RecoverState marks jobs left running by a previous process as failed.
// It returns the number of jobs recovered.
func (m *Manager) RecoverState(ctx context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	res, err := m.db.GetDB().ExecContext(ctx,
		`UPDATE jobs SET status = ?, error = ?, finished_at = ? WHERE status = ?`,
		JobStatusFailed, "interrupted by restart", time.Now().UnixMilli(), JobStatusRunning,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to recover jobs: %w", err)
	}

	n, _ := res.RowsAffected()
	if n > 0 {
		m.logger.Warn("Recovered interrupted jobs", "count", n)
	}
	return n, nil
}
