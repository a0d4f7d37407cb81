package state

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// ErrJobNotFound is returned when a job id is unknown
var ErrJobNotFound = errors.New("job not found")

// Job statuses
const (
	JobStatusRunning   = "running"
	JobStatusCompleted = "completed"
	JobStatusFailed    = "failed"
)

// JobState is the persisted summary of one upload
type JobState struct {
	ID              string     `json:"id"`
	ClassName       string     `json:"class_name"`
	ClassIndex      int        `json:"class_index"`
	FileName        string     `json:"file_name,omitempty"`
	Status          string     `json:"status"`
	FramesScanned   int        `json:"frames_scanned"`
	FramesMatched   int        `json:"frames_matched"`
	Detections      int        `json:"detections"`
	Error           string     `json:"error,omitempty"`
	ArchiveLocation string     `json:"archive_location,omitempty"`
	StartedAt       time.Time  `json:"started_at"`
	FinishedAt      *time.Time `json:"finished_at,omitempty"`
}

// JobOutcome is what FinishJob records
type JobOutcome struct {
	Status          string
	FramesScanned   int
	FramesMatched   int
	Detections      int
	Error           string
	ArchiveLocation string
}

const jobColumns = `id, class_name, class_index, file_name, status, frames_scanned, frames_matched,
	detections, error, archive_location, started_at, finished_at`

// CreateJob inserts a running job
func (m *Manager) CreateJob(ctx context.Context, job JobState) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if job.StartedAt.IsZero() {
		job.StartedAt = time.Now()
	}
	if job.Status == "" {
		job.Status = JobStatusRunning
	}

	query := `
		INSERT INTO jobs (id, class_name, class_index, file_name, status, started_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`
	_, err := m.db.GetDB().ExecContext(ctx, query,
		job.ID, job.ClassName, job.ClassIndex, job.FileName, job.Status, job.StartedAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("failed to create job: %w", err)
	}
	return nil
}

// FinishJob records the outcome of a job
func (m *Manager) FinishJob(ctx context.Context, id string, outcome JobOutcome) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	query := `
		UPDATE jobs SET
			status = ?, frames_scanned = ?, frames_matched = ?, detections = ?,
			error = ?, archive_location = ?, finished_at = ?
		WHERE id = ?
	`
	res, err := m.db.GetDB().ExecContext(ctx, query,
		outcome.Status, outcome.FramesScanned, outcome.FramesMatched, outcome.Detections,
		outcome.Error, outcome.ArchiveLocation, time.Now().UnixMilli(), id,
	)
	if err != nil {
		return fmt.Errorf("failed to finish job: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to finish job: %w", err)
	}
	if n == 0 {
		return ErrJobNotFound
	}
	return nil
}

// GetJob returns one job
func (m *Manager) GetJob(ctx context.Context, id string) (*JobState, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	row := m.db.GetDB().QueryRowContext(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = ?`, id)
	job, err := scanJob(row)
	if err == sql.ErrNoRows {
		return nil, ErrJobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get job: %w", err)
	}
	return job, nil
}

// ListJobs returns the most recent jobs first
func (m *Manager) ListJobs(ctx context.Context, limit int) ([]JobState, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if limit <= 0 {
		limit = 50
	}

	rows, err := m.db.GetDB().QueryContext(ctx,
		`SELECT `+jobColumns+` FROM jobs ORDER BY started_at DESC, id LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}
	defer rows.Close()

	jobs := make([]JobState, 0)
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan job: %w", err)
		}
		jobs = append(jobs, *job)
	}
	return jobs, rows.Err()
}

// PruneJobs deletes finished jobs started before the cutoff
func (m *Manager) PruneJobs(ctx context.Context, before time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	res, err := m.db.GetDB().ExecContext(ctx,
		`DELETE FROM jobs WHERE started_at < ? AND status != ?`,
		before.UnixMilli(), JobStatusRunning,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to prune jobs: %w", err)
	}
	return res.RowsAffected()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanJob(row rowScanner) (*JobState, error) {
	var (
		job      JobState
		started  int64
		finished sql.NullInt64
	)
	err := row.Scan(
		&job.ID, &job.ClassName, &job.ClassIndex, &job.FileName, &job.Status,
		&job.FramesScanned, &job.FramesMatched, &job.Detections,
		&job.Error, &job.ArchiveLocation, &started, &finished,
	)
	if err != nil {
		return nil, err
	}

	job.StartedAt = time.UnixMilli(started)
	if finished.Valid {
		t := time.UnixMilli(finished.Int64)
		job.FinishedAt = &t
	}
	return &job, nil
}
