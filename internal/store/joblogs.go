package store

// joblogs.go is the append-only per-job log. Entries are ordered by
// insertion and never mutated.

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// JobLog is one append-only log entry for an import job.
type JobLog struct {
	ID        int64          `json:"id"`
	JobID     uuid.UUID      `json:"job_id"`
	Level     string         `json:"level"`
	Message   string         `json:"message"`
	Data      map[string]any `json:"data,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// AppendJobLog writes one log entry. Callers treat failures as
// best-effort; a lost log line must not fail the job.
func (s *Store) AppendJobLog(ctx context.Context, jobID uuid.UUID, level, message string, data map[string]any) error {
	var blob []byte
	if data != nil {
		var err error
		if blob, err = json.Marshal(data); err != nil {
			blob = nil
		}
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO import_job_logs (job_id, level, message, data)
		VALUES ($1, $2, $3, $4)`,
		jobID, level, message, blob)
	if err != nil {
		return fmt.Errorf("append job log: %w", err)
	}
	return nil
}

// ListJobLogs returns a job's log entries in insertion order.
func (s *Store) ListJobLogs(ctx context.Context, jobID uuid.UUID) ([]JobLog, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, job_id, level, message, data, created_at
		FROM import_job_logs
		WHERE job_id = $1
		ORDER BY id`, jobID)
	if err != nil {
		return nil, fmt.Errorf("list job logs: %w", err)
	}
	defer rows.Close()

	var logs []JobLog
	for rows.Next() {
		var l JobLog
		var blob []byte
		if err := rows.Scan(&l.ID, &l.JobID, &l.Level, &l.Message, &blob, &l.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan job log: %w", err)
		}
		if len(blob) > 0 {
			_ = json.Unmarshal(blob, &l.Data)
		}
		logs = append(logs, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return logs, nil
}
