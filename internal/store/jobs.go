package store

// jobs.go covers import jobs, their immutable payloads, and the durable
// counts the admission controller relies on. Status transitions are
// guarded by current-status predicates so concurrent executors cannot
// move a job backwards.

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/lexcat/lexcat/internal/catalog"
)

// JobStatus is the lifecycle state of an import job. Status only moves
// forward: queued -> running -> {done, failed, cancelled}.
type JobStatus string

const (
	JobQueued    JobStatus = "queued"
	JobRunning   JobStatus = "running"
	JobDone      JobStatus = "done"
	JobFailed    JobStatus = "failed"
	JobCancelled JobStatus = "cancelled"
)

// Terminal reports whether the status is an end state.
func (s JobStatus) Terminal() bool {
	return s == JobDone || s == JobFailed || s == JobCancelled
}

// JobStats is the stats blob persisted with a job. On retry the stats
// reflect only that attempt's own pass.
type JobStats struct {
	Total   int    `json:"total"`
	Created int    `json:"created"`
	Updated int    `json:"updated"`
	Error   string `json:"error,omitempty"`
}

// Job is one import job row.
type Job struct {
	ID                uuid.UUID
	Scope             catalog.Scope
	OrgID             *uuid.UUID
	Format            catalog.Format
	Status            JobStatus
	Progress          int
	Total             int
	Stats             JobStats
	IdempotencyKey    *string
	RequestedBy       uuid.UUID
	Attempt           int
	CancelRequestedAt *time.Time
	CreatedAt         time.Time
	StartedAt         *time.Time
	FinishedAt        *time.Time
}

// CancelRequested reports whether cooperative cancellation was asked for.
func (j *Job) CancelRequested() bool {
	return j.CancelRequestedAt != nil
}

const jobColumns = `id, scope, org_id, format, status, progress, total, stats,
	idempotency_key, requested_by, attempt, cancel_requested_at,
	created_at, started_at, finished_at`

// CreateJobParams holds everything needed to persist a new queued job.
type CreateJobParams struct {
	Scope          catalog.Scope
	OrgID          *uuid.UUID
	Format         catalog.Format
	IdempotencyKey *string
	RequestedBy    uuid.UUID
	Payload        string
}

// PayloadStoreError wraps a failure to persist the payload after the job
// row was written; the enclosing transaction rolls both back so a
// payload-less queued job can never be picked up.
type PayloadStoreError struct{ Err error }

func (e *PayloadStoreError) Error() string { return fmt.Sprintf("store payload: %v", e.Err) }
func (e *PayloadStoreError) Unwrap() error { return e.Err }

// CreateJob persists a queued job and its payload atomically. On a
// (requested_by, idempotency_key) collision it returns ErrConflict so
// the caller can re-read the winning job.
func (s *Store) CreateJob(ctx context.Context, params CreateJobParams) (*Job, error) {
	id := uuid.New()
	err := s.inTx(ctx, func(tx DBTX) error {
		_, err := tx.Exec(ctx, `
			INSERT INTO import_jobs (id, scope, org_id, format, status, stats, idempotency_key, requested_by)
			VALUES ($1, $2, $3, $4, $5, '{}', $6, $7)`,
			id, string(params.Scope), params.OrgID, string(params.Format),
			string(JobQueued), params.IdempotencyKey, params.RequestedBy)
		if err != nil {
			if isUniqueViolation(err) {
				return ErrConflict
			}
			return fmt.Errorf("insert job: %w", err)
		}

		_, err = tx.Exec(ctx,
			`INSERT INTO import_payloads (job_id, body) VALUES ($1, $2)`,
			id, params.Payload)
		if err != nil {
			return &PayloadStoreError{Err: err}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s.GetJob(ctx, id)
}

// GetJob fetches one job by id.
func (s *Store) GetJob(ctx context.Context, id uuid.UUID) (*Job, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+jobColumns+` FROM import_jobs WHERE id = $1`, id)
	return scanJob(row)
}

// GetJobByIdempotencyKey looks up the job a (requester, key) pair maps
// to, if any.
func (s *Store) GetJobByIdempotencyKey(ctx context.Context, requestedBy uuid.UUID, key string) (*Job, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+jobColumns+` FROM import_jobs WHERE requested_by = $1 AND idempotency_key = $2`,
		requestedBy, key)
	return scanJob(row)
}

// CountActiveJobs counts a requester's jobs that are queued or running,
// for the concurrency cap. Computed from durable rows so the cap is
// correct across executor instances.
func (s *Store) CountActiveJobs(ctx context.Context, requestedBy uuid.UUID) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM import_jobs
		WHERE requested_by = $1 AND status IN ($2, $3)`,
		requestedBy, string(JobQueued), string(JobRunning)).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count active jobs: %w", err)
	}
	return n, nil
}

// CountJobsSince counts a requester's jobs created within the trailing
// rate-limit window and returns the creation time of the oldest of them,
// used to compute the suggested wait.
func (s *Store) CountJobsSince(ctx context.Context, requestedBy uuid.UUID, since time.Time) (int, time.Time, error) {
	var n int
	var oldest *time.Time
	err := s.pool.QueryRow(ctx, `
		SELECT COUNT(*), MIN(created_at) FROM import_jobs
		WHERE requested_by = $1 AND created_at >= $2`,
		requestedBy, since).Scan(&n, &oldest)
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("count recent jobs: %w", err)
	}
	if oldest == nil {
		return n, time.Time{}, nil
	}
	return n, *oldest, nil
}

// MarkJobRunning transitions queued -> running and bumps the attempt
// counter. Returns false when the job was not queued (already picked up,
// or already terminal).
func (s *Store) MarkJobRunning(ctx context.Context, id uuid.UUID) (bool, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE import_jobs
		SET status = $2, started_at = now(), attempt = attempt + 1
		WHERE id = $1 AND status = $3`,
		id, string(JobRunning), string(JobQueued))
	if err != nil {
		return false, fmt.Errorf("mark job running: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// UpdateJobProgress checkpoints the progress counter and total.
func (s *Store) UpdateJobProgress(ctx context.Context, id uuid.UUID, progress, total int) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE import_jobs SET progress = $2, total = $3 WHERE id = $1`,
		id, progress, total)
	if err != nil {
		return fmt.Errorf("update job progress: %w", err)
	}
	return nil
}

// FinishJob writes a terminal status with final stats. Only a running
// job can finish; a job force-cancelled underneath the executor stays
// cancelled.
func (s *Store) FinishJob(ctx context.Context, id uuid.UUID, status JobStatus, stats JobStats) error {
	blob, err := json.Marshal(stats)
	if err != nil {
		return fmt.Errorf("marshal stats: %w", err)
	}
	_, err = s.pool.Exec(ctx, `
		UPDATE import_jobs
		SET status = $2, stats = $3, progress = $4, total = $5, finished_at = now()
		WHERE id = $1 AND status = $6`,
		id, string(status), blob, stats.Created+stats.Updated, stats.Total, string(JobRunning))
	if err != nil {
		return fmt.Errorf("finish job: %w", err)
	}
	return nil
}

// RequestCancel sets the cooperative cancellation flag. Idempotent; the
// first request's timestamp is kept so the force-cancel grace period is
// measured from the original request.
func (s *Store) RequestCancel(ctx context.Context, id uuid.UUID) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE import_jobs SET cancel_requested_at = now()
		WHERE id = $1 AND cancel_requested_at IS NULL
		  AND status IN ($2, $3)`,
		id, string(JobQueued), string(JobRunning))
	if err != nil {
		return fmt.Errorf("request cancel: %w", err)
	}
	if tag.RowsAffected() == 0 {
		// Already requested or already terminal; both are fine, but a
		// missing job is still an error.
		if _, err := s.GetJob(ctx, id); err != nil {
			return err
		}
	}
	return nil
}

// IsCancelRequested is polled by the executor between batches.
func (s *Store) IsCancelRequested(ctx context.Context, id uuid.UUID) (bool, error) {
	var requested bool
	err := s.pool.QueryRow(ctx,
		`SELECT cancel_requested_at IS NOT NULL FROM import_jobs WHERE id = $1`,
		id).Scan(&requested)
	if err != nil {
		if isNoRows(err) {
			return false, ErrNotFound
		}
		return false, fmt.Errorf("check cancel flag: %w", err)
	}
	return requested, nil
}

// ErrForceCancelNotAllowed is returned when force-cancel preconditions
// are not met: no cooperative request, grace period not elapsed, or the
// job is already terminal.
type ErrForceCancelNotAllowed struct{ Reason string }

func (e *ErrForceCancelNotAllowed) Error() string {
	return "force cancel not allowed: " + e.Reason
}

// ForceCancel unconditionally writes the terminal cancelled status, but
// only after the grace period since the cooperative request has elapsed.
// The time gate keeps operators from racing an executor that is about to
// finish naturally.
func (s *Store) ForceCancel(ctx context.Context, id uuid.UUID, grace time.Duration) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE import_jobs
		SET status = $2, finished_at = now()
		WHERE id = $1
		  AND status IN ($3, $4)
		  AND cancel_requested_at IS NOT NULL
		  AND cancel_requested_at <= now() - $5::interval`,
		id, string(JobCancelled), string(JobQueued), string(JobRunning),
		fmt.Sprintf("%f seconds", grace.Seconds()))
	if err != nil {
		return fmt.Errorf("force cancel: %w", err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}

	job, err := s.GetJob(ctx, id)
	if err != nil {
		return err
	}
	switch {
	case job.Status.Terminal():
		return &ErrForceCancelNotAllowed{Reason: "job already finished"}
	case job.CancelRequestedAt == nil:
		return &ErrForceCancelNotAllowed{Reason: "no cancel request on record"}
	default:
		return &ErrForceCancelNotAllowed{Reason: "grace period has not elapsed"}
	}
}

// GetPayload fetches the raw payload stored with a job, for execution
// and retry.
func (s *Store) GetPayload(ctx context.Context, jobID uuid.UUID) (string, error) {
	var body string
	err := s.pool.QueryRow(ctx,
		`SELECT body FROM import_payloads WHERE job_id = $1`, jobID).Scan(&body)
	if err != nil {
		if isNoRows(err) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("get payload: %w", err)
	}
	return body, nil
}

func scanJob(row interface{ Scan(dest ...any) error }) (*Job, error) {
	var j Job
	var scope, format, status string
	var stats []byte
	err := row.Scan(&j.ID, &scope, &j.OrgID, &format, &status, &j.Progress, &j.Total,
		&stats, &j.IdempotencyKey, &j.RequestedBy, &j.Attempt, &j.CancelRequestedAt,
		&j.CreatedAt, &j.StartedAt, &j.FinishedAt)
	if err != nil {
		if isNoRows(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scan job: %w", err)
	}
	j.Scope = catalog.Scope(scope)
	j.Format = catalog.Format(format)
	j.Status = JobStatus(status)
	if len(stats) > 0 {
		_ = json.Unmarshal(stats, &j.Stats)
	}
	return &j, nil
}
