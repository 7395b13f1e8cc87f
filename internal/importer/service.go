// Package importer runs the asynchronous bulk import pipeline: admission
// control on submission, queued execution against the catalog store, and
// the job-facing operations (status, logs, retry, cancel).
package importer

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/lexcat/lexcat/internal/catalog"
	"github.com/lexcat/lexcat/internal/store"
)

// Store is the persistence surface the pipeline needs. *store.Store
// satisfies it; tests substitute an in-memory fake.
type Store interface {
	CreateJob(ctx context.Context, params store.CreateJobParams) (*store.Job, error)
	GetJob(ctx context.Context, id uuid.UUID) (*store.Job, error)
	GetJobByIdempotencyKey(ctx context.Context, requestedBy uuid.UUID, key string) (*store.Job, error)
	CountActiveJobs(ctx context.Context, requestedBy uuid.UUID) (int, error)
	CountJobsSince(ctx context.Context, requestedBy uuid.UUID, since time.Time) (int, time.Time, error)
	MarkJobRunning(ctx context.Context, id uuid.UUID) (bool, error)
	UpdateJobProgress(ctx context.Context, id uuid.UUID, progress, total int) error
	FinishJob(ctx context.Context, id uuid.UUID, status store.JobStatus, stats store.JobStats) error
	RequestCancel(ctx context.Context, id uuid.UUID) error
	IsCancelRequested(ctx context.Context, id uuid.UUID) (bool, error)
	ForceCancel(ctx context.Context, id uuid.UUID, grace time.Duration) error
	GetPayload(ctx context.Context, jobID uuid.UUID) (string, error)
	AppendJobLog(ctx context.Context, jobID uuid.UUID, level, message string, data map[string]any) error
	ListJobLogs(ctx context.Context, jobID uuid.UUID) ([]store.JobLog, error)

	EnsureNamespace(ctx context.Context, name string) (int64, error)
	EnsureKey(ctx context.Context, namespaceID int64, name string) (int64, error)
	UpsertMessage(ctx context.Context, keyID int64, locale, value string) (*store.UpsertResult, error)
	UpsertOverride(ctx context.Context, orgID uuid.UUID, keyID int64, locale, value string) (*store.UpsertResult, error)
	IncrementVersion(ctx context.Context, scope store.ScopeID) (int64, error)
	AppendAudit(ctx context.Context, e store.AuditEntry) error

	IsMember(ctx context.Context, userID, orgID uuid.UUID) (bool, error)
	EarliestOrg(ctx context.Context, userID uuid.UUID) (uuid.UUID, error)
}

// Actor is the authenticated principal behind a request.
type Actor struct {
	ID    uuid.UUID
	Admin bool
}

// Config holds the pipeline's admission and execution limits.
type Config struct {
	MaxPayloadBytes  int64
	MaxItems         int
	MaxConcurrent    int
	RateWindow       time.Duration
	RateMaxJobs      int
	CheckpointEvery  int
	ForceCancelGrace time.Duration
	Timeout          time.Duration
}

// Dispatcher hands an admitted job to an executor. The default spawns a
// goroutine per job; tests inject a synchronous one.
type Dispatcher func(job *store.Job)

// Service is the import pipeline.
type Service struct {
	store    Store
	cfg      Config
	dispatch Dispatcher
	wg       sync.WaitGroup
}

// New builds the pipeline. A nil dispatcher gets the default
// goroutine-per-job executor with the configured timeout.
func New(st Store, cfg Config, dispatch Dispatcher) *Service {
	s := &Service{store: st, cfg: cfg, dispatch: dispatch}
	if s.dispatch == nil {
		s.dispatch = s.defaultDispatch
	}
	return s
}

func (s *Service) defaultDispatch(job *store.Job) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), s.cfg.Timeout)
		defer cancel()
		s.Run(ctx, job.ID)
	}()
}

// Get returns one job.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*store.Job, error) {
	return s.store.GetJob(ctx, id)
}

// Logs returns a job's log entries in order, verifying the job exists
// first so an unknown id is a 404 rather than an empty list.
func (s *Service) Logs(ctx context.Context, id uuid.UUID) ([]store.JobLog, error) {
	if _, err := s.store.GetJob(ctx, id); err != nil {
		return nil, err
	}
	return s.store.ListJobLogs(ctx, id)
}

// Cancel requests cooperative cancellation. Idempotent; no-op on
// terminal jobs.
func (s *Service) Cancel(ctx context.Context, id uuid.UUID) error {
	return s.store.RequestCancel(ctx, id)
}

// ForceCancel writes the cancelled terminal status once the grace period
// since the cooperative request has elapsed.
func (s *Service) ForceCancel(ctx context.Context, id uuid.UUID) error {
	return s.store.ForceCancel(ctx, id, s.cfg.ForceCancelGrace)
}

// ErrJobNotTerminal is returned by Retry when the source job is still
// queued or running.
var ErrJobNotTerminal = errors.New("job has not finished")

// Retry clones a terminal job's scope, format, and payload into a fresh
// submission. The clone passes the full admission path so retries cannot
// bypass the caps.
func (s *Service) Retry(ctx context.Context, actor Actor, id uuid.UUID) (*store.Job, error) {
	job, err := s.store.GetJob(ctx, id)
	if err != nil {
		return nil, err
	}
	if !job.Status.Terminal() {
		return nil, ErrJobNotTerminal
	}
	if !actor.Admin && actor.ID != job.RequestedBy {
		return nil, &AdmissionError{
			Code:    CodeForbidden,
			Message: "only the original requester or an admin can retry a job",
		}
	}

	payload, err := s.store.GetPayload(ctx, id)
	if err != nil {
		return nil, err
	}

	clone, _, err := s.Submit(ctx, actor, SubmitRequest{
		Scope:   job.Scope,
		OrgID:   job.OrgID,
		Format:  job.Format,
		Payload: []byte(payload),
	})
	return clone, err
}

// Drain waits for in-flight job executions to finish, bounded by ctx.
func (s *Service) Drain(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// versionScope maps a job to the catalog version counter its writes bump.
func versionScope(scope catalog.Scope, orgID *uuid.UUID) store.ScopeID {
	if scope == catalog.ScopeOrg && orgID != nil {
		return store.OrgScope(*orgID)
	}
	return store.GlobalScope
}
