package importer

// fake_store_test.go is an in-memory Store used by the pipeline tests.
// It mirrors the real store's transition guards (status predicates,
// idempotency conflicts, the force-cancel grace gate) closely enough to
// exercise the pipeline without a database.

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/lexcat/lexcat/internal/store"
)

type fakeMembership struct {
	orgID    uuid.UUID
	joinedAt time.Time
}

type fakeStore struct {
	mu sync.Mutex

	jobs     map[uuid.UUID]*store.Job
	payloads map[uuid.UUID]string
	logs     map[uuid.UUID][]store.JobLog

	nsIDs    map[string]int64
	keyIDs   map[string]int64
	messages map[string]string
	override map[string]string
	versions map[store.ScopeID]int64
	audits   []store.AuditEntry
	members  map[uuid.UUID][]fakeMembership

	nextID int64

	// upsertErrAfter, when positive, fails the Nth value upsert.
	upsertErrAfter int
	upsertCalls    int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		jobs:     make(map[uuid.UUID]*store.Job),
		payloads: make(map[uuid.UUID]string),
		logs:     make(map[uuid.UUID][]store.JobLog),
		nsIDs:    make(map[string]int64),
		keyIDs:   make(map[string]int64),
		messages: make(map[string]string),
		override: make(map[string]string),
		versions: make(map[store.ScopeID]int64),
		members:  make(map[uuid.UUID][]fakeMembership),
	}
}

func (f *fakeStore) CreateJob(_ context.Context, params store.CreateJobParams) (*store.Job, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if params.IdempotencyKey != nil {
		for _, j := range f.jobs {
			if j.RequestedBy == params.RequestedBy && j.IdempotencyKey != nil &&
				*j.IdempotencyKey == *params.IdempotencyKey {
				return nil, store.ErrConflict
			}
		}
	}

	job := &store.Job{
		ID:             uuid.New(),
		Scope:          params.Scope,
		OrgID:          params.OrgID,
		Format:         params.Format,
		Status:         store.JobQueued,
		IdempotencyKey: params.IdempotencyKey,
		RequestedBy:    params.RequestedBy,
		CreatedAt:      time.Now(),
	}
	f.jobs[job.ID] = job
	f.payloads[job.ID] = params.Payload
	copied := *job
	return &copied, nil
}

func (f *fakeStore) GetJob(_ context.Context, id uuid.UUID) (*store.Job, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	job, ok := f.jobs[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	copied := *job
	return &copied, nil
}

func (f *fakeStore) GetJobByIdempotencyKey(_ context.Context, requestedBy uuid.UUID, key string) (*store.Job, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, j := range f.jobs {
		if j.RequestedBy == requestedBy && j.IdempotencyKey != nil && *j.IdempotencyKey == key {
			copied := *j
			return &copied, nil
		}
	}
	return nil, store.ErrNotFound
}

func (f *fakeStore) CountActiveJobs(_ context.Context, requestedBy uuid.UUID) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, j := range f.jobs {
		if j.RequestedBy == requestedBy && !j.Status.Terminal() {
			n++
		}
	}
	return n, nil
}

func (f *fakeStore) CountJobsSince(_ context.Context, requestedBy uuid.UUID, since time.Time) (int, time.Time, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	var oldest time.Time
	for _, j := range f.jobs {
		if j.RequestedBy == requestedBy && !j.CreatedAt.Before(since) {
			n++
			if oldest.IsZero() || j.CreatedAt.Before(oldest) {
				oldest = j.CreatedAt
			}
		}
	}
	return n, oldest, nil
}

func (f *fakeStore) MarkJobRunning(_ context.Context, id uuid.UUID) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	job, ok := f.jobs[id]
	if !ok || job.Status != store.JobQueued {
		return false, nil
	}
	now := time.Now()
	job.Status = store.JobRunning
	job.Attempt++
	job.StartedAt = &now
	return true, nil
}

func (f *fakeStore) UpdateJobProgress(_ context.Context, id uuid.UUID, progress, total int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if job, ok := f.jobs[id]; ok {
		job.Progress = progress
		job.Total = total
	}
	return nil
}

func (f *fakeStore) FinishJob(_ context.Context, id uuid.UUID, status store.JobStatus, stats store.JobStats) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	job, ok := f.jobs[id]
	if !ok || job.Status != store.JobRunning {
		return nil
	}
	now := time.Now()
	job.Status = status
	job.Stats = stats
	job.Progress = stats.Created + stats.Updated
	job.Total = stats.Total
	job.FinishedAt = &now
	return nil
}

func (f *fakeStore) RequestCancel(_ context.Context, id uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	job, ok := f.jobs[id]
	if !ok {
		return store.ErrNotFound
	}
	if job.CancelRequestedAt == nil && !job.Status.Terminal() {
		now := time.Now()
		job.CancelRequestedAt = &now
	}
	return nil
}

func (f *fakeStore) IsCancelRequested(_ context.Context, id uuid.UUID) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	job, ok := f.jobs[id]
	if !ok {
		return false, store.ErrNotFound
	}
	return job.CancelRequestedAt != nil, nil
}

func (f *fakeStore) ForceCancel(_ context.Context, id uuid.UUID, grace time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	job, ok := f.jobs[id]
	if !ok {
		return store.ErrNotFound
	}
	switch {
	case job.Status.Terminal():
		return &store.ErrForceCancelNotAllowed{Reason: "job already finished"}
	case job.CancelRequestedAt == nil:
		return &store.ErrForceCancelNotAllowed{Reason: "no cancel request on record"}
	case time.Since(*job.CancelRequestedAt) < grace:
		return &store.ErrForceCancelNotAllowed{Reason: "grace period has not elapsed"}
	}
	now := time.Now()
	job.Status = store.JobCancelled
	job.FinishedAt = &now
	return nil
}

func (f *fakeStore) GetPayload(_ context.Context, jobID uuid.UUID) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	body, ok := f.payloads[jobID]
	if !ok {
		return "", store.ErrNotFound
	}
	return body, nil
}

func (f *fakeStore) AppendJobLog(_ context.Context, jobID uuid.UUID, level, message string, data map[string]any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.logs[jobID] = append(f.logs[jobID], store.JobLog{
		ID: int64(len(f.logs[jobID]) + 1), JobID: jobID,
		Level: level, Message: message, Data: data, CreatedAt: time.Now(),
	})
	return nil
}

func (f *fakeStore) ListJobLogs(_ context.Context, jobID uuid.UUID) ([]store.JobLog, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]store.JobLog(nil), f.logs[jobID]...), nil
}

func (f *fakeStore) EnsureNamespace(_ context.Context, name string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if id, ok := f.nsIDs[name]; ok {
		return id, nil
	}
	f.nextID++
	f.nsIDs[name] = f.nextID
	return f.nextID, nil
}

func (f *fakeStore) EnsureKey(_ context.Context, namespaceID int64, name string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	mapKey := fmt.Sprintf("%d/%s", namespaceID, name)
	if id, ok := f.keyIDs[mapKey]; ok {
		return id, nil
	}
	f.nextID++
	f.keyIDs[mapKey] = f.nextID
	return f.nextID, nil
}

func (f *fakeStore) UpsertMessage(_ context.Context, keyID int64, locale, value string) (*store.UpsertResult, error) {
	return f.upsert(f.messages, fmt.Sprintf("%d|%s", keyID, locale), value)
}

func (f *fakeStore) UpsertOverride(_ context.Context, orgID uuid.UUID, keyID int64, locale, value string) (*store.UpsertResult, error) {
	return f.upsert(f.override, fmt.Sprintf("%s|%d|%s", orgID, keyID, locale), value)
}

func (f *fakeStore) upsert(table map[string]string, mapKey, value string) (*store.UpsertResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.upsertCalls++
	if f.upsertErrAfter > 0 && f.upsertCalls >= f.upsertErrAfter {
		return nil, fmt.Errorf("induced upsert failure")
	}
	old, existed := table[mapKey]
	table[mapKey] = value
	if existed {
		return &store.UpsertResult{Created: false, OldValue: &old}, nil
	}
	return &store.UpsertResult{Created: true}, nil
}

func (f *fakeStore) IncrementVersion(_ context.Context, scope store.ScopeID) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.versions[scope]++
	return f.versions[scope], nil
}

func (f *fakeStore) AppendAudit(_ context.Context, e store.AuditEntry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.audits = append(f.audits, e)
	return nil
}

func (f *fakeStore) IsMember(_ context.Context, userID, orgID uuid.UUID) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, m := range f.members[userID] {
		if m.orgID == orgID {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeStore) EarliestOrg(_ context.Context, userID uuid.UUID) (uuid.UUID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	memberships := f.members[userID]
	if len(memberships) == 0 {
		return uuid.Nil, store.ErrNotFound
	}
	earliest := memberships[0]
	for _, m := range memberships[1:] {
		if m.joinedAt.Before(earliest.joinedAt) {
			earliest = m
		}
	}
	return earliest.orgID, nil
}

func (f *fakeStore) addMember(userID, orgID uuid.UUID, joinedAt time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.members[userID] = append(f.members[userID], fakeMembership{orgID: orgID, joinedAt: joinedAt})
}

func (f *fakeStore) version(scope store.ScopeID) int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.versions[scope]
}
