package web

// fake_store_test.go backs the handler tests with an in-memory store
// covering both the handler surface and the import pipeline surface, so
// one fake serves a fully wired test server.

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/lexcat/lexcat/internal/catalog"
	"github.com/lexcat/lexcat/internal/store"
)

type keyInfo struct {
	namespace string
	name      string
}

type valueRow struct {
	keyID  int64
	locale string
	value  string
	orgID  uuid.UUID // uuid.Nil for global messages
}

type fakeStore struct {
	mu sync.Mutex

	namespaces map[string]int64
	keys       map[string]int64 // "nsID/name"
	keyMeta    map[int64]keyInfo
	values     []valueRow
	versions   map[store.ScopeID]int64
	audits     []store.AuditEntry

	jobs     map[uuid.UUID]*store.Job
	payloads map[uuid.UUID]string
	logs     map[uuid.UUID][]store.JobLog
	members  map[uuid.UUID]map[uuid.UUID]time.Time

	nextID int64
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		namespaces: make(map[string]int64),
		keys:       make(map[string]int64),
		keyMeta:    make(map[int64]keyInfo),
		versions:   make(map[store.ScopeID]int64),
		jobs:       make(map[uuid.UUID]*store.Job),
		payloads:   make(map[uuid.UUID]string),
		logs:       make(map[uuid.UUID][]store.JobLog),
		members:    make(map[uuid.UUID]map[uuid.UUID]time.Time),
	}
}

func (f *fakeStore) Ping(context.Context) error { return nil }

func (f *fakeStore) EnsureNamespace(_ context.Context, name string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if id, ok := f.namespaces[name]; ok {
		return id, nil
	}
	f.nextID++
	f.namespaces[name] = f.nextID
	return f.nextID, nil
}

func (f *fakeStore) EnsureKey(_ context.Context, namespaceID int64, name string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	mapKey := fmt.Sprintf("%d/%s", namespaceID, name)
	if id, ok := f.keys[mapKey]; ok {
		return id, nil
	}
	var namespace string
	for ns, id := range f.namespaces {
		if id == namespaceID {
			namespace = ns
		}
	}
	f.nextID++
	f.keys[mapKey] = f.nextID
	f.keyMeta[f.nextID] = keyInfo{namespace: namespace, name: name}
	return f.nextID, nil
}

func (f *fakeStore) upsert(keyID int64, locale, value string, orgID uuid.UUID) (*store.UpsertResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, row := range f.values {
		if row.keyID == keyID && row.locale == locale && row.orgID == orgID {
			old := row.value
			f.values[i].value = value
			return &store.UpsertResult{Created: false, OldValue: &old}, nil
		}
	}
	f.values = append(f.values, valueRow{keyID: keyID, locale: locale, value: value, orgID: orgID})
	return &store.UpsertResult{Created: true}, nil
}

func (f *fakeStore) UpsertMessage(_ context.Context, keyID int64, locale, value string) (*store.UpsertResult, error) {
	return f.upsert(keyID, locale, value, uuid.Nil)
}

func (f *fakeStore) UpsertOverride(_ context.Context, orgID uuid.UUID, keyID int64, locale, value string) (*store.UpsertResult, error) {
	return f.upsert(keyID, locale, value, orgID)
}

func (f *fakeStore) GetMessage(_ context.Context, keyID int64, locale string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, row := range f.values {
		if row.keyID == keyID && row.locale == locale && row.orgID == uuid.Nil {
			return row.value, nil
		}
	}
	return "", store.ErrNotFound
}

func (f *fakeStore) list(namespace, locale string, orgID uuid.UUID) []catalog.Item {
	f.mu.Lock()
	defer f.mu.Unlock()
	var items []catalog.Item
	for _, row := range f.values {
		meta := f.keyMeta[row.keyID]
		if meta.namespace != namespace || row.orgID != orgID {
			continue
		}
		if locale != "" && row.locale != locale {
			continue
		}
		items = append(items, catalog.Item{
			Namespace: meta.namespace,
			Key:       meta.name,
			Locale:    row.locale,
			Value:     row.value,
		})
	}
	sort.Slice(items, func(i, j int) bool {
		if items[i].Key != items[j].Key {
			return items[i].Key < items[j].Key
		}
		return items[i].Locale < items[j].Locale
	})
	return items
}

func (f *fakeStore) ListMessages(_ context.Context, namespace, locale string) ([]catalog.Item, error) {
	return f.list(namespace, locale, uuid.Nil), nil
}

func (f *fakeStore) ListOverrides(_ context.Context, namespace, locale string, orgID uuid.UUID) ([]catalog.Item, error) {
	return f.list(namespace, locale, orgID), nil
}

func (f *fakeStore) GetVersion(_ context.Context, scope store.ScopeID) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.versions[scope], nil
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
	e.ID = int64(len(f.audits) + 1)
	e.CreatedAt = time.Now()
	f.audits = append(f.audits, e)
	return nil
}

func (f *fakeStore) ListAudit(_ context.Context, filter store.AuditFilter) ([]store.AuditEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var entries []store.AuditEntry
	for i := len(f.audits) - 1; i >= 0; i-- {
		e := f.audits[i]
		if filter.Namespace != "" && e.Namespace != filter.Namespace {
			continue
		}
		if filter.Key != "" && e.Key != filter.Key {
			continue
		}
		entries = append(entries, e)
	}
	return entries, nil
}

func (f *fakeStore) IsMember(_ context.Context, userID, orgID uuid.UUID) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.members[userID][orgID]
	return ok, nil
}

func (f *fakeStore) EarliestOrg(_ context.Context, userID uuid.UUID) (uuid.UUID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var earliest uuid.UUID
	var at time.Time
	for orgID, joined := range f.members[userID] {
		if at.IsZero() || joined.Before(at) {
			earliest, at = orgID, joined
		}
	}
	if at.IsZero() {
		return uuid.Nil, store.ErrNotFound
	}
	return earliest, nil
}

func (f *fakeStore) addMember(userID, orgID uuid.UUID, joinedAt time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.members[userID] == nil {
		f.members[userID] = make(map[uuid.UUID]time.Time)
	}
	f.members[userID][orgID] = joinedAt
}

// --- import pipeline surface ---

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
