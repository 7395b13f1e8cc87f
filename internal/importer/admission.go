package importer

// admission.go is the gate every submission passes before a job row
// exists. Checks run in a fixed order: idempotency replay, scope
// authorization, concurrency cap, rate window, payload size. The counts
// behind the caps come from durable job rows, so the gate holds across
// restarts and multiple instances.

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/lexcat/lexcat/internal/catalog"
	"github.com/lexcat/lexcat/internal/store"
)

// Stable rejection codes surfaced in error responses.
const (
	CodeForbidden          = "forbidden"
	CodeNoOrgMembership    = "no_org_membership"
	CodeTooManyJobs        = "too_many_jobs"
	CodeRateLimited        = "rate_limited"
	CodePayloadTooLarge    = "payload_too_large"
	CodeJobCreateFailed    = "job_create_failed"
	CodePayloadStoreFailed = "payload_store_failed"
)

// AdmissionError is a submission rejected by the gate.
type AdmissionError struct {
	Code    string
	Message string
	Action  string

	// RetryAfter is set for rate_limited rejections: how long until the
	// oldest job in the window ages out.
	RetryAfter time.Duration
}

func (e *AdmissionError) Error() string {
	return fmt.Sprintf("admission rejected (%s): %s", e.Code, e.Message)
}

// SubmitRequest is one import submission.
type SubmitRequest struct {
	Scope          catalog.Scope
	OrgID          *uuid.UUID
	Format         catalog.Format
	IdempotencyKey *string
	Payload        []byte
}

// Submit runs the admission gate and, on success, persists and
// dispatches a queued job. The bool is true when an existing job was
// returned via idempotency replay instead of creating a new one.
func (s *Service) Submit(ctx context.Context, actor Actor, req SubmitRequest) (*store.Job, bool, error) {
	// Idempotency replay short-circuits everything else: resubmitting a
	// key must return the original job even when the caps are currently
	// exhausted.
	if req.IdempotencyKey != nil && *req.IdempotencyKey != "" {
		job, err := s.store.GetJobByIdempotencyKey(ctx, actor.ID, *req.IdempotencyKey)
		if err == nil {
			return job, true, nil
		}
		if !errors.Is(err, store.ErrNotFound) {
			return nil, false, err
		}
	}

	orgID, err := s.authorize(ctx, actor, req)
	if err != nil {
		rejectMetric(err)
		return nil, false, err
	}

	active, err := s.store.CountActiveJobs(ctx, actor.ID)
	if err != nil {
		return nil, false, err
	}
	if active >= s.cfg.MaxConcurrent {
		jobsRejected.WithLabelValues(CodeTooManyJobs).Inc()
		return nil, false, &AdmissionError{
			Code:    CodeTooManyJobs,
			Message: fmt.Sprintf("you already have %d active import jobs (limit %d)", active, s.cfg.MaxConcurrent),
			Action:  "wait for a running job to finish, or cancel one",
		}
	}

	now := time.Now()
	recent, oldest, err := s.store.CountJobsSince(ctx, actor.ID, now.Add(-s.cfg.RateWindow))
	if err != nil {
		return nil, false, err
	}
	if recent >= s.cfg.RateMaxJobs {
		wait := time.Duration(0)
		if !oldest.IsZero() {
			wait = oldest.Add(s.cfg.RateWindow).Sub(now)
		}
		if wait < 0 {
			wait = 0
		}
		jobsRejected.WithLabelValues(CodeRateLimited).Inc()
		return nil, false, &AdmissionError{
			Code:       CodeRateLimited,
			Message:    fmt.Sprintf("submission rate limit reached: %d jobs in the last %s", recent, s.cfg.RateWindow),
			Action:     fmt.Sprintf("retry in %s", wait.Round(time.Second)),
			RetryAfter: wait,
		}
	}

	if int64(len(req.Payload)) > s.cfg.MaxPayloadBytes {
		jobsRejected.WithLabelValues(CodePayloadTooLarge).Inc()
		return nil, false, &AdmissionError{
			Code:    CodePayloadTooLarge,
			Message: fmt.Sprintf("payload is %d bytes, limit is %d", len(req.Payload), s.cfg.MaxPayloadBytes),
			Action:  "split the import into smaller batches",
		}
	}

	job, err := s.store.CreateJob(ctx, store.CreateJobParams{
		Scope:          req.Scope,
		OrgID:          orgID,
		Format:         req.Format,
		IdempotencyKey: req.IdempotencyKey,
		RequestedBy:    actor.ID,
		Payload:        string(req.Payload),
	})
	if err != nil {
		if errors.Is(err, store.ErrConflict) && req.IdempotencyKey != nil {
			// Lost the race against a concurrent submission with the
			// same key; the winner's job is the answer.
			job, err = s.store.GetJobByIdempotencyKey(ctx, actor.ID, *req.IdempotencyKey)
			if err != nil {
				return nil, false, err
			}
			return job, true, nil
		}
		var pse *store.PayloadStoreError
		if errors.As(err, &pse) {
			jobsRejected.WithLabelValues(CodePayloadStoreFailed).Inc()
			return nil, false, &AdmissionError{
				Code:    CodePayloadStoreFailed,
				Message: "the import payload could not be stored",
				Action:  "retry the submission",
			}
		}
		jobsRejected.WithLabelValues(CodeJobCreateFailed).Inc()
		return nil, false, &AdmissionError{
			Code:    CodeJobCreateFailed,
			Message: "the import job could not be created",
			Action:  "retry the submission",
		}
	}

	jobsAccepted.Inc()
	s.dispatch(job)
	return job, false, nil
}

// authorize resolves and checks the target scope. For org scope with no
// explicit org it falls back to the requester's earliest active
// membership.
func (s *Service) authorize(ctx context.Context, actor Actor, req SubmitRequest) (*uuid.UUID, error) {
	switch req.Scope {
	case catalog.ScopeGlobal:
		if !actor.Admin {
			return nil, &AdmissionError{
				Code:    CodeForbidden,
				Message: "global imports require admin privileges",
			}
		}
		return nil, nil

	case catalog.ScopeOrg:
		if req.OrgID != nil {
			if !actor.Admin {
				ok, err := s.store.IsMember(ctx, actor.ID, *req.OrgID)
				if err != nil {
					return nil, err
				}
				if !ok {
					return nil, &AdmissionError{
						Code:    CodeForbidden,
						Message: "you are not a member of the target organization",
					}
				}
			}
			return req.OrgID, nil
		}

		orgID, err := s.store.EarliestOrg(ctx, actor.ID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return nil, &AdmissionError{
					Code:    CodeNoOrgMembership,
					Message: "org-scoped import with no organization: you have no active memberships",
					Action:  "specify an org_id or join an organization",
				}
			}
			return nil, err
		}
		return &orgID, nil

	default:
		return nil, &AdmissionError{
			Code:    CodeForbidden,
			Message: fmt.Sprintf("unknown scope %q", req.Scope),
		}
	}
}

func rejectMetric(err error) {
	var ae *AdmissionError
	if errors.As(err, &ae) {
		jobsRejected.WithLabelValues(ae.Code).Inc()
	}
}
