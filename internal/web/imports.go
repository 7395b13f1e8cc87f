package web

// imports.go exposes the bulk import pipeline: submission, preflight,
// job status, logs, retry, and the two cancellation levels. Submission
// is asynchronous; the response is the queued job, and clients poll the
// status endpoint.

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/lexcat/lexcat/internal/catalog"
	"github.com/lexcat/lexcat/internal/importer"
	"github.com/lexcat/lexcat/internal/store"
	mw "github.com/lexcat/lexcat/internal/web/middleware"
)

// importEnvelope is the request body for submissions and preflights.
// For tabular payloads the payload field is a JSON string holding the
// delimited text; for structured payloads it is the JSON value itself.
type importEnvelope struct {
	Scope   string          `json:"scope"`
	OrgID   *uuid.UUID      `json:"org_id,omitempty"`
	Format  string          `json:"format"`
	Payload json.RawMessage `json:"payload"`
}

// decodeEnvelope reads and validates the common submission fields.
// needScope is false for preflight, which is scope-agnostic.
func (s *Server) decodeEnvelope(w http.ResponseWriter, r *http.Request, needScope bool) (*importEnvelope, catalog.Scope, catalog.Format, []byte, bool) {
	body := http.MaxBytesReader(w, r.Body, s.cfg.Import.MaxPreflightBytes)
	raw, err := io.ReadAll(body)
	if err != nil {
		writeJSON(w, http.StatusRequestEntityTooLarge, ErrorResponse{
			Error:   "request body too large",
			Message: "request body too large",
			Action:  "split the import into smaller batches",
			Code:    "payload_too_large",
		})
		return nil, "", "", nil, false
	}

	var env importEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		s.badRequest(w, r, "invalid_body", "request body must be a JSON import envelope")
		return nil, "", "", nil, false
	}

	format, ok := catalog.ParseFormat(env.Format)
	if !ok {
		s.badRequest(w, r, "invalid_format", "format must be structured or tabular")
		return nil, "", "", nil, false
	}

	var scope catalog.Scope
	if needScope {
		if scope, ok = catalog.ParseScope(env.Scope); !ok {
			s.badRequest(w, r, "invalid_scope", "scope must be global or org")
			return nil, "", "", nil, false
		}
	}

	payload, ok := extractPayload(format, env.Payload)
	if !ok {
		s.badRequest(w, r, "invalid_payload", "tabular payloads must be a JSON string")
		return nil, "", "", nil, false
	}

	return &env, scope, format, payload, true
}

// extractPayload unwraps the payload field: structured payloads pass
// through as raw JSON, tabular payloads are JSON strings to unquote.
func extractPayload(format catalog.Format, raw json.RawMessage) ([]byte, bool) {
	if len(raw) == 0 {
		return nil, true
	}
	if format == catalog.FormatTabular {
		var text string
		if err := json.Unmarshal(raw, &text); err != nil {
			return nil, false
		}
		return []byte(text), true
	}
	return []byte(raw), true
}

// handleSubmitImport admits a new import job.
//
//	POST /api/import
func (s *Server) handleSubmitImport(w http.ResponseWriter, r *http.Request) {
	identity, _ := mw.IdentityFrom(r.Context())

	env, scope, format, payload, ok := s.decodeEnvelope(w, r, true)
	if !ok {
		return
	}

	var idempotencyKey *string
	if key := r.Header.Get("Idempotency-Key"); key != "" {
		idempotencyKey = &key
	}

	job, existing, err := s.imports.Submit(r.Context(), actorOf(identity), importer.SubmitRequest{
		Scope:          scope,
		OrgID:          env.OrgID,
		Format:         format,
		IdempotencyKey: idempotencyKey,
		Payload:        payload,
	})
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	status := http.StatusAccepted
	if existing {
		status = http.StatusOK
	}
	writeJSON(w, status, jobResponse(job))
}

// handlePreflight dry-runs a payload and returns the validation report.
//
//	POST /api/import/preflight
func (s *Server) handlePreflight(w http.ResponseWriter, r *http.Request) {
	_, _, format, payload, ok := s.decodeEnvelope(w, r, false)
	if !ok {
		return
	}

	report, err := s.validator.Preflight(format, payload)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// handleJobStatus returns one job.
//
//	GET /api/import/jobs/{jobID}
func (s *Server) handleJobStatus(w http.ResponseWriter, r *http.Request) {
	jobID, ok := s.jobID(w, r)
	if !ok {
		return
	}
	job, err := s.imports.Get(r.Context(), jobID)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, jobResponse(job))
}

// handleJobLogs returns a job's log entries in order.
//
//	GET /api/import/jobs/{jobID}/logs
func (s *Server) handleJobLogs(w http.ResponseWriter, r *http.Request) {
	jobID, ok := s.jobID(w, r)
	if !ok {
		return
	}
	logs, err := s.imports.Logs(r.Context(), jobID)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	if logs == nil {
		logs = []store.JobLog{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"logs": logs})
}

// handleJobRetry clones a finished job into a fresh submission.
//
//	POST /api/import/jobs/{jobID}/retry
func (s *Server) handleJobRetry(w http.ResponseWriter, r *http.Request) {
	identity, _ := mw.IdentityFrom(r.Context())
	jobID, ok := s.jobID(w, r)
	if !ok {
		return
	}
	clone, err := s.imports.Retry(r.Context(), actorOf(identity), jobID)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, jobResponse(clone))
}

// handleJobCancel requests cooperative cancellation.
//
//	POST /api/import/jobs/{jobID}/cancel
func (s *Server) handleJobCancel(w http.ResponseWriter, r *http.Request) {
	identity, _ := mw.IdentityFrom(r.Context())
	jobID, ok := s.jobID(w, r)
	if !ok {
		return
	}
	if ok := s.authorizeJobAction(w, r, identity, jobID); !ok {
		return
	}
	if err := s.imports.Cancel(r.Context(), jobID); err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "cancel_requested"})
}

// handleJobForceCancel is the operator escape hatch: it writes the
// terminal cancelled status once the grace period has elapsed.
//
//	POST /api/import/jobs/{jobID}/force-cancel
func (s *Server) handleJobForceCancel(w http.ResponseWriter, r *http.Request) {
	identity, _ := mw.IdentityFrom(r.Context())
	if !identity.Admin {
		s.forbidden(w, r, "force-cancel requires admin privileges")
		return
	}
	jobID, ok := s.jobID(w, r)
	if !ok {
		return
	}
	if err := s.imports.ForceCancel(r.Context(), jobID); err != nil {
		s.respondError(w, r, err)
		return
	}
	job, err := s.imports.Get(r.Context(), jobID)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, jobResponse(job))
}

// authorizeJobAction permits the job's requester and admins.
func (s *Server) authorizeJobAction(w http.ResponseWriter, r *http.Request, identity mw.Identity, jobID uuid.UUID) bool {
	if identity.Admin {
		return true
	}
	job, err := s.imports.Get(r.Context(), jobID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			s.respondError(w, r, err)
			return false
		}
		s.respondError(w, r, err)
		return false
	}
	if job.RequestedBy != identity.UserID {
		s.forbidden(w, r, "only the job's requester or an admin can do this")
		return false
	}
	return true
}

func (s *Server) jobID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "jobID"))
	if err != nil {
		s.badRequest(w, r, "invalid_job_id", "job id must be a UUID")
		return uuid.Nil, false
	}
	return id, true
}

func actorOf(identity mw.Identity) importer.Actor {
	return importer.Actor{ID: identity.UserID, Admin: identity.Admin}
}

// jobView is the API shape of one import job.
type jobView struct {
	ID              uuid.UUID      `json:"id"`
	Status          string         `json:"status"`
	Scope           string         `json:"scope"`
	OrgID           *uuid.UUID     `json:"org_id,omitempty"`
	Format          string         `json:"format"`
	Progress        int            `json:"progress"`
	Total           int            `json:"total"`
	Stats           store.JobStats `json:"stats"`
	Attempt         int            `json:"attempt"`
	CancelRequested bool           `json:"cancel_requested"`
	CreatedAt       time.Time      `json:"created_at"`
	StartedAt       *time.Time     `json:"started_at,omitempty"`
	FinishedAt      *time.Time     `json:"finished_at,omitempty"`
}

func jobResponse(job *store.Job) jobView {
	return jobView{
		ID:              job.ID,
		Status:          string(job.Status),
		Scope:           string(job.Scope),
		OrgID:           job.OrgID,
		Format:          string(job.Format),
		Progress:        job.Progress,
		Total:           job.Total,
		Stats:           job.Stats,
		Attempt:         job.Attempt,
		CancelRequested: job.CancelRequested(),
		CreatedAt:       job.CreatedAt,
		StartedAt:       job.StartedAt,
		FinishedAt:      job.FinishedAt,
	}
}
