package web

// errors.go provides unified error response handling for the API.
//
// The error flow:
//  1. Handler encounters an error
//  2. Calls s.respondError(w, r, err)
//  3. The error is mapped to a status code and a stable machine code
//  4. The technical error is logged with the request ID for correlation
//  5. The client gets a JSON body with message, action, and code

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/lexcat/lexcat/internal/catalog"
	"github.com/lexcat/lexcat/internal/importer"
	"github.com/lexcat/lexcat/internal/store"
)

// ErrorResponse represents the JSON structure for API error responses.
// Includes both machine-readable (Code) and human-readable (Message,
// Action) fields.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Action  string `json:"action,omitempty"`
	Code    string `json:"code"`
}

// respondError maps err to a status and JSON body, logging the technical
// detail server-side.
func (s *Server) respondError(w http.ResponseWriter, r *http.Request, err error) {
	status, resp, retryAfter := mapError(err)

	slog.Error("request error",
		"path", r.URL.Path,
		"method", r.Method,
		"status", status,
		"error", err.Error(),
		"code", resp.Code,
		"request_id", middleware.GetReqID(r.Context()),
	)

	if retryAfter > 0 {
		w.Header().Set("Retry-After", strconv.Itoa(int(retryAfter.Round(time.Second).Seconds())))
	}
	writeJSON(w, status, resp)
}

// mapError translates domain errors into HTTP status codes and stable
// response codes. Unrecognized errors become an opaque 500.
func mapError(err error) (int, ErrorResponse, time.Duration) {
	var admission *importer.AdmissionError
	if errors.As(err, &admission) {
		status := http.StatusInternalServerError
		switch admission.Code {
		case importer.CodeForbidden:
			status = http.StatusForbidden
		case importer.CodeNoOrgMembership:
			status = http.StatusConflict
		case importer.CodeTooManyJobs, importer.CodeRateLimited:
			status = http.StatusTooManyRequests
		case importer.CodePayloadTooLarge:
			status = http.StatusRequestEntityTooLarge
		case importer.CodePayloadStoreFailed, importer.CodeJobCreateFailed:
			status = http.StatusServiceUnavailable
		}
		return status, ErrorResponse{
			Error:   admission.Message,
			Message: admission.Message,
			Action:  admission.Action,
			Code:    admission.Code,
		}, admission.RetryAfter
	}

	var tooLarge *catalog.PayloadTooLargeError
	if errors.As(err, &tooLarge) {
		return http.StatusRequestEntityTooLarge, ErrorResponse{
			Error:   tooLarge.Error(),
			Message: tooLarge.Error(),
			Action:  "split the payload into smaller batches",
			Code:    "payload_too_large",
		}, 0
	}

	var tooMany *catalog.TooManyItemsError
	if errors.As(err, &tooMany) {
		return http.StatusUnprocessableEntity, ErrorResponse{
			Error:   tooMany.Error(),
			Message: tooMany.Error(),
			Action:  "split the payload into smaller batches",
			Code:    "too_many_items",
		}, 0
	}

	var notAllowed *store.ErrForceCancelNotAllowed
	if errors.As(err, &notAllowed) {
		return http.StatusConflict, ErrorResponse{
			Error:   notAllowed.Error(),
			Message: notAllowed.Error(),
			Action:  "request a cooperative cancel first, then wait out the grace period",
			Code:    "force_cancel_not_allowed",
		}, 0
	}

	switch {
	case errors.Is(err, catalog.ErrNoItems):
		return http.StatusUnprocessableEntity, ErrorResponse{
			Error:   "no items in payload",
			Message: "the payload contained no importable items",
			Action:  "check the payload format",
			Code:    "no_items",
		}, 0

	case errors.Is(err, importer.ErrJobNotTerminal):
		return http.StatusConflict, ErrorResponse{
			Error:   "job has not finished",
			Message: "only finished jobs can be retried",
			Action:  "wait for the job to reach a terminal status",
			Code:    "job_not_terminal",
		}, 0

	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound, ErrorResponse{
			Error:   "not found",
			Message: "the requested resource does not exist",
			Code:    "not_found",
		}, 0
	}

	return http.StatusInternalServerError, ErrorResponse{
		Error:   "internal error",
		Message: "something went wrong processing the request",
		Action:  "retry, and contact support if the problem persists",
		Code:    "internal",
	}, 0
}

// badRequest writes a 400 with a stable machine code.
func (s *Server) badRequest(w http.ResponseWriter, r *http.Request, code, message string) {
	writeJSON(w, http.StatusBadRequest, ErrorResponse{
		Error:   message,
		Message: message,
		Code:    code,
	})
}

// forbidden writes a 403.
func (s *Server) forbidden(w http.ResponseWriter, r *http.Request, message string) {
	writeJSON(w, http.StatusForbidden, ErrorResponse{
		Error:   message,
		Message: message,
		Code:    "forbidden",
	})
}

// logWarn records a non-fatal handler problem with request correlation.
func (s *Server) logWarn(r *http.Request, message string, err error) {
	slog.Warn(message,
		"path", r.URL.Path,
		"error", err,
		"request_id", middleware.GetReqID(r.Context()),
	)
}

// writeJSON encodes v with the given status. Encoding errors are logged;
// headers are already sent at that point.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("json encode failed", "error", err)
	}
}
