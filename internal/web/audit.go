package web

// audit.go lists the append-only catalog write history.

import (
	"net/http"
	"strconv"
	"time"

	"github.com/lexcat/lexcat/internal/store"
	mw "github.com/lexcat/lexcat/internal/web/middleware"
)

// handleListAudit returns audit entries newest first.
//
//	GET /api/audit?namespace=&key=&since=&until=&limit=&offset=
func (s *Server) handleListAudit(w http.ResponseWriter, r *http.Request) {
	identity, _ := mw.IdentityFrom(r.Context())
	if !identity.Admin {
		s.forbidden(w, r, "the audit listing requires admin privileges")
		return
	}

	q := r.URL.Query()
	filter := store.AuditFilter{
		Namespace: q.Get("namespace"),
		Key:       q.Get("key"),
		Limit:     parseIntParam(r, "limit", 100),
		Offset:    parseIntParam(r, "offset", 0),
	}

	if raw := q.Get("since"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			s.badRequest(w, r, "invalid_since", "since must be an RFC 3339 timestamp")
			return
		}
		filter.Since = t
	}
	if raw := q.Get("until"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			s.badRequest(w, r, "invalid_until", "until must be an RFC 3339 timestamp")
			return
		}
		filter.Until = t
	}

	entries, err := s.store.ListAudit(r.Context(), filter)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	if entries == nil {
		entries = []store.AuditEntry{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": entries})
}

// parseIntParam parses an integer query parameter with a default value.
func parseIntParam(r *http.Request, name string, defaultVal int) int {
	val := r.URL.Query().Get(name)
	if val == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(val)
	if err != nil || i < 0 {
		return defaultVal
	}
	return i
}
