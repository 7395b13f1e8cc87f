package web

// catalog.go serves catalog reads and single-value writes. Reads are
// conditional: the response carries an ETag derived from the per-scope
// catalog versions, and If-None-Match short-circuits to 304 before any
// rows are fetched.

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/lexcat/lexcat/internal/catalog"
	"github.com/lexcat/lexcat/internal/store"
	mw "github.com/lexcat/lexcat/internal/web/middleware"
)

// Read-response encodings.
const (
	viewItems       = "items"
	viewFlat        = "flat"
	viewNested      = "nested"
	viewTabularLong = "tabular-long"
	viewTabularWide = "tabular-wide"
)

// handleReadCatalog serves one namespace in the requested encoding.
//
//	GET /api/catalog/{namespace}?locale=&view=&overrides=&org_id=
func (s *Server) handleReadCatalog(w http.ResponseWriter, r *http.Request) {
	namespace := chi.URLParam(r, "namespace")
	locale := r.URL.Query().Get("locale")

	view := r.URL.Query().Get("view")
	if view == "" {
		view = viewItems
	}
	switch view {
	case viewItems, viewNested, viewTabularLong, viewTabularWide:
	case viewFlat:
		if locale == "" {
			s.badRequest(w, r, "locale_required", "the flat view requires a locale parameter")
			return
		}
	default:
		s.badRequest(w, r, "invalid_view", fmt.Sprintf("unknown view %q", view))
		return
	}

	mode, ok := catalog.ParseOverridesMode(r.URL.Query().Get("overrides"))
	if !ok {
		s.badRequest(w, r, "invalid_overrides_mode", "overrides must be merge, ignore, or only")
		return
	}

	var orgID *uuid.UUID
	if raw := r.URL.Query().Get("org_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			s.badRequest(w, r, "invalid_org_id", "org_id must be a UUID")
			return
		}
		orgID = &id
	}
	// No org context means the override layer cannot apply.
	if orgID == nil {
		mode = catalog.OverridesIgnore
	}

	globalVersion, err := s.store.GetVersion(r.Context(), store.GlobalScope)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	var orgVersion int64
	orgTag := ""
	if orgID != nil {
		orgTag = orgID.String()
		if orgVersion, err = s.store.GetVersion(r.Context(), store.OrgScope(*orgID)); err != nil {
			s.respondError(w, r, err)
			return
		}
	}

	etag := catalog.ComputeETag(catalog.ETagInput{
		Namespace:     namespace,
		Locale:        locale,
		Format:        view,
		GlobalVersion: globalVersion,
		OrgID:         orgTag,
		OrgVersion:    orgVersion,
		OverridesMode: mode,
	})

	w.Header().Set("ETag", `"`+etag+`"`)
	w.Header().Set("Cache-Control", fmt.Sprintf("max-age=%d, stale-while-revalidate=%d",
		int(s.cfg.Catalog.CacheMaxAge.Seconds()),
		int(s.cfg.Catalog.CacheStaleWhileRevalidate.Seconds())))

	if catalog.ETagMatches(r.Header.Get("If-None-Match"), etag) {
		w.WriteHeader(http.StatusNotModified)
		return
	}

	items, err := s.resolveItems(r, namespace, locale, mode, orgID)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	switch view {
	case viewTabularLong:
		w.Header().Set("Content-Type", "text/csv")
		w.Write(catalog.EncodeTabularLong(items))
	case viewTabularWide:
		w.Header().Set("Content-Type", "text/csv")
		w.Write(catalog.EncodeTabularWide(items, nil))
	case viewFlat:
		writeJSON(w, http.StatusOK, map[string]any{
			"namespace": namespace,
			"locale":    locale,
			"etag":      etag,
			"messages":  catalog.FlatMap(items),
		})
	case viewNested:
		writeJSON(w, http.StatusOK, map[string]any{
			"namespace": namespace,
			"etag":      etag,
			"messages":  catalog.NestedMap(items),
		})
	default:
		if items == nil {
			items = []catalog.Item{}
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"namespace": namespace,
			"etag":      etag,
			"items":     items,
		})
	}
}

// resolveItems fetches and merges the two catalog layers per the
// overrides mode.
func (s *Server) resolveItems(r *http.Request, namespace, locale string, mode catalog.OverridesMode, orgID *uuid.UUID) ([]catalog.Item, error) {
	if mode == catalog.OverridesOnly {
		return s.store.ListOverrides(r.Context(), namespace, locale, *orgID)
	}

	global, err := s.store.ListMessages(r.Context(), namespace, locale)
	if err != nil {
		return nil, err
	}
	if mode == catalog.OverridesIgnore {
		return global, nil
	}

	overrides, err := s.store.ListOverrides(r.Context(), namespace, locale, *orgID)
	if err != nil {
		return nil, err
	}
	return catalog.ApplyOverrides(global, overrides), nil
}

type writeValueRequest struct {
	Value         string `json:"value"`
	AllowMismatch bool   `json:"allow_mismatch"`
}

// handleWriteMessage writes one global value.
//
//	PUT /api/messages/{namespace}/{key}/{locale}
func (s *Server) handleWriteMessage(w http.ResponseWriter, r *http.Request) {
	identity, _ := mw.IdentityFrom(r.Context())
	if !identity.Admin {
		s.forbidden(w, r, "global writes require admin privileges")
		return
	}
	s.writeValue(w, r, catalog.ScopeGlobal, nil, identity)
}

// handleWriteOverride writes one org-scoped value.
//
//	PUT /api/orgs/{orgID}/messages/{namespace}/{key}/{locale}
func (s *Server) handleWriteOverride(w http.ResponseWriter, r *http.Request) {
	identity, _ := mw.IdentityFrom(r.Context())

	orgID, err := uuid.Parse(chi.URLParam(r, "orgID"))
	if err != nil {
		s.badRequest(w, r, "invalid_org_id", "org id must be a UUID")
		return
	}

	if !identity.Admin {
		member, err := s.store.IsMember(r.Context(), identity.UserID, orgID)
		if err != nil {
			s.respondError(w, r, err)
			return
		}
		if !member {
			s.forbidden(w, r, "you are not a member of this organization")
			return
		}
	}
	s.writeValue(w, r, catalog.ScopeOrg, &orgID, identity)
}

func (s *Server) writeValue(w http.ResponseWriter, r *http.Request, scope catalog.Scope, orgID *uuid.UUID, identity mw.Identity) {
	namespace := chi.URLParam(r, "namespace")
	keyName := chi.URLParam(r, "key")
	locale := chi.URLParam(r, "locale")

	if namespace == "" || keyName == "" || locale == "" {
		s.badRequest(w, r, "invalid_path", "namespace, key, and locale are required")
		return
	}
	if !s.validator.LocaleEnabled(locale) {
		s.badRequest(w, r, "invalid_locale", fmt.Sprintf("locale %q is not enabled", locale))
		return
	}

	var req writeValueRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(&req); err != nil {
		s.badRequest(w, r, "invalid_body", "request body must be JSON with a value field")
		return
	}
	if req.Value == "" {
		s.badRequest(w, r, "empty_value", "value must not be empty")
		return
	}

	nsID, err := s.store.EnsureNamespace(r.Context(), namespace)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	keyID, err := s.store.EnsureKey(r.Context(), nsID, keyName)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	// Placeholder safety: a non-default-locale value must use the same
	// placeholders as the default-locale message, unless the caller
	// explicitly allows the mismatch.
	if locale != s.validator.DefaultLocale() && !req.AllowMismatch {
		base, err := s.store.GetMessage(r.Context(), keyID, s.validator.DefaultLocale())
		if err == nil {
			missing, extra := catalog.DiffPlaceholders(base, req.Value)
			if len(missing) > 0 || len(extra) > 0 {
				writeJSON(w, http.StatusUnprocessableEntity, map[string]any{
					"error":   "placeholder mismatch with the default locale",
					"message": "placeholder mismatch with the default locale",
					"action":  "fix the placeholders, or resubmit with allow_mismatch",
					"code":    "icu_mismatch",
					"missing": missing,
					"extra":   extra,
				})
				return
			}
		}
	}

	var res *store.UpsertResult
	if scope == catalog.ScopeOrg {
		res, err = s.store.UpsertOverride(r.Context(), *orgID, keyID, locale, req.Value)
	} else {
		res, err = s.store.UpsertMessage(r.Context(), keyID, locale, req.Value)
	}
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	scopeID := store.GlobalScope
	if scope == catalog.ScopeOrg {
		scopeID = store.OrgScope(*orgID)
	}
	version, err := s.store.IncrementVersion(r.Context(), scopeID)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	action := store.AuditUpdated
	status := http.StatusOK
	if res.Created {
		action = store.AuditCreated
		status = http.StatusCreated
	}

	// Best-effort: the write already succeeded.
	if err := s.store.AppendAudit(r.Context(), store.AuditEntry{
		Scope:     scope,
		OrgID:     orgID,
		Namespace: namespace,
		Key:       keyName,
		Locale:    locale,
		Action:    action,
		OldValue:  res.OldValue,
		NewValue:  req.Value,
		ActorID:   &identity.UserID,
	}); err != nil {
		s.logWarn(r, "audit append failed", err)
	}

	writeJSON(w, status, map[string]any{
		"action":  string(action),
		"version": version,
	})
}
