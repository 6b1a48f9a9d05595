package server

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"openboard/rowguard/pkg/rls"
	"openboard/rowguard/pkg/rls/audit"
	"openboard/rowguard/pkg/rls/store"
)

// handleEvaluate resolves the filter decision for one table access.
func (s *Server) handleEvaluate(w http.ResponseWriter, r *http.Request) {
	var req evaluateRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.TableName == "" {
		writeError(w, http.StatusBadRequest, "missing_field", "tableName is required")
		return
	}
	if req.User.UserID == "" {
		writeError(w, http.StatusBadRequest, "missing_field", "user.userId is required")
		return
	}

	decision := s.deps.Engine.Evaluate(r.Context(), req.ConnectionID, req.SchemaName, req.TableName, &req.User)
	writeJSON(w, http.StatusOK, decision)
}

// handleEvaluateRow applies the user's filters to one concrete row.
func (s *Server) handleEvaluateRow(w http.ResponseWriter, r *http.Request) {
	var req evaluateRowRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.TableName == "" {
		writeError(w, http.StatusBadRequest, "missing_field", "tableName is required")
		return
	}
	if req.User.UserID == "" {
		writeError(w, http.StatusBadRequest, "missing_field", "user.userId is required")
		return
	}

	allowed := s.deps.Engine.EvaluateRow(r.Context(), req.ConnectionID, req.SchemaName, req.TableName, &req.User, req.Row)
	writeJSON(w, http.StatusOK, evaluateRowResponse{Allowed: allowed})
}

func (s *Server) handleListPolicies(w http.ResponseWriter, r *http.Request) {
	policies, err := s.deps.Store.ListPolicies(r.Context())
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, policies)
}

func (s *Server) handleGetPolicy(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	policies, err := s.deps.Store.ListPolicies(r.Context())
	if err != nil {
		writeStoreError(w, err)
		return
	}
	for i := range policies {
		if policies[i].ID == id {
			writeJSON(w, http.StatusOK, policies[i])
			return
		}
	}
	writeStoreError(w, &store.NotFoundError{Kind: "policy", ID: id})
}

func (s *Server) handleCreatePolicy(w http.ResponseWriter, r *http.Request) {
	ms, ok := s.mutableStore(w)
	if !ok {
		return
	}

	var policy rls.Policy
	if !decodeBody(w, r, &policy) {
		return
	}
	if policy.ID == "" {
		policy.ID = uuid.New().String()
	}

	existing, err := s.deps.Store.ListPolicies(r.Context())
	if err != nil {
		writeStoreError(w, err)
		return
	}
	for i := range existing {
		if existing[i].ID == policy.ID {
			writeError(w, http.StatusConflict, "already_exists", "policy "+policy.ID+" already exists")
			return
		}
	}

	if err := ms.CreatePolicy(r.Context(), policy); err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, policy)
}

func (s *Server) handleUpdatePolicy(w http.ResponseWriter, r *http.Request) {
	ms, ok := s.mutableStore(w)
	if !ok {
		return
	}

	var policy rls.Policy
	if !decodeBody(w, r, &policy) {
		return
	}
	id := r.PathValue("id")
	if policy.ID == "" {
		policy.ID = id
	}
	if policy.ID != id {
		writeError(w, http.StatusBadRequest, "id_mismatch", "policy id in body does not match path")
		return
	}

	if err := ms.UpdatePolicy(r.Context(), policy); err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, policy)
}

func (s *Server) handleDeletePolicy(w http.ResponseWriter, r *http.Request) {
	ms, ok := s.mutableStore(w)
	if !ok {
		return
	}

	if err := ms.DeletePolicy(r.Context(), r.PathValue("id")); err != nil {
		writeStoreError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleTogglePolicy(w http.ResponseWriter, r *http.Request) {
	ms, ok := s.mutableStore(w)
	if !ok {
		return
	}

	var req toggleRequest
	if !decodeBody(w, r, &req) {
		return
	}

	if err := ms.TogglePolicy(r.Context(), r.PathValue("id"), req.Enabled); err != nil {
		writeStoreError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleListRoles(w http.ResponseWriter, r *http.Request) {
	roles, err := s.deps.Store.ListRoles(r.Context())
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, roles)
}

func (s *Server) handleGetRole(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	roles, err := s.deps.Store.ListRoles(r.Context())
	if err != nil {
		writeStoreError(w, err)
		return
	}
	for i := range roles {
		if roles[i].ID == id {
			writeJSON(w, http.StatusOK, roles[i])
			return
		}
	}
	writeStoreError(w, &store.NotFoundError{Kind: "role", ID: id})
}

func (s *Server) handleCreateRole(w http.ResponseWriter, r *http.Request) {
	ms, ok := s.mutableStore(w)
	if !ok {
		return
	}

	var role rls.SecurityRole
	if !decodeBody(w, r, &role) {
		return
	}
	if role.ID == "" {
		role.ID = uuid.New().String()
	}
	if role.Name == "" {
		writeError(w, http.StatusBadRequest, "missing_field", "name is required")
		return
	}

	existing, err := s.deps.Store.ListRoles(r.Context())
	if err != nil {
		writeStoreError(w, err)
		return
	}
	for i := range existing {
		if existing[i].ID == role.ID {
			writeError(w, http.StatusConflict, "already_exists", "role "+role.ID+" already exists")
			return
		}
	}

	if err := ms.CreateRole(r.Context(), role); err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, role)
}

func (s *Server) handleUpdateRole(w http.ResponseWriter, r *http.Request) {
	ms, ok := s.mutableStore(w)
	if !ok {
		return
	}

	var role rls.SecurityRole
	if !decodeBody(w, r, &role) {
		return
	}
	id := r.PathValue("id")
	if role.ID == "" {
		role.ID = id
	}
	if role.ID != id {
		writeError(w, http.StatusBadRequest, "id_mismatch", "role id in body does not match path")
		return
	}

	if err := ms.UpdateRole(r.Context(), role); err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, role)
}

func (s *Server) handleDeleteRole(w http.ResponseWriter, r *http.Request) {
	ms, ok := s.mutableStore(w)
	if !ok {
		return
	}

	if err := ms.DeleteRole(r.Context(), r.PathValue("id")); err != nil {
		writeStoreError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	settings, err := s.deps.Store.GetSettings(r.Context())
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, settings)
}

func (s *Server) handleUpdateSettings(w http.ResponseWriter, r *http.Request) {
	ms, ok := s.mutableStore(w)
	if !ok {
		return
	}

	var settings rls.Settings
	if !decodeBody(w, r, &settings) {
		return
	}

	if err := ms.UpdateSettings(r.Context(), settings); err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, settings)
}

// handleSnapshotInfo reports the active snapshot's generation and age.
func (s *Server) handleSnapshotInfo(w http.ResponseWriter, r *http.Request) {
	snap := s.deps.Engine.Snapshot()
	if snap == nil {
		writeError(w, http.StatusServiceUnavailable, "engine_unavailable", "no policy snapshot loaded")
		return
	}
	writeJSON(w, http.StatusOK, snapshotInfo{
		Generation: snap.Generation,
		LoadedAt:   snap.LoadedAt.UTC().Format(time.RFC3339),
		AgeSeconds: snap.Age().Seconds(),
		Policies:   len(snap.Policies),
		Roles:      len(snap.Roles),
	})
}

func (s *Server) handleInvalidateCache(w http.ResponseWriter, r *http.Request) {
	s.deps.Engine.InvalidateCache()
	w.WriteHeader(http.StatusNoContent)
}

// handleAuditQuery serves GET /v1/audit/records with filtering by user,
// table, time range, and denial outcome.
func (s *Server) handleAuditQuery(w http.ResponseWriter, r *http.Request) {
	if s.deps.AuditStorage == nil {
		writeError(w, http.StatusNotImplemented, "audit_disabled", "audit storage is not configured")
		return
	}

	filter, ok := s.parseAuditFilter(w, r)
	if !ok {
		return
	}

	records, err := s.deps.AuditStorage.Query(r.Context(), filter)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal", "audit query failed")
		s.logger.Error("audit query failed", "error", err)
		return
	}
	if records == nil {
		records = []*audit.AccessRecord{}
	}
	writeJSON(w, http.StatusOK, records)
}

func (s *Server) parseAuditFilter(w http.ResponseWriter, r *http.Request) (audit.QueryFilter, bool) {
	q := r.URL.Query()
	filter := audit.QueryFilter{
		UserID:    q.Get("user_id"),
		TableName: q.Get("table"),
		Limit:     s.config.Audit.Query.DefaultLimit,
	}

	if v := q.Get("since"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_param", "since must be RFC 3339")
			return filter, false
		}
		filter.Since = t
	}
	if v := q.Get("until"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_param", "until must be RFC 3339")
			return filter, false
		}
		filter.Until = t
	}
	if v := q.Get("denied_only"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_param", "denied_only must be a boolean")
			return filter, false
		}
		filter.DeniedOnly = b
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, "invalid_param", "limit must be a positive integer")
			return filter, false
		}
		filter.Limit = n
	}
	if max := s.config.Audit.Query.MaxLimit; max > 0 && filter.Limit > max {
		filter.Limit = max
	}

	return filter, true
}

// mutableStore asserts the configured store supports mutations. Stores
// loaded from read-only sources answer admin writes with a conflict.
func (s *Server) mutableStore(w http.ResponseWriter) (store.MutableStore, bool) {
	ms, ok := s.deps.Store.(store.MutableStore)
	if !ok {
		writeError(w, http.StatusConflict, "store_read_only", "the configured policy store is read-only")
		return nil, false
	}
	return ms, true
}

// writeStoreError maps store and validation errors to HTTP responses.
func writeStoreError(w http.ResponseWriter, err error) {
	var nf *store.NotFoundError
	if errors.As(err, &nf) {
		writeError(w, http.StatusNotFound, "not_found", nf.Error())
		return
	}

	var ve *rls.ValidationError
	if errors.As(err, &ve) {
		writeError(w, http.StatusBadRequest, "invalid_policy", "policy validation failed", ve.Errors...)
		return
	}

	if errors.Is(err, store.ErrReadOnly) {
		writeError(w, http.StatusConflict, "store_read_only", "the configured policy store is read-only")
		return
	}

	writeError(w, http.StatusInternalServerError, "internal", err.Error())
}
