package server

import (
	"encoding/json"
	"net/http"

	"openboard/rowguard/pkg/rls"
)

// evaluateRequest is the body of POST /v1/evaluate.
type evaluateRequest struct {
	ConnectionID string                  `json:"connectionId"`
	SchemaName   string                  `json:"schemaName"`
	TableName    string                  `json:"tableName"`
	User         rls.UserSecurityContext `json:"user"`
}

// evaluateRowRequest is the body of POST /v1/evaluate/row.
type evaluateRowRequest struct {
	evaluateRequest
	Row map[string]interface{} `json:"row"`
}

// evaluateRowResponse is the body returned by POST /v1/evaluate/row.
type evaluateRowResponse struct {
	Allowed bool `json:"allowed"`
}

// toggleRequest is the body of POST /v1/policies/{id}/toggle.
type toggleRequest struct {
	Enabled bool `json:"enabled"`
}

// snapshotInfo summarizes the engine's active policy snapshot.
type snapshotInfo struct {
	Generation uint64 `json:"generation"`
	LoadedAt   string `json:"loadedAt"`
	AgeSeconds float64 `json:"ageSeconds"`
	Policies   int    `json:"policies"`
	Roles      int    `json:"roles"`
}

// apiError is the error payload inside every non-2xx response.
type apiError struct {
	Code    string   `json:"code"`
	Message string   `json:"message"`
	Details []string `json:"details,omitempty"`
}

// errorResponse is the envelope for error payloads.
type errorResponse struct {
	Error apiError `json:"error"`
}

// writeJSON writes v as a JSON response with the given status.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error envelope with the given status.
func writeError(w http.ResponseWriter, status int, code, message string, details ...string) {
	writeJSON(w, status, errorResponse{Error: apiError{
		Code:    code,
		Message: message,
		Details: details,
	}})
}

// decodeBody decodes a JSON request body into v, rejecting unknown
// fields so admin typos fail loudly instead of silently dropping data.
func decodeBody(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", "invalid request body: "+err.Error())
		return false
	}
	return true
}
