package server

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"openboard/rowguard/pkg/rls"
	"openboard/rowguard/pkg/rls/audit"
)

func TestHandleEvaluate(t *testing.T) {
	st := seedTestStore(t)
	defer st.Close()
	srv := newTestServer(t, st, nil)

	body := `{
		"connectionId": "primary",
		"schemaName": "public",
		"tableName": "orders",
		"user": {"userId": "u1", "roleIds": ["us-sales"]}
	}`
	rec := doRequest(t, srv, http.MethodPost, "/v1/evaluate", body)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}

	var decision rls.FilterDecision
	if err := json.Unmarshal(rec.Body.Bytes(), &decision); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !decision.HasFilters || decision.WhereClause != `"region" = ?` {
		t.Errorf("decision = %+v", decision)
	}
}

func TestHandleEvaluateValidation(t *testing.T) {
	st := seedTestStore(t)
	defer st.Close()
	srv := newTestServer(t, st, nil)

	tests := []struct {
		name string
		body string
	}{
		{"missing table", `{"user":{"userId":"u1"}}`},
		{"missing user id", `{"tableName":"orders","user":{}}`},
		{"malformed json", `{`},
		{"unknown field", `{"tableName":"orders","user":{"userId":"u1"},"extra":1}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := doRequest(t, srv, http.MethodPost, "/v1/evaluate", tt.body)
			if rec.Code != http.StatusBadRequest {
				t.Errorf("status = %d, body = %s", rec.Code, rec.Body.String())
			}
		})
	}
}

func TestHandleEvaluateRow(t *testing.T) {
	st := seedTestStore(t)
	defer st.Close()
	srv := newTestServer(t, st, nil)

	body := `{
		"tableName": "orders",
		"user": {"userId": "u1", "roleIds": ["us-sales"]},
		"row": {"region": "US"}
	}`
	rec := doRequest(t, srv, http.MethodPost, "/v1/evaluate/row", body)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var resp evaluateRowResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !resp.Allowed {
		t.Error("expected row to be visible")
	}

	body = `{
		"tableName": "orders",
		"user": {"userId": "u1", "roleIds": ["us-sales"]},
		"row": {"region": "EU"}
	}`
	rec = doRequest(t, srv, http.MethodPost, "/v1/evaluate/row", body)
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Allowed {
		t.Error("expected row to be filtered out")
	}
}

func TestPolicyCRUD(t *testing.T) {
	st := seedTestStore(t)
	defer st.Close()
	srv := newTestServer(t, st, nil)

	create := `{
		"name": "EU region",
		"enabled": true,
		"tableName": "orders",
		"roleIds": [],
		"filterGroup": {
			"id": "g2", "logic": "AND",
			"conditions": [{
				"id": "c2", "column": "region",
				"operator": "equals", "filterType": "static", "value": "EU"
			}]
		}
	}`
	rec := doRequest(t, srv, http.MethodPost, "/v1/policies", create)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var created rls.Policy
	if err := json.Unmarshal(rec.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if created.ID == "" {
		t.Fatal("expected a generated policy ID")
	}

	rec = doRequest(t, srv, http.MethodGet, "/v1/policies/"+created.ID, "")
	if rec.Code != http.StatusOK {
		t.Errorf("get status = %d", rec.Code)
	}

	rec = doRequest(t, srv, http.MethodGet, "/v1/policies", "")
	var policies []rls.Policy
	if err := json.Unmarshal(rec.Body.Bytes(), &policies); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	if len(policies) != 2 {
		t.Errorf("policies = %d, want 2", len(policies))
	}

	created.Name = "EU region v2"
	updateBody, _ := json.Marshal(created)
	rec = doRequest(t, srv, http.MethodPut, "/v1/policies/"+created.ID, string(updateBody))
	if rec.Code != http.StatusOK {
		t.Errorf("update status = %d, body = %s", rec.Code, rec.Body.String())
	}

	rec = doRequest(t, srv, http.MethodPost, "/v1/policies/"+created.ID+"/toggle", `{"enabled":false}`)
	if rec.Code != http.StatusNoContent {
		t.Errorf("toggle status = %d", rec.Code)
	}

	rec = doRequest(t, srv, http.MethodDelete, "/v1/policies/"+created.ID, "")
	if rec.Code != http.StatusNoContent {
		t.Errorf("delete status = %d", rec.Code)
	}

	rec = doRequest(t, srv, http.MethodGet, "/v1/policies/"+created.ID, "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("get after delete status = %d", rec.Code)
	}
}

func TestCreatePolicyValidationFailure(t *testing.T) {
	st := seedTestStore(t)
	defer st.Close()
	srv := newTestServer(t, st, nil)

	body := `{
		"name": "bad operator",
		"enabled": true,
		"roleIds": [],
		"filterGroup": {
			"id": "g", "logic": "AND",
			"conditions": [{
				"id": "c", "column": "region",
				"operator": "resembles", "filterType": "static", "value": "US"
			}]
		}
	}`
	rec := doRequest(t, srv, http.MethodPost, "/v1/policies", body)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}

	var resp errorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Error.Code != "invalid_policy" || len(resp.Error.Details) == 0 {
		t.Errorf("error = %+v", resp.Error)
	}
}

func TestCreatePolicyDuplicateID(t *testing.T) {
	st := seedTestStore(t)
	defer st.Close()
	srv := newTestServer(t, st, nil)

	body := `{
		"id": "p-us",
		"name": "duplicate",
		"roleIds": [],
		"filterGroup": {"id": "g", "logic": "AND", "conditions": []}
	}`
	rec := doRequest(t, srv, http.MethodPost, "/v1/policies", body)
	if rec.Code != http.StatusConflict {
		t.Errorf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
}

func TestUpdatePolicyIDMismatch(t *testing.T) {
	st := seedTestStore(t)
	defer st.Close()
	srv := newTestServer(t, st, nil)

	body := `{"id":"other","name":"x","roleIds":[],"filterGroup":{"id":"g","logic":"AND","conditions":[]}}`
	rec := doRequest(t, srv, http.MethodPut, "/v1/policies/p-us", body)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d", rec.Code)
	}
}

func TestRoleCRUD(t *testing.T) {
	st := seedTestStore(t)
	defer st.Close()
	srv := newTestServer(t, st, nil)

	rec := doRequest(t, srv, http.MethodPost, "/v1/roles", `{"name":"EU Sales"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var role rls.SecurityRole
	if err := json.Unmarshal(rec.Body.Bytes(), &role); err != nil {
		t.Fatalf("decode: %v", err)
	}

	rec = doRequest(t, srv, http.MethodGet, "/v1/roles/"+role.ID, "")
	if rec.Code != http.StatusOK {
		t.Errorf("get status = %d", rec.Code)
	}

	rec = doRequest(t, srv, http.MethodPost, "/v1/roles", `{"id":"us-sales","name":"dup"}`)
	if rec.Code != http.StatusConflict {
		t.Errorf("duplicate status = %d", rec.Code)
	}

	rec = doRequest(t, srv, http.MethodDelete, "/v1/roles/"+role.ID, "")
	if rec.Code != http.StatusNoContent {
		t.Errorf("delete status = %d, body = %s", rec.Code, rec.Body.String())
	}

	rec = doRequest(t, srv, http.MethodGet, "/v1/roles/"+role.ID, "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("get after delete status = %d", rec.Code)
	}
}

func TestSettingsRoundTrip(t *testing.T) {
	st := seedTestStore(t)
	defer st.Close()
	srv := newTestServer(t, st, nil)

	rec := doRequest(t, srv, http.MethodGet, "/v1/settings", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("get status = %d", rec.Code)
	}
	var settings rls.Settings
	if err := json.Unmarshal(rec.Body.Bytes(), &settings); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !settings.Enabled {
		t.Error("expected default settings to be enabled")
	}

	settings.DefaultDeny = true
	body, _ := json.Marshal(settings)
	rec = doRequest(t, srv, http.MethodPut, "/v1/settings", string(body))
	if rec.Code != http.StatusOK {
		t.Fatalf("put status = %d, body = %s", rec.Code, rec.Body.String())
	}

	got, err := st.GetSettings(context.Background())
	if err != nil {
		t.Fatalf("GetSettings: %v", err)
	}
	if !got.DefaultDeny {
		t.Error("DefaultDeny was not persisted")
	}
}

func TestSnapshotInfoAndCacheInvalidate(t *testing.T) {
	st := seedTestStore(t)
	defer st.Close()
	srv := newTestServer(t, st, nil)

	// Force a snapshot load.
	doRequest(t, srv, http.MethodPost, "/v1/evaluate",
		`{"tableName":"orders","user":{"userId":"u1","roleIds":["us-sales"]}}`)

	rec := doRequest(t, srv, http.MethodGet, "/v1/snapshot", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("snapshot status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var info snapshotInfo
	if err := json.Unmarshal(rec.Body.Bytes(), &info); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if info.Policies != 1 || info.Roles != 1 {
		t.Errorf("info = %+v", info)
	}

	rec = doRequest(t, srv, http.MethodPost, "/v1/cache/invalidate", "")
	if rec.Code != http.StatusNoContent {
		t.Errorf("invalidate status = %d", rec.Code)
	}
}

func TestAuditQuery(t *testing.T) {
	st := seedTestStore(t)
	defer st.Close()

	storage := audit.NewMemoryStorage()
	defer storage.Close()
	srv := newTestServer(t, st, storage)

	ctx := context.Background()
	now := time.Now()
	records := []*audit.AccessRecord{
		{ID: "r1", UserID: "u1", TableName: "orders", RecordedAt: now, EvaluatedAt: now},
		{ID: "r2", UserID: "u2", TableName: "orders", RecordedAt: now, EvaluatedAt: now, AccessDenied: true},
		{ID: "r3", UserID: "u1", TableName: "customers", RecordedAt: now, EvaluatedAt: now},
	}
	for _, r := range records {
		if err := storage.Store(ctx, r); err != nil {
			t.Fatalf("Store(%s): %v", r.ID, err)
		}
	}

	rec := doRequest(t, srv, http.MethodGet, "/v1/audit/records?user_id=u1", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var got []*audit.AccessRecord
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(got) != 2 {
		t.Errorf("records = %d, want 2", len(got))
	}

	rec = doRequest(t, srv, http.MethodGet, "/v1/audit/records?denied_only=true", "")
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(got) != 1 || got[0].ID != "r2" {
		t.Errorf("denied records = %+v", got)
	}

	rec = doRequest(t, srv, http.MethodGet, "/v1/audit/records?limit=bogus", "")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("bad limit status = %d", rec.Code)
	}

	rec = doRequest(t, srv, http.MethodGet, "/v1/audit/records?since=yesterday", "")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("bad since status = %d", rec.Code)
	}
}

func TestAuditQueryWithoutStorage(t *testing.T) {
	st := seedTestStore(t)
	defer st.Close()
	srv := newTestServer(t, st, nil)

	rec := doRequest(t, srv, http.MethodGet, "/v1/audit/records", "")
	if rec.Code != http.StatusNotImplemented {
		t.Errorf("status = %d", rec.Code)
	}
}
