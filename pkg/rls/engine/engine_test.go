package engine

import (
	"context"
	"errors"
	"reflect"
	"sync"
	"testing"

	"openboard/rowguard/pkg/rls"
	"openboard/rowguard/pkg/rls/store"
)

func newTestEngine(t *testing.T, st store.Store) *Engine {
	t.Helper()
	e, err := NewEngine(st, nil, nil)
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	return e
}

func seedStore(t *testing.T) *store.MemoryStore {
	t.Helper()
	ctx := context.Background()
	st := store.NewMemoryStore()

	roles := []rls.SecurityRole{
		{ID: "us-sales", Name: "US Sales"},
		{ID: "eu-sales", Name: "EU Sales"},
	}
	for _, r := range roles {
		if err := st.CreateRole(ctx, r); err != nil {
			t.Fatalf("CreateRole(%s): %v", r.ID, err)
		}
	}

	policies := []rls.Policy{
		{
			ID: "p-us", Name: "US region", Enabled: true,
			TableName:   "orders",
			RoleIDs:     []string{"us-sales"},
			FilterGroup: andGroup(staticCond("region", rls.OperatorEquals, "US")),
		},
		{
			ID: "p-eu", Name: "EU region", Enabled: true,
			TableName:   "orders",
			RoleIDs:     []string{"eu-sales"},
			FilterGroup: andGroup(staticCond("region", rls.OperatorEquals, "EU")),
		},
	}
	for _, p := range policies {
		if err := st.CreatePolicy(ctx, p); err != nil {
			t.Fatalf("CreatePolicy(%s): %v", p.ID, err)
		}
	}
	return st
}

func TestEvaluateAppliesOnlyRoleScopedPolicies(t *testing.T) {
	ctx := context.Background()
	st := seedStore(t)
	defer st.Close()
	e := newTestEngine(t, st)

	usUser := &rls.UserSecurityContext{UserID: "u1", RoleIDs: []string{"us-sales"}}
	decision := e.Evaluate(ctx, "primary", "public", "orders", usUser)

	if !decision.HasFilters {
		t.Fatal("expected a filter")
	}
	if decision.WhereClause != `"region" = ?` {
		t.Errorf("WhereClause = %q", decision.WhereClause)
	}
	if !reflect.DeepEqual(decision.Args, []interface{}{"US"}) {
		t.Errorf("Args = %v", decision.Args)
	}
	if !reflect.DeepEqual(decision.PoliciesApplied, []string{"p-us"}) {
		t.Errorf("PoliciesApplied = %v", decision.PoliciesApplied)
	}

	bothUser := &rls.UserSecurityContext{UserID: "u2", RoleIDs: []string{"us-sales", "eu-sales"}}
	decision = e.Evaluate(ctx, "primary", "public", "orders", bothUser)
	want := `("region" = ?) OR ("region" = ?)`
	if decision.WhereClause != want {
		t.Errorf("WhereClause = %q, want %q", decision.WhereClause, want)
	}
}

func TestEvaluateNoMatchingPolicy(t *testing.T) {
	ctx := context.Background()
	st := seedStore(t)
	defer st.Close()
	e := newTestEngine(t, st)
	user := &rls.UserSecurityContext{UserID: "u1", RoleIDs: []string{"us-sales"}}

	t.Run("default allow leaves the table unrestricted", func(t *testing.T) {
		decision := e.Evaluate(ctx, "primary", "public", "customers", user)
		if decision.HasFilters || decision.AccessDenied {
			t.Errorf("decision = %+v", decision)
		}
	})

	t.Run("default deny refuses the table", func(t *testing.T) {
		settings := rls.DefaultSettings()
		settings.DefaultDeny = true
		if err := st.UpdateSettings(ctx, settings); err != nil {
			t.Fatalf("UpdateSettings: %v", err)
		}

		decision := e.Evaluate(ctx, "primary", "public", "customers", user)
		if !decision.AccessDenied || decision.DenialReason != rls.DenialNoMatchingPolicy {
			t.Errorf("decision = %+v", decision)
		}
	})
}

func TestEvaluateDisabledEngineBypassesEverything(t *testing.T) {
	ctx := context.Background()
	st := seedStore(t)
	defer st.Close()
	e := newTestEngine(t, st)

	settings := rls.DefaultSettings()
	settings.Enabled = false
	settings.DefaultDeny = true
	if err := st.UpdateSettings(ctx, settings); err != nil {
		t.Fatalf("UpdateSettings: %v", err)
	}

	user := &rls.UserSecurityContext{UserID: "u1", RoleIDs: []string{"us-sales"}}
	decision := e.Evaluate(ctx, "primary", "public", "orders", user)
	if decision.HasFilters || decision.AccessDenied {
		t.Errorf("decision = %+v", decision)
	}
}

type captureAuditor struct {
	mu      sync.Mutex
	records []DecisionRecord
}

func (a *captureAuditor) RecordDecision(record DecisionRecord) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.records = append(a.records, record)
}

func (a *captureAuditor) recorded() []DecisionRecord {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]DecisionRecord{}, a.records...)
}

func TestEvaluateDisabledEngineStillRecordsAccess(t *testing.T) {
	ctx := context.Background()
	st := seedStore(t)
	defer st.Close()
	e := newTestEngine(t, st)

	auditor := &captureAuditor{}
	e.SetAuditor(auditor)

	settings := rls.DefaultSettings()
	settings.Enabled = false
	settings.LogAccess = true
	if err := st.UpdateSettings(ctx, settings); err != nil {
		t.Fatalf("UpdateSettings: %v", err)
	}

	user := &rls.UserSecurityContext{UserID: "u1", RoleIDs: []string{"us-sales"}}
	decision := e.Evaluate(ctx, "primary", "public", "orders", user)
	if decision.HasFilters || decision.AccessDenied {
		t.Errorf("decision = %+v", decision)
	}

	records := auditor.recorded()
	if len(records) != 1 {
		t.Fatalf("records = %d, want 1", len(records))
	}
	rec := records[0]
	if rec.UserID != "u1" || rec.TableName != "orders" {
		t.Errorf("record = %+v", rec)
	}
	if rec.Decision.HasFilters || rec.Decision.AccessDenied {
		t.Errorf("Decision = %+v", rec.Decision)
	}
	if rec.Enforced.HasFilters || rec.Enforced.AccessDenied {
		t.Errorf("Enforced = %+v", rec.Enforced)
	}
}

func TestEvaluateAuditModeNeverDenies(t *testing.T) {
	ctx := context.Background()
	st := seedStore(t)
	defer st.Close()
	e := newTestEngine(t, st)

	settings := rls.DefaultSettings()
	settings.AuditMode = true
	settings.DefaultDeny = true
	if err := st.UpdateSettings(ctx, settings); err != nil {
		t.Fatalf("UpdateSettings: %v", err)
	}

	user := &rls.UserSecurityContext{UserID: "u1", RoleIDs: []string{"us-sales"}}

	decision := e.Evaluate(ctx, "primary", "public", "orders", user)
	if decision.HasFilters || decision.AccessDenied {
		t.Errorf("decision = %+v", decision)
	}
	if !reflect.DeepEqual(decision.PoliciesApplied, []string{"p-us"}) {
		t.Errorf("PoliciesApplied = %v", decision.PoliciesApplied)
	}

	// Even an unmatched table under default deny stays open in audit mode.
	decision = e.Evaluate(ctx, "primary", "public", "customers", user)
	if decision.AccessDenied {
		t.Errorf("decision = %+v", decision)
	}
}

func TestEvaluateCaching(t *testing.T) {
	ctx := context.Background()
	st := seedStore(t)
	defer st.Close()
	e := newTestEngine(t, st)
	user := &rls.UserSecurityContext{UserID: "u1", RoleIDs: []string{"us-sales"}}

	first := e.Evaluate(ctx, "primary", "public", "orders", user)
	second := e.Evaluate(ctx, "primary", "public", "orders", user)
	if !reflect.DeepEqual(first, second) {
		t.Errorf("repeat decision differs: %+v vs %+v", first, second)
	}
	if e.cache.size() == 0 {
		t.Error("expected a cached entry")
	}

	// A mutation bumps the generation; the next evaluation must see it
	// without waiting for any TTL.
	if err := st.TogglePolicy(ctx, "p-us", false); err != nil {
		t.Fatalf("TogglePolicy: %v", err)
	}
	third := e.Evaluate(ctx, "primary", "public", "orders", user)
	if third.HasFilters {
		t.Errorf("decision after disable = %+v", third)
	}
}

func TestEvaluateCacheKeyIgnoresRoleOrder(t *testing.T) {
	if cacheKey("c", "s", "t", []string{"b", "a"}) != cacheKey("c", "s", "t", []string{"a", "b"}) {
		t.Error("cache key depends on role order")
	}
	if cacheKey("c", "s", "t", []string{"a"}) == cacheKey("c", "s", "t", []string{"b"}) {
		t.Error("cache key ignores roles")
	}
}

type failingStore struct {
	gen uint64
}

func (f *failingStore) ListPolicies(ctx context.Context) ([]rls.Policy, error) {
	return nil, errors.New("store down")
}

func (f *failingStore) ListRoles(ctx context.Context) ([]rls.SecurityRole, error) {
	return nil, errors.New("store down")
}

func (f *failingStore) GetSettings(ctx context.Context) (rls.Settings, error) {
	return rls.Settings{}, errors.New("store down")
}

func (f *failingStore) Generation() uint64 { return f.gen }

func (f *failingStore) Watch(ctx context.Context) (<-chan store.Event, error) {
	return nil, errors.New("store down")
}

func (f *failingStore) Close() error { return nil }

func TestEvaluateWithoutSnapshotDenies(t *testing.T) {
	e := newTestEngine(t, &failingStore{gen: 1})
	user := &rls.UserSecurityContext{UserID: "u1"}

	decision := e.Evaluate(context.Background(), "primary", "public", "orders", user)
	if !decision.AccessDenied || decision.DenialReason != rls.DenialEngineUnavailable {
		t.Errorf("decision = %+v", decision)
	}
}

func TestEvaluateRow(t *testing.T) {
	ctx := context.Background()
	st := seedStore(t)
	defer st.Close()
	e := newTestEngine(t, st)
	user := &rls.UserSecurityContext{UserID: "u1", RoleIDs: []string{"us-sales"}}

	if !e.EvaluateRow(ctx, "primary", "public", "orders", user, map[string]interface{}{"region": "US"}) {
		t.Error("US row should be visible to us-sales")
	}
	if e.EvaluateRow(ctx, "primary", "public", "orders", user, map[string]interface{}{"region": "EU"}) {
		t.Error("EU row should be hidden from us-sales")
	}
	// No matching policy, default allow.
	if !e.EvaluateRow(ctx, "primary", "public", "customers", user, map[string]interface{}{}) {
		t.Error("unmatched table should be visible under default allow")
	}
}

func TestEngineStartStop(t *testing.T) {
	st := seedStore(t)
	defer st.Close()
	e := newTestEngine(t, st)

	if err := e.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if e.Snapshot() == nil {
		t.Error("expected a snapshot after Start")
	}
	e.Stop()
}
