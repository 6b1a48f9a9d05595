package audit

import (
	"context"
	"testing"
	"time"

	"openboard/rowguard/pkg/rls"
	"openboard/rowguard/pkg/rls/engine"
)

func sampleDecision() engine.DecisionRecord {
	effective := rls.FilterDecision{
		HasFilters:      true,
		WhereClause:     `"region" = ?`,
		Args:            []interface{}{"US"},
		PoliciesApplied: []string{"p-us"},
	}
	return engine.DecisionRecord{
		EvaluatedAt:  time.Now(),
		UserID:       "u1",
		Username:     "alice",
		RoleIDs:      []string{"us-sales"},
		ConnectionID: "primary",
		SchemaName:   "public",
		TableName:    "orders",
		Decision:     effective,
		Enforced:     effective,
		Duration:     250 * time.Microsecond,
		Generation:   7,
	}
}

func TestRecorderWritesThroughWorker(t *testing.T) {
	storage := NewMemoryStorage()
	r := NewRecorder(storage, nil, nil)

	r.RecordDecision(sampleDecision())

	if err := r.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	records, err := storage.Query(context.Background(), QueryFilter{})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("records = %d, want 1", len(records))
	}

	record := records[0]
	if record.ID == "" {
		t.Error("record missing id")
	}
	if record.UserID != "u1" || record.TableName != "orders" {
		t.Errorf("record = %+v", record)
	}
	if record.Generation != 7 {
		t.Errorf("generation = %d", record.Generation)
	}
	if !record.HasFilters || record.WhereClause != `"region" = ?` {
		t.Errorf("decision fields = %+v", record)
	}
}

func TestRecorderAuditModeCarriesBothDecisions(t *testing.T) {
	storage := NewMemoryStorage()
	r := NewRecorder(storage, nil, nil)

	decision := sampleDecision()
	decision.AuditOnly = true
	decision.Decision = rls.Unrestricted()
	decision.Enforced = rls.Denied(rls.DenialNoMatchingPolicy)
	r.RecordDecision(decision)

	if err := r.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	records, err := storage.Query(context.Background(), QueryFilter{DeniedOnly: true})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("records = %d, want 1", len(records))
	}
	record := records[0]
	if !record.AuditOnly || record.AccessDenied || !record.EnforcedDenied {
		t.Errorf("record = %+v", record)
	}
}

func TestRecorderDropsWhenBufferFull(t *testing.T) {
	storage := NewMemoryStorage()
	config := DefaultConfig()
	config.AsyncBuffer = 1
	r := NewRecorder(storage, config, nil)
	defer r.Close()

	// Swamp a one-slot buffer; some records must be dropped rather than
	// blocking the caller.
	for i := 0; i < 200; i++ {
		r.RecordDecision(sampleDecision())
	}
	// Whatever was not dropped will be drained by Close; the call above
	// must simply never have blocked.
	_ = r.Dropped()
}

func TestRecorderDisabled(t *testing.T) {
	storage := NewMemoryStorage()
	config := DefaultConfig()
	config.Enabled = false
	r := NewRecorder(storage, config, nil)

	r.RecordDecision(sampleDecision())
	if err := r.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	count, err := storage.Count(context.Background())
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if count != 0 {
		t.Errorf("count = %d, want 0", count)
	}
}
