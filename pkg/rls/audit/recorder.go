package audit

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"openboard/rowguard/pkg/rls/engine"
)

// Config contains configuration for the audit recorder.
type Config struct {
	// Enabled enables audit recording.
	Enabled bool

	// AsyncBuffer is the size of the async write channel buffer.
	// Default: 1000
	AsyncBuffer int

	// WriteTimeout is the timeout for writing a record to storage.
	// Default: 5 seconds
	WriteTimeout time.Duration
}

// DefaultConfig returns the default recorder configuration.
func DefaultConfig() *Config {
	return &Config{
		Enabled:      true,
		AsyncBuffer:  1000,
		WriteTimeout: 5 * time.Second,
	}
}

// Recorder persists engine decisions asynchronously so the evaluation
// hot path never blocks on audit storage. When the buffer is full the
// record is dropped and counted, never queued at the caller's expense.
//
// Recorder implements the engine's Auditor interface.
type Recorder struct {
	storage Storage
	config  *Config
	logger  *slog.Logger

	recordChan chan *AccessRecord
	done       chan struct{}
	wg         sync.WaitGroup

	mu      sync.Mutex
	dropped int64
}

// NewRecorder creates a recorder over the given storage and starts its
// background writer.
func NewRecorder(storage Storage, config *Config, logger *slog.Logger) *Recorder {
	if config == nil {
		config = DefaultConfig()
	}
	if logger == nil {
		logger = slog.Default()
	}

	r := &Recorder{
		storage:    storage,
		config:     config,
		logger:     logger.With("component", "rls-audit"),
		recordChan: make(chan *AccessRecord, config.AsyncBuffer),
		done:       make(chan struct{}),
	}

	r.wg.Add(1)
	go r.worker()

	r.logger.Info("audit recorder started",
		"async_buffer", config.AsyncBuffer,
		"write_timeout", config.WriteTimeout.String())
	return r
}

// RecordDecision converts an engine decision into an access record and
// enqueues it. It never blocks.
func (r *Recorder) RecordDecision(decision engine.DecisionRecord) {
	if !r.config.Enabled {
		return
	}

	record := &AccessRecord{
		ID:          uuid.New().String(),
		EvaluatedAt: decision.EvaluatedAt,
		RecordedAt:  time.Now(),

		UserID:   decision.UserID,
		Username: decision.Username,
		RoleIDs:  decision.RoleIDs,

		ConnectionID: decision.ConnectionID,
		SchemaName:   decision.SchemaName,
		TableName:    decision.TableName,

		HasFilters:      decision.Decision.HasFilters,
		WhereClause:     decision.Decision.WhereClause,
		PoliciesApplied: decision.Decision.PoliciesApplied,
		AccessDenied:    decision.Decision.AccessDenied,
		DenialReason:    decision.Decision.DenialReason,

		AuditOnly:           decision.AuditOnly,
		EnforcedHasFilters:  decision.Enforced.HasFilters,
		EnforcedDenied:      decision.Enforced.AccessDenied,
		EnforcedWhereClause: decision.Enforced.WhereClause,

		CacheHit:       decision.CacheHit,
		DurationMicros: decision.Duration.Microseconds(),
		Generation:     decision.Generation,
	}

	select {
	case r.recordChan <- record:
	case <-r.done:
	default:
		r.mu.Lock()
		r.dropped++
		dropped := r.dropped
		r.mu.Unlock()
		r.logger.Warn("audit buffer full, dropping record",
			"record_id", record.ID,
			"dropped_total", dropped)
	}
}

// Dropped returns how many records were dropped due to a full buffer.
func (r *Recorder) Dropped() int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.dropped
}

// Close drains the buffer and waits for all pending writes.
func (r *Recorder) Close() error {
	close(r.done)
	r.wg.Wait()
	return nil
}

func (r *Recorder) worker() {
	defer r.wg.Done()

	for {
		select {
		case record := <-r.recordChan:
			r.writeRecord(record)

		case <-r.done:
			for {
				select {
				case record := <-r.recordChan:
					r.writeRecord(record)
				default:
					return
				}
			}
		}
	}
}

func (r *Recorder) writeRecord(record *AccessRecord) {
	ctx, cancel := context.WithTimeout(context.Background(), r.config.WriteTimeout)
	defer cancel()

	if err := r.storage.Store(ctx, record); err != nil {
		r.logger.Error("failed to store audit record",
			"record_id", record.ID,
			"error", err)
		return
	}

	r.logger.Debug("audit record stored",
		"record_id", record.ID,
		"user_id", record.UserID,
		"table", record.TableName,
		"access_denied", record.AccessDenied)
}
