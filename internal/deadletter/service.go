package deadletter

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/dprasetyo/userpulse/internal/common/logger"
	"github.com/dprasetyo/userpulse/internal/event"
	"github.com/dprasetyo/userpulse/internal/ingest"
)

// Recorder quarantines messages the pipeline could not store. Recording is
// best-effort: a failure here is logged and reported to the caller, never
// propagated, so the consumer loop keeps its own commit decision.
type Recorder struct {
	repo   *Repository
	logger *logger.Logger
}

func NewRecorder(repo *Repository, log *logger.Logger) *Recorder {
	return &Recorder{
		repo:   repo,
		logger: log,
	}
}

// Record stores one failed payload. Non-JSON payloads are wrapped so the
// original bytes survive in the JSONB column. Returns false when the write
// itself failed.
func (r *Recorder) Record(ctx context.Context, payload []byte, errMsg, errType string) bool {
	entry := &Entry{
		EventData:    normalizePayload(payload),
		ErrorMessage: errMsg,
		ErrorType:    errType,
	}
	if id := extractEventID(payload); id != "" {
		entry.EventID = &id
	}

	if err := r.repo.Insert(ctx, entry); err != nil {
		r.logger.Errorf("Failed to record dead letter (type=%s): %v", errType, err)
		return false
	}

	r.logger.Warnf("Dead-lettered message (type=%s): %s", errType, errMsg)
	return true
}

// normalizePayload returns payload unchanged when it is valid JSON, or
// wraps the raw bytes as {"raw": "..."} when it is not.
func normalizePayload(payload []byte) json.RawMessage {
	if json.Valid(payload) {
		return payload
	}
	wrapped, err := json.Marshal(map[string]string{"raw": string(payload)})
	if err != nil {
		return json.RawMessage(`{"raw": ""}`)
	}
	return wrapped
}

func extractEventID(payload []byte) string {
	var probe struct {
		EventID string `json:"event_id"`
	}
	if err := json.Unmarshal(payload, &probe); err != nil {
		return ""
	}
	return probe.EventID
}

// StoreFunc retries one quarantined payload through the ingestion path.
type StoreFunc func(ctx context.Context, raw []byte) error

// Reprocessor periodically drains pending entries back through storage.
// Entries that store (or dedup) resolve; payloads that can never be valid
// go dead immediately; everything else returns to pending until the retry
// budget runs out.
type Reprocessor struct {
	repo       *Repository
	store      StoreFunc
	interval   time.Duration
	maxRetries int
	batchSize  int
	logger     *logger.Logger
}

func NewReprocessor(repo *Repository, store StoreFunc, interval time.Duration, maxRetries int, log *logger.Logger) *Reprocessor {
	return &Reprocessor{
		repo:       repo,
		store:      store,
		interval:   interval,
		maxRetries: maxRetries,
		batchSize:  50,
		logger:     log,
	}
}

// Run drains the queue on a ticker until the context is cancelled.
func (p *Reprocessor) Run(ctx context.Context) {
	p.logger.Infof("Dead letter reprocessor started (interval=%s, max retries=%d)", p.interval, p.maxRetries)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("Dead letter reprocessor stopped")
			return
		case <-ticker.C:
			p.processBatch(ctx)
		}
	}
}

func (p *Reprocessor) processBatch(ctx context.Context) {
	entries, err := p.repo.GetPending(ctx, p.batchSize, p.maxRetries)
	if err != nil {
		p.logger.Errorf("Failed to fetch pending dead letters: %v", err)
		return
	}

	for _, entry := range entries {
		if ctx.Err() != nil {
			return
		}
		p.processEntry(ctx, entry)
	}
}

func (p *Reprocessor) processEntry(ctx context.Context, entry *Entry) {
	if err := p.repo.MarkRetrying(ctx, entry.ID); err != nil {
		p.logger.Errorf("Failed to claim dead letter %s: %v", entry.ID, err)
		return
	}
	attempt := entry.RetryCount + 1

	err := p.store(ctx, entry.EventData)
	if err == nil {
		p.logger.Infof("Dead letter %s resolved on attempt %d", entry.ID, attempt)
		p.markFinal(ctx, entry.ID, p.repo.MarkResolved)
		return
	}

	// A payload that fails validation or decoding will fail the same way
	// forever. Retrying it only burns budget.
	var vErr *event.ValidationError
	var dErr *ingest.DecodeError
	if errors.As(err, &vErr) || errors.As(err, &dErr) {
		p.logger.Warnf("Dead letter %s is permanently invalid: %v", entry.ID, err)
		p.markFinal(ctx, entry.ID, p.repo.MarkDead)
		return
	}

	if attempt >= p.maxRetries {
		p.logger.Warnf("Dead letter %s exhausted %d retries: %v", entry.ID, attempt, err)
		p.markFinal(ctx, entry.ID, p.repo.MarkDead)
		return
	}

	p.logger.Debugf("Dead letter %s attempt %d failed, will retry: %v", entry.ID, attempt, err)
	p.markFinal(ctx, entry.ID, p.repo.MarkPending)
}

func (p *Reprocessor) markFinal(ctx context.Context, id string, mark func(context.Context, string) error) {
	if err := mark(ctx, id); err != nil {
		p.logger.Errorf("Failed to update dead letter %s: %v", id, err)
	}
}
