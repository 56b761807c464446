package consumer

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/dprasetyo/userpulse/internal/common/config"
	"github.com/dprasetyo/userpulse/internal/common/kafka"
	"github.com/dprasetyo/userpulse/internal/common/logger"
	"github.com/dprasetyo/userpulse/internal/deadletter"
	"github.com/dprasetyo/userpulse/internal/event"
	"github.com/dprasetyo/userpulse/internal/ingest"
)

// Source is the broker side of the pipeline: poll a message, commit its
// offset once handled.
type Source interface {
	Poll(ctx context.Context, timeout time.Duration) *kafka.Message
	Commit(ctx context.Context, msg *kafka.Message) error
}

// Store persists one raw message value.
type Store interface {
	StoreEvent(ctx context.Context, raw []byte) (*ingest.StoreResult, error)
}

// Recorder quarantines messages that cannot be stored.
type Recorder interface {
	Record(ctx context.Context, payload []byte, errMsg, errType string) bool
}

// Stats are the coordinator's processing counters since startup.
type Stats struct {
	Polled           int64
	Stored           int64
	Duplicates       int64
	UnknownKinds     int64
	ValidationErrors int64
	DecodeErrors     int64
	TransientErrors  int64
	UnknownErrors    int64
	DeadLettered     int64
	CommitFailures   int64
}

// Coordinator owns the poll/store/commit loop. One message is in flight at
// a time per instance; the offset advances only after the message's fate is
// settled (stored, duplicate, or dead-lettered).
type Coordinator struct {
	source   Source
	store    Store
	recorder Recorder
	cfg      config.ConsumerConfig
	logger   *logger.Logger

	mu    sync.Mutex
	stats Stats
}

func NewCoordinator(source Source, store Store, recorder Recorder, cfg config.ConsumerConfig, log *logger.Logger) *Coordinator {
	return &Coordinator{
		source:   source,
		store:    store,
		recorder: recorder,
		cfg:      cfg,
		logger:   log,
	}
}

// Snapshot returns a copy of the current counters.
func (c *Coordinator) Snapshot() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stats
}

// Run polls until the context is cancelled or MaxEvents messages have been
// handled. It always returns nil on cancellation; the loop has no fatal
// errors of its own.
func (c *Coordinator) Run(ctx context.Context) error {
	c.logger.Infof("Consumer started (poll timeout=%s, commit on unknown error=%t)",
		c.cfg.PollTimeout, c.cfg.CommitOnUnknownError)

	var statsCh <-chan time.Time
	if c.cfg.StatsInterval > 0 {
		ticker := time.NewTicker(c.cfg.StatsInterval)
		defer ticker.Stop()
		statsCh = ticker.C
	}

	for {
		select {
		case <-ctx.Done():
			c.logFinal()
			return nil
		case <-statsCh:
			c.logStats(ctx)
		default:
		}

		msg := c.source.Poll(ctx, c.cfg.PollTimeout)
		if msg == nil {
			continue
		}

		c.handle(ctx, msg)

		if c.cfg.MaxEvents > 0 && c.Snapshot().Polled >= int64(c.cfg.MaxEvents) {
			c.logger.Infof("Reached max events (%d), stopping", c.cfg.MaxEvents)
			c.logFinal()
			return nil
		}
	}
}

// handle settles one message: store it, route any failure, and decide
// whether the offset moves. A transient failure retries the same message
// in place; the group reader never redelivers an uncommitted message
// within a session, and committing any later offset would cover this one,
// so leaving the loop before the message settles would lose it.
func (c *Coordinator) handle(ctx context.Context, msg *kafka.Message) {
	c.bump(func(s *Stats) { s.Polled++ })

	for {
		result, err := c.store.StoreEvent(ctx, msg.Value)
		if err == nil {
			if result.Duplicate {
				c.bump(func(s *Stats) { s.Duplicates++ })
				c.logger.Debugf("Duplicate event %s at offset %d", result.EventID, msg.Offset)
			} else {
				c.bump(func(s *Stats) { s.Stored++ })
			}
			if result.UnknownKind {
				c.bump(func(s *Stats) { s.UnknownKinds++ })
				c.logger.Warnf("Stored event %s with unknown event type", result.EventID)
			}
			c.commit(ctx, msg)
			return
		}

		var vErr *event.ValidationError
		var dErr *ingest.DecodeError
		var sErr *ingest.StorageError

		switch {
		case errors.As(err, &vErr):
			c.bump(func(s *Stats) { s.ValidationErrors++ })
			c.deadLetter(ctx, msg.Value, vErr.Reason, deadletter.TypeValidation)
			c.commit(ctx, msg)
			return

		case errors.As(err, &dErr):
			c.bump(func(s *Stats) { s.DecodeErrors++ })
			c.deadLetter(ctx, msg.Value, dErr.Error(), deadletter.TypeJSONDecode)
			c.commit(ctx, msg)
			return

		case errors.As(err, &sErr) && sErr.Transient:
			c.bump(func(s *Stats) { s.TransientErrors++ })
			c.logger.Warnf("Transient storage failure at offset %d, retrying: %v", msg.Offset, err)
			if !c.pause(ctx) {
				// Shutdown with the message unsettled. The offset was never
				// committed, so the next session redelivers it.
				return
			}

		case errors.As(err, &sErr):
			c.bump(func(s *Stats) { s.UnknownErrors++ })
			c.deadLetter(ctx, msg.Value, sErr.Error(), deadletter.TypeStorage)
			c.commit(ctx, msg)
			return

		default:
			c.bump(func(s *Stats) { s.UnknownErrors++ })
			c.logger.Errorf("Unexpected failure at offset %d: %v", msg.Offset, err)
			if c.cfg.CommitOnUnknownError {
				c.deadLetter(ctx, msg.Value, err.Error(), deadletter.TypeUnknown)
				c.commit(ctx, msg)
				return
			}
			// With commits on unclassified failures disabled, they hold the
			// offset like transient ones. No dead letter either; one row per
			// attempt would pile up while the message is retried.
			if !c.pause(ctx) {
				return
			}
		}
	}
}

func (c *Coordinator) deadLetter(ctx context.Context, payload []byte, errMsg, errType string) {
	if c.recorder.Record(ctx, payload, errMsg, errType) {
		c.bump(func(s *Stats) { s.DeadLettered++ })
	}
}

func (c *Coordinator) commit(ctx context.Context, msg *kafka.Message) {
	if err := c.source.Commit(ctx, msg); err != nil {
		// The message is already settled; redelivery after a failed commit
		// resolves as a duplicate.
		c.bump(func(s *Stats) { s.CommitFailures++ })
		c.logger.Errorf("Failed to commit offset %d: %v", msg.Offset, err)
	}
}

// pause backs off between retry attempts. It returns false once the
// context is done, which tells the retry loop to stop.
func (c *Coordinator) pause(ctx context.Context) bool {
	if c.cfg.BackoffInterval <= 0 {
		return ctx.Err() == nil
	}
	select {
	case <-ctx.Done():
		return false
	case <-time.After(c.cfg.BackoffInterval):
		return true
	}
}

func (c *Coordinator) bump(fn func(*Stats)) {
	c.mu.Lock()
	fn(&c.stats)
	c.mu.Unlock()
}

// lagged is satisfied by group consumers that can report partition lag.
type lagged interface {
	Lag(ctx context.Context) (map[int]int64, error)
}

func (c *Coordinator) logStats(ctx context.Context) {
	s := c.Snapshot()
	c.logger.Infof("Progress: polled=%d stored=%d duplicates=%d dead_lettered=%d transient_retries=%d",
		s.Polled, s.Stored, s.Duplicates, s.DeadLettered, s.TransientErrors)

	if l, ok := c.source.(lagged); ok {
		lag, err := l.Lag(ctx)
		if err != nil {
			c.logger.Debugf("Lag probe failed: %v", err)
			return
		}
		var total int64
		for _, n := range lag {
			total += n
		}
		c.logger.Infof("Consumer lag: %d across %d partitions", total, len(lag))
	}
}

func (c *Coordinator) logFinal() {
	s := c.Snapshot()
	c.logger.Infof("Consumer stopped: polled=%d stored=%d duplicates=%d unknown_kinds=%d validation=%d decode=%d transient=%d unknown=%d dead_lettered=%d commit_failures=%d",
		s.Polled, s.Stored, s.Duplicates, s.UnknownKinds, s.ValidationErrors,
		s.DecodeErrors, s.TransientErrors, s.UnknownErrors, s.DeadLettered, s.CommitFailures)
}
