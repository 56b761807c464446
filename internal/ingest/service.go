package ingest

import (
	"context"
	"database/sql"
	"time"

	"github.com/dprasetyo/userpulse/internal/common/db"
	"github.com/dprasetyo/userpulse/internal/common/logger"
	"github.com/dprasetyo/userpulse/internal/common/redis"
	"github.com/dprasetyo/userpulse/internal/event"
)

const idempotencyTTL = 24 * time.Hour

// Service stores validated activity events. Every accepted event lands in a
// single transaction: user registration, the event log row, and the stats
// update commit together or not at all.
type Service struct {
	db     *db.DB
	repo   *Repository
	redis  *redis.Client
	logger *logger.Logger
}

// NewService wires the storage service. The redis client is optional; when
// nil the database unique constraint is the only deduplication layer.
func NewService(database *db.DB, repo *Repository, rdb *redis.Client, log *logger.Logger) *Service {
	return &Service{
		db:     database,
		repo:   repo,
		redis:  rdb,
		logger: log,
	}
}

// StoreEvent decodes, validates, and persists one raw message value.
//
// Error contract: *DecodeError for non-JSON bytes, *event.ValidationError
// for payloads that fail validation, *StorageError for database failures
// (Transient set when redelivery should retry). A replayed event identifier
// is not an error; it returns a result with Duplicate set.
func (s *Service) StoreEvent(ctx context.Context, raw []byte) (*StoreResult, error) {
	payload, err := event.Decode(raw)
	if err != nil {
		return nil, &DecodeError{Err: err}
	}

	activity, err := event.Parse(payload)
	if err != nil {
		return nil, err
	}

	result := &StoreResult{
		EventID:     activity.EventID,
		UnknownKind: activity.UnknownKind,
	}

	// Advisory fast path. The unique constraint inside the transaction is
	// the authority; a cache miss here costs nothing but a lookup.
	if s.redis != nil {
		seen, err := s.redis.CheckIdempotency(ctx, activity.EventID)
		if err != nil {
			s.logger.Warnf("Idempotency cache check failed for %s: %v", activity.EventID, err)
		} else if seen {
			result.Duplicate = true
			return result, nil
		}
	}

	err = s.db.WithTransaction(ctx, func(ctx context.Context, tx *sql.Tx) error {
		existing, err := s.repo.FindEventIDTx(ctx, tx, activity.EventID)
		if err != nil {
			return err
		}
		if existing != "" {
			result.Duplicate = true
			return nil
		}

		if err := s.ensureUserTx(ctx, tx, activity); err != nil {
			return err
		}

		upd := StatsUpdate{
			UserID:    activity.UserID,
			Timestamp: activity.Timestamp,
		}
		if amount, ok := activity.PurchaseAmount(); ok {
			upd.IsPurchase = true
			upd.Amount = amount
		}
		if activity.Duration != nil {
			count, err := s.repo.CountDurationEventsTx(ctx, tx, activity.UserID)
			if err != nil {
				return err
			}
			upd.HasDuration = true
			upd.Duration = *activity.Duration
			upd.DurationCount = count
		}

		evt := &Event{
			EventID:   activity.EventID,
			UserID:    activity.UserID,
			EventType: activity.Kind,
			Timestamp: activity.Timestamp,
			Duration:  activity.Duration,
			Metadata:  activity.Metadata,
		}
		if err := s.repo.InsertEventTx(ctx, tx, evt); err != nil {
			return err
		}

		if err := s.repo.EnsureStatsTx(ctx, tx, activity.UserID); err != nil {
			return err
		}
		return s.repo.ApplyEventTx(ctx, tx, upd)
	})

	if err != nil {
		// Another writer inserted the same event_id between our lookup and
		// insert. Same outcome as the lookup hit: duplicate, success.
		if isDuplicateKey(err) {
			result.Duplicate = true
			return result, nil
		}
		return nil, newStorageError(err)
	}

	if !result.Duplicate && s.redis != nil {
		if err := s.redis.SetIdempotency(ctx, activity.EventID, idempotencyTTL); err != nil {
			s.logger.Warnf("Failed to mark idempotency for %s: %v", activity.EventID, err)
		}
	}

	return result, nil
}

// ensureUserTx registers the user on first sight. Profile fields come from
// the event payload and the signup date from the event timestamp; later
// events never overwrite them.
func (s *Service) ensureUserTx(ctx context.Context, tx *sql.Tx, activity *event.Activity) error {
	user, err := s.repo.FindUserTx(ctx, tx, activity.UserID)
	if err != nil {
		return err
	}
	if user != nil {
		return nil
	}

	signup := activity.Timestamp
	newUser := &User{
		UserID:     activity.UserID,
		IsActive:   true,
		SignupDate: &signup,
	}
	if activity.Profile.Email != "" {
		newUser.Email = &activity.Profile.Email
	}
	if activity.Profile.FirstName != "" {
		newUser.FirstName = &activity.Profile.FirstName
	}
	if activity.Profile.LastName != "" {
		newUser.LastName = &activity.Profile.LastName
	}
	if activity.Profile.Country != "" {
		newUser.Country = &activity.Profile.Country
	}

	return s.repo.CreateUserTx(ctx, tx, newUser)
}
