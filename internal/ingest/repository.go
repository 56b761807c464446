package ingest

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/dprasetyo/userpulse/internal/common/db"
	"github.com/dprasetyo/userpulse/internal/common/logger"
)

// Repository persists users, events, and stats. The Tx variants run inside
// the caller's transaction so one message's writes commit or roll back as a
// unit.
type Repository struct {
	db     *db.DB
	logger *logger.Logger
}

func NewRepository(database *db.DB, log *logger.Logger) *Repository {
	return &Repository{
		db:     database,
		logger: log,
	}
}

// FindUserTx looks up a user by external identifier. Returns nil when the
// user does not exist.
func (r *Repository) FindUserTx(ctx context.Context, tx *sql.Tx, userID string) (*User, error) {
	query := `
		SELECT id, user_id, email, first_name, last_name, country,
		       is_active, signup_date, created_at, updated_at
		FROM users
		WHERE user_id = $1
	`

	user := &User{}
	var email, firstName, lastName, country sql.NullString
	var signupDate sql.NullTime

	err := tx.QueryRowContext(ctx, query, userID).Scan(
		&user.ID,
		&user.UserID,
		&email,
		&firstName,
		&lastName,
		&country,
		&user.IsActive,
		&signupDate,
		&user.CreatedAt,
		&user.UpdatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find user: %w", err)
	}

	if email.Valid {
		user.Email = &email.String
	}
	if firstName.Valid {
		user.FirstName = &firstName.String
	}
	if lastName.Valid {
		user.LastName = &lastName.String
	}
	if country.Valid {
		user.Country = &country.String
	}
	if signupDate.Valid {
		user.SignupDate = &signupDate.Time
	}

	return user, nil
}

// CreateUserTx inserts a new user row from whatever profile fields the
// payload supplied.
func (r *Repository) CreateUserTx(ctx context.Context, tx *sql.Tx, user *User) error {
	query := `
		INSERT INTO users (user_id, email, first_name, last_name, country, is_active, signup_date)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at
	`

	err := tx.QueryRowContext(
		ctx,
		query,
		user.UserID,
		user.Email,
		user.FirstName,
		user.LastName,
		user.Country,
		user.IsActive,
		user.SignupDate,
	).Scan(&user.ID, &user.CreatedAt)

	if err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}

	r.logger.Infof("Created new user: %s", user.UserID)
	return nil
}

// FindEventIDTx checks whether an event identifier is already stored.
// Returns "" when it is not.
func (r *Repository) FindEventIDTx(ctx context.Context, tx *sql.Tx, eventID string) (string, error) {
	query := `SELECT event_id FROM user_events WHERE event_id = $1`

	var existing string
	err := tx.QueryRowContext(ctx, query, eventID).Scan(&existing)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to look up event: %w", err)
	}

	return existing, nil
}

// CountDurationEventsTx counts the user's stored events that carry a
// duration value. Called before inserting the new event: the count is the
// denominator basis for the running mean.
func (r *Repository) CountDurationEventsTx(ctx context.Context, tx *sql.Tx, userID string) (int64, error) {
	query := `SELECT COUNT(*) FROM user_events WHERE user_id = $1 AND duration IS NOT NULL`

	var count int64
	if err := tx.QueryRowContext(ctx, query, userID).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count duration events: %w", err)
	}

	return count, nil
}

// InsertEventTx appends one immutable row to the event log.
func (r *Repository) InsertEventTx(ctx context.Context, tx *sql.Tx, evt *Event) error {
	var metadata []byte
	if evt.Metadata != nil {
		var err error
		metadata, err = json.Marshal(evt.Metadata)
		if err != nil {
			return fmt.Errorf("failed to marshal event metadata: %w", err)
		}
	}

	query := `
		INSERT INTO user_events (event_id, user_id, event_type, timestamp, duration, event_metadata)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at
	`

	err := tx.QueryRowContext(
		ctx,
		query,
		evt.EventID,
		evt.UserID,
		evt.EventType,
		evt.Timestamp,
		evt.Duration,
		metadata,
	).Scan(&evt.ID, &evt.CreatedAt)

	if err != nil {
		return fmt.Errorf("failed to insert event: %w", err)
	}

	return nil
}

// EnsureStatsTx lazily creates the user's stats row with zero counts. A
// no-op when the row already exists.
func (r *Repository) EnsureStatsTx(ctx context.Context, tx *sql.Tx, userID string) error {
	query := `
		INSERT INTO user_stats (user_id)
		VALUES ($1)
		ON CONFLICT (user_id) DO NOTHING
	`

	if _, err := tx.ExecContext(ctx, query, userID); err != nil {
		return fmt.Errorf("failed to ensure stats row: %w", err)
	}

	return nil
}

// StatsUpdate is one accepted event's contribution to the user's aggregates.
// Amount is the exact decimal text of a purchase ("0" otherwise); the
// addition happens in SQL NUMERIC so no float ever touches money.
type StatsUpdate struct {
	UserID      string
	Timestamp   time.Time
	IsPurchase  bool
	Amount      string
	HasDuration bool
	Duration    float64
	// DurationCount is the number of already stored events with a duration,
	// counted before this event's insert. It anchors the running mean.
	DurationCount int64
}

// ApplyEventTx folds one event into the stats row in a single UPDATE. The
// running duration mean is rebalanced from the pre-insert count, and the
// engagement score is recomputed from the post-increment counters and
// clamped to 100, all in SQL.
func (r *Repository) ApplyEventTx(ctx context.Context, tx *sql.Tx, upd StatsUpdate) error {
	purchases := 0
	amount := "0"
	if upd.IsPurchase {
		purchases = 1
		amount = upd.Amount
	}

	query := `
		UPDATE user_stats SET
			total_events = total_events + 1,
			total_purchases = total_purchases + $2,
			total_spent = total_spent + $3::numeric,
			last_active = $4,
			last_purchase = CASE WHEN $2 > 0 THEN $4 ELSE last_purchase END,
			avg_session_duration = CASE WHEN $5
				THEN (avg_session_duration * $7 + $6) / ($7 + 1)
				ELSE avg_session_duration END,
			engagement_score = LEAST(100.0, (total_events + 1) * 0.5 + (total_purchases + $2) * 5.0),
			updated_at = CURRENT_TIMESTAMP
		WHERE user_id = $1
	`

	result, err := tx.ExecContext(
		ctx,
		query,
		upd.UserID,
		purchases,
		amount,
		upd.Timestamp,
		upd.HasDuration,
		upd.Duration,
		upd.DurationCount,
	)
	if err != nil {
		return fmt.Errorf("failed to update stats: %w", err)
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return fmt.Errorf("stats row missing for user %s", upd.UserID)
	}

	return nil
}

// GetStats reads a user's aggregate row. Returns nil when the user has no
// stats yet.
func (r *Repository) GetStats(ctx context.Context, userID string) (*Stats, error) {
	query := `
		SELECT id, user_id, total_events, total_purchases, total_spent,
		       last_active, last_purchase, avg_session_duration,
		       engagement_score, churn_risk, created_at, updated_at
		FROM user_stats
		WHERE user_id = $1
	`

	stats := &Stats{}
	var lastActive, lastPurchase sql.NullTime

	err := r.db.QueryRowContext(ctx, query, userID).Scan(
		&stats.ID,
		&stats.UserID,
		&stats.TotalEvents,
		&stats.TotalPurchases,
		&stats.TotalSpent,
		&lastActive,
		&lastPurchase,
		&stats.AvgSessionDuration,
		&stats.EngagementScore,
		&stats.ChurnRisk,
		&stats.CreatedAt,
		&stats.UpdatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get stats: %w", err)
	}

	if lastActive.Valid {
		stats.LastActive = &lastActive.Time
	}
	if lastPurchase.Valid {
		stats.LastPurchase = &lastPurchase.Time
	}

	return stats, nil
}
