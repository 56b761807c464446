package deadletter

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/dprasetyo/userpulse/internal/common/db"
	"github.com/dprasetyo/userpulse/internal/common/logger"
)

// Repository persists quarantined messages. Writes run on their own
// connection, never inside the ingestion transaction: a dead-letter record
// must survive the rollback that caused it.
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

// Insert records a new entry with status pending.
func (r *Repository) Insert(ctx context.Context, entry *Entry) error {
	query := `
		INSERT INTO dead_letter_queue (event_id, event_data, error_message, error_type)
		VALUES ($1, $2, $3, $4)
		RETURNING id, status, created_at
	`

	var eventID sql.NullString
	if entry.EventID != nil {
		eventID = sql.NullString{String: *entry.EventID, Valid: true}
	}

	err := r.db.QueryRowContext(
		ctx,
		query,
		eventID,
		[]byte(entry.EventData),
		entry.ErrorMessage,
		entry.ErrorType,
	).Scan(&entry.ID, &entry.Status, &entry.CreatedAt)

	if err != nil {
		return fmt.Errorf("failed to insert dead letter entry: %w", err)
	}

	return nil
}

// GetPending returns entries eligible for another attempt, oldest first.
func (r *Repository) GetPending(ctx context.Context, limit, maxRetries int) ([]*Entry, error) {
	query := `
		SELECT id, event_id, event_data, error_message, error_type,
		       retry_count, status, created_at, updated_at
		FROM dead_letter_queue
		WHERE status = $1 AND retry_count < $2
		ORDER BY created_at ASC
		LIMIT $3
	`

	rows, err := r.db.QueryContext(ctx, query, StatusPending, maxRetries, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get pending entries: %w", err)
	}
	defer rows.Close()

	var entries []*Entry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}

	return entries, rows.Err()
}

// MarkRetrying claims an entry for a reprocess attempt and bumps its retry
// count in the same statement.
func (r *Repository) MarkRetrying(ctx context.Context, id string) error {
	query := `
		UPDATE dead_letter_queue
		SET status = $2, retry_count = retry_count + 1, updated_at = CURRENT_TIMESTAMP
		WHERE id = $1
	`
	return r.setStatus(ctx, query, id, StatusRetrying)
}

// MarkResolved closes an entry whose payload finally stored (or turned out
// to be a duplicate).
func (r *Repository) MarkResolved(ctx context.Context, id string) error {
	query := `
		UPDATE dead_letter_queue
		SET status = $2, updated_at = CURRENT_TIMESTAMP
		WHERE id = $1
	`
	return r.setStatus(ctx, query, id, StatusResolved)
}

// MarkPending returns an entry to the retry pool after a failed attempt.
func (r *Repository) MarkPending(ctx context.Context, id string) error {
	query := `
		UPDATE dead_letter_queue
		SET status = $2, updated_at = CURRENT_TIMESTAMP
		WHERE id = $1
	`
	return r.setStatus(ctx, query, id, StatusPending)
}

// MarkDead retires an entry that will never succeed.
func (r *Repository) MarkDead(ctx context.Context, id string) error {
	query := `
		UPDATE dead_letter_queue
		SET status = $2, updated_at = CURRENT_TIMESTAMP
		WHERE id = $1
	`
	return r.setStatus(ctx, query, id, StatusDead)
}

func (r *Repository) setStatus(ctx context.Context, query, id, status string) error {
	result, err := r.db.ExecContext(ctx, query, id, status)
	if err != nil {
		return fmt.Errorf("failed to set entry status: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return fmt.Errorf("dead letter entry not found: %s", id)
	}
	return nil
}

// GetSummary aggregates the quarantine: totals, per-type and per-status
// counts, and the most recent entries.
func (r *Repository) GetSummary(ctx context.Context, recentLimit int) (*Summary, error) {
	summary := &Summary{
		ByType:   make(map[string]int64),
		ByStatus: make(map[string]int64),
	}

	typeQuery := `
		SELECT error_type, COUNT(*)
		FROM dead_letter_queue
		GROUP BY error_type
	`
	rows, err := r.db.QueryContext(ctx, typeQuery)
	if err != nil {
		return nil, fmt.Errorf("failed to count by error type: %w", err)
	}
	for rows.Next() {
		var errorType string
		var count int64
		if err := rows.Scan(&errorType, &count); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan type count: %w", err)
		}
		summary.ByType[errorType] = count
		summary.Total += count
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	statusQuery := `
		SELECT status, COUNT(*)
		FROM dead_letter_queue
		GROUP BY status
	`
	rows, err = r.db.QueryContext(ctx, statusQuery)
	if err != nil {
		return nil, fmt.Errorf("failed to count by status: %w", err)
	}
	for rows.Next() {
		var status string
		var count int64
		if err := rows.Scan(&status, &count); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan status count: %w", err)
		}
		summary.ByStatus[status] = count
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	recentQuery := `
		SELECT id, event_id, event_data, error_message, error_type,
		       retry_count, status, created_at, updated_at
		FROM dead_letter_queue
		ORDER BY created_at DESC
		LIMIT $1
	`
	rows, err = r.db.QueryContext(ctx, recentQuery, recentLimit)
	if err != nil {
		return nil, fmt.Errorf("failed to get recent entries: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		summary.Recent = append(summary.Recent, *entry)
	}

	return summary, rows.Err()
}

func scanEntry(rows *sql.Rows) (*Entry, error) {
	entry := &Entry{}
	var eventID sql.NullString
	var data []byte

	err := rows.Scan(
		&entry.ID,
		&eventID,
		&data,
		&entry.ErrorMessage,
		&entry.ErrorType,
		&entry.RetryCount,
		&entry.Status,
		&entry.CreatedAt,
		&entry.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to scan dead letter entry: %w", err)
	}

	if eventID.Valid {
		entry.EventID = &eventID.String
	}
	entry.EventData = data

	return entry, nil
}
