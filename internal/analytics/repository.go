package analytics

import (
	"context"
	"database/sql"
	"fmt"
)

type Repository interface {
	GetUserStats(ctx context.Context, userID string) (*StatsResponse, error)
	GetUserProfile(ctx context.Context, userID string) (*ProfileResponse, error)
	GetRecentEvents(ctx context.Context, userID string, limit int) ([]*EventSummary, error)
	GetTopSpenders(ctx context.Context, limit int) ([]*StatsResponse, error)
}

type repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) Repository {
	return &repository{db: db}
}

// GetUserStats retrieves one user's aggregates. Returns nil when the user
// has no stats row.
func (r *repository) GetUserStats(ctx context.Context, userID string) (*StatsResponse, error) {
	query := `
		SELECT user_id, total_events, total_purchases, total_spent,
		       last_active, last_purchase, avg_session_duration,
		       engagement_score, churn_risk, updated_at
		FROM user_stats
		WHERE user_id = $1
	`

	stats, err := scanStats(r.db.QueryRowContext(ctx, query, userID))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user stats: %w", err)
	}

	return stats, nil
}

// GetUserProfile retrieves the user row joined with their stats. Returns
// nil when the user is unknown.
func (r *repository) GetUserProfile(ctx context.Context, userID string) (*ProfileResponse, error) {
	query := `
		SELECT u.user_id, u.email, u.first_name, u.last_name, u.country,
		       u.is_active, u.signup_date, u.created_at,
		       s.total_events, s.total_purchases, s.total_spent,
		       s.last_active, s.last_purchase, s.avg_session_duration,
		       s.engagement_score, s.churn_risk, s.updated_at
		FROM users u
		LEFT JOIN user_stats s ON s.user_id = u.user_id
		WHERE u.user_id = $1
	`

	profile := &ProfileResponse{}
	var email, firstName, lastName, country sql.NullString
	var signupDate sql.NullTime

	var totalEvents, totalPurchases sql.NullInt64
	var totalSpent sql.NullString
	var lastActive, lastPurchase, statsUpdatedAt sql.NullTime
	var avgDuration, engagement, churnRisk sql.NullFloat64

	err := r.db.QueryRowContext(ctx, query, userID).Scan(
		&profile.UserID,
		&email,
		&firstName,
		&lastName,
		&country,
		&profile.IsActive,
		&signupDate,
		&profile.CreatedAt,
		&totalEvents,
		&totalPurchases,
		&totalSpent,
		&lastActive,
		&lastPurchase,
		&avgDuration,
		&engagement,
		&churnRisk,
		&statsUpdatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user profile: %w", err)
	}

	if email.Valid {
		profile.Email = &email.String
	}
	if firstName.Valid {
		profile.FirstName = &firstName.String
	}
	if lastName.Valid {
		profile.LastName = &lastName.String
	}
	if country.Valid {
		profile.Country = &country.String
	}
	if signupDate.Valid {
		profile.SignupDate = &signupDate.Time
	}

	if totalSpent.Valid {
		stats := &StatsResponse{
			UserID:             profile.UserID,
			TotalEvents:        totalEvents.Int64,
			TotalPurchases:     totalPurchases.Int64,
			TotalSpent:         totalSpent.String,
			AvgSessionDuration: avgDuration.Float64,
			EngagementScore:    engagement.Float64,
			ChurnRisk:          churnRisk.Float64,
			UpdatedAt:          statsUpdatedAt.Time,
		}
		if lastActive.Valid {
			stats.LastActive = &lastActive.Time
		}
		if lastPurchase.Valid {
			stats.LastPurchase = &lastPurchase.Time
		}
		profile.Stats = stats
	}

	return profile, nil
}

// GetRecentEvents lists a user's latest events, newest first.
func (r *repository) GetRecentEvents(ctx context.Context, userID string, limit int) ([]*EventSummary, error) {
	query := `
		SELECT event_id, event_type, timestamp, duration
		FROM user_events
		WHERE user_id = $1
		ORDER BY timestamp DESC
		LIMIT $2
	`

	rows, err := r.db.QueryContext(ctx, query, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get recent events: %w", err)
	}
	defer rows.Close()

	var events []*EventSummary
	for rows.Next() {
		evt := &EventSummary{}
		var duration sql.NullFloat64
		if err := rows.Scan(&evt.EventID, &evt.EventType, &evt.Timestamp, &duration); err != nil {
			return nil, fmt.Errorf("failed to scan event summary: %w", err)
		}
		if duration.Valid {
			d := duration.Float64
			evt.Duration = &d
		}
		events = append(events, evt)
	}

	return events, rows.Err()
}

// GetTopSpenders ranks users by lifetime spend.
func (r *repository) GetTopSpenders(ctx context.Context, limit int) ([]*StatsResponse, error) {
	query := `
		SELECT user_id, total_events, total_purchases, total_spent,
		       last_active, last_purchase, avg_session_duration,
		       engagement_score, churn_risk, updated_at
		FROM user_stats
		WHERE total_purchases > 0
		ORDER BY total_spent DESC
		LIMIT $1
	`

	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get top spenders: %w", err)
	}
	defer rows.Close()

	var results []*StatsResponse
	for rows.Next() {
		stats, err := scanStats(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan stats: %w", err)
		}
		results = append(results, stats)
	}

	return results, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanStats(row rowScanner) (*StatsResponse, error) {
	stats := &StatsResponse{}
	var lastActive, lastPurchase sql.NullTime

	err := row.Scan(
		&stats.UserID,
		&stats.TotalEvents,
		&stats.TotalPurchases,
		&stats.TotalSpent,
		&lastActive,
		&lastPurchase,
		&stats.AvgSessionDuration,
		&stats.EngagementScore,
		&stats.ChurnRisk,
		&stats.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if lastActive.Valid {
		t := lastActive.Time
		stats.LastActive = &t
	}
	if lastPurchase.Valid {
		t := lastPurchase.Time
		stats.LastPurchase = &t
	}

	return stats, nil
}
