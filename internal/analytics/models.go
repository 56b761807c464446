package analytics

import (
	"time"
)

// StatsResponse is the per-user aggregate view served by the API.
// TotalSpent is the exact NUMERIC value rendered as text.
type StatsResponse struct {
	UserID             string     `json:"user_id"`
	TotalEvents        int64      `json:"total_events"`
	TotalPurchases     int64      `json:"total_purchases"`
	TotalSpent         string     `json:"total_spent"`
	LastActive         *time.Time `json:"last_active,omitempty"`
	LastPurchase       *time.Time `json:"last_purchase,omitempty"`
	AvgSessionDuration float64    `json:"avg_session_duration"`
	EngagementScore    float64    `json:"engagement_score"`
	ChurnRisk          float64    `json:"churn_risk"`
	UpdatedAt          time.Time  `json:"updated_at"`
}

// ProfileResponse joins a user's registry row with their aggregates. Stats
// is nil for a registered user with no stats row yet.
type ProfileResponse struct {
	UserID     string         `json:"user_id"`
	Email      *string        `json:"email,omitempty"`
	FirstName  *string        `json:"first_name,omitempty"`
	LastName   *string        `json:"last_name,omitempty"`
	Country    *string        `json:"country,omitempty"`
	IsActive   bool           `json:"is_active"`
	SignupDate *time.Time     `json:"signup_date,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
	Stats      *StatsResponse `json:"stats,omitempty"`
}

// EventSummary is one row of a user's recent activity listing.
type EventSummary struct {
	EventID   string    `json:"event_id"`
	EventType string    `json:"event_type"`
	Timestamp time.Time `json:"timestamp"`
	Duration  *float64  `json:"duration,omitempty"`
}
