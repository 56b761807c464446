package ingest

import (
	"time"
)

// User is the registry entry for an external user identifier. Created on the
// first event referencing an unseen identifier; profile fields are set at
// creation only and never updated retroactively.
type User struct {
	ID         string     `json:"id"`
	UserID     string     `json:"user_id"`
	Email      *string    `json:"email"`
	FirstName  *string    `json:"first_name"`
	LastName   *string    `json:"last_name"`
	Country    *string    `json:"country"`
	IsActive   bool       `json:"is_active"`
	SignupDate *time.Time `json:"signup_date"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

// Event is one row of the immutable event log. Write-once: never updated or
// deleted. Uniqueness on EventID is the sole deduplication mechanism.
type Event struct {
	ID        string                 `json:"id"`
	EventID   string                 `json:"event_id"`
	UserID    string                 `json:"user_id"`
	EventType string                 `json:"event_type"`
	Timestamp time.Time              `json:"timestamp"`
	Duration  *float64               `json:"duration"`
	Metadata  map[string]interface{} `json:"event_metadata"`
	CreatedAt time.Time              `json:"created_at"`
}

// Stats is the per-user aggregate row (one per user). It is a derived view:
// every field can be rebuilt from the event log. TotalSpent is carried as a
// string backed by a NUMERIC column so currency never touches a float.
type Stats struct {
	ID                 string     `json:"id"`
	UserID             string     `json:"user_id"`
	TotalEvents        int64      `json:"total_events"`
	TotalPurchases     int64      `json:"total_purchases"`
	TotalSpent         string     `json:"total_spent"`
	LastActive         *time.Time `json:"last_active"`
	LastPurchase       *time.Time `json:"last_purchase"`
	AvgSessionDuration float64    `json:"avg_session_duration"`
	EngagementScore    float64    `json:"engagement_score"`
	// ChurnRisk is a placeholder for a future predictive model.
	ChurnRisk float64   `json:"churn_risk"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// StoreResult is the outcome of one storage attempt. Duplicate is a
// first-class success, not an error: the event identifier was seen before
// and nothing changed.
type StoreResult struct {
	EventID   string
	Duplicate bool
	// UnknownKind is set when the payload carried an event type outside the
	// known set; the event is stored as-is.
	UnknownKind bool
}
