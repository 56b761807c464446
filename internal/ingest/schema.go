package ingest

import (
	"context"
	"fmt"

	"github.com/dprasetyo/userpulse/internal/common/db"
)

const schema = `
CREATE TABLE IF NOT EXISTS users (
	id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
	user_id VARCHAR(100) UNIQUE NOT NULL,
	email VARCHAR(255),
	first_name VARCHAR(100),
	last_name VARCHAR(100),
	country VARCHAR(50),
	is_active BOOLEAN NOT NULL DEFAULT TRUE,
	signup_date TIMESTAMP WITH TIME ZONE,
	created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT CURRENT_TIMESTAMP,
	updated_at TIMESTAMP WITH TIME ZONE DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_users_country ON users(country);
CREATE INDEX IF NOT EXISTS idx_users_created_at ON users(created_at);

CREATE TABLE IF NOT EXISTS user_events (
	id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
	event_id VARCHAR(100) UNIQUE NOT NULL,
	user_id VARCHAR(100) NOT NULL REFERENCES users(user_id),
	event_type VARCHAR(50) NOT NULL,
	timestamp TIMESTAMP WITH TIME ZONE NOT NULL,
	duration DOUBLE PRECISION,
	event_metadata JSONB,
	created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_events_user_timestamp ON user_events(user_id, timestamp);
CREATE INDEX IF NOT EXISTS idx_events_type_timestamp ON user_events(event_type, timestamp);

CREATE TABLE IF NOT EXISTS user_stats (
	id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
	user_id VARCHAR(100) UNIQUE NOT NULL REFERENCES users(user_id),
	total_events BIGINT NOT NULL DEFAULT 0,
	total_purchases BIGINT NOT NULL DEFAULT 0,
	total_spent NUMERIC(20, 4) NOT NULL DEFAULT 0,
	last_active TIMESTAMP WITH TIME ZONE,
	last_purchase TIMESTAMP WITH TIME ZONE,
	avg_session_duration DOUBLE PRECISION NOT NULL DEFAULT 0,
	engagement_score DOUBLE PRECISION NOT NULL DEFAULT 0,
	churn_risk DOUBLE PRECISION NOT NULL DEFAULT 0,
	created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT CURRENT_TIMESTAMP,
	updated_at TIMESTAMP WITH TIME ZONE DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS dead_letter_queue (
	id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
	event_id VARCHAR(100),
	event_data JSONB NOT NULL,
	error_message TEXT NOT NULL,
	error_type VARCHAR(100) NOT NULL,
	retry_count INT NOT NULL DEFAULT 0,
	status VARCHAR(20) NOT NULL DEFAULT 'pending',
	created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT CURRENT_TIMESTAMP,
	updated_at TIMESTAMP WITH TIME ZONE DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_dlq_status ON dead_letter_queue(status, created_at);
CREATE INDEX IF NOT EXISTS idx_dlq_error_type ON dead_letter_queue(error_type);
`

// Migrate creates the pipeline's tables and indexes if they do not exist.
func Migrate(ctx context.Context, database *db.DB) error {
	if _, err := database.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to run schema migration: %w", err)
	}
	return nil
}
