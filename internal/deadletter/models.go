package deadletter

import (
	"encoding/json"
	"time"
)

// Entry lifecycle. An entry is retried from pending until it resolves or
// exhausts its retry budget.
const (
	StatusPending  = "pending"
	StatusRetrying = "retrying"
	StatusResolved = "resolved"
	StatusDead     = "dead"
)

// Error types recorded with each entry, used by the summary breakdown.
const (
	TypeValidation = "validation"
	TypeJSONDecode = "json_decode"
	TypeStorage    = "storage"
	TypeUnknown    = "unknown"
)

// Entry is one quarantined message. EventData holds the original payload as
// JSON; payloads that were not valid JSON are wrapped as {"raw": "..."} so
// nothing inbound is ever lost.
type Entry struct {
	ID           string          `json:"id"`
	EventID      *string         `json:"event_id"`
	EventData    json.RawMessage `json:"event_data"`
	ErrorMessage string          `json:"error_message"`
	ErrorType    string          `json:"error_type"`
	RetryCount   int             `json:"retry_count"`
	Status       string          `json:"status"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

// Summary is the operator view of the quarantine: totals per error type and
// the most recent entries.
type Summary struct {
	Total    int64            `json:"total"`
	ByType   map[string]int64 `json:"by_type"`
	ByStatus map[string]int64 `json:"by_status"`
	Recent   []Entry          `json:"recent"`
}
