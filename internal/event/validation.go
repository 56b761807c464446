package event

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"
)

// ValidationError describes a payload that can never be stored. It is
// terminal: the coordinator dead-letters it and advances the offset.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return "validation failed: " + e.Reason
}

func validationErrorf(format string, args ...interface{}) *ValidationError {
	return &ValidationError{Reason: fmt.Sprintf(format, args...)}
}

// Timestamps are accepted in RFC 3339 or the zone-less ISO form producers
// commonly emit.
var timestampLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
}

// Parse validates a payload and returns its typed form. It is pure: no
// storage lookups, no side effects. Rules run in order:
//  1. required fields present (user_id, event_id, event_type, timestamp)
//  2. timestamp parses as a date-time
//  3. unknown event kinds are accepted but flagged
//  4. purchases must carry a finite, strictly positive amount
func Parse(p *Payload) (*Activity, error) {
	var missing []string
	if strings.TrimSpace(p.UserID) == "" {
		missing = append(missing, "user_id")
	}
	if strings.TrimSpace(p.EventID) == "" {
		missing = append(missing, "event_id")
	}
	if strings.TrimSpace(p.EventType) == "" {
		missing = append(missing, "event_type")
	}
	if strings.TrimSpace(p.Timestamp) == "" {
		missing = append(missing, "timestamp")
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return nil, validationErrorf("missing required fields: %s", strings.Join(missing, ", "))
	}

	ts, err := parseTimestamp(p.Timestamp)
	if err != nil {
		return nil, validationErrorf("invalid timestamp format: %s", p.Timestamp)
	}

	activity := &Activity{
		UserID:      p.UserID,
		EventID:     p.EventID,
		Kind:        p.EventType,
		Timestamp:   ts,
		Duration:    p.Duration,
		UnknownKind: !knownKinds[p.EventType],
		Profile: Profile{
			Email:     p.Email,
			FirstName: p.FirstName,
			LastName:  p.LastName,
			Country:   p.Country,
		},
		Metadata: p.Metadata,
		Detail:   GenericDetail{},
	}

	if p.EventType == KindPurchase {
		amount := strings.TrimSpace(p.Amount.String())
		if amount == "" {
			return nil, validationErrorf("purchase event missing 'amount'")
		}

		value, err := strconv.ParseFloat(amount, 64)
		if err != nil || math.IsNaN(value) || math.IsInf(value, 0) {
			return nil, validationErrorf("amount not numeric: %s", amount)
		}
		if value <= 0 {
			return nil, validationErrorf("invalid amount: %s (must be positive)", amount)
		}

		activity.Detail = PurchaseDetail{Amount: amount}
	}

	return activity, nil
}

func parseTimestamp(s string) (time.Time, error) {
	var lastErr error
	for _, layout := range timestampLayouts {
		t, err := time.Parse(layout, s)
		if err == nil {
			return t, nil
		}
		lastErr = err
	}
	return time.Time{}, lastErr
}
