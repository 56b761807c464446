package event

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

// Known event kinds. Payloads with other kinds are accepted and stored
// as-is, but flagged so the coordinator can log them.
const (
	KindClick    = "click"
	KindPurchase = "purchase"
	KindView     = "view"
	KindSearch   = "search"
	KindLogin    = "login"
	KindLogout   = "logout"
	KindVideo    = "video"
	KindOther    = "other"
)

var knownKinds = map[string]bool{
	KindClick:    true,
	KindPurchase: true,
	KindView:     true,
	KindSearch:   true,
	KindLogin:    true,
	KindLogout:   true,
	KindVideo:    true,
	KindOther:    true,
}

// Payload is the wire form of an inbound activity event, decoded from the
// broker message value. Amount stays a json.Number so purchase values reach
// the database without ever passing through a float.
type Payload struct {
	UserID    string                 `json:"user_id"`
	EventID   string                 `json:"event_id"`
	EventType string                 `json:"event_type"`
	Timestamp string                 `json:"timestamp"`
	Amount    json.Number            `json:"amount,omitempty"`
	Duration  *float64               `json:"duration,omitempty"`
	Email     string                 `json:"email,omitempty"`
	FirstName string                 `json:"first_name,omitempty"`
	LastName  string                 `json:"last_name,omitempty"`
	Country   string                 `json:"country,omitempty"`
	Metadata  map[string]interface{} `json:"event_metadata,omitempty"`
}

// Decode parses raw message bytes into a Payload. Numbers are kept in their
// textual form.
func Decode(raw []byte) (*Payload, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	var p Payload
	if err := dec.Decode(&p); err != nil {
		return nil, fmt.Errorf("failed to decode event payload: %w", err)
	}
	return &p, nil
}

// Profile holds the optional user fields a payload may carry. They are used
// only when the event creates a previously unseen user.
type Profile struct {
	Email     string
	FirstName string
	LastName  string
	Country   string
}

// Detail is the kind-specific variant of an activity. Exactly one concrete
// type applies per event kind, selected by the event_type discriminator at
// the ingestion boundary.
type Detail interface {
	detail()
}

// PurchaseDetail carries the exact decimal amount of a purchase event.
type PurchaseDetail struct {
	Amount string
}

func (PurchaseDetail) detail() {}

// GenericDetail covers every non-purchase kind.
type GenericDetail struct{}

func (GenericDetail) detail() {}

// Activity is a validated event: the common base fields shared by all kinds
// plus the kind-selected Detail variant.
type Activity struct {
	UserID    string
	EventID   string
	Kind      string
	Timestamp time.Time
	// Duration in seconds; optional on any kind.
	Duration    *float64
	UnknownKind bool
	Profile     Profile
	Metadata    map[string]interface{}
	Detail      Detail
}

// PurchaseAmount returns the exact decimal amount when the activity is a
// purchase.
func (a *Activity) PurchaseAmount() (string, bool) {
	if d, ok := a.Detail.(PurchaseDetail); ok {
		return d.Amount, true
	}
	return "", false
}
