package event

import (
	"encoding/json"
	"strings"
	"testing"
)

// TEST: Parse applies validation rules in order with specific reasons
func TestParse(t *testing.T) {
	tests := []struct {
		name       string
		payload    Payload
		wantErr    bool
		wantReason string
	}{
		{
			name: "valid click event",
			payload: Payload{
				UserID:    "u1",
				EventID:   "e1",
				EventType: "click",
				Timestamp: "2024-01-15T10:00:00",
			},
			wantErr: false,
		},
		{
			name: "valid purchase",
			payload: Payload{
				UserID:    "u1",
				EventID:   "e2",
				EventType: "purchase",
				Timestamp: "2024-01-15T10:00:00",
				Amount:    json.Number("50.00"),
			},
			wantErr: false,
		},
		{
			name: "missing event_type",
			payload: Payload{
				UserID:    "u1",
				EventID:   "e1",
				Timestamp: "2024-01-15T10:00:00",
			},
			wantErr:    true,
			wantReason: "event_type",
		},
		{
			name:       "missing everything lists all fields",
			payload:    Payload{},
			wantErr:    true,
			wantReason: "event_id, event_type, timestamp, user_id",
		},
		{
			name: "bad timestamp includes raw value",
			payload: Payload{
				UserID:    "u1",
				EventID:   "e1",
				EventType: "click",
				Timestamp: "not-a-date",
			},
			wantErr:    true,
			wantReason: "not-a-date",
		},
		{
			name: "purchase without amount",
			payload: Payload{
				UserID:    "u1",
				EventID:   "e1",
				EventType: "purchase",
				Timestamp: "2024-01-15T10:00:00",
			},
			wantErr:    true,
			wantReason: "missing 'amount'",
		},
		{
			name: "purchase with non-numeric amount",
			payload: Payload{
				UserID:    "u1",
				EventID:   "e1",
				EventType: "purchase",
				Timestamp: "2024-01-15T10:00:00",
				Amount:    json.Number("abc"),
			},
			wantErr:    true,
			wantReason: "not numeric",
		},
		{
			name: "purchase with negative amount",
			payload: Payload{
				UserID:    "u1",
				EventID:   "e1",
				EventType: "purchase",
				Timestamp: "2024-01-15T10:00:00",
				Amount:    json.Number("-5"),
			},
			wantErr:    true,
			wantReason: "positive",
		},
		{
			name: "purchase with zero amount",
			payload: Payload{
				UserID:    "u1",
				EventID:   "e1",
				EventType: "purchase",
				Timestamp: "2024-01-15T10:00:00",
				Amount:    json.Number("0"),
			},
			wantErr:    true,
			wantReason: "positive",
		},
		{
			name: "RFC3339 timestamp accepted",
			payload: Payload{
				UserID:    "u1",
				EventID:   "e1",
				EventType: "login",
				Timestamp: "2024-01-15T10:00:00Z",
			},
			wantErr: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			activity, err := Parse(&tt.payload)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Parse() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil {
				vErr, ok := err.(*ValidationError)
				if !ok {
					t.Fatalf("Expected *ValidationError, got %T", err)
				}
				if tt.wantReason != "" && !strings.Contains(vErr.Reason, tt.wantReason) {
					t.Errorf("Reason %q does not contain %q", vErr.Reason, tt.wantReason)
				}
				return
			}
			if activity.UserID != tt.payload.UserID {
				t.Errorf("Expected user %s, got %s", tt.payload.UserID, activity.UserID)
			}
		})
	}
}

// TEST: Unknown event kinds are accepted but flagged
func TestParseUnknownKind(t *testing.T) {
	activity, err := Parse(&Payload{
		UserID:    "u1",
		EventID:   "e1",
		EventType: "teleport",
		Timestamp: "2024-01-15T10:00:00",
	})
	if err != nil {
		t.Fatalf("Unknown kind should not fail validation: %v", err)
	}
	if !activity.UnknownKind {
		t.Error("Expected UnknownKind to be set")
	}
	if activity.Kind != "teleport" {
		t.Errorf("Unknown kind should be stored as-is, got %s", activity.Kind)
	}
}

// TEST: Purchase detail keeps the exact decimal text
func TestParsePurchaseDetail(t *testing.T) {
	activity, err := Parse(&Payload{
		UserID:    "u1",
		EventID:   "e1",
		EventType: "purchase",
		Timestamp: "2024-01-15T10:00:00",
		Amount:    json.Number("19.99"),
	})
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	amount, ok := activity.PurchaseAmount()
	if !ok {
		t.Fatal("Expected a purchase detail")
	}
	if amount != "19.99" {
		t.Errorf("Expected amount 19.99, got %s", amount)
	}
}

// TEST: Decode keeps amounts in textual form
func TestDecode(t *testing.T) {
	raw := []byte(`{"user_id":"u1","event_id":"e1","event_type":"purchase","timestamp":"2024-01-15T10:00:00","amount":10.10,"duration":12.5,"event_metadata":{"page":"/checkout"}}`)

	p, err := Decode(raw)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if p.Amount.String() != "10.10" {
		t.Errorf("Expected amount text 10.10, got %s", p.Amount.String())
	}
	if p.Duration == nil || *p.Duration != 12.5 {
		t.Errorf("Expected duration 12.5, got %v", p.Duration)
	}
	if p.Metadata["page"] != "/checkout" {
		t.Errorf("Expected metadata page /checkout, got %v", p.Metadata["page"])
	}

	if _, err := Decode([]byte("{not json")); err == nil {
		t.Error("Expected error for malformed JSON")
	}
}
