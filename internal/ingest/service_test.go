package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/dprasetyo/userpulse/internal/common/config"
	"github.com/dprasetyo/userpulse/internal/common/db"
	"github.com/dprasetyo/userpulse/internal/common/logger"
	"github.com/dprasetyo/userpulse/internal/event"
)

func setupTestDB(t *testing.T) (*Service, *Repository, *db.DB) {
	if testing.Short() {
		t.Skip("Skipping integration test")
	}

	cfg := config.DatabaseConfig{
		Host:            "localhost",
		Port:            "5432",
		User:            "postgres",
		Password:        "postgres",
		DBName:          "userpulse_ingest_test",
		SSLMode:         "disable",
		MaxOpenConns:    10,
		MaxIdleConns:    5,
		ConnMaxLifetime: 5 * time.Minute,
	}

	log := logger.New("test")
	database, err := db.Connect(cfg, log)
	if err != nil {
		t.Skipf("Cannot connect to database: %v", err)
		return nil, nil, nil
	}

	ctx := context.Background()
	if err := Migrate(ctx, database); err != nil {
		t.Fatalf("Failed to create schema: %v", err)
	}
	if _, err := database.Exec("TRUNCATE users, user_events, user_stats, dead_letter_queue CASCADE"); err != nil {
		t.Fatalf("Failed to truncate tables: %v", err)
	}

	repo := NewRepository(database, log)
	svc := NewService(database, repo, nil, log)
	return svc, repo, database
}

func cleanupTestDB(_ *testing.T, database *db.DB) {
	if database == nil {
		return
	}
	database.Exec("TRUNCATE users, user_events, user_stats, dead_letter_queue CASCADE")
	database.Close()
}

func rawEvent(t *testing.T, fields map[string]interface{}) []byte {
	t.Helper()
	raw, err := json.Marshal(fields)
	if err != nil {
		t.Fatalf("Failed to marshal test event: %v", err)
	}
	return raw
}

func TestStoreEventNewUser(t *testing.T) {
	svc, repo, database := setupTestDB(t)
	if svc == nil {
		return
	}
	defer cleanupTestDB(t, database)

	ctx := context.Background()

	raw := rawEvent(t, map[string]interface{}{
		"user_id":    "user-100",
		"event_id":   "evt-100",
		"event_type": "click",
		"timestamp":  "2025-06-01T10:00:00Z",
		"email":      "ana@example.com",
		"country":    "ID",
	})

	result, err := svc.StoreEvent(ctx, raw)
	if err != nil {
		t.Fatalf("StoreEvent failed: %v", err)
	}
	if result.Duplicate {
		t.Error("First store should not be a duplicate")
	}

	var email string
	err = database.QueryRow("SELECT email FROM users WHERE user_id = $1", "user-100").Scan(&email)
	if err != nil {
		t.Fatalf("User row not created: %v", err)
	}
	if email != "ana@example.com" {
		t.Errorf("Expected email ana@example.com, got %s", email)
	}

	stats, err := repo.GetStats(ctx, "user-100")
	if err != nil {
		t.Fatalf("GetStats failed: %v", err)
	}
	if stats == nil {
		t.Fatal("Stats row not created")
	}
	if stats.TotalEvents != 1 {
		t.Errorf("Expected total_events 1, got %d", stats.TotalEvents)
	}
	if stats.EngagementScore != 0.5 {
		t.Errorf("Expected engagement 0.5, got %f", stats.EngagementScore)
	}
	if stats.LastActive == nil {
		t.Error("Expected last_active to be set")
	}
}

func TestStoreEventDuplicate(t *testing.T) {
	svc, repo, database := setupTestDB(t)
	if svc == nil {
		return
	}
	defer cleanupTestDB(t, database)

	ctx := context.Background()

	raw := rawEvent(t, map[string]interface{}{
		"user_id":    "user-200",
		"event_id":   "evt-200",
		"event_type": "purchase",
		"amount":     19.99,
		"timestamp":  "2025-06-01T10:00:00Z",
	})

	first, err := svc.StoreEvent(ctx, raw)
	if err != nil {
		t.Fatalf("First StoreEvent failed: %v", err)
	}
	if first.Duplicate {
		t.Error("First store should not be a duplicate")
	}

	second, err := svc.StoreEvent(ctx, raw)
	if err != nil {
		t.Fatalf("Replayed StoreEvent failed: %v", err)
	}
	if !second.Duplicate {
		t.Error("Replayed event should report Duplicate")
	}

	stats, err := repo.GetStats(ctx, "user-200")
	if err != nil {
		t.Fatalf("GetStats failed: %v", err)
	}
	if stats.TotalEvents != 1 {
		t.Errorf("Replay must not change total_events, got %d", stats.TotalEvents)
	}
	if stats.TotalPurchases != 1 {
		t.Errorf("Replay must not change total_purchases, got %d", stats.TotalPurchases)
	}
}

func TestStoreEventExactDecimal(t *testing.T) {
	svc, repo, database := setupTestDB(t)
	if svc == nil {
		return
	}
	defer cleanupTestDB(t, database)

	ctx := context.Background()

	// 0.10 is not representable in binary floating point. Three of them
	// must still sum to exactly 0.30.
	for i := 0; i < 3; i++ {
		raw := rawEvent(t, map[string]interface{}{
			"user_id":    "user-300",
			"event_id":   fmt.Sprintf("evt-300-%d", i),
			"event_type": "purchase",
			"amount":     json.Number("0.10"),
			"timestamp":  "2025-06-01T10:00:00Z",
		})
		if _, err := svc.StoreEvent(ctx, raw); err != nil {
			t.Fatalf("StoreEvent %d failed: %v", i, err)
		}
	}

	stats, err := repo.GetStats(ctx, "user-300")
	if err != nil {
		t.Fatalf("GetStats failed: %v", err)
	}
	if stats.TotalSpent != "0.3000" {
		t.Errorf("Expected total_spent 0.3000, got %s", stats.TotalSpent)
	}
}

func TestStoreEventDurationMean(t *testing.T) {
	svc, repo, database := setupTestDB(t)
	if svc == nil {
		return
	}
	defer cleanupTestDB(t, database)

	ctx := context.Background()

	durations := []float64{10, 20, 60}
	for i, d := range durations {
		raw := rawEvent(t, map[string]interface{}{
			"user_id":    "user-400",
			"event_id":   fmt.Sprintf("evt-400-%d", i),
			"event_type": "video",
			"duration":   d,
			"timestamp":  "2025-06-01T10:00:00Z",
		})
		if _, err := svc.StoreEvent(ctx, raw); err != nil {
			t.Fatalf("StoreEvent %d failed: %v", i, err)
		}
	}

	// Events without a duration must not disturb the mean.
	raw := rawEvent(t, map[string]interface{}{
		"user_id":    "user-400",
		"event_id":   "evt-400-click",
		"event_type": "click",
		"timestamp":  "2025-06-01T11:00:00Z",
	})
	if _, err := svc.StoreEvent(ctx, raw); err != nil {
		t.Fatalf("StoreEvent failed: %v", err)
	}

	stats, err := repo.GetStats(ctx, "user-400")
	if err != nil {
		t.Fatalf("GetStats failed: %v", err)
	}
	if stats.AvgSessionDuration != 30 {
		t.Errorf("Expected avg_session_duration 30, got %f", stats.AvgSessionDuration)
	}
	if stats.TotalEvents != 4 {
		t.Errorf("Expected total_events 4, got %d", stats.TotalEvents)
	}
}

func TestStoreEventEngagementClamp(t *testing.T) {
	svc, repo, database := setupTestDB(t)
	if svc == nil {
		return
	}
	defer cleanupTestDB(t, database)

	ctx := context.Background()

	for i := 0; i < 20; i++ {
		raw := rawEvent(t, map[string]interface{}{
			"user_id":    "user-500",
			"event_id":   fmt.Sprintf("evt-500-%d", i),
			"event_type": "purchase",
			"amount":     json.Number("5.00"),
			"timestamp":  "2025-06-01T10:00:00Z",
		})
		if _, err := svc.StoreEvent(ctx, raw); err != nil {
			t.Fatalf("StoreEvent %d failed: %v", i, err)
		}
	}

	stats, err := repo.GetStats(ctx, "user-500")
	if err != nil {
		t.Fatalf("GetStats failed: %v", err)
	}
	if stats.EngagementScore != 100 {
		t.Errorf("Expected engagement clamped to 100, got %f", stats.EngagementScore)
	}
	if stats.TotalSpent != "100.0000" {
		t.Errorf("Expected total_spent 100.0000, got %s", stats.TotalSpent)
	}
}

func TestStoreEventUnknownKind(t *testing.T) {
	svc, _, database := setupTestDB(t)
	if svc == nil {
		return
	}
	defer cleanupTestDB(t, database)

	ctx := context.Background()

	raw := rawEvent(t, map[string]interface{}{
		"user_id":    "user-600",
		"event_id":   "evt-600",
		"event_type": "teleport",
		"timestamp":  "2025-06-01T10:00:00Z",
	})

	result, err := svc.StoreEvent(ctx, raw)
	if err != nil {
		t.Fatalf("StoreEvent failed: %v", err)
	}
	if !result.UnknownKind {
		t.Error("Expected UnknownKind to be set")
	}

	var eventType string
	err = database.QueryRow("SELECT event_type FROM user_events WHERE event_id = $1", "evt-600").Scan(&eventType)
	if err != nil {
		t.Fatalf("Event not stored: %v", err)
	}
	if eventType != "teleport" {
		t.Errorf("Expected event_type teleport, got %s", eventType)
	}
}

func TestStoreEventValidationError(t *testing.T) {
	svc, _, database := setupTestDB(t)
	if svc == nil {
		return
	}
	defer cleanupTestDB(t, database)

	ctx := context.Background()

	raw := rawEvent(t, map[string]interface{}{
		"user_id":   "user-700",
		"event_id":  "evt-700",
		"timestamp": "2025-06-01T10:00:00Z",
	})

	_, err := svc.StoreEvent(ctx, raw)
	var vErr *event.ValidationError
	if !errors.As(err, &vErr) {
		t.Fatalf("Expected ValidationError, got %v", err)
	}

	var count int
	if err := database.QueryRow("SELECT COUNT(*) FROM users WHERE user_id = $1", "user-700").Scan(&count); err != nil {
		t.Fatalf("Count query failed: %v", err)
	}
	if count != 0 {
		t.Error("Rejected event must not create a user")
	}
}

func TestStoreEventDecodeError(t *testing.T) {
	svc, _, database := setupTestDB(t)
	if svc == nil {
		return
	}
	defer cleanupTestDB(t, database)

	_, err := svc.StoreEvent(context.Background(), []byte("{not json"))
	var dErr *DecodeError
	if !errors.As(err, &dErr) {
		t.Fatalf("Expected DecodeError, got %v", err)
	}
}

func TestStoreEventMetadataRoundTrip(t *testing.T) {
	svc, _, database := setupTestDB(t)
	if svc == nil {
		return
	}
	defer cleanupTestDB(t, database)

	ctx := context.Background()

	raw := rawEvent(t, map[string]interface{}{
		"user_id":    "user-800",
		"event_id":   "evt-800",
		"event_type": "search",
		"timestamp":  "2025-06-01T10:00:00Z",
		"event_metadata": map[string]interface{}{
			"query": "red shoes",
			"page":  2,
		},
	})

	if _, err := svc.StoreEvent(ctx, raw); err != nil {
		t.Fatalf("StoreEvent failed: %v", err)
	}

	var metadata []byte
	err := database.QueryRow("SELECT event_metadata FROM user_events WHERE event_id = $1", "evt-800").Scan(&metadata)
	if err != nil {
		t.Fatalf("Event not stored: %v", err)
	}

	var decoded map[string]interface{}
	if err := json.Unmarshal(metadata, &decoded); err != nil {
		t.Fatalf("Stored metadata is not valid JSON: %v", err)
	}
	if decoded["query"] != "red shoes" {
		t.Errorf("Expected metadata query 'red shoes', got %v", decoded["query"])
	}
}
