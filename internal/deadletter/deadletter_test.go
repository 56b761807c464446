package deadletter

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/dprasetyo/userpulse/internal/common/config"
	"github.com/dprasetyo/userpulse/internal/common/db"
	"github.com/dprasetyo/userpulse/internal/common/logger"
	"github.com/dprasetyo/userpulse/internal/event"
)

func setupTestDB(t *testing.T) (*Repository, *db.DB) {
	if testing.Short() {
		t.Skip("Skipping integration test")
	}

	cfg := config.DatabaseConfig{
		Host:            "localhost",
		Port:            "5432",
		User:            "postgres",
		Password:        "postgres",
		DBName:          "userpulse_deadletter_test",
		SSLMode:         "disable",
		MaxOpenConns:    10,
		MaxIdleConns:    5,
		ConnMaxLifetime: 5 * time.Minute,
	}

	log := logger.New("test")
	database, err := db.Connect(cfg, log)
	if err != nil {
		t.Skipf("Cannot connect to database: %v", err)
		return nil, nil
	}

	schema := `
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

	TRUNCATE dead_letter_queue CASCADE;
	`

	if _, err := database.Exec(schema); err != nil {
		t.Fatalf("Failed to create schema: %v", err)
	}

	return NewRepository(database, log), database
}

func cleanupTestDB(_ *testing.T, database *db.DB) {
	if database == nil {
		return
	}
	database.Exec("TRUNCATE dead_letter_queue CASCADE")
	database.Close()
}

func TestRecordValidPayload(t *testing.T) {
	repo, database := setupTestDB(t)
	if repo == nil {
		return
	}
	defer cleanupTestDB(t, database)

	ctx := context.Background()
	recorder := NewRecorder(repo, logger.New("test"))

	payload := []byte(`{"event_id": "evt-1", "user_id": "u-1"}`)
	if ok := recorder.Record(ctx, payload, "missing required fields: event_type, timestamp", TypeValidation); !ok {
		t.Fatal("Record failed")
	}

	entries, err := repo.GetPending(ctx, 10, 3)
	if err != nil {
		t.Fatalf("GetPending failed: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("Expected 1 pending entry, got %d", len(entries))
	}

	entry := entries[0]
	if entry.EventID == nil || *entry.EventID != "evt-1" {
		t.Errorf("Expected event_id evt-1, got %v", entry.EventID)
	}
	if entry.ErrorType != TypeValidation {
		t.Errorf("Expected error_type %s, got %s", TypeValidation, entry.ErrorType)
	}
	if entry.Status != StatusPending {
		t.Errorf("Expected status pending, got %s", entry.Status)
	}
}

func TestRecordMalformedPayload(t *testing.T) {
	repo, database := setupTestDB(t)
	if repo == nil {
		return
	}
	defer cleanupTestDB(t, database)

	ctx := context.Background()
	recorder := NewRecorder(repo, logger.New("test"))

	if ok := recorder.Record(ctx, []byte("{broken"), "unexpected token", TypeJSONDecode); !ok {
		t.Fatal("Record failed")
	}

	entries, err := repo.GetPending(ctx, 10, 3)
	if err != nil {
		t.Fatalf("GetPending failed: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("Expected 1 pending entry, got %d", len(entries))
	}

	var wrapped map[string]string
	if err := json.Unmarshal(entries[0].EventData, &wrapped); err != nil {
		t.Fatalf("Stored payload is not valid JSON: %v", err)
	}
	if wrapped["raw"] != "{broken" {
		t.Errorf("Expected original bytes under raw key, got %q", wrapped["raw"])
	}
	if entries[0].EventID != nil {
		t.Errorf("Expected no event_id, got %v", *entries[0].EventID)
	}
}

func TestStatusLifecycle(t *testing.T) {
	repo, database := setupTestDB(t)
	if repo == nil {
		return
	}
	defer cleanupTestDB(t, database)

	ctx := context.Background()

	entry := &Entry{
		EventData:    json.RawMessage(`{"event_id": "evt-2"}`),
		ErrorMessage: "database timeout",
		ErrorType:    TypeStorage,
	}
	if err := repo.Insert(ctx, entry); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	if err := repo.MarkRetrying(ctx, entry.ID); err != nil {
		t.Fatalf("MarkRetrying failed: %v", err)
	}

	// Retrying entries are off the pending pool.
	entries, err := repo.GetPending(ctx, 10, 3)
	if err != nil {
		t.Fatalf("GetPending failed: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("Expected no pending entries while retrying, got %d", len(entries))
	}

	if err := repo.MarkPending(ctx, entry.ID); err != nil {
		t.Fatalf("MarkPending failed: %v", err)
	}

	entries, err = repo.GetPending(ctx, 10, 3)
	if err != nil {
		t.Fatalf("GetPending failed: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("Expected 1 pending entry, got %d", len(entries))
	}
	if entries[0].RetryCount != 1 {
		t.Errorf("Expected retry_count 1 after claim, got %d", entries[0].RetryCount)
	}

	if err := repo.MarkResolved(ctx, entry.ID); err != nil {
		t.Fatalf("MarkResolved failed: %v", err)
	}

	entries, err = repo.GetPending(ctx, 10, 3)
	if err != nil {
		t.Fatalf("GetPending failed: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("Resolved entry must not be pending, got %d", len(entries))
	}
}

func TestGetPendingRespectsRetryBudget(t *testing.T) {
	repo, database := setupTestDB(t)
	if repo == nil {
		return
	}
	defer cleanupTestDB(t, database)

	ctx := context.Background()

	entry := &Entry{
		EventData:    json.RawMessage(`{"event_id": "evt-3"}`),
		ErrorMessage: "database timeout",
		ErrorType:    TypeStorage,
	}
	if err := repo.Insert(ctx, entry); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	for i := 0; i < 3; i++ {
		if err := repo.MarkRetrying(ctx, entry.ID); err != nil {
			t.Fatalf("MarkRetrying failed: %v", err)
		}
		if err := repo.MarkPending(ctx, entry.ID); err != nil {
			t.Fatalf("MarkPending failed: %v", err)
		}
	}

	entries, err := repo.GetPending(ctx, 10, 3)
	if err != nil {
		t.Fatalf("GetPending failed: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("Entry at retry budget must not be pending, got %d", len(entries))
	}
}

func TestReprocessorResolvesAndKills(t *testing.T) {
	repo, database := setupTestDB(t)
	if repo == nil {
		return
	}
	defer cleanupTestDB(t, database)

	ctx := context.Background()
	log := logger.New("test")

	storable := &Entry{
		EventData:    json.RawMessage(`{"event_id": "evt-ok"}`),
		ErrorMessage: "database timeout",
		ErrorType:    TypeStorage,
	}
	invalid := &Entry{
		EventData:    json.RawMessage(`{"event_id": "evt-bad"}`),
		ErrorMessage: "missing required fields",
		ErrorType:    TypeValidation,
	}
	for _, e := range []*Entry{storable, invalid} {
		if err := repo.Insert(ctx, e); err != nil {
			t.Fatalf("Insert failed: %v", err)
		}
	}

	store := func(_ context.Context, raw []byte) error {
		var probe struct {
			EventID string `json:"event_id"`
		}
		json.Unmarshal(raw, &probe)
		if probe.EventID == "evt-ok" {
			return nil
		}
		return &event.ValidationError{Reason: "missing required fields"}
	}

	proc := NewReprocessor(repo, store, time.Minute, 3, log)
	proc.processBatch(ctx)

	var status string
	if err := database.QueryRow("SELECT status FROM dead_letter_queue WHERE id = $1", storable.ID).Scan(&status); err != nil {
		t.Fatalf("Status query failed: %v", err)
	}
	if status != StatusResolved {
		t.Errorf("Expected storable entry resolved, got %s", status)
	}

	if err := database.QueryRow("SELECT status FROM dead_letter_queue WHERE id = $1", invalid.ID).Scan(&status); err != nil {
		t.Fatalf("Status query failed: %v", err)
	}
	if status != StatusDead {
		t.Errorf("Expected invalid entry dead, got %s", status)
	}
}
