package ingest

import (
	"context"
	"database/sql/driver"
	"errors"
	"net"

	"github.com/lib/pq"
)

// DecodeError marks a message value that is not valid JSON. The raw bytes
// are unusable as an event, so the coordinator dead-letters them and moves
// on.
type DecodeError struct {
	Err error
}

func (e *DecodeError) Error() string {
	return "decode error: " + e.Err.Error()
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// StorageError wraps a storage-layer failure. Transient failures (connection
// loss, timeout, deadlock) must not advance the consumer offset, so broker
// redelivery retries them; everything else is routed to the dead-letter
// store by the coordinator.
type StorageError struct {
	Err       error
	Transient bool
}

func (e *StorageError) Error() string {
	if e.Transient {
		return "transient storage error: " + e.Err.Error()
	}
	return "storage error: " + e.Err.Error()
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

func newStorageError(err error) *StorageError {
	return &StorageError{Err: err, Transient: isTransient(err)}
}

// isDuplicateKey reports whether the error is a unique violation on the
// event log (the race between the dedup lookup and another writer). Only
// that constraint means a replayed event; a unique violation on users or
// user_stats is two first writes for the same user racing, and swallowing
// it would drop the losing event without storing it.
func isDuplicateKey(err error) bool {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) || pqErr.Code != "23505" {
		return false
	}
	return pqErr.Constraint == "user_events_event_id_key" || pqErr.Table == "user_events"
}

// isTransient classifies retryable storage failures: bad connections,
// cancelled/timed-out statements, deadlocks, connection-class and
// resource-class Postgres errors, network errors.
func isTransient(err error) bool {
	if errors.Is(err, driver.ErrBadConn) ||
		errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, context.Canceled) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		// A unique violation outside the event log means a concurrent
		// writer won the insert race; on retry the lookup sees the row.
		if pqErr.Code == "23505" {
			return true
		}
		switch pqErr.Code.Class() {
		case "08", // connection exception
			"40", // transaction rollback (serialization failure, deadlock)
			"53", // insufficient resources
			"57": // operator intervention (statement timeout, shutdown)
			return true
		}
	}

	return false
}
