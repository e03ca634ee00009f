package persistence

import "errors"

var ErrJournalClosed = errors.New("operation journal is closed")

// IOperationJournal records every fund movement the signer attempts.
// All implementations must be thread-safe as operations may run concurrently.
type IOperationJournal interface {
	// RecordOperation inserts or replaces the record with the same Id.
	RecordOperation(record *OperationRecord) error

	// LoadOperation returns nil if the record doesn't exist, error only on storage failure.
	LoadOperation(id string) (*OperationRecord, error)

	// ListOperations returns all records ordered by StartedAt (ascending), ties broken by Id.
	// Returns an empty slice if nothing has been recorded.
	ListOperations() ([]*OperationRecord, error)

	// DeleteOperation is idempotent.
	DeleteOperation(id string) error

	// Close is idempotent. After Close all other calls return ErrJournalClosed.
	Close() error

	// HealthCheck verifies the journal is operational.
	HealthCheck() error
}
