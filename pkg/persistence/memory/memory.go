package memory

import (
	"fmt"
	"sync"

	"github.com/Layr-Labs/vault-signer-go/pkg/persistence"
	"go.uber.org/zap"
)

// MemoryJournal keeps operation records in memory. Records are lost when the process exits.
// Records are deep copied on the way in and out to prevent external mutation.
type MemoryJournal struct {
	mu      sync.RWMutex
	records map[string]*persistence.OperationRecord
	closed  bool
}

var _ persistence.IOperationJournal = (*MemoryJournal)(nil)

func NewMemoryJournal(logger *zap.Logger) *MemoryJournal {
	logger.Sugar().Warnw("Using in-memory operation journal; history is lost on exit",
		"hint", "set VAULT_PERSISTENCE_TYPE=badger or redis to keep it",
	)
	return &MemoryJournal{
		records: make(map[string]*persistence.OperationRecord),
	}
}

func (m *MemoryJournal) RecordOperation(record *persistence.OperationRecord) error {
	if record == nil {
		return fmt.Errorf("cannot record nil OperationRecord")
	}
	if record.Id == "" {
		return fmt.Errorf("cannot record OperationRecord without an id")
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return persistence.ErrJournalClosed
	}
	m.records[record.Id] = record.Clone()
	return nil
}

func (m *MemoryJournal) LoadOperation(id string) (*persistence.OperationRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, persistence.ErrJournalClosed
	}
	return m.records[id].Clone(), nil
}

func (m *MemoryJournal) ListOperations() ([]*persistence.OperationRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, persistence.ErrJournalClosed
	}

	records := make([]*persistence.OperationRecord, 0, len(m.records))
	for _, r := range m.records {
		records = append(records, r.Clone())
	}
	persistence.SortOperations(records)
	return records, nil
}

func (m *MemoryJournal) DeleteOperation(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return persistence.ErrJournalClosed
	}
	delete(m.records, id)
	return nil
}

func (m *MemoryJournal) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	m.records = nil
	return nil
}

func (m *MemoryJournal) HealthCheck() error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return persistence.ErrJournalClosed
	}
	return nil
}
