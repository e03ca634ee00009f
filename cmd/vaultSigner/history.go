package main

import (
	"fmt"
	"time"

	"github.com/Layr-Labs/vault-signer-go/pkg/logger"
	"github.com/Layr-Labs/vault-signer-go/pkg/persistence"
	"github.com/urfave/cli/v2"
)

type historyEntry struct {
	Id        string `json:"id"`
	Operation string `json:"operation"`
	Status    string `json:"status"`
	Amount    string `json:"amount"`
	Address   string `json:"address"`
	StartedAt string `json:"startedAt"`
	ErrorKind string `json:"errorKind,omitempty"`
	Error     string `json:"error,omitempty"`
}

func newHistoryEntry(r *persistence.OperationRecord) historyEntry {
	return historyEntry{
		Id:        r.Id,
		Operation: r.Operation.String(),
		Status:    string(r.Status),
		Amount:    r.Amount,
		Address:   r.Destination,
		StartedAt: time.UnixMilli(r.StartedAt).UTC().Format(time.RFC3339),
		ErrorKind: r.ErrorKind,
		Error:     r.ErrorMessage,
	}
}

// newJournalRuntime opens only the journal; the history commands never touch the remote signer.
func newJournalRuntime(c *cli.Context) (*runtime, error) {
	l, err := logger.NewLogger(&logger.LoggerConfig{Debug: c.Bool("verbose")})
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}
	persistenceCfg := parsePersistenceConfig(c)
	if err := persistenceCfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	journal, err := openJournal(&persistenceCfg, l)
	if err != nil {
		return nil, err
	}
	return &runtime{logger: l, journal: journal}, nil
}

func runHistory(c *cli.Context) error {
	rt, err := newJournalRuntime(c)
	if err != nil {
		return err
	}
	defer rt.Close()

	if id := c.String("id"); id != "" {
		record, err := loadOperation(rt.journal, id)
		if err != nil {
			return err
		}
		return printJSON(newHistoryEntry(record))
	}

	records, err := rt.journal.ListOperations()
	if err != nil {
		return fmt.Errorf("failed to list operations: %w", err)
	}
	entries := make([]historyEntry, 0, len(records))
	for _, r := range records {
		entries = append(entries, newHistoryEntry(r))
	}
	return printJSON(entries)
}

func runHistoryDelete(c *cli.Context) error {
	rt, err := newJournalRuntime(c)
	if err != nil {
		return err
	}
	defer rt.Close()

	id := c.String("id")
	if _, err := loadOperation(rt.journal, id); err != nil {
		return err
	}
	if err := rt.journal.DeleteOperation(id); err != nil {
		return fmt.Errorf("failed to delete operation %s: %w", id, err)
	}
	fmt.Printf("Deleted operation %s\n", id)
	return nil
}

func runHistoryPrune(c *cli.Context) error {
	rt, err := newJournalRuntime(c)
	if err != nil {
		return err
	}
	defer rt.Close()

	pruned, err := pruneOperations(rt.journal, time.Now().Add(-c.Duration("older-than")))
	if err != nil {
		return err
	}
	fmt.Printf("Pruned %d operations\n", pruned)
	return nil
}

func loadOperation(journal persistence.IOperationJournal, id string) (*persistence.OperationRecord, error) {
	record, err := journal.LoadOperation(id)
	if err != nil {
		return nil, fmt.Errorf("failed to load operation %s: %w", id, err)
	}
	if record == nil {
		return nil, fmt.Errorf("operation %s not found", id)
	}
	return record, nil
}

// pruneOperations deletes finished operations started before cutoff. Pending records are kept,
// since their outcome on the exchange is unknown.
func pruneOperations(journal persistence.IOperationJournal, cutoff time.Time) (int, error) {
	records, err := journal.ListOperations()
	if err != nil {
		return 0, fmt.Errorf("failed to list operations: %w", err)
	}
	pruned := 0
	for _, r := range records {
		if r.Status == persistence.OperationStatusPending || r.StartedAt >= cutoff.UnixMilli() {
			continue
		}
		if err := journal.DeleteOperation(r.Id); err != nil {
			return pruned, fmt.Errorf("failed to delete operation %s: %w", r.Id, err)
		}
		pruned++
	}
	return pruned, nil
}
