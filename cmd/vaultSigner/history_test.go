package main

import (
	"testing"
	"time"

	"github.com/Layr-Labs/vault-signer-go/pkg/config"
	"github.com/Layr-Labs/vault-signer-go/pkg/persistence"
	"github.com/Layr-Labs/vault-signer-go/pkg/persistence/memory"
	"github.com/Layr-Labs/vault-signer-go/pkg/types"
	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func Test_PruneOperations(t *testing.T) {
	journal := memory.NewMemoryJournal(zaptest.NewLogger(t))
	now := time.Now()
	old := now.Add(-48 * time.Hour).UnixMilli()

	records := []*persistence.OperationRecord{
		{Id: "old-succeeded", Operation: types.OperationWithdraw, Status: persistence.OperationStatusSucceeded, StartedAt: old},
		{Id: "old-failed", Operation: types.OperationSend, Status: persistence.OperationStatusFailed, StartedAt: old},
		{Id: "old-pending", Operation: types.OperationDeposit, Status: persistence.OperationStatusPending, StartedAt: old},
		{Id: "recent", Operation: types.OperationSend, Status: persistence.OperationStatusSucceeded, StartedAt: now.UnixMilli()},
	}
	for _, r := range records {
		require.NoError(t, journal.RecordOperation(r))
	}

	pruned, err := pruneOperations(journal, now.Add(-24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 2, pruned)

	remaining, err := journal.ListOperations()
	require.NoError(t, err)
	ids := make([]string, 0, len(remaining))
	for _, r := range remaining {
		ids = append(ids, r.Id)
	}
	assert.ElementsMatch(t, []string{"old-pending", "recent"}, ids)
}

func Test_LoadOperation(t *testing.T) {
	journal := memory.NewMemoryJournal(zaptest.NewLogger(t))
	require.NoError(t, journal.RecordOperation(&persistence.OperationRecord{
		Id:          "op-1",
		Operation:   types.OperationWithdraw,
		Destination: "0x0000000000000000000000000000000000000abc",
		Amount:      "6",
		Status:      persistence.OperationStatusFailed,
		ErrorKind:   "exchange_rejected",
		StartedAt:   time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC).UnixMilli(),
	}))

	record, err := loadOperation(journal, "op-1")
	require.NoError(t, err)
	entry := newHistoryEntry(record)
	assert.Equal(t, "withdraw", entry.Operation)
	assert.Equal(t, "failed", entry.Status)
	assert.Equal(t, "0x0000000000000000000000000000000000000abc", entry.Address)
	assert.Equal(t, "2026-01-02T03:04:05Z", entry.StartedAt)
	assert.Equal(t, "exchange_rejected", entry.ErrorKind)

	_, err = loadOperation(journal, "missing")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func Test_OpenJournal(t *testing.T) {
	t.Run("badger", func(t *testing.T) {
		journal, err := openJournal(&config.PersistenceConfig{
			Type:     config.PersistenceTypeBadger,
			DataPath: t.TempDir(),
		}, zaptest.NewLogger(t))
		require.NoError(t, err)
		require.NoError(t, journal.Close())
	})

	t.Run("redis", func(t *testing.T) {
		mr := miniredis.RunT(t)
		journal, err := openJournal(&config.PersistenceConfig{
			Type:         config.PersistenceTypeRedis,
			RedisAddress: mr.Addr(),
		}, zaptest.NewLogger(t))
		require.NoError(t, err)
		require.NoError(t, journal.Close())
	})

	t.Run("redis gone after open", func(t *testing.T) {
		mr := miniredis.RunT(t)
		journal, err := newJournal(&config.PersistenceConfig{
			Type:         config.PersistenceTypeRedis,
			RedisAddress: mr.Addr(),
		}, zaptest.NewLogger(t))
		require.NoError(t, err)
		defer func() { _ = journal.Close() }()

		mr.Close()
		require.Error(t, journal.HealthCheck())
	})

	t.Run("closed journal fails health check", func(t *testing.T) {
		journal := memory.NewMemoryJournal(zaptest.NewLogger(t))
		require.NoError(t, journal.Close())
		assert.ErrorIs(t, journal.HealthCheck(), persistence.ErrJournalClosed)
	})
}
