package redis

import (
	"fmt"
	"sync"
	"testing"

	"github.com/Layr-Labs/vault-signer-go/pkg/logger"
	"github.com/Layr-Labs/vault-signer-go/pkg/persistence"
	"github.com/Layr-Labs/vault-signer-go/pkg/types"
	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestJournal(t *testing.T, mr *miniredis.Miniredis, prefix string) *RedisJournal {
	t.Helper()
	testLogger, _ := logger.NewLogger(&logger.LoggerConfig{Debug: false})
	rj, err := NewRedisJournal(&RedisConfig{Address: mr.Addr(), KeyPrefix: prefix}, testLogger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = rj.Close() })
	return rj
}

func newRecord(id string, startedAt int64) *persistence.OperationRecord {
	return &persistence.OperationRecord{
		Id:          id,
		Operation:   types.OperationDeposit,
		Destination: "0x8BFCF9e2764BC84DE4BBd0a0f5AAF19F47027A73",
		Amount:      "10",
		Status:      persistence.OperationStatusPending,
		StartedAt:   startedAt,
	}
}

func TestNewRedisJournal_Validation(t *testing.T) {
	testLogger, _ := logger.NewLogger(&logger.LoggerConfig{Debug: false})

	_, err := NewRedisJournal(nil, testLogger)
	require.Error(t, err)

	_, err = NewRedisJournal(&RedisConfig{}, testLogger)
	require.ErrorContains(t, err, "address cannot be empty")

	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()
	_, err = NewRedisJournal(&RedisConfig{Address: addr}, testLogger)
	require.ErrorContains(t, err, "failed to connect")
}

func TestRedisJournal_RecordAndLoad(t *testing.T) {
	mr := miniredis.RunT(t)
	rj := newTestJournal(t, mr, "")

	record := newRecord("op-1", 100)
	require.NoError(t, rj.RecordOperation(record))

	loaded, err := rj.LoadOperation("op-1")
	require.NoError(t, err)
	assert.Equal(t, record, loaded)

	missing, err := rj.LoadOperation("missing")
	require.NoError(t, err)
	assert.Nil(t, missing)

	assert.True(t, mr.Exists(keyPrefixOperation+"op-1"))
}

func TestRedisJournal_KeyPrefix(t *testing.T) {
	mr := miniredis.RunT(t)
	rj := newTestJournal(t, mr, "desk-a:")

	require.NoError(t, rj.RecordOperation(newRecord("op-1", 1)))
	assert.True(t, mr.Exists("desk-a:"+keyPrefixOperation+"op-1"))
	assert.True(t, mr.Exists("desk-a:"+keySchemaVersion))
	assert.False(t, mr.Exists(keyPrefixOperation+"op-1"))
}

func TestRedisJournal_ListAndDelete(t *testing.T) {
	mr := miniredis.RunT(t)
	rj := newTestJournal(t, mr, "")

	empty, err := rj.ListOperations()
	require.NoError(t, err)
	assert.Empty(t, empty)

	require.NoError(t, rj.RecordOperation(newRecord("c", 300)))
	require.NoError(t, rj.RecordOperation(newRecord("a", 100)))
	require.NoError(t, rj.RecordOperation(newRecord("b", 200)))

	all, err := rj.ListOperations()
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, []string{"a", "b", "c"}, []string{all[0].Id, all[1].Id, all[2].Id})

	require.NoError(t, rj.DeleteOperation("b"))
	require.NoError(t, rj.DeleteOperation("b"))
	all, err = rj.ListOperations()
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestRedisJournal_ListDropsStaleIndexEntries(t *testing.T) {
	mr := miniredis.RunT(t)
	rj := newTestJournal(t, mr, "")

	require.NoError(t, rj.RecordOperation(newRecord("op-1", 1)))
	require.NoError(t, rj.RecordOperation(newRecord("op-2", 2)))
	mr.Del(keyPrefixOperation + "op-1")

	all, err := rj.ListOperations()
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "op-2", all[0].Id)

	members, err := mr.ZMembers(keyOperationIndex)
	require.NoError(t, err)
	assert.Equal(t, []string{"op-2"}, members)
}

func TestRedisJournal_RejectsUnknownSchema(t *testing.T) {
	mr := miniredis.RunT(t)
	require.NoError(t, mr.Set(keySchemaVersion, "v0"))

	testLogger, _ := logger.NewLogger(&logger.LoggerConfig{Debug: false})
	_, err := NewRedisJournal(&RedisConfig{Address: mr.Addr()}, testLogger)
	require.ErrorContains(t, err, "unsupported schema version")
}

func TestRedisJournal_HealthCheck(t *testing.T) {
	mr := miniredis.RunT(t)
	rj := newTestJournal(t, mr, "")

	require.NoError(t, rj.HealthCheck())

	mr.Del(keySchemaVersion)
	require.ErrorContains(t, rj.HealthCheck(), "schema version not found")
}

func TestRedisJournal_Close(t *testing.T) {
	mr := miniredis.RunT(t)
	rj := newTestJournal(t, mr, "")

	require.NoError(t, rj.Close())
	require.NoError(t, rj.Close())

	assert.ErrorIs(t, rj.RecordOperation(newRecord("x", 1)), persistence.ErrJournalClosed)
	_, err := rj.LoadOperation("x")
	assert.ErrorIs(t, err, persistence.ErrJournalClosed)
	_, err = rj.ListOperations()
	assert.ErrorIs(t, err, persistence.ErrJournalClosed)
	assert.ErrorIs(t, rj.DeleteOperation("x"), persistence.ErrJournalClosed)
	assert.ErrorIs(t, rj.HealthCheck(), persistence.ErrJournalClosed)
}

func TestRedisJournal_ThreadSafety(t *testing.T) {
	mr := miniredis.RunT(t)
	rj := newTestJournal(t, mr, "")

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			assert.NoError(t, rj.RecordOperation(newRecord(fmt.Sprintf("op-%02d", i), int64(i))))
		}(i)
	}
	wg.Wait()

	all, err := rj.ListOperations()
	require.NoError(t, err)
	assert.Len(t, all, 20)
}
