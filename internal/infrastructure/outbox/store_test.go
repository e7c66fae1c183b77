package outbox

import (
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "nested", "outbox.db"), "")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func ids(items []Item) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		out = append(out, item.ID)
	}
	return out
}

func TestStore_PutPeekAck(t *testing.T) {
	store := openStore(t)

	require.NoError(t, store.Put(Item{Topic: "task-events", Data: json.RawMessage(`{"n":1}`)}))
	require.NoError(t, store.Put(Item{Topic: "task-events", Data: json.RawMessage(`{"n":2}`)}))

	size, err := store.Size()
	require.NoError(t, err)
	assert.Equal(t, 2, size)

	items, err := store.Peek(10)
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.NotEmpty(t, items[0].ID)
	assert.Equal(t, PriorityNormal, items[0].Priority)
	assert.Equal(t, items[0].SpooledAt, items[0].QueuedAt)
	assert.JSONEq(t, `{"n":1}`, string(items[0].Data))

	require.NoError(t, store.Ack(items[0]))
	items, err = store.Peek(10)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.JSONEq(t, `{"n":2}`, string(items[0].Data))
}

func TestStore_DrainsByBandThenAge(t *testing.T) {
	store := openStore(t)
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, store.Put(Item{ID: "low", Topic: "t", Priority: PriorityLow, SpooledAt: base}))
	require.NoError(t, store.Put(Item{ID: "normal-2", Topic: "t", SpooledAt: base.Add(2 * time.Second)}))
	require.NoError(t, store.Put(Item{ID: "normal-1", Topic: "t", SpooledAt: base.Add(time.Second)}))
	require.NoError(t, store.Put(Item{ID: "high", Topic: "t", Priority: PriorityHigh, SpooledAt: base.Add(time.Hour)}))
	require.NoError(t, store.Put(Item{ID: "unknown-band", Topic: "t", Priority: 9, SpooledAt: base.Add(3 * time.Second)}))

	items, err := store.Peek(10)
	require.NoError(t, err)
	assert.Equal(t, []string{"high", "normal-1", "normal-2", "unknown-band", "low"}, ids(items))
}

func TestStore_RetryMovesToBackOfBand(t *testing.T) {
	store := openStore(t)
	old := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return old.Add(time.Hour) }

	require.NoError(t, store.Put(Item{ID: "a", Topic: "t", SpooledAt: old}))
	require.NoError(t, store.Put(Item{ID: "b", Topic: "t", SpooledAt: old.Add(time.Second)}))
	require.NoError(t, store.Put(Item{ID: "c", Topic: "t", Priority: PriorityLow, SpooledAt: old}))

	items, err := store.Peek(1)
	require.NoError(t, err)
	retried, err := store.Retry(items[0])
	require.NoError(t, err)
	assert.Equal(t, 1, retried.Attempts)

	items, err = store.Peek(10)
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "a", "c"}, ids(items))
	assert.Equal(t, 1, items[1].Attempts)
	assert.True(t, old.Equal(items[1].SpooledAt), "retries keep the original spool time")
}

func TestStore_Expire(t *testing.T) {
	store := openStore(t)
	cutoff := time.Date(2025, 1, 2, 0, 0, 0, 0, time.UTC)

	require.NoError(t, store.Put(Item{ID: "stale", Topic: "t", SpooledAt: cutoff.Add(-time.Hour), QueuedAt: cutoff.Add(2 * time.Hour)}))
	require.NoError(t, store.Put(Item{ID: "fresh", Topic: "t", SpooledAt: cutoff.Add(time.Hour)}))

	removed, err := store.Expire(cutoff)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	items, err := store.Peek(10)
	require.NoError(t, err)
	assert.Equal(t, []string{"fresh"}, ids(items))
}

func TestStore_RejectsItemWithoutTopic(t *testing.T) {
	store := openStore(t)
	assert.Error(t, store.Put(Item{Data: json.RawMessage(`{}`)}))
}

func TestStore_NilIsClosed(t *testing.T) {
	var store *Store
	_, err := store.Size()
	assert.Error(t, err)
	assert.NoError(t, store.Close())
}
