package snapshot

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/beekhof/calendar-notifier/internal/detect"
)

func openTestDB(t *testing.T) *SQLStore {
	t.Helper()

	db, err := OpenDB(context.Background(), DialectSQLite, filepath.Join(t.TempDir(), "snapshots.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	return NewSQLStore(db, DialectSQLite, "work")
}

func TestSQLStoreEmpty(t *testing.T) {
	store := openTestDB(t)

	snap, err := store.Load(context.Background())

	require.NoError(t, err)
	assert.Empty(t, snap)
}

func TestSQLStoreSaveLoad(t *testing.T) {
	ctx := context.Background()
	store := openTestDB(t)

	require.NoError(t, store.Save(ctx, sampleSnapshot()))

	got, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, sampleSnapshot(), got)
}

func TestSQLStoreSaveReplacesOnlyItsKey(t *testing.T) {
	ctx := context.Background()
	work := openTestDB(t)
	home := NewSQLStore(work.db, DialectSQLite, "home")

	require.NoError(t, work.Save(ctx, sampleSnapshot()))
	require.NoError(t, home.Save(ctx, sampleSnapshot()[:1]))
	require.NoError(t, work.Save(ctx, sampleSnapshot()[1:]))

	got, err := work.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, sampleSnapshot()[1:], got)

	got, err = home.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, sampleSnapshot()[:1], got)
}

func TestSQLStoreKeepsOrderAcrossBatches(t *testing.T) {
	ctx := context.Background()
	store := openTestDB(t)

	var snap detect.Snapshot
	for i := 0; i < insertBatch+3; i++ {
		snap = append(snap, detect.Row{
			ID:       string(rune('a'+i%26)) + "-" + string(rune('0'+i%10)),
			Title:    "Event",
			Start:    "2024/01/10 12:00",
			End:      "2024/01/10 13:00",
			Location: detect.NoLocation,
			Kind:     detect.KindTimed,
		})
	}

	require.NoError(t, store.Save(ctx, snap))

	got, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, snap, got)
}

func TestOpenDBRejectsUnknownDialect(t *testing.T) {
	_, err := OpenDB(context.Background(), "mysql", "whatever")

	assert.ErrorIs(t, err, ErrUnknownStore)
}
