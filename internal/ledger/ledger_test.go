package ledger

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordAndLatest(t *testing.T) {
	ctx := context.Background()
	l, err := Open(filepath.Join(t.TempDir(), "nested", "ledger.db"))
	require.NoError(t, err)
	defer l.Close()

	base := time.Date(2026, 10, 19, 6, 0, 0, 0, time.UTC)
	first, err := l.Record(ctx, Entry{
		CorrelationKey: "central2026-10-19",
		Kind:           KindItem,
		Basename:       "central",
		Status:         StatusCached,
		RecordCount:    4,
		CreatedAt:      base,
	})
	require.NoError(t, err)
	assert.NotEmpty(t, first.ID)

	_, err = l.Record(ctx, Entry{
		CorrelationKey: "central2026-10-19",
		Kind:           KindTitle,
		Basename:       "central",
		Status:         StatusPublished,
		RecordCount:    12,
		HasItemList:    true,
		ArchivePath:    "/var/lib/squired/archive/central.paginglist.t261019.auton",
		CreatedAt:      base.Add(time.Minute),
	})
	require.NoError(t, err)

	entries, err := l.Latest(ctx, 10)
	require.NoError(t, err)
	require.Len(t, entries, 2)

	assert.Equal(t, KindTitle, entries[0].Kind)
	assert.Equal(t, StatusPublished, entries[0].Status)
	assert.True(t, entries[0].HasItemList)
	assert.Equal(t, 12, entries[0].RecordCount)
	assert.True(t, entries[0].CreatedAt.Equal(base.Add(time.Minute)))

	assert.Equal(t, first.ID, entries[1].ID)

	limited, err := l.Latest(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

func TestReopenKeepsHistory(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "ledger.db")

	l, err := Open(path)
	require.NoError(t, err)
	_, err = l.Record(ctx, Entry{CorrelationKey: "k", Kind: KindTitle, Basename: "b", Status: StatusFailed, Detail: "exit 1"})
	require.NoError(t, err)
	require.NoError(t, l.Close())

	l, err = Open(path)
	require.NoError(t, err)
	defer l.Close()

	entries, err := l.Latest(ctx, 0)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "exit 1", entries[0].Detail)
}
