// ABOUTME: Tests for the SQLite store backend
// ABOUTME: Verifies the snapshot contract matches the JSON file store

package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "parley.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSQLiteStore_LoadEmpty(t *testing.T) {
	s := newTestSQLiteStore(t)

	records, err := s.Load(context.Background())
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestSQLiteStore_SaveLoadRoundTrip(t *testing.T) {
	s := newTestSQLiteStore(t)
	ctx := context.Background()

	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	in := map[string]*Record{
		"lotbot-abc123": testRecord(StatusOpen, at),
		"mantis-x1y2z3": testRecord(StatusDone, at.Add(time.Hour)),
	}
	require.NoError(t, s.Save(ctx, in))

	out, err := s.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, in, out)
}

func TestSQLiteStore_SaveReplacesSnapshot(t *testing.T) {
	s := newTestSQLiteStore(t)
	ctx := context.Background()

	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, s.Save(ctx, map[string]*Record{
		"a": testRecord(StatusOpen, at),
		"b": testRecord(StatusOpen, at),
	}))
	require.NoError(t, s.Save(ctx, map[string]*Record{
		"a": testRecord(StatusDone, at),
	}))

	out, err := s.Load(ctx)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, StatusDone, out["a"].Status)
}

func TestSQLiteStore_Reopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "parley.db")
	ctx := context.Background()

	s, err := NewSQLiteStore(path)
	require.NoError(t, err)
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, s.Save(ctx, map[string]*Record{"a": testRecord(StatusOpen, at)}))
	require.NoError(t, s.Close())

	reopened, err := NewSQLiteStore(path)
	require.NoError(t, err)
	defer reopened.Close()

	out, err := reopened.Load(ctx)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "Check the weather in Paris", out["a"].Task)
}
