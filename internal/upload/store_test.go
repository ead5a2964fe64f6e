package upload

import (
	"testing"

	"github.com/lgulliver/lodestone-upload/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStore_Create(t *testing.T) {
	store := NewStore(0)

	session, err := store.Create("report.pdf")
	require.NoError(t, err)

	assert.NotEmpty(t, session.Token)
	assert.Equal(t, "report.pdf", session.Filename)
	assert.Equal(t, "sessions/"+session.Token+".part", session.StagePath)

	snapshot := session.Snapshot()
	assert.Equal(t, types.StatusOpen, snapshot.Status)
	assert.Equal(t, int64(0), snapshot.ExpectedOffset)
	assert.Equal(t, 1, store.Len())
}

func TestStore_UniqueTokens(t *testing.T) {
	store := NewStore(0)
	seen := make(map[string]bool)

	for i := 0; i < 500; i++ {
		session, err := store.Create("file.bin")
		require.NoError(t, err)
		assert.False(t, seen[session.Token], "duplicate token %s", session.Token)
		seen[session.Token] = true
	}
	assert.Equal(t, 500, store.Len())
}

func TestStore_GetAndRemove(t *testing.T) {
	store := NewStore(0)

	_, err := store.Get("missing")
	assert.ErrorIs(t, err, ErrSessionNotFound)

	session, err := store.Create("a.txt")
	require.NoError(t, err)

	got, err := store.Get(session.Token)
	require.NoError(t, err)
	assert.Same(t, session, got)

	store.Remove(session.Token)
	_, err = store.Get(session.Token)
	assert.ErrorIs(t, err, ErrSessionNotFound)

	// Removing twice is a no-op
	store.Remove(session.Token)
	assert.Equal(t, 0, store.Len())
}

func TestStore_Capacity(t *testing.T) {
	store := NewStore(2)

	first, err := store.Create("one")
	require.NoError(t, err)
	_, err = store.Create("two")
	require.NoError(t, err)

	_, err = store.Create("three")
	assert.ErrorIs(t, err, ErrCapacityExceeded)

	store.Remove(first.Token)
	_, err = store.Create("three")
	assert.NoError(t, err)
	assert.Len(t, store.All(), 2)
}
