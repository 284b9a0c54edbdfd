package storage

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileRoundTrip(t *testing.T) {
	store, err := NewFile(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, store.Set("spool", []byte(`[{"id":"a"}]`)))

	got, err := store.Get("spool")
	require.NoError(t, err)
	assert.Equal(t, `[{"id":"a"}]`, string(got))
}

func TestFileGetMissing(t *testing.T) {
	store, err := NewFile(t.TempDir())
	require.NoError(t, err)

	_, err = store.Get("nope")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestFileSetReplaces(t *testing.T) {
	store, err := NewFile(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, store.Set("spool", []byte("first")))
	require.NoError(t, store.Set("spool", []byte("second")))

	got, err := store.Get("spool")
	require.NoError(t, err)
	assert.Equal(t, "second", string(got))
}

func TestFileDelete(t *testing.T) {
	store, err := NewFile(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, store.Set("spool", []byte("x")))
	require.NoError(t, store.Delete("spool"))

	_, err = store.Get("spool")
	assert.ErrorIs(t, err, ErrNotFound)

	// Deleting an absent key is not an error.
	assert.NoError(t, store.Delete("spool"))
}

func TestFileKeyCannotEscapeDir(t *testing.T) {
	dir := t.TempDir()
	store, err := NewFile(dir)
	require.NoError(t, err)

	require.NoError(t, store.Set("../escape", []byte("x")))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "__escape.json", entries[0].Name())

	_, err = os.Stat(filepath.Join(dir, "..", "escape.json"))
	assert.True(t, os.IsNotExist(err))
}

func TestMemoryRoundTrip(t *testing.T) {
	store := NewMemory()

	require.NoError(t, store.Set("k", []byte("v")))

	got, err := store.Get("k")
	require.NoError(t, err)
	assert.Equal(t, "v", string(got))

	_, err = store.Get("missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryCopiesValues(t *testing.T) {
	store := NewMemory()

	value := []byte("original")
	require.NoError(t, store.Set("k", value))
	value[0] = 'X'

	got, err := store.Get("k")
	require.NoError(t, err)
	assert.Equal(t, "original", string(got))

	got[0] = 'Y'
	again, err := store.Get("k")
	require.NoError(t, err)
	assert.Equal(t, "original", string(again))
}

func TestMemorySecureRoundTrip(t *testing.T) {
	store := NewMemorySecure()

	_, err := store.Get("uid")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, store.Set("uid", "user-123"))

	got, err := store.Get("uid")
	require.NoError(t, err)
	assert.Equal(t, "user-123", got)

	require.NoError(t, store.Delete("uid"))
	_, err = store.Get("uid")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSecureFileRoundTrip(t *testing.T) {
	dir := t.TempDir()
	store, err := NewSecureFile(dir)
	require.NoError(t, err)

	require.NoError(t, store.Set("uid", "user-123"))

	got, err := store.Get("uid")
	require.NoError(t, err)
	assert.Equal(t, "user-123", got)
}

func TestSecureFileEncryptsOnDisk(t *testing.T) {
	dir := t.TempDir()
	store, err := NewSecureFile(dir)
	require.NoError(t, err)

	require.NoError(t, store.Set("uid", "user-123"))

	raw, err := os.ReadFile(filepath.Join(dir, "uid.sec"))
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "user-123")
}

func TestSecureFileSurvivesReopen(t *testing.T) {
	dir := t.TempDir()

	first, err := NewSecureFile(dir)
	require.NoError(t, err)
	require.NoError(t, first.Set("uid", "user-123"))

	// A new instance over the same directory reuses the master key.
	second, err := NewSecureFile(dir)
	require.NoError(t, err)

	got, err := second.Get("uid")
	require.NoError(t, err)
	assert.Equal(t, "user-123", got)
}

func TestSecureFileGetMissing(t *testing.T) {
	store, err := NewSecureFile(t.TempDir())
	require.NoError(t, err)

	_, err = store.Get("absent")
	assert.ErrorIs(t, err, ErrNotFound)

	assert.NoError(t, store.Delete("absent"))
}
