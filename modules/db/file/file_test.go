package file

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileKVGetMissingKey(t *testing.T) {
	kv, err := NewFileKV(t.TempDir())
	require.NoError(t, err)

	v, err := kv.AtomicGet(context.Background(), "nothing")
	require.NoError(t, err)
	assert.Nil(t, v)
}

func TestFileKVSetReturnsPrevious(t *testing.T) {
	kv, err := NewFileKV(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	prev, err := kv.AtomicSet(ctx, "k", []byte("one"))
	require.NoError(t, err)
	assert.Nil(t, prev)

	prev, err = kv.AtomicSet(ctx, "k", []byte("two"))
	require.NoError(t, err)
	assert.Equal(t, []byte("one"), prev)

	v, err := kv.AtomicGet(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("two"), v)
}

func TestFileKVDeleteIsIdempotent(t *testing.T) {
	kv, err := NewFileKV(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	_, err = kv.AtomicSet(ctx, "k", "value")
	require.NoError(t, err)

	require.NoError(t, kv.AtomicDelete(ctx, "k"))
	require.NoError(t, kv.AtomicDelete(ctx, "k"))

	v, err := kv.AtomicGet(ctx, "k")
	require.NoError(t, err)
	assert.Nil(t, v)
}

func TestFileKVKeyCannotEscapeRoot(t *testing.T) {
	dir := t.TempDir()
	kv, err := NewFileKV(dir)
	require.NoError(t, err)
	ctx := context.Background()

	_, err = kv.AtomicSet(ctx, "../outside/key", []byte("v"))
	require.NoError(t, err)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.False(t, entries[0].IsDir())

	// Nothing landed next to the root.
	_, err = os.Stat(filepath.Join(dir, "..", "outside"))
	assert.True(t, os.IsNotExist(err))
}

func TestFileKVRejectsUnsupportedValues(t *testing.T) {
	kv, err := NewFileKV(t.TempDir())
	require.NoError(t, err)

	_, err = kv.AtomicSet(context.Background(), "k", 42)
	require.Error(t, err)
}

func TestFileKVNoTempLeftovers(t *testing.T) {
	dir := t.TempDir()
	kv, err := NewFileKV(dir)
	require.NoError(t, err)
	ctx := context.Background()

	for range 10 {
		_, err := kv.AtomicSet(ctx, "k", []byte("v"))
		require.NoError(t, err)
	}

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}
