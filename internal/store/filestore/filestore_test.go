package filestore

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStore_RoundTrip(t *testing.T) {
	ctx := context.Background()
	s, err := New(t.TempDir())
	require.NoError(t, err)

	_, ok, err := s.Get(ctx, "members")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.Put(ctx, "members", []byte(`[1]`)))
	require.NoError(t, s.Put(ctx, "members", []byte(`[1,2]`)))

	data, ok, err := s.Get(ctx, "members")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, `[1,2]`, string(data))
}

func TestStore_PutAllAndClear(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	s, err := New(dir)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "README.txt"), []byte("keep"), 0o644))
	require.NoError(t, s.PutAll(ctx, map[string][]byte{
		"members":  []byte(`[]`),
		"accounts": []byte(`[]`),
	}))

	require.NoError(t, s.Clear(ctx))

	for _, key := range []string{"members", "accounts"} {
		_, ok, err := s.Get(ctx, key)
		require.NoError(t, err)
		assert.False(t, ok, key)
	}
	_, err = os.Stat(filepath.Join(dir, "README.txt"))
	assert.NoError(t, err, "non-snapshot files survive Clear")

	leftovers, err := filepath.Glob(filepath.Join(dir, ".*"))
	require.NoError(t, err)
	assert.Empty(t, leftovers, "no temp files left behind")
}

func TestStore_RejectsPathKeys(t *testing.T) {
	s, err := New(t.TempDir())
	require.NoError(t, err)

	err = s.Put(context.Background(), "../escape", []byte("x"))
	assert.Error(t, err)
}

func TestNew_RequiresDir(t *testing.T) {
	_, err := New("")
	assert.Error(t, err)
}
