package mmap

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMapping_OpenClose(t *testing.T) {
	path := filepath.Join(t.TempDir(), "segment")
	content := []byte("ACGTACGT segment")
	require.NoError(t, os.WriteFile(path, content, 0o600))

	m, err := Open(path)
	require.NoError(t, err)

	assert.Equal(t, path, m.Path())
	assert.Equal(t, len(content), m.Size())
	assert.Equal(t, content, m.Bytes())
	assert.NoError(t, m.Advise(Random))
	assert.NoError(t, m.Advise(Sequential))

	require.NoError(t, m.Close())
	require.NoError(t, m.Close())
	assert.Nil(t, m.Bytes())
	assert.ErrorIs(t, m.Advise(Normal), ErrClosed)
}

func TestMapping_EmptyFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty")
	require.NoError(t, os.WriteFile(path, nil, 0o600))

	m, err := Open(path)
	require.NoError(t, err)
	assert.Zero(t, m.Size())
	assert.Empty(t, m.Bytes())
	assert.NoError(t, m.Advise(Random))
	assert.NoError(t, m.Close())
}

func TestMapping_Missing(t *testing.T) {
	_, err := Open(filepath.Join(t.TempDir(), "missing"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestLock_BlocksSecondHolder(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lock")
	f1, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o600)
	require.NoError(t, err)
	defer f1.Close()
	f2, err := os.OpenFile(path, os.O_RDWR, 0o600)
	require.NoError(t, err)
	defer f2.Close()

	require.NoError(t, Lock(f1))

	acquired := make(chan error, 1)
	go func() { acquired <- Lock(f2) }()

	select {
	case <-acquired:
		t.Fatal("second lock granted while the first is held")
	case <-time.After(50 * time.Millisecond):
	}

	require.NoError(t, Unlock(f1))
	select {
	case err := <-acquired:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("second lock not granted after unlock")
	}
	assert.NoError(t, Unlock(f2))
}
