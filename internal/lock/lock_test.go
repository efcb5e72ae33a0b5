package lock

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileLockAcquireRelease(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.lock")

	l, err := New(path)
	require.NoError(t, err)

	ok, err := l.TryLock()
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, l.Unlock())

	ok, err = l.TryLock()
	require.NoError(t, err)
	assert.True(t, ok)
	require.NoError(t, l.Unlock())
}

func TestFileLockCreatesParentDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "dir", "run.lock")

	l, err := New(path)
	require.NoError(t, err)

	ok, err := l.TryLock()
	require.NoError(t, err)
	assert.True(t, ok)
	require.NoError(t, l.Unlock())
}
