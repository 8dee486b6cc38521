package pid

import (
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/cihanayindi/touchswipe-identifier-AIoT/internal/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAcquireAndRelease(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run", "swipebridge.pid")

	f, err := Acquire(path)
	require.NoError(t, err)
	assert.Equal(t, path, f.Path())

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, strconv.Itoa(os.Getpid())+"\n", string(raw))

	require.NoError(t, f.Release())
	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err))
}

func TestAcquireEmptyPathDisables(t *testing.T) {
	f, err := Acquire("")
	require.NoError(t, err)
	assert.Nil(t, f)
	assert.NoError(t, f.Release())
	assert.Empty(t, f.Path())
}

func TestAcquireRejectsLiveOwner(t *testing.T) {
	path := filepath.Join(t.TempDir(), "swipebridge.pid")
	// The parent of the test binary is alive for the duration of the test.
	require.NoError(t, os.WriteFile(path, []byte(strconv.Itoa(os.Getppid())), 0o644))

	_, err := Acquire(path)
	assert.True(t, errors.HasCode(err, errors.ErrAlreadyRunning))
}

func TestAcquireReplacesStaleFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "swipebridge.pid")
	require.NoError(t, os.WriteFile(path, []byte("not a pid"), 0o644))

	f, err := Acquire(path)
	require.NoError(t, err)
	require.NoError(t, f.Release())
}

func TestReleaseLeavesForeignFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "swipebridge.pid")

	f, err := Acquire(path)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, []byte("1"), 0o644))

	require.NoError(t, f.Release())
	_, err = os.Stat(path)
	assert.NoError(t, err)
}
