package inbox

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWatcherDeliversSettledFiles(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "inbox")
	w, err := New(dir, WithDebounce(50*time.Millisecond))
	require.NoError(t, err)
	require.NoError(t, w.Start(context.Background()))
	t.Cleanup(w.Stop)

	require.NoError(t, os.WriteFile(filepath.Join(dir, ".partial"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "crack.png"), []byte{0x89, 'P', 'N', 'G'}, 0o644))

	select {
	case batch := <-w.Batches():
		require.Len(t, batch.Candidates, 1)
		assert.Equal(t, "crack.png", batch.Candidates[0].Name())
		assert.Equal(t, "image/png", batch.Candidates[0].ContentType())
		assert.Equal(t, []string{filepath.Join(dir, "crack.png")}, batch.Paths)
	case <-time.After(5 * time.Second):
		t.Fatal("no batch delivered")
	}
}

func TestWatcherStopClosesBatches(t *testing.T) {
	w, err := New(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, w.Start(context.Background()))
	w.Stop()
	_, open := <-w.Batches()
	assert.False(t, open)
}

func TestNewRequiresDirectory(t *testing.T) {
	_, err := New("  ")
	assert.Error(t, err)
}

func TestHiddenFiles(t *testing.T) {
	assert.True(t, hidden("/tmp/.DS_Store"))
	assert.True(t, hidden("/tmp/photo.jpg.part"))
	assert.True(t, hidden("/tmp/photo.jpg.crdownload"))
	assert.False(t, hidden("/tmp/photo.jpg"))
}
