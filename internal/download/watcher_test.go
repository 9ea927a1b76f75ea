package download

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, path string, size int) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, make([]byte, size), 0o644))
}

func TestWaitForFile_IgnoresPreexistingFiles(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "old.xlsx"), 10)

	w, err := NewWatcher(dir, WithInterval(10*time.Millisecond))
	require.NoError(t, err)

	_, ok := w.WaitForFile(context.Background(), 100*time.Millisecond)
	assert.False(t, ok)
}

func TestWait_WatchErrorsDoNotStopEvents(t *testing.T) {
	dir := t.TempDir()
	w, err := NewWatcher(dir, WithInterval(time.Hour))
	require.NoError(t, err)

	events := make(chan fsnotify.Event)
	errs := make(chan error)
	path := filepath.Join(dir, "export.xlsx")
	go func() {
		errs <- errors.New("queue overflow")
		errs <- errors.New("queue overflow")
		_ = os.WriteFile(path, make([]byte, 10), 0o644)
		events <- fsnotify.Event{Name: path, Op: fsnotify.Create}
	}()

	artifact, ok := w.wait(context.Background(), 2*time.Second, events, errs)
	require.True(t, ok, "an event after watch errors must still wake the scan")
	assert.Equal(t, path, artifact.Path)
}

func TestWaitForFile_DetectsNewFile(t *testing.T) {
	dir := t.TempDir()
	w, err := NewWatcher(dir, WithInterval(10*time.Millisecond))
	require.NoError(t, err)

	go func() {
		time.Sleep(30 * time.Millisecond)
		_ = os.WriteFile(filepath.Join(dir, "keywords.xlsx"), make([]byte, 128), 0o644)
	}()

	artifact, ok := w.WaitForFile(context.Background(), 2*time.Second)
	require.True(t, ok)
	assert.Equal(t, filepath.Join(dir, "keywords.xlsx"), artifact.Path)
	assert.Equal(t, int64(128), artifact.Size)
}

func TestWaitForFile_NeverReturnsPartial(t *testing.T) {
	dir := t.TempDir()
	w, err := NewWatcher(dir, WithInterval(10*time.Millisecond))
	require.NoError(t, err)

	writeFile(t, filepath.Join(dir, "keywords.xlsx.crdownload"), 512)
	writeFile(t, filepath.Join(dir, "keywords.tmp"), 512)
	writeFile(t, filepath.Join(dir, "keywords.part"), 512)

	_, ok := w.WaitForFile(context.Background(), 100*time.Millisecond)
	assert.False(t, ok)

	require.NoError(t, os.Rename(filepath.Join(dir, "keywords.xlsx.crdownload"), filepath.Join(dir, "keywords.xlsx")))
	artifact, ok := w.WaitForFile(context.Background(), time.Second)
	require.True(t, ok)
	assert.Equal(t, ".xlsx", filepath.Ext(artifact.Path))
}

func TestWaitForFile_RequiresMinimumSize(t *testing.T) {
	dir := t.TempDir()
	w, err := NewWatcher(dir, WithInterval(10*time.Millisecond), WithMinSize(64))
	require.NoError(t, err)

	path := filepath.Join(dir, "keywords.xlsx")
	writeFile(t, path, 0)
	_, ok := w.WaitForFile(context.Background(), 80*time.Millisecond)
	assert.False(t, ok, "zero-byte placeholder must not be accepted")

	writeFile(t, path, 64)
	_, ok = w.WaitForFile(context.Background(), time.Second)
	assert.True(t, ok)
}

func TestWaitForFile_AcceptedExtensions(t *testing.T) {
	dir := t.TempDir()
	w, err := NewWatcher(dir, WithInterval(10*time.Millisecond), WithExtensions("csv"))
	require.NoError(t, err)

	writeFile(t, filepath.Join(dir, "report.pdf"), 10)
	writeFile(t, filepath.Join(dir, "report.XLSX"), 10)
	_, ok := w.WaitForFile(context.Background(), 80*time.Millisecond)
	assert.False(t, ok)

	writeFile(t, filepath.Join(dir, "report.CSV"), 10)
	artifact, ok := w.WaitForFile(context.Background(), time.Second)
	require.True(t, ok)
	assert.Equal(t, "report.CSV", filepath.Base(artifact.Path))
}

func TestWaitForFile_ContextCancelled(t *testing.T) {
	dir := t.TempDir()
	w, err := NewWatcher(dir)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	start := time.Now()
	_, ok := w.WaitForFile(ctx, time.Minute)
	assert.False(t, ok)
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestNewWatcher_MissingDirectory(t *testing.T) {
	_, err := NewWatcher(filepath.Join(t.TempDir(), "missing"))
	assert.Error(t, err)
}

func TestRemovePartials(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "a.crdownload"), 1)
	writeFile(t, filepath.Join(dir, "b.tmp"), 1)
	writeFile(t, filepath.Join(dir, "keep.xlsx"), 1)

	removed, err := RemovePartials(dir)
	require.NoError(t, err)
	assert.Equal(t, 2, removed)

	names, err := listFiles(dir)
	require.NoError(t, err)
	assert.Equal(t, []string{"keep.xlsx"}, names)

	removed, err = RemovePartials(filepath.Join(dir, "missing"))
	assert.NoError(t, err)
	assert.Zero(t, removed)
}

func TestPurge(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "run")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	writeFile(t, filepath.Join(dir, "x.xlsx"), 1)

	require.NoError(t, Purge(dir))
	_, err := os.Stat(dir)
	assert.True(t, os.IsNotExist(err))
	assert.NoError(t, Purge(dir))
	assert.NoError(t, Purge(""))
}

func TestTimeoutError(t *testing.T) {
	err := &TimeoutError{Dir: "/tmp/x", Timeout: 90 * time.Second}
	assert.Contains(t, err.Error(), "download timeout")
	assert.Contains(t, err.Error(), "1m30s")
}
