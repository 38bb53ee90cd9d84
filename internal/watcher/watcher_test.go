package watcher

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type fakeTails struct {
	mu      sync.Mutex
	running map[string]bool
	starts  map[string]int
	fail    map[string]error
}

func newFakeTails() *fakeTails {
	return &fakeTails{running: map[string]bool{}, starts: map[string]int{}, fail: map[string]error{}}
}

func (f *fakeTails) tail(ctx context.Context, path string) error {
	f.mu.Lock()
	f.running[path] = true
	f.starts[filepath.Base(path)]++
	err := f.fail[filepath.Base(path)]
	f.mu.Unlock()
	defer func() {
		f.mu.Lock()
		delete(f.running, path)
		f.mu.Unlock()
	}()
	if err != nil {
		return err
	}
	<-ctx.Done()
	return ctx.Err()
}

func (f *fakeTails) isRunning(dir, name string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.running[filepath.Join(dir, name)]
}

func (f *fakeTails) startCount(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.starts[name]
}

func (f *fakeTails) runningCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.running)
}

func touch(t *testing.T, dir, name string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("x\n"), 0o644))
}

// startWatcher запускает Run в фоне; stop отменяет его и возвращает результат Run.
func startWatcher(t *testing.T, cfg Config, tails *fakeTails) (w *Watcher, stop func() error) {
	t.Helper()
	cfg.Logger = zaptest.NewLogger(t)
	w, err := New(cfg, tails.tail)
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()
	stop = sync.OnceValue(func() error {
		cancel()
		return <-done
	})
	t.Cleanup(func() { _ = stop() })
	return w, stop
}

func TestWatcherStartsMatchingFilesAndFollowsDirectoryChanges(t *testing.T) {
	dir := t.TempDir()
	touch(t, dir, "existing.log")
	touch(t, dir, "notes.txt")
	touch(t, dir, "skip.log")

	tails := newFakeTails()
	startWatcher(t, Config{Dir: dir, Filter: "*.log", Exclude: `^skip`}, tails)

	require.Eventually(t, func() bool { return tails.isRunning(dir, "existing.log") }, 3*time.Second, 10*time.Millisecond)

	touch(t, dir, "created.log")
	require.Eventually(t, func() bool { return tails.isRunning(dir, "created.log") }, 3*time.Second, 10*time.Millisecond)

	require.NoError(t, os.Remove(filepath.Join(dir, "existing.log")))
	require.Eventually(t, func() bool { return !tails.isRunning(dir, "existing.log") }, 3*time.Second, 10*time.Millisecond)

	assert.Zero(t, tails.startCount("notes.txt"))
	assert.Zero(t, tails.startCount("skip.log"))
	assert.Equal(t, 1, tails.startCount("created.log"))
}

func TestRenameStopsOldPathAndStartsNewOne(t *testing.T) {
	dir := t.TempDir()
	touch(t, dir, "a.log")
	tails := newFakeTails()
	startWatcher(t, Config{Dir: dir, Filter: "*.log"}, tails)
	require.Eventually(t, func() bool { return tails.isRunning(dir, "a.log") }, 3*time.Second, 10*time.Millisecond)

	require.NoError(t, os.Rename(filepath.Join(dir, "a.log"), filepath.Join(dir, "b.log")))
	require.Eventually(t, func() bool {
		return !tails.isRunning(dir, "a.log") && tails.isRunning(dir, "b.log")
	}, 3*time.Second, 10*time.Millisecond)
}

func TestTryStartIsIdempotent(t *testing.T) {
	dir := t.TempDir()
	tails := newFakeTails()
	w, _ := startWatcher(t, Config{Dir: dir}, tails)
	require.Eventually(t, func() bool {
		w.mu.Lock()
		defer w.mu.Unlock()
		return w.ctx != nil
	}, 3*time.Second, 10*time.Millisecond)

	path := filepath.Join(dir, "manual.log")
	assert.True(t, w.TryStart(path))
	assert.False(t, w.TryStart(path))
	assert.Equal(t, []string{path}, w.Tracked())

	assert.True(t, w.TryStop(path))
	assert.False(t, w.TryStop(path))
	assert.Empty(t, w.Tracked())
}

func TestPeriodicRescanStopsVanishedFiles(t *testing.T) {
	dir := t.TempDir()
	tails := newFakeTails()
	w, _ := startWatcher(t, Config{Dir: dir, RescanInterval: 20 * time.Millisecond}, tails)
	require.Eventually(t, func() bool {
		w.mu.Lock()
		defer w.mu.Unlock()
		return w.ctx != nil
	}, 3*time.Second, 10*time.Millisecond)

	// файл, о котором каталог не знает: сканирование должно его остановить
	ghost := filepath.Join(dir, "ghost.log")
	require.True(t, w.TryStart(ghost))
	require.Eventually(t, func() bool { return len(w.Tracked()) == 0 }, 3*time.Second, 10*time.Millisecond)
}

func TestFailedFileIsReportedAndNotRestartedByRescan(t *testing.T) {
	dir := t.TempDir()
	touch(t, dir, "broken.log")
	tails := newFakeTails()
	tails.fail["broken.log"] = errors.New("boom")

	var mu sync.Mutex
	var reported []error
	startWatcher(t, Config{
		Dir:            dir,
		RescanInterval: 20 * time.Millisecond,
		Report: func(err error) {
			mu.Lock()
			reported = append(reported, err)
			mu.Unlock()
		},
	}, tails)

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(reported) == 1
	}, 3*time.Second, 10*time.Millisecond)
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, 1, tails.startCount("broken.log"))
}

func TestCancelStopsAllTails(t *testing.T) {
	dir := t.TempDir()
	touch(t, dir, "one.log")
	touch(t, dir, "two.log")
	tails := newFakeTails()
	_, stop := startWatcher(t, Config{Dir: dir}, tails)
	require.Eventually(t, func() bool { return tails.runningCount() == 2 }, 3*time.Second, 10*time.Millisecond)

	assert.ErrorIs(t, stop(), context.Canceled)
	assert.Zero(t, tails.runningCount())
}

func TestRunFailsForMissingDirectory(t *testing.T) {
	w, err := New(Config{Dir: filepath.Join(t.TempDir(), "missing")}, newFakeTails().tail)
	require.NoError(t, err)
	assert.Error(t, w.Run(context.Background()))
}

func TestMatcher(t *testing.T) {
	m, err := NewMatcher("app-*.{log,csv}", `\.echo$`)
	require.NoError(t, err)
	assert.True(t, m.Match("/var/log/app-1.log"))
	assert.True(t, m.Match("app-2.csv"))
	assert.False(t, m.Match("other.log"))

	echo, err := NewMatcher("", `\.echo$`)
	require.NoError(t, err)
	assert.True(t, echo.Match("app.log"))
	assert.False(t, echo.Match("app.log.echo"))

	_, err = NewMatcher("[", "")
	assert.Error(t, err)
	_, err = NewMatcher("", "(")
	assert.Error(t, err)
}

func TestScanKeepsFileStartedDuringDirectoryRead(t *testing.T) {
	dir := t.TempDir()
	touch(t, dir, "a.log")
	tails := newFakeTails()
	w, err := New(Config{Dir: dir, Logger: zaptest.NewLogger(t)}, tails.tail)
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	w.ctx = ctx
	t.Cleanup(func() {
		cancel()
		w.stopAll()
	})

	late := filepath.Join(dir, "b.log")
	readDir = func(name string) ([]os.DirEntry, error) {
		entries, err := os.ReadDir(name)
		// b.log создан и подхвачен событием, пока каталог читался
		touch(t, dir, "b.log")
		require.True(t, w.TryStart(late))
		return entries, err
	}
	t.Cleanup(func() { readDir = os.ReadDir })

	require.NoError(t, w.scan())
	assert.Equal(t, []string{filepath.Join(dir, "a.log"), late}, w.Tracked())
	assert.Equal(t, 1, tails.startCount("b.log"))
	assert.Eventually(t, func() bool { return tails.isRunning(dir, "b.log") }, time.Second, 5*time.Millisecond)
}
