package backup

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mordilloSan/sharingcart/cart"
)

type memoryRegistrar struct {
	mu      sync.Mutex
	calls   int
	files   map[string]cart.FileRef
	removed []string
	fail    map[string]bool
}

func newMemoryRegistrar() *memoryRegistrar {
	return &memoryRegistrar{files: map[string]cart.FileRef{}, fail: map[string]bool{}}
}

func (r *memoryRegistrar) RegisterFile(_ context.Context, ref cart.FileRef) (cart.FileRef, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	if r.fail[ref.FileName] {
		return ref, errors.New("store unavailable")
	}
	ref.ID = int64(len(r.files) + 1)
	r.files[ref.FileName] = ref
	return ref, nil
}

func (r *memoryRegistrar) RemoveFile(_ context.Context, filename string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.files, filename)
	r.removed = append(r.removed, filename)
	return nil
}

func (r *memoryRegistrar) get(name string) (cart.FileRef, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ref, ok := r.files[name]
	return ref, ok
}

func (r *memoryRegistrar) wasRemoved(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, n := range r.removed {
		if n == name {
			return true
		}
	}
	return false
}

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o600); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
}

func TestScanRegistersRegularFiles(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "backup-a.mbz", "hello")
	writeFile(t, dir, "backup-b.mbz", "world!")
	writeFile(t, dir, ".backup-c.mbz.part", "partial")
	if err := os.Mkdir(filepath.Join(dir, "nested"), 0o750); err != nil {
		t.Fatalf("mkdir: %v", err)
	}

	reg := newMemoryRegistrar()
	area, err := New(dir, reg)
	require.NoError(t, err)

	stats, err := area.Scan(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Registered)
	assert.Equal(t, 2, stats.Skipped)
	assert.Zero(t, stats.Failed)

	ref, ok := reg.get("backup-a.mbz")
	require.True(t, ok)
	assert.Equal(t, int64(5), ref.Size)
	// sha1("hello")
	assert.Equal(t, "aaf4c61ddcc5e8a2dabede0f3b482cd9aea9434d", ref.ContentHash)

	_, ok = reg.get(".backup-c.mbz.part")
	assert.False(t, ok)
}

func TestScanCountsFailures(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "ok.mbz", "x")
	writeFile(t, dir, "bad.mbz", "y")

	reg := newMemoryRegistrar()
	reg.fail["bad.mbz"] = true
	area, err := New(dir, reg)
	require.NoError(t, err)

	stats, err := area.Scan(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Registered)
	assert.Equal(t, 1, stats.Failed)
}

func TestNewCreatesDirectory(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "moodledata", "backups")
	area, err := New(dir, newMemoryRegistrar())
	require.NoError(t, err)

	info, err := os.Stat(area.Dir())
	require.NoError(t, err)
	assert.True(t, info.IsDir())

	_, err = New("", newMemoryRegistrar())
	assert.Error(t, err)
}

func TestOpenRejectsTraversal(t *testing.T) {
	root := t.TempDir()
	dir := filepath.Join(root, "area")
	writeFile(t, root, "secret.txt", "nope")

	area, err := New(dir, newMemoryRegistrar())
	require.NoError(t, err)
	writeFile(t, dir, "backup.mbz", "data")

	for _, name := range []string{"", ".", "..", "../secret.txt", "sub/backup.mbz", `..\secret.txt`, "/etc/passwd"} {
		_, _, err := area.Open(name)
		assert.ErrorIs(t, err, ErrInvalidName, name)
	}

	f, info, err := area.Open("backup.mbz")
	require.NoError(t, err)
	defer func() { _ = f.Close() }()
	assert.Equal(t, int64(4), info.Size())
	body, err := io.ReadAll(f)
	require.NoError(t, err)
	assert.Equal(t, "data", string(body))

	_, _, err = area.Open("missing.mbz")
	assert.True(t, errors.Is(err, os.ErrNotExist))
}

func TestWatchRegistersAndForgets(t *testing.T) {
	dir := t.TempDir()
	reg := newMemoryRegistrar()
	area, err := New(dir, reg, WithDebounce(20*time.Millisecond))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done, err := area.StartWatching(ctx)
	require.NoError(t, err)
	defer func() {
		cancel()
		<-done
	}()

	writeFile(t, dir, "backup-new.mbz", "content")
	require.Eventually(t, func() bool {
		ref, ok := reg.get("backup-new.mbz")
		return ok && ref.Size == int64(len("content"))
	}, 2*time.Second, 10*time.Millisecond)

	writeFile(t, dir, ".hidden.part", "ignored")
	require.NoError(t, os.Remove(filepath.Join(dir, "backup-new.mbz")))
	require.Eventually(t, func() bool {
		return reg.wasRemoved("backup-new.mbz")
	}, 2*time.Second, 10*time.Millisecond)

	_, ok := reg.get(".hidden.part")
	assert.False(t, ok)
}

func TestWatchStopsOnCancel(t *testing.T) {
	area, err := New(t.TempDir(), newMemoryRegistrar())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- area.Watch(ctx) }()
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatalf("watcher did not stop")
	}
}

func TestScanFuncReportsEachFile(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.mbz", "1")
	writeFile(t, dir, "b.mbz", "22")

	reg := newMemoryRegistrar()
	reg.fail["b.mbz"] = true
	area, err := New(dir, reg)
	require.NoError(t, err)

	events := map[string]ScanEvent{}
	_, err = area.ScanFunc(context.Background(), func(ev ScanEvent) {
		events[ev.Name] = ev
	})
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.NoError(t, events["a.mbz"].Err)
	assert.Equal(t, int64(1), events["a.mbz"].Ref.Size)
	assert.Error(t, events["b.mbz"].Err)
}

func (r *memoryRegistrar) registrations() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls
}

func TestSupersededTimerDoesNotRegister(t *testing.T) {
	dir := t.TempDir()
	reg := newMemoryRegistrar()
	a, err := New(dir, reg, WithDebounce(time.Hour))
	require.NoError(t, err)
	writeFile(t, dir, "a.mbz", "content")
	ctx := context.Background()

	a.schedule(ctx, "a.mbz")
	a.mu.Lock()
	stale := a.pending["a.mbz"]
	a.mu.Unlock()
	require.NotNil(t, stale)

	// The stale timer fired but lost the lock to a newer schedule.
	stale.Stop()
	current := time.NewTimer(time.Hour)
	defer current.Stop()
	a.mu.Lock()
	a.pending["a.mbz"] = current
	a.mu.Unlock()

	assert.False(t, a.fire(ctx, "a.mbz", stale))
	assert.Equal(t, 0, reg.registrations())
	a.mu.Lock()
	assert.Same(t, current, a.pending["a.mbz"])
	a.mu.Unlock()

	assert.True(t, a.fire(ctx, "a.mbz", current))
	assert.Equal(t, 1, reg.registrations())
	a.mu.Lock()
	assert.Empty(t, a.pending)
	a.mu.Unlock()
}

func TestScheduleCoalescesBursts(t *testing.T) {
	dir := t.TempDir()
	reg := newMemoryRegistrar()
	a, err := New(dir, reg, WithDebounce(50*time.Millisecond))
	require.NoError(t, err)
	writeFile(t, dir, "b.mbz", "content")
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		a.schedule(ctx, "b.mbz")
	}
	require.Eventually(t, func() bool {
		_, ok := reg.get("b.mbz")
		return ok
	}, 2*time.Second, 10*time.Millisecond)

	time.Sleep(150 * time.Millisecond)
	assert.Equal(t, 1, reg.registrations())
}
