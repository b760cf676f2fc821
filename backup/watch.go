package backup

import (
	"context"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/mordilloSan/go_logger/logger"
)

// Watch follows changes in the area until ctx is cancelled. New or rewritten
// files are registered once writes settle; removed files are forgotten.
func (a *Area) Watch(ctx context.Context) error {
	done, err := a.StartWatching(ctx)
	if err != nil {
		return err
	}
	return <-done
}

// StartWatching subscribes to the directory before returning, then follows it
// in the background. The channel yields once the watcher stops.
func (a *Area) StartWatching(ctx context.Context) (<-chan error, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := w.Add(a.dir); err != nil {
		_ = w.Close()
		return nil, err
	}
	logger.Infof("Watching backup directory %s", a.dir)

	done := make(chan error, 1)
	go func() {
		defer func() { _ = w.Close() }()
		done <- a.loop(ctx, w)
	}()
	return done, nil
}

func (a *Area) loop(ctx context.Context, w *fsnotify.Watcher) error {
	for {
		select {
		case <-ctx.Done():
			a.stopPending()
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			a.handleEvent(ctx, ev)
		case werr, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logger.Warnf("Backup watcher error: %v", werr)
		}
	}
}

func (a *Area) handleEvent(ctx context.Context, ev fsnotify.Event) {
	name := filepath.Base(ev.Name)
	if isHidden(name) || filepath.Dir(ev.Name) != a.dir {
		return
	}

	switch {
	case ev.Has(fsnotify.Create), ev.Has(fsnotify.Write):
		a.schedule(ctx, name)
	case ev.Has(fsnotify.Remove), ev.Has(fsnotify.Rename):
		a.cancel(name)
		if err := a.reg.RemoveFile(ctx, name); err != nil {
			logger.Warnf("Failed to forget backup %s: %v", name, err)
		}
	}
}

// schedule registers name once no event for it arrived for the debounce
// period. A timer that already fired is replaced rather than reset, so each
// timer runs at most once.
func (a *Area) schedule(ctx context.Context, name string) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if t, ok := a.pending[name]; ok && t.Stop() {
		t.Reset(a.debounce)
		return
	}
	var t *time.Timer
	t = time.AfterFunc(a.debounce, func() { a.fire(ctx, name, t) })
	a.pending[name] = t
}

// fire runs the registration owned by timer t. It does nothing when t is no
// longer the pending timer for name, since the newer one will register it.
func (a *Area) fire(ctx context.Context, name string, t *time.Timer) bool {
	a.mu.Lock()
	if a.pending[name] != t {
		a.mu.Unlock()
		return false
	}
	delete(a.pending, name)
	a.mu.Unlock()

	if ctx.Err() != nil {
		return false
	}
	if _, err := a.Register(ctx, name); err != nil {
		logger.Warnf("Failed to register backup %s: %v", name, err)
	}
	return true
}

func (a *Area) cancel(name string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if t, ok := a.pending[name]; ok {
		t.Stop()
		delete(a.pending, name)
	}
}

func (a *Area) stopPending() {
	a.mu.Lock()
	defer a.mu.Unlock()
	for name, t := range a.pending {
		t.Stop()
		delete(a.pending, name)
	}
}
