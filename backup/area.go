// Package backup tracks the directory where course backups for cart items are written.
// Every regular file that shows up there is registered with the store, which moves
// the items waiting for it out of the copying state.
package backup

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/mordilloSan/go_logger/logger"

	"github.com/mordilloSan/sharingcart/cart"
)

var ErrInvalidName = errors.New("invalid backup file name")

const defaultDebounce = 250 * time.Millisecond

// Registrar records backup files as they appear and disappear.
type Registrar interface {
	RegisterFile(ctx context.Context, ref cart.FileRef) (cart.FileRef, error)
	RemoveFile(ctx context.Context, filename string) error
}

// Area is a flat directory of backup files addressed by base name.
type Area struct {
	dir      string
	reg      Registrar
	debounce time.Duration

	mu      sync.Mutex
	pending map[string]*time.Timer
}

type Option func(*Area)

// WithDebounce sets how long the watcher waits after the last write before registering a file.
func WithDebounce(d time.Duration) Option {
	return func(a *Area) {
		if d > 0 {
			a.debounce = d
		}
	}
}

// New opens the backup area, creating the directory if needed.
func New(dir string, reg Registrar, opts ...Option) (*Area, error) {
	if dir == "" {
		return nil, fmt.Errorf("backup directory is required")
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(abs, 0o750); err != nil {
		return nil, fmt.Errorf("create backup dir: %w", err)
	}
	a := &Area{
		dir:      abs,
		reg:      reg,
		debounce: defaultDebounce,
		pending:  make(map[string]*time.Timer),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a, nil
}

// Dir returns the absolute directory path.
func (a *Area) Dir() string {
	return a.dir
}

// ScanStats summarizes a Scan run.
type ScanStats struct {
	Registered int
	Skipped    int
	Failed     int
	Duration   time.Duration
}

// ScanEvent reports the outcome for one file during a scan.
type ScanEvent struct {
	Name string
	Ref  cart.FileRef
	Err  error
}

// Scan registers every regular, non-hidden file already present in the area.
func (a *Area) Scan(ctx context.Context) (ScanStats, error) {
	return a.ScanFunc(ctx, nil)
}

// ScanFunc is Scan with a callback invoked after each registration attempt.
func (a *Area) ScanFunc(ctx context.Context, fn func(ScanEvent)) (ScanStats, error) {
	start := time.Now()
	var stats ScanStats

	entries, err := os.ReadDir(a.dir)
	if err != nil {
		return stats, err
	}
	for _, e := range entries {
		if ctx.Err() != nil {
			return stats, ctx.Err()
		}
		if e.IsDir() || isHidden(e.Name()) || !e.Type().IsRegular() {
			stats.Skipped++
			continue
		}
		ref, err := a.Register(ctx, e.Name())
		if fn != nil {
			fn(ScanEvent{Name: e.Name(), Ref: ref, Err: err})
		}
		if err != nil {
			logger.Warnf("Failed to register backup %s: %v", e.Name(), err)
			stats.Failed++
			continue
		}
		stats.Registered++
	}
	stats.Duration = time.Since(start).Truncate(time.Millisecond)
	return stats, nil
}

// Register records the named file with its size and content hash.
func (a *Area) Register(ctx context.Context, name string) (cart.FileRef, error) {
	f, info, err := a.Open(name)
	if err != nil {
		return cart.FileRef{}, err
	}
	defer func() { _ = f.Close() }()

	if !info.Mode().IsRegular() {
		return cart.FileRef{}, fmt.Errorf("%s is not a regular file", name)
	}

	h := sha1.New()
	if _, err := io.Copy(h, f); err != nil {
		return cart.FileRef{}, fmt.Errorf("hash %s: %w", name, err)
	}

	ref, err := a.reg.RegisterFile(ctx, cart.FileRef{
		FileName:    name,
		Size:        info.Size(),
		ContentHash: hex.EncodeToString(h.Sum(nil)),
	})
	if err != nil {
		return ref, err
	}
	logger.Debugf("Registered backup %s (%d bytes)", name, ref.Size)
	return ref, nil
}

// Open returns the named backup file for reading. Names that are not plain
// base names are rejected with ErrInvalidName.
func (a *Area) Open(name string) (*os.File, os.FileInfo, error) {
	if err := validName(name); err != nil {
		return nil, nil, err
	}
	f, err := os.Open(filepath.Join(a.dir, name))
	if err != nil {
		return nil, nil, err
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, nil, err
	}
	if info.IsDir() {
		_ = f.Close()
		return nil, nil, fmt.Errorf("%w: %s is a directory", ErrInvalidName, name)
	}
	return f, info, nil
}

func validName(name string) error {
	if name == "" || name == "." || name == ".." ||
		strings.ContainsAny(name, `/\`) || strings.ContainsRune(name, 0) ||
		filepath.Base(name) != name {
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return nil
}

// Dot files are in-progress writes.
func isHidden(name string) bool {
	return len(name) > 0 && name[0] == '.'
}
