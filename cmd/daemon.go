package cmd

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"github.com/mordilloSan/go_logger/logger"

	"github.com/mordilloSan/sharingcart/backup"
	"github.com/mordilloSan/sharingcart/i18n"
	"github.com/mordilloSan/sharingcart/site"
	"github.com/mordilloSan/sharingcart/storage"
)

const (
	defaultSocketPath   = "/var/run/sharingcart.sock"
	defaultDBPath       = "/var/lib/sharingcart/sharingcart.db"
	defaultOrphanMaxAge = 7 * 24 * time.Hour
)

// DaemonConfig controls the long-running server.
type DaemonConfig struct {
	DBPath        string
	SocketPath    string
	ListenAddr    string
	BackupDir     string
	WWWRoot       string
	Theme         string
	Lang          string
	StringsFile   string
	LookupTimeout time.Duration
	// Interval between maintenance runs (orphan file pruning + WAL checkpoint); 0 disables.
	Interval     time.Duration
	OrphanMaxAge time.Duration
}

type daemon struct {
	cfg             DaemonConfig
	db              *sql.DB
	store           *storage.Store
	view            *cartView
	area            *backup.Area
	servers         []*http.Server
	running         atomic.Bool
	usedSystemdSock bool
}

func NewDaemon(cfg DaemonConfig) (*daemon, error) {
	switch cfg.SocketPath {
	case "-":
		cfg.SocketPath = ""
	case "":
		cfg.SocketPath = defaultSocketPath
	}
	if cfg.DBPath == "" {
		cfg.DBPath = defaultDBPath
	}
	if cfg.OrphanMaxAge <= 0 {
		cfg.OrphanMaxAge = defaultOrphanMaxAge
	}

	if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0o750); err != nil {
		return nil, fmt.Errorf("mkdir db dir: %w", err)
	}

	db, dbExisted, err := openCartDatabase(cfg.DBPath)
	if err != nil {
		return nil, err
	}
	logJournalMode(db)

	store := storage.NewStoreWithDB(db, cfg.DBPath)
	if dbExisted {
		logCartStatus(store)
	}

	view, err := newCartView(store, cfg)
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	d := &daemon{
		cfg:   cfg,
		db:    db,
		store: store,
		view:  view,
	}

	if cfg.BackupDir != "" {
		area, err := backup.New(cfg.BackupDir, store)
		if err != nil {
			_ = db.Close()
			return nil, err
		}
		d.area = area
	} else {
		logger.Warnf("Backup directory not set; items will stay in the copying state")
	}

	return d, nil
}

func newCartView(store *storage.Store, cfg DaemonConfig) (*cartView, error) {
	strs, err := i18n.New(cfg.Lang)
	if err != nil {
		return nil, err
	}
	if cfg.StringsFile != "" {
		if err := strs.LoadOverrides(cfg.StringsFile); err != nil {
			return nil, fmt.Errorf("load strings: %w", err)
		}
	}
	return &cartView{
		store:   store,
		strings: strs,
		site:    site.New(cfg.WWWRoot, cfg.Theme),
		timeout: cfg.LookupTimeout,
	}, nil
}

// Close stops the HTTP servers, closes the database and removes the socket
// file unless systemd owns it.
func (d *daemon) Close() {
	logger.Infof("Stopping sharing cart daemon")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	for _, srv := range d.servers {
		if err := srv.Shutdown(ctx); err != nil {
			logger.Warnf("HTTP shutdown: %v", err)
		}
	}

	if d.db != nil {
		if err := d.db.Close(); err != nil {
			logger.Warnf("Closing cart database: %v", err)
		}
	}

	if d.cfg.SocketPath != "" && !d.usedSystemdSock {
		if err := os.Remove(d.cfg.SocketPath); err != nil && !os.IsNotExist(err) {
			logger.Warnf("Removing socket %s: %v", d.cfg.SocketPath, err)
		}
	}
	logger.Infof("Sharing cart daemon stopped")
}

// Run starts the backup watcher, the maintenance scheduler (if any) and the
// HTTP servers, and blocks until ctx is cancelled.
func (d *daemon) Run(ctx context.Context) error {
	eps, err := d.endpoints(d.routes())
	if err != nil {
		return err
	}
	if d.area != nil {
		d.startBackupWatcher(ctx)
	}
	if d.cfg.Interval > 0 {
		go d.startScheduler(ctx)
	}
	return d.serve(ctx, eps)
}

// startBackupWatcher registers existing backups, then follows the directory.
func (d *daemon) startBackupWatcher(ctx context.Context) {
	stats, err := d.area.Scan(ctx)
	if err != nil {
		logger.Errorf("Initial backup scan failed: %v", err)
	} else {
		logger.Infof("Backup scan complete in %v (registered=%d skipped=%d failed=%d)",
			stats.Duration, stats.Registered, stats.Skipped, stats.Failed)
	}

	done, err := d.area.StartWatching(ctx)
	if err != nil {
		logger.Errorf("Backup watcher failed to start: %v", err)
		return
	}
	go func() {
		if err := <-done; err != nil {
			logger.Errorf("Backup watcher stopped: %v", err)
		}
	}()
}

func (d *daemon) startScheduler(ctx context.Context) {
	ticker := time.NewTicker(d.cfg.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if err := d.runMaintenanceOnce(ctx); err != nil {
				logger.Errorf("scheduled maintenance failed: %v", err)
			}
		case <-ctx.Done():
			return
		}
	}
}

func (d *daemon) routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/openapi.json", serveOpenapi)
	mux.HandleFunc("/tree", d.handleTree)
	mux.HandleFunc("/items", d.handleItems)
	mux.HandleFunc("/add", d.handleAdd)
	mux.HandleFunc("/delete", d.handleDelete)
	mux.HandleFunc("/capabilities", d.handleCapabilities)
	mux.HandleFunc("/pluginfile.php/", d.handlePluginFile)
	mux.HandleFunc("/status", d.handleStatus)
	mux.HandleFunc("/vacuum", d.handleVacuum)
	mux.HandleFunc("/vacuum/stream", d.handleVacuumStream)
	mux.HandleFunc("/scan/stream", d.handleScanStream)
	return mux
}

func (d *daemon) tryLockMaintenance() bool {
	return d.running.CompareAndSwap(false, true)
}

func (d *daemon) unlockMaintenance() {
	d.running.Store(false)
}

// runMaintenanceOnce prunes orphan backup records and checkpoints the WAL.
func (d *daemon) runMaintenanceOnce(ctx context.Context) error {
	if !d.tryLockMaintenance() {
		return fmt.Errorf("maintenance already running")
	}
	defer d.unlockMaintenance()

	ps, err := storage.PruneOrphanFiles(ctx, d.db, d.cfg.OrphanMaxAge)
	if err != nil {
		return fmt.Errorf("prune orphan files: %w", err)
	}
	if ps.DeletedFiles > 0 {
		logger.Infof("Pruned %d orphan backup records in %v", ps.DeletedFiles, ps.Duration)
	}

	if stats, err := storage.WALCheckpointTruncate(ctx, d.db); err != nil {
		logger.Warnf("WAL checkpoint failed after maintenance: %v", err)
	} else {
		logger.Debugf("WAL checkpoint complete in %v (busy=%d log=%d checkpointed=%d)", stats.Duration, stats.Busy, stats.Log, stats.Checkpointed)
	}
	_ = storage.ReleaseSQLiteMemory(ctx, d.db)
	return nil
}

// openCartDatabase opens the cart database at dbPath. An existing database
// that fails the integrity check is discarded along with its WAL and SHM files
// and created anew. The returned flag reports whether prior data was kept.
func openCartDatabase(dbPath string) (*sql.DB, bool, error) {
	_, statErr := os.Stat(dbPath)
	existed := statErr == nil
	if !existed {
		logger.Infof("Creating cart database at %s", dbPath)
		db, err := storage.Open(dbPath)
		return db, false, err
	}

	logger.Infof("Checking integrity of cart database %s", dbPath)
	db, err := storage.Open(dbPath)
	if err != nil {
		return nil, false, err
	}
	checkErr := storage.CheckIntegrity(context.Background(), db)
	if checkErr == nil {
		logger.Infof("Cart database integrity ok")
		return db, true, nil
	}
	logger.Warnf("Cart database is corrupt, recreating: %v", checkErr)

	if err := db.Close(); err != nil {
		logger.Warnf("Closing corrupt cart database: %v", err)
	}
	if err := removeDatabaseFiles(dbPath); err != nil {
		return nil, false, err
	}
	db, err = storage.Open(dbPath)
	if err != nil {
		return nil, false, err
	}
	return db, false, nil
}

func removeDatabaseFiles(dbPath string) error {
	if err := os.Remove(dbPath); err != nil {
		return fmt.Errorf("remove corrupt database: %w", err)
	}
	for _, suffix := range []string{"-wal", "-shm"} {
		if err := os.Remove(dbPath + suffix); err != nil && !os.IsNotExist(err) {
			logger.Warnf("Removing %s%s: %v", dbPath, suffix, err)
		}
	}
	return nil
}

func logJournalMode(db *sql.DB) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	mode, err := storage.GetJournalMode(ctx, db)
	if err != nil {
		logger.Warnf("Reading journal_mode: %v", err)
		return
	}
	logger.Infof("Cart database journal_mode=%s", strings.ToUpper(mode))
}

func logCartStatus(store *storage.Store) {
	stats, err := store.GetStats(context.Background())
	if err != nil {
		logger.Warnf("Could not load cart statistics: %v", err)
		return
	}
	logger.Infof("Carts: users=%d items=%d copying=%d backups=%d",
		stats.TotalUsers, stats.TotalItems, stats.CopyingItems, stats.TotalFiles)
}
