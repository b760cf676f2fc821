package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/mordilloSan/go_logger/logger"

	"github.com/mordilloSan/sharingcart/capability"
	"github.com/mordilloSan/sharingcart/cart"
)

var (
	ErrItemNotFound = errors.New("cart item not found")
	ErrFileNotFound = errors.New("backup file not found")
)

const (
	backupComponent = "user"
	backupFileArea  = "backup"
)

// Store wraps the database connection
type Store struct {
	db     *sql.DB
	dbPath string
}

// NewStore creates a new Store instance and owns the DB handle.
func NewStore(dbPath string) (*Store, error) {
	db, err := Open(dbPath)
	if err != nil {
		return nil, err
	}
	return &Store{db: db, dbPath: dbPath}, nil
}

// NewStoreWithDB reuses an existing database handle (e.g., long-lived server).
// dbPath should be the actual SQLite file path (for stats / size reporting).
func NewStoreWithDB(db *sql.DB, dbPath string) *Store {
	return &Store{db: db, dbPath: dbPath}
}

// Close closes the database connection (only use if Store owns the DB).
func (s *Store) Close() error {
	return s.db.Close()
}

// DB exposes the underlying database handle for reuse (e.g., long-lived servers).
func (s *Store) DB() *sql.DB {
	return s.db
}

// NewBackupFilename returns a fresh storage key for an item's backup.
func NewBackupFilename() string {
	return "backup-" + uuid.NewString() + ".mbz"
}

// AddItem stores it in the user's cart and fills in ID, Filename, Weight and FileID.
// Items whose backup file is already registered are ready immediately.
func (s *Store) AddItem(ctx context.Context, it *cart.Item) error {
	ctx = ensureContext(ctx)
	if it.UserID == 0 {
		return fmt.Errorf("item user is required")
	}
	it.Tree = cart.NormalizePath(it.Tree)
	if it.Filename == "" {
		it.Filename = NewBackupFilename()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if it.Weight == 0 {
		err = tx.QueryRowContext(ctx, `
			SELECT COALESCE(MAX(weight), 0) + 1
			FROM items
			WHERE user_id = ? AND tree = ?
		`, it.UserID, it.Tree).Scan(&it.Weight)
		if err != nil {
			return fmt.Errorf("next weight: %w", err)
		}
	}

	var fileID sql.NullInt64
	err = tx.QueryRowContext(ctx, `SELECT id FROM files WHERE filename = ?`, it.Filename).Scan(&fileID)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("lookup backup file: %w", err)
	}
	err = nil
	if fileID.Valid {
		it.FileID = fileID.Int64
	}

	created := it.Created
	if created.IsZero() {
		created = time.Now().UTC()
	}
	res, err := tx.ExecContext(ctx, `
		INSERT INTO items (
			user_id, modname, modicon, modtext, fileid, filename,
			course_fullname, tree, weight, uninstalled_plugin, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, it.UserID, it.ModName, it.ModIcon, it.ModText, it.FileID, it.Filename,
		it.CourseFullName, it.Tree, it.Weight, BoolToInt(it.UninstalledPlugin), created.Unix())
	if err != nil {
		return fmt.Errorf("insert item: %w", err)
	}
	if it.ID, err = res.LastInsertId(); err != nil {
		return err
	}
	it.Created = time.Unix(created.Unix(), 0).UTC()

	err = tx.Commit()
	return err
}

// DeleteItem removes one item of a user's cart.
func (s *Store) DeleteItem(ctx context.Context, userID, id int64) error {
	ctx = ensureContext(ctx)
	res, err := s.db.ExecContext(ctx, `DELETE FROM items WHERE id = ? AND user_id = ?`, id, userID)
	if err != nil {
		return fmt.Errorf("delete item: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: %d", ErrItemNotFound, id)
	}
	return nil
}

// SetUninstalledPlugin flags every item of a module type whose plugin was removed (or restored).
func (s *Store) SetUninstalledPlugin(ctx context.Context, modname string, uninstalled bool) (int64, error) {
	ctx = ensureContext(ctx)
	res, err := s.db.ExecContext(ctx, `UPDATE items SET uninstalled_plugin = ? WHERE modname = ?`, BoolToInt(uninstalled), modname)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// ListItems returns the user's cart ordered by tree path, weight and id.
func (s *Store) ListItems(ctx context.Context, userID int64) ([]*cart.Item, error) {
	ctx = ensureContext(ctx)

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, modname, modicon, modtext, fileid, filename,
		       course_fullname, tree, weight, uninstalled_plugin, created_at
		FROM items
		WHERE user_id = ?
		ORDER BY tree, weight, id
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("list items: %w", err)
	}
	defer func() {
		if cerr := rows.Close(); cerr != nil {
			logger.Warnf("rows close (items): %v", cerr)
		}
	}()

	items := []*cart.Item{}
	for rows.Next() {
		var (
			it          cart.Item
			uninstalled int
			created     int64
		)
		if err := rows.Scan(&it.ID, &it.UserID, &it.ModName, &it.ModIcon, &it.ModText, &it.FileID, &it.Filename,
			&it.CourseFullName, &it.Tree, &it.Weight, &uninstalled, &created); err != nil {
			return nil, fmt.Errorf("scan item: %w", err)
		}
		it.UninstalledPlugin = uninstalled != 0
		it.Created = time.Unix(created, 0).UTC()
		items = append(items, &it)
	}
	return items, rows.Err()
}

// LoadTree builds the user's cart tree.
func (s *Store) LoadTree(ctx context.Context, userID int64) (*cart.Directory, error) {
	items, err := s.ListItems(ctx, userID)
	if err != nil {
		return nil, err
	}
	return cart.BuildTree(items), nil
}

// RegisterFile records a materialized backup file and marks every item waiting
// for it as ready. A zero ContextID is taken from the owning item's user.
func (s *Store) RegisterFile(ctx context.Context, ref cart.FileRef) (cart.FileRef, error) {
	ctx = ensureContext(ctx)
	if ref.FileName == "" {
		return ref, fmt.Errorf("file name is required")
	}
	if ref.Component == "" {
		ref.Component = backupComponent
	}
	if ref.FileArea == "" {
		ref.FileArea = backupFileArea
	}
	if ref.FilePath == "" {
		ref.FilePath = "/"
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return ref, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if ref.ContextID == 0 {
		var owner sql.NullInt64
		err = tx.QueryRowContext(ctx, `SELECT user_id FROM items WHERE filename = ? ORDER BY id LIMIT 1`, ref.FileName).Scan(&owner)
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return ref, err
		}
		err = nil
		ref.ContextID = owner.Int64
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO files (context_id, component, filearea, filepath, filename, size, contenthash)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(filename) DO UPDATE SET
			context_id = excluded.context_id,
			component = excluded.component,
			filearea = excluded.filearea,
			filepath = excluded.filepath,
			size = excluded.size,
			contenthash = excluded.contenthash;
	`, ref.ContextID, ref.Component, ref.FileArea, ref.FilePath, ref.FileName, ref.Size, ref.ContentHash)
	if err != nil {
		return ref, fmt.Errorf("upsert file: %w", err)
	}

	if err = tx.QueryRowContext(ctx, `SELECT id FROM files WHERE filename = ?`, ref.FileName).Scan(&ref.ID); err != nil {
		return ref, err
	}

	if _, err = tx.ExecContext(ctx, `UPDATE items SET fileid = ? WHERE filename = ?`, ref.ID, ref.FileName); err != nil {
		return ref, fmt.Errorf("mark items ready: %w", err)
	}

	err = tx.Commit()
	return ref, err
}

// RemoveFile forgets a backup file; items pointing at it go back to copying.
func (s *Store) RemoveFile(ctx context.Context, filename string) error {
	ctx = ensureContext(ctx)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx, `DELETE FROM files WHERE filename = ?`, filename); err != nil {
		return err
	}
	if _, err = tx.ExecContext(ctx, `UPDATE items SET fileid = 0 WHERE filename = ?`, filename); err != nil {
		return err
	}
	err = tx.Commit()
	return err
}

// File returns the stored backup file called filename.
func (s *Store) File(ctx context.Context, filename string) (cart.FileRef, error) {
	ctx = ensureContext(ctx)

	var ref cart.FileRef
	err := s.db.QueryRowContext(ctx, `
		SELECT id, context_id, component, filearea, filepath, filename, size, contenthash
		FROM files
		WHERE filename = ?
	`, filename).Scan(&ref.ID, &ref.ContextID, &ref.Component, &ref.FileArea, &ref.FilePath, &ref.FileName, &ref.Size, &ref.ContentHash)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ref, fmt.Errorf("%w: %s", ErrFileNotFound, filename)
		}
		return ref, fmt.Errorf("file query failed: %w", err)
	}
	return ref, nil
}

// Grant gives a user capabilities.
func (s *Store) Grant(ctx context.Context, userID int64, capabilities ...string) error {
	ctx = ensureContext(ctx)
	for _, c := range capabilities {
		c = strings.TrimSpace(c)
		if c == "" {
			continue
		}
		if _, err := s.db.ExecContext(ctx, `
			INSERT INTO capability_grants (user_id, capability) VALUES (?, ?)
			ON CONFLICT(user_id, capability) DO NOTHING
		`, userID, c); err != nil {
			return fmt.Errorf("grant %s: %w", c, err)
		}
	}
	return nil
}

// Revoke takes capabilities away from a user.
func (s *Store) Revoke(ctx context.Context, userID int64, capabilities ...string) error {
	ctx = ensureContext(ctx)
	for _, c := range capabilities {
		if _, err := s.db.ExecContext(ctx, `DELETE FROM capability_grants WHERE user_id = ? AND capability = ?`, userID, c); err != nil {
			return fmt.Errorf("revoke %s: %w", c, err)
		}
	}
	return nil
}

// Capabilities returns the capabilities granted to a user.
func (s *Store) Capabilities(ctx context.Context, userID int64) (capability.Set, error) {
	ctx = ensureContext(ctx)

	rows, err := s.db.QueryContext(ctx, `SELECT capability FROM capability_grants WHERE user_id = ?`, userID)
	if err != nil {
		return nil, fmt.Errorf("capabilities query failed: %w", err)
	}
	defer func() {
		if cerr := rows.Close(); cerr != nil {
			logger.Warnf("rows close (capabilities): %v", cerr)
		}
	}()

	set := capability.NewSet()
	for rows.Next() {
		var c string
		if err := rows.Scan(&c); err != nil {
			return nil, err
		}
		set[c] = struct{}{}
	}
	return set, rows.Err()
}

// Stats represents database statistics
type Stats struct {
	TotalItems   int64 `json:"total_items"`
	CopyingItems int64 `json:"copying_items"`
	TotalUsers   int64 `json:"total_users"`
	TotalFiles   int64 `json:"total_files"`
	TotalSize    int64 `json:"total_size"`
	DatabaseSize int64 `json:"database_size"`
	WALSize      int64 `json:"wal_size"`
	SHMSize      int64 `json:"shm_size"`
	TotalOnDisk  int64 `json:"total_on_disk"`
}

// GetStats returns database statistics
func (s *Store) GetStats(ctx context.Context) (*Stats, error) {
	ctx = ensureContext(ctx)

	var stats Stats
	err := s.db.QueryRowContext(ctx, `
		SELECT
			COUNT(*),
			COALESCE(SUM(CASE WHEN fileid < 1 THEN 1 ELSE 0 END), 0),
			COUNT(DISTINCT user_id)
		FROM items
	`).Scan(&stats.TotalItems, &stats.CopyingItems, &stats.TotalUsers)
	if err != nil {
		return nil, err
	}

	err = s.db.QueryRowContext(ctx, `SELECT COUNT(*), COALESCE(SUM(size), 0) FROM files`).Scan(&stats.TotalFiles, &stats.TotalSize)
	if err != nil {
		return nil, err
	}

	if s.dbPath != "" {
		if fi, err := os.Stat(s.dbPath); err == nil {
			stats.DatabaseSize = fi.Size()
		}
		if fi, err := os.Stat(s.dbPath + "-wal"); err == nil {
			stats.WALSize = fi.Size()
		}
		if fi, err := os.Stat(s.dbPath + "-shm"); err == nil {
			stats.SHMSize = fi.Size()
		}
		stats.TotalOnDisk = stats.DatabaseSize + stats.WALSize + stats.SHMSize
	}

	return &stats, nil
}
