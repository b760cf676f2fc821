package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/mordilloSan/go_logger/logger"
)

var errNilDB = errors.New("db is nil")

// WALCheckpointStats is the result row of PRAGMA wal_checkpoint.
type WALCheckpointStats struct {
	Busy         int
	Log          int
	Checkpointed int
	Duration     time.Duration
}

type VacuumStats struct {
	Duration time.Duration
}

// PruneStats reports a PruneOrphanFiles run.
type PruneStats struct {
	DeletedFiles int
	Duration     time.Duration
}

// timed runs fn against db and returns how long it took, to the millisecond.
func timed(ctx context.Context, db *sql.DB, fn func(context.Context) error) (time.Duration, error) {
	if db == nil {
		return 0, errNilDB
	}
	start := time.Now()
	err := fn(ensureContext(ctx))
	return time.Since(start).Truncate(time.Millisecond), err
}

// WALCheckpointTruncate copies the WAL into the database and truncates the
// -wal file so it does not grow without bound in the daemon.
func WALCheckpointTruncate(ctx context.Context, db *sql.DB) (WALCheckpointStats, error) {
	var st WALCheckpointStats
	d, err := timed(ctx, db, func(ctx context.Context) error {
		return db.QueryRowContext(ctx, `PRAGMA wal_checkpoint(TRUNCATE);`).Scan(&st.Busy, &st.Log, &st.Checkpointed)
	})
	if err != nil {
		return WALCheckpointStats{}, err
	}
	st.Duration = d
	return st, nil
}

// Vacuum rewrites the database file. It holds an exclusive lock while running.
func Vacuum(ctx context.Context, db *sql.DB) (VacuumStats, error) {
	d, err := timed(ctx, db, func(ctx context.Context) error {
		_, err := db.ExecContext(ctx, `VACUUM;`)
		return err
	})
	if err != nil {
		return VacuumStats{}, err
	}
	return VacuumStats{Duration: d}, nil
}

// PruneOrphanFiles deletes backup file records that no cart item refers to
// and that were registered more than maxAge ago.
func PruneOrphanFiles(ctx context.Context, db *sql.DB, maxAge time.Duration) (PruneStats, error) {
	cutoff := time.Now().Add(-maxAge).Unix()

	var deleted int64
	d, err := timed(ctx, db, func(ctx context.Context) error {
		res, err := db.ExecContext(ctx, `
			DELETE FROM files
			WHERE created_at < ?
			  AND filename NOT IN (SELECT filename FROM items);
		`, cutoff)
		if err != nil {
			return fmt.Errorf("delete orphan files: %w", err)
		}
		deleted, err = res.RowsAffected()
		return err
	})
	if err != nil {
		return PruneStats{}, err
	}

	if deleted > 0 {
		if _, err := db.ExecContext(ensureContext(ctx), `PRAGMA incremental_vacuum;`); err != nil {
			logger.Warnf("Incremental vacuum after pruning %d files: %v", deleted, err)
		}
	}
	return PruneStats{DeletedFiles: int(deleted), Duration: d}, nil
}
