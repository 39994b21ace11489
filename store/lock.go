package store

import (
	"context"
	"fmt"
	"os"
	"sync/atomic"
	"time"
)

const (
	lockRetryDelay = 50 * time.Millisecond
	lockStaleAfter = 2 * time.Minute
)

var (
	lockProcessID = fmt.Sprintf("pid:%d-%d", os.Getpid(), time.Now().UnixNano())
	lockSeq       atomic.Uint64
)

// AcquireLock takes the named cross-process lock backed by the store_locks
// table, retrying until it is granted or ctx is done. Locks abandoned by a
// crashed process are taken over once they are older than lockStaleAfter.
// The returned release func must be called exactly once.
func (s *Store) AcquireLock(ctx context.Context, name string) (func(), error) {
	ownerID := fmt.Sprintf("%s#%d", lockProcessID, lockSeq.Add(1))
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		now := time.Now().Unix()
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return nil, fmt.Errorf("store: lock %s: %w", name, err)
		}
		if _, err := tx.ExecContext(ctx, `INSERT OR IGNORE INTO store_locks(name, owner, locked_at) VALUES(?, ?, ?)`, name, ownerID, now); err != nil {
			_ = tx.Rollback()
			return nil, fmt.Errorf("store: lock %s: %w", name, err)
		}
		var owner string
		var lockedAt int64
		if err := tx.QueryRowContext(ctx, `SELECT owner, locked_at FROM store_locks WHERE name = ?`, name).Scan(&owner, &lockedAt); err != nil {
			_ = tx.Rollback()
			return nil, fmt.Errorf("store: lock %s: %w", name, err)
		}
		if owner != ownerID && lockedAt <= time.Now().Add(-lockStaleAfter).Unix() {
			res, err := tx.ExecContext(ctx, `UPDATE store_locks SET owner = ?, locked_at = ? WHERE name = ? AND locked_at = ?`, ownerID, now, name, lockedAt)
			if err != nil {
				_ = tx.Rollback()
				return nil, fmt.Errorf("store: lock %s: %w", name, err)
			}
			if n, _ := res.RowsAffected(); n > 0 {
				owner = ownerID
			}
		}
		if err := tx.Commit(); err != nil {
			return nil, fmt.Errorf("store: lock %s: %w", name, err)
		}
		if owner == ownerID {
			return func() {
				_, _ = s.db.ExecContext(context.Background(), `DELETE FROM store_locks WHERE name = ? AND owner = ?`, name, ownerID)
			}, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(lockRetryDelay):
		}
	}
}
