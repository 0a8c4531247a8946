package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/apex/log"
)

// ErrLockTimeout is returned when a spatial advisory lock could not be
// acquired within the wait budget. Callers treat it as transient.
var ErrLockTimeout = errors.New("spatial lock timeout")

// WithSpatialLock runs fn while holding MySQL advisory locks for every key.
// All locks are taken on a single pinned connection (GET_LOCK is
// session-scoped) in the caller-provided order; callers pass sorted keys so
// concurrent submissions for the same neighborhood never deadlock.
func (d *Database) WithSpatialLock(ctx context.Context, keys []string, wait time.Duration, fn func(ctx context.Context) error) error {
	conn, err := d.db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("failed to pin connection for spatial lock: %w", err)
	}
	defer conn.Close()

	waitSec := int(wait / time.Second)
	if waitSec < 1 {
		waitSec = 1
	}

	acquired := 0
	defer func() {
		// Release in reverse acquisition order on the same session.
		for i := acquired - 1; i >= 0; i-- {
			var released int
			if err := conn.QueryRowContext(ctx, `SELECT RELEASE_LOCK(?)`, keys[i]).Scan(&released); err != nil {
				log.Warnf("Failed to release spatial lock %s: %v", keys[i], err)
			}
		}
	}()

	for _, key := range keys {
		var got int
		if err := conn.QueryRowContext(ctx, `SELECT GET_LOCK(?, ?)`, key, waitSec).Scan(&got); err != nil {
			return fmt.Errorf("failed to acquire spatial lock %s: %w", key, err)
		}
		if got != 1 {
			return fmt.Errorf("%w: %s", ErrLockTimeout, key)
		}
		acquired++
	}

	return fn(ctx)
}
