package postgres

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/sawpanic/fxrates/internal/persistence"
)

// processID identifies this replica in the locked_by column.
var processID = func() string {
	host, err := os.Hostname()
	if err != nil {
		host = "unknown"
	}
	return fmt.Sprintf("%s-%s", host, uuid.NewString()[:8])
}()

// leaseRepo implements persistence.LeaseRepo over the shedlock table. A lease
// is held iff lock_until > now(); acquisition races resolve on the primary key.
type leaseRepo struct {
	q       querier
	timeout time.Duration
}

type lease struct {
	repo        *leaseRepo
	name        string
	lockedAt    time.Time
	holdAtLeast time.Duration
}

func (l *lease) Name() string { return l.name }

// Release ends the lease early, but never before lockedAt + holdAtLeast. The
// floor stops a fast run from letting a second replica re-fire immediately.
func (l *lease) Release(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, l.repo.timeout)
	defer cancel()

	floor := l.lockedAt.Add(l.holdAtLeast)
	_, err := l.repo.q.ExecContext(ctx, `
		UPDATE shedlock
		SET lock_until = GREATEST($2, now())
		WHERE name = $1 AND locked_by = $3`, l.name, floor, processID)
	if err != nil {
		return fmt.Errorf("failed to release lease %s: %w", l.name, err)
	}
	return nil
}

func (r *leaseRepo) TryAcquire(ctx context.Context, name string, holdAtMost, holdAtLeast time.Duration) (persistence.Lease, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	// Insert-or-steal in one statement: the UPDATE branch only wins when the
	// existing lease has expired, so exactly one contender acquires.
	res, err := r.q.ExecContext(ctx, `
		INSERT INTO shedlock (name, lock_until, locked_at, locked_by)
		VALUES ($1, now() + make_interval(secs => $2), now(), $3)
		ON CONFLICT (name) DO UPDATE
		SET lock_until = now() + make_interval(secs => $2), locked_at = now(), locked_by = $3
		WHERE shedlock.lock_until <= now()`,
		name, holdAtMost.Seconds(), processID)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire lease %s: %w", name, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("failed to read rows affected: %w", err)
	}
	if n == 0 {
		return nil, nil
	}

	log.Debug().Str("lease", name).Str("holder", processID).Msg("lease acquired")
	return &lease{repo: r, name: name, lockedAt: time.Now(), holdAtLeast: holdAtLeast}, nil
}
