package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/sawpanic/fxrates/internal/domain"
)

// outboxRepo implements persistence.OutboxRepo for PostgreSQL.
type outboxRepo struct {
	q       querier
	timeout time.Duration
}

func (r *outboxRepo) Insert(ctx context.Context, e *domain.OutboxEvent) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	err := r.q.QueryRowxContext(ctx, `
		INSERT INTO event_publication (listener_id, event_type, payload)
		VALUES ($1, $2, $3)
		RETURNING id, publication_date`,
		e.ListenerID, e.EventType, e.Payload).
		Scan(&e.ID, &e.PublicationDate)
	if err != nil {
		return fmt.Errorf("failed to insert outbox event: %w", err)
	}
	return nil
}

func (r *outboxRepo) FindPending(ctx context.Context, limit int) ([]domain.OutboxEvent, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var out []domain.OutboxEvent
	err := r.q.SelectContext(ctx, &out, `
		SELECT id, listener_id, event_type, payload, publication_date, completion_date
		FROM event_publication
		WHERE completion_date IS NULL
		ORDER BY publication_date ASC
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query pending outbox events: %w", err)
	}
	return out, nil
}

func (r *outboxRepo) MarkCompleted(ctx context.Context, id int64, at time.Time) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	// Completion is monotonic: a completed row is never reset to pending.
	_, err := r.q.ExecContext(ctx, `
		UPDATE event_publication
		SET completion_date = $2
		WHERE id = $1 AND completion_date IS NULL`, id, at)
	if err != nil {
		return fmt.Errorf("failed to mark outbox event completed: %w", err)
	}
	return nil
}

func (r *outboxRepo) DeleteCompletedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	res, err := r.q.ExecContext(ctx, `
		DELETE FROM event_publication
		WHERE completion_date IS NOT NULL AND completion_date < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to sweep completed outbox events: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to read rows affected: %w", err)
	}
	return n, nil
}
