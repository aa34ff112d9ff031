package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/supplyhub/marketplace/internal/domain/order"
)

const (
	enqueueLinkSQL = `INSERT INTO thread_links (order_id, buyer_id, supplier_id, product_id)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (order_id) DO NOTHING`

	pendingLinksSQL = `SELECT id, order_id, buyer_id, supplier_id, product_id, attempts
		FROM thread_links WHERE linked_at IS NULL ORDER BY id LIMIT $1`

	markLinkedSQL = `UPDATE thread_links SET linked_at = $2, last_error = '' WHERE id = $1`

	recordAttemptSQL = `UPDATE thread_links
		SET attempts = attempts + 1, last_error = $2 WHERE id = $1`
)

// PendingLink is an undelivered thread-linkage row.
type PendingLink struct {
	ID       int64
	Link     order.ThreadLink
	Attempts int
}

var _ order.ThreadLinker = (*LinkOutbox)(nil)

// LinkOutbox is the thread-linkage outbox. The lifecycle service enqueues a
// row right after an order commit; the linkage worker drains pending rows and
// records per-row failures for the next sweep.
type LinkOutbox struct {
	pool *pgxpool.Pool
}

// NewLinkOutbox returns a LinkOutbox that uses the given pool.
func NewLinkOutbox(pool *pgxpool.Pool) *LinkOutbox {
	return &LinkOutbox{pool: pool}
}

// EnqueueLink records a linkage request. Re-enqueueing the same order is a
// no-op.
func (o *LinkOutbox) EnqueueLink(ctx context.Context, link order.ThreadLink) error {
	_, err := o.pool.Exec(ctx, enqueueLinkSQL,
		link.OrderID, link.BuyerID, link.SupplierID, link.ProductID,
	)
	if err != nil {
		return fmt.Errorf("enqueueing thread link for order %q: %w", link.OrderID, err)
	}
	return nil
}

// Pending returns up to limit undelivered rows, oldest first.
func (o *LinkOutbox) Pending(ctx context.Context, limit int) ([]PendingLink, error) {
	rows, err := o.pool.Query(ctx, pendingLinksSQL, limit)
	if err != nil {
		return nil, fmt.Errorf("fetching pending thread links: %w", err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (PendingLink, error) {
		var p PendingLink
		err := row.Scan(&p.ID, &p.Link.OrderID, &p.Link.BuyerID,
			&p.Link.SupplierID, &p.Link.ProductID, &p.Attempts)
		return p, err
	})
}

// MarkLinked marks a row as delivered.
func (o *LinkOutbox) MarkLinked(ctx context.Context, id int64, at time.Time) error {
	_, err := o.pool.Exec(ctx, markLinkedSQL, id, at)
	if err != nil {
		return fmt.Errorf("marking thread link %d done: %w", id, err)
	}
	return nil
}

// RecordAttempt bumps the attempt counter and stores the failure reason.
func (o *LinkOutbox) RecordAttempt(ctx context.Context, id int64, cause string) error {
	_, err := o.pool.Exec(ctx, recordAttemptSQL, id, cause)
	if err != nil {
		return fmt.Errorf("recording thread link attempt %d: %w", id, err)
	}
	return nil
}
