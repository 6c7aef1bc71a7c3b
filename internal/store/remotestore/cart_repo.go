package remotestore

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	cart "github.com/efraindeloa/breakfast2-sub002/internal/cart/domain"
	identity "github.com/efraindeloa/breakfast2-sub002/internal/identity/domain"
	"github.com/efraindeloa/breakfast2-sub002/internal/storage"
)

type CartRepo struct {
	pool *pgxpool.Pool
}

func NewCartRepo(pool *pgxpool.Pool) *CartRepo {
	return &CartRepo{pool: pool}
}

func (r *CartRepo) ReadCart(ctx context.Context, id identity.ID) ([]cart.Line, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT item_id, name, unit_amount, notes, quantity
		FROM cart_items
		WHERE user_id = $1
		ORDER BY added_at, item_id
	`, string(id))
	if err != nil {
		return nil, storage.Unavailable("read remote cart", err)
	}
	defer rows.Close()

	var lines []cart.Line
	for rows.Next() {
		var l cart.Line
		if err := rows.Scan(&l.ItemID, &l.Name, &l.UnitAmount, &l.Notes, &l.Quantity); err != nil {
			return nil, storage.Unavailable("scan remote cart", err)
		}
		lines = append(lines, l)
	}
	if err := rows.Err(); err != nil {
		return nil, storage.Unavailable("read remote cart", err)
	}
	return lines, nil
}

// WriteCart replaces the user's cart wholesale inside one transaction. The
// insert still upserts on (user_id, item_id, notes) so an uncoalesced input
// cannot trip the key constraint.
func (r *CartRepo) WriteCart(ctx context.Context, id identity.ID, lines []cart.Line) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return storage.Unavailable("begin cart write", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM cart_items WHERE user_id = $1`, string(id)); err != nil {
		return storage.Unavailable("clear remote cart", err)
	}

	for _, l := range lines {
		if l.Quantity < 1 {
			continue
		}
		_, err := tx.Exec(ctx, `
			INSERT INTO cart_items (user_id, item_id, notes, name, unit_amount, quantity)
			VALUES ($1, $2, $3, $4, $5, $6)
			ON CONFLICT (user_id, item_id, notes)
			DO UPDATE SET quantity = cart_items.quantity + EXCLUDED.quantity
		`, string(id), l.ItemID, l.Notes, l.Name, l.UnitAmount, l.Quantity)
		if err != nil {
			return storage.Unavailable("write remote cart line", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return storage.Unavailable("commit cart write", err)
	}
	return nil
}
