package remotestore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	identity "github.com/efraindeloa/breakfast2-sub002/internal/identity/domain"
	order "github.com/efraindeloa/breakfast2-sub002/internal/order/domain"
	"github.com/efraindeloa/breakfast2-sub002/internal/storage"
)

type OrderRepo struct {
	pool *pgxpool.Pool
}

func NewOrderRepo(pool *pgxpool.Pool) *OrderRepo {
	return &OrderRepo{pool: pool}
}

func (r *OrderRepo) withTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return storage.Unavailable("begin tx", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return storage.Unavailable("commit tx", err)
	}
	return nil
}

const orderColumns = `
	id, user_id, status, subtotal_amount, tax_amount, tip_amount, total_amount,
	table_number, delivery_address, payment_method, payment_status,
	created_at, updated_at`

func scanOrder(row pgx.Row) (order.Order, error) {
	var o order.Order
	var userID string
	err := row.Scan(
		&o.ID, &userID, &o.Status,
		&o.SubtotalAmount, &o.TaxAmount, &o.TipAmount, &o.TotalAmount,
		&o.TableNumber, &o.DeliveryAddress, &o.PaymentMethod, &o.PaymentStatus,
		&o.CreatedAt, &o.UpdatedAt,
	)
	if err != nil {
		return order.Order{}, err
	}
	o.IdentityID = identity.ID(userID)
	return o, nil
}

func (r *OrderRepo) Order(ctx context.Context, id identity.ID, orderID string) (order.Order, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+orderColumns+`
		FROM orders
		WHERE id = $1 AND user_id = $2
	`, orderID, string(id))

	o, err := scanOrder(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return order.Order{}, fmt.Errorf("order %s: %w", orderID, storage.ErrNotFound)
	}
	if err != nil {
		return order.Order{}, storage.Unavailable("read order", err)
	}

	if o.Lines, err = r.orderLines(ctx, o.ID); err != nil {
		return order.Order{}, err
	}
	return o, nil
}

func (r *OrderRepo) Orders(ctx context.Context, id identity.ID) ([]order.Order, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+orderColumns+`
		FROM orders
		WHERE user_id = $1
		ORDER BY created_at
	`, string(id))
	if err != nil {
		return nil, storage.Unavailable("read orders", err)
	}
	defer rows.Close()

	var orders []order.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, storage.Unavailable("scan order", err)
		}
		orders = append(orders, o)
	}
	if err := rows.Err(); err != nil {
		return nil, storage.Unavailable("read orders", err)
	}

	for i := range orders {
		if orders[i].Lines, err = r.orderLines(ctx, orders[i].ID); err != nil {
			return nil, err
		}
	}
	return orders, nil
}

func (r *OrderRepo) orderLines(ctx context.Context, orderID string) ([]order.Line, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT item_id, name, unit_amount, notes, quantity, from_original_order
		FROM order_items
		WHERE order_id = $1
		ORDER BY id
	`, orderID)
	if err != nil {
		return nil, storage.Unavailable("read order lines", err)
	}
	defer rows.Close()

	var lines []order.Line
	for rows.Next() {
		var l order.Line
		if err := rows.Scan(&l.ItemID, &l.Name, &l.UnitAmount, &l.Notes, &l.Quantity, &l.FromOriginalOrder); err != nil {
			return nil, storage.Unavailable("scan order line", err)
		}
		lines = append(lines, l)
	}
	if err := rows.Err(); err != nil {
		return nil, storage.Unavailable("read order lines", err)
	}
	return lines, nil
}

func (r *OrderRepo) CreateOrder(ctx context.Context, o order.Order) (order.Order, error) {
	err := r.withTx(ctx, func(tx pgx.Tx) error {
		row := tx.QueryRow(ctx, `
			INSERT INTO orders (
				id, user_id, status, subtotal_amount, tax_amount, tip_amount,
				total_amount, table_number, delivery_address, payment_method,
				payment_status
			)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
			RETURNING created_at, updated_at
		`,
			o.ID, string(o.IdentityID), string(o.Status),
			o.SubtotalAmount, o.TaxAmount, o.TipAmount, o.TotalAmount,
			o.TableNumber, o.DeliveryAddress, o.PaymentMethod, o.PaymentStatus,
		)
		if err := row.Scan(&o.CreatedAt, &o.UpdatedAt); err != nil {
			return storage.Unavailable("insert order", err)
		}
		return insertLines(ctx, tx, o.ID, o.Lines)
	})
	if err != nil {
		return order.Order{}, err
	}
	return o, nil
}

// SaveOrder upserts by order id: the row and its lines are rewritten
// wholesale, so replaying a migration never duplicates an order.
func (r *OrderRepo) SaveOrder(ctx context.Context, id identity.ID, o order.Order) error {
	return r.withTx(ctx, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			INSERT INTO orders (
				id, user_id, status, subtotal_amount, tax_amount, tip_amount,
				total_amount, table_number, delivery_address, payment_method,
				payment_status, created_at, updated_at
			)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11,
				COALESCE($12, now()), now())
			ON CONFLICT (id) DO UPDATE SET
				user_id          = EXCLUDED.user_id,
				status           = EXCLUDED.status,
				subtotal_amount  = EXCLUDED.subtotal_amount,
				tax_amount       = EXCLUDED.tax_amount,
				tip_amount       = EXCLUDED.tip_amount,
				total_amount     = EXCLUDED.total_amount,
				table_number     = EXCLUDED.table_number,
				delivery_address = EXCLUDED.delivery_address,
				payment_method   = EXCLUDED.payment_method,
				payment_status   = EXCLUDED.payment_status,
				updated_at       = now()
		`,
			o.ID, string(id), string(o.Status),
			o.SubtotalAmount, o.TaxAmount, o.TipAmount, o.TotalAmount,
			o.TableNumber, o.DeliveryAddress, o.PaymentMethod, o.PaymentStatus,
			nullableTime(o.CreatedAt),
		)
		if err != nil {
			return storage.Unavailable("upsert order", err)
		}

		if _, err := tx.Exec(ctx, `DELETE FROM order_items WHERE order_id = $1`, o.ID); err != nil {
			return storage.Unavailable("clear order lines", err)
		}
		return insertLines(ctx, tx, o.ID, o.Lines)
	})
}

// UpdateOrder applies the partial update transactionally; either the whole
// write lands or nothing does.
func (r *OrderRepo) UpdateOrder(ctx context.Context, id identity.ID, orderID string, up order.Update) (order.Order, error) {
	err := r.withTx(ctx, func(tx pgx.Tx) error {
		var locked string
		err := tx.QueryRow(ctx, `
			SELECT id FROM orders WHERE id = $1 AND user_id = $2 FOR UPDATE
		`, orderID, string(id)).Scan(&locked)
		if errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("order %s: %w", orderID, storage.ErrNotFound)
		}
		if err != nil {
			return storage.Unavailable("lock order", err)
		}

		set := func(column string, v any) error {
			_, err := tx.Exec(ctx,
				`UPDATE orders SET `+column+` = $1, updated_at = now() WHERE id = $2`,
				v, orderID)
			if err != nil {
				return storage.Unavailable("update order "+column, err)
			}
			return nil
		}

		if up.SubtotalAmount != nil {
			if err := set("subtotal_amount", *up.SubtotalAmount); err != nil {
				return err
			}
		}
		if up.TaxAmount != nil {
			if err := set("tax_amount", *up.TaxAmount); err != nil {
				return err
			}
		}
		if up.TotalAmount != nil {
			if err := set("total_amount", *up.TotalAmount); err != nil {
				return err
			}
		}
		if up.Status != nil {
			if err := set("status", string(*up.Status)); err != nil {
				return err
			}
		}
		if up.PaymentStatus != nil {
			if err := set("payment_status", *up.PaymentStatus); err != nil {
				return err
			}
		}

		if up.Lines != nil {
			if _, err := tx.Exec(ctx, `DELETE FROM order_items WHERE order_id = $1`, orderID); err != nil {
				return storage.Unavailable("clear order lines", err)
			}
			if err := insertLines(ctx, tx, orderID, *up.Lines); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return order.Order{}, err
	}

	return r.Order(ctx, id, orderID)
}

func insertLines(ctx context.Context, tx pgx.Tx, orderID string, lines []order.Line) error {
	for _, l := range lines {
		_, err := tx.Exec(ctx, `
			INSERT INTO order_items (order_id, item_id, name, unit_amount, notes, quantity, from_original_order)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
		`, orderID, l.ItemID, l.Name, l.UnitAmount, l.Notes, l.Quantity, l.FromOriginalOrder)
		if err != nil {
			return storage.Unavailable("insert order line", err)
		}
	}
	return nil
}

func nullableTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t
}
