package localstore

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	cart "github.com/efraindeloa/breakfast2-sub002/internal/cart/domain"
	identity "github.com/efraindeloa/breakfast2-sub002/internal/identity/domain"
	order "github.com/efraindeloa/breakfast2-sub002/internal/order/domain"
	"github.com/efraindeloa/breakfast2-sub002/internal/storage"
)

// Logical keys. Snapshot keys are scoped per anonymous id so two anonymous
// sessions on one device can never clobber each other's pending migration.
const anonIdentityKey = "anonymous_identity"

func cartKey(id identity.ID) string          { return "cart:" + string(id) }
func ordersKey(id identity.ID) string        { return "orders:" + string(id) }
func pendingCartKey(id identity.ID) string   { return "pending_cart_migration:" + string(id) }
func pendingOrdersKey(id identity.ID) string { return "pending_orders_migration:" + string(id) }

// --- anonymous identity ---

func (s *Store) AnonymousID(ctx context.Context) (string, error) {
	raw, ok, err := s.get(ctx, anonIdentityKey)
	if err != nil || !ok {
		return "", err
	}
	return string(raw), nil
}

func (s *Store) SaveAnonymousID(ctx context.Context, id string) error {
	return s.set(ctx, anonIdentityKey, []byte(id))
}

// --- cart ---

func (s *Store) ReadCart(ctx context.Context, id identity.ID) ([]cart.Line, error) {
	var lines []cart.Line
	if err := s.readJSON(ctx, cartKey(id), &lines); err != nil {
		return nil, err
	}
	return lines, nil
}

// WriteCart replaces the identity's cart wholesale. An empty set removes the
// key instead of storing an empty list.
func (s *Store) WriteCart(ctx context.Context, id identity.ID, lines []cart.Line) error {
	if len(lines) == 0 {
		return s.remove(ctx, cartKey(id))
	}
	return s.writeJSON(ctx, cartKey(id), lines)
}

// --- orders ---

func (s *Store) Orders(ctx context.Context, id identity.ID) ([]order.Order, error) {
	var orders []order.Order
	if err := s.readJSON(ctx, ordersKey(id), &orders); err != nil {
		return nil, err
	}
	return orders, nil
}

func (s *Store) Order(ctx context.Context, id identity.ID, orderID string) (order.Order, error) {
	orders, err := s.Orders(ctx, id)
	if err != nil {
		return order.Order{}, err
	}
	for _, o := range orders {
		if o.ID == orderID {
			return o.Clone(), nil
		}
	}
	return order.Order{}, fmt.Errorf("order %s: %w", orderID, storage.ErrNotFound)
}

func (s *Store) CreateOrder(ctx context.Context, o order.Order) (order.Order, error) {
	now := time.Now().UTC()
	o.CreatedAt = now
	o.UpdatedAt = now
	if err := s.SaveOrder(ctx, o.IdentityID, o); err != nil {
		return order.Order{}, err
	}
	return o, nil
}

// SaveOrder upserts by order id; replaying the same order is a no-op shape
// change, never a duplicate.
func (s *Store) SaveOrder(ctx context.Context, id identity.ID, o order.Order) error {
	orders, err := s.Orders(ctx, id)
	if err != nil {
		return err
	}
	replaced := false
	for i := range orders {
		if orders[i].ID == o.ID {
			orders[i] = o.Clone()
			replaced = true
			break
		}
	}
	if !replaced {
		orders = append(orders, o.Clone())
	}
	return s.ReplaceOrders(ctx, id, orders)
}

func (s *Store) ReplaceOrders(ctx context.Context, id identity.ID, orders []order.Order) error {
	if len(orders) == 0 {
		return s.remove(ctx, ordersKey(id))
	}
	return s.writeJSON(ctx, ordersKey(id), orders)
}

func (s *Store) UpdateOrder(ctx context.Context, id identity.ID, orderID string, up order.Update) (order.Order, error) {
	orders, err := s.Orders(ctx, id)
	if err != nil {
		return order.Order{}, err
	}

	for i := range orders {
		if orders[i].ID != orderID {
			continue
		}

		o := orders[i].Clone()
		applyUpdate(&o, up)
		o.UpdatedAt = time.Now().UTC()

		orders[i] = o
		if err := s.ReplaceOrders(ctx, id, orders); err != nil {
			return order.Order{}, err
		}
		return o.Clone(), nil
	}

	return order.Order{}, fmt.Errorf("order %s: %w", orderID, storage.ErrNotFound)
}

func applyUpdate(o *order.Order, up order.Update) {
	if up.Lines != nil {
		o.Lines = order.CloneLines(*up.Lines)
	}
	if up.SubtotalAmount != nil {
		o.SubtotalAmount = *up.SubtotalAmount
	}
	if up.TaxAmount != nil {
		o.TaxAmount = *up.TaxAmount
	}
	if up.TotalAmount != nil {
		o.TotalAmount = *up.TotalAmount
	}
	if up.Status != nil {
		o.Status = *up.Status
	}
	if up.PaymentStatus != nil {
		o.PaymentStatus = *up.PaymentStatus
	}
}

// --- pending migration snapshots ---

func (s *Store) PendingCart(ctx context.Context, anon identity.ID) ([]cart.Line, error) {
	var lines []cart.Line
	if err := s.readJSON(ctx, pendingCartKey(anon), &lines); err != nil {
		return nil, err
	}
	return lines, nil
}

func (s *Store) WritePendingCart(ctx context.Context, anon identity.ID, lines []cart.Line) error {
	if len(lines) == 0 {
		return s.remove(ctx, pendingCartKey(anon))
	}
	return s.writeJSON(ctx, pendingCartKey(anon), lines)
}

func (s *Store) ClearPendingCart(ctx context.Context, anon identity.ID) error {
	return s.remove(ctx, pendingCartKey(anon))
}

func (s *Store) PendingOrders(ctx context.Context, anon identity.ID) ([]order.Order, error) {
	var orders []order.Order
	if err := s.readJSON(ctx, pendingOrdersKey(anon), &orders); err != nil {
		return nil, err
	}
	return orders, nil
}

func (s *Store) WritePendingOrders(ctx context.Context, anon identity.ID, orders []order.Order) error {
	if len(orders) == 0 {
		return s.remove(ctx, pendingOrdersKey(anon))
	}
	return s.writeJSON(ctx, pendingOrdersKey(anon), orders)
}

func (s *Store) ClearPendingOrders(ctx context.Context, anon identity.ID) error {
	return s.remove(ctx, pendingOrdersKey(anon))
}

// --- helpers ---

func (s *Store) readJSON(ctx context.Context, key string, out any) error {
	raw, ok, err := s.get(ctx, key)
	if err != nil || !ok {
		return err
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode %s: %w", key, err)
	}
	return nil
}

func (s *Store) writeJSON(ctx context.Context, key string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	return s.set(ctx, key, raw)
}
