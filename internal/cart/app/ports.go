package app

import (
	"context"

	"github.com/efraindeloa/breakfast2-sub002/internal/cart/domain"
	identity "github.com/efraindeloa/breakfast2-sub002/internal/identity/domain"
	order "github.com/efraindeloa/breakfast2-sub002/internal/order/domain"
)

// Store is the uniform cart contract both adapters satisfy, regardless of
// backing medium. WriteCart has full replace semantics: the new set
// supersedes the old set entirely for that identity.
type Store interface {
	ReadCart(ctx context.Context, id identity.ID) ([]domain.Line, error)
	WriteCart(ctx context.Context, id identity.ID, lines []domain.Line) error
}

// OrderSync is the slice of the order contract migration needs: enumerate an
// identity's orders and upsert one by order id (idempotent on replay).
type OrderSync interface {
	Orders(ctx context.Context, id identity.ID) ([]order.Order, error)
	SaveOrder(ctx context.Context, id identity.ID, o order.Order) error
}

// LocalOrderSync adds the full-replace write the local side needs so a
// completed migration can clear its source.
type LocalOrderSync interface {
	OrderSync
	ReplaceOrders(ctx context.Context, id identity.ID, orders []order.Order) error
}

// SnapshotStore quarantines "what I was doing" across a logout under keys
// scoped to the anonymous id that follows it. A snapshot only ever applies on
// the next successful login; it never overwrites a live anonymous cart.
type SnapshotStore interface {
	PendingCart(ctx context.Context, anon identity.ID) ([]domain.Line, error)
	WritePendingCart(ctx context.Context, anon identity.ID, lines []domain.Line) error
	ClearPendingCart(ctx context.Context, anon identity.ID) error

	PendingOrders(ctx context.Context, anon identity.ID) ([]order.Order, error)
	WritePendingOrders(ctx context.Context, anon identity.ID, orders []order.Order) error
	ClearPendingOrders(ctx context.Context, anon identity.ID) error
}

// CurrentIdentity is the slice of the identity session the reconciler needs.
type CurrentIdentity interface {
	Current(ctx context.Context) identity.ID
}
