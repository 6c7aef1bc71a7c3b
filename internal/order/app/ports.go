package app

import (
	"context"

	cart "github.com/efraindeloa/breakfast2-sub002/internal/cart/domain"
	identity "github.com/efraindeloa/breakfast2-sub002/internal/identity/domain"
	"github.com/efraindeloa/breakfast2-sub002/internal/order/domain"
)

// Store is the order contract the merge engine writes through. Order returns
// storage.ErrNotFound when no such order exists for the identity.
// UpdateOrder applies the partial update transactionally: the whole write
// lands or nothing does.
type Store interface {
	Order(ctx context.Context, id identity.ID, orderID string) (domain.Order, error)
	Orders(ctx context.Context, id identity.ID) ([]domain.Order, error)
	CreateOrder(ctx context.Context, o domain.Order) (domain.Order, error)
	UpdateOrder(ctx context.Context, id identity.ID, orderID string, up domain.Update) (domain.Order, error)
}

// CartAccess is the reconciler surface an edit session drives. Only the
// reconciler mutates lines; the engine asks, it never reaches in.
type CartAccess interface {
	Lines() []cart.Line
	Replace(ctx context.Context, lines []cart.Line)
	Clear(ctx context.Context)
}

// CatalogReader resolves display data for order lines. Not a pricing
// authority: the add-time UnitAmount on the line always wins.
type CatalogReader interface {
	Product(ctx context.Context, itemID int64) (Product, error)
}

type Product struct {
	ID         int64
	Name       string
	ImageURL   string
	UnitAmount int64
}

// CurrentIdentity is the slice of the identity session the engine needs.
type CurrentIdentity interface {
	Current(ctx context.Context) identity.ID
}
