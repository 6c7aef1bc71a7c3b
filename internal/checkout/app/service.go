package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	cart "github.com/efraindeloa/breakfast2-sub002/internal/cart/domain"
	identity "github.com/efraindeloa/breakfast2-sub002/internal/identity/domain"
	order "github.com/efraindeloa/breakfast2-sub002/internal/order/domain"
)

var (
	ErrEmptyCart    = errors.New("cart is empty")
	ErrInvalidOrder = errors.New("invalid order request")
)

// CartSource is the reconciler surface checkout consumes: the current lines,
// a convergence barrier before committing, and the clear after a confirmed
// order write.
type CartSource interface {
	Lines() []cart.Line
	Flush(ctx context.Context) error
	Clear(ctx context.Context)
}

// OrderWriter persists the new order in the store that is authoritative for
// its identity.
type OrderWriter interface {
	CreateOrder(ctx context.Context, o order.Order) (order.Order, error)
}

// CatalogReader resolves display data for quote lines. Never a pricing
// authority; the captured UnitAmount on the cart line wins.
type CatalogReader interface {
	Product(ctx context.Context, itemID int64) (Product, error)
}

type Product struct {
	ID         int64
	Name       string
	ImageURL   string
	UnitAmount int64
}

type CurrentIdentity interface {
	Current(ctx context.Context) identity.ID
}

type Service struct {
	log           *slog.Logger
	session       CurrentIdentity
	cart          CartSource
	orders        OrderWriter
	catalog       CatalogReader
	taxRateBP     int64
	maxConcurrent int
}

type Params struct {
	Session       CurrentIdentity
	Cart          CartSource
	Orders        OrderWriter
	Catalog       CatalogReader // optional
	TaxRateBP     int64
	MaxConcurrent int
	Log           *slog.Logger
}

func NewService(p Params) *Service {
	if p.MaxConcurrent <= 0 {
		p.MaxConcurrent = 10
	}
	log := p.Log
	if log == nil {
		log = slog.Default()
	}
	return &Service{
		log:           log.With("component", "checkout"),
		session:       p.Session,
		cart:          p.Cart,
		orders:        p.Orders,
		catalog:       p.Catalog,
		taxRateBP:     p.TaxRateBP,
		maxConcurrent: p.MaxConcurrent,
	}
}

type QuoteLine struct {
	ItemID     int64
	Name       string
	ImageURL   string
	Notes      string
	UnitAmount int64
	Quantity   int32
	LineTotal  int64
}

type Quote struct {
	Lines          []QuoteLine
	SubtotalAmount int64
	TaxAmount      int64
	TotalAmount    int64
}

// Quote prices the current cart. Display data comes from the catalog,
// resolved concurrently; prices come from the lines themselves.
func (s *Service) Quote(ctx context.Context) (Quote, error) {
	items := s.cart.Lines()
	if len(items) == 0 {
		return Quote{}, ErrEmptyCart
	}

	lines := make([]QuoteLine, len(items))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(s.maxConcurrent)

	for idx := range items {
		idx := idx
		g.Go(func() error {
			it := items[idx]
			if it.Quantity <= 0 {
				return fmt.Errorf("%w: quantity must be positive, got %d", ErrInvalidOrder, it.Quantity)
			}

			ql := QuoteLine{
				ItemID:     it.ItemID,
				Name:       it.Name,
				Notes:      it.Notes,
				UnitAmount: it.UnitAmount,
				Quantity:   it.Quantity,
				LineTotal:  it.LineTotal(),
			}
			if s.catalog != nil {
				if p, err := s.catalog.Product(ctx, it.ItemID); err == nil {
					ql.ImageURL = p.ImageURL
					if ql.Name == "" {
						ql.Name = p.Name
					}
				}
			}
			lines[idx] = ql
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return Quote{}, err
	}

	var subtotal int64
	for _, l := range lines {
		subtotal += l.LineTotal
	}
	tax := order.TaxFor(subtotal, s.taxRateBP)

	return Quote{
		Lines:          lines,
		SubtotalAmount: subtotal,
		TaxAmount:      tax,
		TotalAmount:    subtotal + tax,
	}, nil
}

type PlaceOrderRequest struct {
	TipAmount       int64
	TableNumber     *int32
	DeliveryAddress *string
	PaymentMethod   string
}

// PlaceOrder converts the current cart snapshot into a pending order owned by
// the current identity. The cart is cleared only after the write confirms.
func (s *Service) PlaceOrder(ctx context.Context, req PlaceOrderRequest) (order.Order, error) {
	if req.TipAmount < 0 {
		return order.Order{}, fmt.Errorf("%w: tip cannot be negative, got %d", ErrInvalidOrder, req.TipAmount)
	}
	if req.PaymentMethod == "" {
		return order.Order{}, fmt.Errorf("%w: payment method is required", ErrInvalidOrder)
	}
	if req.TableNumber == nil && (req.DeliveryAddress == nil || *req.DeliveryAddress == "") {
		return order.Order{}, fmt.Errorf("%w: a table number or delivery address is required", ErrInvalidOrder)
	}

	items := s.cart.Lines()
	if len(items) == 0 {
		return order.Order{}, ErrEmptyCart
	}

	lines := make([]order.Line, 0, len(items))
	for i, it := range items {
		if it.Quantity <= 0 {
			return order.Order{}, fmt.Errorf("%w: item %d: quantity must be positive, got %d", ErrInvalidOrder, i, it.Quantity)
		}
		if it.UnitAmount < 0 {
			return order.Order{}, fmt.Errorf("%w: item %d: unit amount cannot be negative, got %d", ErrInvalidOrder, i, it.UnitAmount)
		}
		lines = append(lines, order.Line{
			ItemID:     it.ItemID,
			Name:       it.Name,
			UnitAmount: it.UnitAmount,
			Notes:      it.Notes,
			Quantity:   it.Quantity,
		})
	}

	// Make sure the store has converged on this snapshot before committing:
	// a lagging write-through must not resurrect stale lines afterwards.
	if err := s.cart.Flush(ctx); err != nil {
		s.log.Warn("cart write-through lagging at checkout", "error", err)
	}

	o := order.Order{
		ID:              uuid.NewString(),
		IdentityID:      s.session.Current(ctx),
		Status:          order.StatusPending,
		Lines:           lines,
		TipAmount:       req.TipAmount,
		TableNumber:     req.TableNumber,
		DeliveryAddress: req.DeliveryAddress,
		PaymentMethod:   req.PaymentMethod,
		PaymentStatus:   order.PaymentUnpaid,
	}
	o.Recompute(s.taxRateBP)

	created, err := s.orders.CreateOrder(ctx, o)
	if err != nil {
		return order.Order{}, fmt.Errorf("place order: %w", err)
	}

	s.cart.Clear(ctx)

	s.log.Info("order placed",
		"order_id", created.ID,
		"identity", string(created.IdentityID),
		"total", created.TotalAmount,
	)
	return created, nil
}
