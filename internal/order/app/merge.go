package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	cart "github.com/efraindeloa/breakfast2-sub002/internal/cart/domain"
	"github.com/efraindeloa/breakfast2-sub002/internal/order/domain"
)

// ErrOrderNotEditable is returned by BeginEdit for orders in a terminal
// state. Completed orders and orders with incidents belong to the kitchen.
var ErrOrderNotEditable = errors.New("order can no longer be edited")

// MergeEngine loads an order, classifies it by status, and computes the
// correct write when the user saves edits: a full overwrite while the order
// is still pending, an append of complementary items once it has been sent.
// It reads status to classify, it never writes it.
type MergeEngine struct {
	log       *slog.Logger
	session   CurrentIdentity
	orders    Store
	cart      CartAccess
	catalog   CatalogReader
	taxRateBP int64
}

type MergeParams struct {
	Session   CurrentIdentity
	Orders    Store
	Cart      CartAccess
	Catalog   CatalogReader // optional
	TaxRateBP int64
	Log       *slog.Logger
}

func NewMergeEngine(p MergeParams) *MergeEngine {
	log := p.Log
	if log == nil {
		log = slog.Default()
	}
	return &MergeEngine{
		log:       log.With("component", "order_merge"),
		session:   p.Session,
		orders:    p.Orders,
		cart:      p.Cart,
		catalog:   p.Catalog,
		taxRateBP: p.TaxRateBP,
	}
}

// EditSession is one order opened for editing. Original holds the immutable
// line set the save diff is computed against; on sent orders the lines are
// tagged FromOriginalOrder for read-only display.
type EditSession struct {
	OrderID  string
	Editable bool
	Original []domain.Line

	order domain.Order
}

// Order returns the order as it was when the session began.
func (s *EditSession) Order() domain.Order {
	return s.order.Clone()
}

// LoadOrder fetches the order for the current identity. A stored total that
// diverged from the line sum is repaired from the lines before anything else
// sees it; missing display names are hydrated from the catalog without
// touching the captured prices.
func (e *MergeEngine) LoadOrder(ctx context.Context, orderID string) (domain.Order, error) {
	id := e.session.Current(ctx)

	o, err := e.orders.Order(ctx, id, orderID)
	if err != nil {
		return domain.Order{}, fmt.Errorf("load order %s: %w", orderID, err)
	}

	if o.TotalDiverged() {
		e.log.Warn("stored total diverged from line sum, repairing",
			"order_id", o.ID,
			"stored_total", o.TotalAmount,
		)
		o.SubtotalAmount = domain.Subtotal(o.Lines)
		o.TotalAmount = o.SubtotalAmount + o.TaxAmount + o.TipAmount

		sub, total := o.SubtotalAmount, o.TotalAmount
		if _, err := e.orders.UpdateOrder(ctx, id, o.ID, domain.Update{
			SubtotalAmount: &sub,
			TotalAmount:    &total,
		}); err != nil {
			// Best effort; the repaired copy is what callers get regardless.
			e.log.Warn("could not persist repaired total", "order_id", o.ID, "error", err)
		}
	}

	e.hydrate(ctx, o.Lines)
	return o, nil
}

func (e *MergeEngine) hydrate(ctx context.Context, lines []domain.Line) {
	if e.catalog == nil {
		return
	}
	for i := range lines {
		if lines[i].Name != "" {
			continue
		}
		p, err := e.catalog.Product(ctx, lines[i].ItemID)
		if err != nil {
			continue
		}
		lines[i].Name = p.Name
	}
}

// BeginEdit opens the order for editing and prepares the cart accordingly.
// Pending: the cart becomes the order's lines, coalesced, and the user edits
// them like a normal cart. Sent: the cart is cleared so anything added from
// here on is a complementary item, while the original lines stay read-only.
func (e *MergeEngine) BeginEdit(ctx context.Context, orderID string) (*EditSession, error) {
	o, err := e.LoadOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}

	switch {
	case o.Status.Editable():
		lines := domain.Coalesce(o.Lines)
		e.cart.Replace(ctx, toCartLines(lines))
		return &EditSession{
			OrderID:  o.ID,
			Editable: true,
			Original: lines,
			order:    o,
		}, nil

	case o.Status.Sent():
		e.cart.Clear(ctx)
		original := domain.CloneLines(o.Lines)
		for i := range original {
			original[i].FromOriginalOrder = true
		}
		return &EditSession{
			OrderID:  o.ID,
			Editable: false,
			Original: original,
			order:    o,
		}, nil

	default:
		return nil, fmt.Errorf("order %s in status %s: %w", o.ID, o.Status, ErrOrderNotEditable)
	}
}

// Totals is the recomputed money breakdown for an edit in progress.
type Totals struct {
	SubtotalAmount int64
	TaxAmount      int64
	TipAmount      int64
	TotalAmount    int64
}

// ComputeTotals prices the edit as it stands. Editable: the cart is the
// order. Sent: the immutable original lines plus only those cart lines whose
// key is absent from the original; a key match is excluded so the already
// fixed original quantity is never double-counted.
func (e *MergeEngine) ComputeTotals(s *EditSession, cartLines []cart.Line) Totals {
	var subtotal int64
	if s.Editable {
		subtotal = cart.Subtotal(cartLines)
	} else {
		subtotal = domain.Subtotal(s.Original)
		for _, l := range domain.Diff(fromCartLines(cartLines), s.Original) {
			subtotal += l.LineTotal()
		}
	}

	tax := domain.TaxFor(subtotal, e.taxRateBP)
	return Totals{
		SubtotalAmount: subtotal,
		TaxAmount:      tax,
		TipAmount:      s.order.TipAmount,
		TotalAmount:    subtotal + tax + s.order.TipAmount,
	}
}

// SaveEdit writes the edit back. Editable orders get their lines replaced
// wholesale; sent orders get exactly the key-diff appended, the original
// lines untouched. The cart is cleared only after the write confirms, so a
// failed save loses nothing.
func (e *MergeEngine) SaveEdit(ctx context.Context, s *EditSession) (domain.Order, error) {
	id := e.session.Current(ctx)
	current := domain.Coalesce(fromCartLines(e.cart.Lines()))

	var lines []domain.Line
	if s.Editable {
		lines = current
	} else {
		diff := domain.Diff(current, s.Original)
		if len(diff) == 0 {
			// Nothing complementary to append; no order mutation at all.
			e.cart.Clear(ctx)
			return s.order.Clone(), nil
		}
		lines = append(domain.CloneLines(s.Original), diff...)
	}

	totals := e.totalsFor(lines, s.order.TipAmount)
	up := domain.Update{
		Lines:          &lines,
		SubtotalAmount: &totals.SubtotalAmount,
		TaxAmount:      &totals.TaxAmount,
		TotalAmount:    &totals.TotalAmount,
	}

	saved, err := e.orders.UpdateOrder(ctx, id, s.OrderID, up)
	if err != nil {
		// Fail closed: cart stays, caller prompts a retry.
		return domain.Order{}, fmt.Errorf("save order %s: %w", s.OrderID, err)
	}

	e.cart.Clear(ctx)

	s.order = saved.Clone()
	if !s.Editable {
		s.Original = domain.CloneLines(saved.Lines)
		for i := range s.Original {
			s.Original[i].FromOriginalOrder = true
		}
	}

	e.log.Info("order edit saved",
		"order_id", s.OrderID,
		"editable", s.Editable,
		"lines", len(lines),
		"total", totals.TotalAmount,
	)
	return saved, nil
}

func (e *MergeEngine) totalsFor(lines []domain.Line, tip int64) Totals {
	subtotal := domain.Subtotal(lines)
	tax := domain.TaxFor(subtotal, e.taxRateBP)
	return Totals{
		SubtotalAmount: subtotal,
		TaxAmount:      tax,
		TipAmount:      tip,
		TotalAmount:    subtotal + tax + tip,
	}
}

func toCartLines(lines []domain.Line) []cart.Line {
	out := make([]cart.Line, 0, len(lines))
	for _, l := range lines {
		out = append(out, cart.Line{
			ItemID:     l.ItemID,
			Name:       l.Name,
			UnitAmount: l.UnitAmount,
			Notes:      l.Notes,
			Quantity:   l.Quantity,
		})
	}
	return out
}

func fromCartLines(lines []cart.Line) []domain.Line {
	out := make([]domain.Line, 0, len(lines))
	for _, l := range lines {
		out = append(out, domain.Line{
			ItemID:     l.ItemID,
			Name:       l.Name,
			UnitAmount: l.UnitAmount,
			Notes:      l.Notes,
			Quantity:   l.Quantity,
		})
	}
	return out
}
