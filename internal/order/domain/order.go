package domain

import (
	"time"

	identity "github.com/efraindeloa/breakfast2-sub002/internal/identity/domain"
)

// Line has the cart line shape plus the original-order marker. Once the order
// leaves pending, lines already on it are immutable; edits append new ones.
type Line struct {
	ItemID     int64
	Name       string
	UnitAmount int64
	Notes      string
	Quantity   int32

	// FromOriginalOrder tags lines that were part of the order when it was
	// dispatched. Rendered read-only in edit sessions on sent orders.
	FromOriginalOrder bool
}

type Key struct {
	ItemID int64
	Notes  string
}

func (l Line) Key() Key {
	return Key{ItemID: l.ItemID, Notes: l.Notes}
}

func (l Line) LineTotal() int64 {
	return l.UnitAmount * int64(l.Quantity)
}

type Order struct {
	ID         string
	IdentityID identity.ID
	Status     Status
	Lines      []Line

	SubtotalAmount int64
	TaxAmount      int64
	TipAmount      int64
	TotalAmount    int64

	TableNumber     *int32
	DeliveryAddress *string
	PaymentMethod   string
	PaymentStatus   string

	CreatedAt time.Time
	UpdatedAt time.Time
}

const (
	PaymentUnpaid = "unpaid"
	PaymentPaid   = "paid"
)

// Update is a partial write applied through the store. Nil fields are left
// untouched.
type Update struct {
	Lines          *[]Line
	SubtotalAmount *int64
	TaxAmount      *int64
	TotalAmount    *int64
	Status         *Status
	PaymentStatus  *string
}

// Subtotal sums line totals in minor units.
func Subtotal(lines []Line) int64 {
	var sum int64
	for _, l := range lines {
		sum += l.LineTotal()
	}
	return sum
}

// TaxFor computes tax from a rate in basis points, rounding half up.
func TaxFor(subtotal, rateBP int64) int64 {
	if subtotal <= 0 || rateBP <= 0 {
		return 0
	}
	return (subtotal*rateBP + 5000) / 10000
}

// Recompute derives subtotal, tax and total from the lines. Tip is preserved.
func (o *Order) Recompute(taxRateBP int64) {
	o.SubtotalAmount = Subtotal(o.Lines)
	o.TaxAmount = TaxFor(o.SubtotalAmount, taxRateBP)
	o.TotalAmount = o.SubtotalAmount + o.TaxAmount + o.TipAmount
}

// TotalDiverged reports whether the stored total no longer matches the sum of
// the lines plus tax and tip. The stored value is never trusted over the
// lines when this happens.
func (o Order) TotalDiverged() bool {
	return o.TotalAmount != Subtotal(o.Lines)+o.TaxAmount+o.TipAmount ||
		o.SubtotalAmount != Subtotal(o.Lines)
}

// KeySet indexes the lines by identity key.
func KeySet(lines []Line) map[Key]struct{} {
	set := make(map[Key]struct{}, len(lines))
	for _, l := range lines {
		set[l.Key()] = struct{}{}
	}
	return set
}

// Diff returns the candidate lines whose key does not appear in base: the
// complementary items of an edit on a sent order. A candidate matching an
// existing key is excluded, its quantity on the order is already fixed.
func Diff(candidates, base []Line) []Line {
	existing := KeySet(base)
	var out []Line
	for _, l := range candidates {
		if _, ok := existing[l.Key()]; ok {
			continue
		}
		out = append(out, l)
	}
	return out
}

// Coalesce collapses duplicate keys by summing quantities, preserving
// first-seen order.
func Coalesce(lines []Line) []Line {
	out := make([]Line, 0, len(lines))
	index := make(map[Key]int, len(lines))
	for _, l := range lines {
		if i, ok := index[l.Key()]; ok {
			out[i].Quantity += l.Quantity
			continue
		}
		index[l.Key()] = len(out)
		out = append(out, l)
	}
	return out
}

func CloneLines(lines []Line) []Line {
	if lines == nil {
		return nil
	}
	out := make([]Line, len(lines))
	copy(out, lines)
	return out
}

func (o Order) Clone() Order {
	out := o
	out.Lines = CloneLines(o.Lines)
	if o.TableNumber != nil {
		n := *o.TableNumber
		out.TableNumber = &n
	}
	if o.DeliveryAddress != nil {
		a := *o.DeliveryAddress
		out.DeliveryAddress = &a
	}
	return out
}
