package domain

// Line is one cart entry. UnitAmount is in minor currency units and is
// captured at add time; it is authoritative and never re-priced from the
// catalog afterwards.
type Line struct {
	ItemID     int64
	Name       string
	UnitAmount int64
	Notes      string
	Quantity   int32
}

// Key is the identity of a line. Two lines with the same item but different
// notes are distinct entries; same item and same notes must be coalesced.
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

// Upsert merges add into lines by (ItemID, Notes): on a key match the
// quantity is summed, otherwise the line is appended. Existing order is kept.
func Upsert(lines []Line, add Line) []Line {
	for i := range lines {
		if lines[i].Key() == add.Key() {
			lines[i].Quantity += add.Quantity
			return lines
		}
	}
	return append(lines, add)
}

// SetQuantityForKey scopes the update to the exact (itemID, notes) line.
// A quantity of zero or less removes the line instead of storing it.
func SetQuantityForKey(lines []Line, itemID int64, notes string, quantity int32) []Line {
	key := Key{ItemID: itemID, Notes: notes}
	out := lines[:0]
	for _, l := range lines {
		if l.Key() == key {
			if quantity <= 0 {
				continue
			}
			l.Quantity = quantity
		}
		out = append(out, l)
	}
	return out
}

// SetQuantityForAllVariants applies the quantity to every line sharing the
// item id regardless of notes. Kept as an explicit operation so the broad
// scope is visible at the call site; zero or less removes the lines.
func SetQuantityForAllVariants(lines []Line, itemID int64, quantity int32) []Line {
	out := lines[:0]
	for _, l := range lines {
		if l.ItemID == itemID {
			if quantity <= 0 {
				continue
			}
			l.Quantity = quantity
		}
		out = append(out, l)
	}
	return out
}

// Remove drops every line for the item id, all variants.
func Remove(lines []Line, itemID int64) []Line {
	out := lines[:0]
	for _, l := range lines {
		if l.ItemID == itemID {
			continue
		}
		out = append(out, l)
	}
	return out
}

// SetNotes rewrites the notes of every line for the item id. Re-keying can
// collide with an existing line, so the result is coalesced.
func SetNotes(lines []Line, itemID int64, notes string) []Line {
	for i := range lines {
		if lines[i].ItemID == itemID {
			lines[i].Notes = notes
		}
	}
	return Coalesce(lines)
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

// ItemCount is the sum of all line quantities. Pure derived value.
func ItemCount(lines []Line) int32 {
	var n int32
	for _, l := range lines {
		n += l.Quantity
	}
	return n
}

// Subtotal sums line totals in minor units.
func Subtotal(lines []Line) int64 {
	var sum int64
	for _, l := range lines {
		sum += l.LineTotal()
	}
	return sum
}

func Clone(lines []Line) []Line {
	if lines == nil {
		return nil
	}
	out := make([]Line, len(lines))
	copy(out, lines)
	return out
}
