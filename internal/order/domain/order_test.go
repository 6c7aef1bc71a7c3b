package domain

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRecompute(t *testing.T) {
	o := Order{
		Lines: []Line{
			{ItemID: 1, UnitAmount: 1000, Quantity: 2},
			{ItemID: 2, UnitAmount: 500, Quantity: 1},
		},
		TipAmount:   300,
		TotalAmount: 999, // stale on purpose
	}

	o.Recompute(1600)

	require.Equal(t, int64(2500), o.SubtotalAmount)
	require.Equal(t, int64(400), o.TaxAmount)
	require.Equal(t, int64(3200), o.TotalAmount)
}

func TestTaxForRounding(t *testing.T) {
	require.Equal(t, int64(0), TaxFor(0, 1600))
	require.Equal(t, int64(0), TaxFor(1000, 0))
	require.Equal(t, int64(160), TaxFor(1000, 1600))
	// 999 * 16% = 159.84, rounds to 160
	require.Equal(t, int64(160), TaxFor(999, 1600))
	// 3 * 16% = 0.48, rounds to 0
	require.Equal(t, int64(0), TaxFor(3, 1600))
}

func TestTotalDiverged(t *testing.T) {
	o := Order{
		Lines:          []Line{{ItemID: 1, UnitAmount: 1000, Quantity: 1}},
		SubtotalAmount: 1000,
		TaxAmount:      160,
		TipAmount:      0,
		TotalAmount:    1160,
	}
	require.False(t, o.TotalDiverged())

	o.TotalAmount = 1000
	require.True(t, o.TotalDiverged())

	o.TotalAmount = 1160
	o.SubtotalAmount = 900
	require.True(t, o.TotalDiverged())
}

func TestDiffExcludesMatchingKeys(t *testing.T) {
	base := []Line{
		{ItemID: 2, Notes: "", Quantity: 1},
	}
	candidates := []Line{
		{ItemID: 2, Notes: "", Quantity: 5},      // matches, excluded
		{ItemID: 2, Notes: "spicy", Quantity: 1}, // same item, new notes
		{ItemID: 3, Notes: "", Quantity: 1},
	}

	diff := Diff(candidates, base)

	require.Len(t, diff, 2)
	require.Equal(t, "spicy", diff[0].Notes)
	require.Equal(t, int64(3), diff[1].ItemID)
}

func TestCloneIsDeep(t *testing.T) {
	table := int32(4)
	o := Order{
		ID:          "o1",
		Lines:       []Line{{ItemID: 1, Quantity: 1}},
		TableNumber: &table,
	}

	c := o.Clone()
	c.Lines[0].Quantity = 9
	*c.TableNumber = 7

	require.Equal(t, int32(1), o.Lines[0].Quantity)
	require.Equal(t, int32(4), *o.TableNumber)
}
