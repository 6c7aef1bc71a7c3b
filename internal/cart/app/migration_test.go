package app

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/efraindeloa/breakfast2-sub002/internal/cart/domain"
	identity "github.com/efraindeloa/breakfast2-sub002/internal/identity/domain"
	order "github.com/efraindeloa/breakfast2-sub002/internal/order/domain"
)

const userID = identity.ID("user-7")

func TestLoginMigratesAnonymousCart(t *testing.T) {
	ctx := context.Background()
	f := newFixture(anonID)

	// Scenario: anonymous cart has one customized line, remote cart is empty.
	f.local.carts[anonID] = []domain.Line{{ItemID: 5, Notes: "spicy", Quantity: 1}}

	f.session.id = userID
	require.NoError(t, f.rec.OnIdentityTransition(ctx, identity.EventLogin, anonID, userID))

	remote := f.remote.cart(userID)
	require.Len(t, remote, 1)
	require.Equal(t, int64(5), remote[0].ItemID)
	require.Equal(t, "spicy", remote[0].Notes)
	require.Equal(t, int32(1), remote[0].Quantity)

	// Sources cleared: live cart, pending snapshot.
	require.Empty(t, f.local.cart(anonID))
	require.Empty(t, f.snapshots.pendingCart(anonID))

	// The in-memory cart now belongs to the authenticated identity.
	require.Equal(t, remote, f.rec.Lines())
}

func TestLoginMergesIntoExistingRemoteCart(t *testing.T) {
	ctx := context.Background()
	f := newFixture(anonID)

	f.local.carts[anonID] = []domain.Line{{ItemID: 1, Notes: "", Quantity: 2}}
	f.remote.carts[userID] = []domain.Line{
		{ItemID: 1, Notes: "", Quantity: 1},
		{ItemID: 9, Notes: "", Quantity: 1},
	}

	f.session.id = userID
	require.NoError(t, f.rec.OnIdentityTransition(ctx, identity.EventLogin, anonID, userID))

	remote := f.remote.cart(userID)
	require.Len(t, remote, 2)
	require.Equal(t, int32(3), remote[0].Quantity) // coalesced, not duplicated
}

func TestLoginMigrationIsIdempotent(t *testing.T) {
	ctx := context.Background()
	f := newFixture(anonID)

	f.local.carts[anonID] = []domain.Line{{ItemID: 5, Notes: "spicy", Quantity: 1}}
	f.localOrd.orders[anonID] = map[string]order.Order{
		"o1": {ID: "o1", IdentityID: anonID, Status: order.StatusOrdenEnviada,
			Lines: []order.Line{{ItemID: 2, UnitAmount: 1000, Quantity: 1}}},
	}

	f.session.id = userID
	require.NoError(t, f.rec.OnIdentityTransition(ctx, identity.EventLogin, anonID, userID))
	once := f.remote.cart(userID)

	// Replaying the whole algorithm changes nothing: sources were cleared.
	require.NoError(t, f.rec.OnIdentityTransition(ctx, identity.EventLogin, anonID, userID))

	require.Equal(t, once, f.remote.cart(userID))
	require.Equal(t, 1, f.remoteOrd.count(userID))
}

func TestLoginReParentsActiveOrdersOnly(t *testing.T) {
	ctx := context.Background()
	f := newFixture(anonID)

	f.localOrd.orders[anonID] = map[string]order.Order{
		"active": {ID: "active", IdentityID: anonID, Status: order.StatusEnPreparacion},
		"done":   {ID: "done", IdentityID: anonID, Status: order.StatusCompleted},
	}

	f.session.id = userID
	require.NoError(t, f.rec.OnIdentityTransition(ctx, identity.EventLogin, anonID, userID))

	require.Equal(t, 1, f.remoteOrd.count(userID))
	migrated, err := f.remoteOrd.Orders(ctx, userID)
	require.NoError(t, err)
	require.Equal(t, "active", migrated[0].ID)
	require.Equal(t, userID, migrated[0].IdentityID)

	// Local order list cleared after the move.
	require.Equal(t, 0, f.localOrd.count(anonID))
}

func TestLoginMigrationFailureKeepsSources(t *testing.T) {
	ctx := context.Background()
	f := newFixture(anonID)

	f.local.carts[anonID] = []domain.Line{{ItemID: 5, Quantity: 1}}
	boom := errors.New("network down")
	f.remote.setErr(boom)

	f.session.id = userID
	err := f.rec.OnIdentityTransition(ctx, identity.EventLogin, anonID, userID)

	// Login itself is not failed; the condition is reported for logging and
	// the source stays put for a later retry.
	require.ErrorIs(t, err, ErrMigrationPartial)
	require.Len(t, f.local.cart(anonID), 1)

	// Retry once the store is back.
	f.remote.setErr(nil)
	require.NoError(t, f.rec.OnIdentityTransition(ctx, identity.EventLogin, anonID, userID))
	require.Len(t, f.remote.cart(userID), 1)
	require.Empty(t, f.local.cart(anonID))
}

func TestLoginMigratesUnflushedCartState(t *testing.T) {
	ctx := context.Background()
	f := newFixture(anonID)

	// The write-through is behind: the line exists in memory only, the local
	// store never saw it.
	boom := errors.New("disk full")
	f.local.setErr(boom)
	f.rec.AddItem(ctx, domain.Line{ItemID: 6, Notes: "", Quantity: 1})
	require.ErrorIs(t, f.rec.Flush(ctx), boom)
	require.Empty(t, f.local.cart(anonID))

	f.local.setErr(nil)
	f.session.id = userID
	require.NoError(t, f.rec.OnIdentityTransition(ctx, identity.EventLogin, anonID, userID))

	// The in-memory cart is the latest intent; migration must carry it even
	// though the stored copy lagged behind.
	remote := f.remote.cart(userID)
	require.Len(t, remote, 1)
	require.Equal(t, int64(6), remote[0].ItemID)
	require.Equal(t, remote, f.rec.Lines())
}

func TestLogoutQuarantinesSessionState(t *testing.T) {
	ctx := context.Background()
	f := newFixture(userID)
	nextAnon := identity.ID("anon-22222222-2222-2222-2222-222222222222")

	f.rec.AddItem(ctx, domain.Line{ItemID: 4, Notes: "", Quantity: 2})
	require.NoError(t, f.rec.Flush(ctx))
	require.NoError(t, f.remoteOrd.SaveOrder(ctx, userID, order.Order{
		ID: "o9", IdentityID: userID, Status: order.StatusOrdenEnviada,
	}))

	f.session.id = nextAnon
	require.NoError(t, f.rec.OnIdentityTransition(ctx, identity.EventLogout, userID, nextAnon))

	// In-memory cart dropped; the fresh anonymous session starts empty.
	require.Empty(t, f.rec.Lines())
	require.Empty(t, f.local.cart(nextAnon))

	// The remote cart is cleared once the snapshot is safe, so the next login
	// merges the snapshot into an empty remote side instead of doubling it.
	require.Empty(t, f.remote.cart(userID))

	// State is quarantined under the pending keys, not the live cart.
	require.Len(t, f.snapshots.pendingCart(nextAnon), 1)
	pendingOrders, err := f.snapshots.PendingOrders(ctx, nextAnon)
	require.NoError(t, err)
	require.Len(t, pendingOrders, 1)
}

func TestLogoutThenLoginResumesSession(t *testing.T) {
	ctx := context.Background()
	f := newFixture(userID)
	nextAnon := identity.ID("anon-33333333-3333-3333-3333-333333333333")

	f.rec.AddItem(ctx, domain.Line{ItemID: 4, Notes: "extra salsa", Quantity: 2})
	require.NoError(t, f.rec.Flush(ctx))

	f.session.id = nextAnon
	require.NoError(t, f.rec.OnIdentityTransition(ctx, identity.EventLogout, userID, nextAnon))

	f.session.id = userID
	require.NoError(t, f.rec.OnIdentityTransition(ctx, identity.EventLogin, nextAnon, userID))

	// The session resumes with exactly the pre-logout quantities: the snapshot
	// merges into the remote cart the logout cleared, it never sums with a
	// remote copy of itself.
	remote := f.remote.cart(userID)
	require.Len(t, remote, 1)
	require.Equal(t, "extra salsa", remote[0].Notes)
	require.Equal(t, int32(2), remote[0].Quantity)
	require.Equal(t, remote, f.rec.Lines())
	require.Empty(t, f.snapshots.pendingCart(nextAnon))
}

func TestRepeatLogoutOverwritesSnapshot(t *testing.T) {
	ctx := context.Background()
	f := newFixture(userID)
	nextAnon := identity.ID("anon-44444444-4444-4444-4444-444444444444")

	f.snapshots.carts[nextAnon] = []domain.Line{{ItemID: 1, Quantity: 9}}

	f.rec.AddItem(ctx, domain.Line{ItemID: 2, Quantity: 1})
	require.NoError(t, f.rec.Flush(ctx))

	f.session.id = nextAnon
	require.NoError(t, f.rec.OnIdentityTransition(ctx, identity.EventLogout, userID, nextAnon))

	pending := f.snapshots.pendingCart(nextAnon)
	require.Len(t, pending, 1)
	require.Equal(t, int64(2), pending[0].ItemID) // latest data, not appended
}
