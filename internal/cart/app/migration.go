package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/efraindeloa/breakfast2-sub002/internal/cart/domain"
	identity "github.com/efraindeloa/breakfast2-sub002/internal/identity/domain"
)

// ErrMigrationPartial marks a login migration that could not move every line
// or order. Non-fatal: the login itself proceeds, the local sources stay in
// place for a later retry.
var ErrMigrationPartial = errors.New("identity migration incomplete")

// OnIdentityTransition is registered with the identity session. It holds the
// reconciler's state lock for the whole migration, so cart and order
// operations issued meanwhile queue behind the gate instead of reading a
// half-migrated state.
func (r *Reconciler) OnIdentityTransition(ctx context.Context, event identity.Event, prev, next identity.ID) error {
	switch event {
	case identity.EventLogin:
		return r.migrateLogin(ctx, prev, next)
	case identity.EventLogout:
		return r.snapshotLogout(ctx, prev, next)
	}
	return nil
}

// migrateLogin moves the anonymous session's cart and active orders to the
// authenticated identity's remote store. Ordering is write destination, then
// clear source: a crash mid-migration leaves the data recoverable locally
// rather than silently lost. Re-running against cleared sources is a no-op,
// which is what makes the whole algorithm idempotent.
func (r *Reconciler) migrateLogin(ctx context.Context, anon, user identity.ID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var failed []error

	cartDone, err := r.migrateCartLocked(ctx, anon, user)
	if err != nil {
		failed = append(failed, err)
	}
	ordersDone, err := r.migrateOrdersLocked(ctx, anon, user)
	if err != nil {
		failed = append(failed, err)
	}

	// Clear sources only for the parts that fully landed remotely.
	if cartDone {
		if err := r.local.WriteCart(ctx, anon, nil); err != nil {
			r.log.Warn("could not clear migrated local cart", "anon", string(anon), "error", err)
		}
		if err := r.snapshots.ClearPendingCart(ctx, anon); err != nil {
			r.log.Warn("could not clear pending cart snapshot", "anon", string(anon), "error", err)
		}
	}
	if ordersDone {
		if err := r.localOrders.ReplaceOrders(ctx, anon, nil); err != nil {
			r.log.Warn("could not clear migrated local orders", "anon", string(anon), "error", err)
		}
		if err := r.snapshots.ClearPendingOrders(ctx, anon); err != nil {
			r.log.Warn("could not clear pending orders snapshot", "anon", string(anon), "error", err)
		}
	}

	// The new identity owns the cart from here on, migrated or not.
	r.ident = user

	if len(failed) > 0 {
		// The login itself is not failed over this; the session logs it and
		// the sources stay put for the next attempt.
		if lines, err := r.remote.ReadCart(ctx, user); err == nil {
			r.lines = domain.Coalesce(lines)
		} else {
			r.lines = nil
		}
		return fmt.Errorf("%w: %w", ErrMigrationPartial, errors.Join(failed...))
	}

	r.log.Info("login migration complete",
		"anon", string(anon),
		"user", string(user),
		"cart_lines", len(r.lines),
	)
	return nil
}

// migrateCartLocked merges the anonymous live cart and any quarantined
// pending snapshot into the remote cart, coalescing by (ItemID, Notes). The
// combined set lands in one full-replace write, so a retry after a failed
// write starts from unchanged state on both sides.
func (r *Reconciler) migrateCartLocked(ctx context.Context, anon, user identity.ID) (bool, error) {
	// Once the in-memory cart is bound to the anonymous identity it is the
	// latest intent; the local store may lag behind a write-through still in
	// flight, and reading it here would lose the unflushed lines.
	live := domain.Clone(r.lines)
	if r.ident != anon {
		var err error
		live, err = r.local.ReadCart(ctx, anon)
		if err != nil {
			return false, fmt.Errorf("read anonymous cart: %w", err)
		}
	}
	pending, err := r.snapshots.PendingCart(ctx, anon)
	if err != nil {
		return false, fmt.Errorf("read pending cart snapshot: %w", err)
	}

	incoming := domain.Coalesce(append(domain.Clone(live), pending...))
	if len(incoming) == 0 {
		remote, err := r.remote.ReadCart(ctx, user)
		if err != nil {
			return false, fmt.Errorf("read remote cart: %w", err)
		}
		r.lines = domain.Coalesce(remote)
		return true, nil
	}

	remote, err := r.remote.ReadCart(ctx, user)
	if err != nil {
		return false, fmt.Errorf("read remote cart: %w", err)
	}

	merged := domain.Clone(remote)
	for _, line := range incoming {
		merged = domain.Upsert(merged, line)
	}
	merged = domain.Coalesce(merged)

	if err := r.remote.WriteCart(ctx, user, merged); err != nil {
		return false, fmt.Errorf("write migrated cart: %w", err)
	}

	r.lines = merged
	return true, nil
}

// migrateOrdersLocked re-parents the anonymous session's active orders to the
// authenticated identity. SaveOrder upserts by order id, so replaying a
// migration never duplicates an order.
func (r *Reconciler) migrateOrdersLocked(ctx context.Context, anon, user identity.ID) (bool, error) {
	local, err := r.localOrders.Orders(ctx, anon)
	if err != nil {
		return false, fmt.Errorf("read anonymous orders: %w", err)
	}
	pending, err := r.snapshots.PendingOrders(ctx, anon)
	if err != nil {
		return false, fmt.Errorf("read pending orders snapshot: %w", err)
	}

	seen := make(map[string]struct{})
	var failed []error
	for _, o := range append(local, pending...) {
		if _, dup := seen[o.ID]; dup {
			continue
		}
		seen[o.ID] = struct{}{}

		if !o.Status.Active() {
			continue
		}

		o = o.Clone()
		o.IdentityID = user
		if err := r.remoteOrders.SaveOrder(ctx, user, o); err != nil {
			failed = append(failed, fmt.Errorf("migrate order %s: %w", o.ID, err))
		}
	}

	if len(failed) > 0 {
		return false, errors.Join(failed...)
	}
	return true, nil
}

// snapshotLogout quarantines the authenticated session's cart and active
// orders under the pending keys of the anonymous identity that follows it,
// then drops the in-memory view. The snapshot applies only on the next
// successful login; it never touches a live anonymous cart, and a repeat
// logout overwrites it wholesale rather than appending.
func (r *Reconciler) snapshotLogout(ctx context.Context, user, anon identity.ID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	// In-memory state is the latest intent, write-through lag included.
	lines := domain.Clone(r.lines)

	var failed []error
	if err := r.snapshots.WritePendingCart(ctx, anon, lines); err != nil {
		failed = append(failed, fmt.Errorf("snapshot cart: %w", err))
	} else if err := r.remote.WriteCart(ctx, user, nil); err != nil {
		// Snapshot-then-clear, same ordering as login. The snapshot is already
		// safe; a lingering remote copy would double quantities when the next
		// login merges the snapshot back in, so a failed clear is reported.
		failed = append(failed, fmt.Errorf("clear remote cart: %w", err))
	}

	if orders, err := r.remoteOrders.Orders(ctx, user); err != nil {
		failed = append(failed, fmt.Errorf("read orders for snapshot: %w", err))
	} else {
		active := orders[:0]
		for _, o := range orders {
			if o.Status.Active() {
				active = append(active, o)
			}
		}
		if err := r.snapshots.WritePendingOrders(ctx, anon, active); err != nil {
			failed = append(failed, fmt.Errorf("snapshot orders: %w", err))
		}
	}

	// The user's cart must not leak into the anonymous session either way.
	r.lines = nil
	r.ident = anon

	if len(failed) > 0 {
		return errors.Join(failed...)
	}

	r.log.Info("logout snapshot written", "user", string(user), "anon", string(anon))
	return nil
}
