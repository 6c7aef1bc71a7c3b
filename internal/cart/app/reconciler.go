package app

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/efraindeloa/breakfast2-sub002/internal/cart/domain"
	identity "github.com/efraindeloa/breakfast2-sub002/internal/identity/domain"
)

// Params bundles the reconciler's collaborators.
type Params struct {
	Session      CurrentIdentity
	Local        Store
	Remote       Store
	LocalOrders  LocalOrderSync
	RemoteOrders OrderSync
	Snapshots    SnapshotStore
	Log          *slog.Logger
}

// Reconciler owns the in-memory cart, decides which adapter is authoritative
// for the current identity, and migrates state across identity transitions.
// It is the only component allowed to mutate cart lines; every entry point
// funnels through the (ItemID, Notes) coalescing rules.
type Reconciler struct {
	mu sync.Mutex // state lock, doubles as the migration gate

	log          *slog.Logger
	session      CurrentIdentity
	local        Store
	remote       Store
	localOrders  LocalOrderSync
	remoteOrders OrderSync
	snapshots    SnapshotStore

	// ident is the identity the in-memory cart belongs to. Resolved lazily
	// from the session and rewritten by the transition handlers, so the flush
	// path never has to call into the session while holding mu.
	ident  identity.ID
	lines  []domain.Line
	writer *writer
}

func NewReconciler(p Params) *Reconciler {
	log := p.Log
	if log == nil {
		log = slog.Default()
	}
	r := &Reconciler{
		log:          log.With("component", "cart_reconciler"),
		session:      p.Session,
		local:        p.Local,
		remote:       p.Remote,
		localOrders:  p.LocalOrders,
		remoteOrders: p.RemoteOrders,
		snapshots:    p.Snapshots,
	}
	r.writer = newWriter(r.flushSnapshot, r.log)
	return r
}

func (r *Reconciler) storeFor(id identity.ID) Store {
	if id.Authenticated() {
		return r.remote
	}
	return r.local
}

// Identity returns the identity the cart currently belongs to, resolving it
// from the session on first use. The session is never called under mu: a
// login in flight holds the session lock until migration completes, and this
// is where operations issued during the gate queue up.
func (r *Reconciler) Identity(ctx context.Context) identity.ID {
	r.mu.Lock()
	id := r.ident
	r.mu.Unlock()
	if id != "" {
		return id
	}

	resolved := r.session.Current(ctx)

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.ident == "" {
		r.ident = resolved
	}
	return r.ident
}

// Load reads the cart from the authoritative adapter for the current identity
// and replaces the in-memory view with it.
func (r *Reconciler) Load(ctx context.Context) ([]domain.Line, error) {
	id := r.Identity(ctx)

	r.mu.Lock()
	defer r.mu.Unlock()

	lines, err := r.storeFor(id).ReadCart(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load cart for %s: %w", id, err)
	}
	r.lines = domain.Coalesce(lines)
	return domain.Clone(r.lines), nil
}

// AddItem upserts by (ItemID, Notes): a key match increments the quantity,
// otherwise the line is appended. Memory is updated synchronously, the
// write-through is dispatched asynchronously.
func (r *Reconciler) AddItem(ctx context.Context, line domain.Line) []domain.Line {
	if line.Quantity < 1 {
		line.Quantity = 1
	}
	return r.mutate(ctx, func() {
		r.lines = domain.Upsert(r.lines, line)
	})
}

// UpdateQuantityForKey scopes the update to the exact (itemID, notes) line.
// Zero or negative removes it.
func (r *Reconciler) UpdateQuantityForKey(ctx context.Context, itemID int64, notes string, quantity int32) []domain.Line {
	return r.mutate(ctx, func() {
		r.lines = domain.SetQuantityForKey(r.lines, itemID, notes, quantity)
	})
}

// UpdateQuantityForAllVariants applies the quantity to every line sharing the
// item id regardless of notes. Legacy broad scope, explicit by name.
func (r *Reconciler) UpdateQuantityForAllVariants(ctx context.Context, itemID int64, quantity int32) []domain.Line {
	return r.mutate(ctx, func() {
		r.lines = domain.SetQuantityForAllVariants(r.lines, itemID, quantity)
	})
}

// RemoveItem drops every variant of the item.
func (r *Reconciler) RemoveItem(ctx context.Context, itemID int64) []domain.Line {
	return r.mutate(ctx, func() {
		r.lines = domain.Remove(r.lines, itemID)
	})
}

// UpdateNotes rewrites the notes on every line of the item and re-coalesces,
// since re-keying can collide with an existing line.
func (r *Reconciler) UpdateNotes(ctx context.Context, itemID int64, notes string) []domain.Line {
	return r.mutate(ctx, func() {
		r.lines = domain.SetNotes(r.lines, itemID, notes)
	})
}

// Clear empties the cart.
func (r *Reconciler) Clear(ctx context.Context) {
	r.mutate(ctx, func() {
		r.lines = nil
	})
}

// Replace swaps the whole cart for the given lines, coalesced. Used by edit
// sessions on editable orders.
func (r *Reconciler) Replace(ctx context.Context, lines []domain.Line) {
	r.mutate(ctx, func() {
		r.lines = domain.Coalesce(domain.Clone(lines))
	})
}

// Lines returns a copy of the current in-memory cart.
func (r *Reconciler) Lines() []domain.Line {
	r.mu.Lock()
	defer r.mu.Unlock()
	return domain.Clone(r.lines)
}

// ItemCount is the sum of all line quantities. No I/O.
func (r *Reconciler) ItemCount() int32 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return domain.ItemCount(r.lines)
}

// Flush waits for the write-through to converge and reports its outcome.
func (r *Reconciler) Flush(ctx context.Context) error {
	return r.writer.Wait(ctx)
}

// WriteErr is the non-blocking retry indicator: non-nil while the store lags
// the in-memory state after a failed write-through.
func (r *Reconciler) WriteErr() error {
	return r.writer.LastErr()
}

func (r *Reconciler) mutate(ctx context.Context, fn func()) []domain.Line {
	r.Identity(ctx) // resolve before locking; queues behind a migration gate

	r.mu.Lock()
	fn()
	out := domain.Clone(r.lines)
	r.mu.Unlock()

	r.writer.Schedule()
	return out
}

// flushSnapshot writes whatever the in-memory state is at flush time, under
// whatever identity owns it at flush time. Always the freshest intent.
func (r *Reconciler) flushSnapshot(ctx context.Context) error {
	r.mu.Lock()
	id := r.ident
	lines := domain.Clone(r.lines)
	r.mu.Unlock()

	if id == "" {
		return nil
	}
	return r.storeFor(id).WriteCart(ctx, id, lines)
}
