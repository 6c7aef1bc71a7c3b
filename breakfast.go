// Package breakfast assembles the cart/order reconciliation engine: an
// identity session over a device-local SQLite store and a remote per-user
// store, a cart reconciler that migrates state across login/logout, a merge
// engine for editing dispatched orders, and a checkout service. Screens
// consume the assembled engine; nothing here renders anything.
package breakfast

import (
	"context"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"

	cartapp "github.com/efraindeloa/breakfast2-sub002/internal/cart/app"
	checkoutapp "github.com/efraindeloa/breakfast2-sub002/internal/checkout/app"
	identityapp "github.com/efraindeloa/breakfast2-sub002/internal/identity/app"
	identity "github.com/efraindeloa/breakfast2-sub002/internal/identity/domain"
	orderapp "github.com/efraindeloa/breakfast2-sub002/internal/order/app"
	order "github.com/efraindeloa/breakfast2-sub002/internal/order/domain"
	"github.com/efraindeloa/breakfast2-sub002/internal/store/localstore"
	"github.com/efraindeloa/breakfast2-sub002/internal/store/remotestore"
	"github.com/efraindeloa/breakfast2-sub002/pkg/config"
)

// Engine is the assembled reconciliation core.
type Engine struct {
	Session  *identityapp.Session
	Cart     *cartapp.Reconciler
	Orders   *orderapp.MergeEngine
	Checkout *checkoutapp.Service

	local *localstore.Store
	pool  *pgxpool.Pool
}

// Catalog is the external menu collaborator, re-exported so callers wire one
// implementation for both the merge engine and checkout.
type Catalog = orderapp.CatalogReader

// Options carries the external collaborators and tuning for New.
type Options struct {
	Auth    identityapp.AuthProvider
	Catalog Catalog // optional
	Log     *slog.Logger

	TaxRateBP     int64
	MaxConcurrent int
}

// Open connects both stores from configuration and assembles the engine.
func Open(ctx context.Context, cfg config.Config, opts Options) (*Engine, error) {
	local, err := localstore.Open(cfg.LocalDBPath)
	if err != nil {
		return nil, err
	}

	pool, err := remotestore.Connect(ctx, cfg.PostgresDSN(), opts.Log)
	if err != nil {
		local.Close()
		return nil, err
	}
	if err := remotestore.EnsureSchema(ctx, pool); err != nil {
		pool.Close()
		local.Close()
		return nil, err
	}

	if opts.TaxRateBP == 0 {
		opts.TaxRateBP = cfg.TaxRateBP
	}
	if opts.MaxConcurrent == 0 {
		opts.MaxConcurrent = cfg.CatalogWorkers
	}

	e := New(local, remotestore.NewCartRepo(pool), remotestore.NewOrderRepo(pool), opts)
	e.local = local
	e.pool = pool
	return e, nil
}

// RemoteOrderStore is the order contract the remote adapter satisfies: the
// merge engine's store plus the idempotent upsert login migration replays.
type RemoteOrderStore interface {
	orderapp.Store
	SaveOrder(ctx context.Context, id identity.ID, o order.Order) error
}

// New assembles the engine from already constructed adapters. The local store
// doubles as the anonymous-id and snapshot store; the order store is routed
// per operation by whether the owning identity is authenticated.
func New(local *localstore.Store, remoteCart cartapp.Store, remoteOrders RemoteOrderStore, opts Options) *Engine {
	log := opts.Log
	if log == nil {
		log = slog.Default()
	}

	session := identityapp.NewSession(local, opts.Auth, log)

	cart := cartapp.NewReconciler(cartapp.Params{
		Session:      session,
		Local:        local,
		Remote:       remoteCart,
		LocalOrders:  local,
		RemoteOrders: remoteOrders,
		Snapshots:    local,
		Log:          log,
	})
	session.OnTransition(cart.OnIdentityTransition)

	orders := &routedOrders{local: local, remote: remoteOrders}

	merge := orderapp.NewMergeEngine(orderapp.MergeParams{
		Session:   session,
		Orders:    orders,
		Cart:      cart,
		Catalog:   opts.Catalog,
		TaxRateBP: opts.TaxRateBP,
		Log:       log,
	})

	checkout := checkoutapp.NewService(checkoutapp.Params{
		Session:       session,
		Cart:          cart,
		Orders:        orders,
		Catalog:       catalogBridge(opts.Catalog),
		TaxRateBP:     opts.TaxRateBP,
		MaxConcurrent: opts.MaxConcurrent,
		Log:           log,
	})

	return &Engine{
		Session:  session,
		Cart:     cart,
		Orders:   merge,
		Checkout: checkout,
	}
}

// Close flushes the cart write-through and releases both stores.
func (e *Engine) Close(ctx context.Context) error {
	err := e.Cart.Flush(ctx)
	if e.pool != nil {
		e.pool.Close()
	}
	if e.local != nil {
		if cerr := e.local.Close(); err == nil {
			err = cerr
		}
	}
	return err
}

// routedOrders picks the authoritative order store per operation: remote for
// authenticated identities, local for anonymous ones. The strategy is chosen
// once from the identity on the call, not from scattered fallback branches.
type routedOrders struct {
	local  orderapp.Store
	remote orderapp.Store
}

func (r *routedOrders) storeFor(id identity.ID) orderapp.Store {
	if id.Authenticated() {
		return r.remote
	}
	return r.local
}

func (r *routedOrders) Order(ctx context.Context, id identity.ID, orderID string) (order.Order, error) {
	return r.storeFor(id).Order(ctx, id, orderID)
}

func (r *routedOrders) Orders(ctx context.Context, id identity.ID) ([]order.Order, error) {
	return r.storeFor(id).Orders(ctx, id)
}

func (r *routedOrders) CreateOrder(ctx context.Context, o order.Order) (order.Order, error) {
	return r.storeFor(o.IdentityID).CreateOrder(ctx, o)
}

func (r *routedOrders) UpdateOrder(ctx context.Context, id identity.ID, orderID string, up order.Update) (order.Order, error) {
	return r.storeFor(id).UpdateOrder(ctx, id, orderID, up)
}

// catalogBridge adapts the order-side catalog port to the checkout-side one.
// The two contexts keep their own Product types at the boundary.
func catalogBridge(c Catalog) checkoutapp.CatalogReader {
	if c == nil {
		return nil
	}
	return bridged{c}
}

type bridged struct {
	c Catalog
}

func (b bridged) Product(ctx context.Context, itemID int64) (checkoutapp.Product, error) {
	p, err := b.c.Product(ctx, itemID)
	if err != nil {
		return checkoutapp.Product{}, err
	}
	return checkoutapp.Product{
		ID:         p.ID,
		Name:       p.Name,
		ImageURL:   p.ImageURL,
		UnitAmount: p.UnitAmount,
	}, nil
}
