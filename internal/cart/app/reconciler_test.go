package app

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/efraindeloa/breakfast2-sub002/internal/cart/domain"
	identity "github.com/efraindeloa/breakfast2-sub002/internal/identity/domain"
	order "github.com/efraindeloa/breakfast2-sub002/internal/order/domain"
	"github.com/efraindeloa/breakfast2-sub002/pkg/logger"
)

// --- fakes shared by the reconciler and migration tests ---

type fakeSession struct {
	mu sync.Mutex
	id identity.ID
}

func (s *fakeSession) Current(ctx context.Context) identity.ID {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.id
}

type fakeCartStore struct {
	mu     sync.Mutex
	carts  map[identity.ID][]domain.Line
	err    error
	writes int
	block  chan struct{} // when set, WriteCart waits on it
}

func newFakeCartStore() *fakeCartStore {
	return &fakeCartStore{carts: map[identity.ID][]domain.Line{}}
}

func (s *fakeCartStore) ReadCart(ctx context.Context, id identity.ID) ([]domain.Line, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	return domain.Clone(s.carts[id]), nil
}

func (s *fakeCartStore) WriteCart(ctx context.Context, id identity.ID, lines []domain.Line) error {
	s.mu.Lock()
	block := s.block
	s.mu.Unlock()
	if block != nil {
		<-block
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.writes++
	if s.err != nil {
		return s.err
	}
	if len(lines) == 0 {
		delete(s.carts, id)
		return nil
	}
	s.carts[id] = domain.Clone(lines)
	return nil
}

func (s *fakeCartStore) cart(id identity.ID) []domain.Line {
	s.mu.Lock()
	defer s.mu.Unlock()
	return domain.Clone(s.carts[id])
}

func (s *fakeCartStore) writeCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writes
}

func (s *fakeCartStore) setErr(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
}

type fakeOrderSync struct {
	mu     sync.Mutex
	orders map[identity.ID]map[string]order.Order
	err    error
}

func newFakeOrderSync() *fakeOrderSync {
	return &fakeOrderSync{orders: map[identity.ID]map[string]order.Order{}}
}

func (s *fakeOrderSync) Orders(ctx context.Context, id identity.ID) ([]order.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	var out []order.Order
	for _, o := range s.orders[id] {
		out = append(out, o.Clone())
	}
	return out, nil
}

func (s *fakeOrderSync) SaveOrder(ctx context.Context, id identity.ID, o order.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	if s.orders[id] == nil {
		s.orders[id] = map[string]order.Order{}
	}
	s.orders[id][o.ID] = o.Clone()
	return nil
}

func (s *fakeOrderSync) ReplaceOrders(ctx context.Context, id identity.ID, orders []order.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(orders) == 0 {
		delete(s.orders, id)
		return nil
	}
	m := map[string]order.Order{}
	for _, o := range orders {
		m[o.ID] = o.Clone()
	}
	s.orders[id] = m
	return nil
}

func (s *fakeOrderSync) count(id identity.ID) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.orders[id])
}

type fakeSnapshots struct {
	mu     sync.Mutex
	carts  map[identity.ID][]domain.Line
	orders map[identity.ID][]order.Order
}

func newFakeSnapshots() *fakeSnapshots {
	return &fakeSnapshots{
		carts:  map[identity.ID][]domain.Line{},
		orders: map[identity.ID][]order.Order{},
	}
}

func (s *fakeSnapshots) PendingCart(ctx context.Context, anon identity.ID) ([]domain.Line, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return domain.Clone(s.carts[anon]), nil
}

func (s *fakeSnapshots) WritePendingCart(ctx context.Context, anon identity.ID, lines []domain.Line) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(lines) == 0 {
		delete(s.carts, anon)
		return nil
	}
	s.carts[anon] = domain.Clone(lines)
	return nil
}

func (s *fakeSnapshots) ClearPendingCart(ctx context.Context, anon identity.ID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.carts, anon)
	return nil
}

func (s *fakeSnapshots) PendingOrders(ctx context.Context, anon identity.ID) ([]order.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]order.Order, 0, len(s.orders[anon]))
	for _, o := range s.orders[anon] {
		out = append(out, o.Clone())
	}
	return out, nil
}

func (s *fakeSnapshots) WritePendingOrders(ctx context.Context, anon identity.ID, orders []order.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(orders) == 0 {
		delete(s.orders, anon)
		return nil
	}
	cp := make([]order.Order, 0, len(orders))
	for _, o := range orders {
		cp = append(cp, o.Clone())
	}
	s.orders[anon] = cp
	return nil
}

func (s *fakeSnapshots) ClearPendingOrders(ctx context.Context, anon identity.ID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.orders, anon)
	return nil
}

func (s *fakeSnapshots) pendingCart(anon identity.ID) []domain.Line {
	s.mu.Lock()
	defer s.mu.Unlock()
	return domain.Clone(s.carts[anon])
}

type fixture struct {
	session   *fakeSession
	local     *fakeCartStore
	remote    *fakeCartStore
	localOrd  *fakeOrderSync
	remoteOrd *fakeOrderSync
	snapshots *fakeSnapshots
	rec       *Reconciler
}

func newFixture(id identity.ID) *fixture {
	f := &fixture{
		session:   &fakeSession{id: id},
		local:     newFakeCartStore(),
		remote:    newFakeCartStore(),
		localOrd:  newFakeOrderSync(),
		remoteOrd: newFakeOrderSync(),
		snapshots: newFakeSnapshots(),
	}
	f.rec = NewReconciler(Params{
		Session:      f.session,
		Local:        f.local,
		Remote:       f.remote,
		LocalOrders:  f.localOrd,
		RemoteOrders: f.remoteOrd,
		Snapshots:    f.snapshots,
		Log:          logger.Nop(),
	})
	return f
}

// --- reconciler behavior ---

const anonID = identity.ID("anon-11111111-1111-1111-1111-111111111111")

func TestAddItemCoalesces(t *testing.T) {
	ctx := context.Background()
	f := newFixture(anonID)

	f.rec.AddItem(ctx, domain.Line{ItemID: 1, UnitAmount: 1000, Quantity: 2})
	f.rec.AddItem(ctx, domain.Line{ItemID: 1, UnitAmount: 1000, Quantity: 3})
	f.rec.AddItem(ctx, domain.Line{ItemID: 1, Notes: "spicy", UnitAmount: 1000, Quantity: 1})

	lines := f.rec.Lines()
	require.Len(t, lines, 2)
	require.Equal(t, int32(5), lines[0].Quantity)
	require.Equal(t, int32(6), f.rec.ItemCount())

	require.NoError(t, f.rec.Flush(ctx))
	require.Equal(t, lines, f.local.cart(anonID))
	require.Empty(t, f.remote.cart(anonID))
}

func TestAddItemDefaultsQuantityToOne(t *testing.T) {
	ctx := context.Background()
	f := newFixture(anonID)

	f.rec.AddItem(ctx, domain.Line{ItemID: 7})

	require.Equal(t, int32(1), f.rec.ItemCount())
}

func TestUpdateQuantityForKeyToZeroEmptiesCart(t *testing.T) {
	ctx := context.Background()
	f := newFixture(anonID)

	f.rec.AddItem(ctx, domain.Line{ItemID: 1, Notes: "", Quantity: 2})
	f.rec.UpdateQuantityForKey(ctx, 1, "", 0)

	require.Empty(t, f.rec.Lines())
	require.NoError(t, f.rec.Flush(ctx))
	require.Empty(t, f.local.cart(anonID))
}

func TestUpdateQuantityScoping(t *testing.T) {
	ctx := context.Background()
	f := newFixture(anonID)

	f.rec.AddItem(ctx, domain.Line{ItemID: 1, Notes: "", Quantity: 2})
	f.rec.AddItem(ctx, domain.Line{ItemID: 1, Notes: "spicy", Quantity: 1})

	t.Run("for key touches one variant", func(t *testing.T) {
		lines := f.rec.UpdateQuantityForKey(ctx, 1, "spicy", 4)
		require.Equal(t, int32(2), lines[0].Quantity)
		require.Equal(t, int32(4), lines[1].Quantity)
	})

	t.Run("for all variants touches every one", func(t *testing.T) {
		lines := f.rec.UpdateQuantityForAllVariants(ctx, 1, 1)
		require.Equal(t, int32(1), lines[0].Quantity)
		require.Equal(t, int32(1), lines[1].Quantity)
	})
}

func TestAuthenticatedIdentityWritesRemote(t *testing.T) {
	ctx := context.Background()
	f := newFixture(identity.ID("user-42"))

	f.rec.AddItem(ctx, domain.Line{ItemID: 3, Quantity: 1})
	require.NoError(t, f.rec.Flush(ctx))

	require.Len(t, f.remote.cart("user-42"), 1)
	require.Empty(t, f.local.cart("user-42"))
}

func TestLoadReadsAuthoritativeStore(t *testing.T) {
	ctx := context.Background()
	f := newFixture(anonID)
	f.local.carts[anonID] = []domain.Line{
		{ItemID: 5, Quantity: 1},
		{ItemID: 5, Quantity: 2}, // stored uncoalesced, load repairs it
	}

	lines, err := f.rec.Load(ctx)
	require.NoError(t, err)
	require.Len(t, lines, 1)
	require.Equal(t, int32(3), lines[0].Quantity)
}

func TestWriteFailureFailsOpen(t *testing.T) {
	ctx := context.Background()
	f := newFixture(anonID)
	boom := errors.New("disk full")
	f.local.setErr(boom)

	f.rec.AddItem(ctx, domain.Line{ItemID: 1, Quantity: 1})

	// The cart keeps the user's intent and the failure is a non-blocking
	// indicator, not a revert.
	require.ErrorIs(t, f.rec.Flush(ctx), boom)
	require.Len(t, f.rec.Lines(), 1)
	require.ErrorIs(t, f.rec.WriteErr(), boom)

	// Next mutation retries and converges.
	f.local.setErr(nil)
	f.rec.AddItem(ctx, domain.Line{ItemID: 2, Quantity: 1})
	require.NoError(t, f.rec.Flush(ctx))
	require.Len(t, f.local.cart(anonID), 2)
}

func TestWriteBurstsCoalesce(t *testing.T) {
	ctx := context.Background()
	f := newFixture(anonID)

	release := make(chan struct{})
	f.local.mu.Lock()
	f.local.block = release
	f.local.mu.Unlock()

	// First mutation starts a write that parks on the gate; the rest land in
	// memory while it is in flight.
	f.rec.AddItem(ctx, domain.Line{ItemID: 1, Quantity: 1})
	f.rec.AddItem(ctx, domain.Line{ItemID: 2, Quantity: 1})
	f.rec.AddItem(ctx, domain.Line{ItemID: 3, Quantity: 1})

	close(release)
	require.NoError(t, f.rec.Flush(ctx))

	// The store converged on the final snapshot; the burst collapsed into the
	// in-flight write plus one trailing re-write.
	require.Equal(t, f.rec.Lines(), f.local.cart(anonID))
	require.LessOrEqual(t, f.local.writeCount(), 3)
}

func TestConcurrentAddsStaySerialized(t *testing.T) {
	ctx := context.Background()
	f := newFixture(anonID)

	const n = 50
	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < n; i++ {
		g.Go(func() error {
			f.rec.AddItem(gctx, domain.Line{ItemID: 8, Notes: "no cheese", Quantity: 1})
			return nil
		})
	}
	require.NoError(t, g.Wait())
	require.NoError(t, f.rec.Flush(ctx))

	lines := f.local.cart(anonID)
	require.Len(t, lines, 1)
	require.Equal(t, int32(n), lines[0].Quantity)
}
