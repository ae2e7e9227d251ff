package cart_test

import (
	"context"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/cartstore/internal/cart"
	"github.com/vladislavdragonenkov/cartstore/internal/domain"
	"github.com/vladislavdragonenkov/cartstore/internal/persistence"
	"github.com/vladislavdragonenkov/cartstore/internal/storage/memory"
)

type fakePersister struct {
	mu       sync.Mutex
	hydrated []domain.CartLine
	writes   [][]domain.CartLine
}

func (p *fakePersister) Hydrate(context.Context) []domain.CartLine {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.hydrated
}

func (p *fakePersister) Persist(lines []domain.CartLine) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.writes = append(p.writes, lines)
}

// gatedPersister блокирует Hydrate после старта корзины, пока тест не откроет gate.
type gatedPersister struct {
	fakePersister
	armed   bool
	entered chan struct{}
	gate    chan struct{}
}

func (p *gatedPersister) Hydrate(ctx context.Context) []domain.CartLine {
	p.mu.Lock()
	armed := p.armed
	p.mu.Unlock()
	if armed {
		close(p.entered)
		<-p.gate
	}
	return p.fakePersister.Hydrate(ctx)
}

func (p *fakePersister) writeCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.writes)
}

func (p *fakePersister) lastWrite() []domain.CartLine {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.writes) == 0 {
		return nil
	}
	return p.writes[len(p.writes)-1]
}

type fakeRecorder struct {
	mu        sync.Mutex
	mutations map[string]int
	lastItems int
}

func (r *fakeRecorder) RecordMutation(op string, applied bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.mutations == nil {
		r.mutations = make(map[string]int)
	}
	if applied {
		r.mutations[op]++
	}
}

func (r *fakeRecorder) ObserveCart(_ int, itemCount int, _ float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lastItems = itemCount
}

func catTee() domain.Product {
	return domain.Product{
		ID:    "p1",
		Slug:  "cat",
		Title: "Cat Tee",
		Price: decimal.RequireFromString("24.99"),
	}
}

func newStore(t *testing.T, opts ...cart.Option) *cart.Store {
	t.Helper()
	store := cart.New(context.Background(), opts...)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestStore_ScenarioCatTee(t *testing.T) {
	store := newStore(t)
	m := domain.SizeOf("M")

	snap := store.AddItem(catTee(), m, 2)
	require.Equal(t, 1, snap.LineCount())
	line, ok := snap.Line("p1", m)
	require.True(t, ok)
	assert.Equal(t, 2, line.Quantity)
	assert.True(t, line.LineTotal().Equal(decimal.RequireFromString("49.98")), "line total %s", line.LineTotal())

	snap = store.AddItem(catTee(), m, 1)
	require.Equal(t, 1, snap.LineCount(), "merge must not create a second line")
	line, _ = snap.Line("p1", m)
	assert.Equal(t, 3, line.Quantity)

	snap = store.UpdateQuantity("p1", m, 1)
	line, _ = snap.Line("p1", m)
	assert.Equal(t, 1, line.Quantity)

	snap = store.UpdateQuantity("p1", m, 0)
	_, ok = snap.Line("p1", m)
	assert.False(t, ok)
	assert.True(t, snap.IsEmpty())
}

func TestStore_AddItemMergeIsCapped(t *testing.T) {
	cases := []struct {
		name string
		adds []int
		want int
	}{
		{name: "single", adds: []int{1}, want: 1},
		{name: "sum below cap", adds: []int{10, 20, 30}, want: 60},
		{name: "sum exactly cap", adds: []int{50, 49}, want: 99},
		{name: "sum above cap", adds: []int{60, 60}, want: 99},
		{name: "single above cap", adds: []int{150}, want: 99},
		{name: "non-positive ignored", adds: []int{5, 0, -3}, want: 5},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			store := newStore(t)
			for _, qty := range tc.adds {
				store.AddItem(catTee(), domain.SizeOf("L"), qty)
			}

			snap := store.Snapshot()
			require.Equal(t, 1, snap.LineCount())
			line, ok := snap.Line("p1", domain.SizeOf("L"))
			require.True(t, ok)
			assert.Equal(t, tc.want, line.Quantity)
		})
	}
}

func TestStore_AddItemNonPositiveOnNewKeyCreatesNothing(t *testing.T) {
	store := newStore(t)

	snap := store.AddItem(catTee(), domain.NoSize, 0)
	assert.True(t, snap.IsEmpty())
	assert.False(t, snap.Change().Applied)

	snap = store.AddItem(catTee(), domain.NoSize, -1)
	assert.True(t, snap.IsEmpty())
}

func TestStore_AddItemRejectsInvalidProduct(t *testing.T) {
	store := newStore(t)

	noID := catTee()
	noID.ID = ""
	negative := catTee()
	negative.Price = decimal.RequireFromString("-1")

	store.AddItem(noID, domain.NoSize, 1)
	snap := store.AddItem(negative, domain.NoSize, 1)

	assert.True(t, snap.IsEmpty())
}

func TestStore_UpdateQuantityBounds(t *testing.T) {
	cases := []struct {
		name    string
		qty     int
		want    int
		present bool
	}{
		{name: "zero removes", qty: 0, present: false},
		{name: "negative removes", qty: -5, present: false},
		{name: "above cap clamps", qty: 150, want: 99, present: true},
		{name: "direct set", qty: 7, want: 7, present: true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			store := newStore(t)
			store.AddItem(catTee(), domain.SizeOf("S"), 3)

			snap := store.UpdateQuantity("p1", domain.SizeOf("S"), tc.qty)
			line, ok := snap.Line("p1", domain.SizeOf("S"))
			require.Equal(t, tc.present, ok)
			if tc.present {
				assert.Equal(t, tc.want, line.Quantity)
			}
		})
	}
}

func TestStore_UpdateQuantityMissingKeyStillNotifies(t *testing.T) {
	store := newStore(t)

	var calls int
	unsubscribe := store.Subscribe(func(cart.Snapshot) { calls++ })
	defer unsubscribe()

	snap := store.UpdateQuantity("ghost", domain.NoSize, 3)

	assert.Equal(t, 1, calls)
	assert.True(t, snap.IsEmpty())
	assert.False(t, snap.Change().Applied)
}

func TestStore_RemoveItemNullSizeIsExact(t *testing.T) {
	store := newStore(t)
	store.AddItem(catTee(), domain.SizeOf("M"), 1)

	snap := store.RemoveItem("p1", domain.NoSize)
	_, ok := snap.Line("p1", domain.SizeOf("M"))
	assert.True(t, ok, "removing the null-size key must keep the sized line")

	store.AddItem(catTee(), domain.NoSize, 2)
	snap = store.RemoveItem("p1", domain.NoSize)
	_, ok = snap.Line("p1", domain.NoSize)
	assert.False(t, ok)
	_, ok = snap.Line("p1", domain.SizeOf("M"))
	assert.True(t, ok)
	assert.Equal(t, 1, snap.LineCount())
}

func TestStore_EmptyStringSizeIsNotNull(t *testing.T) {
	store := newStore(t)
	store.AddItem(catTee(), domain.SizeOf(""), 1)
	snap := store.AddItem(catTee(), domain.NoSize, 1)

	assert.Equal(t, 2, snap.LineCount())
}

func TestStore_InsertionOrderAndAggregates(t *testing.T) {
	store := newStore(t)
	mug := domain.Product{ID: "p2", Slug: "mug", Title: "Mug", Price: decimal.RequireFromString("9.5")}
	sticker := domain.Product{ID: "p3", Slug: "sticker", Title: "Sticker", Price: decimal.RequireFromString("0.333")}

	store.AddItem(mug, domain.NoSize, 2)
	store.AddItem(catTee(), domain.SizeOf("M"), 1)
	snap := store.AddItem(sticker, domain.NoSize, 3)

	lines := snap.Lines()
	require.Len(t, lines, 3)
	assert.Equal(t, "p2", lines[0].ProductID)
	assert.Equal(t, "p1", lines[1].ProductID)
	assert.Equal(t, "p3", lines[2].ProductID)

	assert.Equal(t, 3, snap.LineCount())
	assert.Equal(t, 6, snap.ItemCount())
	// 19.00 + 24.99 + round(0.999) = 19.00 + 24.99 + 1.00
	assert.True(t, snap.Subtotal().Equal(decimal.RequireFromString("44.99")), "subtotal %s", snap.Subtotal())

	snap = store.RemoveItem("p1", domain.SizeOf("M"))
	lines = snap.Lines()
	require.Len(t, lines, 2)
	assert.Equal(t, "p2", lines[0].ProductID)
	assert.Equal(t, "p3", lines[1].ProductID)

	snap = store.AddItem(catTee(), domain.SizeOf("M"), 1)
	assert.Equal(t, "p1", snap.Lines()[2].ProductID, "re-added line goes to the end")
}

func TestStore_SubtotalRoundsPerLine(t *testing.T) {
	store := newStore(t)
	for _, id := range []string{"a", "b", "c"} {
		store.AddItem(domain.Product{ID: id, Price: decimal.RequireFromString("0.005")}, domain.NoSize, 1)
	}

	// Каждая позиция 0.005 → 0.01; округление суммы дало бы 0.02.
	assert.True(t, store.Snapshot().Subtotal().Equal(decimal.RequireFromString("0.03")))
}

func TestStore_ClearResetsAggregates(t *testing.T) {
	persister := &fakePersister{}
	store := newStore(t, cart.WithPersister(persister))
	store.AddItem(catTee(), domain.SizeOf("M"), 4)

	snap := store.Clear()

	assert.True(t, snap.IsEmpty())
	assert.Equal(t, 0, snap.ItemCount())
	assert.True(t, snap.Subtotal().IsZero())
	assert.Empty(t, persister.lastWrite())
	assert.Equal(t, 2, persister.writeCount())
}

func TestStore_SnapshotIsIdempotentAndIsolated(t *testing.T) {
	store := newStore(t)
	product := catTee()
	product.PrimaryImage = &domain.Image{ID: "img", URL: "https://cdn.example/cat.png"}
	store.AddItem(product, domain.SizeOf("M"), 2)

	first := store.Snapshot()
	second := store.Snapshot()
	assert.Equal(t, first, second)

	lines := first.Lines()
	lines[0].Quantity = 50
	lines[0].PrimaryImage.URL = "mutated"

	fresh := store.Snapshot()
	line, _ := fresh.Line("p1", domain.SizeOf("M"))
	assert.Equal(t, 2, line.Quantity)
	assert.Equal(t, "https://cdn.example/cat.png", line.PrimaryImage.URL)
	assert.Equal(t, first, fresh)
}

func TestStore_NilImageIsAllowed(t *testing.T) {
	store := newStore(t)
	snap := store.AddItem(catTee(), domain.NoSize, 1)

	line, ok := snap.Line("p1", domain.NoSize)
	require.True(t, ok)
	assert.Nil(t, line.PrimaryImage)
}

func TestStore_WriteThroughOnlyOnAppliedChanges(t *testing.T) {
	persister := &fakePersister{}
	store := newStore(t, cart.WithPersister(persister))

	store.AddItem(catTee(), domain.SizeOf("M"), 99)
	require.Equal(t, 1, persister.writeCount())

	store.AddItem(catTee(), domain.SizeOf("M"), 1) // уже на лимите
	store.UpdateQuantity("ghost", domain.NoSize, 2)
	store.RemoveItem("ghost", domain.NoSize)
	assert.Equal(t, 1, persister.writeCount())

	store.UpdateQuantity("p1", domain.SizeOf("M"), 5)
	assert.Equal(t, 2, persister.writeCount())
	require.Len(t, persister.lastWrite(), 1)
	assert.Equal(t, 5, persister.lastWrite()[0].Quantity)
}

func TestStore_HydratesFromPersister(t *testing.T) {
	persister := &fakePersister{hydrated: []domain.CartLine{
		domain.NewCartLine(catTee(), domain.SizeOf("M"), 3),
		domain.NewCartLine(catTee(), domain.SizeOf("M"), 1), // дубликат отбрасывается
		{ProductID: "bad", Price: decimal.Zero, Quantity: 0},
	}}

	store := newStore(t, cart.WithPersister(persister))
	snap := store.Snapshot()

	require.Equal(t, 1, snap.LineCount())
	line, _ := snap.Line("p1", domain.SizeOf("M"))
	assert.Equal(t, 3, line.Quantity)
	assert.Equal(t, 0, persister.writeCount(), "hydration must not write back")
}

func TestStore_ResyncReplacesStateWithoutWriteBack(t *testing.T) {
	persister := &fakePersister{}
	store := newStore(t, cart.WithPersister(persister))
	store.AddItem(catTee(), domain.NoSize, 1)
	writes := persister.writeCount()

	persister.mu.Lock()
	persister.hydrated = []domain.CartLine{domain.NewCartLine(catTee(), domain.SizeOf("XL"), 4)}
	persister.mu.Unlock()

	var notified cart.Snapshot
	unsubscribe := store.Subscribe(func(s cart.Snapshot) { notified = s })
	defer unsubscribe()

	snap := store.Resync(context.Background())

	assert.Equal(t, writes, persister.writeCount())
	assert.Equal(t, cart.OpResync, notified.Change().Op)
	require.Equal(t, 1, snap.LineCount())
	line, _ := snap.Line("p1", domain.SizeOf("XL"))
	assert.Equal(t, 4, line.Quantity)
}

func TestStore_SubscribeAndUnsubscribe(t *testing.T) {
	store := newStore(t)

	var got []cart.Snapshot
	unsubscribe := store.Subscribe(func(s cart.Snapshot) { got = append(got, s) })

	store.AddItem(catTee(), domain.NoSize, 1)
	store.UpdateQuantity("p1", domain.NoSize, 4)
	unsubscribe()
	unsubscribe()
	store.Clear()

	require.Len(t, got, 2)
	assert.Equal(t, cart.OpAdd, got[0].Change().Op)
	assert.Equal(t, cart.OpUpdate, got[1].Change().Op)
	assert.Equal(t, 4, got[1].Change().Quantity)
	assert.Less(t, got[0].Revision(), got[1].Revision())
}

func TestStore_ListenerMayCallBackIntoStore(t *testing.T) {
	store := newStore(t)

	var reentered bool
	store.Subscribe(func(s cart.Snapshot) {
		if reentered {
			return
		}
		reentered = true
		_ = store.Snapshot()
		store.AddItem(catTee(), domain.SizeOf("S"), 1)
	})

	store.AddItem(catTee(), domain.NoSize, 1)

	assert.Equal(t, 2, store.Snapshot().LineCount())
}

func TestStore_ListenerPanicDoesNotBreakStore(t *testing.T) {
	store := newStore(t)

	var second int
	store.Subscribe(func(cart.Snapshot) { panic("boom") })
	store.Subscribe(func(cart.Snapshot) { second++ })

	assert.NotPanics(t, func() {
		store.AddItem(catTee(), domain.NoSize, 1)
	})
	assert.Equal(t, 1, second)
	assert.Equal(t, 1, store.Snapshot().LineCount())
}

func TestStore_ConcurrentAddsAreAtomic(t *testing.T) {
	store := newStore(t)

	const workers = 40
	var wg sync.WaitGroup
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()
			store.AddItem(catTee(), domain.SizeOf("M"), 2)
		}()
	}
	wg.Wait()

	line, ok := store.Snapshot().Line("p1", domain.SizeOf("M"))
	require.True(t, ok)
	assert.Equal(t, workers*2, line.Quantity)
	assert.Equal(t, 1, store.Snapshot().LineCount())
}

func TestStore_CloseStopsMutationsAndListeners(t *testing.T) {
	persister := &fakePersister{}
	store := cart.New(context.Background(), cart.WithPersister(persister))
	store.AddItem(catTee(), domain.NoSize, 1)

	var calls int
	store.Subscribe(func(cart.Snapshot) { calls++ })

	require.NoError(t, store.Close())
	require.NoError(t, store.Close())

	snap := store.AddItem(catTee(), domain.NoSize, 5)
	line, _ := snap.Line("p1", domain.NoSize)
	assert.Equal(t, 1, line.Quantity)
	assert.Equal(t, 0, calls)
	assert.Equal(t, 1, persister.writeCount())

	unsubscribe := store.Subscribe(func(cart.Snapshot) { calls++ })
	unsubscribe()
}

func TestStore_RecorderReceivesMutations(t *testing.T) {
	recorder := &fakeRecorder{}
	store := newStore(t, cart.WithRecorder(recorder))

	store.AddItem(catTee(), domain.NoSize, 2)
	store.AddItem(catTee(), domain.SizeOf("M"), 3)
	store.RemoveItem("ghost", domain.NoSize)

	recorder.mu.Lock()
	defer recorder.mu.Unlock()
	assert.Equal(t, 2, recorder.mutations["add"])
	assert.Equal(t, 0, recorder.mutations["remove"])
	assert.Equal(t, 5, recorder.lastItems)
}

func TestStore_ResyncDoesNotLoseConcurrentMutation(t *testing.T) {
	persister := &gatedPersister{
		entered: make(chan struct{}),
		gate:    make(chan struct{}),
	}
	store := newStore(t, cart.WithPersister(persister))

	persister.mu.Lock()
	persister.armed = true
	persister.mu.Unlock()

	resynced := make(chan struct{})
	go func() {
		defer close(resynced)
		store.Resync(context.Background())
	}()
	<-persister.entered

	added := make(chan struct{})
	go func() {
		defer close(added)
		store.AddItem(catTee(), domain.NoSize, 1)
	}()

	close(persister.gate)
	<-resynced
	<-added

	snap := store.Snapshot()
	require.Equal(t, 1, snap.LineCount(), "add committed during resync must survive")
	require.Len(t, persister.lastWrite(), 1)
	assert.Equal(t, snap.Lines()[0].Key(), persister.lastWrite()[0].Key())
}

func TestStore_ConcurrentNotificationsKeepRevisionOrder(t *testing.T) {
	store := newStore(t)
	store.AddItem(catTee(), domain.NoSize, 1)

	var (
		mu        sync.Mutex
		revisions []uint64
	)
	store.Subscribe(func(s cart.Snapshot) {
		mu.Lock()
		revisions = append(revisions, s.Revision())
		mu.Unlock()
	})

	const (
		workers = 8
		calls   = 500
	)
	var wg sync.WaitGroup
	wg.Add(workers)
	for w := 0; w < workers; w++ {
		go func(w int) {
			defer wg.Done()
			for i := 0; i < calls; i++ {
				store.UpdateQuantity("p1", domain.NoSize, 1+(w+i)%domain.MaxItemQuantity)
			}
		}(w)
	}
	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, revisions, workers*calls)
	for i := 1; i < len(revisions); i++ {
		require.Less(t, revisions[i-1], revisions[i], "delivery %d out of order", i)
	}
}

func TestStore_ReloadKeepsLineWithImageWithoutID(t *testing.T) {
	slot := memory.NewSlot()
	first := cart.New(context.Background(), cart.WithPersister(persistence.NewAdapter(slot)))

	tee := catTee()
	tee.PrimaryImage = &domain.Image{URL: "https://img/cat.png"}
	first.AddItem(tee, domain.SizeOf("M"), 2)
	first.AddItem(domain.Product{ID: "p2", Title: "Mug", Price: decimal.RequireFromString("9.50")}, domain.NoSize, 1)
	require.NoError(t, first.Close())

	reloaded := newStore(t, cart.WithPersister(persistence.NewAdapter(slot)))
	snap := reloaded.Snapshot()

	require.Equal(t, 2, snap.LineCount())
	line, ok := snap.Line("p1", domain.SizeOf("M"))
	require.True(t, ok)
	require.NotNil(t, line.PrimaryImage)
	assert.Equal(t, "https://img/cat.png", line.PrimaryImage.URL)
	assert.Empty(t, line.PrimaryImage.ID)
}
