package orders

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dineflow/tableorder/internal/store"
)

// fakeStore is an in-memory document store with the same guard semantics as
// the Postgres-backed client: guarded patches compare against the stored
// value, absent fields compare as "".
type fakeStore struct {
	docs   map[string]map[string]map[string]any
	nextID int
}

func newFakeStore() *fakeStore {
	return &fakeStore{docs: map[string]map[string]map[string]any{}}
}

func toMap(v any) map[string]any {
	b, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		panic(err)
	}
	return m
}

func (f *fakeStore) Create(_ context.Context, collection string, doc any) (string, error) {
	if f.docs[collection] == nil {
		f.docs[collection] = map[string]map[string]any{}
	}
	f.nextID++
	id := fmt.Sprintf("%s-%d", collection, f.nextID)
	f.docs[collection][id] = toMap(doc)
	return id, nil
}

func (f *fakeStore) Get(_ context.Context, collection, id string) (store.Document, error) {
	doc, ok := f.docs[collection][id]
	if !ok {
		return store.Document{}, store.ErrNotFound
	}
	b, _ := json.Marshal(doc)
	return store.Document{ID: id, Data: b}, nil
}

func (f *fakeStore) GetAll(_ context.Context, collection string) ([]store.Document, error) {
	var out []store.Document
	for id, doc := range f.docs[collection] {
		b, _ := json.Marshal(doc)
		out = append(out, store.Document{ID: id, Data: b})
	}
	return out, nil
}

func (f *fakeStore) UpdateIf(_ context.Context, collection, id, field, expect string, fields map[string]any) error {
	doc, ok := f.docs[collection][id]
	if !ok {
		return store.ErrNotFound
	}
	cur, _ := doc[field].(string)
	if cur != expect {
		return store.ErrConflict
	}
	for k, v := range toMap(fields) {
		doc[k] = v
	}
	return nil
}

func (f *fakeStore) ApplyAll(_ context.Context, patches []store.Patch) error {
	// validate everything before touching anything, like the real transaction
	for _, p := range patches {
		doc, ok := f.docs[p.Collection][p.ID]
		if !ok {
			return store.ErrNotFound
		}
		if p.IfField != "" {
			cur, _ := doc[p.IfField].(string)
			if cur != p.IfEquals {
				return store.ErrConflict
			}
		}
	}
	for _, p := range patches {
		for k, v := range toMap(p.Fields) {
			f.docs[p.Collection][p.ID][k] = v
		}
	}
	return nil
}

func (f *fakeStore) seedOrder(t *testing.T, o Order) string {
	t.Helper()
	id, err := f.Create(context.Background(), store.CollectionOrders, o)
	require.NoError(t, err)
	return id
}

func (f *fakeStore) seedMenuItem(t *testing.T, id string, available bool) {
	t.Helper()
	if f.docs[store.CollectionMenuItems] == nil {
		f.docs[store.CollectionMenuItems] = map[string]map[string]any{}
	}
	f.docs[store.CollectionMenuItems][id] = map[string]any{
		"name": "Soup", "price": 10.0, "available": available,
	}
}

func newTestEngine(f *fakeStore) *Engine {
	return &Engine{Store: f, Service: "test"}
}

func soupOrder() NewOrder {
	return NewOrder{
		Table:         "5",
		CustomerName:  "Tenzin",
		CustomerPhone: "9876543210",
		Items:         []Line{{ItemID: "i1", Name: "Soup", Price: 10, Qty: 2}},
	}
}

func TestEngineCreate(t *testing.T) {
	f := newFakeStore()
	e := newTestEngine(f)

	o, err := e.Create(context.Background(), soupOrder())
	require.NoError(t, err)
	assert.NotEmpty(t, o.ID)
	assert.Equal(t, StatusNew, o.Status)
	assert.Equal(t, 20.0, o.TotalAmount)
	assert.NotEmpty(t, o.CreatedAt)

	stored, err := e.Get(context.Background(), o.ID)
	require.NoError(t, err)
	assert.Equal(t, o.TotalAmount, stored.TotalAmount)
	assert.Equal(t, "5", stored.Table)
}

func TestEngineCreateValidation(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*NewOrder)
		wantErr error
	}{
		{"no table is view-only", func(o *NewOrder) { o.Table = "" }, ErrViewOnly},
		{"missing name", func(o *NewOrder) { o.CustomerName = " " }, ErrValidation},
		{"missing phone", func(o *NewOrder) { o.CustomerPhone = "" }, ErrValidation},
		{"no items", func(o *NewOrder) { o.Items = nil }, ErrValidation},
		{"zero qty", func(o *NewOrder) { o.Items[0].Qty = 0 }, ErrValidation},
		{"negative price", func(o *NewOrder) { o.Items[0].Price = -1 }, ErrValidation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFakeStore()
			e := newTestEngine(f)
			in := soupOrder()
			tt.mutate(&in)
			_, err := e.Create(context.Background(), in)
			assert.ErrorIs(t, err, tt.wantErr)
			// validation failures never reach the store
			assert.Empty(t, f.docs[store.CollectionOrders])
		})
	}
}

func TestEngineAcceptCompleteLifecycle(t *testing.T) {
	f := newFakeStore()
	e := newTestEngine(f)
	ctx := context.Background()

	o, err := e.Create(ctx, soupOrder())
	require.NoError(t, err)

	o, err = e.Accept(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusPending, o.Status)

	o, err = e.Complete(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, o.Status)

	// completed is terminal: a late reject must not land
	_, err = e.Reject(ctx, o.ID, nil)
	assert.ErrorIs(t, err, ErrInvalidTransition)
	assert.ErrorContains(t, err, "already completed")

	got, err := e.Get(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, got.Status)
	assert.Equal(t, 20.0, got.TotalAmount) // total frozen across transitions
}

func TestEngineRejectMarksItemsOutOfStock(t *testing.T) {
	f := newFakeStore()
	e := newTestEngine(f)
	ctx := context.Background()

	f.seedMenuItem(t, "i1", true)
	f.seedMenuItem(t, "i2", false) // already out: marking again is idempotent

	o, err := e.Create(ctx, soupOrder())
	require.NoError(t, err)

	o, err = e.Reject(ctx, o.ID, []string{"i1", "i2"})
	require.NoError(t, err)
	assert.Equal(t, StatusRejected, o.Status)

	assert.Equal(t, false, f.docs[store.CollectionMenuItems]["i1"]["available"])
	assert.Equal(t, false, f.docs[store.CollectionMenuItems]["i2"]["available"])
}

func TestEngineRejectAtomicWithStock(t *testing.T) {
	f := newFakeStore()
	e := newTestEngine(f)
	ctx := context.Background()

	f.seedMenuItem(t, "i1", true)

	o, err := e.Create(ctx, soupOrder())
	require.NoError(t, err)

	// one referenced item vanished: neither the status nor the stock flag of
	// the surviving item may change
	_, err = e.Reject(ctx, o.ID, []string{"i1", "gone"})
	assert.ErrorIs(t, err, store.ErrNotFound)

	got, err := e.Get(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusNew, got.Status)
	assert.Equal(t, true, f.docs[store.CollectionMenuItems]["i1"]["available"])
}

func TestEngineRejectFromPending(t *testing.T) {
	f := newFakeStore()
	e := newTestEngine(f)
	ctx := context.Background()

	o, err := e.Create(ctx, soupOrder())
	require.NoError(t, err)
	_, err = e.Accept(ctx, o.ID)
	require.NoError(t, err)

	o, err = e.Reject(ctx, o.ID, nil)
	require.NoError(t, err)
	assert.Equal(t, StatusRejected, o.Status)
}

func TestEngineRacingTransitions(t *testing.T) {
	f := newFakeStore()
	e := newTestEngine(f)
	ctx := context.Background()

	o, err := e.Create(ctx, soupOrder())
	require.NoError(t, err)

	// operator A rejects first
	_, err = e.Reject(ctx, o.ID, nil)
	require.NoError(t, err)

	// operator B accepts from a stale board; the guard refuses to resurrect
	_, err = e.Accept(ctx, o.ID)
	assert.ErrorIs(t, err, ErrInvalidTransition)

	got, err := e.Get(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusRejected, got.Status)
}

// staleReadStore serves reads from a stale snapshot while writes see the live
// data, mimicking a transition raced by another operator between the load and
// the guarded update.
type staleReadStore struct {
	*fakeStore
	stale Status
}

func (s *staleReadStore) Get(ctx context.Context, collection, id string) (store.Document, error) {
	d, err := s.fakeStore.Get(ctx, collection, id)
	if err != nil {
		return d, err
	}
	var m map[string]any
	_ = json.Unmarshal(d.Data, &m)
	m["status"] = string(s.stale)
	d.Data, _ = json.Marshal(m)
	return d, nil
}

func TestEngineGuardCatchesStaleRead(t *testing.T) {
	f := newFakeStore()
	ctx := context.Background()

	id := f.seedOrder(t, Order{
		Table: "4", CustomerName: "a", CustomerPhone: "b",
		Items:     []Line{{ItemID: "i1", Name: "Tea", Price: 5, Qty: 1}},
		Status:    StatusNew,
		CreatedAt: "2026-08-30T10:00:00Z",
	})
	// another operator accepted in the meantime
	f.docs[store.CollectionOrders][id]["status"] = string(StatusPending)

	e := &Engine{Store: &staleReadStore{fakeStore: f, stale: StatusNew}, Service: "test"}
	_, err := e.Accept(ctx, id)
	assert.ErrorIs(t, err, store.ErrConflict)
	assert.Equal(t, string(StatusPending), f.docs[store.CollectionOrders][id]["status"])
}

func TestEngineNormalizesLegacyStatus(t *testing.T) {
	f := newFakeStore()
	e := newTestEngine(f)
	ctx := context.Background()

	// legacy record with no status field at all
	id := f.seedOrder(t, Order{
		Table: "2", CustomerName: "a", CustomerPhone: "b",
		Items:       []Line{{ItemID: "i1", Name: "Tea", Price: 5, Qty: 1}},
		TotalAmount: 5, CreatedAt: "2026-08-30T10:00:00Z",
	})
	delete(f.docs[store.CollectionOrders][id], "status")

	got, err := e.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, StatusNew, got.Status)

	// and it can be accepted like any fresh order
	o, err := e.Accept(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, StatusPending, o.Status)
}

func TestEngineListSortsNewestFirst(t *testing.T) {
	f := newFakeStore()
	e := newTestEngine(f)
	ctx := context.Background()

	f.seedOrder(t, Order{Table: "1", CreatedAt: "2026-08-30T09:00:00Z", Status: StatusNew})
	f.seedOrder(t, Order{Table: "2", CreatedAt: "2026-08-30T11:00:00Z", Status: StatusNew})
	f.seedOrder(t, Order{Table: "3", CreatedAt: "2026-08-30T10:00:00Z", Status: StatusNew})

	all, err := e.List(ctx)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "2", all[0].Table)
	assert.Equal(t, "3", all[1].Table)
	assert.Equal(t, "1", all[2].Table)
}

func TestStockToggleLeavesOrderLinesAlone(t *testing.T) {
	f := newFakeStore()
	e := newTestEngine(f)
	ctx := context.Background()

	f.seedMenuItem(t, "i1", true)
	o, err := e.Create(ctx, soupOrder())
	require.NoError(t, err)

	require.NoError(t, f.ApplyAll(ctx, []store.Patch{{
		Collection: store.CollectionMenuItems, ID: "i1",
		Fields: map[string]any{"available": false, "price": 99.0},
	}}))

	got, err := e.Get(ctx, o.ID)
	require.NoError(t, err)
	require.Len(t, got.Items, 1)
	assert.Equal(t, 10.0, got.Items[0].Price) // snapshot survives the menu edit
	assert.Equal(t, 20.0, got.TotalAmount)
}
