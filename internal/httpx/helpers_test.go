package httpx

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dineflow/tableorder/internal/auth"
	"github.com/dineflow/tableorder/internal/menu"
	"github.com/dineflow/tableorder/internal/orders"
	"github.com/dineflow/tableorder/internal/store"
)

// fakeStore backs both the menu service and the order engine in handler
// tests, with the same guard semantics as the real client.
type fakeStore struct {
	docs   map[string]map[string]map[string]any
	nextID int
}

func newFakeStore() *fakeStore {
	return &fakeStore{docs: map[string]map[string]map[string]any{}}
}

func asMap(v any) map[string]any {
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
	f.docs[collection][id] = asMap(doc)
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

func (f *fakeStore) Update(_ context.Context, collection, id string, fields map[string]any) error {
	doc, ok := f.docs[collection][id]
	if !ok {
		return store.ErrNotFound
	}
	for k, v := range asMap(fields) {
		doc[k] = v
	}
	return nil
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
	for k, v := range asMap(fields) {
		doc[k] = v
	}
	return nil
}

func (f *fakeStore) ApplyAll(_ context.Context, patches []store.Patch) error {
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
		for k, v := range asMap(p.Fields) {
			f.docs[p.Collection][p.ID][k] = v
		}
	}
	return nil
}

type fakeCarts struct {
	carts map[string][]orders.Line
}

func newFakeCarts() *fakeCarts { return &fakeCarts{carts: map[string][]orders.Line{}} }

func (f *fakeCarts) Get(_ context.Context, session string) ([]orders.Line, error) {
	return f.carts[session], nil
}

func (f *fakeCarts) Put(_ context.Context, session string, lines []orders.Line) error {
	f.carts[session] = lines
	return nil
}

func (f *fakeCarts) Clear(_ context.Context, session string) error {
	delete(f.carts, session)
	return nil
}

type fakeNotifier struct{ calls int }

func (f *fakeNotifier) Notify() { f.calls++ }

type testEnv struct {
	store    *fakeStore
	carts    *fakeCarts
	notifier *fakeNotifier
	engine   *orders.Engine
	menu     *menu.Service
	auth     *auth.Service
	router   http.Handler
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	env := &testEnv{
		store:    newFakeStore(),
		carts:    newFakeCarts(),
		notifier: &fakeNotifier{},
	}
	env.engine = &orders.Engine{Store: env.store, Service: "test"}
	env.menu = &menu.Service{Store: env.store}
	env.auth = &auth.Service{
		Secret:    []byte("test-secret"),
		AdminUser: "boss", AdminPass: "boss-pass",
		StaffUser: "waiter", StaffPass: "waiter-pass",
	}

	r := NewRouter()
	(&CustomerHandler{Menu: env.menu, Engine: env.engine, Carts: env.carts, Feed: env.notifier}).Register(r)
	(&BoardHandler{
		Engine:          env.engine,
		Menu:            env.menu,
		Notify:          env.notifier,
		Auth:            env.auth,
		CustomerBaseURL: "http://dine.test/index.html",
	}).Register(r)
	env.router = r
	return env
}

func (env *testEnv) do(t *testing.T, method, path string, body any, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)
	return rec
}

func (env *testEnv) staffHeaders(t *testing.T) map[string]string {
	t.Helper()
	token, _, err := env.auth.Login("waiter", "waiter-pass")
	require.NoError(t, err)
	return map[string]string{"Authorization": "Bearer " + token}
}

func (env *testEnv) adminHeaders(t *testing.T) map[string]string {
	t.Helper()
	token, _, err := env.auth.Login("boss", "boss-pass")
	require.NoError(t, err)
	return map[string]string{"Authorization": "Bearer " + token}
}

func (env *testEnv) seedMenuItem(t *testing.T, name string, price float64, available bool) string {
	t.Helper()
	id, err := env.store.Create(context.Background(), store.CollectionMenuItems, map[string]any{
		"name": name, "price": price, "available": available, "category": "mains",
	})
	require.NoError(t, err)
	return id
}
