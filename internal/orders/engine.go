package orders

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	kafkago "github.com/segmentio/kafka-go"

	kafkax "github.com/dineflow/tableorder/internal/kafka"
	"github.com/dineflow/tableorder/internal/redisx"
	"github.com/dineflow/tableorder/internal/store"
)

var (
	// ErrViewOnly: the session has no table attached, so ordering is disabled.
	ErrViewOnly          = errors.New("view-only session: no table selected")
	ErrValidation        = errors.New("validation failed")
	ErrInvalidTransition = errors.New("invalid status transition")
)

type Store interface {
	Create(ctx context.Context, collection string, doc any) (string, error)
	Get(ctx context.Context, collection, id string) (store.Document, error)
	GetAll(ctx context.Context, collection string) ([]store.Document, error)
	UpdateIf(ctx context.Context, collection, id, field, expect string, fields map[string]any) error
	ApplyAll(ctx context.Context, patches []store.Patch) error
}

type Publisher interface {
	Publish(key, value []byte, headers ...kafkago.Header)
}

// Engine owns the order lifecycle: creation, the status state machine and the
// stock side effect of rejection. All transitions are guarded against the
// status the operator actually saw, so two racing operators cannot produce a
// composite state.
type Engine struct {
	Store           Store
	Redis           *redis.Client
	ProducerCreated Publisher
	ProducerStatus  Publisher
	Service         string
}

func (e *Engine) Create(ctx context.Context, in NewOrder) (Order, error) {
	if strings.TrimSpace(in.Table) == "" {
		return Order{}, ErrViewOnly
	}
	if strings.TrimSpace(in.CustomerName) == "" || strings.TrimSpace(in.CustomerPhone) == "" {
		return Order{}, fmt.Errorf("%w: customer name and phone are required", ErrValidation)
	}
	if len(in.Items) == 0 {
		return Order{}, fmt.Errorf("%w: order has no items", ErrValidation)
	}
	for _, l := range in.Items {
		if l.Qty < 1 {
			return Order{}, fmt.Errorf("%w: qty must be at least 1 for item %s", ErrValidation, l.ItemID)
		}
		if l.Price < 0 {
			return Order{}, fmt.Errorf("%w: negative price for item %s", ErrValidation, l.ItemID)
		}
	}

	o := Order{
		Table:         in.Table,
		CustomerName:  in.CustomerName,
		CustomerPhone: in.CustomerPhone,
		Items:         in.Items,
		TotalAmount:   Total(in.Items),
		Status:        StatusNew,
		CreatedAt:     time.Now().UTC().Format(time.RFC3339),
	}
	id, err := e.Store.Create(ctx, store.CollectionOrders, o)
	if err != nil {
		return Order{}, err
	}
	o.ID = id

	e.cacheStatus(ctx, id, StatusNew)
	e.publish(e.ProducerCreated, EventOrderCreated, id, OrderCreatedPayload{
		OrderID: id, Table: o.Table, TotalAmount: o.TotalAmount,
	})
	return o, nil
}

// Accept moves a just-placed order into preparation. No stock or capacity
// check happens here; acceptance is purely an operator decision.
func (e *Engine) Accept(ctx context.Context, id string) (Order, error) {
	return e.transition(ctx, id, StatusPending, nil)
}

func (e *Engine) Complete(ctx context.Context, id string) (Order, error) {
	return e.transition(ctx, id, StatusCompleted, nil)
}

// Reject declines an order and, in the same transaction, marks the listed menu
// items out of stock. Either both effects land or neither does.
func (e *Engine) Reject(ctx context.Context, id string, outOfStockItemIDs []string) (Order, error) {
	return e.transition(ctx, id, StatusRejected, outOfStockItemIDs)
}

func (e *Engine) transition(ctx context.Context, id string, to Status, outOfStockItemIDs []string) (Order, error) {
	o, err := e.load(ctx, id)
	if err != nil {
		return Order{}, err
	}
	raw := o.Status
	from := Normalize(raw)
	if !CanTransition(from, to) {
		if from.Terminal() {
			return Order{}, fmt.Errorf("%w: order already %s", ErrInvalidTransition, from)
		}
		return Order{}, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}

	// Guard on the raw stored status the operator actually saw. Transitions
	// without a stock side effect take the single-statement path; rejection
	// with restock needs the transactional batch.
	if len(outOfStockItemIDs) == 0 {
		err = e.Store.UpdateIf(ctx, store.CollectionOrders, id, "status", string(raw),
			map[string]any{"status": to})
	} else {
		patches := []store.Patch{{
			Collection: store.CollectionOrders,
			ID:         id,
			Fields:     map[string]any{"status": to},
			IfField:    "status",
			IfEquals:   string(raw),
		}}
		for _, itemID := range outOfStockItemIDs {
			patches = append(patches, store.Patch{
				Collection: store.CollectionMenuItems,
				ID:         itemID,
				Fields:     map[string]any{"available": false},
			})
		}
		err = e.Store.ApplyAll(ctx, patches)
	}
	if err != nil {
		return Order{}, err
	}

	o.Status = to
	e.cacheStatus(ctx, id, to)
	e.publish(e.ProducerStatus, EventOrderStatusChanged, id, OrderStatusChangedPayload{
		OrderID: id, From: from, To: to, OutOfStockIDs: outOfStockItemIDs,
	})
	return o, nil
}

func (e *Engine) Get(ctx context.Context, id string) (Order, error) {
	o, err := e.load(ctx, id)
	if err != nil {
		return Order{}, err
	}
	o.Status = Normalize(o.Status)
	return o, nil
}

// List returns every order, newest first. The store gives no ordering
// guarantee, so sorting happens here.
func (e *Engine) List(ctx context.Context) ([]Order, error) {
	docs, err := e.Store.GetAll(ctx, store.CollectionOrders)
	if err != nil {
		return nil, err
	}
	out := make([]Order, 0, len(docs))
	for _, d := range docs {
		var o Order
		if err := json.Unmarshal(d.Data, &o); err != nil {
			return nil, fmt.Errorf("decode order %s: %w", d.ID, err)
		}
		o.ID = d.ID
		o.Status = Normalize(o.Status)
		out = append(out, o)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt > out[j].CreatedAt })
	return out, nil
}

// Status is a cache-aside read of a single order's status.
func (e *Engine) Status(ctx context.Context, id string) (Status, error) {
	key := fmt.Sprintf(redisx.KeyOrderStatus, id)
	if e.Redis != nil {
		if s, err := e.Redis.Get(ctx, key).Result(); err == nil && s != "" {
			return Status(s), nil
		}
	}
	o, err := e.Get(ctx, id)
	if err != nil {
		return "", err
	}
	e.cacheStatus(ctx, id, o.Status)
	return o.Status, nil
}

func (e *Engine) load(ctx context.Context, id string) (Order, error) {
	d, err := e.Store.Get(ctx, store.CollectionOrders, id)
	if err != nil {
		return Order{}, err
	}
	var o Order
	if err := json.Unmarshal(d.Data, &o); err != nil {
		return Order{}, fmt.Errorf("decode order %s: %w", id, err)
	}
	o.ID = d.ID
	return o, nil
}

func (e *Engine) cacheStatus(ctx context.Context, id string, s Status) {
	if e.Redis == nil {
		return
	}
	key := fmt.Sprintf(redisx.KeyOrderStatus, id)
	_ = e.Redis.Set(ctx, key, string(s), redisx.TTLStatusCache).Err()
}

func (e *Engine) publish(p Publisher, eventType, orderID string, payload any) {
	if p == nil {
		return
	}
	ev := Envelope{
		EventID:       uuid.NewString(),
		EventType:     eventType,
		EventVersion:  1,
		OccurredAt:    time.Now().UTC(),
		Producer:      e.Service,
		CorrelationID: orderID,
		Payload:       kafkax.MustMarshal(payload),
	}
	p.Publish(PartitionKey(orderID), kafkax.MustMarshal(ev),
		kafkago.Header{Key: "x-event-type", Value: []byte(eventType)},
		kafkago.Header{Key: "x-event-version", Value: []byte("1")},
	)
}
