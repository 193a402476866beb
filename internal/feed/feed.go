// Package feed implements the live order feed: every subscriber receives the
// full current order set on subscribe, and again after every change to the
// order collection. Deliveries coalesce for slow subscribers, so a subscriber
// always sees a state equal to "the full set as of the latest write", never a
// stale partial.
package feed

import (
	"context"
	"log"
	"sync"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/dineflow/tableorder/internal/orders"
)

type Lister interface {
	List(ctx context.Context) ([]orders.Order, error)
}

type Hub struct {
	lister Lister

	mu     sync.Mutex
	subs   map[chan []orders.Order]struct{}
	notify chan struct{}
}

func NewHub(l Lister) *Hub {
	return &Hub{
		lister: l,
		subs:   make(map[chan []orders.Order]struct{}),
		notify: make(chan struct{}, 1),
	}
}

// Run refreshes and fans out the order set whenever a change is signalled.
// Blocks until ctx is cancelled.
func (h *Hub) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-h.notify:
			set, err := h.lister.List(ctx)
			if err != nil {
				log.Printf("feed refresh: %v", err)
				continue
			}
			h.broadcast(set)
		}
	}
}

// Notify signals that the order collection changed. Safe to call from any
// goroutine; repeated signals coalesce into one refresh.
func (h *Hub) Notify() {
	select {
	case h.notify <- struct{}{}:
	default:
	}
}

// Subscribe registers a feed consumer and delivers the current full set right
// away. The returned cancel must be called when the consumer goes away.
func (h *Hub) Subscribe(ctx context.Context) (<-chan []orders.Order, func(), error) {
	ch := make(chan []orders.Order, 1)

	// register before the initial fetch, so a write that lands mid-fetch
	// still reaches this subscriber through broadcast
	h.mu.Lock()
	h.subs[ch] = struct{}{}
	h.mu.Unlock()

	cancel := func() {
		h.mu.Lock()
		delete(h.subs, ch)
		h.mu.Unlock()
	}

	set, err := h.lister.List(ctx)
	if err != nil {
		cancel()
		return nil, nil, err
	}

	// a broadcast may already have queued a set; that one is at least as
	// fresh as this fetch, so only fill an empty channel
	select {
	case ch <- set:
	default:
	}
	return ch, cancel, nil
}

func (h *Hub) broadcast(set []orders.Order) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.subs {
		// drop a pending stale set so the latest one always fits
		select {
		case ch <- set:
		default:
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- set:
			default:
			}
		}
	}
}

// HandleEvent adapts the hub to the Kafka consumer: any order event from any
// API instance triggers a refresh. Redelivery is harmless, so no dedup here.
func (h *Hub) HandleEvent(ctx context.Context, m kafkago.Message) error {
	h.Notify()
	return nil
}
