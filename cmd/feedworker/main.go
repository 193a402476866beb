// feedworker keeps the shared order-status cache warm by consuming the order
// event stream, so status lookups on any instance hit Redis instead of the
// store.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	kafkago "github.com/segmentio/kafka-go"

	"github.com/dineflow/tableorder/internal/config"
	kafkax "github.com/dineflow/tableorder/internal/kafka"
	"github.com/dineflow/tableorder/internal/orders"
	"github.com/dineflow/tableorder/internal/redisx"
)

type cacheWarmer struct {
	redis *redis.Client
}

func (c *cacheWarmer) handle(ctx context.Context, m kafkago.Message) error {
	var env orders.Envelope
	if err := json.Unmarshal(m.Value, &env); err != nil {
		return err
	}

	// dedup on event id; the consumer may redeliver after a rebalance
	dkey := fmt.Sprintf(redisx.KeyDedup, "feedworker", env.EventID)
	if seen, _ := redisx.Exists(ctx, c.redis, dkey); seen {
		return nil
	}

	var orderID string
	var status orders.Status
	switch env.EventType {
	case orders.EventOrderCreated:
		p, err := kafkax.UnwrapPayload[orders.OrderCreatedPayload](env.Payload)
		if err != nil {
			return err
		}
		orderID, status = p.OrderID, orders.StatusNew
	case orders.EventOrderStatusChanged:
		p, err := kafkax.UnwrapPayload[orders.OrderStatusChangedPayload](env.Payload)
		if err != nil {
			return err
		}
		orderID, status = p.OrderID, p.To
	default:
		return nil
	}

	key := fmt.Sprintf(redisx.KeyOrderStatus, orderID)
	if err := c.redis.Set(ctx, key, string(status), redisx.TTLStatusCache).Err(); err != nil {
		return err
	}
	return c.redis.Set(ctx, dkey, "1", redisx.TTLDedup).Err()
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func main() {
	_ = godotenv.Load()
	cfg := config.Load()
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()

	group := getenv("FEEDWORKER_GROUP", "tableorder-feedworker")
	cons := kafkax.NewConsumer(cfg.KafkaBrokers, group,
		[]string{orders.TopicOrderCreated, orders.TopicOrderStatusChanged}, 4)

	warmer := &cacheWarmer{redis: rdb}
	log.Printf("feedworker started: group=%s", group)
	if err := cons.Start(ctx, warmer.handle); err != nil {
		log.Fatalf("consumer exit: %v", err)
	}
	log.Println("feedworker stopped")
}
