package main

import (
	"context"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"github.com/dineflow/tableorder/internal/auth"
	"github.com/dineflow/tableorder/internal/cart"
	"github.com/dineflow/tableorder/internal/config"
	"github.com/dineflow/tableorder/internal/feed"
	"github.com/dineflow/tableorder/internal/httpx"
	kafkax "github.com/dineflow/tableorder/internal/kafka"
	"github.com/dineflow/tableorder/internal/menu"
	"github.com/dineflow/tableorder/internal/orders"
	"github.com/dineflow/tableorder/internal/redisx"
	"github.com/dineflow/tableorder/internal/store"
)

func main() {
	_ = godotenv.Load()

	cfg := config.Load()
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// DB
	pool, err := store.Connect(ctx, cfg.PostgresDSN)
	if err != nil {
		log.Fatalf("db connect: %v", err)
	}
	defer pool.Close()
	if err := store.Migrate(ctx, pool); err != nil {
		log.Fatalf("db migrate: %v", err)
	}
	docs := &store.Client{DB: pool}

	// Redis
	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()

	// Kafka producers, one per topic. They outlive the signal context so that
	// requests completing during graceful shutdown still publish; Close after
	// srv.Shutdown drains whatever is queued.
	prodCtx, prodCancel := context.WithCancel(context.Background())
	defer prodCancel()
	pCreated := kafkax.NewProducer(cfg.KafkaBrokers, orders.TopicOrderCreated, 1024)
	pCreated.Start(prodCtx)
	pStatus := kafkax.NewProducer(cfg.KafkaBrokers, orders.TopicOrderStatusChanged, 1024)
	pStatus.Start(prodCtx)

	engine := &orders.Engine{
		Store:           docs,
		Redis:           rdb,
		ProducerCreated: pCreated,
		ProducerStatus:  pStatus,
		Service:         cfg.ServiceName,
	}
	menuSvc := &menu.Service{Store: docs}
	carts := &cart.SessionStore{Redis: rdb}

	// Live feed: refreshed by local mutations and by order events from other
	// instances. Every instance consumes all events, hence the unique group.
	hub := feed.NewHub(engine)
	feedGroup := cfg.ServiceName + "-feed-" + uuid.NewString()[:8]
	cons := kafkax.NewConsumer(cfg.KafkaBrokers, feedGroup,
		[]string{orders.TopicOrderCreated, orders.TopicOrderStatusChanged}, 1)

	authSvc := &auth.Service{
		Secret:    []byte(cfg.JWTSecret),
		AdminUser: cfg.AdminUser,
		AdminPass: cfg.AdminPass,
		StaffUser: cfg.StaffUser,
		StaffPass: cfg.StaffPass,
	}

	router := httpx.NewRouter()
	(&httpx.CustomerHandler{Menu: menuSvc, Engine: engine, Carts: carts, Feed: hub}).Register(router)
	(&httpx.BoardHandler{
		Engine:          engine,
		Menu:            menuSvc,
		Feed:            hub,
		Notify:          hub,
		Auth:            authSvc,
		CustomerBaseURL: cfg.CustomerBaseURL,
	}).Register(router)

	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: router}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return hub.Run(gctx) })
	g.Go(func() error {
		log.Printf("feed consumer started: group=%s", feedGroup)
		return cons.Start(gctx, hub.HandleEvent)
	})
	g.Go(func() error {
		log.Printf("HTTP listening at %s", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutCtx)
	})

	if err := g.Wait(); err != nil {
		log.Printf("shutdown: %v", err)
	}
	log.Println("shutting down...")
	pCreated.Close()
	pStatus.Close()
	pCreated.WaitClosed()
	pStatus.WaitClosed()
}
