package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/ariefcatur/storefront-orders/internal/appointments"
	"github.com/ariefcatur/storefront-orders/internal/auth"
	"github.com/ariefcatur/storefront-orders/internal/config"
	"github.com/ariefcatur/storefront-orders/internal/events"
	"github.com/ariefcatur/storefront-orders/internal/httpx"
	"github.com/ariefcatur/storefront-orders/internal/inventory"
	kafkax "github.com/ariefcatur/storefront-orders/internal/kafka"
	"github.com/ariefcatur/storefront-orders/internal/logging"
	"github.com/ariefcatur/storefront-orders/internal/memstore"
	"github.com/ariefcatur/storefront-orders/internal/orders"
	"github.com/ariefcatur/storefront-orders/internal/postgres"
	"github.com/ariefcatur/storefront-orders/internal/redisx"
	"github.com/ariefcatur/storefront-orders/internal/refgen"
)

// store is what the services need from either backend.
type store interface {
	orders.Store
	inventory.Store
	appointments.Store
}

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		_, _ = os.Stderr.WriteString("config: " + err.Error() + "\n")
		os.Exit(1)
	}
	log, err := logging.New(cfg.App.Name, cfg.App.LogLevel, cfg.App.LogFile)
	if err != nil {
		_, _ = os.Stderr.WriteString("logger: " + err.Error() + "\n")
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Store
	var st store
	var pingers []httpx.Pinger
	switch cfg.Store.Driver {
	case "memory":
		log.Warn("using in-memory store, data is lost on restart")
		st = memstore.New()
	default:
		pool, err := postgres.Connect(ctx, cfg.Postgres.DSN, cfg.Postgres.MaxConns)
		if err != nil {
			log.Fatal("db connect", zap.Error(err))
		}
		defer pool.Close()
		if err := postgres.Migrate(ctx, pool); err != nil {
			log.Fatal("db migrate", zap.Error(err))
		}
		pg := postgres.NewStore(pool)
		st = pg
		pingers = append(pingers, pg)
	}

	// Redis
	var cache httpx.OrderCache
	if cfg.Redis.Addr != "" {
		rdb := redisx.New(cfg.Redis.Addr, cfg.Redis.Password)
		defer rdb.Close()
		c := redisx.NewCache(rdb)
		cache = c
		pingers = append(pingers, c)
	}

	// Kafka producer
	var pub events.Publisher = events.Nop{}
	var prod *kafkax.Producer
	if brokers := cfg.KafkaBrokers(); len(brokers) > 0 {
		prod = kafkax.NewProducer(brokers, 1024, log)
		prod.Start(ctx)
		pub = events.KafkaPublisher{Producer: prod}
	} else {
		log.Warn("no kafka brokers configured, events are dropped")
	}

	// Services & handlers
	ledger := inventory.NewLedger(inventory.LedgerDeps{Logger: log})
	refs := refgen.New(refgen.WithMaxAttempts(cfg.Orders.RefMaxAttempts))
	verifier := auth.NewVerifier(cfg.Auth.JWTSecret, cfg.Auth.Issuer, cfg.Auth.Audience)
	if cfg.Auth.JWTSecret == "" {
		log.Warn("auth.jwt_secret is empty, admin endpoints reject every token")
	}

	router := httpx.NewRouter(log, pingers...)
	(&httpx.OrdersHandler{
		Orders: orders.NewService(orders.Deps{
			Store:       st,
			Ledger:      ledger,
			Refs:        refs,
			Publisher:   pub,
			Logger:      log,
			RefPrefix:   cfg.Orders.RefPrefix,
			Currency:    cfg.Orders.Currency,
			ServiceName: cfg.App.Name,
		}),
		Cache:    cache,
		Verifier: verifier,
	}).Register(router)
	(&httpx.ProductsHandler{
		Products: &inventory.Service{
			Store:       st,
			Ledger:      ledger,
			Publisher:   pub,
			Logger:      log.Named("inventory"),
			ServiceName: cfg.App.Name,
		},
		Verifier: verifier,
	}).Register(router)
	(&httpx.AppointmentsHandler{
		Appointments: &appointments.Service{
			Store:       st,
			Refs:        refs,
			Publisher:   pub,
			Logger:      log.Named("appointments"),
			RefPrefix:   cfg.Appointments.RefPrefix,
			ServiceName: cfg.App.Name,
		},
		Verifier: verifier,
	}).Register(router)

	// HTTP server
	srv := &http.Server{
		Addr:              cfg.App.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		log.Info("http listening", zap.String("addr", cfg.App.HTTPAddr), zap.String("store", cfg.Store.Driver))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("listen", zap.Error(err))
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	log.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn("http shutdown", zap.Error(err))
	}
	if prod != nil {
		prod.Close()
		prod.WaitClosed()
	}
}
