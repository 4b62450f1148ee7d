package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/ariefcatur/storefront-orders/internal/config"
	"github.com/ariefcatur/storefront-orders/internal/events"
	"github.com/ariefcatur/storefront-orders/internal/inventory"
	kafkax "github.com/ariefcatur/storefront-orders/internal/kafka"
	"github.com/ariefcatur/storefront-orders/internal/logging"
	"github.com/ariefcatur/storefront-orders/internal/redisx"
)

// The inventory worker projects StockChanged events into redis snapshots and
// raises low stock warnings.
func main() {
	_ = godotenv.Load()
	cfg, err := config.Load()
	if err != nil {
		_, _ = os.Stderr.WriteString("config: " + err.Error() + "\n")
		os.Exit(1)
	}
	log, err := logging.New(cfg.App.Name+"-inventory", cfg.App.LogLevel, cfg.App.LogFile)
	if err != nil {
		_, _ = os.Stderr.WriteString("logger: " + err.Error() + "\n")
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	brokers := cfg.KafkaBrokers()
	if len(brokers) == 0 {
		log.Fatal("kafka.brokers is required for the inventory worker")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Redis
	rdb := redisx.New(cfg.Redis.Addr, cfg.Redis.Password)
	defer rdb.Close()
	cache := redisx.NewCache(rdb)
	if err := cache.Ping(ctx); err != nil {
		log.Warn("redis not reachable yet", zap.Error(err))
	}

	proj := &inventory.Projector{
		Cache:             cache,
		LowStockThreshold: cfg.Inventory.LowStockThreshold,
		Logger:            log,
		ServiceName:       cfg.App.Name + "-inventory",
	}

	cons := kafkax.NewConsumer(brokers, cfg.Kafka.Group, events.TopicStock, cfg.Kafka.Workers, log)
	log.Info("inventory consumer started",
		zap.String("group", cfg.Kafka.Group),
		zap.String("topic", events.TopicStock),
		zap.Int("workers", cfg.Kafka.Workers))

	if err := cons.Start(ctx, proj.HandleStockChanged); err != nil {
		log.Error("consumer exit", zap.Error(err))
		return
	}
	log.Info("inventory consumer stopped")
}
