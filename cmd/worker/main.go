package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"notification-engine/config"
	"notification-engine/internal/channel"
	"notification-engine/internal/mqhandler"
	"notification-engine/internal/provider"
	"notification-engine/internal/repository"
	"notification-engine/internal/service"
	"notification-engine/pkg/db"
	"notification-engine/pkg/mq"
	"notification-engine/pkg/outbox"
	"notification-engine/pkg/redis"
	"notification-engine/pkg/util"
)

func main() {
	// 1. Load config
	cfg := config.Load()

	logger, _ := zap.NewProduction()
	defer logger.Sync()

	// 2. Init DB
	dbConn, err := db.NewConnection(cfg.DB, logger)
	if err != nil {
		logger.Fatal("DB initialization failed", zap.Error(err))
	}

	// 3. Init Redis
	rdb := redis.NewClient(cfg.Redis)

	// 4. Init stores and CRM providers
	stores := repository.NewPgxStoreFactory(dbConn, logger)
	crm := provider.NewCRMClient(cfg.CRM.BaseURL)
	templates := provider.NewCRMTemplateProvider(crm)

	// 5. Init channel registry
	registry, err := channel.NewRegistry(
		channel.NewLogChannel(channel.Email, logger),
		channel.NewLogChannel(channel.Chat, logger),
		channel.NewLogChannel(channel.SMS, logger),
		channel.NewLogChannel(channel.Push, logger),
	)
	if err != nil {
		logger.Fatal("Channel registry initialization failed", zap.Error(err))
	}

	// 6. Init outbox and engine services
	outboxRepo := outbox.NewRepository(dbConn)
	fanoutService := service.NewFanoutService(stores, crm, logger)
	deliveryService := service.NewDeliveryService(stores, registry, templates, crm, outboxRepo, logger)
	aggregator := service.NewBatchAggregator(stores, deliveryService, outboxRepo, logger)
	sweeper := service.NewSweeper(stores, stores, deliveryService, aggregator, logger, cfg.Worker.SweepLimit)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 7. Init RabbitMQ publisher (outbox dispatcher + DLQ)
	publisher, err := mq.NewPublisher(cfg.MQ.URL)
	if err != nil {
		log.Fatalf("failed to init publisher: %v", err)
	}
	defer publisher.Close()

	dispatcher := outbox.NewDispatcher(outboxRepo, publisher, logger)
	go dispatcher.Start(ctx)

	// 8. Init RabbitMQ consumer for notification.requested events
	consumer, err := mq.NewConsumer(cfg.MQ.URL, "notification.requested.worker", "notification.requested", logger)
	if err != nil {
		log.Fatalf("failed to init consumer: %v", err)
	}
	defer consumer.Close()

	deduper := util.NewDeduper(rdb, 24*time.Hour)
	requestedHandler := mqhandler.NewRequestedHandler(fanoutService, deduper, publisher, logger)
	consumer.SetHandler(requestedHandler.Handle)

	go func() {
		if err := consumer.StartConsuming(); err != nil {
			logger.Fatal("consumer start failed", zap.Error(err))
		}
	}()

	// 9. Schedule sweeps
	c := cron.New()
	if _, err := c.AddFunc(cfg.Worker.PendingSweepSpec, func() {
		sweeper.RunDueSweep(ctx)
	}); err != nil {
		logger.Fatal("Failed to schedule pending sweep", zap.Error(err))
	}
	if _, err := c.AddFunc(cfg.Worker.BatchSweepSpec, func() {
		sweeper.RunDueBatchSweep(ctx)
	}); err != nil {
		logger.Fatal("Failed to schedule batch sweep", zap.Error(err))
	}
	c.Start()

	logger.Info("Worker started",
		zap.String("pending_sweep", cfg.Worker.PendingSweepSpec),
		zap.String("batch_sweep", cfg.Worker.BatchSweepSpec),
	)

	// 10. Wait for shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Worker shutting down")
	cancel()
	<-c.Stop().Done()
}
