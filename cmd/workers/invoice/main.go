package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/soundforge/Tempo/internal/config"
	"github.com/soundforge/Tempo/internal/database"
	"github.com/soundforge/Tempo/internal/kafka"
	"github.com/soundforge/Tempo/internal/logger"
	"github.com/soundforge/Tempo/internal/order"
	"github.com/soundforge/Tempo/internal/redis"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	loggerService := logger.New(cfg.Observability)
	defer loggerService.Shutdown()
	log := logger.NewLoggerWithService(cfg.Observability, loggerService)

	log.Info().Msg("Starting Invoice Worker...")

	db, err := database.New(cfg, &log, loggerService)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize database")
	}
	defer db.Close()

	redisClient, err := redis.New(&log, &cfg.Redis)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize redis")
	}
	defer redisClient.Close()

	consumer, err := kafka.NewConsumer(kafka.DefaultConfig(cfg.Kafka.Brokers), kafka.GroupInvoiceWorker, kafka.TopicInvoiceRequest)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize kafka consumer")
	}
	defer consumer.Close()

	orders := order.NewRepository(db.Pool)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		if err := consumer.Run(ctx, invoiceHandler(orders, redisClient, cfg.Collaborators.InvoiceServiceURL, &log)); err != nil {
			log.Error().Err(err).Msg("invoice worker stopped with error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down Invoice Worker...")
	cancel()

	log.Info().Msg("Invoice Worker shutdown complete")
}
