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
	"github.com/soundforge/Tempo/internal/outbox"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	loggerService := logger.New(cfg.Observability)
	defer loggerService.Shutdown()
	log := logger.NewLoggerWithService(cfg.Observability, loggerService)

	log.Info().Msg("Starting Side-Effect Relay...")

	db, err := database.New(cfg, &log, loggerService)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize database")
	}
	defer db.Close()

	producer, err := kafka.NewProducer(kafka.DefaultConfig(cfg.Kafka.Brokers), &log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize kafka producer")
	}
	defer producer.Close()

	relay := outbox.NewRelay(db.Pool, producer, &log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		if err := relay.Start(ctx); err != nil {
			log.Error().Err(err).Msg("relay stopped with error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down Side-Effect Relay...")
	cancel()

	log.Info().Msg("Side-Effect Relay shutdown complete")
}
