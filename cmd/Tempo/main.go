package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/soundforge/Tempo/internal/config"
	"github.com/soundforge/Tempo/internal/database"
	"github.com/soundforge/Tempo/internal/logger"
	"github.com/soundforge/Tempo/internal/order"
	"github.com/soundforge/Tempo/internal/psp"
	"github.com/soundforge/Tempo/internal/reconcile"
	"github.com/soundforge/Tempo/internal/redis"
	"github.com/soundforge/Tempo/internal/router"
	"github.com/soundforge/Tempo/internal/server"
	"github.com/soundforge/Tempo/internal/signature"
	"github.com/soundforge/Tempo/internal/webhook"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	loggerService := logger.New(cfg.Observability)
	defer loggerService.Shutdown()

	log := logger.NewLoggerWithService(cfg.Observability, loggerService)

	db, err := database.New(cfg, &log, loggerService)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize database")
	}
	defer db.Close()

	redisClient, err := redis.New(&log, &cfg.Redis)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize redis client")
	}
	defer redisClient.Close()

	srv, err := server.NewServer(cfg, &log, loggerService, db)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create server")
	}

	var verifiers []signature.Verifier
	if cfg.StripeConfigured() {
		verifiers = append(verifiers, signature.NewStripeVerifier(cfg.Stripe.WebhookSecret, cfg.Stripe.SignatureTolerance))
	} else {
		log.Warn().Msg("stripe webhook secret not configured, /webhooks/stripe disabled")
	}
	if cfg.PayPalConfigured() {
		paypalClient := psp.NewPayPalClient(cfg.PayPal.ClientID, cfg.PayPal.ClientSecret, cfg.PayPal.BaseURL)
		verifiers = append(verifiers, signature.NewPayPalVerifier(cfg.PayPal.WebhookID, paypalClient, cfg.PayPal.SignatureTolerance))
	} else {
		log.Warn().Msg("paypal credentials not configured, /webhooks/paypal disabled")
	}

	orderRepo := order.NewRepository(db.Pool)
	engine := reconcile.NewEngine(orderRepo)
	failures := redis.NewFailureTracker(redisClient, cfg.Webhook.FailureThreshold, cfg.Webhook.FailureWindow)

	webhookService := webhook.NewService(&cfg.Webhook, verifiers, redisClient, failures, engine)

	handlers := &router.Handlers{
		Webhook: webhook.NewHandler(webhookService),
		Health:  webhook.NewHealthHandler(cfg, db, redisClient),
	}

	r := router.NewRouter(srv, handlers)

	srv.SetupHTTPServer(r)

	go func() {
		if err := srv.Start(); err != nil {
			log.Error().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down server...")

	// Give outstanding requests 10 seconds to complete
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("server shutdown error")
	}

	log.Info().Msg("server stopped")
}
