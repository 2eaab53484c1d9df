package main

import (
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"coffee-commerce-backend/internal/client"
	"coffee-commerce-backend/internal/config"
	"coffee-commerce-backend/internal/notify"
	"coffee-commerce-backend/internal/repository"
	"coffee-commerce-backend/internal/server"
	"coffee-commerce-backend/internal/service"
	"coffee-commerce-backend/internal/webhook"
)

func main() {
	// load .env into os.Environ
	if err := godotenv.Load(); err != nil {
		fmt.Println("No .env file found (ok in prod)")
	}

	cfg := &config.Config{}
	if err := env.Parse(cfg); err != nil {
		fmt.Printf("Failed to parse config: %v\n", err)
		os.Exit(1)
	}

	log, err := buildLogger(cfg.Log)
	if err != nil {
		fmt.Printf("Failed to build logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	db, err := client.InitDB(cfg.DatabaseURL)
	if err != nil {
		log.Fatal("failed to init database", zap.Error(err))
	}
	stripeClient := client.NewStripeClient(cfg.Stripe.APIKey, cfg.Stripe.WebhookSecret)

	catalogRepo := repository.NewCatalogRepository(db)
	orderRepo := repository.NewOrderRepository(db)
	subscriptionRepo := repository.NewSubscriptionRepository(db)
	userRepo := repository.NewUserRepository(db)

	inventoryService := service.NewInventoryService(db, catalogRepo, orderRepo, log)
	orderService := service.NewOrderService(db, orderRepo, catalogRepo, inventoryService, log)
	subscriptionService := service.NewSubscriptionService(subscriptionRepo, orderRepo, orderService, stripeClient, log)
	userService := service.NewUserService(userRepo)
	notifier := notify.NewLogNotifier(log)

	handlers := webhook.NewHandlers(stripeClient, userService, orderService, subscriptionService, notifier, log)
	dispatcher := webhook.NewDispatcher(handlers, log)

	serverAddr := cfg.HTTP.Host + ":" + cfg.HTTP.Port

	srv := server.NewServer(stripeClient, dispatcher, subscriptionService, orderService, cfg.AdminToken, log)

	log.Info("starting HTTP server", zap.String("address", serverAddr))
	go func() {
		if err := srv.Start(serverAddr); err != nil && err != http.ErrServerClosed {
			log.Fatal("HTTP server error", zap.Error(err))
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGTERM, syscall.SIGINT)

	<-sigChan
	log.Info("signal received, starting graceful shutdown")

	if err := srv.Shutdown(); err != nil {
		log.Fatal("HTTP server shutdown error", zap.Error(err))
	}
}

func buildLogger(cfg config.Log) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		level = zapcore.InfoLevel
	}

	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}
	zapCfg.Level = zap.NewAtomicLevelAt(level)

	return zapCfg.Build()
}
