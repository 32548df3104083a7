package main

import (
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/jmoiron/sqlx"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/wicaksono/loan-engine/internal/config"
	"github.com/wicaksono/loan-engine/internal/repository"
	"github.com/wicaksono/loan-engine/internal/scheduler"
	"github.com/wicaksono/loan-engine/internal/service"
	"github.com/wicaksono/loan-engine/pkg/logger"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	zapLogger, err := logger.New(cfg.Logging)
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer zapLogger.Sync()

	db, err := sqlx.Connect("postgres", cfg.Database.DSN())
	if err != nil {
		zapLogger.Fatal("failed to connect to database", zap.Error(err))
	}
	defer db.Close()

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Host + ":" + cfg.Redis.Port,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer redisClient.Close()

	loanRepo := repository.NewLoanRepository(db)
	installmentRepo := repository.NewInstallmentRepository(db)
	paymentRepo := repository.NewPaymentRepository(db)
	customers := repository.NewCustomerDirectory(db)

	loanService := service.NewLoanService(loanRepo, installmentRepo, paymentRepo, customers, redisClient, cfg, zapLogger)

	sweeper := scheduler.New(cfg, loanService, zapLogger)
	if err := sweeper.Start(); err != nil {
		zapLogger.Fatal("failed to start scheduler", zap.Error(err))
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	sweeper.Stop()
}
