package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/jmoiron/sqlx"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/wicaksono/loan-engine/internal/config"
	"github.com/wicaksono/loan-engine/internal/handler"
	"github.com/wicaksono/loan-engine/internal/repository"
	"github.com/wicaksono/loan-engine/internal/service"
	"github.com/wicaksono/loan-engine/pkg/logger"
	"github.com/wicaksono/loan-engine/pkg/response"
)

func main() {
	// .env is optional; real environments configure through env vars
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

	db, err := initDB(cfg)
	if err != nil {
		zapLogger.Fatal("failed to initialize database", zap.Error(err))
	}
	defer db.Close()

	redisClient := initRedis(cfg)
	defer redisClient.Close()

	// Repositories
	loanRepo := repository.NewLoanRepository(db)
	installmentRepo := repository.NewInstallmentRepository(db)
	paymentRepo := repository.NewPaymentRepository(db)
	customers := repository.NewCustomerDirectory(db)

	// Services
	loanService := service.NewLoanService(loanRepo, installmentRepo, paymentRepo, customers, redisClient, cfg, zapLogger)
	reportingService := service.NewReportingService(loanRepo, installmentRepo, paymentRepo, redisClient, zapLogger)

	loanHandler := handler.NewLoanHandler(loanService, reportingService)
	healthHandler := handler.NewHealthHandler(db, redisClient)

	router := setupRoutes(loanHandler, healthHandler, zapLogger)

	server := &http.Server{
		Addr:         cfg.Server.Host + ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		zapLogger.Info("server starting", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zapLogger.Fatal("server failed to start", zap.Error(err))
		}
	}()

	// Wait for interrupt signal to gracefully shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	zapLogger.Info("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		zapLogger.Fatal("server forced to shutdown", zap.Error(err))
	}

	zapLogger.Info("server exited")
}

func initDB(cfg *config.Config) (*sqlx.DB, error) {
	db, err := sqlx.Connect("postgres", cfg.Database.DSN())
	if err != nil {
		return nil, err
	}

	db.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	db.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.Database.ConnMaxLifetime)

	return db, nil
}

func initRedis(cfg *config.Config) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Host + ":" + cfg.Redis.Port,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
}

func setupRoutes(loanHandler *handler.LoanHandler, healthHandler *handler.HealthHandler, zapLogger *zap.Logger) *mux.Router {
	router := mux.NewRouter()
	router.Use(handler.LoggingMiddleware(zapLogger))
	router.Use(response.CORSMiddleware)

	// Health check
	router.HandleFunc("/health", healthHandler.Health).Methods("GET")
	router.HandleFunc("/health/ready", healthHandler.Ready).Methods("GET")

	// API routes
	api := router.PathPrefix("/api/v1").Subrouter()

	api.HandleFunc("/loans", loanHandler.CreateLoan).Methods("POST")
	api.HandleFunc("/loans", loanHandler.ListLoans).Methods("GET")
	api.HandleFunc("/loans/{loanId}", loanHandler.GetLoan).Methods("GET")
	api.HandleFunc("/loans/{loanId}", loanHandler.DeleteLoan).Methods("DELETE")
	api.HandleFunc("/loans/{loanId}/approve", loanHandler.ApproveLoan).Methods("POST")
	api.HandleFunc("/loans/{loanId}/cancel", loanHandler.CancelLoan).Methods("POST")
	api.HandleFunc("/loans/{loanId}/disburse", loanHandler.DisburseLoan).Methods("POST")
	api.HandleFunc("/loans/{loanId}/progress", loanHandler.GetLoanProgress).Methods("GET")
	api.HandleFunc("/installments/{installmentId}/payment", loanHandler.PayInstallment).Methods("POST")
	api.HandleFunc("/installments/overdue", loanHandler.ListOverdueInstallments).Methods("GET")
	api.HandleFunc("/reports/outstanding", loanHandler.TotalOutstanding).Methods("GET")
	api.HandleFunc("/reports/collection", loanHandler.CollectionRate).Methods("GET")

	return router
}
