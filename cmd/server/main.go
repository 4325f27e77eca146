package main

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/spf13/viper"
	httpSwagger "github.com/swaggo/http-swagger"

	"github.com/diaverse/backend/docs"
	"github.com/diaverse/backend/internal/database"
	mW "github.com/diaverse/backend/internal/middleware"
	"github.com/diaverse/backend/internal/services"
)

// @title Diaverse Monetization Ledger API
// @version 1.0
// @description Dia virtual-currency ledger: content purchases, author withdrawals, voice generation orders
// @host localhost:8080
// @BasePath /api/v1
// @schemes http https

func main() {
	// Initialize config
	viper.SetConfigFile(".env")
	viper.AutomaticEnv()

	viper.BindEnv("database.host", "DATABASE_HOST")
	viper.BindEnv("database.port", "DATABASE_PORT")
	viper.BindEnv("database.user", "DATABASE_USER")
	viper.BindEnv("database.password", "DATABASE_PASSWORD")
	viper.BindEnv("database.name", "DATABASE_NAME")
	viper.BindEnv("database.ssl_mode", "DATABASE_SSL_MODE")

	viper.BindEnv("redis.host", "REDIS_HOST")
	viper.BindEnv("redis.port", "REDIS_PORT")
	viper.BindEnv("redis.password", "REDIS_PASSWORD")
	viper.BindEnv("redis.db", "REDIS_DB")

	viper.BindEnv("jwt.secret_key", "JWT_SECRET_KEY")
	viper.BindEnv("platform.min_withdraw_amount", "MIN_WITHDRAW_AMOUNT")
	viper.BindEnv("platform.author_split_rate", "AUTHOR_SPLIT_RATE")
	viper.BindEnv("platform.system_account", "PLATFORM_SYSTEM_ACCOUNT")

	if err := viper.ReadInConfig(); err != nil {
		log.Printf("Config file not found, using defaults: %v", err)
	}

	// Initialize Swagger docs
	docs.SwaggerInfo.Title = "Diaverse Monetization Ledger API"
	docs.SwaggerInfo.Description = "Dia virtual-currency ledger for the Diaverse publishing platform"
	docs.SwaggerInfo.Version = "1.0"
	docs.SwaggerInfo.Host = "localhost:8080"
	docs.SwaggerInfo.BasePath = "/api/v1"
	docs.SwaggerInfo.Schemes = []string{"http", "https"}

	// Initialize services
	db := database.InitDatabase()
	defer db.Close()

	redisClient := database.InitRedis()
	if redisClient != nil {
		defer redisClient.Close()
	}

	pricingService := services.NewPricingService(db)
	notificationService := services.NewNotificationService(db, redisClient)
	purchaseService := services.NewPurchaseService(db, pricingService, notificationService)
	withdrawalService := services.NewWithdrawalService(db, notificationService)
	voiceOrderService := services.NewVoiceOrderService(db, redisClient, pricingService, notificationService)
	topupService := services.NewTopupService(db, redisClient)

	mW.InitAuthMiddleware(redisClient)

	// Setup router
	r := chi.NewRouter()

	r.Use(mW.SecurityHeaders)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"https://*", "http://*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           86400,
	}))

	// Health check
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"status": "healthy"})
	})

	// Swagger documentation
	r.Get("/swagger/*", httpSwagger.Handler(
		httpSwagger.URL("http://localhost:8080/swagger/doc.json"),
	))

	// API routes
	r.Route("/api/v1", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(mW.AuthMiddleware)

			// Purchases and wallet
			r.Post("/purchases", purchaseService.CreatePurchase)
			r.Get("/wallet", purchaseService.GetWalletBalance)
			r.Get("/ledger", purchaseService.ListLedgerEntries)

			// Withdrawals
			r.Post("/withdrawals", withdrawalService.SubmitWithdrawal)
			r.Get("/withdrawals", withdrawalService.ListOwnWithdrawals)
			r.Get("/withdrawals/pending", withdrawalService.ListPendingWithdrawals)
			r.Put("/withdrawals/{id}/approve", withdrawalService.ApproveWithdrawal)
			r.Put("/withdrawals/{id}/reject", withdrawalService.RejectWithdrawal)
			r.Get("/revenue", withdrawalService.GetRevenueAccount)

			// Voice orders
			r.Post("/voice-orders", voiceOrderService.CreateVoiceOrder)
			r.Put("/voice-orders/complete", voiceOrderService.CompleteVoiceOrder)

			// Top-ups
			r.Post("/topups/qr", topupService.CreateTopupQR)
			r.Post("/topups/confirm", topupService.ConfirmTopupRequest)
		})
	})

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	server := &http.Server{
		Addr:         ":" + port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown
	go func() {
		log.Printf("Server starting on :%s", port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Server shutting down...")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Fatal("Server forced to shutdown:", err)
	}

	log.Println("Server stopped")
}
