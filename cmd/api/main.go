package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"

	"github.com/flicky/storybook-api/internal/archive"
	"github.com/flicky/storybook-api/internal/config"
	"github.com/flicky/storybook-api/internal/handler"
	"github.com/flicky/storybook-api/internal/middleware"
	"github.com/flicky/storybook-api/internal/payment"
	"github.com/flicky/storybook-api/internal/repository"
	"github.com/flicky/storybook-api/internal/resolver"
	"github.com/flicky/storybook-api/internal/service"
	"github.com/flicky/storybook-api/internal/storage"
	"github.com/flicky/storybook-api/internal/worker"
)

func main() {
	log := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	cfg, err := config.Load()
	if err != nil {
		log.Error("load config", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// PostgreSQL
	poolCfg, err := pgxpool.ParseConfig(cfg.DB.DSN())
	if err != nil {
		log.Error("parse db config", "error", err)
		os.Exit(1)
	}
	poolCfg.MaxConns = cfg.DB.MaxConns

	dbPool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		log.Error("connect to database", "error", err)
		os.Exit(1)
	}
	defer dbPool.Close()

	if err := dbPool.Ping(ctx); err != nil {
		log.Error("ping database", "error", err)
		os.Exit(1)
	}
	log.Info("connected to PostgreSQL")

	// Redis
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer redisClient.Close()

	if err := redisClient.Ping(ctx).Err(); err != nil {
		log.Error("connect to Redis", "error", err)
		os.Exit(1)
	}
	log.Info("connected to Redis")

	// RabbitMQ
	amqpConn, err := amqp.Dial(cfg.RabbitMQ.URL)
	if err != nil {
		log.Error("connect to RabbitMQ", "error", err)
		os.Exit(1)
	}
	defer amqpConn.Close()

	amqpCh, err := amqpConn.Channel()
	if err != nil {
		log.Error("open RabbitMQ channel", "error", err)
		os.Exit(1)
	}
	defer amqpCh.Close()

	if err := worker.SetupRabbitMQ(amqpCh); err != nil {
		log.Error("setup RabbitMQ", "error", err)
		os.Exit(1)
	}

	publishCh, err := amqpConn.Channel()
	if err != nil {
		log.Error("open RabbitMQ publish channel", "error", err)
		os.Exit(1)
	}
	defer publishCh.Close()
	log.Info("connected to RabbitMQ")

	// Object storage
	store, err := storage.New(cfg.Storage)
	if err != nil {
		log.Error("create storage client", "error", err)
		os.Exit(1)
	}
	if err := store.Ping(ctx); err != nil {
		log.Error("check storage bucket", "error", err)
		os.Exit(1)
	}
	log.Info("connected to object storage", "bucket", cfg.Storage.Bucket)

	// Repositories
	userRepo := repository.NewUserRepository(dbPool)
	orderRepo := repository.NewOrderRepository(dbPool)
	cartRepo := repository.NewCartRepository(redisClient, cfg.Redis.CartTTL)
	exportJobRepo := repository.NewExportJobRepository(redisClient)

	// Images
	imageResolver := resolver.New(store, orderRepo, log)
	packager := archive.NewPackager(imageResolver, store, archive.NewHTTPFetcher(cfg.Archive.FetchTimeout), cfg.Archive.Concurrency, log)

	// Services
	publisher := worker.NewPublisher(publishCh)
	gateway := payment.NewClient(cfg.Razorpay, log)
	authSvc := service.NewAuthService(userRepo, cfg.JWT.Secret, cfg.JWT.Expiration)
	cartSvc := service.NewCartService(cartRepo, log)
	checkoutSvc := service.NewCheckoutService(orderRepo, cartSvc, gateway, publisher, cfg.Razorpay, log)
	orderSvc := service.NewOrderService(orderRepo)
	adminSvc := service.NewAdminService(orderRepo, exportJobRepo, imageResolver, packager, publisher, log)

	// Handlers
	authH := handler.NewAuthHandler(authSvc)
	cartH := handler.NewCartHandler(cartSvc, log)
	checkoutH := handler.NewCheckoutHandler(checkoutSvc, log)
	orderH := handler.NewOrderHandler(orderSvc)
	adminH := handler.NewAdminHandler(adminSvc, log)
	healthH := handler.NewHealthHandler(dbPool, redisClient, amqpConn, store)

	// Workers
	orderWorker := worker.NewOrderWorker(amqpCh, orderRepo, store, redisClient, log)
	exportWorker := worker.NewExportWorker(amqpCh, exportJobRepo, orderRepo, packager, store, cfg.Storage.ExportPrefix, log)

	limiter := middleware.NewRateLimiter(cfg.RateLimit.RPS, cfg.RateLimit.Burst)
	limiterDone := make(chan struct{})
	go limiter.Run(limiterDone)

	// Router
	if cfg.Server.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery(), middleware.RequestLogger(log), middleware.Metrics())
	router.GET("/metrics", middleware.PrometheusHandler())
	router.GET("/healthz", healthH.Healthz)
	router.GET("/readyz", healthH.Readyz)

	authMW := middleware.AuthMiddleware(cfg.JWT.Secret)

	v1 := router.Group("/api/v1")
	{
		auth := v1.Group("/auth")
		auth.POST("/register", authH.Register)
		auth.POST("/login", authH.Login)

		cart := v1.Group("/cart", authMW)
		cart.GET("", cartH.GetCart)
		cart.DELETE("", cartH.Clear)
		cart.POST("/items", cartH.AddItem)
		cart.PUT("/items/:id", cartH.UpdateItem)
		cart.DELETE("/items/:id", cartH.DeleteItem)

		orders := v1.Group("/orders", authMW)
		orders.GET("", orderH.ListOrders)
		orders.GET("/:id", orderH.GetOrder)

		checkout := orders.Group("", limiter.Middleware())
		checkout.POST("", checkoutH.CreateOrder)
		checkout.POST("/:id/payment", checkoutH.OpenPayment)
		checkout.POST("/:id/payment/retry", checkoutH.RetryPayment)
		checkout.POST("/:id/payment/verify", checkoutH.VerifyPayment)
		checkout.POST("/:id/payment/failure", checkoutH.PaymentFailed)
		checkout.POST("/:id/payment/dismiss", checkoutH.DismissPayment)

		admin := v1.Group("/admin", authMW, middleware.AdminOnly())
		admin.GET("/orders", adminH.ListOrders)
		admin.GET("/orders/export", adminH.ExportCSV)
		admin.GET("/orders/:id", adminH.GetOrder)
		admin.PATCH("/orders/:id/status", adminH.UpdateStatus)
		admin.PATCH("/orders/:id/tracking", adminH.UpdateTracking)
		admin.GET("/orders/:id/images", adminH.ResolveImages)
		admin.GET("/orders/:id/images/download", adminH.DownloadImages)
		admin.POST("/images/download", adminH.DownloadPaths)
		admin.POST("/exports", adminH.CreateExport)
		admin.GET("/exports/:id", adminH.GetExport)
	}

	if err := orderWorker.Start(ctx); err != nil {
		log.Error("start order worker", "error", err)
		os.Exit(1)
	}
	if err := exportWorker.Start(ctx); err != nil {
		log.Error("start export worker", "error", err)
		os.Exit(1)
	}

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		log.Info("starting HTTP server", "port", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("server shutdown", "error", err)
	}

	orderWorker.Stop()
	exportWorker.Stop()
	close(limiterDone)
	time.Sleep(500 * time.Millisecond)
	cancel()
	log.Info("server stopped")
}
