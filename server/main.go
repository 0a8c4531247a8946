package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/apex/log"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"civicspot/classifier"
	"civicspot/config"
	"civicspot/database"
	"civicspot/handlers"
	"civicspot/ingest"
	"civicspot/metrics"
	"civicspot/middleware"
	"civicspot/rabbitmq"
	"civicspot/version"
)

func main() {
	// Load .env file if present (development convenience)
	if err := godotenv.Load(); err == nil {
		log.Info("Loaded environment from .env file")
	}

	cfg := config.Load()

	db, err := database.Connect(cfg)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	if err := db.EnsureTables(context.Background()); err != nil {
		log.Fatalf("Failed to ensure database tables: %v", err)
	}

	// Classifier is optional: without it every submission gets default
	// classification, which keeps ingestion available.
	var cls classifier.Client
	if cfg.ClassifierURL != "" {
		cls = classifier.NewHTTPClient(cfg.ClassifierURL, cfg.ClassifierTimeout)
		log.Infof("Classifier configured: %s", cfg.ClassifierURL)
	} else {
		log.Warn("CLASSIFIER_URL not set, submissions will use default classification")
	}

	// Event publisher is optional too.
	var publisher *rabbitmq.Publisher
	pub, err := rabbitmq.NewPublisher(cfg.GetAMQPURL(), cfg.RabbitMQExchange, cfg.RabbitMQEventRouting)
	if err != nil {
		log.Warnf("Failed to initialize RabbitMQ publisher: %v", err)
		log.Warn("Report events will not be published. Continuing without RabbitMQ...")
	} else {
		publisher = pub
		log.Infof("RabbitMQ publisher initialized: exchange=%s", cfg.RabbitMQExchange)
	}

	metrics.Register()
	if publisher != nil {
		metrics.BrokerConnected.Set(1)
	}

	svc := ingest.NewService(db, cls, publisher, cfg.DuplicateRadiusMeters,
		cfg.LockWaitTimeout, cfg.LockRetries, cfg.UploadDir)
	h := handlers.NewHandlers(svc, db)

	router := setupRouter(cfg, h)

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	go func() {
		log.Infof("Starting HTTP server on port %s", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start HTTP server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	if publisher != nil {
		if err := publisher.Close(); err != nil {
			log.Warnf("Failed to close RabbitMQ publisher: %v", err)
		}
	}

	log.Info("Server exited")
}

func setupRouter(cfg *config.Config, h *handlers.Handlers) *gin.Engine {
	router := gin.Default()

	router.Use(middleware.CORSMiddleware())
	router.Use(middleware.SecurityHeaders())

	router.GET("/health", h.HealthCheck)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := router.Group("/api/v3")
	{
		api.GET("/version", func(c *gin.Context) {
			c.JSON(200, version.Get("civicspot-ingest"))
		})

		// Public read endpoints
		api.GET("/reports", h.ListReports)
		api.GET("/reports/:id", h.GetReport)

		// Protected write endpoints
		protected := api.Group("")
		protected.Use(middleware.AuthMiddleware(cfg.JWTSecret))
		{
			protected.POST("/reports", h.SubmitReport)
			protected.POST("/reports/:id/upvote", h.UpvoteReport)
			protected.PUT("/reports/:id/status", h.UpdateStatus)
		}
	}

	return router
}
