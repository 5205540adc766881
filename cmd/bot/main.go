package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/replyloop/x-reply-bot/internal/config"
	"github.com/replyloop/x-reply-bot/internal/generation"
	"github.com/replyloop/x-reply-bot/internal/notifications"
	"github.com/replyloop/x-reply-bot/internal/ratelimit"
	"github.com/replyloop/x-reply-bot/internal/scheduler"
	"github.com/replyloop/x-reply-bot/internal/service"
	"github.com/replyloop/x-reply-bot/internal/storage"
	"github.com/replyloop/x-reply-bot/internal/twitter"
)

func main() {
	// Load environment variables from .env file if it exists
	if err := godotenv.Load(); err != nil {
		logrus.Info("No .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logrus.SetLevel(logrus.InfoLevel)
	if cfg.Debug {
		logrus.SetLevel(logrus.DebugLevel)
	}
	logrus.SetFormatter(&logrus.JSONFormatter{})

	logrus.Info("Starting X Reply Bot")
	if cfg.DryRun {
		logrus.Info("Dry run mode enabled: no replies will be posted")
	}

	// Initialize storage
	blobStore, err := newBlobStore(cfg)
	if err != nil {
		logrus.Fatalf("Failed to initialize storage: %v", err)
	}
	history := storage.NewHistoryStore(blobStore)

	// One limiter guards all outbound API traffic
	limiter := ratelimit.NewLimiter(cfg.RateLimits)

	twitterClient := twitter.NewClient(cfg.TwitterBearerToken, limiter)
	perplexityClient := generation.NewPerplexityClient(cfg.PerplexityAPIKey, limiter)
	replyGenerator := generation.NewReplyGenerator(perplexityClient, cfg.Reply)

	notificationService := notifications.NewService(cfg)

	replyService := service.NewService(cfg, twitterClient, replyGenerator, history, notificationService, limiter)

	schedulerService := scheduler.NewService(cfg, replyService)
	if err := schedulerService.Start(); err != nil {
		logrus.Fatalf("Failed to start scheduler: %v", err)
	}
	defer schedulerService.Stop()

	// Set up HTTP server for health checks and manual triggers
	router := mux.NewRouter()
	router.HandleFunc("/health", healthHandler(replyService)).Methods("GET")
	router.HandleFunc("/status", statusHandler(replyService)).Methods("GET")
	router.HandleFunc("/metrics", metricsHandler(replyService)).Methods("GET")
	router.HandleFunc("/ratelimits", rateLimitsHandler(limiter)).Methods("GET")
	router.HandleFunc("/trigger", triggerHandler(replyService)).Methods("POST")

	server := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logrus.Infof("HTTP server starting on port %s", cfg.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logrus.Fatalf("HTTP server failed: %v", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logrus.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logrus.Errorf("Server forced to shutdown: %v", err)
	}

	logrus.Info("Server exited")
}

// newBlobStore picks Azure when a storage account is configured and local
// files otherwise.
func newBlobStore(cfg *config.Config) (storage.StorageInterface, error) {
	if cfg.StorageAccount != "" {
		return storage.NewAzureStorage(cfg.StorageAccount, cfg.StorageContainer)
	}
	logrus.Infof("No storage account configured, using local storage at %s", cfg.LocalDataDir)
	return storage.NewLocalStorage(cfg.LocalDataDir)
}

func healthHandler(replyService *service.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := replyService.HealthCheck(); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			json.NewEncoder(w).Encode(map[string]string{"status": "unhealthy", "error": err.Error()})
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"healthy","timestamp":"` + time.Now().Format(time.RFC3339) + `"}`))
	}
}

func statusHandler(replyService *service.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(replyService.Status())
	}
}

func metricsHandler(replyService *service.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(replyService.GetMetrics()))
	}
}

func rateLimitsHandler(limiter *ratelimit.Limiter) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(limiter.GetStatus())
	}
}

func triggerHandler(replyService *service.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		go func() {
			if err := replyService.RunReplyCycle(context.Background()); err != nil {
				logrus.Errorf("Manual reply cycle failed: %v", err)
			}
		}()

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"message":"Reply cycle triggered"}`))
	}
}
