// Package main is the entry point for the order service API server.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"ordertx/internal/core/tx"
	"ordertx/internal/domain/audit"
	"ordertx/internal/domain/order"
	"ordertx/internal/domain/product"
	v1 "ordertx/internal/infrastructure/http/v1"
	"ordertx/pkg/logger"
)

func main() {
	log, err := logger.New(logger.Config{
		Level:       getEnv("LOG_LEVEL", "info"),
		Development: getEnv("APP_ENV", "development") == "development",
	})
	if err != nil {
		fmt.Printf("failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	logger.SetDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	storage, err := openStorage(ctx, log)
	if err != nil {
		log.Fatalw("failed to open storage", "error", err)
	}
	defer storage.Close()

	notifier, err := openNotifier(log)
	if err != nil {
		log.Fatalw("failed to configure mail", "error", err)
	}

	// --- Services ---
	txm := tx.NewCoordinator(storage.resource)
	recorder := audit.NewRecorder(txm, storage.audit)
	productService := product.NewService(txm, storage.products, recorder)
	orderService := order.NewService(order.ServiceConfig{
		TxManager: txm,
		Orders:    storage.orders,
		Products:  storage.products,
		Stock:     productService,
		Notifier:  notifier,
		Audit:     recorder,
		StoreName: getEnv("STORE_NAME", ""),
	})

	// --- HTTP Server ---
	handler := v1.NewHandler(v1.RouterConfig{
		Logger:   log,
		Orders:   orderService,
		Products: productService,
		Audit:    recorder,
		Storage:  storage.pinger,
	})

	port := getEnv("APP_PORT", "8080")
	server := &http.Server{
		Addr:         ":" + port,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Infow("server starting", "port", port, "storage", storage.kind)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	log.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Errorw("server forced to shutdown", "error", err)
	}

	log.Info("server stopped")
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		var result int
		if _, err := fmt.Sscanf(value, "%d", &result); err == nil {
			return result
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
