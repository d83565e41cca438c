// cmd/server/main.go
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"tvbridge/internal/bybit/service"
	bybithttp "tvbridge/internal/bybit/transport/http"
	"tvbridge/internal/config"
	"tvbridge/internal/metrics"
	"tvbridge/pkg/logger"
	"tvbridge/pkg/middleware"
)

var server *http.Server

func main() {
	cfg, err := config.Load()
	if err != nil {
		logrus.Fatalf("Config load failed: %v", err)
	}

	if err := logger.Init(logger.Config{
		Level:      cfg.Log.Level,
		OutputFile: cfg.Log.File,
		MaxSize:    cfg.Log.MaxSize,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAge:     cfg.Log.MaxAge,
		Compress:   cfg.Log.Compress,
	}); err != nil {
		logrus.Fatalf("Logger init failed: %v", err)
	}

	baseURL := cfg.BaseURL()
	logrus.WithFields(logrus.Fields{
		"base_url": baseURL,
		"category": cfg.Bybit.Category,
		"proxy":    cfg.Bybit.ProxyAddr != "",
	}).Info("TradingView bridge starting...")

	metrics.InitMetrics()

	// --- ИНИЦИАЛИЗАЦИЯ СЛОЁВ ---
	bybitClient := service.NewBybitHTTPClient(
		cfg.Bybit.APIKey,
		cfg.Bybit.APISecret,
		service.WithBaseURL(baseURL),
		service.WithTimeout(cfg.Bybit.Timeout),
		service.WithRetryCount(cfg.Bybit.RetryCount),
		service.WithRecvWindow(cfg.Bybit.RecvWindow),
		service.WithProxy(cfg.Bybit.ProxyAddr),
	)
	orderManager := service.NewOrderManager(bybitClient, cfg.Bybit.Category)
	watcher := service.NewWatcher(bybitClient)

	// Проверяем связь с биржей, но не падаем: /ready покажет состояние
	pingCtx, cancelPing := context.WithTimeout(context.Background(), 10*time.Second)
	if health := watcher.Check(pingCtx); health.Exchange != "up" {
		logrus.Warnf("Bybit is not reachable at startup: %s", health.Error)
	} else {
		logrus.Infof("Bybit reachable, latency %dms", health.LatencyMs)
	}
	cancelPing()

	if cfg.Auth.WebhookPassphrase == "" {
		logrus.Warn("WEBHOOK_PASSPHRASE is empty: /webhook accepts any payload")
	}
	if cfg.Auth.JWTSecret == "" {
		logrus.Warn("API_JWT_SECRET is empty: direct API is not authenticated")
	}

	rateLimiter := middleware.NewRateLimiter(cfg.Server.RateLimit, cfg.Server.RateWindow)
	defer rateLimiter.Stop()

	handler := bybithttp.NewBybitHandler(orderManager, watcher, cfg.Auth.WebhookPassphrase)

	// --- РОУТЕР ---
	router := bybithttp.NewRouter(handler, bybithttp.RouterOptions{
		CORSOrigins:     cfg.Server.CORSOrigins,
		TrustProxy:      cfg.Server.TrustProxy,
		JWTSecret:       cfg.Auth.JWTSecret,
		MetricsUser:     cfg.Auth.MetricsUser,
		MetricsPassword: cfg.Auth.MetricsPassword,
		RateLimiter:     rateLimiter,
		MetricsHandler:  promhttp.Handler(),
	})

	server = &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	logrus.Infof("Server running on %s", cfg.Server.Addr)

	// Graceful shutdown на сигналы ОС
	done := make(chan struct{})
	go func() {
		sig := make(chan os.Signal, 1)
		signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
		<-sig

		logrus.Info("Shutdown signal received, starting graceful shutdown")
		shutdownServer(cfg.Server.ShutdownTimeout)
		close(done)
	}()

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logrus.Fatal(err)
	}
	<-done
}

func shutdownServer(timeout time.Duration) {
	logrus.Info("Starting server shutdown process")

	// Создаем контекст с таймаутом
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logrus.Errorf("Server shutdown failed: %v", err)
	}

	logrus.Info("Server stopped")
}
