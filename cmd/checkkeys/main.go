package main

import (
	"context"
	"encoding/json"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"tvbridge/internal/bybit/service"
	"tvbridge/internal/config"
)

// Проверка ключей из .env: пинг биржи и запрос баланса UNIFIED аккаунта
func main() {
	cfg, err := config.Load()
	if err != nil {
		logrus.Fatalf("Config load failed: %v", err)
	}

	client := service.NewBybitHTTPClient(
		cfg.Bybit.APIKey,
		cfg.Bybit.APISecret,
		service.WithBaseURL(cfg.BaseURL()),
		service.WithTimeout(cfg.Bybit.Timeout),
		service.WithRecvWindow(cfg.Bybit.RecvWindow),
		service.WithProxy(cfg.Bybit.ProxyAddr),
	)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	logrus.Infof("Endpoint: %s", cfg.BaseURL())
	balance, err := checkKeys(ctx, client)
	if err != nil {
		logrus.Fatalf("Key check failed: %v", err)
	}
	logrus.Info("Keys: OK")
	logrus.Infof("Wallet balance: %s", balance)
}

// checkKeys пинг без подписи, затем подписанный запрос баланса
func checkKeys(ctx context.Context, client *service.BybitHTTPClient) (json.RawMessage, error) {
	if err := client.Ping(ctx); err != nil {
		return nil, errors.Wrap(err, "ping failed")
	}
	logrus.Info("Ping: OK")

	resp, err := client.GetWalletBalance(ctx, service.AccountTypeUnified)
	if err != nil {
		return nil, errors.Wrap(err, "keys rejected")
	}
	return resp.Result, nil
}
