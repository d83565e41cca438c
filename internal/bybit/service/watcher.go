package service

import (
	"context"
	"time"
)

// Watcher отвечает за проверку доступности Bybit API
type Watcher struct {
	client *BybitHTTPClient
}

// Health состояние связи с биржей
type Health struct {
	Exchange       string `json:"exchange"` // up, down
	CircuitBreaker string `json:"circuit_breaker"`
	LatencyMs      int64  `json:"latency_ms"`
	Error          string `json:"error,omitempty"`
}

// NewWatcher создает новый Watcher для Bybit
func NewWatcher(c *BybitHTTPClient) *Watcher {
	return &Watcher{client: c}
}

// Check пингует /v5/market/time и сообщает состояние circuit breaker
func (w *Watcher) Check(ctx context.Context) Health {
	start := time.Now()
	err := w.client.Ping(ctx)
	h := Health{
		Exchange:       "up",
		CircuitBreaker: w.client.GetCircuitBreaker().State().String(),
		LatencyMs:      time.Since(start).Milliseconds(),
	}
	if err != nil {
		h.Exchange = "down"
		h.Error = err.Error()
	}
	return h
}
