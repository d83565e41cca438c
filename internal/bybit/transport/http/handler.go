// internal/bybit/transport/http/handler.go
package http

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"tvbridge/internal/api/dto"
	"tvbridge/internal/bybit/entity"
	"tvbridge/internal/bybit/service"
	"tvbridge/internal/metrics"
	"tvbridge/pkg/middleware"

	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus"
)

const requestTimeout = 30 * time.Second

// OrderService операции, которые handler пробрасывает на биржу
type OrderService interface {
	PlaceOrder(ctx context.Context, req entity.OrderRequest) (*service.APIResponse, error)
	CancelOrder(ctx context.Context, symbol, orderID string) (*service.APIResponse, error)
	CancelAllOrders(ctx context.Context, symbol string) (*service.APIResponse, error)
	GetPosition(ctx context.Context, symbol string) (*entity.Position, error)
	ClosePosition(ctx context.Context, symbol string) (*service.APIResponse, error)
	GetWalletBalance(ctx context.Context) (*service.APIResponse, error)
}

// HealthChecker проверка связи с биржей для /ready
type HealthChecker interface {
	Check(ctx context.Context) service.Health
}

// Handler обработчик HTTP запросов для Bybit
type Handler struct {
	Orders            OrderService
	Health            HealthChecker
	WebhookPassphrase string
}

// SuccessResponse {"status": "success", "data": ...}
type SuccessResponse struct {
	Status string      `json:"status"`
	Data   interface{} `json:"data"`
}

// NewBybitHandler создает новый обработчик для Bybit
func NewBybitHandler(orders OrderService, health HealthChecker, webhookPassphrase string) *Handler {
	handler := &Handler{
		Orders:            orders,
		Health:            health,
		WebhookPassphrase: webhookPassphrase,
	}
	logrus.Info("BybitHandler: Initialized successfully")
	return handler
}

// CreateOrder POST /order
func (h *Handler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	var payload dto.OrderPayload
	if !h.decode(w, r, &payload) {
		return
	}
	h.placeOrder(w, r, "api", &payload)
}

// Webhook POST /webhook: алерты TradingView
func (h *Handler) Webhook(w http.ResponseWriter, r *http.Request) {
	var payload dto.OrderPayload
	if !h.decode(w, r, &payload) {
		return
	}

	if h.WebhookPassphrase != "" && !middleware.ConstantTimeEqual(payload.Passphrase, h.WebhookPassphrase) {
		metrics.WebhookAuthFailures.Inc()
		logrus.Warnf("BybitHandler: Webhook rejected: wrong passphrase from %s", r.RemoteAddr)
		h.addErrorResponse(w, http.StatusUnauthorized, "invalid passphrase")
		return
	}
	payload.Passphrase = ""

	h.placeOrder(w, r, "webhook", &payload)
}

func (h *Handler) placeOrder(w http.ResponseWriter, r *http.Request, source string, payload *dto.OrderPayload) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	logrus.WithFields(logrus.Fields{
		"source":     source,
		"client":     clientName(r),
		"symbol":     payload.Symbol,
		"side":       payload.Side,
		"order_type": payload.OrderType,
		"quantity":   payload.Quantity.Decimal.String(),
		"qty":        payload.Qty.Decimal.String(),
		"price":      payload.Price.Decimal.String(),
	}).Info("BybitHandler: Received order request")

	if err := dto.Validate.Struct(payload); err != nil {
		metrics.OrdersTotal.WithLabelValues(source, "invalid", "rejected").Inc()
		h.addErrorResponse(w, http.StatusBadRequest, dto.ValidationMessage(err))
		return
	}

	req, err := payload.ToOrderRequest()
	if err != nil {
		metrics.OrdersTotal.WithLabelValues(source, "invalid", "rejected").Inc()
		h.addErrorResponse(w, http.StatusBadRequest, err.Error())
		return
	}

	resp, err := h.Orders.PlaceOrder(ctx, req)
	if err != nil {
		result := "error"
		if service.IsValidation(err) {
			result = "rejected"
		}
		metrics.OrdersTotal.WithLabelValues(source, string(req.Side), result).Inc()
		h.writeServiceError(w, err, "placing "+source+" order")
		return
	}

	metrics.OrdersTotal.WithLabelValues(source, string(req.Side), "success").Inc()
	logrus.Infof("BybitHandler: %s order placed successfully for %s", source, req.Symbol)
	h.writeSuccess(w, resp)
}

// CancelOrder POST /cancel-order
func (h *Handler) CancelOrder(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	var req dto.CancelOrderRequest
	if !h.decode(w, r, &req) {
		return
	}
	if err := dto.Validate.Struct(req); err != nil {
		h.addErrorResponse(w, http.StatusBadRequest, dto.ValidationMessage(err))
		return
	}
	symbol := normalizeSymbol(req.Symbol)
	logrus.Infof("BybitHandler: Cancel order request received: symbol=%s order_id=%s", symbol, req.OrderID)

	resp, err := h.Orders.CancelOrder(ctx, symbol, req.OrderID)
	if err != nil {
		h.writeServiceError(w, err, "cancelling order")
		return
	}
	h.writeSuccess(w, resp)
}

// CancelAllOrders POST /cancel-all-orders
func (h *Handler) CancelAllOrders(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	var req dto.SymbolRequest
	if !h.decode(w, r, &req) {
		return
	}
	if err := dto.Validate.Struct(req); err != nil {
		h.addErrorResponse(w, http.StatusBadRequest, dto.ValidationMessage(err))
		return
	}
	symbol := normalizeSymbol(req.Symbol)
	logrus.Infof("BybitHandler: Cancel all orders request received: symbol=%s", symbol)

	resp, err := h.Orders.CancelAllOrders(ctx, symbol)
	if err != nil {
		h.writeServiceError(w, err, "cancelling all orders")
		return
	}
	h.writeSuccess(w, resp)
}

// GetPosition GET /position/{symbol}
func (h *Handler) GetPosition(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	symbol := normalizeSymbol(chi.URLParam(r, "symbol"))
	logrus.Infof("BybitHandler: Get position request received for symbol: %s", symbol)

	pos, err := h.Orders.GetPosition(ctx, symbol)
	if err != nil {
		h.writeServiceError(w, err, "fetching position for "+symbol)
		return
	}
	if pos == nil {
		h.writeSuccess(w, nil)
		return
	}
	h.writeSuccess(w, pos)
}

// ClosePosition POST /close-position
func (h *Handler) ClosePosition(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	var req dto.SymbolRequest
	if !h.decode(w, r, &req) {
		return
	}
	if err := dto.Validate.Struct(req); err != nil {
		h.addErrorResponse(w, http.StatusBadRequest, dto.ValidationMessage(err))
		return
	}
	symbol := normalizeSymbol(req.Symbol)
	logrus.Infof("BybitHandler: Close position request received for symbol: %s", symbol)

	resp, err := h.Orders.ClosePosition(ctx, symbol)
	if err != nil {
		h.writeServiceError(w, err, "closing position for "+symbol)
		return
	}
	logrus.Infof("BybitHandler: Position closed for %s", symbol)
	h.writeSuccess(w, resp)
}

// GetBalance GET /balance
func (h *Handler) GetBalance(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	logrus.Info("BybitHandler: Get wallet balance request received")
	resp, err := h.Orders.GetWalletBalance(ctx)
	if err != nil {
		h.writeServiceError(w, err, "fetching wallet balance")
		return
	}
	h.writeSuccess(w, resp)
}

// Ready GET /ready: 200 если биржа отвечает, иначе 503
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	health := h.Health.Check(ctx)
	status := http.StatusOK
	if health.Exchange != "up" {
		status = http.StatusServiceUnavailable
	}
	h.writeJSON(w, status, health)
}

// decode читает JSON тело; при ошибке сам пишет 400
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		h.addErrorResponse(w, http.StatusBadRequest, "invalid JSON format: "+err.Error())
		return false
	}
	return true
}

func (h *Handler) writeServiceError(w http.ResponseWriter, err error, action string) {
	if service.IsValidation(err) {
		logrus.Warnf("BybitHandler: Validation error while %s: %v", action, err)
		h.addErrorResponse(w, http.StatusBadRequest, err.Error())
		return
	}
	logrus.Errorf("BybitHandler: ERROR while %s: %v", action, err)
	h.addErrorResponse(w, http.StatusInternalServerError, err.Error())
}

func (h *Handler) writeSuccess(w http.ResponseWriter, data interface{}) {
	h.writeJSON(w, http.StatusOK, SuccessResponse{Status: "success", Data: data})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logrus.Errorf("BybitHandler: failed to encode response: %v", err)
	}
}

func (h *Handler) addErrorResponse(w http.ResponseWriter, statusCode int, message string) {
	logrus.Debugf("BybitHandler error [%d]: %s", statusCode, message)
	middleware.WriteError(w, statusCode, message)
}

// clientName имя клиента из JWT; для вебхука и API без токенов пусто
func clientName(r *http.Request) string {
	client, _ := r.Context().Value(middleware.ClientKey).(string)
	return client
}

func normalizeSymbol(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}
