package service

import (
	"context"

	"tvbridge/internal/bybit/entity"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

const AccountTypeUnified = "UNIFIED"

// OrderManager переводит запросы в ордера Bybit
type OrderManager struct {
	exchange Exchange
	category string
}

// BybitOrderRequest тело запроса /v5/order/create
type BybitOrderRequest struct {
	Category    string `json:"category"`
	Symbol      string `json:"symbol"`
	Side        string `json:"side"`      // Buy, Sell
	OrderType   string `json:"orderType"` // Market, Limit
	Qty         string `json:"qty"`
	Price       string `json:"price,omitempty"`
	TimeInForce string `json:"timeInForce,omitempty"` // GTC, IOC, FOK
	PositionIdx int    `json:"positionIdx"`           // 0 - one-way mode
	ReduceOnly  bool   `json:"reduceOnly"`
	StopLoss    string `json:"stopLoss,omitempty"`
	TakeProfit  string `json:"takeProfit,omitempty"`
	OrderLinkID string `json:"orderLinkId,omitempty"`
}

// NewOrderManager создает новый OrderManager
func NewOrderManager(exchange Exchange, category string) *OrderManager {
	return &OrderManager{exchange: exchange, category: category}
}

// PlaceOrder проверяет запрос, выставляет плечо, считает SL/TP и размещает ордер
func (m *OrderManager) PlaceOrder(ctx context.Context, req entity.OrderRequest) (*APIResponse, error) {
	req.Normalize()
	if err := req.Validate(); err != nil {
		return nil, newOrderError(req.Symbol, "place order", err)
	}

	instrument, err := m.exchange.GetInstrument(ctx, m.category, req.Symbol)
	if err != nil {
		return nil, newOrderError(req.Symbol, "place order", errors.Wrap(err, "failed to get symbol info"))
	}
	if err := checkLimits(req, instrument); err != nil {
		return nil, newOrderError(req.Symbol, "place order", err)
	}

	if err := m.exchange.SetLeverage(ctx, m.category, req.Symbol, req.Leverage); err != nil {
		return nil, newOrderError(req.Symbol, "place order", errors.Wrap(err, "failed to set leverage"))
	}

	stopLoss, takeProfit, err := m.resolveRisk(ctx, req, instrument)
	if err != nil {
		return nil, newOrderError(req.Symbol, "place order", err)
	}

	order := &BybitOrderRequest{
		Category:    m.category,
		Symbol:      req.Symbol,
		Side:        string(req.Side),
		OrderType:   string(req.OrderType),
		Qty:         req.Quantity.String(),
		TimeInForce: "IOC",
		PositionIdx: 0,
		ReduceOnly:  req.ReduceOnly,
		OrderLinkID: req.OrderLinkID,
	}
	if req.OrderType == entity.OrderTypeLimit {
		order.Price = req.Price.String()
		order.TimeInForce = "GTC"
	}
	if stopLoss.IsPositive() {
		order.StopLoss = stopLoss.String()
	}
	if takeProfit.IsPositive() {
		order.TakeProfit = takeProfit.String()
	}
	if order.OrderLinkID == "" {
		order.OrderLinkID = uuid.NewString()
	}

	resp, err := m.exchange.CreateOrder(ctx, order)
	if err != nil {
		return nil, newOrderError(req.Symbol, "place order", errors.Wrap(err, "failed to place order"))
	}

	logrus.Infof("OrderManager: Order placed: %s %s %s qty=%s price=%s sl=%s tp=%s leverage=%d reduceOnly=%v orderLinkId=%s",
		order.Symbol, order.Side, order.OrderType, order.Qty, order.Price, order.StopLoss, order.TakeProfit,
		req.Leverage, order.ReduceOnly, order.OrderLinkID)
	return resp, nil
}

// checkLimits сверяет статус, количество, шаг количества и плечо с ограничениями инструмента
func checkLimits(req entity.OrderRequest, instrument *entity.Instrument) error {
	if instrument.Status != "" && instrument.Status != entity.InstrumentStatusTrading {
		return errors.Wrapf(entity.ErrValidation, "%s is not trading (status %s)", req.Symbol, instrument.Status)
	}
	if req.Quantity.LessThan(instrument.MinOrderQty) {
		return errors.Wrapf(entity.ErrValidation, "Order quantity (%s) is less than minimum allowed quantity (%s) for %s",
			req.Quantity, instrument.MinOrderQty, req.Symbol)
	}
	if instrument.MaxOrderQty.IsPositive() && req.Quantity.GreaterThan(instrument.MaxOrderQty) {
		return errors.Wrapf(entity.ErrValidation, "Order quantity (%s) is greater than maximum allowed quantity (%s) for %s",
			req.Quantity, instrument.MaxOrderQty, req.Symbol)
	}
	if instrument.QtyStep.IsPositive() && !req.Quantity.Mod(instrument.QtyStep).IsZero() {
		return errors.Wrapf(entity.ErrValidation, "Order quantity (%s) is not a multiple of qty step (%s) for %s",
			req.Quantity, instrument.QtyStep, req.Symbol)
	}
	if instrument.MinLeverage.IsPositive() && decimal.NewFromInt(int64(req.Leverage)).LessThan(instrument.MinLeverage) {
		return errors.Wrapf(entity.ErrValidation, "leverage %d is below minimum %s for %s",
			req.Leverage, instrument.MinLeverage, req.Symbol)
	}
	if instrument.MaxLeverage.IsPositive() && decimal.NewFromInt(int64(req.Leverage)).GreaterThan(instrument.MaxLeverage) {
		return errors.Wrapf(entity.ErrValidation, "leverage %d exceeds maximum %s for %s",
			req.Leverage, instrument.MaxLeverage, req.Symbol)
	}
	return nil
}

// resolveRisk возвращает абсолютные SL/TP. Опорная цена: лимитная цена,
// цена из запроса или последняя цена тикера (только если нужен процентный расчёт).
func (m *OrderManager) resolveRisk(ctx context.Context, req entity.OrderRequest, instrument *entity.Instrument) (decimal.Decimal, decimal.Decimal, error) {
	stopLoss, takeProfit := req.StopLoss, req.TakeProfit
	if !req.HasRiskPct() {
		return stopLoss, takeProfit, nil
	}

	reference := req.Price
	if reference.IsZero() {
		last, err := m.exchange.GetLastPrice(ctx, m.category, req.Symbol)
		if err != nil {
			return decimal.Zero, decimal.Zero, errors.Wrap(err, "failed to get reference price")
		}
		reference = last
	}

	sl, tp, err := ResolveRiskPrices(req.Side, reference, req.StopLossPct, req.TakeProfitPct, instrument.TickSize)
	if err != nil {
		return decimal.Zero, decimal.Zero, err
	}
	if sl.IsPositive() {
		stopLoss = sl
	}
	if tp.IsPositive() {
		takeProfit = tp
	}
	return stopLoss, takeProfit, nil
}

// CancelOrder отменяет ордер
func (m *OrderManager) CancelOrder(ctx context.Context, symbol, orderID string) (*APIResponse, error) {
	resp, err := m.exchange.CancelOrder(ctx, m.category, symbol, orderID)
	if err != nil {
		return nil, newOrderError(symbol, "cancel order", errors.Wrap(err, "failed to cancel order"))
	}
	logrus.Infof("OrderManager: Order %s cancelled for %s", orderID, symbol)
	return resp, nil
}

// CancelAllOrders отменяет все ордера по символу
func (m *OrderManager) CancelAllOrders(ctx context.Context, symbol string) (*APIResponse, error) {
	resp, err := m.exchange.CancelAllOrders(ctx, m.category, symbol)
	if err != nil {
		return nil, newOrderError(symbol, "cancel all orders", errors.Wrap(err, "failed to cancel all orders"))
	}
	logrus.Infof("OrderManager: All orders cancelled for %s", symbol)
	return resp, nil
}

// GetPosition возвращает первую запись позиции по символу или nil
func (m *OrderManager) GetPosition(ctx context.Context, symbol string) (*entity.Position, error) {
	positions, err := m.exchange.GetPositions(ctx, m.category, symbol)
	if err != nil {
		return nil, newOrderError(symbol, "get position", errors.Wrap(err, "failed to get position"))
	}
	if len(positions) == 0 {
		return nil, nil
	}
	return &positions[0], nil
}

// ClosePosition закрывает всю позицию рыночным reduce-only ордером в обратную сторону
func (m *OrderManager) ClosePosition(ctx context.Context, symbol string) (*APIResponse, error) {
	positions, err := m.exchange.GetPositions(ctx, m.category, symbol)
	if err != nil {
		return nil, newOrderError(symbol, "close position", errors.Wrap(err, "failed to get position"))
	}

	var pos *entity.Position
	for i := range positions {
		if positions[i].IsOpen() {
			pos = &positions[i]
			break
		}
	}
	if pos == nil {
		return nil, newOrderError(symbol, "close position", errors.Wrapf(entity.ErrNoPosition, "No open position for %s", symbol))
	}

	closeSide := entity.Side(pos.Side).Opposite()
	order := &BybitOrderRequest{
		Category:    m.category,
		Symbol:      symbol,
		Side:        string(closeSide),
		OrderType:   string(entity.OrderTypeMarket),
		Qty:         pos.SizeDecimal().Abs().String(),
		TimeInForce: "IOC",
		PositionIdx: pos.PositionIdx,
		ReduceOnly:  true,
		OrderLinkID: uuid.NewString(),
	}

	resp, err := m.exchange.CreateOrder(ctx, order)
	if err != nil {
		return nil, newOrderError(symbol, "close position", errors.Wrap(err, "failed to place closing order"))
	}

	logrus.Infof("OrderManager: Position closed: %s side=%s qty=%s", symbol, order.Side, order.Qty)
	return resp, nil
}

// GetWalletBalance возвращает баланс единого торгового аккаунта
func (m *OrderManager) GetWalletBalance(ctx context.Context) (*APIResponse, error) {
	resp, err := m.exchange.GetWalletBalance(ctx, AccountTypeUnified)
	if err != nil {
		return nil, newOrderError("", "get wallet balance", errors.Wrap(err, "failed to get wallet balance"))
	}
	return resp, nil
}
