package entity

import (
	"strings"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

// Side направление ордера в терминах Bybit
type Side string

const (
	SideBuy  Side = "Buy"
	SideSell Side = "Sell"
)

// OrderType тип ордера в терминах Bybit
type OrderType string

const (
	OrderTypeMarket OrderType = "Market"
	OrderTypeLimit  OrderType = "Limit"
)

const (
	DefaultLeverage = 1
	MaxLeverage     = 100
)

var hundred = decimal.NewFromInt(100)

// ParseSide принимает buy/sell в любом регистре
func ParseSide(s string) (Side, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "buy":
		return SideBuy, nil
	case "sell":
		return SideSell, nil
	}
	return "", errors.Wrapf(ErrValidation, "side must be one of: Buy Sell, got %q", s)
}

// Opposite возвращает сторону для закрытия позиции
func (s Side) Opposite() Side {
	if s == SideBuy {
		return SideSell
	}
	return SideBuy
}

// ParseOrderType принимает market/limit в любом регистре
func ParseOrderType(s string) (OrderType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "market":
		return OrderTypeMarket, nil
	case "limit":
		return OrderTypeLimit, nil
	}
	return "", errors.Wrapf(ErrValidation, "order_type must be one of: Market Limit, got %q", s)
}

// OrderRequest запрос на размещение ордера. Живёт только в рамках одного HTTP запроса.
// Нулевые значения Price/StopLoss/TakeProfit/...Pct означают "не задано".
type OrderRequest struct {
	Symbol        string
	Side          Side
	OrderType     OrderType
	Quantity      decimal.Decimal
	Price         decimal.Decimal
	Leverage      int
	ReduceOnly    bool
	StopLoss      decimal.Decimal
	TakeProfit    decimal.Decimal
	StopLossPct   decimal.Decimal
	TakeProfitPct decimal.Decimal
	OrderLinkID   string
}

// HasRiskPct сообщает, нужна ли опорная цена для расчёта SL/TP
func (r *OrderRequest) HasRiskPct() bool {
	return r.StopLossPct.IsPositive() || r.TakeProfitPct.IsPositive()
}

// Normalize приводит символ к верхнему регистру и подставляет плечо по умолчанию
func (r *OrderRequest) Normalize() {
	r.Symbol = strings.ToUpper(strings.TrimSpace(r.Symbol))
	if r.Leverage == 0 {
		r.Leverage = DefaultLeverage
	}
}

// Validate проверяет запрос без обращения к бирже
func (r *OrderRequest) Validate() error {
	if r.Symbol == "" {
		return errors.Wrap(ErrValidation, "symbol is required")
	}
	if r.Side != SideBuy && r.Side != SideSell {
		return errors.Wrapf(ErrValidation, "side must be one of: Buy Sell, got %q", r.Side)
	}
	if r.OrderType != OrderTypeMarket && r.OrderType != OrderTypeLimit {
		return errors.Wrapf(ErrValidation, "order_type must be one of: Market Limit, got %q", r.OrderType)
	}
	if !r.Quantity.IsPositive() {
		return errors.Wrap(ErrValidation, "quantity must be greater than 0")
	}
	if r.Price.IsNegative() {
		return errors.Wrap(ErrValidation, "price must be greater than 0")
	}
	if r.OrderType == OrderTypeLimit && r.Price.IsZero() {
		return errors.Wrap(ErrValidation, "Limit order requires a price")
	}
	if r.Leverage < 1 || r.Leverage > MaxLeverage {
		return errors.Wrapf(ErrValidation, "leverage must be between 1 and %d", MaxLeverage)
	}

	if r.StopLoss.IsNegative() || r.TakeProfit.IsNegative() {
		return errors.Wrap(ErrValidation, "stop_loss and take_profit must be greater than 0")
	}
	if r.StopLoss.IsPositive() && !r.StopLossPct.IsZero() {
		return errors.Wrap(ErrValidation, "stop_loss and stop_loss_pct are mutually exclusive")
	}
	if r.TakeProfit.IsPositive() && !r.TakeProfitPct.IsZero() {
		return errors.Wrap(ErrValidation, "take_profit and take_profit_pct are mutually exclusive")
	}

	if r.StopLossPct.IsNegative() || r.StopLossPct.GreaterThanOrEqual(hundred) {
		return errors.Wrap(ErrValidation, "stop_loss_pct must be between 0 and 100")
	}
	if r.TakeProfitPct.IsNegative() {
		return errors.Wrap(ErrValidation, "take_profit_pct must be greater than 0")
	}
	if r.Side == SideSell && r.TakeProfitPct.GreaterThanOrEqual(hundred) {
		return errors.Wrap(ErrValidation, "take_profit_pct must be below 100 for Sell orders")
	}
	return nil
}
