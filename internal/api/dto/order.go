package dto

import (
	"reflect"
	"strings"

	"tvbridge/internal/bybit/entity"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

// OrderPayload тело /order и /webhook.
// Лишние поля от TradingView (strategy, trigger_time, max_lag, comment...) игнорируются.
// Для количества и SL/TP принимаются оба варианта имён: quantity|qty, stop_loss|sl и т.д.
type OrderPayload struct {
	Symbol      string              `json:"symbol" validate:"required"`
	Side        string              `json:"side" validate:"required"`
	OrderType   string              `json:"order_type" validate:"required"`
	Quantity    decimal.NullDecimal `json:"quantity"`
	Qty         decimal.NullDecimal `json:"qty"`
	Price       decimal.NullDecimal `json:"price"`
	Leverage    decimal.NullDecimal `json:"leverage"`
	ReduceOnly  bool                `json:"reduce_only"`
	OrderLinkID string              `json:"order_link_id" validate:"omitempty,max=36"`

	StopLoss      decimal.NullDecimal `json:"stop_loss"`
	TakeProfit    decimal.NullDecimal `json:"take_profit"`
	StopLossPct   decimal.NullDecimal `json:"stop_loss_pct"`
	TakeProfitPct decimal.NullDecimal `json:"take_profit_pct"`
	SL            decimal.NullDecimal `json:"sl"`
	TP            decimal.NullDecimal `json:"tp"`
	SLPct         decimal.NullDecimal `json:"sl_pct"`
	TPPct         decimal.NullDecimal `json:"tp_pct"`

	// Только для вебхука
	Passphrase string `json:"passphrase"`
}

type CancelOrderRequest struct {
	Symbol  string `json:"symbol" validate:"required"`
	OrderID string `json:"order_id" validate:"required"`
}

// SymbolRequest тело /cancel-all-orders и /close-position
type SymbolRequest struct {
	Symbol string `json:"symbol" validate:"required"`
}

var Validate = validator.New()

func init() {
	// В сообщениях об ошибках используем имена из json тегов
	Validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
}

// ValidationMessage превращает ошибки валидатора в читаемую строку
func ValidationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}

	messages := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		field := fe.Field()
		switch fe.Tag() {
		case "required":
			messages = append(messages, field+" is required")
		case "min":
			messages = append(messages, field+" must be at least "+fe.Param())
		case "max":
			messages = append(messages, field+" must be at most "+fe.Param())
		case "oneof":
			messages = append(messages, field+" must be one of: "+fe.Param())
		default:
			messages = append(messages, field+" is invalid")
		}
	}
	return strings.Join(messages, "; ")
}

// ToOrderRequest разбирает payload в entity.OrderRequest.
// Проверки диапазонов и взаимоисключений делает entity.OrderRequest.Validate.
func (p *OrderPayload) ToOrderRequest() (entity.OrderRequest, error) {
	side, err := entity.ParseSide(p.Side)
	if err != nil {
		return entity.OrderRequest{}, err
	}
	orderType, err := entity.ParseOrderType(p.OrderType)
	if err != nil {
		return entity.OrderRequest{}, err
	}

	req := entity.OrderRequest{
		Symbol:      p.Symbol,
		Side:        side,
		OrderType:   orderType,
		Leverage:    entity.DefaultLeverage,
		ReduceOnly:  p.ReduceOnly,
		OrderLinkID: p.OrderLinkID,
	}

	fields := []struct {
		dst      *decimal.Decimal
		names    [2]string
		aliases  [2]decimal.NullDecimal
		positive bool
	}{
		{&req.Quantity, [2]string{"quantity", "qty"}, [2]decimal.NullDecimal{p.Quantity, p.Qty}, true},
		{&req.Price, [2]string{"price", ""}, [2]decimal.NullDecimal{p.Price, {}}, true},
		// 0 в SL/TP шаблонах TradingView означает "без стопа"
		{&req.StopLoss, [2]string{"stop_loss", "sl"}, [2]decimal.NullDecimal{p.StopLoss, p.SL}, false},
		{&req.TakeProfit, [2]string{"take_profit", "tp"}, [2]decimal.NullDecimal{p.TakeProfit, p.TP}, false},
		{&req.StopLossPct, [2]string{"stop_loss_pct", "sl_pct"}, [2]decimal.NullDecimal{p.StopLossPct, p.SLPct}, false},
		{&req.TakeProfitPct, [2]string{"take_profit_pct", "tp_pct"}, [2]decimal.NullDecimal{p.TakeProfitPct, p.TPPct}, false},
	}
	for _, f := range fields {
		v, err := pick(f.names, f.aliases, f.positive)
		if err != nil {
			return entity.OrderRequest{}, err
		}
		*f.dst = v
	}

	if p.Leverage.Valid {
		if !p.Leverage.Decimal.IsInteger() {
			return entity.OrderRequest{}, errors.Wrapf(entity.ErrValidation, "leverage must be a whole number, got %s", p.Leverage.Decimal)
		}
		if p.Leverage.Decimal.LessThan(decimal.NewFromInt(1)) || p.Leverage.Decimal.GreaterThan(decimal.NewFromInt(entity.MaxLeverage)) {
			return entity.OrderRequest{}, errors.Wrapf(entity.ErrValidation, "leverage must be between 1 and %d", entity.MaxLeverage)
		}
		req.Leverage = int(p.Leverage.Decimal.IntPart())
	}
	req.Normalize()

	if err := req.Validate(); err != nil {
		return entity.OrderRequest{}, err
	}
	return req, nil
}

// pick возвращает значение поля, переданного под одним из двух имён.
// Разные значения под двумя именами - ошибка. С positive явный ноль тоже ошибка.
func pick(names [2]string, values [2]decimal.NullDecimal, positive bool) (decimal.Decimal, error) {
	result := decimal.Zero
	set := false
	for i, v := range values {
		if !v.Valid || (!positive && v.Decimal.IsZero()) {
			continue
		}
		if positive && !v.Decimal.IsPositive() {
			return decimal.Zero, errors.Wrapf(entity.ErrValidation, "%s must be greater than 0", names[i])
		}
		if set && !result.Equal(v.Decimal) {
			return decimal.Zero, errors.Wrapf(entity.ErrValidation, "%s and %s disagree: %s vs %s", names[0], names[1], result, v.Decimal)
		}
		result, set = v.Decimal, true
	}
	return result, nil
}
