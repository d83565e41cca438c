package service

import (
	"tvbridge/internal/bybit/entity"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// ResolveRiskPrices переводит проценты SL/TP в абсолютные цены относительно опорной цены.
// Для Buy стоп ниже опорной цены, тейк выше; для Sell наоборот.
// Нулевой процент означает, что соответствующая цена не нужна (возвращается ноль).
func ResolveRiskPrices(side entity.Side, reference, slPct, tpPct, tickSize decimal.Decimal) (sl, tp decimal.Decimal, err error) {
	if !reference.IsPositive() {
		return decimal.Zero, decimal.Zero, errors.Wrap(entity.ErrValidation, "reference price must be greater than 0")
	}

	slFactor := slPct.Div(hundred)
	tpFactor := tpPct.Div(hundred)
	one := decimal.NewFromInt(1)

	if slPct.IsPositive() {
		if side == entity.SideBuy {
			sl = reference.Mul(one.Sub(slFactor))
		} else {
			sl = reference.Mul(one.Add(slFactor))
		}
		sl = RoundToTick(sl, tickSize)
		if !sl.IsPositive() {
			return decimal.Zero, decimal.Zero, errors.Wrapf(entity.ErrValidation, "stop loss %s%% gives a non-positive price", slPct)
		}
	}

	if tpPct.IsPositive() {
		if side == entity.SideBuy {
			tp = reference.Mul(one.Add(tpFactor))
		} else {
			tp = reference.Mul(one.Sub(tpFactor))
		}
		tp = RoundToTick(tp, tickSize)
		if !tp.IsPositive() {
			return decimal.Zero, decimal.Zero, errors.Wrapf(entity.ErrValidation, "take profit %s%% gives a non-positive price", tpPct)
		}
	}

	return sl, tp, nil
}

// RoundToTick округляет цену до ближайшего шага цены. Нулевой шаг оставляет цену как есть.
func RoundToTick(price, tick decimal.Decimal) decimal.Decimal {
	if !tick.IsPositive() {
		return price
	}
	return price.Div(tick).Round(0).Mul(tick)
}
