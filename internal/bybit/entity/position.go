package entity

import "github.com/shopspring/decimal"

// Position позиция в том виде, в каком её отдаёт /v5/position/list
type Position struct {
	Symbol         string `json:"symbol"`
	Side           string `json:"side"` // Buy, Sell, "" для пустой позиции
	Size           string `json:"size"`
	PositionIdx    int    `json:"positionIdx"`
	PositionValue  string `json:"positionValue"`
	AvgPrice       string `json:"avgPrice"`
	MarkPrice      string `json:"markPrice"`
	UnrealisedPnl  string `json:"unrealisedPnl"`
	Leverage       string `json:"leverage"`
	PositionStatus string `json:"positionStatus"`
	TakeProfit     string `json:"takeProfit"`
	StopLoss       string `json:"stopLoss"`
	TrailingStop   string `json:"trailingStop"`
}

// SizeDecimal размер позиции; невалидная строка считается нулём
func (p *Position) SizeDecimal() decimal.Decimal {
	size, err := decimal.NewFromString(p.Size)
	if err != nil {
		return decimal.Zero
	}
	return size
}

// IsOpen true, если по позиции есть объём
func (p *Position) IsOpen() bool {
	return p != nil && !p.SizeDecimal().IsZero()
}

// InstrumentStatusTrading статус символа, открытого для торговли
const InstrumentStatusTrading = "Trading"

// Instrument торговые ограничения символа (instruments-info)
type Instrument struct {
	Symbol      string
	Status      string
	MinOrderQty decimal.Decimal
	MaxOrderQty decimal.Decimal
	QtyStep     decimal.Decimal
	TickSize    decimal.Decimal
	MinLeverage decimal.Decimal
	MaxLeverage decimal.Decimal
}
