package service

import (
	"context"

	"tvbridge/internal/bybit/entity"

	"github.com/shopspring/decimal"
)

// Exchange операции Bybit, которые нужны OrderManager
type Exchange interface {
	GetInstrument(ctx context.Context, category, symbol string) (*entity.Instrument, error)
	GetLastPrice(ctx context.Context, category, symbol string) (decimal.Decimal, error)
	SetLeverage(ctx context.Context, category, symbol string, leverage int) error
	CreateOrder(ctx context.Context, order *BybitOrderRequest) (*APIResponse, error)
	CancelOrder(ctx context.Context, category, symbol, orderID string) (*APIResponse, error)
	CancelAllOrders(ctx context.Context, category, symbol string) (*APIResponse, error)
	GetPositions(ctx context.Context, category, symbol string) ([]entity.Position, error)
	GetWalletBalance(ctx context.Context, accountType string) (*APIResponse, error)
}

var _ Exchange = (*BybitHTTPClient)(nil)
