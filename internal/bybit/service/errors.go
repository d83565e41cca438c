package service

import (
	"fmt"

	"tvbridge/internal/bybit/entity"

	"github.com/pkg/errors"
)

// OrderError ошибка операции над ордером или позицией
type OrderError struct {
	Symbol string
	Op     string
	Err    error
}

func (e *OrderError) Error() string {
	if e.Symbol != "" {
		return fmt.Sprintf("%s %s: %v", e.Op, e.Symbol, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

// Unwrap для errors.Is/As
func (e *OrderError) Unwrap() error {
	return e.Err
}

func newOrderError(symbol, op string, err error) error {
	if err == nil {
		return nil
	}
	return &OrderError{Symbol: symbol, Op: op, Err: err}
}

// IsValidation true для ошибок, в которых виноват запрос, а не биржа
func IsValidation(err error) bool {
	return errors.Is(err, entity.ErrValidation)
}
