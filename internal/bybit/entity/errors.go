package entity

import "github.com/pkg/errors"

// Ошибки уровня запроса. Всё, что обёрнуто в ErrValidation, отдаётся клиенту как 400.
var (
	ErrValidation     = errors.New("validation error")
	ErrNoPosition     = errors.Wrap(ErrValidation, "no open position")
	ErrSymbolNotFound = errors.Wrap(ErrValidation, "symbol not found")
)
