package inventory

import (
	"errors"
	"fmt"

	pkgerrors "github.com/rfl-designer/e-tupan-sub007/pkg/errors"
)

// InsufficientStockError reports a rejected decrement or hold, carrying the
// quantities the caller needs for user-facing messaging.
type InsufficientStockError struct {
	Requested int
	Available int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock: requested %d, available %d", e.Requested, e.Available)
}

// NewInsufficientStock builds the coded error surfaced when stock cannot cover
// a request. The typed cause stays reachable through errors.As.
func NewInsufficientStock(requested, available int) error {
	cause := &InsufficientStockError{Requested: requested, Available: available}
	return pkgerrors.Wrap(pkgerrors.CodeInsufficientStock, cause, "insufficient stock").
		WithDetails(map[string]int{"requested": requested, "available": available})
}

// AsInsufficientStock extracts the typed shortage from an error chain.
func AsInsufficientStock(err error) *InsufficientStockError {
	var typed *InsufficientStockError
	if errors.As(err, &typed) {
		return typed
	}
	return nil
}
