package domain

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidConfiguration = errors.New("invalid configuration")
	ErrInsufficientStock    = errors.New("insufficient stock")
	ErrIngredientNotFound   = errors.New("ingredient not found")
	ErrIngredientExists     = errors.New("ingredient already exists")
	ErrPersistence          = errors.New("order persistence failed")
	ErrRollback             = errors.New("reservation rollback failed")
	ErrOrderNotFound        = errors.New("order not found")
	ErrInvalidStatus        = errors.New("invalid order status")
	ErrDuplicateRequest     = errors.New("duplicate request")
)

// ReservationError identifies the first ingredient a placement could not
// reserve. Err is ErrInsufficientStock, ErrIngredientNotFound or the store
// failure that aborted the attempt.
type ReservationError struct {
	Ref IngredientRef
	Err error
}

func (e *ReservationError) Error() string {
	return fmt.Sprintf("reserve %s x%d: %v", e.Ref.Key(), e.Ref.Quantity, e.Err)
}

func (e *ReservationError) Unwrap() error {
	return e.Err
}
