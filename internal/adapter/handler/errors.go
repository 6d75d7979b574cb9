package handler

import (
	"context"
	"errors"
	"net/http"

	"google.golang.org/grpc/codes"

	"github.com/rl1809/pizzahub/internal/core/domain"
)

type errorMapping struct {
	target  error
	status  int
	code    codes.Code
	message string
}

// Checked in order; the first match wins.
var errorMappings = []errorMapping{
	{domain.ErrInvalidConfiguration, http.StatusBadRequest, codes.InvalidArgument, "invalid request"},
	{domain.ErrInvalidStatus, http.StatusBadRequest, codes.InvalidArgument, "invalid status"},
	{domain.ErrDuplicateRequest, http.StatusConflict, codes.AlreadyExists, "duplicate request"},
	{domain.ErrIngredientExists, http.StatusConflict, codes.AlreadyExists, "ingredient already exists"},
	{domain.ErrInsufficientStock, http.StatusConflict, codes.ResourceExhausted, "insufficient stock"},
	{domain.ErrIngredientNotFound, http.StatusNotFound, codes.NotFound, "ingredient not found"},
	{domain.ErrOrderNotFound, http.StatusNotFound, codes.NotFound, "order not found"},
	{context.DeadlineExceeded, http.StatusGatewayTimeout, codes.DeadlineExceeded, "store timeout"},
	{context.Canceled, 499, codes.Canceled, "request cancelled"},
	{domain.ErrPersistence, http.StatusInternalServerError, codes.Internal, "failed to save order"},
}

func classify(err error) errorMapping {
	for _, m := range errorMappings {
		if errors.Is(err, m.target) {
			return m
		}
	}
	return errorMapping{status: http.StatusInternalServerError, code: codes.Internal, message: "internal error"}
}

// failedIngredient names the ingredient a placement stopped at, if any.
func failedIngredient(err error) (domain.IngredientKey, bool) {
	var resErr *domain.ReservationError
	if errors.As(err, &resErr) {
		return resErr.Ref.Key(), true
	}
	return domain.IngredientKey{}, false
}
