package api

import (
	"allocation-service/internal/allocation"
	"allocation-service/internal/entity"
	"allocation-service/internal/repository"
	"allocation-service/internal/service"
	"allocation-service/internal/stock"
	"errors"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
	"os"
)

var logger = zerolog.New(os.Stdout).With().Timestamp().Logger()

// errorResponse maps service errors onto status codes.
func errorResponse(c echo.Context, err error) error {
	var allocErr *allocation.AllocationError
	if errors.As(err, &allocErr) {
		return c.JSON(422, map[string]interface{}{"error": allocErr.Error(), "rules": allocErr.Rules})
	}

	var validationErr *service.ValidationError
	if errors.As(err, &validationErr) {
		return c.JSON(400, map[string]interface{}{"error": validationErr.Error(), "fields": validationErr.Fields})
	}

	switch {
	case errors.Is(err, repository.ErrOrderNotFound),
		errors.Is(err, repository.ErrCustomerNotFound),
		errors.Is(err, repository.ErrProductNotFound),
		errors.Is(err, entity.ErrRuleNotFound):
		return c.JSON(404, map[string]string{"error": err.Error()})
	case errors.Is(err, service.ErrInvalidQuantity),
		errors.Is(err, stock.ErrFractionalQuantity):
		return c.JSON(400, map[string]string{"error": err.Error()})
	case errors.Is(err, service.ErrDuplicateRequest),
		errors.Is(err, service.ErrOrderClosed),
		errors.Is(err, service.ErrOrderLocked):
		return c.JSON(409, map[string]string{"error": err.Error()})
	case errors.Is(err, stock.ErrStockUnavailable):
		return c.JSON(503, map[string]string{"error": err.Error()})
	}

	logger.Error().Err(err).Str("path", c.Path()).Msg("Request failed")
	return c.JSON(500, map[string]string{"error": err.Error()})
}
