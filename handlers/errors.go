package handlers

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	processor "goflare.io/chargeprocessor"
)

type errorResponse struct {
	Error     string `json:"error"`
	ErrorCode string `json:"error_code,omitempty"`
	ChargeID  string `json:"charge_id,omitempty"`
	Message   string `json:"message,omitempty"`
}

// respondError turns processor errors into the rejection the checkout shows.
// Declines and bad requests are structured; anything else is logged in full and
// answered with a generic message.
func respondError(c echo.Context, logger *zap.Logger, op string, err error) error {
	var decline *processor.CardDeclineError
	switch {
	case errors.As(err, &decline):
		return c.JSON(http.StatusPaymentRequired, errorResponse{
			Error:     "card_declined",
			ErrorCode: decline.ErrorCode,
			ChargeID:  decline.ChargeID,
			Message:   decline.Message,
		})
	case errors.Is(err, processor.ErrInvalidInstrument):
		return c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid_instrument", Message: err.Error()})
	case errors.Is(err, processor.ErrInvalidRequest):
		return c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid_request", Message: err.Error()})
	case errors.Is(err, processor.ErrAlreadyRefunded):
		return c.JSON(http.StatusConflict, errorResponse{Error: "already_refunded", Message: err.Error()})
	case errors.Is(err, processor.ErrAlreadySettled):
		return c.JSON(http.StatusConflict, errorResponse{Error: "already_settled", Message: err.Error()})
	}

	logger.Error("Charge processor request failed", zap.String("operation", op), zap.Error(err))
	status := http.StatusInternalServerError
	if errors.Is(err, processor.ErrProcessorUnavailable) {
		status = http.StatusServiceUnavailable
	}
	return c.JSON(status, errorResponse{Error: "Something went wrong, please try again"})
}
