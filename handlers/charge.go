package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	processor "goflare.io/chargeprocessor"
	"goflare.io/chargeprocessor/merchant"
	"goflare.io/chargeprocessor/models"
)

type ChargeHandler interface {
	CreateCharge(c echo.Context) error
	SetupFutureCharges(c echo.Context) error
	ConfirmPaymentIntent(c echo.Context) error
	CancelPaymentIntent(c echo.Context) error
	CancelSetupIntent(c echo.Context) error
	Refund(c echo.Context) error
	GetCharge(c echo.Context) error
	SearchCharge(c echo.Context) error
}

type merchantLookup interface {
	GetByID(ctx context.Context, id string) (*models.MerchantAccount, error)
}

type chargeHandler struct {
	processor processor.ChargeProcessor
	merchants merchantLookup
	logger    *zap.Logger
}

func NewChargeHandler(chargeProcessor processor.ChargeProcessor, merchants merchantLookup, logger *zap.Logger) ChargeHandler {
	return &chargeHandler{
		processor: chargeProcessor,
		merchants: merchants,
		logger:    logger,
	}
}

func (h *chargeHandler) merchantAccount(ctx context.Context, id string) (*models.MerchantAccount, error) {
	if id == "" {
		return nil, fmt.Errorf("%w: merchant_account_id is required", processor.ErrInvalidRequest)
	}
	m, err := h.merchants.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, merchant.ErrNotFound) {
			return nil, fmt.Errorf("%w: unknown merchant account %s", processor.ErrInvalidRequest, id)
		}
		return nil, err
	}
	return m, nil
}

func (h *chargeHandler) chargeable(m *models.MerchantAccount, source models.ChargeableSource) (processor.Chargeable, error) {
	source.MerchantDestination = m
	return h.processor.NewChargeable(source)
}

// CreateCharge handles POST /charges
func (h *chargeHandler) CreateCharge(c echo.Context) error {
	var req struct {
		MerchantAccountID     string                  `json:"merchant_account_id"`
		Chargeable            models.ChargeableSource `json:"chargeable"`
		AmountCents           int64                   `json:"amount_cents"`
		FeeCents              int64                   `json:"fee_cents"`
		Currency              string                  `json:"currency"`
		Description           string                  `json:"description"`
		StatementDescription  string                  `json:"statement_description"`
		Reference             string                  `json:"reference"`
		OffSession            bool                    `json:"off_session"`
		SetupFutureCharges    bool                    `json:"setup_future_charges"`
		MandateSubscriptionID string                  `json:"mandate_subscription_id"`
	}
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request payload"})
	}

	ctx := c.Request().Context()
	m, err := h.merchantAccount(ctx, req.MerchantAccountID)
	if err != nil {
		return respondError(c, h.logger, "create_charge", err)
	}
	chargeable, err := h.chargeable(m, req.Chargeable)
	if err != nil {
		return respondError(c, h.logger, "create_charge", err)
	}

	intent, err := h.processor.CreatePaymentIntentOrCharge(ctx, processor.ChargeRequest{
		MerchantAccount:       m,
		Chargeable:            chargeable,
		AmountCents:           req.AmountCents,
		FeeCents:              req.FeeCents,
		Currency:              req.Currency,
		Description:           req.Description,
		OffSession:            req.OffSession,
		SetupFutureCharges:    req.SetupFutureCharges,
		StatementDescription:  req.StatementDescription,
		Reference:             req.Reference,
		MandateSubscriptionID: req.MandateSubscriptionID,
	})
	if err != nil {
		return respondError(c, h.logger, "create_charge", err)
	}

	return c.JSON(http.StatusCreated, intent)
}

// SetupFutureCharges handles POST /setup_intents
func (h *chargeHandler) SetupFutureCharges(c echo.Context) error {
	var req struct {
		MerchantAccountID     string                  `json:"merchant_account_id"`
		Chargeable            models.ChargeableSource `json:"chargeable"`
		Owner                 *models.User            `json:"owner"`
		Reference             string                  `json:"reference"`
		MandateSubscriptionID string                  `json:"mandate_subscription_id"`
		MandateAmountCents    int64                   `json:"mandate_amount_cents"`
		Currency              string                  `json:"currency"`
	}
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request payload"})
	}

	ctx := c.Request().Context()
	m, err := h.merchantAccount(ctx, req.MerchantAccountID)
	if err != nil {
		return respondError(c, h.logger, "setup_future_charges", err)
	}
	chargeable, err := h.chargeable(m, req.Chargeable)
	if err != nil {
		return respondError(c, h.logger, "setup_future_charges", err)
	}

	intent, err := h.processor.SetupFutureCharges(ctx, processor.SetupRequest{
		MerchantAccount:       m,
		Chargeable:            chargeable,
		Owner:                 req.Owner,
		Reference:             req.Reference,
		MandateSubscriptionID: req.MandateSubscriptionID,
		MandateAmountCents:    req.MandateAmountCents,
		Currency:              req.Currency,
	})
	if err != nil {
		return respondError(c, h.logger, "setup_future_charges", err)
	}

	return c.JSON(http.StatusCreated, intent)
}

// ConfirmPaymentIntent handles POST /merchants/:merchant_id/payment_intents/:id/confirm
func (h *chargeHandler) ConfirmPaymentIntent(c echo.Context) error {
	ctx := c.Request().Context()
	m, err := h.merchantAccount(ctx, c.Param("merchant_id"))
	if err != nil {
		return respondError(c, h.logger, "confirm_payment_intent", err)
	}

	intent, err := h.processor.ConfirmPaymentIntent(ctx, m, c.Param("id"))
	if err != nil {
		return respondError(c, h.logger, "confirm_payment_intent", err)
	}
	return c.JSON(http.StatusOK, intent)
}

// CancelPaymentIntent handles POST /merchants/:merchant_id/payment_intents/:id/cancel
func (h *chargeHandler) CancelPaymentIntent(c echo.Context) error {
	ctx := c.Request().Context()
	m, err := h.merchantAccount(ctx, c.Param("merchant_id"))
	if err != nil {
		return respondError(c, h.logger, "cancel_payment_intent", err)
	}

	intent, err := h.processor.CancelPaymentIntent(ctx, m, c.Param("id"))
	if err != nil {
		return respondError(c, h.logger, "cancel_payment_intent", err)
	}
	return c.JSON(http.StatusOK, intent)
}

// CancelSetupIntent handles POST /merchants/:merchant_id/setup_intents/:id/cancel
func (h *chargeHandler) CancelSetupIntent(c echo.Context) error {
	ctx := c.Request().Context()
	m, err := h.merchantAccount(ctx, c.Param("merchant_id"))
	if err != nil {
		return respondError(c, h.logger, "cancel_setup_intent", err)
	}

	intent, err := h.processor.CancelSetupIntent(ctx, m, c.Param("id"))
	if err != nil {
		return respondError(c, h.logger, "cancel_setup_intent", err)
	}
	return c.JSON(http.StatusOK, intent)
}

// Refund handles POST /charges/:id/refunds
func (h *chargeHandler) Refund(c echo.Context) error {
	var req struct {
		AmountCents       *int64 `json:"amount_cents"`
		MerchantAccountID string `json:"merchant_account_id"`
		IsForFraud        bool   `json:"is_for_fraud"`
	}
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request payload"})
	}

	ctx := c.Request().Context()
	var m *models.MerchantAccount
	if req.MerchantAccountID != "" {
		var err error
		if m, err = h.merchantAccount(ctx, req.MerchantAccountID); err != nil {
			return respondError(c, h.logger, "refund", err)
		}
	}

	refund, err := h.processor.Refund(ctx, processor.RefundRequest{
		ChargeID:        c.Param("id"),
		AmountCents:     req.AmountCents,
		MerchantAccount: m,
		IsForFraud:      req.IsForFraud,
	})
	if err != nil {
		return respondError(c, h.logger, "refund", err)
	}
	return c.JSON(http.StatusCreated, refund)
}

// GetCharge handles GET /charges/:id. Direct charges live on the connected
// account and need ?merchant_account_id= to be found.
func (h *chargeHandler) GetCharge(c echo.Context) error {
	ctx := c.Request().Context()

	var m *models.MerchantAccount
	if id := c.QueryParam("merchant_account_id"); id != "" {
		var err error
		if m, err = h.merchantAccount(ctx, id); err != nil {
			return respondError(c, h.logger, "get_charge", err)
		}
	}

	charge, err := h.processor.GetCharge(ctx, m, c.Param("id"))
	if err != nil {
		return respondError(c, h.logger, "get_charge", err)
	}
	return c.JSON(http.StatusOK, charge)
}

// SearchCharge handles GET /charges?reference=
func (h *chargeHandler) SearchCharge(c echo.Context) error {
	charge, err := h.processor.SearchCharge(c.Request().Context(), c.QueryParam("reference"))
	if err != nil {
		return respondError(c, h.logger, "search_charge", err)
	}
	if charge == nil {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "No charge for this purchase"})
	}
	return c.JSON(http.StatusOK, charge)
}
