package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"goflare.io/chargeprocessor/disputes"
	"goflare.io/chargeprocessor/models"
	"goflare.io/chargeprocessor/purchase"
	"goflare.io/chargeprocessor/refund"
)

// LedgerHandler serves read-only views of what reconciliation has recorded.
type LedgerHandler interface {
	GetPurchase(c echo.Context) error
	ListChargeRefunds(c echo.Context) error
	GetRefund(c echo.Context) error
	GetDispute(c echo.Context) error
	ListMerchantCredits(c echo.Context) error
}

type purchaseReader interface {
	GetByID(ctx context.Context, id string) (*models.Purchase, error)
}

type refundReader interface {
	GetByID(ctx context.Context, id string) (*models.Refund, error)
	ListByChargeID(ctx context.Context, chargeID string) ([]*models.Refund, error)
}

type disputeReader interface {
	GetByID(ctx context.Context, id string) (*models.Dispute, error)
}

type creditReader interface {
	ListByMerchantAccount(ctx context.Context, merchantAccountID string) ([]*models.Credit, error)
}

type ledgerHandler struct {
	purchases purchaseReader
	refunds   refundReader
	disputes  disputeReader
	credits   creditReader
	logger    *zap.Logger
}

func NewLedgerHandler(purchases purchaseReader, refunds refundReader, disputes disputeReader, credits creditReader, logger *zap.Logger) LedgerHandler {
	return &ledgerHandler{
		purchases: purchases,
		refunds:   refunds,
		disputes:  disputes,
		credits:   credits,
		logger:    logger,
	}
}

// GetPurchase handles GET /purchases/:id
func (h *ledgerHandler) GetPurchase(c echo.Context) error {
	p, err := h.purchases.GetByID(c.Request().Context(), c.Param("id"))
	if err != nil {
		return h.respond(c, "get_purchase", err, purchase.ErrNotFound)
	}
	return c.JSON(http.StatusOK, p)
}

// ListChargeRefunds handles GET /charges/:id/refunds
func (h *ledgerHandler) ListChargeRefunds(c echo.Context) error {
	refunds, err := h.refunds.ListByChargeID(c.Request().Context(), c.Param("id"))
	if err != nil {
		return h.respond(c, "list_charge_refunds", err, nil)
	}
	return c.JSON(http.StatusOK, refunds)
}

// GetRefund handles GET /refunds/:id
func (h *ledgerHandler) GetRefund(c echo.Context) error {
	r, err := h.refunds.GetByID(c.Request().Context(), c.Param("id"))
	if err != nil {
		return h.respond(c, "get_refund", err, refund.ErrNotFound)
	}
	return c.JSON(http.StatusOK, r)
}

// GetDispute handles GET /disputes/:id
func (h *ledgerHandler) GetDispute(c echo.Context) error {
	d, err := h.disputes.GetByID(c.Request().Context(), c.Param("id"))
	if err != nil {
		return h.respond(c, "get_dispute", err, disputes.ErrNotFound)
	}
	return c.JSON(http.StatusOK, d)
}

// ListMerchantCredits handles GET /merchants/:merchant_id/credits
func (h *ledgerHandler) ListMerchantCredits(c echo.Context) error {
	credits, err := h.credits.ListByMerchantAccount(c.Request().Context(), c.Param("merchant_id"))
	if err != nil {
		return h.respond(c, "list_merchant_credits", err, nil)
	}
	return c.JSON(http.StatusOK, credits)
}

func (h *ledgerHandler) respond(c echo.Context, op string, err, notFound error) error {
	if notFound != nil && errors.Is(err, notFound) {
		return c.JSON(http.StatusNotFound, errorResponse{Error: "not_found", Message: err.Error()})
	}
	h.logger.Error("Ledger read failed", zap.String("operation", op), zap.Error(err))
	return c.JSON(http.StatusInternalServerError, errorResponse{Error: "Something went wrong, please try again"})
}
