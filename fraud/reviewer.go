package fraud

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	processor "goflare.io/chargeprocessor"
	"goflare.io/chargeprocessor/models"
)

type chargeGateway interface {
	GetCharge(ctx context.Context, merchant *models.MerchantAccount, chargeID string) (*models.Charge, error)
	Refund(ctx context.Context, req processor.RefundRequest) (*models.ChargeRefund, error)
}

type merchantLookup interface {
	GetByID(ctx context.Context, id string) (*models.MerchantAccount, error)
}

// Reviewer settles review jobs. An actionable warning means the issuer will
// file a dispute, so whatever is left on the charge goes back to the buyer first.
// Charges made directly on a merchant's account are read and refunded there.
type Reviewer struct {
	gateway   chargeGateway
	merchants merchantLookup
	logger    *zap.Logger
}

func NewReviewer(gateway chargeGateway, merchants merchantLookup, logger *zap.Logger) *Reviewer {
	return &Reviewer{gateway: gateway, merchants: merchants, logger: logger}
}

func (r *Reviewer) Review(ctx context.Context, job ReviewJob) error {
	if !job.Actionable {
		r.logger.Info("Early fraud warning is not actionable",
			zap.String("warning_id", job.WarningID),
			zap.String("charge_id", job.ChargeID))
		return nil
	}

	var merchant *models.MerchantAccount
	if job.MerchantAccountID != "" {
		var err error
		if merchant, err = r.merchants.GetByID(ctx, job.MerchantAccountID); err != nil {
			return fmt.Errorf("failed to get merchant account %s: %w", job.MerchantAccountID, err)
		}
	}

	charge, err := r.gateway.GetCharge(ctx, merchant, job.ChargeID)
	if err != nil {
		return fmt.Errorf("failed to load charge %s: %w", job.ChargeID, err)
	}
	if charge.Refunded || charge.RemainingRefundable() <= 0 {
		return nil
	}

	refund, err := r.gateway.Refund(ctx, processor.RefundRequest{
		ChargeID:        job.ChargeID,
		MerchantAccount: merchant,
		IsForFraud:      true,
	})
	if err != nil {
		if errors.Is(err, processor.ErrAlreadyRefunded) {
			return nil
		}
		return fmt.Errorf("failed to refund charge %s for fraud: %w", job.ChargeID, err)
	}

	r.logger.Info("Refunded charge after early fraud warning",
		zap.String("warning_id", job.WarningID),
		zap.String("charge_id", job.ChargeID),
		zap.String("refund_id", refund.ID))
	return nil
}
