package fraud

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"goflare.io/chargeprocessor/driver"
	"goflare.io/chargeprocessor/models"
)

var _ Repository = (*repository)(nil)

type Repository interface {
	// Upsert stores the warning against its purchase or combined charge. The
	// owner recorded first is kept.
	Upsert(ctx context.Context, tx pgx.Tx, warning *models.EarlyFraudWarning) error
}

type repository struct {
	conn   driver.PostgresPool
	logger *zap.Logger
}

func NewRepository(conn driver.PostgresPool, logger *zap.Logger) Repository {
	return &repository{
		conn:   conn,
		logger: logger,
	}
}

func (r *repository) Upsert(ctx context.Context, tx pgx.Tx, warning *models.EarlyFraudWarning) error {
	query := `
	INSERT INTO early_fraud_warnings (id, charge_id, fraud_type, actionable, purchase_id, combined_charge_id,
	                                  merchant_account_id, created_at)
	VALUES (@id, @charge_id, @fraud_type, @actionable, NULLIF(@purchase_id, ''), NULLIF(@combined_charge_id, ''),
	        NULLIF(@merchant_account_id, ''), @created_at)
	ON CONFLICT (id) DO UPDATE SET
	    fraud_type = EXCLUDED.fraud_type,
	    actionable = EXCLUDED.actionable,
	    purchase_id = COALESCE(early_fraud_warnings.purchase_id, EXCLUDED.purchase_id),
	    combined_charge_id = COALESCE(early_fraud_warnings.combined_charge_id, EXCLUDED.combined_charge_id),
	    merchant_account_id = COALESCE(early_fraud_warnings.merchant_account_id, EXCLUDED.merchant_account_id)`

	args := pgx.NamedArgs{
		"id":                  warning.ID,
		"charge_id":           warning.ChargeID,
		"fraud_type":          warning.FraudType,
		"actionable":          warning.Actionable,
		"purchase_id":         warning.PurchaseID,
		"combined_charge_id":  warning.CombinedChargeID,
		"merchant_account_id": warning.MerchantAccountID,
		"created_at":          warning.CreatedAt,
	}
	if _, err := tx.Exec(ctx, query, args); err != nil {
		r.logger.Error("Failed to upsert early fraud warning", zap.Error(err), zap.String("id", warning.ID))
		return fmt.Errorf("failed to upsert early fraud warning: %w", err)
	}
	return nil
}
