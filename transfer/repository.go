package transfer

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"goflare.io/chargeprocessor/driver"
	"goflare.io/chargeprocessor/models"
)

var _ Repository = (*repository)(nil)

// Repository indexes the transfers the platform made to connected accounts.
type Repository interface {
	Create(ctx context.Context, tx pgx.Tx, transfer *models.InternalTransfer) error
	// ListByMerchantAccount returns the merchant's transfers oldest first.
	ListByMerchantAccount(ctx context.Context, merchantAccountID string) ([]*models.InternalTransfer, error)
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

func (r *repository) Create(ctx context.Context, tx pgx.Tx, transfer *models.InternalTransfer) error {
	query := `
	INSERT INTO internal_transfers (id, transfer_id, merchant_account_id, amount_cents, currency, created_at)
	VALUES (@id, @transfer_id, @merchant_account_id, @amount_cents, @currency, @created_at)
	ON CONFLICT (transfer_id) DO NOTHING`

	args := pgx.NamedArgs{
		"id":                  transfer.ID,
		"transfer_id":         transfer.TransferID,
		"merchant_account_id": transfer.MerchantAccountID,
		"amount_cents":        transfer.Amount.Cents,
		"currency":            transfer.Amount.Currency,
		"created_at":          transfer.CreatedAt,
	}
	if _, err := tx.Exec(ctx, query, args); err != nil {
		r.logger.Error("Failed to index transfer", zap.Error(err), zap.String("transfer_id", transfer.TransferID))
		return fmt.Errorf("failed to create internal transfer: %w", err)
	}
	return nil
}

func (r *repository) ListByMerchantAccount(ctx context.Context, merchantAccountID string) ([]*models.InternalTransfer, error) {
	query := `
	SELECT id, transfer_id, merchant_account_id, amount_cents, currency, created_at
	FROM internal_transfers
	WHERE merchant_account_id = $1
	ORDER BY created_at, id`

	rows, err := r.conn.Query(ctx, query, merchantAccountID)
	if err != nil {
		return nil, fmt.Errorf("failed to list internal transfers: %w", err)
	}
	defer rows.Close()

	transfers := make([]*models.InternalTransfer, 0)
	for rows.Next() {
		t := new(models.InternalTransfer)
		if err = rows.Scan(
			&t.ID,
			&t.TransferID,
			&t.MerchantAccountID,
			&t.Amount.Cents,
			&t.Amount.Currency,
			&t.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan internal transfer: %w", err)
		}
		transfers = append(transfers, t)
	}
	return transfers, rows.Err()
}
