package credit

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
	// Create inserts the credit and reports false when a credit for the same
	// paydown already exists.
	Create(ctx context.Context, tx pgx.Tx, credit *models.Credit) (bool, error)
	GetByPaydownID(ctx context.Context, tx pgx.Tx, paydownID string) (*models.Credit, error)
	ListByMerchantAccount(ctx context.Context, merchantAccountID string) ([]*models.Credit, error)
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

func (r *repository) Create(ctx context.Context, tx pgx.Tx, credit *models.Credit) (bool, error) {
	query := `
	INSERT INTO credits (id, merchant_account_id, user_id, kind, amount_cents, currency,
	                     purchase_id, paydown_id, admin_actor_id, created_at)
	VALUES (@id, @merchant_account_id, @user_id, @kind, @amount_cents, @currency,
	        @purchase_id, NULLIF(@paydown_id, ''), @admin_actor_id, @created_at)
	ON CONFLICT (paydown_id) DO NOTHING`

	args := pgx.NamedArgs{
		"id":                  credit.ID,
		"merchant_account_id": credit.MerchantAccountID,
		"user_id":             credit.UserID,
		"kind":                string(credit.Kind),
		"amount_cents":        credit.Amount.Cents,
		"currency":            credit.Amount.Currency,
		"purchase_id":         credit.PurchaseID,
		"paydown_id":          credit.PaydownID,
		"admin_actor_id":      credit.AdminActorID,
		"created_at":          credit.CreatedAt,
	}
	tag, err := tx.Exec(ctx, query, args)
	if err != nil {
		r.logger.Error("Failed to create credit", zap.Error(err), zap.String("merchant_account_id", credit.MerchantAccountID))
		return false, fmt.Errorf("failed to create credit: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

const creditColumns = `id, merchant_account_id, user_id, kind, amount_cents, currency, purchase_id,
	COALESCE(paydown_id, ''), admin_actor_id, created_at`

func (r *repository) GetByPaydownID(ctx context.Context, tx pgx.Tx, paydownID string) (*models.Credit, error) {
	credit, err := scanCredit(tx.QueryRow(ctx, `SELECT `+creditColumns+` FROM credits WHERE paydown_id = $1`, paydownID))
	if err != nil {
		return nil, fmt.Errorf("failed to get credit for paydown %s: %w", paydownID, err)
	}
	return credit, nil
}

func (r *repository) ListByMerchantAccount(ctx context.Context, merchantAccountID string) ([]*models.Credit, error) {
	rows, err := r.conn.Query(ctx, `SELECT `+creditColumns+` FROM credits WHERE merchant_account_id = $1 ORDER BY created_at`, merchantAccountID)
	if err != nil {
		return nil, fmt.Errorf("failed to list credits: %w", err)
	}
	defer rows.Close()

	credits := make([]*models.Credit, 0)
	for rows.Next() {
		c, err := scanCredit(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan credit: %w", err)
		}
		credits = append(credits, c)
	}
	return credits, rows.Err()
}

func scanCredit(row pgx.Row) (*models.Credit, error) {
	c := new(models.Credit)
	if err := row.Scan(
		&c.ID,
		&c.MerchantAccountID,
		&c.UserID,
		&c.Kind,
		&c.Amount.Cents,
		&c.Amount.Currency,
		&c.PurchaseID,
		&c.PaydownID,
		&c.AdminActorID,
		&c.CreatedAt,
	); err != nil {
		return nil, err
	}
	return c, nil
}
