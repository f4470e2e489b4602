package backtax

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"goflare.io/chargeprocessor/driver"
	"goflare.io/chargeprocessor/models"
)

var ErrNotFound = errors.New("backtax agreement not found")

const agreementColumns = `id, merchant_account_id, credit_id, owed_cents, owed_currency,
	collected_cents, collected_at, created_at, updated_at`

var _ Repository = (*repository)(nil)

type Repository interface {
	// Create inserts the agreement and reports false when the credit already
	// has one.
	Create(ctx context.Context, tx pgx.Tx, agreement *models.BacktaxAgreement) (bool, error)
	GetByID(ctx context.Context, id string) (*models.BacktaxAgreement, error)
	ListPending(ctx context.Context) ([]*models.BacktaxAgreement, error)
	// RecordCollected stores the cumulative amount recovered so far, in owed
	// currency cents.
	RecordCollected(ctx context.Context, tx pgx.Tx, id string, collectedCents int64) error
	MarkCollected(ctx context.Context, tx pgx.Tx, id string) error
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

func (r *repository) Create(ctx context.Context, tx pgx.Tx, agreement *models.BacktaxAgreement) (bool, error) {
	query := `
	INSERT INTO backtax_agreements (id, merchant_account_id, credit_id, owed_cents, owed_currency, created_at, updated_at)
	VALUES (@id, @merchant_account_id, @credit_id, @owed_cents, @owed_currency, @created_at, @created_at)
	ON CONFLICT (credit_id) DO NOTHING`

	args := pgx.NamedArgs{
		"id":                  agreement.ID,
		"merchant_account_id": agreement.MerchantAccountID,
		"credit_id":           agreement.CreditID,
		"owed_cents":          agreement.Owed.Cents,
		"owed_currency":       agreement.Owed.Currency,
		"created_at":          agreement.CreatedAt,
	}
	tag, err := tx.Exec(ctx, query, args)
	if err != nil {
		r.logger.Error("Failed to create backtax agreement", zap.Error(err), zap.String("credit_id", agreement.CreditID))
		return false, fmt.Errorf("failed to create backtax agreement: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *repository) GetByID(ctx context.Context, id string) (*models.BacktaxAgreement, error) {
	a, err := scanAgreement(r.conn.QueryRow(ctx, `SELECT `+agreementColumns+` FROM backtax_agreements WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get backtax agreement: %w", err)
	}
	return a, nil
}

func (r *repository) ListPending(ctx context.Context) ([]*models.BacktaxAgreement, error) {
	rows, err := r.conn.Query(ctx, `SELECT `+agreementColumns+` FROM backtax_agreements
	WHERE collected_at IS NULL ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending backtax agreements: %w", err)
	}
	defer rows.Close()

	agreements := make([]*models.BacktaxAgreement, 0)
	for rows.Next() {
		a, err := scanAgreement(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan backtax agreement: %w", err)
		}
		agreements = append(agreements, a)
	}
	return agreements, rows.Err()
}

func scanAgreement(row pgx.Row) (*models.BacktaxAgreement, error) {
	a := new(models.BacktaxAgreement)
	var owedCents int64
	var owedCurrency string
	if err := row.Scan(
		&a.ID,
		&a.MerchantAccountID,
		&a.CreditID,
		&owedCents,
		&owedCurrency,
		&a.CollectedCents,
		&a.CollectedAt,
		&a.CreatedAt,
		&a.UpdatedAt,
	); err != nil {
		return nil, err
	}
	a.Owed = models.NewMoney(owedCurrency, owedCents)
	return a, nil
}

func (r *repository) RecordCollected(ctx context.Context, tx pgx.Tx, id string, collectedCents int64) error {
	query := `
	UPDATE backtax_agreements
	SET collected_cents = GREATEST(collected_cents, $2), updated_at = $3
	WHERE id = $1 AND collected_at IS NULL`
	if _, err := tx.Exec(ctx, query, id, collectedCents, time.Now()); err != nil {
		r.logger.Error("Failed to record backtax collection", zap.Error(err), zap.String("agreement_id", id))
		return fmt.Errorf("failed to record backtax collection: %w", err)
	}
	return nil
}

func (r *repository) MarkCollected(ctx context.Context, tx pgx.Tx, id string) error {
	query := `
	UPDATE backtax_agreements
	SET collected_at = $2, updated_at = $2
	WHERE id = $1 AND collected_at IS NULL`
	if _, err := tx.Exec(ctx, query, id, time.Now()); err != nil {
		return fmt.Errorf("failed to mark backtax agreement collected: %w", err)
	}
	return nil
}
