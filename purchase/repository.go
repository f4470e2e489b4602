package purchase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"goflare.io/ember"

	"goflare.io/chargeprocessor/driver"
	"goflare.io/chargeprocessor/models"
	"goflare.io/chargeprocessor/models/enum"
)

var ErrNotFound = errors.New("purchase not found")

const purchaseColumns = `id, external_id, seller_id, merchant_account_id, charge_id,
	COALESCE(combined_charge_id, ''), state, amount_cents, fee_cents, currency, failure_code,
	created_at, updated_at`

var _ Repository = (*repository)(nil)

type Repository interface {
	GetByID(ctx context.Context, id string) (*models.Purchase, error)
	GetByExternalID(ctx context.Context, externalID string) (*models.Purchase, error)
	GetByChargeID(ctx context.Context, chargeID string) (*models.Purchase, error)
	SetChargeID(ctx context.Context, tx pgx.Tx, id, chargeID string) error
	TransitionFromInProgress(ctx context.Context, tx pgx.Tx, id string, state enum.PurchaseState, failureCode string) (bool, error)
	GetCombinedChargeByChargeID(ctx context.Context, chargeID string) (*models.CombinedCharge, error)
}

type repository struct {
	conn   driver.PostgresPool
	logger *zap.Logger
	cache  *ember.MultiCache
}

func NewRepository(conn driver.PostgresPool, logger *zap.Logger, cache *ember.MultiCache) Repository {
	return &repository{
		conn:   conn,
		logger: logger,
		cache:  cache,
	}
}

func purchaseCacheKey(id string) string {
	return fmt.Sprintf("purchase:%s", id)
}

func (r *repository) invalidate(ctx context.Context, id string) {
	if err := r.cache.Delete(ctx, purchaseCacheKey(id)); err != nil {
		r.logger.Warn("Failed to invalidate purchase cache", zap.Error(err), zap.String("id", id))
	}
}

func (r *repository) GetByID(ctx context.Context, id string) (*models.Purchase, error) {
	cached := new(models.Purchase)
	found, err := r.cache.Get(ctx, purchaseCacheKey(id), cached)
	if err != nil {
		r.logger.Warn("Failed to get purchase from cache", zap.Error(err), zap.String("id", id))
	} else if found {
		return cached, nil
	}

	p, err := r.getOne(ctx, `SELECT `+purchaseColumns+` FROM purchases WHERE id = $1`, id)
	if err != nil {
		return nil, err
	}
	if err = r.cache.Set(ctx, purchaseCacheKey(id), p); err != nil {
		r.logger.Warn("Failed to cache purchase", zap.Error(err), zap.String("id", id))
	}
	return p, nil
}

func (r *repository) GetByExternalID(ctx context.Context, externalID string) (*models.Purchase, error) {
	return r.getOne(ctx, `SELECT `+purchaseColumns+` FROM purchases WHERE external_id = $1`, externalID)
}

func (r *repository) GetByChargeID(ctx context.Context, chargeID string) (*models.Purchase, error) {
	return r.getOne(ctx, `SELECT `+purchaseColumns+` FROM purchases WHERE charge_id = $1 ORDER BY created_at LIMIT 1`, chargeID)
}

func (r *repository) getOne(ctx context.Context, query string, arg string) (*models.Purchase, error) {
	p := new(models.Purchase)
	if err := r.conn.QueryRow(ctx, query, arg).Scan(
		&p.ID,
		&p.ExternalID,
		&p.SellerID,
		&p.MerchantAccountID,
		&p.ChargeID,
		&p.CombinedChargeID,
		&p.State,
		&p.AmountCents,
		&p.FeeCents,
		&p.Currency,
		&p.FailureCode,
		&p.CreatedAt,
		&p.UpdatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get purchase: %w", err)
	}
	return p, nil
}

func (r *repository) SetChargeID(ctx context.Context, tx pgx.Tx, id, chargeID string) error {
	query := `UPDATE purchases SET charge_id = $2, updated_at = $3 WHERE id = $1`
	tag, err := tx.Exec(ctx, query, id, chargeID, time.Now())
	if err != nil {
		return fmt.Errorf("failed to set purchase charge: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	r.invalidate(ctx, id)
	return nil
}

// TransitionFromInProgress moves the purchase to state only while it is still
// in progress. It reports false when another path already finished it.
func (r *repository) TransitionFromInProgress(ctx context.Context, tx pgx.Tx, id string, state enum.PurchaseState, failureCode string) (bool, error) {
	query := `
	UPDATE purchases
	SET state = $2, failure_code = $3, updated_at = $4
	WHERE id = $1 AND state = $5`

	tag, err := tx.Exec(ctx, query, id, string(state), failureCode, time.Now(), string(enum.PurchaseStateInProgress))
	if err != nil {
		return false, fmt.Errorf("failed to transition purchase: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return false, nil
	}
	r.invalidate(ctx, id)
	return true, nil
}

func (r *repository) GetCombinedChargeByChargeID(ctx context.Context, chargeID string) (*models.CombinedCharge, error) {
	query := `SELECT id, charge_id, amount_cents, currency, created_at FROM combined_charges WHERE charge_id = $1`

	cc := new(models.CombinedCharge)
	if err := r.conn.QueryRow(ctx, query, chargeID).Scan(
		&cc.ID,
		&cc.ChargeID,
		&cc.AmountCents,
		&cc.Currency,
		&cc.CreatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get combined charge: %w", err)
	}
	return cc, nil
}
