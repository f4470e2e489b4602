package refund

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"time"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"goflare.io/ember"
	"goflare.io/ignite"

	"goflare.io/chargeprocessor/driver"
	"goflare.io/chargeprocessor/models"
)

var ErrNotFound = errors.New("refund not found")

const refundColumns = `id, charge_id, amount, currency, status, reason, created_at, updated_at`

var _ Repository = (*repository)(nil)

type Repository interface {
	GetByID(ctx context.Context, id string) (*models.Refund, error)
	ListByChargeID(ctx context.Context, chargeID string) ([]*models.Refund, error)
	Upsert(ctx context.Context, tx pgx.Tx, refund *models.PartialRefund) error
}

type repository struct {
	conn        driver.PostgresPool
	logger      *zap.Logger
	cache       *ember.MultiCache
	poolManager ignite.Manager
}

func NewRepository(conn driver.PostgresPool, logger *zap.Logger, cache *ember.MultiCache, poolManager ignite.Manager) (Repository, error) {
	if err := poolManager.RegisterPool(reflect.TypeOf(&models.Refund{}), ignite.Config[any]{
		InitialSize: 10,
		MaxSize:     100,
		MaxIdleTime: 10 * time.Minute,
		Factory: func() (any, error) {
			return new(models.Refund), nil
		},
		Reset: func(obj any) error {
			r := obj.(*models.Refund)
			*r = models.Refund{}
			return nil
		},
	}); err != nil {
		return nil, fmt.Errorf("failed to register refund pool: %w", err)
	}

	return &repository{
		conn:        conn,
		logger:      logger,
		cache:       cache,
		poolManager: poolManager,
	}, nil
}

func refundCacheKey(id string) string {
	return fmt.Sprintf("refund:%s", id)
}

func refundsByChargeCacheKey(chargeID string) string {
	return fmt.Sprintf("refunds:charge:%s", chargeID)
}

// getFromPool hands out a scratch refund for decoding. Callers copy it out
// before release.
func (r *repository) getFromPool(ctx context.Context) (*models.Refund, func(), error) {
	pool, err := r.poolManager.GetPool(reflect.TypeOf(&models.Refund{}))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to get pool: %w", err)
	}

	objWrapper, err := pool.Get(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to get object from pool: %w", err)
	}

	refund := objWrapper.Object.(*models.Refund)
	release := func() {
		pool.Put(objWrapper)
	}

	return refund, release, nil
}

func (r *repository) GetByID(ctx context.Context, id string) (*models.Refund, error) {
	scratch, release, err := r.getFromPool(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	found, err := r.cache.Get(ctx, refundCacheKey(id), scratch)
	if err != nil {
		r.logger.Warn("Failed to get refund from cache", zap.Error(err), zap.String("id", id))
	} else if found {
		refund := *scratch
		return &refund, nil
	}

	if err = scanRefund(r.conn.QueryRow(ctx, `SELECT `+refundColumns+` FROM refunds WHERE id = $1`, id), scratch); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get refund: %w", err)
	}

	refund := *scratch
	if err = r.cache.Set(ctx, refundCacheKey(id), &refund); err != nil {
		r.logger.Warn("Failed to cache refund", zap.Error(err), zap.String("id", id))
	}
	return &refund, nil
}

func (r *repository) ListByChargeID(ctx context.Context, chargeID string) ([]*models.Refund, error) {
	var cached []*models.Refund
	found, err := r.cache.Get(ctx, refundsByChargeCacheKey(chargeID), &cached)
	if err != nil {
		r.logger.Warn("Failed to get refunds from cache", zap.Error(err), zap.String("charge_id", chargeID))
	} else if found {
		return cached, nil
	}

	rows, err := r.conn.Query(ctx, `SELECT `+refundColumns+` FROM refunds WHERE charge_id = $1 ORDER BY created_at`, chargeID)
	if err != nil {
		return nil, fmt.Errorf("failed to list refunds: %w", err)
	}
	defer rows.Close()

	refunds := make([]*models.Refund, 0)
	for rows.Next() {
		refund := new(models.Refund)
		if err = scanRefund(rows, refund); err != nil {
			return nil, fmt.Errorf("failed to scan refund: %w", err)
		}
		refunds = append(refunds, refund)

		if err = r.cache.Set(ctx, refundCacheKey(refund.ID), refund); err != nil {
			r.logger.Warn("Failed to cache individual refund", zap.Error(err), zap.String("id", refund.ID))
		}
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list refunds: %w", err)
	}

	if err = r.cache.Set(ctx, refundsByChargeCacheKey(chargeID), refunds); err != nil {
		r.logger.Warn("Failed to cache refunds list", zap.Error(err), zap.String("charge_id", chargeID))
	}
	return refunds, nil
}

func scanRefund(row pgx.Row, refund *models.Refund) error {
	return row.Scan(
		&refund.ID,
		&refund.ChargeID,
		&refund.Amount,
		&refund.Currency,
		&refund.Status,
		&refund.Reason,
		&refund.CreatedAt,
		&refund.UpdatedAt,
	)
}

// Upsert writes whatever fields the gateway reported and drops the cached copies.
func (r *repository) Upsert(ctx context.Context, tx pgx.Tx, refund *models.PartialRefund) error {
	const query = `
    INSERT INTO refunds (id, charge_id, amount, currency, status, reason, created_at, updated_at)
    VALUES (@id, COALESCE(@charge_id, ''), COALESCE(@amount, 0), COALESCE(@currency, ''),
            COALESCE(@status, 'pending'), COALESCE(@reason, ''), COALESCE(@created_at, NOW()), @updated_at)
    ON CONFLICT (id) DO UPDATE SET
        charge_id = COALESCE(@charge_id, refunds.charge_id),
        amount = COALESCE(@amount, refunds.amount),
        currency = COALESCE(@currency, refunds.currency),
        status = COALESCE(@status, refunds.status),
        reason = COALESCE(@reason, refunds.reason),
        updated_at = @updated_at
    WHERE refunds.id = @id
    RETURNING charge_id
    `

	var status *string
	if refund.Status != nil {
		s := string(*refund.Status)
		status = &s
	}

	args := pgx.NamedArgs{
		"id":         refund.ID,
		"charge_id":  refund.ChargeID,
		"amount":     refund.Amount,
		"currency":   refund.Currency,
		"status":     status,
		"reason":     refund.Reason,
		"created_at": refund.CreatedAt,
		"updated_at": time.Now(),
	}

	var chargeID string
	if err := tx.QueryRow(ctx, query, args).Scan(&chargeID); err != nil {
		return fmt.Errorf("failed to upsert refund: %w", err)
	}

	for _, key := range []string{refundCacheKey(refund.ID), refundsByChargeCacheKey(chargeID)} {
		if err := r.cache.Delete(ctx, key); err != nil {
			r.logger.Warn("Failed to invalidate refund cache", zap.Error(err), zap.String("key", key))
		}
	}
	return nil
}
