package merchant

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

var ErrNotFound = errors.New("merchant account not found")

const merchantColumns = `id, user_id, gateway_account_id, currency, country, is_platform,
	charges_on_merchant_account, created_at`

var _ Repository = (*repository)(nil)

type Repository interface {
	GetByID(ctx context.Context, id string) (*models.MerchantAccount, error)
	GetByGatewayAccountID(ctx context.Context, gatewayAccountID string) (*models.MerchantAccount, error)
}

type repository struct {
	conn        driver.PostgresPool
	logger      *zap.Logger
	cache       *ember.MultiCache
	poolManager ignite.Manager
}

func NewRepository(conn driver.PostgresPool, logger *zap.Logger, cache *ember.MultiCache, poolManager ignite.Manager) (Repository, error) {
	if err := poolManager.RegisterPool(reflect.TypeOf(&models.MerchantAccount{}), ignite.Config[any]{
		InitialSize: 10,
		MaxSize:     100,
		MaxIdleTime: 10 * time.Minute,
		Factory: func() (any, error) {
			return new(models.MerchantAccount), nil
		},
		Reset: func(obj any) error {
			m := obj.(*models.MerchantAccount)
			*m = models.MerchantAccount{}
			return nil
		},
	}); err != nil {
		return nil, fmt.Errorf("failed to register merchant account pool: %w", err)
	}

	return &repository{
		conn:        conn,
		logger:      logger,
		cache:       cache,
		poolManager: poolManager,
	}, nil
}

func (r *repository) GetByID(ctx context.Context, id string) (*models.MerchantAccount, error) {
	cacheKey := fmt.Sprintf("merchant_account:%s", id)

	pool, err := r.poolManager.GetPool(reflect.TypeOf(&models.MerchantAccount{}))
	if err != nil {
		return nil, fmt.Errorf("failed to get pool: %w", err)
	}
	objWrapper, err := pool.Get(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get object from pool: %w", err)
	}
	defer pool.Put(objWrapper)

	scratch := objWrapper.Object.(*models.MerchantAccount)
	found, err := r.cache.Get(ctx, cacheKey, scratch)
	if err != nil {
		r.logger.Warn("Failed to get merchant account from cache", zap.Error(err), zap.String("id", id))
	} else if found {
		m := *scratch
		return &m, nil
	}

	m, err := r.getOne(ctx, `SELECT `+merchantColumns+` FROM merchant_accounts WHERE id = $1`, id)
	if err != nil {
		return nil, err
	}
	if err = r.cache.Set(ctx, cacheKey, m); err != nil {
		r.logger.Warn("Failed to cache merchant account", zap.Error(err), zap.String("id", id))
	}
	return m, nil
}

func (r *repository) GetByGatewayAccountID(ctx context.Context, gatewayAccountID string) (*models.MerchantAccount, error) {
	return r.getOne(ctx, `SELECT `+merchantColumns+` FROM merchant_accounts
	WHERE gateway_account_id = $1 ORDER BY created_at DESC LIMIT 1`, gatewayAccountID)
}

func (r *repository) getOne(ctx context.Context, query, arg string) (*models.MerchantAccount, error) {
	m := new(models.MerchantAccount)
	if err := r.conn.QueryRow(ctx, query, arg).Scan(
		&m.ID,
		&m.UserID,
		&m.GatewayAccountID,
		&m.Currency,
		&m.Country,
		&m.IsPlatform,
		&m.ChargesOnMerchantAccount,
		&m.CreatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get merchant account: %w", err)
	}
	return m, nil
}
