package transfer

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"goflare.io/chargeprocessor/driver"
	"goflare.io/chargeprocessor/models"
)

type Service interface {
	// Record indexes a transfer the platform just made to merchantAccountID.
	Record(ctx context.Context, merchantAccountID string, transfer *models.Transfer) error
	ListByMerchantAccount(ctx context.Context, merchantAccountID string) ([]*models.InternalTransfer, error)
}

type service struct {
	repo               Repository
	transactionManager *driver.TransactionManager
	logger             *zap.Logger
}

func NewService(repo Repository, tm *driver.TransactionManager, logger *zap.Logger) Service {
	return &service{
		repo:               repo,
		transactionManager: tm,
		logger:             logger,
	}
}

func (s *service) Record(ctx context.Context, merchantAccountID string, transfer *models.Transfer) error {
	internal := &models.InternalTransfer{
		ID:                uuid.NewString(),
		TransferID:        transfer.ID,
		MerchantAccountID: merchantAccountID,
		Amount:            transfer.Amount,
		CreatedAt:         transfer.CreatedAt,
	}
	return s.transactionManager.ExecuteTransaction(ctx, func(tx pgx.Tx) error {
		return s.repo.Create(ctx, tx, internal)
	})
}

func (s *service) ListByMerchantAccount(ctx context.Context, merchantAccountID string) ([]*models.InternalTransfer, error) {
	return s.repo.ListByMerchantAccount(ctx, merchantAccountID)
}
