package fraud

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"goflare.io/chargeprocessor/driver"
	"goflare.io/chargeprocessor/models"
)

type Service interface {
	Record(ctx context.Context, warning *models.EarlyFraudWarning) error
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

func (s *service) Record(ctx context.Context, warning *models.EarlyFraudWarning) error {
	if err := s.transactionManager.ExecuteTransaction(ctx, func(tx pgx.Tx) error {
		return s.repo.Upsert(ctx, tx, warning)
	}); err != nil {
		return fmt.Errorf("failed to record early fraud warning %s: %w", warning.ID, err)
	}
	return nil
}
