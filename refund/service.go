package refund

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"goflare.io/chargeprocessor/driver"
	"goflare.io/chargeprocessor/models"
)

type Service interface {
	GetByID(ctx context.Context, id string) (*models.Refund, error)
	ListByChargeID(ctx context.Context, chargeID string) ([]*models.Refund, error)
	Upsert(ctx context.Context, refund *models.PartialRefund) error
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

func (s *service) GetByID(ctx context.Context, id string) (*models.Refund, error) {
	refund, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get refund: %w", err)
	}
	return refund, nil
}

func (s *service) ListByChargeID(ctx context.Context, chargeID string) ([]*models.Refund, error) {
	refunds, err := s.repo.ListByChargeID(ctx, chargeID)
	if err != nil {
		return nil, fmt.Errorf("failed to list refunds by charge ID: %w", err)
	}
	return refunds, nil
}

func (s *service) Upsert(ctx context.Context, refund *models.PartialRefund) error {
	if err := s.transactionManager.ExecuteTransaction(ctx, func(tx pgx.Tx) error {
		return s.repo.Upsert(ctx, tx, refund)
	}); err != nil {
		s.logger.Error("Failed to upsert refund", zap.Error(err), zap.String("id", refund.ID))
		return fmt.Errorf("failed to upsert refund: %w", err)
	}
	return nil
}
