package backtax

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"goflare.io/chargeprocessor/driver"
	"goflare.io/chargeprocessor/models"
)

type Service interface {
	// Open starts collecting what a merchant owes for a credit. A credit that
	// already has an agreement returns false.
	Open(ctx context.Context, agreement *models.BacktaxAgreement) (bool, error)
	GetByID(ctx context.Context, id string) (*models.BacktaxAgreement, error)
	ListPending(ctx context.Context) ([]*models.BacktaxAgreement, error)
	RecordCollected(ctx context.Context, id string, collectedCents int64) error
	MarkCollected(ctx context.Context, id string) error
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

func (s *service) Open(ctx context.Context, agreement *models.BacktaxAgreement) (bool, error) {
	if agreement.ID == "" {
		agreement.ID = uuid.NewString()
	}
	if agreement.CreatedAt.IsZero() {
		agreement.CreatedAt = time.Now().UTC()
	}
	agreement.Owed = agreement.Owed.Abs().Negate()

	var opened bool
	if err := s.transactionManager.ExecuteTransaction(ctx, func(tx pgx.Tx) error {
		var err error
		opened, err = s.repo.Create(ctx, tx, agreement)
		return err
	}); err != nil {
		return false, fmt.Errorf("failed to open backtax agreement for credit %s: %w", agreement.CreditID, err)
	}

	s.logger.Info("Backtax agreement",
		zap.String("agreement_id", agreement.ID),
		zap.String("merchant_account_id", agreement.MerchantAccountID),
		zap.String("credit_id", agreement.CreditID),
		zap.String("owed", agreement.Owed.String()),
		zap.Bool("opened", opened))
	return opened, nil
}

func (s *service) GetByID(ctx context.Context, id string) (*models.BacktaxAgreement, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *service) ListPending(ctx context.Context) ([]*models.BacktaxAgreement, error) {
	return s.repo.ListPending(ctx)
}

func (s *service) RecordCollected(ctx context.Context, id string, collectedCents int64) error {
	return s.transactionManager.ExecuteTransaction(ctx, func(tx pgx.Tx) error {
		return s.repo.RecordCollected(ctx, tx, id, collectedCents)
	})
}

func (s *service) MarkCollected(ctx context.Context, id string) error {
	return s.transactionManager.ExecuteTransaction(ctx, func(tx pgx.Tx) error {
		return s.repo.MarkCollected(ctx, tx, id)
	})
}
