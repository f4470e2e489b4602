package disputes

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"goflare.io/chargeprocessor/driver"
	"goflare.io/chargeprocessor/models"
	"goflare.io/chargeprocessor/models/enum"
)

type Service interface {
	GetByID(ctx context.Context, id string) (*models.Dispute, error)
	Upsert(ctx context.Context, dispute *models.PartialDispute) error
	// WithdrawFunds locks the dispute and, unless its funds were already
	// withdrawn, runs reverse and stores the reversal id it returns. Concurrent
	// deliveries for one dispute wait on the lock, so reverse runs once.
	WithdrawFunds(ctx context.Context, id string, reverse MoneyMovement) (bool, error)
	// ReinstateFunds does the same for paying the merchant back. It only runs
	// after a withdrawal and at most once.
	ReinstateFunds(ctx context.Context, id string, pay MoneyMovement) (bool, error)
	Close(ctx context.Context, id string, status enum.DisputeStatus) error
}

// MoneyMovement moves money for a locked dispute and returns the gateway id of
// the movement, empty when nothing had to move.
type MoneyMovement func(dispute *models.Dispute) (string, error)

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

func (s *service) GetByID(ctx context.Context, id string) (*models.Dispute, error) {
	dispute, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get dispute %s: %w", id, err)
	}
	return dispute, nil
}

func (s *service) Upsert(ctx context.Context, dispute *models.PartialDispute) error {
	return s.transactionManager.ExecuteTransaction(ctx, func(tx pgx.Tx) error {
		return s.repo.Upsert(ctx, tx, dispute)
	})
}

func (s *service) WithdrawFunds(ctx context.Context, id string, reverse MoneyMovement) (bool, error) {
	var applied bool
	if err := s.transactionManager.ExecuteTransaction(ctx, func(tx pgx.Tx) error {
		dispute, err := s.repo.GetForUpdate(ctx, tx, id)
		if err != nil {
			return err
		}
		if dispute.FundsWithdrawn() {
			s.logger.Info("Dispute funds already withdrawn", zap.String("id", id))
			return nil
		}

		reversalID, err := reverse(dispute)
		if err != nil {
			return err
		}
		applied = true
		return s.repo.SetTransferReversal(ctx, tx, id, reversalID)
	}); err != nil {
		s.logger.Error("Failed to withdraw dispute funds", zap.Error(err), zap.String("id", id))
		return false, err
	}
	return applied, nil
}

func (s *service) ReinstateFunds(ctx context.Context, id string, pay MoneyMovement) (bool, error) {
	var applied bool
	if err := s.transactionManager.ExecuteTransaction(ctx, func(tx pgx.Tx) error {
		dispute, err := s.repo.GetForUpdate(ctx, tx, id)
		if err != nil {
			return err
		}
		if dispute.FundsReinstated() || !dispute.FundsWithdrawn() {
			return nil
		}

		transferID, err := pay(dispute)
		if err != nil {
			return err
		}
		applied = true
		return s.repo.SetReinstatementTransfer(ctx, tx, id, transferID)
	}); err != nil {
		s.logger.Error("Failed to reinstate dispute funds", zap.Error(err), zap.String("id", id))
		return false, err
	}
	return applied, nil
}

func (s *service) Close(ctx context.Context, id string, status enum.DisputeStatus) error {
	return s.transactionManager.ExecuteTransaction(ctx, func(tx pgx.Tx) error {
		return s.repo.Close(ctx, tx, id, status)
	})
}
