package purchase

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"goflare.io/chargeprocessor/driver"
	"goflare.io/chargeprocessor/models"
	"goflare.io/chargeprocessor/models/enum"
)

type Service interface {
	GetByID(ctx context.Context, id string) (*models.Purchase, error)
	// Find looks a purchase up by its external reference, then by gateway charge id.
	Find(ctx context.Context, reference, chargeID string) (*models.Purchase, error)
	FindCombinedCharge(ctx context.Context, chargeID string) (*models.CombinedCharge, error)
	AttachCharge(ctx context.Context, id, chargeID string) error
	MarkSuccessful(ctx context.Context, id string) (bool, error)
	MarkFailed(ctx context.Context, id, failureCode string) (bool, error)
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

func (s *service) GetByID(ctx context.Context, id string) (*models.Purchase, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *service) Find(ctx context.Context, reference, chargeID string) (*models.Purchase, error) {
	if reference != "" {
		p, err := s.repo.GetByExternalID(ctx, reference)
		if err == nil {
			return p, nil
		}
		if !errors.Is(err, ErrNotFound) {
			return nil, err
		}
	}
	if chargeID != "" {
		return s.repo.GetByChargeID(ctx, chargeID)
	}
	return nil, ErrNotFound
}

func (s *service) FindCombinedCharge(ctx context.Context, chargeID string) (*models.CombinedCharge, error) {
	return s.repo.GetCombinedChargeByChargeID(ctx, chargeID)
}

func (s *service) AttachCharge(ctx context.Context, id, chargeID string) error {
	return s.transactionManager.ExecuteTransaction(ctx, func(tx pgx.Tx) error {
		return s.repo.SetChargeID(ctx, tx, id, chargeID)
	})
}

func (s *service) MarkSuccessful(ctx context.Context, id string) (bool, error) {
	return s.transition(ctx, id, enum.PurchaseStateSuccessful, "")
}

func (s *service) MarkFailed(ctx context.Context, id, failureCode string) (bool, error) {
	return s.transition(ctx, id, enum.PurchaseStateFailed, failureCode)
}

func (s *service) transition(ctx context.Context, id string, state enum.PurchaseState, failureCode string) (bool, error) {
	var moved bool
	err := s.transactionManager.ExecuteTransaction(ctx, func(tx pgx.Tx) error {
		var err error
		moved, err = s.repo.TransitionFromInProgress(ctx, tx, id, state, failureCode)
		return err
	})
	if err != nil {
		return false, fmt.Errorf("failed to mark purchase %s %s: %w", id, state, err)
	}

	s.logger.Info("Purchase transition",
		zap.String("purchase_id", id),
		zap.String("state", string(state)),
		zap.Bool("applied", moved))
	return moved, nil
}
