package credit

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"goflare.io/chargeprocessor/driver"
	"goflare.io/chargeprocessor/models"
	"goflare.io/chargeprocessor/models/enum"
)

type Service interface {
	// CreatePaydownCredit books a negative credit for a loan paydown and returns
	// the stored credit. A paydown that was already credited returns the first
	// credit and false.
	CreatePaydownCredit(ctx context.Context, merchant *models.MerchantAccount, paydownID, purchaseID string, amount models.Money, adminActorID string) (*models.Credit, bool, error)
	ListByMerchantAccount(ctx context.Context, merchantAccountID string) ([]*models.Credit, error)
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

func (s *service) CreatePaydownCredit(ctx context.Context, merchant *models.MerchantAccount, paydownID, purchaseID string, amount models.Money, adminActorID string) (*models.Credit, bool, error) {
	credit := &models.Credit{
		ID:                uuid.NewString(),
		MerchantAccountID: merchant.ID,
		UserID:            merchant.UserID,
		Kind:              enum.CreditKindLoanPaydown,
		Amount:            amount.Abs().Negate(),
		PurchaseID:        purchaseID,
		PaydownID:         paydownID,
		AdminActorID:      adminActorID,
		CreatedAt:         time.Now().UTC(),
	}

	var created bool
	if err := s.transactionManager.ExecuteTransaction(ctx, func(tx pgx.Tx) error {
		var err error
		if created, err = s.repo.Create(ctx, tx, credit); err != nil || created {
			return err
		}
		credit, err = s.repo.GetByPaydownID(ctx, tx, paydownID)
		return err
	}); err != nil {
		return nil, false, fmt.Errorf("failed to create paydown credit: %w", err)
	}

	s.logger.Info("Paydown credit",
		zap.String("paydown_id", paydownID),
		zap.String("merchant_account_id", merchant.ID),
		zap.Int64("amount_cents", credit.Amount.Cents),
		zap.Bool("created", created))
	return credit, created, nil
}

func (s *service) ListByMerchantAccount(ctx context.Context, merchantAccountID string) ([]*models.Credit, error) {
	return s.repo.ListByMerchantAccount(ctx, merchantAccountID)
}
