package event

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"goflare.io/chargeprocessor/driver"
	"goflare.io/chargeprocessor/models"
)

// Service is the durable record of gateway events. It ignores replays of
// processed events and keeps failed ones around for another attempt.
type Service interface {
	Create(ctx context.Context, event *models.Event) error
	IsEventProcessed(ctx context.Context, eventID string) (bool, error)
	MarkEventAsProcessed(ctx context.Context, eventID string) error
	RecordFailure(ctx context.Context, eventID string, cause error) error
	ListRetryable(ctx context.Context, touchedBefore time.Time, maxAttempts, limit int) ([]*models.Event, error)
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

func (s *service) Create(ctx context.Context, event *models.Event) error {
	return s.transactionManager.ExecuteTransaction(ctx, func(tx pgx.Tx) error {
		return s.repo.Create(ctx, tx, event)
	})
}

// IsEventProcessed is false for events that were never seen.
func (s *service) IsEventProcessed(ctx context.Context, eventID string) (bool, error) {
	event, err := s.repo.GetByID(ctx, eventID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	return event.Processed, nil
}

func (s *service) MarkEventAsProcessed(ctx context.Context, eventID string) error {
	return s.transactionManager.ExecuteTransaction(ctx, func(tx pgx.Tx) error {
		return s.repo.MarkAsProcessed(ctx, tx, eventID)
	})
}

func (s *service) RecordFailure(ctx context.Context, eventID string, cause error) error {
	return s.transactionManager.ExecuteTransaction(ctx, func(tx pgx.Tx) error {
		return s.repo.RecordFailure(ctx, tx, eventID, cause.Error())
	})
}

func (s *service) ListRetryable(ctx context.Context, touchedBefore time.Time, maxAttempts, limit int) ([]*models.Event, error) {
	return s.repo.ListUnprocessed(ctx, touchedBefore, maxAttempts, limit)
}
