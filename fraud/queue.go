package fraud

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"goflare.io/chargeprocessor/models"
)

const (
	ReviewSubject    = "fraud.review"
	reviewQueueGroup = "fraud-review"
)

// ReviewJob asks the fraud review workers to look at a warning.
// MerchantAccountID is empty for combined charges, which always run on the
// platform.
type ReviewJob struct {
	WarningID         string `json:"warning_id"`
	ChargeID          string `json:"charge_id"`
	PurchaseID        string `json:"purchase_id,omitempty"`
	CombinedChargeID  string `json:"combined_charge_id,omitempty"`
	MerchantAccountID string `json:"merchant_account_id,omitempty"`
	Actionable        bool   `json:"actionable"`
}

type natsConn interface {
	Publish(subj string, data []byte) error
	QueueSubscribe(subj, queue string, cb nats.MsgHandler) (*nats.Subscription, error)
}

// NATSQueue hands review jobs to the fraud workers over NATS.
type NATSQueue struct {
	conn   natsConn
	logger *zap.Logger
}

func NewNATSQueue(conn *nats.Conn, logger *zap.Logger) *NATSQueue {
	return newNATSQueue(conn, logger)
}

func newNATSQueue(conn natsConn, logger *zap.Logger) *NATSQueue {
	return &NATSQueue{conn: conn, logger: logger}
}

func (q *NATSQueue) EnqueueReview(_ context.Context, warning *models.EarlyFraudWarning) error {
	data, err := json.Marshal(ReviewJob{
		WarningID:         warning.ID,
		ChargeID:          warning.ChargeID,
		PurchaseID:        warning.PurchaseID,
		CombinedChargeID:  warning.CombinedChargeID,
		MerchantAccountID: warning.MerchantAccountID,
		Actionable:        warning.Actionable,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal review job: %w", err)
	}
	if err = q.conn.Publish(ReviewSubject, data); err != nil {
		return fmt.Errorf("failed to publish review job: %w", err)
	}
	q.logger.Info("Enqueued fraud review", zap.String("warning_id", warning.ID))
	return nil
}

// Consume delivers review jobs to fn, one queue member per job.
func (q *NATSQueue) Consume(fn func(context.Context, ReviewJob) error) (*nats.Subscription, error) {
	return q.conn.QueueSubscribe(ReviewSubject, reviewQueueGroup, func(msg *nats.Msg) {
		var job ReviewJob
		if err := json.Unmarshal(msg.Data, &job); err != nil {
			q.logger.Error("Failed to unmarshal review job", zap.Error(err))
			return
		}
		if err := fn(context.Background(), job); err != nil {
			q.logger.Error("Failed to process review job", zap.Error(err), zap.String("warning_id", job.WarningID))
		}
	})
}
