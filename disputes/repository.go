package disputes

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"goflare.io/ignite"

	"goflare.io/chargeprocessor/driver"
	"goflare.io/chargeprocessor/models"
	"goflare.io/chargeprocessor/models/enum"
)

var ErrNotFound = errors.New("dispute not found")

const disputeColumns = `id, charge_id, purchase_id, amount, currency, status, reason,
	transfer_reversal_id, reinstatement_transfer_id, funds_withdrawn_at, funds_reinstated_at,
	closed_at, created_at, updated_at`

var _ Repository = (*repository)(nil)

type Repository interface {
	GetByID(ctx context.Context, id string) (*models.Dispute, error)
	GetForUpdate(ctx context.Context, tx pgx.Tx, id string) (*models.Dispute, error)
	Upsert(ctx context.Context, tx pgx.Tx, dispute *models.PartialDispute) error
	SetTransferReversal(ctx context.Context, tx pgx.Tx, id, reversalID string) error
	SetReinstatementTransfer(ctx context.Context, tx pgx.Tx, id, transferID string) error
	Close(ctx context.Context, tx pgx.Tx, id string, status enum.DisputeStatus) error
}

type repository struct {
	conn        driver.PostgresPool
	logger      *zap.Logger
	poolManager ignite.Manager
}

func NewRepository(conn driver.PostgresPool, logger *zap.Logger, poolManager ignite.Manager) (Repository, error) {
	if err := poolManager.RegisterPool(reflect.TypeOf(&models.Dispute{}), ignite.Config[any]{
		InitialSize: 10,
		MaxSize:     100,
		MaxIdleTime: 10 * time.Minute,
		Factory: func() (any, error) {
			return models.NewDispute(), nil
		},
		Reset: func(obj any) error {
			d := obj.(*models.Dispute)
			*d = models.Dispute{}
			return nil
		},
	}); err != nil {
		return nil, fmt.Errorf("failed to register dispute pool: %w", err)
	}

	return &repository{
		conn:        conn,
		logger:      logger,
		poolManager: poolManager,
	}, nil
}

func (r *repository) GetByID(ctx context.Context, id string) (*models.Dispute, error) {
	return r.scan(ctx, r.conn.QueryRow(ctx, `SELECT `+disputeColumns+` FROM disputes WHERE id = $1`, id))
}

// GetForUpdate locks the row so concurrent deliveries for one dispute serialize.
func (r *repository) GetForUpdate(ctx context.Context, tx pgx.Tx, id string) (*models.Dispute, error) {
	return r.scan(ctx, tx.QueryRow(ctx, `SELECT `+disputeColumns+` FROM disputes WHERE id = $1 FOR UPDATE`, id))
}

// scan decodes into a pooled dispute and returns a copy.
func (r *repository) scan(ctx context.Context, row pgx.Row) (*models.Dispute, error) {
	pool, err := r.poolManager.GetPool(reflect.TypeOf(&models.Dispute{}))
	if err != nil {
		return nil, fmt.Errorf("failed to get pool: %w", err)
	}
	objWrapper, err := pool.Get(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get object from pool: %w", err)
	}
	defer pool.Put(objWrapper)

	d := objWrapper.Object.(*models.Dispute)
	if err = row.Scan(
		&d.ID,
		&d.ChargeID,
		&d.PurchaseID,
		&d.Amount,
		&d.Currency,
		&d.Status,
		&d.Reason,
		&d.TransferReversalID,
		&d.ReinstatementTransferID,
		&d.FundsWithdrawnAt,
		&d.FundsReinstatedAt,
		&d.ClosedAt,
		&d.CreatedAt,
		&d.UpdatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get dispute: %w", err)
	}
	dispute := *d
	return &dispute, nil
}

// Upsert inserts the dispute or updates only the fields that are set. A closed
// dispute keeps its final status.
func (r *repository) Upsert(ctx context.Context, tx pgx.Tx, dispute *models.PartialDispute) error {
	query := `
    INSERT INTO disputes (id, charge_id, purchase_id, amount, currency, status, reason, created_at, updated_at)
    VALUES ($1, COALESCE($2, ''), COALESCE($3, ''), COALESCE($4, 0), COALESCE($5, ''), COALESCE($6, 'formalized'), COALESCE($7, ''), COALESCE($8, NOW()), NOW())
    ON CONFLICT (id) DO UPDATE SET
    `
	args := []interface{}{dispute.ID}
	updateClauses := []string{}

	if dispute.ChargeID != nil {
		args = append(args, *dispute.ChargeID)
		updateClauses = append(updateClauses, "charge_id = $2")
	} else {
		args = append(args, nil)
	}

	if dispute.PurchaseID != nil {
		args = append(args, *dispute.PurchaseID)
		updateClauses = append(updateClauses, "purchase_id = $3")
	} else {
		args = append(args, nil)
	}

	if dispute.Amount != nil {
		args = append(args, *dispute.Amount)
		updateClauses = append(updateClauses, "amount = $4")
	} else {
		args = append(args, nil)
	}

	if dispute.Currency != nil {
		args = append(args, *dispute.Currency)
		updateClauses = append(updateClauses, "currency = $5")
	} else {
		args = append(args, nil)
	}

	if dispute.Status != nil {
		args = append(args, string(*dispute.Status))
		updateClauses = append(updateClauses, "status = CASE WHEN disputes.closed_at IS NULL THEN $6 ELSE disputes.status END")
	} else {
		args = append(args, nil)
	}

	if dispute.Reason != nil {
		args = append(args, *dispute.Reason)
		updateClauses = append(updateClauses, "reason = $7")
	} else {
		args = append(args, nil)
	}

	if dispute.CreatedAt != nil {
		args = append(args, *dispute.CreatedAt)
	} else {
		args = append(args, nil)
	}

	updateClauses = append(updateClauses, "updated_at = NOW()")
	query += strings.Join(updateClauses, ", ")

	if _, err := tx.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to upsert dispute: %w", err)
	}

	return nil
}

func (r *repository) SetTransferReversal(ctx context.Context, tx pgx.Tx, id, reversalID string) error {
	query := `
	UPDATE disputes
	SET transfer_reversal_id = $2, funds_withdrawn_at = $3, updated_at = $3
	WHERE id = $1 AND funds_withdrawn_at IS NULL`
	return r.exec(ctx, tx, query, id, reversalID, time.Now())
}

func (r *repository) SetReinstatementTransfer(ctx context.Context, tx pgx.Tx, id, transferID string) error {
	query := `
	UPDATE disputes
	SET reinstatement_transfer_id = $2, funds_reinstated_at = $3, updated_at = $3
	WHERE id = $1 AND funds_reinstated_at IS NULL`
	return r.exec(ctx, tx, query, id, transferID, time.Now())
}

func (r *repository) Close(ctx context.Context, tx pgx.Tx, id string, status enum.DisputeStatus) error {
	query := `
	UPDATE disputes
	SET status = $2, closed_at = COALESCE(closed_at, $3), updated_at = $3
	WHERE id = $1`
	return r.exec(ctx, tx, query, id, string(status), time.Now())
}

func (r *repository) exec(ctx context.Context, tx pgx.Tx, query string, id string, args ...interface{}) error {
	tag, err := tx.Exec(ctx, query, append([]interface{}{id}, args...)...)
	if err != nil {
		r.logger.Error("Failed to update dispute", zap.Error(err), zap.String("id", id))
		return fmt.Errorf("failed to update dispute: %w", err)
	}
	if tag.RowsAffected() == 0 {
		r.logger.Debug("Dispute update matched no rows", zap.String("id", id))
	}
	return nil
}
