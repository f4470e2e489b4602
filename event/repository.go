package event

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"goflare.io/chargeprocessor/driver"
	"goflare.io/chargeprocessor/models"
)

var ErrNotFound = errors.New("event not found")

var _ Repository = (*repository)(nil)

const eventColumns = `id, type, processed, payload, attempts, last_error, created_at, updated_at`

type Repository interface {
	Create(ctx context.Context, tx pgx.Tx, event *models.Event) error
	GetByID(ctx context.Context, id string) (*models.Event, error)
	MarkAsProcessed(ctx context.Context, tx pgx.Tx, id string) error
	RecordFailure(ctx context.Context, tx pgx.Tx, id, reason string) error
	// ListUnprocessed returns events with a payload that are still unprocessed,
	// were last touched before the cutoff and have failed fewer than
	// maxAttempts times, oldest first.
	ListUnprocessed(ctx context.Context, touchedBefore time.Time, maxAttempts, limit int) ([]*models.Event, error)
}

type repository struct {
	conn   driver.PostgresPool
	logger *zap.Logger
}

func NewRepository(conn driver.PostgresPool, logger *zap.Logger) Repository {
	return &repository{
		conn:   conn,
		logger: logger,
	}
}

// Create records the event; a redelivered event keeps its first row and only
// fills in a payload the row is missing.
func (r *repository) Create(ctx context.Context, tx pgx.Tx, event *models.Event) error {
	query := `
	INSERT INTO events (id, type, processed, payload, created_at, updated_at)
	VALUES (@id, @type, @processed, @payload, @created_at, @updated_at)
	ON CONFLICT (id) DO UPDATE SET payload = COALESCE(events.payload, EXCLUDED.payload)`

	now := time.Now()
	var payload []byte
	if len(event.Payload) > 0 {
		payload = event.Payload
	}
	args := pgx.NamedArgs{
		"id":         event.ID,
		"type":       string(event.Type),
		"processed":  event.Processed,
		"payload":    payload,
		"created_at": now,
		"updated_at": now,
	}
	if _, err := tx.Exec(ctx, query, args); err != nil {
		r.logger.Error("Failed to create event", zap.Error(err), zap.String("event_id", event.ID))
		return fmt.Errorf("failed to create event: %w", err)
	}
	return nil
}

func (r *repository) GetByID(ctx context.Context, id string) (*models.Event, error) {
	event, err := scanEvent(r.conn.QueryRow(ctx, `SELECT `+eventColumns+` FROM events WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get event: %w", err)
	}
	return event, nil
}

func (r *repository) ListUnprocessed(ctx context.Context, touchedBefore time.Time, maxAttempts, limit int) ([]*models.Event, error) {
	query := `SELECT ` + eventColumns + ` FROM events
	WHERE NOT processed AND payload IS NOT NULL AND updated_at < $1 AND attempts < $2
	ORDER BY created_at
	LIMIT $3`

	rows, err := r.conn.Query(ctx, query, touchedBefore, maxAttempts, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list unprocessed events: %w", err)
	}
	defer rows.Close()

	events := make([]*models.Event, 0)
	for rows.Next() {
		event, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		events = append(events, event)
	}
	return events, rows.Err()
}

func scanEvent(row pgx.Row) (*models.Event, error) {
	event := new(models.Event)
	var payload []byte
	if err := row.Scan(
		&event.ID,
		&event.Type,
		&event.Processed,
		&payload,
		&event.Attempts,
		&event.LastError,
		&event.CreatedAt,
		&event.UpdatedAt,
	); err != nil {
		return nil, err
	}
	event.Payload = payload
	return event, nil
}

func (r *repository) MarkAsProcessed(ctx context.Context, tx pgx.Tx, id string) error {
	query := `UPDATE events SET processed = TRUE, updated_at = $2 WHERE id = $1`
	tag, err := tx.Exec(ctx, query, id, time.Now())
	if err != nil {
		return fmt.Errorf("failed to mark event as processed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *repository) RecordFailure(ctx context.Context, tx pgx.Tx, id, reason string) error {
	query := `UPDATE events SET attempts = attempts + 1, last_error = $2, updated_at = $3 WHERE id = $1`
	if _, err := tx.Exec(ctx, query, id, reason, time.Now()); err != nil {
		return fmt.Errorf("failed to record event failure: %w", err)
	}
	return nil
}
