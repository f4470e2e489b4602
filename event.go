package processor

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"goflare.io/chargeprocessor/models"
	"goflare.io/chargeprocessor/models/enum"
)

const (
	eventSubjectPrefix = "chargeprocessor.event"
	eventQueueGroup    = "chargeprocessor-reconcile"
)

type EventHandler func(context.Context, *models.ChargeEvent) error

// natsConn is the part of *nats.Conn the event manager uses.
type natsConn interface {
	Publish(subject string, data []byte) error
	QueueSubscribe(subject, queue string, cb nats.MsgHandler) (*nats.Subscription, error)
}

// EventManager fans normalized webhook events out over NATS and routes them to
// the handler registered for their type.
type EventManager struct {
	natsConn natsConn
	handlers map[enum.ChargeEventType]EventHandler
	mu       sync.RWMutex
	logger   *zap.Logger
}

func NewEventManager(natsConn *nats.Conn, logger *zap.Logger) *EventManager {
	return newEventManager(natsConn, logger)
}

func newEventManager(conn natsConn, logger *zap.Logger) *EventManager {
	return &EventManager{
		natsConn: conn,
		handlers: make(map[enum.ChargeEventType]EventHandler),
		logger:   logger,
	}
}

func (em *EventManager) RegisterHandler(eventType enum.ChargeEventType, handler EventHandler) {
	em.mu.Lock()
	defer em.mu.Unlock()
	em.handlers[eventType] = handler
}

func (em *EventManager) GetHandler(eventType enum.ChargeEventType) (EventHandler, bool) {
	em.mu.RLock()
	defer em.mu.RUnlock()
	handler, exists := em.handlers[eventType]
	return handler, exists
}

func (em *EventManager) PublishEvent(event *models.ChargeEvent) error {
	subject := fmt.Sprintf("%s.%s", eventSubjectPrefix, event.Type)
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	if err = em.natsConn.Publish(subject, data); err != nil {
		return fmt.Errorf("failed to publish event to NATS: %w", err)
	}
	return nil
}

// SubscribeToEvents hands every published event to the dispatcher. Instances
// share a queue group so each event is processed by one of them.
func (em *EventManager) SubscribeToEvents(d *Dispatcher) error {
	_, err := em.natsConn.QueueSubscribe(eventSubjectPrefix+".>", eventQueueGroup, func(msg *nats.Msg) {
		var event models.ChargeEvent
		if err := json.Unmarshal(msg.Data, &event); err != nil {
			em.logger.Error("Failed to unmarshal event", zap.Error(err))
			return
		}

		d.Submit(context.Background(), &event)
	})

	return err
}

// ProcessEvent runs the handler registered for the event's type. Informational
// and unrecognized events are acknowledged without work.
func (em *EventManager) ProcessEvent(ctx context.Context, event *models.ChargeEvent) error {
	handler, exists := em.GetHandler(event.Type)
	if !exists {
		em.logger.Debug("No handler for event type",
			zap.String("event_id", event.ID),
			zap.String("event_type", string(event.Type)),
			zap.String("gateway_type", event.GatewayType))
		return nil
	}

	if err := handler(ctx, event); err != nil {
		return fmt.Errorf("failed to handle %s event %s: %w", event.Type, event.ID, err)
	}
	return nil
}
