package reconcile

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	processor "goflare.io/chargeprocessor"
	"goflare.io/chargeprocessor/disputes"
	"goflare.io/chargeprocessor/merchant"
	"goflare.io/chargeprocessor/models"
	"goflare.io/chargeprocessor/models/enum"
	"goflare.io/chargeprocessor/purchase"
)

// ErrMissingPurchase is returned in production-like environments when an event
// points at a purchase this service has no record of.
var ErrMissingPurchase = errors.New("event references an unknown purchase")

type EventStore interface {
	Create(ctx context.Context, event *models.Event) error
	IsEventProcessed(ctx context.Context, eventID string) (bool, error)
	MarkEventAsProcessed(ctx context.Context, eventID string) error
	RecordFailure(ctx context.Context, eventID string, cause error) error
	ListRetryable(ctx context.Context, touchedBefore time.Time, maxAttempts, limit int) ([]*models.Event, error)
}

type PurchaseLedger interface {
	Find(ctx context.Context, reference, chargeID string) (*models.Purchase, error)
	FindCombinedCharge(ctx context.Context, chargeID string) (*models.CombinedCharge, error)
	AttachCharge(ctx context.Context, id, chargeID string) error
	MarkSuccessful(ctx context.Context, id string) (bool, error)
	MarkFailed(ctx context.Context, id, failureCode string) (bool, error)
}

type DisputeLedger interface {
	Upsert(ctx context.Context, dispute *models.PartialDispute) error
	WithdrawFunds(ctx context.Context, id string, reverse disputes.MoneyMovement) (bool, error)
	ReinstateFunds(ctx context.Context, id string, pay disputes.MoneyMovement) (bool, error)
	Close(ctx context.Context, id string, status enum.DisputeStatus) error
}

type RefundLedger interface {
	Upsert(ctx context.Context, refund *models.PartialRefund) error
}

type CreditLedger interface {
	CreatePaydownCredit(ctx context.Context, merchant *models.MerchantAccount, paydownID, purchaseID string, amount models.Money, adminActorID string) (*models.Credit, bool, error)
	ListByMerchantAccount(ctx context.Context, merchantAccountID string) ([]*models.Credit, error)
}

type BacktaxLedger interface {
	Open(ctx context.Context, agreement *models.BacktaxAgreement) (bool, error)
}

type FraudLedger interface {
	Record(ctx context.Context, warning *models.EarlyFraudWarning) error
}

type ReviewQueue interface {
	EnqueueReview(ctx context.Context, warning *models.EarlyFraudWarning) error
}

type MerchantDirectory interface {
	GetByID(ctx context.Context, id string) (*models.MerchantAccount, error)
	GetByGatewayAccountID(ctx context.Context, gatewayAccountID string) (*models.MerchantAccount, error)
}

type TransferIndex interface {
	Record(ctx context.Context, merchantAccountID string, transfer *models.Transfer) error
}

type Gateway interface {
	ReverseChargeTransfer(ctx context.Context, chargeID string, idempotencyKey string) (*models.TransferReversal, error)
	CreateTransfer(ctx context.Context, req processor.TransferRequest) (*models.Transfer, error)
	FindOriginatingChargeID(ctx context.Context, connectedAccountID, destinationPaymentID string) (string, error)
}

type Dependencies struct {
	Events    EventStore
	Purchases PurchaseLedger
	Disputes  DisputeLedger
	Refunds   RefundLedger
	Credits   CreditLedger
	Backtax   BacktaxLedger
	Fraud     FraudLedger
	Reviews   ReviewQueue
	Merchants MerchantDirectory
	Transfers TransferIndex
	Gateway   Gateway
}

type Options struct {
	// ProductionLike turns references to unknown purchases into errors.
	ProductionLike bool
	// AdminActorID is credited with paydowns that were not withheld from a sale.
	AdminActorID  string
	MandatePolicy processor.MandatePolicy

	// RetryAfter is how long an unprocessed event sits before the sweep picks
	// it up again.
	RetryAfter  time.Duration
	MaxAttempts int
	RetryBatch  int
}

// Reconciler applies normalized gateway events to the ledgers. Every handler is
// safe to run again for an event it already applied.
type Reconciler struct {
	deps    Dependencies
	options Options
	logger  *zap.Logger
	now     func() time.Time
}

func NewReconciler(deps Dependencies, options Options, logger *zap.Logger) *Reconciler {
	return &Reconciler{
		deps:    deps,
		options: options,
		logger:  logger,
		now:     time.Now,
	}
}

// Register installs Handle for every event type that has work attached.
func (r *Reconciler) Register(em *processor.EventManager) {
	for _, eventType := range enum.ActionableChargeEventTypes() {
		em.RegisterHandler(eventType, r.Handle)
	}
}

func (r *Reconciler) Handle(ctx context.Context, ev *models.ChargeEvent) error {
	processed, err := r.deps.Events.IsEventProcessed(ctx, ev.ID)
	if err != nil {
		return fmt.Errorf("failed to check event %s: %w", ev.ID, err)
	}
	if processed {
		r.logger.Debug("Event already processed", zap.String("event_id", ev.ID))
		return nil
	}

	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to marshal event %s: %w", ev.ID, err)
	}
	if err = r.deps.Events.Create(ctx, &models.Event{ID: ev.ID, Type: ev.Type, Payload: payload}); err != nil {
		return fmt.Errorf("failed to record event %s: %w", ev.ID, err)
	}

	if err = r.dispatch(ctx, ev); err != nil {
		r.logger.Error("Failed to reconcile event",
			zap.String("event_id", ev.ID),
			zap.String("event_type", string(ev.Type)),
			zap.String("charge_id", ev.ChargeID),
			zap.Error(err))
		if recErr := r.deps.Events.RecordFailure(ctx, ev.ID, err); recErr != nil {
			r.logger.Warn("Failed to record event failure", zap.String("event_id", ev.ID), zap.Error(recErr))
		}
		return err
	}

	if err = r.deps.Events.MarkEventAsProcessed(ctx, ev.ID); err != nil {
		return fmt.Errorf("failed to mark event %s processed: %w", ev.ID, err)
	}
	return nil
}

// RetryPending handles stored events again that are still unprocessed some
// time after they were last touched. It covers deliveries that failed, were
// dropped from a full job queue or never reached a worker. Events that failed
// MaxAttempts times stay unprocessed for an operator to look at.
func (r *Reconciler) RetryPending(ctx context.Context) (int, error) {
	pending, err := r.deps.Events.ListRetryable(ctx, r.now().Add(-r.options.RetryAfter), r.options.MaxAttempts, r.options.RetryBatch)
	if err != nil {
		return 0, fmt.Errorf("failed to list retryable events: %w", err)
	}

	var errs []error
	handled := 0
	for _, stored := range pending {
		var ev models.ChargeEvent
		if err = json.Unmarshal(stored.Payload, &ev); err != nil {
			err = fmt.Errorf("event %s has an unreadable payload: %w", stored.ID, err)
			if recErr := r.deps.Events.RecordFailure(ctx, stored.ID, err); recErr != nil {
				r.logger.Warn("Failed to record event failure", zap.String("event_id", stored.ID), zap.Error(recErr))
			}
			errs = append(errs, err)
			continue
		}
		if err = r.Handle(ctx, &ev); err != nil {
			errs = append(errs, err)
			continue
		}
		handled++
	}

	if len(pending) > 0 {
		r.logger.Info("Event retry sweep finished",
			zap.Int("pending", len(pending)),
			zap.Int("handled", handled),
			zap.Int("failed", len(errs)))
	}
	return handled, errors.Join(errs...)
}

func (r *Reconciler) dispatch(ctx context.Context, ev *models.ChargeEvent) error {
	switch ev.Type {
	case enum.ChargeEventChargeSucceeded, enum.ChargeEventChargeFailed:
		return r.handleChargeOutcome(ctx, ev)
	case enum.ChargeEventRefundUpdated:
		return r.handleRefundUpdated(ctx, ev)
	case enum.ChargeEventDisputeFormalized:
		return r.handleDisputeFormalized(ctx, ev)
	case enum.ChargeEventDisputeFundsWithdrawn:
		return r.handleFundsWithdrawn(ctx, ev)
	case enum.ChargeEventDisputeFundsReinstated, enum.ChargeEventDisputeWon:
		return r.handleFundsReinstated(ctx, ev)
	case enum.ChargeEventDisputeLost:
		return r.handleDisputeLost(ctx, ev)
	case enum.ChargeEventEarlyFraudWarning:
		return r.handleEarlyFraudWarning(ctx, ev)
	case enum.ChargeEventFinancingTransaction:
		return r.handleFinancing(ctx, ev)
	case enum.ChargeEventInformational, enum.ChargeEventUnrecognized:
		return nil
	}
	return nil
}

// missingPurchase decides what an event for an unknown purchase means. Lower
// environments run against partial fixtures, so it is only logged there.
func (r *Reconciler) missingPurchase(ev *models.ChargeEvent, ref string) error {
	if r.options.ProductionLike {
		return fmt.Errorf("%w: event %s (%s) references %s", ErrMissingPurchase, ev.ID, ev.Type, ref)
	}
	r.logger.Warn("Ignoring event for unknown purchase",
		zap.String("event_id", ev.ID),
		zap.String("event_type", string(ev.Type)),
		zap.String("reference", ref))
	return nil
}

// handleChargeOutcome only acts on off-session charges for cards that need
// forced authentication; every other outcome was applied synchronously.
func (r *Reconciler) handleChargeOutcome(ctx context.Context, ev *models.ChargeEvent) error {
	if !ev.OffSession || !r.options.MandatePolicy.RequiresMandate(ev.CardCountry) {
		return nil
	}

	p, err := r.deps.Purchases.Find(ctx, ev.PurchaseReference, ev.ChargeID)
	if err != nil {
		if errors.Is(err, purchase.ErrNotFound) {
			return r.missingPurchase(ev, purchaseRef(ev))
		}
		return fmt.Errorf("failed to find purchase: %w", err)
	}
	if !p.InProgress() {
		return nil
	}

	if p.ChargeID == "" && ev.ChargeID != "" {
		if err = r.deps.Purchases.AttachCharge(ctx, p.ID, ev.ChargeID); err != nil {
			return fmt.Errorf("failed to attach charge to purchase %s: %w", p.ID, err)
		}
	}

	var moved bool
	if ev.Type == enum.ChargeEventChargeSucceeded {
		moved, err = r.deps.Purchases.MarkSuccessful(ctx, p.ID)
	} else {
		moved, err = r.deps.Purchases.MarkFailed(ctx, p.ID, ev.FailureCode)
	}
	if err != nil {
		return err
	}

	r.logger.Info("Applied deferred charge outcome",
		zap.String("purchase_id", p.ID),
		zap.String("charge_id", ev.ChargeID),
		zap.String("event_type", string(ev.Type)),
		zap.Bool("applied", moved))
	return nil
}

func (r *Reconciler) handleRefundUpdated(ctx context.Context, ev *models.ChargeEvent) error {
	if ev.RefundID == "" {
		return fmt.Errorf("%w: refund event %s has no refund id", processor.ErrInvalidRequest, ev.ID)
	}

	refund := &models.PartialRefund{ID: ev.RefundID}
	if ev.ChargeID != "" {
		refund.ChargeID = &ev.ChargeID
	}
	if ev.RefundStatus != "" {
		status := ev.RefundStatus
		refund.Status = &status
	}
	if ev.Reason != "" {
		refund.Reason = &ev.Reason
	}
	if ev.FlowOfFunds != nil {
		issued := ev.FlowOfFunds.IssuedAmount.Abs()
		refund.Amount = &issued.Cents
		refund.Currency = &issued.Currency
	}
	return r.deps.Refunds.Upsert(ctx, refund)
}

func (r *Reconciler) handleDisputeFormalized(ctx context.Context, ev *models.ChargeEvent) error {
	status := enum.DisputeStatusFormalized
	_, err := r.upsertDispute(ctx, ev, &status)
	return err
}

// handleFundsWithdrawn reverses the merchant's transfer for a disputed
// destination charge. The dispute row lock and the gateway idempotency key both
// keep it to one reversal, and a replay finds the reversal made the first time.
func (r *Reconciler) handleFundsWithdrawn(ctx context.Context, ev *models.ChargeEvent) error {
	p, err := r.upsertDispute(ctx, ev, nil)
	if err != nil || p == nil {
		return err
	}

	m, err := r.deps.Merchants.GetByID(ctx, p.MerchantAccountID)
	if err != nil {
		return fmt.Errorf("failed to get merchant account %s: %w", p.MerchantAccountID, err)
	}

	_, err = r.deps.Disputes.WithdrawFunds(ctx, ev.DisputeID, func(dispute *models.Dispute) (string, error) {
		if !holdsTransfer(m) {
			return "", nil
		}
		reversal, err := r.deps.Gateway.ReverseChargeTransfer(ctx, ev.ChargeID, "dispute-reversal-"+dispute.ID)
		if errors.Is(err, processor.ErrAlreadyRefunded) {
			// Something else, usually a refund, pulled the transfer back first.
			r.logger.Info("Disputed transfer reversed outside the dispute",
				zap.String("dispute_id", dispute.ID),
				zap.String("charge_id", ev.ChargeID))
			return "", nil
		}
		if err != nil {
			return "", fmt.Errorf("failed to reverse transfer for dispute %s: %w", dispute.ID, err)
		}
		return reversal.ID, nil
	})
	return err
}

// handleFundsReinstated pays the merchant's share back once the platform got
// the disputed funds back.
func (r *Reconciler) handleFundsReinstated(ctx context.Context, ev *models.ChargeEvent) error {
	p, err := r.upsertDispute(ctx, ev, nil)
	if err != nil {
		return err
	}
	if ev.Type == enum.ChargeEventDisputeWon {
		if err = r.deps.Disputes.Close(ctx, ev.DisputeID, enum.DisputeStatusWon); err != nil {
			return fmt.Errorf("failed to close dispute %s: %w", ev.DisputeID, err)
		}
	}
	if p == nil {
		return nil
	}

	m, err := r.deps.Merchants.GetByID(ctx, p.MerchantAccountID)
	if err != nil {
		return fmt.Errorf("failed to get merchant account %s: %w", p.MerchantAccountID, err)
	}

	_, err = r.deps.Disputes.ReinstateFunds(ctx, ev.DisputeID, func(dispute *models.Dispute) (string, error) {
		if !holdsTransfer(m) || dispute.TransferReversalID == "" {
			return "", nil
		}
		t, err := r.deps.Gateway.CreateTransfer(ctx, processor.TransferRequest{
			DestinationAccountID: m.GatewayAccountID,
			Amount:               models.NewMoney(p.Currency, p.MerchantCents()),
			Description:          "Dispute " + dispute.ID + " reinstated",
			Metadata:             map[string]string{"dispute": dispute.ID},
			IdempotencyKey:       "dispute-reinstatement-" + dispute.ID,
		})
		if err != nil {
			return "", fmt.Errorf("failed to transfer reinstated funds for dispute %s: %w", dispute.ID, err)
		}
		if err = r.deps.Transfers.Record(ctx, m.ID, t); err != nil {
			r.logger.Warn("Failed to index reinstatement transfer", zap.Error(err), zap.String("transfer_id", t.ID))
		}
		return t.ID, nil
	})
	return err
}

func (r *Reconciler) handleDisputeLost(ctx context.Context, ev *models.ChargeEvent) error {
	if _, err := r.upsertDispute(ctx, ev, nil); err != nil {
		return err
	}
	return r.deps.Disputes.Close(ctx, ev.DisputeID, enum.DisputeStatusLost)
}

// upsertDispute records the dispute and returns the disputed purchase, which is
// nil when the charge belongs to a combined charge or is unknown outside
// production.
func (r *Reconciler) upsertDispute(ctx context.Context, ev *models.ChargeEvent, status *enum.DisputeStatus) (*models.Purchase, error) {
	if ev.DisputeID == "" {
		return nil, fmt.Errorf("%w: dispute event %s has no dispute id", processor.ErrInvalidRequest, ev.ID)
	}

	p, err := r.deps.Purchases.Find(ctx, ev.PurchaseReference, ev.ChargeID)
	if err != nil && !errors.Is(err, purchase.ErrNotFound) {
		return nil, fmt.Errorf("failed to find disputed purchase: %w", err)
	}
	if p == nil {
		if _, ccErr := r.deps.Purchases.FindCombinedCharge(ctx, ev.ChargeID); ccErr != nil {
			if !errors.Is(ccErr, purchase.ErrNotFound) {
				return nil, fmt.Errorf("failed to find disputed combined charge: %w", ccErr)
			}
			if err = r.missingPurchase(ev, purchaseRef(ev)); err != nil {
				return nil, err
			}
		}
	}

	dispute := &models.PartialDispute{
		ID:     ev.DisputeID,
		Status: status,
	}
	if ev.ChargeID != "" {
		dispute.ChargeID = &ev.ChargeID
	}
	if p != nil {
		dispute.PurchaseID = &p.ID
	}
	if ev.Reason != "" {
		dispute.Reason = &ev.Reason
	}
	if ev.FlowOfFunds != nil {
		issued := ev.FlowOfFunds.IssuedAmount.Abs()
		dispute.Amount = &issued.Cents
		dispute.Currency = &issued.Currency
	}
	if !ev.CreatedAt.IsZero() {
		dispute.CreatedAt = &ev.CreatedAt
	}

	if err = r.deps.Disputes.Upsert(ctx, dispute); err != nil {
		return nil, fmt.Errorf("failed to upsert dispute %s: %w", ev.DisputeID, err)
	}
	return p, nil
}

// handleEarlyFraudWarning files the warning under whichever aggregate owns the
// charge and leaves the review to the fraud workers.
func (r *Reconciler) handleEarlyFraudWarning(ctx context.Context, ev *models.ChargeEvent) error {
	if ev.EarlyFraudWarning == nil {
		return fmt.Errorf("%w: event %s carries no early fraud warning", processor.ErrInvalidRequest, ev.ID)
	}
	warning := *ev.EarlyFraudWarning

	p, err := r.deps.Purchases.Find(ctx, "", warning.ChargeID)
	switch {
	case err == nil:
		warning.PurchaseID = p.ID
		warning.MerchantAccountID = p.MerchantAccountID
	case errors.Is(err, purchase.ErrNotFound):
		cc, ccErr := r.deps.Purchases.FindCombinedCharge(ctx, warning.ChargeID)
		if ccErr != nil {
			if errors.Is(ccErr, purchase.ErrNotFound) {
				return r.missingPurchase(ev, "charge "+warning.ChargeID)
			}
			return fmt.Errorf("failed to find combined charge: %w", ccErr)
		}
		warning.CombinedChargeID = cc.ID
	default:
		return fmt.Errorf("failed to find purchase: %w", err)
	}

	if err = r.deps.Fraud.Record(ctx, &warning); err != nil {
		return err
	}
	return r.deps.Reviews.EnqueueReview(ctx, &warning)
}

// handleFinancing books one negative credit per paydown. Automatic paydowns are
// traced back to the sale they were withheld from.
func (r *Reconciler) handleFinancing(ctx context.Context, ev *models.ChargeEvent) error {
	financing := ev.Financing
	if financing == nil || financing.Type != models.FinancingTypePaydown {
		return nil
	}

	m, err := r.deps.Merchants.GetByGatewayAccountID(ctx, ev.ConnectedAccountID)
	if err != nil {
		if errors.Is(err, merchant.ErrNotFound) {
			return r.missingPurchase(ev, "account "+ev.ConnectedAccountID)
		}
		return fmt.Errorf("failed to get merchant account for %s: %w", ev.ConnectedAccountID, err)
	}

	purchaseID, adminActorID := "", ""
	if financing.Automatic {
		chargeID, err := r.deps.Gateway.FindOriginatingChargeID(ctx, ev.ConnectedAccountID, financing.DestinationPaymentID)
		if err != nil {
			return fmt.Errorf("failed to trace paydown %s: %w", financing.ID, err)
		}
		p, err := r.deps.Purchases.Find(ctx, "", chargeID)
		if err != nil {
			if errors.Is(err, purchase.ErrNotFound) {
				return r.missingPurchase(ev, "charge "+chargeID)
			}
			return fmt.Errorf("failed to find purchase for paydown %s: %w", financing.ID, err)
		}
		purchaseID = p.ID
	} else {
		adminActorID = r.options.AdminActorID
	}

	credit, _, err := r.deps.Credits.CreatePaydownCredit(ctx, m, financing.ID, purchaseID, financing.Amount, adminActorID)
	if err != nil {
		return err
	}
	return r.openBacktax(ctx, m, credit)
}

// openBacktax opens an agreement for the part of a paydown credit that leaves
// the merchant's credit balance in that currency below zero.
func (r *Reconciler) openBacktax(ctx context.Context, m *models.MerchantAccount, credit *models.Credit) error {
	credits, err := r.deps.Credits.ListByMerchantAccount(ctx, m.ID)
	if err != nil {
		return fmt.Errorf("failed to list credits for %s: %w", m.ID, err)
	}

	var balance int64
	for _, c := range credits {
		if c.Amount.Currency == credit.Amount.Currency {
			balance += c.Amount.Cents
		}
	}
	if balance >= 0 {
		return nil
	}

	_, err = r.deps.Backtax.Open(ctx, &models.BacktaxAgreement{
		MerchantAccountID: m.ID,
		CreditID:          credit.ID,
		Owed:              models.NewMoney(credit.Amount.Currency, max(balance, credit.Amount.Cents)),
	})
	return err
}

// holdsTransfer reports whether the merchant's share left the platform through
// a destination transfer that can be reversed.
func holdsTransfer(m *models.MerchantAccount) bool {
	return m.IsConnected() && !m.ChargesOnMerchantAccount && m.HasGatewayAccount()
}

func purchaseRef(ev *models.ChargeEvent) string {
	if ev.PurchaseReference != "" {
		return "purchase " + ev.PurchaseReference
	}
	return "charge " + ev.ChargeID
}
