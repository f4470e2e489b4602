package backtax

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	processor "goflare.io/chargeprocessor"
	"goflare.io/chargeprocessor/exchange"
	"goflare.io/chargeprocessor/models"
)

// ErrInsufficientTransfers means the merchant's reversible transfers cannot cover
// what is owed. Nothing is reversed in that case.
var ErrInsufficientTransfers = errors.New("transfers do not cover the owed amount")

// Reversal metadata written on every backtax reversal. The gateway is the
// record of what was collected; the agreement row only caches it.
const (
	metadataAgreement    = "backtax_agreement"
	metadataCoveredCents = "backtax_covered_cents"
)

type merchantLookup interface {
	GetByID(ctx context.Context, id string) (*models.MerchantAccount, error)
}

type transferIndex interface {
	ListByMerchantAccount(ctx context.Context, merchantAccountID string) ([]*models.InternalTransfer, error)
}

type transferGateway interface {
	GetTransfer(ctx context.Context, transferID string) (*models.Transfer, error)
	ListTransfers(ctx context.Context, destinationAccountID string, createdAfter time.Time) ([]*models.Transfer, error)
	ReverseTransfer(ctx context.Context, req processor.TransferReversalRequest) (*models.TransferReversal, error)
}

// Reconciler recovers amounts merchants owe the platform by reversing transfers
// previously paid out to them.
type Reconciler struct {
	agreements Service
	merchants  merchantLookup
	transfers  transferIndex
	gateway    transferGateway
	rates      exchange.RateProvider
	logger     *zap.Logger
	now        func() time.Time
}

func NewReconciler(agreements Service, merchants merchantLookup, transfers transferIndex, gateway transferGateway, rates exchange.RateProvider, logger *zap.Logger) *Reconciler {
	return &Reconciler{
		agreements: agreements,
		merchants:  merchants,
		transfers:  transfers,
		gateway:    gateway,
		rates:      rates,
		logger:     logger,
		now:        time.Now,
	}
}

type reversalStep struct {
	transfer *models.Transfer
	amount   int64
	covered  int64
}

// Collect reverses enough of the merchant's transfers to cover the agreement.
// A run interrupted halfway resumes from the reversals already tagged with the
// agreement on the gateway, even when the agreement row never saw them.
func (r *Reconciler) Collect(ctx context.Context, agreementID string) error {
	agreement, err := r.agreements.GetByID(ctx, agreementID)
	if err != nil {
		return fmt.Errorf("failed to get backtax agreement %s: %w", agreementID, err)
	}
	if agreement.Collected() {
		return nil
	}

	merchant, err := r.merchants.GetByID(ctx, agreement.MerchantAccountID)
	if err != nil {
		return fmt.Errorf("failed to get merchant account %s: %w", agreement.MerchantAccountID, err)
	}
	if !merchant.HasGatewayAccount() {
		return fmt.Errorf("%w: merchant account %s has no gateway account", processor.ErrConfiguration, merchant.ID)
	}

	internal, err := r.internalSources(ctx, merchant)
	if err != nil {
		return err
	}
	history, err := r.gatewaySources(ctx, merchant, internal)
	if err != nil {
		return err
	}
	sources := [][]*models.Transfer{internal, history}

	if err = r.syncCollected(ctx, agreement, sources); err != nil {
		return err
	}

	outstanding := agreement.Outstanding()
	if outstanding <= 0 {
		return r.agreements.MarkCollected(ctx, agreement.ID)
	}

	steps, err := r.plan(ctx, sources, agreement.Owed.Currency, outstanding, r.now())
	if err != nil {
		r.logger.Warn("Backtax agreement cannot be collected",
			zap.String("agreement_id", agreement.ID),
			zap.Int64("outstanding_cents", outstanding),
			zap.Error(err))
		return err
	}

	collected := agreement.CollectedCents
	for _, step := range steps {
		reversal, err := r.gateway.ReverseTransfer(ctx, processor.TransferReversalRequest{
			TransferID:  step.transfer.ID,
			AmountCents: step.amount,
			Metadata: map[string]string{
				metadataAgreement:    agreement.ID,
				metadataCoveredCents: strconv.FormatInt(step.covered, 10),
			},
			IdempotencyKey: fmt.Sprintf("backtax-%s-%s-%d", agreement.ID, step.transfer.ID, collected),
		})
		if err != nil {
			return fmt.Errorf("failed to reverse transfer %s for agreement %s: %w", step.transfer.ID, agreement.ID, err)
		}

		collected += step.covered
		if err = r.agreements.RecordCollected(ctx, agreement.ID, collected); err != nil {
			return fmt.Errorf("failed to record backtax collection: %w", err)
		}

		r.logger.Info("Backtax reversal",
			zap.String("agreement_id", agreement.ID),
			zap.String("transfer_id", step.transfer.ID),
			zap.String("reversal_id", reversal.ID),
			zap.Int64("amount", step.amount),
			zap.String("currency", step.transfer.Amount.Currency),
			zap.Int64("collected_cents", collected))
	}

	if err = r.agreements.MarkCollected(ctx, agreement.ID); err != nil {
		return fmt.Errorf("failed to mark backtax agreement %s collected: %w", agreement.ID, err)
	}
	return nil
}

// syncCollected raises the agreement's collected amount to what the tagged
// reversals on the gateway add up to.
func (r *Reconciler) syncCollected(ctx context.Context, agreement *models.BacktaxAgreement, sources [][]*models.Transfer) error {
	var onGateway int64
	for _, group := range sources {
		for _, t := range group {
			for _, reversal := range t.ReversalTagged(metadataAgreement, agreement.ID) {
				covered, err := strconv.ParseInt(reversal.Metadata[metadataCoveredCents], 10, 64)
				if err != nil {
					return fmt.Errorf("reversal %s of agreement %s has unreadable covered amount: %w", reversal.ID, agreement.ID, err)
				}
				onGateway += covered
			}
		}
	}
	if onGateway <= agreement.CollectedCents {
		return nil
	}

	r.logger.Warn("Backtax agreement behind gateway reversals",
		zap.String("agreement_id", agreement.ID),
		zap.Int64("recorded_cents", agreement.CollectedCents),
		zap.Int64("gateway_cents", onGateway))
	if err := r.agreements.RecordCollected(ctx, agreement.ID, onGateway); err != nil {
		return fmt.Errorf("failed to record backtax collection: %w", err)
	}
	agreement.CollectedCents = onGateway
	return nil
}

// CollectPending runs Collect for every open agreement and returns how many were
// settled.
func (r *Reconciler) CollectPending(ctx context.Context) (int, error) {
	pending, err := r.agreements.ListPending(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to list pending backtax agreements: %w", err)
	}

	var errs []error
	settled := 0
	for _, agreement := range pending {
		if err = r.Collect(ctx, agreement.ID); err != nil {
			if !errors.Is(err, ErrInsufficientTransfers) {
				errs = append(errs, err)
			}
			continue
		}
		settled++
	}

	r.logger.Info("Backtax batch finished",
		zap.Int("pending", len(pending)),
		zap.Int("settled", settled),
		zap.Int("failed", len(errs)))
	return settled, errors.Join(errs...)
}

// internalSources loads the indexed transfers with their live reversed amounts.
func (r *Reconciler) internalSources(ctx context.Context, merchant *models.MerchantAccount) ([]*models.Transfer, error) {
	indexed, err := r.transfers.ListByMerchantAccount(ctx, merchant.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to list internal transfers: %w", err)
	}

	sources := make([]*models.Transfer, 0, len(indexed))
	for _, it := range indexed {
		live, err := r.gateway.GetTransfer(ctx, it.TransferID)
		if err != nil {
			return nil, fmt.Errorf("failed to get transfer %s: %w", it.TransferID, err)
		}
		sources = append(sources, live)
	}
	return sources, nil
}

func (r *Reconciler) gatewaySources(ctx context.Context, merchant *models.MerchantAccount, known []*models.Transfer) ([]*models.Transfer, error) {
	history, err := r.gateway.ListTransfers(ctx, merchant.GatewayAccountID, time.Time{})
	if err != nil {
		return nil, fmt.Errorf("failed to list gateway transfers: %w", err)
	}

	seen := make(map[string]struct{}, len(known))
	for _, t := range known {
		seen[t.ID] = struct{}{}
	}
	extra := make([]*models.Transfer, 0, len(history))
	for _, t := range history {
		if _, ok := seen[t.ID]; !ok {
			extra = append(extra, t)
		}
	}
	return extra, nil
}

// plan walks the groups in order, each one preferred currency first and oldest
// first within a currency, until outstanding owed cents are covered.
func (r *Reconciler) plan(ctx context.Context, groups [][]*models.Transfer, owedCurrency string, outstanding int64, asOf time.Time) ([]reversalStep, error) {
	rates := make(map[string]decimal.Decimal)
	remaining := outstanding
	steps := make([]reversalStep, 0)

	for _, group := range groups {
		for _, t := range orderSources(group, owedCurrency) {
			if remaining == 0 {
				return steps, nil
			}
			reversible := t.Reversible()
			if reversible == 0 {
				continue
			}

			rate, ok := rates[t.Amount.Currency]
			if !ok {
				var err error
				rate, err = r.rates.Rate(ctx, owedCurrency, t.Amount.Currency, asOf)
				if err != nil {
					return nil, fmt.Errorf("failed to get %s->%s rate: %w", owedCurrency, t.Amount.Currency, err)
				}
				rates[t.Amount.Currency] = rate
			}

			need := decimal.NewFromInt(remaining).Mul(rate).Ceil().IntPart()
			take := min(reversible, need)
			covered := remaining
			if take < need {
				covered = min(decimal.NewFromInt(take).Div(rate).Floor().IntPart(), remaining)
			}
			if covered <= 0 {
				continue
			}

			steps = append(steps, reversalStep{transfer: t, amount: take, covered: covered})
			remaining -= covered
		}
	}

	if remaining > 0 {
		return nil, fmt.Errorf("%w: %d %s uncovered", ErrInsufficientTransfers, remaining, owedCurrency)
	}
	return steps, nil
}

func orderSources(transfers []*models.Transfer, preferred string) []*models.Transfer {
	ordered := make([]*models.Transfer, len(transfers))
	copy(ordered, transfers)
	sort.SliceStable(ordered, func(i, j int) bool {
		a, b := ordered[i], ordered[j]
		if (a.Amount.Currency == preferred) != (b.Amount.Currency == preferred) {
			return a.Amount.Currency == preferred
		}
		if a.Amount.Currency != b.Amount.Currency {
			return a.Amount.Currency < b.Amount.Currency
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.ID < b.ID
	})
	return ordered
}
