package backtax

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	processor "goflare.io/chargeprocessor"
	"goflare.io/chargeprocessor/exchange"
	"goflare.io/chargeprocessor/models"
)

var baseTime = time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

type fakeAgreements struct {
	agreements map[string]*models.BacktaxAgreement
	recorded   []int64
	recordErr  error
}

func (f *fakeAgreements) GetByID(_ context.Context, id string) (*models.BacktaxAgreement, error) {
	a, ok := f.agreements[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *a
	return &cp, nil
}

func (f *fakeAgreements) ListPending(_ context.Context) ([]*models.BacktaxAgreement, error) {
	out := make([]*models.BacktaxAgreement, 0)
	for _, a := range f.agreements {
		if !a.Collected() {
			out = append(out, a)
		}
	}
	return out, nil
}

func (f *fakeAgreements) RecordCollected(_ context.Context, id string, collectedCents int64) error {
	if err := f.recordErr; err != nil {
		f.recordErr = nil
		return err
	}
	f.agreements[id].CollectedCents = collectedCents
	f.recorded = append(f.recorded, collectedCents)
	return nil
}

func (f *fakeAgreements) MarkCollected(_ context.Context, id string) error {
	now := baseTime
	f.agreements[id].CollectedAt = &now
	return nil
}

type fakeMerchants map[string]*models.MerchantAccount

func (f fakeMerchants) GetByID(_ context.Context, id string) (*models.MerchantAccount, error) {
	m, ok := f[id]
	if !ok {
		return nil, fmt.Errorf("merchant %s not found", id)
	}
	return m, nil
}

type fakeIndex []*models.InternalTransfer

func (f fakeIndex) ListByMerchantAccount(_ context.Context, _ string) ([]*models.InternalTransfer, error) {
	return f, nil
}

type reversalCall struct {
	TransferID string
	Amount     int64
	Key        string
}

// fakeGateway keeps transfer state the way the gateway does, so reversals are
// visible to later reads.
type fakeGateway struct {
	transfers map[string]*models.Transfer
	history   []string
	reversals []reversalCall
	listed    int
}

func newFakeGateway(transfers ...*models.Transfer) *fakeGateway {
	g := &fakeGateway{transfers: make(map[string]*models.Transfer)}
	for _, t := range transfers {
		g.transfers[t.ID] = t
	}
	return g
}

func (g *fakeGateway) GetTransfer(_ context.Context, id string) (*models.Transfer, error) {
	t, ok := g.transfers[id]
	if !ok {
		return nil, processor.ErrInvalidRequest
	}
	cp := *t
	return &cp, nil
}

func (g *fakeGateway) ListTransfers(_ context.Context, _ string, _ time.Time) ([]*models.Transfer, error) {
	g.listed++
	out := make([]*models.Transfer, 0, len(g.history))
	for _, id := range g.history {
		cp := *g.transfers[id]
		out = append(out, &cp)
	}
	return out, nil
}

func (g *fakeGateway) ReverseTransfer(_ context.Context, req processor.TransferReversalRequest) (*models.TransferReversal, error) {
	t := g.transfers[req.TransferID]
	if req.AmountCents > t.Reversible() {
		return nil, processor.ErrInvalidRequest
	}
	t.AmountReversed += req.AmountCents
	g.reversals = append(g.reversals, reversalCall{TransferID: req.TransferID, Amount: req.AmountCents, Key: req.IdempotencyKey})
	reversal := &models.TransferReversal{
		ID:         fmt.Sprintf("trr_%d", len(g.reversals)),
		TransferID: req.TransferID,
		Amount:     models.NewMoney(t.Amount.Currency, req.AmountCents),
		Metadata:   req.Metadata,
	}
	t.Reversals = append(t.Reversals, reversal)
	return reversal, nil
}

func transfer(id, currency string, cents int64, day int) *models.Transfer {
	return &models.Transfer{
		ID:                   id,
		DestinationAccountID: "acct_merchant",
		Amount:               models.NewMoney(currency, cents),
		CreatedAt:            baseTime.AddDate(0, 0, day),
	}
}

func indexed(ids ...string) fakeIndex {
	out := make(fakeIndex, 0, len(ids))
	for i, id := range ids {
		out = append(out, &models.InternalTransfer{
			ID:                fmt.Sprintf("it_%d", i),
			TransferID:        id,
			MerchantAccountID: "ma_1",
		})
	}
	return out
}

func newTestReconciler(agreements *fakeAgreements, index fakeIndex, gateway *fakeGateway, rates exchange.RateProvider) *Reconciler {
	merchants := fakeMerchants{
		"ma_1": {ID: "ma_1", UserID: "u_1", GatewayAccountID: "acct_merchant", Currency: "usd"},
	}
	r := NewReconciler(agreements, merchants, index, gateway, rates, zap.NewNop())
	r.now = func() time.Time { return baseTime }
	return r
}

func agreementOwing(cents int64, currency string) *fakeAgreements {
	return &fakeAgreements{agreements: map[string]*models.BacktaxAgreement{
		"bta_1": {
			ID:                "bta_1",
			MerchantAccountID: "ma_1",
			CreditID:          "cr_1",
			Owed:              models.NewMoney(currency, -cents),
		},
	}}
}

func TestCollect_OldestFirst(t *testing.T) {
	gateway := newFakeGateway(
		transfer("tr_new", "usd", 1000, 3),
		transfer("tr_old", "usd", 300, 1),
		transfer("tr_mid", "usd", 100, 2),
	)
	agreements := agreementOwing(500, "usd")
	r := newTestReconciler(agreements, indexed("tr_new", "tr_old", "tr_mid"), gateway, exchange.StaticRateProvider{})

	require.NoError(t, r.Collect(context.Background(), "bta_1"))

	require.Len(t, gateway.reversals, 3)
	assert.Equal(t, reversalCall{"tr_old", 300, "backtax-bta_1-tr_old-0"}, gateway.reversals[0])
	assert.Equal(t, reversalCall{"tr_mid", 100, "backtax-bta_1-tr_mid-300"}, gateway.reversals[1])
	assert.Equal(t, reversalCall{"tr_new", 100, "backtax-bta_1-tr_new-400"}, gateway.reversals[2])
	assert.Equal(t, []int64{300, 400, 500}, agreements.recorded)
	assert.True(t, agreements.agreements["bta_1"].Collected())
	assert.Equal(t, "100", gateway.transfers["tr_new"].Reversals[0].Metadata["backtax_covered_cents"])
}

func TestCollect_PreferredCurrencyFirst(t *testing.T) {
	gateway := newFakeGateway(
		transfer("tr_eur", "eur", 5000, 1),
		transfer("tr_usd", "usd", 600, 5),
	)
	rates := exchange.StaticRateProvider{"usd:eur": decimal.RequireFromString("0.5")}
	agreements := agreementOwing(1000, "usd")
	r := newTestReconciler(agreements, indexed("tr_eur", "tr_usd"), gateway, rates)

	require.NoError(t, r.Collect(context.Background(), "bta_1"))

	require.Len(t, gateway.reversals, 2)
	assert.Equal(t, "tr_usd", gateway.reversals[0].TransferID)
	assert.Equal(t, int64(600), gateway.reversals[0].Amount)
	assert.Equal(t, "tr_eur", gateway.reversals[1].TransferID)
	assert.Equal(t, int64(200), gateway.reversals[1].Amount)
	assert.Equal(t, int64(1000), agreements.agreements["bta_1"].CollectedCents)
	assert.True(t, agreements.agreements["bta_1"].Collected())
}

func TestCollect_FallsBackToGatewayHistory(t *testing.T) {
	gateway := newFakeGateway(
		transfer("tr_1", "usd", 300, 1),
		transfer("tr_2", "usd", 900, 2),
	)
	gateway.history = []string{"tr_2", "tr_1"}
	agreements := agreementOwing(1000, "usd")
	r := newTestReconciler(agreements, indexed("tr_1"), gateway, exchange.StaticRateProvider{})

	require.NoError(t, r.Collect(context.Background(), "bta_1"))

	assert.Equal(t, 1, gateway.listed)
	require.Len(t, gateway.reversals, 2)
	assert.Equal(t, reversalCall{"tr_1", 300, "backtax-bta_1-tr_1-0"}, gateway.reversals[0])
	assert.Equal(t, reversalCall{"tr_2", 700, "backtax-bta_1-tr_2-300"}, gateway.reversals[1])
}

func TestCollect_InsufficientTransfersReversesNothing(t *testing.T) {
	gateway := newFakeGateway(
		transfer("tr_1", "usd", 300, 1),
		transfer("tr_2", "usd", 200, 2),
	)
	gateway.history = []string{"tr_1", "tr_2"}
	agreements := agreementOwing(1000, "usd")
	r := newTestReconciler(agreements, indexed("tr_1"), gateway, exchange.StaticRateProvider{})

	err := r.Collect(context.Background(), "bta_1")

	assert.ErrorIs(t, err, ErrInsufficientTransfers)
	assert.Empty(t, gateway.reversals)
	assert.Empty(t, agreements.recorded)
	assert.False(t, agreements.agreements["bta_1"].Collected())
}

func TestCollect_ResumesWithoutReReversing(t *testing.T) {
	done := transfer("tr_1", "usd", 300, 1)
	done.AmountReversed = 300
	gateway := newFakeGateway(done, transfer("tr_2", "usd", 1000, 2))
	agreements := agreementOwing(1000, "usd")
	agreements.agreements["bta_1"].CollectedCents = 300
	r := newTestReconciler(agreements, indexed("tr_1", "tr_2"), gateway, exchange.StaticRateProvider{})

	require.NoError(t, r.Collect(context.Background(), "bta_1"))

	require.Len(t, gateway.reversals, 1)
	assert.Equal(t, reversalCall{"tr_2", 700, "backtax-bta_1-tr_2-300"}, gateway.reversals[0])
	assert.Equal(t, []int64{1000}, agreements.recorded)
}

func TestCollect_RecordFailureAfterReversalDoesNotReverseTwice(t *testing.T) {
	gateway := newFakeGateway(transfer("tr_a", "usd", 1000, 1))
	agreements := agreementOwing(500, "usd")
	agreements.recordErr = errors.New("connection reset")
	r := newTestReconciler(agreements, indexed("tr_a"), gateway, exchange.StaticRateProvider{})
	ctx := context.Background()

	require.Error(t, r.Collect(ctx, "bta_1"))
	assert.Zero(t, agreements.agreements["bta_1"].CollectedCents)

	require.NoError(t, r.Collect(ctx, "bta_1"))

	require.Len(t, gateway.reversals, 1)
	assert.Equal(t, reversalCall{"tr_a", 500, "backtax-bta_1-tr_a-0"}, gateway.reversals[0])
	assert.Equal(t, int64(500), gateway.transfers["tr_a"].AmountReversed)
	assert.Equal(t, []int64{500}, agreements.recorded)
	assert.True(t, agreements.agreements["bta_1"].Collected())
}

func TestCollect_CountsTaggedReversalsOnHistoryTransfers(t *testing.T) {
	partial := transfer("tr_b", "usd", 1000, 2)
	partial.AmountReversed = 200
	partial.Reversals = []*models.TransferReversal{{
		ID:         "trr_prev",
		TransferID: "tr_b",
		Amount:     models.NewMoney("usd", 200),
		Metadata:   map[string]string{"backtax_agreement": "bta_1", "backtax_covered_cents": "200"},
	}}
	gateway := newFakeGateway(partial)
	gateway.history = []string{"tr_b"}
	agreements := agreementOwing(600, "usd")
	r := newTestReconciler(agreements, indexed(), gateway, exchange.StaticRateProvider{})

	require.NoError(t, r.Collect(context.Background(), "bta_1"))

	require.Len(t, gateway.reversals, 1)
	assert.Equal(t, reversalCall{"tr_b", 400, "backtax-bta_1-tr_b-200"}, gateway.reversals[0])
	assert.Equal(t, []int64{200, 600}, agreements.recorded)
}

func TestCollect_IgnoresOtherAgreementsReversals(t *testing.T) {
	tr := transfer("tr_a", "usd", 1000, 1)
	tr.AmountReversed = 300
	tr.Reversals = []*models.TransferReversal{{
		ID:       "trr_other",
		Amount:   models.NewMoney("usd", 300),
		Metadata: map[string]string{"backtax_agreement": "bta_other", "backtax_covered_cents": "300"},
	}}
	gateway := newFakeGateway(tr)
	agreements := agreementOwing(500, "usd")
	r := newTestReconciler(agreements, indexed("tr_a"), gateway, exchange.StaticRateProvider{})

	require.NoError(t, r.Collect(context.Background(), "bta_1"))

	require.Len(t, gateway.reversals, 1)
	assert.Equal(t, int64(500), gateway.reversals[0].Amount)
	assert.Equal(t, []int64{500}, agreements.recorded)
}

func TestCollect_AlreadyCollectedIsNoop(t *testing.T) {
	gateway := newFakeGateway(transfer("tr_1", "usd", 300, 1))
	agreements := agreementOwing(100, "usd")
	collectedAt := baseTime
	agreements.agreements["bta_1"].CollectedAt = &collectedAt
	r := newTestReconciler(agreements, indexed("tr_1"), gateway, exchange.StaticRateProvider{})

	require.NoError(t, r.Collect(context.Background(), "bta_1"))
	assert.Empty(t, gateway.reversals)
}

func TestCollect_MerchantWithoutGatewayAccount(t *testing.T) {
	agreements := agreementOwing(100, "usd")
	r := NewReconciler(agreements, fakeMerchants{"ma_1": {ID: "ma_1"}}, indexed(), newFakeGateway(), exchange.StaticRateProvider{}, zap.NewNop())

	err := r.Collect(context.Background(), "bta_1")
	assert.ErrorIs(t, err, processor.ErrConfiguration)
}

func TestCollectPending_SkipsUncoverable(t *testing.T) {
	gateway := newFakeGateway(transfer("tr_1", "usd", 300, 1))
	agreements := agreementOwing(1000, "usd")
	r := newTestReconciler(agreements, indexed("tr_1"), gateway, exchange.StaticRateProvider{})

	settled, err := r.CollectPending(context.Background())
	require.NoError(t, err)
	assert.Zero(t, settled)
	assert.Empty(t, gateway.reversals)
}

func TestOrderSources(t *testing.T) {
	ordered := orderSources([]*models.Transfer{
		transfer("a", "gbp", 1, 1),
		transfer("b", "usd", 1, 3),
		transfer("c", "eur", 1, 0),
		transfer("d", "usd", 1, 2),
	}, "usd")

	ids := make([]string, 0, len(ordered))
	for _, tr := range ordered {
		ids = append(ids, tr.ID)
	}
	assert.Equal(t, []string{"d", "b", "c", "a"}, ids)
}
