package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMoney_Arithmetic(t *testing.T) {
	a := NewMoney("USD", 1050)
	b := NewMoney("usd", -250)

	sum, err := a.Add(b)
	require.NoError(t, err)
	assert.Equal(t, Money{Currency: "usd", Cents: 800}, sum)

	diff, err := a.Sub(b)
	require.NoError(t, err)
	assert.Equal(t, int64(1300), diff.Cents)

	_, err = a.Add(NewMoney("eur", 1))
	assert.ErrorIs(t, err, ErrCurrencyMismatch)

	assert.Equal(t, NewMoney("usd", 250), b.Abs())
	assert.Equal(t, NewMoney("usd", -1050), a.Negate())
	assert.True(t, NewMoney("usd", 0).IsZero())
	assert.Equal(t, "10.50 USD", a.String())
	assert.Equal(t, "-2.50 USD", b.String())
}

func TestNewFlowOfFunds_RequiresBothMerchantAmounts(t *testing.T) {
	issued := NewMoney("usd", 1000)
	gross := NewMoney("usd", 900)

	_, err := NewFlowOfFunds(issued, issued, nil, &gross, nil)
	assert.ErrorIs(t, err, ErrIncompleteMerchantAmounts)

	fof, err := NewFlowOfFunds(issued, issued, nil, &gross, &gross)
	require.NoError(t, err)
	assert.True(t, fof.HasMerchantAmounts())
}

func TestFlowOfFunds_Negate(t *testing.T) {
	platform := NewMoney("usd", 100)
	gross := NewMoney("eur", 820)
	net := NewMoney("eur", 790)
	fof, err := NewFlowOfFunds(NewMoney("usd", 1000), NewMoney("usd", 1000), &platform, &gross, &net)
	require.NoError(t, err)

	negated := fof.Negate()

	assert.Equal(t, int64(-1000), negated.IssuedAmount.Cents)
	assert.Equal(t, int64(-1000), negated.SettledAmount.Cents)
	assert.Equal(t, int64(-100), negated.PlatformAmount.Cents)
	assert.Equal(t, NewMoney("eur", -820), *negated.MerchantAccountGrossAmount)
	assert.Equal(t, NewMoney("eur", -790), *negated.MerchantAccountNetAmount)
	assert.Equal(t, int64(100), fof.PlatformAmount.Cents)
}

func TestBuildSimpleFlowOfFunds(t *testing.T) {
	m := NewMoney("usd", -400)

	fof := BuildSimpleFlowOfFunds(m)

	assert.Equal(t, m, fof.IssuedAmount)
	assert.Equal(t, m, fof.SettledAmount)
	assert.Equal(t, m, *fof.PlatformAmount)
	assert.False(t, fof.HasMerchantAmounts())
	assert.Nil(t, fof.Negate().MerchantAccountGrossAmount)
}
