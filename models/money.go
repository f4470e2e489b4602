package models

import (
	"errors"
	"fmt"
	"strings"
)

var ErrCurrencyMismatch = errors.New("currency mismatch")

// Money is a signed amount in the smallest unit of a currency.
type Money struct {
	Currency string `json:"currency"`
	Cents    int64  `json:"cents"`
}

func NewMoney(currency string, cents int64) Money {
	return Money{Currency: strings.ToLower(currency), Cents: cents}
}

func (m Money) Add(o Money) (Money, error) {
	if m.Currency != o.Currency {
		return Money{}, fmt.Errorf("%w: %s + %s", ErrCurrencyMismatch, m.Currency, o.Currency)
	}
	return Money{Currency: m.Currency, Cents: m.Cents + o.Cents}, nil
}

func (m Money) Sub(o Money) (Money, error) {
	return m.Add(o.Negate())
}

func (m Money) Negate() Money {
	return Money{Currency: m.Currency, Cents: -m.Cents}
}

func (m Money) Abs() Money {
	if m.Cents < 0 {
		return m.Negate()
	}
	return m
}

func (m Money) IsZero() bool {
	return m.Cents == 0
}

func (m Money) String() string {
	sign := ""
	cents := m.Cents
	if cents < 0 {
		sign = "-"
		cents = -cents
	}
	return fmt.Sprintf("%s%d.%02d %s", sign, cents/100, cents%100, strings.ToUpper(m.Currency))
}
