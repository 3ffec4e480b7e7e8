package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Account is the user's single bank account.
type Account struct {
	CreatedAt time.Time
	UpdatedAt time.Time
	Name      string
	Currency  string
	Balance   decimal.Decimal
	ID        int64
	UserID    int64
}

// WithBalance returns a copy of the account carrying balance and updatedAt.
func (a Account) WithBalance(balance decimal.Decimal, updatedAt time.Time) Account {
	a.Balance = balance
	a.UpdatedAt = updatedAt
	return a
}

// WithCurrency returns a copy of the account carrying currency.
func (a Account) WithCurrency(currency string) Account {
	a.Currency = currency
	return a
}
