package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Transaction is a single income or expense entry against an account.
// A negative ID marks a transaction created locally that the server has not
// assigned an ID to yet.
type Transaction struct {
	TransactionDate time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
	Comment         *string
	Amount          decimal.Decimal
	ID              int64
	AccountID       int64
	CategoryID      int64
}

// IsLocal reports whether the transaction still carries a placeholder ID.
func (t Transaction) IsLocal() bool {
	return t.ID < 0
}

// InRange reports whether the transaction belongs to accountID and falls in
// [from, to] inclusive.
func (t Transaction) InRange(accountID int64, from, to time.Time) bool {
	if t.AccountID != accountID {
		return false
	}
	return !t.TransactionDate.Before(from) && !t.TransactionDate.After(to)
}

// TransactionDraft carries the fields a client sends when creating a transaction.
type TransactionDraft struct {
	TransactionDate time.Time
	Comment         *string
	Amount          decimal.Decimal
	AccountID       int64
	CategoryID      int64
}

// WithID builds a Transaction from the draft, stamping both timestamps with now.
func (d TransactionDraft) WithID(id int64, now time.Time) Transaction {
	return Transaction{
		ID:              id,
		AccountID:       d.AccountID,
		CategoryID:      d.CategoryID,
		Amount:          d.Amount,
		TransactionDate: d.TransactionDate,
		Comment:         d.Comment,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
}

// DraftOf returns the request fields of an existing transaction.
func DraftOf(t Transaction) TransactionDraft {
	return TransactionDraft{
		AccountID:       t.AccountID,
		CategoryID:      t.CategoryID,
		Amount:          t.Amount,
		TransactionDate: t.TransactionDate,
		Comment:         t.Comment,
	}
}

// Equal compares two transactions field by field using exact decimal
// comparison and instant equality for timestamps.
func (t Transaction) Equal(o Transaction) bool {
	if t.ID != o.ID || t.AccountID != o.AccountID || t.CategoryID != o.CategoryID {
		return false
	}
	if !t.Amount.Equal(o.Amount) {
		return false
	}
	if !t.TransactionDate.Equal(o.TransactionDate) || !t.CreatedAt.Equal(o.CreatedAt) || !t.UpdatedAt.Equal(o.UpdatedAt) {
		return false
	}
	switch {
	case t.Comment == nil && o.Comment == nil:
		return true
	case t.Comment == nil || o.Comment == nil:
		return false
	default:
		return *t.Comment == *o.Comment
	}
}
