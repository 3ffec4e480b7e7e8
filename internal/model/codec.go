package model

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// WireTimeLayout is ISO-8601 with millisecond fractional seconds, as the
// backend emits it.
const WireTimeLayout = "2006-01-02T15:04:05.000Z07:00"

// FormatTime renders t in the wire layout, in UTC.
func FormatTime(t time.Time) string {
	return t.UTC().Format(WireTimeLayout)
}

// ParseTime parses a wire timestamp, accepting the form without fractional
// seconds as a fallback.
func ParseTime(s string) (time.Time, error) {
	if t, err := time.Parse(WireTimeLayout, s); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid timestamp %q: %w", s, err)
	}
	return t, nil
}

// Timestamp is a time.Time that encodes to and from the wire layout.
type Timestamp time.Time

// Time returns the underlying time.
func (ts Timestamp) Time() time.Time {
	return time.Time(ts)
}

// MarshalJSON implements json.Marshaler.
func (ts Timestamp) MarshalJSON() ([]byte, error) {
	return json.Marshal(FormatTime(time.Time(ts)))
}

// UnmarshalJSON implements json.Unmarshaler.
func (ts *Timestamp) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("timestamp must be a string: %w", err)
	}
	t, err := ParseTime(strings.TrimSpace(s))
	if err != nil {
		return err
	}
	*ts = Timestamp(t)
	return nil
}

type transactionPayload struct {
	Comment         *string         `json:"comment,omitempty"`
	TransactionDate Timestamp       `json:"transactionDate"`
	CreatedAt       Timestamp       `json:"createdAt"`
	UpdatedAt       Timestamp       `json:"updatedAt"`
	Amount          decimal.Decimal `json:"amount"`
	ID              int64           `json:"id"`
	AccountID       int64           `json:"accountId"`
	CategoryID      int64           `json:"categoryId"`
}

type accountPayload struct {
	CreatedAt Timestamp       `json:"createdAt"`
	UpdatedAt Timestamp       `json:"updatedAt"`
	Name      string          `json:"name"`
	Currency  string          `json:"currency"`
	Balance   decimal.Decimal `json:"balance"`
	ID        int64           `json:"id"`
	UserID    int64           `json:"userId"`
}

// EncodeTransaction serializes a transaction snapshot for the outbox.
func EncodeTransaction(t Transaction) ([]byte, error) {
	data, err := json.Marshal(transactionPayload{
		ID:              t.ID,
		AccountID:       t.AccountID,
		CategoryID:      t.CategoryID,
		Amount:          t.Amount,
		TransactionDate: Timestamp(t.TransactionDate),
		Comment:         t.Comment,
		CreatedAt:       Timestamp(t.CreatedAt),
		UpdatedAt:       Timestamp(t.UpdatedAt),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode transaction %d: %w", t.ID, err)
	}
	return data, nil
}

// DecodeTransaction parses a snapshot written by EncodeTransaction.
func DecodeTransaction(data []byte) (Transaction, error) {
	var p transactionPayload
	if err := json.Unmarshal(data, &p); err != nil {
		return Transaction{}, fmt.Errorf("failed to decode transaction payload: %w", err)
	}
	return Transaction{
		ID:              p.ID,
		AccountID:       p.AccountID,
		CategoryID:      p.CategoryID,
		Amount:          p.Amount,
		TransactionDate: p.TransactionDate.Time(),
		Comment:         p.Comment,
		CreatedAt:       p.CreatedAt.Time(),
		UpdatedAt:       p.UpdatedAt.Time(),
	}, nil
}

// EncodeAccount serializes an account snapshot for the outbox.
func EncodeAccount(a Account) ([]byte, error) {
	data, err := json.Marshal(accountPayload{
		ID:        a.ID,
		UserID:    a.UserID,
		Name:      a.Name,
		Balance:   a.Balance,
		Currency:  a.Currency,
		CreatedAt: Timestamp(a.CreatedAt),
		UpdatedAt: Timestamp(a.UpdatedAt),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode account %d: %w", a.ID, err)
	}
	return data, nil
}

// DecodeAccount parses a snapshot written by EncodeAccount.
func DecodeAccount(data []byte) (Account, error) {
	var p accountPayload
	if err := json.Unmarshal(data, &p); err != nil {
		return Account{}, fmt.Errorf("failed to decode account payload: %w", err)
	}
	return Account{
		ID:        p.ID,
		UserID:    p.UserID,
		Name:      p.Name,
		Balance:   p.Balance,
		Currency:  p.Currency,
		CreatedAt: p.CreatedAt.Time(),
		UpdatedAt: p.UpdatedAt.Time(),
	}, nil
}
