// Package storage provides the durable outbox and local mirrors for ledgersync.
package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/Veraticus/ledgersync/internal/model"
)

// Validation errors.
var (
	ErrNilContext         = errors.New("context cannot be nil")
	ErrEmptyString        = errors.New("string parameter cannot be empty")
	ErrInvalidDateRange   = errors.New("start date must be before end date")
	ErrInvalidTransaction = errors.New("invalid transaction")
	ErrInvalidCategory    = errors.New("invalid category")
	ErrInvalidAccount     = errors.New("invalid account")
	ErrInvalidOutboxEntry = errors.New("invalid outbox entry")
)

// validateContext ensures the context is not nil.
func validateContext(ctx context.Context) error {
	if ctx == nil {
		return ErrNilContext
	}
	return nil
}

// validateString ensures a string parameter is not empty.
func validateString(s string, paramName string) error {
	if strings.TrimSpace(s) == "" {
		return fmt.Errorf("%w: %s", ErrEmptyString, paramName)
	}
	return nil
}

func validateTransaction(t model.Transaction) error {
	if t.ID == 0 {
		return fmt.Errorf("%w: missing ID", ErrInvalidTransaction)
	}
	if t.TransactionDate.IsZero() {
		return fmt.Errorf("%w: missing transaction date", ErrInvalidTransaction)
	}
	if t.AccountID == 0 {
		return fmt.Errorf("%w: missing account ID", ErrInvalidTransaction)
	}
	return nil
}

func validateCategory(c model.Category) error {
	if c.ID == 0 {
		return fmt.Errorf("%w: missing ID", ErrInvalidCategory)
	}
	if !c.Direction.Valid() {
		return fmt.Errorf("%w: direction %q", ErrInvalidCategory, c.Direction)
	}
	return nil
}

func validateAccount(a model.Account) error {
	if a.ID == 0 {
		return fmt.Errorf("%w: missing ID", ErrInvalidAccount)
	}
	if strings.TrimSpace(a.Currency) == "" {
		return fmt.Errorf("%w: missing currency", ErrInvalidAccount)
	}
	return nil
}

func validateOutboxEntry(e model.OutboxEntry) error {
	if e.ID == 0 {
		return fmt.Errorf("%w: missing ID", ErrInvalidOutboxEntry)
	}
	if e.EntityType != model.EntityTransaction && e.EntityType != model.EntityAccount {
		return fmt.Errorf("%w: entity type %q", ErrInvalidOutboxEntry, e.EntityType)
	}
	if _, err := model.ParseAction(string(e.Action)); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidOutboxEntry, err)
	}
	if len(e.Payload) == 0 {
		return fmt.Errorf("%w: empty payload", ErrInvalidOutboxEntry)
	}
	return nil
}
