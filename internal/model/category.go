package model

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Direction determines how a category's transactions affect the balance.
type Direction string

// Category directions.
const (
	DirectionIncome  Direction = "income"
	DirectionOutcome Direction = "outcome"
)

// Valid reports whether d is a known direction.
func (d Direction) Valid() bool {
	return d == DirectionIncome || d == DirectionOutcome
}

// Sign applies the direction's sign convention to amount.
func (d Direction) Sign(amount decimal.Decimal) decimal.Decimal {
	if d == DirectionIncome {
		return amount
	}
	return amount.Neg()
}

// ParseDirection converts a string into a Direction.
func ParseDirection(s string) (Direction, error) {
	d := Direction(s)
	if !d.Valid() {
		return "", fmt.Errorf("unknown direction %q", s)
	}
	return d, nil
}

// DirectionFromIncome maps the server's isIncome flag onto a Direction.
func DirectionFromIncome(isIncome bool) Direction {
	if isIncome {
		return DirectionIncome
	}
	return DirectionOutcome
}

// Category groups transactions and fixes their sign convention.
type Category struct {
	Name      string
	Emoji     string // single display glyph
	Direction Direction
	ID        int64
}

// Signed returns the transaction amount with the category's sign applied.
func (c Category) Signed(t Transaction) decimal.Decimal {
	return c.Direction.Sign(t.Amount)
}
