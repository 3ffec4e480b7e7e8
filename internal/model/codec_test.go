package model

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func strPtr(s string) *string { return &s }

func TestTransactionPayload_RoundTrip(t *testing.T) {
	base := time.Date(2025, 7, 15, 10, 30, 45, 123456789, time.UTC)

	tests := []struct {
		name string
		tx   Transaction
	}{
		{
			name: "with comment",
			tx: Transaction{
				ID:              42,
				AccountID:       1,
				CategoryID:      7,
				Amount:          decimal.RequireFromString("1500.50"),
				TransactionDate: base,
				Comment:         strPtr("groceries"),
				CreatedAt:       base.Add(time.Minute),
				UpdatedAt:       base.Add(2 * time.Minute),
			},
		},
		{
			name: "nil comment and placeholder id",
			tx: Transaction{
				ID:              -1752575445123,
				AccountID:       1,
				CategoryID:      3,
				Amount:          decimal.RequireFromString("0.01"),
				TransactionDate: base,
				CreatedAt:       base,
				UpdatedAt:       base,
			},
		},
		{
			name: "empty comment stays non-nil",
			tx: Transaction{
				ID:              9,
				AccountID:       2,
				CategoryID:      3,
				Amount:          decimal.RequireFromString("123456789.987654321"),
				TransactionDate: base.In(time.FixedZone("MSK", 3*60*60)),
				Comment:         strPtr(""),
				CreatedAt:       base,
				UpdatedAt:       base,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := EncodeTransaction(tt.tx)
			require.NoError(t, err)

			got, err := DecodeTransaction(data)
			require.NoError(t, err)

			assert.Equal(t, tt.tx.ID, got.ID)
			assert.Equal(t, tt.tx.AccountID, got.AccountID)
			assert.Equal(t, tt.tx.CategoryID, got.CategoryID)
			assert.True(t, tt.tx.Amount.Equal(got.Amount), "amount %s != %s", tt.tx.Amount, got.Amount)
			assert.WithinDuration(t, tt.tx.TransactionDate, got.TransactionDate, time.Millisecond)
			assert.WithinDuration(t, tt.tx.CreatedAt, got.CreatedAt, time.Millisecond)
			assert.WithinDuration(t, tt.tx.UpdatedAt, got.UpdatedAt, time.Millisecond)
			assert.Equal(t, tt.tx.Comment, got.Comment)
		})
	}
}

func TestEncodeTransaction_AmountIsString(t *testing.T) {
	data, err := EncodeTransaction(Transaction{
		ID:              1,
		Amount:          decimal.RequireFromString("10.10"),
		TransactionDate: time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC),
	})
	require.NoError(t, err)

	assert.Contains(t, string(data), `"amount":"10.1"`)
	assert.Contains(t, string(data), `"transactionDate":"2025-01-02T03:04:05.000Z"`)
	assert.NotContains(t, string(data), "comment")
}

func TestAccountPayload_RoundTrip(t *testing.T) {
	now := time.Date(2025, 7, 17, 8, 0, 0, 0, time.UTC)
	acc := Account{
		ID:        1,
		UserID:    5,
		Name:      "Main",
		Balance:   decimal.RequireFromString("1000.00"),
		Currency:  "RUB",
		CreatedAt: now,
		UpdatedAt: now,
	}

	data, err := EncodeAccount(acc)
	require.NoError(t, err)
	got, err := DecodeAccount(data)
	require.NoError(t, err)

	assert.Equal(t, acc.ID, got.ID)
	assert.Equal(t, acc.Name, got.Name)
	assert.Equal(t, acc.Currency, got.Currency)
	assert.True(t, acc.Balance.Equal(got.Balance))
	assert.True(t, acc.UpdatedAt.Equal(got.UpdatedAt))
}

func TestParseTime(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    time.Time
		wantErr bool
	}{
		{
			name:  "fractional seconds",
			input: "2025-07-15T10:30:45.123Z",
			want:  time.Date(2025, 7, 15, 10, 30, 45, 123000000, time.UTC),
		},
		{
			name:  "without fractional seconds",
			input: "2025-07-15T10:30:45Z",
			want:  time.Date(2025, 7, 15, 10, 30, 45, 0, time.UTC),
		},
		{
			name:  "with offset",
			input: "2025-07-15T13:30:45.000+03:00",
			want:  time.Date(2025, 7, 15, 10, 30, 45, 0, time.UTC),
		},
		{
			name:    "date only",
			input:   "2025-07-15",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseTime(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.True(t, tt.want.Equal(got), "got %v, want %v", got, tt.want)
		})
	}
}

func TestDirection_Sign(t *testing.T) {
	amount := decimal.RequireFromString("150.00")

	assert.True(t, DirectionIncome.Sign(amount).Equal(amount))
	assert.True(t, DirectionOutcome.Sign(amount).Equal(amount.Neg()))

	cat := Category{ID: 1, Direction: DirectionOutcome}
	assert.Equal(t, "-150", cat.Signed(Transaction{Amount: amount}).String())
}

func TestParseDirection(t *testing.T) {
	d, err := ParseDirection("income")
	require.NoError(t, err)
	assert.Equal(t, DirectionIncome, d)

	_, err = ParseDirection("sideways")
	assert.Error(t, err)

	assert.Equal(t, DirectionOutcome, DirectionFromIncome(false))
}

func TestTransaction_InRange(t *testing.T) {
	from := time.Date(2025, 7, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2025, 7, 31, 23, 59, 59, 0, time.UTC)

	tx := Transaction{AccountID: 1, TransactionDate: from}
	assert.True(t, tx.InRange(1, from, to), "lower bound is inclusive")

	tx.TransactionDate = to
	assert.True(t, tx.InRange(1, from, to), "upper bound is inclusive")

	tx.TransactionDate = to.Add(time.Second)
	assert.False(t, tx.InRange(1, from, to))

	tx.TransactionDate = from
	assert.False(t, tx.InRange(2, from, to))
}
