package model

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"

	"github.com/shopspring/decimal"
)

// CSVHeader lists the columns written by WriteTransactionsCSV.
var CSVHeader = []string{"id", "accountId", "categoryId", "amount", "transactionDate", "comment", "createdAt", "updatedAt"}

// WriteTransactionsCSV writes transactions with a header row.
func WriteTransactionsCSV(w io.Writer, transactions []Transaction) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(CSVHeader); err != nil {
		return fmt.Errorf("failed to write csv header: %w", err)
	}
	for _, t := range transactions {
		comment := ""
		if t.Comment != nil {
			comment = *t.Comment
		}
		record := []string{
			strconv.FormatInt(t.ID, 10),
			strconv.FormatInt(t.AccountID, 10),
			strconv.FormatInt(t.CategoryID, 10),
			t.Amount.String(),
			FormatTime(t.TransactionDate),
			comment,
			FormatTime(t.CreatedAt),
			FormatTime(t.UpdatedAt),
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("failed to write transaction %d: %w", t.ID, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// ParseTransactionsCSV reads rows in the WriteTransactionsCSV layout.
// Rows that cannot be parsed, including a header row, are skipped and counted.
func ParseTransactionsCSV(r io.Reader) ([]Transaction, int, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	var (
		transactions []Transaction
		skipped      int
	)
	for line := 1; ; line++ {
		record, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, skipped, fmt.Errorf("failed to read csv line %d: %w", line, err)
		}
		t, err := parseCSVRecord(record)
		if err != nil {
			slog.Debug("skipping csv row", "line", line, "error", err)
			skipped++
			continue
		}
		transactions = append(transactions, t)
	}
	return transactions, skipped, nil
}

func parseCSVRecord(record []string) (Transaction, error) {
	if len(record) != len(CSVHeader) {
		return Transaction{}, fmt.Errorf("expected %d columns, got %d", len(CSVHeader), len(record))
	}

	var (
		t   Transaction
		err error
	)
	if t.ID, err = strconv.ParseInt(record[0], 10, 64); err != nil {
		return Transaction{}, fmt.Errorf("id: %w", err)
	}
	if t.AccountID, err = strconv.ParseInt(record[1], 10, 64); err != nil {
		return Transaction{}, fmt.Errorf("accountId: %w", err)
	}
	if t.CategoryID, err = strconv.ParseInt(record[2], 10, 64); err != nil {
		return Transaction{}, fmt.Errorf("categoryId: %w", err)
	}
	if t.Amount, err = decimal.NewFromString(record[3]); err != nil {
		return Transaction{}, fmt.Errorf("amount: %w", err)
	}
	if t.TransactionDate, err = ParseTime(record[4]); err != nil {
		return Transaction{}, err
	}
	if record[5] != "" {
		comment := record[5]
		t.Comment = &comment
	}
	if t.CreatedAt, err = ParseTime(record[6]); err != nil {
		return Transaction{}, err
	}
	if t.UpdatedAt, err = ParseTime(record[7]); err != nil {
		return Transaction{}, err
	}
	return t, nil
}
