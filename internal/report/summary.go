// Package report aggregates transactions into cash flow summaries.
package report

import (
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Veraticus/ledgersync/internal/common"
	"github.com/Veraticus/ledgersync/internal/model"
	"github.com/Veraticus/ledgersync/internal/service"
)

var hundred = decimal.NewFromInt(100)

// Summarize totals transactions by category for [start, end]. Every
// transaction's category must be present in categories.
func Summarize(transactions []model.Transaction, categories map[int64]model.Category, start, end time.Time) (service.CashFlowSummary, error) {
	summary := service.CashFlowSummary{
		DateRange:          service.DateRange{Start: start, End: end},
		IncomeByCategory:   make(map[int64]service.CategorySummary),
		ExpensesByCategory: make(map[int64]service.CategorySummary),
		TotalIncome:        decimal.Zero,
		TotalExpenses:      decimal.Zero,
	}

	for _, t := range transactions {
		category, ok := categories[t.CategoryID]
		if !ok {
			return service.CashFlowSummary{}, fmt.Errorf("%w: %d (transaction %d)", common.ErrCategoryNotFound, t.CategoryID, t.ID)
		}

		bucket := summary.ExpensesByCategory
		if category.Direction == model.DirectionIncome {
			bucket = summary.IncomeByCategory
			summary.TotalIncome = summary.TotalIncome.Add(t.Amount)
		} else {
			summary.TotalExpenses = summary.TotalExpenses.Add(t.Amount)
		}

		entry, ok := bucket[category.ID]
		if !ok {
			entry = service.CategorySummary{Category: category, Amount: decimal.Zero}
		}
		entry.Amount = entry.Amount.Add(t.Amount)
		entry.Count++
		bucket[category.ID] = entry
	}

	summary.NetCashFlow = summary.TotalIncome.Sub(summary.TotalExpenses)
	return summary, nil
}

// Ranked returns the categories ordered by amount, largest first, with
// ties broken by name.
func Ranked(byCategory map[int64]service.CategorySummary) []service.CategorySummary {
	ranked := make([]service.CategorySummary, 0, len(byCategory))
	for _, s := range byCategory {
		ranked = append(ranked, s)
	}
	sort.Slice(ranked, func(i, j int) bool {
		if c := ranked[i].Amount.Cmp(ranked[j].Amount); c != 0 {
			return c > 0
		}
		return ranked[i].Category.Name < ranked[j].Category.Name
	})
	return ranked
}

// Share returns part as a percentage of total, rounded to one decimal place.
// A zero total yields zero.
func Share(part, total decimal.Decimal) decimal.Decimal {
	if total.IsZero() {
		return decimal.Zero
	}
	return part.Mul(hundred).Div(total).Round(1)
}
