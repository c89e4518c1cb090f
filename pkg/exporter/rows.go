package exporter

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/bcaldwell/beanbudget/pkg/budget"
)

// ToBeAssignedCategory is the category name used for the to be assigned row
// of each month.
const ToBeAssignedCategory = "to-be-assigned"

// HeldCategory is the category name of the row for money held for the next
// month. It is only exported for months that hold or release money.
const HeldCategory = "held"

// Row is one exported budget line: a category, or the to be assigned total,
// in a month and currency.
type Row struct {
	Key           string
	Budget        string
	Category      string
	CategoryName  string
	CategoryGroup string
	Month         time.Time
	Currency      string
	Carryover     decimal.Decimal
	Assigned      decimal.Decimal
	Activity      decimal.Decimal
	Balance       decimal.Decimal
}

// Rows flattens a report into rows ordered by currency, month and category.
func Rows(budgetName string, report *budget.Report) []Row {
	loc := report.Layout().Location()
	rows := make([]Row, 0)

	for _, currency := range report.Currencies() {
		for _, m := range report.Months(currency) {
			month := m.Month.Start(loc)
			for _, c := range m.Categories {
				rows = append(rows, Row{
					Key:           rowKey(budgetName, m.Month, currency, string(c.Key)),
					Budget:        budgetName,
					Category:      string(c.Key),
					CategoryName:  c.Name,
					CategoryGroup: c.Group,
					Month:         month,
					Currency:      currency,
					Carryover:     c.Carryover,
					Assigned:      c.Assigned,
					Activity:      c.Spending,
					Balance:       c.Balance,
				})
			}

			rows = append(rows, Row{
				Key:          rowKey(budgetName, m.Month, currency, ToBeAssignedCategory),
				Budget:       budgetName,
				Category:     ToBeAssignedCategory,
				CategoryName: "To be assigned",
				Month:        month,
				Currency:     currency,
				Carryover:    m.Overspending,
				Assigned:     m.Assigned,
				Activity:     m.Funding,
				Balance:      m.ToBeAssigned,
			})

			if !m.Held.IsZero() || !m.Released.IsZero() {
				rows = append(rows, Row{
					Key:          rowKey(budgetName, m.Month, currency, HeldCategory),
					Budget:       budgetName,
					Category:     HeldCategory,
					CategoryName: "Held for next month",
					Month:        month,
					Currency:     currency,
					Carryover:    m.Released,
					Assigned:     m.Held,
					Activity:     decimal.Zero,
					Balance:      m.Held,
				})
			}
		}
	}
	return rows
}

func rowKey(budgetName string, month budget.Month, currency, category string) string {
	return fmt.Sprintf("%s/%s/%s/%s", budgetName, month, currency, category)
}
