package render

import (
	"bytes"
	"testing"
	"time"

	"github.com/fatih/color"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bcaldwell/beanbudget/pkg/budget"
)

func init() {
	color.NoColor = true
}

var january = budget.Month{Year: 2025, Month: time.January}

func testReport(t *testing.T, holds ...budget.Hold) *budget.Report {
	t.Helper()
	layout, err := budget.NewLayout(budget.LayoutOptions{
		Start:          january,
		BudgetAccounts: []string{"Assets:Checking"},
		Groups: []budget.Group{{
			Name: "Bills",
			Categories: []budget.Category{
				{Name: "Rent", Accounts: []string{"Expenses:Rent"}},
				{Name: "Power", Accounts: []string{"Expenses:Power"}},
			},
		}},
	})
	require.NoError(t, err)

	date := time.Date(2025, time.January, 3, 0, 0, 0, 0, time.UTC)
	report, err := budget.Evaluate(layout, budget.Input{
		Transactions: []budget.Transaction{
			{Ref: "main.beancount#1", Date: date, Payee: "Employer", Narration: "Salary", Postings: []budget.Posting{
				{Account: "Assets:Checking", Amount: decimal.NewFromInt(3000), Currency: "AUD"},
				{Account: "Income:Salary", Amount: decimal.NewFromInt(-3000), Currency: "AUD"},
			}},
			{Ref: "main.beancount#2", Date: date, Narration: "January rent", Postings: []budget.Posting{
				{Account: "Assets:Checking", Amount: decimal.NewFromInt(-1250), Currency: "AUD"},
				{Account: "Expenses:Rent", Amount: decimal.NewFromInt(1250), Currency: "AUD"},
			}},
			{Ref: "main.beancount#3", Date: date, Narration: "Paid with card", Postings: []budget.Posting{
				{Account: "Liabilities:Card", Amount: decimal.NewFromInt(-80), Currency: "AUD"},
				{Account: "Expenses:Power", Amount: decimal.NewFromInt(80), Currency: "AUD"},
			}},
		},
		Assignments: []budget.Assignment{{
			Category: "rent",
			Month:    january,
			Currency: "AUD",
			Amount:   decimal.NewFromInt(1500),
		}},
		Holds: holds,
	})
	require.NoError(t, err)
	return report
}

func TestAmount(t *testing.T) {
	tests := []struct {
		amount string
		places int32
		want   string
	}{
		{"0", 2, "0.00"},
		{"1234.5", 2, "1,234.50"},
		{"-1234567.891", 2, "-1,234,567.89"},
		{"-0.001", 2, "0.00"},
		{"1500", 0, "1,500"},
		{"0.125", 3, "0.125"},
	}

	for _, test := range tests {
		t.Run(test.amount, func(t *testing.T) {
			assert.Equal(t, test.want, Amount(decimal.RequireFromString(test.amount), test.places))
		})
	}
}

func TestMonth(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, Month(&out, testReport(t), january))

	view := out.String()
	assert.Contains(t, view, "January 2025 (AUD)")
	assert.Regexp(t, `Bills\s+1,500.00\s+-1,250.00\s+250.00`, view)
	assert.Regexp(t, `Rent\s+1,500.00\s+-1,250.00\s+250.00`, view)
	assert.Regexp(t, `Funding\s+3,000.00`, view)
	assert.Regexp(t, `To be assigned\s+1,500.00`, view)
	assert.NotContains(t, view, "Overspent")
	assert.NotContains(t, view, "Held")
}

func TestMonthHeld(t *testing.T) {
	report := testReport(t, budget.Hold{Month: january, Currency: "AUD", Amount: decimal.NewFromInt(1000)})

	var out bytes.Buffer
	require.NoError(t, Month(&out, report, january))
	assert.Regexp(t, `Held for next month\s+-1,000.00`, out.String())
	assert.Regexp(t, `To be assigned\s+500.00`, out.String())

	out.Reset()
	february := january.Add(1)
	require.NoError(t, Month(&out, report, february))
	assert.Regexp(t, `Released from last month\s+1,000.00`, out.String())
	assert.Regexp(t, `To be assigned\s+1,500.00`, out.String())
}

func TestMonthOutsideRange(t *testing.T) {
	var out bytes.Buffer
	err := Month(&out, testReport(t), budget.Month{Year: 2026, Month: time.March})
	assert.Error(t, err)
}

func TestTransactions(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, Transactions(&out, testReport(t), january))

	lines := bytes.Split(bytes.TrimSpace(out.Bytes()), []byte("\n"))
	require.Len(t, lines, 6)
	assert.Contains(t, string(lines[2]), "Employer: Salary")
	assert.Regexp(t, `January rent\s+AUD\s+-1,250.00\s+0.00\s+rent=-1,250.00`, string(lines[3]))
	assert.Contains(t, string(lines[4]), "skipped")
	assert.Equal(t, "AUD: 2 budgeted, funding 3,000.00, cash 1,750.00", string(lines[5]))
}
