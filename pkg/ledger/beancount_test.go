package ledger

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bcaldwell/beanbudget/pkg/budget"
)

const january = `
2024-12-01 open Assets:Checking AUD
2024-12-01 open Assets:USD USD
2024-12-01 open Expenses:Rent
2024-12-01 open Income:Salary

2025-01-05 * "Landlord" "January rent"
  Assets:Checking  -200.00 AUD
  Expenses:Rent

2025-01-10 * "Employer" "Salary"
  Assets:Checking   1000.00 AUD
  Income:Salary    -1000.00 AUD

2025-01-12 * "Bank" "Move to USD"
  Assets:Checking   -135.00 AUD
  Assets:USD         100.00 USD @ 1.35 AUD

2025-01-15 * "Exchange"
  Assets:USD   50 USD @@ 70 AUD
  Assets:Checking
`

func assertPosting(t *testing.T, p budget.Posting, account, amount, currency string) {
	t.Helper()
	assert.Equal(t, account, p.Account)
	assert.True(t, decimal.RequireFromString(amount).Equal(p.Amount), "want %s, got %s", amount, p.Amount)
	assert.Equal(t, currency, p.Currency)
}

func TestParse(t *testing.T) {
	loc, err := time.LoadLocation("Australia/Sydney")
	require.NoError(t, err)

	txs, err := Parse(context.Background(), "main.beancount", january, loc)
	require.NoError(t, err)
	require.Len(t, txs, 4)

	rent := txs[0]
	assert.Equal(t, "main.beancount#1", rent.Ref)
	assert.Equal(t, time.Date(2025, time.January, 5, 0, 0, 0, 0, loc), rent.Date)
	require.Len(t, rent.Postings, 2)
	assertPosting(t, rent.Postings[0], "Assets:Checking", "-200", "AUD")
	assertPosting(t, rent.Postings[1], "Expenses:Rent", "200", "AUD")
	assert.Equal(t, "Landlord", rent.Payee)
	assert.Equal(t, "January rent", rent.Narration)
	assert.Equal(t, "", txs[3].Payee)
	assert.Equal(t, "Exchange", txs[3].Narration)

	fx := txs[2]
	require.Len(t, fx.Postings, 2)
	assertPosting(t, fx.Postings[1], "Assets:USD", "100", "USD")

	exchange := txs[3]
	require.Len(t, exchange.Postings, 2)
	assertPosting(t, exchange.Postings[0], "Assets:USD", "50", "USD")
	assertPosting(t, exchange.Postings[1], "Assets:Checking", "-70", "AUD")
}

const purchase = `
2025-01-20 * "Broker" "Buy VTI"
  Assets:Investments   10 VTI {20.00 AUD}
  Assets:Checking
`

func TestParseHoldingAtCost(t *testing.T) {
	txs, err := Parse(context.Background(), "invest.beancount", purchase, time.UTC)
	require.NoError(t, err)
	require.Len(t, txs, 1)
	require.Len(t, txs[0].Postings, 2)
	assertPosting(t, txs[0].Postings[0], "Assets:Investments", "200", "AUD")
	assertPosting(t, txs[0].Postings[1], "Assets:Checking", "-200", "AUD")

	layout, err := budget.NewLayout(budget.LayoutOptions{
		Start:          budget.Month{Year: 2025, Month: time.January},
		BudgetAccounts: []string{"Assets:Checking"},
		Groups: []budget.Group{{
			Name:       "Savings",
			Categories: []budget.Category{{Name: "Investments", Accounts: []string{"Assets:Investments"}}},
		}},
	})
	require.NoError(t, err)

	classified := layout.Classify(&txs[0])
	require.Len(t, classified, 1)
	assert.Equal(t, "-200", classified[0].Flow.String())
	assert.Equal(t, "-200", classified[0].Spending["investments"].String())
	assert.True(t, classified[0].Funding.IsZero())
}

func TestParseElidedNextToUnbookedLot(t *testing.T) {
	_, err := Parse(context.Background(), "sell.beancount", `
2025-01-20 * "Broker" "Sell VTI"
  Assets:Investments   -10 VTI {}
  Assets:Checking
`, time.UTC)
	assert.Error(t, err)
}

func TestParseRejectsTwoElidedPostings(t *testing.T) {
	_, err := Parse(context.Background(), "bad.beancount", `
2025-01-05 * "Landlord" "January rent"
  Assets:Checking
  Expenses:Rent
`, time.UTC)
	assert.Error(t, err)
}

func TestBeancountFiles(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "2025-02.beancount"), []byte(`
2025-02-01 * "Employer" "Salary"
  Assets:Checking   1000.00 AUD
  Income:Salary
`), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "2025-01.beancount"), []byte(january), 0o600))

	source := NewBeancountFiles(filepath.Join(dir, "*.beancount"), time.UTC)
	txs, err := source.Transactions(context.Background())
	require.NoError(t, err)
	require.Len(t, txs, 5)
	assert.Equal(t, "2025-01.beancount#1", txs[0].Ref)
	assert.Equal(t, "2025-02.beancount#1", txs[4].Ref)
	assertPosting(t, txs[4].Postings[1], "Income:Salary", "-1000", "AUD")

	_, err = NewBeancountFiles(filepath.Join(dir, "*.ledger"), time.UTC).Transactions(context.Background())
	assert.Error(t, err)
}

func TestParsedLedgerFeedsBudget(t *testing.T) {
	txs, err := Parse(context.Background(), "main.beancount", january, time.UTC)
	require.NoError(t, err)

	layout, err := budget.NewLayout(budget.LayoutOptions{
		Start:          budget.Month{Year: 2025, Month: time.January},
		BudgetAccounts: []string{"Assets:Checking"},
		Groups: []budget.Group{{
			Name:       "Bills",
			Categories: []budget.Category{{Name: "Rent", Accounts: []string{"Expenses:Rent"}}},
		}},
		Currencies: []string{"AUD"},
	})
	require.NoError(t, err)

	report, err := budget.Evaluate(layout, budget.Input{Transactions: txs})
	require.NoError(t, err)
	jan, ok := report.Month(budget.Month{Year: 2025, Month: time.January}, "AUD")
	require.True(t, ok)

	// Moving AUD into the off-budget USD account lowers funding.
	assert.Equal(t, "795", jan.Funding.String())
	rent, _ := jan.Category("rent")
	assert.Equal(t, "-200", rent.Spending.String())
}

func TestStatic(t *testing.T) {
	src := Static{{Ref: "a", Date: time.Date(2025, time.January, 1, 0, 0, 0, 0, time.UTC)}}
	txs, err := src.Transactions(context.Background())
	require.NoError(t, err)
	assert.Len(t, txs, 1)
}
