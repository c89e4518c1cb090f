package budget

import (
	"fmt"
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func assertAmount(t *testing.T, want string, got decimal.Decimal, msgAndArgs ...any) {
	t.Helper()
	if !d(want).Equal(got) {
		assert.Fail(t, fmt.Sprintf("amount mismatch: want %s, got %s", want, got), msgAndArgs...)
	}
}

func month(s string) Month {
	m, err := ParseMonth(s)
	if err != nil {
		panic(err)
	}
	return m
}

func testLayout(t *testing.T, mutate ...func(*LayoutOptions)) *Layout {
	t.Helper()
	opts := LayoutOptions{
		Start:          month("2024-12"),
		Location:       time.UTC,
		BudgetAccounts: []string{"Assets:Checking", "Assets:Savings"},
		Groups: []Group{
			{
				Name: "Necessary expenses",
				Categories: []Category{
					{Name: "Rent", Accounts: []string{"Expenses:Rent"}},
					{Name: "Utilities", Accounts: []string{"Expenses:Utilities", "Income:Utility-Rebate"}},
				},
			},
			{
				Name: "Savings",
				Categories: []Category{
					{Name: "Investments", Accounts: []string{"Assets:Investments"}},
					{Name: "Hobbies", Accounts: []string{"Expenses:Hobbies"}},
				},
			},
		},
	}
	for _, m := range mutate {
		m(&opts)
	}
	layout, err := NewLayout(opts)
	require.NoError(t, err)
	return layout
}

func tx(date string, postings ...Posting) Transaction {
	t, err := time.Parse("2006-01-02", date)
	if err != nil {
		panic(err)
	}
	return Transaction{Ref: date, Date: t, Postings: postings}
}

func p(account, amount string) Posting {
	return Posting{Account: account, Amount: d(amount), Currency: "AUD"}
}

func pc(account, amount, currency string) Posting {
	return Posting{Account: account, Amount: d(amount), Currency: currency}
}

func assign(category, m, amount string) Assignment {
	return Assignment{Category: CategoryKey(category), Month: month(m), Currency: "AUD", Amount: d(amount)}
}

func hold(m, amount string) Hold {
	return Hold{Month: month(m), Currency: "AUD", Amount: d(amount)}
}

// assertInvariant recomputes cumulative on-budget cash straight from the
// postings and checks every month of every currency against it.
func assertInvariant(t *testing.T, layout *Layout, txs []Transaction, report *Report) {
	t.Helper()
	for _, currency := range report.Currencies() {
		for _, r := range report.Months(currency) {
			cash := decimal.Zero
			for _, tx := range txs {
				if layout.MonthOf(tx.Date).After(r.Month) {
					continue
				}
				for _, p := range tx.Postings {
					if p.Currency == currency && layout.IsBudgetAccount(p.Account) {
						cash = cash.Add(p.Amount)
					}
				}
			}
			assertAmount(t, cash.String(), r.ToBeAssigned.Add(r.Held).Add(r.CategoryTotal()), "%s %s", currency, r.Month)
		}
	}
}
