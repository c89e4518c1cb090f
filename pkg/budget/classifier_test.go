package budget

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassify(t *testing.T) {
	layout := testLayout(t)

	tests := []struct {
		name     string
		postings []Posting
		skipped  bool
		flow     string
		spending map[CategoryKey]string
		funding  string
	}{
		{
			name:     "expense",
			postings: []Posting{p("Assets:Checking", "-200"), p("Expenses:Rent", "200")},
			flow:     "-200",
			spending: map[CategoryKey]string{"rent": "-200"},
			funding:  "0",
		},
		{
			name:     "refund",
			postings: []Posting{p("Expenses:Rent", "-200"), p("Assets:Checking", "200")},
			flow:     "200",
			spending: map[CategoryKey]string{"rent": "200"},
			funding:  "0",
		},
		{
			name:     "split expense",
			postings: []Posting{p("Assets:Checking", "-200"), p("Expenses:Rent", "120"), p("Expenses:Utilities", "80")},
			flow:     "-200",
			spending: map[CategoryKey]string{"rent": "-120", "utilities": "-80"},
			funding:  "0",
		},
		{
			name: "split with a negative posting in the same category",
			postings: []Posting{
				p("Income:Utility-Rebate", "-50"),
				p("Expenses:Utilities", "250"),
				p("Assets:Checking", "-200"),
			},
			flow:     "-200",
			spending: map[CategoryKey]string{"utilities": "-200"},
			funding:  "0",
		},
		{
			name:    "on-budget transfer",
			skipped: true,
			postings: []Posting{
				p("Assets:Checking", "-200"),
				p("Assets:Savings", "200"),
			},
		},
		{
			name:    "off-budget transfer",
			skipped: true,
			postings: []Posting{
				p("Assets:Brokerage", "-200"),
				p("Assets:Investments", "200"),
			},
		},
		{
			name: "transfer into a category-mapped off-budget account",
			postings: []Posting{
				p("Assets:Checking", "-700"),
				p("Assets:Savings", "500"),
				p("Assets:Investments", "200"),
			},
			flow:     "-200",
			spending: map[CategoryKey]string{"investments": "-200"},
			funding:  "0",
		},
		{
			name:     "income",
			postings: []Posting{p("Assets:Checking", "200"), p("Income:Salary", "-200")},
			flow:     "200",
			spending: map[CategoryKey]string{},
			funding:  "200",
		},
		{
			name: "split income",
			postings: []Posting{
				p("Assets:Checking", "150"),
				p("Assets:Savings", "30"),
				p("Expenses:Tax", "20"),
				p("Income:Salary", "-200"),
			},
			flow:     "180",
			spending: map[CategoryKey]string{},
			funding:  "180",
		},
		{
			name:     "transfer out to an uncategorised off-budget account",
			postings: []Posting{p("Assets:Checking", "-200"), p("Income:Salary", "200")},
			flow:     "-200",
			spending: map[CategoryKey]string{},
			funding:  "-200",
		},
		{
			name:     "no budget postings",
			skipped:  true,
			postings: []Posting{p("Expenses:Rent", "200"), p("Liabilities:Card", "-200")},
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			txn := tx("2025-01-15", test.postings...)
			classified := layout.Classify(&txn)
			require.Len(t, classified, 1)
			c := classified[0]
			assert.Equal(t, "AUD", c.Currency)
			assert.Same(t, &txn, c.Transaction)

			if test.skipped {
				assert.True(t, c.Skipped())
				assert.Empty(t, c.Spending)
				assertAmount(t, "0", c.Funding)
				return
			}
			assert.False(t, c.Skipped())
			assertAmount(t, test.flow, c.Flow)
			assertAmount(t, test.funding, c.Funding)
			assert.Len(t, c.Spending, len(test.spending))
			for key, want := range test.spending {
				assertAmount(t, want, c.Spending[key], key)
			}
			assertAmount(t, c.Flow.String(), c.Funding.Add(c.TotalSpending()))
		})
	}
}

func TestClassifyExpenseSignConvention(t *testing.T) {
	layout := testLayout(t)
	txn := tx("2025-01-02", p("Assets:Checking", "-100"), p("Expenses:Hobbies", "100"))

	c := layout.Classify(&txn)[0]
	assertAmount(t, "-100", c.Flow)
	assertAmount(t, "-100", c.Spending["hobbies"])
	assertAmount(t, "0", c.Funding)
}

func TestClassifyPerCurrency(t *testing.T) {
	layout := testLayout(t)
	txn := tx("2025-01-02",
		pc("Assets:Checking", "-100", "AUD"),
		pc("Expenses:Rent", "100", "AUD"),
		pc("Assets:Checking", "50", "USD"),
		pc("Income:Salary", "-50", "USD"),
		pc("Assets:Checking", "-7", "EUR"),
		pc("Assets:Savings", "7", "EUR"),
		Posting{Account: "Assets:Checking", Amount: d("3")},
	)

	classified := layout.Classify(&txn)
	require.Len(t, classified, 3)

	assert.Equal(t, "AUD", classified[0].Currency)
	assertAmount(t, "-100", classified[0].Spending["rent"])
	assertAmount(t, "0", classified[0].Funding)

	assert.Equal(t, "USD", classified[1].Currency)
	assertAmount(t, "50", classified[1].Funding)
	assert.Empty(t, classified[1].Spending)

	assert.Equal(t, "EUR", classified[2].Currency)
	assert.True(t, classified[2].Skipped())
}

func TestClassifyEmptyTransaction(t *testing.T) {
	layout := testLayout(t)
	txn := tx("2025-01-02")
	assert.Empty(t, layout.Classify(&txn))
}
