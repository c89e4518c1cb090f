package budget

import (
	"time"

	"github.com/shopspring/decimal"
)

type Posting struct {
	Account  string
	Amount   decimal.Decimal
	Currency string
}

// Transaction is a ledger transaction as read from the source. It is never
// modified by the budget.
type Transaction struct {
	// Ref identifies the transaction in its source, e.g. file and line.
	Ref       string
	Date      time.Time
	Payee     string
	Narration string
	Postings  []Posting
}

// Classification is the budget view of one transaction in one currency.
type Classification struct {
	Transaction *Transaction
	Currency    string
	Flow        decimal.Decimal
	Spending    map[CategoryKey]decimal.Decimal
	Funding     decimal.Decimal
}

// Skipped reports whether the transaction left on-budget cash unchanged in
// this currency, in which case it contributes nothing to the budget.
func (c Classification) Skipped() bool {
	return c.Flow.IsZero()
}

func (c Classification) TotalSpending() decimal.Decimal {
	return sumAmounts(c.Spending)
}

// Classify splits a transaction per currency into flow, per-category spending
// and funding. Every currency present in the postings yields exactly one
// classification, in order of first appearance.
func (l *Layout) Classify(tx *Transaction) []Classification {
	var currencies []string
	seen := map[string]bool{}
	for _, p := range tx.Postings {
		if p.Currency == "" || seen[p.Currency] {
			continue
		}
		seen[p.Currency] = true
		currencies = append(currencies, p.Currency)
	}

	result := make([]Classification, 0, len(currencies))
	for _, currency := range currencies {
		result = append(result, l.classifyCurrency(tx, currency))
	}
	return result
}

func (l *Layout) classifyCurrency(tx *Transaction, currency string) Classification {
	c := Classification{
		Transaction: tx,
		Currency:    currency,
		Flow:        decimal.Zero,
		Funding:     decimal.Zero,
	}
	for _, p := range tx.Postings {
		if p.Currency == currency && l.IsBudgetAccount(p.Account) {
			c.Flow = c.Flow.Add(p.Amount)
		}
	}
	if c.Flow.IsZero() {
		return c
	}

	c.Spending = map[CategoryKey]decimal.Decimal{}
	for _, p := range tx.Postings {
		if p.Currency != currency {
			continue
		}
		key, ok := l.CategoryOf(p.Account)
		if !ok {
			continue
		}
		spent, ok := c.Spending[key]
		if !ok {
			spent = decimal.Zero
		}
		c.Spending[key] = spent.Sub(p.Amount)
	}
	c.Funding = c.Flow.Sub(c.TotalSpending())
	return c
}
