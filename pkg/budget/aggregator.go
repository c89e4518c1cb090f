package budget

import (
	"sort"

	"github.com/shopspring/decimal"
)

// MonthlyAggregate holds the classified activity of one month in one
// currency.
type MonthlyAggregate struct {
	Month    Month
	Currency string
	Funding  decimal.Decimal
	Spending map[CategoryKey]decimal.Decimal
	// Cash is the net movement of on-budget accounts during the month.
	Cash         decimal.Decimal
	Transactions int
}

func newMonthlyAggregate(month Month, currency string) *MonthlyAggregate {
	return &MonthlyAggregate{
		Month:    month,
		Currency: currency,
		Funding:  decimal.Zero,
		Spending: map[CategoryKey]decimal.Decimal{},
		Cash:     decimal.Zero,
	}
}

func (a *MonthlyAggregate) SpendingFor(key CategoryKey) decimal.Decimal {
	if amount, ok := a.Spending[key]; ok {
		return amount
	}
	return decimal.Zero
}

func (a *MonthlyAggregate) add(c Classification) {
	a.Funding = a.Funding.Add(c.Funding)
	a.Cash = a.Cash.Add(c.Flow)
	for key, amount := range c.Spending {
		a.Spending[key] = a.SpendingFor(key).Add(amount)
	}
	a.Transactions++
}

func (a *MonthlyAggregate) merge(o *MonthlyAggregate) {
	a.Funding = a.Funding.Add(o.Funding)
	a.Cash = a.Cash.Add(o.Cash)
	for key, amount := range o.Spending {
		a.Spending[key] = a.SpendingFor(key).Add(amount)
	}
	a.Transactions += o.Transactions
}

type monthCurrency struct {
	month    Month
	currency string
}

// Aggregator sums classifications per (month, currency). Two aggregators over
// disjoint sets of transactions can be merged in any order.
type Aggregator struct {
	layout     *Layout
	aggregates map[monthCurrency]*MonthlyAggregate
}

func NewAggregator(layout *Layout) *Aggregator {
	return &Aggregator{
		layout:     layout,
		aggregates: map[monthCurrency]*MonthlyAggregate{},
	}
}

// Add records a classification. Skipped classifications and currencies the
// layout does not track are ignored.
func (a *Aggregator) Add(c Classification) {
	if c.Skipped() || !a.layout.Tracks(c.Currency) {
		return
	}
	a.get(a.layout.MonthOf(c.Transaction.Date), c.Currency).add(c)
}

func (a *Aggregator) Merge(o *Aggregator) {
	for key, agg := range o.aggregates {
		a.get(key.month, key.currency).merge(agg)
	}
}

func (a *Aggregator) get(month Month, currency string) *MonthlyAggregate {
	key := monthCurrency{month: month, currency: currency}
	agg, ok := a.aggregates[key]
	if !ok {
		agg = newMonthlyAggregate(month, currency)
		a.aggregates[key] = agg
	}
	return agg
}

// Aggregates returns the collected aggregates sorted by currency and month.
func (a *Aggregator) Aggregates() []*MonthlyAggregate {
	result := make([]*MonthlyAggregate, 0, len(a.aggregates))
	for _, agg := range a.aggregates {
		result = append(result, agg)
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Currency != result[j].Currency {
			return result[i].Currency < result[j].Currency
		}
		return result[i].Month.Before(result[j].Month)
	})
	return result
}

// Aggregate classifies and sums transactions in one pass.
func Aggregate(layout *Layout, txs []Transaction) []*MonthlyAggregate {
	agg := NewAggregator(layout)
	for i := range txs {
		for _, c := range layout.Classify(&txs[i]) {
			agg.Add(c)
		}
	}
	return agg.Aggregates()
}

// byCurrency indexes aggregates by currency and month.
func byCurrency(aggregates []*MonthlyAggregate) map[string]map[Month]*MonthlyAggregate {
	result := map[string]map[Month]*MonthlyAggregate{}
	for _, agg := range aggregates {
		months, ok := result[agg.Currency]
		if !ok {
			months = map[Month]*MonthlyAggregate{}
			result[agg.Currency] = months
		}
		months[agg.Month] = agg
	}
	return result
}
