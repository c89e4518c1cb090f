package budget

import (
	"sort"

	"golang.org/x/sync/errgroup"
)

// minChunk is the smallest number of transactions classified per goroutine.
const minChunk = 256

// Input is an immutable snapshot of everything an evaluation reads.
type Input struct {
	Transactions []Transaction
	Assignments  []Assignment
	Holds        []Hold
	// Through extends the evaluation to at least this month.
	Through Month
}

// Report is the evaluated budget for every month and currency.
type Report struct {
	layout          *Layout
	through         Month
	currencies      []string
	months          map[string][]MonthReport
	classifications []Classification
	aggregates      []*MonthlyAggregate
}

func (r *Report) Layout() *Layout { return r.layout }

// Through is the last month in the report.
func (r *Report) Through() Month { return r.through }

func (r *Report) Currencies() []string {
	return append([]string(nil), r.currencies...)
}

// Months returns the month chain of a currency from the start month.
func (r *Report) Months(currency string) []MonthReport {
	return r.months[currency]
}

func (r *Report) Month(month Month, currency string) (*MonthReport, bool) {
	months := r.months[currency]
	i := month.Sub(r.layout.Start())
	if i < 0 || i >= len(months) {
		return nil, false
	}
	return &months[i], true
}

// Classifications returns the per-currency classifications of the
// transactions in a month, in ledger order. Skipped ones are included.
func (r *Report) Classifications(month Month) []Classification {
	var result []Classification
	for _, c := range r.classifications {
		if r.layout.MonthOf(c.Transaction.Date) == month {
			result = append(result, c)
		}
	}
	return result
}

// Aggregates returns the totals of a month, one per currency with budget
// activity.
func (r *Report) Aggregates(month Month) []*MonthlyAggregate {
	var result []*MonthlyAggregate
	for _, agg := range r.aggregates {
		if agg.Month == month {
			result = append(result, agg)
		}
	}
	return result
}

// Evaluate runs the whole pipeline over a snapshot.
func Evaluate(layout *Layout, in Input, opts ...Option) (*Report, error) {
	o := newOptions(opts)
	if err := layout.CheckInput(in); err != nil {
		return nil, err
	}

	classifications, aggregates := classifyAll(layout, in.Transactions, o.workers)
	plans := indexPlans(layout, in.Assignments, in.Holds)
	currencies, through := evaluationRange(layout, aggregates, plans, in.Through)
	perCurrency := byCurrency(aggregates)

	engine := &Engine{layout: layout, validate: o.validate}
	results := make([][]MonthReport, len(currencies))
	g := errgroup.Group{}
	g.SetLimit(o.workers)
	for i, currency := range currencies {
		g.Go(func() error {
			reports, err := engine.Run(currency, nil, through, perCurrency[currency], plans[currency])
			results[i] = reports
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	report := &Report{
		layout:          layout,
		through:         through,
		currencies:      currencies,
		months:          make(map[string][]MonthReport, len(currencies)),
		classifications: classifications,
		aggregates:      aggregates,
	}
	for i, currency := range currencies {
		report.months[currency] = results[i]
	}
	return report, nil
}

// CheckAssignments validates a full assignment snapshot.
func (l *Layout) CheckAssignments(assignments []Assignment) error {
	return l.CheckInput(Input{Assignments: assignments})
}

// CheckInput validates every assignment and hold of a snapshot.
func (l *Layout) CheckInput(in Input) error {
	problems := &ConfigError{}
	for _, a := range in.Assignments {
		l.checkAssignment(problems, a)
	}
	for _, h := range in.Holds {
		l.checkHold(problems, h)
	}
	return problems.orNil()
}

type classifiedChunk struct {
	classifications []Classification
	aggregator      *Aggregator
}

func classifyAll(layout *Layout, txs []Transaction, workers int) ([]Classification, []*MonthlyAggregate) {
	size := (len(txs) + workers - 1) / workers
	if size < minChunk {
		size = minChunk
	}
	chunks := make([]classifiedChunk, (len(txs)+size-1)/size)

	g := errgroup.Group{}
	for i := range chunks {
		lo, hi := i*size, min((i+1)*size, len(txs))
		g.Go(func() error {
			chunk := classifiedChunk{aggregator: NewAggregator(layout)}
			for j := lo; j < hi; j++ {
				for _, c := range layout.Classify(&txs[j]) {
					chunk.classifications = append(chunk.classifications, c)
					chunk.aggregator.Add(c)
				}
			}
			chunks[i] = chunk
			return nil
		})
	}
	_ = g.Wait()

	total := NewAggregator(layout)
	var classifications []Classification
	for _, chunk := range chunks {
		classifications = append(classifications, chunk.classifications...)
		total.Merge(chunk.aggregator)
	}
	return classifications, total.Aggregates()
}

// evaluationRange picks the currencies to report and the last month to
// compute.
func evaluationRange(layout *Layout, aggregates []*MonthlyAggregate, plans map[string]map[Month]*Plan, requested Month) ([]string, Month) {
	through := maxMonth(layout.Start(), requested)
	seen := map[string]bool{}
	for _, agg := range aggregates {
		seen[agg.Currency] = true
		through = maxMonth(through, agg.Month)
	}
	for currency, months := range plans {
		seen[currency] = true
		for month, plan := range months {
			through = maxMonth(through, month)
			// held money is released in the following month
			if !plan.Held.IsZero() {
				through = maxMonth(through, month.Add(1))
			}
		}
	}

	currencies := layout.Currencies()
	if len(currencies) == 0 {
		for currency := range seen {
			currencies = append(currencies, currency)
		}
		sort.Strings(currencies)
	}
	return currencies, through
}
