package budget

import (
	"log/slog"
	"runtime"

	"github.com/shopspring/decimal"
)

// Assignment is an amount the user has assigned to a category for a month.
type Assignment struct {
	Category CategoryKey
	Month    Month
	Currency string
	Amount   decimal.Decimal
}

// Hold is money kept out of to be assigned at the end of a month and
// released back into it at the start of the next.
type Hold struct {
	Month    Month
	Currency string
	Amount   decimal.Decimal
}

// Plan is what the user decided for one month in one currency.
type Plan struct {
	Assigned map[CategoryKey]decimal.Decimal
	Held     decimal.Decimal
}

type CategoryMonth struct {
	Key   CategoryKey
	Name  string
	Group string
	// Carryover is the balance brought in from the previous month.
	Carryover decimal.Decimal
	Assigned  decimal.Decimal
	Spending  decimal.Decimal
	Balance   decimal.Decimal
}

// MonthReport is the budget for one month in one currency.
type MonthReport struct {
	Month        Month
	Currency     string
	Funding      decimal.Decimal
	Assigned     decimal.Decimal
	Spending     decimal.Decimal
	// Overspending is the previous month's overspending charged against
	// to be assigned. Always zero under the carry policy.
	Overspending decimal.Decimal
	// Released is what the previous month held for this one.
	Released     decimal.Decimal
	Held         decimal.Decimal
	ToBeAssigned decimal.Decimal
	// Cash is the cumulative on-budget cash at the end of the month.
	Cash         decimal.Decimal
	Transactions int
	Categories   []CategoryMonth
}

func (r *MonthReport) Category(key CategoryKey) (CategoryMonth, bool) {
	for _, c := range r.Categories {
		if c.Key == key {
			return c, true
		}
	}
	return CategoryMonth{}, false
}

// CategoryTotal is the sum of all category balances.
func (r *MonthReport) CategoryTotal() decimal.Decimal {
	total := decimal.Zero
	for _, c := range r.Categories {
		total = total.Add(c.Balance)
	}
	return total
}

// GroupMonth sums the categories of a group.
type GroupMonth struct {
	Name       string
	Assigned   decimal.Decimal
	Spending   decimal.Decimal
	Balance    decimal.Decimal
	Categories []CategoryMonth
}

// Groups returns group subtotals in configuration order.
func (r *MonthReport) Groups() []GroupMonth {
	var groups []GroupMonth
	index := map[string]int{}
	for _, c := range r.Categories {
		i, ok := index[c.Group]
		if !ok {
			i = len(groups)
			index[c.Group] = i
			groups = append(groups, GroupMonth{
				Name:     c.Group,
				Assigned: decimal.Zero,
				Spending: decimal.Zero,
				Balance:  decimal.Zero,
			})
		}
		g := &groups[i]
		g.Assigned = g.Assigned.Add(c.Assigned)
		g.Spending = g.Spending.Add(c.Spending)
		g.Balance = g.Balance.Add(c.Balance)
		g.Categories = append(g.Categories, c)
	}
	return groups
}

// Check verifies that to be assigned, the held amount and every category
// balance add up to the cumulative on-budget cash.
func (r *MonthReport) Check() error {
	categories := r.CategoryTotal()
	if r.ToBeAssigned.Add(r.Held).Add(categories).Equal(r.Cash) {
		return nil
	}
	return &InvariantError{
		Month:         r.Month,
		Currency:      r.Currency,
		ToBeAssigned:  r.ToBeAssigned,
		Held:          r.Held,
		CategoryTotal: categories,
		Cash:          r.Cash,
	}
}

// State is the checkpoint the next month is computed from.
func (r *MonthReport) State() State {
	balances := make(map[CategoryKey]decimal.Decimal, len(r.Categories))
	for _, c := range r.Categories {
		balances[c.Key] = c.Balance
	}
	return State{
		Month:        r.Month,
		Currency:     r.Currency,
		ToBeAssigned: r.ToBeAssigned,
		Held:         r.Held,
		Balances:     balances,
		Cash:         r.Cash,
	}
}

// State is the closing position of a month.
type State struct {
	Month        Month
	Currency     string
	ToBeAssigned decimal.Decimal
	Held         decimal.Decimal
	Balances     map[CategoryKey]decimal.Decimal
	Cash         decimal.Decimal
}

func (s State) balance(key CategoryKey) decimal.Decimal {
	if amount, ok := s.Balances[key]; ok {
		return amount
	}
	return decimal.Zero
}

type options struct {
	validate bool
	workers  int
}

type Option func(*options)

// WithValidation turns the per-month invariant check on or off. It is on by
// default.
func WithValidation(enabled bool) Option {
	return func(o *options) { o.validate = enabled }
}

// WithWorkers bounds the number of goroutines used for classification and
// per-currency evaluation.
func WithWorkers(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.workers = n
		}
	}
}

func newOptions(opts []Option) options {
	o := options{validate: true, workers: runtime.GOMAXPROCS(0)}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// Engine folds monthly aggregates and assignments into month reports.
type Engine struct {
	layout   *Layout
	validate bool
}

func NewEngine(layout *Layout, opts ...Option) *Engine {
	o := newOptions(opts)
	return &Engine{layout: layout, validate: o.validate}
}

// Initial returns the state before the first budget month.
func (e *Engine) Initial(currency string) State {
	return State{
		Month:        e.layout.Start().Add(-1),
		Currency:     currency,
		ToBeAssigned: decimal.Zero,
		Held:         decimal.Zero,
		Balances:     map[CategoryKey]decimal.Decimal{},
		Cash:         decimal.Zero,
	}
}

// Step computes the month following prev. agg and plan may be nil for a
// month without activity.
func (e *Engine) Step(prev State, agg *MonthlyAggregate, plan *Plan) MonthReport {
	r := MonthReport{
		Month:        prev.Month.Add(1),
		Currency:     prev.Currency,
		Funding:      decimal.Zero,
		Assigned:     decimal.Zero,
		Spending:     decimal.Zero,
		Overspending: decimal.Zero,
		Released:     prev.Held,
		Held:         decimal.Zero,
		Cash:         prev.Cash,
		Categories:   make([]CategoryMonth, 0, len(e.layout.categories)),
	}
	if agg != nil {
		r.Funding = agg.Funding
		r.Cash = r.Cash.Add(agg.Cash)
		r.Transactions = agg.Transactions
	}
	var assigned map[CategoryKey]decimal.Decimal
	if plan != nil {
		assigned = plan.Assigned
		r.Held = plan.Held
	}

	for _, category := range e.layout.categories {
		carry := prev.balance(category.Key)
		if e.layout.overspending == OverspendingReset && carry.IsNegative() {
			r.Overspending = r.Overspending.Add(carry)
			carry = decimal.Zero
		}

		assignedAmount := decimal.Zero
		if amount, ok := assigned[category.Key]; ok {
			assignedAmount = amount
		}
		spending := decimal.Zero
		if agg != nil {
			spending = agg.SpendingFor(category.Key)
		}

		r.Assigned = r.Assigned.Add(assignedAmount)
		r.Spending = r.Spending.Add(spending)
		r.Categories = append(r.Categories, CategoryMonth{
			Key:       category.Key,
			Name:      category.Name,
			Group:     category.Group,
			Carryover: carry,
			Assigned:  assignedAmount,
			Spending:  spending,
			Balance:   carry.Add(assignedAmount).Add(spending),
		})
	}

	r.ToBeAssigned = prev.ToBeAssigned.Add(r.Released).Add(r.Overspending).Add(r.Funding).Sub(r.Assigned).Sub(r.Held)
	return r
}

// Run computes every month after seed through the given month for one
// currency. A nil seed starts from the layout's first month. With validation
// enabled, Run stops at the first month that fails the invariant and returns
// the months before it together with an *InvariantError.
func (e *Engine) Run(currency string, seed *State, through Month, aggregates map[Month]*MonthlyAggregate, plans map[Month]*Plan) ([]MonthReport, error) {
	state := e.Initial(currency)
	if seed != nil {
		state = *seed
		state.Currency = currency
	}

	var reports []MonthReport
	if n := through.Sub(state.Month); n > 0 {
		reports = make([]MonthReport, 0, n)
	}
	for month := state.Month.Add(1); !month.After(through); month = month.Add(1) {
		r := e.Step(state, aggregates[month], plans[month])
		if e.validate {
			if err := r.Check(); err != nil {
				slog.Error("budget invariant violated",
					"month", month.String(),
					"currency", currency,
					"difference", err.(*InvariantError).Difference().String())
				return reports, err
			}
		}
		reports = append(reports, r)
		state = r.State()
	}
	return reports, nil
}

// indexPlans groups assignments and holds by currency and month, summing
// amounts for the same category. Anything before the start month counts
// towards the start month.
func indexPlans(layout *Layout, assignments []Assignment, holds []Hold) map[string]map[Month]*Plan {
	result := map[string]map[Month]*Plan{}
	plan := func(currency string, month Month) *Plan {
		months, ok := result[currency]
		if !ok {
			months = map[Month]*Plan{}
			result[currency] = months
		}
		month = maxMonth(month, layout.Start())
		p, ok := months[month]
		if !ok {
			p = &Plan{Assigned: map[CategoryKey]decimal.Decimal{}, Held: decimal.Zero}
			months[month] = p
		}
		return p
	}

	for _, a := range assignments {
		if !layout.Tracks(a.Currency) {
			continue
		}
		p := plan(a.Currency, a.Month)
		if prev, ok := p.Assigned[a.Category]; ok {
			p.Assigned[a.Category] = prev.Add(a.Amount)
		} else {
			p.Assigned[a.Category] = a.Amount
		}
	}
	for _, h := range holds {
		if !layout.Tracks(h.Currency) {
			continue
		}
		p := plan(h.Currency, h.Month)
		p.Held = p.Held.Add(h.Amount)
	}
	return result
}
