package budget

import (
	"sort"
	"strconv"
	"sync"

	"github.com/cespare/xxhash/v2"
	"github.com/shopspring/decimal"
)

// Cache evaluates repeatedly over changing snapshots and recomputes each
// currency's month chain only from the earliest month whose inputs changed.
// Its results are identical to Evaluate over the same input.
type Cache struct {
	layout *Layout
	opts   options
	engine *Engine

	mu              sync.Mutex
	ledger          uint64
	classifications []Classification
	aggregates      []*MonthlyAggregate
	chains          map[string]*cachedChain
}

type cachedChain struct {
	fingerprints map[Month]uint64
	reports      []MonthReport
}

func NewCache(layout *Layout, opts ...Option) *Cache {
	o := newOptions(opts)
	return &Cache{
		layout: layout,
		opts:   o,
		engine: &Engine{layout: layout, validate: o.validate},
		chains: map[string]*cachedChain{},
	}
}

func (c *Cache) Evaluate(in Input) (*Report, error) {
	if err := c.layout.CheckInput(in); err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	fingerprint := Fingerprint(in.Transactions)
	if c.aggregates == nil || fingerprint != c.ledger {
		c.classifications, c.aggregates = classifyAll(c.layout, in.Transactions, c.opts.workers)
		c.ledger = fingerprint
	}

	plans := indexPlans(c.layout, in.Assignments, in.Holds)
	currencies, through := evaluationRange(c.layout, c.aggregates, plans, in.Through)
	perCurrency := byCurrency(c.aggregates)

	report := &Report{
		layout:          c.layout,
		through:         through,
		currencies:      currencies,
		months:          make(map[string][]MonthReport, len(currencies)),
		classifications: c.classifications,
		aggregates:      c.aggregates,
	}
	chains := make(map[string]*cachedChain, len(currencies))
	for _, currency := range currencies {
		chain, err := c.refresh(currency, through, perCurrency[currency], plans[currency])
		chains[currency] = chain
		if err != nil {
			c.chains = chains
			return nil, err
		}
		report.months[currency] = chain.reports
	}
	c.chains = chains
	return report, nil
}

func (c *Cache) refresh(currency string, through Month, aggregates map[Month]*MonthlyAggregate, plans map[Month]*Plan) (*cachedChain, error) {
	start := c.layout.Start()
	fingerprints := map[Month]uint64{}
	for month, agg := range aggregates {
		fingerprints[month] = monthFingerprint(agg, plans[month])
	}
	for month, plan := range plans {
		if _, ok := fingerprints[month]; !ok {
			fingerprints[month] = monthFingerprint(nil, plan)
		}
	}

	keep := 0
	if prev, ok := c.chains[currency]; ok {
		keep = min(len(prev.reports), through.Sub(start)+1)
		if dirty, changed := firstChange(prev.fingerprints, fingerprints); changed {
			keep = min(keep, dirty.Sub(start))
		}
		keep = max(keep, 0)
	}

	var seed *State
	reports := make([]MonthReport, 0, through.Sub(start)+1)
	if keep > 0 {
		prev := c.chains[currency].reports
		reports = append(reports, prev[:keep]...)
		state := prev[keep-1].State()
		seed = &state
	}

	fresh, err := c.engine.Run(currency, seed, through, aggregates, plans)
	reports = append(reports, fresh...)
	if err != nil {
		// Only the months before the failure are reusable; forget the
		// fingerprints of everything after them.
		valid := map[Month]uint64{}
		last := start.Add(len(reports) - 1)
		for month, fp := range fingerprints {
			if !month.After(last) {
				valid[month] = fp
			}
		}
		return &cachedChain{fingerprints: valid, reports: reports}, err
	}
	return &cachedChain{fingerprints: fingerprints, reports: reports}, nil
}

// firstChange returns the earliest month whose fingerprint differs between
// two snapshots, including months present in only one of them.
func firstChange(old, current map[Month]uint64) (Month, bool) {
	var earliest Month
	changed := false
	note := func(month Month) {
		if !changed || month.Before(earliest) {
			earliest = month
			changed = true
		}
	}
	for month, fp := range current {
		if prev, ok := old[month]; !ok || prev != fp {
			note(month)
		}
	}
	for month := range old {
		if _, ok := current[month]; !ok {
			note(month)
		}
	}
	return earliest, changed
}

func monthFingerprint(agg *MonthlyAggregate, plan *Plan) uint64 {
	d := xxhash.New()
	if agg != nil {
		_, _ = d.WriteString(agg.Funding.String())
		_, _ = d.WriteString("|")
		_, _ = d.WriteString(agg.Cash.String())
		_, _ = d.WriteString("|")
		_, _ = d.WriteString(strconv.Itoa(agg.Transactions))
		writeAmounts(d, agg.Spending)
	}
	_, _ = d.WriteString("#")
	if plan != nil {
		_, _ = d.WriteString(plan.Held.String())
		writeAmounts(d, plan.Assigned)
	}
	return d.Sum64()
}

func writeAmounts(d *xxhash.Digest, amounts map[CategoryKey]decimal.Decimal) {
	keys := make([]string, 0, len(amounts))
	for key := range amounts {
		keys = append(keys, string(key))
	}
	sort.Strings(keys)
	for _, key := range keys {
		_, _ = d.WriteString(";")
		_, _ = d.WriteString(key)
		_, _ = d.WriteString("=")
		_, _ = d.WriteString(amounts[CategoryKey(key)].String())
	}
}

// Fingerprint hashes a ledger snapshot. Equal fingerprints mean the cached
// classification of the ledger can be reused.
func Fingerprint(txs []Transaction) uint64 {
	d := xxhash.New()
	for _, tx := range txs {
		_, _ = d.WriteString(tx.Ref)
		_, _ = d.WriteString("\x00")
		_, _ = d.WriteString(strconv.FormatInt(tx.Date.UnixNano(), 10))
		for _, p := range tx.Postings {
			_, _ = d.WriteString("\x00")
			_, _ = d.WriteString(p.Account)
			_, _ = d.WriteString("\x00")
			_, _ = d.WriteString(p.Amount.String())
			_, _ = d.WriteString("\x00")
			_, _ = d.WriteString(p.Currency)
		}
		_, _ = d.WriteString("\x01")
	}
	return d.Sum64()
}
