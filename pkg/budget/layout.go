package budget

import (
	"sort"
	"strings"
	"time"

	"github.com/gosimple/slug"
	"github.com/shopspring/decimal"
)

// DefaultPrecision is the number of decimal places allowed for assignments in
// a currency without an explicit precision.
const DefaultPrecision = 2

type CategoryKey string

// OverspendingPolicy decides what happens to a negative category balance at
// the end of a month.
type OverspendingPolicy string

const (
	// OverspendingCarry keeps a negative balance in the category.
	OverspendingCarry OverspendingPolicy = "carry"
	// OverspendingReset zeroes a negative balance and charges it against the
	// following month's to be assigned.
	OverspendingReset OverspendingPolicy = "reset"
)

type Category struct {
	Key      CategoryKey
	Name     string
	Group    string
	Accounts []string
}

type Group struct {
	Name       string
	Categories []Category
}

// LayoutOptions is the uncompiled description of a budget.
type LayoutOptions struct {
	Start          Month
	Location       *time.Location
	Currencies     []string
	Precision      map[string]int32
	BudgetAccounts []string
	Groups         []Group
	Overspending   OverspendingPolicy
}

// Layout is a compiled, immutable budget configuration. Account to category
// resolution is done once here.
type Layout struct {
	start        Month
	location     *time.Location
	currencies   []string
	currencySet  map[string]struct{}
	precision    map[string]int32
	overspending OverspendingPolicy

	budgetAccounts map[string]struct{}
	groups         []Group
	categories     []Category
	categoryIndex  map[CategoryKey]int
	accountIndex   map[string]CategoryKey
}

func NewLayout(opts LayoutOptions) (*Layout, error) {
	problems := &ConfigError{}

	l := &Layout{
		start:          opts.Start,
		location:       opts.Location,
		precision:      map[string]int32{},
		overspending:   opts.Overspending,
		budgetAccounts: map[string]struct{}{},
		categoryIndex:  map[CategoryKey]int{},
		accountIndex:   map[string]CategoryKey{},
	}
	if l.location == nil {
		l.location = time.UTC
	}
	if l.overspending == "" {
		l.overspending = OverspendingCarry
	}
	if l.overspending != OverspendingCarry && l.overspending != OverspendingReset {
		problems.add("unknown overspending policy %q", opts.Overspending)
	}
	if opts.Start.IsZero() {
		problems.add("start month is required")
	}

	if len(opts.Currencies) > 0 {
		l.currencySet = map[string]struct{}{}
		for _, currency := range opts.Currencies {
			if _, ok := l.currencySet[currency]; ok {
				continue
			}
			l.currencySet[currency] = struct{}{}
			l.currencies = append(l.currencies, currency)
		}
	}
	for currency, places := range opts.Precision {
		if places < 0 {
			problems.add("precision for %s must not be negative", currency)
		}
		l.precision[currency] = places
	}

	for _, account := range opts.BudgetAccounts {
		l.budgetAccounts[account] = struct{}{}
	}
	if len(l.budgetAccounts) == 0 {
		problems.add("at least one budget account is required")
	}

	owner := map[string]CategoryKey{}
	groupNames := map[string]bool{}
	for _, group := range opts.Groups {
		if groupNames[group.Name] {
			problems.add("duplicate group %q", group.Name)
		}
		groupNames[group.Name] = true

		compiled := Group{Name: group.Name}
		for _, category := range group.Categories {
			key := category.Key
			if key == "" {
				key = CategoryKey(Slugify(category.Name))
			}
			if key == "" {
				problems.add("category %q in group %q has no usable key", category.Name, group.Name)
				continue
			}
			if _, ok := l.categoryIndex[key]; ok {
				problems.add("duplicate category key %q", key)
				continue
			}

			c := Category{
				Key:      key,
				Name:     category.Name,
				Group:    group.Name,
				Accounts: append([]string(nil), category.Accounts...),
			}
			for _, account := range c.Accounts {
				if prev, ok := owner[account]; ok && prev != key {
					problems.add("account %q belongs to both %q and %q", account, prev, key)
					continue
				}
				owner[account] = key
				l.accountIndex[account] = key
			}

			l.categoryIndex[key] = len(l.categories)
			l.categories = append(l.categories, c)
			compiled.Categories = append(compiled.Categories, c)
		}
		l.groups = append(l.groups, compiled)
	}

	if err := problems.orNil(); err != nil {
		return nil, err
	}
	return l, nil
}

func (l *Layout) Start() Month { return l.start }

func (l *Layout) Location() *time.Location { return l.location }

func (l *Layout) Overspending() OverspendingPolicy { return l.overspending }

// Currencies returns the configured currencies of interest. An empty result
// means every currency found in the ledger is budgeted.
func (l *Layout) Currencies() []string {
	return append([]string(nil), l.currencies...)
}

// Tracks reports whether amounts in currency take part in the budget.
func (l *Layout) Tracks(currency string) bool {
	if currency == "" {
		return false
	}
	if l.currencySet == nil {
		return true
	}
	_, ok := l.currencySet[currency]
	return ok
}

func (l *Layout) Precision(currency string) int32 {
	if places, ok := l.precision[currency]; ok {
		return places
	}
	return DefaultPrecision
}

func (l *Layout) IsBudgetAccount(account string) bool {
	_, ok := l.budgetAccounts[account]
	return ok
}

// BudgetAccounts returns the on-budget accounts in sorted order.
func (l *Layout) BudgetAccounts() []string {
	accounts := make([]string, 0, len(l.budgetAccounts))
	for account := range l.budgetAccounts {
		accounts = append(accounts, account)
	}
	sort.Strings(accounts)
	return accounts
}

// CategoryOf returns the category an account is mapped to.
func (l *Layout) CategoryOf(account string) (CategoryKey, bool) {
	key, ok := l.accountIndex[account]
	return key, ok
}

func (l *Layout) Category(key CategoryKey) (Category, bool) {
	i, ok := l.categoryIndex[key]
	if !ok {
		return Category{}, false
	}
	return l.categories[i], true
}

// Categories returns every category in configuration order.
func (l *Layout) Categories() []Category {
	return append([]Category(nil), l.categories...)
}

func (l *Layout) Groups() []Group {
	return append([]Group(nil), l.groups...)
}

// MonthOf returns the budget month a ledger date falls in. Dates before the
// start month belong to the start month.
func (l *Layout) MonthOf(t time.Time) Month {
	return maxMonth(MonthOf(t.In(l.location)), l.start)
}

// CheckAssignment validates an assignment against the layout.
func (l *Layout) CheckAssignment(a Assignment) error {
	problems := &ConfigError{}
	l.checkAssignment(problems, a)
	return problems.orNil()
}

func (l *Layout) checkAssignment(problems *ConfigError, a Assignment) {
	if _, ok := l.categoryIndex[a.Category]; !ok {
		problems.add("assignment for unknown category %q in %s", a.Category, a.Month)
	}
	if a.Currency == "" {
		problems.add("assignment for %q in %s has no currency", a.Category, a.Month)
	}
	if a.Month.IsZero() {
		problems.add("assignment for %q has no month", a.Category)
	}
	places := l.Precision(a.Currency)
	if !a.Amount.Equal(a.Amount.Truncate(places)) {
		problems.add("assignment %s %s for %q in %s has more than %d decimal places",
			a.Amount, a.Currency, a.Category, a.Month, places)
	}
}

// CheckHold validates a single held amount.
func (l *Layout) CheckHold(h Hold) error {
	problems := &ConfigError{}
	l.checkHold(problems, h)
	return problems.orNil()
}

func (l *Layout) checkHold(problems *ConfigError, h Hold) {
	if h.Currency == "" {
		problems.add("held amount in %s has no currency", h.Month)
	}
	if h.Month.IsZero() {
		problems.add("held amount %s %s has no month", h.Amount, h.Currency)
	}
	if h.Amount.IsNegative() {
		problems.add("held amount %s %s in %s is negative", h.Amount, h.Currency, h.Month)
	}
	places := l.Precision(h.Currency)
	if !h.Amount.Equal(h.Amount.Truncate(places)) {
		problems.add("held amount %s %s in %s has more than %d decimal places",
			h.Amount, h.Currency, h.Month, places)
	}
}

// slugSeparators are characters the slug library would spell out or keep
// that should only separate words in a category key.
var slugSeparators = strings.NewReplacer("'", " ", "&", " ", "@", " ", "_", " ")

// Slugify derives a category key from a name: transliterated to ASCII,
// lowercased, with every other run of characters turned into one dash.
func Slugify(name string) string {
	return slug.Make(slugSeparators.Replace(name))
}

func sumAmounts(amounts map[CategoryKey]decimal.Decimal) decimal.Decimal {
	total := decimal.Zero
	for _, amount := range amounts {
		total = total.Add(amount)
	}
	return total
}
