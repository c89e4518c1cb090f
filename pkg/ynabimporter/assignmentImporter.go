package ynabimporter

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/davidsteinsland/ynab-go/ynab"
	"github.com/shopspring/decimal"
	"k8s.io/klog"

	"github.com/bcaldwell/beanbudget/pkg/budget"
	"github.com/bcaldwell/beanbudget/pkg/config"
	"github.com/bcaldwell/beanbudget/pkg/store"
)

// milliunits is the exponent of YNAB amounts.
const milliunits = -3

// internalGroups are YNAB category groups that have no budget counterpart.
var internalGroups = []string{"Internal Master Category", "Credit Card Payments", "Hidden Categories"}

// AssignmentImporter copies the budgeted amounts of a YNAB budget into the
// assignment store.
type AssignmentImporter struct {
	ynabClient *ynab.Client
	layout     *budget.Layout
	store      store.Store
	config     config.YnabConfig
}

type ynabMonth struct {
	Month      string
	Categories []ynabCategory
}

type ynabCategory struct {
	Name     string
	Hidden   bool
	Budgeted int64
}

func NewAssignmentImporter(secrets config.YnabSecrets, conf config.YnabConfig, layout *budget.Layout, s store.Store) *AssignmentImporter {
	return &AssignmentImporter{
		ynabClient: ynab.NewDefaultClient(secrets.YnabAccessToken),
		layout:     layout,
		store:      s,
		config:     conf,
	}
}

func (importer *AssignmentImporter) Run() error {
	_, err := importer.Import(context.Background())
	return err
}

// Import writes every changed assignment and returns how many were written.
func (importer *AssignmentImporter) Import(ctx context.Context) (int, error) {
	id, currency, err := importer.detectBudget()
	if err != nil {
		return 0, fmt.Errorf("error detecting budget ID: %w", err)
	}

	detail, err := importer.ynabClient.BudgetService.Get(id)
	if err != nil {
		return 0, fmt.Errorf("failed to get budget details for %s: %w", id, err)
	}

	months := make([]ynabMonth, 0, len(detail.Months))
	for _, m := range detail.Months {
		month := ynabMonth{Month: m.Month}
		for _, c := range m.Categories {
			month.Categories = append(month.Categories, ynabCategory{
				Name:     c.Name,
				Hidden:   c.Hidden,
				Budgeted: int64(c.Budgeted),
			})
		}
		months = append(months, month)
	}

	assignments, unmapped, err := assignmentsFromMonths(importer.layout, importer.config.Categories, currency, months)
	if err != nil {
		return 0, err
	}
	for _, name := range unmapped {
		slog.Warn("skipping YNAB category without a budget category", "category", name)
	}

	written, err := importer.write(ctx, assignments)
	klog.Infof("Wrote %v of %v assignments from YNAB budget %s\n", written, len(assignments), importer.config.Budget)
	return written, err
}

// write applies assignments that differ from the store, re-reading the store
// once when another writer got in between.
func (importer *AssignmentImporter) write(ctx context.Context, assignments []budget.Assignment) (int, error) {
	written := 0
	for attempt := 0; attempt < 2; attempt++ {
		snap, err := importer.store.Snapshot(ctx)
		if err != nil {
			return written, err
		}

		revision := snap.Revision
		for _, a := range assignments {
			if snap.Amount(a.Category, a.Month, a.Currency).Equal(a.Amount) {
				continue
			}
			revision, err = importer.store.SetAssignment(ctx, revision, a)
			if errors.Is(err, store.ErrConflict) {
				break
			}
			if err != nil {
				return written, err
			}
			written++
		}
		if !errors.Is(err, store.ErrConflict) {
			return written, nil
		}
		slog.Warn("assignment store changed during import, retrying")
	}
	return written, store.ErrConflict
}

func (importer *AssignmentImporter) detectBudget() (string, string, error) {
	budgets, err := importer.ynabClient.BudgetService.List()
	if err != nil {
		return "", "", err
	}

	for _, b := range budgets {
		if strings.Contains(b.Name, "(Archived on") {
			continue
		}
		if (importer.config.BudgetID != "" && b.Id == importer.config.BudgetID) || b.Name == importer.config.Budget {
			return b.Id, b.CurrencyFormat.IsoCode, nil
		}
	}
	return "", "", fmt.Errorf("budget %s not found", importer.config.Budget)
}

// UnmappedCategories lists visible YNAB categories that do not resolve to a
// budget category.
func (importer *AssignmentImporter) UnmappedCategories() ([]string, error) {
	id, _, err := importer.detectBudget()
	if err != nil {
		return nil, err
	}

	groups, err := importer.ynabClient.CategoriesService.List(id)
	if err != nil {
		return nil, err
	}

	unmapped := []string{}
	for _, group := range groups {
		if isInternalGroup(group.Name) {
			continue
		}
		for _, category := range group.Categories {
			if category.Hidden {
				continue
			}
			if _, ok := resolveCategory(importer.layout, importer.config.Categories, category.Name); !ok {
				unmapped = append(unmapped, category.Name)
			}
		}
	}
	sort.Strings(unmapped)
	return unmapped, nil
}

// assignmentsFromMonths returns one assignment per budget category and month.
// YNAB categories mapped to the same budget category are summed, and mapped
// categories budgeted at zero yield a zero assignment so stale amounts are
// removed from the store.
func assignmentsFromMonths(layout *budget.Layout, mapping map[string]string, currency string, months []ynabMonth) ([]budget.Assignment, []string, error) {
	places := layout.Precision(currency)
	assignments := []budget.Assignment{}
	index := map[budget.CategoryKey]map[budget.Month]int{}
	unmapped := map[string]bool{}

	for _, m := range months {
		date, err := time.Parse("2006-01-02", m.Month)
		if err != nil {
			return nil, nil, err
		}
		month := budget.MonthOf(date)

		for _, category := range m.Categories {
			if category.Hidden {
				continue
			}
			key, ok := resolveCategory(layout, mapping, category.Name)
			if !ok {
				if category.Budgeted != 0 {
					unmapped[category.Name] = true
				}
				continue
			}

			amount := decimal.New(category.Budgeted, milliunits)
			if _, ok := index[key]; !ok {
				index[key] = map[budget.Month]int{}
			}
			if i, ok := index[key][month]; ok {
				assignments[i].Amount = assignments[i].Amount.Add(amount)
				continue
			}
			index[key][month] = len(assignments)
			assignments = append(assignments, budget.Assignment{
				Category: key,
				Month:    month,
				Currency: currency,
				Amount:   amount,
			})
		}
	}

	for i := range assignments {
		assignments[i].Amount = assignments[i].Amount.Round(places)
	}

	names := make([]string, 0, len(unmapped))
	for name := range unmapped {
		names = append(names, name)
	}
	sort.Strings(names)
	return assignments, names, nil
}

func resolveCategory(layout *budget.Layout, mapping map[string]string, name string) (budget.CategoryKey, bool) {
	key := budget.CategoryKey(budget.Slugify(name))
	if mapped, ok := mapping[name]; ok {
		key = budget.CategoryKey(mapped)
	}
	_, ok := layout.Category(key)
	return key, ok
}

func isInternalGroup(name string) bool {
	for _, group := range internalGroups {
		if strings.EqualFold(group, name) {
			return true
		}
	}
	return false
}
