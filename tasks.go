package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/shopspring/decimal"
	"k8s.io/klog"

	"github.com/bcaldwell/beanbudget/pkg/budget"
	"github.com/bcaldwell/beanbudget/pkg/config"
	"github.com/bcaldwell/beanbudget/pkg/exporter"
	"github.com/bcaldwell/beanbudget/pkg/influxutils"
	"github.com/bcaldwell/beanbudget/pkg/ledger"
	"github.com/bcaldwell/beanbudget/pkg/postgresutils"
	"github.com/bcaldwell/beanbudget/pkg/render"
	"github.com/bcaldwell/beanbudget/pkg/store"
	"github.com/bcaldwell/beanbudget/pkg/ynabimporter"
)

type app struct {
	config  *config.Config
	secrets *config.Secrets
	layout  *budget.Layout
	options []budget.Option
}

func (a *app) openStore(ctx context.Context) (store.Store, error) {
	switch a.config.Storage.Kind {
	case config.StorageFile:
		var opts []store.FileOption
		if currencies := a.layout.Currencies(); len(currencies) == 1 {
			opts = append(opts, store.WithBeanzeroCurrency(currencies[0]))
		}
		return store.NewFile(a.config.StoragePath(), opts...), nil
	case config.StorageSQLite:
		return store.OpenSQLite(a.config.StoragePath())
	case config.StoragePostgres:
		db, err := postgresutils.CreatePostgresClient(a.secrets, a.config.Storage.Database)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to assignment database: %w", err)
		}
		return store.NewPostgres(ctx, db)
	}
	return nil, fmt.Errorf("unknown storage kind %q", a.config.Storage.Kind)
}

func (a *app) ledger() ledger.Source {
	return ledger.NewBeancountFiles(a.config.LedgerPath(), a.layout.Location())
}

func (a *app) input(ctx context.Context, s store.Store, through budget.Month) (budget.Input, error) {
	txs, err := a.ledger().Transactions(ctx)
	if err != nil {
		return budget.Input{}, err
	}
	snap, err := s.Snapshot(ctx)
	if err != nil {
		return budget.Input{}, err
	}
	return snap.Input(txs, through), nil
}

func (a *app) evaluate(ctx context.Context, through budget.Month) (*budget.Report, error) {
	s, err := a.openStore(ctx)
	if err != nil {
		return nil, err
	}
	defer s.Close()

	in, err := a.input(ctx, s, through)
	if err != nil {
		return nil, err
	}
	return budget.Evaluate(a.layout, in, a.options...)
}

func (a *app) currentMonth() budget.Month {
	return a.layout.MonthOf(time.Now())
}

// monthArg parses the month argument at i, defaulting to the current month.
func (a *app) monthArg(args []string, i int) (budget.Month, error) {
	if len(args) <= i {
		return a.currentMonth(), nil
	}
	return budget.ParseMonth(args[i])
}

// currencyArg reads the currency argument at i. It may be left out when the
// budget tracks a single currency.
func (a *app) currencyArg(args []string, i int) (string, error) {
	currencies := a.layout.Currencies()
	switch {
	case len(args) > i:
		return args[i], nil
	case len(currencies) == 1:
		return currencies[0], nil
	}
	return "", fmt.Errorf("currency is required when the budget tracks %d currencies", len(currencies))
}

type showRunner struct {
	app  *app
	args []string
}

func (r showRunner) Run() error {
	month, err := r.app.monthArg(r.args, 0)
	if err != nil {
		return err
	}
	report, err := r.app.evaluate(context.Background(), month)
	if err != nil {
		return err
	}
	return render.Month(os.Stdout, report, month)
}

type transactionsRunner struct {
	app  *app
	args []string
}

func (r transactionsRunner) Run() error {
	month, err := r.app.monthArg(r.args, 0)
	if err != nil {
		return err
	}
	report, err := r.app.evaluate(context.Background(), month)
	if err != nil {
		return err
	}
	return render.Transactions(os.Stdout, report, month)
}

type assignRunner struct {
	app  *app
	args []string
}

func (r assignRunner) Run() error {
	ctx := context.Background()
	a, err := r.assignment()
	if err != nil {
		return err
	}
	if err := r.app.layout.CheckAssignment(a); err != nil {
		return err
	}

	s, err := r.app.openStore(ctx)
	if err != nil {
		return err
	}
	defer s.Close()

	txs, err := r.app.ledger().Transactions(ctx)
	if err != nil {
		return err
	}
	snap, err := s.Snapshot(ctx)
	if err != nil {
		return err
	}
	previous := snap.Amount(a.Category, a.Month, a.Currency)

	// a write made since the snapshot is reported, not retried
	if _, err := s.SetAssignment(ctx, snap.Revision, a); err != nil {
		return err
	}

	in := snap.Input(txs, a.Month)
	in.Assignments = replaceAssignment(snap.Assignments, a)
	report, err := budget.Evaluate(r.app.layout, in, r.app.options...)
	if err != nil {
		return err
	}

	places := r.app.layout.Precision(a.Currency)
	fmt.Printf("%s %s %s: %s (was %s)\n", a.Category, a.Month, a.Currency,
		render.Amount(a.Amount, places), render.Amount(previous, places))
	if m, ok := report.Month(a.Month, a.Currency); ok {
		fmt.Printf("To be assigned in %s: %s\n", a.Month.Long(), render.Amount(m.ToBeAssigned, places))
	}
	return nil
}

func (r assignRunner) assignment() (budget.Assignment, error) {
	if len(r.args) < 3 {
		return budget.Assignment{}, fmt.Errorf("usage: assign CATEGORY YYYY-MM AMOUNT [CURRENCY]")
	}

	key := budget.CategoryKey(r.args[0])
	if _, ok := r.app.layout.Category(key); !ok {
		key = budget.CategoryKey(budget.Slugify(r.args[0]))
	}

	month, err := budget.ParseMonth(r.args[1])
	if err != nil {
		return budget.Assignment{}, err
	}

	amount, err := decimal.NewFromString(r.args[2])
	if err != nil {
		return budget.Assignment{}, fmt.Errorf("invalid amount %q: %w", r.args[2], err)
	}

	currency, err := r.app.currencyArg(r.args, 3)
	if err != nil {
		return budget.Assignment{}, err
	}
	return budget.Assignment{Category: key, Month: month, Currency: currency, Amount: amount}, nil
}

func replaceAssignment(assignments []budget.Assignment, a budget.Assignment) []budget.Assignment {
	result := make([]budget.Assignment, 0, len(assignments)+1)
	for _, existing := range assignments {
		if existing.Category == a.Category && existing.Month == a.Month && existing.Currency == a.Currency {
			continue
		}
		result = append(result, existing)
	}
	if !a.Amount.IsZero() {
		result = append(result, a)
	}
	return result
}

type holdRunner struct {
	app  *app
	args []string
}

func (r holdRunner) Run() error {
	ctx := context.Background()
	h, err := r.hold()
	if err != nil {
		return err
	}
	if err := r.app.layout.CheckHold(h); err != nil {
		return err
	}

	s, err := r.app.openStore(ctx)
	if err != nil {
		return err
	}
	defer s.Close()

	txs, err := r.app.ledger().Transactions(ctx)
	if err != nil {
		return err
	}
	snap, err := s.Snapshot(ctx)
	if err != nil {
		return err
	}
	previous := snap.Held(h.Month, h.Currency)

	if _, err := s.SetHold(ctx, snap.Revision, h); err != nil {
		return err
	}

	in := snap.Input(txs, h.Month.Add(1))
	in.Holds = replaceHold(snap.Holds, h)
	report, err := budget.Evaluate(r.app.layout, in, r.app.options...)
	if err != nil {
		return err
	}

	places := r.app.layout.Precision(h.Currency)
	fmt.Printf("Held for %s %s: %s (was %s)\n", h.Month.Add(1).Long(), h.Currency,
		render.Amount(h.Amount, places), render.Amount(previous, places))
	if m, ok := report.Month(h.Month, h.Currency); ok {
		fmt.Printf("To be assigned in %s: %s\n", h.Month.Long(), render.Amount(m.ToBeAssigned, places))
	}
	return nil
}

func (r holdRunner) hold() (budget.Hold, error) {
	if len(r.args) < 2 {
		return budget.Hold{}, fmt.Errorf("usage: hold YYYY-MM AMOUNT [CURRENCY]")
	}

	month, err := budget.ParseMonth(r.args[0])
	if err != nil {
		return budget.Hold{}, err
	}

	amount, err := decimal.NewFromString(r.args[1])
	if err != nil {
		return budget.Hold{}, fmt.Errorf("invalid amount %q: %w", r.args[1], err)
	}

	currency, err := r.app.currencyArg(r.args, 2)
	if err != nil {
		return budget.Hold{}, err
	}
	return budget.Hold{Month: month, Currency: currency, Amount: amount}, nil
}

func replaceHold(holds []budget.Hold, h budget.Hold) []budget.Hold {
	result := make([]budget.Hold, 0, len(holds)+1)
	for _, existing := range holds {
		if existing.Month == h.Month && existing.Currency == h.Currency {
			continue
		}
		result = append(result, existing)
	}
	if !h.Amount.IsZero() {
		result = append(result, h)
	}
	return result
}

type exportRunner struct {
	app   *app
	cache *budget.Cache
}

func newExportRunner(a *app) exportRunner {
	return exportRunner{app: a, cache: budget.NewCache(a.layout, a.options...)}
}

func (r exportRunner) Run() error {
	ctx := context.Background()
	s, err := r.app.openStore(ctx)
	if err != nil {
		return err
	}
	defer s.Close()

	in, err := r.app.input(ctx, s, r.app.currentMonth())
	if err != nil {
		return err
	}
	report, err := r.cache.Evaluate(in)
	if err != nil {
		return err
	}

	exported := false
	name := r.app.config.Name

	if r.app.secrets.SQL.SqlHost != "" || r.app.secrets.DatabaseURL != "" {
		exported = true
		sqlConfig := r.app.config.Export.SQL
		db, err := postgresutils.CreatePostgresClient(r.app.secrets, sqlConfig.Database)
		if err != nil {
			return fmt.Errorf("failed to connect to export database: %w", err)
		}
		defer db.Close()

		e := exporter.NewPostgresExporter(db, sqlConfig.Table, sqlConfig.BatchSize)
		if err := e.Migrate(ctx); err != nil {
			return fmt.Errorf("failed to migrate %s: %w", sqlConfig.Table, err)
		}
		if _, err := e.Export(ctx, name, report); err != nil {
			return err
		}
	}

	if r.app.secrets.Influx.InfluxEndpoint != "" {
		exported = true
		client, err := influxutils.CreateInfluxClient(r.app.secrets.Influx)
		if err != nil {
			return err
		}
		defer client.Close()

		influxConfig := r.app.config.Export.Influx
		if _, err := exporter.NewInfluxExporter(client, influxConfig.Database, influxConfig.Measurement).Export(name, report); err != nil {
			return err
		}
	}

	if !exported {
		return fmt.Errorf("no export destination configured, set sql or influx secrets")
	}
	klog.Infof("Exported %s through %s\n", name, report.Through())
	return nil
}

type importYnabRunner struct {
	app *app
}

func (r importYnabRunner) Run() error {
	ctx := context.Background()
	s, err := r.app.openStore(ctx)
	if err != nil {
		return err
	}
	defer s.Close()

	importer := ynabimporter.NewAssignmentImporter(r.app.secrets.Ynab, r.app.config.Ynab, r.app.layout, s)
	_, err = importer.Import(ctx)
	return err
}

type ynabCategoriesRunner struct {
	app *app
}

func (r ynabCategoriesRunner) Run() error {
	importer := ynabimporter.NewAssignmentImporter(r.app.secrets.Ynab, r.app.config.Ynab, r.app.layout, nil)
	unmapped, err := importer.UnmappedCategories()
	if err != nil {
		return err
	}
	if len(unmapped) == 0 {
		fmt.Println("Every YNAB category maps to a budget category")
		return nil
	}
	fmt.Println("YNAB categories without a budget category:")
	for _, name := range unmapped {
		fmt.Printf("  %s\n", name)
	}
	return nil
}
