package exporter

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/uptrace/bun"
	"k8s.io/klog"

	"github.com/bcaldwell/beanbudget/pkg/budget"
	"github.com/bcaldwell/beanbudget/pkg/postgresutils"
)

const defaultBatchSize = 1000

type SQLBudgetMonth struct {
	bun.BaseModel `bun:"table:budget_months"`
	ID            int64  `bun:",pk,autoincrement"`
	Key           string `bun:",unique"`
	Budget        string
	Category      string
	CategoryName  string
	CategoryGroup string
	Month         time.Time
	Currency      string
	Carryover     decimal.Decimal `bun:"type:numeric"`
	Assigned      decimal.Decimal `bun:"type:numeric"`
	Activity      decimal.Decimal `bun:"type:numeric"`
	Balance       decimal.Decimal `bun:"type:numeric"`
}

// PostgresExporter upserts the budget view into a postgres table.
type PostgresExporter struct {
	db        *bun.DB
	table     string
	batchSize int
}

func NewPostgresExporter(db *bun.DB, table string, batchSize int) *PostgresExporter {
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}
	return &PostgresExporter{db: db, table: table, batchSize: batchSize}
}

func (e *PostgresExporter) Migrate(ctx context.Context) error {
	_, err := e.db.NewCreateTable().Model((*SQLBudgetMonth)(nil)).ModelTableExpr(e.table).IfNotExists().Exec(ctx)
	return err
}

func (e *PostgresExporter) Export(ctx context.Context, budgetName string, report *budget.Report) (int, error) {
	model := (*SQLBudgetMonth)(nil)
	sqlRecords := sqlRecords(Rows(budgetName, report))

	for i := 0; i < len(sqlRecords); i += e.batchSize {
		endIndex := min(len(sqlRecords), i+e.batchSize)

		records := sqlRecords[i:endIndex]
		_, err := e.db.NewInsert().
			Model(&records).
			ModelTableExpr(e.table).
			On("CONFLICT (key) DO UPDATE").
			Set(postgresutils.TableSetString(e.db, model, "id", "key")).
			Exec(ctx)

		if err != nil {
			return i, fmt.Errorf("error writing budget months: %w", err)
		}
	}

	klog.Infof("Wrote %v budget rows for %s to sql\n", len(sqlRecords), budgetName)
	return len(sqlRecords), nil
}

func sqlRecords(rows []Row) []SQLBudgetMonth {
	records := make([]SQLBudgetMonth, 0, len(rows))
	for _, row := range rows {
		records = append(records, SQLBudgetMonth{
			Key:           row.Key,
			Budget:        row.Budget,
			Category:      row.Category,
			CategoryName:  row.CategoryName,
			CategoryGroup: row.CategoryGroup,
			Month:         row.Month,
			Currency:      row.Currency,
			Carryover:     row.Carryover,
			Assigned:      row.Assigned,
			Activity:      row.Activity,
			Balance:       row.Balance,
		})
	}
	return records
}
