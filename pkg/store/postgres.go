package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/uptrace/bun"

	"github.com/bcaldwell/beanbudget/pkg/budget"
)

type SQLAssignment struct {
	bun.BaseModel `bun:"table:budget_assignments"`
	Category      string          `bun:",pk"`
	Month         string          `bun:",pk"`
	Currency      string          `bun:",pk"`
	Amount        decimal.Decimal `bun:"type:numeric,notnull"`
	UpdatedAt     time.Time       `bun:",nullzero,notnull,default:current_timestamp"`
}

type SQLHold struct {
	bun.BaseModel `bun:"table:budget_holds"`
	Month         string          `bun:",pk"`
	Currency      string          `bun:",pk"`
	Amount        decimal.Decimal `bun:"type:numeric,notnull"`
	UpdatedAt     time.Time       `bun:",nullzero,notnull,default:current_timestamp"`
}

type SQLRevision struct {
	bun.BaseModel `bun:"table:budget_assignments_revision"`
	ID            int64 `bun:",pk"`
	Revision      int64 `bun:",notnull"`
}

// Postgres keeps assignments and held amounts in Postgres through bun.
type Postgres struct {
	db *bun.DB
}

func NewPostgres(ctx context.Context, db *bun.DB) (*Postgres, error) {
	p := &Postgres{db: db}
	return p, p.migrate(ctx)
}

func (p *Postgres) migrate(ctx context.Context) error {
	if _, err := p.db.NewCreateTable().Model((*SQLAssignment)(nil)).IfNotExists().Exec(ctx); err != nil {
		return errors.Wrap(err, "failed to create assignments table")
	}
	if _, err := p.db.NewCreateTable().Model((*SQLHold)(nil)).IfNotExists().Exec(ctx); err != nil {
		return errors.Wrap(err, "failed to create holds table")
	}
	if _, err := p.db.NewCreateTable().Model((*SQLRevision)(nil)).IfNotExists().Exec(ctx); err != nil {
		return errors.Wrap(err, "failed to create revision table")
	}
	_, err := p.db.NewInsert().Model(&SQLRevision{ID: 1}).On("CONFLICT (id) DO NOTHING").Exec(ctx)
	return errors.Wrap(err, "failed to seed revision")
}

func (p *Postgres) Snapshot(ctx context.Context) (Snapshot, error) {
	var snap Snapshot
	err := p.db.RunInTx(ctx, &sql.TxOptions{Isolation: sql.LevelRepeatableRead, ReadOnly: true}, func(ctx context.Context, tx bun.Tx) error {
		revision := SQLRevision{}
		if err := tx.NewSelect().Model(&revision).Where("id = 1").Scan(ctx); err != nil {
			return errors.Wrap(err, "failed to read revision")
		}
		snap.Revision = revision.Revision

		var rows []SQLAssignment
		if err := tx.NewSelect().Model(&rows).Scan(ctx); err != nil {
			return errors.Wrap(err, "failed to query assignments")
		}
		for _, row := range rows {
			month, err := budget.ParseMonth(row.Month)
			if err != nil {
				return errors.Wrapf(err, "assignment %s", row.Category)
			}
			snap.Assignments = append(snap.Assignments, budget.Assignment{
				Category: budget.CategoryKey(row.Category),
				Month:    month,
				Currency: row.Currency,
				Amount:   row.Amount,
			})
		}

		var holds []SQLHold
		if err := tx.NewSelect().Model(&holds).Scan(ctx); err != nil {
			return errors.Wrap(err, "failed to query held amounts")
		}
		for _, row := range holds {
			month, err := budget.ParseMonth(row.Month)
			if err != nil {
				return errors.Wrap(err, "held amount")
			}
			snap.Holds = append(snap.Holds, budget.Hold{Month: month, Currency: row.Currency, Amount: row.Amount})
		}
		return nil
	})
	if err != nil {
		return Snapshot{}, err
	}
	sortAssignments(snap.Assignments)
	sortHolds(snap.Holds)
	return snap, nil
}

// bumpRevision advances the store revision inside tx, failing with
// ErrConflict when it is no longer expectedRevision.
func (p *Postgres) bumpRevision(ctx context.Context, tx bun.Tx, expectedRevision int64) error {
	res, err := tx.NewUpdate().
		Model((*SQLRevision)(nil)).
		Set("revision = revision + 1").
		Where("id = 1").
		Where("revision = ?", expectedRevision).
		Exec(ctx)
	if err != nil {
		return errors.Wrap(err, "failed to bump revision")
	}
	if n, err := res.RowsAffected(); err != nil {
		return errors.Wrap(err, "failed to bump revision")
	} else if n == 0 {
		return ErrConflict
	}
	return nil
}

func (p *Postgres) SetAssignment(ctx context.Context, expectedRevision int64, a budget.Assignment) (int64, error) {
	err := p.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if err := p.bumpRevision(ctx, tx, expectedRevision); err != nil {
			return err
		}

		if a.Amount.IsZero() {
			_, err := tx.NewDelete().
				Model((*SQLAssignment)(nil)).
				Where("category = ?", string(a.Category)).
				Where("month = ?", a.Month.String()).
				Where("currency = ?", a.Currency).
				Exec(ctx)
			return errors.Wrap(err, "failed to delete assignment")
		}

		row := SQLAssignment{
			Category:  string(a.Category),
			Month:     a.Month.String(),
			Currency:  a.Currency,
			Amount:    a.Amount,
			UpdatedAt: time.Now(),
		}
		_, err := tx.NewInsert().
			Model(&row).
			On("CONFLICT (category, month, currency) DO UPDATE").
			Set("amount = EXCLUDED.amount, updated_at = EXCLUDED.updated_at").
			Exec(ctx)
		return errors.Wrap(err, "failed to save assignment")
	})
	if err != nil {
		return expectedRevision, err
	}
	return expectedRevision + 1, nil
}

func (p *Postgres) SetHold(ctx context.Context, expectedRevision int64, h budget.Hold) (int64, error) {
	err := p.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if err := p.bumpRevision(ctx, tx, expectedRevision); err != nil {
			return err
		}

		if h.Amount.IsZero() {
			_, err := tx.NewDelete().
				Model((*SQLHold)(nil)).
				Where("month = ?", h.Month.String()).
				Where("currency = ?", h.Currency).
				Exec(ctx)
			return errors.Wrap(err, "failed to delete held amount")
		}

		row := SQLHold{
			Month:     h.Month.String(),
			Currency:  h.Currency,
			Amount:    h.Amount,
			UpdatedAt: time.Now(),
		}
		_, err := tx.NewInsert().
			Model(&row).
			On("CONFLICT (month, currency) DO UPDATE").
			Set("amount = EXCLUDED.amount, updated_at = EXCLUDED.updated_at").
			Exec(ctx)
		return errors.Wrap(err, "failed to save held amount")
	})
	if err != nil {
		return expectedRevision, err
	}
	return expectedRevision + 1, nil
}

func (p *Postgres) Close() error {
	return p.db.Close()
}
