package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/bcaldwell/beanbudget/pkg/budget"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS assignments (
    category TEXT NOT NULL,
    month TEXT NOT NULL,               -- YYYY-MM
    currency TEXT NOT NULL,
    amount TEXT NOT NULL,              -- exact decimal
    updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
    PRIMARY KEY (category, month, currency)
);

CREATE INDEX IF NOT EXISTS idx_assignments_month
    ON assignments(month);

CREATE TABLE IF NOT EXISTS holds (
    month TEXT NOT NULL,               -- YYYY-MM
    currency TEXT NOT NULL,
    amount TEXT NOT NULL,              -- exact decimal
    updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
    PRIMARY KEY (month, currency)
);

CREATE TABLE IF NOT EXISTS store_revision (
    id INTEGER PRIMARY KEY CHECK (id = 1),
    revision INTEGER NOT NULL
);

INSERT OR IGNORE INTO store_revision (id, revision) VALUES (1, 0);
`

// SQLite keeps assignments and held amounts in a SQLite database.
type SQLite struct {
	db *sql.DB
}

func OpenSQLite(path string) (*SQLite, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, errors.Wrap(err, "failed to create database directory")
	}

	db, err := sql.Open("sqlite3", fmt.Sprintf("file:%s?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000", path))
	if err != nil {
		return nil, errors.Wrap(err, "failed to open database")
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "failed to ping database")
	}
	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "failed to initialize schema")
	}
	return &SQLite{db: db}, nil
}

func (s *SQLite) transaction(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "failed to begin transaction")
	}
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return errors.Wrapf(rbErr, "rollback after %v", err)
		}
		return err
	}
	return errors.Wrap(tx.Commit(), "failed to commit transaction")
}

func (s *SQLite) Snapshot(ctx context.Context) (Snapshot, error) {
	var snap Snapshot
	err := s.transaction(ctx, func(tx *sql.Tx) error {
		if err := tx.QueryRowContext(ctx, `SELECT revision FROM store_revision WHERE id = 1`).Scan(&snap.Revision); err != nil {
			return errors.Wrap(err, "failed to read revision")
		}

		rows, err := tx.QueryContext(ctx, `SELECT category, month, currency, amount FROM assignments`)
		if err != nil {
			return errors.Wrap(err, "failed to query assignments")
		}
		defer rows.Close()

		for rows.Next() {
			var category, month, currency, amount string
			if err := rows.Scan(&category, &month, &currency, &amount); err != nil {
				return errors.Wrap(err, "failed to scan assignment")
			}
			a, err := parseAssignment(category, month, currency, amount)
			if err != nil {
				return err
			}
			snap.Assignments = append(snap.Assignments, a)
		}
		if err := rows.Err(); err != nil {
			return err
		}

		holds, err := tx.QueryContext(ctx, `SELECT month, currency, amount FROM holds`)
		if err != nil {
			return errors.Wrap(err, "failed to query held amounts")
		}
		defer holds.Close()

		for holds.Next() {
			var month, currency, amount string
			if err := holds.Scan(&month, &currency, &amount); err != nil {
				return errors.Wrap(err, "failed to scan held amount")
			}
			h, err := parseHold(month, currency, amount)
			if err != nil {
				return err
			}
			snap.Holds = append(snap.Holds, h)
		}
		return holds.Err()
	})
	if err != nil {
		return Snapshot{}, err
	}
	sortAssignments(snap.Assignments)
	sortHolds(snap.Holds)
	return snap, nil
}

// bumpRevision advances the store revision, failing with ErrConflict when
// it is no longer expectedRevision.
func bumpRevision(ctx context.Context, tx *sql.Tx, expectedRevision int64) error {
	res, err := tx.ExecContext(ctx,
		`UPDATE store_revision SET revision = revision + 1 WHERE id = 1 AND revision = ?`, expectedRevision)
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

func (s *SQLite) SetAssignment(ctx context.Context, expectedRevision int64, a budget.Assignment) (int64, error) {
	err := s.transaction(ctx, func(tx *sql.Tx) error {
		if err := bumpRevision(ctx, tx, expectedRevision); err != nil {
			return err
		}

		if a.Amount.IsZero() {
			_, err := tx.ExecContext(ctx,
				`DELETE FROM assignments WHERE category = ? AND month = ? AND currency = ?`,
				string(a.Category), a.Month.String(), a.Currency)
			return errors.Wrap(err, "failed to delete assignment")
		}

		_, err := tx.ExecContext(ctx, `
			INSERT INTO assignments (category, month, currency, amount)
			VALUES (?, ?, ?, ?)
			ON CONFLICT(category, month, currency) DO UPDATE SET
				amount = excluded.amount,
				updated_at = CURRENT_TIMESTAMP
		`, string(a.Category), a.Month.String(), a.Currency, a.Amount.String())
		return errors.Wrap(err, "failed to save assignment")
	})
	if err != nil {
		return expectedRevision, err
	}
	return expectedRevision + 1, nil
}

func (s *SQLite) SetHold(ctx context.Context, expectedRevision int64, h budget.Hold) (int64, error) {
	err := s.transaction(ctx, func(tx *sql.Tx) error {
		if err := bumpRevision(ctx, tx, expectedRevision); err != nil {
			return err
		}

		if h.Amount.IsZero() {
			_, err := tx.ExecContext(ctx,
				`DELETE FROM holds WHERE month = ? AND currency = ?`, h.Month.String(), h.Currency)
			return errors.Wrap(err, "failed to delete held amount")
		}

		_, err := tx.ExecContext(ctx, `
			INSERT INTO holds (month, currency, amount)
			VALUES (?, ?, ?)
			ON CONFLICT(month, currency) DO UPDATE SET
				amount = excluded.amount,
				updated_at = CURRENT_TIMESTAMP
		`, h.Month.String(), h.Currency, h.Amount.String())
		return errors.Wrap(err, "failed to save held amount")
	})
	if err != nil {
		return expectedRevision, err
	}
	return expectedRevision + 1, nil
}

func (s *SQLite) Close() error {
	return s.db.Close()
}

func parseAssignment(category, month, currency, amount string) (budget.Assignment, error) {
	m, err := budget.ParseMonth(month)
	if err != nil {
		return budget.Assignment{}, errors.Wrapf(err, "assignment %s", category)
	}
	value, err := decimal.NewFromString(amount)
	if err != nil {
		return budget.Assignment{}, errors.Wrapf(err, "assignment %s %s", category, month)
	}
	return budget.Assignment{
		Category: budget.CategoryKey(category),
		Month:    m,
		Currency: currency,
		Amount:   value,
	}, nil
}

func parseHold(month, currency, amount string) (budget.Hold, error) {
	m, err := budget.ParseMonth(month)
	if err != nil {
		return budget.Hold{}, errors.Wrap(err, "held amount")
	}
	value, err := decimal.NewFromString(amount)
	if err != nil {
		return budget.Hold{}, errors.Wrapf(err, "held amount %s", month)
	}
	return budget.Hold{Month: m, Currency: currency, Amount: value}, nil
}
