// Package store persists budget assignments and held amounts. Every store hands out
// point-in-time snapshots tagged with a revision and rejects writes made
// against a stale revision.
package store

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/bcaldwell/beanbudget/pkg/budget"
)

// ErrConflict is returned by SetAssignment and SetHold when the store changed
// after the caller's snapshot was taken. Re-read and retry.
var ErrConflict = errors.New("assignments changed since snapshot")

type Snapshot struct {
	Revision    int64
	Assignments []budget.Assignment
	Holds       []budget.Hold
}

// Input pairs the snapshot with a ledger for evaluation.
func (s Snapshot) Input(txs []budget.Transaction, through budget.Month) budget.Input {
	return budget.Input{Transactions: txs, Assignments: s.Assignments, Holds: s.Holds, Through: through}
}

// Amount returns the assignment for a category, or zero.
func (s Snapshot) Amount(category budget.CategoryKey, month budget.Month, currency string) decimal.Decimal {
	for _, a := range s.Assignments {
		if a.Category == category && a.Month == month && a.Currency == currency {
			return a.Amount
		}
	}
	return decimal.Zero
}

// Held returns the amount held at the end of a month, or zero.
func (s Snapshot) Held(month budget.Month, currency string) decimal.Decimal {
	for _, h := range s.Holds {
		if h.Month == month && h.Currency == currency {
			return h.Amount
		}
	}
	return decimal.Zero
}

type Store interface {
	Snapshot(ctx context.Context) (Snapshot, error)
	// SetAssignment replaces one assignment if the store is still at
	// expectedRevision and returns the new revision. A zero amount removes
	// the assignment.
	SetAssignment(ctx context.Context, expectedRevision int64, a budget.Assignment) (int64, error)
	// SetHold replaces the amount held at the end of a month under the same
	// revision rules. A zero amount removes it.
	SetHold(ctx context.Context, expectedRevision int64, h budget.Hold) (int64, error)
	Close() error
}

type key struct {
	category budget.CategoryKey
	month    budget.Month
	currency string
}

func keyOf(a budget.Assignment) key {
	return key{category: a.Category, month: a.Month, currency: a.Currency}
}

func sortAssignments(assignments []budget.Assignment) {
	sort.Slice(assignments, func(i, j int) bool {
		a, b := assignments[i], assignments[j]
		if a.Month != b.Month {
			return a.Month.Before(b.Month)
		}
		if a.Currency != b.Currency {
			return a.Currency < b.Currency
		}
		return a.Category < b.Category
	})
}

type holdKey struct {
	month    budget.Month
	currency string
}

func sortHolds(holds []budget.Hold) {
	sort.Slice(holds, func(i, j int) bool {
		if holds[i].Month != holds[j].Month {
			return holds[i].Month.Before(holds[j].Month)
		}
		return holds[i].Currency < holds[j].Currency
	})
}

// Memory is an in-process store. The zero value is ready to use.
type Memory struct {
	mu          sync.Mutex
	revision    int64
	assignments map[key]decimal.Decimal
	holds       map[holdKey]decimal.Decimal
}

func NewMemory(initial ...budget.Assignment) *Memory {
	m := &Memory{assignments: map[key]decimal.Decimal{}}
	for _, a := range initial {
		if !a.Amount.IsZero() {
			m.assignments[keyOf(a)] = a.Amount
		}
	}
	return m
}

func (m *Memory) Snapshot(ctx context.Context) (Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	snap := Snapshot{Revision: m.revision}
	for k, amount := range m.assignments {
		snap.Assignments = append(snap.Assignments, budget.Assignment{
			Category: k.category,
			Month:    k.month,
			Currency: k.currency,
			Amount:   amount,
		})
	}
	for k, amount := range m.holds {
		snap.Holds = append(snap.Holds, budget.Hold{Month: k.month, Currency: k.currency, Amount: amount})
	}
	sortAssignments(snap.Assignments)
	sortHolds(snap.Holds)
	return snap, nil
}

func (m *Memory) SetAssignment(ctx context.Context, expectedRevision int64, a budget.Assignment) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if expectedRevision != m.revision {
		return m.revision, ErrConflict
	}
	if m.assignments == nil {
		m.assignments = map[key]decimal.Decimal{}
	}
	if a.Amount.IsZero() {
		delete(m.assignments, keyOf(a))
	} else {
		m.assignments[keyOf(a)] = a.Amount
	}
	m.revision++
	return m.revision, nil
}

func (m *Memory) SetHold(ctx context.Context, expectedRevision int64, h budget.Hold) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if expectedRevision != m.revision {
		return m.revision, ErrConflict
	}
	if m.holds == nil {
		m.holds = map[holdKey]decimal.Decimal{}
	}
	k := holdKey{month: h.Month, currency: h.Currency}
	if h.Amount.IsZero() {
		delete(m.holds, k)
	} else {
		m.holds[k] = h.Amount
	}
	m.revision++
	return m.revision, nil
}

func (m *Memory) Close() error { return nil }
