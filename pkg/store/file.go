package store

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/bcaldwell/beanbudget/pkg/budget"
)

// fileState is the on-disk layout: month -> currency -> category -> amount
// for assignments and month -> currency -> amount for held money.
type fileState struct {
	Revision int64                                                              `json:"revision"`
	Assigned map[budget.Month]map[string]map[budget.CategoryKey]decimal.Decimal `json:"assigned"`
	Held     map[budget.Month]map[string]decimal.Decimal                        `json:"held,omitempty"`
}

// rawState defers decoding each month so single-currency files written by
// beanzero, month -> {held, categories}, can be read as well.
type rawState struct {
	Revision int64                                       `json:"revision"`
	Assigned map[budget.Month]map[string]json.RawMessage `json:"assigned"`
	Held     map[budget.Month]map[string]decimal.Decimal `json:"held"`
}

func isBeanzeroMonth(month map[string]json.RawMessage) bool {
	_, held := month["held"]
	_, categories := month["categories"]
	return held || categories
}

// File keeps assignments in a JSON file. Writes replace the file atomically.
type File struct {
	path     string
	currency string
	mu       sync.Mutex
}

type FileOption func(*File)

// WithBeanzeroCurrency sets the currency of amounts in a beanzero state file,
// which does not record one. The file is rewritten in the multi-currency
// layout on the next change.
func WithBeanzeroCurrency(currency string) FileOption {
	return func(f *File) { f.currency = currency }
}

func NewFile(path string, opts ...FileOption) *File {
	f := &File{path: path}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

func newFileState() fileState {
	return fileState{
		Assigned: map[budget.Month]map[string]map[budget.CategoryKey]decimal.Decimal{},
		Held:     map[budget.Month]map[string]decimal.Decimal{},
	}
}

func (f *File) read() (fileState, error) {
	state := newFileState()
	content, err := os.ReadFile(f.path)
	if errors.Is(err, os.ErrNotExist) {
		return state, nil
	}
	if err != nil {
		return state, errors.Wrapf(err, "failed to read budget state %s", f.path)
	}

	var raw rawState
	if err := json.Unmarshal(content, &raw); err != nil {
		return state, errors.Wrapf(err, "failed to decode budget state %s", f.path)
	}
	state.Revision = raw.Revision
	for month, held := range raw.Held {
		state.Held[month] = held
	}

	for month, entries := range raw.Assigned {
		if isBeanzeroMonth(entries) {
			if err := f.readBeanzeroMonth(state, month, entries); err != nil {
				return state, err
			}
			continue
		}
		currencies := map[string]map[budget.CategoryKey]decimal.Decimal{}
		for currency, content := range entries {
			categories := map[budget.CategoryKey]decimal.Decimal{}
			if err := json.Unmarshal(content, &categories); err != nil {
				return state, errors.Wrapf(err, "failed to decode %s %s assignments in %s", month, currency, f.path)
			}
			currencies[currency] = categories
		}
		state.Assigned[month] = currencies
	}
	return state, nil
}

func (f *File) readBeanzeroMonth(state fileState, month budget.Month, entries map[string]json.RawMessage) error {
	if f.currency == "" {
		return errors.Errorf("budget state %s has no currencies, configure exactly one budget currency to read it", f.path)
	}

	held := decimal.Zero
	if content, ok := entries["held"]; ok {
		if err := json.Unmarshal(content, &held); err != nil {
			return errors.Wrapf(err, "failed to decode %s held amount in %s", month, f.path)
		}
	}
	categories := map[budget.CategoryKey]decimal.Decimal{}
	if content, ok := entries["categories"]; ok {
		if err := json.Unmarshal(content, &categories); err != nil {
			return errors.Wrapf(err, "failed to decode %s assignments in %s", month, f.path)
		}
	}

	if len(categories) > 0 {
		state.Assigned[month] = map[string]map[budget.CategoryKey]decimal.Decimal{f.currency: categories}
	}
	if !held.IsZero() {
		state.Held[month] = map[string]decimal.Decimal{f.currency: held}
	}
	return nil
}

func (f *File) write(state fileState) error {
	content, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return errors.Wrap(err, "failed to encode budget state")
	}

	dir := filepath.Dir(f.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errors.Wrapf(err, "failed to create %s", dir)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(f.path)+".*")
	if err != nil {
		return errors.Wrap(err, "failed to create temporary budget state")
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(append(content, '\n')); err != nil {
		tmp.Close()
		return errors.Wrapf(err, "failed to write %s", tmp.Name())
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return errors.Wrapf(err, "failed to sync %s", tmp.Name())
	}
	if err := tmp.Close(); err != nil {
		return errors.Wrapf(err, "failed to close %s", tmp.Name())
	}
	return errors.Wrapf(os.Rename(tmp.Name(), f.path), "failed to replace %s", f.path)
}

func (f *File) Snapshot(ctx context.Context) (Snapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	state, err := f.read()
	if err != nil {
		return Snapshot{}, err
	}
	snap := Snapshot{Revision: state.Revision}
	for month, currencies := range state.Assigned {
		for currency, categories := range currencies {
			for category, amount := range categories {
				if amount.IsZero() {
					continue
				}
				snap.Assignments = append(snap.Assignments, budget.Assignment{
					Category: category,
					Month:    month,
					Currency: currency,
					Amount:   amount,
				})
			}
		}
	}
	for month, currencies := range state.Held {
		for currency, amount := range currencies {
			if amount.IsZero() {
				continue
			}
			snap.Holds = append(snap.Holds, budget.Hold{Month: month, Currency: currency, Amount: amount})
		}
	}
	sortAssignments(snap.Assignments)
	sortHolds(snap.Holds)
	return snap, nil
}

func (f *File) SetAssignment(ctx context.Context, expectedRevision int64, a budget.Assignment) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	state, err := f.read()
	if err != nil {
		return 0, err
	}
	if state.Revision != expectedRevision {
		return state.Revision, ErrConflict
	}

	currencies, ok := state.Assigned[a.Month]
	if !ok {
		currencies = map[string]map[budget.CategoryKey]decimal.Decimal{}
		state.Assigned[a.Month] = currencies
	}
	categories, ok := currencies[a.Currency]
	if !ok {
		categories = map[budget.CategoryKey]decimal.Decimal{}
		currencies[a.Currency] = categories
	}
	if a.Amount.IsZero() {
		delete(categories, a.Category)
	} else {
		categories[a.Category] = a.Amount
	}
	return f.commit(state)
}

func (f *File) SetHold(ctx context.Context, expectedRevision int64, h budget.Hold) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	state, err := f.read()
	if err != nil {
		return 0, err
	}
	if state.Revision != expectedRevision {
		return state.Revision, ErrConflict
	}

	currencies, ok := state.Held[h.Month]
	if !ok {
		currencies = map[string]decimal.Decimal{}
		state.Held[h.Month] = currencies
	}
	currencies[h.Currency] = h.Amount
	return f.commit(state)
}

func (f *File) commit(state fileState) (int64, error) {
	prune(state)
	state.Revision++
	if err := f.write(state); err != nil {
		return state.Revision - 1, err
	}
	return state.Revision, nil
}

func (f *File) Close() error { return nil }

// prune drops zero amounts and empty currencies and months.
func prune(state fileState) {
	for month, currencies := range state.Held {
		for currency, amount := range currencies {
			if amount.IsZero() {
				delete(currencies, currency)
			}
		}
		if len(currencies) == 0 {
			delete(state.Held, month)
		}
	}
	assigned := state.Assigned
	for month, currencies := range assigned {
		for currency, categories := range currencies {
			for category, amount := range categories {
				if amount.IsZero() {
					delete(categories, category)
				}
			}
			if len(categories) == 0 {
				delete(currencies, currency)
			}
		}
		if len(currencies) == 0 {
			delete(assigned, month)
		}
	}
}
