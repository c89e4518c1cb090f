package budget

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCacheMatchesFullEvaluation(t *testing.T) {
	layout := testLayout(t, func(o *LayoutOptions) { o.Overspending = OverspendingReset })
	cache := NewCache(layout)
	txs, assignments := randomLedger(5, 500)

	check := func(in Input) {
		t.Helper()
		cached, err := cache.Evaluate(in)
		require.NoError(t, err)
		full, err := Evaluate(layout, in)
		require.NoError(t, err)

		assert.Equal(t, full.Currencies(), cached.Currencies())
		assert.Equal(t, full.Through(), cached.Through())
		for _, currency := range full.Currencies() {
			assertSameMonths(t, full.Months(currency), cached.Months(currency))
		}
	}

	check(Input{Transactions: txs, Assignments: assignments})

	// Change one assignment in the middle of the chain.
	changed := append([]Assignment(nil), assignments...)
	changed[len(changed)/2].Amount = changed[len(changed)/2].Amount.Add(d("12.34"))
	check(Input{Transactions: txs, Assignments: changed})

	// Drop an assignment.
	check(Input{Transactions: txs, Assignments: changed[1:]})

	// Add a late transaction in a new currency.
	more := append(append([]Transaction(nil), txs...),
		tx("2025-06-30", pc("Assets:Checking", "10", "USD"), pc("Income:Salary", "-10", "USD")))
	check(Input{Transactions: more, Assignments: changed[1:]})

	// Extend, then shrink, the requested range.
	check(Input{Transactions: more, Assignments: changed[1:], Through: month("2026-02")})
	check(Input{Transactions: more, Assignments: changed[1:]})

	// Rewrite an early transaction.
	early := append([]Transaction(nil), more...)
	early[3] = tx("2024-10-05", p("Assets:Checking", "-99.99"), p("Expenses:Rent", "99.99"))
	check(Input{Transactions: early, Assignments: changed[1:]})

	// Unchanged input.
	check(Input{Transactions: early, Assignments: changed[1:]})

	// Hold money, then release it a month earlier.
	check(Input{Transactions: early, Assignments: changed[1:], Holds: []Hold{hold("2025-03", "25")}})
	check(Input{Transactions: early, Assignments: changed[1:], Holds: []Hold{hold("2025-02", "25")}})
}

func TestCacheRejectsBadAssignments(t *testing.T) {
	cache := NewCache(testLayout(t))
	_, err := cache.Evaluate(Input{Assignments: []Assignment{assign("rent", "2025-01", "1.005")}})

	var configErr *ConfigError
	assert.True(t, errors.As(err, &configErr))
}

func TestCacheRejectsNegativeHold(t *testing.T) {
	cache := NewCache(testLayout(t))
	_, err := cache.Evaluate(Input{Holds: []Hold{hold("2025-01", "-1")}})

	var configErr *ConfigError
	assert.True(t, errors.As(err, &configErr))
}

func TestFirstChange(t *testing.T) {
	old := map[Month]uint64{month("2025-01"): 1, month("2025-02"): 2, month("2025-04"): 4}

	_, changed := firstChange(old, map[Month]uint64{month("2025-01"): 1, month("2025-02"): 2, month("2025-04"): 4})
	assert.False(t, changed)

	m, changed := firstChange(old, map[Month]uint64{month("2025-01"): 1, month("2025-02"): 3, month("2025-04"): 5})
	assert.True(t, changed)
	assert.Equal(t, month("2025-02"), m)

	m, changed = firstChange(old, map[Month]uint64{month("2025-01"): 1, month("2025-02"): 2})
	assert.True(t, changed)
	assert.Equal(t, month("2025-04"), m)

	m, changed = firstChange(old, map[Month]uint64{month("2024-12"): 9, month("2025-01"): 1, month("2025-02"): 2, month("2025-04"): 4})
	assert.True(t, changed)
	assert.Equal(t, month("2024-12"), m)
}

func TestFingerprint(t *testing.T) {
	txs, _ := monthlyTotalsFixture()
	same, _ := monthlyTotalsFixture()
	assert.Equal(t, Fingerprint(txs), Fingerprint(same))

	same[1].Postings[0].Amount = d("-200.01")
	assert.NotEqual(t, Fingerprint(txs), Fingerprint(same))
}
