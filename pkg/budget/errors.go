package budget

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// ConfigError lists every problem found while compiling a layout or
// validating assignments against one. It is fatal for an evaluation.
type ConfigError struct {
	Problems []string
}

func (e *ConfigError) Error() string {
	if len(e.Problems) == 1 {
		return "invalid budget configuration: " + e.Problems[0]
	}
	return fmt.Sprintf("invalid budget configuration (%d problems): %s", len(e.Problems), strings.Join(e.Problems, "; "))
}

func (e *ConfigError) add(format string, args ...any) {
	e.Problems = append(e.Problems, fmt.Sprintf(format, args...))
}

func (e *ConfigError) orNil() error {
	if len(e.Problems) == 0 {
		return nil
	}
	return e
}

// InvariantError reports a month where to-be-assigned, the held amount and
// the category balances no longer add up to the cumulative on-budget cash.
type InvariantError struct {
	Month         Month
	Currency      string
	ToBeAssigned  decimal.Decimal
	Held          decimal.Decimal
	CategoryTotal decimal.Decimal
	Cash          decimal.Decimal
}

func (e *InvariantError) Error() string {
	return fmt.Sprintf("budget invariant violated for %s %s: to be assigned %s + held %s + categories %s != on-budget cash %s",
		e.Currency, e.Month, e.ToBeAssigned, e.Held, e.CategoryTotal, e.Cash)
}

// Difference is the amount by which the budget side exceeds cash.
func (e *InvariantError) Difference() decimal.Decimal {
	return e.ToBeAssigned.Add(e.Held).Add(e.CategoryTotal).Sub(e.Cash)
}
