package ledger

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/pkg/errors"
	"github.com/robinvdvleuten/beancount/ast"
	"github.com/robinvdvleuten/beancount/parser"
	"github.com/shopspring/decimal"
	"k8s.io/klog"

	"github.com/bcaldwell/beanbudget/pkg/budget"
)

// Source provides a read-only snapshot of ledger transactions.
type Source interface {
	Transactions(ctx context.Context) ([]budget.Transaction, error)
}

// Static is a Source over transactions already in memory.
type Static []budget.Transaction

func (s Static) Transactions(ctx context.Context) ([]budget.Transaction, error) {
	return s, nil
}

// BeancountFiles reads every Beancount file matching a glob pattern. Files
// are read in lexical order, so monthly files named YYYY-MM sort by date.
type BeancountFiles struct {
	pattern  string
	location *time.Location
}

func NewBeancountFiles(pattern string, location *time.Location) *BeancountFiles {
	if location == nil {
		location = time.UTC
	}
	return &BeancountFiles{pattern: pattern, location: location}
}

func (b *BeancountFiles) Transactions(ctx context.Context) ([]budget.Transaction, error) {
	paths, err := filepath.Glob(b.pattern)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid ledger pattern %s", b.pattern)
	}
	if len(paths) == 0 {
		return nil, errors.Errorf("no ledger files match %s", b.pattern)
	}
	sort.Strings(paths)

	var txs []budget.Transaction
	for _, path := range paths {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		content, err := os.ReadFile(path)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to read ledger %s", path)
		}
		parsed, err := Parse(ctx, filepath.Base(path), string(content), b.location)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to load ledger %s", path)
		}
		klog.V(2).Infof("Read %d transactions from %s", len(parsed), path)
		txs = append(txs, parsed...)
	}
	return txs, nil
}

// Parse converts Beancount source into budget transactions. name prefixes
// each transaction's Ref.
func Parse(ctx context.Context, name, src string, location *time.Location) ([]budget.Transaction, error) {
	tree, err := parser.ParseString(ctx, src)
	if err != nil {
		return nil, errors.Wrap(err, "failed to parse beancount")
	}

	var txs []budget.Transaction
	for _, directive := range tree.Directives {
		txn, ok := directive.(*ast.Transaction)
		if !ok {
			continue
		}
		converted, err := convertTransaction(txn, location)
		if err != nil {
			return nil, err
		}
		converted.Ref = fmt.Sprintf("%s#%d", name, len(txs)+1)
		txs = append(txs, converted)
	}
	return txs, nil
}

func convertTransaction(txn *ast.Transaction, location *time.Location) (budget.Transaction, error) {
	day := txn.Date.Format("2006-01-02")
	date, err := time.ParseInLocation("2006-01-02", day, location)
	if err != nil {
		return budget.Transaction{}, errors.Wrapf(err, "invalid transaction date %s", day)
	}

	result := budget.Transaction{
		Date:      date,
		Payee:     fmt.Sprint(txn.Payee),
		Narration: fmt.Sprint(txn.Narration),
	}
	residual := map[string]decimal.Decimal{}
	var currencies []string
	elided := -1
	unbooked := ""

	for i, posting := range txn.Postings {
		account := string(posting.Account)
		if posting.Amount == nil {
			if elided >= 0 {
				return budget.Transaction{}, errors.Errorf("%s: more than one posting without an amount", day)
			}
			elided = i
			result.Postings = append(result.Postings, budget.Posting{Account: account})
			continue
		}

		units, err := decimal.NewFromString(posting.Amount.Value)
		if err != nil {
			return budget.Transaction{}, errors.Wrapf(err, "%s: invalid amount %q for %s", day, posting.Amount.Value, account)
		}

		if posting.Cost != nil && !hasExplicitCost(posting.Cost) {
			// {} and {*} are resolved against the lot inventory, so the
			// weight is unknown here.
			unbooked = account
			result.Postings = append(result.Postings, budget.Posting{
				Account:  account,
				Amount:   units,
				Currency: posting.Amount.Currency,
			})
			continue
		}

		weight, currency, err := postingWeight(posting, units)
		if err != nil {
			return budget.Transaction{}, errors.Wrapf(err, "%s: %s", day, account)
		}

		// Holdings at cost enter the budget at their cost basis.
		if posting.Cost != nil {
			result.Postings = append(result.Postings, budget.Posting{Account: account, Amount: weight, Currency: currency})
		} else {
			result.Postings = append(result.Postings, budget.Posting{Account: account, Amount: units, Currency: posting.Amount.Currency})
		}

		if _, ok := residual[currency]; !ok {
			residual[currency] = decimal.Zero
			currencies = append(currencies, currency)
		}
		residual[currency] = residual[currency].Add(weight)
	}

	if elided < 0 {
		return result, nil
	}
	if unbooked != "" {
		return budget.Transaction{}, errors.Errorf("%s: cannot infer the amount of %s next to %s, which has no explicit cost", day, result.Postings[elided].Account, unbooked)
	}

	// The elided posting absorbs the residual of every currency that does
	// not balance, one posting per currency.
	account := result.Postings[elided].Account
	var inferred []budget.Posting
	for _, currency := range currencies {
		if residual[currency].IsZero() {
			continue
		}
		inferred = append(inferred, budget.Posting{
			Account:  account,
			Amount:   residual[currency].Neg(),
			Currency: currency,
		})
	}
	postings := append([]budget.Posting{}, result.Postings[:elided]...)
	postings = append(postings, inferred...)
	result.Postings = append(postings, result.Postings[elided+1:]...)
	return result, nil
}

func hasExplicitCost(cost *ast.Cost) bool {
	return !cost.IsEmpty() && !cost.IsMergeCost() && cost.Amount != nil
}

// postingWeight returns the amount a posting contributes to the balance of
// its transaction: units times the per-unit cost for holdings at cost,
// converted through the price for priced postings, and the units otherwise.
func postingWeight(posting *ast.Posting, units decimal.Decimal) (decimal.Decimal, string, error) {
	if posting.Cost != nil {
		cost, err := decimal.NewFromString(posting.Cost.Amount.Value)
		if err != nil {
			return decimal.Zero, "", errors.Wrapf(err, "invalid cost %q", posting.Cost.Amount.Value)
		}
		return units.Mul(cost), posting.Cost.Amount.Currency, nil
	}
	if posting.Price != nil {
		price, err := decimal.NewFromString(posting.Price.Value)
		if err != nil {
			return decimal.Zero, "", errors.Wrapf(err, "invalid price %q", posting.Price.Value)
		}
		if posting.PriceTotal {
			if units.IsNegative() {
				price = price.Neg()
			}
			return price, posting.Price.Currency, nil
		}
		return units.Mul(price), posting.Price.Currency, nil
	}
	return units, posting.Amount.Currency, nil
}
