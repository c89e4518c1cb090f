package render

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"github.com/shopspring/decimal"

	"github.com/bcaldwell/beanbudget/pkg/budget"
)

var heading = color.New(color.Bold)

// Amount formats d with thousands separators and a fixed number of places.
func Amount(d decimal.Decimal, places int32) string {
	d = d.Round(places)
	sign := ""
	if d.IsNegative() {
		sign = "-"
		d = d.Neg()
	}

	whole := humanize.Comma(d.IntPart())
	if places <= 0 {
		return sign + whole
	}
	fixed := d.StringFixed(places)
	return sign + whole + fixed[strings.IndexByte(fixed, '.'):]
}

// Month writes the budget view of a month for every currency of the report.
func Month(w io.Writer, report *budget.Report, month budget.Month) error {
	layout := report.Layout()
	found := false

	for _, currency := range report.Currencies() {
		m, ok := report.Month(month, currency)
		if !ok {
			continue
		}
		found = true
		places := layout.Precision(currency)
		amount := func(d decimal.Decimal) string { return Amount(d, places) }

		heading.Fprintf(w, "%s (%s)\n", month.Long(), currency)
		tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', tabwriter.AlignRight)
		fmt.Fprintln(tw, "\tAssigned\tActivity\tAvailable\t")
		for _, group := range m.Groups() {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t\n", group.Name, amount(group.Assigned), amount(group.Spending), amount(group.Balance))
			for _, c := range group.Categories {
				fmt.Fprintf(tw, "  %s\t%s\t%s\t%s\t\n", c.Name, amount(c.Assigned), amount(c.Spending), amount(c.Balance))
			}
		}
		if err := tw.Flush(); err != nil {
			return err
		}

		tw = tabwriter.NewWriter(w, 0, 0, 2, ' ', tabwriter.AlignRight)
		fmt.Fprintf(tw, "Funding\t%s\t\n", amount(m.Funding))
		if !m.Overspending.IsZero() {
			fmt.Fprintf(tw, "Overspent last month\t%s\t\n", amount(m.Overspending))
		}
		if !m.Released.IsZero() {
			fmt.Fprintf(tw, "Released from last month\t%s\t\n", amount(m.Released))
		}
		fmt.Fprintf(tw, "Assigned\t%s\t\n", amount(m.Assigned.Neg()))
		if !m.Held.IsZero() {
			fmt.Fprintf(tw, "Held for next month\t%s\t\n", amount(m.Held.Neg()))
		}
		fmt.Fprintf(tw, "To be assigned\t%s\t\n", amount(m.ToBeAssigned))
		if err := tw.Flush(); err != nil {
			return err
		}
		fmt.Fprintln(w)
	}

	if !found {
		return fmt.Errorf("no budget for %s, evaluated through %s", month, report.Through())
	}
	return nil
}

// Transactions writes how each transaction of a month was classified.
func Transactions(w io.Writer, report *budget.Report, month budget.Month) error {
	layout := report.Layout()
	heading.Fprintf(w, "%s transactions\n", month.Long())

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "Date\tRef\tDescription\tCurrency\tFlow\tFunding\tSpending")
	for _, c := range report.Classifications(month) {
		places := layout.Precision(c.Currency)
		tx := c.Transaction

		spending := "skipped"
		if !c.Skipped() {
			spending = formatSpending(c.Spending, places)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			tx.Date.Format("2006-01-02"),
			tx.Ref,
			description(tx),
			c.Currency,
			Amount(c.Flow, places),
			Amount(c.Funding, places),
			spending,
		)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	for _, agg := range report.Aggregates(month) {
		places := layout.Precision(agg.Currency)
		fmt.Fprintf(w, "%s: %d budgeted, funding %s, cash %s\n",
			agg.Currency, agg.Transactions, Amount(agg.Funding, places), Amount(agg.Cash, places))
	}
	return nil
}

func description(tx *budget.Transaction) string {
	switch {
	case tx.Payee != "" && tx.Narration != "":
		return tx.Payee + ": " + tx.Narration
	case tx.Payee != "":
		return tx.Payee
	}
	return tx.Narration
}

func formatSpending(spending map[budget.CategoryKey]decimal.Decimal, places int32) string {
	if len(spending) == 0 {
		return "-"
	}
	keys := make([]string, 0, len(spending))
	for key := range spending {
		keys = append(keys, string(key))
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, key := range keys {
		parts = append(parts, key+"="+Amount(spending[budget.CategoryKey(key)], places))
	}
	return strings.Join(parts, " ")
}
