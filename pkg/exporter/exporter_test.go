package exporter

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	influxdb "github.com/influxdata/influxdb/client/v2"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bcaldwell/beanbudget/pkg/budget"
)

func testReport(t *testing.T, holds ...budget.Hold) *budget.Report {
	t.Helper()
	layout, err := budget.NewLayout(budget.LayoutOptions{
		Start:          budget.Month{Year: 2025, Month: time.January},
		BudgetAccounts: []string{"Assets:Checking"},
		Groups: []budget.Group{{
			Name: "Bills",
			Categories: []budget.Category{
				{Name: "Rent", Accounts: []string{"Expenses:Rent"}},
				{Name: "Power", Accounts: []string{"Expenses:Power"}},
			},
		}},
	})
	require.NoError(t, err)

	date := time.Date(2025, time.January, 3, 0, 0, 0, 0, time.UTC)
	report, err := budget.Evaluate(layout, budget.Input{
		Transactions: []budget.Transaction{
			{Date: date, Postings: []budget.Posting{
				{Account: "Assets:Checking", Amount: decimal.NewFromInt(1000), Currency: "AUD"},
				{Account: "Income:Salary", Amount: decimal.NewFromInt(-1000), Currency: "AUD"},
			}},
			{Date: date, Postings: []budget.Posting{
				{Account: "Assets:Checking", Amount: decimal.NewFromInt(-200), Currency: "AUD"},
				{Account: "Expenses:Rent", Amount: decimal.NewFromInt(200), Currency: "AUD"},
			}},
		},
		Assignments: []budget.Assignment{{
			Category: "rent",
			Month:    budget.Month{Year: 2025, Month: time.January},
			Currency: "AUD",
			Amount:   decimal.NewFromInt(250),
		}},
		Holds:   holds,
		Through: budget.Month{Year: 2025, Month: time.February},
	})
	require.NoError(t, err)
	return report
}

func TestRows(t *testing.T) {
	rows := Rows("home", testReport(t))
	require.Len(t, rows, 6)

	rent := rows[0]
	assert.Equal(t, "home/2025-01/AUD/rent", rent.Key)
	assert.Equal(t, "Bills", rent.CategoryGroup)
	assert.Equal(t, "250", rent.Assigned.String())
	assert.Equal(t, "-200", rent.Activity.String())
	assert.Equal(t, "50", rent.Balance.String())

	tba := rows[2]
	assert.Equal(t, ToBeAssignedCategory, tba.Category)
	assert.Equal(t, "1000", tba.Activity.String())
	assert.Equal(t, "750", tba.Balance.String())

	febRent := rows[3]
	assert.Equal(t, "home/2025-02/AUD/rent", febRent.Key)
	assert.Equal(t, "50", febRent.Carryover.String())
	assert.Equal(t, time.Date(2025, time.February, 1, 0, 0, 0, 0, time.UTC), febRent.Month)
}

func TestRowsHeld(t *testing.T) {
	rows := Rows("home", testReport(t, budget.Hold{
		Month:    budget.Month{Year: 2025, Month: time.January},
		Currency: "AUD",
		Amount:   decimal.NewFromInt(300),
	}))
	require.Len(t, rows, 8)

	assert.Equal(t, "450", rows[2].Balance.String())
	held := rows[3]
	assert.Equal(t, "home/2025-01/AUD/held", held.Key)
	assert.Equal(t, "300", held.Balance.String())

	// every month's rows add up to the on-budget cash
	total := decimal.Zero
	for _, row := range rows[:4] {
		total = total.Add(row.Balance)
	}
	assert.Equal(t, "800", total.String())

	febHeld := rows[7]
	assert.Equal(t, HeldCategory, febHeld.Category)
	assert.Equal(t, "300", febHeld.Carryover.String())
	assert.True(t, febHeld.Balance.IsZero())
	assert.Equal(t, "750", rows[6].Balance.String())
}

func TestSQLRecords(t *testing.T) {
	records := sqlRecords(Rows("home", testReport(t)))
	require.Len(t, records, 6)
	assert.Equal(t, "home/2025-01/AUD/power", records[1].Key)
	assert.Equal(t, int64(0), records[1].ID)
	assert.Equal(t, "0", records[1].Balance.String())
}

func TestPoints(t *testing.T) {
	points, err := Points("budget", Rows("home", testReport(t)))
	require.NoError(t, err)
	require.Len(t, points, 6)

	assert.Equal(t, "budget", points[0].Name())
	assert.Equal(t, map[string]string{"budget": "home", "category": "rent", "currency": "AUD", "group": "Bills"}, points[0].Tags())
	fields, err := points[0].Fields()
	require.NoError(t, err)
	assert.Equal(t, 50.0, fields["balance"])

	_, hasGroup := points[2].Tags()["group"]
	assert.False(t, hasGroup)
}

func TestInfluxExport(t *testing.T) {
	var written string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/query":
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"results":[{"statement_id":0}]}`))
		case "/write":
			body, _ := io.ReadAll(r.Body)
			written = string(body)
			w.WriteHeader(http.StatusNoContent)
		}
	}))
	defer server.Close()

	client, err := influxdb.NewHTTPClient(influxdb.HTTPConfig{Addr: server.URL})
	require.NoError(t, err)
	defer client.Close()

	n, err := NewInfluxExporter(client, "budget", "budget").Export("home", testReport(t))
	require.NoError(t, err)
	assert.Equal(t, 6, n)
	assert.Equal(t, 6, strings.Count(strings.TrimSpace(written), "\n")+1)
	assert.Contains(t, written, "category=to-be-assigned")
}
