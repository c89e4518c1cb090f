package exporter

import (
	"fmt"

	influxdb "github.com/influxdata/influxdb/client/v2"
	"k8s.io/klog"

	"github.com/bcaldwell/beanbudget/pkg/budget"
	"github.com/bcaldwell/beanbudget/pkg/influxutils"
)

// InfluxExporter writes one point per exported row.
type InfluxExporter struct {
	client      influxdb.Client
	database    string
	measurement string
}

func NewInfluxExporter(client influxdb.Client, database, measurement string) *InfluxExporter {
	return &InfluxExporter{client: client, database: database, measurement: measurement}
}

func (e *InfluxExporter) Export(budgetName string, report *budget.Report) (int, error) {
	if err := influxutils.CreateDatabase(e.client, e.database); err != nil {
		return 0, fmt.Errorf("failed to create influx database %s: %w", e.database, err)
	}

	bp, err := influxdb.NewBatchPoints(influxdb.BatchPointsConfig{
		Database:  e.database,
		Precision: "s",
	})
	if err != nil {
		return 0, err
	}

	points, err := Points(e.measurement, Rows(budgetName, report))
	if err != nil {
		return 0, err
	}
	bp.AddPoints(points)

	if err := e.client.Write(bp); err != nil {
		return 0, fmt.Errorf("error writing budget points: %w", err)
	}

	klog.Infof("Wrote %v budget points for %s to influx\n", len(points), budgetName)
	return len(points), nil
}

func Points(measurement string, rows []Row) ([]*influxdb.Point, error) {
	points := make([]*influxdb.Point, 0, len(rows))
	for _, row := range rows {
		tags := map[string]string{
			"budget":   row.Budget,
			"category": row.Category,
			"currency": row.Currency,
		}
		if row.CategoryGroup != "" {
			tags["group"] = row.CategoryGroup
		}
		fields := map[string]interface{}{
			"carryover": row.Carryover.InexactFloat64(),
			"assigned":  row.Assigned.InexactFloat64(),
			"activity":  row.Activity.InexactFloat64(),
			"balance":   row.Balance.InexactFloat64(),
		}

		point, err := influxdb.NewPoint(measurement, tags, fields, row.Month)
		if err != nil {
			return nil, fmt.Errorf("failed to build point for %s: %w", row.Key, err)
		}
		points = append(points, point)
	}
	return points, nil
}
