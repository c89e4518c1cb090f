package influxutils

import (
	"fmt"
	"strings"

	influxdb "github.com/influxdata/influxdb/client/v2"

	"github.com/bcaldwell/beanbudget/pkg/config"
)

func CreateInfluxClient(secrets config.InfluxSecrets) (influxdb.Client, error) {
	return influxdb.NewHTTPClient(influxdb.HTTPConfig{
		Addr:     secrets.InfluxEndpoint,
		Username: secrets.InfluxUsername,
		Password: secrets.InfluxPassword,
	})
}

// CreateDatabase creates the database if it does not exist yet. Only the
// first word of name is used.
func CreateDatabase(influxClient influxdb.Client, name string) error {
	return exec(influxClient, fmt.Sprintf("CREATE DATABASE %s", databaseName(name)))
}

func databaseName(name string) string {
	return strings.Split(strings.TrimSpace(name), " ")[0]
}

func exec(influxClient influxdb.Client, command string) error {
	response, err := influxClient.Query(influxdb.NewQuery(command, "", ""))
	if err != nil {
		return err
	}
	return response.Error()
}
