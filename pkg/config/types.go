package config

import (
	"encoding/json"
)

type Config struct {
	Name string `json:"name"`
	// Ledger is a Beancount file or a glob matching several.
	Ledger       string           `json:"ledger"`
	Storage      StorageConfig    `json:"storage"`
	Start        string           `json:"start"`
	Timezone     string           `json:"timezone"`
	Currencies   []string         `json:"currencies"`
	Precision    map[string]int32 `json:"precision"`
	Overspending string           `json:"overspending"`
	Accounts     AccountList      `json:"accounts"`
	Groups       []GroupConfig    `json:"groups"`
	Export       ExportConfig     `json:"export"`
	Ynab         YnabConfig       `json:"ynab"`

	// dir is the directory relative paths are resolved against.
	dir string
}

type StorageConfig struct {
	// Kind is one of file, sqlite or postgres.
	Kind string `json:"kind"`
	Path string `json:"path"`
	// Database is the postgres database used when Kind is postgres.
	Database string `json:"database"`
}

type GroupConfig struct {
	Name       string           `json:"name"`
	Categories []CategoryConfig `json:"categories"`
}

type CategoryConfig struct {
	Name     string      `json:"name"`
	Key      string      `json:"key"`
	Accounts AccountList `json:"accounts"`
}

// AccountList accepts either a single account or a list of accounts.
type AccountList []string

func (a *AccountList) UnmarshalJSON(b []byte) error {
	var single string
	if err := json.Unmarshal(b, &single); err == nil {
		*a = AccountList{single}
		return nil
	}
	var list []string
	if err := json.Unmarshal(b, &list); err != nil {
		return err
	}
	*a = list
	return nil
}

///////////////////////////////////////////////////////////////////////////////////////
// Export
///////////////////////////////////////////////////////////////////////////////////////

type ExportConfig struct {
	UpdateFrequency string `json:"updateFrequency"`
	SQL             struct {
		Database  string `json:"database"`
		Table     string `json:"table"`
		BatchSize int    `json:"batchSize"`
	} `json:"sql"`
	Influx struct {
		Database    string `json:"database"`
		Measurement string `json:"measurement"`
	} `json:"influx"`
}

///////////////////////////////////////////////////////////////////////////////////////
// YNAB
///////////////////////////////////////////////////////////////////////////////////////

type YnabConfig struct {
	Budget   string `json:"budget"`
	BudgetID string `json:"budgetId"`
	// Categories maps YNAB category names to budget category keys.
	Categories map[string]string `json:"categories"`
}

type Secrets struct {
	Ynab   YnabSecrets   `json:"ynab"`
	Influx InfluxSecrets `json:"influx"`
	SQL    SqlSecrets    `json:"sql"`

	// Altternative to Sql struct, designed to be used with heroku env variable
	DatabaseURL string `json:"databaseUrl" env:"DATABASE_URL"`
}

type YnabSecrets struct {
	YnabAccessToken string `json:"ynabAccessToken" env:"YNAB_ACCESS_TOKEN"`
}

type InfluxSecrets struct {
	InfluxEndpoint string `json:"influxEndpoint" env:"INFLUX_ENDPOINT"`
	InfluxUsername string `json:"influxUsername" env:"INFLUX_USERNAME"`
	InfluxPassword string `json:"influxPassword" env:"INFLUX_PASSWORD"`
}

type SqlSecrets struct {
	SqlHost     string `json:"sqlHost" env:"SQL_HOST"`
	SqlUsername string `json:"sqlUsername" env:"SQL_USERNAME"`
	SqlPassword string `json:"sqlPassword" env:"SQL_PASSWORD"`
}
