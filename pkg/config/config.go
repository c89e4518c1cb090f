package config

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"dario.cat/mergo"
	"github.com/Shopify/ejson"
	"github.com/caarlos0/env/v6"
	"github.com/ghodss/yaml"
	"github.com/joho/godotenv"

	"github.com/bcaldwell/beanbudget/pkg/budget"
)

const (
	StorageFile     = "file"
	StorageSQLite   = "sqlite"
	StoragePostgres = "postgres"
)

// Load reads the budget configuration and secrets. A .env file in the
// working directory is loaded into the environment first when present.
func Load(configEnvVar, configFile, secretsFile string) (*Config, *Secrets, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		slog.Warn("failed to load .env file", "error", err)
	}

	config, err := ReadConfig(configEnvVar, configFile)
	if err != nil {
		return nil, nil, err
	}

	secrets, err := ReadSecrets(secretsFile)
	if err != nil {
		return nil, nil, err
	}
	return config, secrets, nil
}

// ReadConfig reads the YAML budget configuration from the environment
// variable envName when set, and from filename otherwise.
func ReadConfig(envName, filename string) (*Config, error) {
	var raw []byte
	var err error
	config := &Config{}

	rawEnv := os.Getenv(envName)
	if rawEnv != "" {
		slog.Info("reading config from environment", "variable", envName)
		raw = []byte(rawEnv)
		config.dir, err = os.Getwd()
		if err != nil {
			return nil, err
		}
	} else {
		raw, err = os.ReadFile(filename)
		if err != nil {
			return nil, err
		}
		config.dir, err = filepath.Abs(filepath.Dir(filename))
		if err != nil {
			return nil, err
		}
	}

	if err := yaml.Unmarshal(raw, config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	config.setDefaults()
	return config, nil
}

func (c *Config) setDefaults() {
	if c.Name == "" {
		c.Name = "budget"
	}
	if c.Storage.Kind == "" {
		c.Storage.Kind = StorageFile
	}
	if c.Storage.Path == "" {
		switch c.Storage.Kind {
		case StorageFile:
			c.Storage.Path = "budget.json"
		case StorageSQLite:
			c.Storage.Path = "budget.db"
		}
	}
	if c.Storage.Database == "" {
		c.Storage.Database = "budget"
	}
	if c.Export.UpdateFrequency == "" {
		c.Export.UpdateFrequency = "@every 1h"
	}
	if c.Export.SQL.Database == "" {
		c.Export.SQL.Database = c.Storage.Database
	}
	if c.Export.SQL.Table == "" {
		c.Export.SQL.Table = "budget_months"
	}
	if c.Export.SQL.BatchSize == 0 {
		c.Export.SQL.BatchSize = 1000
	}
	if c.Export.Influx.Database == "" {
		c.Export.Influx.Database = "budget"
	}
	if c.Export.Influx.Measurement == "" {
		c.Export.Influx.Measurement = "budget"
	}
}

// Resolve returns path relative to the configuration file's directory.
func (c *Config) Resolve(path string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(c.dir, path)
}

func (c *Config) LedgerPath() string { return c.Resolve(c.Ledger) }

func (c *Config) StoragePath() string { return c.Resolve(c.Storage.Path) }

func (c *Config) Location() (*time.Location, error) {
	if c.Timezone == "" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid timezone %q: %w", c.Timezone, err)
	}
	return loc, nil
}

// Layout compiles the configuration into a validated budget layout.
func (c *Config) Layout() (*budget.Layout, error) {
	start, err := budget.ParseMonth(c.Start)
	if err != nil {
		return nil, &budget.ConfigError{Problems: []string{fmt.Sprintf("start: %v", err)}}
	}
	loc, err := c.Location()
	if err != nil {
		return nil, &budget.ConfigError{Problems: []string{err.Error()}}
	}

	opts := budget.LayoutOptions{
		Start:          start,
		Location:       loc,
		Currencies:     c.Currencies,
		Precision:      c.Precision,
		BudgetAccounts: c.Accounts,
		Overspending:   budget.OverspendingPolicy(c.Overspending),
	}
	for _, g := range c.Groups {
		group := budget.Group{Name: g.Name}
		for _, category := range g.Categories {
			group.Categories = append(group.Categories, budget.Category{
				Key:      budget.CategoryKey(category.Key),
				Name:     category.Name,
				Accounts: category.Accounts,
			})
		}
		opts.Groups = append(opts.Groups, group)
	}
	return budget.NewLayout(opts)
}

func ReadSecrets(filename string) (*Secrets, error) {
	ejsonSecrets, ejsonErr := readEjsonSecrets(filename)

	envSecrets, envErr := readEnvSecrets()

	if ejsonErr == nil && envErr == nil {
		if err := mergo.Merge(envSecrets, *ejsonSecrets); err != nil {
			return nil, fmt.Errorf("failed to merge secrets: %w", err)
		}
		return envSecrets, nil
	} else if ejsonErr != nil && envErr == nil {
		slog.Warn("failed to parse ejson secrets, using environment only", "error", ejsonErr)
		return envSecrets, nil
	} else if ejsonErr == nil && envErr != nil {
		slog.Warn("failed to parse environment secrets, using ejson only", "error", envErr)
		return ejsonSecrets, nil
	}
	return nil, fmt.Errorf("failed to parse secrets. Ejson error: %v. Env error: %v", ejsonErr, envErr)
}

func readEjsonSecrets(filename string) (*Secrets, error) {
	ejsonSecrets := Secrets{}
	ejsonKeyFile := os.Getenv("BEANBUDGET_EJSON_SECRET_KEY")
	ejsonKey := []byte{}
	var err error

	if ejsonKeyFile != "" {
		ejsonKey, err = os.ReadFile(ejsonKeyFile)
		if err != nil {
			return nil, err
		}
	}
	raw, err := ejson.DecryptFile(filename, "/opt/ejson/keys", string(ejsonKey))
	if err != nil {
		return nil, err
	}

	err = json.Unmarshal(raw, &ejsonSecrets)
	return &ejsonSecrets, err
}

func readEnvSecrets() (*Secrets, error) {
	envSecrets := Secrets{}
	err := env.Parse(&envSecrets)
	return &envSecrets, err
}
