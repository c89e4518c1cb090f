package influxutils

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bcaldwell/beanbudget/pkg/config"
)

func TestCreateDatabase(t *testing.T) {
	var queries []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		queries = append(queries, r.FormValue("q"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"results":[{"statement_id":0}]}`))
	}))
	defer server.Close()

	client, err := CreateInfluxClient(config.InfluxSecrets{InfluxEndpoint: server.URL})
	require.NoError(t, err)
	defer client.Close()

	require.NoError(t, CreateDatabase(client, "budget extra words"))
	assert.Equal(t, []string{"CREATE DATABASE budget"}, queries)
}

func TestCreateDatabaseReportsServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"error":"authorization failed"}`))
	}))
	defer server.Close()

	client, err := CreateInfluxClient(config.InfluxSecrets{InfluxEndpoint: server.URL})
	require.NoError(t, err)
	defer client.Close()

	assert.Error(t, CreateDatabase(client, "budget"))
}
