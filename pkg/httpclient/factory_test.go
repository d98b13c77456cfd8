package httpclient_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/benmeehan/meterctl/pkg/httpclient"
)

func TestNewHTTPClient_DefaultTimeout(t *testing.T) {
	client := httpclient.NewHTTPClient(httpclient.ClientConfig{})
	assert.Equal(t, httpclient.DefaultTimeout, client.Timeout)

	client = httpclient.NewHTTPClient(httpclient.ClientConfig{Timeout: 5 * time.Second})
	assert.Equal(t, 5*time.Second, client.Timeout)
}

func TestNewHTTPClient_InstrumentsRequests(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	reg := prometheus.NewRegistry()
	metrics, err := httpclient.NewTransportMetrics(reg)
	require.NoError(t, err)

	transport := httpclient.NewHTTPClient(httpclient.ClientConfig{Metrics: metrics})
	client := httpclient.New(srv.URL, transport)

	for i := 0; i < 3; i++ {
		_, err := client.Send(context.Background(), httpclient.NewRequest(http.MethodGet, "/"))
		require.NoError(t, err)
	}

	assert.Equal(t, float64(3), testutil.ToFloat64(metrics.Requests.WithLabelValues("204", "get")))
	assert.Equal(t, float64(0), testutil.ToFloat64(metrics.InFlight))
}

func TestNewTransportMetrics_DuplicateRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	_, err := httpclient.NewTransportMetrics(reg)
	require.NoError(t, err)

	_, err = httpclient.NewTransportMetrics(reg)
	assert.Error(t, err)
}
