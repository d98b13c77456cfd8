package httpclient

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// DefaultTimeout is used when ClientConfig.Timeout is zero.
const DefaultTimeout = 30 * time.Second

// ClientConfig holds configuration for HTTP client creation.
type ClientConfig struct {
	TrustedCerts []byte
	SSLInsecure  bool
	Timeout      time.Duration
	Metrics      *TransportMetrics
}

// TransportMetrics instruments the outbound transport.
type TransportMetrics struct {
	InFlight prometheus.Gauge
	Requests *prometheus.CounterVec
	Duration *prometheus.HistogramVec
}

// NewTransportMetrics creates the transport metrics and registers them with reg.
func NewTransportMetrics(reg prometheus.Registerer) (*TransportMetrics, error) {
	m := &TransportMetrics{
		InFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "meterctl",
			Subsystem: "http_client",
			Name:      "in_flight_requests",
			Help:      "Number of in-flight requests to the backend.",
		}),
		Requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "meterctl",
			Subsystem: "http_client",
			Name:      "requests_total",
			Help:      "Requests sent to the backend by status code and method.",
		}, []string{"code", "method"}),
		Duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "meterctl",
			Subsystem: "http_client",
			Name:      "request_duration_seconds",
			Help:      "Latency of requests sent to the backend.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method"}),
	}

	for _, c := range []prometheus.Collector{m.InFlight, m.Requests, m.Duration} {
		if err := reg.Register(c); err != nil {
			return nil, fmt.Errorf("failed to register transport metric: %w", err)
		}
	}
	return m, nil
}

// NewHTTPClient creates an *http.Client for the given configuration.
func NewHTTPClient(config ClientConfig) *http.Client {
	// Get the SystemCertPool, continue with an empty pool on error
	rootCAs, _ := x509.SystemCertPool()
	if rootCAs == nil {
		rootCAs = x509.NewCertPool()
	}
	if len(config.TrustedCerts) > 0 {
		rootCAs.AppendCertsFromPEM(config.TrustedCerts)
	}

	tr := http.DefaultTransport.(*http.Transport).Clone()
	tr.TLSClientConfig = &tls.Config{
		InsecureSkipVerify: config.SSLInsecure,
		RootCAs:            rootCAs,
	}

	timeout := config.Timeout
	if timeout == 0 {
		timeout = DefaultTimeout
	}

	if config.Metrics == nil {
		return &http.Client{Transport: tr, Timeout: timeout}
	}

	instrumented := promhttp.InstrumentRoundTripperInFlight(config.Metrics.InFlight,
		promhttp.InstrumentRoundTripperCounter(config.Metrics.Requests,
			promhttp.InstrumentRoundTripperDuration(config.Metrics.Duration, tr),
		),
	)
	return &http.Client{Transport: instrumented, Timeout: timeout}
}
