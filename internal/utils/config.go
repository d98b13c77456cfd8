package utils

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/caarlos0/env/v11"

	"github.com/benmeehan/meterctl/internal/constants"
	"github.com/benmeehan/meterctl/pkg/file"
)

// EnvPrefix prefixes every environment variable read by LoadConfig.
const EnvPrefix = "METERCTL_"

// Config represents the structure of the configuration file.
type Config struct {
	API struct {
		BaseURL       string        `yaml:"base_url" env:"BASE_URL"`             // Backend base URL
		Timeout       time.Duration `yaml:"timeout" env:"TIMEOUT"`               // Per request timeout
		SignInRoute   string        `yaml:"sign_in_route" env:"SIGN_IN_ROUTE"`   // Where to send the user once the session ends
		CACertificate string        `yaml:"ca_certificate" env:"CA_CERTIFICATE"` // Extra CA bundle for the backend
		SSLInsecure   bool          `yaml:"ssl_insecure" env:"SSL_INSECURE"`     // Skip TLS verification
	} `yaml:"api" envPrefix:"API_"`

	Security struct {
		CredentialsFile string        `yaml:"credentials_file" env:"CREDENTIALS_FILE"` // Encrypted credential pair
		AESKeyFile      string        `yaml:"aes_key_file" env:"AES_KEY_FILE"`         // Key material for the credentials file
		RefreshTimeout  time.Duration `yaml:"refresh_timeout" env:"REFRESH_TIMEOUT"`   // Upper bound of one refresh call
	} `yaml:"security" envPrefix:"SECURITY_"`

	DeviceConfig struct {
		FileName  string   `yaml:"file_name" env:"FILE_NAME"`   // Name of the exported document
		OutputDir string   `yaml:"output_dir" env:"OUTPUT_DIR"` // Directory used by the file sink
		Sinks     []string `yaml:"sinks" env:"SINKS"`           // Delivery sinks, in order
	} `yaml:"device_config" envPrefix:"DEVICE_CONFIG_"`

	S3 struct {
		Endpoint      string        `yaml:"endpoint" env:"ENDPOINT"`
		AccessKey     string        `yaml:"access_key" env:"ACCESS_KEY"`
		SecretKey     string        `yaml:"secret_key" env:"SECRET_KEY"`
		UseSSL        bool          `yaml:"use_ssl" env:"USE_SSL"`
		Bucket        string        `yaml:"bucket" env:"BUCKET"`
		Prefix        string        `yaml:"prefix" env:"PREFIX"`
		PresignExpiry time.Duration `yaml:"presign_expiry" env:"PRESIGN_EXPIRY"` // Lifetime of the download URL
	} `yaml:"s3" envPrefix:"S3_"`

	MQTT struct {
		Broker             string        `yaml:"broker" env:"BROKER"`                 // MQTT broker address
		ClientID           string        `yaml:"client_id" env:"CLIENT_ID"`           // MQTT client ID, generated when empty
		CACertificate      string        `yaml:"ca_certificate" env:"CA_CERTIFICATE"` // Path to the CA certificate
		Username           string        `yaml:"username" env:"USERNAME"`
		Password           string        `yaml:"password" env:"PASSWORD"`
		InsecureSkipVerify bool          `yaml:"insecure_skip_verify" env:"INSECURE_SKIP_VERIFY"`
		TopicPrefix        string        `yaml:"topic_prefix" env:"TOPIC_PREFIX"` // Devices read <prefix>/<id>/config
		QOS                int           `yaml:"qos" env:"QOS"`
		Retained           bool          `yaml:"retained" env:"RETAINED"`
		Timeout            time.Duration `yaml:"timeout" env:"TIMEOUT"`
	} `yaml:"mqtt" envPrefix:"MQTT_"`

	Middlewares struct {
		RequestID struct {
			Enabled bool   `yaml:"enabled" env:"ENABLED"`
			Header  string `yaml:"header" env:"HEADER"`
		} `yaml:"request_id" envPrefix:"REQUEST_ID_"`

		RateLimit struct {
			Enabled           bool    `yaml:"enabled" env:"ENABLED"`
			RequestsPerSecond float64 `yaml:"requests_per_second" env:"RPS"`
			Burst             int     `yaml:"burst" env:"BURST"`
		} `yaml:"rate_limit" envPrefix:"RATE_LIMIT_"`
	} `yaml:"middlewares" envPrefix:"MIDDLEWARES_"`

	Metrics struct {
		Enabled bool   `yaml:"enabled" env:"ENABLED"`
		Listen  string `yaml:"listen" env:"LISTEN"` // Address of the /metrics endpoint while watching
	} `yaml:"metrics" envPrefix:"METRICS_"`

	Log struct {
		Level string `yaml:"level" env:"LEVEL"`
	} `yaml:"log" envPrefix:"LOG_"`

	Poller struct {
		SmartMeters []string      `yaml:"smart_meters" env:"SMART_METERS"`
		Interval    time.Duration `yaml:"interval" env:"INTERVAL"`
		Lookback    time.Duration `yaml:"lookback" env:"LOOKBACK"`
		Workers     int           `yaml:"workers" env:"WORKERS"`
	} `yaml:"poller" envPrefix:"POLLER_"`
}

// DefaultConfig returns the configuration used before the file and the
// environment are applied.
func DefaultConfig() *Config {
	dir := DefaultConfigDir()

	var c Config
	c.API.Timeout = 30 * time.Second
	c.API.SignInRoute = constants.DefaultSignInRoute
	c.Security.CredentialsFile = filepath.Join(dir, "credentials")
	c.Security.AESKeyFile = filepath.Join(dir, "credentials.key")
	c.Security.RefreshTimeout = 15 * time.Second
	c.DeviceConfig.FileName = constants.DefaultDeviceConfigFileName
	c.DeviceConfig.OutputDir = "."
	c.DeviceConfig.Sinks = []string{constants.SinkFile}
	c.S3.UseSSL = true
	c.S3.PresignExpiry = time.Hour
	c.MQTT.TopicPrefix = "devices"
	c.MQTT.QOS = 1
	c.MQTT.Timeout = 10 * time.Second
	c.Middlewares.RequestID.Enabled = true
	c.Middlewares.RequestID.Header = "X-Request-Id"
	c.Middlewares.RateLimit.RequestsPerSecond = 10
	c.Middlewares.RateLimit.Burst = 20
	c.Metrics.Listen = "127.0.0.1:9464"
	c.Log.Level = "info"
	c.Poller.Interval = 30 * time.Second
	c.Poller.Lookback = time.Hour
	c.Poller.Workers = 4
	return &c
}

// DefaultConfigDir is where meterctl keeps its files unless configured otherwise.
func DefaultConfigDir() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ".meterctl"
	}
	return filepath.Join(dir, "meterctl")
}

// LoadConfig applies the YAML file at filename, then the METERCTL_* environment,
// on top of DefaultConfig. A missing file is not an error.
func LoadConfig(filename string, fileClient file.FileOperations) (*Config, error) {
	config := DefaultConfig()

	if filename != "" {
		exists, err := fileClient.IsFileExists(filename)
		if err != nil {
			return nil, fmt.Errorf("failed to stat config file: %w", err)
		}
		if exists {
			if err := fileClient.ReadYamlFile(filename, config); err != nil {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
		}
	}

	if err := env.ParseWithOptions(config, env.Options{Prefix: EnvPrefix}); err != nil {
		return nil, fmt.Errorf("failed to read environment: %w", err)
	}

	return config, nil
}

// Validate checks the settings every command depends on.
func (c *Config) Validate() error {
	var errs []error

	if c.API.BaseURL == "" {
		errs = append(errs, errors.New("api.base_url is required"))
	} else if u, err := url.Parse(c.API.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
		errs = append(errs, fmt.Errorf("api.base_url %q is not an absolute URL", c.API.BaseURL))
	}

	known := SliceToSet([]string{constants.SinkFile, constants.SinkS3, constants.SinkMQTT})
	for _, sink := range c.DeviceConfig.Sinks {
		if _, ok := known[sink]; !ok {
			errs = append(errs, fmt.Errorf("device_config.sinks: unknown sink %q", sink))
		}
	}

	if c.MQTT.QOS < 0 || c.MQTT.QOS > 2 {
		errs = append(errs, fmt.Errorf("mqtt.qos must be 0, 1 or 2, got %d", c.MQTT.QOS))
	}
	if c.Middlewares.RateLimit.Enabled && c.Middlewares.RateLimit.RequestsPerSecond <= 0 {
		errs = append(errs, errors.New("middlewares.rate_limit.requests_per_second must be positive"))
	}

	return errors.Join(errs...)
}
