package utils_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/benmeehan/meterctl/internal/constants"
	"github.com/benmeehan/meterctl/internal/utils"
	"github.com/benmeehan/meterctl/pkg/file"
)

const sampleConfig = `
api:
  base_url: https://portal.example.com/api
  timeout: 10s
security:
  refresh_timeout: 5s
device_config:
  output_dir: /tmp/out
  sinks: [file, s3]
mqtt:
  broker: tls://broker:8883
  qos: 2
middlewares:
  rate_limit:
    enabled: true
    requests_per_second: 2.5
    burst: 5
poller:
  smart_meters: [m1, m2]
  interval: 1m
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

func TestLoadConfig_FileOverDefaults(t *testing.T) {
	config, err := utils.LoadConfig(writeConfig(t, sampleConfig), file.NewFileService())
	require.NoError(t, err)

	assert.Equal(t, "https://portal.example.com/api", config.API.BaseURL)
	assert.Equal(t, 10*time.Second, config.API.Timeout)
	assert.Equal(t, constants.DefaultSignInRoute, config.API.SignInRoute, "defaults survive")
	assert.Equal(t, 5*time.Second, config.Security.RefreshTimeout)
	assert.Equal(t, []string{"file", "s3"}, config.DeviceConfig.Sinks)
	assert.Equal(t, constants.DefaultDeviceConfigFileName, config.DeviceConfig.FileName)
	assert.Equal(t, 2, config.MQTT.QOS)
	assert.True(t, config.Middlewares.RequestID.Enabled)
	assert.True(t, config.Middlewares.RateLimit.Enabled)
	assert.Equal(t, 2.5, config.Middlewares.RateLimit.RequestsPerSecond)
	assert.Equal(t, []string{"m1", "m2"}, config.Poller.SmartMeters)
	assert.Equal(t, time.Minute, config.Poller.Interval)
	assert.NoError(t, config.Validate())
}

func TestLoadConfig_EnvOverridesFile(t *testing.T) {
	t.Setenv("METERCTL_API_BASE_URL", "http://localhost:9000")
	t.Setenv("METERCTL_DEVICE_CONFIG_SINKS", "mqtt,file")
	t.Setenv("METERCTL_SECURITY_REFRESH_TIMEOUT", "30s")
	t.Setenv("METERCTL_MIDDLEWARES_REQUEST_ID_ENABLED", "false")
	t.Setenv("METERCTL_LOG_LEVEL", "debug")

	config, err := utils.LoadConfig(writeConfig(t, sampleConfig), file.NewFileService())
	require.NoError(t, err)

	assert.Equal(t, "http://localhost:9000", config.API.BaseURL)
	assert.Equal(t, []string{"mqtt", "file"}, config.DeviceConfig.Sinks)
	assert.Equal(t, 30*time.Second, config.Security.RefreshTimeout)
	assert.False(t, config.Middlewares.RequestID.Enabled)
	assert.Equal(t, "debug", config.Log.Level)
	assert.Equal(t, 10*time.Second, config.API.Timeout, "unset variables keep file values")
}

func TestLoadConfig_MissingFile(t *testing.T) {
	t.Setenv("METERCTL_API_BASE_URL", "http://localhost:9000")

	config, err := utils.LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"), file.NewFileService())
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:9000", config.API.BaseURL)
	assert.Equal(t, []string{constants.SinkFile}, config.DeviceConfig.Sinks)
}

func TestLoadConfig_InvalidYaml(t *testing.T) {
	_, err := utils.LoadConfig(writeConfig(t, "api: [unterminated"), file.NewFileService())
	assert.Error(t, err)
}

func TestConfig_Validate(t *testing.T) {
	config := utils.DefaultConfig()
	assert.ErrorContains(t, config.Validate(), "api.base_url is required")

	config.API.BaseURL = "not a url"
	assert.ErrorContains(t, config.Validate(), "absolute URL")

	config.API.BaseURL = "https://portal.example.com"
	config.DeviceConfig.Sinks = []string{"file", "ftp"}
	config.MQTT.QOS = 3
	err := config.Validate()
	assert.ErrorContains(t, err, `unknown sink "ftp"`)
	assert.ErrorContains(t, err, "mqtt.qos")
}
