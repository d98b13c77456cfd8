package main

import (
	"bytes"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/benmeehan/meterctl/internal/constants"
	"github.com/benmeehan/meterctl/internal/models"
)

func TestRun_Usage(t *testing.T) {
	var stderr bytes.Buffer
	assert.Equal(t, exitUsage, run(nil, strings.NewReader(""), &bytes.Buffer{}, &stderr))
	assert.Contains(t, stderr.String(), "export-config")

	stderr.Reset()
	assert.Equal(t, exitUsage, run([]string{"bogus"}, strings.NewReader(""), &bytes.Buffer{}, &stderr))
	assert.Contains(t, stderr.String(), `unknown command "bogus"`)

	assert.Equal(t, exitUsage, run([]string{"--nope"}, strings.NewReader(""), &bytes.Buffer{}, &bytes.Buffer{}))
	assert.Equal(t, exitOK, run([]string{"--help"}, strings.NewReader(""), &bytes.Buffer{}, &bytes.Buffer{}))
}

func TestConsoleNavigator_PrintsOnce(t *testing.T) {
	var out bytes.Buffer
	nav := NewConsoleNavigator(&out, "/sign-in")

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			nav.RedirectToSignIn()
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, strings.Count(out.String(), "Your session has ended"))
	assert.Contains(t, out.String(), "/sign-in")
}

type backend struct {
	mu     sync.Mutex
	access string
}

func (b *backend) handler(t *testing.T) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc(constants.LoginPath, func(w http.ResponseWriter, r *http.Request) {
		var login models.LoginRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&login))
		if login.Password != "secret" {
			w.Header().Set("Content-Type", "application/problem+json")
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"title":"Invalid credentials","status":401}`))
			return
		}
		b.mu.Lock()
		b.access = "a1"
		b.mu.Unlock()
		_, _ = w.Write([]byte(`{"accessToken":"a1","refreshToken":"r1"}`))
	})
	mux.HandleFunc(constants.LogoutPath, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	mux.HandleFunc(constants.SmartMetersPath, func(w http.ResponseWriter, r *http.Request) {
		b.mu.Lock()
		want := "Bearer " + b.access
		b.mu.Unlock()
		if r.Header.Get("Authorization") != want {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_, _ = w.Write([]byte(`[{"id":"m1","name":"Kitchen"}]`))
	})
	return mux
}

func writeConfig(t *testing.T, baseURL string, extra ...string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	config := fmt.Sprintf(`api:
  base_url: %s
security:
  credentials_file: %s
  aes_key_file: %s
log:
  level: error
`, baseURL, filepath.Join(dir, "credentials"), filepath.Join(dir, "aes.key")) + strings.Join(extra, "")
	require.NoError(t, os.WriteFile(path, []byte(config), 0600))
	return path
}

func TestRun_LoginListLogout(t *testing.T) {
	srv := httptest.NewServer((&backend{}).handler(t))
	defer srv.Close()
	configPath := writeConfig(t, srv.URL)

	var stdout, stderr bytes.Buffer
	code := run([]string{"-c", configPath, "login", "-u", "alice"}, strings.NewReader("secret\n"), &stdout, &stderr)
	require.Equal(t, exitOK, code, stderr.String())
	assert.Contains(t, stdout.String(), "Signed in.")

	stdout.Reset()
	code = run([]string{"-c", configPath, "meters"}, strings.NewReader(""), &stdout, &stderr)
	require.Equal(t, exitOK, code, stderr.String())
	var meters []models.SmartMeter
	require.NoError(t, json.Unmarshal(stdout.Bytes(), &meters))
	assert.Equal(t, []models.SmartMeter{{ID: "m1", Name: "Kitchen"}}, meters)

	stdout.Reset()
	code = run([]string{"-c", configPath, "status"}, strings.NewReader(""), &stdout, &stderr)
	require.Equal(t, exitOK, code, stderr.String())
	assert.Contains(t, stdout.String(), `"signedIn": true`)

	stdout.Reset()
	code = run([]string{"-c", configPath, "logout"}, strings.NewReader(""), &stdout, &stderr)
	require.Equal(t, exitOK, code, stderr.String())

	stdout.Reset()
	code = run([]string{"-c", configPath, "status"}, strings.NewReader(""), &stdout, &stderr)
	require.Equal(t, exitOK, code, stderr.String())
	assert.Contains(t, stdout.String(), `"signedIn": false`)
}

func TestRun_LoginRejected(t *testing.T) {
	srv := httptest.NewServer((&backend{}).handler(t))
	defer srv.Close()
	configPath := writeConfig(t, srv.URL)

	var stderr bytes.Buffer
	code := run([]string{"-c", configPath, "login", "-u", "alice", "-p", "wrong"}, strings.NewReader(""), &bytes.Buffer{}, &stderr)
	assert.Equal(t, exitError, code)
	assert.Contains(t, stderr.String(), "Invalid credentials")

	code = run([]string{"-c", configPath, "login"}, strings.NewReader(""), &bytes.Buffer{}, &bytes.Buffer{})
	assert.Equal(t, exitUsage, code)
}

func TestRun_SessionEndedWithoutCredentials(t *testing.T) {
	srv := httptest.NewServer((&backend{}).handler(t))
	defer srv.Close()
	configPath := writeConfig(t, srv.URL)

	var stderr bytes.Buffer
	code := run([]string{"-c", configPath, "meters"}, strings.NewReader(""), &bytes.Buffer{}, &stderr)
	assert.Equal(t, exitError, code)
	assert.Equal(t, 1, strings.Count(stderr.String(), "Your session has ended"))
}

func TestReadSecret_NonTerminalInput(t *testing.T) {
	secret, err := readSecret(strings.NewReader("s3cret\r\nignored\n"), &bytes.Buffer{})
	require.NoError(t, err)
	assert.Equal(t, "s3cret", secret)

	secret, err = readSecret(strings.NewReader("no-newline"), &bytes.Buffer{})
	require.NoError(t, err)
	assert.Equal(t, "no-newline", secret)

	// A pipe is an *os.File but not a terminal.
	r, w, err := os.Pipe()
	require.NoError(t, err)
	defer r.Close()
	_, err = w.WriteString("piped\n")
	require.NoError(t, err)
	require.NoError(t, w.Close())

	var prompt bytes.Buffer
	secret, err = readSecret(r, &prompt)
	require.NoError(t, err)
	assert.Equal(t, "piped", secret)
	assert.Empty(t, prompt.String())
}

func deviceConfigBackend(t *testing.T) (*httptest.Server, *rsa.PrivateKey) {
	t.Helper()
	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	der, err := x509.MarshalPKIXPublicKey(&priv.PublicKey)
	require.NoError(t, err)

	mux := http.NewServeMux()
	mux.HandleFunc(fmt.Sprintf(constants.DeviceConfigPath, "dev-1"), func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(models.DeviceConfigRecord{
			PublicKey:             base64.StdEncoding.EncodeToString(der),
			EncryptedMqttUsername: "u",
			EncryptedMqttPassword: "p",
		})
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, priv
}

func decryptField(t *testing.T, priv *rsa.PrivateKey, ciphertext string) string {
	t.Helper()
	raw, err := base64.StdEncoding.DecodeString(ciphertext)
	require.NoError(t, err)
	plain, err := rsa.DecryptOAEP(sha256.New(), rand.Reader, priv, raw, nil)
	require.NoError(t, err)
	return string(plain)
}

func TestRun_ExportConfig(t *testing.T) {
	srv, priv := deviceConfigBackend(t)
	// The configured sink is overridden on the command line.
	configPath := writeConfig(t, srv.URL, "device_config:\n  sinks: [s3]\n")
	out := t.TempDir()

	var stdout, stderr bytes.Buffer
	code := run([]string{"-c", configPath, "export-config", "--device", "dev-1", "--ssid", "home-wifi", "--sink", "file", "-o", out},
		strings.NewReader("wifipass123\n"), &stdout, &stderr)
	require.Equal(t, exitOK, code, stderr.String())
	assert.Contains(t, stderr.String(), "Wi-Fi password: ")

	var artifacts []models.Artifact
	require.NoError(t, json.Unmarshal(stdout.Bytes(), &artifacts))
	require.Len(t, artifacts, 1)
	assert.Equal(t, "file", artifacts[0].Sink)

	data, err := os.ReadFile(filepath.Join(out, constants.DefaultDeviceConfigFileName))
	require.NoError(t, err)
	var doc map[string]string
	require.NoError(t, json.Unmarshal(data, &doc))

	assert.Len(t, doc, 4)
	assert.NotEqual(t, "home-wifi", doc["wifiSSID"])
	assert.NotEqual(t, "wifipass123", doc["wifiPassword"])
	assert.Equal(t, "home-wifi", decryptField(t, priv, doc["wifiSSID"]))
	assert.Equal(t, "wifipass123", decryptField(t, priv, doc["wifiPassword"]))
	assert.Equal(t, "u", doc["mqttUsername"])
	assert.Equal(t, "p", doc["mqttPassword"])
}

func TestRun_ExportConfig_UsageErrors(t *testing.T) {
	srv, _ := deviceConfigBackend(t)
	configPath := writeConfig(t, srv.URL)
	out := t.TempDir()

	code := run([]string{"-c", configPath, "export-config", "--device", "dev-1", "--ssid", "", "-o", out},
		strings.NewReader(""), &bytes.Buffer{}, &bytes.Buffer{})
	assert.Equal(t, exitUsage, code)

	code = run([]string{"-c", configPath, "export-config", "--ssid", "home-wifi", "--password", "x", "-o", out},
		strings.NewReader(""), &bytes.Buffer{}, &bytes.Buffer{})
	assert.Equal(t, exitUsage, code)

	code = run([]string{"-c", configPath, "export-config", "--device", "dev-1", "--ssid", "home-wifi", "--password", "x", "--sink", "ftp", "-o", out},
		strings.NewReader(""), &bytes.Buffer{}, &bytes.Buffer{})
	assert.Equal(t, exitUsage, code)

	_, err := os.Stat(filepath.Join(out, constants.DefaultDeviceConfigFileName))
	assert.True(t, os.IsNotExist(err), "no file is written on usage errors")
}
