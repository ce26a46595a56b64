package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	. "github.com/Cogwheel-Validator/spectra-trade/trader/config"
	"github.com/zeebo/assert"
)

// helper to reset env vars with TRADER_ prefix between tests
func unsetTraderEnv() {
	for _, e := range os.Environ() {
		if strings.HasPrefix(e, "TRADER_") {
			if idx := strings.Index(e, "="); idx != -1 {
				_ = os.Unsetenv(e[:idx])
			}
		}
	}
}

// chdirTemp runs the test in an empty dir so godotenv does not pick up a stray .env
func chdirTemp(t *testing.T) {
	t.Helper()
	origWd, _ := os.Getwd()
	t.Cleanup(func() { _ = os.Chdir(origWd) })
	_ = os.Chdir(t.TempDir())
}

func TestLoadRPCTraderConfig_FromEnv_Success(t *testing.T) {
	unsetTraderEnv()
	chdirTemp(t)
	t.Setenv("TRADER_PORT", "8080")
	t.Setenv("TRADER_HOST", "0.0.0.0")
	t.Setenv("TRADER_ALLOWED_ORIGINS", "*")
	t.Setenv("TRADER_SQS_URLS", "https://sqs.osmosis.zone,https://sqs.backup.zone")
	t.Setenv("TRADER_CHAIN_REST_URL", "https://lcd.osmosis.zone")
	t.Setenv("TRADER_TLS_CERT_FILE", "/etc/trader/cert.pem")
	t.Setenv("TRADER_TLS_KEY_FILE", "/etc/trader/key.pem")

	cfg, err := LoadRPCTraderConfig(nil)
	assert.NoError(t, err)
	assert.NotNil(t, cfg)
	assert.Equal(t, cfg.Port, 8080)
	assert.Equal(t, cfg.Host, "0.0.0.0")
	assert.Equal(t, len(cfg.SqsURLs), 2)
	assert.Equal(t, cfg.ChainRestURL, "https://lcd.osmosis.zone")
	assert.Equal(t, cfg.TLSCertFile, "/etc/trader/cert.pem")
	assert.Equal(t, cfg.TLSKeyFile, "/etc/trader/key.pem")
	// defaults
	assert.Equal(t, cfg.ServiceName, "spectra-trade")
	assert.Equal(t, cfg.Bech32Prefix, "osmo")
}

func TestLoadRPCTraderConfig_FromEnv_FailVerification(t *testing.T) {
	unsetTraderEnv()
	chdirTemp(t)

	// missing HOST
	t.Setenv("TRADER_PORT", "8080")
	t.Setenv("TRADER_ALLOWED_ORIGINS", "*")
	t.Setenv("TRADER_SQS_URLS", "https://sqs.osmosis.zone")

	_, err := LoadRPCTraderConfig(nil)
	assert.Error(t, err)
}

func TestLoadRPCTraderConfig_FromFile_Success(t *testing.T) {
	unsetTraderEnv()

	path := filepath.Join(t.TempDir(), "rpc_config.toml")
	content := `
port = 9090
host = "127.0.0.1"
allowed_origins = ["https://app.example.com"]
sqs_urls = ["https://sqs.osmosis.zone"]
chain_rest_url = "https://lcd.osmosis.zone"
rate_per_minute = 120
`
	assert.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg, err := LoadRPCTraderConfig(&path)
	assert.NoError(t, err)
	assert.Equal(t, cfg.Port, 9090)
	assert.Equal(t, cfg.Host, "127.0.0.1")
	assert.DeepEqual(t, cfg.AllowedOrigins, []string{"https://app.example.com"})
	assert.Equal(t, cfg.ChainRestURL, "https://lcd.osmosis.zone")
	assert.Equal(t, cfg.RatePerMinute, 120)
}

func TestLoadRPCTraderConfig_FromFile_WrongExtension(t *testing.T) {
	unsetTraderEnv()
	p := "config.yaml"
	_, err := LoadRPCTraderConfig(&p)
	assert.Error(t, err)
}

func TestLoadRPCTraderConfig_FromFile_BadSqsURL(t *testing.T) {
	unsetTraderEnv()

	path := filepath.Join(t.TempDir(), "rpc_config.toml")
	content := `
port = 9090
host = "127.0.0.1"
allowed_origins = ["*"]
sqs_urls = ["not a url"]
`
	assert.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	_, err := LoadRPCTraderConfig(&path)
	assert.Error(t, err)
}

func TestLoadRPCTraderConfig_FromFile_Invalid(t *testing.T) {
	unsetTraderEnv()

	base := `
port = 9090
host = "127.0.0.1"
allowed_origins = ["*"]
sqs_urls = ["https://sqs.osmosis.zone"]
`
	tests := []struct {
		name    string
		extra   string
		wantErr string
	}{
		{"missing chain rest url", ``, "chain_rest_url is required"},
		{"chain rest url without scheme", `chain_rest_url = "lcd.osmosis.zone"`, "invalid chain_rest_url"},
		{"tls cert without key", "chain_rest_url = \"https://lcd.osmosis.zone\"\ntls_cert_file = \"cert.pem\"", "must be set together"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "rpc_config.toml")
			assert.NoError(t, os.WriteFile(path, []byte(base+tt.extra+"\n"), 0o600))

			_, err := LoadRPCTraderConfig(&path)
			assert.Error(t, err)
			assert.True(t, strings.Contains(err.Error(), tt.wantErr))
		})
	}
}

func TestLoadRPCTraderConfig_ReportsAllProblems(t *testing.T) {
	unsetTraderEnv()
	chdirTemp(t)
	t.Setenv("TRADER_PORT", "0")

	_, err := LoadRPCTraderConfig(nil)
	assert.Error(t, err)
	for _, want := range []string{"port", "host is required", "allowed_origins", "sqs_urls", "chain_rest_url"} {
		assert.True(t, strings.Contains(err.Error(), want))
	}
}
