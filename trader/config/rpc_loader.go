package config

import (
	"errors"
	"fmt"
	"net/url"
	"reflect"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every env var of the RPC trader config, e.g. TRADER_PORT
const EnvPrefix = "TRADER"

// LoadRPCTraderConfig loads the RPC trader config from the given path.
// When configPath is nil the config is read from TRADER_ prefixed env vars.
func LoadRPCTraderConfig(configPath *string) (*RPCTraderConfig, error) {
	v := viper.New()
	v.SetDefault("service_name", "spectra-trade")
	v.SetDefault("service_version", "1.0.0")
	v.SetDefault("environment", "development")
	v.SetDefault("bech32_prefix", "osmo")
	v.SetDefault("max_concurrent_requests", 200)

	source := "env"
	if configPath == nil {
		// .env is optional, envs can also come from docker or systemd
		_ = godotenv.Load()
		v.SetEnvPrefix(EnvPrefix)
		v.AutomaticEnv()
		// AutomaticEnv only covers keys viper already knows, Unmarshal needs them bound
		for _, key := range configKeys() {
			_ = v.BindEnv(key)
		}
	} else {
		source = *configPath
		if !strings.HasSuffix(source, ".toml") {
			return nil, fmt.Errorf("config file must be a toml file: %s", source)
		}
		v.SetConfigFile(source)
		v.SetConfigType("toml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var config RPCTraderConfig
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal %s config: %w", source, err)
	}
	if err := verifyConfig(&config); err != nil {
		return nil, fmt.Errorf("invalid %s config: %w", source, err)
	}
	return &config, nil
}

// configKeys lists the mapstructure keys of RPCTraderConfig
func configKeys() []string {
	t := reflect.TypeOf(RPCTraderConfig{})
	keys := make([]string, 0, t.NumField())
	for i := range t.NumField() {
		if key := t.Field(i).Tag.Get("mapstructure"); key != "" {
			keys = append(keys, key)
		}
	}
	return keys
}

// verifyConfig reports every problem at once
func verifyConfig(config *RPCTraderConfig) error {
	var errs []error

	if config.Port <= 0 || config.Port > 65535 {
		errs = append(errs, errors.New("port must be between 1 and 65535"))
	}
	if config.Host == "" {
		errs = append(errs, errors.New("host is required"))
	}
	if len(config.AllowedOrigins) == 0 {
		errs = append(errs, errors.New("allowed_origins is required"))
	}

	if len(config.SqsURLs) == 0 {
		errs = append(errs, errors.New("sqs_urls is required"))
	}
	for _, u := range config.SqsURLs {
		if err := checkHTTPURL("sqs_urls", u); err != nil {
			errs = append(errs, err)
		}
	}

	// signed transactions are broadcast through it
	if err := checkHTTPURL("chain_rest_url", config.ChainRestURL); err != nil {
		errs = append(errs, err)
	}

	if (config.TLSCertFile == "") != (config.TLSKeyFile == "") {
		errs = append(errs, errors.New("tls_cert_file and tls_key_file must be set together"))
	}

	return errors.Join(errs...)
}

func checkHTTPURL(field, raw string) error {
	if raw == "" {
		return fmt.Errorf("%s is required", field)
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid %s %q: %w", field, raw, err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("invalid %s %q: want an http(s) url", field, raw)
	}
	return nil
}
