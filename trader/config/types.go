package config

type RPCTraderConfig struct {
	// rpc configs
	Port int    `toml:"port" mapstructure:"port"`
	Host string `toml:"host" mapstructure:"host"`

	// CORS configs
	AllowedOrigins []string `toml:"allowed_origins" mapstructure:"allowed_origins"`

	// rate limiting configs
	RatePerMinute         int `toml:"rate_per_minute" mapstructure:"rate_per_minute"`
	MaxConcurrentRequests int `toml:"max_concurrent_requests" mapstructure:"max_concurrent_requests"`

	// OpenTelemetry configs
	ServiceName    string `toml:"service_name" mapstructure:"service_name"`
	ServiceVersion string `toml:"service_version" mapstructure:"service_version"`
	Environment    string `toml:"environment" mapstructure:"environment"` // PROD, DEV, TEST, LOCAL
	EnableTracing  bool   `toml:"enable_tracing" mapstructure:"enable_tracing"`
	UseOTLPTraces  bool   `toml:"use_otlp_traces" mapstructure:"use_otlp_traces"`
	OTLPTracesURL  string `toml:"otlp_traces_url" mapstructure:"otlp_traces_url"`
	EnableMetrics  bool   `toml:"enable_metrics" mapstructure:"enable_metrics"`
	UsePrometheus  bool   `toml:"use_prometheus" mapstructure:"use_prometheus"`
	UseOTLPMetrics bool   `toml:"use_otlp_metrics" mapstructure:"use_otlp_metrics"`
	OTLPMetricsURL string `toml:"otlp_metrics_url" mapstructure:"otlp_metrics_url"`
	EnableLogs     bool   `toml:"enable_logs" mapstructure:"enable_logs"`
	UseOTLPLogs    bool   `toml:"use_otlp_logs" mapstructure:"use_otlp_logs"`
	OTLPLogsURL    string `toml:"otlp_logs_url" mapstructure:"otlp_logs_url"`

	InsecureOTLP bool `toml:"insecure_otlp" mapstructure:"insecure_otlp"`

	// Development mode uses stdout exporters
	DevelopmentMode bool `toml:"development_mode" mapstructure:"development_mode"`

	// Osmosis SQS config, first url is the primary
	SqsURLs []string `toml:"sqs_urls" mapstructure:"sqs_urls"`

	// Chain REST endpoint used to broadcast signed transactions
	ChainRestURL string `toml:"chain_rest_url" mapstructure:"chain_rest_url"`
	// Bech32 prefix of the trading chain accounts
	Bech32Prefix string `toml:"bech32_prefix" mapstructure:"bech32_prefix"`

	// TLS is served when both are set
	TLSCertFile string `toml:"tls_cert_file" mapstructure:"tls_cert_file"`
	TLSKeyFile  string `toml:"tls_key_file" mapstructure:"tls_key_file"`
}

// TradeClassSettings holds the settings of one trade class.
type TradeClassSettings struct {
	// Slippage is the tolerance in percent, kept as a string so it
	// can be parsed into a decimal without float rounding (e.g. "1" = 1%)
	Slippage   string `toml:"slippage" json:"slippage"`
	MaxRetries int    `toml:"max_retries" json:"max_retries"`
}

// TradeSettings is the process wide trade configuration.
// Values are treated as immutable snapshots, see the settings package.
type TradeSettings struct {
	Trade TradeClassSettings `toml:"trade" json:"trade"`
	Twap  TradeClassSettings `toml:"twap" json:"twap"`
}

// AssetConfig describes a tradable asset
type AssetConfig struct {
	ID       string `toml:"id" json:"id"`
	Symbol   string `toml:"symbol" json:"symbol"`
	Decimals int32  `toml:"decimals" json:"decimals"`
}

// TradeConfig is the on disk format of the trade config file
type TradeConfig struct {
	Settings TradeSettings `toml:"settings" json:"settings"`
	Assets   []AssetConfig `toml:"assets" json:"assets"`
}

// DefaultTradeSettings mirrors the values the trading UI ships with
func DefaultTradeSettings() TradeSettings {
	return TradeSettings{
		Trade: TradeClassSettings{Slippage: "1", MaxRetries: 5},
		Twap:  TradeClassSettings{Slippage: "3", MaxRetries: 5},
	}
}
