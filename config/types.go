package config

// SponsorChainConfig binds a chain id to the sponsor contract deployed on it
// and the bundler endpoint operations are submitted through.
type SponsorChainConfig struct {
	ChainID         uint64 `toml:"chain_id" mapstructure:"chain_id"`
	SponsorContract string `toml:"sponsor_contract" mapstructure:"sponsor_contract"`
	BundlerURL      string `toml:"bundler_url" mapstructure:"bundler_url"`
}

type RelayConfig struct {
	// rpc configs
	Port int    `toml:"port" mapstructure:"port"`
	Host string `toml:"host" mapstructure:"host"`

	// CORS configs
	AllowedOrigins []string `toml:"allowed_origins" mapstructure:"allowed_origins"`

	// HTTP rate limiting configs
	RatePerMinute         int `toml:"rate_per_minute" mapstructure:"rate_per_minute"`
	MaxConcurrentRequests int `toml:"max_concurrent_requests" mapstructure:"max_concurrent_requests"`

	// Sponsorship policy
	SponsorChains []SponsorChainConfig `toml:"sponsor_chains" mapstructure:"sponsor_chains"`
	// SponsorChainList is the env-only encoding of sponsor_chains:
	// "chainID:sponsorContract:bundlerURL" per entry. Parsed into
	// SponsorChains during verification; the TOML table form wins when both
	// are present.
	SponsorChainList []string `toml:"-" mapstructure:"sponsor_chain_list"`
	MaxPerDay        int      `toml:"max_per_day" mapstructure:"max_per_day"`
	MaxPerHour       int      `toml:"max_per_hour" mapstructure:"max_per_hour"`
	// SignerKeyEnv names the environment variable holding the sponsor
	// signing key. The key itself never appears in a config file.
	SignerKeyEnv string `toml:"signer_key_env" mapstructure:"signer_key_env"`

	// Settlement fee
	FeeBasisPoints uint32 `toml:"fee_basis_points" mapstructure:"fee_basis_points"`
	FeeRecipient   string `toml:"fee_recipient" mapstructure:"fee_recipient"`

	// Route planning
	RegistryPath string `toml:"registry_path" mapstructure:"registry_path"`
	// PriceAPIURLs feed the scorer's token price and gas price lookups,
	// first entry primary, the rest failover backups.
	PriceAPIURLs       []string `toml:"price_api_urls" mapstructure:"price_api_urls"`
	OracleUpdateFeeWei int64    `toml:"oracle_update_fee_wei" mapstructure:"oracle_update_fee_wei"`

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
}
