// Package config loads and validates the relay service configuration, either
// from a TOML file or from RELAY_-prefixed environment variables.
package config

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/Kinetic-Labs/kinetic-relay/settlement"
)

// LoadRelayConfig loads the relay config from the given path, or from the
// environment when the path is nil.
func LoadRelayConfig(configPath *string) (*RelayConfig, error) {
	v := viper.New()

	if configPath == nil {
		// if no file expect envs
		config, err := loadEnv(v)
		if err != nil {
			return nil, fmt.Errorf("failed to load env config: %w", err)
		}
		return config, nil
	}
	config, err := loadFile(v, *configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load file config: %w", err)
	}
	return config, nil
}

func loadEnv(v *viper.Viper) (*RelayConfig, error) {
	// godotenv might fail if the .env file is missing but env can be applied
	// through docker, systemd or other means, so skip the error
	_ = godotenv.Load()
	v.SetEnvPrefix("RELAY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	bindEnvKeys(v)

	var config RelayConfig
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal env config: %w", err)
	}
	if err := verifyConfig(&config); err != nil {
		return nil, fmt.Errorf("failed to verify config: %w", err)
	}
	return &config, nil
}

// bindEnvKeys binds each config key to its env var so Unmarshal sees env values
// when no config file is loaded (env-only mode).
func bindEnvKeys(v *viper.Viper) {
	keys := []string{
		"port", "host", "allowed_origins",
		"rate_per_minute", "max_concurrent_requests",
		"sponsor_chain_list", "max_per_day", "max_per_hour", "signer_key_env",
		"fee_basis_points", "fee_recipient",
		"registry_path", "price_api_urls", "oracle_update_fee_wei",
		"service_name", "service_version", "environment",
		"enable_tracing", "use_otlp_traces", "otlp_traces_url",
		"enable_metrics", "use_prometheus", "use_otlp_metrics", "otlp_metrics_url",
		"enable_logs", "use_otlp_logs", "otlp_logs_url",
		"insecure_otlp", "development_mode",
	}
	for _, k := range keys {
		_ = v.BindEnv(k)
	}
}

func loadFile(v *viper.Viper, configPath string) (*RelayConfig, error) {
	if !strings.HasSuffix(configPath, ".toml") {
		return nil, fmt.Errorf("config file must be a toml file")
	}

	v.SetConfigFile(configPath)
	v.SetConfigType("toml")

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config RelayConfig
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := verifyConfig(&config); err != nil {
		return nil, fmt.Errorf("failed to verify config: %w", err)
	}

	return &config, nil
}

func verifyConfig(config *RelayConfig) error {
	if config.Port <= 0 || config.Port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535")
	}

	if config.Host == "" {
		return fmt.Errorf("host is required")
	}

	if len(config.AllowedOrigins) == 0 {
		return fmt.Errorf("allowed_origins is required")
	}

	if len(config.SponsorChains) == 0 && len(config.SponsorChainList) > 0 {
		chains, err := parseSponsorChainList(config.SponsorChainList)
		if err != nil {
			return err
		}
		config.SponsorChains = chains
	}
	if len(config.SponsorChains) == 0 {
		return fmt.Errorf("sponsor_chains is required")
	}
	seen := make(map[uint64]bool, len(config.SponsorChains))
	for _, sc := range config.SponsorChains {
		if sc.ChainID == 0 {
			return fmt.Errorf("sponsor chain id must not be zero")
		}
		if seen[sc.ChainID] {
			return fmt.Errorf("duplicate sponsor chain %d", sc.ChainID)
		}
		seen[sc.ChainID] = true
		if !common.IsHexAddress(sc.SponsorContract) {
			return fmt.Errorf("sponsor chain %d: malformed sponsor_contract %q", sc.ChainID, sc.SponsorContract)
		}
		if sc.BundlerURL == "" {
			return fmt.Errorf("sponsor chain %d: bundler_url is required", sc.ChainID)
		}
	}

	if config.MaxPerDay <= 0 {
		return fmt.Errorf("max_per_day must be positive")
	}
	if config.MaxPerHour <= 0 {
		return fmt.Errorf("max_per_hour must be positive")
	}
	if config.MaxPerHour > config.MaxPerDay {
		return fmt.Errorf("max_per_hour must not exceed max_per_day")
	}

	if config.SignerKeyEnv == "" {
		return fmt.Errorf("signer_key_env is required")
	}

	if config.FeeBasisPoints > settlement.MaxFeeBasisPoints {
		return fmt.Errorf("fee_basis_points must not exceed %d", settlement.MaxFeeBasisPoints)
	}
	if config.FeeRecipient != "" && !common.IsHexAddress(config.FeeRecipient) {
		return fmt.Errorf("malformed fee_recipient %q", config.FeeRecipient)
	}

	if config.RegistryPath == "" {
		return fmt.Errorf("registry_path is required")
	}

	if len(config.PriceAPIURLs) == 0 {
		return fmt.Errorf("price_api_urls is required")
	}
	for _, url := range config.PriceAPIURLs {
		if url == "" {
			return fmt.Errorf("price_api_urls must not be empty")
		}
	}

	if config.OracleUpdateFeeWei < 0 {
		return fmt.Errorf("oracle_update_fee_wei must not be negative")
	}

	return nil
}

// parseSponsorChainList decodes "chainID:sponsorContract:bundlerURL" entries.
// The bundler URL may itself contain colons, so only the first two separators
// split.
func parseSponsorChainList(entries []string) ([]SponsorChainConfig, error) {
	chains := make([]SponsorChainConfig, 0, len(entries))
	for _, entry := range entries {
		parts := strings.SplitN(entry, ":", 3)
		if len(parts) != 3 {
			return nil, fmt.Errorf("malformed sponsor chain entry %q, want chainID:contract:bundlerURL", entry)
		}
		chainID, err := strconv.ParseUint(parts[0], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("malformed chain id in sponsor chain entry %q: %w", entry, err)
		}
		chains = append(chains, SponsorChainConfig{
			ChainID:         chainID,
			SponsorContract: parts[1],
			BundlerURL:      parts[2],
		})
	}
	return chains, nil
}
