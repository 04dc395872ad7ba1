package main

import (
	"context"
	"flag"
	"math/big"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/Kinetic-Labs/kinetic-relay/config"
	"github.com/Kinetic-Labs/kinetic-relay/planner"
	"github.com/Kinetic-Labs/kinetic-relay/planner/adapters"
	"github.com/Kinetic-Labs/kinetic-relay/planner/adapters/venueapi"
	"github.com/Kinetic-Labs/kinetic-relay/registry"
	"github.com/Kinetic-Labs/kinetic-relay/rpc"
	"github.com/Kinetic-Labs/kinetic-relay/settlement"
	"github.com/Kinetic-Labs/kinetic-relay/sponsor"
)

var log zerolog.Logger

func init() {
	// Initialize zerolog with console writer
	out := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
	log = zerolog.New(out).With().Timestamp().Logger()

	// Share the logger with the service packages
	rpc.SetLogger(log)
	sponsor.SetLogger(log)
	planner.SetLogger(log)
	venueapi.SetLogger(log)
}

func main() {
	configPath := flag.String("config", "./relay-config.toml", "config file for the relay service; empty loads from RELAY_* env vars")
	flag.Parse()

	log.Info().Str("config", *configPath).Msg("Starting Kinetic Relay")

	var pathArg *string
	if *configPath != "" {
		pathArg = configPath
	}
	cfg, err := config.LoadRelayConfig(pathArg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load config")
	}

	// Adapter registry
	reg, err := registry.Load(cfg.RegistryPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load adapter registry")
	}
	log.Info().Int("chains", len(reg.Chains())).Msg("Loaded adapter registry")

	// One HTTP client per protocol; extra endpoints for the same protocol
	// become failover backups.
	venues, bridges, clients, err := buildAdapterClients(reg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to build adapter clients")
	}
	log.Info().
		Int("swap_venues", len(venues)).
		Int("bridges", len(bridges)).
		Msg("Adapter clients initialized")

	// Price oracle client feeding the scorer
	priceClient, err := venueapi.NewClientWithFailover(
		"price-oracle",
		cfg.PriceAPIURLs[0],
		cfg.PriceAPIURLs[1:],
		venueapi.DefaultFailoverConfig(),
	)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to build price client")
	}
	clients = append(clients, priceClient)

	scorer := planner.NewScorer(
		oracleValueFunc(priceClient),
		priceClient.GasPrice,
		big.NewInt(cfg.OracleUpdateFeeWei),
	)
	routePlanner := planner.New(reg, venues, bridges, scorer)

	// Sponsorship policy engine
	signer, err := sponsor.NewSignerFromEnv(cfg.SignerKeyEnv)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load sponsor signing key")
	}
	limiter := sponsor.NewSlidingLimiter(sponsor.Limits{
		MaxPerDay:  cfg.MaxPerDay,
		MaxPerHour: cfg.MaxPerHour,
	})
	metrics, err := rpc.NewMetrics(prometheus.DefaultRegisterer)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to register metrics")
	}
	sponsorContracts := make(map[uint64]common.Address, len(cfg.SponsorChains))
	for _, sc := range cfg.SponsorChains {
		sponsorContracts[sc.ChainID] = common.HexToAddress(sc.SponsorContract)
	}
	engine := sponsor.NewEngine(sponsorContracts, limiter, signer, metrics)

	log.Info().
		Str("signer", engine.SignerAddress().Hex()).
		Int("chains", len(sponsorContracts)).
		Int("max_per_day", cfg.MaxPerDay).
		Int("max_per_hour", cfg.MaxPerHour).
		Msg("Sponsorship engine initialized")

	fees, err := settlement.NewFeeConfig(cfg.FeeBasisPoints, common.HexToAddress(cfg.FeeRecipient))
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid settlement fee configuration")
	}
	log.Info().
		Uint32("fee_basis_points", fees.FeeBasisPoints).
		Str("fee_recipient", fees.FeeRecipient.Hex()).
		Bool("enabled", fees.Enabled()).
		Msg("Settlement fee schedule loaded")

	serverConfig := buildServerConfig(cfg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	server, err := rpc.NewServer(ctx, serverConfig, engine, routePlanner, fees, metrics)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create server")
	}

	// Setup signal handling for graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		if err := server.Start(); err != nil {
			log.Error().Err(err).Msg("Server error")
			sigCh <- syscall.SIGTERM
		}
	}()

	sig := <-sigCh
	log.Info().Str("signal", sig.String()).Msg("Received shutdown signal")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Shutdown error")
	}

	for _, client := range clients {
		client.Close()
	}
	log.Info().Msg("Adapter clients closed")
}

// buildAdapterClients creates one venueapi client per protocol named in the
// registry. The first URL seen for a protocol is its primary endpoint, the
// rest its backups.
func buildAdapterClients(reg *registry.Registry) (
	map[string]adapters.SwapVenueClient,
	map[string]adapters.BridgeClient,
	[]*venueapi.Client,
	error,
) {
	type protoURLs struct {
		kind registry.Kind
		urls []string
	}
	order := make([]string, 0)
	byProtocol := make(map[string]*protoURLs)
	for _, chainID := range reg.Chains() {
		for _, ep := range append(reg.SwapVenues(chainID), reg.Bridges(chainID)...) {
			entry, ok := byProtocol[ep.Protocol]
			if !ok {
				entry = &protoURLs{kind: ep.Kind}
				byProtocol[ep.Protocol] = entry
				order = append(order, ep.Protocol)
			}
			if !contains(entry.urls, ep.URL) {
				entry.urls = append(entry.urls, ep.URL)
			}
		}
	}

	venues := make(map[string]adapters.SwapVenueClient)
	bridges := make(map[string]adapters.BridgeClient)
	clients := make([]*venueapi.Client, 0, len(order))
	for _, protocol := range order {
		entry := byProtocol[protocol]
		client, err := venueapi.NewClientWithFailover(
			protocol, entry.urls[0], entry.urls[1:], venueapi.DefaultFailoverConfig())
		if err != nil {
			for _, c := range clients {
				c.Close()
			}
			return nil, nil, nil, err
		}
		clients = append(clients, client)
		switch entry.kind {
		case registry.KindSwap:
			venues[protocol] = client
		case registry.KindBridge:
			bridges[protocol] = client
		}
	}
	return venues, bridges, clients, nil
}

// oracleValueFunc values an amount via the price API: price per whole
// 18-decimal token unit times the amount.
func oracleValueFunc(client *venueapi.Client) planner.ValueFunc {
	unit := decimal.New(1, 18)
	return func(ctx context.Context, chainID uint64, token common.Address, amount *big.Int) (decimal.Decimal, error) {
		price, err := client.TokenPrice(ctx, chainID, token)
		if err != nil {
			return decimal.Zero, err
		}
		return decimal.NewFromBigInt(amount, 0).Div(unit).Mul(price), nil
	}
}

// buildServerConfig converts the loaded RelayConfig to rpc.ServerConfig
func buildServerConfig(cfg *config.RelayConfig) *rpc.ServerConfig {
	serverConfig := &rpc.ServerConfig{
		Address:        cfg.Host + ":" + strconv.Itoa(cfg.Port),
		AllowedOrigins: cfg.AllowedOrigins,
		EnableMetrics:  cfg.UsePrometheus,
	}

	if cfg.RatePerMinute > 0 {
		serverConfig.RatePerMinute = &cfg.RatePerMinute
	}
	if cfg.MaxConcurrentRequests > 0 {
		serverConfig.MaxConcurrentRequests = &cfg.MaxConcurrentRequests
	}

	// Set OpenTelemetry configuration if any telemetry is enabled
	if cfg.EnableTracing || cfg.EnableMetrics || cfg.EnableLogs || cfg.UsePrometheus {
		serverConfig.OTelConfig = &rpc.OTelConfig{
			ServiceName:     defaultString(cfg.ServiceName, "kinetic-relay"),
			ServiceVersion:  defaultString(cfg.ServiceVersion, "1.0.0"),
			Environment:     defaultString(cfg.Environment, "development"),
			EnableTracing:   cfg.EnableTracing,
			UseOTLPTraces:   cfg.UseOTLPTraces,
			OTLPTracesURL:   cfg.OTLPTracesURL,
			EnableMetrics:   cfg.EnableMetrics,
			UsePrometheus:   cfg.UsePrometheus,
			UseOTLPMetrics:  cfg.UseOTLPMetrics,
			OTLPMetricsURL:  cfg.OTLPMetricsURL,
			EnableLogs:      cfg.EnableLogs,
			UseOTLPLogs:     cfg.UseOTLPLogs,
			OTLPLogsURL:     cfg.OTLPLogsURL,
			InsecureOTLP:    cfg.InsecureOTLP,
			DevelopmentMode: cfg.DevelopmentMode,
		}
	}

	return serverConfig
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// defaultString returns the default value if s is empty
func defaultString(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
