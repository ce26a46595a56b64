package main

import (
	"context"
	"errors"
	"flag"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/Cogwheel-Validator/spectra-trade/trader/chain"
	"github.com/Cogwheel-Validator/spectra-trade/trader/config"
	"github.com/Cogwheel-Validator/spectra-trade/trader/notify"
	"github.com/Cogwheel-Validator/spectra-trade/trader/router"
	"github.com/Cogwheel-Validator/spectra-trade/trader/router/osmosis"
	"github.com/Cogwheel-Validator/spectra-trade/trader/rpc"
	"github.com/Cogwheel-Validator/spectra-trade/trader/settings"
	sqsquery "github.com/Cogwheel-Validator/spectra-trade/trader/sqs_query"
	"github.com/Cogwheel-Validator/spectra-trade/trader/trade"
)

var log zerolog.Logger

func init() {
	out := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
	log = zerolog.New(out).With().Timestamp().Logger()

	// Share the logger with the RPC package
	rpc.SetLogger(log)
}

func main() {
	configRpc := flag.String("config-rpc", "", "config file for the rpc server, TRADER_ env vars are used when empty")
	configTrade := flag.String("config-trade", "./trade-config.toml", "config file with trade settings and assets")
	flag.Parse()

	log.Info().
		Str("rpc_config", *configRpc).
		Str("trade_config", *configTrade).
		Msg("Starting Spectra's Trader")

	var rpcPath *string
	if *configRpc != "" {
		rpcPath = configRpc
	}
	rpcConfig, err := config.LoadRPCTraderConfig(rpcPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load RPC config")
	}

	tradeConfig, err := config.NewTradeConfigLoader().LoadFromFile(*configTrade)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load trade config")
	}
	log.Info().Int("assets", len(tradeConfig.Assets)).Msg("Loaded trade config")

	store, err := settings.NewStore(tradeConfig.Settings)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create settings store")
	}
	assets := router.NewAssetRegistry(tradeConfig.Assets)

	sqsClient, err := sqsquery.NewSqsQueryClient(rpcConfig.SqsURLs)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create SQS client")
	}
	defer sqsClient.Close()
	log.Info().
		Str("primary", rpcConfig.SqsURLs[0]).
		Int("backups", len(rpcConfig.SqsURLs)-1).
		Msg("Osmosis SQS router initialized")

	sqsRouter := osmosis.NewSqsRouter(sqsClient)
	engine := trade.NewEngine(sqsRouter, store, trade.WithPoolLabel(osmosis.SwapVenueName))

	submitter, err := chain.NewRestSubmitter(rpcConfig.ChainRestURL, chain.DefaultSubmitterConfig())
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create transaction submitter")
	}
	center := notify.NewCenter(submitter)
	defer center.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	trader := rpc.NewTradeServer(engine, sqsRouter, assets, sqsClient, store, center, rpcConfig.Bech32Prefix)
	server, err := rpc.NewServer(ctx, buildServerConfig(rpcConfig), trader)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create RPC server")
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		if rpcConfig.TLSCertFile != "" {
			err = server.StartTLS(rpcConfig.TLSCertFile, rpcConfig.TLSKeyFile)
		} else {
			err = server.Start()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("Received shutdown signal")

		// the parent context is already done, shut down on a fresh one
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Error().Err(err).Msg("Server error")
	}
}

// buildServerConfig converts the loaded RPCTraderConfig to rpc.ServerConfig
func buildServerConfig(cfg *config.RPCTraderConfig) *rpc.ServerConfig {
	return &rpc.ServerConfig{
		Address:               net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port)),
		AllowedOrigins:        cfg.AllowedOrigins,
		EnableMetrics:         cfg.UsePrometheus,
		RatePerMinute:         cfg.RatePerMinute,
		MaxConcurrentRequests: cfg.MaxConcurrentRequests,
		Telemetry:             rpc.TelemetryFromConfig(cfg),
	}
}
