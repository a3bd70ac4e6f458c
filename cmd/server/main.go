// Package main wires the wallet-tracking and paper-trading service together
// and runs it until terminated: ingest, position management, discovery and
// provider-health probing all run as Supervisor-driven ticker jobs behind a
// single HTTP/WebSocket boundary.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/chainscout/walletrader/internal/api"
	"github.com/chainscout/walletrader/internal/apistatus"
	"github.com/chainscout/walletrader/internal/chainclient"
	"github.com/chainscout/walletrader/internal/config"
	"github.com/chainscout/walletrader/internal/discovery"
	"github.com/chainscout/walletrader/internal/priceoracle"
	"github.com/chainscout/walletrader/internal/risk"
	"github.com/chainscout/walletrader/internal/scheduler"
	"github.com/chainscout/walletrader/internal/store"
	"github.com/chainscout/walletrader/internal/supervisor"
	"github.com/chainscout/walletrader/internal/trading"
	"github.com/chainscout/walletrader/pkg/types"
)

const (
	httpReadTimeout  = 15 * time.Second
	httpWriteTimeout = 15 * time.Second
)

func main() {
	logLevel := flag.String("log-level", "", "Log level (debug, info, warn, error); overrides LOG_LEVEL")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	level := cfg.LogLevel
	if *logLevel != "" {
		level = *logLevel
	}
	logger := setupLogger(level)
	defer logger.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := store.Open(ctx, cfg.DatabaseURL, logger)
	if err != nil {
		logger.Fatal("open store", zap.Error(err))
	}
	defer db.Close()

	oracle := priceoracle.New(priceoracle.Config{
		CoinGeckoKey:     cfg.CoinGeckoKey,
		CoinMarketCapKey: cfg.CoinMarketCapKey,
	}, logger)

	evmClient := chainclient.NewEVMClient(cfg.EVMExplorerKey, "", logger)
	solanaRPCURL := "https://api.mainnet-beta.solana.com"
	if cfg.SolanaRPCKey != "" {
		solanaRPCURL = cfg.SolanaRPCKey
	}
	solanaClient := chainclient.NewSolanaClient(solanaRPCURL, logger)

	clients := map[types.Chain]chainclient.ChainClient{
		types.ChainEthereum: evmClient,
		types.ChainBase:     evmClient,
		types.ChainArbitrum: evmClient,
		types.ChainOptimism: evmClient,
		types.ChainPolygon:  evmClient,
		types.ChainSolana:   solanaClient,
	}

	sched := scheduler.New(logger)

	riskManager := risk.New(risk.DefaultConfig(), logger)

	engine := trading.New(db, oracle, riskManager, trading.Config{
		TotalCapital:         cfg.TotalCapital,
		VolumeBreakoutWindow: cfg.VolumeBreakoutWindow,
	}, logger)

	disc := discovery.New(db, discovery.Config{
		DailyLimit:         cfg.DiscoveryDailyLimit,
		PumpTimeframe:      cfg.DiscoveryPumpTimeframe,
		PumpThreshold:      cfg.DiscoveryPumpThreshold,
		EarlyBuyThreshold:  cfg.DiscoveryEarlyBuyThreshold,
		MinTrades:          cfg.DiscoveryMinTrades,
		MinWinRate:         cfg.DiscoveryMinWinRate,
		MinProfitUSD:       cfg.DiscoveryMinProfitUSD,
	}, logger)

	monitor := apistatus.New(buildProviders(cfg), logger)

	sup := supervisor.New(db, sched, clients, engine, disc, monitor, supervisor.Config{
		IngestInterval:   time.Duration(cfg.TrackingIntervalSec) * time.Second,
		ManageInterval:   time.Duration(cfg.ManageIntervalSec) * time.Second,
		DiscoverInterval: time.Duration(cfg.DiscoverIntervalHours) * time.Hour,
		MetricsInterval:  time.Duration(cfg.MetricsIntervalMinutes) * time.Minute,
		InterChainSettle: time.Duration(cfg.InterChainSettleMS) * time.Millisecond,
		ShutdownGrace:    time.Duration(cfg.ShutdownGraceSec) * time.Second,
	}, logger)

	hub := api.NewHub(logger)
	go hub.Run()

	server := api.NewServer(logger, api.Config{
		Addr:            cfg.ServerAddr,
		APIKey:          cfg.APIKey,
		CORSOrigin:      cfg.CORSOrigin,
		TotalCapital:    cfg.TotalCapital,
		MockMode:        cfg.MockMode,
		RateLimitWindow: cfg.RateLimitWindow,
		RateLimitMax:    cfg.RateLimitMax,
		ReadTimeout:     httpReadTimeout,
		WriteTimeout:    httpWriteTimeout,
	}, db, sup, monitor, hub)

	go func() {
		logger.Info("supervisor starting")
		sup.Run(ctx)
	}()

	go func() {
		if err := server.Start(); err != nil {
			logger.Error("server error", zap.Error(err))
		}
	}()

	logger.Info("walletrader started", zap.String("addr", cfg.ServerAddr), zap.Bool("mock_mode", cfg.MockMode))

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	logger.Info("shutdown signal received")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	sup.Stop(shutdownCtx)

	if err := server.Stop(shutdownCtx); err != nil {
		logger.Error("error during server shutdown", zap.Error(err))
	}

	logger.Info("walletrader stopped")
}

// buildProviders assembles the external dependency list apistatus probes.
// Keys left blank still get a provider entry since the public endpoints
// answer unauthenticated, just at a lower rate limit.
func buildProviders(cfg *config.Config) []apistatus.Provider {
	solanaRPCURL := "https://api.mainnet-beta.solana.com"
	if cfg.SolanaRPCKey != "" {
		solanaRPCURL = cfg.SolanaRPCKey
	}

	return []apistatus.Provider{
		{
			Name:  "evm_explorer",
			Tier:  types.ProviderTierCritical,
			Probe: apistatus.NewHTTPProbe("https://api.etherscan.io/v2/api?chainid=1&module=stats&action=ethsupply"),
		},
		{
			Name:  "solana_rpc",
			Tier:  types.ProviderTierCritical,
			Probe: apistatus.NewJSONRPCProbe(solanaRPCURL, "getHealth"),
		},
		{
			Name:      "solana_indexer",
			Tier:      types.ProviderTierCritical,
			DependsOn: "solana_rpc",
			Probe:     apistatus.NewJSONRPCProbe(solanaRPCURL, "getSlot"),
		},
		{
			Name:  "coingecko",
			Tier:  types.ProviderTierOptional,
			Probe: apistatus.NewHTTPProbe("https://api.coingecko.com/api/v3/ping"),
		},
		{
			Name:  "coinmarketcap",
			Tier:  types.ProviderTierOptional,
			Probe: apistatus.NewHTTPProbe("https://pro-api.coinmarketcap.com/v1/key/info"),
		},
		{
			Name:  "dexscreener",
			Tier:  types.ProviderTierOptional,
			Probe: apistatus.NewHTTPProbe("https://api.dexscreener.com/latest/dex/search?q=SOL"),
		},
	}
}

func setupLogger(level string) *zap.Logger {
	var zapLevel zapcore.Level
	switch level {
	case "debug":
		zapLevel = zapcore.DebugLevel
	case "info":
		zapLevel = zapcore.InfoLevel
	case "warn":
		zapLevel = zapcore.WarnLevel
	case "error":
		zapLevel = zapcore.ErrorLevel
	default:
		zapLevel = zapcore.InfoLevel
	}

	cfg := zap.Config{
		Level:       zap.NewAtomicLevelAt(zapLevel),
		Development: false,
		Encoding:    "console",
		EncoderConfig: zapcore.EncoderConfig{
			TimeKey:        "time",
			LevelKey:       "level",
			NameKey:        "logger",
			CallerKey:      "caller",
			MessageKey:     "msg",
			StacktraceKey:  "stacktrace",
			LineEnding:     zapcore.DefaultLineEnding,
			EncodeLevel:    zapcore.CapitalColorLevelEncoder,
			EncodeTime:     zapcore.ISO8601TimeEncoder,
			EncodeDuration: zapcore.SecondsDurationEncoder,
			EncodeCaller:   zapcore.ShortCallerEncoder,
		},
		OutputPaths:      []string{"stdout"},
		ErrorOutputPaths: []string{"stderr"},
	}

	logger, err := cfg.Build()
	if err != nil {
		panic(err)
	}
	return logger
}
