// Package config builds the single Config struct the rest of the service is
// wired from. It is constructed once in main and passed down explicitly;
// no component reads the environment itself.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

// Config is the fully-resolved runtime configuration for the service.
type Config struct {
	TotalCapital decimal.Decimal

	TrackingIntervalSec    int
	ManageIntervalSec      int
	DiscoverIntervalHours  int
	MetricsIntervalMinutes int
	InterChainSettleMS     int
	ShutdownGraceSec       int

	EVMExplorerKey   string
	CoinGeckoKey     string
	CoinMarketCapKey string
	SolanaRPCKey     string
	DexProviderKey   string

	APIKey     string
	CORSOrigin string
	LogLevel   string

	RateLimitWindow time.Duration
	RateLimitMax    int

	MockMode bool

	DatabaseURL string

	VolumeBreakoutWindow time.Duration

	ServerAddr string

	DiscoveryDailyLimit        int
	DiscoveryPumpTimeframe     time.Duration
	DiscoveryPumpThreshold     float64
	DiscoveryEarlyBuyThreshold float64
	DiscoveryMinTrades         int
	DiscoveryMinWinRate        decimal.Decimal
	DiscoveryMinProfitUSD      decimal.Decimal
}

// Load reads environment variables, through viper's AutomaticEnv binding,
// into a Config, applying the defaults named in the external interface
// contract. No config or .env file is read.
func Load() (*Config, error) {
	v := viper.New()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("TOTAL_CAPITAL", "10000")
	v.SetDefault("TRACKING_INTERVAL_SEC", 60)
	v.SetDefault("MANAGE_INTERVAL_SEC", 120)
	v.SetDefault("DISCOVER_INTERVAL_HOURS", 6)
	v.SetDefault("METRICS_INTERVAL_MINUTES", 15)
	v.SetDefault("INTER_CHAIN_SETTLE_MS", 500)
	v.SetDefault("SHUTDOWN_GRACE_SEC", 30)
	v.SetDefault("CORS_ORIGIN", "*")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("RATE_LIMIT_WINDOW_MS", 15*60*1000)
	v.SetDefault("RATE_LIMIT_MAX", 100)
	v.SetDefault("MOCK_MODE", false)
	v.SetDefault("DATABASE_URL", "postgres://localhost:5432/walletrader?sslmode=disable")
	v.SetDefault("VOLUME_BREAKOUT_WINDOW_MIN", 60)
	v.SetDefault("SERVER_ADDR", ":8080")
	v.SetDefault("DISCOVERY_DAILY_LIMIT", 15)
	v.SetDefault("DISCOVERY_PUMP_TIMEFRAME_HOURS", 10*24)
	v.SetDefault("DISCOVERY_PUMP_THRESHOLD", 2.5)
	v.SetDefault("DISCOVERY_EARLY_BUY_THRESHOLD", 0.25)
	v.SetDefault("DISCOVERY_MIN_TRADES", 15)
	v.SetDefault("DISCOVERY_MIN_WIN_RATE", "0.55")
	v.SetDefault("DISCOVERY_MIN_PROFIT_USD", "3000")

	capital, err := decimal.NewFromString(v.GetString("TOTAL_CAPITAL"))
	if err != nil {
		return nil, fmt.Errorf("parse TOTAL_CAPITAL: %w", err)
	}
	minWinRate, err := decimal.NewFromString(v.GetString("DISCOVERY_MIN_WIN_RATE"))
	if err != nil {
		return nil, fmt.Errorf("parse DISCOVERY_MIN_WIN_RATE: %w", err)
	}
	minProfit, err := decimal.NewFromString(v.GetString("DISCOVERY_MIN_PROFIT_USD"))
	if err != nil {
		return nil, fmt.Errorf("parse DISCOVERY_MIN_PROFIT_USD: %w", err)
	}

	return &Config{
		TotalCapital:           capital,
		TrackingIntervalSec:    v.GetInt("TRACKING_INTERVAL_SEC"),
		ManageIntervalSec:      v.GetInt("MANAGE_INTERVAL_SEC"),
		DiscoverIntervalHours:  v.GetInt("DISCOVER_INTERVAL_HOURS"),
		MetricsIntervalMinutes: v.GetInt("METRICS_INTERVAL_MINUTES"),
		InterChainSettleMS:     v.GetInt("INTER_CHAIN_SETTLE_MS"),
		ShutdownGraceSec:       v.GetInt("SHUTDOWN_GRACE_SEC"),
		EVMExplorerKey:         v.GetString("EVM_EXPLORER_KEY"),
		CoinGeckoKey:           v.GetString("COINGECKO_KEY"),
		CoinMarketCapKey:       v.GetString("COINMARKETCAP_KEY"),
		SolanaRPCKey:           v.GetString("SOLANA_RPC_KEY"),
		DexProviderKey:         v.GetString("DEX_PROVIDER_KEY"),
		APIKey:                 v.GetString("API_KEY"),
		CORSOrigin:             v.GetString("CORS_ORIGIN"),
		LogLevel:               v.GetString("LOG_LEVEL"),
		RateLimitWindow:        time.Duration(v.GetInt64("RATE_LIMIT_WINDOW_MS")) * time.Millisecond,
		RateLimitMax:           v.GetInt("RATE_LIMIT_MAX"),
		MockMode:               v.GetBool("MOCK_MODE"),
		DatabaseURL:            v.GetString("DATABASE_URL"),
		VolumeBreakoutWindow:   time.Duration(v.GetInt("VOLUME_BREAKOUT_WINDOW_MIN")) * time.Minute,
		ServerAddr:             v.GetString("SERVER_ADDR"),

		DiscoveryDailyLimit:        v.GetInt("DISCOVERY_DAILY_LIMIT"),
		DiscoveryPumpTimeframe:     time.Duration(v.GetInt("DISCOVERY_PUMP_TIMEFRAME_HOURS")) * time.Hour,
		DiscoveryPumpThreshold:     v.GetFloat64("DISCOVERY_PUMP_THRESHOLD"),
		DiscoveryEarlyBuyThreshold: v.GetFloat64("DISCOVERY_EARLY_BUY_THRESHOLD"),
		DiscoveryMinTrades:         v.GetInt("DISCOVERY_MIN_TRADES"),
		DiscoveryMinWinRate:        minWinRate,
		DiscoveryMinProfitUSD:      minProfit,
	}, nil
}
