// Package discovery mines the token price-peak history for pumped tokens,
// extracts their early buyers, scores the ones with a strong realised
// track record, and surfaces the survivors as DiscoveredWallet candidates
// pending operator promotion.
package discovery

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/chainscout/walletrader/pkg/types"
	"github.com/chainscout/walletrader/pkg/utils"
)

const dailyCounterKey = "discovery_count_today"

// Store is the slice of storage Discovery needs.
type Store interface {
	PumpCandidates(ctx context.Context, sinceUnix int64, pumpThreshold float64) ([]*types.Token, error)
	TransfersByToken(ctx context.Context, tokenAddress string, chain types.Chain, start, end int64) ([]*types.Transfer, error)
	TransfersByWallet(ctx context.Context, address string, chain types.Chain) ([]*types.Transfer, error)
	IsTracked(ctx context.Context, address string, chain types.Chain) (bool, error)
	AddDiscoveredWallet(ctx context.Context, d *types.DiscoveredWallet) error
	GetSystemValue(ctx context.Context, key string) (string, error)
	SetSystemValue(ctx context.Context, key, value string) error
}

// Config is Discovery's tunable surface, sourced from internal/config.Config.
type Config struct {
	DailyLimit        int
	PumpTimeframe     time.Duration
	PumpThreshold     float64
	EarlyBuyThreshold float64
	MinTrades         int
	MinWinRate        decimal.Decimal
	MinProfitUSD      decimal.Decimal
}

// Discovery runs the pump-detection and scoring pipeline, C8 of the system.
type Discovery struct {
	store  Store
	cfg    Config
	logger *zap.Logger
}

// New constructs a Discovery.
func New(store Store, cfg Config, logger *zap.Logger) *Discovery {
	return &Discovery{store: store, cfg: cfg, logger: logger.Named("discovery")}
}

// candidateMetrics is a wallet's realised track record across its full
// transfer history on one chain.
type candidateMetrics struct {
	wallet   string
	chain    types.Chain
	trades   int
	wins     int
	profit   decimal.Decimal
	earliest time.Time
}

// Run executes one discovery cycle, inserting at most the remaining slice
// of today's dailyLimit regardless of how many survivors scored well.
func (d *Discovery) Run(ctx context.Context) (int, error) {
	remaining, err := d.remainingQuota(ctx)
	if err != nil {
		return 0, fmt.Errorf("check daily quota: %w", err)
	}
	if remaining <= 0 {
		d.logger.Info("discovery quota exhausted for today")
		return 0, nil
	}

	since := time.Now().Add(-d.cfg.PumpTimeframe).Unix()
	tokens, err := d.store.PumpCandidates(ctx, since, d.cfg.PumpThreshold)
	if err != nil {
		return 0, fmt.Errorf("pump candidates: %w", err)
	}
	d.logger.Info("scanning pump candidates", zap.Int("tokens", len(tokens)))

	seen := make(map[types.WalletKey]bool)
	var survivors []scoredCandidate

	for _, tok := range tokens {
		buyers, err := d.earlyBuyers(ctx, tok)
		if err != nil {
			d.logger.Warn("failed to extract early buyers", zap.String("token", tok.Address), zap.Error(err))
			continue
		}
		for _, wallet := range buyers {
			key := types.WalletKey{Address: wallet, Chain: tok.Chain}
			if seen[key] {
				continue
			}
			seen[key] = true

			tracked, err := d.store.IsTracked(ctx, wallet, tok.Chain)
			if err != nil {
				d.logger.Warn("failed to check if wallet already tracked", zap.String("wallet", wallet), zap.Error(err))
				continue
			}
			if tracked {
				continue
			}

			metrics, err := d.walletMetrics(ctx, wallet, tok.Chain)
			if err != nil {
				d.logger.Warn("failed to compute wallet metrics", zap.String("wallet", wallet), zap.Error(err))
				continue
			}
			if metrics.trades < d.cfg.MinTrades {
				continue
			}
			winRate := utils.WinRate(metrics.wins, metrics.trades)
			if winRate.LessThan(d.cfg.MinWinRate) {
				continue
			}
			if metrics.profit.LessThan(d.cfg.MinProfitUSD) {
				continue
			}

			survivors = append(survivors, scoredCandidate{
				metrics: metrics,
				winRate: winRate,
				score:   score(winRate, metrics.profit, metrics.trades),
			})
		}
	}

	sort.Slice(survivors, func(i, j int) bool {
		return survivors[i].score.GreaterThan(survivors[j].score)
	})
	if len(survivors) > remaining {
		d.logger.Info("discovery survivors exceed remaining quota, truncating",
			zap.Int("survivors", len(survivors)), zap.Int("remaining", remaining))
		survivors = survivors[:remaining]
	}

	inserted := 0
	for _, sc := range survivors {
		dw := &types.DiscoveredWallet{
			Address:                 sc.metrics.wallet,
			Chain:                   sc.metrics.chain,
			FirstSeen:               sc.metrics.earliest,
			ProfitabilityScore:      sc.score,
			EstimatedWinRate:        sc.winRate,
			TrackedTrades:           sc.metrics.trades,
			SuccessfulTrackedTrades: sc.metrics.wins,
			DiscoveryMethod:         "pump_early_buyer",
		}
		if err := d.store.AddDiscoveredWallet(ctx, dw); err != nil {
			d.logger.Error("failed to insert discovered wallet", zap.String("wallet", dw.Address), zap.Error(err))
			continue
		}
		inserted++
	}

	if inserted > 0 {
		if err := d.consumeQuota(ctx, inserted); err != nil {
			d.logger.Warn("failed to persist updated discovery quota", zap.Error(err))
		}
	}

	d.logger.Info("discovery cycle complete", zap.Int("inserted", inserted))
	return inserted, nil
}

type scoredCandidate struct {
	metrics candidateMetrics
	winRate decimal.Decimal
	score   decimal.Decimal
}

// earlyBuyers finds wallets that bought tok while its price sat in the
// bottom earlyBuyThreshold fraction of the observed price range across the
// token's full transfer history.
func (d *Discovery) earlyBuyers(ctx context.Context, tok *types.Token) ([]string, error) {
	start := tok.FirstSeen.Add(-time.Hour).Unix()
	end := time.Now().Unix()
	transfers, err := d.store.TransfersByToken(ctx, tok.Address, tok.Chain, start, end)
	if err != nil {
		return nil, err
	}

	var minPrice, maxPrice decimal.Decimal
	first := true
	for _, t := range transfers {
		if t.Action != types.ActionBuy || !t.PriceUSD.IsPositive() {
			continue
		}
		if first {
			minPrice, maxPrice = t.PriceUSD, t.PriceUSD
			first = false
			continue
		}
		if t.PriceUSD.LessThan(minPrice) {
			minPrice = t.PriceUSD
		}
		if t.PriceUSD.GreaterThan(maxPrice) {
			maxPrice = t.PriceUSD
		}
	}
	if first || maxPrice.Equal(minPrice) {
		return nil, nil
	}

	threshold := minPrice.Add(maxPrice.Sub(minPrice).Mul(decimal.NewFromFloat(d.cfg.EarlyBuyThreshold)))

	var buyers []string
	for _, t := range transfers {
		if t.Action == types.ActionBuy && t.PriceUSD.IsPositive() && t.PriceUSD.LessThanOrEqual(threshold) {
			buyers = append(buyers, t.WalletAddress)
		}
	}
	return buyers, nil
}

// walletMetrics computes a wallet's realised track record across its full
// transfer history via FIFO-matched buy/sell pairs.
func (d *Discovery) walletMetrics(ctx context.Context, wallet string, chain types.Chain) (candidateMetrics, error) {
	transfers, err := d.store.TransfersByWallet(ctx, wallet, chain)
	if err != nil {
		return candidateMetrics{}, err
	}
	if len(transfers) == 0 {
		return candidateMetrics{wallet: wallet, chain: chain}, nil
	}

	var buys, sells []utils.FIFOLeg
	earliest := transfers[0].Timestamp
	for _, t := range transfers {
		if t.Timestamp.Before(earliest) {
			earliest = t.Timestamp
		}
		leg := utils.FIFOLeg{Timestamp: t.Timestamp, Amount: t.Amount, Price: t.PriceUSD}
		switch t.Action {
		case types.ActionBuy:
			buys = append(buys, leg)
		case types.ActionSell:
			sells = append(sells, leg)
		}
	}

	profit, trades, wins := utils.FIFOMatch(buys, sells)
	return candidateMetrics{
		wallet: wallet, chain: chain,
		trades: trades, wins: wins, profit: profit, earliest: earliest,
	}, nil
}

// score weights win rate 40%, profitability 30%, consistency 15%, risk
// management 15% into a single [0,100] band. Profitability and consistency
// both key off the realised track record since Discovery has no access to
// unrealised drawdown data for an untracked wallet; consistency uses trade
// count, and risk management uses the win rate's margin over the 0.55 floor.
func score(winRate, profit decimal.Decimal, trades int) decimal.Decimal {
	hundred := decimal.NewFromInt(100)

	winScore := winRate.Mul(hundred)
	if winScore.GreaterThan(hundred) {
		winScore = hundred
	}

	// $3000 profit floor maps to 50, $15000+ maps to 100.
	profitScore := decimal.NewFromInt(50).Add(profit.Sub(decimal.NewFromInt(3000)).Div(decimal.NewFromInt(240)))
	profitScore = utils.ClampDecimal(profitScore, decimal.Zero, hundred)

	// consistency rewards a deeper trade history up to a 50-trade cap.
	consistencyScore := decimal.NewFromInt(int64(trades)).Mul(decimal.NewFromInt(2))
	consistencyScore = utils.ClampDecimal(consistencyScore, decimal.Zero, hundred)

	// risk-management proxy: a wallet that clears the win-rate floor by a
	// wide margin is treated as more risk-disciplined.
	riskScore := winRate.Sub(decimal.NewFromFloat(0.55)).Mul(decimal.NewFromInt(400)).Add(decimal.NewFromInt(50))
	riskScore = utils.ClampDecimal(riskScore, decimal.Zero, hundred)

	weighted := winScore.Mul(decimal.NewFromFloat(0.40)).
		Add(profitScore.Mul(decimal.NewFromFloat(0.30))).
		Add(consistencyScore.Mul(decimal.NewFromFloat(0.15))).
		Add(riskScore.Mul(decimal.NewFromFloat(0.15)))

	return utils.ClampDecimal(weighted, decimal.Zero, hundred).Round(2)
}

// remainingQuota reads today's consumed count and returns dailyLimit minus
// it, resetting to the full limit whenever the stored date has rolled over.
func (d *Discovery) remainingQuota(ctx context.Context) (int, error) {
	today := time.Now().UTC().Format("2006-01-02")
	raw, err := d.store.GetSystemValue(ctx, dailyCounterKey)
	if err != nil {
		return d.cfg.DailyLimit, nil
	}
	storedDate, countStr, ok := strings.Cut(raw, "|")
	count, err2 := strconv.Atoi(countStr)
	if !ok || err2 != nil || storedDate != today {
		return d.cfg.DailyLimit, nil
	}
	remaining := d.cfg.DailyLimit - count
	if remaining < 0 {
		remaining = 0
	}
	return remaining, nil
}

func (d *Discovery) consumeQuota(ctx context.Context, n int) error {
	today := time.Now().UTC().Format("2006-01-02")
	raw, err := d.store.GetSystemValue(ctx, dailyCounterKey)
	count := 0
	if err == nil {
		if storedDate, countStr, ok := strings.Cut(raw, "|"); ok && storedDate == today {
			if stored, err2 := strconv.Atoi(countStr); err2 == nil {
				count = stored
			}
		}
	}
	count += n
	return d.store.SetSystemValue(ctx, dailyCounterKey, fmt.Sprintf("%s|%d", today, count))
}
