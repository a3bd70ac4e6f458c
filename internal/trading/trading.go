// Package trading implements the paper-trading engine: it turns strategy
// decisions into open positions, manages those positions to exit, and
// keeps the available-capital invariant a pure derivation of stored
// trade rows rather than a counter that can drift.
package trading

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/chainscout/walletrader/internal/risk"
	"github.com/chainscout/walletrader/internal/strategy"
	"github.com/chainscout/walletrader/pkg/types"
	"github.com/chainscout/walletrader/pkg/utils"
)

const dedupMaxEntries = 10000
const dedupEvictFrac = 0.5
const peakEquityKey = "peak_equity_usd"

// Store is the slice of storage the engine needs. It embeds strategy's
// own read-only interface so a single concrete *store.Store satisfies
// both without adapter boilerplate.
type Store interface {
	strategy.ReadStore
	GetWallet(ctx context.Context, address string, chain types.Chain) (*types.Wallet, error)
	OpenPaperTrade(ctx context.Context, t *types.PaperTrade) error
	UpdatePeakPrice(ctx context.Context, id string, price decimal.Decimal) error
	UpdatePaperTradePartialExit(ctx context.Context, id string, amount, entryValueUSD, realizedPnLPartial, peakPrice decimal.Decimal, notes string) error
	ClosePaperTrade(ctx context.Context, id string, exitPrice, exitValueUSD, pnl, pnlPct decimal.Decimal, exitReason string, exitTime time.Time) error
	OpenTrades(ctx context.Context) ([]*types.PaperTrade, error)
	AvailableCapital(ctx context.Context, startingCapital decimal.Decimal) (decimal.Decimal, error)
	RealizedPnLSince(ctx context.Context, since time.Time) (decimal.Decimal, error)
	GetSystemValue(ctx context.Context, key string) (string, error)
	SetSystemValue(ctx context.Context, key, value string) error
}

// PriceReader resolves a live price for a token.
type PriceReader interface {
	GetPrice(ctx context.Context, tokenAddress string, chain types.Chain) *types.PriceQuote
}

// RiskGate is the admission and auto-pause surface the engine consults.
type RiskGate interface {
	Check(c risk.Candidate, state risk.PortfolioState) risk.CheckResult
	RecordClosedTrade(trade *types.PaperTrade)
	StrategyPaused(name string) bool
	WalletPaused(key types.WalletKey) bool
}

// Config is the engine's tunable surface.
type Config struct {
	TotalCapital         decimal.Decimal
	VolumeBreakoutWindow time.Duration
}

// Engine is the paper-trading engine: C7 of the system.
type Engine struct {
	store  Store
	prices PriceReader
	risk   RiskGate
	logger *zap.Logger
	cfg    Config

	dedup *dedupCache
}

// New constructs an Engine.
func New(store Store, prices PriceReader, riskGate RiskGate, cfg Config, logger *zap.Logger) *Engine {
	return &Engine{
		store:  store,
		prices: prices,
		risk:   riskGate,
		logger: logger.Named("trading"),
		cfg:    cfg,
		dedup:  newDedupCache(),
	}
}

// Shutdown releases any background resources the engine owns. There are
// none currently (the dedup cache is purely in-memory and needs no
// teardown), but the method exists so Supervisor has one call to make
// regardless of what the engine grows to own later.
func (e *Engine) Shutdown() {}

// Process evaluates a batch of freshly observed transfers against every
// registered strategy, opening a paper trade for the single best-scoring
// candidate per transfer that clears risk admission.
func (e *Engine) Process(ctx context.Context, transfers []*types.Transfer) {
	for _, tx := range transfers {
		key := dedupKey(tx)
		if e.dedup.seen(key) {
			continue
		}
		e.processOne(ctx, tx)
	}
}

func dedupKey(tx *types.Transfer) string {
	return tx.WalletAddress + "|" + tx.TxHash + "|" + string(tx.Chain)
}

func (e *Engine) processOne(ctx context.Context, tx *types.Transfer) {
	wallet, err := e.store.GetWallet(ctx, tx.WalletAddress, tx.Chain)
	if err != nil || wallet == nil {
		return
	}

	sctx := e.strategyContext(ctx)
	candidates := evaluateAll(sctx, tx, wallet)
	if len(candidates) == 0 {
		return
	}
	winner := pickBest(candidates, tx)

	price, ok := e.resolveEntryPrice(ctx, tx)
	if !ok {
		e.logger.Debug("skipping candidate with no resolvable price",
			zap.String("token", tx.TokenAddress), zap.String("chain", string(tx.Chain)))
		return
	}

	state, err := e.portfolioState(ctx, tx.TokenAddress)
	if err != nil {
		e.logger.Warn("failed to compute portfolio state, skipping candidate", zap.Error(err))
		return
	}

	check := e.risk.Check(risk.Candidate{
		Wallet:       wallet,
		StrategyName: winner.name,
		TokenAddress: tx.TokenAddress,
		SizeUSD:      winner.decision.PositionSizeUSD,
	}, state)
	if !check.Approved {
		e.logger.Info("candidate rejected by risk admission",
			zap.String("strategy", winner.name), zap.String("token", tx.TokenAddress),
			zap.Any("violations", check.Violations))
		return
	}

	amount := winner.decision.PositionSizeUSD.Div(price)
	trade := &types.PaperTrade{
		ID:            utils.GenerateID("trade"),
		TokenAddress:  tx.TokenAddress,
		Chain:         tx.Chain,
		StrategyUsed:  winner.name,
		ChildStrategy: winner.decision.ChildStrategy,
		SourceWallet:  tx.WalletAddress,
		EntryPrice:    price,
		Amount:        amount,
		EntryValueUSD: winner.decision.PositionSizeUSD,
		PeakPrice:     price,
		Status:        types.TradeStatusOpen,
		OpenedAt:      time.Now(),
	}
	if err := e.store.OpenPaperTrade(ctx, trade); err != nil {
		e.logger.Error("failed to open paper trade", zap.Error(err))
		return
	}

	e.logger.Info("opened paper trade",
		zap.String("id", trade.ID), zap.String("strategy", winner.name),
		zap.String("token", tx.TokenAddress), zap.String("sizeUsd", winner.decision.PositionSizeUSD.String()))
}

type candidate struct {
	name     string
	decision types.Decision
}

func evaluateAll(sctx *strategy.Context, tx *types.Transfer, wallet *types.Wallet) []candidate {
	var out []candidate
	for _, strat := range strategy.All() {
		decision := strat.Evaluate(sctx, tx, wallet)
		if decision.Copy {
			out = append(out, candidate{name: strat.Name(), decision: decision})
		}
	}
	return out
}

// pickBest scores every firing candidate and returns the single highest
// scorer, never the first one that happened to fire. Ties break by
// strategy name, alphabetically, for a fully deterministic outcome.
func pickBest(candidates []candidate, tx *types.Transfer) candidate {
	best := candidates[0]
	bestScore := score(best, tx)
	for _, c := range candidates[1:] {
		s := score(c, tx)
		if s > bestScore || (s == bestScore && c.name < best.name) {
			best, bestScore = c, s
		}
	}
	return best
}

func score(c candidate, tx *types.Transfer) float64 {
	base := confidenceScore(c.decision.Confidence)
	switch c.name {
	case "smartMoney":
		value := tx.TotalValueUSD
		if value.IsZero() {
			value = tx.Amount
		}
		if value.GreaterThanOrEqual(decimal.NewFromInt(5000)) {
			base += 1.5
		}
	case "volumeBreakout":
		base += 1.0
	case "memecoin":
		if tx.Chain == types.ChainSolana {
			base += 1.0
		}
	case "copyTrade":
		base -= 1.0
	}
	return base
}

func confidenceScore(c types.Confidence) float64 {
	switch c {
	case types.ConfidenceHigh:
		return 3
	case types.ConfidenceMedium:
		return 2
	case types.ConfidenceLow:
		return 1
	default:
		return 0
	}
}

// resolveEntryPrice tries, in order: the transfer's own resolved price,
// the price oracle, then a derived total-value/amount ratio. It never
// guesses a conservative default — an unresolved price means the
// candidate is skipped entirely rather than opened at a made-up price.
func (e *Engine) resolveEntryPrice(ctx context.Context, tx *types.Transfer) (decimal.Decimal, bool) {
	if tx.PriceUSD.IsPositive() {
		return tx.PriceUSD, true
	}
	if quote := e.prices.GetPrice(ctx, tx.TokenAddress, tx.Chain); quote != nil && quote.PriceUSD.IsPositive() {
		return quote.PriceUSD, true
	}
	if tx.TotalValueUSD.IsPositive() && tx.Amount.IsPositive() {
		return tx.TotalValueUSD.Div(tx.Amount), true
	}
	return decimal.Zero, false
}

// ManageOpenPositions ticks every open trade: refreshes its peak price,
// asks its owning strategy whether to exit, and applies full or partial
// exits. A strategy that says hold is still force-closed if its own
// 48-hour-class time stop has clearly been exceeded, guarding against a
// strategy implementation bug silently holding forever.
func (e *Engine) ManageOpenPositions(ctx context.Context) {
	trades, err := e.store.OpenTrades(ctx)
	if err != nil {
		e.logger.Error("failed to list open trades", zap.Error(err))
		return
	}

	sctx := e.strategyContext(ctx)
	for _, trade := range trades {
		quote := e.prices.GetPrice(ctx, trade.TokenAddress, trade.Chain)
		if quote == nil || !quote.PriceUSD.IsPositive() {
			continue
		}
		currentPrice := quote.PriceUSD

		if currentPrice.GreaterThan(trade.PeakPrice) {
			if err := e.store.UpdatePeakPrice(ctx, trade.ID, currentPrice); err != nil {
				e.logger.Warn("failed to update peak price", zap.String("id", trade.ID), zap.Error(err))
			}
			trade.PeakPrice = currentPrice
		}

		strat := strategy.Create(trade.StrategyUsed)
		if strat == nil {
			e.logger.Warn("open trade references unknown strategy", zap.String("id", trade.ID), zap.String("strategy", trade.StrategyUsed))
			continue
		}

		decision := strat.Exit(sctx, trade, currentPrice)
		if !decision.Exit {
			if time.Since(trade.OpenedAt) > 96*time.Hour {
				decision = types.ExitDecisionFull(decimal.NewFromInt(1), "forced_time_stop")
			} else {
				continue
			}
		}

		e.applyExit(ctx, trade, currentPrice, decision)
	}
}

func (e *Engine) applyExit(ctx context.Context, trade *types.PaperTrade, currentPrice decimal.Decimal, decision types.ExitDecision) {
	fraction := decision.SellFraction
	if !fraction.IsPositive() {
		fraction = decimal.NewFromInt(1)
	}
	if fraction.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		e.closeTrade(ctx, trade, currentPrice, decision.Reason)
		return
	}
	e.partialExit(ctx, trade, currentPrice, fraction, decision.Reason)
}

func (e *Engine) closeTrade(ctx context.Context, trade *types.PaperTrade, currentPrice decimal.Decimal, reason string) {
	exitValueUSD := trade.Amount.Mul(currentPrice)
	pnl := exitValueUSD.Sub(trade.EntryValueUSD).Add(trade.RealizedPnLPartial)
	pnlPct := decimal.Zero
	totalCostBasis := trade.EntryValueUSD
	if totalCostBasis.IsPositive() {
		pnlPct = pnl.Div(totalCostBasis)
	}

	if err := e.store.ClosePaperTrade(ctx, trade.ID, currentPrice, exitValueUSD, pnl, pnlPct, reason, time.Now()); err != nil {
		e.logger.Error("failed to close paper trade", zap.String("id", trade.ID), zap.Error(err))
		return
	}

	closed := *trade
	closed.PnL = &pnl
	closed.PnLPercentage = &pnlPct
	closed.ExitReason = reason
	e.risk.RecordClosedTrade(&closed)

	e.updatePeakEquity(ctx)

	e.logger.Info("closed paper trade",
		zap.String("id", trade.ID), zap.String("reason", reason), zap.String("pnl", pnl.String()))
}

func (e *Engine) partialExit(ctx context.Context, trade *types.PaperTrade, currentPrice decimal.Decimal, fraction decimal.Decimal, reason string) {
	soldAmount := trade.Amount.Mul(fraction)
	soldValueUSD := soldAmount.Mul(currentPrice)
	costBasisSold := trade.EntryValueUSD.Mul(fraction)
	partialPnL := soldValueUSD.Sub(costBasisSold)

	remainingAmount := trade.Amount.Sub(soldAmount)
	remainingEntryValue := trade.EntryValueUSD.Sub(costBasisSold)
	newRealizedPartial := trade.RealizedPnLPartial.Add(partialPnL)

	if strings.HasPrefix(reason, "tier_") {
		trade.AppendTier(reason)
	}

	if err := e.store.UpdatePaperTradePartialExit(ctx, trade.ID, remainingAmount, remainingEntryValue, newRealizedPartial, trade.PeakPrice, trade.Notes); err != nil {
		e.logger.Error("failed to record partial exit", zap.String("id", trade.ID), zap.Error(err))
		return
	}

	trade.Amount = remainingAmount
	trade.EntryValueUSD = remainingEntryValue
	trade.RealizedPnLPartial = newRealizedPartial

	e.logger.Info("partial exit",
		zap.String("id", trade.ID), zap.String("reason", reason),
		zap.String("soldFraction", fraction.String()), zap.String("realizedPnl", partialPnL.String()))
}

func (e *Engine) strategyContext(ctx context.Context) *strategy.Context {
	return &strategy.Context{
		Context:     ctx,
		Store:       e.store,
		Prices:      e.prices,
		Performance: noPerformanceReader{},
		Paused:      e.risk,
		Config:      strategy.Config{VolumeBreakoutWindow: e.cfg.VolumeBreakoutWindow},
		Now:         time.Now(),
	}
}

// noPerformanceReader is used until a performance-rollup-backed reader is
// wired in; with no performance data, Adaptive keeps whichever
// equal-confidence child fires first in its fixed delegation order (see
// strategy.Adaptive.Evaluate).
type noPerformanceReader struct{}

func (noPerformanceReader) RecentWinRate(ctx context.Context, strategyName string) (decimal.Decimal, bool) {
	return decimal.Zero, false
}

// portfolioState assembles the figures risk admission needs to judge a
// candidate: current open-position count and per-token exposure, and the
// 24h/7d realized-loss and peak-drawdown fractions.
func (e *Engine) portfolioState(ctx context.Context, tokenAddress string) (risk.PortfolioState, error) {
	openTrades, err := e.store.OpenTrades(ctx)
	if err != nil {
		return risk.PortfolioState{}, fmt.Errorf("list open trades: %w", err)
	}

	exposure := make(map[string]decimal.Decimal, len(openTrades))
	for _, t := range openTrades {
		exposure[t.TokenAddress] = exposure[t.TokenAddress].Add(t.EntryValueUSD)
	}

	available, err := e.store.AvailableCapital(ctx, e.cfg.TotalCapital)
	if err != nil {
		return risk.PortfolioState{}, fmt.Errorf("available capital: %w", err)
	}
	openEntryValue := decimal.Zero
	for _, v := range exposure {
		openEntryValue = openEntryValue.Add(v)
	}
	equity := available.Add(openEntryValue)

	peakEquity := e.peakEquity(ctx, equity)
	drawdown := decimal.Zero
	if peakEquity.IsPositive() && equity.LessThan(peakEquity) {
		drawdown = peakEquity.Sub(equity).Div(peakEquity)
	}

	pnl24h, err := e.store.RealizedPnLSince(ctx, time.Now().Add(-24*time.Hour))
	if err != nil {
		return risk.PortfolioState{}, fmt.Errorf("24h pnl: %w", err)
	}
	pnl7d, err := e.store.RealizedPnLSince(ctx, time.Now().Add(-7*24*time.Hour))
	if err != nil {
		return risk.PortfolioState{}, fmt.Errorf("7d pnl: %w", err)
	}

	loss24h := decimal.Zero
	if pnl24h.IsNegative() && e.cfg.TotalCapital.IsPositive() {
		loss24h = pnl24h.Neg().Div(e.cfg.TotalCapital)
	}
	loss7d := decimal.Zero
	if pnl7d.IsNegative() && e.cfg.TotalCapital.IsPositive() {
		loss7d = pnl7d.Neg().Div(e.cfg.TotalCapital)
	}

	return risk.PortfolioState{
		TotalCapital:     e.cfg.TotalCapital,
		OpenPositions:    len(openTrades),
		DrawdownPct:      drawdown,
		Loss24hPct:       loss24h,
		Loss7dPct:        loss7d,
		TokenExposureUSD: exposure,
	}, nil
}

func (e *Engine) peakEquity(ctx context.Context, currentEquity decimal.Decimal) decimal.Decimal {
	raw, err := e.store.GetSystemValue(ctx, peakEquityKey)
	if err != nil {
		return currentEquity
	}
	peak, err := decimal.NewFromString(raw)
	if err != nil || peak.LessThan(currentEquity) {
		return currentEquity
	}
	return peak
}

func (e *Engine) updatePeakEquity(ctx context.Context) {
	state, err := e.portfolioState(ctx, "")
	if err != nil {
		return
	}
	available, err := e.store.AvailableCapital(ctx, e.cfg.TotalCapital)
	if err != nil {
		return
	}
	openEntryValue := decimal.Zero
	for _, v := range state.TokenExposureUSD {
		openEntryValue = openEntryValue.Add(v)
	}
	equity := available.Add(openEntryValue)

	raw, err := e.store.GetSystemValue(ctx, peakEquityKey)
	if err == nil {
		if peak, err := decimal.NewFromString(raw); err == nil && peak.GreaterThanOrEqual(equity) {
			return
		}
	}
	if err := e.store.SetSystemValue(ctx, peakEquityKey, equity.String()); err != nil {
		e.logger.Warn("failed to persist peak equity", zap.Error(err))
	}
}

// dedupCache bounds the set of (wallet, tx_hash, chain) keys the engine
// remembers having processed, evicting the oldest half once over cap
// rather than growing unbounded across a long-lived process.
type dedupCache struct {
	mu    sync.Mutex
	order []string
	seenAt map[string]struct{}
}

func newDedupCache() *dedupCache {
	return &dedupCache{seenAt: make(map[string]struct{})}
}

func (c *dedupCache) seen(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.seenAt[key]; ok {
		return true
	}
	c.seenAt[key] = struct{}{}
	c.order = append(c.order, key)
	if len(c.order) > dedupMaxEntries {
		evict := int(float64(len(c.order)) * dedupEvictFrac)
		for _, k := range c.order[:evict] {
			delete(c.seenAt, k)
		}
		c.order = c.order[evict:]
	}
	return false
}
