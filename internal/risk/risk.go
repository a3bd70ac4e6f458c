// Package risk implements the admission control and auto-pause rules that
// gate every paper trade before it opens and watch closed trades for
// strategies or wallets that have gone cold.
package risk

import (
	"fmt"
	"sync"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/chainscout/walletrader/pkg/types"
)

// Config is the tunable admission and auto-pause surface. All percentages
// are fractions (0.20 means 20%), matching the rest of the codebase.
type Config struct {
	MaxDrawdownPct           decimal.Decimal
	Max24hLossPct            decimal.Decimal
	Max7dLossPct             decimal.Decimal
	MaxOpenPositions         int
	MaxPositionPctOfCapital  decimal.Decimal
	MaxCorrelatedExposurePct decimal.Decimal

	AutoPauseStrategyPnLPct decimal.Decimal
	AutoPauseWalletPnLPct   decimal.Decimal
	RollingWindow           int
	MinSamplesForAutoPause  int
}

// DefaultConfig mirrors the admission table: 20% drawdown halts everything,
// 3%/8% daily/weekly loss limits, a 40-position cap, 12% max single
// position, 25% max same-token exposure, and the -15%/-12% auto-pause
// bars for strategies and wallets over a 20-trade rolling window.
func DefaultConfig() Config {
	return Config{
		MaxDrawdownPct:           decimal.NewFromFloat(0.20),
		Max24hLossPct:            decimal.NewFromFloat(0.03),
		Max7dLossPct:             decimal.NewFromFloat(0.08),
		MaxOpenPositions:         40,
		MaxPositionPctOfCapital:  decimal.NewFromFloat(0.12),
		MaxCorrelatedExposurePct: decimal.NewFromFloat(0.25),
		AutoPauseStrategyPnLPct:  decimal.NewFromFloat(-0.15),
		AutoPauseWalletPnLPct:    decimal.NewFromFloat(-0.12),
		RollingWindow:            20,
		MinSamplesForAutoPause:   5,
	}
}

// Candidate is the trade a caller wants admitted.
type Candidate struct {
	Wallet       *types.Wallet
	StrategyName string
	TokenAddress string
	SizeUSD      decimal.Decimal
}

// PortfolioState is the snapshot of account-wide figures the caller
// assembles before calling Check. RiskManager never queries storage
// itself; it only judges what it's handed.
type PortfolioState struct {
	TotalCapital     decimal.Decimal
	OpenPositions    int
	DrawdownPct      decimal.Decimal
	Loss24hPct       decimal.Decimal
	Loss7dPct        decimal.Decimal
	TokenExposureUSD map[string]decimal.Decimal
}

// Violation names one failed rule.
type Violation struct {
	Rule    string
	Message string
}

// CheckResult is the outcome of an admission check.
type CheckResult struct {
	Approved   bool
	Violations []Violation
}

func (r CheckResult) String() string {
	if r.Approved {
		return "approved"
	}
	return fmt.Sprintf("rejected: %v", r.Violations)
}

// rollingStats tracks a fixed-size window of closed-trade PnL percentages
// used to decide auto-pause.
type rollingStats struct {
	window []decimal.Decimal
	paused bool
}

func (s *rollingStats) push(pct decimal.Decimal, max int) {
	s.window = append(s.window, pct)
	if len(s.window) > max {
		s.window = s.window[len(s.window)-max:]
	}
}

func (s *rollingStats) average() decimal.Decimal {
	if len(s.window) == 0 {
		return decimal.Zero
	}
	sum := decimal.Zero
	for _, v := range s.window {
		sum = sum.Add(v)
	}
	return sum.Div(decimal.NewFromInt(int64(len(s.window))))
}

// Manager is the risk admission gate. It is safe for concurrent use.
type Manager struct {
	logger *zap.Logger
	config Config

	mu            sync.Mutex
	strategyStats map[string]*rollingStats
	walletStats   map[types.WalletKey]*rollingStats
	tradingPaused bool
	pauseReason   string
}

// New constructs a Manager.
func New(config Config, logger *zap.Logger) *Manager {
	return &Manager{
		logger:        logger.Named("risk"),
		config:        config,
		strategyStats: make(map[string]*rollingStats),
		walletStats:   make(map[types.WalletKey]*rollingStats),
	}
}

// Check runs the full admission table against a candidate trade. Its only
// mutation is latching the drawdown halt (cleared by UnpauseTrading); call
// RecordClosedTrade separately as trades close.
func (m *Manager) Check(c Candidate, state PortfolioState) CheckResult {
	m.mu.Lock()
	defer m.mu.Unlock()

	result := CheckResult{Approved: true}
	fail := func(rule, msg string) {
		result.Approved = false
		result.Violations = append(result.Violations, Violation{Rule: rule, Message: msg})
	}

	if m.tradingPaused {
		fail("trading_paused", m.pauseReason)
		return result
	}

	if state.DrawdownPct.GreaterThanOrEqual(m.config.MaxDrawdownPct) {
		m.tradingPaused = true
		m.pauseReason = fmt.Sprintf("drawdown %s breached %s limit", state.DrawdownPct, m.config.MaxDrawdownPct)
		fail("max_drawdown", m.pauseReason)
		return result
	}

	if state.Loss24hPct.GreaterThanOrEqual(m.config.Max24hLossPct) {
		fail("max_24h_loss", fmt.Sprintf("24h loss %s at or above %s limit", state.Loss24hPct, m.config.Max24hLossPct))
	}
	if state.Loss7dPct.GreaterThanOrEqual(m.config.Max7dLossPct) {
		fail("max_7d_loss", fmt.Sprintf("7d loss %s at or above %s limit", state.Loss7dPct, m.config.Max7dLossPct))
	}
	if state.OpenPositions >= m.config.MaxOpenPositions {
		fail("max_open_positions", fmt.Sprintf("%d open positions at or above limit %d", state.OpenPositions, m.config.MaxOpenPositions))
	}

	if state.TotalCapital.IsPositive() {
		positionPct := c.SizeUSD.Div(state.TotalCapital)
		if positionPct.GreaterThan(m.config.MaxPositionPctOfCapital) {
			fail("max_position_size", fmt.Sprintf("position %s of capital exceeds %s limit", positionPct, m.config.MaxPositionPctOfCapital))
		}

		existing := state.TokenExposureUSD[c.TokenAddress]
		exposurePct := existing.Add(c.SizeUSD).Div(state.TotalCapital)
		if exposurePct.GreaterThan(m.config.MaxCorrelatedExposurePct) {
			fail("max_token_exposure", fmt.Sprintf("token exposure %s of capital exceeds %s limit", exposurePct, m.config.MaxCorrelatedExposurePct))
		}
	}

	if c.Wallet != nil && c.Wallet.Status != types.WalletStatusActive {
		fail("wallet_not_active", fmt.Sprintf("wallet status is %s", c.Wallet.Status))
	}
	if c.Wallet != nil && m.walletPausedLocked(c.Wallet.Key()) {
		fail("wallet_paused", "wallet auto-paused on poor recent results")
	}
	if m.strategyPausedLocked(c.StrategyName) {
		fail("strategy_paused", "strategy auto-paused on poor recent results")
	}

	return result
}

// RecordClosedTrade folds a newly closed trade's result into the rolling
// strategy and wallet statistics, auto-pausing either side that has
// dropped below its threshold. Auto-pause never un-pauses itself; only
// UnpauseStrategy/UnpauseWallet do that.
func (m *Manager) RecordClosedTrade(trade *types.PaperTrade) {
	if trade.PnLPercentage == nil {
		return
	}
	pct := *trade.PnLPercentage

	m.mu.Lock()
	defer m.mu.Unlock()

	strategyStats := m.strategyStatsLocked(trade.StrategyUsed)
	strategyStats.push(pct, m.config.RollingWindow)
	if len(strategyStats.window) >= m.config.MinSamplesForAutoPause &&
		strategyStats.average().LessThanOrEqual(m.config.AutoPauseStrategyPnLPct) && !strategyStats.paused {
		strategyStats.paused = true
		m.logger.Warn("auto-pausing strategy on poor rolling pnl",
			zap.String("strategy", trade.StrategyUsed),
			zap.String("rollingAvgPct", strategyStats.average().String()))
	}

	key := types.WalletKey{Address: trade.SourceWallet, Chain: trade.Chain}
	walletStats := m.walletStatsLocked(key)
	walletStats.push(pct, m.config.RollingWindow)
	if len(walletStats.window) >= m.config.MinSamplesForAutoPause &&
		walletStats.average().LessThanOrEqual(m.config.AutoPauseWalletPnLPct) && !walletStats.paused {
		walletStats.paused = true
		m.logger.Warn("auto-pausing wallet on poor rolling pnl",
			zap.String("wallet", trade.SourceWallet),
			zap.String("chain", string(trade.Chain)),
			zap.String("rollingAvgPct", walletStats.average().String()))
	}
}

// StrategyPaused implements strategy.PauseChecker.
func (m *Manager) StrategyPaused(name string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.strategyPausedLocked(name)
}

// WalletPaused reports whether a wallet has been auto-paused.
func (m *Manager) WalletPaused(key types.WalletKey) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.walletPausedLocked(key)
}

// UnpauseStrategy manually clears a strategy's auto-pause and resets its
// rolling window so past poor results don't immediately re-trip it.
func (m *Manager) UnpauseStrategy(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.strategyStats[name]; ok {
		s.paused = false
		s.window = nil
	}
}

// UnpauseWallet manually clears a wallet's auto-pause.
func (m *Manager) UnpauseWallet(key types.WalletKey) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.walletStats[key]; ok {
		s.paused = false
		s.window = nil
	}
}

// UnpauseTrading clears a drawdown-triggered full trading halt.
func (m *Manager) UnpauseTrading() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tradingPaused = false
	m.pauseReason = ""
}

// TradingPaused reports whether a drawdown breach has halted all trading.
func (m *Manager) TradingPaused() (bool, string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.tradingPaused, m.pauseReason
}

func (m *Manager) strategyPausedLocked(name string) bool {
	s, ok := m.strategyStats[name]
	return ok && s.paused
}

func (m *Manager) walletPausedLocked(key types.WalletKey) bool {
	s, ok := m.walletStats[key]
	return ok && s.paused
}

func (m *Manager) strategyStatsLocked(name string) *rollingStats {
	s, ok := m.strategyStats[name]
	if !ok {
		s = &rollingStats{}
		m.strategyStats[name] = s
	}
	return s
}

func (m *Manager) walletStatsLocked(key types.WalletKey) *rollingStats {
	s, ok := m.walletStats[key]
	if !ok {
		s = &rollingStats{}
		m.walletStats[key] = s
	}
	return s
}
