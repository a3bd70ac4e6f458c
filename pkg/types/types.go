// Package types provides shared type definitions for the wallet tracking
// and paper-trading engine.
package types

import (
	"time"

	"github.com/shopspring/decimal"
)

// Chain identifies a supported blockchain.
type Chain string

const (
	ChainEthereum Chain = "ethereum"
	ChainBase     Chain = "base"
	ChainArbitrum Chain = "arbitrum"
	ChainOptimism Chain = "optimism"
	ChainPolygon  Chain = "polygon"
	ChainSolana   Chain = "solana"
)

// WalletStatus is the lifecycle state of a tracked wallet.
type WalletStatus string

const (
	WalletStatusActive  WalletStatus = "active"
	WalletStatusPaused  WalletStatus = "paused"
	WalletStatusDemoted WalletStatus = "demoted"
)

// TransferAction classifies an observed transfer from the wallet's point of view.
type TransferAction string

const (
	ActionBuy  TransferAction = "buy"
	ActionSell TransferAction = "sell"
)

// TradeStatus is the lifecycle state of a PaperTrade.
type TradeStatus string

const (
	TradeStatusOpen   TradeStatus = "open"
	TradeStatusClosed TradeStatus = "closed"
)

// Confidence is the discrete confidence band a strategy assigns its own Decision.
type Confidence string

const (
	ConfidenceLow    Confidence = "low"
	ConfidenceMedium Confidence = "med"
	ConfidenceHigh   Confidence = "high"
)

// Wallet is a tracked on-chain address.
type Wallet struct {
	Address          string          `json:"address"`
	Chain            Chain           `json:"chain"`
	StrategyType     string          `json:"strategyType"`
	WinRate          *decimal.Decimal `json:"winRate,omitempty"`
	TotalTrades      int             `json:"totalTrades"`
	SuccessfulTrades int             `json:"successfulTrades"`
	TotalPnLUSD      decimal.Decimal `json:"totalPnlUsd"`
	AvgTradeSizeUSD  decimal.Decimal `json:"avgTradeSizeUsd"`
	BiggestWinUSD    decimal.Decimal `json:"biggestWinUsd"`
	BiggestLossUSD   decimal.Decimal `json:"biggestLossUsd"`
	Status           WalletStatus    `json:"status"`
	DateAdded        time.Time       `json:"dateAdded"`
	LastChecked      time.Time       `json:"lastChecked"`
	Notes            string          `json:"notes,omitempty"`
}

// Key returns the (address, chain) identity of the wallet.
func (w *Wallet) Key() WalletKey {
	return WalletKey{Address: w.Address, Chain: w.Chain}
}

// WalletKey is the natural primary key of a Wallet.
type WalletKey struct {
	Address string
	Chain   Chain
}

// Transfer is an observed on-chain transaction for a tracked wallet.
type Transfer struct {
	ID            int64           `json:"id"`
	WalletAddress string          `json:"walletAddress"`
	Chain         Chain           `json:"chain"`
	TxHash        string          `json:"txHash"`
	TokenAddress  string          `json:"tokenAddress"`
	TokenSymbol   string          `json:"tokenSymbol"`
	Action        TransferAction  `json:"action"`
	Amount        decimal.Decimal `json:"amount"`
	PriceUSD      decimal.Decimal `json:"priceUsd"`
	TotalValueUSD decimal.Decimal `json:"totalValueUsd"`
	Timestamp     time.Time       `json:"timestamp"`
	BlockNumber   *uint64         `json:"blockNumber,omitempty"`
}

// Token is a unique (address, chain) token tracked for price history.
type Token struct {
	Address        string          `json:"address"`
	Chain          Chain           `json:"chain"`
	Symbol         string          `json:"symbol"`
	Decimals       int             `json:"decimals"`
	FirstSeen      time.Time       `json:"firstSeen"`
	CreationTime   *time.Time      `json:"creationTime,omitempty"`
	CurrentPriceUSD decimal.Decimal `json:"currentPriceUsd"`
	MaxPriceUSD     decimal.Decimal `json:"maxPriceUsd"`
	MarketCapUSD    decimal.Decimal `json:"marketCapUsd"`
	LastUpdated     time.Time       `json:"lastUpdated"`
}

// PaperTrade is a simulated position opened against the virtual capital pool.
type PaperTrade struct {
	ID             string          `json:"id"`
	TokenAddress   string          `json:"tokenAddress"`
	Chain          Chain           `json:"chain"`
	StrategyUsed   string          `json:"strategyUsed"`
	// ChildStrategy names the strategy a meta-strategy (e.g. "adaptive")
	// actually delegated to when it opened this trade; empty when
	// StrategyUsed itself decided the entry.
	ChildStrategy  string          `json:"childStrategy,omitempty"`
	SourceWallet   string          `json:"sourceWallet"`
	EntryPrice     decimal.Decimal `json:"entryPrice"`
	Amount         decimal.Decimal `json:"amount"`
	EntryValueUSD  decimal.Decimal `json:"entryValueUsd"`
	RealizedPnLPartial decimal.Decimal `json:"realizedPnlPartial"`
	PeakPrice      decimal.Decimal `json:"peakPrice"`
	Status         TradeStatus     `json:"status"`
	OpenedAt       time.Time       `json:"openedAt"`
	ExitPrice      *decimal.Decimal `json:"exitPrice,omitempty"`
	ExitValueUSD   *decimal.Decimal `json:"exitValueUsd,omitempty"`
	PnL            *decimal.Decimal `json:"pnl,omitempty"`
	PnLPercentage  *decimal.Decimal `json:"pnlPercentage,omitempty"`
	ExitTime       *time.Time       `json:"exitTime,omitempty"`
	ExitReason     string           `json:"exitReason,omitempty"`
	Notes          string           `json:"notes,omitempty"`
}

// HasTier reports whether the given tier marker has already fired for this trade.
func (t *PaperTrade) HasTier(marker string) bool {
	for _, n := range splitNotes(t.Notes) {
		if n == marker {
			return true
		}
	}
	return false
}

// AppendTier appends a tier marker to the trade's notes journal, idempotently.
func (t *PaperTrade) AppendTier(marker string) {
	if t.HasTier(marker) {
		return
	}
	if t.Notes == "" {
		t.Notes = marker
		return
	}
	t.Notes = t.Notes + "," + marker
}

func splitNotes(notes string) []string {
	if notes == "" {
		return nil
	}
	var out []string
	start := 0
	for i := 0; i < len(notes); i++ {
		if notes[i] == ',' {
			out = append(out, notes[start:i])
			start = i + 1
		}
	}
	out = append(out, notes[start:])
	return out
}

// DiscoveredWallet is a candidate wallet surfaced by Discovery, pending promotion.
type DiscoveredWallet struct {
	Address                  string          `json:"address"`
	Chain                    Chain           `json:"chain"`
	FirstSeen                time.Time       `json:"firstSeen"`
	ProfitabilityScore       decimal.Decimal `json:"profitabilityScore"`
	EstimatedWinRate         decimal.Decimal `json:"estimatedWinRate"`
	TrackedTrades            int             `json:"trackedTrades"`
	SuccessfulTrackedTrades  int             `json:"successfulTrackedTrades"`
	Promoted                 bool            `json:"promoted"`
	PromotedDate             *time.Time      `json:"promotedDate,omitempty"`
	DiscoveryMethod          string          `json:"discoveryMethod"`
	RejectionReason          string          `json:"rejectionReason,omitempty"`
}

// StrategyPerformance is a daily rollup of a strategy's realised results.
type StrategyPerformance struct {
	StrategyType   string          `json:"strategyType"`
	Date           time.Time       `json:"date"`
	TradesOpened   int             `json:"tradesOpened"`
	TradesClosed   int             `json:"tradesClosed"`
	WinningTrades  int             `json:"winningTrades"`
	RealizedPnLUSD decimal.Decimal `json:"realizedPnlUsd"`
	WinRate        decimal.Decimal `json:"winRate"`
	SharpeRatio    decimal.Decimal `json:"sharpeRatio"`
	MaxDrawdownPct decimal.Decimal `json:"maxDrawdownPct"`
}

// SystemState holds opaque run-time key/value configuration and counters.
type SystemState struct {
	TotalCapital        decimal.Decimal `json:"totalCapital"`
	AvailableCapital     decimal.Decimal `json:"availableCapital"`
	DiscoveryCountToday  int             `json:"discoveryCountToday"`
	LastDiscoveryRun     *time.Time      `json:"lastDiscoveryRun,omitempty"`
	TradingPaused        bool            `json:"tradingPaused"`
	TradingPausedReason  string          `json:"tradingPausedReason,omitempty"`
}

// Decision is the sum-type result of a strategy's Evaluate call. Exactly one
// of the two constructors should be used; callers switch on Copy.
type Decision struct {
	Copy            bool
	PositionSizeUSD decimal.Decimal
	Confidence      Confidence
	Reason          string
	// ChildStrategy is set by a meta-strategy to name whichever child
	// actually produced this Decision, so the opened trade can delegate
	// Exit to that child instead of the meta-strategy itself.
	ChildStrategy string
}

// CopyDecision returns a Decision that opens a position.
func CopyDecision(size decimal.Decimal, conf Confidence, reason string) Decision {
	return Decision{Copy: true, PositionSizeUSD: size, Confidence: conf, Reason: reason}
}

// SkipDecision returns a Decision that declines to copy.
func SkipDecision(reason string) Decision {
	return Decision{Copy: false, Reason: reason}
}

// ExitDecision is the sum-type result of a strategy's Exit call.
type ExitDecision struct {
	Exit         bool
	SellFraction decimal.Decimal
	Reason       string
}

// HoldDecision returns an ExitDecision that keeps the trade open.
func HoldDecision() ExitDecision {
	return ExitDecision{Exit: false}
}

// ExitDecisionFull returns an ExitDecision selling the given fraction of the
// current amount. fraction must be in (0, 1].
func ExitDecisionFull(fraction decimal.Decimal, reason string) ExitDecision {
	return ExitDecision{Exit: true, SellFraction: fraction, Reason: reason}
}

// PriceQuote is the result of a successful PriceOracle lookup.
type PriceQuote struct {
	PriceUSD     decimal.Decimal
	Source       string
	MarketCapUSD *decimal.Decimal
}

// ProviderTier classifies how seriously a provider outage should be taken.
type ProviderTier string

const (
	ProviderTierCritical ProviderTier = "critical"
	ProviderTierOptional ProviderTier = "optional"
)

// ProviderStatus is a cached health probe result for an external provider.
type ProviderStatus struct {
	Provider  string       `json:"provider"`
	Status    string       `json:"status"`
	LastOK    time.Time    `json:"lastOk"`
	LatencyMS int64        `json:"latencyMs"`
	Tier      ProviderTier `json:"tier"`
}

// WalletActivitySummary is a per-wallet rollup of transfer activity over a
// trailing window, served by the boundary API's activity endpoint.
type WalletActivitySummary struct {
	Address   string          `json:"address"`
	Chain     Chain           `json:"chain"`
	BuyCount  int             `json:"buyCount"`
	SellCount int             `json:"sellCount"`
	VolumeUSD decimal.Decimal `json:"volumeUsd"`
	LastSeen  time.Time       `json:"lastSeen"`
}
