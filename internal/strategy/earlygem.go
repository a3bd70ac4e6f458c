package strategy

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/chainscout/walletrader/pkg/types"
)

func init() {
	Register("earlyGem", func() Strategy { return &EarlyGem{} })
}

var (
	earlyGemMaxTokenAge    = 72 * time.Hour
	earlyGemMinLiquidityUSD = decimal.NewFromInt(5000)
	earlyGemMinWinRate     = decimal.NewFromFloat(0.5)
	earlyGemMinSize        = decimal.NewFromInt(20)
	earlyGemMaxPerTrade    = decimal.NewFromInt(200)
	earlyGemPct            = decimal.NewFromFloat(0.06)
	earlyGemStopLoss       = decimal.NewFromFloat(0.25)
	earlyGemTakeProfit     = decimal.NewFromFloat(1.5)
	earlyGemTimeStop       = 72 * time.Hour
)

// EarlyGem copies proven wallets (win rate >= 50%), skipping a token whose
// price quote reports a market cap below the $5000 liquidity floor. A
// transfer whose quote is missing or carries no market cap is not held
// back by the floor, and the token's age is not checked.
type EarlyGem struct{}

func (s *EarlyGem) Name() string { return "earlyGem" }

func (s *EarlyGem) Evaluate(ctx *Context, tx *types.Transfer, wallet *types.Wallet) types.Decision {
	if tx.Action != types.ActionBuy {
		return types.SkipDecision("not a buy")
	}
	winRate, known := knownWinRate(wallet)
	if !known || winRate.LessThan(earlyGemMinWinRate) {
		return types.SkipDecision("wallet not proven")
	}

	value := effectiveValue(tx)
	if value.LessThan(earlyGemMinSize) {
		return types.SkipDecision("below minimum copy size")
	}

	quote := ctx.Prices.GetPrice(ctx, tx.TokenAddress, tx.Chain)
	if quote != nil && quote.MarketCapUSD != nil && quote.MarketCapUSD.LessThan(earlyGemMinLiquidityUSD) {
		return types.SkipDecision("liquidity below floor")
	}

	confidence := types.ConfidenceMedium
	if winRate.GreaterThan(decimal.NewFromFloat(0.65)) {
		confidence = types.ConfidenceHigh
	}

	size := decimal.Min(earlyGemMaxPerTrade, earlyGemPct.Mul(value))
	return types.CopyDecision(size, confidence, "early gem: proven wallet in young token")
}

func (s *EarlyGem) Exit(ctx *Context, trade *types.PaperTrade, currentPrice decimal.Decimal) types.ExitDecision {
	if loss := priceLossFraction(trade.EntryPrice, currentPrice); loss.GreaterThanOrEqual(earlyGemStopLoss) {
		return types.ExitDecisionFull(decimal.NewFromInt(1), "stop_loss")
	}
	gain := currentPrice.Sub(trade.EntryPrice).Div(trade.EntryPrice)
	if gain.GreaterThanOrEqual(earlyGemTakeProfit) {
		return types.ExitDecisionFull(decimal.NewFromInt(1), "take_profit")
	}
	if timeStopReached(trade, ctx.Now, earlyGemTimeStop) {
		return types.ExitDecisionFull(decimal.NewFromInt(1), "time_stop")
	}
	return types.HoldDecision()
}
