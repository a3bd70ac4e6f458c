package strategy

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/chainscout/walletrader/pkg/types"
)

func init() {
	Register("copyTrade", func() Strategy { return &CopyTrade{} })
}

var (
	copyTradeMinSize     = decimal.NewFromInt(50)
	copyTradeMaxPerTrade = decimal.NewFromInt(500)
	copyTradePct         = decimal.NewFromFloat(0.1)
	copyTradeMinWinRate  = decimal.NewFromFloat(0.4)
	copyTradeStopLoss    = decimal.NewFromFloat(0.12)
	copyTradeTakeProfit  = decimal.NewFromFloat(0.40)
	copyTradeTrailArm    = decimal.NewFromFloat(0.30)
	copyTradeTrailGive   = decimal.NewFromFloat(0.10)
	copyTradeTimeStop    = 48 * time.Hour
)

// CopyTrade is the lowest bar strategy: copy any buy above a minimum size
// from a wallet whose known win rate (if any) is not poor. It is
// deliberately the broadest strategy and carries a scoring penalty so it
// never starves the more specific strategies.
type CopyTrade struct{}

func (s *CopyTrade) Name() string { return "copyTrade" }

func (s *CopyTrade) Evaluate(ctx *Context, tx *types.Transfer, wallet *types.Wallet) types.Decision {
	if tx.Action != types.ActionBuy {
		return types.SkipDecision("not a buy")
	}
	value := effectiveValue(tx)
	if value.LessThan(copyTradeMinSize) {
		return types.SkipDecision("below minimum copy size")
	}

	confidence := types.ConfidenceMedium
	if winRate, known := knownWinRate(wallet); known {
		if winRate.LessThan(copyTradeMinWinRate) {
			return types.SkipDecision("wallet win rate below threshold")
		}
		if winRate.GreaterThan(decimal.NewFromFloat(0.6)) {
			confidence = types.ConfidenceHigh
		}
	} else {
		confidence = types.ConfidenceLow
	}

	size := decimal.Min(copyTradeMaxPerTrade, copyTradePct.Mul(value))
	return types.CopyDecision(size, confidence, "copy trade: qualifying buy")
}

func (s *CopyTrade) Exit(ctx *Context, trade *types.PaperTrade, currentPrice decimal.Decimal) types.ExitDecision {
	if loss := priceLossFraction(trade.EntryPrice, currentPrice); loss.GreaterThanOrEqual(copyTradeStopLoss) {
		return types.ExitDecisionFull(decimal.NewFromInt(1), "stop_loss")
	}

	gain := currentPrice.Sub(trade.EntryPrice).Div(trade.EntryPrice)
	if gain.GreaterThanOrEqual(copyTradeTakeProfit) {
		return types.ExitDecisionFull(decimal.NewFromInt(1), "take_profit")
	}

	peakGain := trade.PeakPrice.Sub(trade.EntryPrice).Div(trade.EntryPrice)
	if peakGain.GreaterThanOrEqual(copyTradeTrailArm) {
		giveback := trade.PeakPrice.Sub(currentPrice).Div(trade.PeakPrice)
		if giveback.GreaterThanOrEqual(copyTradeTrailGive) {
			return types.ExitDecisionFull(decimal.NewFromInt(1), "trailing_stop")
		}
	}

	if timeStopReached(trade, ctx.Now, copyTradeTimeStop) {
		return types.ExitDecisionFull(decimal.NewFromInt(1), "time_stop")
	}

	return types.HoldDecision()
}
