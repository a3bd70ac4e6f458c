package strategy

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/chainscout/walletrader/pkg/types"
)

func init() {
	Register("smartMoney", func() Strategy { return &SmartMoney{} })
}

var (
	smartMoneyWhaleThreshold = decimal.NewFromInt(2000)
	smartMoneyMaxPerTrade    = decimal.NewFromInt(1000)
	smartMoneyPct            = decimal.NewFromFloat(0.15)
	smartMoneyStopLoss       = decimal.NewFromFloat(0.10)
	smartMoneyTakeProfit     = decimal.NewFromFloat(0.35)
	smartMoneyTimeStop       = 48 * time.Hour
)

// SmartMoney requires a known price and a transfer above the whale
// threshold; it sizes larger and exits tighter than CopyTrade.
type SmartMoney struct{}

func (s *SmartMoney) Name() string { return "smartMoney" }

func (s *SmartMoney) Evaluate(ctx *Context, tx *types.Transfer, wallet *types.Wallet) types.Decision {
	if tx.Action != types.ActionBuy {
		return types.SkipDecision("not a buy")
	}
	if !tx.PriceUSD.IsPositive() {
		return types.SkipDecision("price not known")
	}
	value := effectiveValue(tx)
	if value.LessThan(smartMoneyWhaleThreshold) {
		return types.SkipDecision("below whale threshold")
	}

	confidence := types.ConfidenceHigh
	if winRate, known := knownWinRate(wallet); known && winRate.LessThan(decimal.NewFromFloat(0.5)) {
		confidence = types.ConfidenceMedium
	} else if !known {
		confidence = types.ConfidenceMedium
	}

	size := decimal.Min(smartMoneyMaxPerTrade, smartMoneyPct.Mul(value))
	return types.CopyDecision(size, confidence, "smart money: whale buy with known price")
}

func (s *SmartMoney) Exit(ctx *Context, trade *types.PaperTrade, currentPrice decimal.Decimal) types.ExitDecision {
	if loss := priceLossFraction(trade.EntryPrice, currentPrice); loss.GreaterThanOrEqual(smartMoneyStopLoss) {
		return types.ExitDecisionFull(decimal.NewFromInt(1), "stop_loss")
	}
	gain := currentPrice.Sub(trade.EntryPrice).Div(trade.EntryPrice)
	if gain.GreaterThanOrEqual(smartMoneyTakeProfit) {
		return types.ExitDecisionFull(decimal.NewFromInt(1), "take_profit")
	}
	if timeStopReached(trade, ctx.Now, smartMoneyTimeStop) {
		return types.ExitDecisionFull(decimal.NewFromInt(1), "time_stop")
	}
	return types.HoldDecision()
}
