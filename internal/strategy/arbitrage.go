package strategy

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/chainscout/walletrader/pkg/types"
)

func init() {
	Register("arbitrage", func() Strategy { return &Arbitrage{} })
}

var (
	arbitrageMinSize     = decimal.NewFromInt(250)
	arbitrageMaxPerTrade = decimal.NewFromInt(600)
	arbitragePct         = decimal.NewFromFloat(0.10)
	arbitrageStopLoss    = decimal.NewFromFloat(0.08)
	arbitrageTakeProfit  = decimal.NewFromFloat(0.20)
	arbitrageTimeStop    = 12 * time.Hour
)

// arbitrageChains is the set of networks this strategy considers, chosen
// for where DeFi arbitrage wallets are actually active.
var arbitrageChains = map[types.Chain]bool{
	types.ChainEthereum: true,
	types.ChainArbitrum: true,
	types.ChainOptimism: true,
	types.ChainPolygon:  true,
	types.ChainBase:     true,
}

// Arbitrage copies EVM DeFi-arbitrage wallets: fast-turnaround buys above
// a moderate threshold, held for a much shorter window than the other
// strategies since arb profits decay quickly.
type Arbitrage struct{}

func (s *Arbitrage) Name() string { return "arbitrage" }

func (s *Arbitrage) Evaluate(ctx *Context, tx *types.Transfer, wallet *types.Wallet) types.Decision {
	if tx.Action != types.ActionBuy {
		return types.SkipDecision("not a buy")
	}
	if !arbitrageChains[tx.Chain] {
		return types.SkipDecision("unsupported chain")
	}
	value := effectiveValue(tx)
	if value.LessThan(arbitrageMinSize) {
		return types.SkipDecision("below minimum size")
	}

	confidence := types.ConfidenceMedium
	if winRate, known := knownWinRate(wallet); known && winRate.GreaterThan(decimal.NewFromFloat(0.55)) {
		confidence = types.ConfidenceHigh
	}

	size := decimal.Min(arbitrageMaxPerTrade, arbitragePct.Mul(value))
	return types.CopyDecision(size, confidence, "arbitrage: EVM DeFi wallet buy")
}

func (s *Arbitrage) Exit(ctx *Context, trade *types.PaperTrade, currentPrice decimal.Decimal) types.ExitDecision {
	if loss := priceLossFraction(trade.EntryPrice, currentPrice); loss.GreaterThanOrEqual(arbitrageStopLoss) {
		return types.ExitDecisionFull(decimal.NewFromInt(1), "stop_loss")
	}
	gain := currentPrice.Sub(trade.EntryPrice).Div(trade.EntryPrice)
	if gain.GreaterThanOrEqual(arbitrageTakeProfit) {
		return types.ExitDecisionFull(decimal.NewFromInt(1), "take_profit")
	}
	if timeStopReached(trade, ctx.Now, arbitrageTimeStop) {
		return types.ExitDecisionFull(decimal.NewFromInt(1), "time_stop")
	}
	return types.HoldDecision()
}
