package strategy

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/chainscout/walletrader/pkg/types"
)

func init() {
	Register("volumeBreakout", func() Strategy { return &VolumeBreakout{} })
}

var (
	volumeBreakoutMultiplier   = decimal.NewFromFloat(2.5)
	volumeBreakoutMinBuyers    = 3
	volumeBreakoutMaxPerTrade  = decimal.NewFromInt(750)
	volumeBreakoutPct          = decimal.NewFromFloat(0.12)
	volumeBreakoutStopLoss     = decimal.NewFromFloat(0.15)
	volumeBreakoutTakeProfit   = decimal.NewFromFloat(0.30)
	volumeBreakoutTimeStop     = 48 * time.Hour
	volumeBreakoutBaselineUSD  = decimal.NewFromInt(1000)
)

// VolumeBreakout fires when a token's buys within the configured window
// (default last hour) come from at least three distinct buyers and total at
// least 2.5x a fixed $1000 volume baseline. The baseline is the same for
// every token; it is not derived from the token's own trading history.
type VolumeBreakout struct{}

func (s *VolumeBreakout) Name() string { return "volumeBreakout" }

func (s *VolumeBreakout) Evaluate(ctx *Context, tx *types.Transfer, wallet *types.Wallet) types.Decision {
	if tx.Action != types.ActionBuy {
		return types.SkipDecision("not a buy")
	}

	window := ctx.Config.VolumeBreakoutWindow
	if window <= 0 {
		window = time.Hour
	}
	start := ctx.Now.Add(-window).Unix()
	end := ctx.Now.Unix()

	recent, err := ctx.Store.TransfersByToken(ctx, tx.TokenAddress, tx.Chain, start, end)
	if err != nil || len(recent) == 0 {
		return types.SkipDecision("no recent volume data")
	}

	buyers := make(map[string]bool)
	totalUSD := decimal.Zero
	buyCount := 0
	for _, r := range recent {
		if r.Action != types.ActionBuy {
			continue
		}
		buyers[r.WalletAddress] = true
		totalUSD = totalUSD.Add(effectiveValue(r))
		buyCount++
	}

	if len(buyers) < volumeBreakoutMinBuyers {
		return types.SkipDecision("insufficient distinct buyers")
	}
	if totalUSD.LessThan(volumeBreakoutBaselineUSD.Mul(volumeBreakoutMultiplier)) {
		return types.SkipDecision("volume below breakout multiple")
	}

	size := decimal.Min(volumeBreakoutMaxPerTrade, volumeBreakoutPct.Mul(effectiveValue(tx)))
	return types.CopyDecision(size, types.ConfidenceMedium, "volume breakout: buyer and volume surge")
}

// Exit is synchronous: any re-check of volume must have happened before
// this call (e.g. in Evaluate or a prior tick), never spawned from inside
// Exit and discarded.
func (s *VolumeBreakout) Exit(ctx *Context, trade *types.PaperTrade, currentPrice decimal.Decimal) types.ExitDecision {
	if loss := priceLossFraction(trade.EntryPrice, currentPrice); loss.GreaterThanOrEqual(volumeBreakoutStopLoss) {
		return types.ExitDecisionFull(decimal.NewFromInt(1), "stop_loss")
	}
	gain := currentPrice.Sub(trade.EntryPrice).Div(trade.EntryPrice)
	if gain.GreaterThanOrEqual(volumeBreakoutTakeProfit) {
		return types.ExitDecisionFull(decimal.NewFromInt(1), "take_profit")
	}
	if timeStopReached(trade, ctx.Now, volumeBreakoutTimeStop) {
		return types.ExitDecisionFull(decimal.NewFromInt(1), "time_stop")
	}
	return types.HoldDecision()
}
