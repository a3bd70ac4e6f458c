package strategy

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/chainscout/walletrader/pkg/types"
)

func init() {
	Register("memecoin", func() Strategy { return &Memecoin{} })
}

var (
	memecoinMinSize       = decimal.NewFromInt(30)
	memecoinMaxPerTrade   = decimal.NewFromInt(300)
	memecoinPct           = decimal.NewFromFloat(0.08)
	memecoinDistinctWindow = time.Hour
	memecoinMinDistinct   = 2
	memecoinStopLoss      = decimal.NewFromFloat(0.40)
	memecoinTimeStop      = 48 * time.Hour
)

// memecoinTier describes one rung of the tiered take-profit ladder: at
// multiple X of entry price, sell fraction of the CURRENT remaining amount.
type memecoinTier struct {
	multiple decimal.Decimal
	fraction decimal.Decimal
	marker   string
}

var memecoinTiers = []memecoinTier{
	{multiple: decimal.NewFromInt(2), fraction: decimal.NewFromFloat(0.60), marker: "tier_2"},
	{multiple: decimal.NewFromInt(5), fraction: decimal.NewFromFloat(0.30), marker: "tier_5"},
	{multiple: decimal.NewFromInt(10), fraction: decimal.NewFromFloat(0.10), marker: "tier_10"},
}

// Memecoin is biased toward Solana and requires more than one distinct
// buyer for the same token within a short window before copying, then
// sells down a tiered ladder as price multiples of entry are crossed
// rather than exiting in one shot.
type Memecoin struct{}

func (s *Memecoin) Name() string { return "memecoin" }

func (s *Memecoin) Evaluate(ctx *Context, tx *types.Transfer, wallet *types.Wallet) types.Decision {
	if tx.Action != types.ActionBuy {
		return types.SkipDecision("not a buy")
	}
	value := effectiveValue(tx)
	if value.LessThan(memecoinMinSize) {
		return types.SkipDecision("below minimum copy size")
	}

	start := ctx.Now.Add(-memecoinDistinctWindow).Unix()
	end := ctx.Now.Unix()
	recent, err := ctx.Store.TransfersByToken(ctx, tx.TokenAddress, tx.Chain, start, end)
	if err != nil {
		return types.SkipDecision("no recent transfer data")
	}
	buyers := map[string]bool{tx.WalletAddress: true}
	for _, r := range recent {
		if r.Action == types.ActionBuy {
			buyers[r.WalletAddress] = true
		}
	}
	if len(buyers) < memecoinMinDistinct {
		return types.SkipDecision("insufficient distinct buyers for token")
	}

	confidence := types.ConfidenceMedium
	if tx.Chain == types.ChainSolana {
		confidence = types.ConfidenceHigh
	}

	size := decimal.Min(memecoinMaxPerTrade, memecoinPct.Mul(value))
	return types.CopyDecision(size, confidence, "memecoin: multi-buyer momentum")
}

// Exit walks the tier ladder from the highest multiple down, selling the
// first tier not yet marked on the trade. Tiers are idempotent: a tier
// already recorded on trade.Notes is never re-triggered, so repeated
// ticks at the same price do not re-sell.
func (s *Memecoin) Exit(ctx *Context, trade *types.PaperTrade, currentPrice decimal.Decimal) types.ExitDecision {
	if loss := priceLossFraction(trade.EntryPrice, currentPrice); loss.GreaterThanOrEqual(memecoinStopLoss) {
		return types.ExitDecisionFull(decimal.NewFromInt(1), "stop_loss")
	}

	multiple := priceGainMultiple(trade.EntryPrice, currentPrice)
	for i := len(memecoinTiers) - 1; i >= 0; i-- {
		tier := memecoinTiers[i]
		if trade.HasTier(tier.marker) {
			continue
		}
		if multiple.GreaterThanOrEqual(tier.multiple) {
			return types.ExitDecisionFull(tier.fraction, tier.marker)
		}
	}

	if timeStopReached(trade, ctx.Now, memecoinTimeStop) {
		return types.ExitDecisionFull(decimal.NewFromInt(1), "time_stop")
	}

	return types.HoldDecision()
}
