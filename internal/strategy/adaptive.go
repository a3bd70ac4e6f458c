package strategy

import (
	"github.com/shopspring/decimal"

	"github.com/chainscout/walletrader/pkg/types"
)

func init() {
	Register("adaptive", func() Strategy { return &Adaptive{} })
}

// adaptiveChildren is the closed set Adaptive is allowed to delegate to.
// It never delegates to itself.
var adaptiveChildren = []string{"copyTrade", "smartMoney", "memecoin", "arbitrage", "earlyGem", "volumeBreakout"}

// Adaptive is a meta-strategy: on each transfer it asks every non-paused
// child for a decision and copies whichever one fires with the highest
// confidence, breaking ties by the child's recent win rate. If every
// child is paused (risk management has shut all of them down) or none
// fires, Adaptive skips. It never evaluates a child that risk management
// has paused, mirroring that child's own auto-pause state rather than
// maintaining a separate one.
type Adaptive struct{}

func (s *Adaptive) Name() string { return "adaptive" }

func (s *Adaptive) Evaluate(ctx *Context, tx *types.Transfer, wallet *types.Wallet) types.Decision {
	var best types.Decision
	haveBest := false
	var bestWinRate decimal.Decimal
	bestKnown := false

	for _, name := range adaptiveChildren {
		if ctx.Paused != nil && ctx.Paused.StrategyPaused(name) {
			continue
		}
		child := Create(name)
		if child == nil {
			continue
		}
		decision := child.Evaluate(ctx, tx, wallet)
		if !decision.Copy {
			continue
		}
		decision.ChildStrategy = name

		winRate, known := decimal.Zero, false
		if ctx.Performance != nil {
			winRate, known = ctx.Performance.RecentWinRate(ctx, name)
		}

		switch {
		case !haveBest:
			best, haveBest = decision, true
			bestWinRate, bestKnown = winRate, known
		case confidenceRank(decision.Confidence) > confidenceRank(best.Confidence):
			best = decision
			bestWinRate, bestKnown = winRate, known
		case confidenceRank(decision.Confidence) == confidenceRank(best.Confidence):
			if known && (!bestKnown || winRate.GreaterThan(bestWinRate)) {
				best = decision
				bestWinRate, bestKnown = winRate, known
			}
		}
	}

	if !haveBest {
		return types.SkipDecision("no eligible child strategy fired")
	}
	return best
}

// Exit delegates to whichever child strategy actually opened the trade,
// recorded on the trade's ChildStrategy field. Adaptive never re-decides
// an exit with its own logic once a child owns the position.
func (s *Adaptive) Exit(ctx *Context, trade *types.PaperTrade, currentPrice decimal.Decimal) types.ExitDecision {
	if trade.ChildStrategy == "" {
		return types.HoldDecision()
	}
	child := Create(trade.ChildStrategy)
	if child == nil {
		return types.HoldDecision()
	}
	return child.Exit(ctx, trade, currentPrice)
}

func confidenceRank(c types.Confidence) int {
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
