package strategy

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/chainscout/walletrader/pkg/types"
)

func TestRegistryListIsSortedAndComplete(t *testing.T) {
	want := []string{"adaptive", "arbitrage", "copyTrade", "earlyGem", "memecoin", "smartMoney", "volumeBreakout"}
	got := List()
	if len(got) != len(want) {
		t.Fatalf("List() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("List()[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestAllReturnsOneInstancePerRegisteredName(t *testing.T) {
	all := All()
	if len(all) != len(List()) {
		t.Fatalf("All() returned %d strategies, want %d", len(all), len(List()))
	}
}

func TestCreateUnknownReturnsNil(t *testing.T) {
	if Create("not-a-real-strategy") != nil {
		t.Fatal("Create of unknown name should return nil")
	}
}

func winRatePtr(v string) *decimal.Decimal {
	r := d(v)
	return &r
}

func TestCopyTradeSkipsBelowMinimumSize(t *testing.T) {
	c := &CopyTrade{}
	ctx := newCtx(&fakeStore{}, &fakePrices{}, time.Now())
	tx := &types.Transfer{Action: types.ActionBuy, TotalValueUSD: d("10")}
	decision := c.Evaluate(ctx, tx, &types.Wallet{})
	if decision.Copy {
		t.Fatal("expected skip below minimum size")
	}
}

func TestCopyTradeSkipsPoorWinRate(t *testing.T) {
	c := &CopyTrade{}
	ctx := newCtx(&fakeStore{}, &fakePrices{}, time.Now())
	tx := &types.Transfer{Action: types.ActionBuy, TotalValueUSD: d("100")}
	wallet := &types.Wallet{WinRate: winRatePtr("0.2")}
	decision := c.Evaluate(ctx, tx, wallet)
	if decision.Copy {
		t.Fatal("expected skip with win rate below threshold")
	}
}

func TestCopyTradeTrailingStopArmsAndTriggers(t *testing.T) {
	c := &CopyTrade{}
	ctx := newCtx(&fakeStore{}, &fakePrices{}, time.Now())
	trade := &types.PaperTrade{EntryPrice: d("1.0"), PeakPrice: d("1.0"), OpenedAt: time.Now()}

	// Not armed yet: a 5% pullback from entry with no real peak shouldn't trail-stop.
	decision := c.Exit(ctx, trade, d("0.95"))
	if decision.Exit {
		t.Fatalf("unarmed trailing stop fired early: %+v", decision)
	}

	// Price runs to +30%, arming the trail.
	trade.PeakPrice = d("1.30")
	decision = c.Exit(ctx, trade, d("1.30"))
	if decision.Exit {
		t.Fatalf("no exit expected at the peak itself: %+v", decision)
	}

	// Gives back 10% from peak: should trigger.
	decision = c.Exit(ctx, trade, d("1.17"))
	if !decision.Exit || decision.Reason != "trailing_stop" {
		t.Fatalf("expected trailing_stop, got %+v", decision)
	}
}

func TestCopyTradeTimeStop(t *testing.T) {
	c := &CopyTrade{}
	opened := time.Now().Add(-49 * time.Hour)
	ctx := newCtx(&fakeStore{}, &fakePrices{}, time.Now())
	trade := &types.PaperTrade{EntryPrice: d("1.0"), PeakPrice: d("1.0"), OpenedAt: opened}
	decision := c.Exit(ctx, trade, d("1.0"))
	if !decision.Exit || decision.Reason != "time_stop" {
		t.Fatalf("expected time_stop after 48h, got %+v", decision)
	}
}

func TestSmartMoneyRequiresKnownPriceAndWhaleSize(t *testing.T) {
	s := &SmartMoney{}
	ctx := newCtx(&fakeStore{}, &fakePrices{}, time.Now())

	noPrice := &types.Transfer{Action: types.ActionBuy, TotalValueUSD: d("5000")}
	if d := s.Evaluate(ctx, noPrice, &types.Wallet{}); d.Copy {
		t.Fatal("expected skip when price is not known")
	}

	tooSmall := &types.Transfer{Action: types.ActionBuy, PriceUSD: d("1.0"), TotalValueUSD: d("100")}
	if d := s.Evaluate(ctx, tooSmall, &types.Wallet{}); d.Copy {
		t.Fatal("expected skip below whale threshold")
	}

	whale := &types.Transfer{Action: types.ActionBuy, PriceUSD: d("1.0"), TotalValueUSD: d("5000")}
	decision := s.Evaluate(ctx, whale, &types.Wallet{})
	if !decision.Copy || decision.Confidence != types.ConfidenceMedium {
		t.Fatalf("expected medium-confidence copy for unknown wallet, got %+v", decision)
	}
}

func TestVolumeBreakoutRequiresDistinctBuyersAndVolume(t *testing.T) {
	vb := &VolumeBreakout{}
	tx := &types.Transfer{Action: types.ActionBuy, TokenAddress: "0xtoken", TotalValueUSD: d("500")}

	thin := newCtx(&fakeStore{transfers: []*types.Transfer{
		{WalletAddress: "a", Action: types.ActionBuy, TotalValueUSD: d("100")},
	}}, &fakePrices{}, time.Now())
	if d := vb.Evaluate(thin, tx, &types.Wallet{}); d.Copy {
		t.Fatal("expected skip with too few distinct buyers")
	}

	surge := newCtx(&fakeStore{transfers: []*types.Transfer{
		{WalletAddress: "a", Action: types.ActionBuy, TotalValueUSD: d("1000")},
		{WalletAddress: "b", Action: types.ActionBuy, TotalValueUSD: d("1000")},
		{WalletAddress: "c", Action: types.ActionBuy, TotalValueUSD: d("1000")},
	}}, &fakePrices{}, time.Now())
	decision := vb.Evaluate(surge, tx, &types.Wallet{})
	if !decision.Copy {
		t.Fatalf("expected breakout copy with sufficient buyers and volume, got %+v", decision)
	}
}

func TestArbitrageRejectsUnsupportedChain(t *testing.T) {
	a := &Arbitrage{}
	ctx := newCtx(&fakeStore{}, &fakePrices{}, time.Now())
	tx := &types.Transfer{Action: types.ActionBuy, Chain: types.ChainSolana, TotalValueUSD: d("500")}
	if d := a.Evaluate(ctx, tx, &types.Wallet{}); d.Copy {
		t.Fatal("expected skip on unsupported chain")
	}
}

func TestEarlyGemRequiresProvenWallet(t *testing.T) {
	e := &EarlyGem{}
	ctx := newCtx(&fakeStore{}, &fakePrices{}, time.Now())
	tx := &types.Transfer{Action: types.ActionBuy, TotalValueUSD: d("50")}

	if d := e.Evaluate(ctx, tx, &types.Wallet{}); d.Copy {
		t.Fatal("expected skip for wallet with unknown win rate")
	}

	proven := &types.Wallet{WinRate: winRatePtr("0.7")}
	decision := e.Evaluate(ctx, tx, proven)
	if !decision.Copy || decision.Confidence != types.ConfidenceHigh {
		t.Fatalf("expected high-confidence copy for a strongly proven wallet, got %+v", decision)
	}
}

func TestAdaptiveSkipsWhenAllChildrenPaused(t *testing.T) {
	a := &Adaptive{}
	ctx := newCtx(&fakeStore{}, &fakePrices{}, time.Now())
	ctx.Paused = allPaused{}
	tx := &types.Transfer{Action: types.ActionBuy, PriceUSD: d("1.0"), TotalValueUSD: d("5000")}
	decision := a.Evaluate(ctx, tx, &types.Wallet{})
	if decision.Copy {
		t.Fatal("expected skip when every child strategy is paused")
	}
}

func TestAdaptivePicksHighestConfidenceChild(t *testing.T) {
	a := &Adaptive{}
	ctx := newCtx(&fakeStore{}, &fakePrices{}, time.Now())
	// A 0.55 win rate keeps copyTrade at medium confidence (its high bar is
	// 0.6) while smartMoney, whose only downgrade condition is winRate<0.5,
	// stays high. Adaptive must prefer the higher-confidence child.
	wallet := &types.Wallet{WinRate: winRatePtr("0.55")}
	tx := &types.Transfer{Action: types.ActionBuy, PriceUSD: d("1.0"), TotalValueUSD: d("5000")}
	decision := a.Evaluate(ctx, tx, wallet)
	if !decision.Copy {
		t.Fatal("expected a copy decision")
	}
	if decision.Confidence != types.ConfidenceHigh {
		t.Fatalf("expected the highest-confidence child to win, got confidence %v", decision.Confidence)
	}
}

func TestAdaptiveStampsChildStrategyOnTheFiringDecision(t *testing.T) {
	a := &Adaptive{}
	ctx := newCtx(&fakeStore{}, &fakePrices{}, time.Now())
	wallet := &types.Wallet{WinRate: winRatePtr("0.55")}
	tx := &types.Transfer{Action: types.ActionBuy, PriceUSD: d("1.0"), TotalValueUSD: d("5000")}
	decision := a.Evaluate(ctx, tx, wallet)
	if !decision.Copy {
		t.Fatal("expected a copy decision")
	}
	if decision.ChildStrategy == "" || decision.ChildStrategy == a.Name() {
		t.Fatalf("expected ChildStrategy to name the winning child, got %q", decision.ChildStrategy)
	}
}

func TestAdaptiveExitDelegatesToChildStrategy(t *testing.T) {
	a := &Adaptive{}
	ctx := newCtx(&fakeStore{}, &fakePrices{}, time.Now())
	trade := &types.PaperTrade{ChildStrategy: "smartMoney", EntryPrice: d("1.0"), PeakPrice: d("1.0"), OpenedAt: time.Now()}

	decision := a.Exit(ctx, trade, d("0.89"))
	if !decision.Exit || decision.Reason != "stop_loss" {
		t.Fatalf("expected the delegated smartMoney stop_loss to fire, got %+v", decision)
	}
}

func TestAdaptiveExitHoldsWithoutChildStrategy(t *testing.T) {
	a := &Adaptive{}
	ctx := newCtx(&fakeStore{}, &fakePrices{}, time.Now())
	trade := &types.PaperTrade{EntryPrice: d("1.0"), PeakPrice: d("1.0"), OpenedAt: time.Now()}

	decision := a.Exit(ctx, trade, d("0.10"))
	if decision.Exit {
		t.Fatalf("expected hold when ChildStrategy is unset, got %+v", decision)
	}
}

type allPaused struct{}

func (allPaused) StrategyPaused(name string) bool { return true }
