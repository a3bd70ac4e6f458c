package strategy

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/chainscout/walletrader/pkg/types"
)

type fakeStore struct {
	transfers []*types.Transfer
}

func (f *fakeStore) TransfersByToken(ctx context.Context, tokenAddress string, chain types.Chain, start, end int64) ([]*types.Transfer, error) {
	return f.transfers, nil
}

type fakePrices struct {
	quote *types.PriceQuote
}

func (f *fakePrices) GetPrice(ctx context.Context, tokenAddress string, chain types.Chain) *types.PriceQuote {
	return f.quote
}

func newCtx(store ReadStore, prices PriceReader, now time.Time) *Context {
	return &Context{
		Context: context.Background(),
		Store:   store,
		Prices:  prices,
		Config:  Config{VolumeBreakoutWindow: time.Hour},
		Now:     now,
	}
}

func d(s string) decimal.Decimal {
	v, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return v
}

// TestMemecoinTieredExitSellsRemainingAmountAtEachMultiple walks the exact
// price ladder of a 100000-token position entered at 0.001 and checks that
// the cumulative amounts sold at each tier match the spec's tiered
// take-profit schedule: 60% at 2x, 30% of what remains at 5x, 10% of what
// remains at 10x.
func TestMemecoinTieredExitSellsRemainingAmountAtEachMultiple(t *testing.T) {
	m := &Memecoin{}
	opened := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	ctx := newCtx(&fakeStore{}, &fakePrices{}, opened.Add(time.Hour))

	trade := &types.PaperTrade{
		EntryPrice: d("0.001"),
		Amount:     d("100000"),
		PeakPrice:  d("0.001"),
		OpenedAt:   opened,
	}

	steps := []struct {
		price       string
		wantExit    bool
		wantReason  string
		wantFracNum string
	}{
		{"0.0012", false, "", ""},
		{"0.002", true, "tier_2", "0.60"},
		{"0.005", true, "tier_5", "0.30"},
		{"0.010", true, "tier_10", "0.10"},
		{"0.012", false, "", ""},
	}

	remaining := trade.Amount
	wantRemaining := []string{"100000", "40000", "28000", "25200", "25200"}

	for i, step := range steps {
		price := d(step.price)
		if price.GreaterThan(trade.PeakPrice) {
			trade.PeakPrice = price
		}
		decision := m.Exit(ctx, trade, price)
		if decision.Exit != step.wantExit {
			t.Fatalf("step %d: Exit = %v, want %v", i, decision.Exit, step.wantExit)
		}
		if step.wantExit {
			if decision.Reason != step.wantReason {
				t.Errorf("step %d: reason = %q, want %q", i, decision.Reason, step.wantReason)
			}
			if !decision.SellFraction.Equal(d(step.wantFracNum)) {
				t.Errorf("step %d: fraction = %s, want %s", i, decision.SellFraction, step.wantFracNum)
			}
			trade.AppendTier(decision.Reason)
			sold := remaining.Mul(decision.SellFraction)
			remaining = remaining.Sub(sold)
			trade.Amount = remaining
		}
		if !trade.Amount.Equal(d(wantRemaining[i])) {
			t.Errorf("step %d: remaining amount = %s, want %s", i, trade.Amount, wantRemaining[i])
		}
	}

	// A later tick still above 10x must not re-fire tier_10.
	decision := m.Exit(ctx, trade, d("0.011"))
	if decision.Exit {
		t.Errorf("tier already recorded should not re-fire, got %+v", decision)
	}
}

func TestMemecoinStopLossOverridesTiers(t *testing.T) {
	m := &Memecoin{}
	opened := time.Now().Add(-time.Hour)
	ctx := newCtx(&fakeStore{}, &fakePrices{}, time.Now())
	trade := &types.PaperTrade{EntryPrice: d("1.0"), Amount: d("100"), PeakPrice: d("1.0"), OpenedAt: opened}

	decision := m.Exit(ctx, trade, d("0.55"))
	if !decision.Exit || decision.Reason != "stop_loss" {
		t.Fatalf("expected stop_loss exit, got %+v", decision)
	}
	if !decision.SellFraction.Equal(decimal.NewFromInt(1)) {
		t.Errorf("stop loss should sell full remaining amount, got %s", decision.SellFraction)
	}
}

func TestMemecoinEvaluateRequiresMultipleDistinctBuyers(t *testing.T) {
	m := &Memecoin{}
	wallet := &types.Wallet{Address: "0xbuyer"}
	tx := &types.Transfer{
		WalletAddress: "0xbuyer",
		TokenAddress:  "0xtoken",
		Action:        types.ActionBuy,
		TotalValueUSD: d("100"),
	}

	ctx := newCtx(&fakeStore{transfers: nil}, &fakePrices{}, time.Now())
	decision := m.Evaluate(ctx, tx, wallet)
	if decision.Copy {
		t.Fatal("expected skip with no other distinct buyers")
	}

	ctx = newCtx(&fakeStore{transfers: []*types.Transfer{
		{WalletAddress: "0xother", Action: types.ActionBuy},
	}}, &fakePrices{}, time.Now())
	decision = m.Evaluate(ctx, tx, wallet)
	if !decision.Copy {
		t.Fatalf("expected copy once a second distinct buyer is present, got %+v", decision)
	}
}
