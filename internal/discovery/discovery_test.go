package discovery

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/chainscout/walletrader/pkg/types"
)

func d(s string) decimal.Decimal {
	v, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return v
}

type fakeStore struct {
	tokens     []*types.Token
	byToken    map[string][]*types.Transfer
	byWallet   map[string][]*types.Transfer
	tracked    map[string]bool
	discovered []*types.DiscoveredWallet
	sysValues  map[string]string
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		byToken:   make(map[string][]*types.Transfer),
		byWallet:  make(map[string][]*types.Transfer),
		tracked:   make(map[string]bool),
		sysValues: make(map[string]string),
	}
}

func (f *fakeStore) PumpCandidates(ctx context.Context, sinceUnix int64, pumpThreshold float64) ([]*types.Token, error) {
	return f.tokens, nil
}

func (f *fakeStore) TransfersByToken(ctx context.Context, tokenAddress string, chain types.Chain, start, end int64) ([]*types.Transfer, error) {
	return f.byToken[tokenAddress], nil
}

func (f *fakeStore) TransfersByWallet(ctx context.Context, address string, chain types.Chain) ([]*types.Transfer, error) {
	return f.byWallet[address], nil
}

func (f *fakeStore) IsTracked(ctx context.Context, address string, chain types.Chain) (bool, error) {
	return f.tracked[address], nil
}

func (f *fakeStore) AddDiscoveredWallet(ctx context.Context, dw *types.DiscoveredWallet) error {
	f.discovered = append(f.discovered, dw)
	return nil
}

type fakeErr string

func (e fakeErr) Error() string { return string(e) }

func (f *fakeStore) GetSystemValue(ctx context.Context, key string) (string, error) {
	v, ok := f.sysValues[key]
	if !ok {
		return "", fakeErr("not found")
	}
	return v, nil
}

func (f *fakeStore) SetSystemValue(ctx context.Context, key, value string) error {
	f.sysValues[key] = value
	return nil
}

func defaultConfig() Config {
	return Config{
		DailyLimit:        15,
		PumpTimeframe:     10 * 24 * time.Hour,
		PumpThreshold:     2.5,
		EarlyBuyThreshold: 0.25,
		MinTrades:         15,
		MinWinRate:        d("0.55"),
		MinProfitUSD:      d("3000"),
	}
}

func buildQualifyingWalletHistory(wallet string) []*types.Transfer {
	var out []*types.Transfer
	base := time.Now().Add(-30 * 24 * time.Hour)
	// 15 profitable round trips: buy at 1.0, sell at 1.5, each separated in time.
	for i := 0; i < 15; i++ {
		ts := base.Add(time.Duration(i) * time.Hour)
		out = append(out,
			&types.Transfer{WalletAddress: wallet, Chain: types.ChainEthereum, TxHash: "buy" + string(rune('a'+i)),
				TokenAddress: "0xprofittoken", Action: types.ActionBuy, Amount: d("1000"), PriceUSD: d("1.0"),
				TotalValueUSD: d("1000"), Timestamp: ts},
			&types.Transfer{WalletAddress: wallet, Chain: types.ChainEthereum, TxHash: "sell" + string(rune('a'+i)),
				TokenAddress: "0xprofittoken", Action: types.ActionSell, Amount: d("1000"), PriceUSD: d("1.5"),
				TotalValueUSD: d("1500"), Timestamp: ts.Add(time.Minute)},
		)
	}
	return out
}

func TestRunDiscoversProfitableEarlyBuyer(t *testing.T) {
	store := newFakeStore()
	now := time.Now()
	store.tokens = []*types.Token{
		{Address: "0xpump", Chain: types.ChainEthereum, FirstSeen: now.Add(-5 * 24 * time.Hour),
			CurrentPriceUSD: d("0.4"), MaxPriceUSD: d("1.0")},
	}
	store.byToken["0xpump"] = []*types.Transfer{
		{WalletAddress: "0xearly", Chain: types.ChainEthereum, TokenAddress: "0xpump",
			Action: types.ActionBuy, PriceUSD: d("0.10"), Timestamp: now.Add(-4 * 24 * time.Hour)},
		{WalletAddress: "0xlate", Chain: types.ChainEthereum, TokenAddress: "0xpump",
			Action: types.ActionBuy, PriceUSD: d("0.90"), Timestamp: now.Add(-1 * time.Hour)},
	}
	store.byWallet["0xearly"] = buildQualifyingWalletHistory("0xearly")

	disc := New(store, defaultConfig(), zap.NewNop())
	inserted, err := disc.Run(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if inserted != 1 {
		t.Fatalf("expected exactly one discovered wallet, got %d", inserted)
	}
	if store.discovered[0].Address != "0xearly" {
		t.Fatalf("expected the early buyer to be discovered, got %s", store.discovered[0].Address)
	}
	if store.discovered[0].TrackedTrades != 15 {
		t.Fatalf("expected 15 tracked trades, got %d", store.discovered[0].TrackedTrades)
	}
}

func TestRunSkipsWalletAlreadyTracked(t *testing.T) {
	store := newFakeStore()
	now := time.Now()
	store.tokens = []*types.Token{
		{Address: "0xpump", Chain: types.ChainEthereum, FirstSeen: now.Add(-5 * 24 * time.Hour),
			CurrentPriceUSD: d("0.4"), MaxPriceUSD: d("1.0")},
	}
	store.byToken["0xpump"] = []*types.Transfer{
		{WalletAddress: "0xearly", Chain: types.ChainEthereum, TokenAddress: "0xpump",
			Action: types.ActionBuy, PriceUSD: d("0.10"), Timestamp: now.Add(-4 * 24 * time.Hour)},
	}
	store.byWallet["0xearly"] = buildQualifyingWalletHistory("0xearly")
	store.tracked["0xearly"] = true

	disc := New(store, defaultConfig(), zap.NewNop())
	inserted, err := disc.Run(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if inserted != 0 {
		t.Fatalf("expected an already-tracked wallet to be skipped, got %d insertions", inserted)
	}
}

func TestRunRejectsInsufficientTradeCount(t *testing.T) {
	store := newFakeStore()
	now := time.Now()
	store.tokens = []*types.Token{
		{Address: "0xpump", Chain: types.ChainEthereum, FirstSeen: now.Add(-5 * 24 * time.Hour),
			CurrentPriceUSD: d("0.4"), MaxPriceUSD: d("1.0")},
	}
	store.byToken["0xpump"] = []*types.Transfer{
		{WalletAddress: "0xearly", Chain: types.ChainEthereum, TokenAddress: "0xpump",
			Action: types.ActionBuy, PriceUSD: d("0.10"), Timestamp: now.Add(-4 * 24 * time.Hour)},
	}
	full := buildQualifyingWalletHistory("0xearly")
	store.byWallet["0xearly"] = full[:4] // 2 round trips, below the 15-trade floor

	disc := New(store, defaultConfig(), zap.NewNop())
	inserted, err := disc.Run(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if inserted != 0 {
		t.Fatalf("expected insufficient trade count to be rejected, got %d", inserted)
	}
}

func TestRunRespectsDailyLimit(t *testing.T) {
	store := newFakeStore()
	now := time.Now()
	today := now.UTC().Format("2006-01-02")
	store.sysValues[dailyCounterKey] = today + "|15"

	store.tokens = []*types.Token{
		{Address: "0xpump", Chain: types.ChainEthereum, FirstSeen: now.Add(-5 * 24 * time.Hour),
			CurrentPriceUSD: d("0.4"), MaxPriceUSD: d("1.0")},
	}
	store.byToken["0xpump"] = []*types.Transfer{
		{WalletAddress: "0xearly", Chain: types.ChainEthereum, TokenAddress: "0xpump",
			Action: types.ActionBuy, PriceUSD: d("0.10"), Timestamp: now.Add(-4 * 24 * time.Hour)},
	}
	store.byWallet["0xearly"] = buildQualifyingWalletHistory("0xearly")

	disc := New(store, defaultConfig(), zap.NewNop())
	inserted, err := disc.Run(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if inserted != 0 {
		t.Fatalf("expected the exhausted daily quota to block insertion, got %d", inserted)
	}
}

func TestRunResetsQuotaOnNewDay(t *testing.T) {
	store := newFakeStore()
	now := time.Now()
	store.sysValues[dailyCounterKey] = "2000-01-01|15"

	store.tokens = []*types.Token{
		{Address: "0xpump", Chain: types.ChainEthereum, FirstSeen: now.Add(-5 * 24 * time.Hour),
			CurrentPriceUSD: d("0.4"), MaxPriceUSD: d("1.0")},
	}
	store.byToken["0xpump"] = []*types.Transfer{
		{WalletAddress: "0xearly", Chain: types.ChainEthereum, TokenAddress: "0xpump",
			Action: types.ActionBuy, PriceUSD: d("0.10"), Timestamp: now.Add(-4 * 24 * time.Hour)},
	}
	store.byWallet["0xearly"] = buildQualifyingWalletHistory("0xearly")

	disc := New(store, defaultConfig(), zap.NewNop())
	inserted, err := disc.Run(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if inserted != 1 {
		t.Fatalf("expected a stale date to reset the quota, got %d insertions", inserted)
	}
}
