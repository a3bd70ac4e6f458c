package trading

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/chainscout/walletrader/internal/risk"
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
	wallets    map[string]*types.Wallet
	transfers  map[string][]*types.Transfer
	open       map[string]*types.PaperTrade
	closed     []*types.PaperTrade
	sysValues  map[string]string
	totalCapital decimal.Decimal
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		wallets:   make(map[string]*types.Wallet),
		transfers: make(map[string][]*types.Transfer),
		open:      make(map[string]*types.PaperTrade),
		sysValues: make(map[string]string),
	}
}

func (f *fakeStore) TransfersByToken(ctx context.Context, tokenAddress string, chain types.Chain, start, end int64) ([]*types.Transfer, error) {
	return f.transfers[tokenAddress], nil
}

func (f *fakeStore) GetWallet(ctx context.Context, address string, chain types.Chain) (*types.Wallet, error) {
	w, ok := f.wallets[address]
	if !ok {
		return nil, nil
	}
	return w, nil
}

func (f *fakeStore) OpenPaperTrade(ctx context.Context, t *types.PaperTrade) error {
	f.open[t.ID] = t
	return nil
}

func (f *fakeStore) UpdatePeakPrice(ctx context.Context, id string, price decimal.Decimal) error {
	if t, ok := f.open[id]; ok && price.GreaterThan(t.PeakPrice) {
		t.PeakPrice = price
	}
	return nil
}

func (f *fakeStore) UpdatePaperTradePartialExit(ctx context.Context, id string, amount, entryValueUSD, realizedPnLPartial, peakPrice decimal.Decimal, notes string) error {
	t, ok := f.open[id]
	if !ok {
		return nil
	}
	t.Amount = amount
	t.EntryValueUSD = entryValueUSD
	t.RealizedPnLPartial = realizedPnLPartial
	t.PeakPrice = peakPrice
	t.Notes = notes
	return nil
}

func (f *fakeStore) ClosePaperTrade(ctx context.Context, id string, exitPrice, exitValueUSD, pnl, pnlPct decimal.Decimal, exitReason string, exitTime time.Time) error {
	t, ok := f.open[id]
	if !ok {
		return nil
	}
	delete(f.open, id)
	t.Status = types.TradeStatusClosed
	t.ExitPrice = &exitPrice
	t.ExitValueUSD = &exitValueUSD
	t.PnL = &pnl
	t.PnLPercentage = &pnlPct
	t.ExitReason = exitReason
	t.ExitTime = &exitTime
	f.closed = append(f.closed, t)
	return nil
}

func (f *fakeStore) OpenTrades(ctx context.Context) ([]*types.PaperTrade, error) {
	out := make([]*types.PaperTrade, 0, len(f.open))
	for _, t := range f.open {
		out = append(out, t)
	}
	return out, nil
}

func (f *fakeStore) AvailableCapital(ctx context.Context, startingCapital decimal.Decimal) (decimal.Decimal, error) {
	realized := decimal.Zero
	for _, t := range f.closed {
		if t.PnL != nil {
			realized = realized.Add(*t.PnL)
		}
	}
	openEntry := decimal.Zero
	partial := decimal.Zero
	for _, t := range f.open {
		openEntry = openEntry.Add(t.EntryValueUSD)
		partial = partial.Add(t.RealizedPnLPartial)
	}
	return startingCapital.Add(realized).Add(partial).Sub(openEntry), nil
}

func (f *fakeStore) RealizedPnLSince(ctx context.Context, since time.Time) (decimal.Decimal, error) {
	sum := decimal.Zero
	for _, t := range f.closed {
		if t.PnL != nil && t.ExitTime != nil && !t.ExitTime.Before(since) {
			sum = sum.Add(*t.PnL)
		}
	}
	return sum, nil
}

func (f *fakeStore) GetSystemValue(ctx context.Context, key string) (string, error) {
	v, ok := f.sysValues[key]
	if !ok {
		return "", errNotFound
	}
	return v, nil
}

func (f *fakeStore) SetSystemValue(ctx context.Context, key, value string) error {
	f.sysValues[key] = value
	return nil
}

type fakeErr string

func (e fakeErr) Error() string { return string(e) }

const errNotFound = fakeErr("not found")

type fakePrices struct {
	quotes map[string]*types.PriceQuote
}

func (f *fakePrices) GetPrice(ctx context.Context, tokenAddress string, chain types.Chain) *types.PriceQuote {
	if f.quotes == nil {
		return nil
	}
	return f.quotes[tokenAddress]
}

func newEngine(store *fakeStore, prices *fakePrices, totalCapital decimal.Decimal) *Engine {
	riskMgr := risk.New(risk.DefaultConfig(), zap.NewNop())
	return New(store, prices, riskMgr, Config{TotalCapital: totalCapital, VolumeBreakoutWindow: time.Hour}, zap.NewNop())
}

func TestProcessOpensTradeForQualifyingTransfer(t *testing.T) {
	store := newFakeStore()
	store.wallets["0xw"] = &types.Wallet{Address: "0xw", Chain: types.ChainEthereum, Status: types.WalletStatusActive}
	prices := &fakePrices{}
	e := newEngine(store, prices, d("10000"))

	tx := &types.Transfer{
		WalletAddress: "0xw", Chain: types.ChainEthereum, TxHash: "0xhash1",
		TokenAddress: "0xtoken", Action: types.ActionBuy,
		PriceUSD: d("2.0"), TotalValueUSD: d("100"), Amount: d("50"),
	}

	e.Process(context.Background(), []*types.Transfer{tx})

	if len(store.open) != 1 {
		t.Fatalf("expected exactly one open trade, got %d", len(store.open))
	}
}

func TestProcessSkipsUnknownWallet(t *testing.T) {
	store := newFakeStore()
	prices := &fakePrices{}
	e := newEngine(store, prices, d("10000"))

	tx := &types.Transfer{
		WalletAddress: "0xghost", Chain: types.ChainEthereum, TxHash: "0xhash1",
		TokenAddress: "0xtoken", Action: types.ActionBuy,
		PriceUSD: d("2.0"), TotalValueUSD: d("100"), Amount: d("50"),
	}
	e.Process(context.Background(), []*types.Transfer{tx})

	if len(store.open) != 0 {
		t.Fatalf("expected no trade for an untracked wallet, got %d", len(store.open))
	}
}

func TestProcessDedupesRepeatedTransfer(t *testing.T) {
	store := newFakeStore()
	store.wallets["0xw"] = &types.Wallet{Address: "0xw", Chain: types.ChainEthereum, Status: types.WalletStatusActive}
	prices := &fakePrices{}
	e := newEngine(store, prices, d("10000"))

	tx := &types.Transfer{
		WalletAddress: "0xw", Chain: types.ChainEthereum, TxHash: "0xhash1",
		TokenAddress: "0xtoken", Action: types.ActionBuy,
		PriceUSD: d("2.0"), TotalValueUSD: d("100"), Amount: d("50"),
	}
	e.Process(context.Background(), []*types.Transfer{tx, tx})

	if len(store.open) != 1 {
		t.Fatalf("expected the repeated transfer to be deduped, got %d open trades", len(store.open))
	}
}

func TestProcessSkipsCandidateWithNoResolvablePrice(t *testing.T) {
	store := newFakeStore()
	store.wallets["0xw"] = &types.Wallet{Address: "0xw", Chain: types.ChainEthereum, Status: types.WalletStatusActive}
	prices := &fakePrices{}
	e := newEngine(store, prices, d("10000"))

	tx := &types.Transfer{
		WalletAddress: "0xw", Chain: types.ChainEthereum, TxHash: "0xhash1",
		TokenAddress: "0xtoken", Action: types.ActionBuy,
		TotalValueUSD: d("100"),
		// Amount left zero: total-value/amount fallback cannot resolve either.
	}
	e.Process(context.Background(), []*types.Transfer{tx})

	if len(store.open) != 0 {
		t.Fatalf("expected no trade opened with an unresolvable price, got %d", len(store.open))
	}
}

func TestManageOpenPositionsClosesOnStopLoss(t *testing.T) {
	store := newFakeStore()
	trade := &types.PaperTrade{
		ID: "t1", TokenAddress: "0xtoken", Chain: types.ChainEthereum,
		StrategyUsed: "copyTrade", SourceWallet: "0xw",
		EntryPrice: d("1.0"), Amount: d("100"), EntryValueUSD: d("100"),
		PeakPrice: d("1.0"), Status: types.TradeStatusOpen, OpenedAt: time.Now(),
	}
	store.open[trade.ID] = trade
	prices := &fakePrices{quotes: map[string]*types.PriceQuote{
		"0xtoken": {PriceUSD: d("0.85")}, // -15% triggers copyTrade's 12% stop
	}}
	e := newEngine(store, prices, d("10000"))

	e.ManageOpenPositions(context.Background())

	if len(store.open) != 0 {
		t.Fatalf("expected the position to close on stop loss, still open: %d", len(store.open))
	}
	if len(store.closed) != 1 || store.closed[0].ExitReason != "stop_loss" {
		t.Fatalf("expected one stop_loss close, got %+v", store.closed)
	}
}

func TestManageOpenPositionsAppliesMemecoinPartialExit(t *testing.T) {
	store := newFakeStore()
	trade := &types.PaperTrade{
		ID: "t2", TokenAddress: "0xmeme", Chain: types.ChainSolana,
		StrategyUsed: "memecoin", SourceWallet: "0xw",
		EntryPrice: d("0.001"), Amount: d("100000"), EntryValueUSD: d("100"),
		PeakPrice: d("0.001"), Status: types.TradeStatusOpen, OpenedAt: time.Now(),
	}
	store.open[trade.ID] = trade
	prices := &fakePrices{quotes: map[string]*types.PriceQuote{
		"0xmeme": {PriceUSD: d("0.002")}, // exactly 2x: tier_2 fires
	}}
	e := newEngine(store, prices, d("10000"))

	e.ManageOpenPositions(context.Background())

	if len(store.open) != 1 {
		t.Fatalf("expected the position to remain open after a partial exit, got %d open", len(store.open))
	}
	remaining := store.open["t2"]
	if !remaining.Amount.Equal(d("40000")) {
		t.Fatalf("expected 40000 tokens remaining after tier_2, got %s", remaining.Amount)
	}
	if !remaining.HasTier("tier_2") {
		t.Fatal("expected tier_2 marker recorded on the trade")
	}
	if !remaining.RealizedPnLPartial.GreaterThan(decimal.Zero) {
		t.Fatalf("expected positive realized pnl from the partial exit, got %s", remaining.RealizedPnLPartial)
	}
}

func TestAvailableCapitalConservedAcrossOpenAndClose(t *testing.T) {
	store := newFakeStore()
	store.wallets["0xw"] = &types.Wallet{Address: "0xw", Chain: types.ChainEthereum, Status: types.WalletStatusActive}
	prices := &fakePrices{}
	e := newEngine(store, prices, d("10000"))

	tx := &types.Transfer{
		WalletAddress: "0xw", Chain: types.ChainEthereum, TxHash: "0xhash1",
		TokenAddress: "0xtoken", Action: types.ActionBuy,
		PriceUSD: d("2.0"), TotalValueUSD: d("100"), Amount: d("50"),
	}
	e.Process(context.Background(), []*types.Transfer{tx})

	available, _ := store.AvailableCapital(context.Background(), d("10000"))
	if !available.Equal(d("9990")) {
		t.Fatalf("expected 9990 available after opening a 10usd position, got %s", available)
	}

	for id, trade := range store.open {
		_ = id
		prices.quotes = map[string]*types.PriceQuote{trade.TokenAddress: {PriceUSD: d("3.0")}}
	}
	e.ManageOpenPositions(context.Background())

	available, _ = store.AvailableCapital(context.Background(), d("10000"))
	if available.LessThan(d("10000")) {
		t.Fatalf("expected available capital to recover above starting capital after a profitable close, got %s", available)
	}
}
