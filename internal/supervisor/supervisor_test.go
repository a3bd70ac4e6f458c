package supervisor

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/chainscout/walletrader/internal/chainclient"
	"github.com/chainscout/walletrader/internal/scheduler"
	"github.com/chainscout/walletrader/pkg/types"
)

type fakeStore struct {
	mu         sync.Mutex
	wallets    []*types.Wallet
	transfers  []*types.Transfer
	tokens     map[string]*types.Token
	closed     map[string][]*types.PaperTrade
	openedCnt  map[string]int
	rollups    []*types.StrategyPerformance
}

func newFakeStore(wallets []*types.Wallet) *fakeStore {
	return &fakeStore{wallets: wallets, tokens: make(map[string]*types.Token)}
}

func (f *fakeStore) ActiveWallets(ctx context.Context) ([]*types.Wallet, error) { return f.wallets, nil }

func (f *fakeStore) AddTransfer(ctx context.Context, t *types.Transfer) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.transfers = append(f.transfers, t)
	return nil
}

func (f *fakeStore) AddOrUpdateToken(ctx context.Context, t *types.Token) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tokens[t.Address] = t
	return nil
}

func (f *fakeStore) GetToken(ctx context.Context, address string, chain types.Chain) (*types.Token, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.tokens[address], nil
}

func (f *fakeStore) ClosedTradesByStrategy(ctx context.Context, strategy string, start, end time.Time) ([]*types.PaperTrade, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed[strategy], nil
}

func (f *fakeStore) TradesOpenedCountByStrategy(ctx context.Context, strategy string, start, end time.Time) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.openedCnt[strategy], nil
}

func (f *fakeStore) UpsertStrategyPerformance(ctx context.Context, p *types.StrategyPerformance) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rollups = append(f.rollups, p)
	return nil
}

type fakeChainClient struct {
	mu        sync.Mutex
	transfers []*types.Transfer
	calls     int
}

func (f *fakeChainClient) GetRecentTokenTransfers(ctx context.Context, wallet string, chain types.Chain, sinceCursor string) ([]*types.Transfer, string, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	return f.transfers, "cursor1", nil
}

func (f *fakeChainClient) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeEngine struct {
	mu            sync.Mutex
	processed     [][]*types.Transfer
	manageCalls   int
	shutdownCalls int
}

func (f *fakeEngine) Process(ctx context.Context, transfers []*types.Transfer) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.processed = append(f.processed, transfers)
}

func (f *fakeEngine) ManageOpenPositions(ctx context.Context) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.manageCalls++
}

func (f *fakeEngine) Shutdown() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.shutdownCalls++
}

type fakeDiscoverer struct {
	calls int
}

func (f *fakeDiscoverer) Run(ctx context.Context) (int, error) {
	f.calls++
	return 0, nil
}

type fakeMonitor struct {
	calls int
}

func (f *fakeMonitor) ProbeAll(ctx context.Context) {
	f.calls++
}

func TestRunIngestTickStoresTransfersAndHandsThemToEngine(t *testing.T) {
	wallet := &types.Wallet{Address: "0xabc", Chain: types.ChainEthereum}
	store := newFakeStore([]*types.Wallet{wallet})
	sched := scheduler.New(zap.NewNop())
	sched.SetActiveWallets([]*types.Wallet{wallet})

	client := &fakeChainClient{transfers: []*types.Transfer{
		{WalletAddress: "0xabc", Chain: types.ChainEthereum, TxHash: "tx1", TokenAddress: "0xtok",
			Action: types.ActionBuy, Amount: decimal.NewFromInt(100), PriceUSD: decimal.NewFromInt(1),
			TotalValueUSD: decimal.NewFromInt(100), Timestamp: time.Now()},
	}}
	engine := &fakeEngine{}

	sv := New(store, sched, map[types.Chain]chainclient.ChainClient{types.ChainEthereum: client},
		engine, nil, nil, Config{}, zap.NewNop())

	sv.runIngestTick(context.Background())

	if got := client.callCount(); got != 1 {
		t.Fatalf("expected chain client to be called once, got %d", got)
	}
	if len(store.transfers) != 1 {
		t.Fatalf("expected one transfer stored, got %d", len(store.transfers))
	}
	if len(engine.processed) != 1 || len(engine.processed[0]) != 1 {
		t.Fatalf("expected engine to process the stored transfer, got %+v", engine.processed)
	}
	if _, ok := store.tokens["0xtok"]; !ok {
		t.Fatalf("expected token peak to be upserted")
	}
}

func TestRunIngestTickSkipsChainWithNoRegisteredClient(t *testing.T) {
	wallet := &types.Wallet{Address: "0xabc", Chain: types.ChainSolana}
	store := newFakeStore([]*types.Wallet{wallet})
	sched := scheduler.New(zap.NewNop())
	sched.SetActiveWallets([]*types.Wallet{wallet})
	engine := &fakeEngine{}

	sv := New(store, sched, map[types.Chain]chainclient.ChainClient{}, engine, nil, nil, Config{}, zap.NewNop())
	sv.runIngestTick(context.Background())

	if len(store.transfers) != 0 {
		t.Fatalf("expected no transfers stored for an unregistered chain, got %d", len(store.transfers))
	}
}

func TestRunIngestTickSkippedWhenPreviousTickStillRunning(t *testing.T) {
	wallet := &types.Wallet{Address: "0xabc", Chain: types.ChainEthereum}
	store := newFakeStore([]*types.Wallet{wallet})
	sched := scheduler.New(zap.NewNop())
	sched.SetActiveWallets([]*types.Wallet{wallet})
	sched.Acquire() // simulate an in-flight tick, never released

	client := &fakeChainClient{}
	engine := &fakeEngine{}
	sv := New(store, sched, map[types.Chain]chainclient.ChainClient{types.ChainEthereum: client},
		engine, nil, nil, Config{}, zap.NewNop())

	sv.runIngestTick(context.Background())

	if got := client.callCount(); got != 0 {
		t.Fatalf("expected the tick to be skipped entirely, got %d chain client calls", got)
	}
}

func TestIngestChainFansOutAcrossWallets(t *testing.T) {
	wallets := make([]*types.Wallet, 0, 10)
	for i := 0; i < 10; i++ {
		wallets = append(wallets, &types.Wallet{Address: string(rune('a' + i)), Chain: types.ChainEthereum})
	}
	store := newFakeStore(wallets)
	sched := scheduler.New(zap.NewNop())
	sched.SetActiveWallets(wallets)

	client := &fakeChainClient{}
	engine := &fakeEngine{}
	sv := New(store, sched, map[types.Chain]chainclient.ChainClient{types.ChainEthereum: client},
		engine, nil, nil, Config{}, zap.NewNop())

	sv.ingestChain(context.Background(), client, types.ChainEthereum, wallets)

	if got := client.callCount(); got != len(wallets) {
		t.Fatalf("expected every wallet to be fetched, got %d calls for %d wallets", got, len(wallets))
	}
}

func TestRunManageTickGuardsReentrancy(t *testing.T) {
	store := newFakeStore(nil)
	sched := scheduler.New(zap.NewNop())
	engine := &fakeEngine{}
	sv := New(store, sched, nil, engine, nil, nil, Config{}, zap.NewNop())

	sv.manageRunning.Store(true)
	sv.runManageTick(context.Background())
	if engine.manageCalls != 0 {
		t.Fatalf("expected manage tick to be skipped while already running")
	}

	sv.manageRunning.Store(false)
	sv.runManageTick(context.Background())
	if engine.manageCalls != 1 {
		t.Fatalf("expected manage tick to run once released, got %d", engine.manageCalls)
	}
}

func TestRunDiscoverTickInvokesDiscoverer(t *testing.T) {
	store := newFakeStore(nil)
	sched := scheduler.New(zap.NewNop())
	engine := &fakeEngine{}
	disc := &fakeDiscoverer{}
	sv := New(store, sched, nil, engine, disc, nil, Config{}, zap.NewNop())

	sv.runDiscoverTick(context.Background())
	if disc.calls != 1 {
		t.Fatalf("expected discoverer to run once, got %d", disc.calls)
	}
}

func TestRunMetricsTickInvokesMonitor(t *testing.T) {
	store := newFakeStore(nil)
	sched := scheduler.New(zap.NewNop())
	engine := &fakeEngine{}
	monitor := &fakeMonitor{}
	sv := New(store, sched, nil, engine, nil, monitor, Config{}, zap.NewNop())

	sv.runMetricsTick(context.Background())
	if monitor.calls != 1 {
		t.Fatalf("expected monitor to probe once, got %d", monitor.calls)
	}
}

func TestRunMetricsTickRollsUpStrategyPerformanceOncePerDay(t *testing.T) {
	pnl1 := decimal.NewFromInt(50)
	pnl2 := decimal.NewFromInt(-20)
	store := newFakeStore(nil)
	store.closed = map[string][]*types.PaperTrade{
		"smartMoney": {
			{StrategyUsed: "smartMoney", EntryValueUSD: decimal.NewFromInt(1000), PnL: &pnl1},
			{StrategyUsed: "smartMoney", EntryValueUSD: decimal.NewFromInt(1000), PnL: &pnl2},
		},
	}
	store.openedCnt = map[string]int{"smartMoney": 2}
	sched := scheduler.New(zap.NewNop())
	engine := &fakeEngine{}
	sv := New(store, sched, nil, engine, nil, nil, Config{}, zap.NewNop())

	sv.runMetricsTick(context.Background())

	var got *types.StrategyPerformance
	for _, r := range store.rollups {
		if r.StrategyType == "smartMoney" {
			got = r
		}
	}
	if got == nil {
		t.Fatal("expected a smartMoney rollup row to be written")
	}
	if got.TradesOpened != 2 || got.TradesClosed != 2 || got.WinningTrades != 1 {
		t.Fatalf("unexpected rollup counts: %+v", got)
	}
	if !got.RealizedPnLUSD.Equal(decimal.NewFromInt(30)) {
		t.Fatalf("expected realized pnl of 30, got %s", got.RealizedPnLUSD)
	}

	rollupsBefore := len(store.rollups)
	sv.runMetricsTick(context.Background())
	if len(store.rollups) != rollupsBefore {
		t.Fatalf("expected a second tick the same day to skip the rollup, wrote %d more rows", len(store.rollups)-rollupsBefore)
	}
}

func TestStopShutsDownEngineAfterLoopsExit(t *testing.T) {
	store := newFakeStore(nil)
	sched := scheduler.New(zap.NewNop())
	engine := &fakeEngine{}
	sv := New(store, sched, nil, engine, nil, nil, Config{ShutdownGrace: time.Second}, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan struct{})
	go func() {
		sv.Run(ctx)
		close(done)
	}()

	sv.Stop(context.Background())
	<-done

	if engine.shutdownCalls != 1 {
		t.Fatalf("expected engine.Shutdown to be called once, got %d", engine.shutdownCalls)
	}
}
