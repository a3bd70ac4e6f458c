// Package supervisor owns the ticker-driven jobs that turn the components
// into a running service: ingest, position management, discovery, and
// metrics/probing. Each job runs at its own configured period behind a
// reentrancy guard so a slow cycle skips the next tick instead of stacking.
package supervisor

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/chainscout/walletrader/internal/chainclient"
	"github.com/chainscout/walletrader/internal/scheduler"
	"github.com/chainscout/walletrader/internal/strategy"
	"github.com/chainscout/walletrader/pkg/types"
	"github.com/chainscout/walletrader/pkg/utils"
)

// ingestFanOut bounds how many wallets within one chain's slice have their
// ChainClient fetch in flight at once, mirroring chainclient/solana.go's
// own per-signature fan-out.
const ingestFanOut = 6

// Store is the slice of storage Supervisor needs for wallet and token
// bookkeeping around a tick; trading.Store and discovery.Store cover the
// rest of what the jobs themselves read and write.
type Store interface {
	ActiveWallets(ctx context.Context) ([]*types.Wallet, error)
	AddTransfer(ctx context.Context, t *types.Transfer) error
	AddOrUpdateToken(ctx context.Context, t *types.Token) error
	GetToken(ctx context.Context, address string, chain types.Chain) (*types.Token, error)
	ClosedTradesByStrategy(ctx context.Context, strategy string, start, end time.Time) ([]*types.PaperTrade, error)
	TradesOpenedCountByStrategy(ctx context.Context, strategy string, start, end time.Time) (int, error)
	UpsertStrategyPerformance(ctx context.Context, p *types.StrategyPerformance) error
}

// TradingEngine is the slice of internal/trading.Engine Supervisor drives.
type TradingEngine interface {
	Process(ctx context.Context, transfers []*types.Transfer)
	ManageOpenPositions(ctx context.Context)
	Shutdown()
}

// Discoverer is the slice of internal/discovery.Discovery Supervisor drives.
type Discoverer interface {
	Run(ctx context.Context) (int, error)
}

// ProbeMonitor is the slice of internal/apistatus.Monitor Supervisor drives.
type ProbeMonitor interface {
	ProbeAll(ctx context.Context)
}

// Config holds the job periods, sourced from internal/config.Config.
type Config struct {
	IngestInterval    time.Duration
	ManageInterval    time.Duration
	DiscoverInterval  time.Duration
	MetricsInterval   time.Duration
	InterChainSettle  time.Duration
	ShutdownGrace     time.Duration
}

// Supervisor wires the scheduler, chain clients, trading engine, discovery
// pipeline and provider monitor into a single cooperative process, C9 of
// the system.
type Supervisor struct {
	store   Store
	sched   *scheduler.Scheduler
	clients map[types.Chain]chainclient.ChainClient
	engine  TradingEngine
	disc    Discoverer
	monitor ProbeMonitor
	cfg     Config
	logger  *zap.Logger

	manageRunning atomic.Bool
	discRunning   atomic.Bool
	metricsRunning atomic.Bool

	// lastRollupDate is the UTC calendar day the strategy-performance rollup
	// last ran for; only read/written from within the metrics tick's own
	// goroutine, which metricsRunning already serializes.
	lastRollupDate time.Time

	stop chan struct{}
	done chan struct{}
}

// New constructs a Supervisor. clients must contain one ChainClient per
// chain the active wallet set can reference; a chain with no registered
// client is skipped with a warning at ingest time rather than panicking,
// since wallet rows can reference a chain before its client is wired up.
func New(store Store, sched *scheduler.Scheduler, clients map[types.Chain]chainclient.ChainClient,
	engine TradingEngine, disc Discoverer, monitor ProbeMonitor, cfg Config, logger *zap.Logger) *Supervisor {
	return &Supervisor{
		store: store, sched: sched, clients: clients, engine: engine, disc: disc, monitor: monitor,
		cfg: cfg, logger: logger.Named("supervisor"),
		stop: make(chan struct{}), done: make(chan struct{}),
	}
}

// Run blocks, driving the four ticker loops until ctx is cancelled or Stop
// is called. Each ticker runs in its own goroutine; Run itself only waits.
func (sv *Supervisor) Run(ctx context.Context) {
	defer close(sv.done)

	runLoop := func(interval time.Duration, job func(context.Context)) {
		if interval <= 0 {
			return
		}
		go sv.loop(ctx, interval, job)
	}

	runLoop(sv.cfg.IngestInterval, sv.runIngestTick)
	runLoop(sv.cfg.ManageInterval, sv.runManageTick)
	runLoop(sv.cfg.DiscoverInterval, sv.runDiscoverTick)
	runLoop(sv.cfg.MetricsInterval, sv.runMetricsTick)

	select {
	case <-ctx.Done():
	case <-sv.stop:
	}
}

func (sv *Supervisor) loop(ctx context.Context, interval time.Duration, job func(context.Context)) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-sv.stop:
			return
		case <-ticker.C:
			job(ctx)
		}
	}
}

// Stop requests every loop to exit and waits up to cfg.ShutdownGrace for an
// in-flight manage tick to finish, then shuts down the trading engine.
func (sv *Supervisor) Stop(ctx context.Context) {
	close(sv.stop)

	grace := sv.cfg.ShutdownGrace
	if grace <= 0 {
		grace = 30 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(ctx, grace)
	defer cancel()

	select {
	case <-sv.done:
	case <-shutdownCtx.Done():
		sv.logger.Warn("shutdown grace window elapsed before loops exited")
	}

	// A manage tick already in progress runs to completion within the same
	// grace window.
	for sv.manageRunning.Load() && shutdownCtx.Err() == nil {
		time.Sleep(10 * time.Millisecond)
	}

	sv.engine.Shutdown()
	sv.logger.Info("supervisor stopped")
}

// TriggerIngestTick runs one ingest cycle immediately, outside the regular
// ticker cadence, for the boundary API's POST /api/track endpoint. It
// shares the same Scheduler reentrancy guard as the ticker-driven cycle,
// so a manual trigger during an in-flight tick is a no-op rather than a
// race.
func (sv *Supervisor) TriggerIngestTick(ctx context.Context) {
	sv.runIngestTick(ctx)
}

// TriggerDiscovery runs one discovery cycle immediately for the boundary
// API's POST /api/discover endpoint, sharing the same reentrancy guard
// and daily quota as the scheduled cycle.
func (sv *Supervisor) TriggerDiscovery(ctx context.Context) (int, error) {
	if sv.disc == nil {
		return 0, nil
	}
	if !sv.discRunning.CompareAndSwap(false, true) {
		return 0, nil
	}
	defer sv.discRunning.Store(false)
	return sv.disc.Run(ctx)
}

// runIngestTick acquires the scheduler slot, pulls the next rotation slice,
// fetches and stores each wallet's recent transfers grouped by chain with
// an inter-chain settling pause, then hands the newly stored transfers to
// the trading engine in source-chain order.
func (sv *Supervisor) runIngestTick(ctx context.Context) {
	if !sv.sched.Acquire() {
		return
	}
	defer sv.sched.Release()

	wallets := sv.sched.NextSlice()
	if len(wallets) == 0 {
		return
	}

	order, grouped := scheduler.ByChain(wallets)
	for i, chain := range order {
		client, ok := sv.clients[chain]
		if !ok {
			sv.logger.Warn("no chain client registered, skipping chain for this tick", zap.String("chain", string(chain)))
			continue
		}
		sv.ingestChain(ctx, client, chain, grouped[chain])
		if i < len(order)-1 && sv.cfg.InterChainSettle > 0 {
			select {
			case <-ctx.Done():
				return
			case <-time.After(sv.cfg.InterChainSettle):
			}
		}
	}
}

// ingestChain fans the per-wallet ChainClient fetch out across up to
// ingestFanOut goroutines, then stores and hands each wallet's transfers to
// the trading engine serially as the fetches complete, so writes never race.
func (sv *Supervisor) ingestChain(ctx context.Context, client chainclient.ChainClient, chain types.Chain, wallets []*types.Wallet) {
	type fetchResult struct {
		wallet    *types.Wallet
		transfers []*types.Transfer
		err       error
	}

	results := make(chan fetchResult, len(wallets))
	sem := make(chan struct{}, ingestFanOut)
	var wg sync.WaitGroup

	for _, w := range wallets {
		w := w
		wg.Add(1)
		sem <- struct{}{}
		go func() {
			defer wg.Done()
			defer func() { <-sem }()
			transfers, _, err := client.GetRecentTokenTransfers(ctx, w.Address, chain, "")
			results <- fetchResult{wallet: w, transfers: transfers, err: err}
		}()
	}
	go func() {
		wg.Wait()
		close(results)
	}()

	for r := range results {
		if r.err != nil {
			sv.logger.Warn("chain client fetch failed", zap.String("wallet", r.wallet.Address), zap.String("chain", string(chain)), zap.Error(r.err))
			continue
		}
		if len(r.transfers) == 0 {
			continue
		}

		stored := make([]*types.Transfer, 0, len(r.transfers))
		for _, t := range r.transfers {
			if err := sv.store.AddTransfer(ctx, t); err != nil {
				sv.logger.Warn("failed to store transfer", zap.String("tx_hash", t.TxHash), zap.Error(err))
				continue
			}
			if err := sv.upsertTokenPeak(ctx, t); err != nil {
				sv.logger.Warn("failed to upsert token", zap.String("token", t.TokenAddress), zap.Error(err))
			}
			stored = append(stored, t)
		}
		if len(stored) > 0 {
			sv.engine.Process(ctx, stored)
		}
	}
}

// upsertTokenPeak keeps the token row's observed price range current;
// Store.AddOrUpdateToken is expected to MAX the peak price atomically so
// concurrent writers across wallets sharing a token cannot lose it.
func (sv *Supervisor) upsertTokenPeak(ctx context.Context, t *types.Transfer) error {
	if !t.PriceUSD.IsPositive() {
		return nil
	}
	existing, err := sv.store.GetToken(ctx, t.TokenAddress, t.Chain)
	now := t.Timestamp
	firstSeen := now
	if err == nil && existing != nil {
		firstSeen = existing.FirstSeen
	}
	return sv.store.AddOrUpdateToken(ctx, &types.Token{
		Address: t.TokenAddress, Chain: t.Chain, FirstSeen: firstSeen,
		CurrentPriceUSD: t.PriceUSD, MaxPriceUSD: t.PriceUSD,
	})
}

func (sv *Supervisor) runManageTick(ctx context.Context) {
	if !sv.manageRunning.CompareAndSwap(false, true) {
		sv.logger.Warn("manage tick skipped: previous tick still running")
		return
	}
	defer sv.manageRunning.Store(false)
	sv.engine.ManageOpenPositions(ctx)
}

func (sv *Supervisor) runDiscoverTick(ctx context.Context) {
	if sv.disc == nil {
		return
	}
	if !sv.discRunning.CompareAndSwap(false, true) {
		sv.logger.Warn("discovery tick skipped: previous tick still running")
		return
	}
	defer sv.discRunning.Store(false)

	inserted, err := sv.disc.Run(ctx)
	if err != nil {
		sv.logger.Error("discovery cycle failed", zap.Error(err))
		return
	}
	sv.logger.Info("discovery cycle complete", zap.Int("inserted", inserted))
}

// runMetricsTick probes provider health every tick and, once a day, rolls
// up the prior day's closed trades into a StrategyPerformance row per
// strategy.
func (sv *Supervisor) runMetricsTick(ctx context.Context) {
	if !sv.metricsRunning.CompareAndSwap(false, true) {
		return
	}
	defer sv.metricsRunning.Store(false)

	if sv.monitor != nil {
		sv.monitor.ProbeAll(ctx)
	}
	sv.runStrategyRollup(ctx, time.Now())
}

// runStrategyRollup runs at most once per UTC calendar day, rolling up the
// day that just completed (never the partial day still in progress).
func (sv *Supervisor) runStrategyRollup(ctx context.Context, now time.Time) {
	today := now.UTC().Truncate(24 * time.Hour)
	if sv.lastRollupDate.Equal(today) {
		return
	}
	sv.lastRollupDate = today

	end := today
	start := end.Add(-24 * time.Hour)
	for _, name := range strategy.List() {
		sv.rollupStrategyDay(ctx, name, start, end)
	}
}

func (sv *Supervisor) rollupStrategyDay(ctx context.Context, name string, start, end time.Time) {
	closed, err := sv.store.ClosedTradesByStrategy(ctx, name, start, end)
	if err != nil {
		sv.logger.Warn("strategy rollup: fetch closed trades failed", zap.String("strategy", name), zap.Error(err))
		return
	}
	opened, err := sv.store.TradesOpenedCountByStrategy(ctx, name, start, end)
	if err != nil {
		sv.logger.Warn("strategy rollup: fetch opened count failed", zap.String("strategy", name), zap.Error(err))
		return
	}
	if len(closed) == 0 && opened == 0 {
		return
	}

	pnls := make([]decimal.Decimal, 0, len(closed))
	returns := make([]decimal.Decimal, 0, len(closed))
	equity := make([]decimal.Decimal, 1, len(closed)+1)
	wins := 0
	realized := decimal.Zero
	for _, t := range closed {
		if t.PnL == nil {
			continue
		}
		pnls = append(pnls, *t.PnL)
		realized = realized.Add(*t.PnL)
		if t.PnL.IsPositive() {
			wins++
		}
		if t.EntryValueUSD.IsPositive() {
			returns = append(returns, t.PnL.Div(t.EntryValueUSD))
		}
		equity = append(equity, equity[len(equity)-1].Add(*t.PnL))
	}

	perf := &types.StrategyPerformance{
		StrategyType:   name,
		Date:           start,
		TradesOpened:   opened,
		TradesClosed:   len(closed),
		WinningTrades:  wins,
		RealizedPnLUSD: realized,
		WinRate:        utils.WinRate(wins, len(pnls)),
		SharpeRatio:    utils.SharpeRatio(returns, decimal.Zero, 365),
		MaxDrawdownPct: utils.MaxDrawdown(equity),
	}
	if err := sv.store.UpsertStrategyPerformance(ctx, perf); err != nil {
		sv.logger.Warn("strategy rollup: upsert failed", zap.String("strategy", name), zap.Error(err))
	}
}
