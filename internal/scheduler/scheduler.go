// Package scheduler maintains the rotation policy over the active wallet
// set so every wallet is polled on a fair cadence within per-provider
// rate limits.
package scheduler

import (
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/chainscout/walletrader/pkg/types"
)

const maxBatchSize = 6

// Scheduler computes which wallets to poll on each tick and guards against
// overlapping ingest cycles. The tick counter advances once per successful
// Acquire, independent of wall-clock time, so rotation fairness does not
// depend on ticks firing at precisely their configured period.
type Scheduler struct {
	logger  *zap.Logger
	running atomic.Bool
	ticks   atomic.Int64

	mu      sync.Mutex
	wallets []*types.Wallet
}

// New builds a Scheduler.
func New(logger *zap.Logger) *Scheduler {
	return &Scheduler{logger: logger}
}

// SetActiveWallets replaces the rotation set, called by the caller after
// refreshing it from the Store.
func (s *Scheduler) SetActiveWallets(wallets []*types.Wallet) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.wallets = wallets
}

// BatchSize returns B = min(6, ceil(N/5)) for the given wallet count.
func BatchSize(n int) int {
	if n == 0 {
		return 0
	}
	b := (n + 4) / 5
	if b > maxBatchSize {
		b = maxBatchSize
	}
	if b < 1 {
		b = 1
	}
	return b
}

// Acquire reports whether the caller may proceed with an ingest tick. It
// returns false, logging a warning, if the previous tick has not yet
// called Release. The Scheduler always returns a collection from
// NextSlice regardless of Acquire's outcome; callers should still treat a
// failed Acquire as "skip this tick", not as an error.
func (s *Scheduler) Acquire() bool {
	if !s.running.CompareAndSwap(false, true) {
		s.logger.Warn("ingest tick skipped: previous tick still running")
		return false
	}
	return true
}

// Release ends the tick started by a successful Acquire and advances the
// rotation counter for the next call to NextSlice.
func (s *Scheduler) Release() {
	s.ticks.Add(1)
	s.running.Store(false)
}

// NextSlice returns the rotation slice for the current tick counter value.
// Every active wallet is visited once per ceil(N/B) ticks, selected by
// slice index = tick_counter mod ceil(N/B). It never returns nil.
func (s *Scheduler) NextSlice() []*types.Wallet {
	s.mu.Lock()
	wallets := s.wallets
	s.mu.Unlock()

	n := len(wallets)
	if n == 0 {
		return []*types.Wallet{}
	}

	b := BatchSize(n)
	numSlices := (n + b - 1) / b
	sliceIndex := int(s.ticks.Load() % int64(numSlices))

	start := sliceIndex * b
	end := start + b
	if end > n {
		end = n
	}

	out := make([]*types.Wallet, end-start)
	copy(out, wallets[start:end])
	return out
}

// ByChain groups a slice of wallets by chain, preserving a stable chain
// iteration order for the caller's inter-chain settling-delay loop.
func ByChain(wallets []*types.Wallet) (order []types.Chain, grouped map[types.Chain][]*types.Wallet) {
	grouped = make(map[types.Chain][]*types.Wallet)
	seen := make(map[types.Chain]bool)
	for _, w := range wallets {
		if !seen[w.Chain] {
			seen[w.Chain] = true
			order = append(order, w.Chain)
		}
		grouped[w.Chain] = append(grouped[w.Chain], w)
	}
	return order, grouped
}
