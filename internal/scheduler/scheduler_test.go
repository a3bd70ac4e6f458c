package scheduler

import (
	"testing"

	"go.uber.org/zap"

	"github.com/chainscout/walletrader/pkg/types"
)

func walletsN(n int) []*types.Wallet {
	out := make([]*types.Wallet, n)
	for i := 0; i < n; i++ {
		out[i] = &types.Wallet{Address: string(rune('A' + i)), Chain: types.ChainEthereum}
	}
	return out
}

func TestBatchSize(t *testing.T) {
	cases := map[int]int{0: 0, 1: 1, 5: 1, 6: 2, 30: 6, 100: 6}
	for n, want := range cases {
		if got := BatchSize(n); got != want {
			t.Errorf("BatchSize(%d) = %d, want %d", n, got, want)
		}
	}
}

func TestFairnessEveryWalletPolledOncePerFiveTicks(t *testing.T) {
	s := New(zap.NewNop())
	s.SetActiveWallets(walletsN(30))

	counts := make(map[string]int)
	for tick := 0; tick < 5; tick++ {
		if !s.Acquire() {
			t.Fatal("acquire should succeed")
		}
		for _, w := range s.NextSlice() {
			counts[w.Address]++
		}
		s.Release()
	}

	for _, w := range walletsN(30) {
		if counts[w.Address] != 1 {
			t.Errorf("wallet %s polled %d times after 5 ticks, want 1", w.Address, counts[w.Address])
		}
	}
}

func TestFairnessTenTicksPollsEachTwice(t *testing.T) {
	s := New(zap.NewNop())
	s.SetActiveWallets(walletsN(30))

	counts := make(map[string]int)
	for tick := 0; tick < 10; tick++ {
		s.Acquire()
		for _, w := range s.NextSlice() {
			counts[w.Address]++
		}
		s.Release()
	}

	for _, w := range walletsN(30) {
		if counts[w.Address] != 2 {
			t.Errorf("wallet %s polled %d times after 10 ticks, want 2", w.Address, counts[w.Address])
		}
	}
}

func TestAcquireRejectsReentrantTick(t *testing.T) {
	s := New(zap.NewNop())
	if !s.Acquire() {
		t.Fatal("first acquire should succeed")
	}
	if s.Acquire() {
		t.Fatal("second acquire should be rejected while first is outstanding")
	}
	s.Release()
	if !s.Acquire() {
		t.Fatal("acquire should succeed again after release")
	}
}

func TestNextSliceNeverNilOnEmptyWalletSet(t *testing.T) {
	s := New(zap.NewNop())
	slice := s.NextSlice()
	if slice == nil {
		t.Fatal("NextSlice must return an empty collection, never nil")
	}
	if len(slice) != 0 {
		t.Fatalf("expected empty slice, got %d", len(slice))
	}
}
