// Package chainclient fetches a wallet's recent token transfers from an
// on-chain data provider, one implementation per chain family behind a
// single contract.
package chainclient

import (
	"context"
	"sync"

	"github.com/chainscout/walletrader/pkg/types"
)

// ChainClient fetches recent token transfers for a wallet since the given
// cursor, returning the transfers observed and the new cursor to persist.
// A 429 or transport error for one wallet must not abort a batch call; the
// implementation reports the wallet as failed and leaves its cursor
// unchanged so the scheduler does not skip unobserved history.
type ChainClient interface {
	GetRecentTokenTransfers(ctx context.Context, wallet string, chain types.Chain, sinceCursor string) (transfers []*types.Transfer, newCursor string, err error)
}

// cursorCache is a bounded per-wallet map of last-seen cursor (block number
// for EVM, signature for Solana), evicting the oldest entries once over cap.
type cursorCache struct {
	mu      sync.Mutex
	order   []string
	cursors map[string]string
}

const cursorCacheMax = 100

func newCursorCache() *cursorCache {
	return &cursorCache{cursors: make(map[string]string)}
}

func (c *cursorCache) get(wallet string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.cursors[wallet]
	return v, ok
}

func (c *cursorCache) set(wallet, cursor string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.cursors[wallet]; !exists {
		c.order = append(c.order, wallet)
	}
	c.cursors[wallet] = cursor

	for len(c.cursors) > cursorCacheMax {
		oldest := c.order[0]
		c.order = c.order[1:]
		delete(c.cursors, oldest)
	}
}
