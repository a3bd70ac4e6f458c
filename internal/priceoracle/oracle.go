// Package priceoracle resolves a USD price for arbitrary tokens by
// cascading across several providers, with a bounded per-key TTL cache and
// graceful degradation when a provider is unreachable or unconfigured.
package priceoracle

import (
	"context"

	"go.uber.org/zap"

	"github.com/chainscout/walletrader/pkg/types"
)

// Oracle is the cascaded price resolver. It is safe for concurrent use.
type Oracle struct {
	sources []source
	cache   *cache
	logger  *zap.Logger
}

// Config configures the optional provider keys; a blank key downgrades the
// corresponding source to a permanent no-op rather than crashing.
type Config struct {
	CoinGeckoKey     string
	CoinMarketCapKey string
}

// New builds an Oracle with the standard cascade order: cache, CoinGecko,
// CoinMarketCap, DexScreener, Jupiter (Solana-only).
func New(cfg Config, logger *zap.Logger) *Oracle {
	client := defaultHTTPClient()
	return &Oracle{
		sources: []source{
			&coinGeckoSource{client: client, apiKey: cfg.CoinGeckoKey},
			&coinMarketCapSource{client: client, apiKey: cfg.CoinMarketCapKey},
			&dexScreenerSource{client: client},
			&jupiterSource{client: client},
		},
		cache:  newCache(),
		logger: logger,
	}
}

// GetPrice resolves a USD price for the token, cascading across sources in
// order and caching the first success. It never returns an error: a total
// miss is reported as nil and the caller handles the absence.
func (o *Oracle) GetPrice(ctx context.Context, tokenAddress string, chain types.Chain) *types.PriceQuote {
	key := cacheKey{chain: chain, token: tokenAddress}

	if quote, ok := o.cache.get(key); ok {
		return &quote
	}

	for _, src := range o.sources {
		quote, err := src.lookup(ctx, tokenAddress, chain)
		if err != nil {
			o.logger.Warn("price source error, falling through",
				zap.String("source", src.name()), zap.Error(err))
			continue
		}
		if quote == nil {
			continue
		}
		o.cache.put(key, *quote)
		return quote
	}

	return nil
}

// CacheSize reports the current number of cached entries, for diagnostics.
func (o *Oracle) CacheSize() int {
	return o.cache.len()
}
