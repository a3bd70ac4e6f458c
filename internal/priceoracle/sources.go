package priceoracle

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"github.com/chainscout/walletrader/pkg/types"
)

// source resolves a price for a token on a chain, or returns (nil, nil) on
// a clean miss. Transport and non-2xx errors are swallowed by the caller's
// cascade and must never abort the lookup.
type source interface {
	name() string
	lookup(ctx context.Context, tokenAddress string, chain types.Chain) (*types.PriceQuote, error)
}

func httpGetJSON(ctx context.Context, client *http.Client, url string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// coinGeckoSource resolves price by contract address via CoinGecko's
// simple/token_price endpoint. Requires an API key.
type coinGeckoSource struct {
	client *http.Client
	apiKey string
}

func (s *coinGeckoSource) name() string { return "coingecko" }

func (s *coinGeckoSource) lookup(ctx context.Context, tokenAddress string, chain types.Chain) (*types.PriceQuote, error) {
	if s.apiKey == "" {
		return nil, nil
	}
	platform, ok := coinGeckoPlatform(chain)
	if !ok {
		return nil, nil
	}
	url := fmt.Sprintf(
		"https://api.coingecko.com/api/v3/simple/token_price/%s?contract_addresses=%s&vs_currencies=usd&x_cg_pro_api_key=%s",
		platform, tokenAddress, s.apiKey,
	)
	var resp map[string]struct {
		USD float64 `json:"usd"`
	}
	if err := httpGetJSON(ctx, s.client, url, &resp); err != nil {
		return nil, nil // swallow: fall through to next source
	}
	entry, ok := resp[tokenAddress]
	if !ok || entry.USD <= 0 {
		return nil, nil
	}
	return &types.PriceQuote{PriceUSD: decimal.NewFromFloat(entry.USD), Source: s.name()}, nil
}

func coinGeckoPlatform(chain types.Chain) (string, bool) {
	switch chain {
	case types.ChainEthereum:
		return "ethereum", true
	case types.ChainBase:
		return "base", true
	case types.ChainArbitrum:
		return "arbitrum-one", true
	case types.ChainOptimism:
		return "optimistic-ethereum", true
	case types.ChainPolygon:
		return "polygon-pos", true
	default:
		return "", false
	}
}

// coinMarketCapSource resolves price by contract address via CoinMarketCap.
// Requires an API key.
type coinMarketCapSource struct {
	client *http.Client
	apiKey string
}

func (s *coinMarketCapSource) name() string { return "coinmarketcap" }

func (s *coinMarketCapSource) lookup(ctx context.Context, tokenAddress string, chain types.Chain) (*types.PriceQuote, error) {
	if s.apiKey == "" {
		return nil, nil
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		fmt.Sprintf("https://pro-api.coinmarketcap.com/v2/cryptocurrency/quotes/latest?address=%s", tokenAddress), nil)
	if err != nil {
		return nil, nil
	}
	req.Header.Set("X-CMC_PRO_API_KEY", s.apiKey)

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, nil
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, nil
	}

	var body struct {
		Data map[string]struct {
			Quote struct {
				USD struct {
					Price       float64 `json:"price"`
					MarketCap   float64 `json:"market_cap"`
				} `json:"USD"`
			} `json:"quote"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, nil
	}
	for _, v := range body.Data {
		if v.Quote.USD.Price <= 0 {
			continue
		}
		mc := decimal.NewFromFloat(v.Quote.USD.MarketCap)
		return &types.PriceQuote{PriceUSD: decimal.NewFromFloat(v.Quote.USD.Price), Source: s.name(), MarketCapUSD: &mc}, nil
	}
	return nil, nil
}

// dexScreenerSource resolves price via DexScreener's token endpoint,
// picking the highest-liquidity pair on the matching chain. This is the
// key path for new/obscure tokens and requires no API key.
type dexScreenerSource struct {
	client *http.Client
}

func (s *dexScreenerSource) name() string { return "dexscreener" }

func (s *dexScreenerSource) lookup(ctx context.Context, tokenAddress string, chain types.Chain) (*types.PriceQuote, error) {
	url := fmt.Sprintf("https://api.dexscreener.com/latest/dex/tokens/%s", tokenAddress)

	var body struct {
		Pairs []struct {
			ChainID      string `json:"chainId"`
			PriceUSD     string `json:"priceUsd"`
			Liquidity    struct {
				USD float64 `json:"usd"`
			} `json:"liquidity"`
			FDV float64 `json:"fdv"`
		} `json:"pairs"`
	}
	if err := httpGetJSON(ctx, s.client, url, &body); err != nil {
		return nil, nil
	}

	dexChainID := dexScreenerChainID(chain)
	bestLiquidity := -1.0
	var best *types.PriceQuote
	for _, p := range body.Pairs {
		if p.ChainID != dexChainID {
			continue
		}
		price, err := decimal.NewFromString(p.PriceUSD)
		if err != nil || !price.IsPositive() {
			continue
		}
		if p.Liquidity.USD <= bestLiquidity {
			continue
		}
		bestLiquidity = p.Liquidity.USD
		mc := decimal.NewFromFloat(p.FDV)
		best = &types.PriceQuote{PriceUSD: price, Source: s.name(), MarketCapUSD: &mc}
	}
	return best, nil
}

func dexScreenerChainID(chain types.Chain) string {
	switch chain {
	case types.ChainEthereum:
		return "ethereum"
	case types.ChainBase:
		return "base"
	case types.ChainArbitrum:
		return "arbitrum"
	case types.ChainOptimism:
		return "optimism"
	case types.ChainPolygon:
		return "polygon"
	case types.ChainSolana:
		return "solana"
	default:
		return ""
	}
}

// jupiterSource resolves price for Solana tokens only.
type jupiterSource struct {
	client *http.Client
}

func (s *jupiterSource) name() string { return "jupiter" }

func (s *jupiterSource) lookup(ctx context.Context, tokenAddress string, chain types.Chain) (*types.PriceQuote, error) {
	if chain != types.ChainSolana {
		return nil, nil
	}
	url := fmt.Sprintf("https://price.jup.ag/v6/price?ids=%s", tokenAddress)

	var body struct {
		Data map[string]struct {
			Price float64 `json:"price"`
		} `json:"data"`
	}
	if err := httpGetJSON(ctx, s.client, url, &body); err != nil {
		return nil, nil
	}
	entry, ok := body.Data[tokenAddress]
	if !ok || entry.Price <= 0 {
		return nil, nil
	}
	return &types.PriceQuote{PriceUSD: decimal.NewFromFloat(entry.Price), Source: s.name()}, nil
}

func defaultHTTPClient() *http.Client {
	return &http.Client{Timeout: 10 * time.Second}
}
