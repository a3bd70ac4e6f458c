package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/chainscout/walletrader/pkg/types"
)

// AddOrUpdateToken inserts a token or, if it already exists, updates its
// current price and atomically raises max_price_usd to
// GREATEST(existing, new) in a single statement so concurrent writers can
// never lose the peak.
func (s *Store) AddOrUpdateToken(ctx context.Context, t *types.Token) error {
	const query = `
		INSERT INTO tokens (
			address, chain, symbol, decimals, first_seen, creation_time,
			current_price_usd, max_price_usd, market_cap_usd, last_updated
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$7,$8,$9)
		ON CONFLICT (address, chain) DO UPDATE SET
			symbol = EXCLUDED.symbol,
			decimals = EXCLUDED.decimals,
			current_price_usd = EXCLUDED.current_price_usd,
			max_price_usd = GREATEST(tokens.max_price_usd, EXCLUDED.current_price_usd),
			market_cap_usd = EXCLUDED.market_cap_usd,
			last_updated = EXCLUDED.last_updated
	`
	_, err := s.pool.Exec(ctx, query,
		t.Address, string(t.Chain), t.Symbol, t.Decimals, t.FirstSeen, t.CreationTime,
		t.CurrentPriceUSD, t.MarketCapUSD, t.LastUpdated,
	)
	if err != nil {
		return fmt.Errorf("add or update token: %w", err)
	}
	return nil
}

// GetToken fetches a token by its natural key.
func (s *Store) GetToken(ctx context.Context, address string, chain types.Chain) (*types.Token, error) {
	const query = `
		SELECT address, chain, symbol, decimals, first_seen, creation_time,
		       current_price_usd, max_price_usd, market_cap_usd, last_updated
		FROM tokens WHERE address = $1 AND chain = $2
	`
	row := s.pool.QueryRow(ctx, query, address, string(chain))
	tok, err := scanToken(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get token: %w", err)
	}
	return tok, nil
}

// PumpCandidates returns tokens first seen within the lookback window whose
// max_price_usd has risen at least pumpThreshold-fold over the current
// price — the pool Discovery scans for pump detection.
func (s *Store) PumpCandidates(ctx context.Context, sinceUnix int64, pumpThreshold float64) ([]*types.Token, error) {
	const query = `
		SELECT address, chain, symbol, decimals, first_seen, creation_time,
		       current_price_usd, max_price_usd, market_cap_usd, last_updated
		FROM tokens
		WHERE EXTRACT(EPOCH FROM first_seen) >= $1
		  AND current_price_usd > 0
		  AND max_price_usd / current_price_usd >= $2
	`
	rows, err := s.pool.Query(ctx, query, sinceUnix, pumpThreshold)
	if err != nil {
		return nil, fmt.Errorf("pump candidates: %w", err)
	}
	defer rows.Close()

	var out []*types.Token
	for rows.Next() {
		tok, err := scanToken(rows)
		if err != nil {
			return nil, fmt.Errorf("scan pump candidate: %w", err)
		}
		out = append(out, tok)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate pump candidates: %w", err)
	}
	return out, nil
}

func scanToken(row rowScanner) (*types.Token, error) {
	var t types.Token
	var chain string
	if err := row.Scan(
		&t.Address, &chain, &t.Symbol, &t.Decimals, &t.FirstSeen, &t.CreationTime,
		&t.CurrentPriceUSD, &t.MaxPriceUSD, &t.MarketCapUSD, &t.LastUpdated,
	); err != nil {
		return nil, err
	}
	t.Chain = types.Chain(chain)
	return &t, nil
}
