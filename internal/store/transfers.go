package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/chainscout/walletrader/pkg/types"
)

// AddTransfer inserts a transfer idempotently: a duplicate (wallet, tx_hash,
// chain) is a no-op that returns ErrDuplicateKey, and a transfer missing
// required fields is refused with ErrMissingFields rather than reaching SQL.
func (s *Store) AddTransfer(ctx context.Context, t *types.Transfer) error {
	if t.WalletAddress == "" || t.TxHash == "" || t.Chain == "" || t.TokenAddress == "" {
		return ErrMissingFields
	}

	const query = `
		INSERT INTO transfers (
			wallet_address, chain, tx_hash, token_address, token_symbol, action,
			amount, price_usd, total_value_usd, timestamp, block_number
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
	`
	_, err := s.pool.Exec(ctx, query,
		t.WalletAddress, string(t.Chain), t.TxHash, t.TokenAddress, t.TokenSymbol, string(t.Action),
		t.Amount, t.PriceUSD, t.TotalValueUSD, t.Timestamp, t.BlockNumber,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return ErrDuplicateKey
		}
		return fmt.Errorf("add transfer: %w", err)
	}
	return nil
}

// TransfersByToken returns transfers for a token within [start, end], used
// by Discovery to find early buyers of a pumped token.
func (s *Store) TransfersByToken(ctx context.Context, tokenAddress string, chain types.Chain, start, end int64) ([]*types.Transfer, error) {
	const query = `
		SELECT id, wallet_address, chain, tx_hash, token_address, token_symbol, action,
		       amount, price_usd, total_value_usd, timestamp, block_number
		FROM transfers
		WHERE token_address = $1 AND chain = $2
		  AND EXTRACT(EPOCH FROM timestamp) >= $3 AND EXTRACT(EPOCH FROM timestamp) <= $4
		ORDER BY timestamp ASC, id ASC
	`
	rows, err := s.pool.Query(ctx, query, tokenAddress, string(chain), start, end)
	if err != nil {
		return nil, fmt.Errorf("transfers by token: %w", err)
	}
	defer rows.Close()
	return scanTransfers(rows)
}

// TransfersByWallet returns a wallet's transfer history, ordered oldest
// first, used by Discovery's FIFO win-rate computation.
func (s *Store) TransfersByWallet(ctx context.Context, address string, chain types.Chain) ([]*types.Transfer, error) {
	const query = `
		SELECT id, wallet_address, chain, tx_hash, token_address, token_symbol, action,
		       amount, price_usd, total_value_usd, timestamp, block_number
		FROM transfers
		WHERE wallet_address = $1 AND chain = $2
		ORDER BY timestamp ASC, id ASC
	`
	rows, err := s.pool.Query(ctx, query, address, string(chain))
	if err != nil {
		return nil, fmt.Errorf("transfers by wallet: %w", err)
	}
	defer rows.Close()
	return scanTransfers(rows)
}

// RecentTransfersByWallet returns a wallet's most recent transfers, newest
// first, capped at limit, for the boundary API's per-wallet detail view.
func (s *Store) RecentTransfersByWallet(ctx context.Context, address string, chain types.Chain, limit int) ([]*types.Transfer, error) {
	const query = `
		SELECT id, wallet_address, chain, tx_hash, token_address, token_symbol, action,
		       amount, price_usd, total_value_usd, timestamp, block_number
		FROM transfers
		WHERE wallet_address = $1 AND chain = $2
		ORDER BY timestamp DESC, id DESC
		LIMIT $3
	`
	rows, err := s.pool.Query(ctx, query, address, string(chain), limit)
	if err != nil {
		return nil, fmt.Errorf("recent transfers by wallet: %w", err)
	}
	defer rows.Close()
	return scanTransfers(rows)
}

// WalletActivitySince rolls up buy/sell counts and USD volume per wallet
// for every transfer at or after since, for the boundary API's 24h
// activity endpoint.
func (s *Store) WalletActivitySince(ctx context.Context, since time.Time) ([]*types.WalletActivitySummary, error) {
	const query = `
		SELECT wallet_address, chain,
		       COUNT(*) FILTER (WHERE action = 'buy'),
		       COUNT(*) FILTER (WHERE action = 'sell'),
		       COALESCE(SUM(total_value_usd), 0),
		       MAX(timestamp)
		FROM transfers
		WHERE timestamp >= $1
		GROUP BY wallet_address, chain
		ORDER BY SUM(total_value_usd) DESC
	`
	rows, err := s.pool.Query(ctx, query, since)
	if err != nil {
		return nil, fmt.Errorf("wallet activity since: %w", err)
	}
	defer rows.Close()

	var out []*types.WalletActivitySummary
	for rows.Next() {
		var a types.WalletActivitySummary
		var chain string
		if err := rows.Scan(&a.Address, &chain, &a.BuyCount, &a.SellCount, &a.VolumeUSD, &a.LastSeen); err != nil {
			return nil, fmt.Errorf("scan wallet activity row: %w", err)
		}
		a.Chain = types.Chain(chain)
		out = append(out, &a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate wallet activity rows: %w", err)
	}
	return out, nil
}

func scanTransfers(rows pgx.Rows) ([]*types.Transfer, error) {
	var out []*types.Transfer
	for rows.Next() {
		var t types.Transfer
		var chain, action string
		if err := rows.Scan(
			&t.ID, &t.WalletAddress, &chain, &t.TxHash, &t.TokenAddress, &t.TokenSymbol, &action,
			&t.Amount, &t.PriceUSD, &t.TotalValueUSD, &t.Timestamp, &t.BlockNumber,
		); err != nil {
			return nil, fmt.Errorf("scan transfer row: %w", err)
		}
		t.Chain = types.Chain(chain)
		t.Action = types.TransferAction(action)
		out = append(out, &t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate transfer rows: %w", err)
	}
	return out, nil
}
