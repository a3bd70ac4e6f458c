package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/chainscout/walletrader/pkg/types"
)

// UpsertWallet inserts a wallet or updates its mutable fields if it already
// exists, keyed by (address, chain).
func (s *Store) UpsertWallet(ctx context.Context, w *types.Wallet) error {
	const query = `
		INSERT INTO wallets (
			address, chain, strategy_type, win_rate, total_trades, successful_trades,
			total_pnl_usd, avg_trade_size_usd, biggest_win_usd, biggest_loss_usd,
			status, date_added, last_checked, notes
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)
		ON CONFLICT (address, chain) DO UPDATE SET
			strategy_type = EXCLUDED.strategy_type,
			win_rate = EXCLUDED.win_rate,
			total_trades = EXCLUDED.total_trades,
			successful_trades = EXCLUDED.successful_trades,
			total_pnl_usd = EXCLUDED.total_pnl_usd,
			avg_trade_size_usd = EXCLUDED.avg_trade_size_usd,
			biggest_win_usd = EXCLUDED.biggest_win_usd,
			biggest_loss_usd = EXCLUDED.biggest_loss_usd,
			status = EXCLUDED.status,
			last_checked = EXCLUDED.last_checked,
			notes = EXCLUDED.notes
	`
	_, err := s.pool.Exec(ctx, query,
		w.Address, string(w.Chain), w.StrategyType, w.WinRate, w.TotalTrades, w.SuccessfulTrades,
		w.TotalPnLUSD, w.AvgTradeSizeUSD, w.BiggestWinUSD, w.BiggestLossUSD,
		string(w.Status), w.DateAdded, w.LastChecked, w.Notes,
	)
	if err != nil {
		return fmt.Errorf("upsert wallet: %w", err)
	}
	return nil
}

// GetWallet fetches a wallet by its natural key.
func (s *Store) GetWallet(ctx context.Context, address string, chain types.Chain) (*types.Wallet, error) {
	const query = `
		SELECT address, chain, strategy_type, win_rate, total_trades, successful_trades,
		       total_pnl_usd, avg_trade_size_usd, biggest_win_usd, biggest_loss_usd,
		       status, date_added, last_checked, notes
		FROM wallets WHERE address = $1 AND chain = $2
	`
	row := s.pool.QueryRow(ctx, query, address, string(chain))
	w, err := scanWallet(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get wallet: %w", err)
	}
	return w, nil
}

// ActiveWallets returns every wallet with status=active, ordered for
// deterministic rotation by the Scheduler.
func (s *Store) ActiveWallets(ctx context.Context) ([]*types.Wallet, error) {
	const query = `
		SELECT address, chain, strategy_type, win_rate, total_trades, successful_trades,
		       total_pnl_usd, avg_trade_size_usd, biggest_win_usd, biggest_loss_usd,
		       status, date_added, last_checked, notes
		FROM wallets WHERE status = 'active' ORDER BY address, chain
	`
	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list active wallets: %w", err)
	}
	defer rows.Close()
	return scanWallets(rows)
}

// Wallets returns every tracked wallet regardless of status, for the
// boundary API's plain listing endpoint.
func (s *Store) Wallets(ctx context.Context) ([]*types.Wallet, error) {
	const query = `
		SELECT address, chain, strategy_type, win_rate, total_trades, successful_trades,
		       total_pnl_usd, avg_trade_size_usd, biggest_win_usd, biggest_loss_usd,
		       status, date_added, last_checked, notes
		FROM wallets ORDER BY address, chain
	`
	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list wallets: %w", err)
	}
	defer rows.Close()
	return scanWallets(rows)
}

// SetWalletStatus updates a wallet's lifecycle status (active/paused/demoted).
func (s *Store) SetWalletStatus(ctx context.Context, address string, chain types.Chain, status types.WalletStatus) error {
	const query = `UPDATE wallets SET status = $3 WHERE address = $1 AND chain = $2`
	tag, err := s.pool.Exec(ctx, query, address, string(chain), string(status))
	if err != nil {
		return fmt.Errorf("set wallet status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanWallet(row rowScanner) (*types.Wallet, error) {
	var w types.Wallet
	var chain, status string
	var winRate *decimal.Decimal

	err := row.Scan(
		&w.Address, &chain, &w.StrategyType, &winRate, &w.TotalTrades, &w.SuccessfulTrades,
		&w.TotalPnLUSD, &w.AvgTradeSizeUSD, &w.BiggestWinUSD, &w.BiggestLossUSD,
		&status, &w.DateAdded, &w.LastChecked, &w.Notes,
	)
	if err != nil {
		return nil, err
	}
	w.Chain = types.Chain(chain)
	w.Status = types.WalletStatus(status)
	w.WinRate = winRate
	return &w, nil
}

func scanWallets(rows pgx.Rows) ([]*types.Wallet, error) {
	var out []*types.Wallet
	for rows.Next() {
		w, err := scanWallet(rows)
		if err != nil {
			return nil, fmt.Errorf("scan wallet row: %w", err)
		}
		out = append(out, w)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate wallet rows: %w", err)
	}
	return out, nil
}
