package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/chainscout/walletrader/pkg/types"
)

// AddDiscoveredWallet inserts a discovery candidate, or updates its score
// if already tracked under the same (address, chain).
func (s *Store) AddDiscoveredWallet(ctx context.Context, d *types.DiscoveredWallet) error {
	const query = `
		INSERT INTO discovered_wallets (
			address, chain, first_seen, profitability_score, estimated_win_rate,
			tracked_trades, successful_tracked_trades, promoted, promoted_date,
			discovery_method, rejection_reason
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
		ON CONFLICT (address, chain) DO UPDATE SET
			profitability_score = EXCLUDED.profitability_score,
			estimated_win_rate = EXCLUDED.estimated_win_rate,
			tracked_trades = EXCLUDED.tracked_trades,
			successful_tracked_trades = EXCLUDED.successful_tracked_trades,
			discovery_method = EXCLUDED.discovery_method
	`
	_, err := s.pool.Exec(ctx, query,
		d.Address, string(d.Chain), d.FirstSeen, d.ProfitabilityScore, d.EstimatedWinRate,
		d.TrackedTrades, d.SuccessfulTrackedTrades, d.Promoted, d.PromotedDate,
		d.DiscoveryMethod, d.RejectionReason,
	)
	if err != nil {
		return fmt.Errorf("add discovered wallet: %w", err)
	}
	return nil
}

// IsTracked reports whether the address is already a Wallet or a
// DiscoveredWallet, so Discovery does not re-surface it.
func (s *Store) IsTracked(ctx context.Context, address string, chain types.Chain) (bool, error) {
	const query = `
		SELECT EXISTS(SELECT 1 FROM wallets WHERE address = $1 AND chain = $2)
		    OR EXISTS(SELECT 1 FROM discovered_wallets WHERE address = $1 AND chain = $2)
	`
	var exists bool
	if err := s.pool.QueryRow(ctx, query, address, string(chain)).Scan(&exists); err != nil {
		return false, fmt.Errorf("is tracked: %w", err)
	}
	return exists, nil
}

// DiscoveredWallets lists candidates, optionally filtered by promoted status.
func (s *Store) DiscoveredWallets(ctx context.Context, promoted *bool) ([]*types.DiscoveredWallet, error) {
	query := `
		SELECT address, chain, first_seen, profitability_score, estimated_win_rate,
		       tracked_trades, successful_tracked_trades, promoted, promoted_date,
		       discovery_method, rejection_reason
		FROM discovered_wallets
	`
	args := []any{}
	if promoted != nil {
		query += ` WHERE promoted = $1`
		args = append(args, *promoted)
	}
	query += ` ORDER BY profitability_score DESC`

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("discovered wallets: %w", err)
	}
	defer rows.Close()

	var out []*types.DiscoveredWallet
	for rows.Next() {
		d, err := scanDiscoveredWallet(rows)
		if err != nil {
			return nil, fmt.Errorf("scan discovered wallet: %w", err)
		}
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate discovered wallets: %w", err)
	}
	return out, nil
}

// PromoteDiscoveredWallet materialises a DiscoveredWallet into a tracked
// Wallet and flips its promoted flag, in a single transaction.
func (s *Store) PromoteDiscoveredWallet(ctx context.Context, address string, chain types.Chain) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin promote tx: %w", err)
	}
	defer tx.Rollback(ctx)

	row := tx.QueryRow(ctx, `
		SELECT address, chain, first_seen, profitability_score, estimated_win_rate,
		       tracked_trades, successful_tracked_trades, promoted, promoted_date,
		       discovery_method, rejection_reason
		FROM discovered_wallets WHERE address = $1 AND chain = $2 FOR UPDATE
	`, address, string(chain))
	d, err := scanDiscoveredWallet(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("load discovered wallet: %w", err)
	}
	if d.Promoted {
		return fmt.Errorf("%w: already promoted", ErrInvalidState)
	}

	now := time.Now()
	if _, err := tx.Exec(ctx, `
		INSERT INTO wallets (address, chain, strategy_type, status, date_added, last_checked)
		VALUES ($1,$2,'',$3,$4,$4)
		ON CONFLICT (address, chain) DO NOTHING
	`, address, string(chain), string(types.WalletStatusActive), now); err != nil {
		return fmt.Errorf("insert promoted wallet: %w", err)
	}

	if _, err := tx.Exec(ctx, `
		UPDATE discovered_wallets SET promoted = true, promoted_date = $3
		WHERE address = $1 AND chain = $2
	`, address, string(chain), now); err != nil {
		return fmt.Errorf("flip promoted flag: %w", err)
	}

	return tx.Commit(ctx)
}

func scanDiscoveredWallet(row rowScanner) (*types.DiscoveredWallet, error) {
	var d types.DiscoveredWallet
	var chain string
	if err := row.Scan(
		&d.Address, &chain, &d.FirstSeen, &d.ProfitabilityScore, &d.EstimatedWinRate,
		&d.TrackedTrades, &d.SuccessfulTrackedTrades, &d.Promoted, &d.PromotedDate,
		&d.DiscoveryMethod, &d.RejectionReason,
	); err != nil {
		return nil, err
	}
	d.Chain = types.Chain(chain)
	return &d, nil
}
