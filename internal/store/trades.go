package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/chainscout/walletrader/pkg/types"
)

// OpenPaperTrade inserts a new open trade.
func (s *Store) OpenPaperTrade(ctx context.Context, t *types.PaperTrade) error {
	const query = `
		INSERT INTO paper_trades (
			id, token_address, chain, strategy_used, child_strategy, source_wallet, entry_price,
			amount, entry_value_usd, peak_price, status, opened_at, exit_reason, notes
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,'open',$11,'',$12)
	`
	_, err := s.pool.Exec(ctx, query,
		t.ID, t.TokenAddress, string(t.Chain), t.StrategyUsed, t.ChildStrategy, t.SourceWallet, t.EntryPrice,
		t.Amount, t.EntryValueUSD, t.PeakPrice, t.OpenedAt, t.Notes,
	)
	if err != nil {
		return fmt.Errorf("open paper trade: %w", err)
	}
	return nil
}

// UpdatePaperTradePartialExit persists a tiered partial sell: the shrunken
// amount, the entry value reduced by the cost basis sold, the cumulative
// PnL already realized from partial sells, the updated peak price, and the
// notes journal with the newly appended tier marker, all in one statement.
// EntryValueUSD shrinks in step with Amount so AvailableCapital keeps
// counting only the still-open portion of the position as tied up.
func (s *Store) UpdatePaperTradePartialExit(ctx context.Context, id string, amount, entryValueUSD, realizedPnLPartial, peakPrice decimal.Decimal, notes string) error {
	const query = `
		UPDATE paper_trades SET
			amount = $2, entry_value_usd = $3, realized_pnl_partial = $4,
			peak_price = $5, notes = $6
		WHERE id = $1 AND status = 'open'
	`
	tag, err := s.pool.Exec(ctx, query, id, amount, entryValueUSD, realizedPnLPartial, peakPrice, notes)
	if err != nil {
		return fmt.Errorf("update paper trade partial exit: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrInvalidState
	}
	return nil
}

// UpdatePeakPrice raises a trade's peak_price to MAX(existing, price)
// without otherwise mutating it, called from ManageOpenPositions each tick.
func (s *Store) UpdatePeakPrice(ctx context.Context, id string, price decimal.Decimal) error {
	const query = `
		UPDATE paper_trades SET peak_price = GREATEST(peak_price, $2)
		WHERE id = $1 AND status = 'open'
	`
	_, err := s.pool.Exec(ctx, query, id, price)
	if err != nil {
		return fmt.Errorf("update peak price: %w", err)
	}
	return nil
}

// ClosePaperTrade closes an open trade, validating that exitPrice > 0 and
// that the trade exists and is not already closed.
func (s *Store) ClosePaperTrade(ctx context.Context, id string, exitPrice, exitValueUSD, pnl, pnlPct decimal.Decimal, exitReason string, exitTime time.Time) error {
	if !exitPrice.IsPositive() {
		return fmt.Errorf("%w: exit price must be positive", ErrInvalidState)
	}
	const query = `
		UPDATE paper_trades SET
			status = 'closed', exit_price = $2, exit_value_usd = $3, pnl = $4,
			pnl_percentage = $5, exit_time = $6, exit_reason = $7
		WHERE id = $1 AND status = 'open'
	`
	tag, err := s.pool.Exec(ctx, query, id, exitPrice, exitValueUSD, pnl, pnlPct, exitTime, exitReason)
	if err != nil {
		return fmt.Errorf("close paper trade: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrInvalidState
	}
	return nil
}

// OpenTrades returns every trade with status=open.
func (s *Store) OpenTrades(ctx context.Context) ([]*types.PaperTrade, error) {
	const query = tradeSelectColumns + ` FROM paper_trades WHERE status = 'open' ORDER BY opened_at ASC`
	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("open trades: %w", err)
	}
	defer rows.Close()
	return scanTrades(rows)
}

// ClosedTradesByWallet returns closed trades opened from the given source
// wallet within [start, end].
func (s *Store) ClosedTradesByWallet(ctx context.Context, wallet string, start, end time.Time) ([]*types.PaperTrade, error) {
	const query = tradeSelectColumns + `
		FROM paper_trades
		WHERE status = 'closed' AND source_wallet = $1 AND exit_time >= $2 AND exit_time <= $3
		ORDER BY exit_time ASC
	`
	rows, err := s.pool.Query(ctx, query, wallet, start, end)
	if err != nil {
		return nil, fmt.Errorf("closed trades by wallet: %w", err)
	}
	defer rows.Close()
	return scanTrades(rows)
}

// ClosedTradesByStrategy returns closed trades for a strategy within
// [start, end], used for the daily strategy-performance rollups.
func (s *Store) ClosedTradesByStrategy(ctx context.Context, strategy string, start, end time.Time) ([]*types.PaperTrade, error) {
	const query = tradeSelectColumns + `
		FROM paper_trades
		WHERE status = 'closed' AND strategy_used = $1 AND exit_time >= $2 AND exit_time <= $3
		ORDER BY exit_time ASC
	`
	rows, err := s.pool.Query(ctx, query, strategy, start, end)
	if err != nil {
		return nil, fmt.Errorf("closed trades by strategy: %w", err)
	}
	defer rows.Close()
	return scanTrades(rows)
}

// TradesFiltered lists trades for the boundary API's trade listing
// endpoint, optionally narrowed by status and/or strategy. A nil filter
// value leaves that dimension unconstrained.
func (s *Store) TradesFiltered(ctx context.Context, status *types.TradeStatus, strategy *string) ([]*types.PaperTrade, error) {
	query := tradeSelectColumns + ` FROM paper_trades WHERE 1=1`
	var args []any
	if status != nil {
		args = append(args, string(*status))
		query += fmt.Sprintf(" AND status = $%d", len(args))
	}
	if strategy != nil {
		args = append(args, *strategy)
		query += fmt.Sprintf(" AND strategy_used = $%d", len(args))
	}
	query += ` ORDER BY opened_at DESC`

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("trades filtered: %w", err)
	}
	defer rows.Close()
	return scanTrades(rows)
}

// GetPaperTrade fetches a single trade by ID.
func (s *Store) GetPaperTrade(ctx context.Context, id string) (*types.PaperTrade, error) {
	const query = tradeSelectColumns + ` FROM paper_trades WHERE id = $1`
	row := s.pool.QueryRow(ctx, query, id)
	t, err := scanTrade(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get paper trade: %w", err)
	}
	return t, nil
}

const tradeSelectColumns = `
	SELECT id, token_address, chain, strategy_used, child_strategy, source_wallet, entry_price,
	       amount, entry_value_usd, realized_pnl_partial, peak_price, status, opened_at,
	       exit_price, exit_value_usd, pnl, pnl_percentage, exit_time, exit_reason, notes
`

func scanTrade(row rowScanner) (*types.PaperTrade, error) {
	var t types.PaperTrade
	var chain, status string
	if err := row.Scan(
		&t.ID, &t.TokenAddress, &chain, &t.StrategyUsed, &t.ChildStrategy, &t.SourceWallet, &t.EntryPrice,
		&t.Amount, &t.EntryValueUSD, &t.RealizedPnLPartial, &t.PeakPrice, &status, &t.OpenedAt,
		&t.ExitPrice, &t.ExitValueUSD, &t.PnL, &t.PnLPercentage, &t.ExitTime, &t.ExitReason, &t.Notes,
	); err != nil {
		return nil, err
	}
	t.Chain = types.Chain(chain)
	t.Status = types.TradeStatus(status)
	return &t, nil
}

// AvailableCapital derives the spendable capital as startingCapital +
// Σ(realised pnl of closed trades) + Σ(pnl already realized by partial
// sells on trades still open) − Σ(entry_value_usd of open trades), never
// as a drifting stored counter. entry_value_usd shrinks in lockstep with
// each partial sell (see UpdatePaperTradePartialExit), so the three sums
// never double-count the sold-off portion of a partially exited trade.
func (s *Store) AvailableCapital(ctx context.Context, startingCapital decimal.Decimal) (decimal.Decimal, error) {
	var realizedPnL, openPartialPnL, openEntryValue decimal.Decimal

	if err := s.pool.QueryRow(ctx, `
		SELECT COALESCE(SUM(pnl), 0) FROM paper_trades WHERE status = 'closed'
	`).Scan(&realizedPnL); err != nil {
		return decimal.Zero, fmt.Errorf("sum realized pnl: %w", err)
	}

	if err := s.pool.QueryRow(ctx, `
		SELECT COALESCE(SUM(realized_pnl_partial), 0), COALESCE(SUM(entry_value_usd), 0)
		FROM paper_trades WHERE status = 'open'
	`).Scan(&openPartialPnL, &openEntryValue); err != nil {
		return decimal.Zero, fmt.Errorf("sum open trade figures: %w", err)
	}

	return startingCapital.Add(realizedPnL).Add(openPartialPnL).Sub(openEntryValue), nil
}

// RealizedPnLSince sums pnl (both from full closes and from partial sells
// still marked open) with an exit/realization event at or after since, for
// the 24h/7d loss limits in risk admission.
func (s *Store) RealizedPnLSince(ctx context.Context, since time.Time) (decimal.Decimal, error) {
	var closedPnL, recentPartialPnL decimal.Decimal

	if err := s.pool.QueryRow(ctx, `
		SELECT COALESCE(SUM(pnl), 0) FROM paper_trades
		WHERE status = 'closed' AND exit_time >= $1
	`, since).Scan(&closedPnL); err != nil {
		return decimal.Zero, fmt.Errorf("sum closed pnl since: %w", err)
	}

	// Partial sells don't carry their own timestamp. An open trade opened at
	// or after since can only have realized its partial pnl after since, so
	// its full realized_pnl_partial is counted; partial pnl of open trades
	// opened before since is not counted.
	if err := s.pool.QueryRow(ctx, `
		SELECT COALESCE(SUM(realized_pnl_partial), 0) FROM paper_trades
		WHERE status = 'open' AND opened_at >= $1
	`, since).Scan(&recentPartialPnL); err != nil {
		return decimal.Zero, fmt.Errorf("sum partial pnl since: %w", err)
	}

	return closedPnL.Add(recentPartialPnL), nil
}

func scanTrades(rows pgx.Rows) ([]*types.PaperTrade, error) {
	var out []*types.PaperTrade
	for rows.Next() {
		t, err := scanTrade(rows)
		if err != nil {
			return nil, fmt.Errorf("scan paper trade row: %w", err)
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate paper trade rows: %w", err)
	}
	return out, nil
}
