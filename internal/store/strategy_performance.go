package store

import (
	"context"
	"fmt"
	"time"

	"github.com/chainscout/walletrader/pkg/types"
)

// UpsertStrategyPerformance writes or merges a day's rollup for a strategy.
func (s *Store) UpsertStrategyPerformance(ctx context.Context, p *types.StrategyPerformance) error {
	const query = `
		INSERT INTO strategy_performance (
			strategy_type, date, trades_opened, trades_closed, winning_trades,
			realized_pnl_usd, win_rate, sharpe_ratio, max_drawdown_pct
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		ON CONFLICT (strategy_type, date) DO UPDATE SET
			trades_opened = EXCLUDED.trades_opened,
			trades_closed = EXCLUDED.trades_closed,
			winning_trades = EXCLUDED.winning_trades,
			realized_pnl_usd = EXCLUDED.realized_pnl_usd,
			win_rate = EXCLUDED.win_rate,
			sharpe_ratio = EXCLUDED.sharpe_ratio,
			max_drawdown_pct = EXCLUDED.max_drawdown_pct
	`
	_, err := s.pool.Exec(ctx, query,
		p.StrategyType, p.Date, p.TradesOpened, p.TradesClosed, p.WinningTrades,
		p.RealizedPnLUSD, p.WinRate, p.SharpeRatio, p.MaxDrawdownPct,
	)
	if err != nil {
		return fmt.Errorf("upsert strategy performance: %w", err)
	}
	return nil
}

// StrategyPerformanceRange returns rollups for a strategy within [start, end].
func (s *Store) StrategyPerformanceRange(ctx context.Context, strategy string, start, end time.Time) ([]*types.StrategyPerformance, error) {
	const query = `
		SELECT strategy_type, date, trades_opened, trades_closed, winning_trades,
		       realized_pnl_usd, win_rate, sharpe_ratio, max_drawdown_pct
		FROM strategy_performance
		WHERE strategy_type = $1 AND date >= $2 AND date <= $3
		ORDER BY date ASC
	`
	rows, err := s.pool.Query(ctx, query, strategy, start, end)
	if err != nil {
		return nil, fmt.Errorf("strategy performance range: %w", err)
	}
	defer rows.Close()

	var out []*types.StrategyPerformance
	for rows.Next() {
		var p types.StrategyPerformance
		if err := rows.Scan(&p.StrategyType, &p.Date, &p.TradesOpened, &p.TradesClosed,
			&p.WinningTrades, &p.RealizedPnLUSD, &p.WinRate, &p.SharpeRatio, &p.MaxDrawdownPct); err != nil {
			return nil, fmt.Errorf("scan strategy performance row: %w", err)
		}
		out = append(out, &p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate strategy performance rows: %w", err)
	}
	return out, nil
}

// TradesOpenedCountByStrategy counts trades (open or closed) whose
// OpenedAt falls within [start, end), for the daily rollup's
// trades_opened figure.
func (s *Store) TradesOpenedCountByStrategy(ctx context.Context, strategy string, start, end time.Time) (int, error) {
	const query = `
		SELECT COUNT(*) FROM paper_trades
		WHERE strategy_used = $1 AND opened_at >= $2 AND opened_at < $3
	`
	var count int
	if err := s.pool.QueryRow(ctx, query, strategy, start, end).Scan(&count); err != nil {
		return 0, fmt.Errorf("trades opened count by strategy: %w", err)
	}
	return count, nil
}
