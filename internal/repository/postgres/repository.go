package postgres

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/koshedu/marketcore/internal/position"
	"github.com/koshedu/marketcore/internal/repository"
)

// Repository implements repository.PositionHandler, repository.BalanceHandler
// and repository.StatisticHandler against Postgres, grounded on the
// teacher's Repository struct/query style (internal/database/repository.go).
type Repository struct {
	db *DB
}

// New wraps a connected DB in a Repository.
func New(db *DB) *Repository {
	return &Repository{db: db}
}

// HealthCheck pings the underlying pool.
func (r *Repository) HealthCheck(ctx context.Context) error {
	return r.db.Pool.Ping(ctx)
}

// SaveExitedPosition persists a closed or flipped position.
func (r *Repository) SaveExitedPosition(ctx context.Context, p position.ExitedPosition) error {
	query := `
		INSERT INTO exited_positions
			(instrument, side, price_entry_avg, quantity_max, realised_pnl,
			 fees_enter, fees_exit, enter_time, exit_time)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	_, err := r.db.Pool.Exec(ctx, query,
		p.Instrument.String(), p.Side.String(), p.PriceEntryAvg, p.QuantityMax,
		p.RealisedPnL, p.FeesEnter, p.FeesExit, p.EnterTime, p.ExitTime,
	)
	if err != nil {
		return fmt.Errorf("save exited position: %w", err)
	}
	return nil
}

// SaveBalanceSnapshot persists one asset balance observation.
func (r *Repository) SaveBalanceSnapshot(ctx context.Context, snapshot repository.BalanceSnapshot) error {
	query := `
		INSERT INTO balance_snapshots (asset, amount, observed_at)
		VALUES ($1, $2, now())
	`
	_, err := r.db.Pool.Exec(ctx, query, snapshot.Asset, snapshot.Amount)
	if err != nil {
		return fmt.Errorf("save balance snapshot: %w", err)
	}
	return nil
}

// RecordTrade folds an exited position into the running statistics table.
func (r *Repository) RecordTrade(ctx context.Context, p position.ExitedPosition) error {
	query := `
		INSERT INTO trade_statistics (trade_count, realised_pnl, winning_trades, losing_trades)
		VALUES (1, $1, $2, $3)
		ON CONFLICT (id) DO UPDATE SET
			trade_count    = trade_statistics.trade_count + 1,
			realised_pnl   = trade_statistics.realised_pnl + EXCLUDED.realised_pnl,
			winning_trades = trade_statistics.winning_trades + EXCLUDED.winning_trades,
			losing_trades  = trade_statistics.losing_trades + EXCLUDED.losing_trades
	`
	winning, losing := 0, 0
	if p.RealisedPnL.IsPositive() {
		winning = 1
	} else if p.RealisedPnL.IsNegative() {
		losing = 1
	}
	_, err := r.db.Pool.Exec(ctx, query, p.RealisedPnL, winning, losing)
	if err != nil {
		return fmt.Errorf("record trade statistics: %w", err)
	}
	return nil
}

// GetStatistics loads the running aggregate row.
func (r *Repository) GetStatistics(ctx context.Context) (repository.Statistics, error) {
	query := `
		SELECT trade_count, realised_pnl, winning_trades, losing_trades
		FROM trade_statistics
		WHERE id = 1
	`
	var stats repository.Statistics
	var realised decimal.Decimal
	err := r.db.Pool.QueryRow(ctx, query).Scan(&stats.TradeCount, &realised, &stats.WinningTrades, &stats.LosingTrades)
	if err != nil {
		return repository.Statistics{}, fmt.Errorf("get trade statistics: %w", err)
	}
	stats.RealisedPnL = realised
	return stats, nil
}
