// Package repository defines the persistence interfaces the core delegates
// to (spec §6): "Any persistence of positions/balances is delegated to
// external Repository objects (a PositionHandler, BalanceHandler,
// StatisticHandler) reachable through interface calls". The core never
// implements these itself; see internal/repository/postgres for the
// reference implementation.
package repository

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/koshedu/marketcore/internal/position"
)

// PositionHandler persists position lifecycle events.
type PositionHandler interface {
	SaveExitedPosition(ctx context.Context, p position.ExitedPosition) error
}

// BalanceSnapshot is a point-in-time asset balance.
type BalanceSnapshot struct {
	Asset  string
	Amount decimal.Decimal
}

// BalanceHandler persists balance snapshots reported by the account stream.
type BalanceHandler interface {
	SaveBalanceSnapshot(ctx context.Context, snapshot BalanceSnapshot) error
}

// Statistics summarizes realised performance over every recorded trade.
type Statistics struct {
	TradeCount    int64
	RealisedPnL   decimal.Decimal
	WinningTrades int64
	LosingTrades  int64
}

// StatisticHandler aggregates trade outcomes into running statistics.
type StatisticHandler interface {
	RecordTrade(ctx context.Context, p position.ExitedPosition) error
	GetStatistics(ctx context.Context) (Statistics, error)
}
