// Package streams implements the market data multiplexer: StreamSupervisor
// and ReconnectingStream (spec §4.1, §4.2), fanning many per-exchange
// subscriptions into typed, merge-able channels.
package streams

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/koshedu/marketcore/internal/instrument"
	"github.com/koshedu/marketcore/internal/orderbook"
	"github.com/koshedu/marketcore/internal/orderstore"
)

// DataErrorKind classifies why a market data operation failed (spec §7).
type DataErrorKind int

const (
	ErrUnsupportedSubKind DataErrorKind = iota
	ErrConnectivity
	ErrOther
)

// DataError is the terminal error item an adapter stream can surface.
type DataError struct {
	Kind     DataErrorKind
	Exchange instrument.ExchangeId
	SubKind  instrument.SubKind
	Cause    error
}

func (e *DataError) Error() string {
	return e.Cause.Error()
}

// PublicTrade is a single executed trade print.
type PublicTrade struct {
	ID     string
	Price  decimal.Decimal
	Amount decimal.Decimal
	Side   orderstore.Side
}

// OrderBookL1 is the best-bid/best-ask payload for the L1 sub kind.
type OrderBookL1 struct {
	BestBid orderbook.Level
	BestAsk orderbook.Level
}

// OrderBookEventKind distinguishes a full L2 snapshot from an incremental update.
type OrderBookEventKind int

const (
	BookSnapshot OrderBookEventKind = iota
	BookUpdate
)

// OrderBookEvent is the L2 payload: either a full replace or a delta.
type OrderBookEvent struct {
	Kind OrderBookEventKind
	Bids []orderbook.Level
	Asks []orderbook.Level
}

// Liquidation is a forced-liquidation print.
type Liquidation struct {
	Side     orderstore.Side
	Price    decimal.Decimal
	Quantity decimal.Decimal
}

// PayloadKind tags which field of MarketEvent is populated.
type PayloadKind int

const (
	PayloadTrade PayloadKind = iota
	PayloadBookL1
	PayloadBookEvent
	PayloadLiquidation
)

// MarketEvent is the outbound item type for every subscription kind (spec §6).
// Exactly one of the payload fields is populated, selected by Kind.
type MarketEvent struct {
	TimeExchange time.Time
	TimeReceived time.Time
	Exchange     instrument.ExchangeId
	Instrument   instrument.InstrumentIndex

	Kind        PayloadKind
	Trade       *PublicTrade
	BookL1      *OrderBookL1
	BookEvent   *OrderBookEvent
	Liquidation *Liquidation
}

// Result wraps either a successful MarketEvent or a terminal DataError,
// mirroring spec §4.1's Result<MarketEvent, DataError> item type.
type Result struct {
	Event MarketEvent
	Err   *DataError
}

// Ok builds a successful Result.
func Ok(evt MarketEvent) Result { return Result{Event: evt} }

// Errored builds a failed Result.
func Errored(err *DataError) Result { return Result{Err: err} }
