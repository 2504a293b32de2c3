// Package orderstore implements the per-instrument OrderStore finite state
// machine (spec §4.4): OpenInFlight -> Open -> CancelInFlight -> terminal
// removal, driven by engine-originated in-flight markers and
// exchange-originated responses/snapshots.
package orderstore

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"github.com/koshedu/marketcore/internal/instrument"
)

// ClientOrderId is the engine-generated identifier that survives across
// exchange round-trips.
type ClientOrderId string

// Side is the order direction.
type Side int

const (
	Buy Side = iota
	Sell
)

func (s Side) String() string {
	if s == Buy {
		return "buy"
	}
	return "sell"
}

// Kind is the order type.
type Kind int

const (
	Market Kind = iota
	Limit
)

// TimeInForce controls order lifetime semantics at the exchange.
type TimeInForce int

const (
	GoodTilCancel TimeInForce = iota
	ImmediateOrCancel
	FillOrKill
)

// Key uniquely identifies an order request (spec §3 OrderKey).
type Key struct {
	Exchange   instrument.ExchangeId
	Instrument instrument.InstrumentIndex
	Strategy   string
	Cid        ClientOrderId
}

// Status is the coarse FSM state of a tracked order (spec §4.4 rows).
type Status int

const (
	StatusOpenInFlight Status = iota
	StatusOpen
	StatusCancelInFlight
)

func (s Status) String() string {
	switch s {
	case StatusOpenInFlight:
		return "open_in_flight"
	case StatusOpen:
		return "open"
	case StatusCancelInFlight:
		return "cancel_in_flight"
	default:
		return "unknown"
	}
}

// Order is a tracked, non-terminal order. Exactly one entry exists per
// ClientOrderId in a Store at any time (I2).
type Order struct {
	Key         Key
	Side        Side
	Price       decimal.Decimal
	Quantity    decimal.Decimal
	Kind        Kind
	TimeInForce TimeInForce
	Status      Status

	// Populated once Status == StatusOpen (or known from a prior Open view
	// while CancelInFlight is waiting on a response).
	ExchangeOrderId string
	TimeExchange    time.Time
	OpenPrice       decimal.Decimal
	OpenQuantity    decimal.Decimal
	FilledQuantity  decimal.Decimal

	// CancelExchangeOrderId is set when a CancelInFlight transition knows the
	// exchange order id it is cancelling (optional per OrderRequestCancel).
	CancelExchangeOrderId string
}

// OpenView is the exchange's view of an order in the Open state, used by
// both snapshots and open-response acknowledgements.
type OpenView struct {
	ExchangeOrderId string
	TimeExchange    time.Time
	Price           decimal.Decimal
	Quantity        decimal.Decimal
	FilledQuantity  decimal.Decimal
}

// TerminalKind distinguishes the terminal exchange order states that cause
// removal from the Store.
type TerminalKind int

const (
	TerminalCancelled TerminalKind = iota
	TerminalExpired
	TerminalRejected
	TerminalFullyFilled
)

// Already-done API errors: terminal acknowledgements that are never retried
// (spec §4.4 "Failure semantics").
var (
	ErrOrderAlreadyCancelled    = errors.New("order already cancelled")
	ErrOrderAlreadyFullyFilled = errors.New("order already fully filled")
)

// Connectivity errors: transport-level failures handled per current status.
var (
	ErrTimeout = errors.New("request timed out")
)

// IsAlreadyDone reports whether err represents a terminal "already-done"
// acknowledgement rather than a transient connectivity failure.
func IsAlreadyDone(err error) bool {
	return errors.Is(err, ErrOrderAlreadyCancelled) || errors.Is(err, ErrOrderAlreadyFullyFilled)
}
