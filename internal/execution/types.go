// Package execution implements the per-exchange ExecutionManager: a single
// actor owning one exchange's authenticated order and account connections
// (spec §4.6, §4.7).
package execution

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/koshedu/marketcore/internal/instrument"
	"github.com/koshedu/marketcore/internal/orderstore"
)

// RequestKind tags which field of Request is populated.
type RequestKind int

const (
	RequestOpen RequestKind = iota
	RequestCancel
	RequestShutdown
)

// Request is the tagged-union engine-to-exchange command (spec §6):
// ExecutionRequest ∈ {Open, Cancel, Shutdown}.
type Request struct {
	Kind   RequestKind
	Open   *OpenCommand
	Cancel *CancelCommand
}

// OpenCommand carries the full, indexed parameters needed to place a new
// order, as issued by the engine. The Manager resolves Key.Instrument to its
// exchange-native name before handing the request to the ExecutionClient
// (spec §4.6 "an incoming request is indexed").
type OpenCommand struct {
	Key         orderstore.Key
	Side        orderstore.Side
	OrderKind   orderstore.Kind
	TimeInForce orderstore.TimeInForce
	Price       string
	Quantity    string
}

// CancelCommand carries the indexed parameters needed to cancel a tracked
// order.
type CancelCommand struct {
	Key             orderstore.Key
	ExchangeOrderId string
}

// NativeOpenCommand is what the Manager passes to ExecutionClient.Open once
// it has resolved the order's instrument index to its exchange-native name
// (spec §6 "open_order(OrderRequestOpen<native>)").
type NativeOpenCommand struct {
	Cid            orderstore.ClientOrderId
	InstrumentName instrument.InstrumentNameExchange
	Side           orderstore.Side
	OrderKind      orderstore.Kind
	TimeInForce    orderstore.TimeInForce
	Price          string
	Quantity       string
}

// NativeCancelCommand is the exchange-native counterpart of CancelCommand
// (spec §6 "cancel_order(OrderRequestCancel<native>)").
type NativeCancelCommand struct {
	Cid             orderstore.ClientOrderId
	InstrumentName  instrument.InstrumentNameExchange
	ExchangeOrderId string
}

// AccountEventKind tags which field of a native account event is populated.
type AccountEventKind int

const (
	AccountSnapshotOpen AccountEventKind = iota
	AccountSnapshotTerminal
)

// NativeAccountEvent is one item from the authenticated account/user-data
// stream, keyed by exchange-native instrument name rather than index (spec
// §6 "account_stream(...) → Stream<AccountEvent native names>"). The
// Manager resolves InstrumentName to a dense index before applying it to
// the OrderStore, logging and dropping events whose name is unconfigured
// (spec §4.6 "Response-indexing failures ... are logged and dropped").
type NativeAccountEvent struct {
	Kind           AccountEventKind
	Cid            orderstore.ClientOrderId
	InstrumentName instrument.InstrumentNameExchange
	Open           orderstore.OpenView
	Terminal       orderstore.TerminalKind
}

// Balance is one asset balance line of an AccountSnapshot.
type Balance struct {
	Asset     instrument.AssetNameExchange
	Total     decimal.Decimal
	Available decimal.Decimal
}

// SnapshotOrder is one open order line of an AccountSnapshot, in the same
// native-name shape as NativeAccountEvent's Open variant.
type SnapshotOrder struct {
	Cid            orderstore.ClientOrderId
	InstrumentName instrument.InstrumentNameExchange
	Open           orderstore.OpenView
}

// AccountSnapshot is the full balances+open-orders view the account stream
// starts with on every (re)connect (spec §4.6 "account_stream starts with a
// full AccountSnapshot (balances + open orders) ... A reconnection restarts
// the stream with a fresh snapshot").
type AccountSnapshot struct {
	Balances   []Balance
	OpenOrders []SnapshotOrder
}

// ExecutionClient is the per-exchange transport the ExecutionManager drives,
// entirely in exchange-native name space (spec §6). Open, Cancel and
// AccountSnapshot must respect ctx cancellation (request timeout, spec
// §4.6); AccountStream must itself reconnect-free — reconnect/backoff is
// owned entirely by the ExecutionManager, identically to the market data
// side (spec §5).
type ExecutionClient interface {
	AccountSnapshot(ctx context.Context) (AccountSnapshot, error)
	AccountStream(ctx context.Context) (<-chan NativeAccountEvent, error)
	Open(ctx context.Context, cmd NativeOpenCommand) (orderstore.OpenView, error)
	Cancel(ctx context.Context, cmd NativeCancelCommand) error
}

// DefaultRequestTimeout bounds how long the manager waits for an exchange
// response before treating the request as a connectivity failure.
const DefaultRequestTimeout = 10 * time.Second
