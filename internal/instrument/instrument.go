// Package instrument defines the exchange, subscription, and instrument
// identity types shared across the market data and execution layers.
package instrument

import "fmt"

// ExchangeId is the finite tag set of supported exchanges.
type ExchangeId int

const (
	Unknown ExchangeId = iota
	BinanceSpot
	BinanceFuturesUsd
	Bitfinex
	Bitmex
	BybitSpot
	BybitPerpetualsUsd
	Coinbase
	GateioSpot
	GateioFuturesUsd
	GateioFuturesBtc
	GateioPerpetualsUsd
	GateioPerpetualsBtc
	GateioOptions
	Kraken
	Okx
	Simulated
	Mock
)

var exchangeNames = map[ExchangeId]string{
	BinanceSpot:        "binance_spot",
	BinanceFuturesUsd:  "binance_futures_usd",
	Bitfinex:           "bitfinex",
	Bitmex:             "bitmex",
	BybitSpot:          "bybit_spot",
	BybitPerpetualsUsd: "bybit_perpetuals_usd",
	Coinbase:           "coinbase",
	GateioSpot:         "gateio_spot",
	GateioFuturesUsd:   "gateio_futures_usd",
	GateioFuturesBtc:   "gateio_futures_btc",
	GateioPerpetualsUsd: "gateio_perpetuals_usd",
	GateioPerpetualsBtc: "gateio_perpetuals_btc",
	GateioOptions:      "gateio_options",
	Kraken:             "kraken",
	Okx:                "okx",
	Simulated:          "simulated",
	Mock:               "mock",
}

func (e ExchangeId) String() string {
	if s, ok := exchangeNames[e]; ok {
		return s
	}
	return "unknown"
}

// SubKind categorises a market data subscription.
type SubKind int

const (
	PublicTrades SubKind = iota
	OrderBooksL1
	OrderBooksL2
	Liquidations
)

func (k SubKind) String() string {
	switch k {
	case PublicTrades:
		return "public_trades"
	case OrderBooksL1:
		return "order_books_l1"
	case OrderBooksL2:
		return "order_books_l2"
	case Liquidations:
		return "liquidations"
	default:
		return "unknown_sub_kind"
	}
}

// InstrumentIndex is a dense integer assigned to an Instrument by a NameIndexer.
type InstrumentIndex int

// AssetIndex is a dense integer assigned to an asset symbol by a NameIndexer.
type AssetIndex int

// InstrumentNameExchange is the opaque exchange-native instrument name
// (e.g. "BTCUSDT").
type InstrumentNameExchange string

// AssetNameExchange is the opaque exchange-native asset name (e.g. "USDT").
type AssetNameExchange string

// InstrumentKind distinguishes spot, perpetual, future and option instruments.
type InstrumentKind int

const (
	Spot InstrumentKind = iota
	Perpetual
	Future
	Option
)

func (k InstrumentKind) String() string {
	switch k {
	case Spot:
		return "spot"
	case Perpetual:
		return "perpetual"
	case Future:
		return "future"
	case Option:
		return "option"
	default:
		return "unknown_kind"
	}
}

// Instrument identifies a tradeable pair. Expiry/Strike/Kind-specific fields
// are zero-valued when not applicable to Kind.
type Instrument struct {
	Base    string
	Quote   string
	Kind    InstrumentKind
	Expiry  int64 // unix seconds, Future/Option only
	Strike  string
	IsCall  bool // Option only
}

// String renders a canonical, sortable representation.
func (i Instrument) String() string {
	switch i.Kind {
	case Future:
		return fmt.Sprintf("%s-%s-%s-%d", i.Base, i.Quote, i.Kind, i.Expiry)
	case Option:
		return fmt.Sprintf("%s-%s-%s-%d-%s", i.Base, i.Quote, i.Kind, i.Expiry, i.Strike)
	default:
		return fmt.Sprintf("%s-%s-%s", i.Base, i.Quote, i.Kind)
	}
}

// Less provides the total order used by Subscription deduplication (§4.1.2).
func (i Instrument) Less(other Instrument) bool {
	return i.String() < other.String()
}

// Subscription is a single (exchange, instrument, kind) market data request.
type Subscription struct {
	Exchange   ExchangeId
	Instrument Instrument
	Kind       SubKind
}

// Less provides the lexicographic (exchange, kind, instrument) ordering used
// by StreamSupervisor's dedup pass (§4.1.2).
func (s Subscription) Less(other Subscription) bool {
	if s.Exchange != other.Exchange {
		return s.Exchange < other.Exchange
	}
	if s.Kind != other.Kind {
		return s.Kind < other.Kind
	}
	return s.Instrument.Less(other.Instrument)
}

// Equal reports whether two subscriptions address the same class and instrument.
func (s Subscription) Equal(other Subscription) bool {
	return s.Exchange == other.Exchange && s.Kind == other.Kind && s.Instrument == other.Instrument
}

// Class identifies the (exchange, kind) pair a Subscription belongs to; the
// StreamSupervisor provisions exactly one fan-in channel per Class (I3).
type Class struct {
	Exchange ExchangeId
	Kind     SubKind
}

func (s Subscription) Class() Class {
	return Class{Exchange: s.Exchange, Kind: s.Kind}
}
