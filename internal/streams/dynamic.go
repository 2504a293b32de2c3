package streams

import "github.com/koshedu/marketcore/internal/instrument"

// DynamicStreams is a one-shot registry of provisioned Channels that hands
// each class's channel out at most once. A selector call permanently removes
// the class from the registry (spec's resolved Open Question: selecting is
// destructive, matching a consuming iterator rather than a repeatable view).
type DynamicStreams struct {
	remaining Channels
}

// NewDynamicStreams wraps a Supervisor's Init result for selection.
func NewDynamicStreams(channels Channels) *DynamicStreams {
	remaining := make(Channels, len(channels))
	for k, v := range channels {
		remaining[k] = v
	}
	return &DynamicStreams{remaining: remaining}
}

// SelectTrades removes and returns the trades channel for one exchange, if
// it was provisioned.
func (d *DynamicStreams) SelectTrades(exchange instrument.ExchangeId) (<-chan Item, bool) {
	return d.selectOne(instrument.Class{Exchange: exchange, Kind: instrument.PublicTrades})
}

// SelectOrderBooksL1 removes and returns the L1 book channel for one exchange.
func (d *DynamicStreams) SelectOrderBooksL1(exchange instrument.ExchangeId) (<-chan Item, bool) {
	return d.selectOne(instrument.Class{Exchange: exchange, Kind: instrument.OrderBooksL1})
}

// SelectOrderBooksL2 removes and returns the L2 book channel for one exchange.
func (d *DynamicStreams) SelectOrderBooksL2(exchange instrument.ExchangeId) (<-chan Item, bool) {
	return d.selectOne(instrument.Class{Exchange: exchange, Kind: instrument.OrderBooksL2})
}

// SelectLiquidations removes and returns the liquidations channel for one exchange.
func (d *DynamicStreams) SelectLiquidations(exchange instrument.ExchangeId) (<-chan Item, bool) {
	return d.selectOne(instrument.Class{Exchange: exchange, Kind: instrument.Liquidations})
}

// SelectAllTrades removes and returns every remaining trades channel, keyed
// by exchange.
func (d *DynamicStreams) SelectAllTrades() map[instrument.ExchangeId]<-chan Item {
	return d.selectKind(instrument.PublicTrades)
}

// SelectAllOrderBooksL1 removes and returns every remaining L1 book channel,
// keyed by exchange (spec §4.1: "same for L1/L2/liquidations").
func (d *DynamicStreams) SelectAllOrderBooksL1() map[instrument.ExchangeId]<-chan Item {
	return d.selectKind(instrument.OrderBooksL1)
}

// SelectAllOrderBooksL2 removes and returns every remaining L2 book channel,
// keyed by exchange.
func (d *DynamicStreams) SelectAllOrderBooksL2() map[instrument.ExchangeId]<-chan Item {
	return d.selectKind(instrument.OrderBooksL2)
}

// SelectAllLiquidations removes and returns every remaining liquidations
// channel, keyed by exchange.
func (d *DynamicStreams) SelectAllLiquidations() map[instrument.ExchangeId]<-chan Item {
	return d.selectKind(instrument.Liquidations)
}

// SelectAll removes and returns every remaining channel, keyed by class.
// After this call the registry is empty.
func (d *DynamicStreams) SelectAll() Channels {
	out := d.remaining
	d.remaining = make(Channels)
	return out
}

func (d *DynamicStreams) selectOne(class instrument.Class) (<-chan Item, bool) {
	ch, ok := d.remaining[class]
	if ok {
		delete(d.remaining, class)
	}
	return ch, ok
}

func (d *DynamicStreams) selectKind(kind instrument.SubKind) map[instrument.ExchangeId]<-chan Item {
	out := make(map[instrument.ExchangeId]<-chan Item)
	for class, ch := range d.remaining {
		if class.Kind == kind {
			out[class.Exchange] = ch
			delete(d.remaining, class)
		}
	}
	return out
}
