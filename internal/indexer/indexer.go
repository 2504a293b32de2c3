// Package indexer provides the bidirectional mapping between exchange-native
// names and the dense integer indices used throughout the engine (spec §4.7).
//
// A NameIndexer is built once from declarative configuration and is
// immutable thereafter; it is shared by reference across goroutines with no
// locking, following the teacher's NameIndexer-free but analogous read-only
// sharing of internal/binance market data caches.
package indexer

import (
	"fmt"

	"github.com/koshedu/marketcore/internal/instrument"
)

// IndexError is returned whenever a name or index lookup fails. It is never
// a panic for exchange-originated data; the caller decides whether to log
// and drop (pushed events) or terminate (outgoing engine requests), per
// spec §4.7 / §7.
type IndexError struct {
	Exchange instrument.ExchangeId
	Name     string
	Index    int
	Reason   string
}

func (e *IndexError) Error() string {
	if e.Name != "" {
		return fmt.Sprintf("indexer: unknown name %q for exchange %s: %s", e.Name, e.Exchange, e.Reason)
	}
	return fmt.Sprintf("indexer: unknown index %d for exchange %s: %s", e.Index, e.Exchange, e.Reason)
}

type assetKey struct {
	exchange instrument.ExchangeId
	name     instrument.AssetNameExchange
}

type instrumentKey struct {
	exchange instrument.ExchangeId
	name     instrument.InstrumentNameExchange
}

// AssetEntry seeds one (exchange, asset name) <-> index mapping.
type AssetEntry struct {
	Exchange instrument.ExchangeId
	Name     instrument.AssetNameExchange
	Index    instrument.AssetIndex
}

// InstrumentEntry seeds one (exchange, instrument name) <-> index mapping,
// together with the decoded Instrument it refers to.
type InstrumentEntry struct {
	Exchange   instrument.ExchangeId
	Name       instrument.InstrumentNameExchange
	Index      instrument.InstrumentIndex
	Instrument instrument.Instrument
}

// NameIndexer is an immutable, shareable bidirectional map. Construction is
// the only mutating phase; afterwards every method is safe to call
// concurrently from any number of goroutines without synchronisation.
type NameIndexer struct {
	assetByKey   map[assetKey]instrument.AssetIndex
	assetByIndex map[instrument.AssetIndex]AssetEntry

	instrumentByKey   map[instrumentKey]instrument.InstrumentIndex
	instrumentByIndex map[instrument.InstrumentIndex]InstrumentEntry
}

// New builds an immutable NameIndexer from declarative configuration.
// Duplicate (exchange, name) or (exchange, index) entries are an operator
// configuration error and are rejected up front, matching spec §7's
// "Validation" error-kind policy (fail init up-front).
func New(assets []AssetEntry, instruments []InstrumentEntry) (*NameIndexer, error) {
	idx := &NameIndexer{
		assetByKey:        make(map[assetKey]instrument.AssetIndex, len(assets)),
		assetByIndex:      make(map[instrument.AssetIndex]AssetEntry, len(assets)),
		instrumentByKey:   make(map[instrumentKey]instrument.InstrumentIndex, len(instruments)),
		instrumentByIndex: make(map[instrument.InstrumentIndex]InstrumentEntry, len(instruments)),
	}

	for _, a := range assets {
		k := assetKey{exchange: a.Exchange, name: a.Name}
		if _, exists := idx.assetByKey[k]; exists {
			return nil, fmt.Errorf("indexer: duplicate asset entry for %s/%s", a.Exchange, a.Name)
		}
		if _, exists := idx.assetByIndex[a.Index]; exists {
			return nil, fmt.Errorf("indexer: duplicate asset index %d", a.Index)
		}
		idx.assetByKey[k] = a.Index
		idx.assetByIndex[a.Index] = a
	}

	for _, i := range instruments {
		k := instrumentKey{exchange: i.Exchange, name: i.Name}
		if _, exists := idx.instrumentByKey[k]; exists {
			return nil, fmt.Errorf("indexer: duplicate instrument entry for %s/%s", i.Exchange, i.Name)
		}
		if _, exists := idx.instrumentByIndex[i.Index]; exists {
			return nil, fmt.Errorf("indexer: duplicate instrument index %d", i.Index)
		}
		idx.instrumentByKey[k] = i.Index
		idx.instrumentByIndex[i.Index] = i
	}

	return idx, nil
}

// AssetIndexOf resolves an exchange-native asset name to its dense index.
func (n *NameIndexer) AssetIndexOf(exchange instrument.ExchangeId, name instrument.AssetNameExchange) (instrument.AssetIndex, error) {
	idx, ok := n.assetByKey[assetKey{exchange: exchange, name: name}]
	if !ok {
		return 0, &IndexError{Exchange: exchange, Name: string(name), Reason: "not configured"}
	}
	return idx, nil
}

// AssetNameOf resolves a dense asset index back to its exchange-native name.
func (n *NameIndexer) AssetNameOf(exchange instrument.ExchangeId, idx instrument.AssetIndex) (instrument.AssetNameExchange, error) {
	entry, ok := n.assetByIndex[idx]
	if !ok || entry.Exchange != exchange {
		return "", &IndexError{Exchange: exchange, Index: int(idx), Reason: "not configured"}
	}
	return entry.Name, nil
}

// InstrumentIndexOf resolves an exchange-native instrument name to its index.
func (n *NameIndexer) InstrumentIndexOf(exchange instrument.ExchangeId, name instrument.InstrumentNameExchange) (instrument.InstrumentIndex, error) {
	idx, ok := n.instrumentByKey[instrumentKey{exchange: exchange, name: name}]
	if !ok {
		return 0, &IndexError{Exchange: exchange, Name: string(name), Reason: "not configured"}
	}
	return idx, nil
}

// InstrumentNameOf resolves a dense instrument index back to its
// exchange-native name.
func (n *NameIndexer) InstrumentNameOf(exchange instrument.ExchangeId, idx instrument.InstrumentIndex) (instrument.InstrumentNameExchange, error) {
	entry, ok := n.instrumentByIndex[idx]
	if !ok || entry.Exchange != exchange {
		return "", &IndexError{Exchange: exchange, Index: int(idx), Reason: "not configured"}
	}
	return entry.Name, nil
}

// InstrumentOf resolves a dense instrument index to the decoded Instrument.
func (n *NameIndexer) InstrumentOf(idx instrument.InstrumentIndex) (instrument.Instrument, error) {
	entry, ok := n.instrumentByIndex[idx]
	if !ok {
		return instrument.Instrument{}, &IndexError{Index: int(idx), Reason: "not configured"}
	}
	return entry.Instrument, nil
}

// InstrumentIndexOfInstrument resolves a decoded Instrument on a given
// exchange to its dense index, used by the engine's outgoing OrderKey
// construction. An unresolved lookup here indicates operator error per
// spec §4.7 ("non-configured key ... terminates the manager").
func (n *NameIndexer) InstrumentIndexOfInstrument(exchange instrument.ExchangeId, inst instrument.Instrument) (instrument.InstrumentIndex, error) {
	for k, idx := range n.instrumentByKey {
		if k.exchange != exchange {
			continue
		}
		if n.instrumentByIndex[idx].Instrument == inst {
			return idx, nil
		}
	}
	return 0, &IndexError{Exchange: exchange, Name: inst.String(), Reason: "instrument not configured"}
}
