// Package orderbook maintains the canonical L1/L2 order book state for a
// single instrument (spec §4.3). Prices and amounts are exact decimals;
// floats never enter the accounting path (I6).
package orderbook

import (
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// Level is a single (price, amount) point in the book.
type Level struct {
	Price  decimal.Decimal
	Amount decimal.Decimal
}

// Book is a concurrency-safe, sequence-numbered order book. Bids are kept
// non-increasing in price, asks non-decreasing (I4); zero-amount levels are
// removed on apply.
type Book struct {
	mu sync.RWMutex

	sequence   uint64
	updateTime time.Time

	bids map[string]Level // keyed by Price.String() for O(1) upsert/delete
	asks map[string]Level

	bidsSorted []Level // kept sorted lazily; invalidated on mutation
	asksSorted []Level
	dirty      bool
}

// New creates an empty book.
func New() *Book {
	return &Book{
		bids: make(map[string]Level),
		asks: make(map[string]Level),
	}
}

// ApplySnapshot replaces the book wholesale. The update timestamp becomes
// the max of the stored and observed timestamps (§4.3).
func (b *Book) ApplySnapshot(bids, asks []Level, ts time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.bids = make(map[string]Level, len(bids))
	b.asks = make(map[string]Level, len(asks))
	for _, lvl := range bids {
		if lvl.Amount.IsPositive() {
			b.bids[lvl.Price.String()] = lvl
		}
	}
	for _, lvl := range asks {
		if lvl.Amount.IsPositive() {
			b.asks[lvl.Price.String()] = lvl
		}
	}
	b.sequence++
	if ts.After(b.updateTime) {
		b.updateTime = ts
	}
	b.dirty = true
}

// ApplyUpdate upserts incoming levels with positive amount and deletes
// levels whose amount is exactly zero (§4.3). The update timestamp becomes
// max(stored, observed) (I5): an update that is not newer than what is
// already stored must not regress the book's timestamp.
func (b *Book) ApplyUpdate(bids, asks []Level, ts time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, lvl := range bids {
		applyLevel(b.bids, lvl)
	}
	for _, lvl := range asks {
		applyLevel(b.asks, lvl)
	}
	b.sequence++
	if ts.After(b.updateTime) {
		b.updateTime = ts
	}
	b.dirty = true
}

func applyLevel(side map[string]Level, lvl Level) {
	key := lvl.Price.String()
	if lvl.Amount.IsZero() {
		delete(side, key)
		return
	}
	if lvl.Amount.IsNegative() {
		// Never reached by valid exchange data; defensive drop rather than a
		// corrupted book (I4: amounts strictly positive after apply).
		return
	}
	side[key] = lvl
}

func (b *Book) resort() {
	if !b.dirty {
		return
	}
	b.bidsSorted = make([]Level, 0, len(b.bids))
	for _, lvl := range b.bids {
		b.bidsSorted = append(b.bidsSorted, lvl)
	}
	sort.Slice(b.bidsSorted, func(i, j int) bool {
		return b.bidsSorted[i].Price.GreaterThan(b.bidsSorted[j].Price)
	})

	b.asksSorted = make([]Level, 0, len(b.asks))
	for _, lvl := range b.asks {
		b.asksSorted = append(b.asksSorted, lvl)
	}
	sort.Slice(b.asksSorted, func(i, j int) bool {
		return b.asksSorted[i].Price.LessThan(b.asksSorted[j].Price)
	})
	b.dirty = false
}

// BestBid returns the highest bid level, if any.
func (b *Book) BestBid() (Level, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.resort()
	if len(b.bidsSorted) == 0 {
		return Level{}, false
	}
	return b.bidsSorted[0], true
}

// BestAsk returns the lowest ask level, if any.
func (b *Book) BestAsk() (Level, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.resort()
	if len(b.asksSorted) == 0 {
		return Level{}, false
	}
	return b.asksSorted[0], true
}

// Bids returns a snapshot of the bid side, non-increasing in price (I4).
func (b *Book) Bids() []Level {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.resort()
	out := make([]Level, len(b.bidsSorted))
	copy(out, b.bidsSorted)
	return out
}

// Asks returns a snapshot of the ask side, non-decreasing in price (I4).
func (b *Book) Asks() []Level {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.resort()
	out := make([]Level, len(b.asksSorted))
	copy(out, b.asksSorted)
	return out
}

// Sequence returns the number of applies (snapshot or update) the book has seen.
func (b *Book) Sequence() uint64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.sequence
}

// UpdateTime returns the book's last-update timestamp.
func (b *Book) UpdateTime() time.Time {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.updateTime
}

// ParseExchangeTime decodes an exchange-native (seconds, nanoseconds)
// timestamp pair per spec §4.3's parsing policy: fractional-to-nanoseconds
// clamped to 999_999_999.
func ParseExchangeTime(seconds int64, nanos int64) time.Time {
	if nanos > 999_999_999 {
		nanos = 999_999_999
	}
	if nanos < 0 {
		nanos = 0
	}
	return time.Unix(seconds, nanos).UTC()
}

// ParseLevel parses exchange-native decimal strings into a Level. Per §4.3,
// a parse failure is reported so the caller can drop-with-log rather than
// fail the whole stream.
func ParseLevel(price, amount string) (Level, error) {
	p, err := decimal.NewFromString(price)
	if err != nil {
		return Level{}, err
	}
	a, err := decimal.NewFromString(amount)
	if err != nil {
		return Level{}, err
	}
	return Level{Price: p, Amount: a}, nil
}
