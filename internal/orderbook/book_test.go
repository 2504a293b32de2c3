package orderbook

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func lvl(price, amount string) Level {
	p, _ := decimal.NewFromString(price)
	a, _ := decimal.NewFromString(amount)
	return Level{Price: p, Amount: a}
}

func TestApplySnapshotDropsZeroAmountLevels(t *testing.T) {
	b := New()
	b.ApplySnapshot(
		[]Level{lvl("100", "1"), lvl("99", "0")},
		[]Level{lvl("101", "2")},
		time.Now(),
	)

	bids := b.Bids()
	require.Len(t, bids, 1)
	assert.True(t, bids[0].Price.Equal(decimal.RequireFromString("100")))
}

func TestApplyUpdateUpsertsAndDeletes(t *testing.T) {
	b := New()
	ts := time.Now()
	b.ApplySnapshot([]Level{lvl("100", "1")}, []Level{lvl("101", "1")}, ts)

	b.ApplyUpdate([]Level{lvl("100", "0")}, nil, ts.Add(time.Second))

	bids := b.Bids()
	assert.Empty(t, bids, "zero-amount update should remove the level")
}

func TestApplyUpdateIgnoresNegativeAmount(t *testing.T) {
	b := New()
	ts := time.Now()
	b.ApplySnapshot([]Level{lvl("100", "1")}, nil, ts)

	negative := lvl("100", "-5")
	b.ApplyUpdate([]Level{negative}, nil, ts)

	bids := b.Bids()
	require.Len(t, bids, 1)
	assert.True(t, bids[0].Amount.Equal(decimal.RequireFromString("1")), "negative amount must never overwrite a valid level")
}

func TestBidsSortedNonIncreasingAsksNonDecreasing(t *testing.T) {
	b := New()
	ts := time.Now()
	b.ApplySnapshot(
		[]Level{lvl("99", "1"), lvl("101", "1"), lvl("100", "1")},
		[]Level{lvl("105", "1"), lvl("103", "1"), lvl("104", "1")},
		ts,
	)

	bids := b.Bids()
	require.Len(t, bids, 3)
	assert.True(t, bids[0].Price.GreaterThanOrEqual(bids[1].Price))
	assert.True(t, bids[1].Price.GreaterThanOrEqual(bids[2].Price))

	asks := b.Asks()
	require.Len(t, asks, 3)
	assert.True(t, asks[0].Price.LessThanOrEqual(asks[1].Price))
	assert.True(t, asks[1].Price.LessThanOrEqual(asks[2].Price))
}

func TestBestBidBestAsk(t *testing.T) {
	b := New()
	ts := time.Now()
	b.ApplySnapshot([]Level{lvl("99", "1"), lvl("101", "1")}, []Level{lvl("103", "1"), lvl("102", "1")}, ts)

	bid, ok := b.BestBid()
	require.True(t, ok)
	assert.True(t, bid.Price.Equal(decimal.RequireFromString("101")))

	ask, ok := b.BestAsk()
	require.True(t, ok)
	assert.True(t, ask.Price.Equal(decimal.RequireFromString("102")))
}

func TestBestBidEmptyBook(t *testing.T) {
	b := New()
	_, ok := b.BestBid()
	assert.False(t, ok)
}

func TestUpdateTimeNeverRegresses(t *testing.T) {
	b := New()
	later := time.Now()
	earlier := later.Add(-time.Minute)

	b.ApplySnapshot([]Level{lvl("100", "1")}, nil, later)
	b.ApplyUpdate([]Level{lvl("100", "2")}, nil, earlier)

	assert.Equal(t, later, b.UpdateTime(), "a stale update must not regress the book's timestamp")
}

func TestSequenceIncrementsOnEveryApply(t *testing.T) {
	b := New()
	ts := time.Now()
	b.ApplySnapshot(nil, nil, ts)
	b.ApplyUpdate(nil, nil, ts)
	b.ApplyUpdate(nil, nil, ts)
	assert.Equal(t, uint64(3), b.Sequence())
}

func TestParseLevel(t *testing.T) {
	l, err := ParseLevel("50000.5", "0.25")
	require.NoError(t, err)
	assert.True(t, l.Price.Equal(decimal.RequireFromString("50000.5")))
	assert.True(t, l.Amount.Equal(decimal.RequireFromString("0.25")))

	_, err = ParseLevel("not-a-number", "1")
	assert.Error(t, err)
}

func TestParseExchangeTimeClampsNanos(t *testing.T) {
	tm := ParseExchangeTime(1700000000, 2_000_000_000)
	assert.Equal(t, 999_999_999, tm.Nanosecond())

	tm2 := ParseExchangeTime(1700000000, -5)
	assert.Equal(t, 0, tm2.Nanosecond())
}
