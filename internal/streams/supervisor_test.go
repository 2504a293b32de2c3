package streams

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/koshedu/marketcore/internal/instrument"
	"github.com/koshedu/marketcore/internal/streams/reconnect"
)

// fakeAdapter serves exactly the (exchange, kind) pairs named in supported;
// Open hands back a channel the test can feed synthetic results into.
type fakeAdapter struct {
	supported map[instrument.SubKind]bool
	opened    chan []instrument.Subscription
	results   chan Result
}

func newFakeAdapter(kinds ...instrument.SubKind) *fakeAdapter {
	supported := make(map[instrument.SubKind]bool, len(kinds))
	for _, k := range kinds {
		supported[k] = true
	}
	return &fakeAdapter{
		supported: supported,
		opened:    make(chan []instrument.Subscription, 8),
		results:   make(chan Result, 64),
	}
}

func (a *fakeAdapter) Validate(sub instrument.Subscription) error {
	if !a.supported[sub.Kind] {
		return assert.AnError
	}
	return nil
}

func (a *fakeAdapter) Open(ctx context.Context, subs []instrument.Subscription) (<-chan Result, error) {
	a.opened <- subs
	return a.results, nil
}

func testInstrument(base string) instrument.Instrument {
	return instrument.Instrument{Base: base, Quote: "USDT", Kind: instrument.Spot}
}

// TestSupervisorDedupesAcrossBatches reproduces spec §8 scenario 6: batches
// [[A,Trades,X],[A,Trades,X],[A,Trades,Y]] must collapse onto exactly one
// fan-in channel for (A, Trades) carrying both X and Y, with exactly one
// upstream Open call (one subscription set per unique instrument).
func TestSupervisorDedupesAcrossBatches(t *testing.T) {
	adapter := newFakeAdapter(instrument.PublicTrades)
	sup := NewSupervisor(Adapters{instrument.BinanceSpot: adapter}, reconnect.DefaultPolicy(), zerolog.Nop())

	x := instrument.Subscription{Exchange: instrument.BinanceSpot, Kind: instrument.PublicTrades, Instrument: testInstrument("BTC")}
	y := instrument.Subscription{Exchange: instrument.BinanceSpot, Kind: instrument.PublicTrades, Instrument: testInstrument("ETH")}

	batches := [][]instrument.Subscription{
		{x},
		{x},
		{y},
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	channels, err := sup.Init(ctx, batches)
	require.NoError(t, err)
	require.Len(t, channels, 1, "exactly one fan-in channel for the (exchange, kind) class")

	var opened []instrument.Subscription
	select {
	case opened = <-adapter.opened:
	case <-time.After(time.Second):
		t.Fatal("adapter.Open was never called")
	}
	assert.Len(t, opened, 2, "the deduplicated subscription set must carry both distinct instruments")

	select {
	case more := <-adapter.opened:
		t.Fatalf("expected exactly one Open call, got a second with %v", more)
	case <-time.After(50 * time.Millisecond):
	}

	ch := channels[instrument.Class{Exchange: instrument.BinanceSpot, Kind: instrument.PublicTrades}]
	adapter.results <- Ok(MarketEvent{Exchange: instrument.BinanceSpot})

	select {
	case item := <-ch:
		assert.Equal(t, ItemPayload, item.Kind)
	case <-time.After(time.Second):
		t.Fatal("expected the forwarded result on the merged channel")
	}
}

func TestSupervisorFailsInitOnUnsupportedSubKind(t *testing.T) {
	adapter := newFakeAdapter(instrument.PublicTrades)
	sup := NewSupervisor(Adapters{instrument.BinanceSpot: adapter}, reconnect.DefaultPolicy(), zerolog.Nop())

	bad := instrument.Subscription{Exchange: instrument.BinanceSpot, Kind: instrument.Liquidations, Instrument: testInstrument("BTC")}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	_, err := sup.Init(ctx, [][]instrument.Subscription{{bad}})
	require.Error(t, err)

	select {
	case <-adapter.opened:
		t.Fatal("Open must not be called when validation fails")
	case <-time.After(20 * time.Millisecond):
	}
}

func TestSupervisorFailsInitOnUnknownExchange(t *testing.T) {
	sup := NewSupervisor(Adapters{}, reconnect.DefaultPolicy(), zerolog.Nop())

	sub := instrument.Subscription{Exchange: instrument.Bitmex, Kind: instrument.PublicTrades, Instrument: testInstrument("BTC")}

	_, err := sup.Init(context.Background(), [][]instrument.Subscription{{sub}})
	require.Error(t, err)
}
