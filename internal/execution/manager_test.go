package execution

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/koshedu/marketcore/internal/indexer"
	"github.com/koshedu/marketcore/internal/instrument"
	"github.com/koshedu/marketcore/internal/orderstore"
	"github.com/koshedu/marketcore/internal/streams/reconnect"
)

const testExchange = instrument.BinanceSpot

var testInstrumentName = instrument.InstrumentNameExchange("BTCUSDT")

func testIndexer(t *testing.T) *indexer.NameIndexer {
	t.Helper()
	idx, err := indexer.New(nil, []indexer.InstrumentEntry{
		{
			Exchange: testExchange,
			Name:     testInstrumentName,
			Index:    0,
			Instrument: instrument.Instrument{
				Base:  "BTC",
				Quote: "USDT",
				Kind:  instrument.Spot,
			},
		},
	})
	require.NoError(t, err)
	return idx
}

type fakeClient struct {
	mu sync.Mutex

	openDelay time.Duration
	openErr   error
	openView  orderstore.OpenView
	lastOpen  NativeOpenCommand

	cancelErr   error
	lastCancel  NativeCancelCommand

	snapshotErr error
	snapshot    AccountSnapshot

	accountStreamCalls int
	accountStreamErr   error
	events             chan NativeAccountEvent
}

func newFakeClient() *fakeClient {
	return &fakeClient{events: make(chan NativeAccountEvent, 8)}
}

func (f *fakeClient) Open(ctx context.Context, cmd NativeOpenCommand) (orderstore.OpenView, error) {
	if f.openDelay > 0 {
		select {
		case <-time.After(f.openDelay):
		case <-ctx.Done():
			return orderstore.OpenView{}, ctx.Err()
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastOpen = cmd
	if f.openErr != nil {
		return orderstore.OpenView{}, f.openErr
	}
	return f.openView, nil
}

func (f *fakeClient) Cancel(ctx context.Context, cmd NativeCancelCommand) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastCancel = cmd
	return f.cancelErr
}

func (f *fakeClient) AccountSnapshot(ctx context.Context) (AccountSnapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.snapshotErr != nil {
		return AccountSnapshot{}, f.snapshotErr
	}
	return f.snapshot, nil
}

func (f *fakeClient) AccountStream(ctx context.Context) (<-chan NativeAccountEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.accountStreamCalls++
	if f.accountStreamErr != nil {
		return nil, f.accountStreamErr
	}
	return f.events, nil
}

func testKey(cid string) orderstore.Key {
	return orderstore.Key{
		Exchange:   testExchange,
		Instrument: 0,
		Strategy:   "strat",
		Cid:        orderstore.ClientOrderId(cid),
	}
}

func TestManagerDispatchOpenSuccessInsertsOpenOrder(t *testing.T) {
	client := newFakeClient()
	client.openView = orderstore.OpenView{ExchangeOrderId: "ex-1", TimeExchange: time.Now()}
	store := orderstore.New(zerolog.Nop())
	m := New(client, store, testIndexer(t), testExchange, 200*time.Millisecond, reconnect.DefaultPolicy(), zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	requests := make(chan Request, 1)
	key := testKey("cid-1")
	requests <- Request{Kind: RequestOpen, Open: &OpenCommand{Key: key}}

	done := make(chan struct{})
	go func() {
		m.Run(ctx, requests)
		close(done)
	}()

	require.Eventually(t, func() bool {
		order, ok := store.Get(key.Cid)
		return ok && order.Status == orderstore.StatusOpen
	}, time.Second, 5*time.Millisecond)

	client.mu.Lock()
	assert.Equal(t, testInstrumentName, client.lastOpen.InstrumentName, "the manager must resolve the outgoing instrument index to its native name")
	client.mu.Unlock()

	close(requests)
	cancel()
	<-done
}

// TestManagerDispatchOpenTimeoutSurfacesTimeoutOutcome exercises spec §8's
// "a request whose deadline elapses surfaces exactly one AccountEvent with
// Err(Timeout)" boundary behavior via the OpenInFlight removal path: a
// timed-out open request is presumed lost and the order is dropped from the
// store (spec §4.4 failure semantics).
func TestManagerDispatchOpenTimeoutSurfacesTimeoutOutcome(t *testing.T) {
	client := newFakeClient()
	client.openDelay = time.Hour // never resolves before the deadline
	store := orderstore.New(zerolog.Nop())
	key := testKey("cid-timeout")
	store.RecordInFlightOpen(orderstore.Order{Key: key})

	m := New(client, store, testIndexer(t), testExchange, 20*time.Millisecond, reconnect.DefaultPolicy(), zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	requests := make(chan Request, 1)
	requests <- Request{Kind: RequestOpen, Open: &OpenCommand{Key: key}}

	done := make(chan struct{})
	go func() {
		m.Run(ctx, requests)
		close(done)
	}()

	require.Eventually(t, func() bool {
		_, ok := store.Get(key.Cid)
		return !ok
	}, time.Second, 5*time.Millisecond, "an in-flight open that times out must be removed, not left dangling")

	close(requests)
	cancel()
	<-done
}

func TestManagerDispatchCancelSuccessRemovesOrder(t *testing.T) {
	client := newFakeClient()
	store := orderstore.New(zerolog.Nop())
	key := testKey("cid-cancel")
	store.RecordInFlightOpen(orderstore.Order{Key: key})
	store.ApplySnapshotOpen(key, orderstore.OpenView{ExchangeOrderId: "ex-1", TimeExchange: time.Now()})
	store.RecordInFlightCancel(key.Cid, "ex-1")

	m := New(client, store, testIndexer(t), testExchange, 200*time.Millisecond, reconnect.DefaultPolicy(), zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	requests := make(chan Request, 1)
	requests <- Request{Kind: RequestCancel, Cancel: &CancelCommand{Key: key, ExchangeOrderId: "ex-1"}}

	done := make(chan struct{})
	go func() {
		m.Run(ctx, requests)
		close(done)
	}()

	require.Eventually(t, func() bool {
		_, ok := store.Get(key.Cid)
		return !ok
	}, time.Second, 5*time.Millisecond)

	client.mu.Lock()
	assert.Equal(t, testInstrumentName, client.lastCancel.InstrumentName)
	client.mu.Unlock()

	close(requests)
	cancel()
	<-done
}

// TestManagerDispatchOpenUnconfiguredInstrumentTerminatesManager exercises
// spec §4.7's "a non-configured key in an outgoing request from the engine
// ... terminates the manager" (programmer/config error, not a data fact):
// an OpenCommand naming an instrument index the indexer has no entry for
// must stop the manager's Run loop entirely rather than being logged and
// dropped like an unindexable incoming account event.
func TestManagerDispatchOpenUnconfiguredInstrumentTerminatesManager(t *testing.T) {
	client := newFakeClient()
	store := orderstore.New(zerolog.Nop())
	m := New(client, store, testIndexer(t), testExchange, 200*time.Millisecond, reconnect.DefaultPolicy(), zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	requests := make(chan Request, 1)
	key := testKey("cid-unconfigured")
	key.Instrument = 99 // not present in testIndexer
	requests <- Request{Kind: RequestOpen, Open: &OpenCommand{Key: key}}

	done := make(chan struct{})
	go func() {
		m.Run(ctx, requests)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("manager must terminate its Run loop on a non-configured outgoing instrument index")
	}
}

func TestManagerAccountStreamSeedsFromSnapshotThenAppliesEvents(t *testing.T) {
	client := newFakeClient()
	key := testKey("cid-snapshot")
	client.snapshot = AccountSnapshot{
		Balances: []Balance{{Asset: "USDT"}},
		OpenOrders: []SnapshotOrder{
			{Cid: key.Cid, InstrumentName: testInstrumentName, Open: orderstore.OpenView{ExchangeOrderId: "ex-snap", TimeExchange: time.Now()}},
		},
	}
	store := orderstore.New(zerolog.Nop())
	m := New(client, store, testIndexer(t), testExchange, 200*time.Millisecond, reconnect.DefaultPolicy(), zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	requests := make(chan Request)
	done := make(chan struct{})
	go func() {
		m.Run(ctx, requests)
		close(done)
	}()

	require.Eventually(t, func() bool {
		order, ok := store.Get(key.Cid)
		return ok && order.Status == orderstore.StatusOpen && order.ExchangeOrderId == "ex-snap"
	}, time.Second, 5*time.Millisecond, "the account stream must seed the store from the initial AccountSnapshot")

	client.events <- NativeAccountEvent{Kind: AccountSnapshotTerminal, Cid: key.Cid, InstrumentName: testInstrumentName, Terminal: orderstore.TerminalFullyFilled}

	require.Eventually(t, func() bool {
		_, ok := store.Get(key.Cid)
		return !ok
	}, time.Second, 5*time.Millisecond)

	close(requests)
	cancel()
	<-done
}

// TestManagerAccountEventUnknownInstrumentNameIsDropped exercises spec
// §4.6's "Response-indexing failures ... are logged and dropped; they must
// not crash the loop": an incoming event naming an instrument the indexer
// has no entry for must be silently ignored rather than terminating the
// manager (unlike the symmetric outgoing-request case).
func TestManagerAccountEventUnknownInstrumentNameIsDropped(t *testing.T) {
	client := newFakeClient()
	store := orderstore.New(zerolog.Nop())
	m := New(client, store, testIndexer(t), testExchange, 200*time.Millisecond, reconnect.DefaultPolicy(), zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	requests := make(chan Request)
	done := make(chan struct{})
	go func() {
		m.Run(ctx, requests)
		close(done)
	}()

	client.events <- NativeAccountEvent{
		Kind:           AccountSnapshotOpen,
		Cid:            orderstore.ClientOrderId("cid-unknown"),
		InstrumentName: "NOSUCHPAIR",
		Open:           orderstore.OpenView{ExchangeOrderId: "ex-unknown", TimeExchange: time.Now()},
	}

	select {
	case <-done:
		t.Fatal("manager must not terminate on an unknown incoming instrument name")
	case <-time.After(50 * time.Millisecond):
	}

	_, ok := store.Get(orderstore.ClientOrderId("cid-unknown"))
	assert.False(t, ok, "an event for an unconfigured instrument name must be dropped, not applied")

	close(requests)
	cancel()
	<-done
}

func TestManagerShutdownRequestStopsRunLoop(t *testing.T) {
	client := newFakeClient()
	store := orderstore.New(zerolog.Nop())
	m := New(client, store, testIndexer(t), testExchange, 200*time.Millisecond, reconnect.DefaultPolicy(), zerolog.Nop())

	ctx := context.Background()
	requests := make(chan Request, 1)
	requests <- Request{Kind: RequestShutdown}

	done := make(chan struct{})
	go func() {
		m.Run(ctx, requests)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("an explicit Shutdown request must stop the manager's Run loop")
	}
}

func TestManagerAccountStreamReconnectsAfterConnectError(t *testing.T) {
	client := newFakeClient()
	client.accountStreamErr = errors.New("connection refused")
	store := orderstore.New(zerolog.Nop())
	policy := reconnect.Policy{Base: time.Millisecond, Factor: 1, Max: 2 * time.Millisecond}
	m := New(client, store, testIndexer(t), testExchange, 200*time.Millisecond, policy, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	requests := make(chan Request)
	done := make(chan struct{})
	go func() {
		m.Run(ctx, requests)
		close(done)
	}()

	require.Eventually(t, func() bool {
		client.mu.Lock()
		defer client.mu.Unlock()
		return client.accountStreamCalls >= 2
	}, time.Second, time.Millisecond, "manager must keep retrying the account stream after a connect failure")

	close(requests)
	cancel()
	<-done
}

func TestFakeClientSatisfiesExecutionClient(t *testing.T) {
	var _ ExecutionClient = (*fakeClient)(nil)
	assert.NotNil(t, newFakeClient())
}
