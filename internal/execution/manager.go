package execution

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/koshedu/marketcore/internal/indexer"
	"github.com/koshedu/marketcore/internal/instrument"
	"github.com/koshedu/marketcore/internal/orderstore"
	"github.com/koshedu/marketcore/internal/streams/reconnect"
)

// Manager is the per-exchange ExecutionManager actor (spec §4.6): it owns
// one ExecutionClient exclusively, dispatches Requests with a bounded
// per-request timeout, applies responses to an OrderStore, and separately
// supervises the authenticated account stream — seeded by a fresh
// AccountSnapshot on every connect — with its own reconnect policy, feeding
// AccountEvents into the same store. Every outgoing request and incoming
// account event is translated between this exchange's native names and the
// engine's dense indices via a NameIndexer (spec §4.7).
type Manager struct {
	client         ExecutionClient
	store          *orderstore.Store
	indexer        *indexer.NameIndexer
	exchange       instrument.ExchangeId
	requestTimeout time.Duration
	policy         reconnect.Policy
	logger         zerolog.Logger
}

// New builds a Manager for one exchange's ExecutionClient.
func New(client ExecutionClient, store *orderstore.Store, idx *indexer.NameIndexer, exchange instrument.ExchangeId, requestTimeout time.Duration, policy reconnect.Policy, logger zerolog.Logger) *Manager {
	if requestTimeout <= 0 {
		requestTimeout = DefaultRequestTimeout
	}
	return &Manager{
		client:         client,
		store:          store,
		indexer:        idx,
		exchange:       exchange,
		requestTimeout: requestTimeout,
		policy:         policy,
		logger:         logger.With().Str("component", "execution_manager").Str("exchange", exchange.String()).Logger(),
	}
}

// Run drains requests until ctx is cancelled, requests closes, or an
// explicit Request{Kind: RequestShutdown} arrives, and concurrently
// supervises the account stream. It returns once both have stopped. The
// request loop waits for every in-flight request to apply its outcome before
// it returns; a Shutdown request or a cancelled ctx cancels the contexts
// those requests run under, so they end early with a context error (spec
// §4.7: a non-configured key on an engine-originated request terminates the
// manager).
func (m *Manager) Run(ctx context.Context, requests <-chan Request) {
	innerCtx, terminate := context.WithCancel(ctx)
	defer terminate()

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		m.runRequests(innerCtx, terminate, requests)
	}()
	go func() {
		defer wg.Done()
		m.runAccountStream(innerCtx)
	}()

	wg.Wait()
}

func (m *Manager) runRequests(ctx context.Context, terminate context.CancelFunc, requests <-chan Request) {
	var inflightWg sync.WaitGroup
	defer inflightWg.Wait()

	for {
		select {
		case <-ctx.Done():
			return
		case req, ok := <-requests:
			if !ok {
				return
			}
			if req.Kind == RequestShutdown {
				m.logger.Info().Msg("shutdown request received, draining in-flight requests")
				terminate()
				return
			}
			inflightWg.Add(1)
			go func() {
				defer inflightWg.Done()
				m.dispatch(ctx, terminate, req)
			}()
		}
	}
}

func (m *Manager) dispatch(ctx context.Context, terminate context.CancelFunc, req Request) {
	switch req.Kind {
	case RequestOpen:
		m.dispatchOpen(ctx, terminate, req.Open)
	case RequestCancel:
		m.dispatchCancel(ctx, terminate, req.Cancel)
	}
}

// indexOutgoingInstrument resolves an engine-indexed instrument to this
// exchange's native name. A non-configured key on an engine-originated
// request is an operator/config error, not a transient fact about an order
// (spec §4.7 "a non-configured key indicates operator error and terminates
// the manager"), so it terminates the manager's whole run rather than being
// logged and dropped like an incoming indexing failure.
func (m *Manager) indexOutgoingInstrument(cid orderstore.ClientOrderId, idx instrument.InstrumentIndex, terminate context.CancelFunc) (instrument.InstrumentNameExchange, bool) {
	name, err := m.indexer.InstrumentNameOf(m.exchange, idx)
	if err != nil {
		m.logger.Error().Err(err).Str("cid", string(cid)).Msg("outgoing request references a non-configured instrument index, terminating manager")
		terminate()
		return "", false
	}
	return name, true
}

func (m *Manager) dispatchOpen(ctx context.Context, terminate context.CancelFunc, cmd *OpenCommand) {
	name, ok := m.indexOutgoingInstrument(cmd.Key.Cid, cmd.Key.Instrument, terminate)
	if !ok {
		return
	}

	native := NativeOpenCommand{
		Cid:            cmd.Key.Cid,
		InstrumentName: name,
		Side:           cmd.Side,
		OrderKind:      cmd.OrderKind,
		TimeInForce:    cmd.TimeInForce,
		Price:          cmd.Price,
		Quantity:       cmd.Quantity,
	}

	reqCtx, cancel := context.WithTimeout(ctx, m.requestTimeout)
	defer cancel()

	view, err := m.client.Open(reqCtx, native)
	if err != nil {
		m.logger.Error().Err(err).Str("cid", string(cmd.Key.Cid)).Msg("open request failed")
	}
	m.store.ApplyOpenResponse(cmd.Key, view, err)
}

func (m *Manager) dispatchCancel(ctx context.Context, terminate context.CancelFunc, cmd *CancelCommand) {
	name, ok := m.indexOutgoingInstrument(cmd.Key.Cid, cmd.Key.Instrument, terminate)
	if !ok {
		return
	}

	native := NativeCancelCommand{
		Cid:             cmd.Key.Cid,
		InstrumentName:  name,
		ExchangeOrderId: cmd.ExchangeOrderId,
	}

	reqCtx, cancel := context.WithTimeout(ctx, m.requestTimeout)
	defer cancel()

	err := m.client.Cancel(reqCtx, native)
	if err != nil {
		m.logger.Error().Err(err).Str("cid", string(cmd.Key.Cid)).Msg("cancel request failed")
	}
	m.store.ApplyCancelResponse(cmd.Key, err)
}

// runAccountStream owns the reconnect/backoff loop for the authenticated
// account stream. Every (re)connect first pulls a fresh AccountSnapshot and
// seeds the store from it, then drains incremental NativeAccountEvents,
// matching spec §4.6's "account_stream starts with a full AccountSnapshot
// ... A reconnection restarts the stream with a fresh snapshot".
func (m *Manager) runAccountStream(ctx context.Context) {
	attempt := 0
	for {
		if ctx.Err() != nil {
			return
		}

		snapshot, events, err := m.connectAccountStream(ctx)
		if err != nil {
			if m.policy.Exhausted(attempt) {
				m.logger.Error().Int("attempt", attempt).Msg("account stream reconnect attempts exhausted, giving up")
				return
			}
			delay := m.policy.Delay(attempt)
			m.logger.Warn().Err(err).Dur("delay", delay).Msg("account stream connect failed, retrying")
			attempt++
			select {
			case <-ctx.Done():
				return
			case <-time.After(delay):
			}
			continue
		}
		attempt = 0

		m.applySnapshot(snapshot)

		if !m.drainAccountEvents(ctx, events) {
			return
		}
		attempt = 1
	}
}

// connectAccountStream fetches a fresh AccountSnapshot and opens the
// incremental event stream. Either call failing is treated as one
// connectivity failure for backoff purposes (spec §5 reconnect policy
// applies symmetrically to both sides).
func (m *Manager) connectAccountStream(ctx context.Context) (AccountSnapshot, <-chan NativeAccountEvent, error) {
	snapshot, err := m.client.AccountSnapshot(ctx)
	if err != nil {
		return AccountSnapshot{}, nil, err
	}
	events, err := m.client.AccountStream(ctx)
	if err != nil {
		return AccountSnapshot{}, nil, err
	}
	return snapshot, events, nil
}

func (m *Manager) applySnapshot(snapshot AccountSnapshot) {
	if len(snapshot.Balances) > 0 {
		m.logger.Info().Int("balances", len(snapshot.Balances)).Msg("account snapshot balances received")
	}
	for _, o := range snapshot.OpenOrders {
		m.applyAccountEvent(NativeAccountEvent{
			Kind:           AccountSnapshotOpen,
			Cid:            o.Cid,
			InstrumentName: o.InstrumentName,
			Open:           o.Open,
		})
	}
}

func (m *Manager) drainAccountEvents(ctx context.Context, events <-chan NativeAccountEvent) bool {
	for {
		select {
		case <-ctx.Done():
			return false
		case evt, ok := <-events:
			if !ok {
				return true
			}
			m.applyAccountEvent(evt)
		}
	}
}

// applyAccountEvent resolves evt's exchange-native instrument name to its
// dense index and applies it to the OrderStore. An unknown name is an
// exchange-originated data fact, not an operator error, so it is logged and
// dropped rather than terminating the manager (spec §4.6 "Response-indexing
// failures ... are logged and dropped ... must not crash the loop").
func (m *Manager) applyAccountEvent(evt NativeAccountEvent) {
	idx, err := m.indexer.InstrumentIndexOf(m.exchange, evt.InstrumentName)
	if err != nil {
		m.logger.Warn().Err(err).Str("instrument_name", string(evt.InstrumentName)).Msg("account event references an unknown instrument name, dropping")
		return
	}

	key := orderstore.Key{Exchange: m.exchange, Instrument: idx, Cid: evt.Cid}
	switch evt.Kind {
	case AccountSnapshotOpen:
		m.store.ApplySnapshotOpen(key, evt.Open)
	case AccountSnapshotTerminal:
		m.store.ApplySnapshotTerminal(key, evt.Terminal)
	}
}
