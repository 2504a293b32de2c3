package orderstore

import (
	"sync"

	"github.com/rs/zerolog"
)

// Store is a per-instrument key-value store mapping ClientOrderId -> Order
// over the FSM {OpenInFlight, Open, CancelInFlight} plus terminal removal
// (spec §4.4). A Store is owned by one InstrumentState; it is safe for
// concurrent use so the owning engine task and any read-only observers can
// share it.
type Store struct {
	mu      sync.RWMutex
	orders  map[ClientOrderId]*Order
	logger  zerolog.Logger
}

// New creates an empty Store.
func New(logger zerolog.Logger) *Store {
	return &Store{
		orders: make(map[ClientOrderId]*Order),
		logger: logger.With().Str("component", "order_store").Logger(),
	}
}

// Len reports the number of tracked (non-terminal) orders.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.orders)
}

// Open returns a snapshot of every order currently in StatusOpen.
func (s *Store) Open() []Order {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Order, 0, len(s.orders))
	for _, o := range s.orders {
		if o.Status == StatusOpen {
			out = append(out, *o)
		}
	}
	return out
}

// Get returns a copy of the tracked order for cid, if any.
func (s *Store) Get(cid ClientOrderId) (Order, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	o, ok := s.orders[cid]
	if !ok {
		return Order{}, false
	}
	return *o, true
}

// RecordInFlightOpen registers an engine-originated open request before the
// exchange has responded. A duplicate insert for an already-tracked cid
// upserts and emits a visible warning, per spec §4.4 ("Duplicate in-flight
// inserts upsert but must emit a visible warning").
func (s *Store) RecordInFlightOpen(order Order) {
	s.mu.Lock()
	defer s.mu.Unlock()

	order.Status = StatusOpenInFlight
	if existing, ok := s.orders[order.Key.Cid]; ok {
		s.logger.Warn().
			Str("cid", string(order.Key.Cid)).
			Str("existing_status", existing.Status.String()).
			Msg("duplicate in-flight open insert, upserting")
	}
	stored := order
	s.orders[order.Key.Cid] = &stored
}

// RecordInFlightCancel marks a tracked order as CancelInFlight. If the cid
// is not tracked this is a no-op (there is nothing to cancel); a duplicate
// cancel marker on an already-CancelInFlight order logs a warning but keeps
// waiting for the first response.
func (s *Store) RecordInFlightCancel(cid ClientOrderId, cancelExchangeOrderId string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	order, ok := s.orders[cid]
	if !ok {
		s.logger.Warn().Str("cid", string(cid)).Msg("record_in_flight_cancel for untracked order")
		return
	}
	if order.Status == StatusCancelInFlight {
		s.logger.Warn().Str("cid", string(cid)).Msg("duplicate cancel in-flight marker")
	}
	order.Status = StatusCancelInFlight
	order.CancelExchangeOrderId = cancelExchangeOrderId
}

// ApplySnapshotOpen applies an exchange account-snapshot view showing the
// order as Open. Tie-break: a view with TimeExchange greater than the
// stored value wins; equal or lesser timestamps are a no-op (I5).
func (s *Store) ApplySnapshotOpen(key Key, view OpenView) {
	s.mu.Lock()
	defer s.mu.Unlock()

	order, tracked := s.orders[key.Cid]
	if !tracked {
		s.insertOpen(key, view)
		return
	}

	switch order.Status {
	case StatusOpenInFlight:
		s.setOpen(order, view)
	case StatusOpen:
		if view.TimeExchange.After(order.TimeExchange) {
			s.setOpen(order, view)
		}
		// equal or stale: no-op, preserves stored state (I5).
	case StatusCancelInFlight:
		// waiting on the cancel response either way; no-op regardless of
		// freshness.
	}
}

// ApplySnapshotTerminal applies an exchange account-snapshot or response
// indicating the order reached a terminal exchange state (Cancelled,
// Expired, Rejected, FullyFilled); the entry is removed (I2).
func (s *Store) ApplySnapshotTerminal(key Key, kind TerminalKind) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, tracked := s.orders[key.Cid]; !tracked {
		s.logger.Warn().Str("cid", string(key.Cid)).Msg("terminal snapshot for untracked order")
		return
	}
	delete(s.orders, key.Cid)
}

// ApplyOpenResponse applies the outcome of an open request. err == nil means
// the exchange accepted the order (Ok); a non-nil err distinguishes
// "already-done" acknowledgements (IsAlreadyDone) from other connectivity/
// API failures (spec §4.4 failure semantics).
func (s *Store) ApplyOpenResponse(key Key, view OpenView, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	order, tracked := s.orders[key.Cid]

	switch {
	case err == nil:
		if !tracked {
			s.insertOpen(key, view)
			return
		}
		switch order.Status {
		case StatusOpenInFlight:
			if view.FilledQuantity.Equal(view.Quantity) && view.Quantity.IsPositive() {
				delete(s.orders, key.Cid)
				return
			}
			s.setOpen(order, view)
		case StatusOpen:
			// latest wins unconditionally for a direct response (unlike the
			// snapshot tie-break, which compares freshness).
			s.setOpen(order, view)
		case StatusCancelInFlight:
			s.logger.Warn().Str("cid", string(key.Cid)).Msg("unexpected open-ok response while cancel in-flight")
		}

	case IsAlreadyDone(err):
		if tracked {
			delete(s.orders, key.Cid)
		}

	default:
		// other connectivity/API error
		if !tracked {
			return
		}
		switch order.Status {
		case StatusOpenInFlight, StatusCancelInFlight:
			delete(s.orders, key.Cid)
		case StatusOpen:
			s.logger.Error().Err(err).Str("cid", string(key.Cid)).Msg("open response error while order open, preserving state")
		}
	}
}

// ApplyCancelResponse applies the outcome of a cancel request, with the
// same error-kind split as ApplyOpenResponse.
func (s *Store) ApplyCancelResponse(key Key, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	order, tracked := s.orders[key.Cid]
	if !tracked {
		if err == nil {
			s.logger.Warn().Str("cid", string(key.Cid)).Msg("cancel-ok response for untracked order")
		}
		return
	}

	switch {
	case err == nil:
		if order.Status == StatusOpen {
			s.logger.Warn().Str("cid", string(key.Cid)).Msg("unexpected cancel-ok response while order open")
		}
		delete(s.orders, key.Cid)

	case IsAlreadyDone(err):
		delete(s.orders, key.Cid)

	default:
		switch order.Status {
		case StatusOpenInFlight, StatusCancelInFlight:
			delete(s.orders, key.Cid)
		case StatusOpen:
			s.logger.Error().Err(err).Str("cid", string(key.Cid)).Msg("cancel response error while order open, preserving state")
		}
	}
}

func (s *Store) insertOpen(key Key, view OpenView) {
	s.orders[key.Cid] = &Order{
		Key:             key,
		Status:          StatusOpen,
		ExchangeOrderId: view.ExchangeOrderId,
		TimeExchange:    view.TimeExchange,
		OpenPrice:       view.Price,
		OpenQuantity:    view.Quantity,
		FilledQuantity:  view.FilledQuantity,
	}
}

func (s *Store) setOpen(order *Order, view OpenView) {
	order.Status = StatusOpen
	order.ExchangeOrderId = view.ExchangeOrderId
	order.TimeExchange = view.TimeExchange
	order.OpenPrice = view.Price
	order.OpenQuantity = view.Quantity
	order.FilledQuantity = view.FilledQuantity
}
