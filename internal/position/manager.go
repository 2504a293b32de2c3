package position

import (
	"sync"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// Manager owns the current Position for a single instrument exclusively
// (spec §3 Ownership). Trades for any other instrument are logged and
// ignored, leaving the current Position unchanged.
type Manager struct {
	mu      sync.Mutex
	logger  zerolog.Logger
	current *Position
}

// New creates an empty Manager (no open position yet).
func New(logger zerolog.Logger) *Manager {
	return &Manager{
		logger: logger.With().Str("component", "position_manager").Logger(),
	}
}

// Current returns a copy of the current open position, if any.
func (m *Manager) Current() (Position, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current == nil {
		return Position{}, false
	}
	return *m.current, true
}

// ApplyTrade applies a single trade to the current position, per the
// algorithm in spec §4.5. It returns an ExitedPosition whenever the trade
// closes the current position outright or via a flip.
func (m *Manager) ApplyTrade(t Trade) (*ExitedPosition, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.current == nil {
		pos := newPositionFromEntry(t)
		m.current = &pos
		return nil, nil
	}

	if t.Instrument != m.current.Instrument {
		m.logger.Error().
			Str("trade_instrument", t.Instrument.String()).
			Str("position_instrument", m.current.Instrument.String()).
			Msg("trade instrument does not match current position, ignoring")
		return nil, nil
	}

	if t.Side == m.current.Side {
		m.applyIncrease(t)
		return nil, nil
	}

	return m.applyReduceOrFlip(t), nil
}

// applyIncrease handles a trade on the same side as the current position:
// volume-weighted average entry price recompute, quantity/qty_max growth,
// realised P&L debited by fees (spec §4.5 "increase").
func (m *Manager) applyIncrease(t Trade) {
	p := m.current

	totalQty := p.Quantity.Add(t.Quantity)
	if totalQty.IsZero() {
		p.PriceEntryAvg = decimalZero()
	} else {
		weighted := p.PriceEntryAvg.Mul(p.Quantity).Add(t.Price.Mul(t.Quantity))
		p.PriceEntryAvg = weighted.Div(totalQty)
	}

	p.Quantity = totalQty
	if p.Quantity.GreaterThan(p.QuantityMax) {
		p.QuantityMax = p.Quantity
	}
	p.RealisedPnL = p.RealisedPnL.Sub(t.Fees.Amount)
	p.FeesEnter = p.FeesEnter.Add(t.Fees.Amount)
	p.UpdateTime = t.TimeExchange
	p.TradeIDs = append(p.TradeIDs, t.ID)
	p.recomputeUnrealised(t.Price)
}

// applyReduceOrFlip handles a trade on the opposite side: partial close,
// exact close, or flip (spec §4.5 "opposite side").
func (m *Manager) applyReduceOrFlip(t Trade) *ExitedPosition {
	p := m.current

	switch {
	case p.Quantity.GreaterThan(t.Quantity):
		// Partial close.
		delta := pnlRealised(p.Side, p.PriceEntryAvg, t.Quantity, t.Price, t.Fees.Amount)
		p.RealisedPnL = p.RealisedPnL.Add(delta)
		p.Quantity = p.Quantity.Sub(t.Quantity)
		p.FeesExit = p.FeesExit.Add(t.Fees.Amount)
		p.UpdateTime = t.TimeExchange
		p.TradeIDs = append(p.TradeIDs, t.ID)
		p.recomputeUnrealised(t.Price)
		return nil

	case p.Quantity.Equal(t.Quantity):
		// Exact close.
		delta := pnlRealised(p.Side, p.PriceEntryAvg, t.Quantity, t.Price, t.Fees.Amount)
		p.RealisedPnL = p.RealisedPnL.Add(delta)
		p.FeesExit = p.FeesExit.Add(t.Fees.Amount)
		p.Quantity = decimalZero()
		p.UpdateTime = t.TimeExchange
		p.TradeIDs = append(p.TradeIDs, t.ID)

		exited := ExitedPosition{Position: *p, ExitTime: t.TimeExchange}
		m.current = nil
		return &exited

	default:
		// Flip: close the existing position with the pro-rata closing
		// portion of the trade, then open a new position on the opposite
		// side with the remainder (spec §4.5 "flip").
		closingQty := p.Quantity
		remainder := t.Quantity.Sub(closingQty)

		closeFeeShare := t.Fees.Amount.Mul(closingQty).Div(t.Quantity)
		openFeeShare := t.Fees.Amount.Sub(closeFeeShare)

		delta := pnlRealised(p.Side, p.PriceEntryAvg, closingQty, t.Price, closeFeeShare)
		p.RealisedPnL = p.RealisedPnL.Add(delta)
		p.FeesExit = p.FeesExit.Add(closeFeeShare)
		p.Quantity = decimalZero()
		p.UpdateTime = t.TimeExchange
		p.TradeIDs = append(p.TradeIDs, t.ID)

		exited := ExitedPosition{Position: *p, ExitTime: t.TimeExchange}

		newSide := oppositeSide(p.Side)
		m.current = &Position{
			Instrument:    t.Instrument,
			Side:          newSide,
			PriceEntryAvg: t.Price,
			Quantity:      remainder,
			QuantityMax:   remainder,
			RealisedPnL:   openFeeShare.Neg(),
			FeesEnter:     openFeeShare,
			EnterTime:     t.TimeExchange,
			UpdateTime:    t.TimeExchange,
			TradeIDs:      []string{t.ID},
		}

		return &exited
	}
}

func decimalZero() decimal.Decimal { return decimal.Zero }
