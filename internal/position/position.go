// Package position implements the exact-decimal position accounting engine
// (spec §4.5): at most one open position per instrument, updated by trades,
// emitting an ExitedPosition on close or flip.
package position

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/koshedu/marketcore/internal/instrument"
	"github.com/koshedu/marketcore/internal/orderstore"
)

// Fees records the asset and amount paid for a trade.
type Fees struct {
	Asset  string
	Amount decimal.Decimal
}

// Trade is a single execution that the PositionManager applies.
type Trade struct {
	ID           string
	OrderID      string
	Instrument   instrument.Instrument
	Strategy     string
	TimeExchange time.Time
	Side         orderstore.Side
	Price        decimal.Decimal
	// Quantity is the absolute (unsigned) traded size; direction is Side.
	Quantity decimal.Decimal
	Fees     Fees
}

// Position is the live, mutable accounting state for one instrument.
type Position struct {
	Instrument    instrument.Instrument
	Side          orderstore.Side // entry/current direction
	PriceEntryAvg decimal.Decimal
	Quantity      decimal.Decimal // current absolute quantity, > 0 while live (I1)
	QuantityMax   decimal.Decimal
	UnrealisedPnL decimal.Decimal
	RealisedPnL   decimal.Decimal
	FeesEnter     decimal.Decimal
	FeesExit      decimal.Decimal
	EnterTime     time.Time
	UpdateTime    time.Time
	TradeIDs      []string
}

// Return computes realised / (price_entry_avg * quantity_max); zero when the
// denominator is zero.
func (p Position) Return() decimal.Decimal {
	denom := p.PriceEntryAvg.Mul(p.QuantityMax)
	if denom.IsZero() {
		return decimal.Zero
	}
	return p.RealisedPnL.Div(denom)
}

// ExitedPosition is an immutable snapshot of a Position at the moment it
// closed, with the trade time that caused the close.
type ExitedPosition struct {
	Position
	ExitTime time.Time
}

func oppositeSide(s orderstore.Side) orderstore.Side {
	if s == orderstore.Buy {
		return orderstore.Sell
	}
	return orderstore.Buy
}

// pnlRealised implements the canonical realised P&L formula (spec §4.5).
func pnlRealised(side orderstore.Side, priceEntry, qty, priceExit, fee decimal.Decimal) decimal.Decimal {
	if side == orderstore.Buy {
		return qty.Mul(priceExit).Sub(qty.Mul(priceEntry)).Sub(fee)
	}
	return qty.Mul(priceEntry).Sub(qty.Mul(priceExit)).Sub(fee)
}

// pnlUnrealised implements the canonical unrealised P&L formula (spec §4.5).
func pnlUnrealised(side orderstore.Side, priceEntry, qty, qtyMax, feesEnter, price decimal.Decimal) decimal.Decimal {
	diff := price.Sub(priceEntry)
	if side == orderstore.Sell {
		diff = diff.Neg()
	}
	gross := diff.Mul(qty)
	var feeShare decimal.Decimal
	if qtyMax.IsPositive() {
		feeShare = qty.Div(qtyMax).Mul(feesEnter)
	}
	return gross.Sub(feeShare)
}

func (p *Position) recomputeUnrealised(price decimal.Decimal) {
	p.UnrealisedPnL = pnlUnrealised(p.Side, p.PriceEntryAvg, p.Quantity, p.QuantityMax, p.FeesEnter, price)
}

func newPositionFromEntry(t Trade) Position {
	return Position{
		Instrument:    t.Instrument,
		Side:          t.Side,
		PriceEntryAvg: t.Price,
		Quantity:      t.Quantity,
		QuantityMax:   t.Quantity,
		RealisedPnL:   t.Fees.Amount.Neg(),
		FeesEnter:     t.Fees.Amount,
		EnterTime:     t.TimeExchange,
		UpdateTime:    t.TimeExchange,
		TradeIDs:      []string{t.ID},
	}
}
