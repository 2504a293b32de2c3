// Package mocktest provides an in-memory execution.ExecutionClient double for
// tests, grounded on the original engine's SimulatedExecution/SimulatedExchange
// test harness (original_source/barter-execution/tests/simulated_exchange.rs):
// Open and Cancel respond immediately against an in-memory order table, and a
// test can push synthetic NativeAccountEvents (fills, terminal states) through
// PushAccountEvent to exercise the ExecutionManager's account-stream path.
package mocktest

import (
	"context"
	"fmt"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/koshedu/marketcore/internal/execution"
	"github.com/koshedu/marketcore/internal/orderstore"
)

// Client is a deterministic, in-memory ExecutionClient double.
type Client struct {
	mu        sync.Mutex
	seq       int64
	open      map[orderstore.ClientOrderId]orderstore.OpenView
	cancelled map[orderstore.ClientOrderId]bool
	events    chan execution.NativeAccountEvent

	// OpenErr, when non-nil, is returned by every Open call instead of
	// succeeding — used to exercise ExecutionManager's failure handling.
	OpenErr error
	// CancelErr, when non-nil, is returned by every Cancel call.
	CancelErr error
	// SnapshotErr, when non-nil, is returned by every AccountSnapshot call.
	SnapshotErr error
	// Snapshot is returned by AccountSnapshot when SnapshotErr is nil.
	Snapshot execution.AccountSnapshot
}

// New builds a Client with no open orders.
func New() *Client {
	return &Client{
		open:      make(map[orderstore.ClientOrderId]orderstore.OpenView),
		cancelled: make(map[orderstore.ClientOrderId]bool),
		events:    make(chan execution.NativeAccountEvent, 64),
	}
}

// Open records the order as open and returns an OpenView mirroring the
// request, unless OpenErr is set.
func (c *Client) Open(ctx context.Context, cmd execution.NativeOpenCommand) (orderstore.OpenView, error) {
	if c.OpenErr != nil {
		return orderstore.OpenView{}, c.OpenErr
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.seq++
	price, _ := decimal.NewFromString(cmd.Price)
	qty, _ := decimal.NewFromString(cmd.Quantity)

	view := orderstore.OpenView{
		ExchangeOrderId: fmt.Sprintf("mock-%d", c.seq),
		Price:           price,
		Quantity:        qty,
	}
	c.open[cmd.Cid] = view
	return view, nil
}

// Cancel marks the order cancelled, unless CancelErr is set.
func (c *Client) Cancel(ctx context.Context, cmd execution.NativeCancelCommand) error {
	if c.CancelErr != nil {
		return c.CancelErr
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.cancelled[cmd.Cid] = true
	delete(c.open, cmd.Cid)
	return nil
}

// AccountSnapshot returns the fixture Snapshot, unless SnapshotErr is set.
func (c *Client) AccountSnapshot(ctx context.Context) (execution.AccountSnapshot, error) {
	if c.SnapshotErr != nil {
		return execution.AccountSnapshot{}, c.SnapshotErr
	}
	return c.Snapshot, nil
}

// AccountStream returns the channel PushAccountEvent writes to. It never
// fails in this double; use a context cancel to simulate a dropped stream.
func (c *Client) AccountStream(ctx context.Context) (<-chan execution.NativeAccountEvent, error) {
	return c.events, nil
}

// PushAccountEvent injects a synthetic account event, as if the exchange had
// sent it over the wire.
func (c *Client) PushAccountEvent(evt execution.NativeAccountEvent) {
	c.events <- evt
}

// Close stops accepting further pushed events.
func (c *Client) Close() {
	close(c.events)
}
