package streams

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/koshedu/marketcore/internal/chanutil"
	"github.com/koshedu/marketcore/internal/instrument"
	"github.com/koshedu/marketcore/internal/streams/reconnect"
)

// errReconnectExhausted is the cause wrapped into the terminal Err item a
// stream surfaces once its reconnect policy's attempt budget runs out
// (spec §4.1 error policy, §4.2 "If max_attempts is exceeded, the stream
// terminates and its sink receives a final Err before close").
var errReconnectExhausted = errors.New("reconnect attempts exhausted")

// ItemKind tags whether an Item carries a payload or marks a reconnection
// boundary (spec §5 ordering guarantee: a Reconnecting item always precedes
// the first post-reconnect payload, and is followed by exactly one
// Reconnected item once the adapter resumes delivering data).
type ItemKind int

const (
	ItemPayload ItemKind = iota
	ItemReconnecting
	ItemReconnected
)

// Item is the unit carried on a ReconnectingStream's output channel.
type Item struct {
	Kind    ItemKind
	Result  Result
	Attempt int // meaningful for Reconnecting/Reconnected
}

// Adapter opens a live exchange connection for a set of subscriptions of a
// single Class (one exchange, one sub kind). Open must itself retry nothing;
// all reconnect/backoff is owned by the caller (ReconnectingStream).
type Adapter interface {
	// Validate reports whether sub is supported by this adapter at all,
	// independent of connectivity (spec §7 ErrUnsupportedSubKind).
	Validate(sub instrument.Subscription) error
	// Open establishes one live connection for subs and returns a channel of
	// results. The channel closes when ctx is cancelled or the connection
	// drops; a dropped connection is signalled by closing the channel, not
	// by sending an error item (the caller only sees ErrConnectivity if Open
	// itself fails outright).
	Open(ctx context.Context, subs []instrument.Subscription) (<-chan Result, error)
}

// ReconnectingStream owns one adapter connection for one Class and restarts
// it under the supplied backoff policy whenever it drops, emitting
// Reconnecting/Reconnected boundary items around each restart (spec §5).
type ReconnectingStream struct {
	class  instrument.Class
	subs   []instrument.Subscription
	opener Adapter
	policy reconnect.Policy
	logger zerolog.Logger
}

// NewReconnectingStream constructs a stream for one subscription class.
func NewReconnectingStream(class instrument.Class, subs []instrument.Subscription, opener Adapter, policy reconnect.Policy, logger zerolog.Logger) *ReconnectingStream {
	return &ReconnectingStream{
		class:  class,
		subs:   subs,
		opener: opener,
		policy: policy,
		logger: logger.With().
			Str("component", "reconnecting_stream").
			Str("exchange", class.Exchange.String()).
			Str("sub_kind", class.Kind.String()).
			Logger(),
	}
}

// Run starts the connect-and-supervise loop and returns the channel of
// items, backed by an unbounded queue so a slow consumer never blocks the
// forwarder, and in turn never blocks the adapter connection it drains
// (spec §4.1.3 "create an unbounded single-producer channel"; §5 "channels
// are unbounded by contract; backpressure is absorbed by RAM"). The channel
// closes once ctx is cancelled.
func (r *ReconnectingStream) Run(ctx context.Context) <-chan Item {
	out := chanutil.NewUnbounded[Item]()
	go r.loop(ctx, out)
	return out.Out()
}

func (r *ReconnectingStream) loop(ctx context.Context, out *chanutil.Unbounded[Item]) {
	defer out.Close()

	attempt := 0
	first := true

	for {
		if ctx.Err() != nil {
			return
		}

		if !first {
			if r.policy.Exhausted(attempt - 1) {
				r.logger.Error().Int("attempt", attempt).Msg("reconnect attempts exhausted, giving up")
				out.Send(Item{Kind: ItemPayload, Result: Errored(&DataError{
					Kind:     ErrConnectivity,
					Exchange: r.class.Exchange,
					SubKind:  r.class.Kind,
					Cause:    errReconnectExhausted,
				})})
				return
			}
			delay := r.policy.Delay(attempt - 1)
			r.logger.Warn().Dur("delay", delay).Int("attempt", attempt).Msg("reconnecting")
			select {
			case <-ctx.Done():
				return
			case <-time.After(delay):
			}
			out.Send(Item{Kind: ItemReconnecting, Attempt: attempt})
		}

		results, err := r.opener.Open(ctx, r.subs)
		if err != nil {
			r.logger.Error().Err(err).Msg("failed to open adapter connection")
			attempt++
			first = false
			continue
		}

		if !first {
			out.Send(Item{Kind: ItemReconnected, Attempt: attempt})
		}
		first = false
		attempt = 0

		drained := r.drain(ctx, results, out)
		if !drained {
			return
		}
		attempt = 1
	}
}

// drain forwards results until the adapter's channel closes (connection
// dropped) or ctx is cancelled. Returns false if the caller should stop
// entirely (ctx cancelled), true if it should reconnect.
func (r *ReconnectingStream) drain(ctx context.Context, results <-chan Result, out *chanutil.Unbounded[Item]) bool {
	for {
		select {
		case <-ctx.Done():
			return false
		case res, ok := <-results:
			if !ok {
				return true
			}
			out.Send(Item{Kind: ItemPayload, Result: res})
		}
	}
}
