package streams

import (
	"context"
	"fmt"
	"sort"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/koshedu/marketcore/internal/instrument"
	"github.com/koshedu/marketcore/internal/streams/reconnect"
)

// Adapters maps each supported exchange to the Adapter that serves it.
type Adapters map[instrument.ExchangeId]Adapter

// Init validates and deduplicates subscriptions up front, then provisions
// exactly one fan-in channel per (exchange, sub_kind) class (I3) and spawns
// exactly one ReconnectingStream per class.
//
// The original design chunks subscriptions into caller-supplied batches and
// only dedups within a batch; that detail is dropped here because I3 already
// makes the batch boundary unobservable downstream — two batches requesting
// the same class still collapse onto the one channel that class owns. So
// this implementation validates and dedups across the whole input set in one
// pass, then groups by class, which is behaviourally identical and simpler.
type Supervisor struct {
	adapters Adapters
	policy   reconnect.Policy
	logger   zerolog.Logger
}

// NewSupervisor builds a Supervisor over the given adapter registry.
func NewSupervisor(adapters Adapters, policy reconnect.Policy, logger zerolog.Logger) *Supervisor {
	return &Supervisor{
		adapters: adapters,
		policy:   policy,
		logger:   logger.With().Str("component", "stream_supervisor").Logger(),
	}
}

// Channels maps each provisioned Class to its merged item channel.
type Channels map[instrument.Class]<-chan Item

// Init validates every subscription, deduplicates the set, and starts one
// ReconnectingStream per class. It fails fast (before spawning anything) if
// any subscription is unsupported, per spec §7's fail-init-up-front policy.
func (s *Supervisor) Init(ctx context.Context, batches [][]instrument.Subscription) (Channels, error) {
	var all []instrument.Subscription
	for _, batch := range batches {
		all = append(all, batch...)
	}

	if err := s.validate(all); err != nil {
		return nil, err
	}

	deduped := dedupe(all)

	grouped := make(map[instrument.Class][]instrument.Subscription)
	for _, sub := range deduped {
		class := sub.Class()
		grouped[class] = append(grouped[class], sub)
	}

	channels := make(Channels, len(grouped))
	for class, subs := range grouped {
		adapter := s.adapters[class.Exchange]
		rs := NewReconnectingStream(class, subs, adapter, s.policy, s.logger)
		channels[class] = rs.Run(ctx)
	}

	return channels, nil
}

// validate checks every subscription against its exchange's adapter before
// anything is spawned. An unknown exchange or a Validate failure aborts
// initialization entirely. Validation of independent subscriptions fans out
// across an errgroup; every check runs to completion and the first error
// returned is reported.
func (s *Supervisor) validate(subs []instrument.Subscription) error {
	var g errgroup.Group
	for _, sub := range subs {
		sub := sub
		g.Go(func() error {
			adapter, ok := s.adapters[sub.Exchange]
			if !ok {
				return &DataError{
					Kind:     ErrUnsupportedSubKind,
					Exchange: sub.Exchange,
					SubKind:  sub.Kind,
					Cause:    fmt.Errorf("no adapter registered for exchange %s", sub.Exchange),
				}
			}
			if err := adapter.Validate(sub); err != nil {
				return &DataError{
					Kind:     ErrUnsupportedSubKind,
					Exchange: sub.Exchange,
					SubKind:  sub.Kind,
					Cause:    err,
				}
			}
			return nil
		})
	}
	return g.Wait()
}

// dedupe sorts subscriptions into the canonical (exchange, kind, instrument)
// order and removes consecutive duplicates (§4.1.2). The union of distinct
// subscriptions is authoritative regardless of which batch first named them.
func dedupe(subs []instrument.Subscription) []instrument.Subscription {
	if len(subs) == 0 {
		return nil
	}
	sorted := make([]instrument.Subscription, len(subs))
	copy(sorted, subs)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Less(sorted[j]) })

	out := sorted[:1]
	for _, sub := range sorted[1:] {
		if !sub.Equal(out[len(out)-1]) {
			out = append(out, sub)
		}
	}
	return out
}
