// Package clientorderid generates exchange client order IDs, grounded on
// the teacher's structured ID generator (internal/orders/client_order_id.go)
// but simplified to the fields the execution layer actually needs: a
// strategy tag and a collision-free sequence.
package clientorderid

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/koshedu/marketcore/internal/orderstore"
)

// SequenceProvider supplies a monotonically increasing per-strategy sequence
// number, mirroring the teacher's daily-sequence interface but backed by
// whatever store the caller wires in (e.g. Redis; see repository package).
type SequenceProvider interface {
	Next(ctx context.Context, strategy string) (int64, error)
}

// Generator produces ClientOrderIds of the form "<strategy>-<seq>", falling
// back to a random UUID suffix if the sequence provider is unavailable —
// the same fallback posture the teacher's generator takes when Redis is
// down, just without the date/timezone formatting this system has no use
// for.
type Generator struct {
	sequence SequenceProvider
}

// New builds a Generator. sequence may be nil, in which case every ID uses
// the UUID fallback path.
func New(sequence SequenceProvider) *Generator {
	return &Generator{sequence: sequence}
}

// Next produces a new ClientOrderId for strategy.
func (g *Generator) Next(ctx context.Context, strategy string) orderstore.ClientOrderId {
	if g.sequence != nil {
		if seq, err := g.sequence.Next(ctx, strategy); err == nil {
			return orderstore.ClientOrderId(fmt.Sprintf("%s-%d", strategy, seq))
		}
	}
	return orderstore.ClientOrderId(fmt.Sprintf("%s-FALLBACK-%s", strategy, uuid.NewString()[:8]))
}
