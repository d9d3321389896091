// Package ingest runs the single long-lived loop that pulls decoded
// liquidity events off a protocol adapter's stream, folds each into the
// liquidity state machine, and republishes it for any downstream sink
// (logging, a rendering loop, an audit recorder).
package ingest

import (
	"context"
	"log"

	"github.com/tickwatch/tickwatch/internal/adapter"
	"github.com/tickwatch/tickwatch/internal/domain"
	"github.com/tickwatch/tickwatch/internal/state"
)

// publishBufferSize bounds the republish channel; once full, the oldest
// unread event is dropped rather than blocking the ingestion loop (§5).
const publishBufferSize = 256

// Run starts the adapter's event stream, applies every event to m, and
// republishes it on the returned channel. It returns as soon as the
// stream is started; a background goroutine does the work until the
// adapter's stream closes (which happens when ctx is canceled), then
// closes the returned channel. The caller only reads from that channel.
// Daemonic: no retry at this layer, matching the adapter's own
// self-reconnecting stream.
func Run(ctx context.Context, a adapter.ProtocolAdapter, m *state.Machine) (<-chan domain.LiquidityDeltaEvent, error) {
	events, err := a.StreamEvents(ctx)
	if err != nil {
		return nil, err
	}

	out := make(chan domain.LiquidityDeltaEvent, publishBufferSize)
	go func() {
		defer close(out)
		for event := range events {
			m.ApplyEvent(event)
			publishDroppingOldest(out, event)
		}
		log.Print("ingest: event stream closed")
	}()
	return out, nil
}

// publishDroppingOldest sends event on out, discarding the oldest
// buffered event first if out is full, so a slow consumer never stalls
// the ingestion loop.
func publishDroppingOldest(out chan domain.LiquidityDeltaEvent, event domain.LiquidityDeltaEvent) {
	select {
	case out <- event:
		return
	default:
	}
	select {
	case <-out:
	default:
	}
	select {
	case out <- event:
	default:
	}
}
