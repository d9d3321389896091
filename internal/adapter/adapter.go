// Package adapter implements the protocol-specific pieces that
// materialize a pool's initial tick snapshot and decode its on-chain
// liquidity-change log stream into domain.LiquidityDeltaEvent values.
//
// Three variants cover the dispatched protocols (uniswap_v3, uniswap_v4,
// pancake_v3); they are selected once at startup by configuration and
// differ only in how they fetch the snapshot and decode logs.
package adapter

import (
	"context"

	"github.com/tickwatch/tickwatch/internal/domain"
)

// ProtocolAdapter fetches the initial liquidity snapshot and decodes the
// live event stream for one pool. Implementations are not safe for
// concurrent calls to StreamEvents from multiple goroutines, but
// FetchSnapshot and StreamEvents themselves may run concurrently once
// the latter is started (mirrors §5: one thread per adapter).
type ProtocolAdapter interface {
	// FetchSnapshot performs the synchronous, batched on-chain read that
	// materializes the pool's current tick distribution. May take
	// seconds; errors here are fatal at startup (§7).
	FetchSnapshot(ctx context.Context) (*domain.Snapshot, error)

	// StreamEvents returns a channel of decoded delta events fed by a
	// long-lived, self-reconnecting subscription. The channel is closed
	// when ctx is canceled.
	StreamEvents(ctx context.Context) (<-chan domain.LiquidityDeltaEvent, error)
}
