// Package domain holds the value types shared across the tick map, the
// protocol adapters and the ingestion pipeline.
package domain

import (
	"math/big"
	"time"
)

// Protocol identifies which concentrated-liquidity pool implementation a
// Snapshot was materialized from.
type Protocol string

const (
	ProtocolUniswapV3 Protocol = "uniswap_v3"
	ProtocolUniswapV4 Protocol = "uniswap_v4"
	ProtocolPancakeV3 Protocol = "pancake_v3"
)

// MinTick and MaxTick bound the tick domain Uniswap-v3-style pools use.
const (
	MinTick = -887272
	MaxTick = 887272
)

// EventKind distinguishes the two (three, counting v4) on-chain liquidity
// change events the adapters decode.
type EventKind string

const (
	EventMint            EventKind = "Mint"
	EventBurn            EventKind = "Burn"
	EventModifyLiquidity EventKind = "ModifyLiquidity"
)

// Tick is one initialized-tick bucket of a pool's liquidity distribution.
// LowerTick is the map key; UpperTick is always LowerTick+TickSpacing
// regardless of whether that higher tick is itself initialized (§4.C).
type Tick struct {
	LowerTick    int32
	UpperTick    int32
	Liquidity    *big.Int // gross liquidity at this bucket; signed because delta application may transiently net negative
	LiquidityNet *big.Int // signed contribution carried for swap-traversal callers; optional
	PriceLower   float64
	PriceUpper   float64
}

// PriceState is the pool's current price pair. Both fields are nil/zero
// until the first snapshot or price update lands.
type PriceState struct {
	SqrtPriceX96 *big.Int
	CurrentTick  int32
	Valid        bool
}

// Snapshot is the authoritative, in-memory tick-indexed liquidity map for
// a single pool. Only the state machine may mutate it once constructed.
type Snapshot struct {
	Ticks       map[int32]*Tick
	PriceState  PriceState
	Protocol    Protocol
	PoolAddress string
	TickSpacing int32
}

// NewSnapshot returns an empty snapshot ready to receive ticks.
func NewSnapshot(protocol Protocol, poolAddress string, tickSpacing int32) *Snapshot {
	return &Snapshot{
		Ticks:       make(map[int32]*Tick),
		Protocol:    protocol,
		PoolAddress: poolAddress,
		TickSpacing: tickSpacing,
	}
}

// LiquidityDeltaEvent is a decoded Mint/Burn/ModifyLiquidity log.
type LiquidityDeltaEvent struct {
	TxHash         string
	LowerTick      int32
	UpperTick      int32
	LiquidityDelta *big.Int // positive for Mint, negative for Burn
	BlockNumber    uint64
	ReceivedAt     time.Time
	Kind           EventKind
}

// AdaptiveScale is the derived-at-query-time window used to bucket the
// buy-wall depth view: ±20% around the current price in 21 buckets.
type AdaptiveScale struct {
	CurrentPrice float64
	Step         float64
	MinPrice     float64
	MaxPrice     float64
}

// AggregatedDepth is one row of the buy-wall depth view.
type AggregatedDepth struct {
	BucketLabel string
	Depth       float64
}
