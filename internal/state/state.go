// Package state implements the single-writer, multi-reader liquidity
// state machine: it owns a pool's in-memory tick map and derives the
// adaptive buy-wall depth view from it on demand.
package state

import (
	"fmt"
	"log"
	"math"
	"math/big"
	"sort"
	"sync"

	"github.com/tickwatch/tickwatch/internal/domain"
)

const (
	scaleStepFraction = 0.02
	scaleHalfWidth    = 10
	minStep           = 1e-8
)

// Machine is the exclusive owner of a pool's Snapshot. ApplyEvent and
// UpdatePrice are the only mutators; every other method only reads.
// Safe for concurrent use by multiple goroutines.
type Machine struct {
	mu       sync.RWMutex
	snapshot *domain.Snapshot
}

// New wraps an already-fetched snapshot (the result of a protocol
// adapter's FetchSnapshot) in a state machine.
func New(snapshot *domain.Snapshot) *Machine {
	return &Machine{snapshot: snapshot}
}

// tickPrice is the plain 1.0001^tick price used internally by the state
// machine for bucket creation and the adaptive scale; it deliberately
// ignores token decimals, unlike pkg/pricing.TickToPrice, matching how
// the bucket price fields are recomputed fresh rather than reused from
// the adapter-cached, decimals-corrected values.
func tickPrice(tick int32) float64 {
	return math.Pow(1.0001, float64(tick))
}

// ApplyEvent adds a decoded liquidity delta to its bucket, creating the
// bucket at e.LowerTick if absent. A newly created bucket's upper tick
// is always lower+tick_spacing, not e.UpperTick (§9 open question: event
// ranges spanning multiple spacing intervals are not split).
//
// A bucket invariant violation (tick_spacing <= 0, or e.LowerTick outside
// [MinTick, MaxTick]) rejects the event and logs instead of mutating the
// snapshot (§7).
func (m *Machine) ApplyEvent(e domain.LiquidityDeltaEvent) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.snapshot.TickSpacing <= 0 {
		log.Printf("state: rejecting event for pool %s: non-positive tick_spacing %d", m.snapshot.PoolAddress, m.snapshot.TickSpacing)
		return
	}
	if e.LowerTick < domain.MinTick || e.LowerTick > domain.MaxTick {
		log.Printf("state: rejecting event for pool %s: lower_tick %d out of range", m.snapshot.PoolAddress, e.LowerTick)
		return
	}

	bucket, ok := m.snapshot.Ticks[e.LowerTick]
	if !ok {
		upperTick := e.LowerTick + m.snapshot.TickSpacing
		bucket = &domain.Tick{
			LowerTick:    e.LowerTick,
			UpperTick:    upperTick,
			Liquidity:    big.NewInt(0),
			LiquidityNet: big.NewInt(0),
			PriceLower:   tickPrice(e.LowerTick),
			PriceUpper:   tickPrice(upperTick),
		}
		m.snapshot.Ticks[e.LowerTick] = bucket
	}
	bucket.Liquidity = new(big.Int).Add(bucket.Liquidity, e.LiquidityDelta)
}

// UpdatePrice replaces the snapshot's current price state.
func (m *Machine) UpdatePrice(p domain.PriceState) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snapshot.PriceState = p
}

// currentPrice returns the plain tick-derived price of the current
// price state, or 0 if no price has been observed yet.
func (m *Machine) currentPrice() float64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if !m.snapshot.PriceState.Valid {
		return 0
	}
	return tickPrice(m.snapshot.PriceState.CurrentTick)
}

// AdaptiveScale derives the ±20%, 21-bucket window around the current
// price. A non-positive or absent price is treated as 1.0.
func (m *Machine) AdaptiveScale() domain.AdaptiveScale {
	price := m.currentPrice()
	if price <= 0 {
		price = 1.0
	}
	step := math.Max(price*scaleStepFraction, minStep)
	minPrice := math.Max(price-scaleHalfWidth*step, step)
	maxPrice := price + scaleHalfWidth*step
	return domain.AdaptiveScale{CurrentPrice: price, Step: step, MinPrice: minPrice, MaxPrice: maxPrice}
}

// BuyWallDepth aggregates every bucket's buy-side (below or straddling
// the current price) liquidity into the adaptive scale's buckets,
// returned in strictly ascending order of the bucket's numeric price.
func (m *Machine) BuyWallDepth() []domain.AggregatedDepth {
	scale := m.AdaptiveScale()

	m.mu.RLock()
	defer m.mu.RUnlock()

	type bucketAccum struct {
		price float64
		depth float64
	}
	buckets := make(map[string]*bucketAccum)

	price := scale.CurrentPrice
	for _, tick := range m.snapshot.Ticks {
		if tick.Liquidity.Sign() <= 0 {
			continue
		}
		priceLower := tickPrice(tick.LowerTick)
		priceUpper := tickPrice(tick.UpperTick)

		isBelow := priceUpper < price
		containsPrice := priceLower <= price && price <= priceUpper
		if !isBelow && !containsPrice {
			continue
		}

		liquidity := new(big.Float).SetInt(tick.Liquidity)
		contribution, _ := liquidity.Float64()
		if containsPrice {
			span := priceUpper - priceLower
			if span != 0 {
				frac := math.Max(price-priceLower, 0) / span
				contribution *= frac
			}
		}

		bucketIndex := int(math.Floor((priceUpper - scale.MinPrice) / scale.Step))
		bucketPrice := scale.MinPrice + float64(bucketIndex)*scale.Step
		label := bucketLabel(bucketPrice)

		entry, ok := buckets[label]
		if !ok {
			entry = &bucketAccum{price: bucketPrice}
			buckets[label] = entry
		}
		entry.depth += contribution
	}

	depths := make([]domain.AggregatedDepth, 0, len(buckets))
	for label, entry := range buckets {
		depths = append(depths, domain.AggregatedDepth{BucketLabel: label, Depth: entry.depth})
	}
	sort.Slice(depths, func(i, j int) bool {
		return buckets[depths[i].BucketLabel].price < buckets[depths[j].BucketLabel].price
	})
	return depths
}

func bucketLabel(price float64) string {
	return fmt.Sprintf("%.6f", price)
}
