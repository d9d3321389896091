// Package pricing converts ticks to decimal-corrected display prices.
package pricing

import "math"

// TickToPrice returns 1.0001^tick scaled by the token decimal difference.
// Pure function, display-only: double precision is acceptable since this
// never feeds on-chain math. Across the ±887272 pool domain 1.0001^tick
// stays within float64 range (about 1e±38); ticks far outside it
// overflow/underflow, the result is +Inf or 0, and callers must discard
// those buckets rather than treat them as real liquidity.
func TickToPrice(tick int32, token0Decimals, token1Decimals uint8) float64 {
	decimalCorrection := math.Pow(10, float64(int(token0Decimals)-int(token1Decimals)))
	return math.Pow(1.0001, float64(tick)) * decimalCorrection
}
