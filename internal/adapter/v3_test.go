package adapter

import (
	"context"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tickwatch/tickwatch/internal/domain"
)

// TestV3FetchSnapshotWalksBitmapAndFetchesOnlyInitializedTicks builds a
// 115-word bitmap (the real ±887272/60 domain) with exactly one
// initialized tick and asserts the snapshot carries only that tick, at
// upper bound lowerTick+tickSpacing, per the v3 adapter's invariant.
func TestV3FetchSnapshotWalksBitmapAndFetchesOnlyInitializedTicks(t *testing.T) {
	const tickSpacing = int32(60)

	slot0Packed, err := slot0Args.Pack(new(big.Int).Lsh(big.NewInt(1), 96), big.NewInt(1234))
	require.NoError(t, err)
	tickSpacingPacked, err := tickSpacingArgs.Pack(big.NewInt(int64(tickSpacing)))
	require.NoError(t, err)
	metadataResponse := packAggregate(t, [][]byte{slot0Packed, tickSpacingPacked})

	minWord := domain.MinTick / tickSpacing / wordSize
	maxWord := domain.MaxTick / tickSpacing / wordSize
	var bitmapWords [][]byte
	for w := minWord; w <= maxWord; w++ {
		bitmap := big.NewInt(0)
		if w == 0 {
			bitmap = new(big.Int).Lsh(big.NewInt(1), 10) // bit 10 set -> tick 600
		}
		packed, err := tickBitmapArgs.Pack(bitmap)
		require.NoError(t, err)
		bitmapWords = append(bitmapWords, packed)
	}
	bitmapResponse := packAggregate(t, bitmapWords)

	tickInfoPacked, err := ticksArgs.Pack(big.NewInt(555), big.NewInt(555))
	require.NoError(t, err)
	tickInfoResponse := packAggregate(t, [][]byte{tickInfoPacked})

	rpc := newFakeRPCClient(t, [][]byte{metadataResponse, bitmapResponse, tickInfoResponse})
	a := NewV3Adapter(rpc, common.HexToAddress("0xbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb"), "wss://example", 18, 6)

	snapshot, err := a.FetchSnapshot(context.Background())
	require.NoError(t, err)

	assert.Equal(t, tickSpacing, snapshot.TickSpacing)
	assert.Equal(t, int32(1234), snapshot.PriceState.CurrentTick)
	assert.True(t, snapshot.PriceState.Valid)
	require.Len(t, snapshot.Ticks, 1)

	tick, ok := snapshot.Ticks[600]
	require.True(t, ok, "expected initialized tick 600 (bit 10 of word 0) in snapshot")
	assert.Equal(t, int32(660), tick.UpperTick)
	assert.Equal(t, big.NewInt(555), tick.Liquidity)
}

func TestV3FetchSnapshotSkipsZeroGrossTicks(t *testing.T) {
	const tickSpacing = int32(200000) // collapses the domain to word 0 only

	slot0Packed, err := slot0Args.Pack(big.NewInt(1), big.NewInt(0))
	require.NoError(t, err)
	tickSpacingPacked, err := tickSpacingArgs.Pack(big.NewInt(int64(tickSpacing)))
	require.NoError(t, err)
	metadataResponse := packAggregate(t, [][]byte{slot0Packed, tickSpacingPacked})

	bitmap := new(big.Int).Or(big.NewInt(1), new(big.Int).Lsh(big.NewInt(1), 3))
	bitmapPacked, err := tickBitmapArgs.Pack(bitmap)
	require.NoError(t, err)
	bitmapResponse := packAggregate(t, [][]byte{bitmapPacked})

	zeroGross, err := ticksArgs.Pack(big.NewInt(0), big.NewInt(0))
	require.NoError(t, err)
	nonZeroGross, err := ticksArgs.Pack(big.NewInt(42), big.NewInt(-42))
	require.NoError(t, err)
	tickInfoResponse := packAggregate(t, [][]byte{zeroGross, nonZeroGross})

	rpc := newFakeRPCClient(t, [][]byte{metadataResponse, bitmapResponse, tickInfoResponse})
	a := NewV3Adapter(rpc, common.HexToAddress("0xcccccccccccccccccccccccccccccccccccccccc"), "wss://example", 18, 18)

	snapshot, err := a.FetchSnapshot(context.Background())
	require.NoError(t, err)

	require.Len(t, snapshot.Ticks, 1)
	tick, ok := snapshot.Ticks[3*tickSpacing]
	require.True(t, ok)
	assert.Equal(t, big.NewInt(42), tick.Liquidity)
}
