package adapter

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"github.com/tickwatch/tickwatch/internal/domain"
	"github.com/tickwatch/tickwatch/pkg/logstream"
	"github.com/tickwatch/tickwatch/pkg/pricing"
	"github.com/tickwatch/tickwatch/pkg/rpcbatch"
)

const (
	wordSize          = 256
	v3TickBatchSize   = 120
	v3BitmapBatchSize = 200
)

var (
	slot0Args       = abi.Arguments{{Type: uint160Type}, {Type: int24Type}}
	tickSpacingArgs = abi.Arguments{{Type: int24Type}}
	tickBitmapArgs  = abi.Arguments{{Type: uint256Type}}
	ticksArgs       = abi.Arguments{{Type: uint128Type}, {Type: int128Type}}
)

var uint160Type = mustType("uint160")

// v3Adapter fetches a Uniswap-v3-style pool's tick distribution by
// walking its tick bitmap and decodes Mint/Burn logs off the wire.
type v3Adapter struct {
	rpc            *rpcbatch.Client
	pool           common.Address
	wssURL         string
	token0Decimals uint8
	token1Decimals uint8
}

// NewV3Adapter builds the bitmap-traversal adapter used for vanilla
// Uniswap v3 pools (and v3-shaped forks other than PancakeSwap).
func NewV3Adapter(rpc *rpcbatch.Client, pool common.Address, wssURL string, token0Decimals, token1Decimals uint8) ProtocolAdapter {
	return &v3Adapter{rpc: rpc, pool: pool, wssURL: wssURL, token0Decimals: token0Decimals, token1Decimals: token1Decimals}
}

func (a *v3Adapter) FetchSnapshot(ctx context.Context) (*domain.Snapshot, error) {
	slot0Data := encodeCallNoArgs("slot0()")
	tickSpacingData := encodeCallNoArgs("tickSpacing()")

	results, err := a.rpc.Aggregate(ctx, []rpcbatch.Call{
		{Target: a.pool, Data: slot0Data, Decode: decodeSlot0},
		{Target: a.pool, Data: tickSpacingData, Decode: decodeTickSpacing},
	})
	if err != nil {
		return nil, fmt.Errorf("v3 adapter: fetch slot0/tickSpacing: %w", err)
	}
	slot0 := results[0].(slot0Result)
	tickSpacing := results[1].(int32)

	snapshot := domain.NewSnapshot(domain.ProtocolUniswapV3, a.pool.Hex(), tickSpacing)
	snapshot.PriceState = domain.PriceState{SqrtPriceX96: slot0.sqrtPriceX96, CurrentTick: slot0.tick, Valid: true}

	initializedTicks, err := a.collectInitializedTicks(ctx, tickSpacing)
	if err != nil {
		return nil, fmt.Errorf("v3 adapter: collect initialized ticks: %w", err)
	}

	calls := make([]rpcbatch.Call, len(initializedTicks))
	for i, tickIndex := range initializedTicks {
		data, err := encodeCallInt24("ticks(int24)", tickIndex)
		if err != nil {
			return nil, fmt.Errorf("v3 adapter: encode ticks(%d): %w", tickIndex, err)
		}
		calls[i] = rpcbatch.Call{Target: a.pool, Data: data, Decode: decodeTickInfo}
	}
	decoded, err := a.rpc.AggregateChunked(ctx, calls, v3TickBatchSize)
	if err != nil {
		return nil, fmt.Errorf("v3 adapter: fetch tick info: %w", err)
	}
	for i, tickIndex := range initializedTicks {
		info := decoded[i].(tickInfoResult)
		if info.liquidityGross.Sign() == 0 {
			continue
		}
		upperTick := tickIndex + tickSpacing
		snapshot.Ticks[tickIndex] = &domain.Tick{
			LowerTick:    tickIndex,
			UpperTick:    upperTick,
			Liquidity:    info.liquidityGross,
			LiquidityNet: info.liquidityNet,
			PriceLower:   pricing.TickToPrice(tickIndex, a.token0Decimals, a.token1Decimals),
			PriceUpper:   pricing.TickToPrice(upperTick, a.token0Decimals, a.token1Decimals),
		}
	}
	return snapshot, nil
}

// collectInitializedTicks walks the pool's tick bitmap word-by-word,
// fetched in chunks of v3BitmapBatchSize, and yields the tick index of
// every set bit that falls within the pool's valid tick domain.
func (a *v3Adapter) collectInitializedTicks(ctx context.Context, tickSpacing int32) ([]int32, error) {
	minWord := domain.MinTick / tickSpacing / wordSize
	maxWord := domain.MaxTick / tickSpacing / wordSize

	var wordIndices []int32
	for w := minWord; w <= maxWord; w++ {
		wordIndices = append(wordIndices, w)
	}

	calls := make([]rpcbatch.Call, len(wordIndices))
	for i, word := range wordIndices {
		data, err := encodeCallInt16("tickBitmap(int16)", word)
		if err != nil {
			return nil, err
		}
		calls[i] = rpcbatch.Call{Target: a.pool, Data: data, Decode: decodeBitmapWord}
	}
	bitmaps, err := a.rpc.AggregateChunked(ctx, calls, v3BitmapBatchSize)
	if err != nil {
		return nil, err
	}

	var ticks []int32
	for i, word := range wordIndices {
		bitmap := bitmaps[i].(*big.Int)
		if bitmap.Sign() == 0 {
			continue
		}
		for bit := 0; bit < wordSize; bit++ {
			if bitmap.Bit(bit) == 0 {
				continue
			}
			normalizedTick := word*wordSize + int32(bit)
			tickIndex := normalizedTick * tickSpacing
			if tickIndex < domain.MinTick || tickIndex > domain.MaxTick {
				continue
			}
			ticks = append(ticks, tickIndex)
		}
	}
	return ticks, nil
}

func (a *v3Adapter) StreamEvents(ctx context.Context) (<-chan domain.LiquidityDeltaEvent, error) {
	stream := logstream.New(a.wssURL, a.pool.Hex(), []string{topicMint, topicBurn})
	raw := make(chan json.RawMessage, 64)
	go func() {
		if err := stream.Run(ctx, raw); err != nil && ctx.Err() == nil {
			// Run only returns non-nil on a canceled context in steady
			// operation; surfaced errors here would just be ctx.Err().
			_ = err
		}
	}()

	out := make(chan domain.LiquidityDeltaEvent, 64)
	go func() {
		defer close(out)
		for msg := range raw {
			logEntry, err := parseRawLog(msg)
			if err != nil {
				continue
			}
			var event domain.LiquidityDeltaEvent
			switch logEntry.Topics[0] {
			case topicMint:
				event, err = decodeMintLike(logEntry)
			case topicBurn:
				event, err = decodeBurnLike(logEntry)
			default:
				continue
			}
			if err != nil {
				continue
			}
			select {
			case out <- event:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

type slot0Result struct {
	sqrtPriceX96 *big.Int
	tick         int32
}

type tickInfoResult struct {
	liquidityGross *big.Int
	liquidityNet   *big.Int
}

func decodeSlot0(data []byte) (any, error) {
	values, err := slot0Args.Unpack(data)
	if err != nil || len(values) < 2 {
		return nil, fmt.Errorf("unpack slot0: %w", err)
	}
	return slot0Result{sqrtPriceX96: values[0].(*big.Int), tick: asTick(values[1])}, nil
}

func decodeTickSpacing(data []byte) (any, error) {
	values, err := tickSpacingArgs.Unpack(data)
	if err != nil || len(values) != 1 {
		return nil, fmt.Errorf("unpack tickSpacing: %w", err)
	}
	return asTick(values[0]), nil
}

func decodeBitmapWord(data []byte) (any, error) {
	values, err := tickBitmapArgs.Unpack(data)
	if err != nil || len(values) != 1 {
		return nil, fmt.Errorf("unpack tickBitmap: %w", err)
	}
	return values[0].(*big.Int), nil
}

func decodeTickInfo(data []byte) (any, error) {
	values, err := ticksArgs.Unpack(data)
	if err != nil || len(values) < 2 {
		return nil, fmt.Errorf("unpack ticks: %w", err)
	}
	return tickInfoResult{liquidityGross: values[0].(*big.Int), liquidityNet: values[1].(*big.Int)}, nil
}
