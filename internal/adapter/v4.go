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

var (
	currentTickArgs      = abi.Arguments{{Type: int24Type}}
	currentSqrtPriceArgs = abi.Arguments{{Type: uint160Type}}
	tickLiquidityArgs    = abi.Arguments{{Type: uint128Type}}
)

// v4Adapter reads a single pool's state out of a PoolManager singleton
// contract, keyed by its 32-byte pool_id, and scans the tick domain
// linearly rather than via a bitmap (the PoolManager exposes no bitmap
// accessor).
type v4Adapter struct {
	rpc            *rpcbatch.Client
	poolManager    common.Address
	poolID         [32]byte
	wssURL         string
	token0Decimals uint8
	token1Decimals uint8
}

// NewV4Adapter builds the PoolManager-singleton adapter used for
// Uniswap v4 pools, where many pools share one deployed contract and are
// distinguished only by pool_id.
func NewV4Adapter(rpc *rpcbatch.Client, poolManager common.Address, poolIDHex, wssURL string, token0Decimals, token1Decimals uint8) (ProtocolAdapter, error) {
	poolID, err := hexToPoolID(poolIDHex)
	if err != nil {
		return nil, fmt.Errorf("v4 adapter: %w", err)
	}
	return &v4Adapter{
		rpc: rpc, poolManager: poolManager, poolID: poolID, wssURL: wssURL,
		token0Decimals: token0Decimals, token1Decimals: token1Decimals,
	}, nil
}

func (a *v4Adapter) FetchSnapshot(ctx context.Context) (*domain.Snapshot, error) {
	tickSpacingData, err := encodeCallBytes32("tickSpacing(bytes32)", a.poolID)
	if err != nil {
		return nil, err
	}
	currentTickData, err := encodeCallBytes32("getCurrentTick(bytes32)", a.poolID)
	if err != nil {
		return nil, err
	}
	currentSqrtPriceData, err := encodeCallBytes32("getCurrentSqrtPrice(bytes32)", a.poolID)
	if err != nil {
		return nil, err
	}

	results, err := a.rpc.Aggregate(ctx, []rpcbatch.Call{
		{Target: a.poolManager, Data: tickSpacingData, Decode: decodeTickSpacing},
		{Target: a.poolManager, Data: currentTickData, Decode: decodeSingleInt24},
		{Target: a.poolManager, Data: currentSqrtPriceData, Decode: decodeSingleUint160},
	})
	if err != nil {
		return nil, fmt.Errorf("v4 adapter: fetch pool metadata: %w", err)
	}
	tickSpacing := results[0].(int32)
	currentTick := results[1].(int32)
	sqrtPriceX96 := results[2].(*big.Int)

	snapshot := domain.NewSnapshot(domain.ProtocolUniswapV4, a.poolManager.Hex(), tickSpacing)
	snapshot.PriceState = domain.PriceState{SqrtPriceX96: sqrtPriceX96, CurrentTick: currentTick, Valid: true}

	var calls []rpcbatch.Call
	var tickIndices []int32
	for tick := int32(domain.MinTick); tick < domain.MaxTick; tick += tickSpacing {
		data, err := encodeCallBytes32Int24("getTickLiquidity(bytes32,int24)", a.poolID, tick)
		if err != nil {
			return nil, fmt.Errorf("v4 adapter: encode getTickLiquidity(%d): %w", tick, err)
		}
		calls = append(calls, rpcbatch.Call{Target: a.poolManager, Data: data, Decode: decodeSingleUint128})
		tickIndices = append(tickIndices, tick)
	}
	decoded, err := a.rpc.AggregateChunked(ctx, calls, v3TickBatchSize)
	if err != nil {
		return nil, fmt.Errorf("v4 adapter: fetch tick liquidity: %w", err)
	}
	for i, tick := range tickIndices {
		liquidity := decoded[i].(*big.Int)
		if liquidity.Sign() == 0 {
			continue
		}
		upperTick := tick + tickSpacing
		snapshot.Ticks[tick] = &domain.Tick{
			LowerTick:  tick,
			UpperTick:  upperTick,
			Liquidity:  liquidity,
			PriceLower: pricing.TickToPrice(tick, a.token0Decimals, a.token1Decimals),
			PriceUpper: pricing.TickToPrice(upperTick, a.token0Decimals, a.token1Decimals),
		}
	}
	return snapshot, nil
}

func (a *v4Adapter) StreamEvents(ctx context.Context) (<-chan domain.LiquidityDeltaEvent, error) {
	stream := logstream.New(a.wssURL, a.poolManager.Hex(), []string{topicModifyLiquidity, topicV4Mint})
	raw := make(chan json.RawMessage, 64)
	go func() {
		_ = stream.Run(ctx, raw)
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
			var ok bool
			switch logEntry.Topics[0] {
			case topicModifyLiquidity:
				event, ok, err = decodeModifyLiquidity(logEntry, a.poolID)
			case topicV4Mint:
				event, ok, err = decodeV4Mint(logEntry, a.poolID)
			default:
				continue
			}
			if err != nil || !ok {
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

func decodeSingleInt24(data []byte) (any, error) {
	values, err := currentTickArgs.Unpack(data)
	if err != nil || len(values) != 1 {
		return nil, fmt.Errorf("unpack int24 return: %w", err)
	}
	return asTick(values[0]), nil
}

func decodeSingleUint160(data []byte) (any, error) {
	values, err := currentSqrtPriceArgs.Unpack(data)
	if err != nil || len(values) != 1 {
		return nil, fmt.Errorf("unpack uint160 return: %w", err)
	}
	return values[0].(*big.Int), nil
}

func decodeSingleUint128(data []byte) (any, error) {
	values, err := tickLiquidityArgs.Unpack(data)
	if err != nil || len(values) != 1 {
		return nil, fmt.Errorf("unpack uint128 return: %w", err)
	}
	return values[0].(*big.Int), nil
}
