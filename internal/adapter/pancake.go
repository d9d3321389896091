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

const pancakeWordBatchSize = 80

var populatedTickArgs = abi.Arguments{{Type: tickInfoTupleArrayType}}

var tickInfoTupleArrayType = mustTickInfoTupleArrayType()

func mustTickInfoTupleArrayType() abi.Type {
	t, err := abi.NewType("tuple[]", "", []abi.ArgumentMarshaling{
		{Name: "tick", Type: "int24"},
		{Name: "liquidityNet", Type: "int128"},
		{Name: "liquidityGross", Type: "uint128"},
	})
	if err != nil {
		panic("adapter: invalid tickLens tuple type: " + err.Error())
	}
	return t
}

type tickLensEntry struct {
	Tick           int32
	LiquidityNet   *big.Int
	LiquidityGross *big.Int
}

// pancakeV3Adapter fetches a PancakeSwap-v3 pool's tick distribution via
// a standalone tick-lens contract rather than walking the pool's own
// bitmap directly.
type pancakeV3Adapter struct {
	rpc            *rpcbatch.Client
	pool           common.Address
	tickLens       common.Address
	wssURL         string
	token0Decimals uint8
	token1Decimals uint8
}

// NewPancakeV3Adapter builds the tick-lens adapter used for PancakeSwap
// v3 pools, which expose populated ticks through a fixed lens contract
// rather than a bitmap accessor on the pool itself.
func NewPancakeV3Adapter(rpc *rpcbatch.Client, pool, tickLens common.Address, wssURL string, token0Decimals, token1Decimals uint8) ProtocolAdapter {
	return &pancakeV3Adapter{rpc: rpc, pool: pool, tickLens: tickLens, wssURL: wssURL, token0Decimals: token0Decimals, token1Decimals: token1Decimals}
}

func (a *pancakeV3Adapter) FetchSnapshot(ctx context.Context) (*domain.Snapshot, error) {
	slot0Data := encodeCallNoArgs("slot0()")
	tickSpacingData := encodeCallNoArgs("tickSpacing()")

	results, err := a.rpc.Aggregate(ctx, []rpcbatch.Call{
		{Target: a.pool, Data: slot0Data, Decode: decodeSlot0},
		{Target: a.pool, Data: tickSpacingData, Decode: decodeTickSpacing},
	})
	if err != nil {
		return nil, fmt.Errorf("pancake v3 adapter: fetch slot0/tickSpacing: %w", err)
	}
	slot0 := results[0].(slot0Result)
	tickSpacing := results[1].(int32)

	snapshot := domain.NewSnapshot(domain.ProtocolPancakeV3, a.pool.Hex(), tickSpacing)
	snapshot.PriceState = domain.PriceState{SqrtPriceX96: slot0.sqrtPriceX96, CurrentTick: slot0.tick, Valid: true}

	minWord := domain.MinTick / tickSpacing
	maxWord := domain.MaxTick / tickSpacing

	var calls []rpcbatch.Call
	for word := minWord; word <= maxWord; word++ {
		data, err := encodeCallAddressInt16("getPopulatedTicksInWord(address,int16)", a.pool, word)
		if err != nil {
			return nil, fmt.Errorf("pancake v3 adapter: encode getPopulatedTicksInWord(%d): %w", word, err)
		}
		calls = append(calls, rpcbatch.Call{Target: a.tickLens, Data: data, Decode: decodePopulatedTicks})
	}
	decoded, err := a.rpc.AggregateChunked(ctx, calls, pancakeWordBatchSize)
	if err != nil {
		return nil, fmt.Errorf("pancake v3 adapter: fetch populated ticks: %w", err)
	}

	for _, result := range decoded {
		entries := result.([]tickLensEntry)
		for _, entry := range entries {
			if entry.LiquidityGross.Sign() == 0 {
				continue
			}
			upperTick := entry.Tick + tickSpacing
			snapshot.Ticks[entry.Tick] = &domain.Tick{
				LowerTick:    entry.Tick,
				UpperTick:    upperTick,
				Liquidity:    entry.LiquidityGross,
				LiquidityNet: entry.LiquidityNet,
				PriceLower:   pricing.TickToPrice(entry.Tick, a.token0Decimals, a.token1Decimals),
				PriceUpper:   pricing.TickToPrice(upperTick, a.token0Decimals, a.token1Decimals),
			}
		}
	}
	return snapshot, nil
}

func (a *pancakeV3Adapter) StreamEvents(ctx context.Context) (<-chan domain.LiquidityDeltaEvent, error) {
	stream := logstream.New(a.wssURL, a.pool.Hex(), []string{topicMint, topicBurn})
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

func decodePopulatedTicks(data []byte) (any, error) {
	values, err := populatedTickArgs.Unpack(data)
	if err != nil || len(values) != 1 {
		return nil, fmt.Errorf("unpack getPopulatedTicksInWord: %w", err)
	}
	// Tick is declared *big.Int, not int32: go-ethereum only maps
	// intN/uintN widths of exactly 8/16/32/64 to native Go integer types,
	// and the tuple's int24 "tick" field unpacks the same way a bare
	// int24 return value would. The json tags match the ones go-ethereum
	// puts on the struct type it builds for the tuple, without which the
	// assertion would not match.
	raw, ok := values[0].([]struct {
		Tick           *big.Int `json:"tick"`
		LiquidityNet   *big.Int `json:"liquidityNet"`
		LiquidityGross *big.Int `json:"liquidityGross"`
	})
	if !ok {
		return nil, fmt.Errorf("unexpected populated-ticks tuple shape %T", values[0])
	}
	entries := make([]tickLensEntry, len(raw))
	for i, r := range raw {
		entries[i] = tickLensEntry{Tick: int32(r.Tick.Int64()), LiquidityNet: r.LiquidityNet, LiquidityGross: r.LiquidityGross}
	}
	return entries, nil
}
