package adapter

import (
	"encoding/json"
	"fmt"
	"math/big"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/tickwatch/tickwatch/internal/domain"
)

// rawLog is the shape of an eth_subscription "logs" result.
type rawLog struct {
	Address          string   `json:"address"`
	Topics           []string `json:"topics"`
	Data             string   `json:"data"`
	BlockNumber      string   `json:"blockNumber"`
	TransactionHash  string   `json:"transactionHash"`
}

func parseRawLog(raw json.RawMessage) (rawLog, error) {
	var l rawLog
	if err := json.Unmarshal(raw, &l); err != nil {
		return rawLog{}, fmt.Errorf("decode log envelope: %w", err)
	}
	if len(l.Topics) == 0 {
		return rawLog{}, fmt.Errorf("log has no topics")
	}
	return l, nil
}

func (l rawLog) dataBytes() ([]byte, error) {
	data := strings.TrimPrefix(l.Data, "0x")
	return common.Hex2Bytes(data), nil
}

func (l rawLog) blockNumber() uint64 {
	s := strings.TrimPrefix(l.BlockNumber, "0x")
	n, err := strconv.ParseUint(s, 16, 64)
	if err != nil {
		return 0
	}
	return n
}

// Event topic0 signatures, computed once at package init so adapters can
// dispatch on raw log topics without recomputing keccak256 per log.
var (
	topicMint            = crypto.Keccak256Hash([]byte("Mint(address,address,int24,int24,uint128,uint256,uint256)")).Hex()
	topicBurn            = crypto.Keccak256Hash([]byte("Burn(address,int24,int24,uint128,uint256,uint256)")).Hex()
	topicModifyLiquidity = crypto.Keccak256Hash([]byte("ModifyLiquidity((bytes32,address,int24,int24,int256,int256))")).Hex()
	topicV4Mint          = crypto.Keccak256Hash([]byte("Mint(address,bytes32,int24,int24,int128)")).Hex()
)

// asTick converts an unpacked int24 ABI value to a tick index. go-ethereum
// only maps intN/uintN widths of exactly 8/16/32/64 to native Go integer
// types; int24 (and every other odd width) unpacks as *big.Int, so every
// tick value coming out of Unpack must be converted this way rather than
// asserted directly to int32.
func asTick(v any) int32 {
	return int32(v.(*big.Int).Int64())
}

func mustType(solType string) abi.Type {
	t, err := abi.NewType(solType, "", nil)
	if err != nil {
		panic("adapter: invalid ABI type " + solType + ": " + err.Error())
	}
	return t
}

var (
	addressType = mustType("address")
	int24Type   = mustType("int24")
	int128Type  = mustType("int128")
	int256Type  = mustType("int256")
	uint128Type = mustType("uint128")
	uint256Type = mustType("uint256")
	bytes32Type = mustType("bytes32")
)

var mintArgs = abi.Arguments{
	{Type: addressType}, {Type: addressType}, {Type: int24Type}, {Type: int24Type},
	{Type: uint128Type}, {Type: uint256Type}, {Type: uint256Type},
}

var burnArgs = abi.Arguments{
	{Type: addressType}, {Type: int24Type}, {Type: int24Type},
	{Type: uint128Type}, {Type: uint256Type}, {Type: uint256Type},
}

var modifyLiquidityArgs = abi.Arguments{
	{Type: bytes32Type}, {Type: addressType}, {Type: int24Type}, {Type: int24Type},
	{Type: int256Type}, {Type: int256Type},
}

var v4MintArgs = abi.Arguments{
	{Type: addressType}, {Type: bytes32Type}, {Type: int24Type}, {Type: int24Type}, {Type: int128Type},
}

// decodeMintLike decodes a Mint-like (lower_tick, upper_tick, amount) log
// body into a positive-liquidity event. Returns an error on malformed
// bodies, which callers drop silently (§4.C, §7).
func decodeMintLike(l rawLog) (domain.LiquidityDeltaEvent, error) {
	data, _ := l.dataBytes()
	values, err := mintArgs.Unpack(data)
	if err != nil || len(values) != len(mintArgs) {
		return domain.LiquidityDeltaEvent{}, fmt.Errorf("decode Mint body: %w", err)
	}
	lowerTick := asTick(values[2])
	upperTick := asTick(values[3])
	amount := new(big.Int).Set(values[4].(*big.Int))
	return domain.LiquidityDeltaEvent{
		TxHash:         l.TransactionHash,
		LowerTick:      lowerTick,
		UpperTick:      upperTick,
		LiquidityDelta: amount,
		BlockNumber:    l.blockNumber(),
		ReceivedAt:     time.Now(),
		Kind:           domain.EventMint,
	}, nil
}

// decodeBurnLike decodes a Burn-like log body into a negative-liquidity
// event (amount negated per §3).
func decodeBurnLike(l rawLog) (domain.LiquidityDeltaEvent, error) {
	data, _ := l.dataBytes()
	values, err := burnArgs.Unpack(data)
	if err != nil || len(values) != len(burnArgs) {
		return domain.LiquidityDeltaEvent{}, fmt.Errorf("decode Burn body: %w", err)
	}
	lowerTick := asTick(values[1])
	upperTick := asTick(values[2])
	amount := new(big.Int).Neg(values[3].(*big.Int))
	return domain.LiquidityDeltaEvent{
		TxHash:         l.TransactionHash,
		LowerTick:      lowerTick,
		UpperTick:      upperTick,
		LiquidityDelta: amount,
		BlockNumber:    l.blockNumber(),
		ReceivedAt:     time.Now(),
		Kind:           domain.EventBurn,
	}, nil
}

// decodeModifyLiquidity decodes a V4 ModifyLiquidity log, returning
// ok=false (no error) when the embedded pool id doesn't match ours — an
// unrelated-pool event in the PoolManager singleton is dropped silently,
// not treated as malformed (§4.C).
func decodeModifyLiquidity(l rawLog, wantPoolID [32]byte) (event domain.LiquidityDeltaEvent, ok bool, err error) {
	data, _ := l.dataBytes()
	values, err := modifyLiquidityArgs.Unpack(data)
	if err != nil || len(values) != len(modifyLiquidityArgs) {
		return domain.LiquidityDeltaEvent{}, false, fmt.Errorf("decode ModifyLiquidity body: %w", err)
	}
	poolID := values[0].([32]byte)
	if poolID != wantPoolID {
		return domain.LiquidityDeltaEvent{}, false, nil
	}
	lowerTick := asTick(values[2])
	upperTick := asTick(values[3])
	delta := new(big.Int).Set(values[4].(*big.Int))
	return domain.LiquidityDeltaEvent{
		TxHash:         l.TransactionHash,
		LowerTick:      lowerTick,
		UpperTick:      upperTick,
		LiquidityDelta: delta,
		BlockNumber:    l.blockNumber(),
		ReceivedAt:     time.Now(),
		Kind:           domain.EventModifyLiquidity,
	}, true, nil
}

// decodeV4Mint decodes the narrower V4 Mint(address,bytes32,int24,int24,int128)
// shape, applying the same pool-id filter as ModifyLiquidity.
func decodeV4Mint(l rawLog, wantPoolID [32]byte) (event domain.LiquidityDeltaEvent, ok bool, err error) {
	data, _ := l.dataBytes()
	values, err := v4MintArgs.Unpack(data)
	if err != nil || len(values) != len(v4MintArgs) {
		return domain.LiquidityDeltaEvent{}, false, fmt.Errorf("decode V4 Mint body: %w", err)
	}
	poolID := values[1].([32]byte)
	if poolID != wantPoolID {
		return domain.LiquidityDeltaEvent{}, false, nil
	}
	lowerTick := asTick(values[2])
	upperTick := asTick(values[3])
	delta := new(big.Int).Set(values[4].(*big.Int))
	return domain.LiquidityDeltaEvent{
		TxHash:         l.TransactionHash,
		LowerTick:      lowerTick,
		UpperTick:      upperTick,
		LiquidityDelta: delta,
		BlockNumber:    l.blockNumber(),
		ReceivedAt:     time.Now(),
		Kind:           domain.EventMint,
	}, true, nil
}

// hexToPoolID parses a 0x-prefixed 32-byte hex pool id.
func hexToPoolID(hex string) ([32]byte, error) {
	var id [32]byte
	b := common.Hex2Bytes(strings.TrimPrefix(hex, "0x"))
	if len(b) != 32 {
		return id, fmt.Errorf("pool id must be 32 bytes, got %d", len(b))
	}
	copy(id[:], b)
	return id, nil
}
