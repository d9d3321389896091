package adapter

import (
	"encoding/json"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tickwatch/tickwatch/internal/domain"
)

func packedLog(t *testing.T, args interface{ Pack(...any) ([]byte, error) }, values ...any) string {
	t.Helper()
	data, err := args.Pack(values...)
	require.NoError(t, err)
	return "0x" + common.Bytes2Hex(data)
}

func rawLogJSON(t *testing.T, topic0 string, data string) json.RawMessage {
	t.Helper()
	raw := rawLog{
		Topics:          []string{topic0},
		Data:            data,
		TransactionHash: "0xabc",
		BlockNumber:     "0x2a",
	}
	b, err := json.Marshal(raw)
	require.NoError(t, err)
	return b
}

func TestDecodeMintLikeExtractsTicksAndPositiveLiquidity(t *testing.T) {
	data := packedLog(t, mintArgs,
		common.HexToAddress("0x1"), common.HexToAddress("0x2"),
		big.NewInt(-600), big.NewInt(600), big.NewInt(1_000_000), big.NewInt(1), big.NewInt(2))

	msg := rawLogJSON(t, topicMint, data)
	l, err := parseRawLog(msg)
	require.NoError(t, err)

	event, err := decodeMintLike(l)
	require.NoError(t, err)
	assert.Equal(t, int32(-600), event.LowerTick)
	assert.Equal(t, int32(600), event.UpperTick)
	assert.Equal(t, big.NewInt(1_000_000), event.LiquidityDelta)
	assert.Equal(t, domain.EventMint, event.Kind)
	assert.Equal(t, uint64(42), event.BlockNumber)
}

func TestDecodeBurnLikeNegatesLiquidity(t *testing.T) {
	data := packedLog(t, burnArgs,
		common.HexToAddress("0x1"), big.NewInt(-600), big.NewInt(600),
		big.NewInt(1_000_000), big.NewInt(1), big.NewInt(2))

	msg := rawLogJSON(t, topicBurn, data)
	l, err := parseRawLog(msg)
	require.NoError(t, err)

	event, err := decodeBurnLike(l)
	require.NoError(t, err)
	assert.Equal(t, big.NewInt(-1_000_000), event.LiquidityDelta)
	assert.Equal(t, domain.EventBurn, event.Kind)
}

func TestDecodeMintLikeRejectsTruncatedBody(t *testing.T) {
	l := rawLog{Topics: []string{topicMint}, Data: "0x1234"}
	_, err := decodeMintLike(l)
	assert.Error(t, err)
}

func TestDecodeModifyLiquidityDropsUnrelatedPoolSilently(t *testing.T) {
	var ourPoolIDBytes [32]byte
	ourPoolIDBytes[31] = 0x01
	ourPoolID, err := hexToPoolID("0x" + common.Bytes2Hex(ourPoolIDBytes[:]))
	require.NoError(t, err)

	var theirPoolID [32]byte
	theirPoolID[31] = 0x02

	data := packedLog(t, modifyLiquidityArgs,
		theirPoolID, common.HexToAddress("0x1"), big.NewInt(-60), big.NewInt(60),
		big.NewInt(500), big.NewInt(0))
	l := rawLog{Topics: []string{topicModifyLiquidity}, Data: data, TransactionHash: "0xabc"}

	_, ok, err := decodeModifyLiquidity(l, ourPoolID)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestDecodeModifyLiquidityMatchesOurPool(t *testing.T) {
	var poolID [32]byte
	poolID[31] = 0x09

	data := packedLog(t, modifyLiquidityArgs,
		poolID, common.HexToAddress("0x1"), big.NewInt(-120), big.NewInt(180),
		big.NewInt(-250), big.NewInt(0))
	l := rawLog{Topics: []string{topicModifyLiquidity}, Data: data, TransactionHash: "0xdef", BlockNumber: "0x5"}

	event, ok, err := decodeModifyLiquidity(l, poolID)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, int32(-120), event.LowerTick)
	assert.Equal(t, int32(180), event.UpperTick)
	assert.Equal(t, big.NewInt(-250), event.LiquidityDelta)
	assert.Equal(t, domain.EventModifyLiquidity, event.Kind)
}

func TestDecodeV4MintMatchesOurPool(t *testing.T) {
	var poolID [32]byte
	poolID[31] = 0x07

	data := packedLog(t, v4MintArgs,
		common.HexToAddress("0x1"), poolID, big.NewInt(-60), big.NewInt(60), big.NewInt(42))
	l := rawLog{Topics: []string{topicV4Mint}, Data: data, TransactionHash: "0x1", BlockNumber: "0x1"}

	event, ok, err := decodeV4Mint(l, poolID)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, big.NewInt(42), event.LiquidityDelta)
	assert.Equal(t, domain.EventMint, event.Kind)
}

func TestHexToPoolIDRejectsWrongLength(t *testing.T) {
	_, err := hexToPoolID("0x1234")
	assert.Error(t, err)
}
