package adapter

import (
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// int16Type and addrType are the Solidity types the adapters pack call
// input with; int16Type is the one decode.go's set for log bodies lacks,
// and addrType is the same type as decode.go's addressType.
var (
	int16Type = mustType("int16")
	addrType  = mustType("address")
)

// selector4 returns the first 4 bytes of keccak256(signature), the
// standard Solidity function selector.
func selector4(signature string) []byte {
	return crypto.Keccak256([]byte(signature))[:4]
}

func encodeCallNoArgs(signature string) []byte {
	return selector4(signature)
}

func encodeCallInt16(signature string, arg int32) ([]byte, error) {
	packed, err := abi.Arguments{{Type: int16Type}}.Pack(int16(arg))
	if err != nil {
		return nil, err
	}
	return append(selector4(signature), packed...), nil
}

func encodeCallInt24(signature string, arg int32) ([]byte, error) {
	packed, err := abi.Arguments{{Type: int24Type}}.Pack(big.NewInt(int64(arg)))
	if err != nil {
		return nil, err
	}
	return append(selector4(signature), packed...), nil
}

func encodeCallAddressInt16(signature string, address common.Address, word int32) ([]byte, error) {
	packed, err := abi.Arguments{{Type: addrType}, {Type: int16Type}}.Pack(address, int16(word))
	if err != nil {
		return nil, err
	}
	return append(selector4(signature), packed...), nil
}

func encodeCallBytes32(signature string, poolID [32]byte) ([]byte, error) {
	packed, err := abi.Arguments{{Type: bytes32Type}}.Pack(poolID)
	if err != nil {
		return nil, err
	}
	return append(selector4(signature), packed...), nil
}

func encodeCallBytes32Int24(signature string, poolID [32]byte, tick int32) ([]byte, error) {
	packed, err := abi.Arguments{{Type: bytes32Type}, {Type: int24Type}}.Pack(poolID, big.NewInt(int64(tick)))
	if err != nil {
		return nil, err
	}
	return append(selector4(signature), packed...), nil
}
