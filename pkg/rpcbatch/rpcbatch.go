// Package rpcbatch packs ordered read-only contract calls into a single
// aggregate JSON-RPC round trip via a Multicall2-style aggregator
// contract, and decodes the per-call return bytes in order.
package rpcbatch

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/time/rate"
)

// aggregateABIJSON is the Multicall2 aggregate((address,bytes)[]) ABI —
// the only function this package needs from the aggregator contract.
const aggregateABIJSON = `[{
	"inputs":[{"components":[{"internalType":"address","name":"target","type":"address"},{"internalType":"bytes","name":"callData","type":"bytes"}],"internalType":"struct Multicall2.Call[]","name":"calls","type":"tuple[]"}],
	"name":"aggregate",
	"outputs":[{"internalType":"uint256","name":"blockNumber","type":"uint256"},{"internalType":"bytes[]","name":"returnData","type":"bytes[]"}],
	"stateMutability":"nonpayable",
	"type":"function"
}]`

// CallerClient is the subset of ethclient.Client this package depends on,
// narrowed so tests can supply a fake.
type CallerClient interface {
	CallContract(ctx context.Context, call ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
}

// Call is one logical read-only call: a target contract, its ABI-encoded
// input, and the decoder to apply to that call's slice of return bytes.
type Call struct {
	Target common.Address
	Data   []byte
	Decode func([]byte) (any, error)
}

// Client issues aggregated calls against a Multicall2-style contract.
type Client struct {
	eth        CallerClient
	aggregator common.Address
	aggABI     abi.ABI
	limiter    *rate.Limiter
}

// New builds a batch-call client. limiter may be nil to disable pacing.
func New(eth CallerClient, aggregatorAddress common.Address, limiter *rate.Limiter) (*Client, error) {
	parsed, err := abi.JSON(strings.NewReader(aggregateABIJSON))
	if err != nil {
		return nil, fmt.Errorf("rpcbatch: parse aggregate ABI: %w", err)
	}
	return &Client{eth: eth, aggregator: aggregatorAddress, aggABI: parsed, limiter: limiter}, nil
}

// aggregateCall mirrors the Multicall2.Call tuple.
type aggregateCall struct {
	Target   common.Address
	CallData []byte
}

// Aggregate executes every call in one RPC and returns the per-call
// decoded results in the same order. A single RPC failure fails the
// whole batch; callers own retry policy. Empty input issues no request.
func (c *Client) Aggregate(ctx context.Context, calls []Call) ([]any, error) {
	if len(calls) == 0 {
		return nil, nil
	}
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rpcbatch: rate limiter: %w", err)
		}
	}

	tuples := make([]aggregateCall, len(calls))
	for i, call := range calls {
		tuples[i] = aggregateCall{Target: call.Target, CallData: call.Data}
	}

	input, err := c.aggABI.Pack("aggregate", tuples)
	if err != nil {
		return nil, fmt.Errorf("rpcbatch: pack aggregate call: %w", err)
	}

	raw, err := c.eth.CallContract(ctx, ethereum.CallMsg{To: &c.aggregator, Data: input}, nil)
	if err != nil {
		return nil, fmt.Errorf("rpcbatch: aggregate RPC failed for %d calls: %w", len(calls), err)
	}

	outputs, err := c.aggABI.Unpack("aggregate", raw)
	if err != nil {
		return nil, fmt.Errorf("rpcbatch: unpack aggregate response: %w", err)
	}
	if len(outputs) != 2 {
		return nil, fmt.Errorf("rpcbatch: unexpected aggregate output shape: %d fields", len(outputs))
	}
	returnData, ok := outputs[1].([][]byte)
	if !ok {
		return nil, fmt.Errorf("rpcbatch: unexpected returnData type %T", outputs[1])
	}
	if len(returnData) != len(calls) {
		return nil, fmt.Errorf("rpcbatch: aggregate returned %d results, expected %d", len(returnData), len(calls))
	}

	results := make([]any, len(calls))
	for i, call := range calls {
		decoded, err := call.Decode(returnData[i])
		if err != nil {
			return nil, fmt.Errorf("rpcbatch: decode call %d (target %s): %w", i, call.Target.Hex(), err)
		}
		results[i] = decoded
	}
	return results, nil
}

// Chunk splits calls into batches of at most size, preserving order, so
// callers can pace large sweeps within the chain's per-call gas limit
// (typical: 80-200 calls/chunk for tick reads, 200 for bitmap reads).
func Chunk(calls []Call, size int) [][]Call {
	if size <= 0 {
		size = len(calls)
	}
	var chunks [][]Call
	for start := 0; start < len(calls); start += size {
		end := start + size
		if end > len(calls) {
			end = len(calls)
		}
		chunks = append(chunks, calls[start:end])
	}
	return chunks
}

// AggregateChunked runs Chunk then Aggregate over each chunk in order,
// concatenating decoded outputs.
func (c *Client) AggregateChunked(ctx context.Context, calls []Call, chunkSize int) ([]any, error) {
	var results []any
	for _, chunk := range Chunk(calls, chunkSize) {
		decoded, err := c.Aggregate(ctx, chunk)
		if err != nil {
			return nil, err
		}
		results = append(results, decoded...)
	}
	return results, nil
}
