package adapter

import (
	"context"
	"math/big"
	"strings"
	"testing"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"github.com/tickwatch/tickwatch/pkg/rpcbatch"
)

// aggregateOutputsABIJSON is a standalone copy of the Multicall2 aggregate
// ABI used only to pack fixture responses for these tests; rpcbatch's
// own copy is unexported.
const aggregateOutputsABIJSON = `[{
	"inputs":[],
	"name":"aggregate",
	"outputs":[{"internalType":"uint256","name":"blockNumber","type":"uint256"},{"internalType":"bytes[]","name":"returnData","type":"bytes[]"}],
	"stateMutability":"nonpayable",
	"type":"function"
}]`

// fakeSequentialClient replies to successive CallContract invocations
// with successive fixture responses, mirroring how a real aggregator
// would answer the adapter's slot0/tickSpacing call, then its bitmap
// sweep, then its per-tick fetch, as three separate RPC round trips.
type fakeSequentialClient struct {
	t         *testing.T
	responses [][]byte
	call      int
}

func (f *fakeSequentialClient) CallContract(ctx context.Context, call ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
	f.t.Helper()
	require.Less(f.t, f.call, len(f.responses), "unexpected extra aggregate call")
	resp := f.responses[f.call]
	f.call++
	return resp, nil
}

func packAggregate(t *testing.T, returnData [][]byte) []byte {
	t.Helper()
	parsed, err := abi.JSON(strings.NewReader(aggregateOutputsABIJSON))
	require.NoError(t, err)
	packed, err := parsed.Methods["aggregate"].Outputs.Pack(big.NewInt(1), returnData)
	require.NoError(t, err)
	return packed
}

func newFakeRPCClient(t *testing.T, responses [][]byte) *rpcbatch.Client {
	t.Helper()
	c, err := rpcbatch.New(&fakeSequentialClient{t: t, responses: responses}, common.HexToAddress("0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"), nil)
	require.NoError(t, err)
	return c
}
