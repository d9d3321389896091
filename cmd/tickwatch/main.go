package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/joho/godotenv"
	"golang.org/x/time/rate"

	"github.com/tickwatch/tickwatch/internal/adapter"
	"github.com/tickwatch/tickwatch/internal/config"
	"github.com/tickwatch/tickwatch/internal/db"
	"github.com/tickwatch/tickwatch/internal/ingest"
	"github.com/tickwatch/tickwatch/internal/state"
	"github.com/tickwatch/tickwatch/pkg/rpcbatch"
)

func main() {
	_ = godotenv.Load() // optional local .env carrying RPC credentials

	configPath := "config.yml"
	if len(os.Args) > 1 {
		configPath = os.Args[1]
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		panic(err)
	}

	client, err := ethclient.Dial(cfg.Chain.RPCURL)
	if err != nil {
		panic(err)
	}

	limiter := rate.NewLimiter(rate.Limit(20), 1)
	rpc, err := rpcbatch.New(client, common.HexToAddress(cfg.Chain.MulticallAddress), limiter)
	if err != nil {
		panic(err)
	}

	proto, err := buildAdapter(cfg, rpc)
	if err != nil {
		panic(err)
	}

	ctx := context.Background()
	snapshot, err := proto.FetchSnapshot(ctx)
	if err != nil {
		panic(fmt.Errorf("initial snapshot fetch failed: %w", err))
	}
	machine := state.New(snapshot)

	var recorder *db.SnapshotAuditRecorder
	if dsn := os.Getenv("TICKWATCH_MYSQL_DSN"); dsn != "" {
		recorder, err = db.NewSnapshotAuditRecorder(dsn)
		if err != nil {
			panic(err)
		}
		defer recorder.Close()
	}

	events, err := ingest.Run(ctx, proto, machine)
	if err != nil {
		panic(err)
	}

	go func() {
		for e := range events {
			if recorder != nil {
				if err := recorder.RecordEvent(cfg.Pool.PoolAddress, e); err != nil {
					fmt.Printf("tickwatch: failed to record event: %s\n", err)
				}
			}
		}
	}()

	renderLoop(machine, recorder, cfg.Pool.PoolAddress)
}

func buildAdapter(cfg *config.Config, rpc *rpcbatch.Client) (adapter.ProtocolAdapter, error) {
	pool := common.HexToAddress(cfg.Pool.PoolAddress)
	switch cfg.Pool.Protocol {
	case "uniswap_v3":
		return adapter.NewV3Adapter(rpc, pool, cfg.Chain.WSSURL, cfg.Pool.Token0Decimals, cfg.Pool.Token1Decimals), nil
	case "pancake_v3":
		tickLens := common.HexToAddress(cfg.Pool.TickLensAddress)
		return adapter.NewPancakeV3Adapter(rpc, pool, tickLens, cfg.Chain.WSSURL, cfg.Pool.Token0Decimals, cfg.Pool.Token1Decimals), nil
	case "uniswap_v4":
		return adapter.NewV4Adapter(rpc, pool, cfg.Pool.PoolID, cfg.Chain.WSSURL, cfg.Pool.Token0Decimals, cfg.Pool.Token1Decimals)
	default:
		return nil, fmt.Errorf("tickwatch: unknown protocol %q", cfg.Pool.Protocol)
	}
}

// renderLoop prints the buy-wall depth table to stdout roughly every
// second, in the teacher's fmt.Printf register; the real rendering
// surface is out of this module's scope.
func renderLoop(machine *state.Machine, recorder *db.SnapshotAuditRecorder, poolAddress string) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for range ticker.C {
		depths := machine.BuyWallDepth()

		fmt.Printf("--- buy wall depth (%d buckets) ---\n", len(depths))
		for _, d := range depths {
			fmt.Printf("%s: %.4f\n", d.BucketLabel, d.Depth)
		}

		if recorder != nil {
			if err := recorder.RecordDepthPoll(poolAddress, time.Now(), depths); err != nil {
				fmt.Printf("tickwatch: failed to record depth poll: %s\n", err)
			}
		}
	}
}
