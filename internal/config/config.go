// Package config loads the YAML configuration describing which chain
// endpoint, aggregator contract and pool to watch.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config is the root of config.yml.
type Config struct {
	Chain ChainConfig `yaml:"chain"`
	Pool  PoolConfig  `yaml:"pool"`
}

// ChainConfig describes the RPC endpoints and the read-only aggregator
// contract every protocol adapter batches its calls through.
type ChainConfig struct {
	Name             string `yaml:"name"` // display label only, no effect on wiring
	RPCURL           string `yaml:"rpc_url"`
	WSSURL           string `yaml:"wss_url"`
	MulticallAddress string `yaml:"multicall_address"`
}

// PoolConfig describes the single pool this process watches (§1: no
// multi-pool fan-out).
type PoolConfig struct {
	PoolAddress     string `yaml:"pool_address"`
	Protocol        string `yaml:"protocol"` // one of uniswap_v3, uniswap_v4, pancake_v3
	PoolID          string `yaml:"pool_id"`  // 32-byte hex, v4 only
	Token0Decimals  uint8  `yaml:"token0_decimals"`
	Token1Decimals  uint8  `yaml:"token1_decimals"`
	Fee             uint32 `yaml:"fee"` // pool fee tier, informational only
	TickLensAddress string `yaml:"tick_lens_address"` // pancake_v3 only
}

// Load reads path, applies RPCURL/WSSURL overrides from the
// TICKWATCH_RPC_URL/TICKWATCH_WSS_URL environment variables (mirroring
// how the teacher reads its chain secrets from the environment rather
// than committing them to YAML), then validates.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config YAML: %w", err)
	}

	if v := os.Getenv("TICKWATCH_RPC_URL"); v != "" {
		cfg.Chain.RPCURL = v
	}
	if v := os.Getenv("TICKWATCH_WSS_URL"); v != "" {
		cfg.Chain.WSSURL = v
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.Chain.MulticallAddress == "" {
		return fmt.Errorf("config: chain.multicall_address is required")
	}
	if c.Pool.PoolAddress == "" {
		return fmt.Errorf("config: pool.pool_address is required")
	}
	switch c.Pool.Protocol {
	case "uniswap_v3", "uniswap_v4", "pancake_v3":
	default:
		return fmt.Errorf("config: pool.protocol must be one of uniswap_v3, uniswap_v4, pancake_v3, got %q", c.Pool.Protocol)
	}
	if c.Pool.Protocol == "uniswap_v4" && c.Pool.PoolID == "" {
		return fmt.Errorf("config: pool.pool_id is required for protocol uniswap_v4")
	}
	if c.Pool.Protocol == "pancake_v3" && c.Pool.TickLensAddress == "" {
		return fmt.Errorf("config: pool.tick_lens_address is required for protocol pancake_v3")
	}
	return nil
}
