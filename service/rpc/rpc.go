package rpc

import (
	"context"
	"time"

	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/truly-video/go-truly/env"
)

func init() {
	env.RegisterValidation("RPC_URL", "required")
}

const defaultDialTimeout = 10 * time.Second

// NewEthClient returns an RPC client connected to the configured EVM node
func NewEthClient() *ethclient.Client {
	ctx, cancel := context.WithTimeout(context.Background(), defaultDialTimeout)
	defer cancel()

	client, err := ethclient.DialContext(ctx, env.GetString("RPC_URL"))
	if err != nil {
		panic(err)
	}
	return client
}
