package blocksource

import (
	"context"
	"encoding/hex"
	"fmt"
	"strings"

	rpchttp "github.com/cometbft/cometbft/rpc/client/http"
	rpccoretypes "github.com/cometbft/cometbft/rpc/core/types"
)

// blockClient is the part of the CometBFT RPC client used here.
type blockClient interface {
	Status(ctx context.Context) (*rpccoretypes.ResultStatus, error)
	Block(ctx context.Context, height *int64) (*rpccoretypes.ResultBlock, error)
	BlockByHash(ctx context.Context, hash []byte) (*rpccoretypes.ResultBlock, error)
}

// CometBFT reads blocks from a CometBFT node over RPC.
type CometBFT struct {
	client blockClient
}

// NewCometBFT creates a client. rpchttp.New takes RPC base URL and WS path
// separately; only plain RPC calls are made, so the client is never started.
func NewCometBFT(rpcURL, wsPath string) (*CometBFT, error) {
	c, err := rpchttp.New(rpcURL, wsPath)
	if err != nil {
		return nil, fmt.Errorf("create rpc client: %w", err)
	}
	return &CometBFT{client: c}, nil
}

func (c *CometBFT) BlockHashAtHeight(ctx context.Context, height int64) (string, error) {
	if height <= 0 {
		return "", fmt.Errorf("invalid height %d", height)
	}
	// Asking for a future height is an RPC error; compare against the tip first
	status, err := c.client.Status(ctx)
	if err != nil {
		return "", upstream("status", err)
	}
	if status.SyncInfo.LatestBlockHeight < height {
		return "", ErrBlockNotFound
	}

	res, err := c.client.Block(ctx, &height)
	if err != nil {
		return "", upstream("block", err)
	}
	if res == nil || res.Block == nil {
		return "", ErrBlockNotFound
	}
	return res.BlockID.Hash.String(), nil
}

func (c *CometBFT) TransactionIDsForBlock(ctx context.Context, hash string) ([]string, error) {
	raw, err := hex.DecodeString(strings.TrimPrefix(strings.ToLower(hash), "0x"))
	if err != nil {
		return nil, fmt.Errorf("decode block hash %q: %w", hash, err)
	}
	res, err := c.client.BlockByHash(ctx, raw)
	if err != nil {
		return nil, upstream("block_by_hash", err)
	}
	if res == nil || res.Block == nil {
		return nil, ErrBlockNotFound
	}
	ids := make([]string, 0, len(res.Block.Data.Txs))
	for _, tx := range res.Block.Data.Txs {
		ids = append(ids, fmt.Sprintf("%X", tx.Hash()))
	}
	return ids, nil
}
