package blocksource

import (
	"context"
	"errors"
	"testing"

	rpccoretypes "github.com/cometbft/cometbft/rpc/core/types"
	cmttypes "github.com/cometbft/cometbft/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeNode struct {
	latest    int64
	statusErr error
	block     *cmttypes.Block
	hash      []byte
}

func (f *fakeNode) Status(context.Context) (*rpccoretypes.ResultStatus, error) {
	if f.statusErr != nil {
		return nil, f.statusErr
	}
	return &rpccoretypes.ResultStatus{SyncInfo: rpccoretypes.SyncInfo{LatestBlockHeight: f.latest}}, nil
}

func (f *fakeNode) Block(_ context.Context, height *int64) (*rpccoretypes.ResultBlock, error) {
	return &rpccoretypes.ResultBlock{BlockID: cmttypes.BlockID{Hash: f.hash}, Block: f.block}, nil
}

func (f *fakeNode) BlockByHash(_ context.Context, hash []byte) (*rpccoretypes.ResultBlock, error) {
	if string(hash) != string(f.hash) {
		return &rpccoretypes.ResultBlock{}, nil
	}
	return &rpccoretypes.ResultBlock{BlockID: cmttypes.BlockID{Hash: f.hash}, Block: f.block}, nil
}

func TestCometBFTSource(t *testing.T) {
	node := &fakeNode{
		latest: 50,
		hash:   []byte{0xAB, 0xCD, 0xEF},
		block: &cmttypes.Block{Data: cmttypes.Data{Txs: cmttypes.Txs{
			cmttypes.Tx("tx-one"),
			cmttypes.Tx("tx-two"),
		}}},
	}
	src := &CometBFT{client: node}
	ctx := context.Background()

	_, err := src.BlockHashAtHeight(ctx, 51)
	assert.ErrorIs(t, err, ErrBlockNotFound)

	hash, err := src.BlockHashAtHeight(ctx, 50)
	require.NoError(t, err)
	assert.Equal(t, "ABCDEF", hash)

	ids, err := src.TransactionIDsForBlock(ctx, hash)
	require.NoError(t, err)
	require.Len(t, ids, 2)
	assert.Len(t, ids[0], 64)

	_, err = src.TransactionIDsForBlock(ctx, "0102")
	assert.ErrorIs(t, err, ErrBlockNotFound)

	node.statusErr = errors.New("connection refused")
	_, err = src.BlockHashAtHeight(ctx, 50)
	var upErr *UpstreamError
	assert.True(t, errors.As(err, &upErr))
}
