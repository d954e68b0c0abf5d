package blocksource

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	rpccoretypes "github.com/cometbft/cometbft/rpc/core/types"
	cmttypes "github.com/cometbft/cometbft/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeEvents struct {
	ch      chan rpccoretypes.ResultEvent
	stopped atomic.Bool
}

func (f *fakeEvents) Start() error { return nil }

func (f *fakeEvents) Stop() error {
	f.stopped.Store(true)
	return nil
}

func (f *fakeEvents) Subscribe(context.Context, string, string, ...int) (<-chan rpccoretypes.ResultEvent, error) {
	return f.ch, nil
}

func (f *fakeEvents) UnsubscribeAll(context.Context, string) error { return nil }

func newBlockEvent(height int64) rpccoretypes.ResultEvent {
	return rpccoretypes.ResultEvent{
		Query: newBlockQuery,
		Data:  cmttypes.EventDataNewBlock{Block: &cmttypes.Block{Header: cmttypes.Header{Height: height}}},
	}
}

func TestBlockHeight(t *testing.T) {
	h, ok := blockHeight(newBlockEvent(42))
	require.True(t, ok)
	assert.Equal(t, int64(42), h)

	ptr := &cmttypes.EventDataNewBlock{Block: &cmttypes.Block{Header: cmttypes.Header{Height: 7}}}
	h, ok = blockHeight(rpccoretypes.ResultEvent{Data: ptr})
	require.True(t, ok)
	assert.Equal(t, int64(7), h)

	_, ok = blockHeight(rpccoretypes.ResultEvent{Data: cmttypes.EventDataNewBlock{}})
	assert.False(t, ok)
	_, ok = blockHeight(rpccoretypes.ResultEvent{Data: cmttypes.EventDataNewRound{Height: 3}})
	assert.False(t, ok)
}

func TestHeadWatcherDeliversHeights(t *testing.T) {
	client := &fakeEvents{ch: make(chan rpccoretypes.ResultEvent, 4)}
	var (
		mu      sync.Mutex
		heights []int64
	)
	w := NewHeadWatcher("", "", func(h int64) {
		mu.Lock()
		heights = append(heights, h)
		mu.Unlock()
	}, nil)
	w.dial = func() (eventClient, error) { return client, nil }

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	client.ch <- newBlockEvent(10)
	client.ch <- newBlockEvent(11)
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(heights) == 2
	}, time.Second, time.Millisecond)

	cancel()
	require.NoError(t, <-done)
	assert.Equal(t, []int64{10, 11}, heights)
	assert.True(t, client.stopped.Load())
}

func TestHeadWatcherReconnectsWhenQuiet(t *testing.T) {
	var dials atomic.Int32
	w := NewHeadWatcher("", "", func(int64) {}, nil)
	w.staleAfter = 15 * time.Millisecond
	w.retryDelay = time.Millisecond
	w.dial = func() (eventClient, error) {
		dials.Add(1)
		return &fakeEvents{ch: make(chan rpccoretypes.ResultEvent)}, nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = w.Run(ctx) }()

	require.Eventually(t, func() bool { return dials.Load() >= 3 }, 2*time.Second, time.Millisecond)
}
