package blocksource

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"blockguess/internal/logger"

	rpchttp "github.com/cometbft/cometbft/rpc/client/http"
	rpccoretypes "github.com/cometbft/cometbft/rpc/core/types"
	cmttypes "github.com/cometbft/cometbft/types"
	"github.com/google/uuid"
)

const (
	// DefaultStaleAfter is how long the stream may stay quiet before reconnecting.
	DefaultStaleAfter = 30 * time.Second

	newBlockQuery = "tm.event = 'NewBlock'"
)

var errStale = errors.New("reconnect: no blocks received")

// eventClient is the websocket side of the CometBFT RPC client.
type eventClient interface {
	Start() error
	Stop() error
	Subscribe(ctx context.Context, subscriber, query string, outCapacity ...int) (<-chan rpccoretypes.ResultEvent, error)
	UnsubscribeAll(ctx context.Context, subscriber string) error
}

// HeadWatcher follows new block heights over the node's websocket so rounds
// can be checked as soon as their block lands, ahead of the next poll.
type HeadWatcher struct {
	dial       func() (eventClient, error)
	onHeight   func(height int64)
	subscriber string
	staleAfter time.Duration
	retryDelay time.Duration
	log        *logger.Logger

	mu        sync.Mutex
	lastBlock time.Time
}

// NewHeadWatcher creates a watcher calling onHeight for every new block.
func NewHeadWatcher(rpcURL, wsPath string, onHeight func(height int64), log *logger.Logger) *HeadWatcher {
	if log == nil {
		log = logger.Nop()
	}
	return &HeadWatcher{
		dial: func() (eventClient, error) {
			return rpchttp.New(rpcURL, wsPath)
		},
		onHeight:   onHeight,
		subscriber: "blockguess-" + uuid.NewString(),
		staleAfter: DefaultStaleAfter,
		retryDelay: 3 * time.Second,
		log:        log,
	}
}

// Run keeps a subscription alive until ctx is done, reconnecting when the
// stream errors or goes quiet.
func (w *HeadWatcher) Run(ctx context.Context) error {
	for {
		err := w.watch(ctx)
		if ctx.Err() != nil {
			return nil
		}
		// Only log actual errors, not planned reconnects
		if !errors.Is(err, errStale) {
			w.log.Warnf("head watch: %v, reconnecting", err)
		} else {
			w.log.Infof("no blocks for %s, reconnecting websocket", w.staleAfter)
		}
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(w.retryDelay):
		}
	}
}

func (w *HeadWatcher) watch(ctx context.Context) error {
	client, err := w.dial()
	if err != nil {
		return fmt.Errorf("create rpc client: %w", err)
	}
	if err := client.Start(); err != nil {
		return fmt.Errorf("start rpc client: %w", err)
	}
	defer func() {
		unsubCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = client.UnsubscribeAll(unsubCtx, w.subscriber)
		_ = client.Stop()
	}()

	events, err := client.Subscribe(ctx, w.subscriber, newBlockQuery, 100)
	if err != nil {
		return fmt.Errorf("subscribe NewBlock: %w", err)
	}
	w.touch()

	watchdog := time.NewTicker(max(w.staleAfter/3, time.Millisecond))
	defer watchdog.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-events:
			if !ok {
				return errors.New("NewBlock event channel closed")
			}
			if height, ok := blockHeight(ev); ok {
				w.touch()
				w.onHeight(height)
			}
		case <-watchdog.C:
			if w.stale() {
				return errStale
			}
		}
	}
}

func (w *HeadWatcher) touch() {
	w.mu.Lock()
	w.lastBlock = time.Now()
	w.mu.Unlock()
}

func (w *HeadWatcher) stale() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return time.Since(w.lastBlock) > w.staleAfter
}

// blockHeight extracts the height from a NewBlock event.
func blockHeight(ev rpccoretypes.ResultEvent) (int64, bool) {
	var blk *cmttypes.Block
	switch data := ev.Data.(type) {
	case cmttypes.EventDataNewBlock:
		blk = data.Block
	case *cmttypes.EventDataNewBlock:
		if data != nil {
			blk = data.Block
		}
	}
	if blk == nil || blk.Header.Height == 0 {
		return 0, false
	}
	return blk.Header.Height, true
}
