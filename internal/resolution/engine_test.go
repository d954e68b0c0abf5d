package resolution

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"blockguess/internal/blocksource"
	"blockguess/internal/game"
	"blockguess/internal/models"
	"blockguess/internal/store"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testHeight int64 = 900000

type fakeSource struct {
	mu        sync.Mutex
	hash      string
	hashErr   error
	txids     []string
	txErr     error
	hashCalls int
	txCalls   int
}

func (f *fakeSource) BlockHashAtHeight(_ context.Context, height int64) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.hashCalls++
	if f.hashErr != nil {
		return "", f.hashErr
	}
	if f.hash == "" || height != testHeight {
		return "", blocksource.ErrBlockNotFound
	}
	return f.hash, nil
}

func (f *fakeSource) TransactionIDsForBlock(_ context.Context, hash string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.txCalls++
	if f.txErr != nil {
		return nil, f.txErr
	}
	return f.txids, nil
}

func (f *fakeSource) mine(hash string, txCount int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.hash = hash
	f.txids = make([]string, txCount)
	for i := range f.txids {
		f.txids[i] = hash[:8]
	}
}

func (f *fakeSource) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.hashCalls
}

type recordingAlerter struct {
	mu       sync.Mutex
	subjects []string
}

func (r *recordingAlerter) Alert(_ context.Context, subject, _ string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.subjects = append(r.subjects, subject)
	return nil
}

type fixture struct {
	games  *game.Manager
	st     store.Store
	clock  *clockwork.FakeClock
	source *fakeSource
	alerts *recordingAlerter
	engine *Engine
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	st := store.NewMemory(nil)
	clock := clockwork.NewFakeClockAt(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	games := game.NewManager(game.Static{S: st}, game.WithClock(clock))
	t.Cleanup(games.Close)

	f := &fixture{games: games, st: st, clock: clock, source: &fakeSource{}, alerts: &recordingAlerter{}}
	e, err := New(games, f.source, append([]Option{WithAlerter(f.alerts)}, opts...)...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = e.Close() })
	f.engine = e
	return f
}

func (f *fixture) openRound(t *testing.T, guesses ...models.Guess) models.Round {
	t.Helper()
	ctx := context.Background()
	h := testHeight
	round, err := f.games.CreateRound(ctx, 1, 10, "0.01 BTC", &h)
	require.NoError(t, err)
	for _, g := range guesses {
		_, err := f.games.SubmitGuess(ctx, round.ID, g.UserID, g.DisplayName, g.Value, "")
		require.NoError(t, err)
		f.clock.Advance(time.Second)
	}
	return round
}

func (f *fixture) count(eventType string) int {
	n := 0
	for e := range f.st.Logs().All() {
		if e.Type == eventType {
			n++
		}
	}
	return n
}

func (f *fixture) winnerMessages() []models.ChatMessage {
	var out []models.ChatMessage
	for m := range f.st.ChatMessages().All() {
		if m.Kind == models.KindWinner {
			out = append(out, m)
		}
	}
	return out
}

const blockHash = "00000000000000000002a7c4c1e48d76c5a37902165a270156b7a8d72728a054"

func TestTickNotMinedIsNoop(t *testing.T) {
	f := newFixture(t)
	round := f.openRound(t)

	require.NoError(t, f.engine.Tick(context.Background(), round.ID))

	got, ok := f.games.Round(round.ID)
	require.True(t, ok)
	assert.Equal(t, models.RoundOpen, got.Status)
	assert.Equal(t, 1, f.source.calls())
	assert.Empty(t, f.winnerMessages())
}

func TestTickResolvesWinner(t *testing.T) {
	f := newFixture(t)
	round := f.openRound(t,
		models.Guess{UserID: "A", DisplayName: "alice", Value: 100},
		models.Guess{UserID: "B", Value: 105},
		models.Guess{UserID: "C", Value: 95},
	)
	f.source.mine(blockHash, 100)

	require.NoError(t, f.engine.Tick(context.Background(), round.ID))

	got, _ := f.games.Round(round.ID)
	assert.Equal(t, models.RoundFinished, got.Status)
	require.NotNil(t, got.ActualTxCount)
	assert.Equal(t, int64(100), *got.ActualTxCount)
	require.NotNil(t, got.WinningUser)
	assert.Equal(t, "A", *got.WinningUser)
	require.NotNil(t, got.BlockHash)
	assert.Equal(t, blockHash, *got.BlockHash)

	msgs := f.winnerMessages()
	require.Len(t, msgs, 1)
	assert.Equal(t, models.GlobalChannel, msgs[0].RoundID)
	assert.Equal(t, AnnouncerID, msgs[0].AuthorID)
	assert.Contains(t, msgs[0].Text, "alice")
	assert.Equal(t, 1, f.count(models.EventRoundEnded))
}

func TestTickTieGoesToEarliest(t *testing.T) {
	f := newFixture(t)
	round := f.openRound(t,
		models.Guess{UserID: "A", Value: 90},
		models.Guess{UserID: "B", Value: 110},
	)
	f.source.mine(blockHash, 100)

	require.NoError(t, f.engine.Tick(context.Background(), round.ID))

	got, _ := f.games.Round(round.ID)
	require.NotNil(t, got.WinningUser)
	assert.Equal(t, "A", *got.WinningUser)
}

func TestTickWithoutGuesses(t *testing.T) {
	f := newFixture(t)
	round := f.openRound(t)
	f.source.mine(blockHash, 12)

	require.NoError(t, f.engine.Tick(context.Background(), round.ID))

	got, _ := f.games.Round(round.ID)
	assert.Equal(t, models.RoundFinished, got.Status)
	require.NotNil(t, got.WinningUser)
	assert.Equal(t, models.NoWinner, *got.WinningUser)
	assert.Len(t, f.winnerMessages(), 1)
}

func TestDoubleTickFinalizesOnce(t *testing.T) {
	f := newFixture(t)
	round := f.openRound(t, models.Guess{UserID: "A", Value: 10})
	f.source.mine(blockHash, 10)

	ctx := context.Background()
	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, f.engine.Tick(ctx, round.ID))
		}()
	}
	wg.Wait()
	require.NoError(t, f.engine.Tick(ctx, round.ID))

	assert.Equal(t, 1, f.count(models.EventRoundFinished))
	assert.Len(t, f.winnerMessages(), 1)
}

func TestTickSkipsClosedRound(t *testing.T) {
	f := newFixture(t)
	round := f.openRound(t)
	require.NoError(t, f.games.EndRoundManually(context.Background(), round.ID))
	f.source.mine(blockHash, 5)

	require.NoError(t, f.engine.Tick(context.Background(), round.ID))

	got, _ := f.games.Round(round.ID)
	assert.Equal(t, models.RoundClosed, got.Status)
	assert.Zero(t, f.source.calls())
}

func TestTickUpstreamErrorKeepsRoundOpen(t *testing.T) {
	f := newFixture(t)
	round := f.openRound(t)
	f.source.hashErr = errors.New("connection refused")

	err := f.engine.Tick(context.Background(), round.ID)
	require.Error(t, err)

	got, _ := f.games.Round(round.ID)
	assert.Equal(t, models.RoundOpen, got.Status)
	assert.Empty(t, f.alerts.subjects)
}

func TestTransactionFailureLeavesRoundStuck(t *testing.T) {
	f := newFixture(t)
	round := f.openRound(t, models.Guess{UserID: "A", Value: 10})
	f.source.mine(blockHash, 10)
	f.source.txErr = errors.New("esplora: 502")

	err := f.engine.Tick(context.Background(), round.ID)
	require.Error(t, err)

	got, _ := f.games.Round(round.ID)
	assert.Equal(t, models.RoundClosed, got.Status)
	assert.Zero(t, f.count(models.EventRoundFinished))
	require.Len(t, f.alerts.subjects, 1)
	assert.Contains(t, f.alerts.subjects[0], "stuck")

	// polling is over for this round; a later tick does nothing
	require.NoError(t, f.engine.Tick(context.Background(), round.ID))
	assert.Equal(t, 1, f.source.txCalls)

	// manual resolve recovers it
	f.source.txErr = nil
	require.NoError(t, f.engine.Resolve(context.Background(), round.ID))
	got, _ = f.games.Round(round.ID)
	assert.Equal(t, models.RoundFinished, got.Status)
	assert.Len(t, f.winnerMessages(), 1)
}

func TestResolveRefusals(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	assert.ErrorIs(t, f.engine.Resolve(ctx, 42), ErrUnknownRound)

	noTarget, err := f.games.CreateRound(ctx, 1, 10, "", nil)
	require.NoError(t, err)
	assert.ErrorIs(t, f.engine.Resolve(ctx, noTarget.ID), ErrNoTarget)
	require.NoError(t, f.games.EndRoundManually(ctx, noTarget.ID))

	round := f.openRound(t)
	assert.ErrorIs(t, f.engine.Resolve(ctx, round.ID), blocksource.ErrBlockNotFound)

	f.source.mine(blockHash, 3)
	require.NoError(t, f.engine.Resolve(ctx, round.ID))
	assert.ErrorIs(t, f.engine.Resolve(ctx, round.ID), ErrAlreadyFinished)
}

func TestEnginePollsOpenRound(t *testing.T) {
	f := newFixture(t, WithInterval(10*time.Millisecond))
	require.NoError(t, f.engine.Start(context.Background()))

	round := f.openRound(t, models.Guess{UserID: "A", Value: 7})
	require.Eventually(t, func() bool { return f.engine.Polling(round.ID) }, 2*time.Second, 5*time.Millisecond)
	require.Eventually(t, func() bool { return f.source.calls() >= 2 }, 2*time.Second, 5*time.Millisecond)

	f.source.mine(blockHash, 7)
	require.Eventually(t, func() bool {
		got, _ := f.games.Round(round.ID)
		return got.Status == models.RoundFinished
	}, 2*time.Second, 5*time.Millisecond)
	require.Eventually(t, func() bool { return !f.engine.Polling(round.ID) }, 2*time.Second, 5*time.Millisecond)

	calls := f.source.calls()
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, calls, f.source.calls())
	assert.Equal(t, 1, f.count(models.EventRoundFinished))
}

func TestEngineStopsPollingWhenRoundEnded(t *testing.T) {
	f := newFixture(t, WithInterval(10*time.Millisecond))
	require.NoError(t, f.engine.Start(context.Background()))

	round := f.openRound(t)
	require.Eventually(t, func() bool { return f.engine.Polling(round.ID) }, 2*time.Second, 5*time.Millisecond)

	require.NoError(t, f.games.EndRoundManually(context.Background(), round.ID))
	require.Eventually(t, func() bool { return !f.engine.Polling(round.ID) }, 2*time.Second, 5*time.Millisecond)
}

func TestBlockSeenTriggersImmediateCheck(t *testing.T) {
	f := newFixture(t, WithInterval(time.Hour))
	require.NoError(t, f.engine.Start(context.Background()))

	round := f.openRound(t, models.Guess{UserID: "A", Value: 3})
	require.Eventually(t, func() bool { return f.engine.Polling(round.ID) }, 2*time.Second, 5*time.Millisecond)
	require.Eventually(t, func() bool { return f.source.calls() == 1 }, 2*time.Second, 5*time.Millisecond)

	f.engine.BlockSeen(testHeight - 1)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 1, f.source.calls())

	f.source.mine(blockHash, 3)
	f.engine.BlockSeen(testHeight)
	require.Eventually(t, func() bool {
		got, _ := f.games.Round(round.ID)
		return got.Status == models.RoundFinished
	}, 2*time.Second, 5*time.Millisecond)
}
