package tui

import (
	"context"
	"time"

	"blockguess/internal/models"
	"blockguess/internal/store"
	"blockguess/internal/table"
)

// Snapshot is everything the dashboard shows at one instant.
type Snapshot struct {
	Now       time.Time
	Connected bool
	Round     models.Round
	HasRound  bool
	Guesses   []models.Guess
	Chat      []models.ChatMessage
	Prize     models.PrizeConfig
	HasPrize  bool
}

// Reader is the read side of the round manager.
type Reader interface {
	Now() time.Time
	ActiveRound() (models.Round, bool)
	LatestRound() (models.Round, bool)
	GuessesForRound(roundID uint64) []models.Guess
	RecentChat() []models.ChatMessage
	PrizeConfig() (models.PrizeConfig, bool)
}

// Connectivity reports the store link state.
type Connectivity interface {
	Connected() bool
	Observe(fn func(connected bool)) func()
}

// Capture reads a snapshot. The active round is preferred; otherwise the
// most recent round is shown with its result.
func Capture(r Reader, connected bool) Snapshot {
	s := Snapshot{Now: r.Now(), Connected: connected}
	if round, ok := r.ActiveRound(); ok {
		s.Round, s.HasRound = round, true
	} else if round, ok := r.LatestRound(); ok {
		s.Round, s.HasRound = round, true
	}
	if s.HasRound {
		s.Guesses = r.GuessesForRound(s.Round.ID)
	}
	s.Chat = r.RecentChat()
	s.Prize, s.HasPrize = r.PrizeConfig()
	return s
}

// Source is a Reader that can hand out its backing store.
type Source interface {
	Reader
	Store(ctx context.Context) (store.Store, error)
}

// Bridge turns table notifications and connectivity changes into a stream
// of snapshots. Bursts of notifications collapse into one snapshot.
type Bridge struct {
	games    Source
	conn     Connectivity
	out      chan Snapshot
	wake     chan struct{}
	attached bool
	unsub    []table.Unsubscribe
}

// NewBridge follows conn right away. The table subscriptions are taken by
// Run once conn reports connected, so the bridge can start before the store
// is reachable.
func NewBridge(games Source, conn Connectivity) *Bridge {
	b := &Bridge{
		games: games,
		conn:  conn,
		out:   make(chan Snapshot, 1),
		wake:  make(chan struct{}, 1),
	}
	if conn != nil {
		b.unsub = append(b.unsub, table.Unsubscribe(conn.Observe(func(bool) { b.poke() })))
	}
	return b
}

func (b *Bridge) attach(ctx context.Context) {
	st, err := b.games.Store(ctx)
	if err != nil {
		return
	}
	b.attached = true
	b.unsub = append(b.unsub,
		st.Rounds().SubscribeInsert(table.InsertFunc[models.Round](func(models.Round) { b.poke() })),
		st.Rounds().SubscribeUpdate(table.UpdateFunc[models.Round](func(_, _ models.Round) { b.poke() })),
		st.Guesses().SubscribeInsert(table.InsertFunc[models.Guess](func(models.Guess) { b.poke() })),
		st.ChatMessages().SubscribeInsert(table.InsertFunc[models.ChatMessage](func(models.ChatMessage) { b.poke() })),
		st.PrizeConfig().SubscribeInsert(table.InsertFunc[models.PrizeConfig](func(models.PrizeConfig) { b.poke() })),
		st.PrizeConfig().SubscribeUpdate(table.UpdateFunc[models.PrizeConfig](func(_, _ models.PrizeConfig) { b.poke() })),
	)
}

func (b *Bridge) poke() {
	select {
	case b.wake <- struct{}{}:
	default:
	}
}

// Updates is closed when Run returns.
func (b *Bridge) Updates() <-chan Snapshot {
	return b.out
}

// Run emits a snapshot on every change and at least once per refresh so
// countdowns keep moving. While disconnected it keeps emitting snapshots
// with Connected false. It unsubscribes and closes Updates on return.
func (b *Bridge) Run(ctx context.Context, refresh time.Duration) {
	defer func() {
		for _, u := range b.unsub {
			u()
		}
		close(b.out)
	}()

	ticker := time.NewTicker(refresh)
	defer ticker.Stop()

	b.emit(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-b.wake:
		case <-ticker.C:
		}
		b.emit(ctx)
	}
}

func (b *Bridge) emit(ctx context.Context) {
	connected := true
	if b.conn != nil {
		connected = b.conn.Connected()
	}
	if connected && !b.attached {
		b.attach(ctx)
	}
	snap := Capture(b.games, connected)
	select {
	case b.out <- snap:
	case <-ctx.Done():
	}
}
