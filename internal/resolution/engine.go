// Package resolution watches the open round, polls the block source for its
// target block and finalizes the round once the block exists.
package resolution

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"blockguess/internal/alert"
	"blockguess/internal/blocksource"
	"blockguess/internal/game"
	"blockguess/internal/logger"
	"blockguess/internal/models"
	"blockguess/internal/table"

	"github.com/go-co-op/gocron/v2"
)

// DefaultInterval is the polling period for a round's target block.
const DefaultInterval = 30 * time.Second

// Author fields of winner announcements.
const (
	AnnouncerID   = "system"
	AnnouncerName = "Round bot"
)

var (
	ErrAlreadyFinished = errors.New("round already finished")
	ErrNoTarget        = errors.New("round has no target block")
	ErrUnknownRound    = errors.New("round not found")
)

// Option configures an Engine.
type Option func(*Engine)

// WithInterval sets the polling period.
func WithInterval(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.interval = d
		}
	}
}

func WithLogger(l *logger.Logger) Option { return func(e *Engine) { e.log = l } }
func WithAlerter(a alert.Alerter) Option { return func(e *Engine) { e.alert = a } }

// Engine owns one polling job per open round with a target block.
type Engine struct {
	games    *game.Manager
	source   blocksource.Source
	interval time.Duration
	log      *logger.Logger
	alert    alert.Alerter
	sched    gocron.Scheduler

	tickMu sync.Mutex // ticks never overlap

	mu      sync.Mutex
	jobs    map[uint64]gocron.Job
	pending map[uint64]struct{}
	wake    chan struct{}
	unsub   []table.Unsubscribe
	runCtx  context.Context
	stop    context.CancelFunc
	done    chan struct{}
}

// New creates an engine. Call Start to begin watching rounds.
func New(games *game.Manager, source blocksource.Source, opts ...Option) (*Engine, error) {
	e := &Engine{
		games:    games,
		source:   source,
		interval: DefaultInterval,
		log:      logger.Nop(),
		jobs:     map[uint64]gocron.Job{},
		pending:  map[uint64]struct{}{},
		wake:     make(chan struct{}, 1),
		runCtx:   context.Background(),
	}
	for _, opt := range opts {
		opt(e)
	}

	sched, err := gocron.NewScheduler(
		gocron.WithLogger(logger.Scheduler{L: e.log}),
		gocron.WithStopTimeout(5*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("create scheduler: %w", err)
	}
	e.sched = sched
	return e, nil
}

// Start subscribes to the rounds table and begins polling for the open round.
// Table callbacks only queue round ids; jobs are managed by a separate
// goroutine so nothing blocks inside a notification.
func (e *Engine) Start(ctx context.Context) error {
	st, err := e.games.Store(ctx)
	if err != nil {
		return fmt.Errorf("start resolution: %w", err)
	}

	runCtx, stop := context.WithCancel(ctx)
	e.mu.Lock()
	e.runCtx, e.stop = runCtx, stop
	e.done = make(chan struct{})
	e.unsub = append(e.unsub,
		st.Rounds().SubscribeInsert(table.InsertFunc[models.Round](func(r models.Round) {
			e.enqueue(r.ID)
		})),
		st.Rounds().SubscribeUpdate(table.UpdateFunc[models.Round](func(_, r models.Round) {
			e.enqueue(r.ID)
		})),
	)
	e.mu.Unlock()

	for r := range st.Rounds().All() {
		switch r.Status {
		case models.RoundOpen:
			e.enqueue(r.ID)
		case models.RoundClosed:
			e.log.Warnf("round %d is closed without a result", r.ID)
		}
	}

	e.sched.Start()
	go e.loop(runCtx)
	return nil
}

func (e *Engine) enqueue(roundID uint64) {
	e.mu.Lock()
	e.pending[roundID] = struct{}{}
	e.mu.Unlock()

	select {
	case e.wake <- struct{}{}:
	default:
	}
}

func (e *Engine) loop(ctx context.Context) {
	defer close(e.done)
	for {
		select {
		case <-ctx.Done():
			return
		case <-e.wake:
			e.mu.Lock()
			ids := make([]uint64, 0, len(e.pending))
			for id := range e.pending {
				ids = append(ids, id)
			}
			clear(e.pending)
			e.mu.Unlock()

			for _, id := range ids {
				e.watch(id)
			}
		}
	}
}

// watch starts polling for an open round with a target and stops it otherwise.
func (e *Engine) watch(roundID uint64) {
	round, ok := e.games.Round(roundID)
	if ok && round.Status == models.RoundOpen && round.TargetBlock != nil {
		e.schedule(roundID)
		return
	}
	e.cancel(roundID)
}

func (e *Engine) schedule(roundID uint64) {
	e.mu.Lock()
	_, running := e.jobs[roundID]
	ctx := e.runCtx
	e.mu.Unlock()
	if running {
		return
	}

	// Only the watch loop schedules, so the check above cannot race another
	// schedule call for the same round.
	job, err := e.sched.NewJob(
		gocron.DurationJob(e.interval),
		gocron.NewTask(func() {
			if err := e.Tick(ctx, roundID); err != nil {
				e.log.Warnf("tick round %d: %v", roundID, err)
			}
		}),
		gocron.WithName(fmt.Sprintf("round-%d", roundID)),
		gocron.WithStartAt(gocron.WithStartImmediately()),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		e.log.Errorf("schedule round %d: %v", roundID, err)
		return
	}

	e.mu.Lock()
	e.jobs[roundID] = job
	e.mu.Unlock()
	e.log.Debugf("polling round %d every %s", roundID, e.interval)
}

func (e *Engine) cancel(roundID uint64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	job, ok := e.jobs[roundID]
	if !ok {
		return
	}
	delete(e.jobs, roundID)
	if err := e.sched.RemoveJob(job.ID()); err != nil && !errors.Is(err, gocron.ErrJobNotFound) {
		e.log.Warnf("remove job for round %d: %v", roundID, err)
	}
	e.log.Debugf("stopped polling round %d", roundID)
}

// Polling reports whether a job is active for the round.
func (e *Engine) Polling(roundID uint64) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, ok := e.jobs[roundID]
	return ok
}

// BlockSeen runs the polling job right away for every watched round whose
// target is at or below height. It is fed by a chain head subscription.
func (e *Engine) BlockSeen(height int64) {
	e.mu.Lock()
	due := make(map[uint64]gocron.Job, len(e.jobs))
	for id, job := range e.jobs {
		due[id] = job
	}
	e.mu.Unlock()

	for id, job := range due {
		round, ok := e.games.Round(id)
		if !ok || round.TargetBlock == nil || *round.TargetBlock > height {
			continue
		}
		if err := job.RunNow(); err != nil {
			e.log.Warnf("run round %d now: %v", id, err)
		}
	}
}

// Tick runs one polling step. A round that is no longer open, or has no
// target, stops being polled. A block that is not mined yet is not an error.
// Once the block exists polling stops for good, whatever happens next.
func (e *Engine) Tick(ctx context.Context, roundID uint64) error {
	e.tickMu.Lock()
	defer e.tickMu.Unlock()

	round, ok := e.games.Round(roundID)
	if !ok || round.Status != models.RoundOpen || round.TargetBlock == nil {
		e.cancel(roundID)
		return nil
	}

	hash, err := e.source.BlockHashAtHeight(ctx, *round.TargetBlock)
	if errors.Is(err, blocksource.ErrBlockNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("round %d: %w", roundID, err)
	}

	e.cancel(roundID)
	if err := e.games.EndRoundManually(ctx, roundID); err != nil {
		e.stuck(ctx, round, err)
		return fmt.Errorf("round %d: %w", roundID, err)
	}
	return e.finalize(ctx, roundID, hash)
}

// Resolve finalizes a round right away. Unlike Tick it also accepts a round
// that is already closed, which is how a stuck round is recovered.
func (e *Engine) Resolve(ctx context.Context, roundID uint64) error {
	e.tickMu.Lock()
	defer e.tickMu.Unlock()

	round, ok := e.games.Round(roundID)
	switch {
	case !ok:
		return fmt.Errorf("resolve %d: %w", roundID, ErrUnknownRound)
	case round.Finished():
		return fmt.Errorf("resolve %d: %w", roundID, ErrAlreadyFinished)
	case round.TargetBlock == nil:
		return fmt.Errorf("resolve %d: %w", roundID, ErrNoTarget)
	}

	hash, err := e.source.BlockHashAtHeight(ctx, *round.TargetBlock)
	if err != nil {
		return fmt.Errorf("resolve %d: %w", roundID, err)
	}

	e.cancel(roundID)
	if round.Status == models.RoundOpen {
		if err := e.games.EndRoundManually(ctx, roundID); err != nil {
			return fmt.Errorf("resolve %d: %w", roundID, err)
		}
	}
	return e.finalize(ctx, roundID, hash)
}

// finalize writes the result of a closed round and announces the winner.
// Callers hold tickMu, so the status check and the write cannot interleave
// with another finalization.
func (e *Engine) finalize(ctx context.Context, roundID uint64, hash string) error {
	round, ok := e.games.Round(roundID)
	if !ok || round.Status != models.RoundClosed {
		return nil
	}

	txids, err := e.source.TransactionIDsForBlock(ctx, hash)
	if err != nil {
		e.stuck(ctx, round, err)
		return fmt.Errorf("round %d: %w", roundID, err)
	}
	actual := int64(len(txids))

	winner, found := SelectWinner(e.games.GuessesForRound(roundID), actual)
	winnerID := models.NoWinner
	if found {
		winnerID = winner.UserID
	}

	if err := e.games.UpdateRoundResult(ctx, roundID, actual, hash, winnerID); err != nil {
		e.stuck(ctx, round, err)
		return fmt.Errorf("round %d: %w", roundID, err)
	}
	e.log.Infof("round %d finished: tx=%d winner=%s", roundID, actual, winnerID)

	_, err = e.games.AddChatMessage(ctx, models.ChatMessage{
		RoundID:    models.GlobalChannel,
		AuthorID:   AnnouncerID,
		AuthorName: AnnouncerName,
		Text:       announcement(round, actual, hash, winner, found),
		Kind:       models.KindWinner,
	})
	if err != nil {
		return fmt.Errorf("announce round %d: %w", roundID, err)
	}
	return nil
}

func (e *Engine) stuck(ctx context.Context, round models.Round, cause error) {
	e.log.Errorf("round %d stuck: %v", round.ID, cause)
	if e.alert == nil {
		return
	}
	subject := fmt.Sprintf("round #%d stuck", round.Number)
	if err := e.alert.Alert(ctx, subject, fmt.Sprintf("round id %d needs a manual resolve: %v", round.ID, cause)); err != nil {
		e.log.Errorf("alert %q: %v", subject, err)
	}
}

// Close stops watching, removes all jobs and shuts the scheduler down.
func (e *Engine) Close() error {
	e.mu.Lock()
	stop, done, unsub := e.stop, e.done, e.unsub
	e.unsub = nil
	e.mu.Unlock()

	for _, u := range unsub {
		u()
	}
	if stop != nil {
		stop()
		<-done
	}

	e.mu.Lock()
	clear(e.jobs)
	e.mu.Unlock()
	return e.sched.Shutdown()
}
