// Package game implements the round lifecycle: validated reducers that
// enforce the round invariants and write through the table store.
package game

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"blockguess/internal/chatfeed"
	"blockguess/internal/logger"
	"blockguess/internal/models"
	"blockguess/internal/store"

	"github.com/jonboulle/clockwork"
	"github.com/shopspring/decimal"
)

// DefaultMaxGuess bounds guess values when no limit is configured.
const DefaultMaxGuess int64 = 100000

// Provider hands out the store, connecting on first use.
type Provider interface {
	Store(ctx context.Context) (store.Store, error)
}

// Static wraps an already open store.
type Static struct {
	S store.Store
}

func (s Static) Store(context.Context) (store.Store, error) { return s.S, nil }

// Option configures a Manager.
type Option func(*Manager)

// WithClock replaces the wall clock.
func WithClock(c clockwork.Clock) Option {
	return func(m *Manager) { m.clock = c }
}

// WithMaxGuess sets the largest accepted guess.
func WithMaxGuess(max int64) Option {
	return func(m *Manager) {
		if max > 0 {
			m.maxGuess = max
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *logger.Logger) Option {
	return func(m *Manager) { m.log = l }
}

// Manager is the only writer of the game tables. Reducers are serialized so
// check-then-write sequences are atomic.
type Manager struct {
	provider Provider
	clock    clockwork.Clock
	maxGuess int64
	log      *logger.Logger

	mu    sync.Mutex // serializes reducers
	bound sync.RWMutex
	st    store.Store
	feed  *chatfeed.Feed
}

// NewManager creates a manager over the given store provider.
func NewManager(p Provider, opts ...Option) *Manager {
	m := &Manager{
		provider: p,
		clock:    clockwork.NewRealClock(),
		maxGuess: DefaultMaxGuess,
		log:      logger.Nop(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Store returns the bound store, connecting through the provider if needed.
func (m *Manager) Store(ctx context.Context) (store.Store, error) {
	m.bound.RLock()
	st := m.st
	m.bound.RUnlock()
	if st != nil {
		return st, nil
	}

	st, err := m.provider.Store(ctx)
	if err != nil {
		return nil, err
	}

	m.bound.Lock()
	defer m.bound.Unlock()
	if m.st == nil {
		m.st = st
		m.feed = chatfeed.New(st.ChatMessages(), chatfeed.DefaultCapacity)
	}
	return m.st, nil
}

// current returns the bound store without connecting.
func (m *Manager) current() (store.Store, *chatfeed.Feed) {
	m.bound.RLock()
	defer m.bound.RUnlock()
	return m.st, m.feed
}

// Close releases subscriptions held by the manager. The store itself belongs
// to the provider.
func (m *Manager) Close() {
	m.bound.Lock()
	defer m.bound.Unlock()
	if m.feed != nil {
		m.feed.Close()
		m.feed = nil
	}
	m.st = nil
}

// Now returns the manager's clock reading.
func (m *Manager) Now() time.Time {
	return m.clock.Now()
}

// MaxGuess returns the largest accepted guess.
func (m *Manager) MaxGuess() int64 {
	return m.maxGuess
}

// CreateRound opens a new round lasting durationMinutes.
func (m *Manager) CreateRound(ctx context.Context, number, durationMinutes int, prize string, targetBlock *int64) (models.Round, error) {
	if durationMinutes <= 0 {
		return models.Round{}, invalid(ErrInvalidDuration, fmt.Sprintf("got %d minutes", durationMinutes))
	}
	if targetBlock != nil && *targetBlock < 0 {
		return models.Round{}, invalid(ErrInvalidTarget, fmt.Sprintf("got %d", *targetBlock))
	}
	st, err := m.Store(ctx)
	if err != nil {
		return models.Round{}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if open, ok := activeRound(st); ok {
		return models.Round{}, refuse(ErrRoundAlreadyOpen, open.ID)
	}

	now := m.clock.Now()
	duration := time.Duration(durationMinutes) * time.Minute
	round := models.Round{
		Number:    number,
		StartTime: now,
		EndTime:   now.Add(duration),
		Duration:  duration,
		Prize:     prize,
		Status:    models.RoundOpen,
		CreatedAt: now,
	}
	if targetBlock != nil {
		target := *targetBlock
		round.TargetBlock = &target
	}

	id, err := st.Rounds().Insert(round)
	if err != nil {
		return models.Round{}, fmt.Errorf("create round: %w", err)
	}
	round.ID = id

	m.appendLog(st, models.EventRoundCreated, fmt.Sprintf("round #%d (id %d) open until %s, target block %s",
		number, id, round.EndTime.UTC().Format(time.RFC3339), formatTarget(round.TargetBlock)))
	return round, nil
}

// SubmitGuess records userID's guess for the round. Checks run in order and
// the first failure wins; nothing is written on failure.
func (m *Manager) SubmitGuess(ctx context.Context, roundID uint64, userID, displayName string, value int64, avatar string) (models.Guess, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return models.Guess{}, invalid(ErrMissingUser, "")
	}
	st, err := m.Store(ctx)
	if err != nil {
		return models.Guess{}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	round, ok := st.Rounds().Get(roundID)
	if !ok {
		return models.Guess{}, refuse(ErrRoundNotFound, roundID)
	}
	if round.Status != models.RoundOpen {
		return models.Guess{}, refuse(ErrRoundNotOpen, roundID)
	}
	now := m.clock.Now()
	if !round.IsOpen(now) {
		return models.Guess{}, refuse(ErrRoundExpired, roundID)
	}
	for g := range st.Guesses().All() {
		if g.RoundID == roundID && g.UserID == userID {
			return models.Guess{}, refuse(ErrDuplicateGuess, roundID)
		}
	}
	if value < 0 || value > m.maxGuess {
		return models.Guess{}, invalid(ErrInvalidGuessValue, fmt.Sprintf("%d not in 0..%d", value, m.maxGuess))
	}

	guess := models.Guess{
		RoundID:     roundID,
		UserID:      userID,
		DisplayName: displayName,
		Value:       value,
		Avatar:      avatar,
		SubmittedAt: now,
	}
	id, err := st.Guesses().Insert(guess)
	if err != nil {
		return models.Guess{}, fmt.Errorf("submit guess: %w", err)
	}
	guess.ID = id

	m.appendLog(st, models.EventGuessSubmitted, fmt.Sprintf("%s guessed %d for round %d", userID, value, roundID))
	return guess, nil
}

// EndRoundManually closes an open round. It is not idempotent: ending a
// round that is no longer open is refused.
func (m *Manager) EndRoundManually(ctx context.Context, roundID uint64) error {
	st, err := m.Store(ctx)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	round, ok := st.Rounds().Get(roundID)
	if !ok {
		return refuse(ErrRoundNotFound, roundID)
	}
	if round.Status != models.RoundOpen {
		return refuse(ErrRoundNotOpen, roundID)
	}

	round.Status = models.RoundClosed
	if err := st.Rounds().Update(roundID, round); err != nil {
		return fmt.Errorf("end round: %w", err)
	}

	m.appendLog(st, models.EventRoundEnded, fmt.Sprintf("round #%d (id %d) closed", round.Number, roundID))
	return nil
}

// UpdateRoundResult finishes a round with its observed result. A round that
// is already finished is refused, so results are written at most once.
func (m *Manager) UpdateRoundResult(ctx context.Context, roundID uint64, actualTxCount int64, blockHash, winningUserID string) error {
	st, err := m.Store(ctx)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	round, ok := st.Rounds().Get(roundID)
	if !ok {
		return refuse(ErrRoundNotFound, roundID)
	}
	if round.Finished() {
		return refuse(ErrRoundAlreadyFinished, roundID)
	}

	round.Status = models.RoundFinished
	round.ActualTxCount = &actualTxCount
	round.BlockHash = &blockHash
	round.WinningUser = &winningUserID
	if err := st.Rounds().Update(roundID, round); err != nil {
		return fmt.Errorf("update round result: %w", err)
	}

	m.appendLog(st, models.EventRoundFinished, fmt.Sprintf("round #%d (id %d) finished: tx=%d block=%s winner=%s",
		round.Number, roundID, actualTxCount, blockHash, winningUserID))
	return nil
}

// AddChatMessage stores a chat message stamped with the manager's clock. A
// missing kind defaults to chat.
func (m *Manager) AddChatMessage(ctx context.Context, msg models.ChatMessage) (models.ChatMessage, error) {
	msg.Text = strings.TrimSpace(msg.Text)
	if msg.Text == "" {
		return models.ChatMessage{}, invalid(ErrEmptyMessage, "")
	}
	st, err := m.Store(ctx)
	if err != nil {
		return models.ChatMessage{}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	msg.Timestamp = m.clock.Now()
	if msg.Kind == "" {
		msg.Kind = models.KindChat
	}
	id, err := st.ChatMessages().Insert(msg)
	if err != nil {
		return models.ChatMessage{}, fmt.Errorf("add chat message: %w", err)
	}
	msg.ID = id

	m.appendLog(st, models.EventChatMessage, fmt.Sprintf("%s message %d from %s in round %d", msg.Kind, id, msg.AuthorID, msg.RoundID))
	return msg, nil
}

// SavePrizeConfiguration inserts the first prize configuration or updates the
// existing one.
func (m *Manager) SavePrizeConfiguration(ctx context.Context, jackpot, first, second decimal.Decimal, currency, tokenRef string) (models.PrizeConfig, error) {
	for _, amount := range []decimal.Decimal{jackpot, first, second} {
		if amount.IsNegative() {
			return models.PrizeConfig{}, invalid(ErrInvalidPrize, amount.String())
		}
	}
	st, err := m.Store(ctx)
	if err != nil {
		return models.PrizeConfig{}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	cfg := models.PrizeConfig{
		Jackpot:   jackpot,
		First:     first,
		Second:    second,
		Currency:  strings.ToUpper(strings.TrimSpace(currency)),
		TokenRef:  strings.TrimSpace(tokenRef),
		UpdatedAt: m.clock.Now(),
	}

	if existing, ok := latestPrize(st); ok {
		if err := st.PrizeConfig().Update(existing.ID, cfg); err != nil {
			return models.PrizeConfig{}, fmt.Errorf("save prize configuration: %w", err)
		}
		cfg.ID = existing.ID
	} else {
		id, err := st.PrizeConfig().Insert(cfg)
		if err != nil {
			return models.PrizeConfig{}, fmt.Errorf("save prize configuration: %w", err)
		}
		cfg.ID = id
	}

	m.appendLog(st, models.EventPrizeUpdated, fmt.Sprintf("jackpot=%s first=%s second=%s %s",
		cfg.Jackpot, cfg.First, cfg.Second, cfg.Currency))
	return cfg, nil
}

// appendLog writes the audit entry for a reducer that already succeeded. A
// failing audit write is logged, not returned.
func (m *Manager) appendLog(st store.Store, eventType, details string) {
	_, err := st.Logs().Insert(models.LogEvent{
		Type:      eventType,
		Details:   details,
		Timestamp: m.clock.Now(),
	})
	if err != nil {
		m.log.Errorf("audit log %s: %v", eventType, err)
		return
	}
	m.log.Debugf("%s: %s", eventType, details)
}

func formatTarget(target *int64) string {
	if target == nil {
		return "none"
	}
	return fmt.Sprintf("%d", *target)
}
