package game

import (
	"slices"
	"sort"

	"blockguess/internal/models"
	"blockguess/internal/store"
)

// Reads never connect; before the store is bound they return empty results.

// ActiveRound returns the open round, if any.
func (m *Manager) ActiveRound() (models.Round, bool) {
	st, _ := m.current()
	if st == nil {
		return models.Round{}, false
	}
	return activeRound(st)
}

// Round returns the round with the given id.
func (m *Manager) Round(id uint64) (models.Round, bool) {
	st, _ := m.current()
	if st == nil {
		return models.Round{}, false
	}
	return st.Rounds().Get(id)
}

// Rounds returns every round in creation order.
func (m *Manager) Rounds() []models.Round {
	st, _ := m.current()
	if st == nil {
		return nil
	}
	return slices.Collect(st.Rounds().All())
}

// LatestRound returns the most recently created round.
func (m *Manager) LatestRound() (models.Round, bool) {
	rounds := m.Rounds()
	if len(rounds) == 0 {
		return models.Round{}, false
	}
	return rounds[len(rounds)-1], true
}

// GuessesForRound returns the round's guesses in submission order.
func (m *Manager) GuessesForRound(roundID uint64) []models.Guess {
	st, _ := m.current()
	if st == nil {
		return nil
	}
	var out []models.Guess
	for g := range st.Guesses().All() {
		if g.RoundID == roundID {
			out = append(out, g)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].SubmittedAt.Equal(out[j].SubmittedAt) {
			return out[i].SubmittedAt.Before(out[j].SubmittedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// RecentChat returns up to the last 100 chat messages, newest first.
func (m *Manager) RecentChat() []models.ChatMessage {
	_, feed := m.current()
	if feed == nil {
		return nil
	}
	return feed.Messages()
}

// Logs returns the audit trail in insertion order.
func (m *Manager) Logs() []models.LogEvent {
	st, _ := m.current()
	if st == nil {
		return nil
	}
	return slices.Collect(st.Logs().All())
}

// PrizeConfig returns the authoritative prize configuration.
func (m *Manager) PrizeConfig() (models.PrizeConfig, bool) {
	st, _ := m.current()
	if st == nil {
		return models.PrizeConfig{}, false
	}
	return latestPrize(st)
}

// activeRound is the first open round in table order.
func activeRound(st store.Store) (models.Round, bool) {
	for r := range st.Rounds().All() {
		if r.Status == models.RoundOpen {
			return r, true
		}
	}
	return models.Round{}, false
}

func latestPrize(st store.Store) (models.PrizeConfig, bool) {
	var (
		latest models.PrizeConfig
		found  bool
	)
	for p := range st.PrizeConfig().All() {
		latest, found = p, true
	}
	return latest, found
}
