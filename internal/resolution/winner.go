package resolution

import (
	"fmt"

	"blockguess/internal/models"
)

// SelectWinner returns the guess closest to actual. Ties go to the earliest
// submission, then to the lowest id. ok is false when there are no guesses.
func SelectWinner(guesses []models.Guess, actual int64) (winner models.Guess, ok bool) {
	for i, g := range guesses {
		if i == 0 || closer(g, winner, actual) {
			winner = g
		}
	}
	return winner, len(guesses) > 0
}

func closer(a, b models.Guess, actual int64) bool {
	da, db := distance(a.Value, actual), distance(b.Value, actual)
	if da != db {
		return da < db
	}
	if !a.SubmittedAt.Equal(b.SubmittedAt) {
		return a.SubmittedAt.Before(b.SubmittedAt)
	}
	return a.ID < b.ID
}

func distance(guess, actual int64) uint64 {
	if guess >= actual {
		return uint64(guess - actual)
	}
	return uint64(actual - guess)
}

func announcement(round models.Round, actual int64, hash string, winner models.Guess, found bool) string {
	head := fmt.Sprintf("Round #%d finished: block %d (%s) had %d transactions.",
		round.Number, *round.TargetBlock, shortHash(hash), actual)
	if !found {
		return head + " No guesses, no winner."
	}
	name := winner.DisplayName
	if name == "" {
		name = winner.UserID
	}
	off := distance(winner.Value, actual)
	if off == 0 {
		return fmt.Sprintf("%s Winner: %s with an exact guess of %d!", head, name, winner.Value)
	}
	return fmt.Sprintf("%s Winner: %s with %d (off by %d).", head, name, winner.Value, off)
}

func shortHash(h string) string {
	if len(h) <= 16 {
		return h
	}
	return h[:8] + "…" + h[len(h)-8:]
}
