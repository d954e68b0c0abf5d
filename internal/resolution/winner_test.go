package resolution

import (
	"testing"
	"time"

	"blockguess/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSelectWinner(t *testing.T) {
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	guess := func(id uint64, user string, value int64, offset time.Duration) models.Guess {
		return models.Guess{ID: id, UserID: user, Value: value, SubmittedAt: at.Add(offset)}
	}

	tests := []struct {
		name    string
		guesses []models.Guess
		actual  int64
		want    string
	}{
		{
			name:    "exact match",
			guesses: []models.Guess{guess(1, "A", 100, 0), guess(2, "B", 105, time.Second), guess(3, "C", 95, 2*time.Second)},
			actual:  100,
			want:    "A",
		},
		{
			name:    "tie goes to earlier submission",
			guesses: []models.Guess{guess(1, "A", 90, time.Second), guess(2, "B", 110, 0)},
			actual:  100,
			want:    "B",
		},
		{
			name:    "tie with same timestamp goes to lower id",
			guesses: []models.Guess{guess(7, "late", 110, 0), guess(3, "early", 90, 0)},
			actual:  100,
			want:    "early",
		},
		{
			name:    "closest below",
			guesses: []models.Guess{guess(1, "A", 0, 0), guess(2, "B", 2999, time.Second), guess(3, "C", 3002, 2*time.Second)},
			actual:  3000,
			want:    "B",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, ok := SelectWinner(tt.guesses, tt.actual)
			require.True(t, ok)
			assert.Equal(t, tt.want, w.UserID)
		})
	}
}

func TestSelectWinnerNoGuesses(t *testing.T) {
	_, ok := SelectWinner(nil, 100)
	assert.False(t, ok)
}

func TestAnnouncement(t *testing.T) {
	target := int64(850000)
	round := models.Round{Number: 4, TargetBlock: &target}
	hash := "00000000000000000002a7c4c1e48d76c5a37902165a270156b7a8d72728a054"

	msg := announcement(round, 3127, hash, models.Guess{UserID: "u1", DisplayName: "alice", Value: 3100}, true)
	assert.Contains(t, msg, "Round #4")
	assert.Contains(t, msg, "3127 transactions")
	assert.Contains(t, msg, "alice with 3100 (off by 27)")

	msg = announcement(round, 3127, hash, models.Guess{UserID: "u1", Value: 3127}, true)
	assert.Contains(t, msg, "u1 with an exact guess")

	msg = announcement(round, 0, hash, models.Guess{}, false)
	assert.Contains(t, msg, "no winner")
}
