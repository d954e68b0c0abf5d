package tui

import (
	"context"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/mattn/go-runewidth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"blockguess/internal/models"
)

func sized(m Model) Model {
	next, _ := m.Update(tea.WindowSizeMsg{Width: 100, Height: 30})
	return next.(Model)
}

func typeLine(m Model, s string) Model {
	for _, r := range s {
		var msg tea.KeyMsg
		if r == ' ' {
			msg = tea.KeyMsg{Type: tea.KeySpace, Runes: []rune{' '}}
		} else {
			msg = tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{r}}
		}
		next, _ := m.Update(msg)
		m = next.(Model)
	}
	return m
}

func TestViewLoading(t *testing.T) {
	assert.Equal(t, "Loading...", NewModel(context.Background(), nil).View())
}

func TestViewShowsRound(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	target := int64(850000)
	snap := Snapshot{
		Now:       now,
		Connected: true,
		HasRound:  true,
		Round: models.Round{
			ID: 1, Number: 7, Status: models.RoundOpen, TargetBlock: &target,
			EndTime: now.Add(90 * time.Second), Prize: "0.01 BTC",
		},
		Guesses: []models.Guess{
			{ID: 1, UserID: "u1", DisplayName: "alice", Value: 3100},
			{ID: 2, UserID: "u2", Value: 2900},
		},
		Chat: []models.ChatMessage{
			{ID: 2, AuthorName: "Round bot", Text: "second", Kind: models.KindSystem, Timestamp: now},
			{ID: 1, AuthorName: "bob", Text: "first", Timestamp: now},
		},
	}

	m := sized(NewModel(context.Background(), nil))
	next, _ := m.Update(SnapshotMsg{Snapshot: snap})
	view := next.(Model).View()

	assert.Contains(t, view, "round #7  open")
	assert.Contains(t, view, "target block: 850000")
	assert.Contains(t, view, "time left: 1m30s")
	assert.Contains(t, view, "prizes: not configured")
	assert.Contains(t, view, "alice")
	assert.Contains(t, view, "u2")
	assert.Contains(t, view, "[Round bot]: second")
	assert.Less(t, strings.Index(view, "second"), strings.Index(view, "first"))

	for _, line := range strings.Split(view, "\n") {
		assert.LessOrEqual(t, runewidth.StringWidth(line), 100, line)
	}
}

func TestViewShowsResult(t *testing.T) {
	count, winner := int64(3127), models.NoWinner
	snap := Snapshot{
		HasRound: true,
		Round:    models.Round{Number: 2, Status: models.RoundFinished, ActualTxCount: &count, WinningUser: &winner},
	}
	m := sized(NewModel(context.Background(), nil))
	next, _ := m.Update(SnapshotMsg{Snapshot: snap})
	view := next.(Model).View()

	assert.Contains(t, view, "tx count: 3127")
	assert.Contains(t, view, "winner: nobody")
	assert.Contains(t, view, "DISCONNECTED")
	assert.Contains(t, view, "time left: -")
}

func TestCommandLine(t *testing.T) {
	c, games, _, _ := newConsole(t, true)
	m := sized(NewModel(context.Background(), c))

	m = typeLine(m, "round 1 5 @9000x")
	next, _ := m.Update(tea.KeyMsg{Type: tea.KeyBackspace})
	m = next.(Model)
	assert.Equal(t, "round 1 5 @9000", string(m.input))

	next, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	m = next.(Model)
	assert.Empty(t, m.input)
	require.NotNil(t, cmd)

	next, _ = m.Update(cmd())
	m = next.(Model)
	assert.False(t, m.failed)
	assert.Contains(t, m.status, "round #1")
	_, ok := games.ActiveRound()
	assert.True(t, ok)

	m = typeLine(m, "bogus")
	next, cmd = m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	m = next.(Model)
	next, _ = m.Update(cmd())
	m = next.(Model)
	assert.True(t, m.failed)
	assert.Contains(t, m.View(), "unknown command")
}

func TestQuitKeys(t *testing.T) {
	m := NewModel(context.Background(), nil)
	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyCtrlC})
	require.NotNil(t, cmd)
	assert.Equal(t, tea.Quit(), cmd())

	m = typeLine(m, "quit")
	_, cmd = m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	require.NotNil(t, cmd)
	assert.Equal(t, tea.Quit(), cmd())
}
