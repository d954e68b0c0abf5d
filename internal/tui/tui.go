// Package tui is the operator dashboard: the current round, its guesses,
// the chat feed and a command line driving the round manager.
package tui

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"

	"blockguess/internal/models"
)

// headerHeight is the round box plus its borders.
const headerHeight = 6

var (
	errorStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	okStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
)

// SnapshotMsg carries fresh dashboard data.
type SnapshotMsg struct {
	Snapshot Snapshot
}

// resultMsg is the outcome of an operator command.
type resultMsg struct {
	text string
	err  error
}

// Model holds the TUI state
type Model struct {
	ctx     context.Context
	console *Console
	snap    Snapshot
	input   []rune
	status  string
	failed  bool
	width   int
	height  int
}

// NewModel creates a new TUI model
func NewModel(ctx context.Context, console *Console) Model {
	return Model{ctx: ctx, console: console}
}

// Init initializes the model
func (m Model) Init() tea.Cmd {
	return nil
}

// Update handles messages
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case SnapshotMsg:
		m.snap = msg.Snapshot
		return m, nil

	case resultMsg:
		if msg.err != nil {
			m.status, m.failed = msg.err.Error(), true
		} else {
			m.status, m.failed = msg.text, false
		}
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)
	}

	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyCtrlC, tea.KeyEsc:
		return m, tea.Quit
	case tea.KeyEnter:
		line := strings.TrimSpace(string(m.input))
		m.input = m.input[:0]
		if line == "" {
			return m, nil
		}
		if line == "quit" || line == "exit" {
			return m, tea.Quit
		}
		return m, m.execute(line)
	case tea.KeyBackspace:
		if len(m.input) > 0 {
			m.input = m.input[:len(m.input)-1]
		}
		return m, nil
	case tea.KeySpace:
		m.input = append(m.input, ' ')
		return m, nil
	case tea.KeyRunes:
		m.input = append(m.input, msg.Runes...)
		return m, nil
	}
	return m, nil
}

func (m Model) execute(line string) tea.Cmd {
	if m.console == nil {
		return nil
	}
	ctx, console := m.ctx, m.console
	return func() tea.Msg {
		text, err := console.Execute(ctx, line)
		return resultMsg{text: text, err: err}
	}
}

// View renders the UI
func (m Model) View() string {
	if m.width == 0 {
		return "Loading..."
	}

	header := m.renderHeader()
	footer := m.renderFooter()

	// Split the remaining height between guesses and chat.
	body := m.height - headerHeight - 4
	guessRows := max(body/2, 1)
	chatRows := max(body-guessRows, 1)

	return lipgloss.JoinVertical(lipgloss.Left,
		header,
		m.renderGuesses(guessRows),
		separatorLine(m.width),
		m.renderChat(chatRows),
		footer,
	)
}

// renderHeader renders the round, prize and result columns
func (m Model) renderHeader() string {
	s := m.snap

	link := "connected"
	if !s.Connected {
		link = "DISCONNECTED"
	}

	var left []string
	if !s.HasRound {
		left = []string{"no round yet", "", "", ""}
	} else {
		r := s.Round
		left = []string{
			fmt.Sprintf("round #%d  %s", r.Number, r.Status),
			fmt.Sprintf("target block: %s", formatTarget(r.TargetBlock)),
			fmt.Sprintf("time left: %s", timeLeft(r, s.Now)),
			fmt.Sprintf("prize: %s", r.Prize),
		}
	}

	middle := []string{"prizes: not configured"}
	if s.HasPrize {
		p := s.Prize
		middle = []string{
			fmt.Sprintf("jackpot: %s %s", p.Jackpot, p.Currency),
			fmt.Sprintf("1st: %s %s", p.First, p.Currency),
			fmt.Sprintf("2nd: %s %s", p.Second, p.Currency),
		}
		if p.TokenRef != "" {
			middle = append(middle, "token: "+p.TokenRef)
		}
	}

	right := []string{
		"store: " + link,
		fmt.Sprintf("guesses: %d", len(s.Guesses)),
	}
	if s.HasRound && s.Round.Finished() {
		r := s.Round
		right = append(right,
			fmt.Sprintf("tx count: %s", formatCount(r.ActualTxCount)),
			"winner: "+formatWinner(r.WinningUser),
		)
	}

	return columns(m.width, left, middle, right)
}

// renderGuesses lists guesses in submission order, several per row.
func (m Model) renderGuesses(rows int) string {
	if len(m.snap.Guesses) == 0 {
		return formatInfoLine("no guesses", m.width)
	}

	const cellWidth = 24
	cols := max((m.width-2)/cellWidth, 1)
	var winner string
	if m.snap.Round.WinningUser != nil {
		winner = *m.snap.Round.WinningUser
	}

	var lines []string
	for row := 0; row < rows; row++ {
		var b strings.Builder
		for col := 0; col < cols; col++ {
			idx := row*cols + col
			if idx >= len(m.snap.Guesses) {
				break
			}
			g := m.snap.Guesses[idx]
			mark := " "
			if g.UserID == winner {
				mark = "*"
			}
			b.WriteString(fit(fmt.Sprintf("%3d %s%7d %s", idx+1, mark, g.Value, displayName(g)), cellWidth))
		}
		if b.Len() == 0 {
			break
		}
		lines = append(lines, formatInfoLine(b.String(), m.width))
	}
	return strings.Join(lines, "\n")
}

// renderChat shows the newest messages first.
func (m Model) renderChat(rows int) string {
	if len(m.snap.Chat) == 0 {
		return formatInfoLine("chat is empty", m.width)
	}
	var lines []string
	for i, msg := range m.snap.Chat {
		if i >= rows {
			break
		}
		text := fmt.Sprintf("%s %s: %s", msg.Timestamp.Local().Format("15:04:05"), chatAuthor(msg), msg.Text)
		lines = append(lines, formatInfoLine(text, m.width))
	}
	return strings.Join(lines, "\n")
}

func (m Model) renderFooter() string {
	inner := max(m.width-2, 0)
	status := fit(m.status, inner)
	if m.status != "" {
		if m.failed {
			status = errorStyle.Render(status)
		} else {
			status = okStyle.Render(status)
		}
	}

	prompt := "> " + string(m.input)
	if w := runewidth.StringWidth(prompt); inner > 1 && w > inner {
		prompt = "…" + runewidth.TruncateLeft(prompt, w-(inner-1), "")
	}
	bottom := "└" + strings.Repeat("─", inner) + "┘"
	return separatorLine(m.width) + "\n" +
		"│" + status + "│\n" +
		formatInfoLine(prompt, m.width) + "\n" +
		bottom
}

func timeLeft(r models.Round, now time.Time) string {
	if r.Status != models.RoundOpen {
		return "-"
	}
	if !r.IsOpen(now) {
		return "expired"
	}
	return r.EndTime.Sub(now).Truncate(time.Second).String()
}

func formatTarget(target *int64) string {
	if target == nil {
		return "none"
	}
	return fmt.Sprintf("%d", *target)
}

func formatCount(n *int64) string {
	if n == nil {
		return "-"
	}
	return fmt.Sprintf("%d", *n)
}

func formatWinner(user *string) string {
	switch {
	case user == nil:
		return "-"
	case *user == models.NoWinner:
		return "nobody"
	default:
		return *user
	}
}

func displayName(g models.Guess) string {
	if g.DisplayName != "" {
		return g.DisplayName
	}
	return g.UserID
}

func chatAuthor(msg models.ChatMessage) string {
	name := msg.AuthorName
	if name == "" {
		name = msg.AuthorID
	}
	switch msg.Kind {
	case models.KindWinner, models.KindSystem:
		return "[" + name + "]"
	default:
		return name
	}
}

// Run starts the TUI program
func Run(ctx context.Context, console *Console, updates <-chan Snapshot) error {
	m := NewModel(ctx, console)
	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx))

	// Start goroutine to receive updates
	go func() {
		for snap := range updates {
			p.Send(SnapshotMsg{Snapshot: snap})
		}
		// Channel closed, quit TUI
		p.Quit()
	}()

	_, err := p.Run()
	if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
		return nil
	}
	return err
}
