package tui

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"blockguess/internal/identity"
	"blockguess/internal/models"

	"github.com/shopspring/decimal"
)

var (
	ErrUnknownCommand = errors.New("unknown command")
	ErrUsage          = errors.New("usage")
	ErrNotAdmin       = errors.New("admin only")
	ErrNoRound        = errors.New("no round to act on")
)

// Controller is the write side of the round manager.
type Controller interface {
	Reader
	CreateRound(ctx context.Context, number, durationMinutes int, prize string, targetBlock *int64) (models.Round, error)
	SubmitGuess(ctx context.Context, roundID uint64, userID, displayName string, value int64, avatar string) (models.Guess, error)
	EndRoundManually(ctx context.Context, roundID uint64) error
	AddChatMessage(ctx context.Context, msg models.ChatMessage) (models.ChatMessage, error)
	SavePrizeConfiguration(ctx context.Context, jackpot, first, second decimal.Decimal, currency, tokenRef string) (models.PrizeConfig, error)
}

// Resolver finalizes a round on demand.
type Resolver interface {
	Resolve(ctx context.Context, roundID uint64) error
}

type command struct {
	usage string
	admin bool
	run   func(c *Console, ctx context.Context, args []string) (string, error)
}

const (
	usageRound   = "round <number> <minutes> [@target-block] [prize...]"
	usageGuess   = "guess <user> <value>"
	usageEnd     = "end"
	usagePrize   = "prize <jackpot> <first> <second> <currency> [token]"
	usageSay     = "say <text>"
	usageResolve = "resolve"
)

var commands = map[string]command{
	"round":   {usage: usageRound, admin: true, run: (*Console).createRound},
	"guess":   {usage: usageGuess, run: (*Console).guess},
	"end":     {usage: usageEnd, admin: true, run: (*Console).end},
	"prize":   {usage: usagePrize, admin: true, run: (*Console).prize},
	"say":     {usage: usageSay, run: (*Console).say},
	"resolve": {usage: usageResolve, admin: true, run: (*Console).resolve},
	"help":    {usage: "help", run: (*Console).help},
}

// Console executes operator command lines against the round manager.
type Console struct {
	games    Controller
	resolver Resolver
	operator identity.User
	admins   *identity.Registry
}

// NewConsole creates a console acting as operator.
func NewConsole(games Controller, resolver Resolver, operator identity.User, admins *identity.Registry) *Console {
	return &Console{games: games, resolver: resolver, operator: operator, admins: admins}
}

// Execute runs one command line and returns a status text for the operator.
func (c *Console) Execute(ctx context.Context, line string) (string, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return "", nil
	}
	name, args := strings.ToLower(fields[0]), fields[1:]
	cmd, ok := commands[name]
	if !ok {
		return "", fmt.Errorf("%w %q, try help", ErrUnknownCommand, name)
	}
	if cmd.admin && !c.admins.IsAdmin(c.operator.ID) {
		return "", fmt.Errorf("%s: %w", name, ErrNotAdmin)
	}
	out, err := cmd.run(c, ctx, args)
	if errors.Is(err, ErrUsage) {
		return "", fmt.Errorf("%w: %s", ErrUsage, cmd.usage)
	}
	return out, err
}

func (c *Console) createRound(ctx context.Context, args []string) (string, error) {
	if len(args) < 2 {
		return "", ErrUsage
	}
	number, err := strconv.Atoi(args[0])
	if err != nil {
		return "", ErrUsage
	}
	minutes, err := strconv.Atoi(args[1])
	if err != nil {
		return "", ErrUsage
	}

	var target *int64
	rest := args[2:]
	if len(rest) > 0 && strings.HasPrefix(rest[0], "@") {
		h, err := strconv.ParseInt(rest[0][1:], 10, 64)
		if err != nil {
			return "", ErrUsage
		}
		target = &h
		rest = rest[1:]
	}

	round, err := c.games.CreateRound(ctx, number, minutes, strings.Join(rest, " "), target)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("round #%d open for %d min", round.Number, minutes), nil
}

func (c *Console) guess(ctx context.Context, args []string) (string, error) {
	if len(args) != 2 {
		return "", ErrUsage
	}
	value, err := strconv.ParseInt(args[1], 10, 64)
	if err != nil {
		return "", ErrUsage
	}
	round, ok := c.games.ActiveRound()
	if !ok {
		return "", ErrNoRound
	}

	user := args[0]
	g, err := c.games.SubmitGuess(ctx, round.ID, user, user, value, "")
	if err != nil {
		return "", err
	}

	_, err = c.games.AddChatMessage(ctx, models.ChatMessage{
		RoundID:    round.ID,
		AuthorID:   g.UserID,
		AuthorName: g.DisplayName,
		Text:       fmt.Sprintf("%s guessed %d", g.DisplayName, g.Value),
		Kind:       models.KindGuess,
	})
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("guess %d recorded for %s", g.Value, g.UserID), nil
}

func (c *Console) end(ctx context.Context, args []string) (string, error) {
	if len(args) != 0 {
		return "", ErrUsage
	}
	round, ok := c.games.ActiveRound()
	if !ok {
		return "", ErrNoRound
	}
	if err := c.games.EndRoundManually(ctx, round.ID); err != nil {
		return "", err
	}
	return fmt.Sprintf("round #%d closed", round.Number), nil
}

func (c *Console) prize(ctx context.Context, args []string) (string, error) {
	if len(args) < 4 || len(args) > 5 {
		return "", ErrUsage
	}
	amounts := make([]decimal.Decimal, 3)
	for i := range amounts {
		d, err := decimal.NewFromString(args[i])
		if err != nil {
			return "", ErrUsage
		}
		amounts[i] = d
	}
	token := ""
	if len(args) == 5 {
		token = args[4]
	}

	cfg, err := c.games.SavePrizeConfiguration(ctx, amounts[0], amounts[1], amounts[2], args[3], token)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("prizes saved: %s / %s / %s %s", cfg.Jackpot, cfg.First, cfg.Second, cfg.Currency), nil
}

func (c *Console) say(ctx context.Context, args []string) (string, error) {
	if len(args) == 0 {
		return "", ErrUsage
	}
	_, err := c.games.AddChatMessage(ctx, models.ChatMessage{
		RoundID:    models.GlobalChannel,
		AuthorID:   c.operator.ID,
		AuthorName: c.operator.DisplayName,
		Avatar:     c.operator.Avatar,
		Text:       strings.Join(args, " "),
		Kind:       models.KindChat,
	})
	if err != nil {
		return "", err
	}
	return "sent", nil
}

func (c *Console) resolve(ctx context.Context, args []string) (string, error) {
	if len(args) != 0 {
		return "", ErrUsage
	}
	round, ok := c.games.LatestRound()
	if !ok || round.Finished() {
		return "", ErrNoRound
	}
	if c.resolver == nil {
		return "", errors.New("resolution is not running")
	}
	if err := c.resolver.Resolve(ctx, round.ID); err != nil {
		return "", err
	}
	return fmt.Sprintf("round #%d resolved", round.Number), nil
}

func (c *Console) help(context.Context, []string) (string, error) {
	return strings.Join([]string{usageRound, usageGuess, usageEnd, usagePrize, usageSay, usageResolve}, " | "), nil
}
