// Package store bundles one reactive table per record kind behind a single
// handle. Callers do not know whether the tables are purely in-process or
// written through to a database.
package store

import (
	"context"

	"blockguess/internal/models"
	"blockguess/internal/table"
)

// Store is the TableStore contract.
type Store interface {
	Rounds() table.Reactive[models.Round]
	Guesses() table.Reactive[models.Guess]
	ChatMessages() table.Reactive[models.ChatMessage]
	Logs() table.Reactive[models.LogEvent]
	PrizeConfig() table.Reactive[models.PrizeConfig]

	// Ping reports whether the backing is reachable.
	Ping(ctx context.Context) error
	Close() error
}

// tables is the shared Store implementation; backings differ only in the
// options their tables are built with and in ping/close behaviour.
type tables struct {
	rounds  *table.Table[models.Round]
	guesses *table.Table[models.Guess]
	chat    *table.Table[models.ChatMessage]
	logs    *table.Table[models.LogEvent]
	prize   *table.Table[models.PrizeConfig]
}

func (t *tables) Rounds() table.Reactive[models.Round]             { return t.rounds }
func (t *tables) Guesses() table.Reactive[models.Guess]            { return t.guesses }
func (t *tables) ChatMessages() table.Reactive[models.ChatMessage] { return t.chat }
func (t *tables) Logs() table.Reactive[models.LogEvent]            { return t.logs }
func (t *tables) PrizeConfig() table.Reactive[models.PrizeConfig]  { return t.prize }
