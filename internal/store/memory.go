package store

import (
	"context"

	"blockguess/internal/logger"
	"blockguess/internal/models"
	"blockguess/internal/table"
)

// Memory is the in-process backing. It starts empty and lives as long as the
// process.
type Memory struct {
	tables
}

// NewMemory returns an empty in-process store.
func NewMemory(log *logger.Logger) *Memory {
	if log == nil {
		log = logger.Nop()
	}
	return &Memory{tables{
		rounds:  table.New("rounds", table.WithLogger[models.Round](log)),
		guesses: table.New("guesses", table.WithLogger[models.Guess](log)),
		chat:    table.New("chat_messages", table.WithLogger[models.ChatMessage](log)),
		logs:    table.New("log_events", table.WithLogger[models.LogEvent](log)),
		prize:   table.New("prize_configs", table.WithLogger[models.PrizeConfig](log)),
	}}
}

func (m *Memory) Ping(context.Context) error { return nil }

func (m *Memory) Close() error { return nil }
