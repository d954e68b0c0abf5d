package models

import "time"

// Audit event types, one per reducer.
const (
	EventRoundCreated   = "round_created"
	EventGuessSubmitted = "guess_submitted"
	EventRoundEnded     = "round_ended"
	EventRoundFinished  = "round_finished"
	EventChatMessage    = "chat_message"
	EventPrizeUpdated   = "prize_updated"
)

// LogEvent is an append-only audit record.
type LogEvent struct {
	ID        uint64    `gorm:"primaryKey;autoIncrement:false"`
	Type      string    `gorm:"size:32;index"`
	Details   string    `gorm:"type:text"`
	Timestamp time.Time `gorm:"index"`
}

// TableName keeps audit rows apart from anything called "logs" in a shared database.
func (LogEvent) TableName() string { return "log_events" }

func (e LogEvent) RowID() uint64 { return e.ID }

func (e LogEvent) WithID(id uint64) LogEvent {
	e.ID = id
	return e
}
