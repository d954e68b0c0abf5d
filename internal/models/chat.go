package models

import "time"

// MessageKind tags a chat message with its origin.
type MessageKind string

const (
	KindChat   MessageKind = "chat"
	KindGuess  MessageKind = "guess"
	KindSystem MessageKind = "system"
	KindWinner MessageKind = "winner"
)

// GlobalChannel is the round id used for messages that belong to no round.
const GlobalChannel uint64 = 0

// ChatMessage is immutable once inserted.
type ChatMessage struct {
	ID         uint64      `gorm:"primaryKey;autoIncrement:false"`
	RoundID    uint64      `gorm:"index"`
	AuthorID   string      `gorm:"size:128"`
	AuthorName string      `gorm:"size:128"`
	Text       string      `gorm:"type:text"`
	Avatar     string      `gorm:"size:512"`
	Timestamp  time.Time   `gorm:"index"`
	Kind       MessageKind `gorm:"size:16"`
}

func (m ChatMessage) RowID() uint64 { return m.ID }

func (m ChatMessage) WithID(id uint64) ChatMessage {
	m.ID = id
	return m
}
