package models

import "time"

// Guess is one user's transaction count prediction for a round.
// At most one guess exists per (round, user).
type Guess struct {
	ID          uint64    `gorm:"primaryKey;autoIncrement:false"`
	RoundID     uint64    `gorm:"not null;uniqueIndex:ux_guess_round_user,priority:1"`
	UserID      string    `gorm:"size:128;not null;uniqueIndex:ux_guess_round_user,priority:2"`
	DisplayName string    `gorm:"size:128"`
	Value       int64     `gorm:"not null"`
	Avatar      string    `gorm:"size:512"`
	SubmittedAt time.Time `gorm:"not null;index"`
}

func (g Guess) RowID() uint64 { return g.ID }

func (g Guess) WithID(id uint64) Guess {
	g.ID = id
	return g
}
