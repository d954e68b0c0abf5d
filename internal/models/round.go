// Package models defines the records held by the game tables.
package models

import "time"

// RoundStatus is the lifecycle state of a round. It only ever moves forward:
// open -> closed -> finished.
type RoundStatus string

const (
	RoundOpen     RoundStatus = "open"
	RoundClosed   RoundStatus = "closed"
	RoundFinished RoundStatus = "finished"
)

// Rank orders statuses so transitions can be checked for monotonicity.
func (s RoundStatus) Rank() int {
	switch s {
	case RoundOpen:
		return 0
	case RoundClosed:
		return 1
	case RoundFinished:
		return 2
	default:
		return -1
	}
}

// NoWinner is stored as the winning user when a round resolves without guesses.
const NoWinner = "no_winner"

// Round is one instance of the prediction game.
type Round struct {
	ID            uint64        `gorm:"primaryKey;autoIncrement:false"`
	Number        int           `gorm:"index"`
	StartTime     time.Time     `gorm:"not null"`
	EndTime       time.Time     `gorm:"not null;index"`
	Duration      time.Duration `gorm:"not null"`
	Prize         string        `gorm:"size:256"`
	Status        RoundStatus   `gorm:"size:16;index;not null"`
	TargetBlock   *int64        `gorm:"index"`
	ActualTxCount *int64
	WinningUser   *string `gorm:"size:128"`
	BlockHash     *string `gorm:"size:128"`
	CreatedAt     time.Time
}

func (r Round) RowID() uint64 { return r.ID }

func (r Round) WithID(id uint64) Round {
	r.ID = id
	return r
}

// IsOpen reports whether the round still accepts guesses at time now.
func (r Round) IsOpen(now time.Time) bool {
	return r.Status == RoundOpen && now.Before(r.EndTime)
}

// Finished reports whether result fields have been populated.
func (r Round) Finished() bool {
	return r.Status == RoundFinished
}
