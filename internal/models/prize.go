package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// PrizeConfig describes the payouts. The latest row is authoritative.
type PrizeConfig struct {
	ID        uint64          `gorm:"primaryKey;autoIncrement:false"`
	Jackpot   decimal.Decimal `gorm:"type:numeric(30,8)"`
	First     decimal.Decimal `gorm:"type:numeric(30,8)"`
	Second    decimal.Decimal `gorm:"type:numeric(30,8)"`
	Currency  string          `gorm:"size:16"`
	TokenRef  string          `gorm:"size:128"`
	UpdatedAt time.Time       `gorm:"autoUpdateTime:false"`
}

func (p PrizeConfig) RowID() uint64 { return p.ID }

func (p PrizeConfig) WithID(id uint64) PrizeConfig {
	p.ID = id
	return p
}
