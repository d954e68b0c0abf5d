package models

// IDCounter records the last id handed out by a table, including ids whose
// insert later failed.
type IDCounter struct {
	Name   string `gorm:"primaryKey;size:64"`
	LastID uint64 `gorm:"not null"`
}
