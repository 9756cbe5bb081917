package model

import "time"

// VaultConfigID is the primary key of the single configuration row.
const VaultConfigID = 1

// VaultConfig is the write-once vault configuration.
type VaultConfig struct {
	ID        uint      `gorm:"primaryKey;autoIncrement:false" json:"-"`
	Admin     string    `gorm:"size:128;not null" json:"admin"`
	Token     string    `gorm:"size:128;not null" json:"token"`
	Oracle    string    `gorm:"size:128;not null" json:"oracle"`
	CreatedAt time.Time `gorm:"not null" json:"created_at"`
}

// Counter is a named monotonic sequence.
type Counter struct {
	Name  string `gorm:"primaryKey;size:64"`
	Value uint64 `gorm:"not null"`
}
