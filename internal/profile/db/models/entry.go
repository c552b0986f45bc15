// Package models contains the GORM persistence models for the key-value table.
package models

import (
	"time"
)

// Entry is one row of the key-value table. The profile store keeps its whole
// collection in a single Entry.
type Entry struct {
	Key       string `gorm:"column:entry_key;primaryKey;size:255"`
	Value     string `gorm:"type:text;not null"`
	UpdatedAt time.Time
}

// TableName pins the table name independent of GORM's pluralization.
func (Entry) TableName() string {
	return "kv_entries"
}
