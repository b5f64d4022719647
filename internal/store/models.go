package store

import "time"

// ItemRow persists one board item; all three variants share a table, keyed
// by the Variant column.
type ItemRow struct {
	ID        string  `gorm:"primaryKey;size:32"`
	Variant   string  `gorm:"size:16;not null;index:idx_items_board"`
	BoardID   string  `gorm:"size:64;not null;index:idx_items_board"`
	X         float64 `gorm:"not null"`
	Y         float64 `gorm:"not null"`
	Width     *float64
	Height    *float64
	Title     *string `gorm:"size:255"`
	Content   string  `gorm:"type:text"`
	Color     *string `gorm:"size:32"`
	Rotation  *float64
	ImageURL  string `gorm:"size:1024"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (ItemRow) TableName() string { return "board_items" }

type ConnectionRow struct {
	ID         string `gorm:"primaryKey;size:32"`
	BoardID    string `gorm:"size:64;not null;index"`
	FromItemID string `gorm:"size:32;not null;index"`
	ToItemID   string `gorm:"size:32;not null;index"`
	CreatedAt  time.Time
}

func (ConnectionRow) TableName() string { return "board_connections" }
