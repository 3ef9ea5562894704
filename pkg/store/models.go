package store

import (
	"time"

	"gorm.io/datatypes"
)

// GORM models used for persistence.
type UserModel struct {
	ID        string    `gorm:"primaryKey"`
	PhotoSeq  int       `gorm:"not null;default:0"`
	CreatedAt time.Time `gorm:"not null"`
	UpdatedAt time.Time
}

type SessionModel struct {
	UserID           string         `gorm:"primaryKey"`
	State            string         `gorm:"not null"`
	Submenu          datatypes.JSON `gorm:"type:jsonb"`
	PaginationOffset int            `gorm:"not null;default:0"`
	LastTextAt       *time.Time
	UpdatedAt        time.Time `gorm:"not null"`
}

type PhotoModel struct {
	ID          string    `gorm:"primaryKey"`
	UserID      string    `gorm:"not null;uniqueIndex:ux_photo_user_index,priority:1"`
	IndexNumber int       `gorm:"not null;uniqueIndex:ux_photo_user_index,priority:2"`
	Path        string    `gorm:"not null"`
	MimeType    string    `gorm:"not null"`
	CreatedAt   time.Time `gorm:"not null"`
}

type VariantModel struct {
	ID         string    `gorm:"primaryKey"`
	PhotoID    string    `gorm:"not null;index"`
	Mode       int       `gorm:"not null"`
	ResultPath string    `gorm:"not null"`
	Prompt     string    `gorm:"type:text"`
	CreatedAt  time.Time `gorm:"not null;index"`
}

type PromptLogModel struct {
	ID          string    `gorm:"primaryKey"`
	UserID      string    `gorm:"not null;index"`
	Category    string    `gorm:"not null"`
	RawText     string    `gorm:"type:text;not null"`
	Instruction string    `gorm:"type:text;not null"`
	CreatedAt   time.Time `gorm:"not null;index"`
}
