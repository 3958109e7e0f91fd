package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Frame is a photo-frame template. Creation, editing and upload live in the
// frame service; the payment core only reads frames when resolving which
// content a grant unlocks.
type Frame struct {
	ID        uint           `gorm:"primaryKey" json:"id"`
	UUID      string         `gorm:"type:varchar(36);not null;uniqueIndex" json:"uuid"`
	UserID    uint           `gorm:"not null;index" json:"user_id"`
	Title     string         `gorm:"type:varchar(150);not null" json:"title"`
	IsPremium bool           `gorm:"not null;default:false;index" json:"is_premium"`
	FilePath  string         `gorm:"type:varchar(255);default:''" json:"-"`
	CreatedAt time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

// BeforeCreate assigns a UUID when none was set.
func (f *Frame) BeforeCreate(tx *gorm.DB) error {
	if f.UUID == "" {
		f.UUID = uuid.NewString()
	}
	return nil
}
