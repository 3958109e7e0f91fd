package models

import (
	"encoding/json"
	"time"
)

// Package is a named bundle of purchasable frames. Read-mostly; referenced
// by id from an AccessGrant's package set.
type Package struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	Name        string    `gorm:"type:varchar(150);not null" json:"name"`
	Description string    `gorm:"type:text" json:"description"`
	FrameIDs    string    `gorm:"type:text;not null" json:"-"`
	IsActive    bool      `gorm:"not null;default:true;index" json:"is_active"`
	CreatedAt   time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// GetFrameIDs decodes the bundled frame ids.
func (p *Package) GetFrameIDs() ([]uint, error) {
	if p.FrameIDs == "" {
		return nil, nil
	}
	var ids []uint
	if err := json.Unmarshal([]byte(p.FrameIDs), &ids); err != nil {
		return nil, err
	}
	return ids, nil
}

// SetFrameIDs stores the bundled frame ids as JSON.
func (p *Package) SetFrameIDs(ids []uint) error {
	raw, err := json.Marshal(ids)
	if err != nil {
		return err
	}
	p.FrameIDs = string(raw)
	return nil
}
