package models

import (
	"encoding/json"
	"time"
)

// AccessGrant is the entitlement derived from a paid transaction. The unique
// index on TransactionID is the idempotency key: however many times the
// webhook, the user's own polling and the reconciler race on the same
// payment, only one row can ever reference it.
type AccessGrant struct {
	ID            uint      `gorm:"primaryKey" json:"id"`
	UserID        uint      `gorm:"not null;index:idx_access_grants_user_active,priority:1" json:"user_id"`
	TransactionID uint      `gorm:"not null;uniqueIndex" json:"transaction_id"`
	PackageIDs    string    `gorm:"type:text;not null" json:"-"`
	StartsAt      time.Time `gorm:"type:timestamp;not null" json:"starts_at"`
	EndsAt        time.Time `gorm:"type:timestamp;not null" json:"ends_at"`
	IsActive      bool      `gorm:"not null;default:true;index:idx_access_grants_user_active,priority:2" json:"is_active"`
	CreatedAt     time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// SetPackageIDs stores the granted package set as JSON.
func (g *AccessGrant) SetPackageIDs(ids []uint) error {
	raw, err := json.Marshal(ids)
	if err != nil {
		return err
	}
	g.PackageIDs = string(raw)
	return nil
}

// GetPackageIDs decodes the granted package set.
func (g *AccessGrant) GetPackageIDs() ([]uint, error) {
	if g.PackageIDs == "" {
		return nil, nil
	}
	var ids []uint
	if err := json.Unmarshal([]byte(g.PackageIDs), &ids); err != nil {
		return nil, err
	}
	return ids, nil
}

// IsExpired reports whether the access window has elapsed at the given time.
// Expiry is checked lazily on read, not by a timer.
func (g *AccessGrant) IsExpired(now time.Time) bool {
	return !now.Before(g.EndsAt)
}

// RemainingDuration returns how much of the access window is left.
func (g *AccessGrant) RemainingDuration(now time.Time) time.Duration {
	if g.IsExpired(now) {
		return 0
	}
	return g.EndsAt.Sub(now)
}
