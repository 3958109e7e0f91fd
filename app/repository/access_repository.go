package repository

import (
	"errors"
	"time"

	"github.com/framelabid/framelab/app/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// accessRepository implements the AccessRepository interface
type accessRepository struct {
	db *gorm.DB
}

// NewAccessRepository creates a new access grant repository instance
func NewAccessRepository(db *gorm.DB) AccessRepository {
	return &accessRepository{db: db}
}

// Grant runs the whole grant sequence inside one database transaction:
// idempotency check first, deactivate the user's current grant, insert the
// new row. If any step fails the transaction rolls back and the previous
// grant stays untouched. Returns created=false when the transaction id was
// already granted, which is how racing webhook/poll/sweep calls collapse
// into a single grant.
func (r *accessRepository) Grant(userID, transactionID uint, packageIDs []uint, startsAt, endsAt time.Time) (*models.AccessGrant, bool, error) {
	var grant models.AccessGrant
	created := false

	err := r.db.Transaction(func(tx *gorm.DB) error {
		var existing models.AccessGrant
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("transaction_id = ?", transactionID).
			First(&existing).Error
		if err == nil {
			grant = existing
			return nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}

		if err := tx.Model(&models.AccessGrant{}).
			Where("user_id = ? AND is_active = ?", userID, true).
			Update("is_active", false).Error; err != nil {
			return err
		}

		grant = models.AccessGrant{
			UserID:        userID,
			TransactionID: transactionID,
			StartsAt:      startsAt,
			EndsAt:        endsAt,
			IsActive:      true,
		}
		if err := grant.SetPackageIDs(packageIDs); err != nil {
			return err
		}
		if err := tx.Create(&grant).Error; err != nil {
			// Two resolvers can race past the existence check; the unique
			// index on transaction_id rejects the loser, who returns the
			// winner's row instead of an error.
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				if rerr := tx.Where("transaction_id = ?", transactionID).First(&grant).Error; rerr != nil {
					return rerr
				}
				return nil
			}
			return err
		}
		created = true
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return &grant, created, nil
}

// GetByTransactionID retrieves the grant funded by a transaction, if any
func (r *accessRepository) GetByTransactionID(transactionID uint) (*models.AccessGrant, error) {
	var grant models.AccessGrant
	err := r.db.Where("transaction_id = ?", transactionID).First(&grant).Error
	if err != nil {
		return nil, err
	}
	return &grant, nil
}

// GetActiveByUserID retrieves the user's single active, unexpired grant
func (r *accessRepository) GetActiveByUserID(userID uint) (*models.AccessGrant, error) {
	var grant models.AccessGrant
	err := r.db.Where("user_id = ? AND is_active = ? AND ends_at > ?", userID, true, time.Now()).
		Order("created_at DESC").
		First(&grant).Error
	if err != nil {
		return nil, err
	}
	return &grant, nil
}

// DeactivateExpired lazily flips grants whose window has elapsed
func (r *accessRepository) DeactivateExpired(userID uint, now time.Time) error {
	return r.db.Model(&models.AccessGrant{}).
		Where("user_id = ? AND is_active = ? AND ends_at <= ?", userID, true, now).
		Update("is_active", false).Error
}
