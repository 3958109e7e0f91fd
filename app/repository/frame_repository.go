package repository

import (
	"github.com/framelabid/framelab/app/models"
	"gorm.io/gorm"
)

// frameRepository implements the FrameRepository interface
type frameRepository struct {
	db *gorm.DB
}

// NewFrameRepository creates a new frame repository instance
func NewFrameRepository(db *gorm.DB) FrameRepository {
	return &frameRepository{db: db}
}

// GetByIDs retrieves the frames matching the given ids. Soft-deleted frames
// are excluded by the default scope.
func (r *frameRepository) GetByIDs(ids []uint) ([]models.Frame, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var frames []models.Frame
	err := r.db.Where("id IN ?", ids).Find(&frames).Error
	return frames, err
}
