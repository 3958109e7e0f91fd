package repository

import (
	"github.com/framelabid/framelab/app/models"
	"gorm.io/gorm"
)

// packageRepository implements the PackageRepository interface
type packageRepository struct {
	db *gorm.DB
}

// NewPackageRepository creates a new package repository instance
func NewPackageRepository(db *gorm.DB) PackageRepository {
	return &packageRepository{db: db}
}

// GetByID retrieves a package by its ID
func (r *packageRepository) GetByID(id uint) (*models.Package, error) {
	var pkg models.Package
	err := r.db.First(&pkg, id).Error
	if err != nil {
		return nil, err
	}
	return &pkg, nil
}

// GetByIDs retrieves the packages matching the given ids
func (r *packageRepository) GetByIDs(ids []uint) ([]models.Package, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var pkgs []models.Package
	err := r.db.Where("id IN ?", ids).Find(&pkgs).Error
	return pkgs, err
}

// GetActive retrieves up to limit active packages, oldest first
func (r *packageRepository) GetActive(limit int) ([]models.Package, error) {
	var pkgs []models.Package
	q := r.db.Where("is_active = ?", true).Order("id ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	err := q.Find(&pkgs).Error
	return pkgs, err
}

// GetActiveByNameLike retrieves active packages whose name matches a pattern
func (r *packageRepository) GetActiveByNameLike(pattern string) ([]models.Package, error) {
	var pkgs []models.Package
	err := r.db.Where("is_active = ? AND name LIKE ?", true, pattern).
		Order("id ASC").
		Find(&pkgs).Error
	return pkgs, err
}
