package territories

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/fieldops-backend/pkg/db/models"
	"github.com/angelmondragon/fieldops-backend/pkg/enums"
)

// Repository handles territory persistence. Every lookup is tenant scoped.
type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) Create(ctx context.Context, territory *models.Territory) error {
	if territory == nil {
		return fmt.Errorf("territory is required")
	}
	if territory.ID == uuid.Nil {
		territory.ID = uuid.New()
	}
	return r.db.WithContext(ctx).Create(territory).Error
}

func (r *Repository) FindByID(ctx context.Context, companyID, id uuid.UUID) (*models.Territory, error) {
	var territory models.Territory
	if err := r.db.WithContext(ctx).
		Where("company_id = ? AND id = ?", companyID, id).
		First(&territory).Error; err != nil {
		return nil, err
	}
	return &territory, nil
}

// FindByName matches a display name case-insensitively.
func (r *Repository) FindByName(ctx context.Context, companyID uuid.UUID, name string) ([]models.Territory, error) {
	var rows []models.Territory
	if err := r.db.WithContext(ctx).
		Where("company_id = ? AND lower(name) = ?", companyID, strings.ToLower(strings.TrimSpace(name))).
		Order("created_at ASC").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

// List returns the company's territories, optionally filtered by type.
func (r *Repository) List(ctx context.Context, companyID uuid.UUID, kind *enums.TerritoryType) ([]models.Territory, error) {
	query := r.db.WithContext(ctx).Where("company_id = ?", companyID)
	if kind != nil {
		query = query.Where("type = ?", *kind)
	}
	var rows []models.Territory
	if err := query.Order("name ASC").Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *Repository) Update(ctx context.Context, territory *models.Territory) error {
	if territory == nil {
		return fmt.Errorf("territory is required")
	}
	return r.db.WithContext(ctx).Save(territory).Error
}

func (r *Repository) CountChildren(ctx context.Context, companyID, id uuid.UUID) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.Territory{}).
		Where("company_id = ? AND parent_id = ?", companyID, id).
		Count(&count).Error
	return count, err
}

func (r *Repository) Delete(ctx context.Context, companyID, id uuid.UUID) error {
	res := r.db.WithContext(ctx).
		Where("company_id = ? AND id = ?", companyID, id).
		Delete(&models.Territory{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}
