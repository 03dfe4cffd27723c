package companies

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/fieldops-backend/pkg/db/models"
)

// Repository persists companies and their field config.
type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// Create inserts a company. A nil id is replaced with a fresh uuid.
func (r *Repository) Create(ctx context.Context, company *models.Company) error {
	if company == nil {
		return fmt.Errorf("company is required")
	}
	if company.ID == uuid.Nil {
		company.ID = uuid.New()
	}
	return r.db.WithContext(ctx).Create(company).Error
}

func (r *Repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Company, error) {
	var company models.Company
	if err := r.db.WithContext(ctx).First(&company, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &company, nil
}

// FindByName matches case-insensitively; registration keeps names unique.
func (r *Repository) FindByName(ctx context.Context, name string) (*models.Company, error) {
	var company models.Company
	if err := r.db.WithContext(ctx).
		Where("lower(name) = ?", strings.ToLower(strings.TrimSpace(name))).
		First(&company).Error; err != nil {
		return nil, err
	}
	return &company, nil
}

// FindByIDTx loads a company using the provided transaction.
func (r *Repository) FindByIDTx(tx *gorm.DB, id uuid.UUID) (*models.Company, error) {
	if tx == nil {
		return nil, gorm.ErrInvalidTransaction
	}
	var company models.Company
	if err := tx.First(&company, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &company, nil
}

// UpdateConfig overwrites the config document.
func (r *Repository) UpdateConfig(ctx context.Context, id uuid.UUID, cfg models.CompanyConfig) error {
	company := models.Company{ID: id, Config: cfg}
	res := r.db.WithContext(ctx).Model(&company).Where("id = ?", id).Select("config", "updated_at").Updates(&company)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}
