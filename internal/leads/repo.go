package leads

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/fieldops-backend/pkg/db/models"
)

// Repository persists potential dealers discovered through the places provider.
type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// ListFilter narrows lead listings. Nil fields are ignored.
type ListFilter struct {
	Assigned   *bool
	AssignedTo *uuid.UUID
	FoundBy    *uuid.UUID
	SessionID  *uuid.UUID
}

func (r *Repository) FindByID(ctx context.Context, companyID, id uuid.UUID) (*models.PotentialDealer, error) {
	return r.FindByIDTx(r.db.WithContext(ctx), companyID, id)
}

func (r *Repository) FindByIDTx(tx *gorm.DB, companyID, id uuid.UUID) (*models.PotentialDealer, error) {
	if tx == nil {
		return nil, gorm.ErrInvalidTransaction
	}
	var lead models.PotentialDealer
	if err := tx.Where("company_id = ? AND id = ?", companyID, id).First(&lead).Error; err != nil {
		return nil, err
	}
	return &lead, nil
}

func (r *Repository) FindByPlaceIDTx(tx *gorm.DB, companyID uuid.UUID, placeID string) (*models.PotentialDealer, error) {
	if tx == nil {
		return nil, gorm.ErrInvalidTransaction
	}
	var lead models.PotentialDealer
	if err := tx.Where("company_id = ? AND place_id = ?", companyID, placeID).First(&lead).Error; err != nil {
		return nil, err
	}
	return &lead, nil
}

func (r *Repository) FindByPlaceIDsTx(tx *gorm.DB, companyID uuid.UUID, placeIDs []string) ([]models.PotentialDealer, error) {
	if tx == nil {
		return nil, gorm.ErrInvalidTransaction
	}
	var rows []models.PotentialDealer
	if len(placeIDs) == 0 {
		return rows, nil
	}
	if err := tx.Where("company_id = ? AND place_id IN ?", companyID, placeIDs).Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

// InsertIgnoreTx inserts rows, skipping any (company_id, place_id) that
// already exists.
func (r *Repository) InsertIgnoreTx(tx *gorm.DB, rows []models.PotentialDealer) error {
	if tx == nil {
		return gorm.ErrInvalidTransaction
	}
	if len(rows) == 0 {
		return nil
	}
	for i := range rows {
		if rows[i].ID == uuid.Nil {
			rows[i].ID = uuid.New()
		}
	}
	return tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "company_id"}, {Name: "place_id"}},
		DoNothing: true,
	}).Create(&rows).Error
}

// AssignTx overwrites the assignment columns.
func (r *Repository) AssignTx(tx *gorm.DB, id, assignee, assignedBy uuid.UUID, at time.Time) error {
	if tx == nil {
		return gorm.ErrInvalidTransaction
	}
	res := tx.Model(&models.PotentialDealer{}).Where("id = ?", id).Updates(map[string]any{
		"is_assigned": true,
		"assigned_to": assignee,
		"assigned_at": at.UTC(),
		"assigned_by": assignedBy,
		"updated_at":  at.UTC(),
	})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("assign lead %s: %w", id, gorm.ErrRecordNotFound)
	}
	return nil
}

func (r *Repository) List(ctx context.Context, companyID uuid.UUID, filter ListFilter) ([]models.PotentialDealer, error) {
	query := r.db.WithContext(ctx).Where("company_id = ?", companyID)
	if filter.Assigned != nil {
		query = query.Where("is_assigned = ?", *filter.Assigned)
	}
	if filter.AssignedTo != nil {
		query = query.Where("assigned_to = ?", *filter.AssignedTo)
	}
	if filter.FoundBy != nil {
		query = query.Where("found_by = ?", *filter.FoundBy)
	}
	if filter.SessionID != nil {
		query = query.Where("found_in_session_id = ?", *filter.SessionID)
	}
	var rows []models.PotentialDealer
	if err := query.Order("created_at DESC").Order("id ASC").Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}
