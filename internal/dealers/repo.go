package dealers

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/fieldops-backend/pkg/db/models"
	"github.com/angelmondragon/fieldops-backend/pkg/enums"
	"github.com/angelmondragon/fieldops-backend/pkg/geo"
)

// Repository handles dealer persistence. Reads only return active dealers.
type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// ListFilter narrows List results.
type ListFilter struct {
	TerritoryID *uuid.UUID
	State       *string
	City        *string
}

func (r *Repository) Create(ctx context.Context, dealer *models.Dealer) error {
	if dealer == nil {
		return fmt.Errorf("dealer is required")
	}
	if dealer.ID == uuid.Nil {
		dealer.ID = uuid.New()
	}
	return r.db.WithContext(ctx).Create(dealer).Error
}

func (r *Repository) FindByID(ctx context.Context, companyID, id uuid.UUID) (*models.Dealer, error) {
	return r.FindByIDTx(r.db.WithContext(ctx), companyID, id)
}

// FindByIDTx loads an active dealer inside the caller's transaction.
func (r *Repository) FindByIDTx(tx *gorm.DB, companyID, id uuid.UUID) (*models.Dealer, error) {
	if tx == nil {
		return nil, gorm.ErrInvalidTransaction
	}
	var dealer models.Dealer
	if err := tx.
		Where("company_id = ? AND id = ? AND is_active = ?", companyID, id, true).
		First(&dealer).Error; err != nil {
		return nil, err
	}
	return &dealer, nil
}

func (r *Repository) List(ctx context.Context, companyID uuid.UUID, filter ListFilter) ([]models.Dealer, error) {
	query := r.db.WithContext(ctx).Where("company_id = ? AND is_active = ?", companyID, true)
	if filter.TerritoryID != nil {
		query = query.Where("territory_id = ?", *filter.TerritoryID)
	}
	if filter.State != nil {
		query = query.Where("lower(state) = lower(?)", *filter.State)
	}
	if filter.City != nil {
		query = query.Where("lower(city) = lower(?)", *filter.City)
	}
	var rows []models.Dealer
	if err := query.Order("priority ASC, name ASC").Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

// CountActive returns the number of active dealers.
func (r *Repository) CountActive(ctx context.Context, companyID uuid.UUID) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.Dealer{}).
		Where("company_id = ? AND is_active = ?", companyID, true).
		Count(&count).Error
	return count, err
}

// FindWithinBounds is the bounding-box prefilter for discovery; callers apply
// the exact distance.
func (r *Repository) FindWithinBounds(ctx context.Context, companyID uuid.UUID, b geo.Bounds) ([]models.Dealer, error) {
	var rows []models.Dealer
	if err := r.db.WithContext(ctx).
		Where("company_id = ? AND is_active = ?", companyID, true).
		Where("lat BETWEEN ? AND ? AND lng BETWEEN ? AND ?", b.MinLat, b.MaxLat, b.MinLng, b.MaxLng).
		Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

// FindPlaceIDs returns which of placeIDs already belong to a company dealer.
// Inactive dealers count so converted leads never reappear as external.
func (r *Repository) FindPlaceIDs(ctx context.Context, companyID uuid.UUID, placeIDs []string) (map[string]struct{}, error) {
	out := make(map[string]struct{})
	if len(placeIDs) == 0 {
		return out, nil
	}
	var ids []string
	if err := r.db.WithContext(ctx).Model(&models.Dealer{}).
		Where("company_id = ? AND place_id IN ?", companyID, placeIDs).
		Pluck("place_id", &ids).Error; err != nil {
		return nil, err
	}
	for _, id := range ids {
		out[id] = struct{}{}
	}
	return out, nil
}

func (r *Repository) Update(ctx context.Context, dealer *models.Dealer) error {
	if dealer == nil {
		return fmt.Errorf("dealer is required")
	}
	return r.db.WithContext(ctx).Save(dealer).Error
}

// Deactivate hides a dealer while keeping its visit history resolvable.
func (r *Repository) Deactivate(ctx context.Context, companyID, id uuid.UUID) error {
	res := r.db.WithContext(ctx).Model(&models.Dealer{}).
		Where("company_id = ? AND id = ? AND is_active = ?", companyID, id, true).
		Updates(map[string]any{"is_active": false, "updated_at": time.Now().UTC()})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// UpdateVisitStatsTx denormalizes the latest closed visit onto the dealer.
func (r *Repository) UpdateVisitStatsTx(tx *gorm.DB, id uuid.UUID, visitedAt time.Time, outcome enums.VisitOutcome, nextDue time.Time) error {
	if tx == nil {
		return gorm.ErrInvalidTransaction
	}
	return tx.Model(&models.Dealer{}).Where("id = ?", id).Updates(map[string]any{
		"last_visit_date":    visitedAt.UTC(),
		"last_visit_outcome": outcome,
		"next_visit_due":     nextDue.UTC(),
		"updated_at":         time.Now().UTC(),
	}).Error
}
