package visits

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/fieldops-backend/pkg/db/models"
	"github.com/angelmondragon/fieldops-backend/pkg/enums"
	"github.com/angelmondragon/fieldops-backend/pkg/geo"
	"github.com/angelmondragon/fieldops-backend/pkg/pagination"
	"github.com/angelmondragon/fieldops-backend/pkg/types"
)

// Repository persists visits.
type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// CloseFields are written when a visit leaves the open state.
type CloseFields struct {
	CheckOutTime     time.Time
	Location         *geo.Point
	Outcome          enums.VisitOutcome
	OrderValue       decimal.NullDecimal
	OrderedItems     types.OrderedItems
	Notes            *string
	NextVisitDate    *time.Time
	ContactName      *string
	ContactPhone     *string
	ContactEmail     *string
	TimeSpentMinutes int
}

// ListFilter narrows visit listings. Zero values are ignored.
type ListFilter struct {
	CompanyID        uuid.UUID
	RepresentativeID *uuid.UUID
	From             *time.Time
	To               *time.Time
	Cursor           *pagination.Cursor
	Limit            int
}

func (r *Repository) CreateTx(tx *gorm.DB, visit *models.Visit) error {
	if tx == nil {
		return gorm.ErrInvalidTransaction
	}
	if visit.ID == uuid.Nil {
		visit.ID = uuid.New()
	}
	return tx.Create(visit).Error
}

func (r *Repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Visit, error) {
	return r.FindByIDTx(r.db.WithContext(ctx), id)
}

func (r *Repository) FindByIDTx(tx *gorm.DB, id uuid.UUID) (*models.Visit, error) {
	if tx == nil {
		return nil, gorm.ErrInvalidTransaction
	}
	var visit models.Visit
	if err := tx.First(&visit, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &visit, nil
}

func (r *Repository) FindOpenByRep(ctx context.Context, repID uuid.UUID) (*models.Visit, error) {
	return r.FindOpenByRepTx(r.db.WithContext(ctx), repID)
}

// FindOpenByRepTx returns the representative's open visit or
// gorm.ErrRecordNotFound.
func (r *Repository) FindOpenByRepTx(tx *gorm.DB, repID uuid.UUID) (*models.Visit, error) {
	if tx == nil {
		return nil, gorm.ErrInvalidTransaction
	}
	var visit models.Visit
	if err := tx.
		Where("representative_id = ? AND check_out_time IS NULL", repID).
		First(&visit).Error; err != nil {
		return nil, err
	}
	return &visit, nil
}

// CloseTx closes an open visit. It reports false when the visit was already
// closed, leaving the row untouched.
func (r *Repository) CloseTx(tx *gorm.DB, id uuid.UUID, fields CloseFields) (bool, error) {
	if tx == nil {
		return false, gorm.ErrInvalidTransaction
	}
	values := map[string]any{
		"check_out_time":     fields.CheckOutTime.UTC(),
		"outcome":            fields.Outcome,
		"order_value":        fields.OrderValue,
		"ordered_items":      fields.OrderedItems,
		"notes":              fields.Notes,
		"next_visit_date":    fields.NextVisitDate,
		"contact_name":       fields.ContactName,
		"contact_phone":      fields.ContactPhone,
		"contact_email":      fields.ContactEmail,
		"time_spent_minutes": fields.TimeSpentMinutes,
		"updated_at":         fields.CheckOutTime.UTC(),
	}
	if fields.Location != nil {
		values["check_out_lat"] = fields.Location.Lat
		values["check_out_lng"] = fields.Location.Lng
	}
	res := tx.Model(&models.Visit{}).
		Where("id = ? AND check_out_time IS NULL", id).
		Updates(values)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// List returns visits newest first, keyed by (check_in_time, id). It fetches
// one row beyond the limit so callers can build the next cursor.
func (r *Repository) List(ctx context.Context, filter ListFilter) ([]models.Visit, error) {
	q := r.db.WithContext(ctx).Where("company_id = ?", filter.CompanyID)
	if filter.RepresentativeID != nil {
		q = q.Where("representative_id = ?", *filter.RepresentativeID)
	}
	if filter.From != nil {
		q = q.Where("check_in_time >= ?", filter.From.UTC())
	}
	if filter.To != nil {
		q = q.Where("check_in_time < ?", filter.To.UTC())
	}

	var rows []models.Visit
	if err := q.Scopes(pagination.Keyset("check_in_time", filter.Cursor, filter.Limit)).Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

// ListOpenStartedBefore returns open visits checked in before cutoff.
func (r *Repository) ListOpenStartedBefore(ctx context.Context, cutoff time.Time) ([]models.Visit, error) {
	var rows []models.Visit
	if err := r.db.WithContext(ctx).
		Where("check_out_time IS NULL AND check_in_time < ?", cutoff.UTC()).
		Order("check_in_time ASC").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}
