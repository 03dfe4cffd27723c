package representatives

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/fieldops-backend/pkg/db/models"
	"github.com/angelmondragon/fieldops-backend/pkg/enums"
	"github.com/angelmondragon/fieldops-backend/pkg/geo"
)

// Repository persists representative accounts and the in-market projection.
type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) Create(ctx context.Context, rep *models.Representative) error {
	if rep == nil {
		return fmt.Errorf("representative is required")
	}
	if rep.ID == uuid.Nil {
		rep.ID = uuid.New()
	}
	rep.Email = strings.ToLower(strings.TrimSpace(rep.Email))
	return r.db.WithContext(ctx).Create(rep).Error
}

func (r *Repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Representative, error) {
	var rep models.Representative
	if err := r.db.WithContext(ctx).First(&rep, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &rep, nil
}

// FindByIDTx loads a representative inside the caller's transaction.
func (r *Repository) FindByIDTx(tx *gorm.DB, id uuid.UUID) (*models.Representative, error) {
	if tx == nil {
		return nil, gorm.ErrInvalidTransaction
	}
	var rep models.Representative
	if err := tx.First(&rep, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &rep, nil
}

func (r *Repository) FindByEmail(ctx context.Context, email string) (*models.Representative, error) {
	var rep models.Representative
	if err := r.db.WithContext(ctx).
		Where("email = ?", strings.ToLower(strings.TrimSpace(email))).
		First(&rep).Error; err != nil {
		return nil, err
	}
	return &rep, nil
}

// List returns company representatives, optionally filtered by role.
func (r *Repository) List(ctx context.Context, companyID uuid.UUID, role *enums.Role) ([]models.Representative, error) {
	query := r.db.WithContext(ctx).Where("company_id = ?", companyID)
	if role != nil {
		query = query.Where("role = ?", *role)
	}
	var reps []models.Representative
	if err := query.Order("name ASC").Find(&reps).Error; err != nil {
		return nil, err
	}
	return reps, nil
}

// CountActiveSalesReps returns the number of active sales reps and how many
// of them are currently in market.
func (r *Repository) CountActiveSalesReps(ctx context.Context, companyID uuid.UUID) (total int64, inMarket int64, err error) {
	base := r.db.WithContext(ctx).Model(&models.Representative{}).
		Where("company_id = ? AND role = ? AND is_active = ?", companyID, enums.RoleSalesRep, true)
	if err = base.Session(&gorm.Session{}).Count(&total).Error; err != nil {
		return 0, 0, err
	}
	if err = base.Session(&gorm.Session{}).Where("is_in_market = ?", true).Count(&inMarket).Error; err != nil {
		return 0, 0, err
	}
	return total, inMarket, nil
}

// UpdateTerritory replaces the territory restriction.
func (r *Repository) UpdateTerritory(ctx context.Context, id uuid.UUID, territoryID *uuid.UUID, state, city *string, unrestricted bool) error {
	return r.updates(ctx, id, map[string]any{
		"territory_id":    territoryID,
		"territory_state": state,
		"territory_city":  city,
		"unrestricted":    unrestricted,
		"updated_at":      time.Now().UTC(),
	})
}

func (r *Repository) UpdateTargets(ctx context.Context, id uuid.UUID, visitTarget *int, salesTarget decimal.NullDecimal) error {
	return r.updates(ctx, id, map[string]any{
		"daily_visit_target": visitTarget,
		"daily_sales_target": salesTarget,
		"updated_at":         time.Now().UTC(),
	})
}

func (r *Repository) TouchLogin(ctx context.Context, id uuid.UUID, at time.Time) error {
	return r.db.WithContext(ctx).
		Model(&models.Representative{}).
		Where("id = ?", id).
		UpdateColumn("last_login_at", at.UTC()).Error
}

// Deactivate clears is_active. The in_market guard keeps a rep with a live
// session from being retired underneath it.
func (r *Repository) Deactivate(ctx context.Context, id uuid.UUID, at time.Time) error {
	res := r.db.WithContext(ctx).
		Model(&models.Representative{}).
		Where("id = ? AND is_in_market = ?", id, false).
		Updates(map[string]any{"is_active": false, "updated_at": at.UTC()})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// UpdatePasswordHash swaps in a re-derived hash for the same password.
func (r *Repository) UpdatePasswordHash(ctx context.Context, id uuid.UUID, hash string) error {
	return r.updates(ctx, id, map[string]any{"password_hash": hash})
}

// SetInMarketTx writes the in-market projection in the session transaction.
// A nil sessionID clears it.
func (r *Repository) SetInMarketTx(tx *gorm.DB, id uuid.UUID, sessionID *uuid.UUID, location *geo.Point, at time.Time) error {
	if tx == nil {
		return gorm.ErrInvalidTransaction
	}
	values := map[string]any{
		"is_in_market":      sessionID != nil,
		"active_session_id": sessionID,
		"updated_at":        at.UTC(),
	}
	if location != nil {
		values["current_lat"] = location.Lat
		values["current_lng"] = location.Lng
		values["last_location_update"] = at.UTC()
	}
	return tx.Model(&models.Representative{}).Where("id = ?", id).Updates(values).Error
}

// UpdateLocationTx stores the latest position.
func (r *Repository) UpdateLocationTx(tx *gorm.DB, id uuid.UUID, location geo.Point, at time.Time) error {
	if tx == nil {
		return gorm.ErrInvalidTransaction
	}
	return tx.Model(&models.Representative{}).Where("id = ?", id).Updates(map[string]any{
		"current_lat":          location.Lat,
		"current_lng":          location.Lng,
		"last_location_update": at.UTC(),
	}).Error
}

func (r *Repository) updates(ctx context.Context, id uuid.UUID, values map[string]any) error {
	res := r.db.WithContext(ctx).Model(&models.Representative{}).Where("id = ?", id).Updates(values)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}
