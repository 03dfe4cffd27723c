package sessions

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/fieldops-backend/pkg/db/models"
	"github.com/angelmondragon/fieldops-backend/pkg/geo"
)

// Repository persists market sessions and their shown-dealer sets.
type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) CreateTx(tx *gorm.DB, session *models.MarketSession) error {
	if tx == nil {
		return gorm.ErrInvalidTransaction
	}
	if session.ID == uuid.Nil {
		session.ID = uuid.New()
	}
	return tx.Create(session).Error
}

func (r *Repository) FindByID(ctx context.Context, id uuid.UUID) (*models.MarketSession, error) {
	return r.FindByIDTx(r.db.WithContext(ctx), id)
}

func (r *Repository) FindByIDTx(tx *gorm.DB, id uuid.UUID) (*models.MarketSession, error) {
	if tx == nil {
		return nil, gorm.ErrInvalidTransaction
	}
	var session models.MarketSession
	if err := tx.First(&session, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &session, nil
}

// FindOpenByRep returns the representative's open session or
// gorm.ErrRecordNotFound.
func (r *Repository) FindOpenByRep(ctx context.Context, repID uuid.UUID) (*models.MarketSession, error) {
	return r.FindOpenByRepTx(r.db.WithContext(ctx), repID)
}

func (r *Repository) FindOpenByRepTx(tx *gorm.DB, repID uuid.UUID) (*models.MarketSession, error) {
	if tx == nil {
		return nil, gorm.ErrInvalidTransaction
	}
	var session models.MarketSession
	if err := tx.
		Where("representative_id = ? AND end_time IS NULL", repID).
		First(&session).Error; err != nil {
		return nil, err
	}
	return &session, nil
}

// CloseTx ends an open session. It reports false when the session was
// already closed.
func (r *Repository) CloseTx(tx *gorm.DB, id uuid.UUID, endTime time.Time, endLocation *geo.Point, closedBy *uuid.UUID) (bool, error) {
	if tx == nil {
		return false, gorm.ErrInvalidTransaction
	}
	values := map[string]any{
		"end_time":   endTime.UTC(),
		"closed_by":  closedBy,
		"updated_at": endTime.UTC(),
	}
	if endLocation != nil {
		values["end_lat"] = endLocation.Lat
		values["end_lng"] = endLocation.Lng
	}
	res := tx.Model(&models.MarketSession{}).
		Where("id = ? AND end_time IS NULL", id).
		Updates(values)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// AddShownTx records shown dealers. Existing (session, dealer_ref) pairs are
// left untouched so the set only grows.
func (r *Repository) AddShownTx(tx *gorm.DB, rows []models.SessionDealerShown) error {
	if tx == nil {
		return gorm.ErrInvalidTransaction
	}
	if len(rows) == 0 {
		return nil
	}
	return tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "session_id"}, {Name: "dealer_ref"}},
		DoNothing: true,
	}).Create(&rows).Error
}

func (r *Repository) CountShown(ctx context.Context, sessionID uuid.UUID) (int64, error) {
	return r.CountShownTx(r.db.WithContext(ctx), sessionID)
}

func (r *Repository) CountShownTx(tx *gorm.DB, sessionID uuid.UUID) (int64, error) {
	if tx == nil {
		return 0, gorm.ErrInvalidTransaction
	}
	var count int64
	err := tx.Model(&models.SessionDealerShown{}).Where("session_id = ?", sessionID).Count(&count).Error
	return count, err
}

func (r *Repository) ListShown(ctx context.Context, sessionID uuid.UUID) ([]models.SessionDealerShown, error) {
	var rows []models.SessionDealerShown
	if err := r.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("shown_at ASC").Order("dealer_ref ASC").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *Repository) IncrementVisitsCompletedTx(tx *gorm.DB, id uuid.UUID) error {
	if tx == nil {
		return gorm.ErrInvalidTransaction
	}
	return tx.Model(&models.MarketSession{}).
		Where("id = ?", id).
		UpdateColumn("visits_completed", gorm.Expr("visits_completed + ?", 1)).Error
}

func (r *Repository) AddDistanceTx(tx *gorm.DB, id uuid.UUID, meters float64) error {
	if tx == nil {
		return gorm.ErrInvalidTransaction
	}
	if meters <= 0 {
		return nil
	}
	return tx.Model(&models.MarketSession{}).
		Where("id = ? AND end_time IS NULL", id).
		UpdateColumn("total_distance_meters", gorm.Expr("total_distance_meters + ?", meters)).Error
}
