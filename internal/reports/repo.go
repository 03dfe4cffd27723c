package reports

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/fieldops-backend/pkg/db/models"
	"github.com/angelmondragon/fieldops-backend/pkg/enums"
	"github.com/angelmondragon/fieldops-backend/pkg/types"
)

// Repository runs the read-only rollup queries over visits and sessions.
type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// completedClause matches closed visits with a user outcome.
const completedClause = "check_out_time IS NOT NULL AND outcome IS NOT NULL AND outcome <> ?"

type repVisitRow struct {
	RepresentativeID uuid.UUID           `gorm:"column:representative_id"`
	Total            int64               `gorm:"column:total"`
	Completed        int64               `gorm:"column:completed"`
	Orders           decimal.NullDecimal `gorm:"column:orders"`
	AvgMinutes       *float64            `gorm:"column:avg_minutes"`
}

type sessionLostRow struct {
	models.MarketSession
	DealersShown int64 `gorm:"column:dealers_shown"`
}

// VisitedRefs returns the dealer refs repID completed with a check-out in
// [from, to].
func (r *Repository) VisitedRefs(ctx context.Context, repID uuid.UUID, from, to time.Time) (map[types.DealerRef]struct{}, error) {
	var refs []string
	if err := r.db.WithContext(ctx).Model(&models.Visit{}).
		Distinct("dealer_ref").
		Where("representative_id = ?", repID).
		Where(completedClause, enums.OutcomeAbandoned).
		Where("check_out_time >= ? AND check_out_time <= ?", from.UTC(), to.UTC()).
		Pluck("dealer_ref", &refs).Error; err != nil {
		return nil, err
	}
	out := make(map[types.DealerRef]struct{}, len(refs))
	for _, ref := range refs {
		out[types.DealerRef(ref)] = struct{}{}
	}
	return out, nil
}

// CompletedTotals counts completed visits closed in [from, to) and sums
// their order value.
func (r *Repository) CompletedTotals(ctx context.Context, companyID uuid.UUID, from, to time.Time) (int64, decimal.Decimal, error) {
	var row struct {
		Completed int64               `gorm:"column:completed"`
		Orders    decimal.NullDecimal `gorm:"column:orders"`
	}
	err := r.db.WithContext(ctx).Model(&models.Visit{}).
		Select("COUNT(*) AS completed, SUM(order_value) AS orders").
		Where("company_id = ?", companyID).
		Where(completedClause, enums.OutcomeAbandoned).
		Where("check_out_time >= ? AND check_out_time < ?", from.UTC(), to.UTC()).
		Scan(&row).Error
	if err != nil {
		return 0, decimal.Zero, err
	}
	orders := decimal.Zero
	if row.Orders.Valid {
		orders = row.Orders.Decimal
	}
	return row.Completed, orders, nil
}

// RepVisitStats aggregates every visit per representative of the company.
func (r *Repository) RepVisitStats(ctx context.Context, companyID uuid.UUID, repID *uuid.UUID) (map[uuid.UUID]repVisitRow, error) {
	q := r.db.WithContext(ctx).Model(&models.Visit{}).
		Select(`representative_id,
			COUNT(*) AS total,
			SUM(CASE WHEN `+completedClause+` THEN 1 ELSE 0 END) AS completed,
			SUM(order_value) AS orders,
			AVG(CASE WHEN check_out_time IS NOT NULL THEN time_spent_minutes END) AS avg_minutes`, enums.OutcomeAbandoned).
		Where("company_id = ?", companyID).
		Group("representative_id")
	if repID != nil {
		q = q.Where("representative_id = ?", *repID)
	}
	var rows []repVisitRow
	if err := q.Scan(&rows).Error; err != nil {
		return nil, err
	}
	out := make(map[uuid.UUID]repVisitRow, len(rows))
	for _, row := range rows {
		out[row.RepresentativeID] = row
	}
	return out, nil
}

// LostOutcomeVisits lists the latest visits closed as lost.
func (r *Repository) LostOutcomeVisits(ctx context.Context, companyID uuid.UUID, limit int) ([]models.Visit, error) {
	var rows []models.Visit
	if err := r.db.WithContext(ctx).
		Where("company_id = ? AND outcome = ?", companyID, enums.OutcomeLostVisit).
		Order("check_out_time DESC").
		Limit(limit).
		Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

// RecentClosedSessions returns closed sessions with their shown counts.
func (r *Repository) RecentClosedSessions(ctx context.Context, companyID uuid.UUID, limit int) ([]sessionLostRow, error) {
	var rows []sessionLostRow
	if err := r.db.WithContext(ctx).Model(&models.MarketSession{}).
		Select("market_sessions.*, (SELECT COUNT(*) FROM session_dealers_shown s WHERE s.session_id = market_sessions.id) AS dealers_shown").
		Where("market_sessions.company_id = ? AND market_sessions.end_time IS NOT NULL", companyID).
		Order("market_sessions.end_time DESC").
		Limit(limit).
		Scan(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}
