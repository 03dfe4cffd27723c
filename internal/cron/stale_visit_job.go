package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/angelmondragon/fieldops-backend/pkg/db/models"
	"github.com/angelmondragon/fieldops-backend/pkg/logger"
)

const staleVisitAfter = 8 * time.Hour

type StaleVisitJobParams struct {
	Logger     *logger.Logger
	Repository staleVisitRepo
	Gauge      staleVisitGauge
	After      time.Duration
}

type staleVisitRepo interface {
	ListOpenStartedBefore(ctx context.Context, cutoff time.Time) ([]models.Visit, error)
}

type staleVisitGauge interface {
	SetStaleVisits(count int)
}

// NewStaleVisitJob reports visits left checked in longer than the threshold.
// Visits are never closed here; a supervisor force-checkout is the only path
// that abandons them.
func NewStaleVisitJob(params StaleVisitJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Repository == nil {
		return nil, fmt.Errorf("visit repository required")
	}
	after := params.After
	if after <= 0 {
		after = staleVisitAfter
	}
	return &staleVisitJob{
		logg:  params.Logger,
		repo:  params.Repository,
		gauge: params.Gauge,
		after: after,
		now:   time.Now,
	}, nil
}

type staleVisitJob struct {
	logg  *logger.Logger
	repo  staleVisitRepo
	gauge staleVisitGauge
	after time.Duration
	now   func() time.Time
}

func (j *staleVisitJob) Name() string { return "stale-visits" }

func (j *staleVisitJob) Run(ctx context.Context) error {
	now := j.now().UTC()
	cutoff := now.Add(-j.after)
	visits, err := j.repo.ListOpenStartedBefore(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("list stale visits: %w", err)
	}
	if j.gauge != nil {
		j.gauge.SetStaleVisits(len(visits))
	}
	for _, visit := range visits {
		visitCtx := j.logg.WithFields(ctx, map[string]any{
			"visit_id":          visit.ID.String(),
			"company_id":        visit.CompanyID.String(),
			"representative_id": visit.RepresentativeID.String(),
			"dealer_name":       visit.DealerName,
			"open_minutes":      int(now.Sub(visit.CheckInTime).Minutes()),
		})
		j.logg.Warn(visitCtx, "visit still checked in")
	}
	logCtx := j.logg.WithFields(ctx, map[string]any{
		"cutoff":       cutoff,
		"stale_visits": len(visits),
	})
	j.logg.Info(logCtx, "stale visit scan complete")
	return nil
}
