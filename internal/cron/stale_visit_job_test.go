package cron

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/fieldops-backend/pkg/db/models"
	"github.com/angelmondragon/fieldops-backend/pkg/logger"
)

type fakeStaleVisitRepo struct {
	cutoff time.Time
	rows   []models.Visit
	err    error
}

func (f *fakeStaleVisitRepo) ListOpenStartedBefore(_ context.Context, cutoff time.Time) ([]models.Visit, error) {
	f.cutoff = cutoff
	return f.rows, f.err
}

type fakeGauge struct {
	value int
	calls int
}

func (f *fakeGauge) SetStaleVisits(count int) {
	f.value = count
	f.calls++
}

func TestStaleVisitJobReportsOpenVisits(t *testing.T) {
	now := time.Date(2026, 3, 2, 18, 0, 0, 0, time.UTC)
	repo := &fakeStaleVisitRepo{rows: []models.Visit{
		{ID: uuid.New(), CompanyID: uuid.New(), RepresentativeID: uuid.New(), DealerName: "Sharma Traders", CheckInTime: now.Add(-9 * time.Hour)},
		{ID: uuid.New(), CompanyID: uuid.New(), RepresentativeID: uuid.New(), DealerName: "Gupta Hardware", CheckInTime: now.Add(-12 * time.Hour)},
	}}
	gauge := &fakeGauge{}
	jobIface, err := NewStaleVisitJob(StaleVisitJobParams{
		Logger:     logger.New(logger.Options{ServiceName: "test"}),
		Repository: repo,
		Gauge:      gauge,
	})
	require.NoError(t, err)
	job := jobIface.(*staleVisitJob)
	job.now = func() time.Time { return now }

	require.NoError(t, job.Run(context.Background()))
	require.True(t, repo.cutoff.Equal(now.Add(-staleVisitAfter)))
	require.Equal(t, 2, gauge.value)
	require.Equal(t, 1, gauge.calls)
}

func TestStaleVisitJobCustomThresholdAndNoGauge(t *testing.T) {
	now := time.Date(2026, 3, 2, 18, 0, 0, 0, time.UTC)
	repo := &fakeStaleVisitRepo{}
	jobIface, err := NewStaleVisitJob(StaleVisitJobParams{
		Logger:     logger.New(logger.Options{ServiceName: "test"}),
		Repository: repo,
		After:      2 * time.Hour,
	})
	require.NoError(t, err)
	job := jobIface.(*staleVisitJob)
	job.now = func() time.Time { return now }

	require.NoError(t, job.Run(context.Background()))
	require.True(t, repo.cutoff.Equal(now.Add(-2*time.Hour)))
}

func TestStaleVisitJobPropagatesError(t *testing.T) {
	repo := &fakeStaleVisitRepo{err: errors.New("db down")}
	gauge := &fakeGauge{}
	job, err := NewStaleVisitJob(StaleVisitJobParams{
		Logger:     logger.New(logger.Options{ServiceName: "test"}),
		Repository: repo,
		Gauge:      gauge,
	})
	require.NoError(t, err)

	require.Error(t, job.Run(context.Background()))
	require.Zero(t, gauge.calls)
}

func TestNewStaleVisitJobValidates(t *testing.T) {
	_, err := NewStaleVisitJob(StaleVisitJobParams{Repository: &fakeStaleVisitRepo{}})
	require.Error(t, err)
	_, err = NewStaleVisitJob(StaleVisitJobParams{Logger: logger.New(logger.Options{ServiceName: "test"})})
	require.Error(t, err)
}
