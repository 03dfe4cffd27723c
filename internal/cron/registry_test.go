package cron

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type stubJob struct {
	name string
}

func (s *stubJob) Name() string              { return s.name }
func (s *stubJob) Run(context.Context) error { return nil }

func TestRegistryStoresJobs(t *testing.T) {
	registry := NewRegistry()
	jobA := &stubJob{name: "a"}
	jobB := &stubJob{name: "b"}
	registry.Register(jobA)
	registry.Register(nil)
	registry.Register(jobB)

	jobs := registry.Jobs()
	require.Equal(t, []Job{jobA, jobB}, jobs)

	jobs[0] = nil
	require.NotNil(t, registry.Jobs()[0])
}

func TestRegistryDueHonorsPeriod(t *testing.T) {
	every := &stubJob{name: "stale-visits"}
	daily := &stubJob{name: "outbox-retention"}
	registry := NewRegistry(every)
	registry.RegisterEvery(daily, 24*time.Hour)

	start := time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)
	require.Equal(t, []Job{every, daily}, registry.Due(start))
	require.Equal(t, []Job{every}, registry.Due(start.Add(15*time.Minute)))
	require.Equal(t, []Job{every, daily}, registry.Due(start.Add(24*time.Hour)))
}
