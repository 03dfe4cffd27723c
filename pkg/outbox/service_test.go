package outbox_test

import (
	"context"
	"encoding/json"
	"io"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/fieldops-backend/internal/testdb"
	"github.com/angelmondragon/fieldops-backend/pkg/db/models"
	"github.com/angelmondragon/fieldops-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/fieldops-backend/pkg/errors"
	"github.com/angelmondragon/fieldops-backend/pkg/logger"
	"github.com/angelmondragon/fieldops-backend/pkg/outbox"
	"github.com/angelmondragon/fieldops-backend/pkg/outbox/payloads"
)

func newTestService(t *testing.T) (*outbox.Service, *outbox.Repository, *gorm.DB, func(func(tx *gorm.DB) error) error) {
	t.Helper()
	conn, client := testdb.Open(t)
	repo := outbox.NewRepository(conn)
	logg := logger.New(logger.Options{ServiceName: "test", Output: io.Discard})
	svc := outbox.NewService(repo, logg)
	withTx := func(fn func(tx *gorm.DB) error) error {
		return client.WithTx(context.Background(), fn)
	}
	return svc, repo, conn, withTx
}

func TestEmitWritesEnvelope(t *testing.T) {
	svc, _, conn, withTx := newTestService(t)
	sessionID := uuid.New()
	actor := &outbox.ActorRef{UserID: uuid.New(), CompanyID: uuid.New(), Role: string(enums.RoleSalesRep)}

	err := withTx(func(tx *gorm.DB) error {
		return svc.Emit(context.Background(), tx, outbox.DomainEvent{
			EventType:     enums.EventMarketSessionStarted,
			AggregateType: enums.AggregateMarketSession,
			AggregateID:   sessionID,
			Actor:         actor,
			Data:          payloads.MarketSessionStartedEvent{SessionID: sessionID},
		})
	})
	require.NoError(t, err)

	var rows []models.OutboxEvent
	require.NoError(t, conn.Find(&rows).Error)
	require.Len(t, rows, 1)
	assert.Equal(t, enums.EventMarketSessionStarted, rows[0].EventType)
	assert.Equal(t, sessionID, rows[0].AggregateID)

	var envelope outbox.PayloadEnvelope
	require.NoError(t, json.Unmarshal(rows[0].Payload, &envelope))
	assert.Equal(t, 1, envelope.Version)
	assert.NotEmpty(t, envelope.EventID)
	require.NotNil(t, envelope.Actor)
	assert.Equal(t, actor.UserID, envelope.Actor.UserID)

	var data payloads.MarketSessionStartedEvent
	require.NoError(t, json.Unmarshal(envelope.Data, &data))
	assert.Equal(t, sessionID, data.SessionID)
}

func TestEmitRequiresTransaction(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	err := svc.Emit(context.Background(), nil, outbox.DomainEvent{EventType: enums.EventLeadAssigned})
	assert.Error(t, err)
}

func TestEmitIfNotExistsDeduplicates(t *testing.T) {
	svc, _, conn, withTx := newTestService(t)
	leadID := uuid.New()
	event := outbox.DomainEvent{
		EventType:     enums.EventLeadDiscovered,
		AggregateType: enums.AggregatePotentialDealer,
		AggregateID:   leadID,
		Data:          payloads.LeadDiscoveredEvent{PotentialDealerID: leadID},
	}

	for i := 0; i < 2; i++ {
		require.NoError(t, withTx(func(tx *gorm.DB) error {
			return svc.EmitIfNotExists(context.Background(), tx, event)
		}))
	}

	var count int64
	require.NoError(t, conn.Model(&models.OutboxEvent{}).Count(&count).Error)
	assert.EqualValues(t, 1, count)
}

func TestRepositoryPublishLifecycle(t *testing.T) {
	svc, repo, conn, withTx := newTestService(t)
	ctx := context.Background()

	emit := func(id uuid.UUID) {
		require.NoError(t, withTx(func(tx *gorm.DB) error {
			return svc.Emit(ctx, tx, outbox.DomainEvent{
				EventType:     enums.EventVisitCheckedIn,
				AggregateType: enums.AggregateVisit,
				AggregateID:   id,
				Data:          payloads.VisitCheckedInEvent{VisitID: id},
			})
		}))
	}
	emit(uuid.New())
	emit(uuid.New())

	var pending []models.OutboxEvent
	require.NoError(t, withTx(func(tx *gorm.DB) error {
		var err error
		pending, err = repo.FetchUnpublishedForPublish(tx, 10, 3)
		return err
	}))
	require.Len(t, pending, 2)

	require.NoError(t, withTx(func(tx *gorm.DB) error {
		if err := repo.MarkPublishedTx(tx, pending[0].ID); err != nil {
			return err
		}
		return repo.MarkTerminalTx(tx, pending[1].ID, assert.AnError, 3)
	}))

	require.NoError(t, withTx(func(tx *gorm.DB) error {
		var err error
		pending, err = repo.FetchUnpublishedForPublish(tx, 10, 3)
		return err
	}))
	assert.Empty(t, pending)

	deleted, err := repo.DeletePublishedBefore(ctx, time.Now().Add(time.Minute))
	require.NoError(t, err)
	assert.EqualValues(t, 1, deleted)

	var remaining int64
	require.NoError(t, conn.Model(&models.OutboxEvent{}).Count(&remaining).Error)
	assert.EqualValues(t, 1, remaining)
}

func TestEmitRejectsIncompleteEvents(t *testing.T) {
	svc, _, conn, withTx := newTestService(t)
	visitID := uuid.New()

	cases := map[string]outbox.DomainEvent{
		"unknown type":      {EventType: "visit_teleported", AggregateType: enums.AggregateVisit, AggregateID: visitID, Data: struct{}{}},
		"unknown aggregate": {EventType: enums.EventVisitCheckedIn, AggregateType: "galaxy", AggregateID: visitID, Data: struct{}{}},
		"wrong aggregate":   {EventType: enums.EventLeadAssigned, AggregateType: enums.AggregateVisit, AggregateID: visitID, Data: struct{}{}},
		"nil aggregate id":  {EventType: enums.EventVisitCheckedIn, AggregateType: enums.AggregateVisit, Data: struct{}{}},
		"no payload":        {EventType: enums.EventVisitCheckedIn, AggregateType: enums.AggregateVisit, AggregateID: visitID},
	}
	for name, event := range cases {
		t.Run(name, func(t *testing.T) {
			err := withTx(func(tx *gorm.DB) error {
				return svc.Emit(context.Background(), tx, event)
			})
			require.Error(t, err)
			assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeInternal))
		})
	}

	var count int64
	require.NoError(t, conn.Model(&models.OutboxEvent{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestEmitSharesRowAndEnvelopeID(t *testing.T) {
	svc, _, conn, withTx := newTestService(t)
	visitID := uuid.New()
	occurred := time.Date(2026, 3, 2, 15, 4, 5, 0, time.FixedZone("CST", -6*3600))

	require.NoError(t, withTx(func(tx *gorm.DB) error {
		return svc.Emit(context.Background(), tx, outbox.DomainEvent{
			EventType:     enums.EventVisitCheckedIn,
			AggregateType: enums.AggregateVisit,
			AggregateID:   visitID,
			OccurredAt:    occurred,
			Data:          payloads.VisitCheckedInEvent{VisitID: visitID},
		})
	}))

	var row models.OutboxEvent
	require.NoError(t, conn.First(&row).Error)
	var envelope outbox.PayloadEnvelope
	require.NoError(t, json.Unmarshal(row.Payload, &envelope))

	assert.Equal(t, row.ID.String(), envelope.EventID)
	assert.Equal(t, uuid.Version(7), row.ID.Version())
	assert.True(t, envelope.OccurredAt.Equal(occurred))
	assert.Equal(t, time.UTC, envelope.OccurredAt.Location())
}
