package companies

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/fieldops-backend/internal/authz"
	"github.com/angelmondragon/fieldops-backend/internal/testdb"
	"github.com/angelmondragon/fieldops-backend/pkg/db/models"
	"github.com/angelmondragon/fieldops-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/fieldops-backend/pkg/errors"
)

func newFixture(t *testing.T) (Service, *Repository, *models.Company) {
	t.Helper()
	conn, _ := testdb.Open(t)
	repo := NewRepository(conn)
	company := &models.Company{Name: "Acme", Config: models.DefaultCompanyConfig(0)}
	require.NoError(t, repo.Create(context.Background(), company))

	svc, err := NewService(repo, 500)
	require.NoError(t, err)
	return svc, repo, company
}

func TestNewServiceRequiresRepo(t *testing.T) {
	_, err := NewService(nil, 500)
	require.Error(t, err)
}

func TestGetConfigFallsBackToDefaultRadius(t *testing.T) {
	svc, _, company := newFixture(t)
	actor := authz.Actor{UserID: uuid.New(), CompanyID: company.ID, Role: enums.RoleSalesRep}

	cfg, err := svc.GetConfig(context.Background(), actor)
	require.NoError(t, err)
	assert.Equal(t, 500, cfg.VisitRadiusMeters)
	assert.Equal(t, []string{"Retailer", "Distributor", "Wholesaler"}, cfg.DealerTypes)

	radius, err := svc.VisitRadius(context.Background(), company.ID)
	require.NoError(t, err)
	assert.Equal(t, 500, radius)
}

func TestUpdateConfigPersists(t *testing.T) {
	svc, repo, company := newFixture(t)
	actor := authz.Actor{UserID: uuid.New(), CompanyID: company.ID, Role: enums.RoleAdmin}

	radius := 300
	target := decimal.NewFromInt(25000)
	products := []models.CatalogProduct{{Name: " Cement "}, {Name: "Cement"}, {Name: "Steel"}}
	cfg, err := svc.UpdateConfig(context.Background(), actor, UpdateConfigInput{
		VisitRadiusMeters: &radius,
		Products:          &products,
		SalesTarget:       &target,
	})
	require.NoError(t, err)
	assert.Equal(t, 300, cfg.VisitRadiusMeters)
	require.Len(t, cfg.Products, 2)

	stored, err := repo.FindByID(context.Background(), company.ID)
	require.NoError(t, err)
	assert.Equal(t, 300, stored.Config.VisitRadiusMeters)
	assert.True(t, stored.Config.HasProduct("Steel"))
	assert.False(t, stored.Config.HasProduct("Sand"))
	require.NotNil(t, stored.Config.SalesTarget)
	assert.True(t, stored.Config.SalesTarget.Equal(target))
}

func TestUpdateConfigRejectsInvalidRadius(t *testing.T) {
	svc, _, company := newFixture(t)
	actor := authz.Actor{UserID: uuid.New(), CompanyID: company.ID, Role: enums.RoleOrgAdmin}

	radius := 0
	_, err := svc.UpdateConfig(context.Background(), actor, UpdateConfigInput{VisitRadiusMeters: &radius})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

func TestUpdateConfigRequiresManageCapability(t *testing.T) {
	svc, _, company := newFixture(t)
	actor := authz.Actor{UserID: uuid.New(), CompanyID: company.ID, Role: enums.RoleHOD}

	radius := 200
	_, err := svc.UpdateConfig(context.Background(), actor, UpdateConfigInput{VisitRadiusMeters: &radius})
	assert.Equal(t, pkgerrors.ReasonCapabilityDenied, pkgerrors.ReasonOf(err))
}

func TestGetConfigUnknownCompany(t *testing.T) {
	svc, _, _ := newFixture(t)
	actor := authz.Actor{UserID: uuid.New(), CompanyID: uuid.New(), Role: enums.RoleAdmin}

	_, err := svc.GetConfig(context.Background(), actor)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
}
