package controllers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"

	"github.com/angelmondragon/fieldops-backend/internal/authz"
	"github.com/angelmondragon/fieldops-backend/internal/representatives"
	"github.com/angelmondragon/fieldops-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/fieldops-backend/pkg/errors"
)

type stubRepresentativeService struct {
	rep           *representatives.RepresentativeDTO
	err           error
	deactivatedID uuid.UUID
}

func (s *stubRepresentativeService) Create(ctx context.Context, actor authz.Actor, input representatives.CreateInput) (*representatives.RepresentativeDTO, string, error) {
	return s.rep, "", s.err
}

func (s *stubRepresentativeService) List(ctx context.Context, actor authz.Actor, role *enums.Role) ([]representatives.RepresentativeDTO, error) {
	return nil, s.err
}

func (s *stubRepresentativeService) Get(ctx context.Context, actor authz.Actor, id uuid.UUID) (*representatives.RepresentativeDTO, error) {
	return s.rep, s.err
}

func (s *stubRepresentativeService) AssignTerritory(ctx context.Context, actor authz.Actor, repID uuid.UUID, input representatives.TerritoryAssignment) (*representatives.RepresentativeDTO, error) {
	return s.rep, s.err
}

func (s *stubRepresentativeService) UpdateTargets(ctx context.Context, actor authz.Actor, repID uuid.UUID, input representatives.TargetsInput) (*representatives.RepresentativeDTO, error) {
	return s.rep, s.err
}

func (s *stubRepresentativeService) LiveTracking(ctx context.Context, actor authz.Actor) ([]representatives.LivePosition, error) {
	return nil, s.err
}

func (s *stubRepresentativeService) Deactivate(ctx context.Context, actor authz.Actor, repID uuid.UUID) (*representatives.RepresentativeDTO, error) {
	s.deactivatedID = repID
	return s.rep, s.err
}

func TestRepresentativeDeactivate(t *testing.T) {
	repID := uuid.New()
	svc := &stubRepresentativeService{rep: &representatives.RepresentativeDTO{ID: repID, IsActive: false}}
	req, _ := withActor(httptest.NewRequest(http.MethodDelete, "/api/v1/representatives/"+repID.String(), nil), enums.RoleAdmin)
	req = withURLParam(req, "repId", repID.String())
	rec := httptest.NewRecorder()
	RepresentativeDeactivate(svc, nil).ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", rec.Code)
	}
	if svc.deactivatedID != repID {
		t.Fatalf("expected representative %s got %s", repID, svc.deactivatedID)
	}
}

func TestRepresentativeDeactivateInMarket(t *testing.T) {
	repID := uuid.New()
	svc := &stubRepresentativeService{err: pkgerrors.StateConflict(pkgerrors.ReasonAlreadyInMarket, "representative is in market", nil)}
	req, _ := withActor(httptest.NewRequest(http.MethodDelete, "/api/v1/representatives/"+repID.String(), nil), enums.RoleOrgAdmin)
	req = withURLParam(req, "repId", repID.String())
	rec := httptest.NewRecorder()
	RepresentativeDeactivate(svc, nil).ServeHTTP(rec, req)

	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 got %d", rec.Code)
	}
}

func TestRepresentativeDeactivateBadID(t *testing.T) {
	req, _ := withActor(httptest.NewRequest(http.MethodDelete, "/api/v1/representatives/nope", nil), enums.RoleAdmin)
	req = withURLParam(req, "repId", "nope")
	rec := httptest.NewRecorder()
	RepresentativeDeactivate(&stubRepresentativeService{}, nil).ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", rec.Code)
	}
}
