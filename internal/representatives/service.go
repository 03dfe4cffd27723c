package representatives

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/fieldops-backend/internal/authz"
	"github.com/angelmondragon/fieldops-backend/pkg/config"
	"github.com/angelmondragon/fieldops-backend/pkg/db"
	"github.com/angelmondragon/fieldops-backend/pkg/db/models"
	"github.com/angelmondragon/fieldops-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/fieldops-backend/pkg/errors"
	"github.com/angelmondragon/fieldops-backend/pkg/security"
)

const tempPasswordLength = 16

type representativeRepository interface {
	Create(ctx context.Context, rep *models.Representative) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Representative, error)
	FindByEmail(ctx context.Context, email string) (*models.Representative, error)
	List(ctx context.Context, companyID uuid.UUID, role *enums.Role) ([]models.Representative, error)
	UpdateTerritory(ctx context.Context, id uuid.UUID, territoryID *uuid.UUID, state, city *string, unrestricted bool) error
	UpdateTargets(ctx context.Context, id uuid.UUID, visitTarget *int, salesTarget decimal.NullDecimal) error
	Deactivate(ctx context.Context, id uuid.UUID, at time.Time) error
}

type territoryResolver interface {
	NormalizeReference(ctx context.Context, companyID uuid.UUID, ref string) (*models.Territory, error)
}

// Service administers representative accounts.
type Service interface {
	Create(ctx context.Context, actor authz.Actor, input CreateInput) (*RepresentativeDTO, string, error)
	List(ctx context.Context, actor authz.Actor, role *enums.Role) ([]RepresentativeDTO, error)
	Get(ctx context.Context, actor authz.Actor, id uuid.UUID) (*RepresentativeDTO, error)
	AssignTerritory(ctx context.Context, actor authz.Actor, repID uuid.UUID, input TerritoryAssignment) (*RepresentativeDTO, error)
	UpdateTargets(ctx context.Context, actor authz.Actor, repID uuid.UUID, input TargetsInput) (*RepresentativeDTO, error)
	LiveTracking(ctx context.Context, actor authz.Actor) ([]LivePosition, error)
	Deactivate(ctx context.Context, actor authz.Actor, repID uuid.UUID) (*RepresentativeDTO, error)
}

type service struct {
	repo        representativeRepository
	territories territoryResolver
	passwordCfg config.PasswordConfig
}

func NewService(repo representativeRepository, territories territoryResolver, passwordCfg config.PasswordConfig) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("representative repository required")
	}
	if territories == nil {
		return nil, fmt.Errorf("territory resolver required")
	}
	return &service{repo: repo, territories: territories, passwordCfg: passwordCfg}, nil
}

// creatableRoles lists the roles each administrator may provision and
// deactivate.
var creatableRoles = map[enums.Role][]enums.Role{
	enums.RoleOrgAdmin: {enums.RoleAdmin, enums.RoleHOD, enums.RoleSalesRep, enums.RoleOwner},
	enums.RoleAdmin:    {enums.RoleHOD, enums.RoleSalesRep},
}

func (s *service) Create(ctx context.Context, actor authz.Actor, input CreateInput) (*RepresentativeDTO, string, error) {
	if err := authz.Require(actor, authz.CapManageCompany, authz.Scope{CompanyID: actor.CompanyID}); err != nil {
		return nil, "", err
	}
	if input.Role == "" {
		input.Role = enums.RoleSalesRep
	}
	if !canCreate(actor.Role, input.Role) {
		return nil, "", pkgerrors.Forbidden(pkgerrors.ReasonCapabilityDenied, "cannot create accounts with role "+string(input.Role))
	}

	name := strings.TrimSpace(input.Name)
	if name == "" {
		return nil, "", pkgerrors.New(pkgerrors.CodeValidation, "name is required")
	}
	if _, err := mail.ParseAddress(input.Email); err != nil {
		return nil, "", pkgerrors.New(pkgerrors.CodeValidation, "invalid email")
	}
	if _, err := s.repo.FindByEmail(ctx, input.Email); err == nil {
		return nil, "", pkgerrors.New(pkgerrors.CodeConflict, "email already exists")
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, "", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lookup email")
	}

	password := input.Password
	var tempPassword string
	if password == "" {
		generated, err := security.GenerateTempPassword(tempPasswordLength)
		if err != nil {
			return nil, "", pkgerrors.Wrap(pkgerrors.CodeInternal, err, "generate temp password")
		}
		password, tempPassword = generated, generated
	}
	hash, err := security.HashPassword(password, s.passwordCfg)
	if err != nil {
		return nil, "", pkgerrors.Wrap(pkgerrors.CodeInternal, err, "hash password")
	}

	rep := &models.Representative{
		CompanyID:    actor.CompanyID,
		Name:         name,
		Email:        input.Email,
		Mobile:       input.Mobile,
		EmployeeCode: input.EmployeeCode,
		PasswordHash: hash,
		Role:         input.Role,
		IsActive:     true,
		Unrestricted: true,
	}
	if input.TerritoryRef != nil {
		territory, err := s.territories.NormalizeReference(ctx, actor.CompanyID, *input.TerritoryRef)
		if err != nil {
			return nil, "", err
		}
		applyTerritory(rep, territory)
	}

	if err := s.repo.Create(ctx, rep); err != nil {
		if db.IsUniqueViolation(err, "") {
			return nil, "", pkgerrors.New(pkgerrors.CodeConflict, "email already exists")
		}
		return nil, "", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create representative")
	}
	dto := FromModel(rep)
	return &dto, tempPassword, nil
}

func (s *service) List(ctx context.Context, actor authz.Actor, role *enums.Role) ([]RepresentativeDTO, error) {
	if err := authz.Require(actor, authz.CapViewTeam, authz.Scope{CompanyID: actor.CompanyID}); err != nil {
		return nil, err
	}
	reps, err := s.repo.List(ctx, actor.CompanyID, role)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list representatives")
	}
	out := make([]RepresentativeDTO, 0, len(reps))
	for i := range reps {
		out = append(out, FromModel(&reps[i]))
	}
	return out, nil
}

func (s *service) Get(ctx context.Context, actor authz.Actor, id uuid.UUID) (*RepresentativeDTO, error) {
	if id != actor.UserID {
		if err := authz.Require(actor, authz.CapViewTeam, authz.Scope{CompanyID: actor.CompanyID}); err != nil {
			return nil, err
		}
	}
	rep, err := s.load(ctx, actor.CompanyID, id)
	if err != nil {
		return nil, err
	}
	dto := FromModel(rep)
	return &dto, nil
}

func (s *service) AssignTerritory(ctx context.Context, actor authz.Actor, repID uuid.UUID, input TerritoryAssignment) (*RepresentativeDTO, error) {
	if err := authz.Require(actor, authz.CapManageCompany, authz.Scope{CompanyID: actor.CompanyID}); err != nil {
		return nil, err
	}
	rep, err := s.load(ctx, actor.CompanyID, repID)
	if err != nil {
		return nil, err
	}

	switch {
	case input.Unrestricted:
		rep.TerritoryID, rep.TerritoryState, rep.TerritoryCity = nil, nil, nil
		rep.Unrestricted = true
	case input.TerritoryRef != nil:
		territory, err := s.territories.NormalizeReference(ctx, actor.CompanyID, *input.TerritoryRef)
		if err != nil {
			return nil, err
		}
		applyTerritory(rep, territory)
	default:
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "territory_id or unrestricted is required")
	}

	if err := s.repo.UpdateTerritory(ctx, rep.ID, rep.TerritoryID, rep.TerritoryState, rep.TerritoryCity, rep.Unrestricted); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update territory")
	}
	dto := FromModel(rep)
	return &dto, nil
}

func (s *service) UpdateTargets(ctx context.Context, actor authz.Actor, repID uuid.UUID, input TargetsInput) (*RepresentativeDTO, error) {
	if err := authz.Require(actor, authz.CapManageCompany, authz.Scope{CompanyID: actor.CompanyID}); err != nil {
		return nil, err
	}
	if input.DailyVisitTarget != nil && *input.DailyVisitTarget < 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "daily_visit_target must not be negative")
	}
	if input.DailySalesTarget != nil && input.DailySalesTarget.IsNegative() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "daily_sales_target must not be negative")
	}
	rep, err := s.load(ctx, actor.CompanyID, repID)
	if err != nil {
		return nil, err
	}

	rep.DailyVisitTarget = input.DailyVisitTarget
	rep.DailySalesTarget = decimal.NullDecimal{}
	if input.DailySalesTarget != nil {
		rep.DailySalesTarget = decimal.NewNullDecimal(*input.DailySalesTarget)
	}
	if err := s.repo.UpdateTargets(ctx, rep.ID, rep.DailyVisitTarget, rep.DailySalesTarget); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update targets")
	}
	dto := FromModel(rep)
	return &dto, nil
}

func (s *service) LiveTracking(ctx context.Context, actor authz.Actor) ([]LivePosition, error) {
	if err := authz.Require(actor, authz.CapTrackLive, authz.Scope{CompanyID: actor.CompanyID}); err != nil {
		return nil, err
	}
	role := enums.RoleSalesRep
	reps, err := s.repo.List(ctx, actor.CompanyID, &role)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list representatives")
	}
	out := make([]LivePosition, 0, len(reps))
	for _, rep := range reps {
		if !rep.IsActive {
			continue
		}
		pos := LivePosition{
			RepresentativeID: rep.ID,
			Name:             rep.Name,
			IsInMarket:       rep.IsInMarket,
			ActiveSessionID:  rep.ActiveSessionID,
			LastUpdate:       rep.LastLocationUpdate,
		}
		if loc, ok := rep.CurrentLocation(); ok {
			pos.Location = &loc
		}
		out = append(out, pos)
	}
	return out, nil
}

// Deactivate retires an account. Rows are kept so visit history still
// resolves. A rep who is in market must have the session closed first.
func (s *service) Deactivate(ctx context.Context, actor authz.Actor, repID uuid.UUID) (*RepresentativeDTO, error) {
	if err := authz.Require(actor, authz.CapManageCompany, authz.Scope{CompanyID: actor.CompanyID}); err != nil {
		return nil, err
	}
	if repID == actor.UserID {
		return nil, pkgerrors.Forbidden(pkgerrors.ReasonCapabilityDenied, "cannot deactivate your own account")
	}
	rep, err := s.load(ctx, actor.CompanyID, repID)
	if err != nil {
		return nil, err
	}
	if !canCreate(actor.Role, rep.Role) {
		return nil, pkgerrors.Forbidden(pkgerrors.ReasonCapabilityDenied, "cannot deactivate accounts with role "+string(rep.Role))
	}
	if rep.IsInMarket {
		state := map[string]any{"representative_id": rep.ID}
		if rep.ActiveSessionID != nil {
			state["session_id"] = *rep.ActiveSessionID
		}
		return nil, pkgerrors.StateConflict(pkgerrors.ReasonAlreadyInMarket, "representative is in market; end the session first", state)
	}

	if rep.IsActive {
		if err := s.repo.Deactivate(ctx, rep.ID, time.Now()); err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, pkgerrors.StateConflict(pkgerrors.ReasonAlreadyInMarket, "representative is in market; end the session first", map[string]any{"representative_id": rep.ID})
			}
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "deactivate representative")
		}
		rep.IsActive = false
	}
	dto := FromModel(rep)
	return &dto, nil
}

func (s *service) load(ctx context.Context, companyID, id uuid.UUID) (*models.Representative, error) {
	rep, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.NotFound(pkgerrors.ReasonRepresentativeNotFound, "representative not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load representative")
	}
	if rep.CompanyID != companyID {
		return nil, pkgerrors.NotFound(pkgerrors.ReasonRepresentativeNotFound, "representative not found")
	}
	return rep, nil
}

func applyTerritory(rep *models.Representative, territory *models.Territory) {
	id := territory.ID
	rep.TerritoryID = &id
	rep.TerritoryState = territory.State
	rep.TerritoryCity = territory.City
	rep.Unrestricted = false
}

func canCreate(actor, target enums.Role) bool {
	for _, r := range creatableRoles[actor] {
		if r == target {
			return true
		}
	}
	return false
}
