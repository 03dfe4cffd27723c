package territories

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/fieldops-backend/internal/authz"
	"github.com/angelmondragon/fieldops-backend/pkg/db"
	"github.com/angelmondragon/fieldops-backend/pkg/db/models"
	"github.com/angelmondragon/fieldops-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/fieldops-backend/pkg/errors"
)

type territoryRepository interface {
	Create(ctx context.Context, territory *models.Territory) error
	FindByID(ctx context.Context, companyID, id uuid.UUID) (*models.Territory, error)
	FindByName(ctx context.Context, companyID uuid.UUID, name string) ([]models.Territory, error)
	List(ctx context.Context, companyID uuid.UUID, kind *enums.TerritoryType) ([]models.Territory, error)
	Update(ctx context.Context, territory *models.Territory) error
	CountChildren(ctx context.Context, companyID, id uuid.UUID) (int64, error)
	Delete(ctx context.Context, companyID, id uuid.UUID) error
}

// Service manages the territory hierarchy.
type Service interface {
	Create(ctx context.Context, actor authz.Actor, input TerritoryInput) (*TerritoryDTO, error)
	List(ctx context.Context, actor authz.Actor, kind *enums.TerritoryType) ([]TerritoryDTO, error)
	Update(ctx context.Context, actor authz.Actor, id uuid.UUID, input TerritoryInput) (*TerritoryDTO, error)
	Delete(ctx context.Context, actor authz.Actor, id uuid.UUID) error
	// Get loads a same-company territory; used by dealer and representative writes.
	Get(ctx context.Context, companyID, id uuid.UUID) (*models.Territory, error)
	// NormalizeReference resolves a territory reference that may be a uuid or
	// a legacy display name into the territory row. Only used on admin write
	// paths while legacy clients still send names.
	NormalizeReference(ctx context.Context, companyID uuid.UUID, ref string) (*models.Territory, error)
}

type service struct {
	repo territoryRepository
}

func NewService(repo territoryRepository) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("territory repository required")
	}
	return &service{repo: repo}, nil
}

func (s *service) Create(ctx context.Context, actor authz.Actor, input TerritoryInput) (*TerritoryDTO, error) {
	if err := authz.Require(actor, authz.CapManageCompany, authz.Scope{CompanyID: actor.CompanyID}); err != nil {
		return nil, err
	}
	territory := &models.Territory{CompanyID: actor.CompanyID}
	if err := s.apply(ctx, territory, input); err != nil {
		return nil, err
	}
	if err := s.repo.Create(ctx, territory); err != nil {
		if db.IsUniqueViolation(err, "") {
			return nil, pkgerrors.New(pkgerrors.CodeConflict, "territory already exists")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create territory")
	}
	dto := FromModel(territory)
	return &dto, nil
}

func (s *service) List(ctx context.Context, actor authz.Actor, kind *enums.TerritoryType) ([]TerritoryDTO, error) {
	rows, err := s.repo.List(ctx, actor.CompanyID, kind)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list territories")
	}
	out := make([]TerritoryDTO, 0, len(rows))
	for i := range rows {
		out = append(out, FromModel(&rows[i]))
	}
	return out, nil
}

func (s *service) Update(ctx context.Context, actor authz.Actor, id uuid.UUID, input TerritoryInput) (*TerritoryDTO, error) {
	if err := authz.Require(actor, authz.CapManageCompany, authz.Scope{CompanyID: actor.CompanyID}); err != nil {
		return nil, err
	}
	territory, err := s.Get(ctx, actor.CompanyID, id)
	if err != nil {
		return nil, err
	}
	if input.ParentID != nil && *input.ParentID == id {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "territory cannot be its own parent")
	}
	if err := s.apply(ctx, territory, input); err != nil {
		return nil, err
	}
	if err := s.repo.Update(ctx, territory); err != nil {
		if db.IsUniqueViolation(err, "") {
			return nil, pkgerrors.New(pkgerrors.CodeConflict, "territory already exists")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update territory")
	}
	dto := FromModel(territory)
	return &dto, nil
}

func (s *service) Delete(ctx context.Context, actor authz.Actor, id uuid.UUID) error {
	if err := authz.Require(actor, authz.CapManageCompany, authz.Scope{CompanyID: actor.CompanyID}); err != nil {
		return err
	}
	children, err := s.repo.CountChildren(ctx, actor.CompanyID, id)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "count child territories")
	}
	if children > 0 {
		return pkgerrors.New(pkgerrors.CodeConflict, "territory has child territories").
			WithDetails(map[string]any{"children": children})
	}
	if err := s.repo.Delete(ctx, actor.CompanyID, id); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return pkgerrors.NotFound(pkgerrors.ReasonTerritoryNotFound, "territory not found")
		}
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "delete territory")
	}
	return nil
}

func (s *service) Get(ctx context.Context, companyID, id uuid.UUID) (*models.Territory, error) {
	territory, err := s.repo.FindByID(ctx, companyID, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.NotFound(pkgerrors.ReasonTerritoryNotFound, "territory not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load territory")
	}
	return territory, nil
}

func (s *service) NormalizeReference(ctx context.Context, companyID uuid.UUID, ref string) (*models.Territory, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "territory reference is required")
	}
	if id, err := uuid.Parse(ref); err == nil {
		return s.Get(ctx, companyID, id)
	}

	rows, err := s.repo.FindByName(ctx, companyID, ref)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lookup territory by name")
	}
	if len(rows) == 0 {
		return nil, pkgerrors.NotFound(pkgerrors.ReasonTerritoryNotFound, "territory not found")
	}
	// a name shared across levels resolves to the most specific node
	best := rows[0]
	for _, row := range rows[1:] {
		if depth(row.Type) > depth(best.Type) {
			best = row
		}
	}
	return &best, nil
}

// apply validates input and resolves state/city from the parent chain.
func (s *service) apply(ctx context.Context, territory *models.Territory, input TerritoryInput) error {
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "name is required")
	}
	if !input.Type.IsValid() {
		return pkgerrors.New(pkgerrors.CodeValidation, "invalid territory type")
	}
	if (input.Lat == nil) != (input.Lng == nil) {
		return pkgerrors.New(pkgerrors.CodeValidation, "lat and lng must be provided together")
	}

	var parent *models.Territory
	if input.ParentID != nil {
		p, err := s.Get(ctx, territory.CompanyID, *input.ParentID)
		if err != nil {
			return err
		}
		if depth(p.Type) >= depth(input.Type) {
			return pkgerrors.New(pkgerrors.CodeValidation, "parent must be a higher level territory")
		}
		parent = p
	} else if input.Type != enums.TerritoryState {
		return pkgerrors.New(pkgerrors.CodeValidation, "parent_id is required below state level")
	}

	territory.Name = name
	territory.Type = input.Type
	territory.ParentID = input.ParentID
	territory.Lat = input.Lat
	territory.Lng = input.Lng
	territory.State, territory.City = resolveAncestry(name, input.Type, parent)
	return nil
}

func resolveAncestry(name string, kind enums.TerritoryType, parent *models.Territory) (*string, *string) {
	switch kind {
	case enums.TerritoryState:
		return &name, nil
	case enums.TerritoryCity:
		return parent.State, &name
	default:
		return parent.State, parent.City
	}
}

func depth(kind enums.TerritoryType) int {
	switch kind {
	case enums.TerritoryState:
		return 0
	case enums.TerritoryCity:
		return 1
	case enums.TerritoryArea:
		return 2
	default:
		return 3
	}
}
