package companies

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/fieldops-backend/internal/authz"
	"github.com/angelmondragon/fieldops-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/fieldops-backend/pkg/errors"
)

type companyRepository interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.Company, error)
	UpdateConfig(ctx context.Context, id uuid.UUID, cfg models.CompanyConfig) error
}

// Service reads and updates tenant field configuration.
type Service interface {
	GetConfig(ctx context.Context, actor authz.Actor) (*models.CompanyConfig, error)
	UpdateConfig(ctx context.Context, actor authz.Actor, input UpdateConfigInput) (*models.CompanyConfig, error)
	// VisitRadius returns the company geofence radius in meters, falling back
	// to the service default when unset.
	VisitRadius(ctx context.Context, companyID uuid.UUID) (int, error)
}

type service struct {
	repo          companyRepository
	defaultRadius int
}

func NewService(repo companyRepository, defaultRadius int) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("company repository required")
	}
	if defaultRadius <= 0 {
		return nil, fmt.Errorf("default visit radius must be positive")
	}
	return &service{repo: repo, defaultRadius: defaultRadius}, nil
}

// UpdateConfigInput carries the mutable config keys. Nil fields are left untouched.
type UpdateConfigInput struct {
	VisitRadiusMeters  *int
	VisitsPerDayTarget *int
	DealerTypes        *[]string
	ProductCategories  *[]string
	Products           *[]models.CatalogProduct
	WorkingHours       *models.WorkingHours
	SalesTarget        *decimal.Decimal
}

func (s *service) load(ctx context.Context, companyID uuid.UUID) (*models.Company, error) {
	company, err := s.repo.FindByID(ctx, companyID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "company not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load company")
	}
	return company, nil
}

func (s *service) GetConfig(ctx context.Context, actor authz.Actor) (*models.CompanyConfig, error) {
	company, err := s.load(ctx, actor.CompanyID)
	if err != nil {
		return nil, err
	}
	cfg := company.Config
	if cfg.VisitRadiusMeters <= 0 {
		cfg.VisitRadiusMeters = s.defaultRadius
	}
	return &cfg, nil
}

func (s *service) UpdateConfig(ctx context.Context, actor authz.Actor, input UpdateConfigInput) (*models.CompanyConfig, error) {
	if err := authz.Require(actor, authz.CapManageCompany, authz.Scope{CompanyID: actor.CompanyID}); err != nil {
		return nil, err
	}
	company, err := s.load(ctx, actor.CompanyID)
	if err != nil {
		return nil, err
	}

	cfg := company.Config
	if input.VisitRadiusMeters != nil {
		if *input.VisitRadiusMeters <= 0 {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "visit_radius must be positive")
		}
		cfg.VisitRadiusMeters = *input.VisitRadiusMeters
	}
	if input.VisitsPerDayTarget != nil {
		if *input.VisitsPerDayTarget < 0 {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "visits_per_day_target must not be negative")
		}
		cfg.VisitsPerDayTarget = *input.VisitsPerDayTarget
	}
	if input.DealerTypes != nil {
		cfg.DealerTypes = cleanStrings(*input.DealerTypes)
	}
	if input.ProductCategories != nil {
		cfg.ProductCategories = cleanStrings(*input.ProductCategories)
	}
	if input.Products != nil {
		products, err := validateProducts(*input.Products)
		if err != nil {
			return nil, err
		}
		cfg.Products = products
	}
	if input.WorkingHours != nil {
		cfg.WorkingHours = *input.WorkingHours
	}
	if input.SalesTarget != nil {
		if input.SalesTarget.IsNegative() {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "sales_target must not be negative")
		}
		target := *input.SalesTarget
		cfg.SalesTarget = &target
	}

	if err := s.repo.UpdateConfig(ctx, actor.CompanyID, cfg); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update company config")
	}
	return &cfg, nil
}

func (s *service) VisitRadius(ctx context.Context, companyID uuid.UUID) (int, error) {
	company, err := s.load(ctx, companyID)
	if err != nil {
		return 0, err
	}
	if company.Config.VisitRadiusMeters <= 0 {
		return s.defaultRadius, nil
	}
	return company.Config.VisitRadiusMeters, nil
}

func validateProducts(products []models.CatalogProduct) ([]models.CatalogProduct, error) {
	out := make([]models.CatalogProduct, 0, len(products))
	seen := make(map[string]struct{}, len(products))
	for _, p := range products {
		p.Name = strings.TrimSpace(p.Name)
		if p.Name == "" {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "product name is required")
		}
		if p.Rate != nil && p.Rate.IsNegative() {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "product rate must not be negative")
		}
		if _, dup := seen[p.Name]; dup {
			continue
		}
		seen[p.Name] = struct{}{}
		out = append(out, p)
	}
	return out, nil
}

func cleanStrings(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if trimmed := strings.TrimSpace(v); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
