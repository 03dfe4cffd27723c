package auth

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/fieldops-backend/internal/companies"
	"github.com/angelmondragon/fieldops-backend/internal/representatives"
	"github.com/angelmondragon/fieldops-backend/pkg/config"
	"github.com/angelmondragon/fieldops-backend/pkg/db"
	"github.com/angelmondragon/fieldops-backend/pkg/db/models"
	"github.com/angelmondragon/fieldops-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/fieldops-backend/pkg/errors"
	"github.com/angelmondragon/fieldops-backend/pkg/security"
)

const minPasswordLength = 8

// RegisterCompanyRequest onboards a tenant together with its first org_admin.
type RegisterCompanyRequest struct {
	CompanyName        string  `json:"company_name" validate:"required,max=160"`
	IndustryType       *string `json:"industry_type,omitempty"`
	GST                *string `json:"gst,omitempty"`
	HeadOfficeLocation *string `json:"head_office_location,omitempty"`
	AdminName          string  `json:"admin_name" validate:"required,max=120"`
	Email              string  `json:"email" validate:"required,email"`
	Mobile             *string `json:"mobile,omitempty"`
	Password           string  `json:"password" validate:"required,min=8"`
}

// RegisterCompanyResponse signs the new org_admin in straight away.
type RegisterCompanyResponse struct {
	CompanyID uuid.UUID `json:"company_id"`
	LoginResponse
}

// RegisterService handles the onboarding transaction.
type RegisterService interface {
	RegisterCompany(ctx context.Context, req RegisterCompanyRequest) (*RegisterCompanyResponse, error)
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// RegisterServiceParams packages the dependencies for the registration flow.
type RegisterServiceParams struct {
	DB             txRunner
	SessionManager sessionManager
	JWTConfig      config.JWTConfig
	PasswordConfig config.PasswordConfig
	// DefaultVisitRadius seeds the new company's geofence.
	DefaultVisitRadius int
}

type registerService struct {
	db            txRunner
	session       sessionManager
	jwtCfg        config.JWTConfig
	passwordCfg   config.PasswordConfig
	defaultRadius int
}

func NewRegisterService(params RegisterServiceParams) (RegisterService, error) {
	if params.DB == nil {
		return nil, fmt.Errorf("database client required")
	}
	if params.SessionManager == nil {
		return nil, fmt.Errorf("session manager is required")
	}
	if params.DefaultVisitRadius <= 0 {
		return nil, fmt.Errorf("default visit radius must be positive")
	}
	return &registerService{
		db:            params.DB,
		session:       params.SessionManager,
		jwtCfg:        params.JWTConfig,
		passwordCfg:   params.PasswordConfig,
		defaultRadius: params.DefaultVisitRadius,
	}, nil
}

func (s *registerService) RegisterCompany(ctx context.Context, req RegisterCompanyRequest) (*RegisterCompanyResponse, error) {
	companyName := strings.TrimSpace(req.CompanyName)
	if companyName == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "company_name is required")
	}
	adminName := strings.TrimSpace(req.AdminName)
	if adminName == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "admin_name is required")
	}
	email := strings.ToLower(strings.TrimSpace(req.Email))
	if _, err := mail.ParseAddress(email); err != nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid email")
	}
	if len(req.Password) < minPasswordLength {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "password must be at least 8 characters")
	}

	passwordHash, err := security.HashPassword(req.Password, s.passwordCfg)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "hash password")
	}

	now := time.Now().UTC()
	company := &models.Company{
		Name:               companyName,
		IndustryType:       req.IndustryType,
		GST:                req.GST,
		HeadOfficeLocation: req.HeadOfficeLocation,
		Config:             models.DefaultCompanyConfig(s.defaultRadius),
	}
	rep := &models.Representative{
		Name:         adminName,
		Email:        email,
		Mobile:       req.Mobile,
		PasswordHash: passwordHash,
		Role:         enums.RoleOrgAdmin,
		IsActive:     true,
		Unrestricted: true,
		LastLoginAt:  &now,
	}

	err = s.db.WithTx(ctx, func(tx *gorm.DB) error {
		companyRepo := companies.NewRepository(tx)
		repRepo := representatives.NewRepository(tx)

		if _, err := companyRepo.FindByName(ctx, companyName); err == nil {
			return pkgerrors.New(pkgerrors.CodeConflict, "company already registered")
		} else if !errors.Is(err, gorm.ErrRecordNotFound) {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check company name")
		}
		if _, err := repRepo.FindByEmail(ctx, email); err == nil {
			return pkgerrors.New(pkgerrors.CodeConflict, "email already registered")
		} else if !errors.Is(err, gorm.ErrRecordNotFound) {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check email")
		}

		if err := companyRepo.Create(ctx, company); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create company")
		}
		rep.CompanyID = company.ID
		if err := repRepo.Create(ctx, rep); err != nil {
			if db.IsUniqueViolation(err, "") {
				return pkgerrors.New(pkgerrors.CodeConflict, "email already registered")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create org admin")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	login, err := issueSession(ctx, s.session, s.jwtCfg, rep, now)
	if err != nil {
		return nil, err
	}
	return &RegisterCompanyResponse{CompanyID: company.ID, LoginResponse: *login}, nil
}
