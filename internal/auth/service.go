package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/fieldops-backend/internal/authz"
	"github.com/angelmondragon/fieldops-backend/internal/representatives"
	pkgAuth "github.com/angelmondragon/fieldops-backend/pkg/auth"
	"github.com/angelmondragon/fieldops-backend/pkg/auth/session"
	"github.com/angelmondragon/fieldops-backend/pkg/config"
	"github.com/angelmondragon/fieldops-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/fieldops-backend/pkg/errors"
	"github.com/angelmondragon/fieldops-backend/pkg/security"
)

const invalidCredentialsMessage = "invalid credentials"

// Service defines the behavior needed by the auth controller.
type Service interface {
	Login(ctx context.Context, req LoginRequest) (*LoginResponse, error)
	Me(ctx context.Context, actor authz.Actor) (*representatives.RepresentativeDTO, error)
	Refresh(ctx context.Context, accessToken string, req RefreshRequest) (*TokenPair, error)
	Logout(ctx context.Context, accessToken string) error
}

type service struct {
	reps        representativeRepository
	session     sessionManager
	jwtCfg      config.JWTConfig
	passwordCfg config.PasswordConfig
}

type representativeRepository interface {
	FindByEmail(ctx context.Context, email string) (*models.Representative, error)
	FindByID(ctx context.Context, id uuid.UUID) (*models.Representative, error)
	TouchLogin(ctx context.Context, id uuid.UUID, at time.Time) error
	UpdatePasswordHash(ctx context.Context, id uuid.UUID, hash string) error
}

type sessionManager interface {
	Generate(ctx context.Context, accessID string) (string, error)
	Rotate(ctx context.Context, oldAccessID, provided string) (string, string, error)
	Revoke(ctx context.Context, accessID string) error
}

// ServiceParams bundles the dependencies required to build an auth service.
type ServiceParams struct {
	RepresentativeRepo representativeRepository
	SessionManager     sessionManager
	JWTConfig          config.JWTConfig
	// PasswordConfig is the current hashing cost. Hashes made with weaker
	// settings are upgraded on the next successful login.
	PasswordConfig config.PasswordConfig
}

// NewService constructs a login service with the provided dependencies.
func NewService(params ServiceParams) (Service, error) {
	if params.RepresentativeRepo == nil {
		return nil, fmt.Errorf("representative repository is required")
	}
	if params.SessionManager == nil {
		return nil, fmt.Errorf("session manager is required")
	}
	return &service{
		reps:        params.RepresentativeRepo,
		session:     params.SessionManager,
		jwtCfg:      params.JWTConfig,
		passwordCfg: params.PasswordConfig,
	}, nil
}

func (s *service) Login(ctx context.Context, req LoginRequest) (*LoginResponse, error) {
	rep, err := s.authenticate(ctx, req.Email, req.Password)
	if err != nil {
		return nil, err
	}
	if !rep.Role.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, invalidCredentialsMessage)
	}

	now := time.Now().UTC()
	if err := s.reps.TouchLogin(ctx, rep.ID, now); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "update last login")
	}
	rep.LastLoginAt = &now
	return issueSession(ctx, s.session, s.jwtCfg, rep, now)
}

// issueSession mints an access token and stores its refresh mapping.
func issueSession(ctx context.Context, sessions sessionManager, jwtCfg config.JWTConfig, rep *models.Representative, now time.Time) (*LoginResponse, error) {
	accessID := session.NewAccessID()
	accessToken, err := pkgAuth.MintAccessToken(jwtCfg, now, pkgAuth.AccessTokenPayload{
		UserID:    rep.ID,
		CompanyID: rep.CompanyID,
		Role:      rep.Role,
		JTI:       accessID,
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "mint jwt")
	}
	refreshToken, err := sessions.Generate(ctx, accessID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "store refresh token")
	}

	return &LoginResponse{
		AccessToken:    accessToken,
		RefreshToken:   refreshToken,
		Representative: representatives.FromModel(rep),
	}, nil
}

// Me reloads the caller so deactivated accounts stop resolving even while
// their access token is still valid.
func (s *service) Me(ctx context.Context, actor authz.Actor) (*representatives.RepresentativeDTO, error) {
	rep, err := s.reps.FindByID(ctx, actor.UserID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "representative not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load representative")
	}
	if !rep.IsActive || rep.CompanyID != actor.CompanyID {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "representative inactive")
	}
	dto := representatives.FromModel(rep)
	return &dto, nil
}

// Refresh rotates the refresh token bound to the presented (possibly expired)
// access token. The representative is reloaded so the new token carries the
// current role, and a deactivated account loses its session instead.
func (s *service) Refresh(ctx context.Context, accessToken string, req RefreshRequest) (*TokenPair, error) {
	claims, err := s.sessionClaims(accessToken)
	if err != nil {
		return nil, err
	}

	rep, err := s.reps.FindByID(ctx, claims.UserID)
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load representative")
	}
	if rep == nil || !rep.IsActive || rep.CompanyID != claims.CompanyID {
		_ = s.session.Revoke(ctx, claims.ID)
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "representative inactive")
	}

	accessID, refreshToken, err := s.session.Rotate(ctx, claims.ID, req.RefreshToken)
	if err != nil {
		if errors.Is(err, session.ErrInvalidRefreshToken) {
			return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "invalid refresh token")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "rotate session")
	}

	minted, err := pkgAuth.MintAccessToken(s.jwtCfg, time.Now().UTC(), pkgAuth.AccessTokenPayload{
		UserID:    rep.ID,
		CompanyID: rep.CompanyID,
		Role:      rep.Role,
		JTI:       accessID,
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "mint jwt")
	}
	return &TokenPair{AccessToken: minted, RefreshToken: refreshToken}, nil
}

// Logout drops the refresh mapping of the presented access token.
func (s *service) Logout(ctx context.Context, accessToken string) error {
	claims, err := s.sessionClaims(accessToken)
	if err != nil {
		return err
	}
	if err := s.session.Revoke(ctx, claims.ID); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "revoke session")
	}
	return nil
}

func (s *service) sessionClaims(accessToken string) (*pkgAuth.AccessTokenClaims, error) {
	claims, err := pkgAuth.ParseAccessTokenAllowExpired(s.jwtCfg, accessToken)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "invalid token")
	}
	if claims.ID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing session id")
	}
	return claims, nil
}

func (s *service) authenticate(ctx context.Context, email, password string) (*models.Representative, error) {
	input := strings.TrimSpace(email)
	if input == "" {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, invalidCredentialsMessage)
	}
	rep, err := s.reps.FindByEmail(ctx, strings.ToLower(input))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, invalidCredentialsMessage)
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "lookup representative")
	}

	valid, err := security.VerifyPassword(password, rep.PasswordHash)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "verify password")
	}
	if !valid || !rep.IsActive {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, invalidCredentialsMessage)
	}
	if security.NeedsRehash(rep.PasswordHash, s.passwordCfg) {
		s.upgradeHash(ctx, rep, password)
	}
	return rep, nil
}

// upgradeHash is best effort; the old hash keeps working if it fails.
func (s *service) upgradeHash(ctx context.Context, rep *models.Representative, password string) {
	hash, err := security.HashPassword(password, s.passwordCfg)
	if err != nil {
		return
	}
	if err := s.reps.UpdatePasswordHash(ctx, rep.ID, hash); err != nil {
		return
	}
	rep.PasswordHash = hash
}
