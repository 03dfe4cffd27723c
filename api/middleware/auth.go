package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/angelmondragon/fieldops-backend/api/responses"
	"github.com/angelmondragon/fieldops-backend/internal/authz"
	pkgAuth "github.com/angelmondragon/fieldops-backend/pkg/auth"
	"github.com/angelmondragon/fieldops-backend/pkg/auth/session"
	"github.com/angelmondragon/fieldops-backend/pkg/config"
	pkgerrors "github.com/angelmondragon/fieldops-backend/pkg/errors"
	"github.com/angelmondragon/fieldops-backend/pkg/logger"
)

// Auth requires a bearer access token whose session is still live and puts
// the caller on the request context. An expired token is reported with
// TOKEN_EXPIRED so clients know to refresh rather than log in again.
func Auth(cfg config.JWTConfig, verifier session.AccessSessionChecker, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			actor, err := authenticate(r, cfg, verifier)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}

			ctx := WithActor(r.Context(), actor)
			if logg != nil {
				ctx = logg.WithFields(ctx, map[string]any{
					"user_id":    actor.UserID.String(),
					"company_id": actor.CompanyID.String(),
					"actor_role": string(actor.Role),
				})
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func authenticate(r *http.Request, cfg config.JWTConfig, verifier session.AccessSessionChecker) (authz.Actor, error) {
	token, ok := bearerToken(r)
	if !ok {
		return authz.Actor{}, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing credentials")
	}

	claims, err := pkgAuth.ParseAccessToken(cfg, token)
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return authz.Actor{}, pkgerrors.WithReason(pkgerrors.CodeUnauthorized, pkgerrors.ReasonTokenExpired, "token expired", nil)
	case err != nil:
		return authz.Actor{}, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "invalid token")
	case claims.ID == "":
		return authz.Actor{}, pkgerrors.New(pkgerrors.CodeUnauthorized, "token has no session")
	}

	if verifier != nil {
		live, err := verifier.HasSession(r.Context(), claims.ID)
		if err != nil {
			return authz.Actor{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "validate session")
		}
		if !live {
			return authz.Actor{}, pkgerrors.WithReason(pkgerrors.CodeUnauthorized, pkgerrors.ReasonSessionRevoked, "session ended", nil)
		}
	}

	return authz.Actor{UserID: claims.UserID, CompanyID: claims.CompanyID, Role: claims.Role}, nil
}

// bearerToken accepts "Bearer <token>" in any case, or a bare token.
func bearerToken(r *http.Request) (string, bool) {
	raw := strings.TrimSpace(r.Header.Get("Authorization"))
	if scheme, rest, found := strings.Cut(raw, " "); found && strings.EqualFold(scheme, "bearer") {
		raw = strings.TrimSpace(rest)
	}
	return raw, raw != ""
}
