package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/fieldops-backend/pkg/config"
	"github.com/angelmondragon/fieldops-backend/pkg/enums"
)

var testCfg = config.JWTConfig{Secret: "secret", Issuer: "fieldops", ExpirationMinutes: 30}

func mint(t *testing.T, cfg config.JWTConfig, now time.Time, payload AccessTokenPayload) string {
	t.Helper()
	token, err := MintAccessToken(cfg, now, payload)
	require.NoError(t, err)
	return token
}

func TestMintAndParseAccessToken(t *testing.T) {
	now := time.Now().UTC()
	payload := AccessTokenPayload{UserID: uuid.New(), CompanyID: uuid.New(), Role: enums.RoleSalesRep, JTI: "jti-123"}

	claims, err := ParseAccessToken(testCfg, mint(t, testCfg, now, payload))
	require.NoError(t, err)
	require.Equal(t, payload.UserID, claims.UserID)
	require.Equal(t, payload.CompanyID, claims.CompanyID)
	require.Equal(t, enums.RoleSalesRep, claims.Role)
	require.Equal(t, "jti-123", claims.ID)
	require.Equal(t, payload.UserID.String(), claims.Subject)
	require.Equal(t, "fieldops", claims.Issuer)
	require.WithinDuration(t, now.Add(30*time.Minute), claims.ExpiresAt.Time, time.Second)
}

func TestMintAccessTokenGeneratesJTI(t *testing.T) {
	payload := AccessTokenPayload{UserID: uuid.New(), CompanyID: uuid.New(), Role: enums.RoleHOD}
	claims, err := ParseAccessToken(testCfg, mint(t, testCfg, time.Now(), payload))
	require.NoError(t, err)
	_, err = uuid.Parse(claims.ID)
	require.NoError(t, err)
}

func TestMintAccessTokenRejectsBadInput(t *testing.T) {
	valid := AccessTokenPayload{UserID: uuid.New(), CompanyID: uuid.New(), Role: enums.RoleSalesRep}
	cases := map[string]struct {
		cfg     config.JWTConfig
		payload AccessTokenPayload
	}{
		"no secret":  {config.JWTConfig{Issuer: "fieldops", ExpirationMinutes: 5}, valid},
		"no issuer":  {config.JWTConfig{Secret: "s", ExpirationMinutes: 5}, valid},
		"no ttl":     {config.JWTConfig{Secret: "s", Issuer: "fieldops"}, valid},
		"bad role":   {testCfg, AccessTokenPayload{UserID: uuid.New(), CompanyID: uuid.New()}},
		"no company": {testCfg, AccessTokenPayload{UserID: uuid.New(), Role: enums.RoleSalesRep}},
	}
	for name, tc := range cases {
		_, err := MintAccessToken(tc.cfg, time.Now(), tc.payload)
		require.Error(t, err, name)
	}
}

func TestParseAccessTokenRejects(t *testing.T) {
	payload := AccessTokenPayload{UserID: uuid.New(), CompanyID: uuid.New(), Role: enums.RoleAdmin}

	_, err := ParseAccessToken(testCfg, mint(t, testCfg, time.Now(), payload)+"x")
	require.Error(t, err, "tampered signature")

	_, err = ParseAccessToken(testCfg, mint(t, testCfg, time.Now().Add(-time.Hour), payload))
	require.ErrorIs(t, err, jwt.ErrTokenExpired)

	other := testCfg
	other.Issuer = "someone-else"
	_, err = ParseAccessToken(testCfg, mint(t, other, time.Now(), payload))
	require.ErrorIs(t, err, jwt.ErrTokenInvalidIssuer)

	hs512 := jwt.NewWithClaims(jwt.SigningMethodHS512, AccessTokenClaims{CompanyID: payload.CompanyID, Role: payload.Role})
	signed, err := hs512.SignedString([]byte(testCfg.Secret))
	require.NoError(t, err)
	_, err = ParseAccessToken(testCfg, signed)
	require.Error(t, err, "unexpected algorithm")
}

func TestParseAccessTokenToleratesClockSkew(t *testing.T) {
	payload := AccessTokenPayload{UserID: uuid.New(), CompanyID: uuid.New(), Role: enums.RoleSalesRep}
	cfg := testCfg
	cfg.ExpirationMinutes = 1
	token := mint(t, cfg, time.Now().Add(-time.Minute-10*time.Second), payload)
	_, err := ParseAccessToken(cfg, token)
	require.NoError(t, err)
}

func TestParseAccessTokenAllowExpired(t *testing.T) {
	payload := AccessTokenPayload{UserID: uuid.New(), CompanyID: uuid.New(), Role: enums.RoleSalesRep, JTI: "old-jti"}
	cfg := testCfg
	cfg.ExpirationMinutes = 1
	token := mint(t, cfg, time.Now().Add(-time.Hour), payload)

	claims, err := ParseAccessTokenAllowExpired(cfg, token)
	require.NoError(t, err)
	require.Equal(t, "old-jti", claims.ID)

	other := cfg
	other.Issuer = "someone-else"
	_, err = ParseAccessTokenAllowExpired(other, token)
	require.ErrorIs(t, err, errIssuerMismatch)
}
