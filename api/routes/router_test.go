package routes

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/fieldops-backend/api/controllers"
	"github.com/angelmondragon/fieldops-backend/internal/auth"
	"github.com/angelmondragon/fieldops-backend/internal/authz"
	"github.com/angelmondragon/fieldops-backend/internal/reports"
	"github.com/angelmondragon/fieldops-backend/internal/sessions"
	pkgAuth "github.com/angelmondragon/fieldops-backend/pkg/auth"
	"github.com/angelmondragon/fieldops-backend/pkg/auth/session"
	"github.com/angelmondragon/fieldops-backend/pkg/config"
	"github.com/angelmondragon/fieldops-backend/pkg/enums"
	"github.com/angelmondragon/fieldops-backend/pkg/geo"
	"github.com/angelmondragon/fieldops-backend/pkg/logger"
)

type stubPinger struct {
	err error
}

func (s stubPinger) Ping(context.Context) error {
	return s.err
}

type stubSessionManager struct{}

func (stubSessionManager) HasSession(ctx context.Context, accessID string) (bool, error) {
	return true, nil
}

type stubMarketService struct{}

func (stubMarketService) Start(ctx context.Context, actor authz.Actor, location geo.Point) (*sessions.SessionDTO, error) {
	return &sessions.SessionDTO{ID: uuid.New(), RepresentativeID: actor.UserID, StartLocation: location}, nil
}

func (stubMarketService) End(ctx context.Context, actor authz.Actor, location *geo.Point) (*sessions.Summary, error) {
	return &sessions.Summary{}, nil
}

func (stubMarketService) UpdateLocation(ctx context.Context, actor authz.Actor, location geo.Point) (*sessions.LocationUpdate, error) {
	return &sessions.LocationUpdate{Location: location}, nil
}

func (stubMarketService) ForceClose(ctx context.Context, actor authz.Actor, sessionID uuid.UUID) (*sessions.Summary, error) {
	return &sessions.Summary{}, nil
}

func (stubMarketService) Active(ctx context.Context, actor authz.Actor) (*sessions.SessionDTO, error) {
	return &sessions.SessionDTO{}, nil
}

type stubRegisterService struct{}

func (stubRegisterService) RegisterCompany(ctx context.Context, req auth.RegisterCompanyRequest) (*auth.RegisterCompanyResponse, error) {
	return &auth.RegisterCompanyResponse{CompanyID: uuid.New(), LoginResponse: auth.LoginResponse{AccessToken: "access"}}, nil
}

type stubReportService struct{}

func (stubReportService) SessionStats(ctx context.Context, actor authz.Actor, sessionID uuid.UUID) (*reports.SessionStats, error) {
	return &reports.SessionStats{}, nil
}

func (stubReportService) SessionDetail(ctx context.Context, actor authz.Actor, sessionID uuid.UUID) (*reports.SessionDetail, error) {
	return &reports.SessionDetail{}, nil
}

func (stubReportService) Dashboard(ctx context.Context, actor authz.Actor) (*reports.Dashboard, error) {
	return &reports.Dashboard{}, nil
}

func (stubReportService) ExecutivePerformance(ctx context.Context, actor authz.Actor, repID *uuid.UUID) ([]reports.ExecutivePerformance, error) {
	return nil, nil
}

func (stubReportService) LostVisits(ctx context.Context, actor authz.Actor) (*reports.LostVisitsReport, error) {
	return &reports.LostVisitsReport{}, nil
}

func testConfig() *config.Config {
	return &config.Config{
		App: config.AppConfig{Env: "test", Port: "0", CORSOrigins: []string{"http://localhost:3000"}},
		JWT: config.JWTConfig{
			Secret:                 "secret",
			Issuer:                 "issuer",
			ExpirationMinutes:      60,
			RefreshTokenTTLMinutes: 120,
		},
	}
}

func newTestRouter(cfg *config.Config, pingers map[string]controllers.Pinger) http.Handler {
	logg := logger.New(logger.Options{ServiceName: "test-routing", Level: logger.ParseLevel("debug"), Output: io.Discard})
	return NewRouter(cfg, logg, Deps{
		Sessions: stubSessionManager{},
		Pingers:  pingers,
		Gatherer: prometheus.NewRegistry(),
		Market:   stubMarketService{},
		Register: stubRegisterService{},
		Reports:  stubReportService{},
	})
}

func buildToken(t *testing.T, cfg *config.Config, role enums.Role) string {
	t.Helper()
	token, err := pkgAuth.MintAccessToken(cfg.JWT, time.Now(), pkgAuth.AccessTokenPayload{
		UserID:    uuid.New(),
		CompanyID: uuid.New(),
		Role:      role,
		JTI:       session.NewAccessID(),
	})
	if err != nil {
		t.Fatalf("mint token: %v", err)
	}
	return token
}

func serve(router http.Handler, method, path, token, body string) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	return resp
}

func TestHealthLive(t *testing.T) {
	router := newTestRouter(testConfig(), nil)
	resp := serve(router, http.MethodGet, "/health/live", "", "")
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
}

func TestHealthReadyReportsFailingDependency(t *testing.T) {
	router := newTestRouter(testConfig(), map[string]controllers.Pinger{
		"db":    stubPinger{},
		"redis": stubPinger{err: errors.New("connection refused")},
	})
	resp := serve(router, http.MethodGet, "/health/ready", "", "")
	if resp.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 got %d", resp.Code)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	router := newTestRouter(testConfig(), nil)
	resp := serve(router, http.MethodGet, "/metrics", "", "")
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
}

func TestFieldRoutesRejectMissingJWT(t *testing.T) {
	router := newTestRouter(testConfig(), nil)
	resp := serve(router, http.MethodPost, "/api/v1/market/start", "", `{"lat":1,"lng":2}`)
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token got %d", resp.Code)
	}
}

func TestMarketRoutesRequireSalesRep(t *testing.T) {
	cfg := testConfig()
	router := newTestRouter(cfg, nil)

	resp := serve(router, http.MethodPost, "/api/v1/market/start", buildToken(t, cfg, enums.RoleAdmin), `{"lat":1,"lng":2}`)
	if resp.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for admin got %d", resp.Code)
	}

	resp = serve(router, http.MethodPost, "/api/v1/market/start", buildToken(t, cfg, enums.RoleSalesRep), `{"lat":1,"lng":2}`)
	if resp.Code != http.StatusCreated {
		t.Fatalf("expected 201 for sales rep got %d", resp.Code)
	}
}

func TestReportsRequireManagement(t *testing.T) {
	cfg := testConfig()
	router := newTestRouter(cfg, nil)

	resp := serve(router, http.MethodGet, "/api/v1/reports/dashboard", buildToken(t, cfg, enums.RoleSalesRep), "")
	if resp.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for sales rep got %d", resp.Code)
	}

	for _, role := range []enums.Role{enums.RoleOrgAdmin, enums.RoleAdmin, enums.RoleHOD, enums.RoleOwner} {
		resp = serve(router, http.MethodGet, "/api/v1/reports/dashboard", buildToken(t, cfg, role), "")
		if resp.Code != http.StatusOK {
			t.Fatalf("expected 200 for %s got %d", role, resp.Code)
		}
	}
}

func TestForceCloseRequiresSupervisor(t *testing.T) {
	cfg := testConfig()
	router := newTestRouter(cfg, nil)
	path := "/api/v1/sessions/" + uuid.NewString() + "/force-close"

	resp := serve(router, http.MethodPost, path, buildToken(t, cfg, enums.RoleOwner), "")
	if resp.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for owner got %d", resp.Code)
	}

	resp = serve(router, http.MethodPost, path, buildToken(t, cfg, enums.RoleHOD), "")
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 for hod got %d", resp.Code)
	}
}

func TestSessionStatsOpenToAuthenticatedCallers(t *testing.T) {
	cfg := testConfig()
	router := newTestRouter(cfg, nil)
	resp := serve(router, http.MethodGet, "/api/v1/sessions/"+uuid.NewString()+"/stats", buildToken(t, cfg, enums.RoleSalesRep), "")
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
}

func TestUnwiredServiceAnswers500(t *testing.T) {
	cfg := testConfig()
	router := newTestRouter(cfg, nil)
	resp := serve(router, http.MethodGet, "/api/v1/visits/today", buildToken(t, cfg, enums.RoleSalesRep), "")
	if resp.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500 got %d", resp.Code)
	}
}

func TestCompanyRegisterIsPublic(t *testing.T) {
	router := newTestRouter(testConfig(), nil)
	body := `{"company_name":"Shree Agro","admin_name":"Meera","email":"meera@shreeagro.in","password":"Harvest#2026"}`
	resp := serve(router, http.MethodPost, "/api/v1/company/register", "", body)
	if resp.Code != http.StatusCreated {
		t.Fatalf("expected 201 got %d: %s", resp.Code, resp.Body.String())
	}
}

func TestRepresentativeDeactivateRequiresAdmin(t *testing.T) {
	cfg := testConfig()
	router := newTestRouter(cfg, nil)
	path := "/api/v1/representatives/" + uuid.NewString()

	resp := serve(router, http.MethodDelete, path, buildToken(t, cfg, enums.RoleHOD), "")
	if resp.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for hod got %d", resp.Code)
	}

	// admins pass the role gate; the rep service is not wired in this router
	resp = serve(router, http.MethodDelete, path, buildToken(t, cfg, enums.RoleAdmin), "")
	if resp.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500 for admin got %d", resp.Code)
	}
}
