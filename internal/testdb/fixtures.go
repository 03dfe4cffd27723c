package testdb

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/fieldops-backend/pkg/db/models"
	"github.com/angelmondragon/fieldops-backend/pkg/enums"
	"github.com/angelmondragon/fieldops-backend/pkg/geo"
)

// SeedCompany inserts a company with the default config and the given
// geofence radius.
func SeedCompany(t testing.TB, conn *gorm.DB, radius int) *models.Company {
	t.Helper()
	company := &models.Company{ID: uuid.New(), Name: "Company " + uuid.NewString()[:8], Config: models.DefaultCompanyConfig(radius)}
	if err := conn.Create(company).Error; err != nil {
		t.Fatalf("seed company: %v", err)
	}
	return company
}

// SeedRepresentative inserts an active, unrestricted representative.
func SeedRepresentative(t testing.TB, conn *gorm.DB, companyID uuid.UUID, role enums.Role) *models.Representative {
	t.Helper()
	id := uuid.New()
	rep := &models.Representative{
		ID:           id,
		CompanyID:    companyID,
		Name:         "Rep " + id.String()[:8],
		Email:        id.String() + "@example.com",
		PasswordHash: "x",
		Role:         role,
		IsActive:     true,
		Unrestricted: true,
	}
	if err := conn.Create(rep).Error; err != nil {
		t.Fatalf("seed representative: %v", err)
	}
	return rep
}

// SeedDealer inserts an active dealer at loc.
func SeedDealer(t testing.TB, conn *gorm.DB, companyID uuid.UUID, name string, loc geo.Point, opts ...func(*models.Dealer)) *models.Dealer {
	t.Helper()
	dealer := &models.Dealer{
		ID:             uuid.New(),
		CompanyID:      companyID,
		Name:           name,
		DealerType:     "Retailer",
		Lat:            loc.Lat,
		Lng:            loc.Lng,
		VisitFrequency: enums.VisitFrequencyWeekly,
		Priority:       1,
		IsActive:       true,
	}
	for _, opt := range opts {
		opt(dealer)
	}
	if err := conn.Create(dealer).Error; err != nil {
		t.Fatalf("seed dealer: %v", err)
	}
	return dealer
}

// SeedLead inserts a potential dealer found by foundBy.
func SeedLead(t testing.TB, conn *gorm.DB, companyID, foundBy uuid.UUID, placeID string, loc geo.Point) *models.PotentialDealer {
	t.Helper()
	now := time.Now().UTC()
	lead := &models.PotentialDealer{
		ID:        uuid.New(),
		CompanyID: companyID,
		PlaceID:   placeID,
		PlaceName: "Place " + placeID,
		Lat:       loc.Lat,
		Lng:       loc.Lng,
		FoundBy:   foundBy,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := conn.Create(lead).Error; err != nil {
		t.Fatalf("seed lead: %v", err)
	}
	return lead
}

func StrPtr(v string) *string { return &v }

// CountEvents returns how many outbox rows carry eventType.
func CountEvents(t testing.TB, conn *gorm.DB, eventType enums.OutboxEventType) int64 {
	t.Helper()
	var count int64
	if err := conn.Model(&models.OutboxEvent{}).Where("event_type = ?", eventType).Count(&count).Error; err != nil {
		t.Fatalf("count outbox events: %v", err)
	}
	return count
}
