package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Company is the tenant that owns dealers, territories and representatives.
type Company struct {
	ID                 uuid.UUID     `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	Name               string        `gorm:"column:name;not null"`
	IndustryType       *string       `gorm:"column:industry_type"`
	GST                *string       `gorm:"column:gst"`
	HeadOfficeLocation *string       `gorm:"column:head_office_location"`
	Config             CompanyConfig `gorm:"column:config;type:jsonb;serializer:json;not null"`
	CreatedAt          time.Time     `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt          time.Time     `gorm:"column:updated_at;autoUpdateTime"`
}

// CompanyConfig holds tenant-level field tuning.
type CompanyConfig struct {
	VisitRadiusMeters  int              `json:"visit_radius"`
	VisitsPerDayTarget int              `json:"visits_per_day_target"`
	DealerTypes        []string         `json:"dealer_types"`
	ProductCategories  []string         `json:"product_categories"`
	Products           []CatalogProduct `json:"products"`
	WorkingHours       WorkingHours     `json:"working_hours"`
	SalesTarget        *decimal.Decimal `json:"sales_target,omitempty"`
}

// CatalogProduct is a sellable item; names are matched against ordered items.
type CatalogProduct struct {
	Name     string           `json:"name"`
	Category string           `json:"category,omitempty"`
	Rate     *decimal.Decimal `json:"rate,omitempty"`
}

type WorkingHours struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

// DefaultCompanyConfig returns the config assigned at registration.
func DefaultCompanyConfig(visitRadius int) CompanyConfig {
	return CompanyConfig{
		VisitRadiusMeters:  visitRadius,
		VisitsPerDayTarget: 10,
		DealerTypes:        []string{"Retailer", "Distributor", "Wholesaler"},
		ProductCategories:  []string{},
		Products:           []CatalogProduct{},
		WorkingHours:       WorkingHours{Start: "09:00", End: "18:00"},
	}
}

// HasProduct reports whether name is in the catalog. An empty catalog
// accepts every name.
func (c CompanyConfig) HasProduct(name string) bool {
	if len(c.Products) == 0 {
		return true
	}
	for _, p := range c.Products {
		if p.Name == name {
			return true
		}
	}
	return false
}
