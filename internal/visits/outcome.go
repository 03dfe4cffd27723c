package visits

import (
	"strings"

	"github.com/shopspring/decimal"

	"github.com/angelmondragon/fieldops-backend/pkg/db/models"
	"github.com/angelmondragon/fieldops-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/fieldops-backend/pkg/errors"
	"github.com/angelmondragon/fieldops-backend/pkg/types"
)

// parseOutcome accepts canonical values and legacy labels but never the
// system-only abandoned outcome.
func parseOutcome(raw string) (enums.VisitOutcome, error) {
	if strings.TrimSpace(raw) == "" {
		return "", pkgerrors.Validation(pkgerrors.ReasonOutcomeRequired, "outcome is required", nil)
	}
	outcome, err := enums.ParseVisitOutcome(raw)
	if err != nil || !outcome.IsUserSelectable() {
		return "", pkgerrors.Validation(pkgerrors.ReasonInvalidOutcome, "invalid outcome", map[string]any{"outcome": raw})
	}
	return outcome, nil
}

// validateItems checks the shape of ordered items. Catalog membership is
// checked separately once the company config is loaded.
func validateItems(items types.OrderedItems) error {
	if items.Form() == types.OrderedItemsMixed {
		return invalidItems("ordered_items cannot mix detailed and legacy entries", nil)
	}
	for idx, item := range items {
		if strings.TrimSpace(item.Name) == "" {
			return invalidItems("ordered item name is required", map[string]any{"index": idx})
		}
		if item.Legacy {
			continue
		}
		if !item.Quantity.IsPositive() {
			return invalidItems("quantity must be greater than zero", map[string]any{"index": idx, "name": item.Name})
		}
		if item.Rate.IsNegative() {
			return invalidItems("rate cannot be negative", map[string]any{"index": idx, "name": item.Name})
		}
	}
	return nil
}

func checkCatalog(items types.OrderedItems, cfg models.CompanyConfig) error {
	for idx, item := range items {
		if !cfg.HasProduct(item.Name) {
			return invalidItems("product is not in the company catalog", map[string]any{"index": idx, "name": item.Name})
		}
	}
	return nil
}

// orderValue recomputes the value for detailed items and otherwise keeps the
// client value.
func orderValue(items types.OrderedItems, client *decimal.Decimal) (decimal.NullDecimal, error) {
	if items.Form() == types.OrderedItemsDetailed {
		return decimal.NewNullDecimal(items.Total()), nil
	}
	if client == nil {
		return decimal.NullDecimal{}, nil
	}
	if client.IsNegative() {
		return decimal.NullDecimal{}, pkgerrors.Validation(pkgerrors.ReasonInvalidOrderValue, "order value cannot be negative", map[string]any{
			"order_value": client.String(),
		})
	}
	return decimal.NewNullDecimal(*client), nil
}

// prepare validates everything that does not need the database.
func (o Outcome) prepare() (enums.VisitOutcome, decimal.NullDecimal, error) {
	outcome, err := parseOutcome(o.Outcome)
	if err != nil {
		return "", decimal.NullDecimal{}, err
	}
	if err := validateItems(o.OrderedItems); err != nil {
		return "", decimal.NullDecimal{}, err
	}
	value, err := orderValue(o.OrderedItems, o.OrderValue)
	if err != nil {
		return "", decimal.NullDecimal{}, err
	}
	return outcome, value, nil
}

func invalidItems(msg string, state map[string]any) error {
	return pkgerrors.Validation(pkgerrors.ReasonInvalidOrderedItems, msg, state)
}
