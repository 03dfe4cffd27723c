package types

import (
	"bytes"
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// OrderedItem is one line of a booked order. Legacy items carry only a name.
type OrderedItem struct {
	Name     string          `json:"name"`
	Quantity decimal.Decimal `json:"quantity"`
	Rate     decimal.Decimal `json:"rate"`
	Legacy   bool            `json:"-"`
}

// OrderedItemsForm classifies a list of ordered items.
type OrderedItemsForm string

const (
	OrderedItemsEmpty    OrderedItemsForm = "empty"
	OrderedItemsDetailed OrderedItemsForm = "detailed"
	OrderedItemsLegacy   OrderedItemsForm = "legacy"
	OrderedItemsMixed    OrderedItemsForm = "mixed"
)

// OrderedItems accepts either {name, quantity, rate} objects or bare names.
type OrderedItems []OrderedItem

// Form reports whether the list is detailed, legacy, mixed or empty.
func (items OrderedItems) Form() OrderedItemsForm {
	if len(items) == 0 {
		return OrderedItemsEmpty
	}
	legacy := 0
	for _, item := range items {
		if item.Legacy {
			legacy++
		}
	}
	switch legacy {
	case 0:
		return OrderedItemsDetailed
	case len(items):
		return OrderedItemsLegacy
	default:
		return OrderedItemsMixed
	}
}

// Total sums quantity*rate across detailed items.
func (items OrderedItems) Total() decimal.Decimal {
	total := decimal.Zero
	for _, item := range items {
		if item.Legacy {
			continue
		}
		total = total.Add(item.Quantity.Mul(item.Rate))
	}
	return total
}

// Names returns the item names in order.
func (items OrderedItems) Names() []string {
	names := make([]string, 0, len(items))
	for _, item := range items {
		names = append(names, item.Name)
	}
	return names
}

// UnmarshalJSON implements json.Unmarshaler.
func (items *OrderedItems) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		*items = nil
		return nil
	}

	var raw []json.RawMessage
	if err := json.Unmarshal(trimmed, &raw); err != nil {
		return fmt.Errorf("ordered_items must be an array: %w", err)
	}

	out := make(OrderedItems, 0, len(raw))
	for idx, element := range raw {
		element = bytes.TrimSpace(element)
		if len(element) > 0 && element[0] == '"' {
			var name string
			if err := json.Unmarshal(element, &name); err != nil {
				return fmt.Errorf("ordered_items[%d]: %w", idx, err)
			}
			out = append(out, OrderedItem{Name: name, Legacy: true})
			continue
		}

		var detailed struct {
			Name     string           `json:"name"`
			Quantity *decimal.Decimal `json:"quantity"`
			Rate     *decimal.Decimal `json:"rate"`
		}
		if err := json.Unmarshal(element, &detailed); err != nil {
			return fmt.Errorf("ordered_items[%d]: %w", idx, err)
		}
		if detailed.Quantity == nil || detailed.Rate == nil {
			return fmt.Errorf("ordered_items[%d]: quantity and rate are required", idx)
		}
		out = append(out, OrderedItem{Name: detailed.Name, Quantity: *detailed.Quantity, Rate: *detailed.Rate})
	}
	*items = out
	return nil
}

// MarshalJSON emits objects for detailed items and strings for legacy ones.
func (items OrderedItems) MarshalJSON() ([]byte, error) {
	if items == nil {
		return []byte("null"), nil
	}
	out := make([]any, 0, len(items))
	for _, item := range items {
		if item.Legacy {
			out = append(out, item.Name)
			continue
		}
		out = append(out, map[string]any{
			"name":     item.Name,
			"quantity": item.Quantity,
			"rate":     item.Rate,
		})
	}
	return json.Marshal(out)
}

// Value implements driver.Valuer.
func (items OrderedItems) Value() (driver.Value, error) {
	if items == nil {
		return nil, nil
	}
	payload, err := items.MarshalJSON()
	if err != nil {
		return nil, err
	}
	return string(payload), nil
}

// Scan implements sql.Scanner.
func (items *OrderedItems) Scan(value any) error {
	switch v := value.(type) {
	case nil:
		*items = nil
		return nil
	case []byte:
		return items.UnmarshalJSON(v)
	case string:
		return items.UnmarshalJSON([]byte(v))
	default:
		return errors.New("ordered_items: unsupported scan type")
	}
}
