package checkout

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"github.com/safar/kasir/internal/models"
	"github.com/shopspring/decimal"
)

// Number is a JSON amount as tills send it: a number, a numeric string, an
// empty string or null. Fractions are truncated toward zero.
type Number struct {
	Value int64
	Set   bool
}

func NewNumber(v int64) Number {
	return Number{Value: v, Set: true}
}

func (n *Number) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*n = Number{}
		return nil
	}

	raw := string(data)
	if strings.HasPrefix(raw, `"`) {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		raw = strings.TrimSpace(s)
		if raw == "" {
			*n = Number{}
			return nil
		}
	}

	d, err := decimal.NewFromString(raw)
	if err != nil {
		return fmt.Errorf("invalid amount %q", raw)
	}
	if d.GreaterThan(decimal.NewFromInt(math.MaxInt64)) || d.LessThan(decimal.NewFromInt(math.MinInt64)) {
		return fmt.Errorf("amount %q out of range", raw)
	}

	*n = Number{Value: d.IntPart(), Set: true}
	return nil
}

func (n Number) MarshalJSON() ([]byte, error) {
	if !n.Set {
		return []byte("null"), nil
	}
	return json.Marshal(n.Value)
}

// CartItem is a cart entry as received from the till, before normalization.
type CartItem struct {
	Barcode   string `json:"barcode,omitempty"`
	Name      string `json:"name"`
	UnitPrice Number `json:"unit_price"`
	Quantity  Number `json:"quantity"`
}

// NormalizedItem is a line item with its subtotal worked out.
type NormalizedItem struct {
	models.LineItem
	Subtotal int64
}

// Normalize clamps prices to >= 0 and quantities to >= 1 and computes
// subtotals. It fails on an empty cart, a nameless item or an amount that
// does not fit in an int64.
func Normalize(items []CartItem) ([]NormalizedItem, int64, error) {
	if len(items) == 0 {
		return nil, 0, models.NewValidationError("empty cart")
	}

	out := make([]NormalizedItem, 0, len(items))
	var total int64
	for i, it := range items {
		name := strings.TrimSpace(it.Name)
		if name == "" {
			return nil, 0, models.NewValidationError(fmt.Sprintf("item %d: name is required", i+1))
		}

		unitPrice := it.UnitPrice.Value
		if !it.UnitPrice.Set || unitPrice < 0 {
			unitPrice = 0
		}
		quantity := it.Quantity.Value
		if !it.Quantity.Set || quantity < 1 {
			quantity = 1
		}
		if quantity > math.MaxInt32 {
			return nil, 0, models.NewValidationError(fmt.Sprintf("item %d: quantity too large", i+1))
		}
		if unitPrice > 0 && quantity > math.MaxInt64/unitPrice {
			return nil, 0, models.NewValidationError(fmt.Sprintf("item %d: subtotal too large", i+1))
		}

		subtotal := unitPrice * quantity
		if total > math.MaxInt64-subtotal {
			return nil, 0, models.NewValidationError("cart total too large")
		}
		total += subtotal

		out = append(out, NormalizedItem{
			LineItem: models.LineItem{
				Barcode:   strings.TrimSpace(it.Barcode),
				Name:      name,
				UnitPrice: unitPrice,
				Quantity:  int(quantity),
			},
			Subtotal: subtotal,
		})
	}

	return out, total, nil
}
