package domain

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// DefaultLowStockThreshold applies when an ingredient is created without one.
const DefaultLowStockThreshold = 20

type IngredientType int

const (
	IngredientBase IngredientType = iota + 1
	IngredientSauce
	IngredientCheese
	IngredientVegetable
	IngredientMeat
)

// IngredientTypes lists every type in reservation order.
var IngredientTypes = []IngredientType{
	IngredientBase,
	IngredientSauce,
	IngredientCheese,
	IngredientVegetable,
	IngredientMeat,
}

func (t IngredientType) String() string {
	switch t {
	case IngredientBase:
		return "base"
	case IngredientSauce:
		return "sauce"
	case IngredientCheese:
		return "cheese"
	case IngredientVegetable:
		return "vegetable"
	case IngredientMeat:
		return "meat"
	default:
		return fmt.Sprintf("ingredient_type(%d)", int(t))
	}
}

func (t IngredientType) Valid() bool {
	switch t {
	case IngredientBase, IngredientSauce, IngredientCheese, IngredientVegetable, IngredientMeat:
		return true
	default:
		return false
	}
}

// ParseIngredientType accepts the canonical names plus the "pizza-base"
// spelling used by older clients.
func ParseIngredientType(s string) (IngredientType, error) {
	switch s {
	case "base", "pizza-base", "pizzaBase":
		return IngredientBase, nil
	case "sauce":
		return IngredientSauce, nil
	case "cheese":
		return IngredientCheese, nil
	case "vegetable":
		return IngredientVegetable, nil
	case "meat":
		return IngredientMeat, nil
	default:
		return 0, fmt.Errorf("%w: unknown ingredient type %q", ErrInvalidConfiguration, s)
	}
}

func (t IngredientType) MarshalText() ([]byte, error) {
	if !t.Valid() {
		return nil, fmt.Errorf("invalid ingredient type %d", int(t))
	}
	return []byte(t.String()), nil
}

func (t *IngredientType) UnmarshalText(b []byte) error {
	parsed, err := ParseIngredientType(string(b))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// IngredientKey addresses one ingredient record.
type IngredientKey struct {
	Type IngredientType `json:"type"`
	ID   string         `json:"id"`
}

func (k IngredientKey) String() string {
	return k.Type.String() + "/" + k.ID
}

type Ingredient struct {
	Type              IngredientType  `json:"type"`
	ID                string          `json:"id"`
	Name              string          `json:"name"`
	Price             decimal.Decimal `json:"price"`
	StockQuantity     int             `json:"stock_quantity"`
	LowStockThreshold int             `json:"low_stock_threshold"`
	Available         bool            `json:"available"`
	CreatedAt         time.Time       `json:"created_at"`
	UpdatedAt         time.Time       `json:"updated_at"`
}

func (i Ingredient) Key() IngredientKey {
	return IngredientKey{Type: i.Type, ID: i.ID}
}

// IsLowStock reports whether stock is at or below the alert threshold.
func (i Ingredient) IsLowStock() bool {
	return i.StockQuantity <= i.LowStockThreshold
}

// ValidateAmount rejects stock movements that are not strictly positive.
// Stores call it before touching a counter.
func ValidateAmount(amount int) error {
	if amount < 1 {
		return fmt.Errorf("%w: stock amount must be positive, got %d", ErrInvalidConfiguration, amount)
	}
	return nil
}

func (i Ingredient) Validate() error {
	switch {
	case !i.Type.Valid():
		return fmt.Errorf("%w: invalid ingredient type", ErrInvalidConfiguration)
	case i.ID == "":
		return fmt.Errorf("%w: ingredient id is required", ErrInvalidConfiguration)
	case i.Name == "":
		return fmt.Errorf("%w: ingredient name is required", ErrInvalidConfiguration)
	case i.Price.IsNegative():
		return fmt.Errorf("%w: price cannot be negative", ErrInvalidConfiguration)
	case i.StockQuantity < 0:
		return fmt.Errorf("%w: stock cannot be negative", ErrInvalidConfiguration)
	case i.LowStockThreshold < 0:
		return fmt.Errorf("%w: threshold cannot be negative", ErrInvalidConfiguration)
	}
	return nil
}
