package domain

import (
	"fmt"
	"math"
	"unicode/utf8"
)

const (
	maxInstructionsLength = 200

	// MaxRefQuantity caps the units of one ingredient line on a single pizza.
	MaxRefQuantity = 20
	// MaxPizzasPerOrder caps Order.Quantity.
	MaxPizzasPerOrder = 50
)

type Portion string

const (
	PortionLight   Portion = "light"
	PortionRegular Portion = "regular"
	PortionExtra   Portion = "extra"
)

type PizzaSize string

const (
	SizeSmall  PizzaSize = "small"
	SizeMedium PizzaSize = "medium"
	SizeLarge  PizzaSize = "large"
)

// IngredientRef is one line item to reserve.
type IngredientRef struct {
	Type     IngredientType `json:"type"`
	ID       string         `json:"id"`
	Quantity int            `json:"quantity"`
	Portion  Portion        `json:"portion,omitempty"`
}

func (r IngredientRef) Key() IngredientKey {
	return IngredientKey{Type: r.Type, ID: r.ID}
}

type PizzaConfiguration struct {
	Size                PizzaSize       `json:"size,omitempty"`
	Base                IngredientRef   `json:"base"`
	Sauce               IngredientRef   `json:"sauce"`
	Cheese              IngredientRef   `json:"cheese"`
	Vegetables          []IngredientRef `json:"vegetables,omitempty"`
	Meats               []IngredientRef `json:"meats,omitempty"`
	SpecialInstructions string          `json:"special_instructions,omitempty"`
}

// Validate checks the mandatory slots and quantities. Slot types are
// implied by position, so a ref filed under the wrong slot is rejected.
func (c PizzaConfiguration) Validate() error {
	mandatory := []struct {
		slot IngredientType
		ref  IngredientRef
	}{
		{IngredientBase, c.Base},
		{IngredientSauce, c.Sauce},
		{IngredientCheese, c.Cheese},
	}
	for _, m := range mandatory {
		if m.ref.ID == "" {
			return fmt.Errorf("%w: %s is required", ErrInvalidConfiguration, m.slot)
		}
		if err := validateRef(m.slot, m.ref); err != nil {
			return err
		}
	}
	for _, v := range c.Vegetables {
		if err := validateRef(IngredientVegetable, v); err != nil {
			return err
		}
	}
	for _, m := range c.Meats {
		if err := validateRef(IngredientMeat, m); err != nil {
			return err
		}
	}

	switch c.Size {
	case "", SizeSmall, SizeMedium, SizeLarge:
	default:
		return fmt.Errorf("%w: unknown size %q", ErrInvalidConfiguration, c.Size)
	}
	if utf8.RuneCountInString(c.SpecialInstructions) > maxInstructionsLength {
		return fmt.Errorf("%w: special instructions exceed %d characters", ErrInvalidConfiguration, maxInstructionsLength)
	}
	return nil
}

func validateRef(slot IngredientType, ref IngredientRef) error {
	if ref.Type != 0 && ref.Type != slot {
		return fmt.Errorf("%w: %s listed as %s", ErrInvalidConfiguration, ref.Type, slot)
	}
	if ref.ID == "" {
		return fmt.Errorf("%w: %s id is required", ErrInvalidConfiguration, slot)
	}
	if ref.Quantity < 1 || ref.Quantity > MaxRefQuantity {
		return fmt.Errorf("%w: %s %s quantity must be between 1 and %d", ErrInvalidConfiguration, slot, ref.ID, MaxRefQuantity)
	}
	switch ref.Portion {
	case "", PortionLight, PortionRegular, PortionExtra:
	default:
		return fmt.Errorf("%w: unknown portion %q", ErrInvalidConfiguration, ref.Portion)
	}
	return nil
}

// Normalize fills slot types and default portions in place.
func (c *PizzaConfiguration) Normalize() {
	if c.Size == "" {
		c.Size = SizeMedium
	}
	normalizeRef(&c.Base, IngredientBase)
	normalizeRef(&c.Sauce, IngredientSauce)
	normalizeRef(&c.Cheese, IngredientCheese)
	for i := range c.Vegetables {
		normalizeRef(&c.Vegetables[i], IngredientVegetable)
	}
	for i := range c.Meats {
		normalizeRef(&c.Meats[i], IngredientMeat)
	}
}

func normalizeRef(ref *IngredientRef, slot IngredientType) {
	ref.Type = slot
	if ref.Portion == "" {
		ref.Portion = PortionRegular
	}
}

// Reservations flattens the configuration in reservation order: base,
// sauce, cheese, vegetables, meats. Each quantity is scaled by the number
// of pizzas. Duplicate refs stay separate entries.
func (c PizzaConfiguration) Reservations(pizzas int) ([]IngredientRef, error) {
	if pizzas < 1 {
		return nil, fmt.Errorf("%w: quantity must be at least 1", ErrInvalidConfiguration)
	}
	refs := make([]IngredientRef, 0, 3+len(c.Vegetables)+len(c.Meats))
	add := func(ref IngredientRef, slot IngredientType) error {
		if ref.Quantity < 1 || ref.Quantity > math.MaxInt/pizzas {
			return fmt.Errorf("%w: %s %s quantity %d x %d pizzas is out of range", ErrInvalidConfiguration, slot, ref.ID, ref.Quantity, pizzas)
		}
		ref.Type = slot
		ref.Quantity *= pizzas
		refs = append(refs, ref)
		return nil
	}
	if err := add(c.Base, IngredientBase); err != nil {
		return nil, err
	}
	if err := add(c.Sauce, IngredientSauce); err != nil {
		return nil, err
	}
	if err := add(c.Cheese, IngredientCheese); err != nil {
		return nil, err
	}
	for _, v := range c.Vegetables {
		if err := add(v, IngredientVegetable); err != nil {
			return nil, err
		}
	}
	for _, m := range c.Meats {
		if err := add(m, IngredientMeat); err != nil {
			return nil, err
		}
	}
	return refs, nil
}
