// Package menu defines the restaurant catalog model and the Repository
// abstraction the dialog core reads it through.
//
// The catalog is small (tens of items) and read-heavy: every turn the
// entity matcher walks all items. Implementations therefore serve reads
// from an in-memory snapshot; persistence backends (YAML file, Postgres)
// only load or refresh that snapshot.
package menu

import (
	"errors"
	"strings"
)

// ErrNotFound is returned by lookups that reference an unknown menu item.
var ErrNotFound = errors.New("menu: item not found")

// RestaurantInfo holds the public contact details of the restaurant.
type RestaurantInfo struct {
	Name    string `yaml:"name" json:"name"`
	Address string `yaml:"address" json:"address"`
	Phone   string `yaml:"phone" json:"phone"`
}

// Variant is a size or preparation option with its own price
// (e.g., "Large", "Boneless"). The variant price replaces the base price.
type Variant struct {
	Name  string  `yaml:"name" json:"name"`
	Price float64 `yaml:"price" json:"price"`
}

// Addon is an optional extra priced as a delta on top of the unit price
// (e.g., "Extra Cheese", "Raita").
type Addon struct {
	Name  string  `yaml:"name" json:"name"`
	Price float64 `yaml:"price" json:"price"`
}

// Item is a single orderable dish.
type Item struct {
	// Name is the display name and the key for fuzzy matching.
	Name string `yaml:"name" json:"name"`

	// Price is the base unit price in rupees.
	Price float64 `yaml:"price" json:"price"`

	// Description is read back for "what is X" queries.
	Description string `yaml:"description" json:"description"`

	// Variants lists alternative sizes/preparations. May be empty.
	Variants []Variant `yaml:"variants,omitempty" json:"variants,omitempty"`

	// Addons lists optional extras. May be empty.
	Addons []Addon `yaml:"addons,omitempty" json:"addons,omitempty"`

	// Allergens lists allergen labels (e.g., "dairy", "nuts"). May be empty.
	Allergens []string `yaml:"allergens,omitempty" json:"allergens,omitempty"`
}

// PriceFor returns the unit price for the given variant name, falling back
// to the base price when variant is empty or unknown. Matching is
// case-insensitive.
func (i Item) PriceFor(variant string) float64 {
	if variant == "" {
		return i.Price
	}
	for _, v := range i.Variants {
		if strings.EqualFold(v.Name, variant) {
			return v.Price
		}
	}
	return i.Price
}

// AddonPrice returns the price delta for the named addon, or 0 when the
// item has no such addon.
func (i Item) AddonPrice(name string) float64 {
	for _, a := range i.Addons {
		if strings.EqualFold(a.Name, name) {
			return a.Price
		}
	}
	return 0
}

// Category groups items under a menu heading ("Starters", "Beverages", …).
type Category struct {
	Name  string `yaml:"name" json:"name"`
	Items []Item `yaml:"items" json:"items"`
}

// Entry pairs an item with the name of the category it belongs to.
// The catalog enumeration order is stable: categories in declaration
// order, items in declaration order within each category. Ties in match
// scoring are broken by this order, so it must not be shuffled.
type Entry struct {
	Category string
	Item     Item
}

// Repository is the read-only catalog view consumed by the NLU and dialog
// layers. Implementations must be safe for concurrent use.
type Repository interface {
	// Menu returns all categories in declaration order.
	Menu() []Category

	// RestaurantInfo returns the restaurant's contact details.
	RestaurantInfo() RestaurantInfo

	// Items returns every item paired with its category name, in stable
	// catalog order. The returned slice must not be mutated by callers.
	Items() []Entry

	// Find returns the item whose name matches exactly (case-insensitive).
	Find(name string) (Entry, bool)
}
