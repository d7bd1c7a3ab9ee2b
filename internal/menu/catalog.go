package menu

import (
	"strings"
	"sync"
)

// Compile-time assertion that Catalog satisfies the Repository interface.
var _ Repository = (*Catalog)(nil)

// Catalog is the in-memory [Repository] implementation. It is the only
// implementation — persistence backends load into it and the watcher
// swaps its contents atomically on hot-reload.
//
// All methods are safe for concurrent use.
type Catalog struct {
	mu         sync.RWMutex
	restaurant RestaurantInfo
	categories []Category
	entries    []Entry // flattened snapshot, rebuilt on Replace
}

// NewCatalog builds a Catalog from the given restaurant info and categories.
func NewCatalog(info RestaurantInfo, categories []Category) *Catalog {
	c := &Catalog{}
	c.Replace(info, categories)
	return c
}

// Replace atomically swaps the catalog contents. Used by the menu file
// watcher on hot-reload; in-flight turns keep reading the snapshot they
// already hold.
func (c *Catalog) Replace(info RestaurantInfo, categories []Category) {
	entries := make([]Entry, 0, 16)
	for _, cat := range categories {
		for _, item := range cat.Items {
			entries = append(entries, Entry{Category: cat.Name, Item: item})
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.restaurant = info
	c.categories = categories
	c.entries = entries
}

// Menu implements [Repository.Menu].
func (c *Catalog) Menu() []Category {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.categories
}

// RestaurantInfo implements [Repository.RestaurantInfo].
func (c *Catalog) RestaurantInfo() RestaurantInfo {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.restaurant
}

// Items implements [Repository.Items]. The returned slice is the shared
// snapshot; it is replaced wholesale on Replace, never mutated in place.
func (c *Catalog) Items() []Entry {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.entries
}

// Find implements [Repository.Find].
func (c *Catalog) Find(name string) (Entry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, e := range c.entries {
		if strings.EqualFold(e.Item.Name, name) {
			return e, true
		}
	}
	return Entry{}, false
}

// Default returns the built-in fallback catalog used when no menu file is
// configured. It mirrors the fixture every dialog test runs against.
func Default() *Catalog {
	return NewCatalog(
		RestaurantInfo{
			Name:    "Infocall Dine",
			Address: "MG Road, Mumbai",
			Phone:   "+91 98765 43210",
		},
		[]Category{
			{
				Name: "Starters",
				Items: []Item{
					{Name: "Paneer Tikka", Price: 250, Description: "Grilled cottage cheese",
						Variants:  []Variant{{Name: "Half", Price: 150}, {Name: "Full", Price: 250}},
						Addons:    []Addon{{Name: "Extra Cheese", Price: 40}, {Name: "Mint Chutney", Price: 20}},
						Allergens: []string{"dairy"}},
					{Name: "Spring Roll", Price: 180, Description: "Vegetable spring rolls",
						Allergens: []string{"gluten"}},
					{Name: "Gulab Jamun", Price: 80, Description: "Sweet Indian dessert",
						Allergens: []string{"dairy", "gluten"}},
				},
			},
			{
				Name: "Main Course",
				Items: []Item{
					{Name: "Butter Chicken", Price: 350, Description: "Chicken in butter sauce",
						Variants:  []Variant{{Name: "Boneless", Price: 390}},
						Addons:    []Addon{{Name: "Extra Gravy", Price: 50}},
						Allergens: []string{"dairy"}},
					{Name: "Dal Makhani", Price: 220, Description: "Black lentils",
						Allergens: []string{"dairy"}},
					{Name: "Garlic Naan", Price: 60, Description: "Garlic flavored bread",
						Addons:    []Addon{{Name: "Butter", Price: 10}},
						Allergens: []string{"gluten"}},
				},
			},
			{
				Name: "Beverages",
				Items: []Item{
					{Name: "Cold Coffee", Price: 150, Description: "Iced coffee with cream",
						Allergens: []string{"dairy"}},
					{Name: "Masala Tea", Price: 50, Description: "Spiced Indian tea",
						Allergens: []string{"dairy"}},
				},
			},
		},
	)
}
