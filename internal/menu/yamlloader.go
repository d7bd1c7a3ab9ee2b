package menu

import (
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// MenuFile is the top-level structure of a dinevox menu YAML file.
//
// Example:
//
//	restaurant:
//	  name: "Infocall Dine"
//	  address: "MG Road, Mumbai"
//	  phone: "+91 98765 43210"
//	menu:
//	  - name: "Beverages"
//	    items:
//	      - name: "Cold Coffee"
//	        price: 150
//	        description: "Iced coffee with cream"
type MenuFile struct {
	Restaurant RestaurantInfo `yaml:"restaurant"`
	Menu       []Category     `yaml:"menu"`
}

// LoadFile reads and parses a menu YAML file from disk.
// Returns a descriptive error if the file cannot be opened or parsed.
func LoadFile(path string) (*MenuFile, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("menu: open menu file %q: %w", path, err)
	}
	defer f.Close()

	mf, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("menu: parse menu file %q: %w", path, err)
	}
	return mf, nil
}

// LoadFromReader parses menu YAML from an [io.Reader].
// The reader is consumed entirely; the caller is responsible for closing it.
func LoadFromReader(r io.Reader) (*MenuFile, error) {
	var mf MenuFile
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true) // reject unknown keys to catch typos
	if err := dec.Decode(&mf); err != nil {
		return nil, fmt.Errorf("menu: decode menu yaml: %w", err)
	}
	if err := validate(&mf); err != nil {
		return nil, err
	}
	return &mf, nil
}

// Catalog converts the parsed file into a live [Catalog].
func (mf *MenuFile) Catalog() *Catalog {
	return NewCatalog(mf.Restaurant, mf.Menu)
}

// validate rejects menus the dialog core cannot work with. An empty or
// malformed catalog is a precondition violation, not something the core
// recovers from at runtime.
func validate(mf *MenuFile) error {
	if len(mf.Menu) == 0 {
		return fmt.Errorf("menu: file declares no categories")
	}
	for ci, cat := range mf.Menu {
		if cat.Name == "" {
			return fmt.Errorf("menu: menu[%d].name is required", ci)
		}
		if len(cat.Items) == 0 {
			return fmt.Errorf("menu: category %q has no items", cat.Name)
		}
		for ii, item := range cat.Items {
			if item.Name == "" {
				return fmt.Errorf("menu: menu[%d].items[%d].name is required", ci, ii)
			}
			if item.Price < 0 {
				return fmt.Errorf("menu: item %q has negative price %.2f", item.Name, item.Price)
			}
		}
	}
	return nil
}
